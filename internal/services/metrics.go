package services

import "github.com/prometheus/client_golang/prometheus"

var (
	signups = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "social_signups_total",
			Help: "Accounts created.",
		},
	)

	postsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "social_posts_created_total",
			Help: "Posts created.",
		},
	)

	// likesToggled is labeled by the resulting state ("liked", "unliked").
	likesToggled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "social_likes_toggled_total",
			Help: "Like toggles by resulting state.",
		},
		[]string{"state"},
	)

	messagesSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "social_messages_sent_total",
			Help: "Direct messages sent.",
		},
	)
)

func init() {
	prometheus.MustRegister(signups, postsCreated, likesToggled, messagesSent)
}
