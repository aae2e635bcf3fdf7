package realtime

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

// ErrClosed is returned when publishing to or subscribing on a closed hub.
var ErrClosed = errors.New("realtime hub closed")

// ErrSlowSubscriber is the reason a subscription was dropped for not
// draining its buffer.
var ErrSlowSubscriber = errors.New("subscriber too slow")

var (
	subscribersGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "realtime_subscribers",
		Help: "Current number of realtime subscriptions.",
	})
	eventsPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "realtime_events_published_total",
		Help: "Events published to the hub by table and origin (local/remote).",
	}, []string{"table", "origin"})
	eventsDelivered = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "realtime_events_delivered_total",
		Help: "Events queued to subscribers.",
	})
	subscribersDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "realtime_subscribers_dropped_total",
		Help: "Subscriptions closed because their buffer was full.",
	})
)

func init() {
	prometheus.MustRegister(subscribersGauge, eventsPublished, eventsDelivered, subscribersDropped)
}

// Delivery is an event routed to one topic of a subscription.
type Delivery struct {
	TopicID string
	Event   Event
}

// Hub fans events out to subscriptions. All methods are safe for concurrent
// use. Publish never blocks on a slow subscriber; subscribers whose buffer
// is full are dropped.
type Hub struct {
	pubMu sync.Mutex // serializes seq assignment with fan-out
	seq   uint64

	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	closed bool

	relay func(Event)
	now   func() time.Time
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{
		subs: make(map[*Subscription]struct{}),
		now:  time.Now,
	}
}

// SetRelay registers fn to receive every locally originated event after
// fan-out. Used by the Redis bridge. fn must not block.
func (h *Hub) SetRelay(fn func(Event)) {
	h.mu.Lock()
	h.relay = fn
	h.mu.Unlock()
}

// Publish assigns the next sequence number and delivers ev to every matching
// subscription. It returns the event as delivered.
func (h *Hub) Publish(ctx context.Context, ev Event) (Event, error) {
	if err := ctx.Err(); err != nil {
		return Event{}, err
	}
	ev.decode()

	h.pubMu.Lock()
	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		h.pubMu.Unlock()
		return Event{}, ErrClosed
	}
	h.seq++
	ev.Seq = h.seq
	if ev.At.IsZero() {
		ev.At = h.now().UTC()
	}
	var slow []*Subscription
	for s := range h.subs {
		if !s.deliver(&ev) {
			slow = append(slow, s)
		}
	}
	relay := h.relay
	h.mu.RUnlock()
	h.pubMu.Unlock()

	origin := "local"
	if ev.Origin != "" {
		origin = "remote"
	}
	eventsPublished.WithLabelValues(ev.Table, origin).Inc()

	for _, s := range slow {
		log.Warn().Str("user_id", s.UserID).Msg("realtime subscriber too slow, dropping")
		subscribersDropped.Inc()
		s.closeWith(ErrSlowSubscriber)
	}
	if relay != nil && ev.Origin == "" {
		relay(ev)
	}
	return ev, nil
}

// Subscribe registers a subscription for userID with a delivery buffer of
// the given size. The subscription receives nothing until Listen is called.
func (h *Hub) Subscribe(userID string, buffer int) (*Subscription, error) {
	if buffer <= 0 {
		buffer = 1
	}
	s := &Subscription{
		UserID: userID,
		hub:    h,
		ch:     make(chan Delivery, buffer),
		topics: make(map[string]matcher),
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrClosed
	}
	h.subs[s] = struct{}{}
	subscribersGauge.Inc()
	return s, nil
}

// Len returns the number of live subscriptions.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// LastSeq returns the most recently assigned sequence number.
func (h *Hub) LastSeq() uint64 {
	h.pubMu.Lock()
	defer h.pubMu.Unlock()
	return h.seq
}

func (h *Hub) remove(s *Subscription) {
	h.mu.Lock()
	if _, ok := h.subs[s]; ok {
		delete(h.subs, s)
		subscribersGauge.Dec()
	}
	h.mu.Unlock()
}

// Shutdown closes every subscription and rejects further use of the hub.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.closed = true
	subs := make([]*Subscription, 0, len(h.subs))
	for s := range h.subs {
		subs = append(subs, s)
	}
	h.mu.Unlock()

	for _, s := range subs {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.closeWith(ErrClosed)
	}
	return nil
}

// Subscription is one client's view of the hub. It can listen on several
// topics at once; each delivery carries the topic ID it matched.
type Subscription struct {
	UserID string

	hub *Hub

	mu     sync.Mutex
	ch     chan Delivery
	topics map[string]matcher
	closed bool
	err    error
}

// C returns the delivery channel. It is closed when the subscription ends.
func (s *Subscription) C() <-chan Delivery { return s.ch }

// Listen starts delivering events that match topic under id. Reusing an id
// replaces its topic.
func (s *Subscription) Listen(id string, topic Topic) error {
	m, err := topic.compile()
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.topics[id] = m
	return nil
}

// Unlisten stops the topic registered under id. It reports whether id existed.
func (s *Subscription) Unlisten(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.topics[id]
	delete(s.topics, id)
	return ok
}

// Topics returns the number of active topics.
func (s *Subscription) Topics() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.topics)
}

// deliver queues ev for every matching topic. It returns false when the
// buffer is full.
func (s *Subscription) deliver(ev *Event) bool {
	if !ev.visibleTo(s.UserID) {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return true
	}
	for id, m := range s.topics {
		if !m.match(ev) {
			continue
		}
		select {
		case s.ch <- Delivery{TopicID: id, Event: *ev}:
			eventsDelivered.Inc()
		default:
			return false
		}
	}
	return true
}

// Err returns why the hub ended the subscription: ErrSlowSubscriber,
// ErrClosed, or nil when the owner closed it.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close ends the subscription and closes its channel. Safe to call twice.
func (s *Subscription) Close() { s.closeWith(nil) }

func (s *Subscription) closeWith(reason error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.err = reason
	close(s.ch)
	s.mu.Unlock()
	s.hub.remove(s)
}
