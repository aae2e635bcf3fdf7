package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Frame types exchanged over the socket.
const (
	FrameSubscribe   = "subscribe"
	FrameUnsubscribe = "unsubscribe"
	FramePing        = "ping"
	FramePong        = "pong"
	FrameEvent       = "event"
	FrameAck         = "ack"
	FrameError       = "error"
	FrameSystem      = "system"
)

// Frame is a JSON message on the realtime socket, in either direction.
type Frame struct {
	Type    string `json:"type"`
	ID      string `json:"id,omitempty"`
	Topic   *Topic `json:"topic,omitempty"`
	TopicID string `json:"topic_id,omitempty"`
	Event   *Event `json:"event,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
	Seq     uint64 `json:"seq,omitempty"`
}

// SessionOptions tunes a socket session. Zero values take defaults.
type SessionOptions struct {
	Buffer       int           // delivery buffer per connection
	RPS          float64       // inbound frames per second
	Burst        int           // inbound burst
	PingInterval time.Duration // keepalive period
	WriteTimeout time.Duration
	ReadLimit    int64 // max inbound frame size in bytes
	MaxTopics    int
}

func (o SessionOptions) withDefaults() SessionOptions {
	if o.Buffer <= 0 {
		o.Buffer = 64
	}
	if o.RPS <= 0 {
		o.RPS = 20
	}
	if o.Burst <= 0 {
		o.Burst = int(o.RPS) * 2
	}
	if o.PingInterval <= 0 {
		o.PingInterval = 30 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.ReadLimit <= 0 {
		o.ReadLimit = 16 << 10
	}
	if o.MaxTopics <= 0 {
		o.MaxTopics = 32
	}
	return o
}

// Serve runs a realtime session for an authenticated user on an accepted
// connection. It blocks until the peer disconnects, ctx is done, or the hub
// drops the subscription.
func Serve(ctx context.Context, conn *websocket.Conn, hub *Hub, userID string, opts SessionOptions) error {
	opts = opts.withDefaults()

	sub, err := hub.Subscribe(userID, opts.Buffer)
	if err != nil {
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return err
	}
	defer sub.Close()

	conn.SetReadLimit(opts.ReadLimit)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	control := make(chan Frame, 16)
	control <- Frame{Type: FrameSystem, Message: "connected", Seq: hub.LastSeq()}

	werr := make(chan error, 1)
	go func() {
		werr <- writeLoop(ctx, conn, sub, control, opts)
		cancel()
	}()

	lim := rate.NewLimiter(rate.Limit(opts.RPS), opts.Burst)
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			cancel()
			if w := <-werr; w != nil {
				return w
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return nil
			}
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		if !lim.Allow() {
			send(ctx, control, Frame{Type: FrameError, Code: "rate_limited", Message: "too many messages"})
			continue
		}

		var in Frame
		if err := json.Unmarshal(data, &in); err != nil {
			send(ctx, control, Frame{Type: FrameError, Code: "invalid_json", Message: "frame is not valid JSON"})
			continue
		}
		send(ctx, control, handleFrame(sub, in, opts.MaxTopics))
	}
}

// handleFrame applies one client frame and returns the reply.
func handleFrame(sub *Subscription, in Frame, maxTopics int) Frame {
	switch in.Type {
	case FramePing:
		return Frame{Type: FramePong, ID: in.ID}
	case FrameSubscribe:
		if in.ID == "" || in.Topic == nil {
			return Frame{Type: FrameError, ID: in.ID, Code: "invalid_topic", Message: "id and topic are required"}
		}
		if sub.Topics() >= maxTopics {
			return Frame{Type: FrameError, ID: in.ID, Code: "too_many_topics", Message: "subscription limit reached"}
		}
		if err := sub.Listen(in.ID, *in.Topic); err != nil {
			return Frame{Type: FrameError, ID: in.ID, Code: "invalid_topic", Message: err.Error()}
		}
		return Frame{Type: FrameAck, ID: in.ID}
	case FrameUnsubscribe:
		if !sub.Unlisten(in.ID) {
			return Frame{Type: FrameError, ID: in.ID, Code: "unknown_topic", Message: "no subscription with that id"}
		}
		return Frame{Type: FrameAck, ID: in.ID}
	default:
		return Frame{Type: FrameError, ID: in.ID, Code: "unknown_type", Message: "unsupported frame type"}
	}
}

func send(ctx context.Context, control chan<- Frame, f Frame) {
	select {
	case control <- f:
	case <-ctx.Done():
	}
}

// writeLoop is the only writer on conn.
func writeLoop(ctx context.Context, conn *websocket.Conn, sub *Subscription, control <-chan Frame, opts SessionOptions) error {
	ticker := time.NewTicker(opts.PingInterval)
	defer ticker.Stop()

	write := func(f Frame) error {
		wctx, cancel := context.WithTimeout(ctx, opts.WriteTimeout)
		defer cancel()
		return wsjson.Write(wctx, conn, f)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case f := <-control:
			if err := write(f); err != nil {
				return err
			}
		case d, ok := <-sub.C():
			if !ok {
				reason := sub.Err()
				switch {
				case errors.Is(reason, ErrSlowSubscriber):
					conn.Close(websocket.StatusPolicyViolation, "subscriber too slow")
				case errors.Is(reason, ErrClosed):
					conn.Close(websocket.StatusGoingAway, "server shutting down")
				}
				return reason
			}
			ev := d.Event
			if err := write(Frame{Type: FrameEvent, TopicID: d.TopicID, Event: &ev}); err != nil {
				return err
			}
		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, opts.WriteTimeout)
			err := conn.Ping(pctx)
			cancel()
			if err != nil {
				if ctx.Err() == nil {
					log.Debug().Err(err).Str("user_id", sub.UserID).Msg("realtime ping failed")
				}
				return err
			}
		}
	}
}
