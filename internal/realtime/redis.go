package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-social-backend/internal/retry"
)

// envelope is the wire format on the Redis channel.
type envelope struct {
	Origin string `json:"origin"`
	Event  Event  `json:"event"`
}

// Bridge relays events between hubs of different instances through a Redis
// pub/sub channel. Local events are published with this instance's ID;
// events from other instances are re-published into the local hub, which
// assigns them a local seq.
type Bridge struct {
	client     *redis.Client
	hub        *Hub
	channel    string
	instanceID string
	policy     retry.Policy
	out        chan Event
}

// NewBridge wires hub to channel on client. A random instance ID is used.
func NewBridge(client *redis.Client, hub *Hub, channel string, p retry.Policy) *Bridge {
	return &Bridge{
		client:     client,
		hub:        hub,
		channel:    channel,
		instanceID: uuid.NewString(),
		policy:     p,
		out:        make(chan Event, 1024),
	}
}

// InstanceID identifies this process on the channel.
func (b *Bridge) InstanceID() string { return b.instanceID }

// Run connects to Redis (with retry), subscribes, and relays in both
// directions until ctx is done.
func (b *Bridge) Run(ctx context.Context) error {
	err := retry.Do(ctx, b.policy, "redis.connect", func(ctx context.Context) error {
		return b.client.Ping(ctx).Err()
	})
	if err != nil {
		return fmt.Errorf("redis connect: %w", err)
	}

	ps := b.client.Subscribe(ctx, b.channel)
	defer ps.Close()
	if _, err := ps.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe: %w", err)
	}
	log.Info().Str("channel", b.channel).Str("instance", b.instanceID).Msg("realtime redis bridge connected")

	b.hub.SetRelay(b.enqueue)
	defer b.hub.SetRelay(nil)

	go b.publishLoop(ctx)

	msgs := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-msgs:
			if !ok {
				return errors.New("redis subscription closed")
			}
			b.handle(ctx, []byte(m.Payload))
		}
	}
}

// enqueue is the hub relay. It drops events when Redis falls behind.
func (b *Bridge) enqueue(ev Event) {
	select {
	case b.out <- ev:
	default:
		log.Warn().Str("table", ev.Table).Uint64("seq", ev.Seq).Msg("redis relay queue full, dropping event")
	}
}

func (b *Bridge) publishLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-b.out:
			payload, err := encodeEnvelope(b.instanceID, ev)
			if err != nil {
				log.Error().Err(err).Msg("encode realtime event")
				continue
			}
			if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil && ctx.Err() == nil {
				log.Warn().Err(err).Str("table", ev.Table).Msg("redis publish failed")
			}
		}
	}
}

// handle re-publishes a remote event locally. Events from this instance are
// ignored.
func (b *Bridge) handle(ctx context.Context, payload []byte) {
	origin, ev, err := decodeEnvelope(payload)
	if err != nil {
		log.Warn().Err(err).Msg("malformed realtime envelope")
		return
	}
	if origin == b.instanceID {
		return
	}
	ev.Origin = origin
	ev.Seq = 0
	if _, err := b.hub.Publish(ctx, ev); err != nil && !errors.Is(err, ErrClosed) {
		log.Warn().Err(err).Msg("republish remote event")
	}
}

func encodeEnvelope(origin string, ev Event) ([]byte, error) {
	return json.Marshal(envelope{Origin: origin, Event: ev})
}

func decodeEnvelope(b []byte) (string, Event, error) {
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return "", Event{}, err
	}
	if env.Origin == "" || env.Event.Table == "" {
		return "", Event{}, errors.New("missing origin or table")
	}
	return env.Origin, env.Event, nil
}
