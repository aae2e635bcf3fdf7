// Package services – MessageService
//
// This file implements direct messages between two profiles: the
// conversation list, reading a thread (which marks it read) and sending.
// Every change is published privately to the two participants.
//
// Observability: all public methods are OpenTelemetry-instrumented; spans
// include user identifiers and pagination parameters where applicable.
package services

import (
	"context"
	"time"

	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-social-backend/internal/domain"
	"github.com/tbourn/go-social-backend/internal/realtime"
	"github.com/tbourn/go-social-backend/internal/repo"
)

// Thread page limits.
const (
	DefaultThreadLimit = 50
	MaxThreadLimit     = 200
)

// ReadReceipt is published to a sender when the receiver opens the thread.
type ReadReceipt struct {
	SenderID   string    `json:"sender_id"`
	ReceiverID string    `json:"receiver_id"`
	Read       bool      `json:"read"`
	Count      int64     `json:"count"`
	ReadAt     time.Time `json:"read_at"`
}

// MessageService implements direct messaging.
type MessageService struct {
	DB              *gorm.DB
	Publisher       Publisher
	MaxMessageRunes int
}

// Conversations returns one entry per counterpart of userID, most recent
// first.
func (s *MessageService) Conversations(ctx context.Context, userID string) ([]domain.Conversation, error) {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "Conversations",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	msgs, err := repo.LatestMessagePerCounterpart(ctx, s.DB, userID)
	if err != nil {
		return nil, err
	}
	unread, err := repo.UnreadCountsBySender(ctx, s.DB, userID)
	if err != nil {
		return nil, err
	}

	// msgs holds one message per counterpart, newest first.
	order := make([]string, 0, len(msgs))
	last := make(map[string]domain.Message, len(msgs))
	for _, m := range msgs {
		other := m.SenderID
		if other == userID {
			other = m.ReceiverID
		}
		last[other] = m
		order = append(order, other)
	}

	profiles, err := repo.ProfilesByID(ctx, s.DB, order)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Conversation, 0, len(order))
	for _, id := range order {
		p, ok := profiles[id]
		if !ok {
			continue
		}
		out = append(out, domain.Conversation{
			User:        p.Summary(),
			LastMessage: last[id],
			UnreadCount: unread[id],
		})
	}
	span.SetAttributes(attribute.Int("conversations", len(out)))
	return out, nil
}

// Thread returns the messages between userID and otherID in ascending time
// order and marks otherID's messages to userID as read. before (with the
// optional tie-breaking beforeID) pages back in time.
func (s *MessageService) Thread(ctx context.Context, userID, otherID string, limit int, before *time.Time, beforeID string) ([]domain.Message, error) {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "Thread",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("other.id", otherID),
			attribute.Int("limit", limit),
		),
	)
	defer span.End()

	if _, err := repo.GetProfile(ctx, s.DB, otherID); err != nil {
		if isNotFound(err) {
			return nil, ErrProfileNotFound
		}
		return nil, err
	}

	n, err := repo.MarkThreadRead(ctx, s.DB, userID, otherID)
	if err != nil {
		return nil, err
	}
	limit, _ = page(limit, 0, DefaultThreadLimit, MaxThreadLimit)
	msgs, err := repo.ListThread(ctx, s.DB, userID, otherID, before, beforeID, limit)
	if err != nil {
		return nil, err
	}
	if msgs == nil {
		msgs = []domain.Message{}
	}

	if n > 0 {
		rr := ReadReceipt{SenderID: otherID, ReceiverID: userID, Read: true, Count: n, ReadAt: time.Now().UTC()}
		publish(ctx, s.Publisher, "messages", realtime.Update, rr, nil, otherID, userID)
	}
	return msgs, nil
}

// Send delivers a direct message from senderID to receiverID.
func (s *MessageService) Send(ctx context.Context, senderID, receiverID, content string) (*domain.Message, error) {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "Send",
		trace.WithAttributes(
			attribute.String("user.id", senderID),
			attribute.String("receiver.id", receiverID),
		),
	)
	defer span.End()

	if senderID == receiverID {
		return nil, ErrSelfMessage
	}
	content, err := validateText(content, s.MaxMessageRunes)
	if err != nil {
		return nil, err
	}
	if _, err := repo.GetProfile(ctx, s.DB, receiverID); err != nil {
		if isNotFound(err) {
			return nil, ErrProfileNotFound
		}
		return nil, err
	}

	m, err := repo.CreateMessage(ctx, s.DB, senderID, receiverID, content)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("message.id", m.ID))
	messagesSent.Inc()

	publish(ctx, s.Publisher, "messages", realtime.Insert, m, nil, senderID, receiverID)
	return m, nil
}

// Get returns a message if userID is one of its participants.
func (s *MessageService) Get(ctx context.Context, userID, messageID string) (*domain.Message, error) {
	m, err := repo.GetMessage(ctx, s.DB, messageID)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrMessageNotFound
		}
		return nil, err
	}
	if m.SenderID != userID && m.ReceiverID != userID {
		return nil, ErrMessageNotFound
	}
	return m, nil
}

// UnreadCount returns the number of unread messages addressed to userID.
func (s *MessageService) UnreadCount(ctx context.Context, userID string) (int64, error) {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "UnreadCount",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	return repo.CountUnreadMessages(ctx, s.DB, userID)
}
