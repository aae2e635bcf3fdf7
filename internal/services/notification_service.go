// Package services – NotificationService
//
// Notifications are written by other services inside their own transactions
// (a like, a comment, a follow) and published to the recipient once the
// transaction commits.
package services

import (
	"context"

	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-social-backend/internal/domain"
	"github.com/tbourn/go-social-backend/internal/realtime"
	"github.com/tbourn/go-social-backend/internal/repo"
)

// Notification list limits.
const (
	DefaultNotificationLimit = 50
	MaxNotificationLimit     = 50
)

// NotificationService lists and creates notifications.
type NotificationService struct {
	DB        *gorm.DB
	Publisher Publisher
}

// List returns userID's newest notifications with actors loaded. When
// markRead is true every unread notification is marked read afterwards; the
// returned rows still show their state before the call.
func (s *NotificationService) List(ctx context.Context, userID string, limit int, markRead bool) ([]domain.Notification, error) {
	tr := otel.Tracer("services/NotificationService")
	ctx, span := tr.Start(ctx, "List",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.Int("limit", limit),
			attribute.Bool("mark_read", markRead),
		),
	)
	defer span.End()

	limit, _ = page(limit, 0, DefaultNotificationLimit, MaxNotificationLimit)
	items, err := repo.ListNotifications(ctx, s.DB, userID, limit)
	if err != nil {
		return nil, err
	}
	if markRead {
		if _, err := repo.MarkNotificationsRead(ctx, s.DB, userID); err != nil {
			return nil, err
		}
	}
	if items == nil {
		items = []domain.Notification{}
	}
	return items, nil
}

// MarkAllRead marks every unread notification of userID as read and returns
// how many changed.
func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	tr := otel.Tracer("services/NotificationService")
	ctx, span := tr.Start(ctx, "MarkAllRead",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	return repo.MarkNotificationsRead(ctx, s.DB, userID)
}

// UnreadCount returns the number of unread notifications for userID.
func (s *NotificationService) UnreadCount(ctx context.Context, userID string) (int64, error) {
	tr := otel.Tracer("services/NotificationService")
	ctx, span := tr.Start(ctx, "UnreadCount",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	return repo.CountUnreadNotifications(ctx, s.DB, userID)
}

// create writes a notification on tx. It returns nil without writing when
// the actor is the recipient.
func (s *NotificationService) create(ctx context.Context, tx *gorm.DB, recipientID, actorID, typ string, postID *string) (*domain.Notification, error) {
	if recipientID == actorID {
		return nil, nil
	}
	return repo.CreateNotification(ctx, tx, recipientID, actorID, typ, postID)
}

// announce sends n to its recipient. Call after the creating transaction
// commits. nil is ignored.
func (s *NotificationService) announce(ctx context.Context, n *domain.Notification) {
	if s == nil || n == nil {
		return
	}
	publish(ctx, s.Publisher, "notifications", realtime.Insert, n, nil, n.UserID)
}
