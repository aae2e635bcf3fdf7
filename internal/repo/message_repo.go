// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for direct
// messages.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-social-backend/internal/domain"
)

// CreateMessage inserts a new direct message.
func CreateMessage(ctx context.Context, db *gorm.DB, senderID, receiverID, content string) (*domain.Message, error) {
	m := &domain.Message{
		ID:         uuid.NewString(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    content,
		CreatedAt:  time.Now().UTC(),
	}
	return m, db.WithContext(ctx).Create(m).Error
}

// GetMessage fetches a message by ID.
func GetMessage(ctx context.Context, db *gorm.DB, id string) (*domain.Message, error) {
	var m domain.Message
	if err := db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// ListThread returns up to limit messages exchanged between a and b, ordered
// (CreatedAt ASC, ID ASC). When before is set only older messages are
// considered, so the newest page comes first and callers page backwards.
// beforeID makes the cursor the (before, beforeID) pair, so messages that
// share a timestamp with the page boundary are not skipped.
func ListThread(ctx context.Context, db *gorm.DB, a, b string, before *time.Time, beforeID string, limit int) ([]domain.Message, error) {
	q := db.WithContext(ctx).
		Where("((sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?))", a, b, b, a)
	switch {
	case before != nil && beforeID != "":
		q = q.Where("(created_at < ? OR (created_at = ? AND id < ?))", *before, *before, beforeID)
	case before != nil:
		q = q.Where("created_at < ?", *before)
	}
	var out []domain.Message
	if err := q.Order("created_at DESC, id DESC").Limit(limit).Find(&out).Error; err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// MarkThreadRead flags every unread message from senderID to readerID as read
// and returns how many rows changed.
func MarkThreadRead(ctx context.Context, db *gorm.DB, readerID, senderID string) (int64, error) {
	res := db.WithContext(ctx).Model(&domain.Message{}).
		Where("receiver_id = ? AND sender_id = ? AND read = ?", readerID, senderID, false).
		Update("read", true)
	return res.RowsAffected, res.Error
}

// LatestMessagePerCounterpart returns, for every profile userID has
// exchanged messages with, the last message of that pair (by CreatedAt, then
// ID). The result is newest first.
func LatestMessagePerCounterpart(ctx context.Context, db *gorm.DB, userID string) ([]domain.Message, error) {
	var out []domain.Message
	err := db.WithContext(ctx).
		Table("messages AS m").
		Select("m.*").
		Where("(m.sender_id = ? OR m.receiver_id = ?)", userID, userID).
		Where(`NOT EXISTS (
			SELECT 1 FROM messages n
			WHERE ((n.sender_id = m.sender_id AND n.receiver_id = m.receiver_id)
			    OR (n.sender_id = m.receiver_id AND n.receiver_id = m.sender_id))
			  AND (n.created_at > m.created_at OR (n.created_at = m.created_at AND n.id > m.id))
		)`).
		Order("m.created_at DESC, m.id DESC").
		Find(&out).Error
	return out, err
}

// UnreadCountsBySender returns, per sender, the number of unread messages
// addressed to userID.
func UnreadCountsBySender(ctx context.Context, db *gorm.DB, userID string) (map[string]int64, error) {
	var rows []struct {
		SenderID string
		N        int64
	}
	err := db.WithContext(ctx).Model(&domain.Message{}).
		Select("sender_id, COUNT(*) AS n").
		Where("receiver_id = ? AND read = ?", userID, false).
		Group("sender_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.SenderID] = r.N
	}
	return out, nil
}

// CountUnreadMessages returns the number of unread messages addressed to userID.
func CountUnreadMessages(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.Message{}).
		Where("receiver_id = ? AND read = ?", userID, false).
		Count(&n).Error
	return n, err
}
