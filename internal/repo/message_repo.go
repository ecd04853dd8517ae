// Package repo — repository functions for the relay Message log.
//
// The log is append-only: rows are written when the operator and a client
// exchange text through the bot and are never mutated afterwards.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/changcafe/go-order-bridge/internal/domain"
)

// SaveMessage appends one relayed message to an order's log. direction is
// domain.DirectionToClient or domain.DirectionToOperator.
func SaveMessage(ctx context.Context, db *gorm.DB, orderID uint, senderID int64, text, direction string) (*domain.Message, error) {
	m := &domain.Message{
		OrderID:   orderID,
		SenderID:  senderID,
		Text:      text,
		Direction: direction,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(m).Error; err != nil {
		return nil, err
	}
	return m, nil
}

// ListOrderMessages returns the full relay history for an order, oldest
// first.
func ListOrderMessages(ctx context.Context, db *gorm.DB, orderID uint) ([]domain.Message, error) {
	var out []domain.Message
	err := db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at asc").
		Find(&out).Error
	return out, err
}
