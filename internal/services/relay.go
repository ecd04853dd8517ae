// Package services – message relay
//
// This file implements the chat relay between a client and the operator
// group. Every relayed message is persisted first, so the conversation
// history survives even when the Telegram delivery fails.
package services

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/changcafe/go-order-bridge/internal/domain"
	"github.com/changcafe/go-order-bridge/internal/repo"
)

// RelayService forwards free-form messages between the two sides of an order.
type RelayService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Notify delivers the forwarded copies.
	Notify *NotifyService
}

// NewRelayService constructs a RelayService.
func NewRelayService(db *gorm.DB, notify *NotifyService) *RelayService {
	return &RelayService{DB: db, Notify: notify}
}

// ToOperator stores a client message and forwards it to the operator chat,
// prefixed with the order it belongs to.
func (s *RelayService) ToOperator(ctx context.Context, orderID uint, senderID int64, text string) error {
	o, err := s.order(ctx, orderID)
	if err != nil {
		return err
	}
	if _, err := repo.SaveMessage(ctx, s.DB, orderID, senderID, text, domain.DirectionToOperator); err != nil {
		return err
	}
	if s.Notify != nil {
		s.Notify.Operator(ctx, o, fmt.Sprintf("💬 Заказ %s, клиент:\n%s", o.ExternalOrderID, text))
	}
	return nil
}

// ToClient stores an operator message and forwards it to the client's chat.
func (s *RelayService) ToClient(ctx context.Context, orderID uint, senderID int64, text string) error {
	o, err := s.order(ctx, orderID)
	if err != nil {
		return err
	}
	if _, err := repo.SaveMessage(ctx, s.DB, orderID, senderID, text, domain.DirectionToClient); err != nil {
		return err
	}
	if s.Notify != nil {
		s.Notify.Client(ctx, o, fmt.Sprintf("💬 По заказу %s:\n%s", o.ExternalOrderID, text))
	}
	return nil
}

// History returns the stored conversation for an order, oldest first.
func (s *RelayService) History(ctx context.Context, orderID uint) ([]domain.Message, error) {
	return repo.ListOrderMessages(ctx, s.DB, orderID)
}

func (s *RelayService) order(ctx context.Context, orderID uint) (*domain.Order, error) {
	o, err := repo.GetOrder(ctx, s.DB, orderID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrOrderNotFound
	}
	return o, err
}
