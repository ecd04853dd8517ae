// Package services – Telegram notifications
//
// This file implements the best-effort notification fan-out. Notifications
// never fail the operation that triggered them: delivery errors are logged,
// counted, and swallowed so a Telegram outage cannot block order intake or
// lifecycle updates.
package services

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/changcafe/go-order-bridge/internal/domain"
)

// Sender is the narrow Telegram surface the notification layer needs.
type Sender interface {
	// Send delivers a plain-text message to the given chat.
	Send(ctx context.Context, chatID int64, text string) error
}

// NotifyService pushes order events to the operator group chat and to the
// client's private chat. All methods are best-effort.
type NotifyService struct {
	// TG is the Telegram sender used for delivery.
	TG Sender
	// OperatorChatID is the group chat where operators work orders.
	OperatorChatID int64
}

// NewNotifyService constructs a NotifyService.
func NewNotifyService(tg Sender, operatorChatID int64) *NotifyService {
	return &NotifyService{TG: tg, OperatorChatID: operatorChatID}
}

// NewOrder announces a freshly ingested order in the operator chat, including
// the deep link the client will arrive through.
func (n *NotifyService) NewOrder(ctx context.Context, o *domain.Order, deepLink string) {
	text := "🆕 Новый заказ\n\n" + OrderCard(o, true)
	if deepLink != "" {
		text += "\n\n🔗 " + deepLink
	}
	n.send(ctx, n.OperatorChatID, text, o.ID)
}

// Operator sends a free-form message to the operator chat.
func (n *NotifyService) Operator(ctx context.Context, o *domain.Order, text string) {
	n.send(ctx, n.OperatorChatID, text, o.ID)
}

// Client sends a message to the client who owns the order. Orders that have
// not been linked to a Telegram user yet are skipped silently.
func (n *NotifyService) Client(ctx context.Context, o *domain.Order, text string) {
	if o.UserID == nil {
		log.Debug().Uint("order_id", o.ID).Msg("client notification skipped: order not linked")
		return
	}
	n.send(ctx, *o.UserID, text, o.ID)
}

func (n *NotifyService) send(ctx context.Context, chatID int64, text string, orderID uint) {
	if n == nil || n.TG == nil || chatID == 0 {
		return
	}
	if err := n.TG.Send(ctx, chatID, text); err != nil {
		notifyFailures.Inc()
		log.Warn().
			Err(err).
			Int64("chat_id", chatID).
			Uint("order_id", orderID).
			Msg("telegram notification failed")
	}
}
