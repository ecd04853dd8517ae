package bot

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/changcafe/go-order-bridge/internal/services"
	"github.com/changcafe/go-order-bridge/internal/session"
	"github.com/changcafe/go-order-bridge/internal/telegram"
)

// Dialog steps stored in the session layer.
const (
	stateAwaitPhone        = "await_phone"
	stateAwaitPaymentLink  = "await_payment_link"
	stateAwaitTrackingLink = "await_tracking_link"
	stateAwaitDeliveryCost = "await_delivery_cost"
	stateAwaitClientReply  = "await_client_reply"
)

// API is the Telegram surface the bot needs; *telegram.Client satisfies it.
type API interface {
	SendMessage(ctx context.Context, chatID int64, text string, markup any) (*telegram.Message, error)
	AnswerCallbackQuery(ctx context.Context, callbackID, text string) error
}

// Bot routes incoming Telegram updates to the order services.
type Bot struct {
	// TG sends replies and acknowledges button presses.
	TG API
	// Sessions keeps per-user dialog state.
	Sessions session.Store
	// Lifecycle drives order transitions.
	Lifecycle *services.LifecycleService
	// Relay forwards free-form chat between client and operators.
	Relay *services.RelayService
	// OperatorChatID is the group where operators work orders.
	OperatorChatID int64
}

// New constructs a Bot.
func New(tg API, sessions session.Store, lifecycle *services.LifecycleService, relay *services.RelayService, operatorChatID int64) *Bot {
	return &Bot{
		TG:             tg,
		Sessions:       sessions,
		Lifecycle:      lifecycle,
		Relay:          relay,
		OperatorChatID: operatorChatID,
	}
}

// HandleUpdate dispatches one webhook update. Handler-level failures are
// logged, not returned: Telegram redelivers on non-200, and redelivering a
// press of a stale button would only repeat the same rejection.
func (b *Bot) HandleUpdate(ctx context.Context, upd telegram.Update) {
	switch {
	case upd.CallbackQuery != nil:
		b.handleCallback(ctx, upd.CallbackQuery)
	case upd.Message != nil:
		b.handleMessage(ctx, upd.Message)
	default:
		log.Debug().Int64("update_id", upd.UpdateID).Msg("ignoring unsupported update")
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *telegram.Message) {
	if msg.From == nil || msg.From.IsBot {
		return
	}

	if msg.Contact != nil {
		b.handleContact(ctx, msg)
		return
	}

	text := strings.TrimSpace(msg.Text)
	if strings.HasPrefix(text, "/start") {
		b.handleStart(ctx, msg, text)
		return
	}

	if msg.Chat.ID == b.OperatorChatID {
		b.handleOperatorText(ctx, msg, text)
		return
	}
	b.handleClientText(ctx, msg, text)
}

func (b *Bot) handleCallback(ctx context.Context, cb *telegram.CallbackQuery) {
	action, orderID, ok := parseCallback(cb.Data)
	if !ok {
		b.answer(ctx, cb.ID, "")
		return
	}

	fromOperatorChat := cb.Message != nil && cb.Message.Chat.ID == b.OperatorChatID

	switch action {
	case actionConfirmOrder, actionCancelOrder:
		b.handleClientCallback(ctx, cb, action, orderID)
	case actionTakeOrder, actionRejectOrder, actionSendPayment, actionSetDelivery,
		actionConfirmPayment, actionSendTracking, actionCompleteOrder, actionReplyClient:
		if !fromOperatorChat {
			b.answer(ctx, cb.ID, "Недоступно в этом чате")
			return
		}
		b.handleOperatorCallback(ctx, cb, action, orderID)
	default:
		b.answer(ctx, cb.ID, "")
	}
}

// answer acknowledges a callback so the client stops the spinner; failures
// are logged only.
func (b *Bot) answer(ctx context.Context, callbackID, text string) {
	if err := b.TG.AnswerCallbackQuery(ctx, callbackID, text); err != nil {
		log.Warn().Err(err).Msg("answer callback failed")
	}
}

// send delivers a message, logging failures.
func (b *Bot) send(ctx context.Context, chatID int64, text string, markup any) {
	if _, err := b.TG.SendMessage(ctx, chatID, text, markup); err != nil {
		log.Warn().Err(err).Int64("chat_id", chatID).Msg("send failed")
	}
}
