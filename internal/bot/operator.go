// Operator-side conversation: working orders from the group chat via inline
// buttons, link submission through short dialogs, and the /orders review
// command.
package bot

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/changcafe/go-order-bridge/internal/domain"
	"github.com/changcafe/go-order-bridge/internal/services"
	"github.com/changcafe/go-order-bridge/internal/session"
	"github.com/changcafe/go-order-bridge/internal/telegram"
)

func (b *Bot) handleOperatorCallback(ctx context.Context, cb *telegram.CallbackQuery, action string, orderID uint) {
	switch action {
	case actionTakeOrder:
		o, err := b.Lifecycle.Take(ctx, orderID, cb.From.ID)
		if err != nil {
			b.answer(ctx, cb.ID, "Заказ не найден")
			return
		}
		b.answer(ctx, cb.ID, "Заказ за вами")
		b.sendOrderCard(ctx, o)

	case actionRejectOrder:
		o, err := b.Lifecycle.Cancel(ctx, orderID)
		if err != nil {
			b.answerLifecycleErr(ctx, cb.ID, err)
			return
		}
		b.answer(ctx, cb.ID, "Заказ отклонён")
		b.sendOrderCard(ctx, o)

	case actionSendPayment:
		if err := b.Sessions.Set(ctx, cb.From.ID, session.State{Name: stateAwaitPaymentLink, OrderID: orderID}); err != nil {
			log.Warn().Err(err).Msg("session set failed")
		}
		b.answer(ctx, cb.ID, "")
		b.send(ctx, b.OperatorChatID, "Отправьте ссылку на оплату одним сообщением.", nil)

	case actionConfirmPayment:
		o, err := b.Lifecycle.ConfirmPayment(ctx, orderID)
		if err != nil {
			b.answerLifecycleErr(ctx, cb.ID, err)
			return
		}
		b.answer(ctx, cb.ID, "Оплата отмечена")
		b.sendOrderCard(ctx, o)

	case actionSendTracking:
		if err := b.Sessions.Set(ctx, cb.From.ID, session.State{Name: stateAwaitTrackingLink, OrderID: orderID}); err != nil {
			log.Warn().Err(err).Msg("session set failed")
		}
		b.answer(ctx, cb.ID, "")
		b.send(ctx, b.OperatorChatID, "Отправьте трек-ссылку одним сообщением.", nil)

	case actionSetDelivery:
		if err := b.Sessions.Set(ctx, cb.From.ID, session.State{Name: stateAwaitDeliveryCost, OrderID: orderID}); err != nil {
			log.Warn().Err(err).Msg("session set failed")
		}
		b.answer(ctx, cb.ID, "")
		b.send(ctx, b.OperatorChatID, "Отправьте стоимость доставки числом, например 300.", nil)

	case actionReplyClient:
		if err := b.Sessions.Set(ctx, cb.From.ID, session.State{Name: stateAwaitClientReply, OrderID: orderID}); err != nil {
			log.Warn().Err(err).Msg("session set failed")
		}
		b.answer(ctx, cb.ID, "")
		b.send(ctx, b.OperatorChatID, "Отправьте сообщение для клиента одним сообщением.", nil)

	case actionCompleteOrder:
		o, err := b.Lifecycle.Complete(ctx, orderID)
		if err != nil {
			b.answerLifecycleErr(ctx, cb.ID, err)
			return
		}
		b.answer(ctx, cb.ID, "Заказ завершён")
		b.sendOrderCard(ctx, o)
	}
}

func (b *Bot) handleOperatorText(ctx context.Context, msg *telegram.Message, text string) {
	if strings.HasPrefix(text, "/orders") || strings.HasPrefix(text, "/new") {
		b.listNewOrders(ctx)
		return
	}
	if arg, ok := strings.CutPrefix(text, "/history"); ok {
		b.sendHistory(ctx, strings.TrimSpace(arg))
		return
	}

	st, err := b.Sessions.Get(ctx, msg.From.ID)
	if err != nil {
		return
	}

	switch st.Name {
	case stateAwaitPaymentLink:
		o, err := b.Lifecycle.SetPaymentLink(ctx, st.OrderID, text)
		if err != nil {
			b.reportLinkErr(ctx, err)
			return
		}
		b.clearSession(ctx, msg.From.ID)
		b.send(ctx, b.OperatorChatID, "Ссылка на оплату отправлена клиенту.", nil)
		b.sendOrderCard(ctx, o)

	case stateAwaitTrackingLink:
		o, err := b.Lifecycle.SetTracking(ctx, st.OrderID, text)
		if err != nil {
			b.reportLinkErr(ctx, err)
			return
		}
		b.clearSession(ctx, msg.From.ID)
		b.send(ctx, b.OperatorChatID, "Трек-ссылка отправлена клиенту.", nil)
		b.sendOrderCard(ctx, o)

	case stateAwaitDeliveryCost:
		cost, err := decimal.NewFromString(strings.ReplaceAll(text, ",", "."))
		if err != nil || cost.IsNegative() {
			b.send(ctx, b.OperatorChatID, "Не получилось разобрать сумму. Отправьте число, например 300.", nil)
			return
		}
		o, err := b.Lifecycle.SetDelivery(ctx, st.OrderID, cost)
		if err != nil {
			if errors.Is(err, services.ErrOrderNotFound) {
				b.send(ctx, b.OperatorChatID, "Заказ не найден.", nil)
				return
			}
			log.Error().Err(err).Uint("order_id", st.OrderID).Msg("set delivery failed")
			b.send(ctx, b.OperatorChatID, "Не получилось сохранить стоимость, попробуйте ещё раз.", nil)
			return
		}
		b.clearSession(ctx, msg.From.ID)
		b.send(ctx, b.OperatorChatID, "Стоимость доставки сохранена.", nil)
		b.sendOrderCard(ctx, o)

	case stateAwaitClientReply:
		if err := b.Relay.ToClient(ctx, st.OrderID, msg.From.ID, text); err != nil {
			if errors.Is(err, services.ErrOrderNotFound) {
				b.send(ctx, b.OperatorChatID, "Заказ не найден.", nil)
				return
			}
			log.Error().Err(err).Uint("order_id", st.OrderID).Msg("relay to client failed")
			b.send(ctx, b.OperatorChatID, "Не получилось отправить сообщение, попробуйте ещё раз.", nil)
			return
		}
		b.clearSession(ctx, msg.From.ID)
		b.send(ctx, b.OperatorChatID, "Сообщение отправлено клиенту.", nil)
	}
}

// sendHistory posts the stored relay log for an order, looked up by the
// external id the operator sees on the card.
func (b *Bot) sendHistory(ctx context.Context, externalID string) {
	if externalID == "" {
		b.send(ctx, b.OperatorChatID, "Использование: /history <номер заказа>", nil)
		return
	}
	o, err := b.Lifecycle.GetByExternalID(ctx, externalID)
	if err != nil {
		b.send(ctx, b.OperatorChatID, "Заказ "+externalID+" не найден.", nil)
		return
	}
	msgs, err := b.Relay.History(ctx, o.ID)
	if err != nil {
		log.Error().Err(err).Uint("order_id", o.ID).Msg("load history failed")
		return
	}
	if len(msgs) == 0 {
		b.send(ctx, b.OperatorChatID, "По заказу "+externalID+" сообщений нет.", nil)
		return
	}

	var sb strings.Builder
	sb.WriteString("💬 Переписка по заказу ")
	sb.WriteString(externalID)
	sb.WriteByte('\n')
	for _, m := range msgs {
		if m.Direction == domain.DirectionToOperator {
			sb.WriteString("\n⬅️ Клиент: ")
		} else {
			sb.WriteString("\n➡️ Оператор: ")
		}
		sb.WriteString(m.Text)
	}
	b.send(ctx, b.OperatorChatID, sb.String(), nil)
}

func (b *Bot) listNewOrders(ctx context.Context) {
	orders, err := b.Lifecycle.ListNew(ctx, 10)
	if err != nil {
		log.Error().Err(err).Msg("list new orders failed")
		return
	}
	if len(orders) == 0 {
		b.send(ctx, b.OperatorChatID, "Новых заказов нет.", nil)
		return
	}
	for i := range orders {
		b.sendOrderCard(ctx, &orders[i])
	}
}

// sendOrderCard posts the operator card with the status-appropriate buttons.
func (b *Bot) sendOrderCard(ctx context.Context, o *domain.Order) {
	b.send(ctx, b.OperatorChatID, services.OrderCard(o, true), operatorKeyboard(o.ID, string(o.Status)))
}

func (b *Bot) answerLifecycleErr(ctx context.Context, callbackID string, err error) {
	var ite *domain.InvalidTransitionError
	switch {
	case errors.As(err, &ite):
		b.answer(ctx, callbackID, "Недоступно в текущем статусе")
	case errors.Is(err, services.ErrOrderNotFound):
		b.answer(ctx, callbackID, "Заказ не найден")
	default:
		log.Error().Err(err).Msg("operator action failed")
		b.answer(ctx, callbackID, "Ошибка, попробуйте ещё раз")
	}
}

func (b *Bot) reportLinkErr(ctx context.Context, err error) {
	var ite *domain.InvalidTransitionError
	switch {
	case errors.Is(err, services.ErrEmptyLink):
		b.send(ctx, b.OperatorChatID, "Ссылка пустая, отправьте ещё раз.", nil)
	case errors.As(err, &ite):
		b.send(ctx, b.OperatorChatID, "Действие недоступно в текущем статусе заказа.", nil)
	default:
		log.Error().Err(err).Msg("link submission failed")
		b.send(ctx, b.OperatorChatID, "Не получилось сохранить ссылку, попробуйте ещё раз.", nil)
	}
}

func (b *Bot) clearSession(ctx context.Context, userID int64) {
	if err := b.Sessions.Clear(ctx, userID); err != nil {
		log.Warn().Err(err).Msg("session clear failed")
	}
}
