// Client-side conversation: the /start deep link, order confirmation, phone
// verification via the contact button, and free-form chat relayed to the
// operator group.
package bot

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/changcafe/go-order-bridge/internal/services"
	"github.com/changcafe/go-order-bridge/internal/session"
	"github.com/changcafe/go-order-bridge/internal/telegram"
)

// startOrderPrefix is the deep-link payload carrying an external order id,
// as in https://t.me/<bot>?start=order_2067628905.
const startOrderPrefix = "order_"

func (b *Bot) handleStart(ctx context.Context, msg *telegram.Message, text string) {
	if _, err := b.Lifecycle.RegisterUser(ctx, msg.From.ID, msg.From.Username, msg.From.FirstName, msg.From.LastName); err != nil {
		log.Error().Err(err).Int64("user_id", msg.From.ID).Msg("register user failed")
	}

	_, payload, _ := strings.Cut(text, " ")
	payload = strings.TrimSpace(payload)
	if !strings.HasPrefix(payload, startOrderPrefix) {
		b.send(ctx, msg.Chat.ID, "Здравствуйте! Я помогу оформить ваш заказ. Откройте ссылку из письма с подтверждением, чтобы начать.", nil)
		return
	}

	externalID := strings.TrimPrefix(payload, startOrderPrefix)
	o, err := b.Lifecycle.GetByExternalID(ctx, externalID)
	if err != nil {
		if errors.Is(err, services.ErrOrderNotFound) {
			b.send(ctx, msg.Chat.ID, "Заказ "+externalID+" не найден. Проверьте ссылку или напишите нам.", nil)
			return
		}
		log.Error().Err(err).Str("external_id", externalID).Msg("start lookup failed")
		return
	}

	b.send(ctx, msg.Chat.ID, "Проверьте ваш заказ:\n\n"+services.OrderCard(o, false), clientConfirmKeyboard(o.ID))
}

func (b *Bot) handleClientCallback(ctx context.Context, cb *telegram.CallbackQuery, action string, orderID uint) {
	switch action {
	case actionConfirmOrder:
		o, err := b.Lifecycle.ConfirmDetails(ctx, orderID)
		if err != nil {
			b.answer(ctx, cb.ID, "Заказ уже обработан")
			return
		}
		b.answer(ctx, cb.ID, "")
		if err := b.Sessions.Set(ctx, cb.From.ID, session.State{Name: stateAwaitPhone, OrderID: o.ID}); err != nil {
			log.Warn().Err(err).Msg("session set failed")
		}
		b.send(ctx, cb.From.ID, "Подтвердите номер телефона, указанный в заказе.", contactKeyboard())

	case actionCancelOrder:
		if _, err := b.Lifecycle.Cancel(ctx, orderID); err != nil {
			b.answer(ctx, cb.ID, "Заказ уже обработан")
			return
		}
		b.answer(ctx, cb.ID, "Заказ отменён")
	}
}

func (b *Bot) handleContact(ctx context.Context, msg *telegram.Message) {
	st, err := b.Sessions.Get(ctx, msg.From.ID)
	if err != nil || st.Name != stateAwaitPhone {
		b.send(ctx, msg.Chat.ID, "Сейчас номер не нужен. Откройте заказ по ссылке, чтобы начать.", telegram.ReplyKeyboardRemove{RemoveKeyboard: true})
		return
	}

	// Only the user's own contact counts.
	if msg.Contact.UserID != 0 && msg.Contact.UserID != msg.From.ID {
		b.send(ctx, msg.Chat.ID, "Пожалуйста, поделитесь своим номером через кнопку.", contactKeyboard())
		return
	}

	_, err = b.Lifecycle.ConfirmPhone(ctx, st.OrderID, msg.From.ID, msg.Contact.PhoneNumber)
	if err != nil {
		if errors.Is(err, services.ErrPhoneMismatch) {
			b.send(ctx, msg.Chat.ID, "Номер не совпадает с указанным в заказе. Попробуйте ещё раз или напишите нам.", contactKeyboard())
			return
		}
		log.Error().Err(err).Uint("order_id", st.OrderID).Msg("confirm phone failed")
		return
	}

	if err := b.Sessions.Clear(ctx, msg.From.ID); err != nil {
		log.Warn().Err(err).Msg("session clear failed")
	}
	b.send(ctx, msg.Chat.ID, "Спасибо! Заказ передан оператору — скоро пришлём ссылку на оплату.", telegram.ReplyKeyboardRemove{RemoveKeyboard: true})
}

// handleClientText relays free-form messages to the operator group, tied to
// the client's most recent active order.
func (b *Bot) handleClientText(ctx context.Context, msg *telegram.Message, text string) {
	if text == "" {
		return
	}

	orders, err := b.Lifecycle.ListUserOrders(ctx, msg.From.ID)
	if err != nil {
		log.Error().Err(err).Int64("user_id", msg.From.ID).Msg("list user orders failed")
		return
	}
	for _, o := range orders {
		if o.Status.Terminal() {
			continue
		}
		if err := b.Relay.ToOperator(ctx, o.ID, msg.From.ID, text); err != nil {
			log.Error().Err(err).Uint("order_id", o.ID).Msg("relay to operator failed")
			return
		}
		b.send(ctx, msg.Chat.ID, "Передали ваше сообщение оператору.", nil)
		return
	}
	b.send(ctx, msg.Chat.ID, "У вас нет активных заказов. Откройте заказ по ссылке из письма, чтобы начать.", nil)
}
