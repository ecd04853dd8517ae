// Package bot implements the Telegram conversation layer: it turns incoming
// updates into lifecycle calls and renders the keyboards both sides interact
// with. Callback data is "<action>:<order id>", which keeps every button
// press self-describing and survives bot restarts with no session state.
package bot

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/changcafe/go-order-bridge/internal/telegram"
)

// Callback actions. Client-side actions are pressed in private chats,
// operator actions in the operator group.
const (
	actionConfirmOrder = "confirm_order"
	actionCancelOrder  = "cancel_order"

	actionTakeOrder      = "take_order"
	actionRejectOrder    = "reject_order"
	actionSendPayment    = "send_payment"
	actionSetDelivery    = "set_delivery"
	actionConfirmPayment = "confirm_payment"
	actionSendTracking   = "send_tracking"
	actionCompleteOrder  = "complete_order"
	actionReplyClient    = "reply_client"
)

// callbackData packs an action and order id into callback_data.
func callbackData(action string, orderID uint) string {
	return fmt.Sprintf("%s:%d", action, orderID)
}

// parseCallback splits callback_data back into action and order id.
func parseCallback(data string) (action string, orderID uint, ok bool) {
	action, raw, found := strings.Cut(data, ":")
	if !found || action == "" {
		return "", 0, false
	}
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		return "", 0, false
	}
	return action, uint(id), true
}

// clientConfirmKeyboard asks the client to confirm or cancel the order card.
func clientConfirmKeyboard(orderID uint) telegram.InlineKeyboardMarkup {
	return telegram.InlineKeyboardMarkup{InlineKeyboard: [][]telegram.InlineKeyboardButton{
		{
			{Text: "✅ Всё верно", Data: callbackData(actionConfirmOrder, orderID)},
			{Text: "❌ Отменить", Data: callbackData(actionCancelOrder, orderID)},
		},
	}}
}

// contactKeyboard shows the one-tap phone sharing button.
func contactKeyboard() telegram.ReplyKeyboardMarkup {
	return telegram.ReplyKeyboardMarkup{
		Keyboard: [][]telegram.KeyboardButton{
			{{Text: "📱 Поделиться номером", RequestContact: true}},
		},
		ResizeKeyboard:  true,
		OneTimeKeyboard: true,
	}
}

// operatorKeyboard renders the actions available for an order in the
// operator group, trimmed to what its current status allows.
func operatorKeyboard(orderID uint, status string) telegram.InlineKeyboardMarkup {
	var rows [][]telegram.InlineKeyboardButton

	terminal := status == "completed" || status == "cancelled"

	switch status {
	case "new", "awaiting_confirmation", "waiting_operator":
		rows = append(rows,
			[]telegram.InlineKeyboardButton{
				{Text: "🙋 Взять в работу", Data: callbackData(actionTakeOrder, orderID)},
				{Text: "🚛 Доставка", Data: callbackData(actionSetDelivery, orderID)},
			},
			[]telegram.InlineKeyboardButton{
				{Text: "💳 Отправить оплату", Data: callbackData(actionSendPayment, orderID)},
				{Text: "❌ Отклонить", Data: callbackData(actionRejectOrder, orderID)},
			},
		)
	case "awaiting_payment":
		rows = append(rows, []telegram.InlineKeyboardButton{
			{Text: "✅ Оплата получена", Data: callbackData(actionConfirmPayment, orderID)},
			{Text: "❌ Отклонить", Data: callbackData(actionRejectOrder, orderID)},
		})
	case "paid":
		rows = append(rows, []telegram.InlineKeyboardButton{
			{Text: "🚚 Передать в доставку", Data: callbackData(actionSendTracking, orderID)},
		})
	case "in_delivery":
		rows = append(rows, []telegram.InlineKeyboardButton{
			{Text: "🎉 Доставлен", Data: callbackData(actionCompleteOrder, orderID)},
		})
	}

	if !terminal {
		rows = append(rows, []telegram.InlineKeyboardButton{
			{Text: "💬 Написать клиенту", Data: callbackData(actionReplyClient, orderID)},
		})
	}

	return telegram.InlineKeyboardMarkup{InlineKeyboard: rows}
}
