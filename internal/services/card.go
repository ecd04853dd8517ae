// Package services – order card rendering
//
// This file renders the textual "order card" shown in Telegram chats. The
// client and the operator see the same card, except the operator variant also
// carries the current status line and the confirmed phone when one exists.
package services

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/changcafe/go-order-bridge/internal/domain"
)

// statusLabels maps lifecycle statuses to the labels shown to operators.
var statusLabels = map[domain.Status]string{
	domain.StatusNew:                  "Новый",
	domain.StatusAwaitingConfirmation: "Ожидает подтверждения",
	domain.StatusWaitingOperator:      "Ждёт оператора",
	domain.StatusAwaitingPayment:      "Ожидает оплаты",
	domain.StatusPaid:                 "Оплачен",
	domain.StatusInDelivery:           "В доставке",
	domain.StatusCompleted:            "Завершён",
	domain.StatusCancelled:            "Отменён",
}

// StatusLabel returns the human-readable label for a status, falling back to
// the raw value for anything unknown.
func StatusLabel(s domain.Status) string {
	if l, ok := statusLabels[s]; ok {
		return l
	}
	return string(s)
}

// OrderCard renders the order summary sent to Telegram. When forOperator is
// true the card additionally shows the lifecycle status and, once confirmed,
// the phone the client verified with.
func OrderCard(o *domain.Order, forOperator bool) string {
	var b strings.Builder

	b.WriteString("📦 Заказ ")
	b.WriteString(o.ExternalOrderID)
	b.WriteByte('\n')
	if o.CustomerName != "" {
		b.WriteString("👤 ")
		b.WriteString(o.CustomerName)
		b.WriteByte('\n')
	}
	if o.CustomerPhone != "" {
		b.WriteString("📞 ")
		b.WriteString(o.CustomerPhone)
		b.WriteByte('\n')
	}
	if o.Address != "" {
		b.WriteString("📍 ")
		b.WriteString(o.Address)
		b.WriteByte('\n')
	}

	if len(o.Items) > 0 {
		b.WriteByte('\n')
		for _, it := range o.Items {
			b.WriteString("• ")
			b.WriteString(it.Title)
			b.WriteString(" x")
			b.WriteString(strconv.Itoa(it.Quantity))
			b.WriteString(" — ")
			b.WriteString(formatFloatMoney(it.LineTotal()))
			b.WriteString("₽\n")
		}
	}

	if o.DeliveryCost.Valid {
		b.WriteString("\n🚛 Доставка: ")
		b.WriteString(FormatMoney(o.DeliveryCost.Decimal))
		b.WriteString("₽")
	}

	b.WriteString("\n💰 Итого: ")
	b.WriteString(FormatMoney(cardTotal(o)))
	b.WriteString("₽")

	if forOperator {
		b.WriteString("\n📊 Статус: ")
		b.WriteString(StatusLabel(o.Status))
		if o.ConfirmedPhone != nil && *o.ConfirmedPhone != "" {
			b.WriteString("\n✅ Подтверждён: ")
			b.WriteString(*o.ConfirmedPhone)
		}
	}

	return b.String()
}

// cardTotal prefers the total including delivery when it has been set.
func cardTotal(o *domain.Order) decimal.Decimal {
	if o.TotalAmount.Valid {
		return o.TotalAmount.Decimal
	}
	return o.BaseAmount
}

// FormatMoney renders a decimal amount without a fractional part when it is
// whole, and with two digits otherwise.
func FormatMoney(d decimal.Decimal) string {
	if d.IsInteger() {
		return d.StringFixed(0)
	}
	return d.StringFixed(2)
}

func formatFloatMoney(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
