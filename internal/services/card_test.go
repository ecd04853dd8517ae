package services

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"github.com/changcafe/go-order-bridge/internal/domain"
)

func TestOrderCard_ClientVariant(t *testing.T) {
	o := &domain.Order{
		ExternalOrderID: "2067628905",
		CustomerName:    "Иван",
		CustomerPhone:   "+79991234567",
		Address:         "ул. Ленина, д. 10, кв. 5",
		Items: datatypes.NewJSONSlice([]domain.OrderItem{
			{Title: "Pizza", Price: 690, Quantity: 1},
			{Title: "Кола", Price: 150, Quantity: 2},
		}),
		BaseAmount: decimal.NewFromInt(990),
		Status:     domain.StatusNew,
	}

	card := OrderCard(o, false)

	for _, want := range []string{
		"📦 Заказ 2067628905",
		"👤 Иван",
		"📞 +79991234567",
		"📍 ул. Ленина, д. 10, кв. 5",
		"• Pizza x1 — 690₽",
		"• Кола x2 — 300₽",
		"💰 Итого: 990₽",
	} {
		if !strings.Contains(card, want) {
			t.Errorf("card missing %q:\n%s", want, card)
		}
	}
	if strings.Contains(card, "📊 Статус") {
		t.Error("client card must not show the status line")
	}
}

func TestOrderCard_OperatorVariant(t *testing.T) {
	phone := "+79991234567"
	o := &domain.Order{
		ExternalOrderID: "42",
		CustomerName:    "Иван",
		Status:          domain.StatusAwaitingPayment,
		ConfirmedPhone:  &phone,
		BaseAmount:      decimal.NewFromInt(500),
	}

	card := OrderCard(o, true)

	if !strings.Contains(card, "📊 Статус: Ожидает оплаты") {
		t.Errorf("missing status line:\n%s", card)
	}
	if !strings.Contains(card, "✅ Подтверждён: +79991234567") {
		t.Errorf("missing confirmed phone:\n%s", card)
	}
}

func TestOrderCard_TotalPrefersDelivery(t *testing.T) {
	o := &domain.Order{
		ExternalOrderID: "7",
		BaseAmount:      decimal.NewFromInt(990),
		DeliveryCost:    decimal.NullDecimal{Decimal: decimal.NewFromInt(300), Valid: true},
		TotalAmount:     decimal.NullDecimal{Decimal: decimal.NewFromInt(1290), Valid: true},
	}
	card := OrderCard(o, false)
	if !strings.Contains(card, "🚛 Доставка: 300₽") {
		t.Errorf("missing delivery line:\n%s", card)
	}
	if !strings.Contains(card, "💰 Итого: 1290₽") {
		t.Errorf("expected delivery-inclusive total:\n%s", card)
	}
}

func TestOrderCard_NoDeliveryLineWithoutCost(t *testing.T) {
	o := &domain.Order{
		ExternalOrderID: "8",
		BaseAmount:      decimal.NewFromInt(990),
	}
	if card := OrderCard(o, false); strings.Contains(card, "Доставка") {
		t.Errorf("unexpected delivery line:\n%s", card)
	}
}

func TestFormatMoney(t *testing.T) {
	cases := []struct {
		in   decimal.Decimal
		want string
	}{
		{decimal.NewFromInt(690), "690"},
		{decimal.RequireFromString("690.00"), "690"},
		{decimal.RequireFromString("690.50"), "690.50"},
		{decimal.RequireFromString("0.99"), "0.99"},
		{decimal.Zero, "0"},
	}
	for _, tc := range cases {
		if got := FormatMoney(tc.in); got != tc.want {
			t.Errorf("FormatMoney(%s) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestStatusLabel_UnknownFallsThrough(t *testing.T) {
	if got := StatusLabel(domain.Status("weird")); got != "weird" {
		t.Errorf("got %q", got)
	}
}
