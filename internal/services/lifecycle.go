// Package services – order lifecycle
//
// This file implements the operator- and client-driven order lifecycle on
// top of the guarded repository transitions. Every method re-validates the
// transition inside the repository transaction, so a stale button press
// surfaces as a domain.InvalidTransitionError instead of silently rewinding
// an order. Client notifications ride along on the operator actions that
// change what the client should do next.
package services

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/changcafe/go-order-bridge/internal/domain"
	"github.com/changcafe/go-order-bridge/internal/phone"
	"github.com/changcafe/go-order-bridge/internal/repo"
)

// LifecycleService drives an order through its statuses.
type LifecycleService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Notify delivers side-channel Telegram messages; may be nil in tests.
	Notify *NotifyService
}

// NewLifecycleService constructs a LifecycleService.
func NewLifecycleService(db *gorm.DB, notify *NotifyService) *LifecycleService {
	return &LifecycleService{DB: db, Notify: notify}
}

// Get fetches an order by internal id.
func (s *LifecycleService) Get(ctx context.Context, orderID uint) (*domain.Order, error) {
	o, err := repo.GetOrder(ctx, s.DB, orderID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrOrderNotFound
	}
	return o, err
}

// GetByExternalID fetches an order by the upstream site's id.
func (s *LifecycleService) GetByExternalID(ctx context.Context, externalID string) (*domain.Order, error) {
	o, err := repo.GetOrderByExternalID(ctx, s.DB, externalID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrOrderNotFound
	}
	return o, err
}

// ListNew returns recent orders no operator has started working yet.
func (s *LifecycleService) ListNew(ctx context.Context, limit int) ([]domain.Order, error) {
	return repo.ListNewOrders(ctx, s.DB, limit)
}

// ListUserOrders returns every order linked to the given Telegram user,
// newest first.
func (s *LifecycleService) ListUserOrders(ctx context.Context, userID int64) ([]domain.Order, error) {
	return repo.ListUserOrders(ctx, s.DB, userID)
}

// RegisterUser upserts the Telegram account that contacted the bot.
func (s *LifecycleService) RegisterUser(ctx context.Context, id int64, username, firstName, lastName string) (*domain.User, error) {
	return repo.GetOrCreateUser(ctx, s.DB, id, username, firstName, lastName)
}

// ConfirmDetails records that the client reviewed the order card and
// confirmed its contents.
func (s *LifecycleService) ConfirmDetails(ctx context.Context, orderID uint) (*domain.Order, error) {
	return s.apply(ctx, orderID, domain.EventDetailsSubmitted)
}

// ConfirmPhone verifies the shared contact against the phone the order was
// placed with and, on a match, links the Telegram user to the order. A
// mismatch returns ErrPhoneMismatch and leaves the order untouched.
func (s *LifecycleService) ConfirmPhone(ctx context.Context, orderID uint, userID int64, rawPhone string) (*domain.Order, error) {
	o, err := s.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !phone.Match(o.CustomerPhone, rawPhone) {
		return nil, ErrPhoneMismatch
	}

	// The webhook may have created a placeholder user row holding this
	// phone; claiming merges that row into the real Telegram user.
	normalized := phone.Normalize(rawPhone)
	if _, err := repo.ClaimUserPhone(ctx, s.DB, userID, normalized); err != nil && !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}

	o, err = repo.LinkUser(ctx, s.DB, orderID, userID, normalized)
	if err != nil {
		return nil, err
	}
	statusTransitions.WithLabelValues(string(o.Status)).Inc()
	if s.Notify != nil {
		s.Notify.Operator(ctx, o, "☎️ Клиент подтвердил телефон по заказу "+o.ExternalOrderID+"\n\n"+OrderCard(o, true))
	}
	return o, nil
}

// Take assigns the order to an operator. Assignment does not move the
// lifecycle; it only marks who is responsible.
func (s *LifecycleService) Take(ctx context.Context, orderID uint, operatorID int64) (*domain.Order, error) {
	o, err := repo.AssignToOperator(ctx, s.DB, orderID, operatorID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrOrderNotFound
	}
	return o, err
}

// SetPaymentLink stores the payment link, advances the order to awaiting
// payment, and forwards the link to the client.
func (s *LifecycleService) SetPaymentLink(ctx context.Context, orderID uint, link string) (*domain.Order, error) {
	link = strings.TrimSpace(link)
	if link == "" {
		return nil, ErrEmptyLink
	}
	o, err := repo.SetPaymentLink(ctx, s.DB, orderID, link)
	if err != nil {
		return nil, err
	}
	statusTransitions.WithLabelValues(string(o.Status)).Inc()
	if s.Notify != nil {
		s.Notify.Client(ctx, o, "💳 Ссылка на оплату заказа "+o.ExternalOrderID+":\n"+link)
	}
	return o, nil
}

// SetDelivery records the delivery cost and recomputes the order total.
func (s *LifecycleService) SetDelivery(ctx context.Context, orderID uint, cost decimal.Decimal) (*domain.Order, error) {
	o, err := repo.SetDelivery(ctx, s.DB, orderID, cost)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrOrderNotFound
	}
	return o, err
}

// ConfirmPayment marks the order as paid and tells the client.
func (s *LifecycleService) ConfirmPayment(ctx context.Context, orderID uint) (*domain.Order, error) {
	o, err := s.apply(ctx, orderID, domain.EventPaymentConfirmed)
	if err != nil {
		return nil, err
	}
	if s.Notify != nil {
		s.Notify.Client(ctx, o, "✅ Оплата по заказу "+o.ExternalOrderID+" получена. Собираем заказ!")
	}
	return o, nil
}

// SetTracking stores the tracking link, moves the order into delivery, and
// forwards the link to the client.
func (s *LifecycleService) SetTracking(ctx context.Context, orderID uint, link string) (*domain.Order, error) {
	link = strings.TrimSpace(link)
	if link == "" {
		return nil, ErrEmptyLink
	}
	o, err := repo.SetTrackingLink(ctx, s.DB, orderID, link)
	if err != nil {
		return nil, err
	}
	statusTransitions.WithLabelValues(string(o.Status)).Inc()
	if s.Notify != nil {
		s.Notify.Client(ctx, o, "🚚 Заказ "+o.ExternalOrderID+" передан в доставку.\nОтследить: "+link)
	}
	return o, nil
}

// Complete closes the order as delivered and thanks the client.
func (s *LifecycleService) Complete(ctx context.Context, orderID uint) (*domain.Order, error) {
	o, err := s.apply(ctx, orderID, domain.EventDelivered)
	if err != nil {
		return nil, err
	}
	if s.Notify != nil {
		s.Notify.Client(ctx, o, "🎉 Заказ "+o.ExternalOrderID+" доставлен. Спасибо за покупку!")
	}
	return o, nil
}

// Cancel closes the order as cancelled from any non-terminal status and
// informs the client.
func (s *LifecycleService) Cancel(ctx context.Context, orderID uint) (*domain.Order, error) {
	o, err := s.apply(ctx, orderID, domain.EventCancelled)
	if err != nil {
		return nil, err
	}
	if s.Notify != nil {
		s.Notify.Client(ctx, o, "❌ Заказ "+o.ExternalOrderID+" отменён.")
	}
	return o, nil
}

func (s *LifecycleService) apply(ctx context.Context, orderID uint, ev domain.Event) (*domain.Order, error) {
	o, err := repo.ApplyEvent(ctx, s.DB, orderID, ev)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	statusTransitions.WithLabelValues(string(o.Status)).Inc()
	return o, nil
}
