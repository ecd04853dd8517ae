// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Order
// model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations. They
// follow the "thin repository" approach with one exception: every status
// mutation goes through advance(), which re-reads the row inside its
// transaction and consults the lifecycle transition table, so an illegal
// transition is rejected even when two callers race on the same order.
//
// Error semantics:
//   - When an order is not found, functions return ErrNotFound
//     (an alias of gorm.ErrRecordNotFound).
//   - A create that loses the race on the external order id's unique index
//     surfaces an error for which IsDuplicateKey reports true.
//   - An event that is not legal for the order's current status returns
//     *domain.InvalidTransitionError.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/changcafe/go-order-bridge/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// IsDuplicateKey reports whether err is a unique-constraint violation.
// The pure-Go SQLite driver does not always go through GORM's error
// translation, so the message is checked as a fallback.
func IsDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "constraint failed: UNIQUE")
}

// CreateFromWebhook inserts a new order at status "new" with the raw fields
// the site submitted. The external order id's unique index is the final
// arbiter against duplicate webhooks: a second insert for the same id fails
// with a duplicate-key error (see IsDuplicateKey) and leaves the first row
// untouched. The order row and its JSON items column are written as one row,
// so creation is atomic.
func CreateFromWebhook(ctx context.Context, db *gorm.DB, externalID, name, phone, address string, items []domain.OrderItem, baseAmount decimal.Decimal, userID *int64) (*domain.Order, error) {
	o := &domain.Order{
		ExternalOrderID: externalID,
		UserID:          userID,
		CustomerName:    name,
		CustomerPhone:   phone,
		Address:         address,
		Items:           datatypes.NewJSONSlice(items),
		BaseAmount:      baseAmount,
		Status:          domain.StatusNew,
		CreatedAt:       time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(o).Error; err != nil {
		return nil, err
	}
	return o, nil
}

// GetOrderByExternalID fetches an order by the id the upstream site assigned.
// Returns ErrNotFound when no such order exists.
func GetOrderByExternalID(ctx context.Context, db *gorm.DB, externalID string) (*domain.Order, error) {
	var o domain.Order
	err := db.WithContext(ctx).
		Where("external_order_id = ?", externalID).
		First(&o).Error
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// GetOrder fetches an order by internal id, or ErrNotFound.
func GetOrder(ctx context.Context, db *gorm.DB, id uint) (*domain.Order, error) {
	var o domain.Order
	if err := db.WithContext(ctx).First(&o, id).Error; err != nil {
		return nil, err
	}
	return &o, nil
}

// ListNewOrders returns up to limit orders still at status "new", newest
// first. Used by the operator's review screen.
func ListNewOrders(ctx context.Context, db *gorm.DB, limit int) ([]domain.Order, error) {
	if limit <= 0 {
		limit = 10
	}
	var out []domain.Order
	err := db.WithContext(ctx).
		Where("status = ?", domain.StatusNew).
		Order("created_at desc").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// ListUserOrders returns all orders claimed by the given chat user, newest
// first.
func ListUserOrders(ctx context.Context, db *gorm.DB, userID int64) ([]domain.Order, error) {
	var out []domain.Order
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc").
		Find(&out).Error
	return out, err
}

// advance applies a lifecycle event to an order inside one transaction:
// re-read the row, consult the transition table, then write the new status
// together with any extra column values. The returned order reflects the
// persisted state.
func advance(ctx context.Context, db *gorm.DB, orderID uint, ev domain.Event, extra map[string]any) (*domain.Order, error) {
	var out domain.Order
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var o domain.Order
		if err := tx.First(&o, orderID).Error; err != nil {
			return err
		}
		next, err := domain.Next(o.Status, ev)
		if err != nil {
			return err
		}
		vals := map[string]any{"status": next}
		for k, v := range extra {
			vals[k] = v
		}
		if err := tx.Model(&domain.Order{}).Where("id = ?", orderID).Updates(vals).Error; err != nil {
			return err
		}
		return tx.First(&out, orderID).Error
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ApplyEvent moves an order through the lifecycle for events that carry no
// payload (details submitted, payment confirmed, delivered, cancelled).
// Payment confirmation and completion also stamp their timestamps.
func ApplyEvent(ctx context.Context, db *gorm.DB, orderID uint, ev domain.Event) (*domain.Order, error) {
	extra := map[string]any{}
	now := time.Now().UTC()
	switch ev {
	case domain.EventPaymentConfirmed:
		extra["paid_at"] = &now
	case domain.EventDelivered:
		extra["completed_at"] = &now
	}
	return advance(ctx, db, orderID, ev, extra)
}

// LinkUser attaches a chat user and their confirmed phone to an order, and
// advances it to waiting_operator. Fails with ErrNotFound when the order
// does not exist and with *domain.InvalidTransitionError when the order is
// not awaiting confirmation.
func LinkUser(ctx context.Context, db *gorm.DB, orderID uint, userID int64, confirmedPhone string) (*domain.Order, error) {
	now := time.Now().UTC()
	return advance(ctx, db, orderID, domain.EventPhoneConfirmed, map[string]any{
		"user_id":         userID,
		"confirmed_phone": confirmedPhone,
		"confirmed_at":    &now,
	})
}

// SetPaymentLink stores the operator's payment link and advances the order
// to awaiting_payment.
func SetPaymentLink(ctx context.Context, db *gorm.DB, orderID uint, link string) (*domain.Order, error) {
	return advance(ctx, db, orderID, domain.EventPaymentLinkSet, map[string]any{
		"payment_link": link,
	})
}

// SetTrackingLink stores the delivery tracking link and advances the order
// to in_delivery.
func SetTrackingLink(ctx context.Context, db *gorm.DB, orderID uint, link string) (*domain.Order, error) {
	return advance(ctx, db, orderID, domain.EventTrackingSet, map[string]any{
		"tracking_link": link,
	})
}

// AssignToOperator records which operator took the order. Assignment does
// not move the lifecycle; the order keeps its current status.
func AssignToOperator(ctx context.Context, db *gorm.DB, orderID uint, operatorID int64) (*domain.Order, error) {
	now := time.Now().UTC()
	res := db.WithContext(ctx).
		Model(&domain.Order{}).
		Where("id = ?", orderID).
		Updates(map[string]any{
			"assigned_to": operatorID,
			"assigned_at": &now,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return GetOrder(ctx, db, orderID)
}

// SetDelivery records the delivery cost and the resulting total
// (base amount + delivery). No status change; the operator quotes delivery
// while the order waits for them.
func SetDelivery(ctx context.Context, db *gorm.DB, orderID uint, cost decimal.Decimal) (*domain.Order, error) {
	o, err := GetOrder(ctx, db, orderID)
	if err != nil {
		return nil, err
	}
	total := o.BaseAmount.Add(cost)
	err = db.WithContext(ctx).
		Model(&domain.Order{}).
		Where("id = ?", orderID).
		Updates(map[string]any{
			"delivery_cost": decimal.NewNullDecimal(cost),
			"total_amount":  decimal.NewNullDecimal(total),
		}).Error
	if err != nil {
		return nil, err
	}
	return GetOrder(ctx, db, orderID)
}
