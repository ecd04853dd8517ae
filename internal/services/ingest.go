// Package services – webhook intake
//
// This file implements the order intake pipeline for Tilda webhook payloads.
// Payloads arrive as a flat key/value map (form fields, or JSON flattened by
// the handler layer); IngestService validates them, persists the order, and
// announces it to the operator chat without blocking the HTTP response.
//
// Intake is idempotent on the external order id: a redelivered webhook
// resolves to the already-stored order instead of an error, so Tilda's
// retries stay harmless.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/changcafe/go-order-bridge/internal/domain"
	"github.com/changcafe/go-order-bridge/internal/phone"
	"github.com/changcafe/go-order-bridge/internal/repo"
	"github.com/changcafe/go-order-bridge/internal/utils"
)

// maxItems caps how many payment line items a single payload may carry.
const maxItems = 100

// IngestResult is the outcome of processing one webhook delivery.
type IngestResult struct {
	// Order is the stored order, freshly created or previously known.
	Order *domain.Order
	// Duplicate is true when the delivery matched an existing order.
	Duplicate bool
	// DeepLink opens the bot chat pre-seeded with this order.
	DeepLink string
}

// IngestService turns webhook payloads into persisted orders.
type IngestService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// BotUsername is used to build t.me deep links (no leading @).
	BotUsername string
	// Notify announces new orders to the operator chat; may be nil in tests.
	Notify *NotifyService
}

// NewIngestService constructs an IngestService.
func NewIngestService(db *gorm.DB, botUsername string, notify *NotifyService) *IngestService {
	return &IngestService{DB: db, BotUsername: botUsername, Notify: notify}
}

// Ingest processes one flattened webhook payload. It returns
// ErrMissingOrderID when no order identifier is present; a redelivery of a
// known order is reported as a duplicate, not an error.
func (s *IngestService) Ingest(ctx context.Context, fields map[string]string) (*IngestResult, error) {
	externalID := pick(fields, "orderid", "orderId", "payment[orderid]", "formid", "formId")
	if externalID == "" {
		return nil, ErrMissingOrderID
	}
	deepLink := s.DeepLink(externalID)

	// Fast path for redeliveries.
	if existing, err := repo.GetOrderByExternalID(ctx, s.DB, externalID); err == nil {
		ordersDuplicate.Inc()
		return &IngestResult{Order: existing, Duplicate: true, DeepLink: deepLink}, nil
	} else if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}

	name := pick(fields, "name", "Name", "customerName")
	rawPhone := pick(fields, "phone", "Phone", "customerPhone")
	email := pick(fields, "email", "Email")
	address := buildAddress(fields)
	items := parseItems(fields)
	amount := parseAmount(fields, items)

	var userID *int64
	if normalized := phone.Normalize(rawPhone); normalized != "+" {
		u, err := repo.GetOrCreateUserByPhone(ctx, s.DB, normalized, name, email)
		if err != nil {
			return nil, err
		}
		userID = &u.ID
	}

	o, err := repo.CreateFromWebhook(ctx, s.DB, externalID, name, rawPhone, address, items, amount, userID)
	if err != nil {
		// A concurrent delivery of the same order won the insert race; the
		// unique index is the arbiter, the stored row is the answer.
		if repo.IsDuplicateKey(err) {
			existing, rerr := repo.GetOrderByExternalID(ctx, s.DB, externalID)
			if rerr != nil {
				return nil, rerr
			}
			ordersDuplicate.Inc()
			return &IngestResult{Order: existing, Duplicate: true, DeepLink: deepLink}, nil
		}
		return nil, err
	}
	ordersIngested.Inc()

	if s.Notify != nil {
		// Best-effort, off the request path.
		go func() {
			nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer cancel()
			s.Notify.NewOrder(nctx, o, deepLink)
		}()
	}

	return &IngestResult{Order: o, DeepLink: deepLink}, nil
}

// DeepLink builds the t.me start link that opens the bot on a given order.
func (s *IngestService) DeepLink(externalID string) string {
	if s.BotUsername == "" {
		return ""
	}
	return "https://t.me/" + s.BotUsername + "?start=order_" + externalID
}

// pick returns the first non-blank value among the given keys.
func pick(fields map[string]string, keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(fields[k]); v != "" {
			return v
		}
	}
	return ""
}

// buildAddress joins the street/house/apartment fields Tilda splits the
// address into, e.g. "ул. Ленина, д. 10, кв. 5".
func buildAddress(fields map[string]string) string {
	var parts []string
	if v := pick(fields, "street", "address"); v != "" {
		parts = append(parts, v)
	}
	if v := pick(fields, "home", "house"); v != "" {
		parts = append(parts, "д. "+v)
	}
	if v := pick(fields, "apartment", "flat"); v != "" {
		parts = append(parts, "кв. "+v)
	}
	return strings.Join(parts, ", ")
}

// itemPrefixes are the array spellings line items arrive under: classic form
// payloads index them as payment[i][...], JSON payloads flatten to
// payment[products][i][...], and some form builders send orderItems[i][...].
var itemPrefixes = []string{"payment[%d]", "payment[products][%d]", "orderItems[%d]"}

// parseItems collects the line items. The title key varies between "title"
// and "name". Unparseable prices default to zero and quantities to one,
// matching the permissive intake the rest of the payload gets.
func parseItems(fields map[string]string) []domain.OrderItem {
	var items []domain.OrderItem
	for i := 0; i < maxItems; i++ {
		var title, prefix string
		for _, p := range itemPrefixes {
			prefix = fmt.Sprintf(p, i)
			if title = pick(fields, prefix+"[title]", prefix+"[name]"); title != "" {
				break
			}
		}
		if title == "" {
			break
		}
		items = append(items, domain.OrderItem{
			Title:    title,
			Price:    utils.FloatDefault(fields[prefix+"[price]"], 0),
			Quantity: utils.AtoiDefault(fields[prefix+"[quantity]"], 1),
			SKU:      strings.TrimSpace(fields[prefix+"[sku]"]),
		})
	}
	return items
}

// parseAmount reads the payload total, falling back to summing the line
// items when the field is absent or malformed.
func parseAmount(fields map[string]string, items []domain.OrderItem) decimal.Decimal {
	if raw := pick(fields, "amount", "payment[amount]", "orderPrice"); raw != "" {
		if d, err := decimal.NewFromString(raw); err == nil {
			return d
		}
	}
	sum := decimal.Zero
	for _, it := range items {
		sum = sum.Add(decimal.NewFromFloat(it.LineTotal()))
	}
	return sum
}
