package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/changcafe/go-order-bridge/internal/domain"
	"github.com/changcafe/go-order-bridge/internal/repo"
	"github.com/changcafe/go-order-bridge/internal/services"
)

func newHandlerDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("handler_test_%d.db", time.Now().UnixNano()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func newWebhookRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := newHandlerDB(t)
	h := NewWebhookHandler(services.NewIngestService(db, "changcafe_bot", nil))
	r := gin.New()
	r.POST("/webhook/tilda", h.Tilda)
	return r, db
}

func postForm(r *gin.Engine, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhook/tilda", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func tildaForm() url.Values {
	return url.Values{
		"orderid":              {"2067628905"},
		"name":                 {"Иван"},
		"phone":                {"89991234567"},
		"street":               {"ул. Ленина"},
		"home":                 {"10"},
		"amount":               {"690"},
		"payment[0][title]":    {"Pizza"},
		"payment[0][price]":    {"690"},
		"payment[0][quantity]": {"1"},
	}
}

func TestTilda_FormPayloadCreatesOrder(t *testing.T) {
	r, db := newWebhookRouter(t)

	w := postForm(r, tildaForm())
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var resp webhookResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "ok" || resp.OrderID == 0 {
		t.Fatalf("resp = %+v", resp)
	}
	if resp.DeepLink != "https://t.me/changcafe_bot?start=order_2067628905" {
		t.Errorf("deep_link = %q", resp.DeepLink)
	}

	o, err := repo.GetOrderByExternalID(context.Background(), db, "2067628905")
	if err != nil {
		t.Fatalf("stored order: %v", err)
	}
	if o.Address != "ул. Ленина, д. 10" || len(o.Items) != 1 {
		t.Errorf("order = %+v", o)
	}
}

func TestTilda_JSONPayloadFlattened(t *testing.T) {
	r, db := newWebhookRouter(t)

	body := `{
		"orderid": "555001",
		"name": "Анна",
		"phone": "+79995554433",
		"payment": {
			"amount": 840,
			"products": [
				{"name": "Суп", "price": 420, "quantity": 2}
			]
		}
	}`
	req := httptest.NewRequest(http.MethodPost, "/webhook/tilda", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	o, err := repo.GetOrderByExternalID(context.Background(), db, "555001")
	if err != nil {
		t.Fatalf("stored order: %v", err)
	}
	if len(o.Items) != 1 || o.Items[0].Title != "Суп" || o.Items[0].Quantity != 2 {
		t.Errorf("items = %+v", o.Items)
	}
	if o.BaseAmount.String() != "840" {
		t.Errorf("BaseAmount = %s", o.BaseAmount)
	}
}

func TestTilda_ConfigurationProbe(t *testing.T) {
	r, db := newWebhookRouter(t)

	w := postForm(r, url.Values{"test": {"test"}})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var n int64
	if err := db.Model(&domain.Order{}).Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Errorf("probe created %d orders", n)
	}
}

func TestTilda_MissingOrderID(t *testing.T) {
	r, _ := newWebhookRouter(t)

	form := tildaForm()
	form.Del("orderid")

	w := postForm(r, form)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), ErrCodeMissingOrderID) {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestTilda_RedeliveryFlagged(t *testing.T) {
	r, _ := newWebhookRouter(t)

	if w := postForm(r, tildaForm()); w.Code != http.StatusOK {
		t.Fatalf("first delivery status = %d", w.Code)
	}
	w := postForm(r, tildaForm())
	if w.Code != http.StatusOK {
		t.Fatalf("redelivery status = %d", w.Code)
	}

	var resp webhookResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Duplicate {
		t.Error("redelivery not flagged as duplicate")
	}
}

func TestTilda_MalformedJSON(t *testing.T) {
	r, _ := newWebhookRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/webhook/tilda", strings.NewReader("{nope"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
}
