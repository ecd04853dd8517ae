package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/changcafe/go-order-bridge/internal/bot"
	"github.com/changcafe/go-order-bridge/internal/services"
	"github.com/changcafe/go-order-bridge/internal/session"
	"github.com/changcafe/go-order-bridge/internal/telegram"
)

// recordingAPI counts outgoing bot traffic.
type recordingAPI struct {
	mu   sync.Mutex
	sent int
}

func (f *recordingAPI) SendMessage(_ context.Context, chatID int64, text string, markup any) (*telegram.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent++
	return &telegram.Message{MessageID: 1, Chat: telegram.Chat{ID: chatID}}, nil
}

func (f *recordingAPI) Send(ctx context.Context, chatID int64, text string) error {
	_, err := f.SendMessage(ctx, chatID, text, nil)
	return err
}

func (f *recordingAPI) AnswerCallbackQuery(context.Context, string, string) error { return nil }

func (f *recordingAPI) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent
}

func newTelegramRouter(t *testing.T) (*gin.Engine, *recordingAPI) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := newHandlerDB(t)

	api := &recordingAPI{}
	notify := services.NewNotifyService(api, -100)
	b := bot.New(api, session.NewMemoryStore(time.Minute),
		services.NewLifecycleService(db, notify),
		services.NewRelayService(db, notify), -100)

	h := NewTelegramHandler(b, "s3cret")
	r := gin.New()
	r.POST("/webhook/telegram/:secret", h.Updates)
	return r, api
}

func TestTelegramUpdates_WrongSecretIs404(t *testing.T) {
	r, _ := newTelegramRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/webhook/telegram/guess", strings.NewReader(`{"update_id":1}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestTelegramUpdates_DispatchesToBot(t *testing.T) {
	r, api := newTelegramRouter(t)

	body := `{"update_id":1,"message":{"message_id":1,"from":{"id":555,"first_name":"Иван"},"chat":{"id":555,"type":"private"},"text":"/start"}}`
	req := httptest.NewRequest(http.MethodPost, "/webhook/telegram/s3cret", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	// The /start greeting went out.
	if api.sentCount() != 1 {
		t.Errorf("sent = %d, want 1", api.sentCount())
	}
}

func TestTelegramUpdates_MalformedBody(t *testing.T) {
	r, _ := newTelegramRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/webhook/telegram/s3cret", strings.NewReader("{nope"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestTelegramUpdates_UnsupportedUpdateIsOK(t *testing.T) {
	r, api := newTelegramRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/webhook/telegram/s3cret", strings.NewReader(`{"update_id":7}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if api.sentCount() != 0 {
		t.Errorf("sent = %d, want 0", api.sentCount())
	}
}
