package bot

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/changcafe/go-order-bridge/internal/domain"
	"github.com/changcafe/go-order-bridge/internal/repo"
	"github.com/changcafe/go-order-bridge/internal/services"
	"github.com/changcafe/go-order-bridge/internal/session"
	"github.com/changcafe/go-order-bridge/internal/telegram"
)

const testOperatorChat int64 = -100200300

// fakeAPI records outgoing Telegram traffic.
type fakeAPI struct {
	mu       sync.Mutex
	sent     []fakeSent
	answered []string
}

type fakeSent struct {
	chatID int64
	text   string
	markup any
}

func (f *fakeAPI) SendMessage(_ context.Context, chatID int64, text string, markup any) (*telegram.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, fakeSent{chatID: chatID, text: text, markup: markup})
	return &telegram.Message{MessageID: int64(len(f.sent)), Chat: telegram.Chat{ID: chatID}}, nil
}

func (f *fakeAPI) Send(ctx context.Context, chatID int64, text string) error {
	_, err := f.SendMessage(ctx, chatID, text, nil)
	return err
}

func (f *fakeAPI) AnswerCallbackQuery(_ context.Context, callbackID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answered = append(f.answered, callbackID+"|"+text)
	return nil
}

func (f *fakeAPI) messagesTo(chatID int64) []fakeSent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []fakeSent
	for _, m := range f.sent {
		if m.chatID == chatID {
			out = append(out, m)
		}
	}
	return out
}

func newTestBot(t *testing.T) (*Bot, *fakeAPI, *gorm.DB) {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("bot_test_%d.db", time.Now().UnixNano()))
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

	api := &fakeAPI{}
	notify := services.NewNotifyService(api, testOperatorChat)
	b := New(api, session.NewMemoryStore(time.Minute),
		services.NewLifecycleService(db, notify),
		services.NewRelayService(db, notify),
		testOperatorChat)
	return b, api, db
}

func seedBotOrder(t *testing.T, db *gorm.DB) *domain.Order {
	t.Helper()
	o, err := repo.CreateFromWebhook(context.Background(), db,
		"2067628905", "Иван", "+79991234567", "ул. Ленина, д. 10",
		[]domain.OrderItem{{Title: "Pizza", Price: 690, Quantity: 1}},
		decimal.NewFromInt(690), nil)
	if err != nil {
		t.Fatalf("seed order: %v", err)
	}
	return o
}

func privateMsg(userID int64, text string) telegram.Update {
	return telegram.Update{Message: &telegram.Message{
		From: &telegram.User{ID: userID, FirstName: "Иван", Username: "ivan_t"},
		Chat: telegram.Chat{ID: userID, Type: "private"},
		Text: text,
	}}
}

func operatorMsg(userID int64, text string) telegram.Update {
	return telegram.Update{Message: &telegram.Message{
		From: &telegram.User{ID: userID, FirstName: "Оля"},
		Chat: telegram.Chat{ID: testOperatorChat, Type: "supergroup"},
		Text: text,
	}}
}

func callback(fromID, chatID int64, data string) telegram.Update {
	return telegram.Update{CallbackQuery: &telegram.CallbackQuery{
		ID:      "cb-1",
		From:    telegram.User{ID: fromID},
		Message: &telegram.Message{Chat: telegram.Chat{ID: chatID}},
		Data:    data,
	}}
}

func TestParseCallback(t *testing.T) {
	cases := []struct {
		in     string
		action string
		id     uint
		ok     bool
	}{
		{"take_order:42", "take_order", 42, true},
		{"confirm_order:1", "confirm_order", 1, true},
		{"take_order:", "", 0, false},
		{"take_order:abc", "", 0, false},
		{"take_order:0", "", 0, false},
		{"noseparator", "", 0, false},
		{":42", "", 0, false},
	}
	for _, tc := range cases {
		action, id, ok := parseCallback(tc.in)
		if action != tc.action || id != tc.id || ok != tc.ok {
			t.Errorf("parseCallback(%q) = (%q, %d, %v), want (%q, %d, %v)",
				tc.in, action, id, ok, tc.action, tc.id, tc.ok)
		}
	}
}

func TestCallbackDataRoundTrip(t *testing.T) {
	data := callbackData(actionSendPayment, 42)
	action, id, ok := parseCallback(data)
	if !ok || action != actionSendPayment || id != 42 {
		t.Fatalf("round trip = (%q, %d, %v)", action, id, ok)
	}
}

func TestStartDeepLink_ShowsCard(t *testing.T) {
	b, api, db := newTestBot(t)
	seedBotOrder(t, db)

	b.HandleUpdate(context.Background(), privateMsg(555, "/start order_2067628905"))

	msgs := api.messagesTo(555)
	if len(msgs) != 1 {
		t.Fatalf("messages = %+v", msgs)
	}
	if !strings.Contains(msgs[0].text, "📦 Заказ 2067628905") || !strings.Contains(msgs[0].text, "• Pizza x1 — 690₽") {
		t.Errorf("card text = %q", msgs[0].text)
	}
	if _, ok := msgs[0].markup.(telegram.InlineKeyboardMarkup); !ok {
		t.Errorf("markup = %T, want inline keyboard", msgs[0].markup)
	}
}

func TestStartDeepLink_UnknownOrder(t *testing.T) {
	b, api, _ := newTestBot(t)

	b.HandleUpdate(context.Background(), privateMsg(555, "/start order_nope"))

	msgs := api.messagesTo(555)
	if len(msgs) != 1 || !strings.Contains(msgs[0].text, "не найден") {
		t.Fatalf("messages = %+v", msgs)
	}
}

func TestClientConfirmThenContact_LinksOrder(t *testing.T) {
	b, api, db := newTestBot(t)
	o := seedBotOrder(t, db)
	ctx := context.Background()

	b.HandleUpdate(ctx, callback(555, 555, callbackData(actionConfirmOrder, o.ID)))

	got, err := repo.GetOrder(ctx, db, o.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got.Status != domain.StatusAwaitingConfirmation {
		t.Fatalf("status after confirm = %s", got.Status)
	}

	// The contact prompt arrived with the share-phone keyboard.
	var sawContactPrompt bool
	for _, m := range api.messagesTo(555) {
		if _, ok := m.markup.(telegram.ReplyKeyboardMarkup); ok {
			sawContactPrompt = true
		}
	}
	if !sawContactPrompt {
		t.Error("contact keyboard never shown")
	}

	b.HandleUpdate(ctx, telegram.Update{Message: &telegram.Message{
		From:    &telegram.User{ID: 555},
		Chat:    telegram.Chat{ID: 555},
		Contact: &telegram.Contact{PhoneNumber: "89991234567", UserID: 555},
	}})

	got, err = repo.GetOrder(ctx, db, o.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got.Status != domain.StatusWaitingOperator {
		t.Errorf("status after contact = %s", got.Status)
	}
	if got.UserID == nil || *got.UserID != 555 {
		t.Errorf("UserID = %v", got.UserID)
	}

	// Operator group was pinged about the confirmation.
	if len(api.messagesTo(testOperatorChat)) == 0 {
		t.Error("operator chat never notified")
	}
}

func TestContact_PhoneMismatchKeepsOrder(t *testing.T) {
	b, api, db := newTestBot(t)
	o := seedBotOrder(t, db)
	ctx := context.Background()

	b.HandleUpdate(ctx, callback(555, 555, callbackData(actionConfirmOrder, o.ID)))
	b.HandleUpdate(ctx, telegram.Update{Message: &telegram.Message{
		From:    &telegram.User{ID: 555},
		Chat:    telegram.Chat{ID: 555},
		Contact: &telegram.Contact{PhoneNumber: "+70000000000", UserID: 555},
	}})

	got, err := repo.GetOrder(ctx, db, o.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got.Status != domain.StatusAwaitingConfirmation || got.UserID != nil {
		t.Errorf("order mutated on mismatch: %+v", got)
	}

	var sawMismatch bool
	for _, m := range api.messagesTo(555) {
		if strings.Contains(m.text, "не совпадает") {
			sawMismatch = true
		}
	}
	if !sawMismatch {
		t.Error("mismatch never reported to the client")
	}
}

func TestOperatorActionsRejectedOutsideGroup(t *testing.T) {
	b, api, db := newTestBot(t)
	o := seedBotOrder(t, db)

	// Operator button pressed in a private chat: refused.
	b.HandleUpdate(context.Background(), callback(777, 777, callbackData(actionTakeOrder, o.ID)))

	got, err := repo.GetOrder(context.Background(), db, o.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got.AssignedTo != nil {
		t.Error("order assigned from outside the operator chat")
	}
	if len(api.answered) != 1 || !strings.Contains(api.answered[0], "Недоступно") {
		t.Errorf("answers = %v", api.answered)
	}
}

func TestOperatorPaymentLinkDialog(t *testing.T) {
	b, api, db := newTestBot(t)
	o := seedBotOrder(t, db)
	ctx := context.Background()

	// Bring the order to waiting_operator with a linked client.
	b.HandleUpdate(ctx, callback(555, 555, callbackData(actionConfirmOrder, o.ID)))
	b.HandleUpdate(ctx, telegram.Update{Message: &telegram.Message{
		From:    &telegram.User{ID: 555},
		Chat:    telegram.Chat{ID: 555},
		Contact: &telegram.Contact{PhoneNumber: "89991234567", UserID: 555},
	}})

	b.HandleUpdate(ctx, callback(900, testOperatorChat, callbackData(actionSendPayment, o.ID)))
	b.HandleUpdate(ctx, operatorMsg(900, "https://pay.example/42"))

	got, err := repo.GetOrder(ctx, db, o.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got.Status != domain.StatusAwaitingPayment {
		t.Fatalf("status = %s", got.Status)
	}
	if got.PaymentLink == nil || *got.PaymentLink != "https://pay.example/42" {
		t.Errorf("PaymentLink = %v", got.PaymentLink)
	}

	// The client received the link.
	var clientGotLink bool
	for _, m := range api.messagesTo(555) {
		if strings.Contains(m.text, "https://pay.example/42") {
			clientGotLink = true
		}
	}
	if !clientGotLink {
		t.Error("payment link never reached the client")
	}
}

func TestOperatorCompleteOnStale(t *testing.T) {
	b, api, db := newTestBot(t)
	o := seedBotOrder(t, db)

	// Completing a "new" order skips the whole lifecycle: refused, status kept.
	b.HandleUpdate(context.Background(), callback(900, testOperatorChat, callbackData(actionCompleteOrder, o.ID)))

	got, err := repo.GetOrder(context.Background(), db, o.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got.Status != domain.StatusNew {
		t.Errorf("status = %s", got.Status)
	}
	if len(api.answered) != 1 || !strings.Contains(api.answered[0], "Недоступно в текущем статусе") {
		t.Errorf("answers = %v", api.answered)
	}
}

func TestOperatorOrdersCommand(t *testing.T) {
	b, api, db := newTestBot(t)
	seedBotOrder(t, db)

	b.HandleUpdate(context.Background(), operatorMsg(900, "/orders"))

	msgs := api.messagesTo(testOperatorChat)
	if len(msgs) != 1 || !strings.Contains(msgs[0].text, "📦 Заказ 2067628905") {
		t.Fatalf("messages = %+v", msgs)
	}
	if !strings.Contains(msgs[0].text, "📊 Статус") {
		t.Error("operator card missing status line")
	}
}

func TestClientTextRelayedToOperators(t *testing.T) {
	b, api, db := newTestBot(t)
	o := seedBotOrder(t, db)
	ctx := context.Background()

	// Link the client first.
	b.HandleUpdate(ctx, callback(555, 555, callbackData(actionConfirmOrder, o.ID)))
	b.HandleUpdate(ctx, telegram.Update{Message: &telegram.Message{
		From:    &telegram.User{ID: 555},
		Chat:    telegram.Chat{ID: 555},
		Contact: &telegram.Contact{PhoneNumber: "89991234567", UserID: 555},
	}})

	b.HandleUpdate(ctx, privateMsg(555, "Можно без лука?"))

	var relayed bool
	for _, m := range api.messagesTo(testOperatorChat) {
		if strings.Contains(m.text, "Можно без лука?") {
			relayed = true
		}
	}
	if !relayed {
		t.Error("client message never relayed")
	}

	msgs, err := repo.ListOrderMessages(ctx, db, o.ID)
	if err != nil || len(msgs) != 1 {
		t.Fatalf("history = %+v, err = %v", msgs, err)
	}
}

// linkClient walks a seeded order through confirm + contact so it reaches
// waiting_operator with user 555 attached.
func linkClient(t *testing.T, b *Bot, orderID uint) {
	t.Helper()
	ctx := context.Background()
	b.HandleUpdate(ctx, callback(555, 555, callbackData(actionConfirmOrder, orderID)))
	b.HandleUpdate(ctx, telegram.Update{Message: &telegram.Message{
		From:    &telegram.User{ID: 555},
		Chat:    telegram.Chat{ID: 555},
		Contact: &telegram.Contact{PhoneNumber: "89991234567", UserID: 555},
	}})
}

func TestWebhookOrderClaimedThroughContact(t *testing.T) {
	b, _, db := newTestBot(t)
	ctx := context.Background()

	// Webhook with a phone: ingestion stores a placeholder user owning it.
	ingest := services.NewIngestService(db, "changcafe_bot", nil)
	res, err := ingest.Ingest(ctx, map[string]string{
		"orderid": "777",
		"name":    "Иван",
		"phone":   "89991234567",
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	b.HandleUpdate(ctx, privateMsg(555, "/start order_777"))
	linkClient(t, b, res.Order.ID)

	got, err := repo.GetOrder(ctx, db, res.Order.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got.Status != domain.StatusWaitingOperator {
		t.Errorf("status = %s, want waiting_operator", got.Status)
	}
	if got.UserID == nil || *got.UserID != 555 {
		t.Errorf("UserID = %v, want 555", got.UserID)
	}
}

func TestOperatorReplyToClientDialog(t *testing.T) {
	b, api, db := newTestBot(t)
	o := seedBotOrder(t, db)
	ctx := context.Background()

	linkClient(t, b, o.ID)

	b.HandleUpdate(ctx, callback(900, testOperatorChat, callbackData(actionReplyClient, o.ID)))
	b.HandleUpdate(ctx, operatorMsg(900, "Заказ соберём к вечеру."))

	var delivered bool
	for _, m := range api.messagesTo(555) {
		if strings.Contains(m.text, "Заказ соберём к вечеру.") {
			delivered = true
		}
	}
	if !delivered {
		t.Error("operator reply never reached the client")
	}

	msgs, err := repo.ListOrderMessages(ctx, db, o.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	var stored bool
	for _, m := range msgs {
		if m.Direction == domain.DirectionToClient && m.Text == "Заказ соберём к вечеру." {
			stored = true
		}
	}
	if !stored {
		t.Error("operator reply not persisted")
	}
}

func TestOperatorDeliveryCostDialog(t *testing.T) {
	b, api, db := newTestBot(t)
	o := seedBotOrder(t, db)
	ctx := context.Background()

	b.HandleUpdate(ctx, callback(900, testOperatorChat, callbackData(actionSetDelivery, o.ID)))

	// Garbage input keeps the dialog open.
	b.HandleUpdate(ctx, operatorMsg(900, "дорого"))
	b.HandleUpdate(ctx, operatorMsg(900, "300"))

	got, err := repo.GetOrder(ctx, db, o.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !got.DeliveryCost.Valid || !got.DeliveryCost.Decimal.Equal(decimal.NewFromInt(300)) {
		t.Errorf("DeliveryCost = %+v", got.DeliveryCost)
	}
	if !got.TotalAmount.Valid || !got.TotalAmount.Decimal.Equal(decimal.NewFromInt(990)) {
		t.Errorf("TotalAmount = %+v", got.TotalAmount)
	}

	var sawCardLine bool
	for _, m := range api.messagesTo(testOperatorChat) {
		if strings.Contains(m.text, "🚛 Доставка: 300₽") {
			sawCardLine = true
		}
	}
	if !sawCardLine {
		t.Error("delivery line never shown on the card")
	}
}

func TestOperatorHistoryCommand(t *testing.T) {
	b, api, db := newTestBot(t)
	o := seedBotOrder(t, db)
	ctx := context.Background()

	if err := b.Relay.ToOperator(ctx, o.ID, 555, "Где заказ?"); err != nil {
		t.Fatalf("ToOperator: %v", err)
	}
	if err := b.Relay.ToClient(ctx, o.ID, 900, "Уже в пути."); err != nil {
		t.Fatalf("ToClient: %v", err)
	}

	b.HandleUpdate(ctx, operatorMsg(900, "/history 2067628905"))

	var history string
	for _, m := range api.messagesTo(testOperatorChat) {
		if strings.Contains(m.text, "Переписка по заказу 2067628905") {
			history = m.text
		}
	}
	if history == "" {
		t.Fatal("history never posted")
	}
	if !strings.Contains(history, "⬅️ Клиент: Где заказ?") || !strings.Contains(history, "➡️ Оператор: Уже в пути.") {
		t.Errorf("history text = %q", history)
	}

	b.HandleUpdate(ctx, operatorMsg(900, "/history nope"))
	var notFound bool
	for _, m := range api.messagesTo(testOperatorChat) {
		if strings.Contains(m.text, "Заказ nope не найден") {
			notFound = true
		}
	}
	if !notFound {
		t.Error("missing-order reply never sent")
	}
}
