// Package domain defines the persistence models for users, orders, and the
// operator↔client message log, plus the order lifecycle state machine. These
// types are mapped with GORM and form the core data layer of the order
// bridge.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Role classifies a Telegram user interacting with the bot.
type Role string

const (
	RoleClient   Role = "client"
	RoleOperator Role = "operator"
)

// User represents a person known to the bot: a customer who placed an order
// on the site, or the delivery operator. Rows keyed by Telegram id; users
// created from a webhook before they ever open the bot get a temporary id
// and are relinked once they confirm their phone in chat.
//
// Fields:
//   - ID: Telegram user id (or a temporary id for webhook-created users).
//   - Username: Telegram @username, when known; unique.
//   - FirstName / LastName: display name as reported by Telegram or the
//     order form.
//   - Phone: confirmed phone in canonical +7... form; unique, indexed.
//   - Email: optional, from the order form.
//   - Role: "client" or "operator".
type User struct {
	ID        int64     `json:"id"         gorm:"primaryKey;autoIncrement:false"`
	Username  *string   `json:"username"   gorm:"type:varchar(64);uniqueIndex"`
	FirstName string    `json:"first_name" gorm:"type:varchar(255)"`
	LastName  *string   `json:"last_name"  gorm:"type:varchar(255)"`
	Phone     *string   `json:"phone"      gorm:"type:varchar(20);uniqueIndex"`
	Email     *string   `json:"email"      gorm:"type:varchar(255)"`
	Role      Role      `json:"role"       gorm:"type:varchar(16);not null;default:'client';index;check:role IN ('client','operator')"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// OrderItem is a single purchased position, stored inside the order's JSON
// items column. Price is the unit price as submitted by the site.
type OrderItem struct {
	Title    string  `json:"title"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
	SKU      string  `json:"sku,omitempty"`
}

// LineTotal returns Price × Quantity for the item.
func (i OrderItem) LineTotal() float64 { return i.Price * float64(i.Quantity) }

// Order is one externally-sourced purchase moving through the delivery
// lifecycle. The external order id is the idempotency key for webhook
// replays: at most one row per id, enforced by a unique index.
//
// The raw customer fields (CustomerName/CustomerPhone/Address) are stored
// exactly as the site submitted them; ConfirmedPhone is set only after a
// chat user proves ownership of the order. Status is mutated exclusively
// through the lifecycle transition table (see status.go) — orders are never
// deleted, cancellation is a status.
type Order struct {
	ID              uint                            `json:"id"                gorm:"primaryKey"`
	ExternalOrderID string                          `json:"external_order_id" gorm:"type:varchar(255);not null;uniqueIndex"`
	UserID          *int64                          `json:"user_id"           gorm:"index"`
	CustomerName    string                          `json:"customer_name"     gorm:"type:varchar(255)"`
	CustomerPhone   string                          `json:"customer_phone"    gorm:"type:varchar(64)"`
	Address         string                          `json:"address"           gorm:"type:text"`
	Items           datatypes.JSONSlice[OrderItem]  `json:"items"`
	BaseAmount      decimal.Decimal                 `json:"base_amount"       gorm:"type:decimal(10,2)"`
	ConfirmedPhone  *string                         `json:"confirmed_phone"   gorm:"type:varchar(20)"`
	DeliveryCost    decimal.NullDecimal             `json:"delivery_cost"     gorm:"type:decimal(10,2)"`
	TotalAmount     decimal.NullDecimal             `json:"total_amount"      gorm:"type:decimal(10,2)"`
	PaymentLink     *string                         `json:"payment_link"      gorm:"type:varchar(512)"`
	TrackingLink    *string                         `json:"tracking_link"     gorm:"type:varchar(512)"`
	Status          Status                          `json:"status"            gorm:"type:varchar(32);not null;default:'new';index"`
	AssignedTo      *int64                          `json:"assigned_to"       gorm:"index"`
	AssignedAt      *time.Time                      `json:"assigned_at"`
	CreatedAt       time.Time                       `json:"created_at"        gorm:"index"`
	UpdatedAt       time.Time                       `json:"updated_at"`
	ConfirmedAt     *time.Time                      `json:"confirmed_at"`
	PaidAt          *time.Time                      `json:"paid_at"`
	CompletedAt     *time.Time                      `json:"completed_at"`

	// User is the chat user who claimed the order; nil until someone does.
	User *User `json:"-" gorm:"foreignKey:UserID;references:ID"`
}

// TableName returns the database table name for Order.
func (Order) TableName() string { return "orders" }

// Message direction tags for the operator↔client relay log.
const (
	DirectionToClient   = "to_client"
	DirectionToOperator = "to_operator"
)

// Message is one relayed utterance between the operator and a client,
// attached to an order. The log is append-only.
type Message struct {
	ID        uint      `json:"id"        gorm:"primaryKey"`
	OrderID   uint      `json:"order_id"  gorm:"not null;index:idx_order_msgs,priority:1"`
	SenderID  int64     `json:"sender_id" gorm:"not null;index"`
	Text      string    `json:"text"      gorm:"type:text;not null"`
	Direction string    `json:"direction" gorm:"type:varchar(16);not null;check:direction IN ('to_client','to_operator')"`
	CreatedAt time.Time `json:"created_at" gorm:"index:idx_order_msgs,priority:2"`

	// Order is the parent order. Messages are cascade-deleted if the
	// order row is ever removed.
	Order Order `json:"-" gorm:"foreignKey:OrderID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }
