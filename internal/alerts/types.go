package alerts

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

const TaskCashPickupEmail = "email:cash_pickup"

const (
	TypePayoutRequested = "payout_requested"
	TypePayoutCancelled = "payout_cancelled"
	TypePayoutUpdated   = "payout_updated"
)

type Notification struct {
	UserID        string `json:"user_id"`
	Type          string `json:"type"`
	Title         string `json:"title"`
	Message       string `json:"message"`
	ReferenceType string `json:"reference_type"`
	ReferenceID   string `json:"reference_id"`
}

// CashPickupEmail carries what the recipient needs at the agent counter.
type CashPickupEmail struct {
	PayoutID      string          `json:"payout_id"`
	Reference     string          `json:"reference"`
	Provider      string          `json:"provider"`
	RecipientName string          `json:"recipient_name"`
	City          string          `json:"city"`
	Country       string          `json:"country"`
	Amount        decimal.Decimal `json:"amount"`
	NetAmount     decimal.Decimal `json:"net_amount"`
	Currency      string          `json:"currency"`
	Instructions  []string        `json:"instructions"`
}

type CashPickupPayload struct {
	UserID string          `json:"user_id"`
	Email  CashPickupEmail `json:"email"`
	SentAt time.Time       `json:"sent_at"`
}

type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

type Mailer interface {
	SendCashPickupEmail(ctx context.Context, userID string, email CashPickupEmail) error
}

// Directory resolves a user's email address.
type Directory interface {
	EmailFor(ctx context.Context, userID string) (string, error)
}
