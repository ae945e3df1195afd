package payout

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/blancagut/PaySafer-sub000/internal/destination"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// ActiveStatuses still hold a claim on the funds and the payout method.
var ActiveStatuses = []Status{StatusPending, StatusProcessing}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// ReferenceType tags wallet ledger entries that belong to a payout.
const ReferenceType = "payout"

type PayoutMethod struct {
	ID               string                 `gorm:"column:id;primaryKey;type:uuid" json:"id"`
	UserID           string                 `gorm:"column:user_id;type:uuid;not null;index" json:"user_id"`
	Type             destination.MethodType `gorm:"column:type;type:varchar(40);not null" json:"type"`
	Label            string                 `gorm:"column:label;type:varchar(100)" json:"label"`
	IsDefault        bool                   `gorm:"column:is_default;not null;default:false" json:"is_default"`
	BankName         string                 `gorm:"column:bank_name;type:varchar(100)" json:"bank_name,omitempty"`
	AccountNumber    string                 `gorm:"column:account_number;type:varchar(64)" json:"account_number,omitempty"`
	RoutingNumber    string                 `gorm:"column:routing_number;type:varchar(64)" json:"routing_number,omitempty"`
	AccountHolder    string                 `gorm:"column:account_holder;type:varchar(100)" json:"account_holder,omitempty"`
	IBAN             string                 `gorm:"column:iban;type:varchar(64)" json:"iban,omitempty"`
	SWIFT            string                 `gorm:"column:swift;type:varchar(16)" json:"swift,omitempty"`
	RecipientName    string                 `gorm:"column:recipient_name;type:varchar(100)" json:"recipient_name,omitempty"`
	RecipientCity    string                 `gorm:"column:recipient_city;type:varchar(100)" json:"recipient_city,omitempty"`
	RecipientCountry string                 `gorm:"column:recipient_country;type:varchar(100)" json:"recipient_country,omitempty"`
	CryptoAddress    string                 `gorm:"column:crypto_address;type:varchar(128)" json:"crypto_address,omitempty"`
	CryptoNetwork    string                 `gorm:"column:crypto_network;type:varchar(32)" json:"crypto_network,omitempty"`
	CryptoCurrency   string                 `gorm:"column:crypto_currency;type:varchar(16)" json:"crypto_currency,omitempty"`
	CardID           string                 `gorm:"column:card_id;type:varchar(64)" json:"card_id,omitempty"`
	PayPalEmail      string                 `gorm:"column:paypal_email;type:varchar(255)" json:"paypal_email,omitempty"`
	CreatedAt        time.Time              `gorm:"column:created_at;not null;default:now()" json:"created_at"`
	UpdatedAt        time.Time              `gorm:"column:updated_at;not null;default:now()" json:"updated_at"`
}

func (PayoutMethod) TableName() string { return "payout_methods" }

// Details rebuilds the typed destination from the stored columns.
func (m *PayoutMethod) Details() (destination.Details, error) {
	return destination.Parse(destination.Input{
		Type:          m.Type,
		BankName:      m.BankName,
		AccountNumber: m.AccountNumber,
		RoutingNumber: m.RoutingNumber,
		AccountHolder: m.AccountHolder,
		IBAN:          m.IBAN,
		SWIFT:         m.SWIFT,
		RecipientName: m.RecipientName,
		City:          m.RecipientCity,
		Country:       m.RecipientCountry,
		CryptoAddress: m.CryptoAddress,
		CryptoNetwork: m.CryptoNetwork,
		CryptoCoin:    m.CryptoCurrency,
		CardID:        m.CardID,
		PayPalEmail:   m.PayPalEmail,
	})
}

func (m *PayoutMethod) setDetails(d destination.Details) {
	in := destination.Flatten(d)
	m.Type = in.Type
	m.BankName = in.BankName
	m.AccountNumber = in.AccountNumber
	m.RoutingNumber = in.RoutingNumber
	m.AccountHolder = in.AccountHolder
	m.IBAN = in.IBAN
	m.SWIFT = in.SWIFT
	m.RecipientName = in.RecipientName
	m.RecipientCity = in.City
	m.RecipientCountry = in.Country
	m.CryptoAddress = in.CryptoAddress
	m.CryptoNetwork = in.CryptoNetwork
	m.CryptoCurrency = in.CryptoCoin
	m.CardID = in.CardID
	m.PayPalEmail = in.PayPalEmail
}

type PayoutRequest struct {
	ID                  string                 `gorm:"column:id;primaryKey;type:uuid" json:"id"`
	UserID              string                 `gorm:"column:user_id;type:uuid;not null;index" json:"user_id"`
	WalletID            string                 `gorm:"column:wallet_id;type:uuid;not null" json:"wallet_id"`
	PayoutMethodID      *string                `gorm:"column:payout_method_id;type:uuid;index" json:"payout_method_id"`
	Amount              decimal.Decimal        `gorm:"column:amount;type:numeric(20,2);not null" json:"amount"`
	Currency            string                 `gorm:"column:currency;type:varchar(3);not null" json:"currency"`
	Fee                 decimal.Decimal        `gorm:"column:fee;type:numeric(20,2);not null" json:"fee"`
	NetAmount           decimal.Decimal        `gorm:"column:net_amount;type:numeric(20,2);not null" json:"net_amount"`
	Status              Status                 `gorm:"column:status;type:varchar(20);not null;index" json:"status"`
	MethodType          destination.MethodType `gorm:"column:method_type;type:varchar(40);not null" json:"method_type"`
	MethodLabel         string                 `gorm:"column:method_label;type:varchar(150)" json:"method_label"`
	Reference           *string                `gorm:"column:reference;type:varchar(16);uniqueIndex" json:"reference"`
	PickupDetails       *PickupDetails         `gorm:"column:pickup_details;type:jsonb" json:"pickup_details"`
	DeliverySpeed       *string                `gorm:"column:delivery_speed;type:varchar(40)" json:"delivery_speed"`
	Note                string                 `gorm:"column:note;type:text" json:"note,omitempty"`
	SettlementReference *string                `gorm:"column:settlement_reference;type:varchar(128)" json:"settlement_reference,omitempty"`
	CreatedAt           time.Time              `gorm:"column:created_at;not null;default:now()" json:"created_at"`
	UpdatedAt           time.Time              `gorm:"column:updated_at;not null;default:now()" json:"updated_at"`
	CompletedAt         *time.Time             `gorm:"column:completed_at" json:"completed_at,omitempty"`
}

func (PayoutRequest) TableName() string { return "payout_requests" }

type PickupKind string

const (
	PickupCash   PickupKind = "cash_pickup"
	PickupCrypto PickupKind = "crypto"
)

// PickupDetails holds exactly one variant, selected by Kind.
type PickupDetails struct {
	Kind       PickupKind      `json:"kind"`
	CashPickup *CashPickupInfo `json:"cash_pickup,omitempty"`
	Crypto     *CryptoInfo     `json:"crypto,omitempty"`
}

type CashPickupInfo struct {
	Provider      destination.MethodType `json:"provider"`
	ProviderName  string                 `json:"provider_name"`
	Reference     string                 `json:"reference"`
	RecipientName string                 `json:"recipient_name"`
	City          string                 `json:"city"`
	Country       string                 `json:"country"`
	Instructions  []string               `json:"instructions"`
}

type CryptoInfo struct {
	Address  string `json:"address"`
	Network  string `json:"network"`
	Currency string `json:"currency"`
}

func (p PickupDetails) Value() (driver.Value, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (p *PickupDetails) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, p)
	case string:
		return json.Unmarshal([]byte(v), p)
	case nil:
		return nil
	}
	return fmt.Errorf("unsupported pickup_details type %T", src)
}

type WithdrawalInput struct {
	Amount         decimal.Decimal    `json:"amount"`
	Currency       string             `json:"currency,omitempty"`
	PayoutMethodID string             `json:"payout_method_id,omitempty"`
	Destination    *destination.Input `json:"destination,omitempty"`
	Note           string             `json:"note,omitempty"`
}

type MethodInput struct {
	destination.Input
	Label     string `json:"label"`
	IsDefault bool   `json:"is_default"`
}

type SettleInput struct {
	PayoutID  string `json:"-"`
	Status    Status `json:"status"`
	Reference string `json:"reference,omitempty"`
}

type HistoryFilter struct {
	Status     Status
	MethodType destination.MethodType
	From       *time.Time
	To         *time.Time
	Limit      int
	Offset     int
}

// StatusSummary aggregates a user's payouts in one status.
type StatusSummary struct {
	Status    Status
	Count     int64
	Amount    decimal.Decimal
	Fee       decimal.Decimal
	NetAmount decimal.Decimal
}

type Stats struct {
	Currency         string           `json:"currency"`
	AvailableBalance decimal.Decimal  `json:"available_balance"`
	PendingAmount    decimal.Decimal  `json:"pending_amount"`
	TotalWithdrawn   decimal.Decimal  `json:"total_withdrawn"`
	TotalReceived    decimal.Decimal  `json:"total_received"`
	TotalFees        decimal.Decimal  `json:"total_fees"`
	Counts           map[Status]int64 `json:"counts"`
}
