package wallet

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type EntryType string

const (
	EntryTopUp         EntryType = "top_up"
	EntryWithdrawal    EntryType = "withdrawal"
	EntryEscrowRelease EntryType = "escrow_release"
	EntryEscrowRefund  EntryType = "escrow_refund"
	EntryTransferIn    EntryType = "transfer_in"
	EntryTransferOut   EntryType = "transfer_out"
	EntryFee           EntryType = "fee"
)

type Direction string

const (
	DirectionCredit Direction = "credit"
	DirectionDebit  Direction = "debit"
)

type Wallet struct {
	ID        string          `gorm:"column:id;primaryKey;type:uuid" json:"id"`
	UserID    string          `gorm:"column:user_id;type:uuid;not null;uniqueIndex" json:"user_id"`
	Balance   decimal.Decimal `gorm:"column:balance;type:numeric(20,2);not null;default:0" json:"balance"`
	Currency  string          `gorm:"column:currency;type:varchar(3);not null" json:"currency"`
	Frozen    bool            `gorm:"column:frozen;not null;default:false" json:"frozen"`
	CreatedAt time.Time       `gorm:"column:created_at;not null;default:now()" json:"created_at"`
	UpdatedAt time.Time       `gorm:"column:updated_at;not null;default:now()" json:"updated_at"`
}

func (Wallet) TableName() string { return "wallets" }

// Entry is one immutable row of the wallet ledger. BalanceAfter is the
// wallet balance right after this entry was applied.
type Entry struct {
	ID            string          `gorm:"column:id;primaryKey;type:uuid" json:"id"`
	WalletID      string          `gorm:"column:wallet_id;type:uuid;not null;index:idx_wallet_tx_wallet_created,priority:1" json:"wallet_id"`
	Type          EntryType       `gorm:"column:type;type:varchar(20);not null" json:"type"`
	Direction     Direction       `gorm:"column:direction;type:varchar(6);not null" json:"direction"`
	Amount        decimal.Decimal `gorm:"column:amount;type:numeric(20,2);not null" json:"amount"`
	BalanceAfter  decimal.Decimal `gorm:"column:balance_after;type:numeric(20,2);not null" json:"balance_after"`
	ReferenceType string          `gorm:"column:reference_type;type:varchar(32);index:idx_wallet_tx_reference,priority:1" json:"reference_type"`
	ReferenceID   string          `gorm:"column:reference_id;type:varchar(64);index:idx_wallet_tx_reference,priority:2" json:"reference_id"`
	Description   string          `gorm:"column:description;type:text" json:"description"`
	Metadata      Metadata        `gorm:"column:metadata;type:jsonb" json:"metadata,omitempty"`
	CreatedAt     time.Time       `gorm:"column:created_at;not null;index:idx_wallet_tx_wallet_created,priority:2" json:"created_at"`
}

func (Entry) TableName() string { return "wallet_transactions" }

// Signed returns the amount with the sign it had on the balance.
func (e Entry) Signed() decimal.Decimal {
	if e.Direction == DirectionDebit {
		return e.Amount.Neg()
	}
	return e.Amount
}

type Metadata map[string]string

func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (m *Metadata) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*m = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported metadata type %T", src)
	}
	return json.Unmarshal(raw, m)
}

// Posting describes a balance change requested by a caller.
type Posting struct {
	// EntryID, when set, makes the posting apply at most once.
	EntryID       string
	WalletID      string
	Amount        decimal.Decimal
	Type          EntryType
	ReferenceType string
	ReferenceID   string
	Description   string
	Metadata      Metadata
}

type EntryFilter struct {
	Type  EntryType
	Limit int
}
