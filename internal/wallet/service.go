package wallet

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Ledger is the only way balances change. Every successful Debit or Credit
// leaves exactly one new Entry whose BalanceAfter equals the wallet balance.
type Ledger struct {
	repo Repository
	log  *zap.Logger
}

func NewLedger(repo Repository, log *zap.Logger) *Ledger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Ledger{repo: repo, log: log.Named("ledger")}
}

// Open returns the user's wallet, creating it in currency when missing.
func (l *Ledger) Open(ctx context.Context, userID string, currency string) (*Wallet, error) {
	w, err := l.repo.GetWalletByUser(ctx, userID)
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, ErrWalletNotFound) {
		return nil, err
	}

	w, err = l.repo.CreateWallet(ctx, userID, currency)
	if errors.Is(err, ErrWalletExists) {
		// lost the race to a concurrent Open
		return l.repo.GetWalletByUser(ctx, userID)
	}
	if err != nil {
		return nil, err
	}
	l.log.Info("wallet opened", zap.String("wallet_id", w.ID), zap.String("user_id", userID), zap.String("currency", currency))
	return w, nil
}

func (l *Ledger) Wallet(ctx context.Context, walletID string) (*Wallet, error) {
	return l.repo.GetWallet(ctx, walletID)
}

func (l *Ledger) WalletForUser(ctx context.Context, userID string) (*Wallet, error) {
	return l.repo.GetWalletByUser(ctx, userID)
}

func (l *Ledger) SetFrozen(ctx context.Context, walletID string, frozen bool) error {
	if err := l.repo.SetFrozen(ctx, walletID, frozen); err != nil {
		return err
	}
	l.log.Info("wallet freeze flag changed", zap.String("wallet_id", walletID), zap.Bool("frozen", frozen))
	return nil
}

func (l *Ledger) Debit(ctx context.Context, p Posting) (*Entry, error) {
	entry, err := newEntry(p)
	if err != nil {
		return nil, err
	}
	if err := l.repo.ApplyDebit(ctx, entry); err != nil {
		if errors.Is(err, ErrInsufficientBalance) || errors.Is(err, ErrWalletFrozen) {
			l.log.Info("debit rejected", zap.String("wallet_id", p.WalletID), zap.String("amount", p.Amount.String()), zap.Error(err))
			return nil, err
		}
		return nil, fmt.Errorf("debit %s: %w", p.WalletID, err)
	}
	l.logApplied(entry)
	return entry, nil
}

func (l *Ledger) Credit(ctx context.Context, p Posting) (*Entry, error) {
	entry, err := newEntry(p)
	if err != nil {
		return nil, err
	}
	if err := l.repo.ApplyCredit(ctx, entry); err != nil {
		return nil, fmt.Errorf("credit %s: %w", p.WalletID, err)
	}
	l.logApplied(entry)
	return entry, nil
}

func (l *Ledger) Entries(ctx context.Context, walletID string, filter EntryFilter) ([]Entry, error) {
	return l.repo.ListEntries(ctx, walletID, filter)
}

func (l *Ledger) EntriesByReference(ctx context.Context, referenceType string, referenceID string) ([]Entry, error) {
	return l.repo.EntriesByReference(ctx, referenceType, referenceID)
}

func newEntry(p Posting) (*Entry, error) {
	if !p.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if p.WalletID == "" {
		return nil, ErrWalletNotFound
	}
	return &Entry{
		ID:            p.EntryID,
		WalletID:      p.WalletID,
		Type:          p.Type,
		Amount:        p.Amount,
		ReferenceType: p.ReferenceType,
		ReferenceID:   p.ReferenceID,
		Description:   p.Description,
		Metadata:      p.Metadata,
	}, nil
}

func (l *Ledger) logApplied(e *Entry) {
	l.log.Info("ledger entry applied",
		zap.String("entry_id", e.ID),
		zap.String("wallet_id", e.WalletID),
		zap.String("type", string(e.Type)),
		zap.String("direction", string(e.Direction)),
		zap.String("amount", e.Amount.String()),
		zap.String("balance_after", e.BalanceAfter.String()),
		zap.String("reference_id", e.ReferenceID),
	)
}
