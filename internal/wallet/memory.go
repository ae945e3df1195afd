package wallet

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository keeps wallets in process. The mutex plays the role of the
// row lock, so debit and credit stay atomic.
type MemoryRepository struct {
	mu      sync.Mutex
	wallets map[string]*Wallet
	byUser  map[string]string
	entries []Entry
	ids     map[string]struct{}
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		wallets: make(map[string]*Wallet),
		byUser:  make(map[string]string),
		ids:     make(map[string]struct{}),
	}
}

func (r *MemoryRepository) GetWallet(ctx context.Context, walletID string) (*Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.wallets[walletID]
	if !ok {
		return nil, ErrWalletNotFound
	}
	cp := *w
	return &cp, nil
}

func (r *MemoryRepository) GetWalletByUser(ctx context.Context, userID string) (*Wallet, error) {
	r.mu.Lock()
	id, ok := r.byUser[userID]
	r.mu.Unlock()
	if !ok {
		return nil, ErrWalletNotFound
	}
	return r.GetWallet(ctx, id)
}

func (r *MemoryRepository) CreateWallet(ctx context.Context, userID string, currency string) (*Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byUser[userID]; ok {
		return nil, ErrWalletExists
	}
	now := time.Now()
	w := &Wallet{
		ID:        uuid.New().String(),
		UserID:    userID,
		Currency:  currency,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.wallets[w.ID] = w
	r.byUser[userID] = w.ID
	cp := *w
	return &cp, nil
}

func (r *MemoryRepository) SetFrozen(ctx context.Context, walletID string, frozen bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.wallets[walletID]
	if !ok {
		return ErrWalletNotFound
	}
	w.Frozen = frozen
	w.UpdatedAt = time.Now()
	return nil
}

func (r *MemoryRepository) ApplyDebit(ctx context.Context, entry *Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.wallets[entry.WalletID]
	if !ok {
		return ErrWalletNotFound
	}
	if _, dup := r.ids[entry.ID]; dup && entry.ID != "" {
		return ErrDuplicateEntry
	}
	if w.Frozen {
		return ErrWalletFrozen
	}
	if w.Balance.LessThan(entry.Amount) {
		return ErrInsufficientBalance
	}
	w.Balance = w.Balance.Sub(entry.Amount)
	entry.Direction = DirectionDebit
	r.appendLocked(w, entry)
	return nil
}

func (r *MemoryRepository) ApplyCredit(ctx context.Context, entry *Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.wallets[entry.WalletID]
	if !ok {
		return ErrWalletNotFound
	}
	if _, dup := r.ids[entry.ID]; dup && entry.ID != "" {
		return ErrDuplicateEntry
	}
	w.Balance = w.Balance.Add(entry.Amount)
	entry.Direction = DirectionCredit
	r.appendLocked(w, entry)
	return nil
}

func (r *MemoryRepository) appendLocked(w *Wallet, entry *Entry) {
	now := time.Now()
	w.UpdatedAt = now
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	entry.BalanceAfter = w.Balance
	entry.CreatedAt = now
	r.ids[entry.ID] = struct{}{}
	r.entries = append(r.entries, *entry)
}

func (r *MemoryRepository) ListEntries(ctx context.Context, walletID string, filter EntryFilter) ([]Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Entry
	for _, e := range r.entries {
		if e.WalletID != walletID || (filter.Type != "" && e.Type != filter.Type) {
			continue
		}
		out = append(out, e)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func (r *MemoryRepository) EntriesByReference(ctx context.Context, referenceType string, referenceID string) ([]Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Entry
	for _, e := range r.entries {
		if e.ReferenceType == referenceType && e.ReferenceID == referenceID {
			out = append(out, e)
		}
	}
	return out, nil
}
