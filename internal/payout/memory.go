package payout

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// MemoryRepository implements MethodRepository and RequestRepository in
// process. One mutex covers both tables so the guarded delete sees payouts
// and methods consistently.
type MemoryRepository struct {
	mu       sync.Mutex
	methods  map[string]*PayoutMethod
	requests map[string]*PayoutRequest
	refs     map[string]string
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		methods:  make(map[string]*PayoutMethod),
		requests: make(map[string]*PayoutRequest),
		refs:     make(map[string]string),
	}
}

func (r *MemoryRepository) ListMethods(ctx context.Context, userID string) ([]PayoutMethod, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []PayoutMethod
	for _, m := range r.methods {
		if m.UserID == userID {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IsDefault != out[j].IsDefault {
			return out[i].IsDefault
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r *MemoryRepository) GetMethod(ctx context.Context, id string) (*PayoutMethod, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.methods[id]
	if !ok {
		return nil, ErrMethodNotFound
	}
	cp := *m
	return &cp, nil
}

func (r *MemoryRepository) CreateMethod(ctx context.Context, m *PayoutMethod, limit int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, existing := range r.methods {
		if existing.UserID == m.UserID {
			count++
		}
	}
	if limit > 0 && count >= limit {
		return ErrMethodLimit
	}
	if count == 0 {
		m.IsDefault = true
	}
	if m.IsDefault {
		r.clearDefaultLocked(m.UserID)
	}
	cp := *m
	r.methods[m.ID] = &cp
	return nil
}

func (r *MemoryRepository) DeleteMethod(ctx context.Context, userID string, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.methods[id]
	if !ok || m.UserID != userID {
		return ErrMethodNotFound
	}
	for _, req := range r.requests {
		if req.PayoutMethodID != nil && *req.PayoutMethodID == id && !req.Status.Terminal() {
			return ErrMethodInUse
		}
	}
	delete(r.methods, id)
	return nil
}

func (r *MemoryRepository) SetDefaultMethod(ctx context.Context, userID string, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.methods[id]
	if !ok || m.UserID != userID {
		return ErrMethodNotFound
	}
	r.clearDefaultLocked(userID)
	m.IsDefault = true
	m.UpdatedAt = time.Now()
	return nil
}

func (r *MemoryRepository) clearDefaultLocked(userID string) {
	for _, m := range r.methods {
		if m.UserID == userID && m.IsDefault {
			m.IsDefault = false
			m.UpdatedAt = time.Now()
		}
	}
}

func (r *MemoryRepository) CreateRequest(ctx context.Context, req *PayoutRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if req.Reference != nil {
		if _, taken := r.refs[*req.Reference]; taken {
			return ErrDuplicateReference
		}
		r.refs[*req.Reference] = req.ID
	}
	cp := *req
	r.requests[req.ID] = &cp
	return nil
}

func (r *MemoryRepository) GetRequest(ctx context.Context, id string) (*PayoutRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requests[id]
	if !ok {
		return nil, ErrPayoutNotFound
	}
	cp := *req
	return &cp, nil
}

func (r *MemoryRepository) ListRequests(ctx context.Context, userID string, filter HistoryFilter) ([]PayoutRequest, error) {
	r.mu.Lock()
	var out []PayoutRequest
	for _, req := range r.requests {
		if req.UserID != userID ||
			(filter.Status != "" && req.Status != filter.Status) ||
			(filter.MethodType != "" && req.MethodType != filter.MethodType) ||
			(filter.From != nil && req.CreatedAt.Before(*filter.From)) ||
			(filter.To != nil && !req.CreatedAt.Before(*filter.To)) {
			continue
		}
		out = append(out, *req)
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *MemoryRepository) SummarizeRequests(ctx context.Context, userID string) ([]StatusSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	byStatus := make(map[Status]*StatusSummary)
	for _, req := range r.requests {
		if req.UserID != userID {
			continue
		}
		s, ok := byStatus[req.Status]
		if !ok {
			s = &StatusSummary{Status: req.Status, Amount: decimal.Zero, Fee: decimal.Zero, NetAmount: decimal.Zero}
			byStatus[req.Status] = s
		}
		s.Count++
		s.Amount = s.Amount.Add(req.Amount)
		s.Fee = s.Fee.Add(req.Fee)
		s.NetAmount = s.NetAmount.Add(req.NetAmount)
	}
	out := make([]StatusSummary, 0, len(byStatus))
	for _, s := range byStatus {
		out = append(out, *s)
	}
	return out, nil
}

func (r *MemoryRepository) TransitionStatus(ctx context.Context, id string, from []Status, to Status, settlementRef *string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requests[id]
	if !ok {
		return false, nil
	}
	matched := false
	for _, s := range from {
		if req.Status == s {
			matched = true
			break
		}
	}
	if !matched {
		return false, nil
	}
	now := time.Now()
	req.Status = to
	req.UpdatedAt = now
	if to == StatusCompleted {
		req.CompletedAt = &now
	}
	if settlementRef != nil {
		req.SettlementReference = nil
		if *settlementRef != "" {
			ref := *settlementRef
			req.SettlementReference = &ref
		}
	}
	return true, nil
}
