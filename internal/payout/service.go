package payout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/blancagut/PaySafer-sub000/internal/alerts"
	"github.com/blancagut/PaySafer-sub000/internal/destination"
	"github.com/blancagut/PaySafer-sub000/internal/fee"
	"github.com/blancagut/PaySafer-sub000/internal/pickup"
	"github.com/blancagut/PaySafer-sub000/internal/wallet"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	maxReferenceAttempts  = 5
	defaultReconcileGrace = 5 * time.Minute
	defaultHistoryLimit   = 50
	maxHistoryLimit       = 200
)

// Alerter delivers best-effort side effects. Implementations must not block.
type Alerter interface {
	Notify(n alerts.Notification)
	CashPickupEmail(userID string, email alerts.CashPickupEmail)
}

type Limits struct {
	MinAmount decimal.Decimal
	MaxAmount decimal.Decimal
}

func DefaultLimits() Limits {
	return Limits{MinAmount: decimal.NewFromInt(10), MaxAmount: decimal.NewFromInt(50000)}
}

var deliverySpeeds = map[destination.MethodType]string{
	destination.BankTransfer:              "1-2 business days",
	destination.BankTransferInternational: "3-5 business days",
	destination.CardExpress:               "within 30 minutes",
	destination.CardStandard:              "1-3 business days",
	destination.PayPal:                    "within 24 hours",
	destination.WesternUnion:              "within minutes",
	destination.MoneyGram:                 "within minutes",
	destination.Crypto:                    "after network confirmation",
}

// settleFrom lists the states each settlement target can be reached from.
var settleFrom = map[Status][]Status{
	StatusProcessing: {StatusPending},
	StatusCompleted:  {StatusProcessing},
	StatusFailed:     {StatusPending, StatusProcessing},
}

type Option func(*Manager)

func WithLimits(l Limits) Option {
	return func(m *Manager) { m.limits = l }
}

func WithReferenceGenerator(fn func() (string, error)) Option {
	return func(m *Manager) { m.newReference = fn }
}

// WithReconcileGrace sets how old a payout must be before Reconcile may
// repair it, so sagas still in flight are left alone.
func WithReconcileGrace(d time.Duration) Option {
	return func(m *Manager) { m.reconcileGrace = d }
}

// Manager drives withdrawals from request to settlement. The wallet is
// debited before the request row exists and every later failure is repaid
// with a compensating credit.
type Manager struct {
	ledger       *wallet.Ledger
	methods      *MethodStore
	requests     RequestRepository
	fees         *fee.Engine
	alerts       Alerter
	limits       Limits
	log          *zap.Logger
	newReference func() (string, error)

	reconcileGrace time.Duration
}

func NewManager(ledger *wallet.Ledger, methods *MethodStore, requests RequestRepository, fees *fee.Engine, alerter Alerter, log *zap.Logger, opts ...Option) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	if alerter == nil {
		alerter = noopAlerter{}
	}
	m := &Manager{
		ledger:       ledger,
		methods:      methods,
		requests:     requests,
		fees:         fees,
		alerts:       alerter,
		limits:       DefaultLimits(),
		log:          log.Named("payouts"),
		newReference: pickup.NewReference,

		reconcileGrace: defaultReconcileGrace,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

type resolved struct {
	details  destination.Details
	methodID *string
	label    string
}

func (m *Manager) RequestWithdrawal(ctx context.Context, userID string, in WithdrawalInput) (*PayoutRequest, error) {
	if err := m.validateAmount(in.Amount); err != nil {
		return nil, err
	}
	dest, err := m.resolveDestination(ctx, userID, in)
	if err != nil {
		return nil, err
	}

	w, err := m.ledger.WalletForUser(ctx, userID)
	if err != nil {
		if errors.Is(err, wallet.ErrWalletNotFound) {
			return nil, wallet.ErrInsufficientBalance
		}
		return nil, err
	}
	if in.Currency != "" && !strings.EqualFold(in.Currency, w.Currency) {
		return nil, &destination.ValidationError{Field: "currency", Message: "must match wallet currency " + w.Currency}
	}

	method := dest.details.Method()
	feeAmount, net := m.fees.Quote(in.Amount, method)
	now := time.Now()
	req := &PayoutRequest{
		ID:             uuid.New().String(),
		UserID:         userID,
		WalletID:       w.ID,
		PayoutMethodID: dest.methodID,
		Amount:         in.Amount,
		Currency:       w.Currency,
		Fee:            feeAmount,
		NetAmount:      net,
		Status:         StatusPending,
		MethodType:     method,
		MethodLabel:    dest.label,
		Note:           strings.TrimSpace(in.Note),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if speed, ok := deliverySpeeds[method]; ok {
		req.DeliverySpeed = &speed
	}
	if err := m.attachPickupDetails(req, dest.details); err != nil {
		return nil, err
	}

	_, err = m.ledger.Debit(ctx, wallet.Posting{
		WalletID:      w.ID,
		Amount:        req.Amount,
		Type:          wallet.EntryWithdrawal,
		ReferenceType: ReferenceType,
		ReferenceID:   req.ID,
		Description:   fmt.Sprintf("Withdrawal via %s", method.DisplayName()),
		Metadata: wallet.Metadata{
			"fee":         req.Fee.StringFixed(2),
			"net_amount":  req.NetAmount.StringFixed(2),
			"method_type": string(method),
		},
	})
	if err != nil {
		return nil, err
	}

	if err := m.insert(ctx, req); err != nil {
		return nil, m.compensate(ctx, req, err)
	}

	m.log.Info("withdrawal requested",
		zap.String("payout_id", req.ID),
		zap.String("user_id", userID),
		zap.String("method_type", string(method)),
		zap.String("amount", req.Amount.String()),
		zap.String("fee", req.Fee.String()),
	)
	m.announceRequested(req)
	return req, nil
}

func (m *Manager) validateAmount(amount decimal.Decimal) error {
	if amount.LessThan(m.limits.MinAmount) || amount.GreaterThan(m.limits.MaxAmount) {
		return &destination.ValidationError{
			Field:   "amount",
			Message: fmt.Sprintf("must be between %s and %s", m.limits.MinAmount.StringFixed(2), m.limits.MaxAmount.StringFixed(2)),
		}
	}
	if !amount.Equal(amount.Round(2)) {
		return &destination.ValidationError{Field: "amount", Message: "must have at most 2 decimal places"}
	}
	return nil
}

func (m *Manager) resolveDestination(ctx context.Context, userID string, in WithdrawalInput) (*resolved, error) {
	if in.PayoutMethodID != "" && in.Destination != nil {
		return nil, &destination.ValidationError{Field: "destination", Message: "send either payout_method_id or destination details, not both"}
	}
	if in.PayoutMethodID != "" {
		saved, err := m.methods.Get(ctx, userID, in.PayoutMethodID)
		if err != nil {
			return nil, err
		}
		details, err := saved.Details()
		if err != nil {
			return nil, err
		}
		id := saved.ID
		return &resolved{details: details, methodID: &id, label: saved.Label}, nil
	}
	if in.Destination == nil {
		return nil, &destination.ValidationError{Field: "payout_method_id", Message: "a saved payout method or destination details are required"}
	}
	details, err := destination.Parse(*in.Destination)
	if err != nil {
		return nil, err
	}
	return &resolved{details: details, label: details.Summary()}, nil
}

func (m *Manager) attachPickupDetails(req *PayoutRequest, details destination.Details) error {
	switch d := details.(type) {
	case destination.CashPickupDetails:
		ref, err := m.newReference()
		if err != nil {
			return fmt.Errorf("failed to generate pickup reference: %w", err)
		}
		req.Reference = &ref
		req.PickupDetails = &PickupDetails{
			Kind: PickupCash,
			CashPickup: &CashPickupInfo{
				Provider:      d.Provider,
				ProviderName:  d.Provider.DisplayName(),
				Reference:     ref,
				RecipientName: d.RecipientName,
				City:          d.City,
				Country:       d.Country,
				Instructions:  pickup.Instructions(d.Provider.DisplayName()),
			},
		}
	case destination.CryptoDetails:
		req.PickupDetails = &PickupDetails{
			Kind:   PickupCrypto,
			Crypto: &CryptoInfo{Address: d.Address, Network: d.Network, Currency: d.Currency},
		}
	}
	return nil
}

// insert stores the request, drawing a new pickup reference on collision.
func (m *Manager) insert(ctx context.Context, req *PayoutRequest) error {
	for attempt := 1; ; attempt++ {
		err := m.requests.CreateRequest(ctx, req)
		if err == nil || !errors.Is(err, ErrDuplicateReference) || attempt == maxReferenceAttempts {
			return err
		}
		ref, refErr := m.newReference()
		if refErr != nil {
			return refErr
		}
		m.log.Warn("pickup reference collision", zap.String("payout_id", req.ID), zap.Int("attempt", attempt))
		req.Reference = &ref
		req.PickupDetails.CashPickup.Reference = ref
	}
}

// compensate returns the debited amount after the request could not be
// stored. It must not be cut short by the caller's context.
func (m *Manager) compensate(ctx context.Context, req *PayoutRequest, cause error) error {
	_, err := m.ledger.Credit(context.WithoutCancel(ctx), wallet.Posting{
		EntryID:       refundEntryID(req.ID),
		WalletID:      req.WalletID,
		Amount:        req.Amount,
		Type:          wallet.EntryEscrowRefund,
		ReferenceType: ReferenceType,
		ReferenceID:   req.ID,
		Description:   "Withdrawal reversed: payout could not be recorded",
		Metadata:      wallet.Metadata{"compensation": "true"},
	})
	if err != nil && !errors.Is(err, wallet.ErrDuplicateEntry) {
		m.log.Error("LEDGER DIVERGENCE: compensating credit failed after withdrawal debit",
			zap.String("payout_id", req.ID),
			zap.String("wallet_id", req.WalletID),
			zap.String("amount", req.Amount.String()),
			zap.NamedError("cause", cause),
			zap.Error(err),
		)
		return fmt.Errorf("%w: payout %s", ErrLedgerDivergence, req.ID)
	}
	m.log.Warn("withdrawal compensated",
		zap.String("payout_id", req.ID),
		zap.String("wallet_id", req.WalletID),
		zap.String("amount", req.Amount.String()),
		zap.NamedError("cause", cause),
	)
	return fmt.Errorf("%w: %v", ErrPersistence, cause)
}

func (m *Manager) Get(ctx context.Context, userID string, id string) (*PayoutRequest, error) {
	req, err := m.requests.GetRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.UserID != userID {
		return nil, ErrPayoutNotFound
	}
	return req, nil
}

// Cancel refunds the gross amount of a pending payout. A second call fails
// with ErrNotPending and credits nothing.
func (m *Manager) Cancel(ctx context.Context, userID string, id string) (*PayoutRequest, error) {
	req, err := m.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if req.Status != StatusPending {
		return nil, ErrNotPending
	}

	moved, err := m.refundOnTransition(ctx, req, StatusCancelled, "", "Withdrawal cancelled")
	if err != nil {
		return nil, err
	}
	if !moved {
		return nil, ErrNotPending
	}

	req.Status = StatusCancelled
	req.UpdatedAt = time.Now()
	m.log.Info("withdrawal cancelled", zap.String("payout_id", req.ID), zap.String("user_id", userID))
	m.alerts.Notify(alerts.Notification{
		UserID:        userID,
		Type:          alerts.TypePayoutCancelled,
		Title:         "Withdrawal cancelled",
		Message:       fmt.Sprintf("%s %s has been returned to your wallet.", req.Amount.StringFixed(2), req.Currency),
		ReferenceType: ReferenceType,
		ReferenceID:   req.ID,
	})
	return req, nil
}

// Settle is the entry point for the external settlement process. Repeating
// the current status is a no-op; moving to failed refunds exactly once.
func (m *Manager) Settle(ctx context.Context, in SettleInput) (*PayoutRequest, error) {
	if _, ok := settleFrom[in.Status]; !ok {
		return nil, &destination.ValidationError{Field: "status", Message: "must be processing, completed or failed"}
	}
	req, err := m.requests.GetRequest(ctx, in.PayoutID)
	if err != nil {
		return nil, err
	}
	if req.Status == in.Status {
		return req, nil
	}
	if !canSettle(req.Status, in.Status) {
		return nil, fmt.Errorf("%w: cannot move payout from %s to %s", ErrConflict, req.Status, in.Status)
	}

	var moved bool
	if in.Status == StatusFailed {
		moved, err = m.refundOnTransition(ctx, req, StatusFailed, in.Reference, "Withdrawal failed")
	} else {
		moved, err = m.requests.TransitionStatus(ctx, req.ID, []Status{req.Status}, in.Status, optionalRef(in.Reference))
		if err != nil {
			err = fmt.Errorf("%w: %v", ErrPersistence, err)
		}
	}
	if err != nil {
		return nil, err
	}

	current, err := m.requests.GetRequest(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	if !moved {
		// a concurrent call changed the status first
		if current.Status == in.Status {
			return current, nil
		}
		return nil, fmt.Errorf("%w: cannot move payout from %s to %s", ErrConflict, current.Status, in.Status)
	}

	m.log.Info("payout settled",
		zap.String("payout_id", req.ID),
		zap.String("from", string(req.Status)),
		zap.String("to", string(in.Status)),
		zap.String("settlement_reference", in.Reference),
	)
	m.alerts.Notify(alerts.Notification{
		UserID:        current.UserID,
		Type:          alerts.TypePayoutUpdated,
		Title:         "Withdrawal " + string(current.Status),
		Message:       fmt.Sprintf("Your withdrawal of %s %s is now %s.", current.Amount.StringFixed(2), current.Currency, current.Status),
		ReferenceType: ReferenceType,
		ReferenceID:   current.ID,
	})
	return current, nil
}

// refundEntryID is the ledger entry id of the one refund a payout can ever
// receive. Cancel, failed settlement, compensation and Reconcile all post
// under it, so the wallet rejects a second refund.
func refundEntryID(payoutID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("payout-refund:"+payoutID)).String()
}

func optionalRef(ref string) *string {
	if ref == "" {
		return nil
	}
	return &ref
}

func canSettle(from, to Status) bool {
	for _, s := range settleFrom[to] {
		if s == from {
			return true
		}
	}
	return false
}

// refundOnTransition claims the transition first so only one caller can
// refund, then credits the gross amount back. If the credit fails the
// status is restored so the refund can be retried.
func (m *Manager) refundOnTransition(ctx context.Context, req *PayoutRequest, to Status, settlementRef string, description string) (bool, error) {
	moved, err := m.requests.TransitionStatus(ctx, req.ID, []Status{req.Status}, to, optionalRef(settlementRef))
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if !moved {
		return false, nil
	}

	ctx = context.WithoutCancel(ctx)
	_, err = m.ledger.Credit(ctx, wallet.Posting{
		EntryID:       refundEntryID(req.ID),
		WalletID:      req.WalletID,
		Amount:        req.Amount,
		Type:          wallet.EntryEscrowRefund,
		ReferenceType: ReferenceType,
		ReferenceID:   req.ID,
		Description:   description,
		Metadata:      wallet.Metadata{"status": string(to)},
	})
	if err == nil || errors.Is(err, wallet.ErrDuplicateEntry) {
		return true, nil
	}

	var previousRef *string
	if settlementRef != "" {
		previousRef = new(string)
		if req.SettlementReference != nil {
			*previousRef = *req.SettlementReference
		}
	}
	restored, restoreErr := m.requests.TransitionStatus(ctx, req.ID, []Status{to}, req.Status, previousRef)
	if restoreErr != nil || !restored {
		m.log.Error("LEDGER DIVERGENCE: refund failed and payout status could not be restored",
			zap.String("payout_id", req.ID),
			zap.String("wallet_id", req.WalletID),
			zap.String("status", string(to)),
			zap.Error(err),
			zap.NamedError("restore_error", restoreErr),
		)
		return false, fmt.Errorf("%w: payout %s", ErrLedgerDivergence, req.ID)
	}
	m.log.Error("refund failed, payout status restored",
		zap.String("payout_id", req.ID),
		zap.String("status", string(req.Status)),
		zap.Error(err),
	)
	return false, fmt.Errorf("%w: %v", ErrPersistence, err)
}

type ReconcileAction string

const (
	ReconcileNone     ReconcileAction = "none"
	ReconcileRefunded ReconcileAction = "refunded"
)

// Reconcile repairs a payout whose saga stopped between its two steps, for
// example after a crash. Two cases are refunded:
//   - a withdrawal debit whose payout row was never stored
//   - a cancelled or failed payout that never received its refund
//
// Payouts younger than the reconcile grace period are rejected with
// ErrConflict because their saga may still be running.
func (m *Manager) Reconcile(ctx context.Context, payoutID string) (ReconcileAction, error) {
	entries, err := m.ledger.EntriesByReference(ctx, ReferenceType, payoutID)
	if err != nil {
		return ReconcileNone, err
	}
	var debit *wallet.Entry
	for i := range entries {
		switch entries[i].Type {
		case wallet.EntryEscrowRefund:
			return ReconcileNone, nil
		case wallet.EntryWithdrawal:
			debit = &entries[i]
		}
	}
	if debit == nil {
		return ReconcileNone, nil
	}

	req, err := m.requests.GetRequest(ctx, payoutID)
	var since time.Time
	var description string
	switch {
	case errors.Is(err, ErrNotFound):
		since = debit.CreatedAt
		description = "Withdrawal reversed: payout was never recorded"
	case err != nil:
		return ReconcileNone, err
	case req.Status == StatusCancelled || req.Status == StatusFailed:
		since = req.UpdatedAt
		description = "Withdrawal " + string(req.Status)
	default:
		return ReconcileNone, nil
	}
	if time.Since(since) < m.reconcileGrace {
		return ReconcileNone, fmt.Errorf("%w: payout %s changed less than %s ago", ErrConflict, payoutID, m.reconcileGrace)
	}

	_, err = m.ledger.Credit(ctx, wallet.Posting{
		EntryID:       refundEntryID(payoutID),
		WalletID:      debit.WalletID,
		Amount:        debit.Amount,
		Type:          wallet.EntryEscrowRefund,
		ReferenceType: ReferenceType,
		ReferenceID:   payoutID,
		Description:   description,
		Metadata:      wallet.Metadata{"reconciled": "true"},
	})
	if errors.Is(err, wallet.ErrDuplicateEntry) {
		return ReconcileNone, nil
	}
	if err != nil {
		return ReconcileNone, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	m.log.Warn("payout reconciled",
		zap.String("payout_id", payoutID),
		zap.String("wallet_id", debit.WalletID),
		zap.String("amount", debit.Amount.String()),
	)
	return ReconcileRefunded, nil
}

func (m *Manager) History(ctx context.Context, userID string, filter HistoryFilter) ([]PayoutRequest, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, &destination.ValidationError{Field: "status", Message: "unknown status " + string(filter.Status)}
	}
	if filter.MethodType != "" && !filter.MethodType.Valid() {
		return nil, &destination.ValidationError{Field: "method_type", Message: "unknown method type " + string(filter.MethodType)}
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultHistoryLimit
	}
	if filter.Limit > maxHistoryLimit {
		filter.Limit = maxHistoryLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return m.requests.ListRequests(ctx, userID, filter)
}

func (m *Manager) Stats(ctx context.Context, userID string) (*Stats, error) {
	summaries, err := m.requests.SummarizeRequests(ctx, userID)
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		AvailableBalance: decimal.Zero,
		PendingAmount:    decimal.Zero,
		TotalWithdrawn:   decimal.Zero,
		TotalReceived:    decimal.Zero,
		TotalFees:        decimal.Zero,
		Counts:           make(map[Status]int64),
	}
	w, err := m.ledger.WalletForUser(ctx, userID)
	switch {
	case err == nil:
		stats.AvailableBalance = w.Balance
		stats.Currency = w.Currency
	case !errors.Is(err, wallet.ErrWalletNotFound):
		return nil, err
	}

	for _, s := range summaries {
		stats.Counts[s.Status] = s.Count
		switch s.Status {
		case StatusPending, StatusProcessing:
			stats.PendingAmount = stats.PendingAmount.Add(s.Amount)
		case StatusCompleted:
			stats.TotalWithdrawn = stats.TotalWithdrawn.Add(s.Amount)
			stats.TotalReceived = stats.TotalReceived.Add(s.NetAmount)
			stats.TotalFees = stats.TotalFees.Add(s.Fee)
		}
	}
	return stats, nil
}

func (m *Manager) announceRequested(req *PayoutRequest) {
	m.alerts.Notify(alerts.Notification{
		UserID:        req.UserID,
		Type:          alerts.TypePayoutRequested,
		Title:         "Withdrawal requested",
		Message:       fmt.Sprintf("Your withdrawal of %s %s via %s is pending.", req.Amount.StringFixed(2), req.Currency, req.MethodLabel),
		ReferenceType: ReferenceType,
		ReferenceID:   req.ID,
	})
	if req.PickupDetails == nil || req.PickupDetails.CashPickup == nil {
		return
	}
	cash := req.PickupDetails.CashPickup
	m.alerts.CashPickupEmail(req.UserID, alerts.CashPickupEmail{
		PayoutID:      req.ID,
		Reference:     cash.Reference,
		Provider:      cash.ProviderName,
		RecipientName: cash.RecipientName,
		City:          cash.City,
		Country:       cash.Country,
		Amount:        req.Amount,
		NetAmount:     req.NetAmount,
		Currency:      req.Currency,
		Instructions:  cash.Instructions,
	})
}

type noopAlerter struct{}

func (noopAlerter) Notify(alerts.Notification) {}

func (noopAlerter) CashPickupEmail(string, alerts.CashPickupEmail) {}
