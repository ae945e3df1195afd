package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/blancagut/PaySafer-sub000/internal/auth"
	"github.com/blancagut/PaySafer-sub000/internal/destination"
	"github.com/blancagut/PaySafer-sub000/internal/fee"
	"github.com/blancagut/PaySafer-sub000/internal/payout"
	"github.com/blancagut/PaySafer-sub000/internal/wallet"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSecret        = "0123456789abcdef0123456789abcdef"
	testSettlementKey = "settle-me"
)

type apiEnv struct {
	router *gin.Engine
	ledger *wallet.Ledger
	token  string
	userID string
}

func newAPIEnv(t *testing.T, settlementKey string) *apiEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ledger := wallet.NewLedger(wallet.NewMemoryRepository(), nil)
	repo := payout.NewMemoryRepository()
	methods := payout.NewMethodStore(repo, 0, nil)
	manager := payout.NewManager(ledger, methods, repo, fee.NewEngine(nil), nil, nil)
	verifier := auth.NewVerifier(testSecret)

	r := gin.New()
	NewHandler(manager, methods, ledger, verifier, Options{SettlementKey: settlementKey}, nil).Register(r)

	userID := uuid.NewString()
	token, err := verifier.Issue(userID, time.Hour)
	require.NoError(t, err)
	return &apiEnv{router: r, ledger: ledger, token: token, userID: userID}
}

func (e *apiEnv) fund(t *testing.T, amount string) *wallet.Wallet {
	t.Helper()
	ctx := context.Background()
	w, err := e.ledger.Open(ctx, e.userID, "EUR")
	require.NoError(t, err)
	_, err = e.ledger.Credit(ctx, wallet.Posting{
		WalletID:      w.ID,
		Amount:        decimal.RequireFromString(amount),
		Type:          wallet.EntryTopUp,
		ReferenceType: "stripe",
		ReferenceID:   uuid.NewString(),
	})
	require.NoError(t, err)
	return w
}

func (e *apiEnv) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.token)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func errorMessage(t *testing.T, w *httptest.ResponseRecorder) string {
	return decode[map[string]string](t, w)["error"]
}

func TestRequiresBearerToken(t *testing.T) {
	env := newAPIEnv(t, "")
	env.token = "nope"

	w := env.do(t, http.MethodGet, "/api/payouts", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "unauthenticated", errorMessage(t, w))
}

func TestWithdrawalFlow(t *testing.T) {
	env := newAPIEnv(t, "")
	env.fund(t, "500")

	w := env.do(t, http.MethodPost, "/api/payout-methods", map[string]any{
		"type":           "bank_transfer",
		"bank_name":      "N26",
		"account_number": "DE0012345678",
		"label":          "Main account",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	method := decode[payout.PayoutMethod](t, w)
	assert.True(t, method.IsDefault)

	w = env.do(t, http.MethodGet, "/api/payout-methods", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[map[string][]payout.PayoutMethod](t, w)["payout_methods"], 1)

	w = env.do(t, http.MethodPost, "/api/payouts", map[string]any{"amount": "200", "payout_method_id": method.ID})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	req := decode[payout.PayoutRequest](t, w)
	assert.Equal(t, payout.StatusPending, req.Status)
	assert.Equal(t, "Main account", req.MethodLabel)
	assert.Equal(t, "0.5", req.Fee.String())

	w = env.do(t, http.MethodGet, "/api/payouts/"+req.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodDelete, "/api/payout-methods/"+method.ID, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(t, http.MethodGet, "/api/wallet", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "300", decode[wallet.Wallet](t, w).Balance.String())

	w = env.do(t, http.MethodGet, "/api/payouts/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode[payout.Stats](t, w)
	assert.Equal(t, "200", stats.PendingAmount.String())
	assert.Equal(t, int64(1), stats.Counts[payout.StatusPending])

	w = env.do(t, http.MethodPost, "/api/payouts/"+req.ID+"/cancel", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, payout.StatusCancelled, decode[payout.PayoutRequest](t, w).Status)

	w = env.do(t, http.MethodPost, "/api/payouts/"+req.ID+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "conflict: only pending payouts can be cancelled", errorMessage(t, w))

	w = env.do(t, http.MethodGet, "/api/wallet/transactions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	entries := decode[map[string][]wallet.Entry](t, w)["transactions"]
	require.Len(t, entries, 3)
	assert.Equal(t, wallet.EntryEscrowRefund, entries[2].Type)

	w = env.do(t, http.MethodGet, "/api/payouts?status=cancelled", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[map[string][]payout.PayoutRequest](t, w)["payouts"], 1)

	w = env.do(t, http.MethodDelete, "/api/payout-methods/"+method.ID, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestWithdrawalErrors(t *testing.T) {
	env := newAPIEnv(t, "")
	bank := map[string]any{"type": "bank_transfer", "account_number": "1234"}

	w := env.do(t, http.MethodPost, "/api/payouts", map[string]any{"amount": "50", "destination": bank})
	assert.Equal(t, http.StatusPaymentRequired, w.Code, "no wallet")

	funded := env.fund(t, "100")

	w = env.do(t, http.MethodPost, "/api/payouts", map[string]any{"amount": "5", "destination": bank})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, errorMessage(t, w), "amount")

	w = env.do(t, http.MethodPost, "/api/payouts", map[string]any{"amount": "20", "destination": map[string]any{"type": "crypto"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "crypto_address: is required", errorMessage(t, w))

	w = env.do(t, http.MethodPost, "/api/payouts", `{"amount":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid request body", errorMessage(t, w))

	w = env.do(t, http.MethodPost, "/api/payouts", map[string]any{"amount": "150", "destination": bank})
	assert.Equal(t, http.StatusPaymentRequired, w.Code)
	assert.Equal(t, "insufficient balance", errorMessage(t, w))

	w = env.do(t, http.MethodPost, "/api/payouts", map[string]any{"amount": "20", "payout_method_id": uuid.NewString()})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodPost, "/api/payouts", map[string]any{"amount": "20", "payout_method_id": uuid.NewString(), "destination": bank})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "destination: send either payout_method_id or destination details, not both", errorMessage(t, w))

	require.NoError(t, env.ledger.SetFrozen(context.Background(), funded.ID, true))
	w = env.do(t, http.MethodPost, "/api/payouts", map[string]any{"amount": "20", "destination": bank})
	assert.Equal(t, http.StatusLocked, w.Code)

	w = env.do(t, http.MethodPost, fmt.Sprintf("/api/payouts/%s/cancel", uuid.NewString()), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodGet, "/api/payouts?limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = env.do(t, http.MethodGet, "/api/payouts?from=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSettlementEndpoint(t *testing.T) {
	env := newAPIEnv(t, testSettlementKey)
	env.fund(t, "500")

	w := env.do(t, http.MethodPost, "/api/payouts", map[string]any{
		"amount":      "100",
		"destination": map[string]any{"type": "western_union", "recipient_name": "Ana Ruiz", "recipient_city": "Lima", "recipient_country": "PE"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	req := decode[payout.PayoutRequest](t, w)
	require.NotNil(t, req.Reference)
	require.NotNil(t, req.PickupDetails)
	assert.Equal(t, *req.Reference, req.PickupDetails.CashPickup.Reference)

	path := "/internal/payouts/" + req.ID + "/settle"
	w = env.do(t, http.MethodPost, path, map[string]any{"status": "failed"}, "X-Settlement-Key", "wrong")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	for i := 0; i < 2; i++ {
		w = env.do(t, http.MethodPost, path, map[string]any{"status": "failed", "reference": "wu-rejected"}, "X-Settlement-Key", testSettlementKey)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, payout.StatusFailed, decode[payout.PayoutRequest](t, w).Status)
	}

	w = env.do(t, http.MethodGet, "/api/wallet", nil)
	assert.Equal(t, "500", decode[wallet.Wallet](t, w).Balance.String())

	w = env.do(t, http.MethodPost, path, map[string]any{"status": "completed"}, "X-Settlement-Key", testSettlementKey)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestHistoryDateRangeIncludesNamedDays(t *testing.T) {
	env := newAPIEnv(t, "")
	env.fund(t, "100")
	w := env.do(t, http.MethodPost, "/api/payouts", map[string]any{"amount": "20", "destination": map[string]any{"type": "bank_transfer", "account_number": "1234"}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	today := time.Now().UTC().Format(time.DateOnly)
	yesterday := time.Now().UTC().AddDate(0, 0, -1).Format(time.DateOnly)
	for _, tc := range []struct {
		query string
		want  int
	}{
		{"from=" + today + "&to=" + today, 1},
		{"to=" + today, 1},
		{"to=" + yesterday, 0},
		{"from=" + today, 1},
	} {
		w = env.do(t, http.MethodGet, "/api/payouts?"+tc.query, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Len(t, decode[map[string][]payout.PayoutRequest](t, w)["payouts"], tc.want, tc.query)
	}
}

func TestParseTimeDateOnlyUpperBound(t *testing.T) {
	from, err := parseTime("from", "2024-03-10")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC), *from)

	to, err := parseTime("to", "2024-03-10")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC), *to)

	exact, err := parseTime("to", "2024-03-10T15:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 10, 15, 0, 0, 0, time.UTC), *exact)
}

func TestReconcileEndpoint(t *testing.T) {
	env := newAPIEnv(t, testSettlementKey)
	env.fund(t, "100")
	w := env.do(t, http.MethodPost, "/api/payouts", map[string]any{"amount": "40", "destination": map[string]any{"type": "bank_transfer", "account_number": "1234"}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	req := decode[payout.PayoutRequest](t, w)

	path := "/internal/payouts/" + req.ID + "/reconcile"
	w = env.do(t, http.MethodPost, path, nil, "X-Settlement-Key", "wrong")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(t, http.MethodPost, path, nil, "X-Settlement-Key", testSettlementKey)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "none", decode[map[string]string](t, w)["action"])

	w = env.do(t, http.MethodGet, "/api/wallet", nil)
	assert.Equal(t, "60", decode[wallet.Wallet](t, w).Balance.String())
}

func TestSettlementDisabledWithoutKey(t *testing.T) {
	env := newAPIEnv(t, "")
	w := env.do(t, http.MethodPost, "/internal/payouts/"+uuid.NewString()+"/settle", map[string]any{"status": "failed"}, "X-Settlement-Key", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStatusFor(t *testing.T) {
	for _, tc := range []struct {
		err  error
		want int
	}{
		{auth.ErrUnauthenticated, http.StatusUnauthorized},
		{&destination.ValidationError{Field: "amount"}, http.StatusBadRequest},
		{wallet.ErrInsufficientBalance, http.StatusPaymentRequired},
		{wallet.ErrWalletFrozen, http.StatusLocked},
		{payout.ErrMethodNotFound, http.StatusNotFound},
		{payout.ErrMethodInUse, http.StatusConflict},
		{fmt.Errorf("%w: db gone", payout.ErrPersistence), http.StatusInternalServerError},
		{payout.ErrLedgerDivergence, http.StatusInternalServerError},
	} {
		assert.Equal(t, tc.want, statusFor(tc.err), tc.err.Error())
	}
}

func TestServerErrorsAreNotEchoed(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewHandler(nil, nil, nil, nil, Options{}, nil)
	r := gin.New()
	r.GET("/boom", func(c *gin.Context) {
		h.writeError(c, fmt.Errorf("%w: pq: relation \"payout_requests\" does not exist", payout.ErrPersistence))
	})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"internal error"}`, w.Body.String())
}
