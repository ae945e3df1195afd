package httpapi

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/blancagut/PaySafer-sub000/internal/auth"
	"github.com/blancagut/PaySafer-sub000/internal/destination"
	"github.com/blancagut/PaySafer-sub000/internal/payout"
	"github.com/blancagut/PaySafer-sub000/internal/wallet"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const settlementKeyHeader = "X-Settlement-Key"

type Handler struct {
	payouts         *payout.Manager
	methods         *payout.MethodStore
	ledger          *wallet.Ledger
	verifier        *auth.Verifier
	settlementKey   string
	defaultCurrency string
	log             *zap.Logger
}

type Options struct {
	SettlementKey   string
	DefaultCurrency string
}

func NewHandler(payouts *payout.Manager, methods *payout.MethodStore, ledger *wallet.Ledger, verifier *auth.Verifier, opts Options, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.DefaultCurrency == "" {
		opts.DefaultCurrency = "EUR"
	}
	return &Handler{
		payouts:         payouts,
		methods:         methods,
		ledger:          ledger,
		verifier:        verifier,
		settlementKey:   opts.SettlementKey,
		defaultCurrency: opts.DefaultCurrency,
		log:             log.Named("http"),
	}
}

// Register mounts the user API under bearer auth. The internal settlement
// routes are only mounted when a settlement key is configured.
func (h *Handler) Register(r *gin.Engine) {
	api := r.Group("/api", auth.Middleware(h.verifier, h.log))
	api.GET("/payout-methods", h.listMethods)
	api.POST("/payout-methods", h.addMethod)
	api.DELETE("/payout-methods/:id", h.removeMethod)
	api.POST("/payout-methods/:id/default", h.setDefaultMethod)

	api.GET("/payouts", h.history)
	api.GET("/payouts/stats", h.stats)
	api.GET("/payouts/:id", h.getPayout)
	api.POST("/payouts", h.requestWithdrawal)
	api.POST("/payouts/:id/cancel", h.cancelPayout)

	api.GET("/wallet", h.getWallet)
	api.GET("/wallet/transactions", h.walletTransactions)

	if h.settlementKey != "" {
		r.POST("/internal/payouts/:id/settle", h.requireSettlementKey, h.settle)
		r.POST("/internal/payouts/:id/reconcile", h.requireSettlementKey, h.reconcile)
	}
}

func (h *Handler) listMethods(c *gin.Context) {
	userID, err := auth.UserID(c)
	if err != nil {
		h.writeError(c, err)
		return
	}
	methods, err := h.methods.List(c.Request.Context(), userID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if methods == nil {
		methods = []payout.PayoutMethod{}
	}
	c.JSON(http.StatusOK, gin.H{"payout_methods": methods})
}

func (h *Handler) addMethod(c *gin.Context) {
	userID, err := auth.UserID(c)
	if err != nil {
		h.writeError(c, err)
		return
	}
	var in payout.MethodInput
	if err := c.ShouldBindJSON(&in); err != nil {
		h.writeError(c, errBadRequest)
		return
	}
	m, err := h.methods.Add(c.Request.Context(), userID, in)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

func (h *Handler) removeMethod(c *gin.Context) {
	userID, err := auth.UserID(c)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if err := h.methods.Remove(c.Request.Context(), userID, c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) setDefaultMethod(c *gin.Context) {
	userID, err := auth.UserID(c)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if err := h.methods.SetDefault(c.Request.Context(), userID, c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) history(c *gin.Context) {
	userID, err := auth.UserID(c)
	if err != nil {
		h.writeError(c, err)
		return
	}
	filter, err := parseHistoryFilter(c)
	if err != nil {
		h.writeError(c, err)
		return
	}
	payouts, err := h.payouts.History(c.Request.Context(), userID, filter)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if payouts == nil {
		payouts = []payout.PayoutRequest{}
	}
	c.JSON(http.StatusOK, gin.H{"payouts": payouts})
}

func parseHistoryFilter(c *gin.Context) (payout.HistoryFilter, error) {
	filter := payout.HistoryFilter{
		Status:     payout.Status(c.Query("status")),
		MethodType: destination.MethodType(c.Query("method_type")),
	}
	var err error
	if filter.From, err = parseTime("from", c.Query("from")); err != nil {
		return filter, err
	}
	if filter.To, err = parseTime("to", c.Query("to")); err != nil {
		return filter, err
	}
	if filter.Limit, err = parseInt("limit", c.Query("limit")); err != nil {
		return filter, err
	}
	if filter.Offset, err = parseInt("offset", c.Query("offset")); err != nil {
		return filter, err
	}
	return filter, nil
}

func parseTime(field, raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		// The upper bound is exclusive, so a bare "to" date covers that whole day.
		if field == "to" {
			t = t.AddDate(0, 0, 1)
		}
		return &t, nil
	}
	return nil, &destination.ValidationError{Field: field, Message: "must be an RFC 3339 timestamp or YYYY-MM-DD date"}
}

func parseInt(field, raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, &destination.ValidationError{Field: field, Message: "must be a non-negative integer"}
	}
	return n, nil
}

func (h *Handler) stats(c *gin.Context) {
	userID, err := auth.UserID(c)
	if err != nil {
		h.writeError(c, err)
		return
	}
	stats, err := h.payouts.Stats(c.Request.Context(), userID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *Handler) getPayout(c *gin.Context) {
	userID, err := auth.UserID(c)
	if err != nil {
		h.writeError(c, err)
		return
	}
	req, err := h.payouts.Get(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

func (h *Handler) requestWithdrawal(c *gin.Context) {
	userID, err := auth.UserID(c)
	if err != nil {
		h.writeError(c, err)
		return
	}
	var in payout.WithdrawalInput
	if err := c.ShouldBindJSON(&in); err != nil {
		h.writeError(c, errBadRequest)
		return
	}
	req, err := h.payouts.RequestWithdrawal(c.Request.Context(), userID, in)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, req)
}

func (h *Handler) cancelPayout(c *gin.Context) {
	userID, err := auth.UserID(c)
	if err != nil {
		h.writeError(c, err)
		return
	}
	req, err := h.payouts.Cancel(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

func (h *Handler) getWallet(c *gin.Context) {
	userID, err := auth.UserID(c)
	if err != nil {
		h.writeError(c, err)
		return
	}
	w, err := h.ledger.Open(c.Request.Context(), userID, h.defaultCurrency)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, w)
}

func (h *Handler) walletTransactions(c *gin.Context) {
	userID, err := auth.UserID(c)
	if err != nil {
		h.writeError(c, err)
		return
	}
	limit, err := parseInt("limit", c.Query("limit"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	entries := []wallet.Entry{}
	w, err := h.ledger.WalletForUser(c.Request.Context(), userID)
	switch {
	case errors.Is(err, wallet.ErrWalletNotFound):
	case err != nil:
		h.writeError(c, err)
		return
	default:
		found, err := h.ledger.Entries(c.Request.Context(), w.ID, wallet.EntryFilter{
			Type:  wallet.EntryType(c.Query("type")),
			Limit: limit,
		})
		if err != nil {
			h.writeError(c, err)
			return
		}
		if found != nil {
			entries = found
		}
	}
	c.JSON(http.StatusOK, gin.H{"transactions": entries})
}

func (h *Handler) requireSettlementKey(c *gin.Context) {
	key := c.GetHeader(settlementKeyHeader)
	if subtle.ConstantTimeCompare([]byte(key), []byte(h.settlementKey)) != 1 {
		h.log.Warn("settlement call rejected", zap.String("client_ip", c.ClientIP()))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": auth.ErrUnauthenticated.Error()})
		return
	}
	c.Next()
}

func (h *Handler) settle(c *gin.Context) {
	var in payout.SettleInput
	if err := c.ShouldBindJSON(&in); err != nil {
		h.writeError(c, errBadRequest)
		return
	}
	in.PayoutID = c.Param("id")
	req, err := h.payouts.Settle(c.Request.Context(), in)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

func (h *Handler) reconcile(c *gin.Context) {
	action, err := h.payouts.Reconcile(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payout_id": c.Param("id"), "action": action})
}
