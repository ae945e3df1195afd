package httpapi

import (
	"errors"
	"net/http"

	"github.com/blancagut/PaySafer-sub000/internal/auth"
	"github.com/blancagut/PaySafer-sub000/internal/destination"
	"github.com/blancagut/PaySafer-sub000/internal/payout"
	"github.com/blancagut/PaySafer-sub000/internal/wallet"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var errBadRequest = &destination.ValidationError{Message: "invalid request body"}

func statusFor(err error) int {
	var verr *destination.ValidationError
	switch {
	case errors.Is(err, auth.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.As(err, &verr), errors.Is(err, wallet.ErrInvalidAmount):
		return http.StatusBadRequest
	case errors.Is(err, wallet.ErrInsufficientBalance):
		return http.StatusPaymentRequired
	case errors.Is(err, wallet.ErrWalletFrozen):
		return http.StatusLocked
	case errors.Is(err, payout.ErrNotFound), errors.Is(err, wallet.ErrWalletNotFound):
		return http.StatusNotFound
	case errors.Is(err, payout.ErrConflict):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// writeError maps domain errors to a status and a short message. Server
// errors are logged and never echoed.
func (h *Handler) writeError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.log.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
