package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "0123456789abcdef0123456789abcdef"

func newRouter(v *Verifier) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", Middleware(v, nil), func(c *gin.Context) {
		id, err := UserID(c)
		if err != nil {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.String(http.StatusOK, id)
	})
	return r
}

func get(r http.Handler, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestMiddlewareAcceptsValidToken(t *testing.T) {
	v := NewVerifier(secret)
	token, err := v.Issue("user-1", time.Hour)
	require.NoError(t, err)

	w := get(newRouter(v), "Bearer "+token)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "user-1", w.Body.String())
}

func TestMiddlewareRejects(t *testing.T) {
	v := NewVerifier(secret)
	expired, err := v.Issue("user-1", -time.Hour)
	require.NoError(t, err)
	foreign, err := NewVerifier("another-secret-another-secret-xx").Issue("user-1", time.Hour)
	require.NoError(t, err)
	noSubject, err := v.Issue("", time.Hour)
	require.NoError(t, err)

	r := newRouter(v)
	for name, header := range map[string]string{
		"missing":     "",
		"not bearer":  "Basic dXNlcjpwYXNz",
		"garbage":     "Bearer not-a-jwt",
		"expired":     "Bearer " + expired,
		"wrong key":   "Bearer " + foreign,
		"no subject":  "Bearer " + noSubject,
		"empty token": "Bearer ",
	} {
		t.Run(name, func(t *testing.T) {
			w := get(r, header)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.JSONEq(t, `{"error":"unauthenticated"}`, w.Body.String())
		})
	}
}
