package httpgin

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/veloticket/stagegate/internal/service/auth"
	"github.com/veloticket/stagegate/internal/service/issuance"
	"github.com/veloticket/stagegate/internal/service/refund"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func respondErrRecorder(t *testing.T, err error) *httptest.ResponseRecorder {
	t.Helper()

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	respondErr(c, err)

	return w
}

func TestRespondErr_LockoutRetryAfter(t *testing.T) {
	lockErr := &auth.LockoutError{Remaining: 90 * time.Second}
	w := respondErrRecorder(t, fmt.Errorf("auth.Service.Login: %w", lockErr))

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "90", w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "登录失败次数过多")
}

func TestRespondErr_LockoutRetryAfterFloorsAtOne(t *testing.T) {
	w := respondErrRecorder(t, &auth.LockoutError{Remaining: 200 * time.Millisecond})

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
}

func TestRespondErr_StatusMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"invalid credentials", auth.ErrInvalidCredentials, http.StatusUnauthorized},
		{"sold out", issuance.ErrInsufficientTickets, http.StatusConflict},
		{"not ticket owner", refund.ErrNotTicketOwner, http.StatusForbidden},
		{"unknown error", fmt.Errorf("postgres: connection refused"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := respondErrRecorder(t, tt.err)
			assert.Equal(t, tt.code, w.Code)
		})
	}
}
