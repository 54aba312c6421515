package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"wtcoin/internal/auth"
	"wtcoin/internal/deposit"
	"wtcoin/internal/ledger"
	"wtcoin/internal/user"
	"wtcoin/internal/webhook"
	"wtcoin/internal/withdrawal"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Handlers are never reached in these tests: every request stops at the
// auth layer, so zero-value handlers are enough to build the router.
func newTestServer() *Server {
	gin.SetMode(gin.TestMode)
	return New("0", "test-secret", stubPinger{}, Handlers{
		Ledger:     &ledger.Handler{},
		Withdrawal: &withdrawal.Handler{},
		Deposit:    &deposit.Handler{},
		Webhook:    &webhook.Handler{},
		User:       &user.Handler{},
	})
}

func TestRoutes_RequireAuth(t *testing.T) {
	srv := newTestServer()

	routes := []struct{ method, path string }{
		{"GET", "/me"},
		{"GET", "/wallets"},
		{"GET", "/wallets/transactions"},
		{"POST", "/wallets/transfer"},
		{"POST", "/wallets/p2p"},
		{"POST", "/deposits/address"},
		{"POST", "/withdrawals"},
		{"GET", "/withdrawals"},
		{"GET", "/admin/withdrawals"},
		{"POST", "/admin/withdrawals/abc/approve"},
		{"POST", "/admin/withdrawals/abc/decline"},
		{"GET", "/admin/pool"},
		{"POST", "/admin/pool/withdraw"},
		{"POST", "/admin/wallets/volume"},
		{"PUT", "/admin/users/u1"},
	}

	for _, r := range routes {
		t.Run(r.method+" "+r.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			srv.Handler().ServeHTTP(w, httptest.NewRequest(r.method, r.path, nil))
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
}

func TestRoutes_AdminForbiddenForUsers(t *testing.T) {
	srv := newTestServer()
	token, err := auth.GenerateAccessToken("u1", "u1@example.com", "user", "test-secret")
	require.NoError(t, err)

	for _, path := range []string{"/admin/withdrawals", "/admin/pool"} {
		req := httptest.NewRequest("GET", path, nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		srv.Handler().ServeHTTP(w, req)
		assert.Equal(t, http.StatusForbidden, w.Code, path)
	}
}

func TestRoutes_Health(t *testing.T) {
	srv := newTestServer()
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
