package withdrawal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"wtcoin/internal/api"
	"wtcoin/internal/ledger"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockService struct{ mock.Mock }

func (m *MockService) Submit(ctx context.Context, userID string, req SubmitRequest) (*Request, error) {
	args := m.Called(ctx, userID, req)
	r, _ := args.Get(0).(*Request)
	return r, args.Error(1)
}

func (m *MockService) Approve(ctx context.Context, adminID, requestID string) (*Request, error) {
	args := m.Called(ctx, adminID, requestID)
	r, _ := args.Get(0).(*Request)
	return r, args.Error(1)
}

func (m *MockService) Decline(ctx context.Context, adminID, requestID, reason string) (*Request, error) {
	args := m.Called(ctx, adminID, requestID, reason)
	r, _ := args.Get(0).(*Request)
	return r, args.Error(1)
}

func (m *MockService) Settle(ctx context.Context, orderID, recordID string, outcome Outcome) (SettleResult, error) {
	args := m.Called(ctx, orderID, recordID, outcome)
	return args.Get(0).(SettleResult), args.Error(1)
}

func (m *MockService) MassWithdraw(ctx context.Context, adminID string, req MassWithdrawRequest) (*ledger.Transaction, error) {
	args := m.Called(ctx, adminID, req)
	t, _ := args.Get(0).(*ledger.Transaction)
	return t, args.Error(1)
}

func (m *MockService) Get(ctx context.Context, requestID string) (*Request, error) {
	args := m.Called(ctx, requestID)
	r, _ := args.Get(0).(*Request)
	return r, args.Error(1)
}

func (m *MockService) ListMine(ctx context.Context, userID string) ([]Request, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]Request), args.Error(1)
}

func (m *MockService) ListByStatus(ctx context.Context, status Status, limit, offset int) ([]Request, error) {
	args := m.Called(ctx, status, limit, offset)
	return args.Get(0).([]Request), args.Error(1)
}

func newRouter(svc Service, userID string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if userID != "" {
			c.Set("user_id", userID)
		}
		c.Next()
	})
	h := NewHandler(svc)
	r.POST("/withdrawals", h.Submit)
	r.GET("/withdrawals", h.ListMine)
	r.GET("/admin/withdrawals", h.ListByStatus)
	r.POST("/admin/withdrawals/:requestId/approve", h.Approve)
	r.POST("/admin/withdrawals/:requestId/decline", h.Decline)
	r.POST("/admin/pool/withdraw", h.MassWithdraw)
	return r
}

func do(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHandler_Submit(t *testing.T) {
	svc := new(MockService)
	svc.On("Submit", mock.Anything, "u1", mock.MatchedBy(func(req SubmitRequest) bool {
		return req.Amount.Equal(decimal.NewFromInt(50)) && req.WalletType == "main"
	})).Return(&Request{ID: "65a1b2c3d4e5f60718293a4b", Status: StatusPending}, nil)

	w := do(newRouter(svc, "u1"), http.MethodPost, "/withdrawals",
		`{"coin_id":1280,"amount":"50","address":"TXaddr","chain":"TRX","wallet_type":"main"}`)

	assert.Equal(t, http.StatusCreated, w.Code)
	var got Request
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, StatusPending, got.Status)
	svc.AssertExpectations(t)
}

func TestHandler_SubmitErrors(t *testing.T) {
	tests := []struct {
		name   string
		user   string
		body   string
		err    error
		status int
	}{
		{"unauthenticated", "", `{}`, nil, http.StatusUnauthorized},
		{"malformed body", "u1", `{"coin_id":`, nil, http.StatusBadRequest},
		{"bad wallet type", "u1", `{"coin_id":1,"amount":"5","address":"a","chain":"TRX","wallet_type":"margin"}`, nil, http.StatusBadRequest},
		{"insufficient funds", "u1", `{"coin_id":1,"amount":"5","address":"a","chain":"TRX","wallet_type":"main"}`, api.ErrInsufficientFunds, http.StatusBadRequest},
		{"storage failure", "u1", `{"coin_id":1,"amount":"5","address":"a","chain":"TRX","wallet_type":"main"}`, fmt.Errorf("pq: connection refused"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockService)
			if tt.err != nil {
				svc.On("Submit", mock.Anything, tt.user, mock.Anything).Return(nil, tt.err)
			}

			w := do(newRouter(svc, tt.user), http.MethodPost, "/withdrawals", tt.body)
			assert.Equal(t, tt.status, w.Code)
			assert.NotContains(t, w.Body.String(), "pq:")
		})
	}
}

func TestHandler_Approve(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"ok", nil, http.StatusOK},
		{"malformed id", ErrInvalidRequestID, http.StatusBadRequest},
		{"unknown id", ErrRequestNotFound, http.StatusNotFound},
		{"not pending", ErrNotPending, http.StatusBadRequest},
		{"provider down", fmt.Errorf("%w: timeout", api.ErrExternalService), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockService)
			var r *Request
			if tt.err == nil {
				r = &Request{ID: "65a1b2c3d4e5f60718293a4b", Status: StatusProcessing}
			}
			svc.On("Approve", mock.Anything, "admin", "65a1b2c3d4e5f60718293a4b").Return(r, tt.err)

			w := do(newRouter(svc, "admin"), http.MethodPost, "/admin/withdrawals/65a1b2c3d4e5f60718293a4b/approve", "")
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestHandler_Decline(t *testing.T) {
	svc := new(MockService)
	svc.On("Decline", mock.Anything, "admin", "65a1b2c3d4e5f60718293a4b", "bad address").
		Return(&Request{Status: StatusDeclined}, nil)

	router := newRouter(svc, "admin")
	w := do(router, http.MethodPost, "/admin/withdrawals/65a1b2c3d4e5f60718293a4b/decline", `{"reason":"bad address"}`)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(router, http.MethodPost, "/admin/withdrawals/65a1b2c3d4e5f60718293a4b/decline", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	svc.AssertNumberOfCalls(t, "Decline", 1)
}

func TestHandler_ListByStatus(t *testing.T) {
	svc := new(MockService)
	svc.On("ListByStatus", mock.Anything, StatusPending, 10, 0).Return([]Request{{ID: "a"}}, nil)

	router := newRouter(svc, "admin")
	w := do(router, http.MethodGet, "/admin/withdrawals?limit=10", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(router, http.MethodGet, "/admin/withdrawals?status=lost", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_MassWithdraw(t *testing.T) {
	svc := new(MockService)
	svc.On("MassWithdraw", mock.Anything, "admin", mock.Anything).
		Return(&ledger.Transaction{OrderID: "MASSW-1", Status: ledger.StatusProcessing}, nil)

	w := do(newRouter(svc, "admin"), http.MethodPost, "/admin/pool/withdraw",
		`{"coin_id":1280,"amount":"200","address":"cold","chain":"TRX"}`)
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Contains(t, w.Body.String(), "MASSW-1")
}
