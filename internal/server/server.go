package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"wtcoin/internal/auth"
	"wtcoin/internal/deposit"
	"wtcoin/internal/ledger"
	"wtcoin/internal/logger"
	"wtcoin/internal/user"
	"wtcoin/internal/webhook"
	"wtcoin/internal/withdrawal"

	"github.com/gin-gonic/gin"
)

// Handlers groups the HTTP handlers of every domain package.
type Handlers struct {
	Ledger     *ledger.Handler
	Withdrawal *withdrawal.Handler
	Deposit    *deposit.Handler
	Webhook    *webhook.Handler
	User       *user.Handler
}

type Server struct {
	router *gin.Engine
	http   *http.Server
}

func New(port, jwtSecret string, db Pinger, h Handlers) *Server {
	router := gin.New()
	router.Use(gin.Recovery(), corsMiddleware(), RequestLoggingMiddleware(), MetricsMiddleware())

	router.GET("/health", Health(db))
	router.GET("/metrics", Metrics())

	hooks := router.Group("/webhook")
	{
		hooks.POST("/deposit", h.Webhook.Deposit)
		hooks.POST("/withdrawal", h.Webhook.Withdrawal)
	}

	authMiddleware := auth.AuthMiddleware(jwtSecret)
	protected := router.Group("/")
	protected.Use(authMiddleware)
	{
		protected.GET("/me", h.User.GetMe)
		protected.GET("/wallets", h.Ledger.Accounts)
		protected.GET("/wallets/transactions", h.Ledger.Transactions)
		protected.POST("/wallets/transfer", h.Ledger.Transfer)
		protected.POST("/wallets/p2p", h.Ledger.P2P)
		protected.POST("/deposits/address", h.Deposit.Address)
		protected.POST("/withdrawals", h.Withdrawal.Submit)
		protected.GET("/withdrawals", h.Withdrawal.ListMine)
	}

	adminMiddleware := auth.RequireRole("admin")
	admin := router.Group("/admin")
	admin.Use(authMiddleware, adminMiddleware)
	{
		admin.GET("/withdrawals", h.Withdrawal.ListByStatus)
		admin.POST("/withdrawals/:requestId/approve", h.Withdrawal.Approve)
		admin.POST("/withdrawals/:requestId/decline", h.Withdrawal.Decline)
		admin.GET("/pool", h.Ledger.Pool)
		admin.POST("/pool/withdraw", h.Withdrawal.MassWithdraw)
		admin.POST("/wallets/volume", h.Ledger.AddVolume)
		admin.PUT("/users/:userId", h.User.Upsert)
	}

	return &Server{
		router: router,
		http: &http.Server{
			Addr:              ":" + port,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Start blocks until the server stops. A graceful Shutdown returns nil.
func (s *Server) Start() error {
	logger.Infof("Server starting on %s", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With, Appid, Sign, Timestamp")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
