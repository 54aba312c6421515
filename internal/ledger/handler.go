package ledger

import (
	"net/http"
	"strconv"

	"wtcoin/internal/api"
	"wtcoin/internal/auth"
	"wtcoin/internal/wallet"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type WalletTransferRequest struct {
	CoinID     int64           `json:"coin_id" validate:"required,gt=0"`
	Amount     decimal.Decimal `json:"amount"`
	FromWallet string          `json:"from_wallet" validate:"required,oneof=main spot futures"`
	ToWallet   string          `json:"to_wallet" validate:"required,oneof=main spot futures"`
	// OrderID lets clients retry a transfer without applying it twice.
	OrderID string `json:"order_id" validate:"max=64"`
}

type P2PRequest struct {
	CoinID     int64           `json:"coin_id" validate:"required,gt=0"`
	Amount     decimal.Decimal `json:"amount"`
	ToUserID   string          `json:"to_user_id" validate:"required,max=64"`
	WalletType string          `json:"wallet_type" validate:"omitempty,oneof=main spot futures"`
	OrderID    string          `json:"order_id" validate:"max=64"`
}

type VolumeRequest struct {
	UserID     string          `json:"user_id" validate:"required,max=64"`
	CoinID     int64           `json:"coin_id" validate:"required,gt=0"`
	WalletType string          `json:"wallet_type" validate:"required,oneof=main spot futures"`
	Volume     decimal.Decimal `json:"volume"`
}

type Handler struct {
	ledger *Ledger
}

func NewHandler(l *Ledger) *Handler {
	return &Handler{ledger: l}
}

// Accounts godoc
// @Summary      List my wallet accounts
// @Tags         wallets
// @Security     BearerAuth
// @Produce      json
// @Success      200  {array}   wallet.Account
// @Failure      401  {object}  api.ErrorResponse
// @Router       /wallets [get]
func (h *Handler) Accounts(c *gin.Context) {
	userID, ok := auth.MustUserID(c)
	if !ok {
		return
	}

	accounts, err := h.ledger.Accounts(c.Request.Context(), userID)
	if err != nil {
		api.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, accounts)
}

func (h *Handler) Transactions(c *gin.Context) {
	userID, ok := auth.MustUserID(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	offset, _ := strconv.Atoi(c.Query("offset"))

	txs, err := h.ledger.Transactions(c.Request.Context(), userID, limit, offset)
	if err != nil {
		api.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, txs)
}

// Transfer godoc
// @Summary      Move funds between my wallets
// @Description  Transfers into or out of a trading wallet pay the volume-gated fee.
// @Tags         wallets
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        request  body      WalletTransferRequest  true  "Transfer"
// @Success      200      {object}  TransferResult
// @Failure      400      {object}  api.ErrorResponse
// @Failure      409      {object}  api.ErrorResponse
// @Router       /wallets/transfer [post]
func (h *Handler) Transfer(c *gin.Context) {
	userID, ok := auth.MustUserID(c)
	if !ok {
		return
	}

	var req WalletTransferRequest
	if !api.BindJSON(c, &req) {
		return
	}

	result, err := h.ledger.Transfer(c.Request.Context(), TransferRequest{
		From:    wallet.Key{UserID: userID, WalletType: wallet.WalletType(req.FromWallet), CoinID: req.CoinID},
		To:      wallet.Key{UserID: userID, WalletType: wallet.WalletType(req.ToWallet), CoinID: req.CoinID},
		Amount:  req.Amount,
		OrderID: req.OrderID,
	})
	if err != nil {
		api.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) P2P(c *gin.Context) {
	userID, ok := auth.MustUserID(c)
	if !ok {
		return
	}

	var req P2PRequest
	if !api.BindJSON(c, &req) {
		return
	}
	if req.ToUserID == userID {
		api.RespondError(c, ErrSameWallet)
		return
	}
	wt := wallet.Main
	if req.WalletType != "" {
		wt = wallet.WalletType(req.WalletType)
	}

	result, err := h.ledger.Transfer(c.Request.Context(), TransferRequest{
		From:    wallet.Key{UserID: userID, WalletType: wt, CoinID: req.CoinID},
		To:      wallet.Key{UserID: req.ToUserID, WalletType: wt, CoinID: req.CoinID},
		Amount:  req.Amount,
		OrderID: req.OrderID,
	})
	if err != nil {
		api.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// AddVolume godoc
// @Summary      Record trading volume
// @Description  Called by the trading engine after fills on a spot or futures wallet.
// @Tags         admin
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        request  body      VolumeRequest  true  "Volume"
// @Success      200      {object}  wallet.Account
// @Failure      400      {object}  api.ErrorResponse
// @Router       /admin/wallets/volume [post]
func (h *Handler) AddVolume(c *gin.Context) {
	var req VolumeRequest
	if !api.BindJSON(c, &req) {
		return
	}

	account, err := h.ledger.AddTradingVolume(c.Request.Context(),
		wallet.Key{UserID: req.UserID, WalletType: wallet.WalletType(req.WalletType), CoinID: req.CoinID},
		req.Volume,
	)
	if err != nil {
		api.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, account)
}

func (h *Handler) Pool(c *gin.Context) {
	pool, err := h.ledger.Pool(c.Request.Context())
	if err != nil {
		api.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, pool)
}
