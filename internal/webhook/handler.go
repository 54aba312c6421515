package webhook

import (
	"context"
	"net/http"

	"wtcoin/internal/api"
	"wtcoin/internal/provider"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	reconciler *Reconciler
}

func NewHandler(r *Reconciler) *Handler {
	return &Handler{reconciler: r}
}

type applyFunc func(ctx context.Context, h Headers, body []byte) (Result, error)

func (h *Handler) serve(c *gin.Context, apply applyFunc) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "unreadable body"})
		return
	}

	headers := Headers{
		AppID:     c.GetHeader(provider.HeaderAppID),
		Timestamp: c.GetHeader(provider.HeaderTimestamp),
		Sign:      c.GetHeader(provider.HeaderSign),
	}
	if _, err := apply(c.Request.Context(), headers, body); err != nil {
		api.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, api.WebhookAck{Msg: "success"})
}

// Deposit godoc
// @Summary      Provider deposit notification
// @Tags         webhook
// @Accept       json
// @Produce      json
// @Param        Appid      header  string  true  "App id"
// @Param        Timestamp  header  string  true  "Unix seconds"
// @Param        Sign       header  string  true  "HMAC-SHA256 signature"
// @Success      200  {object}  api.WebhookAck
// @Failure      401  {object}  api.ErrorResponse
// @Router       /webhook/deposit [post]
func (h *Handler) Deposit(c *gin.Context) {
	h.serve(c, h.reconciler.ApplyDeposit)
}

func (h *Handler) Withdrawal(c *gin.Context) {
	h.serve(c, h.reconciler.ApplyWithdrawal)
}
