package withdrawal

import (
	"net/http"
	"strconv"

	"wtcoin/internal/api"
	"wtcoin/internal/auth"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// Submit godoc
// @Summary      Request a withdrawal
// @Description  Creates a pending withdrawal request. No funds move until an admin approves it.
// @Tags         withdrawals
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        request  body      SubmitRequest  true  "Withdrawal"
// @Success      201      {object}  Request
// @Failure      400      {object}  api.ErrorResponse
// @Router       /withdrawals [post]
func (h *Handler) Submit(c *gin.Context) {
	userID, ok := auth.MustUserID(c)
	if !ok {
		return
	}

	var req SubmitRequest
	if !api.BindJSON(c, &req) {
		return
	}

	r, err := h.service.Submit(c.Request.Context(), userID, req)
	if err != nil {
		api.RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, r)
}

func (h *Handler) ListMine(c *gin.Context) {
	userID, ok := auth.MustUserID(c)
	if !ok {
		return
	}

	reqs, err := h.service.ListMine(c.Request.Context(), userID)
	if err != nil {
		api.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, reqs)
}

// ListByStatus godoc
// @Summary      Admin withdrawal queue
// @Tags         admin
// @Security     BearerAuth
// @Produce      json
// @Param        status  query  string  false  "Request status"  default(pending)
// @Param        limit   query  int     false  "Page size"
// @Param        offset  query  int     false  "Offset"
// @Success      200  {array}   Request
// @Failure      400  {object}  api.ErrorResponse
// @Router       /admin/withdrawals [get]
func (h *Handler) ListByStatus(c *gin.Context) {
	status, ok := ParseStatus(c.DefaultQuery("status", string(StatusPending)))
	if !ok {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "unknown status"})
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	offset, _ := strconv.Atoi(c.Query("offset"))

	reqs, err := h.service.ListByStatus(c.Request.Context(), status, limit, offset)
	if err != nil {
		api.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, reqs)
}

// Approve godoc
// @Summary      Approve a withdrawal
// @Description  Locks the funds and submits the withdrawal to the payment provider.
// @Tags         admin
// @Security     BearerAuth
// @Produce      json
// @Param        requestId  path  string  true  "Request id"
// @Success      200  {object}  Request
// @Failure      400  {object}  api.ErrorResponse
// @Failure      404  {object}  api.ErrorResponse
// @Failure      500  {object}  api.ErrorResponse
// @Router       /admin/withdrawals/{requestId}/approve [post]
func (h *Handler) Approve(c *gin.Context) {
	adminID, ok := auth.MustUserID(c)
	if !ok {
		return
	}

	r, err := h.service.Approve(c.Request.Context(), adminID, c.Param("requestId"))
	if err != nil {
		api.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

func (h *Handler) Decline(c *gin.Context) {
	adminID, ok := auth.MustUserID(c)
	if !ok {
		return
	}

	var req DeclineRequest
	if !api.BindJSON(c, &req) {
		return
	}

	r, err := h.service.Decline(c.Request.Context(), adminID, c.Param("requestId"), req.Reason)
	if err != nil {
		api.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

// MassWithdraw godoc
// @Summary      Withdraw from the Admin Wallet
// @Tags         admin
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        request  body      MassWithdrawRequest  true  "Withdrawal"
// @Success      202      {object}  ledger.Transaction
// @Failure      400      {object}  api.ErrorResponse
// @Failure      500      {object}  api.ErrorResponse
// @Router       /admin/pool/withdraw [post]
func (h *Handler) MassWithdraw(c *gin.Context) {
	adminID, ok := auth.MustUserID(c)
	if !ok {
		return
	}

	var req MassWithdrawRequest
	if !api.BindJSON(c, &req) {
		return
	}

	t, err := h.service.MassWithdraw(c.Request.Context(), adminID, req)
	if err != nil {
		api.RespondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, t)
}
