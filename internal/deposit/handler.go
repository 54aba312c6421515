package deposit

import (
	"net/http"

	"wtcoin/internal/api"
	"wtcoin/internal/auth"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Address godoc
// @Summary      Get a deposit address
// @Tags         deposits
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        request  body      AddressRequest  true  "Chain"
// @Success      200      {object}  Address
// @Failure      400      {object}  api.ErrorResponse
// @Failure      500      {object}  api.ErrorResponse
// @Router       /deposits/address [post]
func (h *Handler) Address(c *gin.Context) {
	userID, ok := auth.MustUserID(c)
	if !ok {
		return
	}

	var req AddressRequest
	if !api.BindJSON(c, &req) {
		return
	}

	a, err := h.service.AddressFor(c.Request.Context(), userID, req.Chain)
	if err != nil {
		api.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}
