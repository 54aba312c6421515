package user

import (
	"net/http"

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

// GetMe godoc
// @Summary      Get current user profile
// @Tags         user
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  Profile
// @Failure      401  {object}  api.ErrorResponse
// @Failure      404  {object}  api.ErrorResponse
// @Router       /me [get]
func (h *Handler) GetMe(c *gin.Context) {
	userID, ok := auth.MustUserID(c)
	if !ok {
		return
	}

	p, err := h.service.Get(c.Request.Context(), userID)
	if err != nil {
		api.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// Upsert godoc
// @Summary      Sync a user profile
// @Description  Creates or updates the email and referrer of a user. An existing referrer is never replaced.
// @Tags         admin
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        userId   path      string         true  "User id"
// @Param        request  body      UpsertRequest  true  "Profile"
// @Success      200      {object}  Profile
// @Failure      400      {object}  api.ErrorResponse
// @Router       /admin/users/{userId} [put]
func (h *Handler) Upsert(c *gin.Context) {
	var req UpsertRequest
	if !api.BindJSON(c, &req) {
		return
	}

	p, err := h.service.Upsert(c.Request.Context(), c.Param("userId"), req)
	if err != nil {
		api.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}
