package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"repohub-backend-go/internal/core"
	"repohub-backend-go/internal/middleware"
	"repohub-backend-go/internal/models"
)

// TokenHandler handles account and repository API token endpoints.
type TokenHandler struct {
	tokenService core.TokenService
	logger       *zap.Logger
}

// NewTokenHandler creates a new TokenHandler.
func NewTokenHandler(ts core.TokenService, logger *zap.Logger) *TokenHandler {
	return &TokenHandler{tokenService: ts, logger: logger}
}

// ListAccountTokens handles GET /account/tokens
func (h *TokenHandler) ListAccountTokens(c *gin.Context) {
	tokens, err := h.tokenService.ListAccountTokens(c.Request.Context(), middleware.RequesterFrom(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, ListResponse{Items: tokens})
}

// CreateAccountToken handles POST /account/tokens. The secret is only ever returned here.
func (h *TokenHandler) CreateAccountToken(c *gin.Context) {
	var req models.CreateTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	issued, err := h.tokenService.CreateAccountToken(c.Request.Context(), middleware.RequesterFrom(c), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, issued)
}

// DeleteAccountToken handles DELETE /account/tokens/:tokenId
func (h *TokenHandler) DeleteAccountToken(c *gin.Context) {
	if err := h.tokenService.DeleteAccountToken(c.Request.Context(), middleware.RequesterFrom(c), c.Param("tokenId")); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListRepoTokens handles GET /repos/:repoId/tokens
func (h *TokenHandler) ListRepoTokens(c *gin.Context) {
	tokens, err := h.tokenService.ListRepoTokens(c.Request.Context(), middleware.RequesterFrom(c), c.Param("repoId"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, ListResponse{Items: tokens})
}

// CreateRepoToken handles POST /repos/:repoId/tokens
func (h *TokenHandler) CreateRepoToken(c *gin.Context) {
	var req models.CreateTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	issued, err := h.tokenService.CreateRepoToken(c.Request.Context(), middleware.RequesterFrom(c), c.Param("repoId"), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, issued)
}

// DeleteRepoToken handles DELETE /repos/:repoId/tokens/:tokenId
func (h *TokenHandler) DeleteRepoToken(c *gin.Context) {
	err := h.tokenService.DeleteRepoToken(c.Request.Context(), middleware.RequesterFrom(c), c.Param("repoId"), c.Param("tokenId"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}
