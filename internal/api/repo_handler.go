package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"repohub-backend-go/internal/core"
	"repohub-backend-go/internal/middleware"
	"repohub-backend-go/internal/models"
)

// RepoHandler handles repository metadata and collaborator endpoints.
type RepoHandler struct {
	repoService core.RepoService
	logger      *zap.Logger
}

// NewRepoHandler creates a new RepoHandler.
func NewRepoHandler(rs core.RepoService, logger *zap.Logger) *RepoHandler {
	return &RepoHandler{repoService: rs, logger: logger}
}

// CreateRepository handles POST /repos
func (h *RepoHandler) CreateRepository(c *gin.Context) {
	var req models.CreateRepositoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	repo, err := h.repoService.CreateRepository(c.Request.Context(), middleware.RequesterFrom(c), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, repo)
}

// ListRepositories handles GET /repos?ownerId=&search=&page=&pageSize=
// Anonymous callers only see public repositories.
func (h *RepoHandler) ListRepositories(c *gin.Context) {
	params := models.ListRepositoriesParams{
		OwnerID:  c.Query("ownerId"),
		Search:   c.Query("search"),
		ViewerID: middleware.RequesterFrom(c).UserID,
	}
	var err error
	if params.Page, err = queryInt(c, "page"); err != nil {
		badRequest(c, err)
		return
	}
	if params.PageSize, err = queryInt(c, "pageSize"); err != nil {
		badRequest(c, err)
		return
	}

	list, err := h.repoService.ListRepositories(c.Request.Context(), params)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// GetRepository handles GET /repos/:repoId
func (h *RepoHandler) GetRepository(c *gin.Context) {
	repo, err := h.repoService.GetRepository(c.Request.Context(), middleware.RequesterFrom(c), c.Param("repoId"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, repo)
}

// UpdateRepository handles PATCH /repos/:repoId
func (h *RepoHandler) UpdateRepository(c *gin.Context) {
	var req models.UpdateRepositoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	repo, err := h.repoService.UpdateRepository(c.Request.Context(), middleware.RequesterFrom(c), c.Param("repoId"), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, repo)
}

// DeleteRepository handles DELETE /repos/:repoId
func (h *RepoHandler) DeleteRepository(c *gin.Context) {
	if err := h.repoService.DeleteRepository(c.Request.Context(), middleware.RequesterFrom(c), c.Param("repoId")); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// AddCollaborator handles POST /repos/:repoId/collaborators. The owner adds a user by id;
// anyone else may join with the invite code.
func (h *RepoHandler) AddCollaborator(c *gin.Context) {
	var req models.CollaboratorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	repo, err := h.repoService.AddCollaborator(c.Request.Context(), middleware.RequesterFrom(c), c.Param("repoId"), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, repo)
}

// RemoveCollaborator handles DELETE /repos/:repoId/collaborators/:userId
func (h *RepoHandler) RemoveCollaborator(c *gin.Context) {
	repo, err := h.repoService.RemoveCollaborator(c.Request.Context(), middleware.RequesterFrom(c), c.Param("repoId"), c.Param("userId"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, repo)
}

// queryInt parses an optional integer query parameter; absent means 0.
func queryInt(c *gin.Context, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid query parameter %s: %w", key, err)
	}
	return n, nil
}
