package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"repohub-backend-go/internal/core"
	"repohub-backend-go/internal/middleware"
	"repohub-backend-go/internal/models"
)

// GitHandler handles branch, file, history, diff and archive endpoints.
type GitHandler struct {
	gitService core.GitService
	logger     *zap.Logger
}

// NewGitHandler creates a new GitHandler.
func NewGitHandler(gs core.GitService, logger *zap.Logger) *GitHandler {
	return &GitHandler{gitService: gs, logger: logger}
}

// ListBranches handles GET /repos/:repoId/branches
func (h *GitHandler) ListBranches(c *gin.Context) {
	branches, err := h.gitService.ListBranches(c.Request.Context(), middleware.RequesterFrom(c), c.Param("repoId"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, ListResponse{Items: branches})
}

// CreateBranch handles POST /repos/:repoId/branches
func (h *GitHandler) CreateBranch(c *gin.Context) {
	var req models.CreateBranchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	branch, err := h.gitService.CreateBranch(c.Request.Context(), middleware.RequesterFrom(c), c.Param("repoId"), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, branch)
}

// DeleteBranch handles DELETE /repos/:repoId/branches/*name. The wildcard keeps branch
// names containing slashes addressable.
func (h *GitHandler) DeleteBranch(c *gin.Context) {
	name := strings.TrimPrefix(c.Param("name"), "/") // catch-all params keep the leading slash
	if err := h.gitService.DeleteBranch(c.Request.Context(), middleware.RequesterFrom(c), c.Param("repoId"), name); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Checkout handles POST /repos/:repoId/checkout
func (h *GitHandler) Checkout(c *gin.Context) {
	var req models.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.gitService.Checkout(c.Request.Context(), middleware.RequesterFrom(c), c.Param("repoId"), req.Branch); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: "Checked out " + req.Branch})
}

// ListCommits handles GET /repos/:repoId/commits?ref=&limit=
func (h *GitHandler) ListCommits(c *gin.Context) {
	limit, err := queryInt(c, "limit")
	if err != nil {
		badRequest(c, err)
		return
	}
	commits, err := h.gitService.ListCommits(c.Request.Context(), middleware.RequesterFrom(c), c.Param("repoId"), c.Query("ref"), limit)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, ListResponse{Items: commits})
}

// GetTree handles GET /repos/:repoId/tree?ref=&path=
func (h *GitHandler) GetTree(c *gin.Context) {
	nodes, err := h.gitService.GetTree(c.Request.Context(), middleware.RequesterFrom(c), c.Param("repoId"), c.Query("ref"), c.Query("path"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, ListResponse{Items: nodes})
}

// GetFile handles GET /repos/:repoId/file?ref=&path=
func (h *GitHandler) GetFile(c *gin.Context) {
	file, err := h.gitService.GetFile(c.Request.Context(), middleware.RequesterFrom(c), c.Param("repoId"), c.Query("ref"), c.Query("path"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, file)
}

// WriteFile handles PUT /repos/:repoId/file
func (h *GitHandler) WriteFile(c *gin.Context) {
	var req models.WriteFileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	result, err := h.gitService.WriteFile(c.Request.Context(), middleware.RequesterFrom(c), c.Param("repoId"), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// DeleteFile handles DELETE /repos/:repoId/file. Parameters come from the query string or
// a JSON body.
func (h *GitHandler) DeleteFile(c *gin.Context) {
	var req models.DeleteFileRequest
	if err := c.ShouldBind(&req); err != nil {
		badRequest(c, err)
		return
	}
	result, err := h.gitService.DeleteFile(c.Request.Context(), middleware.RequesterFrom(c), c.Param("repoId"), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// CreateFolder handles POST /repos/:repoId/folder
func (h *GitHandler) CreateFolder(c *gin.Context) {
	var req models.CreateFolderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.gitService.CreateFolder(c.Request.Context(), middleware.RequesterFrom(c), c.Param("repoId"), req); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, SuccessResponse{Message: "Folder created", Data: gin.H{"path": req.Path}})
}

// DiffRefs handles GET /repos/:repoId/diff?from=&to=
func (h *GitHandler) DiffRefs(c *gin.Context) {
	diff, err := h.gitService.DiffRefs(c.Request.Context(), middleware.RequesterFrom(c), c.Param("repoId"), c.Query("from"), c.Query("to"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, DiffResponse{Diff: diff})
}

// DiffWorking handles GET /repos/:repoId/diff/working?ref=
func (h *GitHandler) DiffWorking(c *gin.Context) {
	diff, err := h.gitService.DiffWorking(c.Request.Context(), middleware.RequesterFrom(c), c.Param("repoId"), c.Query("ref"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, DiffResponse{Diff: diff})
}

// DiffCommit handles GET /repos/:repoId/commits/:oid/diff
func (h *GitHandler) DiffCommit(c *gin.Context) {
	diff, err := h.gitService.DiffCommit(c.Request.Context(), middleware.RequesterFrom(c), c.Param("repoId"), c.Param("oid"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, DiffResponse{Diff: diff})
}

// DownloadArchive handles GET /repos/:repoId/archive.zip?ref=
// Headers are only committed once access is granted, so early failures still get a JSON body.
func (h *GitHandler) DownloadArchive(c *gin.Context) {
	// Called by the service once access is granted and the branch is checked out.
	prepare := func(name string) {
		c.Header("Content-Type", "application/zip")
		c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
		c.Status(http.StatusOK)
	}
	err := h.gitService.StreamArchive(c.Request.Context(), middleware.RequesterFrom(c), c.Param("repoId"), c.Query("ref"), prepare, c.Writer)
	if err == nil {
		return
	}
	if c.Writer.Written() {
		// Too late for a status code; the client sees a truncated zip.
		h.logger.Error("Archive download interrupted", zap.String("repoId", c.Param("repoId")), zap.Error(err))
		c.Abort()
		return
	}
	// Nothing written yet, so the failure came before streaming.
	respondError(c, h.logger, err)
}
