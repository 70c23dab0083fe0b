package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"repohub-backend-go/internal/core"
	"repohub-backend-go/internal/middleware"
)

// Services bundles the core services the routes dispatch to.
type Services struct {
	Users  core.UserService
	Repos  core.RepoService
	Git    core.GitService
	Tokens core.TokenService
}

// SetupRoutes configures all the application routes with their handlers and middleware.
// Global middleware (logging, recovery, CORS) is expected to be applied to router already.
//
// Every /api/v1 route runs Identify, which resolves optional credentials into a requester.
// Per-repository permission floors are enforced by the services, so only the routes that
// need a human identity regardless of repository add RequireUser.
func SetupRoutes(router *gin.Engine, authMW *middleware.AuthMiddleware, services Services, logger *zap.Logger) {
	userHandler := NewUserHandler(services.Users, logger)
	repoHandler := NewRepoHandler(services.Repos, logger)
	gitHandler := NewGitHandler(services.Git, logger)
	tokenHandler := NewTokenHandler(services.Tokens, logger)

	apiV1 := router.Group("/api/v1", authMW.Identify())
	{
		users := apiV1.Group("/users", authMW.RequireUser())
		{
			users.POST("/initialize", userHandler.InitializeUserProfile)
			users.GET("/me", userHandler.GetCurrentUserProfile)
		}

		account := apiV1.Group("/account", authMW.RequireUser())
		{
			account.GET("/tokens", tokenHandler.ListAccountTokens)
			account.POST("/tokens", tokenHandler.CreateAccountToken)
			account.DELETE("/tokens/:tokenId", tokenHandler.DeleteAccountToken)
		}

		repos := apiV1.Group("/repos")
		{
			repos.GET("", repoHandler.ListRepositories)
			repos.POST("", authMW.RequireUser(), repoHandler.CreateRepository)
			repos.GET("/:repoId", repoHandler.GetRepository)
			repos.PATCH("/:repoId", repoHandler.UpdateRepository)
			repos.DELETE("/:repoId", repoHandler.DeleteRepository)

			repos.POST("/:repoId/collaborators", repoHandler.AddCollaborator)
			repos.DELETE("/:repoId/collaborators/:userId", repoHandler.RemoveCollaborator)

			repos.GET("/:repoId/tokens", tokenHandler.ListRepoTokens)
			repos.POST("/:repoId/tokens", tokenHandler.CreateRepoToken)
			repos.DELETE("/:repoId/tokens/:tokenId", tokenHandler.DeleteRepoToken)

			repos.GET("/:repoId/branches", gitHandler.ListBranches)
			repos.POST("/:repoId/branches", gitHandler.CreateBranch)
			repos.DELETE("/:repoId/branches/*name", gitHandler.DeleteBranch)
			repos.POST("/:repoId/checkout", gitHandler.Checkout)

			repos.GET("/:repoId/commits", gitHandler.ListCommits)
			repos.GET("/:repoId/commits/:oid/diff", gitHandler.DiffCommit)
			repos.GET("/:repoId/diff", gitHandler.DiffRefs)
			repos.GET("/:repoId/diff/working", gitHandler.DiffWorking)

			repos.GET("/:repoId/tree", gitHandler.GetTree)
			repos.GET("/:repoId/file", gitHandler.GetFile)
			repos.PUT("/:repoId/file", gitHandler.WriteFile)
			repos.DELETE("/:repoId/file", gitHandler.DeleteFile)
			repos.POST("/:repoId/folder", gitHandler.CreateFolder)
			repos.GET("/:repoId/archive.zip", gitHandler.DownloadArchive)
		}
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "UP", "message": "repohub backend is healthy."})
	})

	logger.Info("API routes configured successfully under /api/v1 and /health.")
}
