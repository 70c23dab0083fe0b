package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"repohub-backend-go/internal/api"
	"repohub-backend-go/internal/config"
	"repohub-backend-go/internal/core"
	"repohub-backend-go/internal/db"
	"repohub-backend-go/internal/middleware"
	"repohub-backend-go/internal/repolock"
)

func main() {
	// --- 1. Load Application Configuration ---
	appConfig, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("CRITICAL_ERROR: Failed to load application configuration: %v", err)
	}

	// --- 2. Initialize Logger (Zap) ---
	release := strings.ToLower(appConfig.GinMode) == gin.ReleaseMode
	var zapLogger *zap.Logger
	if release {
		zapLogger, err = zap.NewProduction()
	} else {
		zapLogger, err = zap.NewDevelopment()
	}
	if err != nil {
		log.Fatalf("CRITICAL_ERROR: Failed to initialize Zap logger: %v", err)
	}
	defer zapLogger.Sync()
	zapLogger.Info("Application configuration loaded", zap.String("dataRoot", appConfig.DataRoot), zap.String("identityProvider", appConfig.IdentityProvider))

	layout := db.NewLayout(appConfig.DataRoot)
	if err := config.EnsureJWTSecret(appConfig, layout.JWTSecretPath()); err != nil {
		zapLogger.Fatal("CRITICAL_ERROR: Failed to prepare JWT secret", zap.Error(err))
	}

	// --- 3. Initialize Firebase Admin SDK, only when a component needs it ---
	var firebaseClients *db.FirebaseClients
	if appConfig.UsesFirebase() {
		initCtx, cancelInitCtx := context.WithTimeout(context.Background(), 15*time.Second)
		firebaseClients, err = db.InitFirebase(initCtx, appConfig, appConfig.AuditFirestoreEnabled, zapLogger)
		cancelInitCtx()
		if err != nil {
			zapLogger.Fatal("CRITICAL_ERROR: Failed to initialize Firebase Admin SDK", zap.Error(err))
		}
		defer firebaseClients.Close()
	}

	// --- 4. Initialize Repositories ---
	store := db.NewJSONStore(db.StoreOptions{
		Retries:         appConfig.LockRetries,
		MinBackoff:      time.Duration(appConfig.LockMinBackoffMS) * time.Millisecond,
		BackoffFactor:   appConfig.LockBackoffFactor,
		MaxBackoff:      2 * time.Second,
		BackupRetention: appConfig.BackupRetention,
	}, zapLogger)
	repoRepo := db.NewRepoRepository(layout, store, zapLogger)
	userRepo := db.NewUserRepository(layout, store)
	tokenRepo := db.NewTokenRepository(store)

	auditRepo := db.NewNDJSONAuditRepository(layout, store)
	if appConfig.AuditFirestoreEnabled {
		auditRepo = db.NewMultiAuditRepository(auditRepo, db.NewFirestoreAuditRepository(firebaseClients.Firestore))
		zapLogger.Info("Audit events are mirrored to Firestore")
	}

	// --- 5. Initialize Services ---
	// One lock registry for every service, so all mutations of a repository serialize.
	locks := repolock.NewRegistry()
	auditService := core.NewAuditService(auditRepo)
	services := api.Services{
		Users:  core.NewUserService(userRepo),
		Repos:  core.NewRepoService(repoRepo, userRepo, locks, auditService, appConfig, zapLogger),
		Git:    core.NewGitService(repoRepo, locks, auditService, appConfig, zapLogger),
		Tokens: core.NewTokenService(repoRepo, tokenRepo, layout, locks, auditService, appConfig, zapLogger),
	}

	var identities middleware.IdentityVerifier
	if appConfig.IdentityProvider == config.IdentityFirebase {
		identities = middleware.NewFirebaseVerifier(firebaseClients.Auth)
	} else {
		identities = middleware.NewJWTVerifier(appConfig.JWTSecret)
	}
	authMW := middleware.NewAuthMiddleware(identities, services.Tokens, zapLogger)

	// --- 6. Setup Gin HTTP Engine ---
	if release {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}
	router := gin.New()
	router.Use(middleware.RequestLogger(zapLogger))
	router.Use(middleware.RecoveryMiddleware(zapLogger))
	if appConfig.ClientURL != "" {
		router.Use(middleware.CORSMiddleware(appConfig))
		zapLogger.Info("CORS Middleware enabled", zap.String("clientURL", appConfig.ClientURL))
	} else {
		zapLogger.Warn("CORS Middleware SKIPPED: CLIENT_URL is not configured.")
	}
	api.SetupRoutes(router, authMW, services, zapLogger)

	// --- 7. Start HTTP Server ---
	serverAddr := fmt.Sprintf(":%s", appConfig.Port)
	httpServer := &http.Server{
		Addr:              serverAddr,
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	zapLogger.Info("Starting HTTP server...", zap.String("address", serverAddr), zap.String("ginMode", gin.Mode()))
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLogger.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	// --- 8. Graceful Shutdown Handling ---
	quitChannel := make(chan os.Signal, 1)
	signal.Notify(quitChannel, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quitChannel
	zapLogger.Info("Received shutdown signal", zap.String("signal", sig.String()))

	// Archive downloads may be long; give them a while to finish.
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("Server forced to shutdown", zap.Error(err))
	}
	zapLogger.Info("Server exiting gracefully.")
}
