package core

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"repohub-backend-go/internal/access"
	"repohub-backend-go/internal/config"
	"repohub-backend-go/internal/db"
	"repohub-backend-go/internal/models"
	"repohub-backend-go/internal/repolock"
)

var (
	owner    = access.Requester{UserID: "owner-1", Email: "owner@example.com"}
	outsider = access.Requester{UserID: "user-2", Email: "bob@example.com"}
)

type testEnv struct {
	layout db.Layout
	cfg    *config.Config
	users  UserService
	repos  RepoService
	git    GitService
	tokens TokenService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := &config.Config{
		DataRoot:         t.TempDir(),
		DefaultBranch:    "main",
		MaxFileSizeBytes: 1 << 20,
		MaxRepoSizeBytes: 4 << 20,
		TokenHashCost:    bcrypt.MinCost,
	}
	opts := db.DefaultStoreOptions()
	opts.MinBackoff = time.Millisecond
	opts.BackoffFactor = 1
	opts.Retries = 2000

	logger := zap.NewNop()
	layout := db.NewLayout(cfg.DataRoot)
	store := db.NewJSONStore(opts, logger)
	repoRepo := db.NewRepoRepository(layout, store, logger)
	userRepo := db.NewUserRepository(layout, store)
	locks := repolock.NewRegistry()
	audit := NewAuditService(db.NewNDJSONAuditRepository(layout, store))

	return &testEnv{
		layout: layout,
		cfg:    cfg,
		users:  NewUserService(userRepo),
		repos:  NewRepoService(repoRepo, userRepo, locks, audit, cfg, logger),
		git:    NewGitService(repoRepo, locks, audit, cfg, logger),
		tokens: NewTokenService(repoRepo, db.NewTokenRepository(store), layout, locks, audit, cfg, logger),
	}
}

func (e *testEnv) createRepo(t *testing.T, name string, private bool) *RepositoryView {
	t.Helper()
	repo, err := e.repos.CreateRepository(context.Background(), owner, models.CreateRepositoryRequest{Name: name, Private: private})
	require.NoError(t, err)
	return repo
}

func (e *testEnv) auditTypes(t *testing.T) []string {
	t.Helper()
	f, err := os.Open(e.layout.AuditLogPath())
	require.NoError(t, err)
	defer f.Close()

	var types []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var event models.AuditEvent
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &event))
		require.NotEmpty(t, event.ID)
		require.False(t, event.CreatedAt.IsZero())
		types = append(types, event.Type)
	}
	require.NoError(t, scanner.Err())
	return types
}
