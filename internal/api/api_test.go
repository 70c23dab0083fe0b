package api

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"repohub-backend-go/internal/config"
	"repohub-backend-go/internal/core"
	"repohub-backend-go/internal/db"
	"repohub-backend-go/internal/middleware"
	"repohub-backend-go/internal/models"
	"repohub-backend-go/internal/repolock"
)

const jwtSecret = "test-secret-test-secret-test-secret"

type testServer struct {
	t      *testing.T
	router *gin.Engine
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		DataRoot:         t.TempDir(),
		DefaultBranch:    "main",
		MaxFileSizeBytes: 1 << 20,
		MaxRepoSizeBytes: 4 << 20,
		TokenHashCost:    bcrypt.MinCost,
	}
	opts := db.DefaultStoreOptions()
	opts.MinBackoff = time.Millisecond
	opts.Retries = 500

	logger := zap.NewNop()
	layout := db.NewLayout(cfg.DataRoot)
	store := db.NewJSONStore(opts, logger)
	repoRepo := db.NewRepoRepository(layout, store, logger)
	userRepo := db.NewUserRepository(layout, store)
	locks := repolock.NewRegistry()
	audit := core.NewAuditService(db.NewNDJSONAuditRepository(layout, store))
	tokens := core.NewTokenService(repoRepo, db.NewTokenRepository(store), layout, locks, audit, cfg, logger)

	router := gin.New()
	router.Use(middleware.RecoveryMiddleware(logger))
	authMW := middleware.NewAuthMiddleware(middleware.NewJWTVerifier(jwtSecret), tokens, logger)
	SetupRoutes(router, authMW, Services{
		Users:  core.NewUserService(userRepo),
		Repos:  core.NewRepoService(repoRepo, userRepo, locks, audit, cfg, logger),
		Git:    core.NewGitService(repoRepo, locks, audit, cfg, logger),
		Tokens: tokens,
	}, logger)
	return &testServer{t: t, router: router}
}

func bearer(t *testing.T, userID, email string) map[string]string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   userID,
		"email": email,
		"exp":   time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(jwtSecret))
	require.NoError(t, err)
	return map[string]string{"Authorization": "Bearer " + signed}
}

func (s *testServer) do(method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	s.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func (s *testServer) createRepo(auth map[string]string, name string, private bool) models.Repository {
	s.t.Helper()
	w := s.do(http.MethodPost, "/api/v1/repos", models.CreateRepositoryRequest{Name: name, Private: private}, auth)
	require.Equal(s.t, http.StatusCreated, w.Code, w.Body.String())
	return decode[models.Repository](s.t, w)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	w := s.do(http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"UP"`)
}

func TestUserProfile(t *testing.T) {
	s := newTestServer(t)
	alice := bearer(t, "alice", "alice@example.com")

	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/api/v1/users/me", nil, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/api/v1/users/me", nil, alice).Code)

	w := s.do(http.MethodPost, "/api/v1/users/initialize", nil, alice)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, http.StatusOK, s.do(http.MethodPost, "/api/v1/users/initialize", nil, alice).Code)

	w = s.do(http.MethodGet, "/api/v1/users/me", nil, alice)
	require.Equal(t, http.StatusOK, w.Code)
	user := decode[models.User](t, w)
	assert.Equal(t, "alice", user.ID)
	assert.Equal(t, "alice@example.com", user.Email)
}

func TestRepositoryLifecycle(t *testing.T) {
	s := newTestServer(t)
	alice := bearer(t, "alice", "alice@example.com")
	bob := bearer(t, "bob", "bob@example.com")

	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodPost, "/api/v1/repos", models.CreateRepositoryRequest{Name: "x"}, nil).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, "/api/v1/repos", map[string]string{}, alice).Code)

	repo := s.createRepo(alice, "Demo", true)
	assert.Equal(t, "demo", repo.Slug)
	assert.NotEmpty(t, repo.InviteCode)
	assert.Equal(t, http.StatusConflict, s.do(http.MethodPost, "/api/v1/repos", models.CreateRepositoryRequest{Name: "Demo"}, alice).Code)

	base := "/api/v1/repos/" + repo.ID
	assert.Equal(t, http.StatusForbidden, s.do(http.MethodGet, base, nil, nil).Code)
	assert.Equal(t, http.StatusForbidden, s.do(http.MethodGet, base, nil, bob).Code)

	w := s.do(http.MethodGet, base, nil, alice)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"permission":"owner"`)

	// bob joins with the invite code and can then write.
	w = s.do(http.MethodPost, base+"/collaborators", models.CollaboratorRequest{InviteCode: repo.InviteCode}, bob)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	view := decode[map[string]interface{}](t, w)
	assert.Equal(t, "write", view["permission"])
	assert.Empty(t, view["inviteCode"])

	w = s.do(http.MethodPatch, base, models.UpdateRepositoryRequest{Description: ptr("changed")}, bob)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(http.MethodGet, "/api/v1/repos?pageSize=abc", nil, alice)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = s.do(http.MethodGet, "/api/v1/repos", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, decode[core.RepositoryList](t, w).Total)
	w = s.do(http.MethodGet, "/api/v1/repos", nil, bob)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, decode[core.RepositoryList](t, w).Total)

	assert.Equal(t, http.StatusNoContent, s.do(http.MethodDelete, base, nil, alice).Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, base, nil, alice).Code)
}

func TestFileOperations(t *testing.T) {
	s := newTestServer(t)
	alice := bearer(t, "alice", "alice@example.com")
	repo := s.createRepo(alice, "demo", false)
	base := "/api/v1/repos/" + repo.ID

	w := s.do(http.MethodPost, base+"/branches", models.CreateBranchRequest{Name: "feature/x"}, alice)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = s.do(http.MethodPut, base+"/file", models.WriteFileRequest{
		Path: "src/app.txt", Content: "hello\n", Branch: "feature/x", Message: "Add app",
	}, alice)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	result := decode[core.CommitResult](t, w)
	assert.Len(t, result.OID, 40)
	assert.Equal(t, "feature/x", result.Branch)

	// Anonymous reads of a public repository are allowed, writes are not.
	w = s.do(http.MethodGet, base+"/file?ref=feature/x&path=src/app.txt", nil, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	file := decode[core.FileContent](t, w)
	assert.Equal(t, "hello\n", file.Content)
	assert.Equal(t, core.EncodingUTF8, file.Encoding)
	assert.Equal(t, http.StatusForbidden, s.do(http.MethodPut, base+"/file", models.WriteFileRequest{
		Path: "a.txt", Content: "x", Branch: "main", Message: "m",
	}, nil).Code)

	w = s.do(http.MethodGet, base+"/diff?from=main&to=feature/x", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, decode[DiffResponse](t, w).Diff, "+hello")

	w = s.do(http.MethodGet, base+"/commits?ref=feature/x&limit=1", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Add app")

	w = s.do(http.MethodGet, base+"/tree?ref=feature/x", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"path":"src/app.txt"`)

	w = s.do(http.MethodDelete, base+"/file?path=src/app.txt&branch=feature/x", nil, alice)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = s.do(http.MethodGet, base+"/file?ref=feature/x&path=src/app.txt", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPut, base+"/file", models.WriteFileRequest{
		Path: "README.md/x.txt", Content: "x", Branch: "main", Message: "m",
	}, alice).Code)

	assert.Equal(t, http.StatusUnprocessableEntity, s.do(http.MethodDelete, base+"/branches/main", nil, alice).Code)
	assert.Equal(t, http.StatusNoContent, s.do(http.MethodDelete, base+"/branches/feature/x", nil, alice).Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodPost, base+"/checkout", models.CheckoutRequest{Branch: "feature/x"}, alice).Code)
}

func TestArchiveDownload(t *testing.T) {
	s := newTestServer(t)
	alice := bearer(t, "alice", "alice@example.com")
	repo := s.createRepo(alice, "demo", true)

	assert.Equal(t, http.StatusForbidden, s.do(http.MethodGet, "/api/v1/repos/"+repo.ID+"/archive.zip", nil, nil).Code)

	w := s.do(http.MethodGet, "/api/v1/repos/"+repo.ID+"/archive.zip", nil, alice)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/zip", w.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="demo-main.zip"`, w.Header().Get("Content-Disposition"))

	zr, err := zip.NewReader(bytes.NewReader(w.Body.Bytes()), int64(w.Body.Len()))
	require.NoError(t, err)
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"README.md"}, names)
}

func TestRepoTokenAccess(t *testing.T) {
	s := newTestServer(t)
	alice := bearer(t, "alice", "alice@example.com")
	repo := s.createRepo(alice, "demo", true)
	base := "/api/v1/repos/" + repo.ID

	w := s.do(http.MethodPost, base+"/tokens", models.CreateTokenRequest{Name: "ci", Permission: models.TokenRead}, alice)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	issued := decode[models.IssuedToken](t, w)
	header := map[string]string{middleware.HeaderRepoToken: issued.Secret}

	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, base+"/branches", nil, header).Code)
	assert.Equal(t, http.StatusForbidden, s.do(http.MethodPost, base+"/branches", models.CreateBranchRequest{Name: "dev"}, header).Code)
	// Token management needs a human identity.
	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, base+"/tokens", nil, header).Code)

	w = s.do(http.MethodGet, base+"/tokens", nil, alice)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "tokenHash")

	assert.Equal(t, http.StatusNoContent, s.do(http.MethodDelete, base+"/tokens/"+issued.Token.ID, nil, alice).Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, base+"/branches", nil, header).Code)
}

func TestAccountTokens(t *testing.T) {
	s := newTestServer(t)
	alice := bearer(t, "alice", "alice@example.com")
	repo := s.createRepo(alice, "demo", true)

	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/api/v1/account/tokens", nil, nil).Code)

	w := s.do(http.MethodPost, "/api/v1/account/tokens", models.CreateTokenRequest{Name: "laptop", Permission: models.TokenWrite}, alice)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	issued := decode[models.IssuedToken](t, w)

	auth := map[string]string{"Authorization": "token " + issued.Secret}
	w = s.do(http.MethodPut, "/api/v1/repos/"+repo.ID+"/file", models.WriteFileRequest{
		Path: "notes.md", Content: "x", Branch: "main", Message: "From token",
	}, auth)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(http.MethodGet, "/api/v1/account/tokens", nil, alice)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[struct {
		Items []models.AccessToken `json:"items"`
	}](t, w)
	require.Len(t, list.Items, 1)
	assert.NotNil(t, list.Items[0].LastUsedAt)
}

func TestStatusFor(t *testing.T) {
	for _, tc := range []struct {
		err  error
		want int
	}{
		{core.ErrRepoNotFound, http.StatusNotFound},
		{core.ErrInsufficientPermission, http.StatusForbidden},
		{core.ErrRepoExists, http.StatusConflict},
		{fmt.Errorf("wrapped: %w", core.ErrFileTooLarge), http.StatusConflict},
		{core.ErrLockTimeout, http.StatusServiceUnavailable},
		{core.ErrDefaultBranchDeletion, http.StatusUnprocessableEntity},
		{core.ErrInvalidToken, http.StatusUnauthorized},
		{fmt.Errorf("%w: name required", core.ErrValidation), http.StatusBadRequest},
		{io.ErrUnexpectedEOF, http.StatusInternalServerError},
	} {
		assert.Equal(t, tc.want, statusFor(tc.err), tc.err.Error())
	}
}

func ptr[T any](v T) *T { return &v }
