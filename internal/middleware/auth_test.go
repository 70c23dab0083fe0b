package middleware

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"repohub-backend-go/internal/access"
	"repohub-backend-go/internal/core"
	"repohub-backend-go/internal/models"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type stubTokens struct {
	cred *access.Credential
	err  error

	gotRepoID string
	gotSecret string
}

func (s *stubTokens) Verify(ctx context.Context, repoID, secret string) (*access.Credential, error) {
	s.gotRepoID = repoID
	s.gotSecret = secret
	return s.cred, s.err
}

func signToken(t *testing.T, secret string, claims identityClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func validClaims() identityClaims {
	return identityClaims{
		Email: "alice@example.com",
		Name:  "Alice",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
}

func newTestRouter(tokens TokenVerifier) (*gin.Engine, *access.Requester) {
	gin.SetMode(gin.TestMode)
	seen := &access.Requester{}
	auth := NewAuthMiddleware(NewJWTVerifier(testSecret), tokens, zap.NewNop())

	r := gin.New()
	r.Use(auth.Identify())
	handler := func(c *gin.Context) {
		*seen = RequesterFrom(c)
		c.Status(http.StatusNoContent)
	}
	r.GET("/open/:repoId", handler)
	r.GET("/private", auth.RequireUser(), handler)
	return r, seen
}

func TestJWTVerifier(t *testing.T) {
	v := NewJWTVerifier(testSecret)

	t.Run("valid token", func(t *testing.T) {
		id, err := v.Verify(context.Background(), signToken(t, testSecret, validClaims()))
		require.NoError(t, err)
		assert.Equal(t, &Identity{UserID: "user-1", Email: "alice@example.com", DisplayName: "Alice"}, id)
	})

	t.Run("wrong secret", func(t *testing.T) {
		_, err := v.Verify(context.Background(), signToken(t, "another-secret-another-secret-xx", validClaims()))
		assert.ErrorIs(t, err, ErrInvalidIdentity)
	})

	t.Run("expired", func(t *testing.T) {
		claims := validClaims()
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
		_, err := v.Verify(context.Background(), signToken(t, testSecret, claims))
		assert.ErrorIs(t, err, ErrInvalidIdentity)
	})

	t.Run("missing subject", func(t *testing.T) {
		claims := validClaims()
		claims.Subject = ""
		_, err := v.Verify(context.Background(), signToken(t, testSecret, claims))
		assert.ErrorIs(t, err, ErrInvalidIdentity)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := v.Verify(context.Background(), "not-a-jwt")
		assert.ErrorIs(t, err, ErrInvalidIdentity)
	})
}

func TestIdentify(t *testing.T) {
	cred := &access.Credential{Scope: access.ScopeRepo, RepoID: "r1", Token: models.AccessToken{ID: "tok-1"}}

	t.Run("anonymous passes through", func(t *testing.T) {
		r, seen := newTestRouter(&stubTokens{})
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/open/r1", nil))
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, access.Requester{}, *seen)
	})

	t.Run("bearer sets identity", func(t *testing.T) {
		r, seen := newTestRouter(&stubTokens{})
		req := httptest.NewRequest(http.MethodGet, "/private", nil)
		req.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, validClaims()))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, "user-1", seen.UserID)
		assert.Equal(t, "alice@example.com", seen.Email)
		assert.Nil(t, seen.Credential)
	})

	t.Run("invalid bearer is rejected", func(t *testing.T) {
		r, _ := newTestRouter(&stubTokens{})
		req := httptest.NewRequest(http.MethodGet, "/open/r1", nil)
		req.Header.Set("Authorization", "Bearer nope")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	for _, tc := range []struct {
		name   string
		header string
		value  string
	}{
		{"repo token header", HeaderRepoToken, "secret-a"},
		{"api token header", HeaderAPIToken, "secret-a"},
		{"authorization token scheme", "Authorization", "token secret-a"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			tokens := &stubTokens{cred: cred}
			r, seen := newTestRouter(tokens)
			req := httptest.NewRequest(http.MethodGet, "/open/r1", nil)
			req.Header.Set(tc.header, tc.value)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, http.StatusNoContent, w.Code)
			assert.Equal(t, "r1", tokens.gotRepoID)
			assert.Equal(t, "secret-a", tokens.gotSecret)
			assert.Same(t, cred, seen.Credential)
			assert.False(t, seen.Authenticated())
		})
	}

	t.Run("token alone does not satisfy RequireUser", func(t *testing.T) {
		r, _ := newTestRouter(&stubTokens{cred: cred})
		req := httptest.NewRequest(http.MethodGet, "/private", nil)
		req.Header.Set(HeaderAPIToken, "secret-a")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("token failures", func(t *testing.T) {
		for _, tc := range []struct {
			err  error
			want int
		}{
			{core.ErrInvalidToken, http.StatusUnauthorized},
			{fmt.Errorf("reading pool: %w", core.ErrLockTimeout), http.StatusServiceUnavailable},
			{fmt.Errorf("disk on fire"), http.StatusInternalServerError},
		} {
			r, _ := newTestRouter(&stubTokens{err: tc.err})
			req := httptest.NewRequest(http.MethodGet, "/open/r1", nil)
			req.Header.Set(HeaderRepoToken, "secret-a")
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tc.want, w.Code, tc.err.Error())
		}
	})
}

func TestRecoveryMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RecoveryMiddleware(zap.NewNop()))
	r.GET("/boom", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"Internal Server Error"}`, w.Body.String())
}
