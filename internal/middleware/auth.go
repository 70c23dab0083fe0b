package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"repohub-backend-go/internal/access"
	"repohub-backend-go/internal/core"
)

// Context keys set by the auth middleware.
const (
	ContextRequester       = "requester"
	ContextUserID          = "userID"
	ContextUserEmail       = "userEmail"
	ContextUserDisplayName = "userDisplayName"
)

// Credential headers. Authorization carries either "Bearer <identity token>" or
// "token <api token>".
const (
	HeaderRepoToken = "X-Repo-Token"
	HeaderAPIToken  = "X-Api-Token"

	repoIDParam = "repoId"
)

// ErrorResponse mirrors api.ErrorResponse; it is redefined here to avoid an import cycle.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// TokenVerifier resolves an API token secret to a credential. core.TokenService is one.
type TokenVerifier interface {
	Verify(ctx context.Context, repoID, secret string) (*access.Credential, error)
}

// AuthMiddleware turns request credentials into an access.Requester.
type AuthMiddleware struct {
	identities IdentityVerifier
	tokens     TokenVerifier
	logger     *zap.Logger
}

// NewAuthMiddleware creates a new AuthMiddleware.
func NewAuthMiddleware(identities IdentityVerifier, tokens TokenVerifier, logger *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{identities: identities, tokens: tokens, logger: logger}
}

// Identify verifies whatever credentials the request presents and stores the requester in
// the context. A request without credentials continues anonymously; a presented credential
// that does not verify is rejected with 401.
func (m *AuthMiddleware) Identify() gin.HandlerFunc {
	return func(c *gin.Context) {
		// --- Extract credentials from headers ---
		bearer, apiToken := extractCredentials(c.Request)
		var requester access.Requester // zero value is an anonymous caller

		// --- Verify the human identity, if any ---
		if bearer != "" {
			id, err := m.identities.Verify(c.Request.Context(), bearer)
			if err != nil {
				m.logger.Debug("Rejected identity token", zap.Error(err))
				c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: ErrInvalidIdentity.Error()})
				return
			}
			requester.UserID = id.UserID
			requester.Email = id.Email
			// Plain keys for handlers that only need the profile claims (users/initialize).
			c.Set(ContextUserID, id.UserID)
			c.Set(ContextUserEmail, id.Email)
			c.Set(ContextUserDisplayName, id.DisplayName)
		}

		// --- Verify the API token, if any ---
		// The route's repoId (empty outside repository routes) selects the repo pool;
		// the account pool is always consulted as well.
		if apiToken != "" {
			cred, err := m.tokens.Verify(c.Request.Context(), c.Param(repoIDParam), apiToken)
			if err != nil {
				if errors.Is(err, core.ErrInvalidToken) {
					c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: core.ErrInvalidToken.Error()})
					return
				}
				// Storage trouble, not a bad token: do not tell the client it is invalid.
				m.logger.Error("Failed to verify API token", zap.Error(err))
				status := http.StatusInternalServerError
				if errors.Is(err, core.ErrLockTimeout) {
					status = http.StatusServiceUnavailable
				}
				c.AbortWithStatusJSON(status, ErrorResponse{Error: "Failed to verify API token"})
				return
			}
			requester.Credential = cred
		}

		// Store the requester for handlers and the request logger.
		c.Set(ContextRequester, requester)
		c.Next()
	}
}

// RequireUser rejects requests without a verified human identity. Use after Identify.
func (m *AuthMiddleware) RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !RequesterFrom(c).Authenticated() {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "Authorization header is required"})
			return
		}
		c.Next()
	}
}

// RequesterFrom returns the requester stored by Identify, or an anonymous one.
func RequesterFrom(c *gin.Context) access.Requester {
	if v, ok := c.Get(ContextRequester); ok {
		if r, ok := v.(access.Requester); ok {
			return r
		}
	}
	return access.Requester{}
}

func extractCredentials(r *http.Request) (bearer, apiToken string) {
	if scheme, value, ok := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " "); ok {
		value = strings.TrimSpace(value)
		switch {
		case strings.EqualFold(scheme, "Bearer"):
			bearer = value
		case strings.EqualFold(scheme, "token"):
			apiToken = value
		}
	}
	// Dedicated headers: X-Repo-Token wins, X-Api-Token only fills a gap.
	if v := strings.TrimSpace(r.Header.Get(HeaderRepoToken)); v != "" {
		apiToken = v
	} else if v := strings.TrimSpace(r.Header.Get(HeaderAPIToken)); v != "" && apiToken == "" {
		apiToken = v
	}
	return bearer, apiToken
}

func actorID(v interface{}) string {
	r, ok := v.(access.Requester)
	if !ok {
		return ""
	}
	if r.UserID != "" {
		return r.UserID
	}
	if r.Credential != nil {
		return "token:" + r.Credential.Token.ID
	}
	return ""
}
