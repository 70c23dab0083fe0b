package middleware

import (
	"context"
	"errors"
	"fmt"

	"firebase.google.com/go/v4/auth"
	"github.com/golang-jwt/jwt/v4"
)

// ErrInvalidIdentity is returned by verifiers for any token they do not accept.
var ErrInvalidIdentity = errors.New("invalid or expired authentication token")

// Identity is a verified human identity.
type Identity struct {
	UserID      string
	Email       string
	DisplayName string
}

// IdentityVerifier verifies bearer tokens issued by the external auth service.
type IdentityVerifier interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}

// identityClaims are the claims of an HS256 session token: subject is the user id.
type identityClaims struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// JWTVerifier verifies HS256 tokens signed with a shared secret.
type JWTVerifier struct {
	secret []byte
}

// NewJWTVerifier creates a JWTVerifier for secret.
func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

func (v *JWTVerifier) Verify(ctx context.Context, raw string) (*Identity, error) {
	var claims identityClaims
	token, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		// Pin the algorithm; never let the token header pick it (e.g. "none" or RS256).
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidIdentity, err)
	}
	// exp/nbf were already checked by ParseWithClaims; the subject is our user id.
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidIdentity)
	}
	return &Identity{UserID: claims.Subject, Email: claims.Email, DisplayName: claims.Name}, nil
}

// FirebaseVerifier verifies Firebase ID tokens.
type FirebaseVerifier struct {
	client *auth.Client
}

// NewFirebaseVerifier creates a FirebaseVerifier. It panics if client is nil, since no
// route could be secured without it.
func NewFirebaseVerifier(client *auth.Client) *FirebaseVerifier {
	if client == nil {
		panic("Firebase Auth client is not initialized for FirebaseVerifier")
	}
	return &FirebaseVerifier{client: client}
}

func (v *FirebaseVerifier) Verify(ctx context.Context, raw string) (*Identity, error) {
	// Checks signature, expiry, audience and issuer against the Firebase project.
	token, err := v.client.VerifyIDToken(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidIdentity, err)
	}
	id := &Identity{UserID: token.UID}
	// Optional claims; anonymous Firebase users carry neither.
	if email, ok := token.Claims["email"].(string); ok {
		id.Email = email
	}
	if name, ok := token.Claims["name"].(string); ok {
		id.DisplayName = name
	}
	return id, nil
}
