package models

import "time"

// TokenPermission is the permission carried by an access token.
type TokenPermission string

const (
	TokenRead  TokenPermission = "read"
	TokenWrite TokenPermission = "write"
)

// Valid reports whether p is a known token permission.
func (p TokenPermission) Valid() bool {
	return p == TokenRead || p == TokenWrite
}

// AccessToken is the public view of a token. The secret hash is never part of it.
type AccessToken struct {
	ID         string          `json:"id"`
	UserID     string          `json:"userId,omitempty"` // only set for account-scoped tokens
	Name       string          `json:"name"`
	Permission TokenPermission `json:"permission"`
	CreatedAt  time.Time       `json:"createdAt"`
	LastUsedAt *time.Time      `json:"lastUsedAt,omitempty"`
}

// TokenRecord is the persisted form of a token, including the bcrypt hash of its secret.
type TokenRecord struct {
	AccessToken
	TokenHash string `json:"tokenHash"`
}

// Public strips the hash.
func (r TokenRecord) Public() AccessToken {
	return r.AccessToken
}

// IssuedToken is returned exactly once, when a token is created.
// Secret has the form "<tokenId>.<hex>".
type IssuedToken struct {
	Token  AccessToken `json:"token"`
	Secret string      `json:"secret"`
}
