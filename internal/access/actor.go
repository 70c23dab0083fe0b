package access

import (
	"strings"

	"repohub-backend-go/internal/models"
)

// TokenScope tells which pool a verified token came from.
type TokenScope string

const (
	ScopeRepo    TokenScope = "repo"
	ScopeAccount TokenScope = "account"
)

// Credential is an API token whose secret has already been verified.
// RepoID is set for repository-scoped tokens; Token.UserID for account-scoped ones.
type Credential struct {
	Scope  TokenScope
	Token  models.AccessToken
	RepoID string
}

// Actor is the principal a mutation is attributed to, in commits and the audit trail.
type Actor interface {
	// DisplayName is the commit author name.
	DisplayName() string
	// Email is the commit author email.
	Email() string
	// AuditKey is the actor id recorded in audit events.
	AuditKey() string
}

// UserActor is a human identity.
type UserActor struct {
	UserID    string
	UserEmail string
}

func (u UserActor) DisplayName() string {
	if local, _, ok := strings.Cut(u.UserEmail, "@"); ok && local != "" {
		return local
	}
	return u.UserID
}

func (u UserActor) Email() string {
	if u.UserEmail != "" {
		return u.UserEmail
	}
	return u.UserID + "@users.repohub.local"
}

func (u UserActor) AuditKey() string { return u.UserID }

// TokenActor is an API token acting without a human identity.
type TokenActor struct {
	Credential Credential
}

func (t TokenActor) DisplayName() string { return "token:" + t.Credential.Token.Name }
func (t TokenActor) Email() string       { return "token-" + t.Credential.Token.ID + "@repohub.local" }
func (t TokenActor) AuditKey() string    { return "token:" + t.Credential.Token.ID }
