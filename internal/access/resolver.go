package access

import (
	"errors"

	"repohub-backend-go/internal/models"
)

var (
	// ErrForbidden means the effective permission is below the floor of the operation.
	ErrForbidden = errors.New("insufficient repository permissions")
	// ErrUnauthenticated means the operation needs a human identity and none was presented.
	ErrUnauthenticated = errors.New("authentication required")
)

// Requester is everything known about the caller of one operation.
// Both parts are optional; an empty Requester is an anonymous caller.
type Requester struct {
	UserID     string
	Email      string
	Credential *Credential
}

// Authenticated reports whether a human identity is present.
func (r Requester) Authenticated() bool {
	return r.UserID != ""
}

// Decision is the outcome of a successful Check.
// Actor is nil only for anonymous reads of public repositories.
type Decision struct {
	Effective Permission
	Identity  Permission
	Token     Permission
	Actor     Actor
}

// CredentialPermission is the permission implied by a verified token on repo.
//
// A repository token only counts on its own repository. An account token is bounded by
// what its owner may do on repo, so it can never reach a repository its owner cannot.
func CredentialPermission(cred *Credential, repo *models.Repository) Permission {
	if cred == nil {
		return None
	}
	switch cred.Scope {
	case ScopeRepo:
		if cred.RepoID != repo.ID {
			return None
		}
		return ForToken(cred.Token.Permission)
	case ScopeAccount:
		if cred.Token.UserID == "" {
			return None
		}
		owner := IdentityPermission(cred.Token.UserID, repo)
		if owner == None {
			return None
		}
		return minPermission(ForToken(cred.Token.Permission), owner)
	default:
		return None
	}
}

// Resolve computes the effective permission of req on repo: the maximum of the identity
// and credential permissions. A credential can raise access but never lower it.
func Resolve(req Requester, repo *models.Repository) Decision {
	identity := IdentityPermission(req.UserID, repo)
	token := CredentialPermission(req.Credential, repo)
	d := Decision{
		Effective: maxPermission(identity, token),
		Identity:  identity,
		Token:     token,
	}
	if req.Authenticated() {
		d.Actor = UserActor{UserID: req.UserID, UserEmail: req.Email}
	} else if req.Credential != nil && token > None {
		d.Actor = TokenActor{Credential: *req.Credential}
	}
	return d
}

// Check grants access iff the effective permission reaches floor.
//
// With requireUser only the human identity counts; tokens are ignored even when they would
// satisfy floor. Otherwise the user is preferred as actor when their own permission is
// enough, then the token.
func Check(req Requester, repo *models.Repository, floor Permission, requireUser bool) (Decision, error) {
	identity := IdentityPermission(req.UserID, repo)

	if requireUser {
		if !req.Authenticated() {
			return Decision{}, ErrUnauthenticated
		}
		if !identity.AtLeast(floor) {
			return Decision{}, ErrForbidden
		}
		return Decision{
			Effective: identity,
			Identity:  identity,
			Actor:     UserActor{UserID: req.UserID, UserEmail: req.Email},
		}, nil
	}

	token := CredentialPermission(req.Credential, repo)
	d := Decision{Effective: maxPermission(identity, token), Identity: identity, Token: token}
	if !d.Effective.AtLeast(floor) {
		return Decision{}, ErrForbidden
	}
	switch {
	case req.Authenticated() && identity.AtLeast(floor):
		d.Actor = UserActor{UserID: req.UserID, UserEmail: req.Email}
	case req.Credential != nil && token.AtLeast(floor):
		d.Actor = TokenActor{Credential: *req.Credential}
	}
	if d.Actor == nil && floor > Read {
		// Only public reads may proceed without an attributable actor.
		return Decision{}, ErrForbidden
	}
	return d, nil
}
