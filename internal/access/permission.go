// Package access resolves what a requester may do with a repository.
package access

import (
	"fmt"

	"repohub-backend-go/internal/models"
)

// Permission is an ordinal access level: None < Read < Write < Owner.
type Permission int

const (
	None Permission = iota
	Read
	Write
	Owner
)

func (p Permission) String() string {
	switch p {
	case Read:
		return "read"
	case Write:
		return "write"
	case Owner:
		return "owner"
	default:
		return "none"
	}
}

// MarshalText renders the permission by name in JSON responses.
func (p Permission) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText parses a permission name.
func (p *Permission) UnmarshalText(text []byte) error {
	switch string(text) {
	case "none":
		*p = None
	case "read":
		*p = Read
	case "write":
		*p = Write
	case "owner":
		*p = Owner
	default:
		return fmt.Errorf("unknown permission %q", string(text))
	}
	return nil
}

// AtLeast reports whether p satisfies floor.
func (p Permission) AtLeast(floor Permission) bool {
	return p >= floor
}

func maxPermission(a, b Permission) Permission {
	if a > b {
		return a
	}
	return b
}

func minPermission(a, b Permission) Permission {
	if a < b {
		return a
	}
	return b
}

// ForRole maps a collaborator role to a permission.
func ForRole(role models.CollaboratorRole) Permission {
	if role == models.RoleWrite {
		return Write
	}
	return Read
}

// ForToken maps a token permission to a permission. Tokens never imply more than Write.
func ForToken(p models.TokenPermission) Permission {
	if p == models.TokenWrite {
		return Write
	}
	return Read
}

// IdentityPermission resolves the permission of a (possibly anonymous) user on repo.
// Owner beats collaborator role, which beats public read.
func IdentityPermission(userID string, repo *models.Repository) Permission {
	if userID != "" {
		if repo.OwnerID == userID {
			return Owner
		}
		if c, ok := repo.Collaborator(userID); ok {
			return ForRole(c.Role)
		}
	}
	if !repo.Private {
		return Read
	}
	return None
}
