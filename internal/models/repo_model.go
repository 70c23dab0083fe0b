package models

import "time"

// Repository is the metadata document persisted as repo.json beside each working tree.
// ID and Slug are assigned once at creation and never change.
type Repository struct {
	ID            string         `json:"id"`
	OwnerID       string         `json:"ownerId"`
	Name          string         `json:"name"`
	Slug          string         `json:"slug"`
	Description   string         `json:"description"`
	Private       bool           `json:"private"`
	CreatedAt     time.Time      `json:"createdAt"`
	DefaultBranch string         `json:"defaultBranch"`
	Collaborators []Collaborator `json:"collaborators"`
	InviteCode    string         `json:"inviteCode"`
}

// CollaboratorRole is the role granted to a collaborator ("read" or "write").
type CollaboratorRole string

const (
	RoleRead  CollaboratorRole = "read"
	RoleWrite CollaboratorRole = "write"
)

// Valid reports whether r is one of the known roles.
func (r CollaboratorRole) Valid() bool {
	return r == RoleRead || r == RoleWrite
}

// Collaborator grants a user access to a repository they do not own.
// UserID is unique within a repository.
type Collaborator struct {
	UserID    string           `json:"userId"`
	Role      CollaboratorRole `json:"role"`
	InvitedAt time.Time        `json:"invitedAt"`
}

// Collaborator returns the collaborator entry for userID, if any.
func (r *Repository) Collaborator(userID string) (Collaborator, bool) {
	for _, c := range r.Collaborators {
		if c.UserID == userID {
			return c, true
		}
	}
	return Collaborator{}, false
}

// Key is the human-readable "<owner>/<slug>" handle of the repository.
func (r *Repository) Key() string {
	return r.OwnerID + "/" + r.Slug
}
