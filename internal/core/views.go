package core

import (
	"repohub-backend-go/internal/access"
	"repohub-backend-go/internal/models"
)

// RepositoryView is a repository as shown to one caller, with the caller's permission.
// The invite code is only present for the owner.
type RepositoryView struct {
	models.Repository
	Permission access.Permission `json:"permission"`
}

// RepositoryList is one page of repositories.
type RepositoryList struct {
	Items []RepositoryView `json:"items"`
	Total int              `json:"total"`
}

// FileContent is a file read at a ref. Content is base64 when Encoding says so.
type FileContent struct {
	Path     string `json:"path"`
	Ref      string `json:"ref"`
	Size     int    `json:"size"`
	Encoding string `json:"encoding"`
	Content  string `json:"content"`
}

// CommitResult identifies the commit a mutation produced.
type CommitResult struct {
	OID    string `json:"oid"`
	Branch string `json:"branch"`
}

func newRepositoryView(repo models.Repository, perm access.Permission) RepositoryView {
	if perm != access.Owner {
		repo.InviteCode = ""
	}
	if repo.Collaborators == nil {
		repo.Collaborators = []models.Collaborator{}
	}
	return RepositoryView{Repository: repo, Permission: perm}
}
