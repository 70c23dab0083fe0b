package models

// CreateRepositoryRequest represents the request body for creating a repository.
type CreateRepositoryRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description,omitempty"`
	Private     bool   `json:"private,omitempty"`
}

// UpdateRepositoryRequest represents the request body for updating repository metadata.
// Pointers distinguish "not provided" from zero values.
type UpdateRepositoryRequest struct {
	Name             *string `json:"name,omitempty"`
	Description      *string `json:"description,omitempty"`
	Private          *bool   `json:"private,omitempty"`
	RotateInviteCode bool    `json:"rotateInviteCode,omitempty"`
}

// ListRepositoriesParams filters and paginates the repository listing.
// An empty ViewerID means an anonymous caller.
type ListRepositoriesParams struct {
	OwnerID  string
	Search   string
	Page     int
	PageSize int
	ViewerID string
}

// CreateBranchRequest represents the request body for creating a branch.
type CreateBranchRequest struct {
	Name string `json:"name" binding:"required"`
	From string `json:"from,omitempty"`
}

// CheckoutRequest represents the request body for checking out a branch.
type CheckoutRequest struct {
	Branch string `json:"branch" binding:"required"`
}

// WriteFileRequest represents the request body for writing a file.
type WriteFileRequest struct {
	Path    string `json:"path" binding:"required"`
	Content string `json:"content"`
	Branch  string `json:"branch" binding:"required"`
	Message string `json:"message" binding:"required"`
}

// CreateFolderRequest represents the request body for creating a folder.
type CreateFolderRequest struct {
	Path string `json:"path" binding:"required"`
}

// CreateTokenRequest represents the request body for issuing an access token.
type CreateTokenRequest struct {
	Name       string          `json:"name" binding:"required,max=120"`
	Permission TokenPermission `json:"permission,omitempty"`
}

// CollaboratorRequest either adds a user (owner only) or joins via invite code.
type CollaboratorRequest struct {
	UserID     string           `json:"userId,omitempty"`
	Role       CollaboratorRole `json:"role,omitempty"`
	InviteCode string           `json:"inviteCode,omitempty"`
}

// DeleteFileRequest identifies a file to delete and the commit recording it.
type DeleteFileRequest struct {
	Path    string `json:"path" form:"path" binding:"required"`
	Branch  string `json:"branch" form:"branch" binding:"required"`
	Message string `json:"message" form:"message"`
}
