package models

import "time"

// NodeType distinguishes files from directories in a TreeNode.
type NodeType string

const (
	NodeFile NodeType = "file"
	NodeDir  NodeType = "dir"
)

// TreeNode is one entry of the nested directory view derived from a ref's file list.
// Children is only present for directories.
type TreeNode struct {
	Name     string      `json:"name"`
	Path     string      `json:"path"`
	Type     NodeType    `json:"type"`
	Children []*TreeNode `json:"children,omitempty"`
}

// Signature identifies the author or committer of a commit.
type Signature struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// CommitInfo is a read-only projection of one commit.
type CommitInfo struct {
	OID         string    `json:"oid"`
	Message     string    `json:"message"`
	Author      Signature `json:"author"`
	Committer   Signature `json:"committer"`
	CommittedAt time.Time `json:"committedAt"`
	Parent      string    `json:"parent,omitempty"`
}

// BranchInfo describes a branch as shown to callers.
type BranchInfo struct {
	Name      string `json:"name"`
	IsDefault bool   `json:"isDefault"`
	IsCurrent bool   `json:"isCurrent"`
}
