package models

import "time"

// AuditEvent is one line of the append-only audit stream.
type AuditEvent struct {
	ID        string                 `json:"id" firestore:"-"`
	Type      string                 `json:"type" firestore:"type"`       // e.g. "repo.created", "repo.file.write"
	ActorID   string                 `json:"actorId" firestore:"actorId"` // user id, "token:<id>", or empty for anonymous
	RepoID    string                 `json:"repoId,omitempty" firestore:"repoId,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty" firestore:"metadata,omitempty"`
	CreatedAt time.Time              `json:"createdAt" firestore:"createdAt"`
}
