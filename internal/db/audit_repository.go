package db

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/firestore"
	"go.uber.org/multierr"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"repohub-backend-go/internal/models"
)

const auditCollection = "auditEvents"

// ndjsonAuditRepository appends one JSON object per line to the audit log.
type ndjsonAuditRepository struct {
	path  string
	store *JSONStore
}

// NewNDJSONAuditRepository creates an AuditRepository writing to DATA_ROOT/audit/log.ndjson.
func NewNDJSONAuditRepository(layout Layout, store *JSONStore) AuditRepository {
	return &ndjsonAuditRepository{path: layout.AuditLogPath(), store: store}
}

func (r *ndjsonAuditRepository) Create(ctx context.Context, event models.AuditEvent) error {
	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode audit event: %w", err)
	}
	if err := r.store.AppendLine(r.path, line); err != nil {
		return fmt.Errorf("failed to append audit event: %w", err)
	}
	return nil
}

// firestoreAuditRepository mirrors audit events into a Firestore collection.
type firestoreAuditRepository struct {
	client *firestore.Client
}

// NewFirestoreAuditRepository creates a new Firestore-backed AuditRepository.
func NewFirestoreAuditRepository(client *firestore.Client) AuditRepository {
	return &firestoreAuditRepository{client: client}
}

// Create stores the event under its own id. A retried write of the same event finds the
// document already present, which counts as success.
func (r *firestoreAuditRepository) Create(ctx context.Context, event models.AuditEvent) error {
	if event.ID == "" {
		return fmt.Errorf("audit event ID cannot be empty")
	}
	_, err := r.client.Collection(auditCollection).Doc(event.ID).Create(ctx, event)
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return nil
		}
		return fmt.Errorf("failed to create audit event '%s': %w", event.ID, err)
	}
	return nil
}

// multiAuditRepository writes every event to all sinks and reports the combined failures.
type multiAuditRepository struct {
	sinks []AuditRepository
}

// NewMultiAuditRepository fans events out to several repositories.
func NewMultiAuditRepository(sinks ...AuditRepository) AuditRepository {
	return &multiAuditRepository{sinks: sinks}
}

func (r *multiAuditRepository) Create(ctx context.Context, event models.AuditEvent) error {
	var err error
	for _, sink := range r.sinks {
		err = multierr.Append(err, sink.Create(ctx, event))
	}
	return err
}
