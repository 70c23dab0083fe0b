package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"repohub-backend-go/internal/db"
	"repohub-backend-go/internal/models"
)

// Audit event types.
const (
	AuditRepoCreated         = "repo.created"
	AuditRepoUpdated         = "repo.updated"
	AuditRepoDeleted         = "repo.deleted"
	AuditCollaboratorAdded   = "repo.collaborator.added"
	AuditCollaboratorJoined  = "repo.collaborator.joined"
	AuditCollaboratorRemoved = "repo.collaborator.removed"
	AuditRepoTokenCreated    = "repo.token.created"
	AuditRepoTokenDeleted    = "repo.token.deleted"
	AuditAccountTokenCreated = "account.token.created"
	AuditAccountTokenDeleted = "account.token.deleted"
	AuditFileWrite           = "repo.file.write"
	AuditFileDeleted         = "repo.file.deleted"
)

// auditService implements the AuditService interface.
type auditService struct {
	auditRepo db.AuditRepository
}

// NewAuditService creates a new AuditService instance.
func NewAuditService(auditRepo db.AuditRepository) AuditService {
	return &auditService{auditRepo: auditRepo}
}

// CreateAuditLog stamps the event with an id and time when missing and hands it to the repository.
func (s *auditService) CreateAuditLog(ctx context.Context, event models.AuditEvent) error {
	if s.auditRepo == nil {
		return errors.New("AuditRepository not initialized in AuditService")
	}
	if event.Type == "" {
		return validationError("audit event type is required")
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	if err := s.auditRepo.Create(ctx, event); err != nil {
		return fmt.Errorf("failed to create audit log via repository: %w", err)
	}
	return nil
}

// recordAudit writes an audit event. A failure is logged but never fails the operation
// that triggered it.
func recordAudit(ctx context.Context, svc AuditService, logger *zap.Logger, event models.AuditEvent) {
	if svc == nil {
		return
	}
	if err := svc.CreateAuditLog(ctx, event); err != nil {
		logger.Warn("Failed to create audit log",
			zap.String("type", event.Type),
			zap.String("repoId", event.RepoID),
			zap.Error(err),
		)
	}
}
