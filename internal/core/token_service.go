package core

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"repohub-backend-go/internal/access"
	"repohub-backend-go/internal/config"
	"repohub-backend-go/internal/db"
	"repohub-backend-go/internal/models"
	"repohub-backend-go/internal/repolock"
)

const (
	maxTokenNameLength = 120
	tokenSecretBytes   = 24
)

// tokenService implements the TokenService interface.
//
// Secrets are "<tokenId>.<hex>"; only the bcrypt hash of the hex part is stored. Every
// verification re-reads the pool document, so a deleted token stops working as soon as
// the deletion returns.
type tokenService struct {
	repoLoader
	runner       sessionRunner
	tokenRepo    db.TokenRepository
	layout       db.Layout
	auditService AuditService
	config       *config.Config
	logger       *zap.Logger
}

// NewTokenService creates a new TokenService instance.
func NewTokenService(
	repos db.RepoRepository,
	tokens db.TokenRepository,
	layout db.Layout,
	locks *repolock.Registry,
	as AuditService,
	cfg *config.Config,
	logger *zap.Logger,
) TokenService {
	return &tokenService{
		repoLoader:   repoLoader{repos: repos},
		runner:       sessionRunner{locks: locks},
		tokenRepo:    tokens,
		layout:       layout,
		auditService: as,
		config:       cfg,
		logger:       logger,
	}
}

func validateTokenRequest(req models.CreateTokenRequest) (string, models.TokenPermission, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return "", "", validationError("token name is required")
	}
	if len(name) > maxTokenNameLength {
		return "", "", validationError("token name must be at most %d characters", maxTokenNameLength)
	}
	perm := req.Permission
	if perm == "" {
		perm = models.TokenRead
	}
	if !perm.Valid() {
		return "", "", validationError("invalid token permission %q", perm)
	}
	return name, perm, nil
}

// issue builds a new token record and its one-time secret.
func (s *tokenService) issue(name string, perm models.TokenPermission, userID string) (models.TokenRecord, string, error) {
	raw := make([]byte, tokenSecretBytes)
	if _, err := rand.Read(raw); err != nil {
		return models.TokenRecord{}, "", fmt.Errorf("failed to generate token secret: %w", err)
	}
	secret := hex.EncodeToString(raw)
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), s.config.TokenHashCost)
	if err != nil {
		return models.TokenRecord{}, "", fmt.Errorf("failed to hash token secret: %w", err)
	}
	record := models.TokenRecord{
		AccessToken: models.AccessToken{
			ID:         uuid.NewString(),
			UserID:     userID,
			Name:       name,
			Permission: perm,
			CreatedAt:  time.Now().UTC(),
		},
		TokenHash: string(hash),
	}
	return record, record.ID + "." + secret, nil
}

func publicTokens(records []models.TokenRecord, keep func(models.TokenRecord) bool) []models.AccessToken {
	tokens := make([]models.AccessToken, 0, len(records))
	for _, r := range records {
		if keep == nil || keep(r) {
			tokens = append(tokens, r.Public())
		}
	}
	return tokens
}

// ListAccountTokens lists the account tokens of the requesting user.
func (s *tokenService) ListAccountTokens(ctx context.Context, requester access.Requester) ([]models.AccessToken, error) {
	if !requester.Authenticated() {
		return nil, ErrUnauthenticated
	}
	records, err := s.tokenRepo.List(ctx, s.layout.AccountTokensPath())
	if err != nil {
		return nil, err
	}
	return publicTokens(records, func(r models.TokenRecord) bool { return r.UserID == requester.UserID }), nil
}

// CreateAccountToken issues a token valid on every repository the requesting user can reach.
func (s *tokenService) CreateAccountToken(ctx context.Context, requester access.Requester, req models.CreateTokenRequest) (*models.IssuedToken, error) {
	if !requester.Authenticated() {
		return nil, ErrUnauthenticated
	}
	name, perm, err := validateTokenRequest(req)
	if err != nil {
		return nil, err
	}
	record, secret, err := s.issue(name, perm, requester.UserID)
	if err != nil {
		return nil, err
	}
	if err := s.tokenRepo.Add(ctx, s.layout.AccountTokensPath(), record); err != nil {
		return nil, fmt.Errorf("failed to store account token: %w", err)
	}

	recordAudit(ctx, s.auditService, s.logger, models.AuditEvent{
		Type:     AuditAccountTokenCreated,
		ActorID:  requester.UserID,
		Metadata: map[string]interface{}{"tokenId": record.ID, "permission": string(perm)},
	})
	return &models.IssuedToken{Token: record.Public(), Secret: secret}, nil
}

// DeleteAccountToken revokes one of the requesting user's account tokens.
func (s *tokenService) DeleteAccountToken(ctx context.Context, requester access.Requester, tokenID string) error {
	if !requester.Authenticated() {
		return ErrUnauthenticated
	}
	removed, err := s.tokenRepo.Remove(ctx, s.layout.AccountTokensPath(), func(r models.TokenRecord) bool {
		return r.ID == tokenID && r.UserID == requester.UserID
	})
	if err != nil {
		return fmt.Errorf("failed to delete account token: %w", err)
	}
	if !removed {
		return fmt.Errorf("%w: %s", ErrTokenNotFound, tokenID)
	}

	recordAudit(ctx, s.auditService, s.logger, models.AuditEvent{
		Type:     AuditAccountTokenDeleted,
		ActorID:  requester.UserID,
		Metadata: map[string]interface{}{"tokenId": tokenID},
	})
	return nil
}

// ListRepoTokens lists the tokens of a repository. Owner only.
func (s *tokenService) ListRepoTokens(ctx context.Context, requester access.Requester, repoID string) ([]models.AccessToken, error) {
	rec, _, err := s.authorize(ctx, requester, repoID, access.Owner, true)
	if err != nil {
		return nil, err
	}
	records, err := s.tokenRepo.List(ctx, rec.TokensPath())
	if err != nil {
		return nil, err
	}
	return publicTokens(records, nil), nil
}

// CreateRepoToken issues a token valid on one repository only. Owner only.
func (s *tokenService) CreateRepoToken(ctx context.Context, requester access.Requester, repoID string, req models.CreateTokenRequest) (*models.IssuedToken, error) {
	name, perm, err := validateTokenRequest(req)
	if err != nil {
		return nil, err
	}
	rec, decision, err := s.authorize(ctx, requester, repoID, access.Owner, true)
	if err != nil {
		return nil, err
	}
	record, secret, err := s.issue(name, perm, "")
	if err != nil {
		return nil, err
	}
	err = s.runner.lock(ctx, rec, func() error {
		return s.tokenRepo.Add(ctx, rec.TokensPath(), record)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store repository token: %w", err)
	}

	recordAudit(ctx, s.auditService, s.logger, models.AuditEvent{
		Type:     AuditRepoTokenCreated,
		ActorID:  auditKey(decision.Actor),
		RepoID:   repoID,
		Metadata: map[string]interface{}{"tokenId": record.ID, "permission": string(perm)},
	})
	return &models.IssuedToken{Token: record.Public(), Secret: secret}, nil
}

// DeleteRepoToken revokes a repository token. Owner only.
func (s *tokenService) DeleteRepoToken(ctx context.Context, requester access.Requester, repoID, tokenID string) error {
	rec, decision, err := s.authorize(ctx, requester, repoID, access.Owner, true)
	if err != nil {
		return err
	}
	var removed bool
	err = s.runner.lock(ctx, rec, func() error {
		var err error
		removed, err = s.tokenRepo.Remove(ctx, rec.TokensPath(), func(r models.TokenRecord) bool {
			return r.ID == tokenID
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to delete repository token: %w", err)
	}
	if !removed {
		return fmt.Errorf("%w: %s", ErrTokenNotFound, tokenID)
	}

	recordAudit(ctx, s.auditService, s.logger, models.AuditEvent{
		Type:     AuditRepoTokenDeleted,
		ActorID:  auditKey(decision.Actor),
		RepoID:   repoID,
		Metadata: map[string]interface{}{"tokenId": tokenID},
	})
	return nil
}

// Verify resolves a presented secret to a credential.
//
// The repository pool of repoID is consulted first, then the account pool. A match is
// stamped with its use time through the store; if the token disappeared in between the
// stamp fails and the secret is rejected.
func (s *tokenService) Verify(ctx context.Context, repoID, secret string) (*access.Credential, error) {
	// Secrets look like "<tokenId>.<hex>"; the id part selects the record to compare.
	tokenID, raw, ok := strings.Cut(strings.TrimSpace(secret), ".")
	if !ok || tokenID == "" || raw == "" {
		return nil, ErrInvalidToken
	}

	// --- 1. Repository pool, only on repository routes ---
	if repoID != "" {
		rec, err := s.load(ctx, repoID)
		switch {
		case err == nil:
			token, err := s.match(ctx, rec.TokensPath(), tokenID, raw, nil)
			if err != nil {
				return nil, err
			}
			if token != nil {
				return &access.Credential{Scope: access.ScopeRepo, Token: *token, RepoID: repoID}, nil
			}
		case !errors.Is(err, ErrNotFound):
			return nil, err
		}
		// A missing repository falls through: an account token may still be valid.
	}

	// --- 2. Account pool ---
	token, err := s.match(ctx, s.layout.AccountTokensPath(), tokenID, raw, func(r models.TokenRecord) bool {
		return r.UserID != ""
	})
	if err != nil {
		return nil, err
	}
	if token != nil {
		return &access.Credential{Scope: access.ScopeAccount, Token: *token}, nil
	}
	return nil, ErrInvalidToken
}

// match looks tokenID up in pool and checks raw against its hash. A nil token with a nil
// error means no match.
func (s *tokenService) match(ctx context.Context, pool, tokenID, raw string, accept func(models.TokenRecord) bool) (*models.AccessToken, error) {
	records, err := s.tokenRepo.List(ctx, pool)
	if err != nil {
		return nil, err
	}
	for _, r := range records {
		if r.ID != tokenID || (accept != nil && !accept(r)) {
			continue
		}
		// Ids are unique per pool, so a wrong secret for this id ends the search.
		if bcrypt.CompareHashAndPassword([]byte(r.TokenHash), []byte(raw)) != nil {
			return nil, nil
		}
		touched, err := s.tokenRepo.Touch(ctx, pool, r.ID, time.Now())
		if err != nil {
			if errors.Is(err, db.ErrNotFound) {
				return nil, nil // revoked between List and Touch
			}
			return nil, fmt.Errorf("failed to record token use: %w", err)
		}
		token := touched.Public()
		return &token, nil
	}
	return nil, nil
}
