package core

import (
	"errors"
	"fmt"

	"repohub-backend-go/internal/access"
	"repohub-backend-go/internal/db"
	"repohub-backend-go/internal/gitengine"
)

// Error categories. Every error returned by a service wraps exactly one of them, so the
// boundary can classify failures with errors.Is.
var (
	ErrValidation      = errors.New("validation failed")
	ErrNotFound        = errors.New("not found")
	ErrForbidden       = errors.New("forbidden")
	ErrConflict        = errors.New("conflict")
	ErrLockTimeout     = db.ErrLockTimeout
	ErrUpstreamEngine  = errors.New("version control engine rejected the operation")
	ErrUnauthenticated = errors.New("authentication required")
)

var (
	ErrRepoNotFound         = fmt.Errorf("%w: repository not found", ErrNotFound)
	ErrBranchNotFound       = fmt.Errorf("%w: branch not found", ErrNotFound)
	ErrRefNotFound          = fmt.Errorf("%w: reference not found", ErrNotFound)
	ErrFileNotFound         = fmt.Errorf("%w: file not found", ErrNotFound)
	ErrTokenNotFound        = fmt.Errorf("%w: token not found", ErrNotFound)
	ErrUserNotFound         = fmt.Errorf("%w: user not found", ErrNotFound)
	ErrCollaboratorNotFound = fmt.Errorf("%w: collaborator not found", ErrNotFound)

	ErrRepoExists   = fmt.Errorf("%w: repository with the same name already exists for this owner", ErrConflict)
	ErrBranchExists = fmt.Errorf("%w: branch already exists", ErrConflict)
	ErrFileTooLarge = fmt.Errorf("%w: file exceeds maximum allowed size", ErrConflict)
	ErrRepoTooLarge = fmt.Errorf("%w: repository size limit exceeded", ErrConflict)

	ErrInsufficientPermission = fmt.Errorf("%w: insufficient repository permissions", ErrForbidden)
	ErrInvalidInviteCode      = fmt.Errorf("%w: invalid invite code", ErrForbidden)

	ErrDefaultBranchDeletion = fmt.Errorf("%w: cannot delete default branch", ErrUpstreamEngine)

	ErrInvalidToken = fmt.Errorf("%w: invalid or revoked token", ErrUnauthenticated)
)

func validationError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// accessError translates a resolver refusal into a service error.
func accessError(err error) error {
	switch {
	case errors.Is(err, access.ErrUnauthenticated):
		return ErrUnauthenticated
	case errors.Is(err, access.ErrForbidden):
		return ErrInsufficientPermission
	default:
		return err
	}
}

// engineError classifies an error from the version-control engine.
func engineError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrLockTimeout),
		errors.Is(err, ErrValidation),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrConflict),
		errors.Is(err, ErrForbidden),
		errors.Is(err, ErrUpstreamEngine):
		return err
	case errors.Is(err, gitengine.ErrRefNotFound):
		return fmt.Errorf("%w: %v", ErrRefNotFound, err)
	case errors.Is(err, gitengine.ErrFileNotFound):
		return fmt.Errorf("%w: %v", ErrFileNotFound, err)
	case errors.Is(err, gitengine.ErrBranchExists):
		return fmt.Errorf("%w: %v", ErrBranchExists, err)
	case errors.Is(err, gitengine.ErrInvalidBranchName), errors.Is(err, gitengine.ErrInvalidPath):
		return fmt.Errorf("%w: %v", ErrValidation, err)
	default:
		return fmt.Errorf("%w: %v", ErrUpstreamEngine, err)
	}
}
