package services

import (
	"errors"

	"repair_shop_backend/internal/repositories"
	"repair_shop_backend/pkg/apperrors"
)

// mapRepoErr turns repository sentinels into typed service errors for entity/id.
// Errors that are already typed pass through unchanged.
func mapRepoErr(err error, entity string, id any) error {
	if err == nil {
		return nil
	}
	if _, ok := apperrors.As(err); ok {
		return err
	}
	switch {
	case errors.Is(err, repositories.ErrNotFound):
		return apperrors.NotFound(entity, id)
	case errors.Is(err, repositories.ErrConflict):
		return apperrors.Conflict("%s %v was modified concurrently", entity, id).WithCause(err)
	case errors.Is(err, repositories.ErrDuplicateKey):
		return apperrors.Conflict("%s already exists", entity).WithCause(err)
	case errors.Is(err, repositories.ErrForeignKey):
		return apperrors.Precondition(entity, id, "references a record that does not exist").WithCause(err)
	case errors.Is(err, repositories.ErrCheckViolation):
		return apperrors.Precondition(entity, id, "rejected by a storage constraint").WithCause(err)
	}
	return err
}
