package report

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("report not found")
	// ErrOwnerMissing means the owning user was deleted before the insert.
	ErrOwnerMissing = errors.New("report owner does not exist")
)

// Repository persists reports. Every read and delete is scoped to the owner,
// so a report belonging to someone else is indistinguishable from a missing
// one.
type Repository interface {
	Create(ctx context.Context, r *Report) error
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Summary, error)
	GetForUser(ctx context.Context, userID, id uuid.UUID) (*Report, error)
	DeleteForUser(ctx context.Context, userID, id uuid.UUID) error
}
