package auth

import (
	"context"
	"fmt"
)

// Store opens units of work against the persistence layer.
type Store interface {
	Begin(ctx context.Context) (UnitOfWork, error)
}

// UnitOfWork groups repository calls into one transaction. Changes become
// visible to other units only after Commit. Rollback after Commit is a no-op.
type UnitOfWork interface {
	Users() UserRepository
	Commit() error
	Rollback() error
}

// UserFilter narrows List results. Zero values mean "no constraint".
type UserFilter struct {
	Roles          []Role
	Statuses       []Status
	FirstLoginOnly bool
	ExcludeID      string
	Limit          int
	Offset         int
}

// UserRepository persists principals.
type UserRepository interface {
	FindByID(ctx context.Context, id string) (*Principal, error)
	FindByEmail(ctx context.Context, email string) (*Principal, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	// Save inserts p when p.ID is empty and updates it otherwise. ID and
	// timestamps are written back into p.
	Save(ctx context.Context, p *Principal) error
	// List returns the requested page ordered by creation time together
	// with the total number of matching rows.
	List(ctx context.Context, filter UserFilter) ([]*Principal, int, error)
	CountByStatus(ctx context.Context) (map[Status]int, error)
	CountByRole(ctx context.Context) (map[Role]int, error)
	BulkUpdateStatus(ctx context.Context, ids []string, status Status) (int, error)
}

// WithUnitOfWork runs fn inside a new unit of work, committing when fn
// succeeds and rolling back on error or panic.
func WithUnitOfWork[T any](ctx context.Context, store Store, fn func(UnitOfWork) (T, error)) (result T, err error) {
	uow, err := store.Begin(ctx)
	if err != nil {
		return result, fmt.Errorf("begin unit of work: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = uow.Rollback()
		}
	}()

	result, err = fn(uow)
	if err != nil {
		return result, err
	}
	if err := uow.Commit(); err != nil {
		var zero T
		return zero, fmt.Errorf("commit unit of work: %w", err)
	}
	committed = true
	return result, nil
}
