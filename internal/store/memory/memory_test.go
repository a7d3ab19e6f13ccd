package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"staffroster.org/internal/apperr"
	"staffroster.org/internal/auth"
)

func save(t *testing.T, s *Store, p *auth.Principal) *auth.Principal {
	t.Helper()
	ctx := context.Background()
	out, err := auth.WithUnitOfWork(ctx, s, func(uow auth.UnitOfWork) (*auth.Principal, error) {
		return p, uow.Users().Save(ctx, p)
	})
	require.NoError(t, err)
	return out
}

func TestSaveAssignsIDAndNormalizesEmail(t *testing.T) {
	s := New()
	p := save(t, s, &auth.Principal{Email: "  Alice@Example.COM ", Role: auth.RoleWorker, Status: auth.StatusActive})
	require.NotEmpty(t, p.ID)
	require.Equal(t, "alice@example.com", p.Email)
	require.False(t, p.CreatedAt.IsZero())

	ctx := context.Background()
	uow, err := s.Begin(ctx)
	require.NoError(t, err)
	defer uow.Rollback()
	got, err := uow.Users().FindByEmail(ctx, "ALICE@example.com")
	require.NoError(t, err)
	require.Equal(t, p.ID, got.ID)
}

func TestRollbackDiscardsChanges(t *testing.T) {
	s := New()
	ctx := context.Background()
	uow, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, uow.Users().Save(ctx, &auth.Principal{Email: "bob@example.com", Role: auth.RoleWorker}))
	require.NoError(t, uow.Rollback())

	uow2, err := s.Begin(ctx)
	require.NoError(t, err)
	defer uow2.Rollback()
	exists, err := uow2.Users().EmailExists(ctx, "bob@example.com")
	require.NoError(t, err)
	require.False(t, exists)
}

func TestCommitRejectsConcurrentDuplicateEmail(t *testing.T) {
	s := New()
	ctx := context.Background()
	a, err := s.Begin(ctx)
	require.NoError(t, err)
	b, err := s.Begin(ctx)
	require.NoError(t, err)

	require.NoError(t, a.Users().Save(ctx, &auth.Principal{Email: "dup@example.com"}))
	require.NoError(t, b.Users().Save(ctx, &auth.Principal{Email: "dup@example.com"}))
	require.NoError(t, a.Commit())

	err = b.Commit()
	require.ErrorIs(t, err, apperr.ErrDuplicateResource)
}

func TestSaveDuplicateEmailInsideUnit(t *testing.T) {
	s := New()
	save(t, s, &auth.Principal{Email: "carol@example.com"})

	_, err := auth.WithUnitOfWork(context.Background(), s, func(uow auth.UnitOfWork) (struct{}, error) {
		return struct{}{}, uow.Users().Save(context.Background(), &auth.Principal{Email: "CAROL@example.com"})
	})
	require.ErrorIs(t, err, apperr.ErrDuplicateResource)
	e, ok := apperr.As(err)
	require.True(t, ok)
	require.Equal(t, "EMAIL_ALREADY_EXISTS", e.ErrorCode())
}

func TestFindByIDNotFound(t *testing.T) {
	s := New()
	ctx := context.Background()
	uow, err := s.Begin(ctx)
	require.NoError(t, err)
	defer uow.Rollback()
	_, err = uow.Users().FindByID(ctx, "missing")
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestListFiltersAndPaginates(t *testing.T) {
	s := New()
	var workers []string
	for i := 0; i < 5; i++ {
		p := save(t, s, &auth.Principal{
			Email:        string(rune('a'+i)) + "@example.com",
			Role:         auth.RoleWorker,
			Status:       auth.StatusActive,
			IsFirstLogin: i%2 == 0,
		})
		workers = append(workers, p.ID)
	}
	save(t, s, &auth.Principal{Email: "boss@example.com", Role: auth.RoleManager, Status: auth.StatusInactive})

	ctx := context.Background()
	uow, err := s.Begin(ctx)
	require.NoError(t, err)
	defer uow.Rollback()
	users := uow.Users()

	page, total, err := users.List(ctx, auth.UserFilter{Roles: []auth.Role{auth.RoleWorker}, Limit: 2, Offset: 2})
	require.NoError(t, err)
	require.Equal(t, 5, total)
	require.Len(t, page, 2)

	_, total, err = users.List(ctx, auth.UserFilter{FirstLoginOnly: true})
	require.NoError(t, err)
	require.Equal(t, 3, total)

	_, total, err = users.List(ctx, auth.UserFilter{Statuses: []auth.Status{auth.StatusInactive}})
	require.NoError(t, err)
	require.Equal(t, 1, total)

	_, total, err = users.List(ctx, auth.UserFilter{ExcludeID: workers[0]})
	require.NoError(t, err)
	require.Equal(t, 5, total)

	page, total, err = users.List(ctx, auth.UserFilter{Offset: 10})
	require.NoError(t, err)
	require.Equal(t, 6, total)
	require.Empty(t, page)

	first, _, err := users.List(ctx, auth.UserFilter{Limit: 2})
	require.NoError(t, err)
	page, total, err = users.List(ctx, auth.UserFilter{Limit: 2, Offset: -4})
	require.NoError(t, err)
	require.Equal(t, 6, total)
	require.Equal(t, first, page)
}

func TestCountsAndBulkUpdate(t *testing.T) {
	s := New()
	a := save(t, s, &auth.Principal{Email: "a@example.com", Role: auth.RoleWorker, Status: auth.StatusActive})
	b := save(t, s, &auth.Principal{Email: "b@example.com", Role: auth.RoleWorker, Status: auth.StatusActive})
	save(t, s, &auth.Principal{Email: "c@example.com", Role: auth.RoleOwner, Status: auth.StatusActive})

	ctx := context.Background()
	n, err := auth.WithUnitOfWork(ctx, s, func(uow auth.UnitOfWork) (int, error) {
		return uow.Users().BulkUpdateStatus(ctx, []string{a.ID, b.ID, b.ID, "missing"}, auth.StatusSuspended)
	})
	require.NoError(t, err)
	require.Equal(t, 2, n)

	uow, err := s.Begin(ctx)
	require.NoError(t, err)
	defer uow.Rollback()
	byStatus, err := uow.Users().CountByStatus(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, byStatus[auth.StatusSuspended])
	require.Equal(t, 1, byStatus[auth.StatusActive])

	byRole, err := uow.Users().CountByRole(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, byRole[auth.RoleWorker])
	require.Equal(t, 1, byRole[auth.RoleOwner])
}
