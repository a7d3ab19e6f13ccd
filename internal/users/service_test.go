package users_test

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"staffroster.org/internal/apperr"
	"staffroster.org/internal/auth"
	"staffroster.org/internal/store/memory"
	"staffroster.org/internal/users"
)

func newService(t *testing.T) (*users.Service, *memory.Store) {
	t.Helper()
	store := memory.New()
	svc, err := users.NewService(store, users.WithPageSizes(2, 5))
	require.NoError(t, err)
	return svc, store
}

func seed(t *testing.T, store *memory.Store, email string, role auth.Role, status auth.Status) *auth.Principal {
	t.Helper()
	p := &auth.Principal{Email: email, FullName: "Seed User", Role: role, Status: status}
	ctx := context.Background()
	_, err := auth.WithUnitOfWork(ctx, store, func(uow auth.UnitOfWork) (struct{}, error) {
		return struct{}{}, uow.Users().Save(ctx, p)
	})
	require.NoError(t, err)
	return p
}

func validRegistration() users.RegisterInput {
	return users.RegisterInput{
		Email:           "New.Hire@Example.com",
		FullName:        "  New   Hire ",
		PhoneNumber:     "+1 555 000 1111",
		Password:        "welcome-123",
		ConfirmPassword: "welcome-123",
	}
}

func TestRegisterDefaults(t *testing.T) {
	svc, store := newService(t)
	admin := seed(t, store, "admin@example.com", auth.RoleAdmin, auth.StatusActive)

	p, err := svc.Register(context.Background(), admin, validRegistration())
	require.NoError(t, err)
	require.NotEmpty(t, p.ID)
	require.Equal(t, "new.hire@example.com", p.Email)
	require.Equal(t, "New Hire", p.FullName)
	require.Equal(t, "+15550001111", p.PhoneNumber)
	require.Equal(t, auth.RoleWorker, p.Role)
	require.Equal(t, auth.StatusPendingPasswordChange, p.Status)
	require.True(t, p.IsFirstLogin)
	require.Equal(t, admin.ID, p.CreatedByID)
	require.NoError(t, auth.VerifyPassword(p.PasswordHash, "welcome-123"))
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc, store := newService(t)
	admin := seed(t, store, "admin@example.com", auth.RoleAdmin, auth.StatusActive)
	seed(t, store, "new.hire@example.com", auth.RoleWorker, auth.StatusActive)

	_, err := svc.Register(context.Background(), admin, validRegistration())
	require.ErrorIs(t, err, apperr.ErrDuplicateResource)
	e, _ := apperr.As(err)
	require.Equal(t, 409, e.HTTPStatus())
}

func TestRegisterValidation(t *testing.T) {
	svc, _ := newService(t)
	in := validRegistration()
	in.ConfirmPassword = "something-else"
	in.Role = "janitor"
	_, err := svc.Register(context.Background(), nil, in)
	require.ErrorIs(t, err, apperr.ErrValidationFailed)
	e, _ := apperr.As(err)
	require.Len(t, e.Details["errors"], 2)
}

func TestListPaginates(t *testing.T) {
	svc, store := newService(t)
	for _, email := range []string{"a@example.com", "b@example.com", "c@example.com"} {
		seed(t, store, email, auth.RoleWorker, auth.StatusActive)
	}
	seed(t, store, "m@example.com", auth.RoleManager, auth.StatusSuspended)
	ctx := context.Background()

	page, err := svc.List(ctx, users.Query{})
	require.NoError(t, err)
	require.Equal(t, 4, page.Total)
	require.Equal(t, 2, page.PageSize)
	require.Equal(t, 2, page.Pages)
	require.Len(t, page.Items, 2)

	page, err = svc.List(ctx, users.Query{Page: 2, PageSize: 3, Role: "worker"})
	require.NoError(t, err)
	require.Equal(t, 3, page.Total)
	require.Empty(t, page.Items)

	page, err = svc.List(ctx, users.Query{Status: "SUSPENDED"})
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)

	_, err = svc.List(ctx, users.Query{PageSize: 6})
	require.ErrorIs(t, err, apperr.ErrValidationFailed)

	_, err = svc.List(ctx, users.Query{Status: "sleeping"})
	require.ErrorIs(t, err, apperr.ErrValidationFailed)
}

func TestListRejectsOverflowingPage(t *testing.T) {
	svc, store := newService(t)
	seed(t, store, "a@example.com", auth.RoleWorker, auth.StatusActive)
	ctx := context.Background()

	_, err := svc.List(ctx, users.Query{Page: math.MaxInt, PageSize: 2})
	require.ErrorIs(t, err, apperr.ErrValidationFailed)
	e, _ := apperr.As(err)
	fields, ok := e.Details["errors"].([]apperr.FieldError)
	require.True(t, ok)
	require.Len(t, fields, 1)
	require.Equal(t, "page", fields[0].Field)

	page, err := svc.List(ctx, users.Query{Page: 1000, PageSize: 2})
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)
	require.Empty(t, page.Items)
}

func TestManageable(t *testing.T) {
	svc, store := newService(t)
	manager := seed(t, store, "manager@example.com", auth.RoleManager, auth.StatusActive)
	seed(t, store, "peer@example.com", auth.RoleManager, auth.StatusActive)
	seed(t, store, "owner@example.com", auth.RoleOwner, auth.StatusActive)
	floor := seed(t, store, "floor@example.com", auth.RoleFloorManager, auth.StatusActive)
	worker := seed(t, store, "worker@example.com", auth.RoleWorker, auth.StatusPendingPasswordChange)
	seed(t, store, "gone@example.com", auth.RoleWorker, auth.StatusInactive)

	got, err := svc.Manageable(context.Background(), manager)
	require.NoError(t, err)
	ids := make([]string, 0, len(got))
	for _, p := range got {
		ids = append(ids, p.ID)
	}
	require.ElementsMatch(t, []string{floor.ID, worker.ID}, ids)

	got, err = svc.Manageable(context.Background(), worker)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestStatistics(t *testing.T) {
	svc, store := newService(t)
	seed(t, store, "a@example.com", auth.RoleAdmin, auth.StatusActive)
	seed(t, store, "b@example.com", auth.RoleWorker, auth.StatusPendingPasswordChange)
	seed(t, store, "c@example.com", auth.RoleWorker, auth.StatusLocked)
	_, err := svc.Register(context.Background(), nil, validRegistration())
	require.NoError(t, err)

	stats, err := svc.Statistics(context.Background())
	require.NoError(t, err)
	require.Equal(t, 4, stats.Total)
	require.Equal(t, 3, stats.Active)
	require.Equal(t, 1, stats.PendingFirstLogin)
	require.Equal(t, 3, stats.ByRole[auth.RoleWorker])
	require.Equal(t, 0, stats.ByRole[auth.RoleOwner])
	require.Equal(t, 1, stats.ByStatus[auth.StatusLocked])
}

func strPtr(s string) *string { return &s }

func TestUpdate(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	owner := seed(t, store, "owner@example.com", auth.RoleOwner, auth.StatusActive)
	worker := seed(t, store, "worker@example.com", auth.RoleWorker, auth.StatusActive)
	admin := seed(t, store, "admin@example.com", auth.RoleAdmin, auth.StatusActive)

	got, err := svc.Update(ctx, owner, worker.ID, users.UpdateInput{Role: strPtr("manager"), FullName: strPtr("Promoted  Worker")})
	require.NoError(t, err)
	require.Equal(t, auth.RoleManager, got.Role)
	require.Equal(t, "Promoted Worker", got.FullName)

	_, err = svc.Update(ctx, owner, worker.ID, users.UpdateInput{Role: strPtr("OWNER")})
	require.ErrorIs(t, err, apperr.ErrAuthorizationDenied)

	_, err = svc.Update(ctx, owner, admin.ID, users.UpdateInput{FullName: strPtr("Nope Nope")})
	require.ErrorIs(t, err, apperr.ErrAuthorizationDenied)

	_, err = svc.Update(ctx, owner, worker.ID, users.UpdateInput{Email: strPtr("admin@example.com")})
	require.ErrorIs(t, err, apperr.ErrDuplicateResource)

	_, err = svc.Update(ctx, owner, worker.ID, users.UpdateInput{})
	require.ErrorIs(t, err, apperr.ErrValidationFailed)

	_, err = svc.Update(ctx, owner, "missing", users.UpdateInput{FullName: strPtr("Who Knows")})
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestUpdateSelf(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	manager := seed(t, store, "manager@example.com", auth.RoleManager, auth.StatusActive)

	got, err := svc.Update(ctx, manager, manager.ID, users.UpdateInput{PhoneNumber: strPtr("+44 20 7946 0958")})
	require.NoError(t, err)
	require.Equal(t, "+442079460958", got.PhoneNumber)

	_, err = svc.Update(ctx, manager, manager.ID, users.UpdateInput{Role: strPtr("OWNER")})
	require.ErrorIs(t, err, apperr.ErrAuthorizationDenied)
}

func TestDeactivate(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	admin := seed(t, store, "admin@example.com", auth.RoleAdmin, auth.StatusActive)
	worker := seed(t, store, "worker@example.com", auth.RoleWorker, auth.StatusActive)

	got, err := svc.Deactivate(ctx, admin, worker.ID)
	require.NoError(t, err)
	require.Equal(t, auth.StatusInactive, got.Status)

	stored, err := svc.Get(ctx, worker.ID)
	require.NoError(t, err)
	require.Equal(t, auth.StatusInactive, stored.Status)

	_, err = svc.Deactivate(ctx, admin, admin.ID)
	require.ErrorIs(t, err, apperr.ErrAuthorizationDenied)
}

func TestBulkUpdateStatus(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	manager := seed(t, store, "manager@example.com", auth.RoleManager, auth.StatusActive)
	a := seed(t, store, "a@example.com", auth.RoleWorker, auth.StatusActive)
	b := seed(t, store, "b@example.com", auth.RoleFloorManager, auth.StatusActive)
	owner := seed(t, store, "owner@example.com", auth.RoleOwner, auth.StatusActive)

	n, err := svc.BulkUpdateStatus(ctx, manager, users.BulkStatusInput{UserIDs: []string{a.ID, b.ID, a.ID}, Status: "suspended"})
	require.NoError(t, err)
	require.Equal(t, 2, n)

	_, err = svc.BulkUpdateStatus(ctx, manager, users.BulkStatusInput{UserIDs: []string{a.ID, owner.ID}, Status: "ACTIVE"})
	require.ErrorIs(t, err, apperr.ErrAuthorizationDenied)
	stored, err := svc.Get(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, auth.StatusSuspended, stored.Status)

	_, err = svc.BulkUpdateStatus(ctx, manager, users.BulkStatusInput{UserIDs: []string{manager.ID}, Status: "ACTIVE"})
	require.ErrorIs(t, err, apperr.ErrAuthorizationDenied)

	_, err = svc.BulkUpdateStatus(ctx, manager, users.BulkStatusInput{Status: "ACTIVE"})
	require.ErrorIs(t, err, apperr.ErrValidationFailed)
}

func TestCreateAdmin(t *testing.T) {
	svc, _ := newService(t)
	p, err := svc.CreateAdmin(context.Background(), "root@example.com", "Root Admin", "super-secret-1")
	require.NoError(t, err)
	require.Equal(t, auth.RoleAdmin, p.Role)
	require.Equal(t, auth.StatusActive, p.Status)
	require.False(t, p.IsFirstLogin)

	_, err = svc.CreateAdmin(context.Background(), "root@example.com", "Root Admin", "super-secret-1")
	require.ErrorIs(t, err, apperr.ErrDuplicateResource)
}
