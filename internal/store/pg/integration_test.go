//go:build integration

package pg_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"staffroster.org/internal/apperr"
	"staffroster.org/internal/auth"
	"staffroster.org/internal/migrate"
	"staffroster.org/internal/store/pg"
	"staffroster.org/migrations"
)

func setupPostgres(t *testing.T, ctx context.Context) *pg.Store {
	t.Helper()
	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "staffroster",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	store, err := pg.Open(ctx, pg.Config{
		DSN: fmt.Sprintf("postgres://test:test@%s:%s/staffroster?sslmode=disable", host, port.Port()),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	applied, err := migrate.NewManager(store.DB(), migrations.SQL()).Up(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, applied)
	return store
}

func TestIntegration_UserLifecycle(t *testing.T) {
	ctx := context.Background()
	store := setupPostgres(t, ctx)

	admin := &auth.Principal{
		Email:        "Admin@Example.com",
		PasswordHash: "$2a$10$placeholderplaceholderplaceholderplaceholderplacehold",
		FullName:     "Ada Admin",
		Role:         auth.RoleAdmin,
		Status:       auth.StatusActive,
	}
	_, err := auth.WithUnitOfWork(ctx, store, func(uow auth.UnitOfWork) (struct{}, error) {
		return struct{}{}, uow.Users().Save(ctx, admin)
	})
	require.NoError(t, err)
	require.NotEmpty(t, admin.ID)
	require.Equal(t, "admin@example.com", admin.Email)

	worker := &auth.Principal{
		Email:        "worker@example.com",
		PasswordHash: admin.PasswordHash,
		FullName:     "Walt Worker",
		PhoneNumber:  "+15550001111",
		Role:         auth.RoleWorker,
		Status:       auth.StatusPendingPasswordChange,
		IsFirstLogin: true,
		CreatedByID:  admin.ID,
	}
	_, err = auth.WithUnitOfWork(ctx, store, func(uow auth.UnitOfWork) (struct{}, error) {
		return struct{}{}, uow.Users().Save(ctx, worker)
	})
	require.NoError(t, err)

	t.Run("find by email", func(t *testing.T) {
		got, err := auth.WithUnitOfWork(ctx, store, func(uow auth.UnitOfWork) (*auth.Principal, error) {
			return uow.Users().FindByEmail(ctx, "WORKER@example.com")
		})
		require.NoError(t, err)
		require.Equal(t, worker.ID, got.ID)
		require.Equal(t, admin.ID, got.CreatedByID)
		require.True(t, got.IsFirstLogin)
	})

	t.Run("duplicate email", func(t *testing.T) {
		dup := *worker
		dup.ID = ""
		_, err := auth.WithUnitOfWork(ctx, store, func(uow auth.UnitOfWork) (struct{}, error) {
			return struct{}{}, uow.Users().Save(ctx, &dup)
		})
		require.ErrorIs(t, err, apperr.ErrDuplicateResource)
	})

	t.Run("list and counts", func(t *testing.T) {
		type listing struct {
			users []*auth.Principal
			total int
		}
		got, err := auth.WithUnitOfWork(ctx, store, func(uow auth.UnitOfWork) (listing, error) {
			users, total, err := uow.Users().List(ctx, auth.UserFilter{
				Roles:     []auth.Role{auth.RoleWorker, auth.RoleFloorManager},
				ExcludeID: admin.ID,
				Limit:     10,
			})
			return listing{users, total}, err
		})
		require.NoError(t, err)
		require.Equal(t, 1, got.total)
		require.Len(t, got.users, 1)
		require.Equal(t, worker.ID, got.users[0].ID)
	})

	t.Run("bulk status", func(t *testing.T) {
		n, err := auth.WithUnitOfWork(ctx, store, func(uow auth.UnitOfWork) (int, error) {
			return uow.Users().BulkUpdateStatus(ctx, []string{worker.ID, worker.ID}, auth.StatusSuspended)
		})
		require.NoError(t, err)
		require.Equal(t, 1, n)

		counts, err := auth.WithUnitOfWork(ctx, store, func(uow auth.UnitOfWork) (map[auth.Status]int, error) {
			return uow.Users().CountByStatus(ctx)
		})
		require.NoError(t, err)
		require.Equal(t, 1, counts[auth.StatusSuspended])
		require.Equal(t, 1, counts[auth.StatusActive])
	})
}
