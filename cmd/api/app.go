package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"staffroster.org/internal/auth"
	"staffroster.org/internal/config"
	"staffroster.org/internal/migrate"
	"staffroster.org/internal/obs"
	"staffroster.org/internal/store/memory"
	"staffroster.org/internal/store/pg"
	"staffroster.org/internal/users"
	"staffroster.org/migrations"
)

// StoreFlags selects and prepares the persistence backend.
type StoreFlags struct {
	Store       string `help:"Storage backend (memory or postgres)." default:"postgres" enum:"memory,postgres" env:"STORE_TYPE"`
	AutoMigrate bool   `help:"Apply pending migrations on startup (postgres only)." env:"AUTO_MIGRATE"`
}

// app holds the wired services of one process.
type app struct {
	cfg   *config.Config
	store auth.Store
	ping  func(context.Context) error
	close func() error

	auth  *auth.Service
	users *users.Service
}

func newApp(ctx context.Context, g *Globals, sf StoreFlags) (*app, error) {
	cfg, err := config.Load(g.Config)
	if err != nil {
		return nil, err
	}
	obs.Setup(os.Stdout, cfg.Log.Level, cfg.Log.Format)
	obs.Init()
	obs.InitBuildInfo(cfg.App.Name, g.Version, g.Commit)

	a := &app{cfg: cfg}
	if err := a.openStore(ctx, sf); err != nil {
		return nil, err
	}

	codec, err := auth.NewCodec(cfg.JWT.Secret,
		auth.WithAlgorithm(cfg.JWT.Algorithm),
		auth.WithIssuer(cfg.JWT.Issuer),
		auth.WithLeeway(cfg.Leeway()),
	)
	if err != nil {
		_ = a.close()
		return nil, err
	}
	a.auth, err = auth.NewService(a.store, codec,
		auth.WithAccessTTL(cfg.AccessTTL()),
		auth.WithRefreshTTL(cfg.RefreshTTL()),
		auth.WithRefreshExtension(cfg.RefreshExtension()),
	)
	if err != nil {
		_ = a.close()
		return nil, err
	}
	a.users, err = users.NewService(a.store,
		users.WithPageSizes(cfg.Pagination.DefaultPageSize, cfg.Pagination.MaxPageSize))
	if err != nil {
		_ = a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) openStore(ctx context.Context, sf StoreFlags) error {
	log := obs.Logger()
	switch sf.Store {
	case "memory":
		st := memory.New()
		a.store, a.ping, a.close = st, st.Ping, func() error { return nil }
		log.Warn().Msg("using in-memory store; data is lost on exit")
		return nil
	case "postgres":
		dsn, err := a.cfg.DSN()
		if err != nil {
			return err
		}
		st, err := pg.Open(ctx, pg.Config{
			DSN:             dsn,
			MaxOpenConns:    a.cfg.MaxOpenConns(),
			MaxIdleConns:    a.cfg.MaxIdleConns(),
			ConnectAttempts: a.cfg.Database.ConnectAttempts,
		})
		if err != nil {
			return err
		}
		a.store, a.ping, a.close = st, st.Ping, st.Close
		if sf.AutoMigrate {
			applied, err := migrate.NewManager(st.DB(), migrations.SQL()).Up(ctx)
			if err != nil {
				_ = st.Close()
				return fmt.Errorf("auto migrate: %w", err)
			}
			log.Info().Strs("applied", applied).Msg("migrations up to date")
		}
		return nil
	default:
		return errors.New("unknown store type " + sf.Store)
	}
}
