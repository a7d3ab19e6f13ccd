package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/alecthomas/kong"
	_ "github.com/jackc/pgx/v5/stdlib"

	"staffroster.org/internal/config"
	"staffroster.org/internal/migrate"
	"staffroster.org/internal/obs"
	"staffroster.org/migrations"
)

// Globals are flags shared by every subcommand.
type Globals struct {
	DSN     string        `help:"PostgreSQL DSN. Defaults to the database settings of the config file and environment." env:"DATABASE_URL"`
	Config  string        `help:"Path to a YAML config file." type:"path" env:"STAFFROSTER_CONFIG"`
	Seeds   string        `help:"Directory of SQL seed files." type:"path"`
	Timeout time.Duration `help:"Overall timeout." default:"30s"`
}

var cli struct {
	Globals

	Up     upCmd     `cmd:"" help:"Apply pending migrations."`
	Down   downCmd   `cmd:"" help:"Roll back the latest migration."`
	Seed   seedCmd   `cmd:"" help:"Apply pending seed files."`
	Status statusCmd `cmd:"" help:"List migrations and whether they are applied."`
}

type upCmd struct{}

func (upCmd) Run(ctx context.Context, m *migrate.Manager) error {
	applied, err := m.Up(ctx)
	for _, name := range applied {
		fmt.Println("applied", name)
	}
	if err == nil && len(applied) == 0 {
		fmt.Println("nothing to apply")
	}
	return err
}

type downCmd struct{}

func (downCmd) Run(ctx context.Context, m *migrate.Manager) error {
	name, err := m.Down(ctx)
	if errors.Is(err, migrate.ErrNothingToRollback) {
		fmt.Println("nothing to roll back")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Println("rolled back", name)
	return nil
}

type seedCmd struct{}

func (seedCmd) Run(ctx context.Context, m *migrate.Manager) error {
	applied, err := m.Seed(ctx)
	for _, name := range applied {
		fmt.Println("seeded", name)
	}
	return err
}

type statusCmd struct{}

func (statusCmd) Run(ctx context.Context, m *migrate.Manager) error {
	history, err := m.Status(ctx)
	if err != nil {
		return err
	}
	for _, item := range history {
		mark := "pending"
		if item.Applied {
			mark = "applied"
		}
		fmt.Printf("%-8s %s\n", mark, item.Name)
	}
	return nil
}

func resolveDSN(g Globals) (string, error) {
	if g.DSN != "" {
		return g.DSN, nil
	}
	cfg := config.Default()
	if g.Config != "" {
		loaded, err := config.Load(g.Config)
		if err != nil {
			return "", err
		}
		cfg = loaded
	}
	return cfg.DSN()
}

func main() {
	kctx := kong.Parse(&cli,
		kong.Name("migrate"),
		kong.Description("Manage the staffroster database schema."))
	obs.Setup(os.Stderr, "info", "console")

	dsn, err := resolveDSN(cli.Globals)
	kctx.FatalIfErrorf(err)

	ctx, cancel := context.WithTimeout(context.Background(), cli.Timeout)
	defer cancel()

	db, err := sql.Open("pgx", dsn)
	kctx.FatalIfErrorf(err)
	defer db.Close()

	opts := []migrate.Option{}
	if cli.Seeds != "" {
		opts = append(opts, migrate.WithSeeds(os.DirFS(cli.Seeds)))
	}
	mgr := migrate.NewManager(db, migrations.SQL(), opts...)

	kctx.BindTo(ctx, (*context.Context)(nil))
	err = kctx.Run(mgr)
	if err != nil {
		obs.Logger().Error().Err(err).Str("command", kctx.Command()).Msg("migrate failed")
		cancel()
		_ = db.Close()
		os.Exit(1)
	}
}
