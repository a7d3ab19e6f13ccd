package main

import (
	"context"

	"github.com/alecthomas/kong"
)

var (
	version = "0.1.0"
	commit  = "none"
)

var cli struct {
	Config  string           `help:"Path to a YAML config file." type:"path" env:"STAFFROSTER_CONFIG"`
	Version kong.VersionFlag `help:"Print version and exit."`

	Serve       ServeCmd       `cmd:"" default:"withargs" help:"Run the HTTP and gRPC servers."`
	CreateAdmin CreateAdminCmd `cmd:"" help:"Create an administrator account."`
}

// Globals carries flags shared by every command.
type Globals struct {
	Config  string
	Version string
	Commit  string
}

func main() {
	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Name("staffroster-api"),
		kong.Description("Employee management and authentication API."),
		kong.Vars{"version": version},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&Globals{Config: cli.Config, Version: version, Commit: commit})
	cmd.FatalIfErrorf(err)
}
