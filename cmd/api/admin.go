package main

import (
	"context"
	"fmt"
)

// CreateAdminCmd creates an active administrator in the configured store.
type CreateAdminCmd struct {
	StoreFlags `embed:""`

	Email    string `help:"Administrator email." required:""`
	FullName string `help:"Administrator full name." default:"Administrator"`
	Password string `help:"Initial password." required:"" env:"ADMIN_PASSWORD"`
}

func (c *CreateAdminCmd) Run(ctx context.Context, g *Globals) error {
	a, err := newApp(ctx, g, c.StoreFlags)
	if err != nil {
		return err
	}
	defer func() { _ = a.close() }()

	admin, err := a.users.CreateAdmin(ctx, c.Email, c.FullName, c.Password)
	if err != nil {
		return err
	}
	fmt.Printf("created admin %s (%s)\n", admin.Email, admin.ID)
	return nil
}
