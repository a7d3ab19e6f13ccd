package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"

	"google.golang.org/grpc"

	"staffroster.org/internal/apperr"
	"staffroster.org/internal/httpapi"
	"staffroster.org/internal/obs"
)

// ServeCmd runs the API until SIGINT or SIGTERM.
type ServeCmd struct {
	StoreFlags `embed:""`

	AdminEmail    string `help:"Create this administrator on startup when missing." env:"ADMIN_EMAIL"`
	AdminPassword string `help:"Password for --admin-email." env:"ADMIN_PASSWORD"`
	AdminName     string `help:"Full name for --admin-email." default:"Administrator" env:"ADMIN_FULL_NAME"`
}

func (s *ServeCmd) Run(ctx context.Context, g *Globals) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, g, s.StoreFlags)
	if err != nil {
		return err
	}
	defer func() { _ = a.close() }()
	log := obs.Logger()

	if s.AdminEmail != "" {
		if err := s.bootstrapAdmin(ctx, a); err != nil {
			return err
		}
	}

	ready := httpapi.PingFunc(a.ping)
	api := httpapi.New(a.auth, a.users,
		httpapi.WithVersion(g.Version),
		httpapi.WithReadiness(ready),
		httpapi.WithCORSOrigins(a.cfg.HTTP.CORSOrigins...),
		httpapi.WithRateLimit(a.cfg.HTTP.RateLimitRPS, a.cfg.HTTP.RateLimitBurst),
		httpapi.WithMaxBodyBytes(a.cfg.HTTP.MaxBodyBytes),
	)
	srv := &http.Server{
		Addr:              a.cfg.HTTP.Listen,
		Handler:           api.Handler(),
		ReadTimeout:       a.cfg.ReadTimeout(),
		ReadHeaderTimeout: a.cfg.ReadTimeout(),
		WriteTimeout:      a.cfg.WriteTimeout(),
		IdleTimeout:       a.cfg.IdleTimeout(),
	}

	errCh := make(chan error, 2)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", g.Version).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var grpcSrv *grpc.Server
	if a.cfg.GRPC.Listen != "" {
		lis, err := net.Listen("tcp", a.cfg.GRPC.Listen)
		if err != nil {
			return err
		}
		grpcSrv = grpc.NewServer()
		httpapi.NewGRPCServer(ready).Register(grpcSrv)
		go func() {
			log.Info().Str("addr", a.cfg.GRPC.Listen).Msg("grpc server listening")
			if err := grpcSrv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				errCh <- err
			}
		}()
	}

	select {
	case <-ctx.Done():
	case err = <-errCh:
		log.Error().Err(err).Msg("server failed")
	}
	log.Info().Msg("shutting down")
	obs.SetReady(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout())
	defer cancel()
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil && err == nil {
		err = shutdownErr
	}
	log.Info().Msg("stopped")
	return err
}

func (s *ServeCmd) bootstrapAdmin(ctx context.Context, a *app) error {
	admin, err := a.users.CreateAdmin(ctx, s.AdminEmail, s.AdminName, s.AdminPassword)
	switch {
	case errors.Is(err, apperr.ErrDuplicateResource):
		obs.Logger().Info().Str("email", s.AdminEmail).Msg("bootstrap admin already exists")
		return nil
	case err != nil:
		return err
	}
	obs.Logger().Info().Str("user_id", admin.ID).Msg("bootstrap admin created")
	return nil
}
