package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"celulas-backend/internal/auth"
	"celulas-backend/internal/database"
	"celulas-backend/internal/server"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Sobe a API HTTP",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	rt, err := bootstrap()
	if err != nil {
		return err
	}
	defer rt.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := database.Migrate(rt.db, rt.log); err != nil {
		return err
	}

	var revoker auth.Revoker = auth.NoopRevoker{}
	if rt.cfg.RedisAddr != "" {
		client, err := database.ConnectRedis(ctx, rt.cfg.RedisAddr, rt.cfg.RedisPassword, rt.cfg.RedisDB, rt.log)
		if err != nil {
			return err
		}
		defer client.Close()
		revoker = auth.NewRedisRevoker(client)
	} else {
		rt.log.Warn("REDIS_ADDR não definido, logout não revoga tokens")
	}

	srv := server.New(server.Options{
		Config:  rt.cfg,
		DB:      rt.db,
		Logger:  rt.log,
		Revoker: revoker,
	})

	if rt.cfg.BootstrapAdminEnabled() {
		if err := ensureAdmin(ctx, srv.Auth, rt); err != nil {
			return err
		}
	}

	errCh := make(chan error, 1)
	go func() {
		rt.log.Info("http server listening", zap.String("port", rt.cfg.HTTPPort))
		errCh <- srv.App.Listen(":" + rt.cfg.HTTPPort)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	rt.log.Info("shutting down")
	if err := srv.App.ShutdownWithTimeout(shutdownTimeout); err != nil {
		rt.log.Error("shutdown failed", zap.Error(err))
		return err
	}
	return nil
}

func ensureAdmin(ctx context.Context, svc *auth.Service, rt *deps) error {
	created, err := svc.BootstrapAdmin(ctx, rt.cfg.AdminName, rt.cfg.AdminEmail, rt.cfg.AdminPassword)
	if err != nil {
		return err
	}
	if created {
		rt.log.Info("admin user created", zap.String("email", rt.cfg.AdminEmail))
	}
	return nil
}
