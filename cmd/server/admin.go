package main

import (
	"errors"

	"celulas-backend/internal/auth"
	"celulas-backend/internal/database"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Cria/atualiza o esquema do banco",
	RunE: func(cmd *cobra.Command, _ []string) error {
		rt, err := bootstrap()
		if err != nil {
			return err
		}
		defer rt.close()
		return database.Migrate(rt.db, rt.log)
	},
}

var bootstrapAdminCmd = &cobra.Command{
	Use:   "bootstrap-admin",
	Short: "Cria o administrador inicial (ADMIN_NAME, ADMIN_EMAIL, ADMIN_PASSWORD)",
	RunE: func(cmd *cobra.Command, _ []string) error {
		rt, err := bootstrap()
		if err != nil {
			return err
		}
		defer rt.close()

		if !rt.cfg.BootstrapAdminEnabled() {
			return errors.New("ADMIN_EMAIL e ADMIN_PASSWORD são obrigatórios")
		}
		if err := database.Migrate(rt.db, rt.log); err != nil {
			return err
		}

		tokens := auth.NewTokenService(rt.cfg.JWTSecret, rt.cfg.JWTExpiry)
		svc := auth.NewService(rt.db, tokens, auth.NoopRevoker{}, rt.cfg.BcryptCost, rt.log)
		return ensureAdmin(cmd.Context(), svc, rt)
	},
}
