package main

import (
	"context"
	"fmt"
	"os"

	"celulas-backend/internal/config"
	"celulas-backend/internal/database"
	"celulas-backend/internal/logging"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// rootCmd sem subcomando sobe o servidor HTTP.
var rootCmd = &cobra.Command{
	Use:   "celulas",
	Short: "Backend de gestão de células",
	Long: `Backend de gestão de células: cadastro, células, orações e painéis.

Subcomandos:
  serve           - sobe a API HTTP (padrão)
  migrate         - cria/atualiza o esquema do banco
  bootstrap-admin - cria o administrador inicial a partir de ADMIN_EMAIL/ADMIN_PASSWORD`,
	SilenceUsage: true,
	RunE:         runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd, migrateCmd, bootstrapAdminCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type deps struct {
	cfg *config.Config
	log *zap.Logger
	db  *gorm.DB
}

// bootstrap carrega config, logger e banco; comum a todos os subcomandos.
func bootstrap() (*deps, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	log, err := logging.New(cfg.LogLevel, cfg.IsDevelopment())
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	for _, w := range cfg.Warnings {
		log.Warn(w)
	}

	db, err := database.Open(cfg.DatabaseURL, log)
	if err != nil {
		_ = log.Sync()
		return nil, err
	}
	return &deps{cfg: cfg, log: log, db: db}, nil
}

func (r *deps) close() {
	if err := database.Close(r.db); err != nil {
		r.log.Warn("database close failed", zap.Error(err))
	}
	_ = r.log.Sync()
}
