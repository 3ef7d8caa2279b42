// Package server monta o app fiber: middlewares, serviços e rotas.
package server

import (
	"context"
	"strings"
	"time"

	"celulas-backend/internal/apperr"
	"celulas-backend/internal/audit"
	"celulas-backend/internal/auth"
	"celulas-backend/internal/authz"
	"celulas-backend/internal/cells"
	"celulas-backend/internal/config"
	"celulas-backend/internal/dashboard"
	"celulas-backend/internal/logging"
	"celulas-backend/internal/metrics"
	"celulas-backend/internal/prayers"
	"celulas-backend/internal/users"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Options struct {
	Config  *config.Config
	DB      *gorm.DB
	Logger  *zap.Logger
	Revoker auth.Revoker
	Metrics *metrics.Metrics
}

type Server struct {
	App *fiber.App

	Auth      *auth.Service
	Cells     *cells.Service
	Users     *users.Service
	Prayers   *prayers.Service
	Dashboard *dashboard.Service
	Metrics   *metrics.Metrics

	db *gorm.DB
}

func New(opts Options) *Server {
	cfg, log := opts.Config, opts.Logger
	m := opts.Metrics
	if m == nil {
		m = metrics.New()
	}

	tokens := auth.NewTokenService(cfg.JWTSecret, cfg.JWTExpiry)
	cellSvc := cells.NewService(opts.DB, log)
	prayerSvc := prayers.NewService(opts.DB, cfg.Timezone, cellSvc, m, log)

	s := &Server{
		Auth:      auth.NewService(opts.DB, tokens, opts.Revoker, cfg.BcryptCost, log),
		Cells:     cellSvc,
		Users:     users.NewService(opts.DB, log),
		Prayers:   prayerSvc,
		Dashboard: dashboard.NewService(opts.DB, cellSvc, prayerSvc, log),
		Metrics:   m,
		db:        opts.DB,
	}

	app := fiber.New(fiber.Config{
		AppName:               "celulas-backend",
		ErrorHandler:          apperr.Handler(log),
		DisableStartupMessage: true,
	})

	app.Use(recover.New(recover.Config{EnableStackTrace: cfg.IsDevelopment()}))
	app.Use(requestid.New(requestid.Config{Generator: uuid.NewString}))
	app.Use(logging.RequestLogger(log))
	app.Use(m.Middleware())
	app.Use(cors.New(cors.Config{
		AllowOrigins: corsOrigins(cfg.CORSOrigins),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
	}))

	app.Get("/health", s.health)
	app.Get("/metrics", m.Handler())

	s.routes(app)
	s.App = app
	return s
}

// corsOrigins normaliza a lista separada por vírgulas.
func corsOrigins(raw string) string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return "*"
	}
	return strings.Join(out, ",")
}

func (s *Server) health(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	sqlDB, err := s.db.DB()
	if err == nil {
		err = sqlDB.PingContext(ctx)
	}
	if err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unavailable"})
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

func (s *Server) routes(app *fiber.App) {
	api := app.Group("/api")

	// Público
	api.Post("/auth/register", auth.RegisterHandler(s.Auth))
	api.Post("/auth/login", auth.LoginHandler(s.Auth))

	// Protegido
	protected := api.Group("")
	protected.Use(auth.JWTMiddleware(s.Auth))

	protected.Get("/me", auth.MeHandler(s.Auth))
	protected.Put("/me", users.UpdateProfileHandler(s.Users))
	protected.Get("/auth/me", auth.MeHandler(s.Auth))
	protected.Post("/auth/logout", auth.LogoutHandler(s.Auth))

	// Células
	protected.Get("/cells", auth.RequireAction(authz.CellList), cells.ListCellsHandler(s.Cells))
	protected.Post("/cells", cells.CreateCellHandler(s.Cells))
	protected.Get("/cells/:id", auth.RequireAction(authz.CellView), cells.GetCellHandler(s.Cells))
	protected.Put("/cells/:id", cells.UpdateCellHandler(s.Cells))
	protected.Delete("/cells/:id", cells.DeleteCellHandler(s.Cells))
	protected.Get("/cells/:id/members", cells.ListMembersHandler(s.Cells))
	protected.Post("/cells/:id/members", cells.AddMemberHandler(s.Cells))
	protected.Get("/cells/:id/members/export", cells.ExportMembersHandler(s.Cells))
	protected.Post("/cells/:id/members/import", cells.ImportMembersHandler(s.Cells))
	protected.Delete("/cells/:id/members/:userId", cells.RemoveMemberHandler(s.Cells))
	protected.Put("/cells/:id/secretary", cells.AssignSecretaryHandler(s.Cells))
	protected.Put("/cells/:id/supervisor", cells.SetSupervisorHandler(s.Cells))
	protected.Post("/cells/:id/leaders", cells.AddLeaderHandler(s.Cells))
	protected.Delete("/cells/:id/leaders/:userId", cells.RemoveLeaderHandler(s.Cells))
	protected.Get("/cells/:id/prayers", prayers.CellSummaryHandler(s.Prayers))

	// Orações
	protected.Post("/prayers/log-daily", auth.RequireAction(authz.PrayerLog), prayers.LogDailyHandler(s.Prayers))
	protected.Get("/prayers/me", prayers.SummaryHandler(s.Prayers))
	protected.Get("/prayers/history", prayers.HistoryHandler(s.Prayers))

	// Usuários
	protected.Get("/users", users.ListUsersHandler(s.Users))
	protected.Put("/users/:id/role", users.UpdateRoleHandler(s.Users))
	protected.Put("/users/:id/status", users.UpdateStatusHandler(s.Users))

	// Painel
	protected.Get("/dashboard", dashboard.DashboardHandler(s.Dashboard))
	protected.Get("/dashboard/prayer-chart", dashboard.PrayerChartHandler(s.Dashboard))

	// Auditoria
	protected.Get("/audit-logs", auth.RequireAction(authz.AuditView), audit.ListAuditLogsHandler(s.db))
}
