package app

import (
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/refeitorio/refeitorio/internal/attendance"
	"github.com/refeitorio/refeitorio/internal/audit"
	audithttp "github.com/refeitorio/refeitorio/internal/audit/http"
	"github.com/refeitorio/refeitorio/internal/observability"
	"github.com/refeitorio/refeitorio/internal/platform/cache"
	"github.com/refeitorio/refeitorio/internal/reports"
	"github.com/refeitorio/refeitorio/internal/settings"
	"github.com/refeitorio/refeitorio/internal/students"
)

// Services holds the domain services shared by the server, the worker and
// the operator CLI.
type Services struct {
	Cache    *cache.Versioned
	Settings *settings.Service
	Students *students.Service
	Importer *attendance.Importer
	Reports  *reports.Service
	Audit    *audit.Service
}

// NewServices wires repositories and services. A nil redis client disables
// report caching; nil metrics disable domain counters.
func NewServices(cfg *Config, pool *pgxpool.Pool, rdb *redis.Client, logger *slog.Logger, metrics *observability.Metrics) *Services {
	if logger == nil {
		logger = slog.Default()
	}
	ttl := cfg.ReportCacheTTL
	reportCache := cache.NewVersioned(rdb, "reports", ttl)

	settingsSvc := settings.NewService(settings.NewRepository(pool), logger, reportCache)

	studentRepo := students.NewRepository(pool)
	studentSvc := students.NewService(studentRepo, settingsSvc, logger,
		students.WithInvalidator(reportCache),
		students.WithObserver(metrics),
	)
	engine := students.NewEngine(settingsSvc, settingsSvc)
	importer := attendance.NewImporter(studentRepo, engine, logger,
		attendance.WithInvalidator(reportCache),
		attendance.WithObserver(metrics),
	)

	return &Services{
		Cache:    reportCache,
		Settings: settingsSvc,
		Students: studentSvc,
		Importer: importer,
		Reports:  reports.NewService(studentRepo, settingsSvc, reportCache, logger),
		Audit:    audit.NewService(audit.NewRepository(pool)),
	}
}

// Handlers returns router parameters with every API handler mounted.
func (s *Services) Handlers(cfg *Config, logger *slog.Logger, metrics *observability.Metrics) RouterParams {
	return RouterParams{
		Logger:            logger,
		Config:            cfg,
		Metrics:           metrics,
		StudentsHandler:   students.NewHandler(logger, s.Students),
		AttendanceHandler: attendance.NewHandler(logger, s.Importer, cfg.UploadDir),
		ReportsHandler:    reports.NewHandler(logger, s.Reports),
		SettingsHandler:   settings.NewHandler(logger, s.Settings),
		AuditHandler:      audithttp.NewHandler(logger, s.Audit),
	}
}
