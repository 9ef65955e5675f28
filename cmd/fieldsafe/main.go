package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/fieldsafe/fieldsafe/pkg/api"
	"github.com/fieldsafe/fieldsafe/pkg/audit"
	"github.com/fieldsafe/fieldsafe/pkg/auth"
	"github.com/fieldsafe/fieldsafe/pkg/config"
	"github.com/fieldsafe/fieldsafe/pkg/detect"
	"github.com/fieldsafe/fieldsafe/pkg/export"
	"github.com/fieldsafe/fieldsafe/pkg/inspections"
	"github.com/fieldsafe/fieldsafe/pkg/notify"
	"github.com/fieldsafe/fieldsafe/pkg/observability"
	"github.com/fieldsafe/fieldsafe/pkg/rbac"
	"github.com/fieldsafe/fieldsafe/pkg/sso"
	"github.com/fieldsafe/fieldsafe/pkg/storage/postgres"
)

const (
	sessionPurgeSchedule   = "@every 1h"
	metricsRefreshSchedule = "@every 1m"
)

func main() {
	startupLog := logrus.New()
	startupLog.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.LoadConfig()
	if err != nil {
		startupLog.WithError(err).Fatal("failed to load configuration")
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	otelProviders, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		startupLog.WithError(err).Fatal("failed to initialize tracing")
	}

	store, err := postgres.NewStore(cfg.Storage)
	if err != nil {
		startupLog.WithError(err).Fatal("failed to initialize storage")
	}
	defer store.Close()
	startupLog.Info("storage initialized")

	var metrics *observability.Metrics
	registry := prometheus.NewRegistry()
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registry)
		store.SetMetrics(metrics)
	}

	auditStore, err := audit.NewStore(ctx, store.DB())
	if err != nil {
		startupLog.WithError(err).Fatal("failed to initialize audit trail")
	}
	recorder := audit.NewRecorder(auditStore, logger)

	authSvc := auth.NewService(store, auth.Options{
		SessionTTL:       cfg.Auth.SessionTTL,
		BcryptCost:       cfg.Auth.BcryptCost,
		CookieName:       cfg.Auth.CookieName,
		CookieSecure:     cfg.Auth.CookieSecure,
		SignatureLockout: cfg.Auth.SignatureLock,
	}, logger)

	checker, err := rbac.NewChecker(store, cfg.Storage.PermissionCacheSize, logger, metrics)
	if err != nil {
		startupLog.WithError(err).Fatal("failed to initialize permission checker")
	}

	notifySvc := notify.NewService(store, notifyProvider(cfg.Notify, logger), logger, metrics)

	var exporter inspections.Exporter
	var sweeper *export.Sweeper
	if cfg.Export.Enabled {
		uploader := export.NewSharePointClient(
			cfg.Export.BaseURL, cfg.Export.DriveID, cfg.Export.FolderPath,
			cfg.Export.AccessToken, cfg.Export.Timeout)
		exportSvc := export.NewService(store, uploader, cfg.Export.MaxAttempts, logger, metrics)
		exporter = exportSvc
		sweeper = export.NewSweeper(store, exportSvc, nil, 0)
		startupLog.Info("document export enabled")
	}

	var detector inspections.Detector
	if cfg.Detect.Enabled {
		model := detect.NewClient(cfg.Detect.BaseURL, cfg.Detect.MinScore, cfg.Detect.Timeout)
		detector = detect.NewAnalyzer(store, store.Images(), model, logger)
		startupLog.Info("component detection enabled")
	}

	balancer := inspections.NewBalancer(store, logger)
	inspSvc := inspections.NewService(store, balancer, checker, exporter, notifySvc, detector, logger, metrics)

	var ssoHandlers *sso.Handlers
	if cfg.SSO.Enabled {
		provider, err := sso.NewOIDCProvider(ctx, cfg.SSO)
		if err != nil {
			startupLog.WithError(err).Fatal("failed to initialize SSO provider")
		}
		ssoHandlers = sso.NewHandlers(provider, authSvc, store, "/", cfg.Auth.CookieSecure, logger)
		startupLog.Info("SSO login enabled")
	}

	server := api.NewServer(cfg.Server, api.Dependencies{
		Store:       store,
		Auth:        authSvc,
		Checker:     checker,
		Inspections: inspSvc,
		Notify:      notify.NewHandlers(store, logger),
		SSO:         ssoHandlers,
		Images:      store.Images(),
		Audit:       recorder,
		AuditStore:  auditStore,
		Metrics:     metrics,
		Logger:      logger,
	})

	scheduler := startScheduler(cfg, authSvc, sweeper, store, metrics, logger)
	defer scheduler.Stop()

	healthServer := startHealthServer(cfg.Server, store, registry, logger)

	go func() {
		if err := server.Start(); err != nil {
			startupLog.WithError(err).Fatal("API server failed")
		}
	}()
	startupLog.WithFields(logrus.Fields{
		"port":        cfg.Server.Port,
		"health_port": cfg.Server.HealthPort,
	}).Info("fieldsafe started")

	<-ctx.Done()
	startupLog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		startupLog.WithError(err).Error("API server shutdown failed")
	}
	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		startupLog.WithError(err).Error("health server shutdown failed")
	}
	if otelProviders != nil {
		if err := otelProviders.Shutdown(shutdownCtx); err != nil {
			startupLog.WithError(err).Error("tracer shutdown failed")
		}
	}
}

// notifyProvider picks the push dispatch backend.
func notifyProvider(cfg config.NotifyConfig, logger *observability.Logger) notify.Provider {
	switch cfg.Provider {
	case "webhook":
		return notify.NewWebhookProvider(cfg.WebhookURL, cfg.Timeout)
	case "noop":
		return notify.NoopProvider{}
	default:
		return notify.NewLogProvider(logger)
	}
}

// startScheduler wires the maintenance jobs: hourly session purge, the
// periodic gauge refresh, and, when export is enabled, the retry sweep.
func startScheduler(cfg *config.Config, authSvc *auth.Service, sweeper *export.Sweeper, store *postgres.Store, metrics *observability.Metrics, logger *observability.Logger) *cron.Cron {
	scheduler := cron.New()

	scheduler.AddFunc(sessionPurgeSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		purged, err := authSvc.PurgeExpiredSessions(ctx)
		if err != nil {
			logger.WithError(err).Error("session purge failed")
			return
		}
		if purged > 0 {
			logger.WithField("purged", purged).Info("purged expired sessions")
		}
	})

	if metrics != nil {
		scheduler.AddFunc(metricsRefreshSchedule, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := store.RefreshMetrics(ctx, metrics); err != nil {
				logger.WithError(err).Error("metrics refresh failed")
			}
		})
	}

	if sweeper != nil {
		scheduler.AddFunc(cfg.Export.RetrySchedule, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
			defer cancel()
			attempted, err := sweeper.Sweep(ctx)
			if err != nil {
				logger.WithError(err).Error("export retry sweep failed")
				return
			}
			if attempted > 0 {
				logger.WithField("attempted", attempted).Info("export retry sweep finished")
			}
		})
	}

	scheduler.Start()
	return scheduler
}

// startHealthServer serves liveness, readiness and metrics on the probe
// port.
func startHealthServer(cfg config.ServerConfig, store *postgres.Store, registry *prometheus.Registry, logger *observability.Logger) *http.Server {
	checker := observability.NewHealthChecker(store.DB(), nil)

	probeMux := http.NewServeMux()
	probeMux.HandleFunc("/healthz", checker.Liveness)
	probeMux.HandleFunc("/readyz", checker.Readiness)
	observability.RegisterMetricsEndpoint(probeMux, registry)

	healthServer := &http.Server{
		Addr:    net.JoinHostPort(cfg.Host, cfg.HealthPort),
		Handler: probeMux,
	}
	go func() {
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("health server failed")
		}
	}()
	return healthServer
}
