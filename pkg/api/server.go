package api

import (
	"context"
	"fmt"
	"net"
	"net/http"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fieldsafe/fieldsafe/pkg/audit"
	"github.com/fieldsafe/fieldsafe/pkg/auth"
	"github.com/fieldsafe/fieldsafe/pkg/config"
	"github.com/fieldsafe/fieldsafe/pkg/httputil"
	"github.com/fieldsafe/fieldsafe/pkg/inspections"
	"github.com/fieldsafe/fieldsafe/pkg/notify"
	"github.com/fieldsafe/fieldsafe/pkg/observability"
	"github.com/fieldsafe/fieldsafe/pkg/rbac"
	"github.com/fieldsafe/fieldsafe/pkg/sso"
	"github.com/fieldsafe/fieldsafe/pkg/storage"
	"github.com/fieldsafe/fieldsafe/pkg/storage/postgres"
)

// Dependencies carries everything the router mounts. SSO, Images,
// Audit, and Metrics are optional.
type Dependencies struct {
	Store       storage.Store
	Auth        *auth.Service
	Checker     *rbac.Checker
	Inspections *inspections.Service
	Notify      *notify.Handlers
	SSO         *sso.Handlers
	Images      *postgres.ImageClient
	Audit       *audit.Recorder
	AuditStore  *audit.Store
	Metrics     *observability.Metrics
	Logger      *observability.Logger
	CORSOrigins []string
}

// NewRouter builds the full route tree with its middleware chain.
func NewRouter(deps Dependencies) *mux.Router {
	router := mux.NewRouter()
	router.Use(httputil.RequestIDMiddleware)
	router.Use(httputil.LoggingMiddleware(deps.Logger))
	router.Use(httputil.RecoveryMiddleware)
	if len(deps.CORSOrigins) > 0 {
		router.Use(httputil.CORSMiddleware(deps.CORSOrigins))
	}
	if deps.Metrics != nil {
		router.Use(observability.HTTPMetricsMiddleware(deps.Metrics))
	}

	authHandlers := auth.NewHandlers(deps.Auth, deps.Logger)
	authHandlers.RegisterPublicRoutes(router)
	if deps.SSO != nil {
		deps.SSO.RegisterRoutes(router)
	}

	authed := router.NewRoute().Subrouter()
	authed.Use(auth.Middleware(deps.Auth))
	if deps.Audit != nil {
		authed.Use(audit.Middleware(deps.Audit))
	}
	authHandlers.RegisterRoutes(authed)
	deps.Notify.RegisterRoutes(authed)

	rbacMw := rbac.NewMiddleware(deps.Checker)
	inspHandlers := inspections.NewHandlers(deps.Inspections, deps.Images, deps.Logger)

	// Review routes first: /inspections/pending must not be shadowed
	// by /inspections/{id}.
	review := authed.NewRoute().Subrouter()
	review.Use(rbacMw.RequirePermission([]rbac.Capability{
		rbac.CapReviewInspections, rbac.CapViewPendingInspections,
	}, false))
	inspHandlers.RegisterReviewRoutes(review)

	insp := authed.NewRoute().Subrouter()
	insp.Use(rbacMw.RequirePermission([]rbac.Capability{
		rbac.CapCreateInspections, rbac.CapViewInspections,
	}, false))
	inspHandlers.RegisterRoutes(insp)

	crud := NewCRUDHandlers(deps.Store, deps.Checker, deps.Audit, deps.Logger)
	crud.RegisterReadRoutes(authed)

	forms := authed.NewRoute().Subrouter()
	forms.Use(rbacMw.RequirePermission([]rbac.Capability{rbac.CapManageForms}, true))
	crud.RegisterFormRoutes(forms)

	admin := authed.NewRoute().Subrouter()
	admin.Use(rbacMw.RequireRole(rbac.RoleAdmin))
	crud.RegisterAdminRoutes(admin)
	rbac.NewHandlers(deps.Store, deps.Checker, deps.Logger).RegisterRoutes(admin)
	if deps.AuditStore != nil {
		audit.NewHandlers(deps.AuditStore).RegisterRoutes(admin)
	}

	return router
}

// Server wraps the HTTP server with lifecycle management.
type Server struct {
	httpServer *http.Server
	logger     *observability.Logger
}

// NewServer builds the router and the HTTP server around it.
func NewServer(cfg config.ServerConfig, deps Dependencies) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:         net.JoinHostPort(cfg.Host, cfg.Port),
			Handler:      otelhttp.NewHandler(NewRouter(deps), "fieldsafe-api"),
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
		logger: deps.Logger,
	}
}

// Start blocks serving requests until Shutdown is called.
func (s *Server) Start() error {
	s.logger.WithField("addr", s.httpServer.Addr).Info("API server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
