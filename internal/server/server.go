package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"digicop-backend/internal/config"
	"digicop-backend/internal/database"
	"digicop-backend/internal/handlers"
	"digicop-backend/internal/metrics"
	"digicop-backend/internal/middleware"
	"digicop-backend/internal/notify"
	"digicop-backend/internal/ratelimit"
	"digicop-backend/internal/services"
	"digicop-backend/internal/storage"
)

const ShutdownTimeout = 10 * time.Second

// Deps are the long-lived resources the server routes over. Redis is optional
// and only used for readiness and shutdown.
type Deps struct {
	Config    *config.Config
	Log       *zap.SugaredLogger
	DB        *database.DB
	Store     storage.Store
	Limiter   ratelimit.Limiter
	Redis     *redis.Client
	Notifiers notify.Multi
}

type Server struct {
	deps       Deps
	log        *zap.SugaredLogger
	contact    *handlers.ContactHandler
	httpServer *http.Server
}

func New(d Deps) *Server {
	s := &Server{deps: d, log: d.Log}
	s.httpServer = &http.Server{
		Addr:              d.Config.Addr(),
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) routes() http.Handler {
	cfg := s.deps.Config

	uploadService := services.NewUploadService(s.deps.Store)
	contactService := services.NewContactService(s.deps.DB)

	uploadHandler := handlers.NewUploadHandler(uploadService, s.log)
	s.contact = handlers.NewContactHandler(contactService, s.deps.Notifiers, s.log)

	var presigner handlers.Presigner
	if p, ok := s.deps.Store.(handlers.Presigner); ok {
		presigner = p
	}
	mediaHandler := handlers.NewMediaHandler(s.deps.Store, presigner, s.log)

	checks := map[string]handlers.Checker{
		"db":      s.deps.DB.Ping,
		"storage": s.deps.Store.Ping,
	}
	if s.deps.Redis != nil {
		checks["redis"] = func(ctx context.Context) error {
			return s.deps.Redis.Ping(ctx).Err()
		}
	}
	healthHandler := handlers.NewHealthHandler(checks, s.log)

	limiter := ratelimit.NewMiddleware(s.deps.Limiter, cfg.RateLimit.TrustProxy, s.log)

	router := http.NewServeMux()
	api := func(pattern, route string, h http.Handler) {
		router.Handle(pattern, metrics.Instrument(route, limiter.Limit(h)))
	}

	api("POST /api/upload-demo", "upload_demo", http.HandlerFunc(uploadHandler.UploadDemo))
	api("POST /api/contact", "contact", http.HandlerFunc(s.contact.CreateContactMessage))

	if cfg.Admin.Enabled() {
		authMiddleware := middleware.NewAuthMiddleware(cfg.Admin.JWTSecret)
		authHandler := handlers.NewAuthHandler(
			services.NewAuthService(cfg.Admin),
			strings.HasPrefix(cfg.CORSOrigin, "https://"),
			s.log,
		)
		adminHandler := handlers.NewAdminHandler(contactService, uploadService, s.log)

		api("POST /api/admin/login", "admin_login", http.HandlerFunc(authHandler.Login))
		api("GET /api/admin/me", "admin_me", authMiddleware.RequireAdmin(http.HandlerFunc(authHandler.GetMe)))
		api("GET /api/admin/contact-messages", "admin_contact_messages", authMiddleware.RequireAdmin(http.HandlerFunc(adminHandler.ListContactMessages)))
		api("GET /api/admin/uploads", "admin_uploads", authMiddleware.RequireAdmin(http.HandlerFunc(adminHandler.ListUploads)))
		api("GET /api/admin/uploads/orphans", "admin_orphans", authMiddleware.RequireAdmin(http.HandlerFunc(adminHandler.ListOrphans)))
	}

	router.Handle("GET /uploads/{filename}", metrics.Instrument("uploads", http.HandlerFunc(mediaHandler.ServeVideo)))
	router.HandleFunc("GET /healthz", healthHandler.Healthz)
	router.HandleFunc("GET /readyz", healthHandler.Readyz)
	router.Handle("GET /metrics", promhttp.Handler())

	return otelhttp.NewHandler(middleware.CORS(cfg.CORSOrigin, router), "digicop-api")
}

// Run serves until ctx is cancelled, then drains requests and pending
// notifications for up to ShutdownTimeout and releases every resource.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Infof("server starting on http://%s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return multierror.Append(err, s.close())
		}
	case <-ctx.Done():
		s.log.Info("shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()

	var errs error
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		errs = multierror.Append(errs, err)
	}
	if err := s.contact.Wait(shutdownCtx); err != nil {
		errs = multierror.Append(errs, err)
	}
	if err := s.close(); err != nil {
		errs = multierror.Append(errs, err)
	}
	return errs
}

func (s *Server) close() error {
	var errs error
	closers := []io.Closer{s.deps.Notifiers}
	if s.deps.Redis != nil {
		closers = append(closers, s.deps.Redis)
	}
	closers = append(closers, s.deps.DB)

	for _, c := range closers {
		if err := c.Close(); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs
}
