package web

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	"github.com/saltyorg/opsboard/internal/auth"
	"github.com/saltyorg/opsboard/internal/authz"
	"github.com/saltyorg/opsboard/internal/config"
	"github.com/saltyorg/opsboard/internal/database"
	"github.com/saltyorg/opsboard/internal/departments"
	"github.com/saltyorg/opsboard/internal/extern"
	"github.com/saltyorg/opsboard/internal/maintenance"
	"github.com/saltyorg/opsboard/internal/web/handlers"
	"github.com/saltyorg/opsboard/internal/web/middleware"
	"github.com/saltyorg/opsboard/internal/web/sse"
)

// Options configures the HTTP server.
type Options struct {
	Port        int
	Bind        string
	AllowedNet  *net.IPNet
	CORSOrigins []string
	IsDev       bool
	Version     string
}

// Server represents the web server
type Server struct {
	db          *database.DB
	opts        Options
	router      *chi.Mux
	authService *auth.AuthService
	authorizer  *authz.Authorizer
	sseBroker   *sse.Broker
	departments *departments.Service
	extern      *extern.Service
	handlers    *handlers.Handlers
}

// NewServer creates a new web server
func NewServer(db *database.DB, authorizer *authz.Authorizer, opts Options) *Server {
	broker := sse.NewBroker()
	deps := departments.NewService(db)
	deps.SetSSEBroker(broker)

	s := &Server{
		db:          db,
		opts:        opts,
		router:      chi.NewRouter(),
		authService: auth.NewAuthService(db),
		authorizer:  authorizer,
		sseBroker:   broker,
		departments: deps,
		extern:      extern.NewService(config.NewLoader(db)),
	}

	s.handlers = handlers.New(db, s.authService, s.departments, s.extern, broker, opts.IsDev)
	s.handlers.SetVersion(opts.Version)
	s.setupRoutes()
	return s
}

// SSEBroker returns the SSE broker for broadcasting events
func (s *Server) SSEBroker() *sse.Broker {
	return s.sseBroker
}

// SetMaintenanceManager exposes the maintenance manager to the settings API
func (s *Server) SetMaintenanceManager(mgr *maintenance.Manager) {
	s.handlers.SetMaintenanceManager(mgr)
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) corsMiddleware() func(http.Handler) http.Handler {
	if len(s.opts.CORSOrigins) == 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return cors.New(cors.Options{
		AllowedOrigins:   s.opts.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Content-Length", "Accept-Encoding", "Authorization"},
		AllowCredentials: true,
		MaxAge:           600,
	}).Handler
}

func (s *Server) setupRoutes() {
	r := s.router
	h := s.handlers
	timeout := config.GetTimeouts().HTTPRequest
	perm := func(obj string) func(http.Handler) http.Handler {
		return middleware.ReadWrite(s.authorizer, obj)
	}

	// Global middleware (applied to all routes, except timeout which is per-group)
	r.Use(chimiddleware.RequestID)
	// AllowSubnet must come BEFORE RealIP so we check the actual connection source
	r.Use(middleware.AllowSubnet(s.opts.AllowedNet))
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(s.corsMiddleware())

	r.Get("/healthz", h.Health)

	// SSE endpoint - no timeout (long-lived connections)
	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(s.authService))
		r.Use(middleware.RequirePermission(s.authorizer, authz.ObjEvents, authz.ActRead))
		r.Get("/api/events", h.Events)
	})

	// Public routes
	r.Group(func(r chi.Router) {
		r.Use(chimiddleware.Timeout(timeout))
		r.Post("/api/setup", h.Setup)
		r.With(middleware.RequireSetup(s.db)).Post("/api/auth/login", h.Login)
		r.Post("/api/auth/logout", h.Logout)
	})

	// Authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(chimiddleware.Timeout(timeout))
		r.Use(middleware.Auth(s.authService))

		r.Get("/api/auth/me", h.Me)
		r.Post("/api/profile/password", h.ChangePassword)

		r.Route("/api/main", func(r chi.Router) {
			r.Route("/departments", func(r chi.Router) {
				r.Use(perm(authz.ObjDepartments))
				r.Get("/", h.DepartmentsList)
				r.Post("/", h.DepartmentCreate)
				r.Get("/{id}", h.DepartmentGet)
				r.Patch("/{id}", h.DepartmentUpdate)
				r.Delete("/{id}", h.DepartmentDelete)
				r.Post("/{id}/jsons", h.DepartmentAddJSON)
				r.Post("/{id}/connections", h.DepartmentAddConnection)
			})

			// Reads only, although the verb is POST
			r.Route("/externConnection", func(r chi.Router) {
				r.Use(middleware.RequirePermission(s.authorizer, authz.ObjExtern, authz.ActRead))
				r.Post("/extractDataBase", h.ExtractDatabase)
				r.Post("/tables", h.ExternTables)
			})

			r.Route("/managers", func(r chi.Router) {
				r.Use(perm(authz.ObjManagers))
				r.Get("/", h.ManagersList)
				r.Post("/", h.ManagerCreate)
				r.Delete("/{id}", h.ManagerDelete)
			})
		})

		r.Route("/api/stock", func(r chi.Router) {
			r.Use(perm(authz.ObjStock))
			r.Get("/", h.StockList)
			r.Post("/", h.StockCreate)
			r.Get("/{id}", h.StockGet)
			r.Patch("/{id}", h.StockUpdate)
			r.Delete("/{id}", h.StockDelete)
		})

		r.Route("/api/sales", func(r chi.Router) {
			r.Use(perm(authz.ObjSales))
			r.Get("/products", h.ProductsList)
			r.Post("/products", h.ProductCreate)
			r.Delete("/products/{id}", h.ProductDelete)
			r.Get("/sales-prediction", h.MonthlySalesList)
			r.Post("/sales-prediction", h.MonthlySalesUpsert)
			r.Get("/wilaya-sales", h.RegionSalesList)
			r.Post("/wilaya-sales", h.RegionSalesUpsert)
		})

		r.Route("/api/settings", func(r chi.Router) {
			r.Use(perm(authz.ObjSettings))
			r.Get("/", h.SettingsGet)
			r.With(middleware.RequirePermission(s.authorizer, authz.ObjInstance, authz.ActWrite)).Post("/", h.SettingsUpdate)
		})
	})
}

// Start starts the web server
func (s *Server) Start(ctx context.Context) error {
	var addr string
	if s.opts.Bind != "" {
		addr = fmt.Sprintf("%s:%d", s.opts.Bind, s.opts.Port)
	} else {
		addr = fmt.Sprintf(":%d", s.opts.Port)
	}

	server := &http.Server{
		Addr:    addr,
		Handler: s.router,
		// ReadTimeout is for reading request body
		ReadTimeout: 15 * time.Second,
		// WriteTimeout disabled (0) to allow SSE long-lived connections
		// Chi middleware timeout protects regular requests
		WriteTimeout: 0,
		// IdleTimeout for keep-alive connections between requests
		IdleTimeout: 120 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down HTTP server")
		// Stop SSE broker first to close all client connections gracefully
		s.sseBroker.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), config.GetTimeouts().Shutdown)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errChan:
		return err
	}
}
