package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/nerrad567/foxbridge/internal/dispatch"
	"github.com/nerrad567/foxbridge/internal/eventlog"
	"github.com/nerrad567/foxbridge/internal/infrastructure/config"
	"github.com/nerrad567/foxbridge/internal/infrastructure/logging"
	"github.com/nerrad567/foxbridge/internal/session"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// SessionController is the part of the session controller the API drives.
type SessionController interface {
	Initialize(ctx context.Context, tenantID string) error
	Reset(ctx context.Context, tenantID string) error
	Status(ctx context.Context, tenantID string) session.Status
	Session(tenantID string) (session.Session, bool)
	Sessions() []session.Session
}

// BillSender delivers bills.
type BillSender interface {
	SendBill(ctx context.Context, req dispatch.Request) (*dispatch.Delivery, error)
}

// HealthChecker is implemented by infrastructure clients.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// DBStatter exposes connection pool statistics.
type DBStatter interface {
	Stats() sql.DBStats
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Security config.SecurityConfig
	Logger   *logging.Logger

	Sessions   SessionController
	Dispatcher BillSender

	// Optional.
	Events   eventlog.Repository
	Database DBStatter
	Health   map[string]HealthChecker
	Version  string
}

// Server is the HTTP API server.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg        config.APIConfig
	wsCfg      config.WebSocketConfig
	secCfg     config.SecurityConfig
	logger     *logging.Logger
	sessions   SessionController
	dispatcher BillSender
	events     eventlog.Repository
	db         DBStatter
	health     map[string]HealthChecker
	version    string

	hub       *Hub
	tickets   *ticketStore
	startTime time.Time

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	cancel   context.CancelFunc
}

// New creates a new API server with the given dependencies.
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Sessions == nil {
		return nil, fmt.Errorf("session controller is required")
	}
	if deps.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}

	return &Server{
		cfg:        deps.Config,
		wsCfg:      deps.WS,
		secCfg:     deps.Security,
		logger:     deps.Logger,
		sessions:   deps.Sessions,
		dispatcher: deps.Dispatcher,
		events:     deps.Events,
		db:         deps.Database,
		health:     deps.Health,
		version:    deps.Version,
		hub:        NewHub(deps.WS, deps.Logger),
		tickets:    newTicketStore(),
		startTime:  time.Now(),
	}, nil
}

// Hub returns the WebSocket hub. Register it as a session and delivery
// observer to push live updates.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start begins listening for HTTP connections. The listener is bound
// before Start returns, so a port conflict is reported here.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server != nil {
		return fmt.Errorf("api server already started")
	}

	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	go s.hub.Run(srvCtx)
	go s.tickets.cleanLoop(srvCtx)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		addr := s.server.Addr
		s.cancel()
		s.server = nil
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	s.listener = ln
	srv := s.server

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", ln.Addr().String(),
				"cert", s.cfg.TLS.CertFile,
			)
			err = srv.ServeTLS(ln, s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", ln.Addr().String())
			err = srv.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound listener address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close gracefully shuts down the API server, waiting up to 10 seconds for
// in-flight requests.
func (s *Server) Close() error {
	s.mu.Lock()
	srv := s.server
	cancel := s.cancel
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	if cancel != nil {
		cancel()
	}

	ctx, done := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer done()

	s.logger.Info("API server shutting down")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
