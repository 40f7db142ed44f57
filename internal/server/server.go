// Package server orchestrates all components: host backend, executor, dispatcher,
// TCP listener, NATS command transport, command journal and HTTP health.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/ableton-bridge/internal/config"
	"github.com/morezero/ableton-bridge/migrations"
	"github.com/morezero/ableton-bridge/pkg/client"
	"github.com/morezero/ableton-bridge/pkg/commsutil"
	"github.com/morezero/ableton-bridge/pkg/db"
	"github.com/morezero/ableton-bridge/pkg/dispatcher"
	"github.com/morezero/ableton-bridge/pkg/events"
	"github.com/morezero/ableton-bridge/pkg/host"
	"github.com/morezero/ableton-bridge/pkg/protocol"
	"github.com/morezero/ableton-bridge/pkg/registry"
	"github.com/morezero/ableton-bridge/pkg/stubs"
)

const logPrefix = "server:server"

// shutdownTimeout bounds the drain of queued commands and open connections.
const shutdownTimeout = 10 * time.Second

// Journal stores completed commands. *db.Journal satisfies it.
type Journal interface {
	Record(ctx context.Context, params db.RecordParams) error
	Summary(ctx context.Context) (*db.JournalSummary, error)
	Ping(ctx context.Context) error
}

// NewServerParams holds the collaborators of a Server. Host and Config are
// required; the rest are optional.
type NewServerParams struct {
	Config    *config.Config
	Host      dispatcher.Host
	Registry  *registry.Registry
	Stubs     *stubs.Store
	Journal   Journal
	Publisher events.EventPublisher
	Comms     *comms.Conn
}

// Server is the ableton-bridge orchestrator.
type Server struct {
	cfg       *config.Config
	host      dispatcher.Host
	reg       *registry.Registry
	stubs     *stubs.Store
	journal   Journal
	publisher events.EventPublisher
	nc        *comms.Conn

	executor *dispatcher.Executor
	disp     *dispatcher.Dispatcher

	listener   net.Listener
	httpServer *http.Server
	subs       []*comms.Subscription

	connMu sync.Mutex
	conns  map[*protocol.Conn]struct{}
	connWG sync.WaitGroup
	served atomic.Uint64

	startedAt time.Time
	cancel    context.CancelFunc
}

// New wires a Server. Nothing listens until Start.
func New(p NewServerParams) *Server {
	s := &Server{
		cfg:       p.Config,
		host:      p.Host,
		reg:       p.Registry,
		stubs:     p.Stubs,
		journal:   p.Journal,
		publisher: p.Publisher,
		nc:        p.Comms,
		conns:     make(map[*protocol.Conn]struct{}),
	}
	if s.reg == nil {
		s.reg = registry.Default()
	}
	if s.stubs == nil {
		s.stubs = stubs.NewStore()
	}
	if s.publisher == nil {
		s.publisher = events.NoOpPublisher{}
	}
	s.executor = dispatcher.NewExecutor(s.host, s.cfg.QueueSize)
	s.disp = dispatcher.NewDispatcher(dispatcher.NewDispatcherParams{
		Registry: s.reg,
		Stubs:    s.stubs,
		Executor: s.executor,
		Observer: s.observer(),
	})
	return s
}

// Dispatcher returns the dispatcher every transport feeds.
func (s *Server) Dispatcher() *dispatcher.Dispatcher {
	return s.disp
}

// Addr returns the TCP listener address once started.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Start starts the executor, the TCP listener, the NATS command subscription
// when a COMMS connection was given, and the HTTP server when HTTP_PORT is set.
func (s *Server) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)
	s.startedAt = time.Now()
	s.executor.Start(ctx)

	ln, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		s.cancel()
		return fmt.Errorf("%s - failed to listen on %s: %w", logPrefix, s.cfg.Addr(), err)
	}
	s.listener = ln
	go s.acceptLoop(ctx)
	slog.Info(fmt.Sprintf("%s - Listening for commands on %s", logPrefix, ln.Addr()))

	if s.nc != nil {
		if err := s.subscribeCommands(ctx); err != nil {
			ln.Close()
			s.cancel()
			return err
		}
	}

	if s.cfg.HTTPPort > 0 {
		httpAddr := fmt.Sprintf(":%d", s.cfg.HTTPPort)
		s.httpServer = &http.Server{Addr: httpAddr, Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
		go func() {
			slog.Info(fmt.Sprintf("%s - HTTP health server listening on %s", logPrefix, httpAddr))
			if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error(fmt.Sprintf("%s - HTTP server error: %v", logPrefix, err))
			}
		}()
	}
	return nil
}

// Shutdown stops accepting work, closes open connections, lets queued
// commands finish and stops the executor.
func (s *Server) Shutdown(ctx context.Context) error {
	for _, sub := range s.subs {
		sub.Unsubscribe()
	}
	if s.listener != nil {
		s.listener.Close()
	}
	if s.httpServer != nil {
		s.httpServer.Shutdown(ctx)
	}

	s.connMu.Lock()
	for c := range s.conns {
		c.Close()
	}
	s.connMu.Unlock()

	done := make(chan struct{})
	go func() {
		s.connWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		slog.Warn(fmt.Sprintf("%s - Connections still open at shutdown", logPrefix))
	}

	err := s.executor.Close(ctx)
	if s.cancel != nil {
		s.cancel()
	}
	return err
}

// Run loads configuration, builds every component, serves until SIGINT or
// SIGTERM, then cleans up.
func Run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("%s - failed to load config: %w", logPrefix, err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})))

	if err := cfg.ValidateForServe(); err != nil {
		return err
	}
	slog.Info(fmt.Sprintf("%s - Starting ableton-bridge (backend=%s)", logPrefix, cfg.Backend))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := registry.Default()

	// Step 1: Host backend, checked against the command table
	backend, closeBackend, err := newBackend(cfg, reg)
	if err != nil {
		return err
	}
	defer closeBackend()

	// Step 2: Server-side stubs
	store, err := stubs.Load(cfg.StubsFile)
	if err != nil {
		return fmt.Errorf("%s - failed to load stubs: %w", logPrefix, err)
	}

	params := NewServerParams{Config: cfg, Host: backend, Registry: reg, Stubs: store}

	// Step 3: NATS (optional)
	if cfg.COMMSURL != "" {
		nc, err := commsutil.Connect(commsutil.ConnectParams{URL: cfg.COMMSURL, Name: cfg.COMMSName})
		if err != nil {
			return fmt.Errorf("%s - failed to connect to NATS: %w", logPrefix, err)
		}
		defer nc.Drain()
		params.Comms = nc
		params.Publisher = events.NewCommsPublisher(nc, &events.CommsPublisherOpts{GlobalSubject: cfg.CommandEventSubject})
		slog.Info(fmt.Sprintf("%s - Connected to NATS at %s", logPrefix, commsutil.RedactURL(cfg.COMMSURL)))
	}

	// Step 4: Command journal (optional)
	if cfg.DatabaseURL != "" {
		pool, err := db.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("%s - failed to connect to database: %w", logPrefix, err)
		}
		defer pool.Close()

		if cfg.RunMigrations {
			migs, _, err := LoadMigrations(cfg.MigrationPath)
			if err != nil {
				return fmt.Errorf("%s - failed to load migrations: %w", logPrefix, err)
			}
			if err := db.RunMigrations(ctx, pool, migs); err != nil {
				return fmt.Errorf("%s - failed to run migrations: %w", logPrefix, err)
			}
		}
		params.Journal = db.NewJournal(pool)
	}

	// Step 5: Serve
	s := New(params)
	if err := s.Start(ctx); err != nil {
		return err
	}
	slog.Info(fmt.Sprintf("%s - ableton-bridge is ready", logPrefix))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info(fmt.Sprintf("%s - Received signal %s, shutting down", logPrefix, sig))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		slog.Warn(fmt.Sprintf("%s - %v", logPrefix, err))
	}

	slog.Info(fmt.Sprintf("%s - Shutdown complete", logPrefix))
	return nil
}

// newBackend builds the configured host backend and verifies its handler set
// equals the registry.
func newBackend(cfg *config.Config, reg *registry.Registry) (dispatcher.Host, func(), error) {
	var (
		backend dispatcher.Host
		closeFn = func() {}
	)
	switch cfg.Backend {
	case config.BackendRelay:
		upstream := client.New(client.Options{
			Addr:            cfg.UpstreamAddr(),
			QueryTimeout:    cfg.QueryTimeout,
			MutationTimeout: cfg.MutationTimeout,
			Attempts:        cfg.ConnectAttempts,
			Registry:        reg,
			MaxMessageSize:  cfg.MaxMessageSize,
			Legacy:          true,
		})
		relay := host.NewRelay(upstream, reg)
		backend = relay
		closeFn = func() { relay.Close() }
		slog.Info(fmt.Sprintf("%s - Relaying to remote script at %s", logPrefix, cfg.UpstreamAddr()))
	default:
		backend = host.NewSimulator()
		slog.Info(fmt.Sprintf("%s - Using in-memory simulator", logPrefix))
	}

	if lister, ok := backend.(dispatcher.HandlerLister); ok {
		if err := reg.CheckHandlers(lister.Handles()); err != nil {
			closeFn()
			return nil, nil, fmt.Errorf("%s - handler drift: %w", logPrefix, err)
		}
	}
	return backend, closeFn, nil
}

// LoadMigrations loads migrations from dir, or the embedded set when dir is
// empty. The second value names the source for status output.
func LoadMigrations(dir string) ([]db.Migration, string, error) {
	if dir == "" {
		migs, err := db.LoadMigrations(migrations.FS)
		return migs, "embedded", err
	}
	migs, err := db.LoadMigrationFiles(dir)
	return migs, dir, err
}
