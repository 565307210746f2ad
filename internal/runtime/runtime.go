package runtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	cfgpkg "github.com/lwhguge-dot/Online-Education-Platform-sub001/internal/config"
	"github.com/lwhguge-dot/Online-Education-Platform-sub001/internal/dispatch"
	"github.com/lwhguge-dot/Online-Education-Platform-sub001/internal/eventlog"
	"github.com/lwhguge-dot/Online-Education-Platform-sub001/internal/events"
	"github.com/lwhguge-dot/Online-Education-Platform-sub001/internal/listeners"
	"github.com/lwhguge-dot/Online-Education-Platform-sub001/internal/notify"
	"github.com/lwhguge-dot/Online-Education-Platform-sub001/internal/outbox"
	"github.com/lwhguge-dot/Online-Education-Platform-sub001/internal/peer"
	"github.com/lwhguge-dot/Online-Education-Platform-sub001/internal/session"
	pebblestore "github.com/lwhguge-dot/Online-Education-Platform-sub001/internal/storage/pebble"
	"github.com/lwhguge-dot/Online-Education-Platform-sub001/internal/store"
	logpkg "github.com/lwhguge-dot/Online-Education-Platform-sub001/pkg/log"
)

// Options for building the Runtime. Zero fields fall back to Config, and the
// collaborator overrides exist for tests and embedding.
type Options struct {
	DataDir string
	Fsync   pebblestore.FsyncMode
	Config  cfgpkg.Config
	Logger  logpkg.Logger

	// Store replaces the relational store chosen from Config.DatabaseURL.
	Store store.Store
	// Auth replaces the user-service token verifier.
	Auth session.Authenticator
	// Courses replaces the course-service client.
	Courses listeners.TeacherLookup
}

// Runtime wires storage, config and the event components for one process.
type Runtime struct {
	db     *pebblestore.DB
	config cfgpkg.Config
	logger logpkg.Logger

	logs      *eventlog.Store
	store     store.Store
	publisher *events.Publisher
	sessions  *session.Registry
	notifier  *notify.Service
	consumers *dispatch.ConsumerRegistry
	container *dispatch.Container
	relay     *outbox.Relay

	closeOnce sync.Once
}

// Open initializes storage and builds every component. Nothing runs until
// Start.
func Open(ctx context.Context, opts Options) (*Runtime, error) {
	cfg := opts.Config
	logger := opts.Logger
	if logger == nil {
		logger = logpkg.NewLogger()
	}
	dataDir := opts.DataDir
	if dataDir == "" {
		dataDir = cfg.DataDir
	}
	if dataDir == "" {
		dataDir = cfgpkg.DefaultDataDir()
	}
	fsync := opts.Fsync
	if fsync == pebblestore.FsyncModeUnspecified {
		m, err := pebblestore.ParseFsyncMode(cfg.Fsync)
		if err != nil {
			return nil, err
		}
		fsync = m
	}
	db, err := pebblestore.Open(pebblestore.Options{DataDir: dataDir, Fsync: fsync, Logger: logger.WithComponent("pebble")})
	if err != nil {
		return nil, err
	}
	rt := &Runtime{db: db, config: cfg, logger: logger, logs: eventlog.NewStore(db)}

	rt.store = opts.Store
	if rt.store == nil {
		if cfg.DatabaseURL != "" {
			pg, err := store.OpenPostgres(ctx, cfg.DatabaseURL)
			if err != nil {
				db.Close()
				return nil, err
			}
			if err := pg.EnsureSchema(ctx); err != nil {
				pg.Close()
				db.Close()
				return nil, err
			}
			rt.store = pg
		} else {
			logger.Warn("no database configured, using in-memory store")
			rt.store = store.NewMemory()
		}
	}

	hc := &http.Client{Timeout: cfg.Peers.Timeout.Std()}
	auth := opts.Auth
	if auth == nil {
		auth = peer.NewAuthClient(cfg.Peers.AuthURL, hc, []byte(cfg.Peers.JWTSecret))
	}
	var courses listeners.TeacherLookup = peer.NewCourseClient(cfg.Peers.CourseURL, hc)
	if opts.Courses != nil {
		courses = opts.Courses
	}

	rt.publisher = events.NewPublisher(rt.logs, logger)
	rt.sessions = session.NewRegistry(auth, session.Options{AuthTimeout: cfg.WebSocket.AuthTimeout.Std()}, logger)
	rt.notifier = notify.New(rt.store, rt.sessions, logger)
	rt.relay = outbox.NewRelay(rt.store, rt.publisher, outbox.Options{
		Interval:  cfg.Outbox.Interval.Std(),
		BatchSize: cfg.Outbox.BatchSize,
	}, logger)

	l := listeners.New(listeners.Deps{
		Unlocker:        rt.store,
		Notifier:        rt.notifier,
		Courses:         courses,
		Sessions:        rt.sessions,
		FallbackTeacher: cfg.FallbackTeacherID,
		Logger:          logger,
	})
	regs, err := registrations(cfg, l, logger)
	if err != nil {
		rt.Close()
		return nil, err
	}
	dopts := dispatch.Options{
		PollTimeout:   cfg.Dispatch.PollTimeout.Std(),
		BatchSize:     cfg.Dispatch.BatchSize,
		Workers:       cfg.Dispatch.Workers,
		ClaimInterval: cfg.Dispatch.ClaimInterval.Std(),
		MinIdle:       cfg.Dispatch.MinIdle.Std(),
		MaxDeliveries: cfg.Dispatch.MaxDeliveries,
	}
	if cfg.Dispatch.Dedup {
		dopts.Processed = dispatch.NewProcessedSet(db, cfg.Dispatch.DedupTTL.Std())
	}
	rt.consumers = dispatch.NewConsumerRegistry(db, cfg.Dispatch.ConsumerTTL.Std())
	rt.container = dispatch.New(rt.logs, rt.consumers, regs, dopts, logger)
	return rt, nil
}

func registrations(cfg cfgpkg.Config, l *listeners.Listeners, logger logpkg.Logger) ([]dispatch.Registration, error) {
	instance := cfg.Instance
	if instance <= 0 {
		instance = 1
	}
	var out []dispatch.Registration
	for _, svc := range cfg.Services {
		routes := l.Table(svc)
		if len(routes) == 0 {
			logger.Info("service has no listeners", logpkg.Str("service", svc))
			continue
		}
		regs, err := dispatch.Bind(svc, instance, routes, cfg.Filters)
		if err != nil {
			return nil, fmt.Errorf("bind %s: %w", svc, err)
		}
		out = append(out, regs...)
	}
	return out, nil
}

// Start bootstraps the reader groups and starts consuming and relaying.
func (r *Runtime) Start(ctx context.Context) error {
	if err := r.container.Start(ctx); err != nil {
		return err
	}
	r.relay.Start(ctx)
	return nil
}

// Close stops background work and closes underlying resources.
func (r *Runtime) Close() error {
	var err error
	r.closeOnce.Do(func() {
		if r.relay != nil {
			r.relay.Stop()
		}
		if r.container != nil {
			r.container.Stop()
		}
		if r.sessions != nil {
			r.sessions.Close()
		}
		if r.store != nil {
			r.store.Close()
		}
		if r.db != nil {
			err = r.db.Close()
		}
	})
	return err
}

// CheckHealth verifies the log storage and the relational store respond.
func (r *Runtime) CheckHealth(ctx context.Context) error {
	if r.db == nil {
		return errors.New("db not open")
	}
	it, err := r.db.NewIter(nil)
	if err != nil {
		return err
	}
	it.Close()
	if err := r.store.Ping(ctx); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	return nil
}

// Config returns the runtime configuration.
func (r *Runtime) Config() cfgpkg.Config { return r.config }

func (r *Runtime) Logs() *eventlog.Store { return r.logs }
func (r *Runtime) Store() store.Store { return r.store }
func (r *Runtime) Publisher() *events.Publisher { return r.publisher }
func (r *Runtime) Sessions() *session.Registry { return r.sessions }
func (r *Runtime) Notifier() *notify.Service { return r.notifier }
func (r *Runtime) Container() *dispatch.Container { return r.container }
func (r *Runtime) Consumers() *dispatch.ConsumerRegistry { return r.consumers }
func (r *Runtime) Relay() *outbox.Relay { return r.relay }
