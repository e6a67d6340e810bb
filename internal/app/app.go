package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/specialistvlad/gridci/internal/archive"
	"github.com/specialistvlad/gridci/internal/ctxlog"
	"github.com/specialistvlad/gridci/internal/notify"
	"github.com/specialistvlad/gridci/internal/postgres"
	"github.com/specialistvlad/gridci/internal/registry"
	"github.com/specialistvlad/gridci/internal/registry/ledger"
	"github.com/specialistvlad/gridci/internal/runstore"
	"github.com/specialistvlad/gridci/internal/runstore/memstore"
	"github.com/specialistvlad/gridci/internal/runstore/pgstore"
	"github.com/specialistvlad/gridci/internal/secrets"
	"github.com/specialistvlad/gridci/internal/step"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW   io.Writer
	logger *slog.Logger
	config *Config

	commands step.CommandRunner
	secrets  secrets.Store
	builder  registry.Builder
	images   registry.Registry
	// tags is nil without a database.
	tags     ledger.Store
	store    runstore.Store
	objects  archive.ObjectStore
	archiver *archive.Archiver
	emitter  notify.Emitter

	closers []func() error

	server *http.Server
	active sync.Map // Key: run ID, Value: struct{}
	wg     sync.WaitGroup
}

// Option overrides one of the App's collaborators.
type Option func(*App)

// WithCommandRunner replaces the shell runner.
func WithCommandRunner(r step.CommandRunner) Option {
	return func(a *App) { a.commands = r }
}

// WithSecretStore replaces the env/dir secret sources.
func WithSecretStore(s secrets.Store) Option {
	return func(a *App) { a.secrets = s }
}

// WithImageBackend replaces the configured registry backend.
func WithImageBackend(b registry.Builder, r registry.Registry) Option {
	return func(a *App) { a.builder, a.images = b, r }
}

// WithRunStore replaces the configured run store.
func WithRunStore(s runstore.Store) Option {
	return func(a *App) { a.store = s }
}

// WithEmitter replaces the socket.io notifier.
func WithEmitter(e notify.Emitter) Option {
	return func(a *App) { a.emitter = e }
}

// NewApp is the constructor for the main application. It connects every
// configured backend; options take precedence over the configuration.
func NewApp(ctx context.Context, outW io.Writer, cfg *Config, opts ...Option) (_ *App, err error) {
	logger := newLogger(cfg, outW)
	ctx = ctxlog.WithLogger(ctx, logger)
	logger.Debug("Logger configured successfully.")

	a := &App{outW: outW, logger: logger, config: cfg}
	for _, opt := range opts {
		opt(a)
	}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	if a.commands == nil {
		a.commands = step.ShellRunner{}
	}
	if a.secrets == nil {
		chain := secrets.Chain{secrets.EnvStore{Prefix: cfg.SecretsPrefix}}
		if cfg.SecretsDir != "" {
			chain = append(chain, secrets.DirStore{Dir: cfg.SecretsDir})
		}
		a.secrets = chain
	}
	if a.images == nil {
		switch cfg.RegistryBackend {
		case BackendDocker:
			d := registry.NewDocker()
			a.builder, a.images = d, d
		default:
			m := registry.NewMemory()
			a.builder, a.images = m, m
		}
		logger.Debug("Image registry configured.", "backend", cfg.RegistryBackend)
	}

	if cfg.DatabaseURL != "" {
		if err := a.openDatabase(ctx); err != nil {
			return nil, err
		}
	}
	if a.store == nil {
		a.store = memstore.New()
	}

	if cfg.Archive.Endpoint != "" {
		ms, err := archive.NewMinioStore(cfg.Archive)
		if err != nil {
			return nil, fmt.Errorf("failed to configure archive: %w", err)
		}
		if err := ms.EnsureBucket(ctx, cfg.Archive.Bucket, cfg.Archive.Region); err != nil {
			return nil, fmt.Errorf("failed to prepare archive bucket: %w", err)
		}
		a.objects = ms
		a.archiver = archive.NewArchiver(ms, cfg.Archive.Bucket, cfg.Archive.Prefix)
		logger.Debug("Run archive configured.", "endpoint", cfg.Archive.Endpoint, "bucket", cfg.Archive.Bucket)
	}

	if a.emitter == nil && cfg.NotifyURL != "" {
		se, err := notify.Dial(ctx, notify.SocketConfig{URL: cfg.NotifyURL, Namespace: cfg.NotifyNamespace})
		if err != nil {
			return nil, fmt.Errorf("failed to connect notifier: %w", err)
		}
		a.emitter = se
		a.closers = append(a.closers, se.Close)
	}
	if a.emitter == nil {
		a.emitter = notify.Nop{}
	}
	return a, nil
}

func (a *App) openDatabase(ctx context.Context) error {
	db, err := postgres.Open(ctx, postgres.DefaultConfig(a.config.DatabaseURL))
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	a.closers = append(a.closers, db.Close)

	tags := ledger.NewSQLStore(db)
	if err := tags.Migrate(ctx); err != nil {
		return err
	}
	a.tags = tags
	if a.store == nil {
		runs := pgstore.New(db)
		if err := runs.Migrate(ctx); err != nil {
			return err
		}
		a.store = runs
	}
	ctxlog.FromContext(ctx).Debug("Database connected; run store and tag ledger enabled.")
	return nil
}

// Store returns the run store.
func (a *App) Store() runstore.Store {
	return a.store
}

// Context returns ctx carrying the application's logger.
func (a *App) Context(ctx context.Context) context.Context {
	return ctxlog.WithLogger(ctx, a.logger)
}

// Close releases every backend connection, last opened first.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
