// Package app wires all atlasbot subsystems into a running application.
//
// The App struct owns the full lifecycle: New builds the subsystems from the
// config, Run synchronises the catalog and serves the chat bot until the
// context ends, and Shutdown tears everything down in order.
//
// For testing, inject doubles via functional options (WithRemote,
// WithStore, WithMetrics). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/MrWong99/atlasbot/internal/atlas"
	"github.com/MrWong99/atlasbot/internal/config"
	"github.com/MrWong99/atlasbot/internal/discord"
	"github.com/MrWong99/atlasbot/internal/discord/commands"
	"github.com/MrWong99/atlasbot/internal/entity"
	"github.com/MrWong99/atlasbot/internal/freshness"
	"github.com/MrWong99/atlasbot/internal/fuzzy"
	"github.com/MrWong99/atlasbot/internal/health"
	"github.com/MrWong99/atlasbot/internal/nickname"
	"github.com/MrWong99/atlasbot/internal/observe"
	"github.com/MrWong99/atlasbot/internal/patch"
	"github.com/MrWong99/atlasbot/internal/resilience"
	"github.com/MrWong99/atlasbot/internal/resolver"
	"github.com/MrWong99/atlasbot/internal/snapshot"
)

// Remote is every remote dataset operation the application needs.
// [*atlas.Client] implements it.
type Remote interface {
	freshness.Remote
	resolver.Remote
	patch.Source
}

// App owns all subsystem lifetimes.
type App struct {
	cfg     *config.Config
	metrics *observe.Metrics

	// Subsystems, initialised in New and torn down in Shutdown.
	breaker   *resilience.CircuitBreaker
	remote    Remote
	store     snapshot.Store
	checker   *freshness.Checker
	nicknames *nickname.Directory
	watcher   *nickname.Watcher
	patcher   *patch.Patcher
	resolver  *resolver.Resolver

	mu          sync.Mutex
	catalogSize int

	// closers are called in order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithRemote injects the remote dataset client instead of creating an
// [*atlas.Client] from config. No circuit breaker is created.
func WithRemote(r Remote) Option {
	return func(a *App) { a.remote = r }
}

// WithStore injects the snapshot store instead of creating one from config.
func WithStore(s snapshot.Store) Option {
	return func(a *App) { a.store = s }
}

// WithMetrics sets the metrics instance. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// New creates an App by wiring all subsystems together. It performs no
// network I/O except opening the Postgres pool when that backend is
// selected; the catalog is synchronised by [App.Sync] or [App.Run].
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	if err := a.initRemote(); err != nil {
		return nil, fmt.Errorf("app: init remote: %w", err)
	}
	if err := a.initStore(ctx); err != nil {
		return nil, fmt.Errorf("app: init snapshot store: %w", err)
	}
	a.checker = freshness.New(a.remote, a.store, cfg.Atlas.Region, freshness.WithMetrics(a.metrics))

	dir, err := nickname.Load(cfg.Nicknames.Path)
	if err != nil {
		return nil, fmt.Errorf("app: load nicknames: %w", err)
	}
	a.nicknames = dir
	slog.Info("nicknames loaded", "path", dir.Path(), "keys", dir.Len())

	ropts := []resolver.Option{
		resolver.WithMetrics(a.metrics),
		resolver.WithFuzzyOptions(a.fuzzyOptions()...),
	}
	if !cfg.Patch.Disabled {
		a.patcher = patch.New(a.remote, patch.WithTarget(cfg.Patch.CollectionNo, cfg.Patch.NoblePhantasmID))
		ropts = append(ropts, resolver.WithPatcher(a.patcher))
	}
	a.resolver = resolver.New(a.remote, a.nicknames, ropts...)

	return a, nil
}

func (a *App) initRemote() error {
	if a.remote != nil {
		return nil
	}
	ac := a.cfg.Atlas
	opts := []atlas.Option{
		atlas.WithRegion(ac.Region),
		atlas.WithLanguage(ac.Language),
		atlas.WithTimeout(ac.Timeout),
		atlas.WithMetrics(a.metrics),
	}
	if !ac.Breaker.Disabled {
		a.breaker = resilience.NewCircuitBreaker(resilience.Config{
			Name:         "atlas",
			MaxFailures:  ac.Breaker.MaxFailures,
			ResetTimeout: ac.Breaker.ResetTimeout,
			OnStateChange: func(name string, _, to resilience.State) {
				a.metrics.RecordBreakerTransition(context.Background(), name, to.String())
			},
		})
		opts = append(opts, atlas.WithBreaker(a.breaker))
	}
	if ac.RateLimit > 0 {
		opts = append(opts, atlas.WithRateLimit(ac.RateLimit, ac.RateBurst))
	}
	client, err := atlas.New(ac.BaseURL, opts...)
	if err != nil {
		return err
	}
	a.remote = client
	return nil
}

func (a *App) initStore(ctx context.Context) error {
	if a.store != nil {
		return nil
	}
	sc := a.cfg.Snapshot
	switch sc.Backend {
	case config.BackendPostgres:
		pg, err := snapshot.NewPostgresStore(ctx, sc.PostgresDSN, a.cfg.Atlas.Region)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() error { pg.Close(); return nil })
		a.store = pg
	case config.BackendBadger:
		bs, err := snapshot.NewBadgerStore(sc.Dir, a.cfg.Atlas.Region)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, bs.Close)
		a.store = bs
	default:
		fs, err := snapshot.NewFileStore(sc.Dir, a.cfg.Atlas.Region)
		if err != nil {
			return err
		}
		a.store = fs
	}
	slog.Info("snapshot store ready", "backend", sc.Backend)
	return nil
}

func (a *App) fuzzyOptions() []fuzzy.Option {
	var opts []fuzzy.Option
	if t := a.cfg.Fuzzy.PhoneticThreshold; t > 0 {
		opts = append(opts, fuzzy.WithPhoneticThreshold(t))
	}
	if t := a.cfg.Fuzzy.FuzzyThreshold; t > 0 {
		opts = append(opts, fuzzy.WithFuzzyThreshold(t))
	}
	return opts
}

// Resolver returns the entity resolver.
func (a *App) Resolver() *resolver.Resolver { return a.resolver }

// Nicknames returns the alias directory.
func (a *App) Nicknames() *nickname.Directory { return a.nicknames }

// Metrics returns the metrics instance the subsystems record to.
func (a *App) Metrics() *observe.Metrics { return a.metrics }

// Sync runs the freshness check and installs the resulting catalog.
func (a *App) Sync(ctx context.Context) (freshness.Result, error) {
	cat, res, err := a.checker.Sync(ctx)
	if err != nil {
		return freshness.Result{}, fmt.Errorf("app: sync catalog: %w", err)
	}
	a.install(ctx, cat)
	return res, nil
}

func (a *App) install(ctx context.Context, cat *entity.Catalog) {
	a.resolver.Replace(cat)

	a.mu.Lock()
	prev := a.catalogSize
	a.catalogSize = cat.Len()
	a.mu.Unlock()
	a.metrics.SetCatalogEntities(ctx, prev, cat.Len())
}

// ReadinessCheckers returns the checks /readyz evaluates.
func (a *App) ReadinessCheckers() []health.Checker {
	checks := []health.Checker{
		health.CatalogChecker(func() int { return a.resolver.Catalog().Len() }),
	}
	if a.breaker != nil {
		checks = append(checks, health.BreakerChecker("atlas", func() fmt.Stringer { return a.breaker.State() }))
	}
	return checks
}

// Run synchronises the catalog, warms the patch cache, starts the nickname
// watcher and serves the Discord bot until ctx is cancelled. Without a
// Discord token it only blocks.
func (a *App) Run(ctx context.Context) error {
	res, err := a.Sync(ctx)
	if err != nil {
		return err
	}
	slog.Info("catalog ready", "refreshed", res.Refreshed, "fingerprint", res.Fingerprint, "count", res.Count)

	if a.patcher != nil {
		if err := a.patcher.Warm(ctx); err != nil {
			slog.Warn("patch prefetch failed, retrying on first use", "err", err)
		}
	}

	a.startWatcher()

	if a.cfg.Discord.Token == "" {
		slog.Info("no discord token configured, serving without chat bot")
		<-ctx.Done()
		return nil
	}
	bot, err := discord.New(ctx, discord.Config{
		Token:        a.cfg.Discord.Token,
		GuildID:      a.cfg.Discord.GuildID,
		EditorRoleID: a.cfg.Discord.EditorRoleID,
	})
	if err != nil {
		return fmt.Errorf("app: start discord: %w", err)
	}
	a.mu.Lock()
	a.closers = append(a.closers, bot.Close)
	a.mu.Unlock()

	commands.NewServantCommands(a.resolver).Register(bot.Router())
	commands.NewNameCommands(bot.Permissions(), a.resolver, a.nicknames, a.metrics).Register(bot.Router())

	if err := bot.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func (a *App) startWatcher() {
	interval := a.cfg.Nicknames.WatchInterval
	if interval <= 0 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.watcher != nil {
		return
	}
	a.watcher = nickname.NewWatcher(a.nicknames,
		nickname.WithInterval(interval),
		nickname.WithOnReload(func(keys int) {
			slog.Info("nicknames reloaded", "keys", keys)
		}),
	)
	a.closers = append(a.closers, func() error { a.watcher.Stop(); return nil })
}

// Shutdown tears down all subsystems in reverse-init order. If ctx expires
// before all closers finish, remaining closers are skipped and the context
// error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		a.mu.Lock()
		closers := a.closers
		a.mu.Unlock()
		slog.Info("shutting down", "closers", len(closers))

		for i := len(closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closers[i](); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}
		slog.Info("shutdown complete")
	})
	return shutdownErr
}
