// Package resolver turns a free-form user token into exactly one servant or
// enemy.
//
// A token is tried against an ordered chain of strategies and the first hit
// wins:
//
//  1. number: the token itself is an integer.
//  2. nickname: the token is a known alias; its key becomes the number.
//  3. catalog: the number is a servant collection number.
//  4. remote_id: the number is the internal ID of an enemy.
//  5. fuzzy: the token approximately matches a catalog name.
//  6. remote_search: the remote name search returns an enemy.
//
// Steps 5 and 6 only run when neither step 1 nor step 2 produced a number,
// so an unknown number fails fast instead of fuzzy-matching digits. A token
// no strategy resolves yields a [*NotFoundError]. Operational failures
// (network, payload, storage) abort the chain and are returned unchanged.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/MrWong99/atlasbot/internal/atlas"
	"github.com/MrWong99/atlasbot/internal/entity"
	"github.com/MrWong99/atlasbot/internal/fuzzy"
	"github.com/MrWong99/atlasbot/internal/observe"
)

// Strategy names, reported in metrics and logs.
const (
	StrategyCatalog      = "catalog"
	StrategyRemoteID     = "remote_id"
	StrategyFuzzy        = "fuzzy"
	StrategyRemoteSearch = "remote_search"
)

// Remote is the subset of the dataset client the resolver needs.
type Remote interface {
	FetchEntity(ctx context.Context, id int) (entity.Entity, error)
	SearchByName(ctx context.Context, name string) ([]entity.Entity, error)
}

// Nicknames looks up aliases.
type Nicknames interface {
	Lookup(alias string) (key string, ok bool)
	Aliases(key string) []string
}

// Patcher post-processes a resolved entity.
type Patcher interface {
	Apply(ctx context.Context, e entity.Entity) (entity.Entity, error)
}

// snapshot pairs a catalog with the index built from it so both are swapped
// together.
type snapshot struct {
	catalog *entity.Catalog
	index   *fuzzy.Index
}

// Resolver resolves tokens. Create one with [New] at startup and share it;
// it is safe for concurrent use.
type Resolver struct {
	remote    Remote
	nicknames Nicknames
	patcher   Patcher
	fuzzyOpts []fuzzy.Option
	metrics   *observe.Metrics
	chain     []strategy

	current atomic.Pointer[snapshot]
}

// Option configures a [Resolver].
type Option func(*Resolver)

// WithPatcher applies p to every resolved entity.
func WithPatcher(p Patcher) Option {
	return func(r *Resolver) { r.patcher = p }
}

// WithFuzzyOptions configures the index built on every [Resolver.Replace].
func WithFuzzyOptions(opts ...fuzzy.Option) Option {
	return func(r *Resolver) { r.fuzzyOpts = append(r.fuzzyOpts, opts...) }
}

// WithMetrics records resolutions on m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(r *Resolver) { r.metrics = m }
}

// WithCatalog installs an initial catalog.
func WithCatalog(c *entity.Catalog) Option {
	return func(r *Resolver) { r.Replace(c) }
}

// New returns a Resolver with an empty catalog unless [WithCatalog] is given.
func New(remote Remote, nicknames Nicknames, opts ...Option) *Resolver {
	r := &Resolver{remote: remote, nicknames: nicknames}
	r.chain = []strategy{
		{name: StrategyCatalog, numeric: true, run: r.byCollectionNo},
		{name: StrategyRemoteID, numeric: true, run: r.remoteEnemyByID},
		{name: StrategyFuzzy, run: r.fuzzyMatch},
		{name: StrategyRemoteSearch, run: r.remoteNameSearch},
	}
	for _, o := range opts {
		o(r)
	}
	if r.metrics == nil {
		r.metrics = observe.DefaultMetrics()
	}
	if r.current.Load() == nil {
		r.Replace(entity.NewCatalog("", nil))
	}
	return r
}

// Replace swaps in a new catalog and rebuilds the fuzzy index. Resolutions
// already running keep the catalog they started with.
func (r *Resolver) Replace(c *entity.Catalog) {
	if c == nil {
		c = entity.NewCatalog("", nil)
	}
	r.current.Store(&snapshot{catalog: c, index: fuzzy.New(c, r.fuzzyOpts...)})
}

// Catalog returns the active catalog.
func (r *Resolver) Catalog() *entity.Catalog {
	return r.current.Load().catalog
}

// Suggest returns up to limit fuzzy hits for a partial token, best first.
func (r *Resolver) Suggest(token string, limit int) []fuzzy.Hit {
	hits := r.current.Load().index.Search(token)
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

// query is the per-resolution state threaded through the chain.
type query struct {
	token     string
	number    int
	hasNumber bool
	snap      *snapshot
}

type strategy struct {
	name string

	// numeric strategies run only when the token produced a number; the
	// others only when it did not.
	numeric bool

	run func(ctx context.Context, q *query) (entity.Entity, bool, error)
}

// Resolve returns the single entity token refers to.
func (r *Resolver) Resolve(ctx context.Context, token string) (e entity.Entity, err error) {
	start := time.Now()
	ctx, span := observe.StartSpan(ctx, "resolver.resolve")
	span.SetAttributes(attribute.String("resolver.token", token))

	winner := ""
	defer func() {
		status := observe.StatusOK
		switch {
		case errors.Is(err, ErrEntityNotFound):
			status, winner = observe.StatusNotFound, observe.StatusNotFound
		case err != nil:
			status, winner = observe.StatusError, observe.StatusError
		}
		span.SetAttributes(attribute.String("resolver.strategy", winner))
		r.metrics.RecordResolution(ctx, winner, status, time.Since(start).Seconds())
		if status == observe.StatusNotFound {
			observe.EndSpan(span, nil)
			return
		}
		observe.EndSpan(span, err)
	}()

	q := &query{token: token, snap: r.current.Load()}
	q.number, q.hasNumber = ParseNumber(token)
	if !q.hasNumber && r.nicknames != nil {
		if key, ok := r.nicknames.Lookup(token); ok {
			q.number, q.hasNumber = ParseNumber(key)
		}
	}

	for _, s := range r.chain {
		if s.numeric != q.hasNumber {
			continue
		}
		found, ok, err := s.run(ctx, q)
		if err != nil {
			return entity.Entity{}, err
		}
		if !ok {
			continue
		}
		winner = s.name
		if r.patcher != nil {
			if found, err = r.patcher.Apply(ctx, found); err != nil {
				return entity.Entity{}, err
			}
		}
		observe.Logger(ctx).Debug("token resolved", "token", token, "strategy", s.name, "id", found.ID)
		return found, nil
	}
	return entity.Entity{}, &NotFoundError{Token: token}
}

func (r *Resolver) byCollectionNo(_ context.Context, q *query) (entity.Entity, bool, error) {
	e, ok := q.snap.catalog.ByCollectionNo(q.number)
	return e, ok, nil
}

func (r *Resolver) remoteEnemyByID(ctx context.Context, q *query) (entity.Entity, bool, error) {
	e, err := r.remote.FetchEntity(ctx, q.number)
	if errors.Is(err, atlas.ErrNotFound) {
		return entity.Entity{}, false, nil
	}
	if err != nil {
		return entity.Entity{}, false, fmt.Errorf("resolver: fetch entity %d: %w", q.number, err)
	}
	return e, e.IsEnemy(), nil
}

func (r *Resolver) fuzzyMatch(_ context.Context, q *query) (entity.Entity, bool, error) {
	hit, ok := q.snap.index.Best(q.token)
	return hit.Entity, ok, nil
}

func (r *Resolver) remoteNameSearch(ctx context.Context, q *query) (entity.Entity, bool, error) {
	results, err := r.remote.SearchByName(ctx, q.token)
	if err != nil {
		return entity.Entity{}, false, fmt.Errorf("resolver: search %q: %w", q.token, err)
	}
	for _, basic := range results {
		if !basic.IsEnemy() {
			continue
		}
		detail, err := r.remote.FetchEntity(ctx, basic.ID)
		switch {
		case errors.Is(err, atlas.ErrNotFound):
			return basic, true, nil
		case err != nil:
			return entity.Entity{}, false, fmt.Errorf("resolver: fetch entity %d: %w", basic.ID, err)
		}
		return detail, true, nil
	}
	return entity.Entity{}, false, nil
}

// Nicknames returns the aliases for token. A numeric token is treated as a
// key; any other token is looked up as an alias and the aliases of its key
// are returned. ok is false when nothing is listed.
func (r *Resolver) Nicknames(token string) (key string, aliases []string, ok bool) {
	if r.nicknames == nil {
		return "", nil, false
	}
	if n, isNum := ParseNumber(token); isNum {
		key = strconv.Itoa(n)
	} else if key, ok = r.nicknames.Lookup(token); !ok {
		return "", nil, false
	}
	aliases = r.nicknames.Aliases(key)
	return key, aliases, len(aliases) > 0
}
