// Package freshness decides at startup whether the persisted catalog still
// matches the remote dataset and refreshes it when it does not.
package freshness

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/atlasbot/internal/entity"
	"github.com/MrWong99/atlasbot/internal/observe"
	"github.com/MrWong99/atlasbot/internal/snapshot"
)

// Remote is the subset of the dataset client the checker needs.
type Remote interface {
	FetchFingerprint(ctx context.Context) (entity.Fingerprint, error)
	FetchCatalog(ctx context.Context) ([]entity.Entity, error)
}

// Result describes the outcome of [Checker.Sync].
type Result struct {
	// Refreshed is true when the catalog was downloaded and persisted.
	Refreshed bool

	// Fingerprint is the remote dataset hash of the configured region.
	Fingerprint string

	// Count is the number of records in the active catalog.
	Count int
}

// Checker compares remote and persisted fingerprints and loads or refreshes
// the catalog accordingly.
type Checker struct {
	remote  Remote
	store   snapshot.Store
	region  string
	metrics *observe.Metrics
}

// Option configures a [Checker].
type Option func(*Checker)

// WithMetrics records sync outcomes on m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Checker) { c.metrics = m }
}

// New returns a Checker comparing the hash of region.
func New(remote Remote, store snapshot.Store, region string, opts ...Option) *Checker {
	c := &Checker{remote: remote, store: store, region: region}
	for _, o := range opts {
		o(c)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	return c
}

// Sync fetches the remote fingerprint and reads the persisted one
// concurrently. When the region hashes match and a catalog is persisted, the
// persisted catalog is returned. Otherwise the catalog is downloaded, saved,
// and only then the fingerprint is saved, so an interrupted refresh is
// retried on the next start.
//
// Any remote or storage failure aborts the sync and is returned unchanged
// (wrapped with context).
func (c *Checker) Sync(ctx context.Context) (cat *entity.Catalog, res Result, err error) {
	ctx, span := observe.StartSpan(ctx, "freshness.sync")
	defer func() {
		switch {
		case err != nil:
			c.metrics.RecordCatalogSync(ctx, "error")
		case res.Refreshed:
			c.metrics.RecordCatalogSync(ctx, "refreshed")
		default:
			c.metrics.RecordCatalogSync(ctx, "loaded")
		}
		observe.EndSpan(span, err)
	}()

	var remoteFP, localFP entity.Fingerprint
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		fp, err := c.remote.FetchFingerprint(gctx)
		if err != nil {
			return fmt.Errorf("freshness: fetch remote fingerprint: %w", err)
		}
		remoteFP = fp
		return nil
	})
	g.Go(func() error {
		fp, err := c.store.LoadFingerprint(gctx)
		if errors.Is(err, snapshot.ErrNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("freshness: load local fingerprint: %w", err)
		}
		localFP = fp
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, Result{}, err
	}

	hash := remoteFP.Hash(c.region)
	log := observe.Logger(ctx).With("region", c.region, "fingerprint", hash)

	if remoteFP.SameRegion(localFP, c.region) {
		cat, err := c.store.Load(ctx)
		switch {
		case err == nil:
			// The latest remote info is persisted even when unchanged.
			if err := c.store.SaveFingerprint(ctx, remoteFP); err != nil {
				return nil, Result{}, fmt.Errorf("freshness: save fingerprint: %w", err)
			}
			log.Info("catalog up to date", "count", cat.Len())
			return cat, Result{Fingerprint: hash, Count: cat.Len()}, nil
		case errors.Is(err, snapshot.ErrNotFound):
			log.Warn("fingerprint matches but no catalog persisted, refreshing")
		default:
			return nil, Result{}, fmt.Errorf("freshness: load catalog: %w", err)
		}
	} else {
		log.Info("dataset changed, refreshing catalog", "previous", localFP.Hash(c.region))
	}

	records, err := c.remote.FetchCatalog(ctx)
	if err != nil {
		return nil, Result{}, fmt.Errorf("freshness: fetch catalog: %w", err)
	}
	cat = entity.NewCatalog(hash, records)
	if err := c.store.Save(ctx, cat); err != nil {
		return nil, Result{}, fmt.Errorf("freshness: save catalog: %w", err)
	}
	if err := c.store.SaveFingerprint(ctx, remoteFP); err != nil {
		return nil, Result{}, fmt.Errorf("freshness: save fingerprint: %w", err)
	}

	log.Info("catalog refreshed", "count", cat.Len())
	return cat, Result{Refreshed: true, Fingerprint: hash, Count: cat.Len()}, nil
}
