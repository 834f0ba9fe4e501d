// Package patch overrides the noble phantasm list of one servant whose
// upstream record is known to be wrong, using a separately fetched noble
// phantasm record.
package patch

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/MrWong99/atlasbot/internal/entity"
	"github.com/MrWong99/atlasbot/internal/observe"
)

const (
	// DefaultCollectionNo is the servant whose noble phantasms are replaced.
	DefaultCollectionNo = 336

	// DefaultNoblePhantasmID is the record spliced in.
	DefaultNoblePhantasmID = 1001150
)

// Source fetches noble phantasm records.
type Source interface {
	FetchNoblePhantasm(ctx context.Context, id int) (entity.NoblePhantasm, error)
}

// Patcher applies the override. The replacement record is fetched at most
// once per process; concurrent first uses share one fetch and a failed fetch
// is retried on the next use. A caller whose context ends stops waiting
// without cancelling the shared fetch.
type Patcher struct {
	src          Source
	collectionNo int
	npID         int

	group singleflight.Group

	mu     sync.RWMutex
	cached *entity.NoblePhantasm
}

// Option configures a [Patcher].
type Option func(*Patcher)

// WithTarget overrides the patched collection number and the replacement
// noble phantasm ID.
func WithTarget(collectionNo, noblePhantasmID int) Option {
	return func(p *Patcher) {
		if collectionNo > 0 {
			p.collectionNo = collectionNo
		}
		if noblePhantasmID > 0 {
			p.npID = noblePhantasmID
		}
	}
}

// New returns a Patcher fetching from src.
func New(src Source, opts ...Option) *Patcher {
	p := &Patcher{
		src:          src,
		collectionNo: DefaultCollectionNo,
		npID:         DefaultNoblePhantasmID,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Applies reports whether e is the patched entity.
func (p *Patcher) Applies(e entity.Entity) bool {
	return e.IsServant() && e.CollectionNo == p.collectionNo
}

// Apply returns e unchanged unless it is the patched entity, in which case
// it returns a copy whose noble phantasm list is exactly the replacement
// record. e itself is never modified.
func (p *Patcher) Apply(ctx context.Context, e entity.Entity) (entity.Entity, error) {
	if !p.Applies(e) {
		return e, nil
	}
	np, err := p.noblePhantasm(ctx)
	if err != nil {
		return entity.Entity{}, err
	}
	out := e.Clone()
	out.NoblePhantasms = []entity.NoblePhantasm{np}
	return out, nil
}

// Warm fetches the replacement record ahead of the first resolution.
func (p *Patcher) Warm(ctx context.Context) error {
	_, err := p.noblePhantasm(ctx)
	return err
}

func (p *Patcher) noblePhantasm(ctx context.Context) (entity.NoblePhantasm, error) {
	p.mu.RLock()
	cached := p.cached
	p.mu.RUnlock()
	if cached != nil {
		return *cached, nil
	}

	// The shared fetch outlives the caller that started it; each caller only
	// stops waiting when its own context ends.
	ch := p.group.DoChan(strconv.Itoa(p.npID), func() (any, error) {
		p.mu.RLock()
		cached := p.cached
		p.mu.RUnlock()
		if cached != nil {
			return *cached, nil
		}

		fctx, span := observe.StartSpan(context.WithoutCancel(ctx), "patch.fetch_noble_phantasm")
		np, err := p.src.FetchNoblePhantasm(fctx, p.npID)
		observe.EndSpan(span, err)
		if err != nil {
			return nil, fmt.Errorf("patch: fetch noble phantasm %d: %w", p.npID, err)
		}

		p.mu.Lock()
		p.cached = &np
		p.mu.Unlock()
		return np, nil
	})

	select {
	case <-ctx.Done():
		return entity.NoblePhantasm{}, fmt.Errorf("patch: fetch noble phantasm %d: %w", p.npID, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return entity.NoblePhantasm{}, res.Err
		}
		return res.Val.(entity.NoblePhantasm), nil
	}
}
