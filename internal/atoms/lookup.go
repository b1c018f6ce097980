// Package atoms resolves codepoints to their pre-seeded atom records. Text
// ingestion must take atom positions from here — recomputing them from
// hashes would discard the semantic locality the seeder built.
package atoms

import (
	"context"
	"sync"

	"github.com/hartonomous/substrate/internal/apperr"
	"github.com/hartonomous/substrate/internal/geometry"
	"github.com/hartonomous/substrate/internal/hash"
	"github.com/hartonomous/substrate/internal/hilbert"
	"github.com/hartonomous/substrate/internal/logger"
)

// Info is the resolved view of one seeded atom.
type Info struct {
	Codepoint     uint32
	AtomID        hash.Digest
	PhysicalityID hash.Digest
	Position      geometry.Point
	Hilbert       hilbert.Key
}

// Source is the store-side supplier of atom records.
type Source interface {
	// AtomsByCodepoints fetches up to BatchSize codepoints in one round trip.
	AtomsByCodepoints(ctx context.Context, codepoints []uint32) ([]Info, error)
	// ScanAtoms streams the whole atom table.
	ScanAtoms(ctx context.Context, fn func(Info) error) error
}

// BatchSize is the per-round-trip codepoint limit in on-demand mode.
const BatchSize = 1024

// Lookup is the query-time cache. After PreloadAll it is read-only and may
// be shared freely across goroutines; in on-demand mode it fills lazily
// under a lock.
type Lookup struct {
	src Source

	mu        sync.RWMutex
	cache     map[uint32]Info
	preloaded bool
}

func New(src Source) *Lookup {
	return &Lookup{src: src, cache: make(map[uint32]Info)}
}

// PreloadAll loads the full atom table into memory in one pass.
func (l *Lookup) PreloadAll(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.preloaded {
		return nil
	}
	cache := make(map[uint32]Info, 1_200_000)
	err := l.src.ScanAtoms(ctx, func(info Info) error {
		cache[info.Codepoint] = info
		return nil
	})
	if err != nil {
		return apperr.Wrap(apperr.KindStore, "preload atom table", err)
	}
	l.cache = cache
	l.preloaded = true
	logger.Info("atom cache preloaded", "atoms", len(cache))
	return nil
}

// IsPreloaded reports whether the full table is resident.
func (l *Lookup) IsPreloaded() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.preloaded
}

// Lookup resolves one codepoint. The boolean is false for codepoints the
// seeder never wrote, which for a seeded store means out-of-range input.
func (l *Lookup) Lookup(ctx context.Context, codepoint uint32) (Info, bool, error) {
	res, err := l.LookupBatch(ctx, []uint32{codepoint})
	if err != nil {
		return Info{}, false, err
	}
	info, ok := res[codepoint]
	return info, ok, nil
}

// LookupBatch resolves a set of codepoints, chunking store round trips at
// BatchSize. Already-cached entries cost nothing.
func (l *Lookup) LookupBatch(ctx context.Context, codepoints []uint32) (map[uint32]Info, error) {
	out := make(map[uint32]Info, len(codepoints))

	l.mu.RLock()
	var missing []uint32
	for _, cp := range codepoints {
		if info, ok := l.cache[cp]; ok {
			out[cp] = info
		} else if !l.preloaded {
			missing = append(missing, cp)
		}
	}
	preloaded := l.preloaded
	l.mu.RUnlock()

	if preloaded || len(missing) == 0 {
		return out, nil
	}

	missing = dedupCodepoints(missing)
	for start := 0; start < len(missing); start += BatchSize {
		end := start + BatchSize
		if end > len(missing) {
			end = len(missing)
		}
		infos, err := l.src.AtomsByCodepoints(ctx, missing[start:end])
		if err != nil {
			return nil, apperr.Wrap(apperr.KindStore, "atom batch lookup", err)
		}
		l.mu.Lock()
		for _, info := range infos {
			l.cache[info.Codepoint] = info
			out[info.Codepoint] = info
		}
		l.mu.Unlock()
	}
	return out, nil
}

func dedupCodepoints(cps []uint32) []uint32 {
	seen := make(map[uint32]struct{}, len(cps))
	out := cps[:0]
	for _, cp := range cps {
		if _, ok := seen[cp]; ok {
			continue
		}
		seen[cp] = struct{}{}
		out = append(out, cp)
	}
	return out
}
