package atoms

import (
	"context"
	"testing"

	"github.com/hartonomous/substrate/internal/geometry"
	"github.com/hartonomous/substrate/internal/hash"
)

type fakeSource struct {
	atoms   map[uint32]Info
	queries [][]uint32
	scans   int
}

func newFakeSource(cps ...uint32) *fakeSource {
	src := &fakeSource{atoms: make(map[uint32]Info)}
	for i, cp := range cps {
		id, _ := hash.SumCodepoint(cp)
		src.atoms[cp] = Info{
			Codepoint: cp,
			AtomID:    id,
			Position:  geometry.SuperFibonacci(i, len(cps)),
		}
	}
	return src
}

func (s *fakeSource) AtomsByCodepoints(_ context.Context, cps []uint32) ([]Info, error) {
	s.queries = append(s.queries, append([]uint32(nil), cps...))
	var out []Info
	for _, cp := range cps {
		if info, ok := s.atoms[cp]; ok {
			out = append(out, info)
		}
	}
	return out, nil
}

func (s *fakeSource) ScanAtoms(_ context.Context, fn func(Info) error) error {
	s.scans++
	for _, info := range s.atoms {
		if err := fn(info); err != nil {
			return err
		}
	}
	return nil
}

func TestOnDemandLookup(t *testing.T) {
	src := newFakeSource('a', 'b', 'c')
	l := New(src)
	ctx := context.Background()

	info, ok, err := l.Lookup(ctx, 'a')
	if err != nil || !ok {
		t.Fatalf("lookup a: ok=%v err=%v", ok, err)
	}
	if info.Codepoint != 'a' {
		t.Fatalf("codepoint = %d, want 'a'", info.Codepoint)
	}

	// Second hit comes from cache, not the store.
	if _, _, err := l.Lookup(ctx, 'a'); err != nil {
		t.Fatal(err)
	}
	if len(src.queries) != 1 {
		t.Fatalf("store queries = %d, want 1 (cached second hit)", len(src.queries))
	}

	_, ok, _ = l.Lookup(ctx, 0x10FF00)
	if ok {
		t.Fatal("unseeded codepoint should not resolve")
	}
}

func TestLookupBatchChunksAndDedups(t *testing.T) {
	cps := make([]uint32, 0, BatchSize+100)
	for i := 0; i < BatchSize+50; i++ {
		cps = append(cps, uint32(i))
	}
	src := newFakeSource(cps...)
	l := New(src)

	// Ask for everything twice over to exercise dedup.
	query := append(append([]uint32(nil), cps...), cps[:50]...)
	got, err := l.LookupBatch(context.Background(), query)
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	if len(got) != len(cps) {
		t.Fatalf("resolved = %d, want %d", len(got), len(cps))
	}
	if len(src.queries) != 2 {
		t.Fatalf("store queries = %d, want 2 chunks of at most %d", len(src.queries), BatchSize)
	}
	for _, q := range src.queries {
		if len(q) > BatchSize {
			t.Fatalf("chunk size %d exceeds limit %d", len(q), BatchSize)
		}
	}
}

func TestPreload(t *testing.T) {
	src := newFakeSource('x', 'y')
	l := New(src)
	ctx := context.Background()

	if l.IsPreloaded() {
		t.Fatal("fresh lookup should not report preloaded")
	}
	if err := l.PreloadAll(ctx); err != nil {
		t.Fatalf("preload: %v", err)
	}
	if !l.IsPreloaded() {
		t.Fatal("preload flag should be set")
	}

	if _, ok, _ := l.Lookup(ctx, 'x'); !ok {
		t.Fatal("preloaded atom should resolve")
	}
	if _, ok, _ := l.Lookup(ctx, 'z'); ok {
		t.Fatal("missing atom should not resolve after preload")
	}
	if len(src.queries) != 0 {
		t.Fatal("preloaded lookups must not query the store")
	}

	// Idempotent preload.
	if err := l.PreloadAll(ctx); err != nil {
		t.Fatal(err)
	}
	if src.scans != 1 {
		t.Fatalf("scans = %d, want 1", src.scans)
	}
}
