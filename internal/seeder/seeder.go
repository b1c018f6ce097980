// Package seeder performs the one-time deterministic seeding of the atom
// layer: parse the UCD, build the semantic adjacency graph, linearize it,
// project the order onto S³, and bulk-load a dense table over the whole
// 21-bit codespace. Re-running against a seeded store inserts nothing.
package seeder

import (
	"context"
	"os"
	"runtime"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/hartonomous/substrate/internal/apperr"
	"github.com/hartonomous/substrate/internal/bulkload"
	"github.com/hartonomous/substrate/internal/geometry"
	"github.com/hartonomous/substrate/internal/hash"
	"github.com/hartonomous/substrate/internal/logger"
	"github.com/hartonomous/substrate/internal/record"
	"github.com/hartonomous/substrate/internal/ucd"
)

// Options configure one seeding run.
type Options struct {
	UcdDir    string
	Mode      bulkload.Mode
	FlushRows int
	// Workers bounds the projection parallelism; 0 means all cores.
	Workers int
	// ManifestPath, when set, receives a YAML summary of the run.
	ManifestPath string
}

// Stats summarize a completed run.
type Stats struct {
	Assigned     int    `yaml:"assigned"`
	Unassigned   int    `yaml:"unassigned"`
	AtomRows     int    `yaml:"atom_rows"`
	Physicality  int    `yaml:"physicality_rows"`
	GraphEdges   int    `yaml:"graph_edges"`
	GoldenDigest string `yaml:"golden_digest"`
}

type Seeder struct {
	opts Options
}

func New(opts Options) *Seeder {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	return &Seeder{opts: opts}
}

// Seed runs the full pipeline against one store sink. The sink is expected
// to ride a transaction the caller commits.
func (s *Seeder) Seed(ctx context.Context, sink bulkload.Sink) (*Stats, error) {
	rep, err := ucd.NewParser(s.opts.UcdDir).Parse()
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, apperr.Wrap(apperr.KindCancelled, "after ucd parse", err)
	}

	graph := BuildGraph(rep)
	logger.Info("semantic graph built", "codepoints", len(rep.Assigned), "edges", graph.EdgeCount())

	sequence := NewSequencer(rep, graph).Linearize()
	if err := ctx.Err(); err != nil {
		return nil, apperr.Wrap(apperr.KindCancelled, "after linearization", err)
	}
	golden := GoldenDigest(sequence, 1024)
	logger.Info("linearization locked", "golden", golden.Hex())

	points, err := s.project(ctx, len(sequence))
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		Assigned:     len(sequence),
		Unassigned:   ucd.CodespaceSize - len(sequence),
		GraphEdges:   graph.EdgeCount(),
		GoldenDigest: golden.Hex(),
	}
	if err := s.load(ctx, sink, sequence, points, stats); err != nil {
		return nil, err
	}

	if s.opts.ManifestPath != "" {
		if err := writeManifest(s.opts.ManifestPath, stats); err != nil {
			logger.Warn("seed manifest not written", "path", s.opts.ManifestPath, "error", err)
		}
	}
	return stats, nil
}

// project computes the Super-Fibonacci point for every sequence index,
// chunked across workers writing disjoint slices.
func (s *Seeder) project(ctx context.Context, n int) ([]geometry.Point, error) {
	points := make([]geometry.Point, n)
	if n == 0 {
		return points, nil
	}

	g, ctx := errgroup.WithContext(ctx)
	chunk := (n + s.opts.Workers - 1) / s.opts.Workers
	for start := 0; start < n; start += chunk {
		end := start + chunk
		if end > n {
			end = n
		}
		start, end := start, end
		g.Go(func() error {
			for i := start; i < end; i++ {
				points[i] = geometry.SuperFibonacci(i, n)
			}
			return ctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, apperr.Wrap(apperr.KindCancelled, "projection interrupted", err)
	}
	return points, nil
}

// load streams the Physicality table, then the dense Atom table. Staging
// merges with ON CONFLICT DO NOTHING make re-seeding a no-op.
func (s *Seeder) load(ctx context.Context, sink bulkload.Sink, sequence []rune, points []geometry.Point, stats *Stats) error {
	factory := bulkload.NewFactory(sink, bulkload.Options{
		Mode:           s.opts.Mode,
		FlushRows:      s.opts.FlushRows,
		UseDedup:       true,
		UseStaging:     true,
		ConflictClause: bulkload.DefaultConflictClause,
	})

	physByCp := make(map[rune]hash.Digest, len(sequence))

	physLoader := factory.Loader(record.Physicality{}.Table(), record.Physicality{}.Columns())
	for i, cp := range sequence {
		phys, err := record.NewPhysicality(points[i], nil)
		if err != nil {
			return err
		}
		physByCp[cp] = phys.ID
		if err := physLoader.Add(ctx, phys); err != nil {
			return err
		}
	}
	// Unassigned codepoints share one degenerate physicality on the
	// reserved axis point.
	degenerate, err := record.NewPhysicality(geometry.AxisX, nil)
	if err != nil {
		return err
	}
	if err := physLoader.Add(ctx, degenerate); err != nil {
		return err
	}
	if err := physLoader.Close(ctx); err != nil {
		return err
	}
	stats.Physicality = int(physLoader.RowsLoaded())

	atomLoader := factory.Loader(record.Atom{}.Table(), record.Atom{}.Columns())
	for cp := rune(0); cp <= ucd.MaxCodepoint; cp++ {
		physID, assigned := physByCp[cp]
		if !assigned {
			physID = degenerate.ID
		}
		atom, err := record.NewAtom(uint32(cp), physID)
		if err != nil {
			return err
		}
		if err := atomLoader.Add(ctx, atom); err != nil {
			return err
		}
	}
	if err := atomLoader.Close(ctx); err != nil {
		return err
	}
	stats.AtomRows = int(atomLoader.RowsLoaded())

	logger.Info("seed streams loaded", "physicality", stats.Physicality, "atoms", stats.AtomRows)
	return nil
}

func writeManifest(path string, stats *Stats) error {
	data, err := yaml.Marshal(stats)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
