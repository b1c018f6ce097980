package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hartonomous/substrate/internal/apperr"
	"github.com/hartonomous/substrate/internal/atoms"
	"github.com/hartonomous/substrate/internal/bulkload"
	"github.com/hartonomous/substrate/internal/config"
	"github.com/hartonomous/substrate/internal/ingest"
	"github.com/hartonomous/substrate/internal/logger"
	"github.com/hartonomous/substrate/internal/seeder"
	"github.com/hartonomous/substrate/internal/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "substrate: %v\n", err)
		os.Exit(apperr.ExitCode(err))
	}
}

func run() error {
	manager := config.NewManager()
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("resolve working directory: %w", err)
	}
	if err := manager.Load(config.UserConfigDir(), cwd); err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg := manager.Get()

	var storeURL, logLevel string

	root := &cobra.Command{
		Use:           "substrate",
		Short:         "substrate — content-addressed knowledge substrate",
		Long:          "Seeds the Unicode atom layer and ingests text into the three-layer geometric graph.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if storeURL != "" {
				cfg.StoreURL = storeURL
			}
			if logLevel != "" {
				cfg.LogLevel = logLevel
			}
			return logger.Init(cfg.LogLevel, cfg.LogFile)
		},
	}
	root.PersistentFlags().StringVar(&storeURL, "store", "", "store URL (overrides config)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")

	root.AddCommand(seedCmd(cfg), ingestCmd(cfg), lookupCmd(cfg), statsCmd(cfg))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return root.ExecuteContext(ctx)
}

func openStore(ctx context.Context, cfg *config.Config) (*store.Store, error) {
	return store.Open(ctx, cfg.StoreURL)
}

func bulkOptions(cfg *config.Config) (bulkload.Options, error) {
	mode, err := bulkload.ParseMode(cfg.BulkMode)
	if err != nil {
		return bulkload.Options{}, err
	}
	return bulkload.Options{
		Mode:           mode,
		FlushRows:      cfg.BulkFlushRows,
		UseDedup:       true,
		UseStaging:     *cfg.BulkUseStaging,
		ConflictClause: cfg.ConflictClause,
	}, nil
}

func seedCmd(cfg *config.Config) *cobra.Command {
	var manifest string
	var spatialIndex bool

	cmd := &cobra.Command{
		Use:   "seed-unicode",
		Short: "seed the atom layer from UCD data (one-time, idempotent)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.EnsureSchema(ctx, spatialIndex); err != nil {
				return err
			}

			mode, err := bulkload.ParseMode(cfg.BulkMode)
			if err != nil {
				return err
			}

			tx, err := st.Begin(ctx)
			if err != nil {
				return err
			}
			defer tx.Rollback(ctx)

			stats, err := seeder.New(seeder.Options{
				UcdDir:       cfg.UcdDataDir,
				Mode:         mode,
				FlushRows:    cfg.BulkFlushRows,
				ManifestPath: manifest,
			}).Seed(ctx, tx)
			if err != nil {
				return err
			}
			if err := tx.Commit(ctx); err != nil {
				return err
			}

			fmt.Printf("assigned:    %d\n", stats.Assigned)
			fmt.Printf("unassigned:  %d\n", stats.Unassigned)
			fmt.Printf("atom rows:   %d\n", stats.AtomRows)
			fmt.Printf("golden seed: %s\n", stats.GoldenDigest)
			return nil
		},
	}
	cmd.Flags().StringVar(&manifest, "manifest", "", "write a YAML seed manifest to this path")
	cmd.Flags().BoolVar(&spatialIndex, "spatial-index", false, "declare the GiST spatial index (requires the spatial extension)")
	return cmd
}

func ingestCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest-text <file|->",
		Short: "ingest one text blob and print statistics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			raw, err := readInput(args[0])
			if err != nil {
				return err
			}

			st, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			lookup := atoms.New(st)
			if *cfg.AtomPreload {
				if err := lookup.PreloadAll(ctx); err != nil {
					return err
				}
			}

			bulk, err := bulkOptions(cfg)
			if err != nil {
				return err
			}
			ing := ingest.New(lookup, ingest.Options{
				MinFrequency:       cfg.NgramMinFrequency,
				TrackPositions:     *cfg.NgramTrackPosition,
				CooccurrenceWindow: cfg.CooccurrenceWindow,
				RatingInitial:      cfg.RatingInitial,
				RatingKFactor:      cfg.RatingKFactor,
				Language:           cfg.Language,
				Bulk:               bulk,
			})

			tx, err := st.Begin(ctx)
			if err != nil {
				return err
			}
			defer tx.Rollback(ctx)

			stats, err := ing.Ingest(ctx, tx, raw)
			if err != nil {
				return err
			}
			if err := tx.Commit(ctx); err != nil {
				return err
			}

			// Statistics print only after the commit.
			fmt.Printf("atoms new:         %d\n", stats.AtomsNew)
			fmt.Printf("compositions new:  %d\n", stats.CompositionsNew)
			fmt.Printf("relations new:     %d\n", stats.RelationsNew)
			fmt.Printf("original bytes:    %d\n", stats.OriginalBytes)
			fmt.Printf("stored bytes:      %d\n", stats.StoredBytes)
			fmt.Printf("compression ratio: %.3f\n", stats.CompressionRatio)
			if stats.BytesSkipped > 0 {
				fmt.Printf("bytes skipped:     %d\n", stats.BytesSkipped)
			}
			return nil
		},
	}
	return cmd
}

func readInput(arg string) ([]byte, error) {
	if arg == "-" {
		raw, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return raw, nil
	}
	raw, err := os.ReadFile(arg)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindMissingResource, "read input", err)
	}
	return raw, nil
}

func lookupCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "lookup <codepoint>",
		Short: "resolve one codepoint to its seeded atom",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cp, err := parseCodepointArg(args[0])
			if err != nil {
				return err
			}

			st, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			info, ok, err := atoms.New(st).Lookup(ctx, cp)
			if err != nil {
				return err
			}
			if !ok {
				return apperr.Newf(apperr.KindMissingResource, "atom U+%04X not seeded", cp)
			}

			fmt.Printf("codepoint:   U+%04X\n", info.Codepoint)
			fmt.Printf("atom:        %s\n", info.AtomID)
			fmt.Printf("physicality: %s\n", info.PhysicalityID)
			fmt.Printf("position:    (%.6f, %.6f, %.6f, %.6f)\n",
				info.Position[0], info.Position[1], info.Position[2], info.Position[3])
			fmt.Printf("hilbert:     %s\n", info.Hilbert)
			return nil
		},
	}
}

// parseCodepointArg accepts "U+0041", "0x41", and decimal forms.
func parseCodepointArg(s string) (uint32, error) {
	orig := s
	base := 10
	switch {
	case strings.HasPrefix(s, "U+"), strings.HasPrefix(s, "u+"):
		s, base = s[2:], 16
	case strings.HasPrefix(s, "0x"), strings.HasPrefix(s, "0X"):
		s, base = s[2:], 16
	}
	v, err := strconv.ParseUint(s, base, 32)
	if err != nil || v > 0x10FFFF {
		return 0, apperr.Newf(apperr.KindInvalidInput, "codepoint %q", orig)
	}
	return uint32(v), nil
}

func statsCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "print row counts per substrate table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			for _, table := range store.Tables() {
				n, err := st.CountRows(ctx, table)
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "%s\t%d\n", table, n)
			}
			return w.Flush()
		},
	}
}
