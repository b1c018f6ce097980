// Package bulkload streams record rows into the store through the COPY
// protocol with minimal round trips. A loader owns one table's stream;
// batches dedup in memory, optionally stage through an ephemeral table, and
// merge with a configurable conflict clause.
package bulkload

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/hartonomous/substrate/internal/apperr"
	"github.com/hartonomous/substrate/internal/logger"
	"github.com/hartonomous/substrate/internal/record"
)

// Sink is the store-side half of a copy. The production implementation
// wraps a pgx connection; tests substitute an in-memory sink.
type Sink interface {
	// Copy streams one complete framed COPY payload into table.
	Copy(ctx context.Context, table string, columns []string, options string, data *bytes.Buffer) (int64, error)
	// Exec runs a statement (staging DDL, merge, drop) and reports rows
	// affected, which the staging merge uses for insert accounting.
	Exec(ctx context.Context, sql string) (int64, error)
}

// DefaultFlushRows is the row threshold at which a buffer is sent.
const DefaultFlushRows = 65536

// DefaultConflictClause suppresses duplicate primary keys on merge.
const DefaultConflictClause = "ON CONFLICT (id) DO NOTHING"

// Options configure one loader instance.
type Options struct {
	Mode           Mode
	FlushRows      int
	UseDedup       bool
	UseStaging     bool
	ConflictClause string
	// MergeExpression overrides the conflict clause entirely (used by the
	// rating upsert, whose merge arithmetic is not a plain DO NOTHING).
	MergeExpression string
}

func (o *Options) normalize() {
	if o.FlushRows <= 0 {
		o.FlushRows = DefaultFlushRows
	}
	if o.ConflictClause == "" {
		o.ConflictClause = DefaultConflictClause
	}
}

// Factory creates loaders sharing one sink and one staging counter. Each
// factory starts its own counter, so staging table names are unique only
// among the loaders of one factory.
type Factory struct {
	sink    Sink
	counter *atomic.Int64
	opts    Options
}

// NewFactory builds a loader factory. The staging counter is owned here and
// shared by every loader the factory creates.
func NewFactory(sink Sink, opts Options) *Factory {
	opts.normalize()
	return &Factory{sink: sink, counter: &atomic.Int64{}, opts: opts}
}

// Loader returns a fresh loader for one table.
func (f *Factory) Loader(table string, columns []string) *Loader {
	return f.loader(table, columns, f.opts)
}

// LoaderWithMerge returns a loader whose staged merge uses the given
// expression instead of the plain conflict clause. Staging is forced:
// an upsert merge cannot ride a bare COPY.
func (f *Factory) LoaderWithMerge(table string, columns []string, mergeExpression string) *Loader {
	opts := f.opts
	opts.UseStaging = true
	opts.MergeExpression = mergeExpression
	return f.loader(table, columns, opts)
}

func (f *Factory) loader(table string, columns []string, opts Options) *Loader {
	return &Loader{
		sink:    f.sink,
		counter: f.counter,
		opts:    opts,
		table:   table,
		columns: columns,
		framer:  framerFor(opts.Mode),
		seen:    make(map[string]struct{}),
	}
}

type state int

const (
	stateIdle state = iota
	stateCopyInProgress
	stateFailed
	stateClosed
)

// Loader buffers rows for one table and ships them in COPY batches.
type Loader struct {
	sink    Sink
	counter *atomic.Int64
	opts    Options
	table   string
	columns []string
	framer  framer

	buf      bytes.Buffer
	buffered int
	seen     map[string]struct{}
	state    state
	loaded   int64
	merged   int64
	skipped  int64
	sent     int64
}

// Add frames one row into the buffer, flushing when the threshold is hit.
// Rows whose identifier was already seen by this loader are skipped when
// dedup is on.
func (l *Loader) Add(ctx context.Context, row record.Row) error {
	if row.Table() != l.table {
		return apperr.Newf(apperr.KindInvalidInput, "row for table %q offered to %q loader", row.Table(), l.table)
	}
	return l.AddValues(ctx, row.Values())
}

// AddValues frames raw column values; len must match the column list.
func (l *Loader) AddValues(ctx context.Context, values []any) error {
	switch l.state {
	case stateFailed:
		return apperr.Newf(apperr.KindStore, "loader for %q already failed", l.table)
	case stateClosed:
		return apperr.Newf(apperr.KindInvalidInput, "loader for %q is closed", l.table)
	}
	if len(values) != len(l.columns) {
		return apperr.Newf(apperr.KindInvalidInput, "%d values for %d columns of %q", len(values), len(l.columns), l.table)
	}

	if l.opts.UseDedup {
		key := dedupKey(values[0])
		if _, dup := l.seen[key]; dup {
			l.skipped++
			return nil
		}
		l.seen[key] = struct{}{}
	}

	if l.buffered == 0 {
		l.framer.header(&l.buf)
	}
	if err := l.framer.row(&l.buf, values); err != nil {
		l.state = stateFailed
		return err
	}
	l.buffered++

	if l.buffered >= l.opts.FlushRows {
		return l.Flush(ctx)
	}
	return nil
}

// dedupKey stringifies the identifier column. Identifiers are 16-byte
// digests in every substrate table, so the byte form is the canonical key.
func dedupKey(v any) string {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return fmt.Sprintf("%v", v)
}

// Flush sends the buffered rows plus trailer to the store. A loader with an
// empty buffer flushes to a no-op.
func (l *Loader) Flush(ctx context.Context) error {
	if l.state == stateFailed {
		return apperr.Newf(apperr.KindStore, "loader for %q already failed", l.table)
	}
	if l.buffered == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return apperr.Wrap(apperr.KindCancelled, "flush interrupted", err)
	}

	l.framer.trailer(&l.buf)
	l.state = stateCopyInProgress
	l.sent += int64(l.buf.Len())

	var err error
	if l.opts.UseStaging {
		err = l.flushStaged(ctx)
	} else {
		var copied int64
		copied, err = l.sink.Copy(ctx, l.table, l.columns, l.framer.copyOptions(), &l.buf)
		l.merged += copied
	}
	if err != nil {
		// Store errors are terminal for this copy; surface them verbatim.
		l.state = stateFailed
		return apperr.Wrap(apperr.KindStore, fmt.Sprintf("copy into %q", l.table), err)
	}

	l.loaded += int64(l.buffered)
	l.buffered = 0
	l.buf.Reset()
	l.state = stateIdle
	return nil
}

// flushStaged copies into an ephemeral per-batch table and merges into the
// real one under the configured conflict clause.
func (l *Loader) flushStaged(ctx context.Context) error {
	staging := fmt.Sprintf("tmp_%s_%d", l.table, l.counter.Add(1))

	create := fmt.Sprintf("CREATE UNLOGGED TABLE %s (LIKE %s INCLUDING DEFAULTS)", staging, l.table)
	if _, err := l.sink.Exec(ctx, create); err != nil {
		return fmt.Errorf("create staging: %w", err)
	}
	defer func() {
		if _, err := l.sink.Exec(context.WithoutCancel(ctx), "DROP TABLE IF EXISTS "+staging); err != nil {
			logger.Warn("drop staging table failed", "table", staging, "error", err)
		}
	}()

	if _, err := l.sink.Copy(ctx, staging, l.columns, l.framer.copyOptions(), &l.buf); err != nil {
		return err
	}

	cols := strings.Join(l.columns, ", ")
	merge := fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s %s",
		l.table, cols, cols, staging, l.mergeClause())
	inserted, err := l.sink.Exec(ctx, merge)
	if err != nil {
		return fmt.Errorf("merge staging: %w", err)
	}
	l.merged += inserted
	return nil
}

func (l *Loader) mergeClause() string {
	if l.opts.MergeExpression != "" {
		return l.opts.MergeExpression
	}
	return l.opts.ConflictClause
}

// Close flushes the remainder and seals the loader. A loader that already
// failed closes without touching the store again.
func (l *Loader) Close(ctx context.Context) error {
	if l.state == stateFailed || l.state == stateClosed {
		l.state = stateClosed
		return nil
	}
	err := l.Flush(ctx)
	l.state = stateClosed
	return err
}

// RowsLoaded reports rows successfully sent to the store.
func (l *Loader) RowsLoaded() int64 { return l.loaded }

// RowsMerged reports rows the store actually accepted: the staging-merge
// insert count when staging is on, otherwise the COPY row count.
func (l *Loader) RowsMerged() int64 { return l.merged }

// RowsSkipped reports rows suppressed by in-memory dedup.
func (l *Loader) RowsSkipped() int64 { return l.skipped }

// BytesSent reports framed bytes shipped to the store.
func (l *Loader) BytesSent() int64 { return l.sent }

// Table names the loader's target.
func (l *Loader) Table() string { return l.table }
