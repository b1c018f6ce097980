// Package store is the pgx-backed client for the substrate's relational
// store: pool lifecycle, schema bootstrap, transactional COPY transport for
// the bulk loader, and the handful of reads the CLI and atom cache need.
package store

import (
	"bytes"
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hartonomous/substrate/internal/apperr"
	"github.com/hartonomous/substrate/internal/atoms"
	"github.com/hartonomous/substrate/internal/geometry"
	"github.com/hartonomous/substrate/internal/hash"
	"github.com/hartonomous/substrate/internal/hilbert"
	"github.com/hartonomous/substrate/internal/logger"
)

type Store struct {
	pool *pgxpool.Pool
}

// Open connects a pool to the store URL and verifies the connection.
func Open(ctx context.Context, url string) (*Store, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStore, "open pool", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, apperr.Wrap(apperr.KindStore, "ping store", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

// EnsureSchema bootstraps the substrate tables. withSpatialIndex adds the
// GiST declaration, which requires the spatial extension to be installed.
func (s *Store) EnsureSchema(ctx context.Context, withSpatialIndex bool) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return apperr.Wrap(apperr.KindStore, "ensure schema", err)
	}
	if withSpatialIndex {
		if _, err := s.pool.Exec(ctx, spatialIndexSQL); err != nil {
			return apperr.Wrap(apperr.KindStore, "ensure spatial index", err)
		}
	}
	logger.Debug("schema ensured", "spatial_index", withSpatialIndex)
	return nil
}

// Tx wraps one store transaction. It is the bulk loader's Sink: every copy
// and merge of an ingestion rides the same transaction, so a failure leaves
// no partial state.
type Tx struct {
	tx pgx.Tx
}

// Begin opens a transaction.
func (s *Store) Begin(ctx context.Context) (*Tx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStore, "begin", err)
	}
	return &Tx{tx: tx}, nil
}

// Copy streams one framed COPY payload. The framing already matches the
// options string, so the raw protocol entry point is used rather than pgx's
// row-oriented CopyFrom.
func (t *Tx) Copy(ctx context.Context, table string, columns []string, options string, data *bytes.Buffer) (int64, error) {
	sql := fmt.Sprintf("COPY %s (%s) FROM STDIN %s", table, joinColumns(columns), options)
	tag, err := t.tx.Conn().PgConn().CopyFrom(ctx, data, sql)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Exec runs one statement inside the transaction and reports rows affected.
func (t *Tx) Exec(ctx context.Context, sql string) (int64, error) {
	tag, err := t.tx.Exec(ctx, sql)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (t *Tx) Commit(ctx context.Context) error {
	if err := t.tx.Commit(ctx); err != nil {
		return apperr.Wrap(apperr.KindStore, "commit", err)
	}
	return nil
}

// Rollback abandons the transaction; rolling back after a commit is a no-op.
func (t *Tx) Rollback(ctx context.Context) {
	if err := t.tx.Rollback(ctx); err != nil && err != pgx.ErrTxClosed {
		logger.Warn("rollback failed", "error", err)
	}
}

func joinColumns(columns []string) string {
	out := ""
	for i, c := range columns {
		if i > 0 {
			out += ", "
		}
		out += c
	}
	return out
}

// CountRows returns the row count of one substrate table.
func (s *Store) CountRows(ctx context.Context, table string) (int64, error) {
	if !knownTables[table] {
		return 0, apperr.Newf(apperr.KindInvalidInput, "unknown table %q", table)
	}
	var n int64
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
		return 0, apperr.Wrap(apperr.KindStore, "count "+table, err)
	}
	return n, nil
}

// Tables lists the substrate tables in load order.
func Tables() []string {
	return []string{
		"physicality", "atom", "content", "composition", "composition_sequence",
		"relation", "relation_sequence", "relation_rating", "relation_evidence",
	}
}

var knownTables = func() map[string]bool {
	m := make(map[string]bool)
	for _, t := range Tables() {
		m[t] = true
	}
	return m
}()

const atomSelect = `SELECT a.id, a.codepoint, a.physicality_id,
  p.centroid_x, p.centroid_y, p.centroid_z, p.centroid_m, p.hilbert_hi, p.hilbert_lo
FROM atom a JOIN physicality p ON p.id = a.physicality_id`

// ScanAtoms streams every seeded atom with its physicality.
func (s *Store) ScanAtoms(ctx context.Context, fn func(atoms.Info) error) error {
	rows, err := s.pool.Query(ctx, atomSelect)
	if err != nil {
		return apperr.Wrap(apperr.KindStore, "scan atoms", err)
	}
	defer rows.Close()
	for rows.Next() {
		info, err := scanAtomRow(rows)
		if err != nil {
			return err
		}
		if err := fn(info); err != nil {
			return err
		}
	}
	return apperr.Wrap(apperr.KindStore, "scan atoms", rows.Err())
}

// AtomsByCodepoints fetches one batch of codepoints.
func (s *Store) AtomsByCodepoints(ctx context.Context, codepoints []uint32) ([]atoms.Info, error) {
	cps := make([]int64, len(codepoints))
	for i, cp := range codepoints {
		cps[i] = int64(cp)
	}
	rows, err := s.pool.Query(ctx, atomSelect+" WHERE a.codepoint = ANY($1)", cps)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStore, "atom batch", err)
	}
	defer rows.Close()
	var out []atoms.Info
	for rows.Next() {
		info, err := scanAtomRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, info)
	}
	return out, apperr.Wrap(apperr.KindStore, "atom batch", rows.Err())
}

func scanAtomRow(rows pgx.Rows) (atoms.Info, error) {
	var (
		idRaw, physRaw []byte
		codepoint      int64
		x, y, z, m     float64
		hi, lo         int64
	)
	if err := rows.Scan(&idRaw, &codepoint, &physRaw, &x, &y, &z, &m, &hi, &lo); err != nil {
		return atoms.Info{}, apperr.Wrap(apperr.KindStore, "scan atom row", err)
	}
	id, err := hash.FromBytes(idRaw)
	if err != nil {
		return atoms.Info{}, err
	}
	phys, err := hash.FromBytes(physRaw)
	if err != nil {
		return atoms.Info{}, err
	}
	return atoms.Info{
		Codepoint:     uint32(codepoint),
		AtomID:        id,
		PhysicalityID: phys,
		Position:      geometry.Point{x, y, z, m},
		Hilbert:       hilbert.Key{Hi: uint64(hi), Lo: uint64(lo)},
	}, nil
}

// CompositionRow is the read view of one composition.
type CompositionRow struct {
	ID            hash.Digest
	PhysicalityID hash.Digest
	Centroid      geometry.Point
	Hilbert       hilbert.Key
}

// FindComposition fetches one composition by content address; nil when the
// id was never ingested.
func (s *Store) FindComposition(ctx context.Context, id hash.Digest) (*CompositionRow, error) {
	const q = `SELECT c.id, c.physicality_id,
  p.centroid_x, p.centroid_y, p.centroid_z, p.centroid_m, p.hilbert_hi, p.hilbert_lo
FROM composition c JOIN physicality p ON p.id = c.physicality_id WHERE c.id = $1`
	var (
		idRaw, physRaw []byte
		x, y, z, m     float64
		hi, lo         int64
	)
	err := s.pool.QueryRow(ctx, q, id.Bytes()).Scan(&idRaw, &physRaw, &x, &y, &z, &m, &hi, &lo)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStore, "find composition", err)
	}
	cid, err := hash.FromBytes(idRaw)
	if err != nil {
		return nil, err
	}
	pid, err := hash.FromBytes(physRaw)
	if err != nil {
		return nil, err
	}
	return &CompositionRow{
		ID:            cid,
		PhysicalityID: pid,
		Centroid:      geometry.Point{x, y, z, m},
		Hilbert:       hilbert.Key{Hi: uint64(hi), Lo: uint64(lo)},
	}, nil
}

// RelationRatingRow is the read view of one rating.
type RelationRatingRow struct {
	RelationID   hash.Digest
	Observations int64
	RatingValue  float64
	KFactor      float64
}

// FindRelationRating fetches the rating of one relation; nil when unseen.
func (s *Store) FindRelationRating(ctx context.Context, relationID hash.Digest) (*RelationRatingRow, error) {
	const q = `SELECT relation_id, observations, rating_value, k_factor FROM relation_rating WHERE relation_id = $1`
	var (
		idRaw        []byte
		observations int64
		value, k     float64
	)
	err := s.pool.QueryRow(ctx, q, relationID.Bytes()).Scan(&idRaw, &observations, &value, &k)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStore, "find relation rating", err)
	}
	id, err := hash.FromBytes(idRaw)
	if err != nil {
		return nil, err
	}
	return &RelationRatingRow{RelationID: id, Observations: observations, RatingValue: value, KFactor: k}, nil
}

// HilbertRange returns composition ids whose physicality key falls inside
// [from, to], the coarse spatial pre-filter when no GiST index is present.
func (s *Store) HilbertRange(ctx context.Context, from, to hilbert.Key, limit int) ([]hash.Digest, error) {
	const q = `SELECT c.id FROM composition c JOIN physicality p ON p.id = c.physicality_id
WHERE (p.hilbert_hi, p.hilbert_lo) >= ($1, $2) AND (p.hilbert_hi, p.hilbert_lo) <= ($3, $4)
ORDER BY p.hilbert_hi, p.hilbert_lo LIMIT $5`
	rows, err := s.pool.Query(ctx, q, int64(from.Hi), int64(from.Lo), int64(to.Hi), int64(to.Lo), limit)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStore, "hilbert range", err)
	}
	defer rows.Close()
	var out []hash.Digest
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, apperr.Wrap(apperr.KindStore, "hilbert range scan", err)
		}
		d, err := hash.FromBytes(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, apperr.Wrap(apperr.KindStore, "hilbert range", rows.Err())
}
