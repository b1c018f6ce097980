// Package record holds the persisted value types of the substrate and the
// builders that enforce their invariants before anything reaches the bulk
// loader. A record knows its table and its COPY column order; the loader
// frames the values without understanding them.
package record

import (
	"encoding/binary"
	"math"

	"github.com/hartonomous/substrate/internal/geometry"
	"github.com/hartonomous/substrate/internal/hash"
	"github.com/hartonomous/substrate/internal/hilbert"
)

// Row is anything the bulk loader can frame. Values returns one entry per
// column; allowed dynamic types are []byte, int64, float64, string, bool,
// and nil for SQL NULL.
type Row interface {
	Table() string
	Columns() []string
	Values() []any
}

// Physicality is the geometric facet of an entity: an S³ centroid, its
// 128-bit Hilbert key, and an optional trajectory.
type Physicality struct {
	ID         hash.Digest
	Centroid   geometry.Point
	Hilbert    hilbert.Key
	Trajectory []geometry.Point
}

func (Physicality) Table() string { return "physicality" }

func (Physicality) Columns() []string {
	return []string{"id", "centroid_x", "centroid_y", "centroid_z", "centroid_m", "hilbert_hi", "hilbert_lo", "trajectory"}
}

func (p Physicality) Values() []any {
	var traj any
	if len(p.Trajectory) > 0 {
		traj = encodeTrajectory(p.Trajectory)
	}
	return []any{
		p.ID.Bytes(),
		p.Centroid[0], p.Centroid[1], p.Centroid[2], p.Centroid[3],
		int64(p.Hilbert.Hi), int64(p.Hilbert.Lo),
		traj,
	}
}

// CentroidBytes is the canonical byte form of an S³ point: the four IEEE-754
// ordinates big-endian in x, y, z, w order. Physicality ids are digests of
// this encoding.
func CentroidBytes(p geometry.Point) []byte {
	out := make([]byte, 32)
	for i, v := range p {
		binary.BigEndian.PutUint64(out[i*8:], math.Float64bits(v))
	}
	return out
}

func encodeTrajectory(ps []geometry.Point) []byte {
	out := make([]byte, 0, len(ps)*32)
	for _, p := range ps {
		out = append(out, CentroidBytes(p)...)
	}
	return out
}

// Atom is the canonical record for one Unicode codepoint.
type Atom struct {
	ID            hash.Digest
	Codepoint     uint32
	PhysicalityID hash.Digest
}

func (Atom) Table() string { return "atom" }

func (Atom) Columns() []string { return []string{"id", "codepoint", "physicality_id"} }

func (a Atom) Values() []any {
	return []any{a.ID.Bytes(), int64(a.Codepoint), a.PhysicalityID.Bytes()}
}

// Composition is a content-addressed sequence of atoms.
type Composition struct {
	ID            hash.Digest
	PhysicalityID hash.Digest
}

func (Composition) Table() string { return "composition" }

func (Composition) Columns() []string { return []string{"id", "physicality_id"} }

func (c Composition) Values() []any {
	return []any{c.ID.Bytes(), c.PhysicalityID.Bytes()}
}

// CompositionSequence is one ordinal slot of a composition.
type CompositionSequence struct {
	ID            hash.Digest
	CompositionID hash.Digest
	AtomID        hash.Digest
	Ordinal       int64
	Occurrences   int64
}

func (CompositionSequence) Table() string { return "composition_sequence" }

func (CompositionSequence) Columns() []string {
	return []string{"id", "composition_id", "atom_id", "ordinal", "occurrences"}
}

func (s CompositionSequence) Values() []any {
	return []any{s.ID.Bytes(), s.CompositionID.Bytes(), s.AtomID.Bytes(), s.Ordinal, s.Occurrences}
}

// Relation is a content-addressed co-occurrence of compositions.
type Relation struct {
	ID            hash.Digest
	PhysicalityID hash.Digest
}

func (Relation) Table() string { return "relation" }

func (Relation) Columns() []string { return []string{"id", "physicality_id"} }

func (r Relation) Values() []any {
	return []any{r.ID.Bytes(), r.PhysicalityID.Bytes()}
}

// RelationSequence is one ordinal slot of a relation.
type RelationSequence struct {
	ID            hash.Digest
	RelationID    hash.Digest
	CompositionID hash.Digest
	Ordinal       int64
	Occurrences   int64
}

func (RelationSequence) Table() string { return "relation_sequence" }

func (RelationSequence) Columns() []string {
	return []string{"id", "relation_id", "composition_id", "ordinal", "occurrences"}
}

func (s RelationSequence) Values() []any {
	return []any{s.ID.Bytes(), s.RelationID.Bytes(), s.CompositionID.Bytes(), s.Ordinal, s.Occurrences}
}

// RelationRating carries the ELO-style running rating of a relation. One row
// per relation; a batch row carries its observation count and mean vote, and
// merges additively on observations and as a weighted mean on rating value.
type RelationRating struct {
	RelationID   hash.Digest
	Observations int64
	RatingValue  float64
	KFactor      float64
}

func (RelationRating) Table() string { return "relation_rating" }

func (RelationRating) Columns() []string {
	return []string{"relation_id", "observations", "rating_value", "k_factor"}
}

func (r RelationRating) Values() []any {
	return []any{r.RelationID.Bytes(), r.Observations, r.RatingValue, r.KFactor}
}

// RelationEvidence pins a relation's mean rating vote within one blob to the
// content that produced it.
type RelationEvidence struct {
	ID             hash.Digest
	ContentID      hash.Digest
	RelationID     hash.Digest
	IsValid        bool
	SourceRating   float64
	SignalStrength float64
}

func (RelationEvidence) Table() string { return "relation_evidence" }

func (RelationEvidence) Columns() []string {
	return []string{"id", "content_id", "relation_id", "is_valid", "source_rating", "signal_strength"}
}

func (e RelationEvidence) Values() []any {
	return []any{e.ID.Bytes(), e.ContentID.Bytes(), e.RelationID.Bytes(), e.IsValid, e.SourceRating, e.SignalStrength}
}

// Content describes one ingested blob, deduplicated on content hash.
type Content struct {
	ID          hash.Digest
	ContentHash hash.Digest
	ContentType string
	MimeType    string
	Size        int64
	Language    string
}

func (Content) Table() string { return "content" }

func (Content) Columns() []string {
	return []string{"id", "content_hash", "content_type", "mime_type", "size", "language"}
}

func (c Content) Values() []any {
	return []any{c.ID.Bytes(), c.ContentHash.Bytes(), c.ContentType, c.MimeType, c.Size, c.Language}
}
