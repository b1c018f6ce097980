// Package rating pre-aggregates relation rating updates inside a batch so
// each relation costs one upsert row no matter how often it was observed.
// The engine never reads persisted state; reconciliation with the stored
// rating happens entirely in the merge clause.
package rating

import (
	"sort"

	"github.com/hartonomous/substrate/internal/hash"
	"github.com/hartonomous/substrate/internal/record"
)

// Defaults for never-configured engines.
const (
	DefaultInitial = 1000.0
	DefaultKFactor = 32.0
)

// Engine accumulates observation evidence for one batch.
type Engine struct {
	initial float64
	kFactor float64
	acc     map[hash.Digest]*accum
	order   []hash.Digest
}

type accum struct {
	observations int64
	weightedSum  float64
}

// New builds an engine; zero arguments select the defaults.
func New(initial, kFactor float64) *Engine {
	if initial == 0 {
		initial = DefaultInitial
	}
	if kFactor == 0 {
		kFactor = DefaultKFactor
	}
	return &Engine{
		initial: initial,
		kFactor: kFactor,
		acc:     make(map[hash.Digest]*accum),
	}
}

// KFactor exposes the configured k.
func (e *Engine) KFactor() float64 { return e.kFactor }

// Initial exposes the configured starting rating.
func (e *Engine) Initial() float64 { return e.initial }

// Observe records one sighting of a relation with the given signal strength
// in [0,1] and returns the vote value. The ingester averages a relation's
// votes into the source_rating of that relation's single evidence row.
func (e *Engine) Observe(relationID hash.Digest, signalStrength float64) float64 {
	if signalStrength < 0 {
		signalStrength = 0
	}
	if signalStrength > 1 {
		signalStrength = 1
	}
	// A vote is the baseline rating moved by k in proportion to how far the
	// signal sits from indifference.
	vote := e.initial + e.kFactor*(signalStrength-0.5)

	a, ok := e.acc[relationID]
	if !ok {
		a = &accum{}
		e.acc[relationID] = a
		e.order = append(e.order, relationID)
	}
	a.observations++
	a.weightedSum += vote
	return vote
}

// Observations reports the accumulated count for a relation within this
// batch.
func (e *Engine) Observations(relationID hash.Digest) int64 {
	if a, ok := e.acc[relationID]; ok {
		return a.observations
	}
	return 0
}

// Len reports how many distinct relations the batch observed.
func (e *Engine) Len() int { return len(e.acc) }

// Flush drains the accumulator into one rating row per relation, ordered by
// relation id for deterministic output. Each row carries the batch mean vote
// and the batch observation count; the merge clause folds them into the
// persisted weighted mean.
func (e *Engine) Flush() []record.RelationRating {
	ids := e.order
	sort.Slice(ids, func(i, j int) bool { return ids[i].Less(ids[j]) })

	rows := make([]record.RelationRating, 0, len(ids))
	for _, id := range ids {
		a := e.acc[id]
		rows = append(rows, record.RelationRating{
			RelationID:   id,
			Observations: a.observations,
			RatingValue:  a.weightedSum / float64(a.observations),
			KFactor:      e.kFactor,
		})
	}
	e.acc = make(map[hash.Digest]*accum)
	e.order = nil
	return rows
}

// MergeExpression is the conflict clause that reconciles a batch row with
// the persisted rating: observations add, rating folds as a weighted mean.
const MergeExpression = `ON CONFLICT (relation_id) DO UPDATE SET ` +
	`rating_value = (relation_rating.rating_value * relation_rating.observations + EXCLUDED.rating_value * EXCLUDED.observations) / (relation_rating.observations + EXCLUDED.observations), ` +
	`observations = relation_rating.observations + EXCLUDED.observations`
