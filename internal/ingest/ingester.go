// Package ingest turns one text blob into substrate rows: decode, resolve
// atoms, extract n-grams, assemble compositions and co-occurrence relations,
// and route everything through the bulk loader inside one transaction.
package ingest

import (
	"context"
	"net/http"
	"sort"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hartonomous/substrate/internal/apperr"
	"github.com/hartonomous/substrate/internal/atoms"
	"github.com/hartonomous/substrate/internal/bulkload"
	"github.com/hartonomous/substrate/internal/geometry"
	"github.com/hartonomous/substrate/internal/hash"
	"github.com/hartonomous/substrate/internal/logger"
	"github.com/hartonomous/substrate/internal/ngram"
	"github.com/hartonomous/substrate/internal/rating"
	"github.com/hartonomous/substrate/internal/record"
)

// Options configure one ingester.
type Options struct {
	MinFrequency       int
	TrackPositions     bool
	CooccurrenceWindow int
	RatingInitial      float64
	RatingKFactor      float64
	Language           string
	Bulk               bulkload.Options
}

// DefaultOptions mirror the system configuration defaults.
func DefaultOptions() Options {
	return Options{
		MinFrequency:       2,
		TrackPositions:     true,
		CooccurrenceWindow: 16,
		RatingInitial:      rating.DefaultInitial,
		RatingKFactor:      rating.DefaultKFactor,
		Language:           "und",
		Bulk:               bulkload.Options{UseDedup: true, UseStaging: true},
	}
}

// Stats report one committed ingestion.
type Stats struct {
	// AtomsNew stays zero on a fully seeded store: atoms are immutable
	// after seeding and ingestion never writes them.
	AtomsNew         int64
	CompositionsNew  int64
	RelationsNew     int64
	OriginalBytes    int64
	StoredBytes      int64
	CompressionRatio float64
	BytesSkipped     int64
	RunID            string
}

// Ingester processes blobs one at a time. It is single-threaded per blob;
// run several ingesters for parallel blobs, each with its own loaders.
type Ingester struct {
	lookup *atoms.Lookup
	opts   Options
}

func New(lookup *atoms.Lookup, opts Options) *Ingester {
	if opts.CooccurrenceWindow <= 0 {
		opts.CooccurrenceWindow = 16
	}
	if opts.Language == "" {
		opts.Language = "und"
	}
	return &Ingester{lookup: lookup, opts: opts}
}

// Ingest runs the full pipeline for one blob against a sink that must ride
// a single store transaction; the caller commits on success and rolls back
// on any error so no partial state is ever visible.
func (ing *Ingester) Ingest(ctx context.Context, sink bulkload.Sink, raw []byte) (*Stats, error) {
	stats := &Stats{
		OriginalBytes: int64(len(raw)),
		RunID:         uuid.NewString(),
	}

	seq, skipped := decodeUTF8(raw)
	stats.BytesSkipped = skipped
	if skipped > 0 {
		logger.Warn("invalid utf-8 bytes skipped", "count", skipped, "run", stats.RunID)
	}

	resolved, err := ing.resolveAtoms(ctx, seq)
	if err != nil {
		return nil, err
	}

	result, err := ngram.New(ngram.Config{
		MinFrequency:   ing.opts.MinFrequency,
		TrackPositions: ing.opts.TrackPositions,
	}).Extract(ctx, seq)
	if err != nil {
		return nil, err
	}

	words := tokenize(seq)
	specs, stream := collectCompositions(words, result.Significant())

	factory := bulkload.NewFactory(sink, ing.opts.Bulk)
	loaders := newLoaderSet(factory)

	content := record.NewContent(raw, "text", http.DetectContentType(raw), ing.opts.Language)

	centroids, err := ing.emitCompositions(ctx, specs, resolved, loaders)
	if err != nil {
		return nil, err
	}

	if err := ing.emitRelations(ctx, stream, centroids, content.ID, loaders); err != nil {
		return nil, err
	}

	if err := loaders.content.Add(ctx, content); err != nil {
		return nil, err
	}

	if err := loaders.close(ctx); err != nil {
		return nil, err
	}

	stats.CompositionsNew = loaders.composition.RowsMerged()
	stats.RelationsNew = loaders.relation.RowsMerged()
	stats.StoredBytes = loaders.bytesSent()
	if stats.StoredBytes > 0 {
		stats.CompressionRatio = float64(stats.OriginalBytes) / float64(stats.StoredBytes)
	}

	logger.Info("blob ingested",
		"run", stats.RunID,
		"codepoints", len(seq),
		"compositions", len(specs),
		"compositions_new", stats.CompositionsNew,
		"relations_new", stats.RelationsNew)
	return stats, nil
}

// decodeUTF8 decodes raw into codepoints, skipping invalid bytes one at a
// time and counting them.
func decodeUTF8(raw []byte) ([]rune, int64) {
	seq := make([]rune, 0, len(raw))
	var skipped int64
	for i := 0; i < len(raw); {
		r, size := utf8.DecodeRune(raw[i:])
		if r == utf8.RuneError && size <= 1 {
			skipped++
			i++
			continue
		}
		seq = append(seq, r)
		i += size
	}
	return seq, skipped
}

// token is one word occurrence: a maximal run of letters, digits, and
// marks.
type token struct {
	cps []rune
	pos int
}

func tokenize(seq []rune) []token {
	var out []token
	start := -1
	flush := func(end int) {
		if start >= 0 {
			out = append(out, token{cps: seq[start:end], pos: start})
			start = -1
		}
	}
	for i, cp := range seq {
		if unicode.IsLetter(cp) || unicode.IsDigit(cp) || unicode.IsMark(cp) {
			if start < 0 {
				start = i
			}
			continue
		}
		flush(i)
	}
	flush(len(seq))
	return out
}

// compSpec is one distinct composition to emit.
type compSpec struct {
	id       hash.Digest
	cps      []rune
	firstPos int
}

// collectCompositions merges word tokens and significant n-grams into one
// deduplicated composition set, and returns the word-occurrence stream the
// relation window slides over.
func collectCompositions(words []token, grams []ngram.NGram) ([]compSpec, []streamEntry) {
	byID := make(map[hash.Digest]*compSpec)
	var order []hash.Digest

	addSpec := func(cps []rune, pos int) hash.Digest {
		ids := make([]hash.Digest, len(cps))
		for i, cp := range cps {
			d, _ := hash.SumCodepoint(uint32(cp))
			ids[i] = d
		}
		id := record.CompositionID(ids)
		if spec, ok := byID[id]; ok {
			if pos < spec.firstPos {
				spec.firstPos = pos
			}
			return id
		}
		byID[id] = &compSpec{id: id, cps: cps, firstPos: pos}
		order = append(order, id)
		return id
	}

	stream := make([]streamEntry, 0, len(words))
	for _, w := range words {
		id := addSpec(w.cps, w.pos)
		stream = append(stream, streamEntry{id: id, pos: w.pos})
	}
	for _, g := range grams {
		pos := 0
		if len(g.Positions) > 0 {
			pos = g.Positions[0]
		}
		addSpec(g.Codepoints, pos)
	}

	specs := make([]compSpec, 0, len(order))
	for _, id := range order {
		specs = append(specs, *byID[id])
	}
	sort.Slice(specs, func(i, j int) bool {
		if specs[i].firstPos != specs[j].firstPos {
			return specs[i].firstPos < specs[j].firstPos
		}
		return specs[i].id.Less(specs[j].id)
	})
	return specs, stream
}

// streamEntry is one position of the composition stream.
type streamEntry struct {
	id  hash.Digest
	pos int
}

// resolveAtoms fetches the atom record of every distinct codepoint. A
// missing atom means the store was never seeded for it, which is a hard
// error: positions must come from the seeded table, never from hashes.
func (ing *Ingester) resolveAtoms(ctx context.Context, seq []rune) (map[rune]atoms.Info, error) {
	distinct := make([]uint32, 0, 64)
	seen := make(map[rune]bool)
	for _, cp := range seq {
		if !seen[cp] {
			seen[cp] = true
			distinct = append(distinct, uint32(cp))
		}
	}
	batch, err := ing.lookup.LookupBatch(ctx, distinct)
	if err != nil {
		return nil, err
	}
	resolved := make(map[rune]atoms.Info, len(batch))
	for cp := range seen {
		info, ok := batch[uint32(cp)]
		if !ok {
			return nil, apperr.Newf(apperr.KindMissingResource, "atom U+%04X not seeded", cp)
		}
		resolved[cp] = info
	}
	return resolved, nil
}

// emitCompositions writes Physicality, Composition, and sequence rows for
// every distinct composition and returns each composition's centroid for
// the relation pass.
func (ing *Ingester) emitCompositions(ctx context.Context, specs []compSpec, resolved map[rune]atoms.Info, loaders *loaderSet) (map[hash.Digest]geometry.Point, error) {
	centroids := make(map[hash.Digest]geometry.Point, len(specs))
	for _, spec := range specs {
		atomIDs := make([]hash.Digest, len(spec.cps))
		points := make([]geometry.Point, len(spec.cps))
		for i, cp := range spec.cps {
			info := resolved[cp]
			atomIDs[i] = info.AtomID
			points[i] = info.Position
		}

		centroid, ok := geometry.Centroid(points)
		if !ok {
			logger.Debug("degenerate composition centroid", "composition", string(spec.cps))
		}
		phys, err := record.NewPhysicality(centroid, nil)
		if err != nil {
			return nil, err
		}
		comp, seqs, err := record.NewComposition(atomIDs, phys.ID)
		if err != nil {
			return nil, err
		}

		if err := loaders.physicality.Add(ctx, phys); err != nil {
			return nil, err
		}
		if err := loaders.composition.Add(ctx, comp); err != nil {
			return nil, err
		}
		for _, s := range seqs {
			if err := loaders.compositionSeq.Add(ctx, s); err != nil {
				return nil, err
			}
		}
		centroids[comp.ID] = centroid
	}
	return centroids, nil
}

// pairObservation accumulates the sightings of one composition pair inside
// the window.
type pairObservation struct {
	a, b      hash.Digest
	distances []int
}

// emitRelations slides a window over the composition stream and emits one
// relation per distinct co-occurring pair, with its rating and evidence.
// Participants are ordered by digest so the relation id has set semantics.
func (ing *Ingester) emitRelations(ctx context.Context, stream []streamEntry, centroids map[hash.Digest]geometry.Point, contentID hash.Digest, loaders *loaderSet) error {
	window := ing.opts.CooccurrenceWindow

	pairs := make(map[hash.Digest]*pairObservation)
	var order []hash.Digest
	for i := range stream {
		lo := i - window
		if lo < 0 {
			lo = 0
		}
		for j := lo; j < i; j++ {
			a, b := stream[j].id, stream[i].id
			if a == b {
				continue
			}
			if b.Less(a) {
				a, b = b, a
			}
			relID := record.RelationID([]hash.Digest{a, b})
			obs, ok := pairs[relID]
			if !ok {
				obs = &pairObservation{a: a, b: b}
				pairs[relID] = obs
				order = append(order, relID)
			}
			obs.distances = append(obs.distances, i-j)
		}
	}

	engine := rating.New(ing.opts.RatingInitial, ing.opts.RatingKFactor)

	for _, relID := range order {
		if err := ctx.Err(); err != nil {
			return apperr.Wrap(apperr.KindCancelled, "relation assembly interrupted", err)
		}
		obs := pairs[relID]

		centroid, _ := geometry.Centroid([]geometry.Point{centroids[obs.a], centroids[obs.b]})
		phys, err := record.NewPhysicality(centroid, nil)
		if err != nil {
			return err
		}
		rel, seqs, err := record.NewRelation([]hash.Digest{obs.a, obs.b}, phys.ID)
		if err != nil {
			return err
		}

		if err := loaders.physicality.Add(ctx, phys); err != nil {
			return err
		}
		if err := loaders.relation.Add(ctx, rel); err != nil {
			return err
		}
		for _, s := range seqs {
			if err := loaders.relationSeq.Add(ctx, s); err != nil {
				return err
			}
		}

		var signalSum, voteSum float64
		for _, d := range obs.distances {
			signal := ing.signalStrength(d, len(obs.distances))
			voteSum += engine.Observe(rel.ID, signal)
			signalSum += signal
		}
		n := float64(len(obs.distances))
		evidence := record.NewEvidence(contentID, rel.ID, voteSum/n, signalSum/n)
		if err := loaders.evidence.Add(ctx, evidence); err != nil {
			return err
		}
	}

	for _, row := range engine.Flush() {
		if err := loaders.rating.Add(ctx, row); err != nil {
			return err
		}
	}
	return nil
}

// signalStrength scores one pair sighting: closer in the window and more
// repeated means stronger, clamped into [0,1].
func (ing *Ingester) signalStrength(distance, repeats int) float64 {
	proximity := 1 / (1 + float64(distance))
	repetition := float64(repeats) / float64(ing.opts.CooccurrenceWindow)
	if repetition > 1 {
		repetition = 1
	}
	return proximity * repetition
}
