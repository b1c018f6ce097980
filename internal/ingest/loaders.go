package ingest

import (
	"context"

	"github.com/hartonomous/substrate/internal/bulkload"
	"github.com/hartonomous/substrate/internal/rating"
	"github.com/hartonomous/substrate/internal/record"
)

// loaderSet owns one loader per substrate table for the duration of a blob.
// Close order follows the reference chain: physicality before everything
// that points at it, parents before sequence rows, ratings and evidence
// last.
type loaderSet struct {
	physicality    *bulkload.Loader
	content        *bulkload.Loader
	composition    *bulkload.Loader
	compositionSeq *bulkload.Loader
	relation       *bulkload.Loader
	relationSeq    *bulkload.Loader
	rating         *bulkload.Loader
	evidence       *bulkload.Loader
}

func newLoaderSet(factory *bulkload.Factory) *loaderSet {
	return &loaderSet{
		physicality:    factory.Loader(record.Physicality{}.Table(), record.Physicality{}.Columns()),
		content:        factory.Loader(record.Content{}.Table(), record.Content{}.Columns()),
		composition:    factory.Loader(record.Composition{}.Table(), record.Composition{}.Columns()),
		compositionSeq: factory.Loader(record.CompositionSequence{}.Table(), record.CompositionSequence{}.Columns()),
		relation:       factory.Loader(record.Relation{}.Table(), record.Relation{}.Columns()),
		relationSeq:    factory.Loader(record.RelationSequence{}.Table(), record.RelationSequence{}.Columns()),
		rating:         factory.LoaderWithMerge(record.RelationRating{}.Table(), record.RelationRating{}.Columns(), rating.MergeExpression),
		evidence:       factory.Loader(record.RelationEvidence{}.Table(), record.RelationEvidence{}.Columns()),
	}
}

func (ls *loaderSet) ordered() []*bulkload.Loader {
	return []*bulkload.Loader{
		ls.physicality,
		ls.content,
		ls.composition,
		ls.compositionSeq,
		ls.relation,
		ls.relationSeq,
		ls.rating,
		ls.evidence,
	}
}

func (ls *loaderSet) close(ctx context.Context) error {
	for _, l := range ls.ordered() {
		if err := l.Close(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (ls *loaderSet) bytesSent() int64 {
	var n int64
	for _, l := range ls.ordered() {
		n += l.BytesSent()
	}
	return n
}
