package record

import (
	"testing"

	"github.com/hartonomous/substrate/internal/apperr"
	"github.com/hartonomous/substrate/internal/geometry"
	"github.com/hartonomous/substrate/internal/hash"
)

func TestNewPhysicality(t *testing.T) {
	p, err := NewPhysicality(geometry.SuperFibonacci(3, 10), nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if p.ID.IsZero() {
		t.Error("physicality id should be derived from the centroid")
	}
	if p.ID != hash.Sum(CentroidBytes(p.Centroid)) {
		t.Error("id must equal the digest of the canonical centroid bytes")
	}
	if p.Trajectory != nil {
		t.Error("trajectory should stay absent unless supplied")
	}

	again, _ := NewPhysicality(p.Centroid, nil)
	if again.ID != p.ID || again.Hilbert != p.Hilbert {
		t.Error("same centroid must rebuild the identical physicality")
	}
}

func TestNewPhysicalityRejectsOffSphere(t *testing.T) {
	_, err := NewPhysicality(geometry.Point{0.5, 0.5, 0, 0}, nil)
	if apperr.KindOf(err) != apperr.KindInvalidInput {
		t.Fatalf("kind = %v, want invalid input", apperr.KindOf(err))
	}
}

func TestNewComposition(t *testing.T) {
	a, _ := hash.SumCodepoint('a')
	b, _ := hash.SumCodepoint('b')
	phys, _ := NewPhysicality(geometry.AxisX, nil)

	comp, seqs, err := NewComposition([]hash.Digest{a, b, a}, phys.ID)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if comp.ID != CompositionID([]hash.Digest{a, b, a}) {
		t.Error("composition id must content-address the atom sequence")
	}
	if len(seqs) != 3 {
		t.Fatalf("sequence rows = %d, want 3", len(seqs))
	}
	for i, s := range seqs {
		if s.Ordinal != int64(i) {
			t.Errorf("ordinal[%d] = %d, want dense from 0", i, s.Ordinal)
		}
		if s.CompositionID != comp.ID {
			t.Errorf("sequence row %d points at wrong composition", i)
		}
	}
	if seqs[0].Occurrences != 2 || seqs[1].Occurrences != 1 || seqs[2].Occurrences != 2 {
		t.Errorf("occurrences = %d,%d,%d, want 2,1,2",
			seqs[0].Occurrences, seqs[1].Occurrences, seqs[2].Occurrences)
	}

	if _, _, err := NewComposition(nil, phys.ID); err == nil {
		t.Error("empty composition should be rejected")
	}
}

func TestCompositionIDOrderSensitive(t *testing.T) {
	a, _ := hash.SumCodepoint('a')
	b, _ := hash.SumCodepoint('b')
	if CompositionID([]hash.Digest{a, b}) == CompositionID([]hash.Digest{b, a}) {
		t.Fatal("atom order must change the composition id")
	}
}

func TestNewRelation(t *testing.T) {
	c1 := hash.Sum([]byte("one"))
	c2 := hash.Sum([]byte("two"))
	phys, _ := NewPhysicality(geometry.AxisX, nil)

	rel, seqs, err := NewRelation([]hash.Digest{c1, c2}, phys.ID)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(seqs) != 2 {
		t.Fatalf("sequence rows = %d, want 2", len(seqs))
	}
	if seqs[0].RelationID != rel.ID || seqs[1].RelationID != rel.ID {
		t.Error("sequence rows must reference the relation")
	}

	if _, _, err := NewRelation([]hash.Digest{c1}, phys.ID); err == nil {
		t.Error("single-participant relation should be rejected")
	}
}

func TestNewEvidenceClampsSignal(t *testing.T) {
	c := hash.Sum([]byte("content"))
	r := hash.Sum([]byte("relation"))
	if e := NewEvidence(c, r, 1000, 1.7); e.SignalStrength != 1 {
		t.Errorf("signal = %v, want clamped to 1", e.SignalStrength)
	}
	if e := NewEvidence(c, r, 1000, -0.5); e.SignalStrength != 0 {
		t.Errorf("signal = %v, want clamped to 0", e.SignalStrength)
	}
	e1 := NewEvidence(c, r, 1000, 0.5)
	e2 := NewEvidence(c, r, 1000, 0.5)
	if e1.ID != e2.ID {
		t.Error("evidence id should be deterministic for the same content/relation pair")
	}
}

func TestRowShapes(t *testing.T) {
	rows := []Row{
		Physicality{}, Atom{}, Composition{}, CompositionSequence{},
		Relation{}, RelationSequence{}, RelationRating{}, RelationEvidence{}, Content{},
	}
	for _, r := range rows {
		if len(r.Columns()) != len(r.Values()) {
			t.Errorf("%s: %d columns but %d values", r.Table(), len(r.Columns()), len(r.Values()))
		}
	}
}

func TestNewContent(t *testing.T) {
	c := NewContent([]byte("hello"), "text", "text/plain; charset=utf-8", "en")
	if c.Size != 5 {
		t.Errorf("size = %d, want 5", c.Size)
	}
	if c.ID != c.ContentHash {
		t.Error("content id should equal its content hash")
	}
	if c.ID != NewContent([]byte("hello"), "text", "x", "y").ID {
		t.Error("content dedup key must depend only on the bytes")
	}
}
