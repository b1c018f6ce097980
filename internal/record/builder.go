package record

import (
	"encoding/binary"

	"github.com/hartonomous/substrate/internal/apperr"
	"github.com/hartonomous/substrate/internal/geometry"
	"github.com/hartonomous/substrate/internal/hash"
	"github.com/hartonomous/substrate/internal/hilbert"
)

// NormTolerance is how far off unit length a centroid may be before the
// builder rejects it.
const NormTolerance = 1e-4

// NewPhysicality derives the full geometric record from a centroid: id from
// the canonical centroid bytes, Hilbert key from the cube-mapped point.
// Trajectory is optional and passes through untouched.
func NewPhysicality(centroid geometry.Point, trajectory []geometry.Point) (Physicality, error) {
	if err := geometry.CheckFinite(centroid); err != nil {
		return Physicality{}, err
	}
	if !geometry.IsUnit(centroid, NormTolerance) {
		return Physicality{}, apperr.Newf(apperr.KindInvalidInput,
			"centroid %v is not on S³ (norm %v)", centroid, geometry.Norm(centroid))
	}
	return Physicality{
		ID:         hash.Sum(CentroidBytes(centroid)),
		Centroid:   centroid,
		Hilbert:    hilbert.Encode(geometry.ToUnitCube(centroid)),
		Trajectory: trajectory,
	}, nil
}

// NewAtom pairs a codepoint with its physicality.
func NewAtom(codepoint uint32, physicalityID hash.Digest) (Atom, error) {
	id, err := hash.SumCodepoint(codepoint)
	if err != nil {
		return Atom{}, err
	}
	return Atom{ID: id, Codepoint: codepoint, PhysicalityID: physicalityID}, nil
}

// CompositionID content-addresses a sequence of atom ids.
func CompositionID(atomIDs []hash.Digest) hash.Digest {
	return hash.SumDigests(atomIDs)
}

// NewComposition builds the composition row plus its dense-ordinal sequence
// rows. atomIDs is the full ordered sequence; equal consecutive runs are not
// collapsed — each ordinal records one sequence slot, occurrences counts how
// many times that atom appears in the whole composition.
func NewComposition(atomIDs []hash.Digest, physicalityID hash.Digest) (Composition, []CompositionSequence, error) {
	if len(atomIDs) == 0 {
		return Composition{}, nil, apperr.New(apperr.KindInvalidInput, "composition needs at least one atom")
	}
	id := CompositionID(atomIDs)
	comp := Composition{ID: id, PhysicalityID: physicalityID}

	counts := make(map[hash.Digest]int64, len(atomIDs))
	for _, a := range atomIDs {
		counts[a]++
	}

	seqs := make([]CompositionSequence, 0, len(atomIDs))
	for ord, a := range atomIDs {
		seqs = append(seqs, CompositionSequence{
			ID:            sequenceID(id, int64(ord)),
			CompositionID: id,
			AtomID:        a,
			Ordinal:       int64(ord),
			Occurrences:   counts[a],
		})
	}
	return comp, seqs, nil
}

// RelationID content-addresses the ordered participant compositions.
func RelationID(compositionIDs []hash.Digest) hash.Digest {
	return hash.SumDigests(compositionIDs)
}

// NewRelation builds the relation row and its sequence rows over the
// participant compositions.
func NewRelation(compositionIDs []hash.Digest, physicalityID hash.Digest) (Relation, []RelationSequence, error) {
	if len(compositionIDs) < 2 {
		return Relation{}, nil, apperr.New(apperr.KindInvalidInput, "relation needs at least two participants")
	}
	id := RelationID(compositionIDs)
	rel := Relation{ID: id, PhysicalityID: physicalityID}

	counts := make(map[hash.Digest]int64, len(compositionIDs))
	for _, c := range compositionIDs {
		counts[c]++
	}

	seqs := make([]RelationSequence, 0, len(compositionIDs))
	for ord, c := range compositionIDs {
		seqs = append(seqs, RelationSequence{
			ID:            sequenceID(id, int64(ord)),
			RelationID:    id,
			CompositionID: c,
			Ordinal:       int64(ord),
			Occurrences:   counts[c],
		})
	}
	return rel, seqs, nil
}

// NewRating builds the initial rating row for a first observation.
func NewRating(relationID hash.Digest, initial, kFactor float64) RelationRating {
	return RelationRating{
		RelationID:   relationID,
		Observations: 1,
		RatingValue:  initial,
		KFactor:      kFactor,
	}
}

// NewEvidence builds an evidence row; signal strength is clamped to [0,1].
func NewEvidence(contentID, relationID hash.Digest, sourceRating, signalStrength float64) RelationEvidence {
	if signalStrength < 0 {
		signalStrength = 0
	}
	if signalStrength > 1 {
		signalStrength = 1
	}
	var seed [32]byte
	copy(seed[:16], contentID[:])
	copy(seed[16:], relationID[:])
	return RelationEvidence{
		ID:             hash.Sum(seed[:]),
		ContentID:      contentID,
		RelationID:     relationID,
		IsValid:        true,
		SourceRating:   sourceRating,
		SignalStrength: signalStrength,
	}
}

// NewContent builds the content row for an ingested blob.
func NewContent(raw []byte, contentType, mimeType, language string) Content {
	h := hash.Sum(raw)
	return Content{
		ID:          h,
		ContentHash: h,
		ContentType: contentType,
		MimeType:    mimeType,
		Size:        int64(len(raw)),
		Language:    language,
	}
}

func sequenceID(parent hash.Digest, ordinal int64) hash.Digest {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(ordinal))
	return hash.SumWithContext(parent[:], buf[:])
}
