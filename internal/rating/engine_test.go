package rating

import (
	"math"
	"strings"
	"testing"

	"github.com/hartonomous/substrate/internal/hash"
)

func TestDefaults(t *testing.T) {
	e := New(0, 0)
	if e.Initial() != 1000 || e.KFactor() != 32 {
		t.Fatalf("defaults = %v/%v, want 1000/32", e.Initial(), e.KFactor())
	}
}

func TestObserveAccumulates(t *testing.T) {
	e := New(1000, 32)
	r := hash.Sum([]byte("rel"))

	v1 := e.Observe(r, 1.0)
	v2 := e.Observe(r, 0.5)
	if v1 != 1016 {
		t.Errorf("full-signal vote = %v, want 1016", v1)
	}
	if v2 != 1000 {
		t.Errorf("indifferent vote = %v, want 1000", v2)
	}
	if e.Observations(r) != 2 {
		t.Errorf("observations = %d, want 2", e.Observations(r))
	}
	if e.Len() != 1 {
		t.Errorf("distinct relations = %d, want 1", e.Len())
	}
}

func TestObserveClampsSignal(t *testing.T) {
	e := New(1000, 32)
	r := hash.Sum([]byte("rel"))
	if v := e.Observe(r, 7); v != 1016 {
		t.Errorf("overdriven signal vote = %v, want clamped 1016", v)
	}
	if v := e.Observe(r, -3); v != 984 {
		t.Errorf("negative signal vote = %v, want clamped 984", v)
	}
}

func TestFlushEmitsMeanVote(t *testing.T) {
	e := New(1000, 32)
	r := hash.Sum([]byte("rel"))
	e.Observe(r, 1.0) // 1016
	e.Observe(r, 0.0) // 984

	rows := e.Flush()
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(rows))
	}
	row := rows[0]
	if row.Observations != 2 {
		t.Errorf("observations = %d, want 2", row.Observations)
	}
	if math.Abs(row.RatingValue-1000) > 1e-9 {
		t.Errorf("mean vote = %v, want 1000", row.RatingValue)
	}
	if row.KFactor != 32 {
		t.Errorf("k = %v, want 32", row.KFactor)
	}

	// Flush drains.
	if e.Len() != 0 {
		t.Error("flush should reset the accumulator")
	}
	if len(e.Flush()) != 0 {
		t.Error("second flush should be empty")
	}
}

func TestFlushDeterministicOrder(t *testing.T) {
	mk := func() []string {
		e := New(1000, 32)
		for _, s := range []string{"c", "a", "b"} {
			e.Observe(hash.Sum([]byte(s)), 0.5)
		}
		var ids []string
		for _, row := range e.Flush() {
			ids = append(ids, row.RelationID.Hex())
		}
		return ids
	}
	a, b := mk(), mk()
	for i := range a {
		if a[i] != b[i] {
			t.Fatal("flush order must be deterministic")
		}
	}
	if !(a[0] < a[1] && a[1] < a[2]) {
		t.Fatalf("flush not sorted by relation id: %v", a)
	}
}

func TestMergeArithmetic(t *testing.T) {
	// The merge clause computes (old·old_obs + new·new_obs)/(old_obs+new_obs).
	// Verify the arithmetic the SQL expresses with the engine's own rows.
	oldRating, oldObs := 1010.0, 3.0
	e := New(1000, 32)
	r := hash.Sum([]byte("rel"))
	e.Observe(r, 1.0)
	row := e.Flush()[0]

	merged := (oldRating*oldObs + row.RatingValue*float64(row.Observations)) /
		(oldObs + float64(row.Observations))
	want := (1010*3 + 1016.0) / 4
	if math.Abs(merged-want) > 1e-9 {
		t.Fatalf("merged = %v, want %v", merged, want)
	}
}

func TestMergeExpressionShape(t *testing.T) {
	for _, frag := range []string{
		"ON CONFLICT (relation_id) DO UPDATE",
		"relation_rating.observations + EXCLUDED.observations",
		"relation_rating.rating_value * relation_rating.observations",
	} {
		if !strings.Contains(MergeExpression, frag) {
			t.Errorf("merge expression missing %q", frag)
		}
	}
}
