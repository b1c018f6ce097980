package seeder

import (
	"encoding/binary"
	"sort"

	"github.com/hartonomous/substrate/internal/hash"
	"github.com/hartonomous/substrate/internal/ucd"
)

// sortKey is the multi-level sort tuple. Codepoints sharing a full tuple
// form one bucket; only inside a bucket may the graph traversal reorder.
type sortKey struct {
	categoryGroup int
	scriptGroup   int
	ucaPrimary    int
	radicalStroke int
}

// categoryGroup coarsens the general category: letters, marks, numbers,
// punctuation, symbols, separators, everything else.
func categoryGroup(gc string) int {
	if gc == "" {
		return 6
	}
	switch gc[0] {
	case 'L':
		return 0
	case 'M':
		return 1
	case 'N':
		return 2
	case 'P':
		return 3
	case 'S':
		return 4
	case 'Z':
		return 5
	default:
		return 6
	}
}

// noCollation sorts unweighted codepoints after every real primary weight.
const noCollation = 0x10000

// Sequencer linearizes the assigned repertoire into the total order that
// drives the Super-Fibonacci projection.
type Sequencer struct {
	rep   *ucd.Repertoire
	graph *Graph
}

func NewSequencer(rep *ucd.Repertoire, graph *Graph) *Sequencer {
	return &Sequencer{rep: rep, graph: graph}
}

// Linearize produces the ordered codepoint sequence. The order is a stable
// multi-level sort (category group, script group, UCA primary weight,
// radical/strokes, codepoint) refined by a greedy strongest-edge traversal
// inside each equal-key bucket.
func (s *Sequencer) Linearize() []rune {
	scriptRank := s.scriptRanks()

	keys := make(map[rune]sortKey, len(s.rep.Assigned))
	for _, cp := range s.rep.Assigned {
		info := s.rep.Get(cp)
		primary := noCollation
		if info.HasCollation {
			primary = int(info.UCAPrimary)
		}
		keys[cp] = sortKey{
			categoryGroup: categoryGroup(info.GeneralCategory),
			scriptGroup:   scriptRank[info.Script],
			ucaPrimary:    primary,
			radicalStroke: info.Radical*1000 + info.Strokes,
		}
	}

	order := make([]rune, len(s.rep.Assigned))
	copy(order, s.rep.Assigned)
	sort.SliceStable(order, func(i, j int) bool {
		a, b := keys[order[i]], keys[order[j]]
		if a.categoryGroup != b.categoryGroup {
			return a.categoryGroup < b.categoryGroup
		}
		if a.scriptGroup != b.scriptGroup {
			return a.scriptGroup < b.scriptGroup
		}
		if a.ucaPrimary != b.ucaPrimary {
			return a.ucaPrimary < b.ucaPrimary
		}
		if a.radicalStroke != b.radicalStroke {
			return a.radicalStroke < b.radicalStroke
		}
		return order[i] < order[j]
	})

	return s.refineBuckets(order, keys)
}

// scriptRanks assigns each script a stable rank by name; the empty script
// sorts last.
func (s *Sequencer) scriptRanks() map[string]int {
	names := make(map[string]bool)
	for _, cp := range s.rep.Assigned {
		if sc := s.rep.Get(cp).Script; sc != "" {
			names[sc] = true
		}
	}
	sorted := make([]string, 0, len(names))
	for n := range names {
		sorted = append(sorted, n)
	}
	sort.Strings(sorted)
	ranks := make(map[string]int, len(sorted)+1)
	for i, n := range sorted {
		ranks[n] = i
	}
	ranks[""] = len(sorted)
	return ranks
}

// refineBuckets walks each equal-key bucket left to right and greedily
// follows the strongest surviving edge among the bucket's remaining
// members; codepoints without a surviving edge come out in codepoint order.
// Deterministic because adjacency lists are (weight desc, codepoint asc)
// sorted.
func (s *Sequencer) refineBuckets(order []rune, keys map[rune]sortKey) []rune {
	out := order[:0]
	for start := 0; start < len(order); {
		end := start + 1
		for end < len(order) && keys[order[end]] == keys[order[start]] {
			end++
		}
		if end-start <= 2 {
			out = append(out, order[start:end]...)
		} else {
			out = append(out, s.traverseBucket(order[start:end])...)
		}
		start = end
	}
	return out
}

func (s *Sequencer) traverseBucket(bucket []rune) []rune {
	remaining := make(map[rune]bool, len(bucket))
	for _, cp := range bucket {
		remaining[cp] = true
	}
	out := make([]rune, 0, len(bucket))

	current := bucket[0]
	for len(out) < len(bucket) {
		out = append(out, current)
		delete(remaining, current)
		if len(out) == len(bucket) {
			break
		}

		next := rune(-1)
		for _, e := range s.graph.Edges(current) {
			if remaining[e.To] {
				next = e.To
				break
			}
		}
		if next < 0 {
			// No surviving edge: fall back to the lowest remaining
			// codepoint, which is the bucket's stable-sort order.
			for _, cp := range bucket {
				if remaining[cp] {
					next = cp
					break
				}
			}
		}
		current = next
	}
	return out
}

// GoldenDigest locks the traversal: the digest of the first n emitted
// codepoints as little-endian 32-bit values.
func GoldenDigest(sequence []rune, n int) hash.Digest {
	if n > len(sequence) {
		n = len(sequence)
	}
	buf := make([]byte, n*4)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint32(buf[i*4:], uint32(sequence[i]))
	}
	return hash.Sum(buf)
}
