// Package ngram discovers the repeated substrings of a codepoint sequence.
// A suffix-array pass enumerates every LCP interval; each interval emits the
// repeated substrings it spans, so there is no fixed maximum length and the
// work is linear in the size of the output.
package ngram

import (
	"context"
	"sort"

	"github.com/hartonomous/substrate/internal/apperr"
	"github.com/hartonomous/substrate/internal/hash"
)

// Config parameterizes one extractor instance.
type Config struct {
	// MinFrequency is τ: repeated substrings below it are dropped
	// (unigrams survive regardless, see Result.Significant).
	MinFrequency int
	// TrackPositions records sorted occurrence positions on each n-gram.
	TrackPositions bool
}

// DefaultConfig mirrors the system defaults.
func DefaultConfig() Config {
	return Config{MinFrequency: 2, TrackPositions: true}
}

// NGram is one discovered substring.
type NGram struct {
	// Hash is the composition id the n-gram feeds into: the digest of the
	// sequence of its atom ids, never of the raw codepoints.
	Hash             hash.Digest
	Codepoints       []rune
	Length           int
	Frequency        int
	Positions        []int
	IsRLE            bool
	PatternSignature string
}

// Result is the full extraction output.
type Result struct {
	cfg    Config
	NGrams []NGram
}

// Extractor runs suffix-array n-gram discovery with a fixed configuration.
type Extractor struct {
	cfg Config
}

func New(cfg Config) *Extractor {
	if cfg.MinFrequency < 1 {
		cfg.MinFrequency = 1
	}
	return &Extractor{cfg: cfg}
}

// Extract discovers all repeated substrings of seq with frequency ≥ τ, plus
// every unigram that appeared at all. Empty input yields an empty result.
// Cancellation is observed between LCP intervals.
func (e *Extractor) Extract(ctx context.Context, seq []rune) (*Result, error) {
	res := &Result{cfg: e.cfg}
	if len(seq) == 0 {
		return res, nil
	}

	// Unigram census first: the downstream composition table carries the
	// full active alphabet even below τ.
	uniPositions := make(map[rune][]int)
	order := make([]rune, 0, 64)
	for i, cp := range seq {
		if _, seen := uniPositions[cp]; !seen {
			order = append(order, cp)
		}
		uniPositions[cp] = append(uniPositions[cp], i)
	}
	for _, cp := range order {
		pos := uniPositions[cp]
		g, err := e.makeNGram(seq[pos[0]:pos[0]+1], len(pos), pos)
		if err != nil {
			return nil, err
		}
		res.NGrams = append(res.NGrams, g)
	}

	sa := buildSuffixArray(seq)
	lcp := buildLCP(seq, sa)

	// Enumerate LCP intervals with a stack; each interval of depth ℓ and
	// parent depth p contributes the substrings of length p+1 … ℓ, which
	// together are exactly the repeated substrings of seq.
	type interval struct {
		depth int
		start int // left boundary in sa
	}
	var stack []interval
	emit := func(depth, parentDepth, saFrom, saTo int) error {
		width := saTo - saFrom
		if width < e.cfg.MinFrequency {
			return nil
		}
		if parentDepth < 1 {
			parentDepth = 1 // unigrams are handled by the census above
		}
		for d := parentDepth + 1; d <= depth; d++ {
			var positions []int
			if e.cfg.TrackPositions {
				positions = append([]int(nil), sa[saFrom:saTo]...)
				sort.Ints(positions)
			}
			start := sa[saFrom]
			g, err := e.makeNGram(seq[start:start+d], width, positions)
			if err != nil {
				return err
			}
			res.NGrams = append(res.NGrams, g)
		}
		return nil
	}

	n := len(seq)
	for i := 1; i <= n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, apperr.Wrap(apperr.KindCancelled, "ngram extraction interrupted", err)
		}
		cur := 0
		if i < n {
			cur = lcp[i]
		}
		start := i - 1
		for len(stack) > 0 && stack[len(stack)-1].depth > cur {
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			parent := cur
			if len(stack) > 0 && stack[len(stack)-1].depth > cur {
				parent = stack[len(stack)-1].depth
			}
			if err := emit(top.depth, parent, top.start, i); err != nil {
				return nil, err
			}
			start = top.start
		}
		if cur > 0 && (len(stack) == 0 || stack[len(stack)-1].depth < cur) {
			stack = append(stack, interval{depth: cur, start: start})
		}
	}

	return res, nil
}

func (e *Extractor) makeNGram(cps []rune, freq int, positions []int) (NGram, error) {
	ids := make([]hash.Digest, len(cps))
	for i, cp := range cps {
		d, err := hash.SumCodepoint(uint32(cp))
		if err != nil {
			return NGram{}, err
		}
		ids[i] = d
	}
	out := make([]rune, len(cps))
	copy(out, cps)
	if !e.cfg.TrackPositions {
		positions = nil
	}
	return NGram{
		Hash:             hash.SumDigests(ids),
		Codepoints:       out,
		Length:           len(out),
		Frequency:        freq,
		Positions:        positions,
		IsRLE:            isRLE(out),
		PatternSignature: PatternSignature(out),
	}, nil
}

func isRLE(cps []rune) bool {
	for _, cp := range cps[1:] {
		if cp != cps[0] {
			return false
		}
	}
	return true
}

// PatternSignature relabels distinct codepoints in first-appearance order to
// X, Y, Z, …; "ssi" becomes "XXY" and "abba" becomes "XYYX". The signature
// is a function of the substring alone.
func PatternSignature(cps []rune) string {
	labels := make(map[rune]rune, 8)
	out := make([]rune, 0, len(cps))
	for _, cp := range cps {
		l, ok := labels[cp]
		if !ok {
			l = labelFor(len(labels))
			labels[cp] = l
		}
		out = append(out, l)
	}
	return string(out)
}

func labelFor(i int) rune {
	// X, Y, Z, then A through W; 26 labels cover any realistic pattern.
	if i < 3 {
		return rune('X' + i)
	}
	if i < 26 {
		return rune('A' + i - 3)
	}
	return '?'
}

// Significant returns all n-grams with frequency ≥ τ plus every unigram
// that appeared at all, so the downstream composition table always holds
// the full active alphabet.
func (r *Result) Significant() []NGram {
	out := make([]NGram, 0, len(r.NGrams))
	for _, g := range r.NGrams {
		if g.Frequency >= r.cfg.MinFrequency || g.Length == 1 {
			out = append(out, g)
		}
	}
	return out
}
