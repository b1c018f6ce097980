package ngram

import (
	"context"
	"testing"

	"github.com/hartonomous/substrate/internal/apperr"
	"github.com/hartonomous/substrate/internal/hash"
)

func extract(t *testing.T, cfg Config, s string) *Result {
	t.Helper()
	res, err := New(cfg).Extract(context.Background(), []rune(s))
	if err != nil {
		t.Fatalf("extract %q: %v", s, err)
	}
	return res
}

func find(res *Result, s string) *NGram {
	for i, g := range res.NGrams {
		if string(g.Codepoints) == s {
			return &res.NGrams[i]
		}
	}
	return nil
}

func TestMississippi(t *testing.T) {
	res := extract(t, DefaultConfig(), "mississippi")

	cases := []struct {
		s     string
		freq  int
		rle   bool
		sig   string
		atPos []int
	}{
		{"i", 4, true, "X", []int{1, 4, 7, 10}},
		{"s", 4, true, "X", []int{2, 3, 5, 6}},
		{"p", 2, true, "X", []int{8, 9}},
		{"ss", 2, true, "XX", []int{2, 5}},
		{"issi", 2, false, "XYYX", []int{1, 4}},
		{"si", 2, false, "XY", []int{3, 6}},
		{"iss", 2, false, "XYY", []int{1, 4}},
	}
	for _, c := range cases {
		g := find(res, c.s)
		if g == nil {
			t.Errorf("%q not extracted", c.s)
			continue
		}
		if g.Frequency != c.freq {
			t.Errorf("%q frequency = %d, want %d", c.s, g.Frequency, c.freq)
		}
		if g.IsRLE != c.rle {
			t.Errorf("%q is_rle = %v, want %v", c.s, g.IsRLE, c.rle)
		}
		if g.PatternSignature != c.sig {
			t.Errorf("%q signature = %q, want %q", c.s, g.PatternSignature, c.sig)
		}
		if c.atPos != nil {
			if len(g.Positions) != len(c.atPos) {
				t.Errorf("%q positions = %v, want %v", c.s, g.Positions, c.atPos)
				continue
			}
			for i := range c.atPos {
				if g.Positions[i] != c.atPos[i] {
					t.Errorf("%q positions = %v, want %v", c.s, g.Positions, c.atPos)
					break
				}
			}
		}
	}

	// The singleton 'm' is absent from the repeated set but must survive
	// into the significant set as part of the active alphabet.
	m := find(res, "m")
	if m == nil || m.Frequency != 1 {
		t.Fatalf("unigram m should be present with frequency 1, got %+v", m)
	}
	sig := res.Significant()
	foundM := false
	for _, g := range sig {
		if string(g.Codepoints) == "m" {
			foundM = true
		}
		if g.Length > 1 && g.Frequency < 2 {
			t.Errorf("sub-threshold multi-gram %q leaked into significant set", string(g.Codepoints))
		}
	}
	if !foundM {
		t.Error("significant set must include every unigram")
	}
}

func TestFrequencyMatchesOccurrences(t *testing.T) {
	input := "abcabcabcab"
	res := extract(t, DefaultConfig(), input)
	runes := []rune(input)
	for _, g := range res.NGrams {
		count := 0
		for i := 0; i+g.Length <= len(runes); i++ {
			if string(runes[i:i+g.Length]) == string(g.Codepoints) {
				count++
			}
		}
		if count != g.Frequency {
			t.Errorf("%q frequency = %d but input has %d occurrences", string(g.Codepoints), g.Frequency, count)
		}
	}
}

func TestEmptyInput(t *testing.T) {
	res := extract(t, DefaultConfig(), "")
	if len(res.NGrams) != 0 {
		t.Fatalf("empty input should yield zero n-grams, got %d", len(res.NGrams))
	}
	if len(res.Significant()) != 0 {
		t.Fatal("empty input should have an empty significant set")
	}
}

func TestHashIsCompositionID(t *testing.T) {
	res := extract(t, DefaultConfig(), "aa")
	g := find(res, "aa")
	if g == nil {
		t.Fatal("aa not extracted")
	}
	a, _ := hash.SumCodepoint('a')
	want := hash.SumDigests([]hash.Digest{a, a})
	if g.Hash != want {
		t.Fatal("n-gram hash must be the digest of the atom id sequence")
	}
}

func TestPatternSignatureIsPermutationCanonical(t *testing.T) {
	if got := PatternSignature([]rune("abba")); got != "XYYX" {
		t.Errorf("abba = %q, want XYYX", got)
	}
	if got := PatternSignature([]rune("zoo")); got != "XYY" {
		t.Errorf("zoo = %q, want XYY", got)
	}
	// Consistent relabeling: substrings with the same shape share a signature.
	if PatternSignature([]rune("abba")) != PatternSignature([]rune("noon")) {
		t.Error("abba and noon share a shape")
	}
	if PatternSignature([]rune("abc")) == PatternSignature([]rune("aba")) {
		t.Error("abc and aba have different shapes")
	}
}

func TestTrackPositionsOff(t *testing.T) {
	res := extract(t, Config{MinFrequency: 2, TrackPositions: false}, "mississippi")
	for _, g := range res.NGrams {
		if g.Positions != nil {
			t.Fatalf("%q carries positions with tracking off", string(g.Codepoints))
		}
	}
}

func TestUnicodeInput(t *testing.T) {
	res := extract(t, DefaultConfig(), "Hello 你好")
	distinct := map[rune]bool{}
	for _, cp := range "Hello 你好" {
		distinct[cp] = true
	}
	sig := res.Significant()
	got := map[rune]bool{}
	for _, g := range sig {
		if g.Length == 1 {
			got[g.Codepoints[0]] = true
		}
	}
	for cp := range distinct {
		if !got[cp] {
			t.Errorf("significant set missing unigram %q", cp)
		}
	}
	if g := find(res, "l"); g == nil || g.Frequency != 2 {
		t.Errorf("l should repeat twice, got %+v", g)
	}
}

func TestCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(DefaultConfig()).Extract(ctx, []rune("mississippi"))
	if apperr.KindOf(err) != apperr.KindCancelled {
		t.Fatalf("kind = %v, want cancelled", apperr.KindOf(err))
	}
}

func TestSuffixArrayOrdering(t *testing.T) {
	seq := []rune("banana")
	sa := buildSuffixArray(seq)
	want := []int{5, 3, 1, 0, 4, 2}
	for i := range want {
		if sa[i] != want[i] {
			t.Fatalf("sa = %v, want %v", sa, want)
		}
	}
	lcp := buildLCP(seq, sa)
	wantLCP := []int{0, 1, 3, 0, 0, 2}
	for i := range wantLCP {
		if lcp[i] != wantLCP[i] {
			t.Fatalf("lcp = %v, want %v", lcp, wantLCP)
		}
	}
}
