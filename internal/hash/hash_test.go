package hash

import (
	"errors"
	"testing"

	"github.com/hartonomous/substrate/internal/apperr"
)

func TestSumDeterministic(t *testing.T) {
	a := Sum([]byte("call me ishmael"))
	b := Sum([]byte("call me ishmael"))
	if a != b {
		t.Fatalf("same input, different digests: %s vs %s", a, b)
	}
	c := Sum([]byte("call me ishmaeL"))
	if a == c {
		t.Fatal("distinct inputs collided")
	}
}

func TestSumOrderSensitive(t *testing.T) {
	if Sum([]byte("ab")) == Sum([]byte("ba")) {
		t.Fatal("digest should depend on byte order")
	}
}

func TestHexRoundTrip(t *testing.T) {
	d := Sum([]byte("round trip"))
	parsed, err := ParseHex(d.Hex())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed != d {
		t.Fatalf("round trip lost data: %s vs %s", parsed, d)
	}
}

func TestParseHexRejectsBadInput(t *testing.T) {
	for _, s := range []string{"", "abc", "zz00000000000000000000000000000000"[:32], "0123456789abcdef0123456789abcde"} {
		_, err := ParseHex(s)
		if err == nil {
			t.Errorf("ParseHex(%q) should fail", s)
			continue
		}
		if !errors.Is(err, apperr.New(apperr.KindInvalidInput, "")) {
			t.Errorf("ParseHex(%q) kind = %v, want invalid input", s, apperr.KindOf(err))
		}
	}
}

func TestSumCodepoint(t *testing.T) {
	a, err := SumCodepoint('A')
	if err != nil {
		t.Fatalf("sum codepoint: %v", err)
	}
	b, _ := SumCodepoint('B')
	if a == b {
		t.Fatal("adjacent codepoints collided")
	}

	again, _ := SumCodepoint('A')
	if a != again {
		t.Fatal("codepoint digest not deterministic")
	}

	if _, err := SumCodepoint(MaxCodepoint + 1); err == nil {
		t.Fatal("codepoint above U+10FFFF should be rejected")
	}
}

func TestSumWithContextDistinguishesEmpty(t *testing.T) {
	payload := []byte("payload")
	plain := Sum(payload)
	ctxEmpty := SumWithContext(payload, nil)
	ctxReal := SumWithContext(payload, []byte("en"))

	if plain == ctxEmpty {
		t.Fatal("empty-context digest must differ from plain digest")
	}
	if ctxEmpty == ctxReal {
		t.Fatal("context bytes must change the digest")
	}
	// Context framing must not be confusable with payload extension.
	if SumWithContext([]byte("payloaden"), nil) == ctxReal {
		t.Fatal("context frame collided with payload concatenation")
	}
}

func TestSumDigests(t *testing.T) {
	a := Sum([]byte("a"))
	b := Sum([]byte("b"))
	ab := SumDigests([]Digest{a, b})
	ba := SumDigests([]Digest{b, a})
	if ab == ba {
		t.Fatal("digest sequence order must matter")
	}
	if ab != SumDigests([]Digest{a, b}) {
		t.Fatal("SumDigests not deterministic")
	}
}

func TestCompare(t *testing.T) {
	lo, _ := FromBytes(make([]byte, Size))
	hiBytes := make([]byte, Size)
	hiBytes[0] = 1
	hi, _ := FromBytes(hiBytes)
	if !lo.Less(hi) || hi.Less(lo) {
		t.Fatal("byte-order comparison broken")
	}
	if lo.Compare(lo) != 0 {
		t.Fatal("self comparison should be zero")
	}
}
