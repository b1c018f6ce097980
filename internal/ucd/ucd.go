// Package ucd parses the Unicode Character Database files the seeder needs:
// per-codepoint properties, DUCET collation weights, confusables, and emoji
// sequences. Parsing is strict — one malformed record aborts the phase with
// its file and line — but optional files may be absent entirely.
package ucd

import "github.com/hartonomous/substrate/internal/hash"

// MaxCodepoint is the top of the codespace; the atom table is dense over
// [0, MaxCodepoint].
const MaxCodepoint = hash.MaxCodepoint

// CodespaceSize is the total number of codepoints, assigned or not.
const CodespaceSize = MaxCodepoint + 1

// CodepointInfo carries the parsed properties of one assigned codepoint.
type CodepointInfo struct {
	Codepoint rune
	Name      string

	GeneralCategory string
	CombiningClass  int
	BidiClass       string

	Script           string
	ScriptExtensions []string
	Block            string
	Age              string

	// Decomposition: type is empty for canonical mappings, else the
	// compatibility tag without angle brackets ("compat", "font", …).
	DecompositionType    string
	DecompositionMapping []rune

	NumericType  string
	NumericValue float64

	SimpleUppercase rune // 0 when absent
	SimpleLowercase rune
	SimpleTitlecase rune

	EastAsianWidth     string
	LineBreak          string
	HangulSyllableType string

	Emoji                bool
	EmojiPresentation    bool
	EmojiModifierBase    bool
	EmojiComponent       bool
	ExtendedPictographic bool

	// Unihan radical/stroke, zero when not a Han ideograph.
	Radical int
	Strokes int

	// DUCET weights of the first collation element.
	HasCollation bool
	UCAPrimary   uint16
	UCASecondary uint16

	// Confusable skeleton target (single- or multi-codepoint).
	Confusable []rune
}

// Repertoire is the parsed database: every assigned codepoint plus the
// cross-codepoint structures the semantic graph feeds on.
type Repertoire struct {
	Info map[rune]*CodepointInfo
	// Assigned is the sorted list of assigned codepoints.
	Assigned []rune
	// ZWJSequences are the emoji zero-width-joiner sequences.
	ZWJSequences [][]rune
}

// Get returns the info of one codepoint, nil when unassigned.
func (r *Repertoire) Get(cp rune) *CodepointInfo {
	return r.Info[cp]
}

// IsAssigned reports whether cp has a parsed record.
func (r *Repertoire) IsAssigned(cp rune) bool {
	_, ok := r.Info[cp]
	return ok
}
