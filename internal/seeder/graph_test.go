package seeder

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hartonomous/substrate/internal/ucd"
)

const fixtureUnicodeData = `0030;DIGIT ZERO;Nd;0;EN;;0;0;0;N;;;;;
0031;DIGIT ONE;Nd;0;EN;;1;1;1;N;;;;;
0041;LATIN CAPITAL LETTER A;Lu;0;L;;;;;N;;;;0061;
0042;LATIN CAPITAL LETTER B;Lu;0;L;;;;;N;;;;0062;
004F;LATIN CAPITAL LETTER O;Lu;0;L;;;;;N;;;;006F;
0061;LATIN SMALL LETTER A;Ll;0;L;;;;;N;;;0041;;0041
0062;LATIN SMALL LETTER B;Ll;0;L;;;;;N;;;0042;;0042
006F;LATIN SMALL LETTER O;Ll;0;L;;;;;N;;;004F;;004F
00C0;LATIN CAPITAL LETTER A WITH GRAVE;Lu;0;L;0041 0300;;;;N;;;;00E0;
0300;COMBINING GRAVE ACCENT;Mn;230;NSM;;;;;N;;;;;
0391;GREEK CAPITAL LETTER ALPHA;Lu;0;L;;;;;N;;;;03B1;
03B1;GREEK SMALL LETTER ALPHA;Ll;0;L;;;;;N;;;0391;;0391
4E00;CJK UNIFIED IDEOGRAPH-4E00;Lo;0;L;;;;;N;;;;;
4E2D;CJK UNIFIED IDEOGRAPH-4E2D;Lo;0;L;;;;;N;;;;;
`

const fixtureAllkeys = `@version 16.0.0
0030 ; [.1F98.0020.0002]
0031 ; [.1F99.0020.0002]
0041 ; [.206A.0020.0008]
0061 ; [.206A.0020.0002]
0042 ; [.2076.0020.0008]
0062 ; [.2076.0020.0002]
004F ; [.20FC.0020.0008]
006F ; [.20FC.0020.0002]
0391 ; [.2286.0020.0008]
03B1 ; [.2286.0020.0002]
`

func fixtureRepertoire(t *testing.T) *ucd.Repertoire {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"UnicodeData.txt": fixtureUnicodeData,
		"allkeys.txt":     fixtureAllkeys,
		"Scripts.txt": `0041..0042    ; Latin
004F          ; Latin
0061..0062    ; Latin
006F          ; Latin
00C0          ; Latin
0300          ; Inherited
0391          ; Greek
03B1          ; Greek
4E00          ; Han
4E2D          ; Han
0030..0031    ; Common
`,
		"confusables.txt":                "0030 ;\t004F ;\tMA\n",
		"Unihan_RadicalStrokeCounts.txt": "U+4E00\tkRSUnicode\t1.0\nU+4E2D\tkRSUnicode\t2.3\n",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	rep, err := ucd.NewParser(dir).Parse()
	if err != nil {
		t.Fatalf("parse fixture: %v", err)
	}
	return rep
}

func hasEdge(g *Graph, from, to rune, weight int) bool {
	for _, e := range g.Edges(from) {
		if e.To == to && e.Weight == weight {
			return true
		}
	}
	return false
}

func TestGraphTiers(t *testing.T) {
	rep := fixtureRepertoire(t)
	g := BuildGraph(rep)

	if !hasEdge(g, 'A', 'a', WeightCasePair) || !hasEdge(g, 'a', 'A', WeightCasePair) {
		t.Error("case pair edge A↔a missing")
	}
	if !hasEdge(g, 0x00C0, 'A', WeightCanonicalDecomp) {
		t.Error("canonical decomposition edge À→A missing")
	}
	if !hasEdge(g, '0', 'O', WeightConfusable) {
		t.Error("confusable edge 0→O missing")
	}
	if hasEdge(g, 'A', 'a', WeightUCAPrimary) {
		t.Error("strongest tier must win on duplicate targets")
	}
	// In the merged graph 0↔1 also carry a collation bridge (85) and 4E00↔4E2D
	// a script adjacency (70); only the strongest edge per target survives, so
	// these two tiers are checked on a graph built from their builders alone.
	tiers := &Graph{edges: make(map[rune][]Edge)}
	buildNumericEdges(rep, tiers)
	buildRadicalStrokeEdges(rep, tiers)
	if !hasEdge(tiers, '0', '1', WeightNumericAdjacency) {
		t.Error("numeric adjacency edge 0↔1 missing")
	}
	if !hasEdge(tiers, 0x4E00, 0x4E2D, WeightRadicalStroke) {
		t.Error("radical/stroke chain edge missing")
	}
	// A and B share no primary, so collation bridges their groups.
	if !hasEdge(g, 'A', 'B', WeightUCASecondary) && !hasEdge(g, 'A', 'B', WeightScriptAdjacency) {
		t.Error("A and B should be linked by collation bridge or script adjacency")
	}
}

func TestGraphEdgesSortedForTraversal(t *testing.T) {
	rep := fixtureRepertoire(t)
	g := BuildGraph(rep)
	for _, cp := range rep.Assigned {
		es := g.Edges(cp)
		for i := 0; i+1 < len(es); i++ {
			if es[i].Weight < es[i+1].Weight {
				t.Fatalf("edges of %U not weight-sorted: %v", cp, es)
			}
			if es[i].Weight == es[i+1].Weight && es[i].To >= es[i+1].To {
				t.Fatalf("equal-weight edges of %U not codepoint-sorted: %v", cp, es)
			}
		}
		seen := map[rune]bool{}
		for _, e := range es {
			if seen[e.To] {
				t.Fatalf("duplicate edge target %U from %U", e.To, cp)
			}
			seen[e.To] = true
		}
	}
}

func TestGraphNoSelfEdges(t *testing.T) {
	rep := fixtureRepertoire(t)
	g := BuildGraph(rep)
	for _, cp := range rep.Assigned {
		for _, e := range g.Edges(cp) {
			if e.To == cp {
				t.Fatalf("self edge on %U", cp)
			}
		}
	}
}
