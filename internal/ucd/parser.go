package ucd

import (
	"bufio"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/hartonomous/substrate/internal/apperr"
	"github.com/hartonomous/substrate/internal/logger"
)

// Parser reads a UCD directory. Required files are UnicodeData.txt and
// allkeys.txt; every other input degrades to a skipped property when absent.
type Parser struct {
	dir string
}

func NewParser(dir string) *Parser {
	return &Parser{dir: dir}
}

// Parse loads the repertoire.
func (p *Parser) Parse() (*Repertoire, error) {
	rep := &Repertoire{Info: make(map[rune]*CodepointInfo, 160_000)}

	if err := p.parseUnicodeData(rep); err != nil {
		return nil, err
	}

	optional := []struct {
		file  string
		parse func(*Repertoire, string) error
	}{
		{"Scripts.txt", p.parseScripts},
		{"ScriptExtensions.txt", p.parseScriptExtensions},
		{"Blocks.txt", p.parseBlocks},
		{"DerivedAge.txt", p.parseAge},
		{"EastAsianWidth.txt", p.parseEastAsianWidth},
		{"LineBreak.txt", p.parseLineBreak},
		{"HangulSyllableType.txt", p.parseHangulSyllableType},
		{"emoji-data.txt", p.parseEmojiData},
		{"emoji-zwj-sequences.txt", p.parseZWJSequences},
		{"confusables.txt", p.parseConfusables},
		{"Unihan_RadicalStrokeCounts.txt", p.parseRadicalStrokes},
	}
	for _, f := range optional {
		path := filepath.Join(p.dir, f.file)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			logger.Debug("ucd file absent, property skipped", "file", f.file)
			continue
		}
		if err := f.parse(rep, path); err != nil {
			return nil, err
		}
	}

	if err := p.parseAllkeys(rep); err != nil {
		return nil, err
	}

	rep.Assigned = make([]rune, 0, len(rep.Info))
	for cp := range rep.Info {
		rep.Assigned = append(rep.Assigned, cp)
	}
	sort.Slice(rep.Assigned, func(i, j int) bool { return rep.Assigned[i] < rep.Assigned[j] })

	logger.Info("ucd parsed", "assigned", len(rep.Assigned), "zwj_sequences", len(rep.ZWJSequences))
	return rep, nil
}

// eachLine walks one data file, stripping comments and blanks, and
// reporting errors with file and line.
func eachLine(path string, fn func(line string) error) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return apperr.Newf(apperr.KindMissingResource, "ucd file %s", path)
		}
		return apperr.Wrap(apperr.KindMissingResource, "open "+path, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := sc.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "@") {
			continue
		}
		if err := fn(line); err != nil {
			return apperr.Wrap(apperr.KindInvalidInput,
				filepath.Base(path)+":"+strconv.Itoa(lineNo), err)
		}
	}
	return apperr.Wrap(apperr.KindInvalidInput, "read "+path, sc.Err())
}

func parseCodepoint(s string) (rune, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 16, 32)
	if err != nil {
		return 0, err
	}
	if v > MaxCodepoint {
		return 0, apperr.Newf(apperr.KindInvalidInput, "codepoint %X out of range", v)
	}
	return rune(v), nil
}

// parseRange handles "0030..0039" and single codepoints.
func parseRange(s string) (rune, rune, error) {
	s = strings.TrimSpace(s)
	if lo, hi, ok := strings.Cut(s, ".."); ok {
		a, err := parseCodepoint(lo)
		if err != nil {
			return 0, 0, err
		}
		b, err := parseCodepoint(hi)
		if err != nil {
			return 0, 0, err
		}
		return a, b, nil
	}
	cp, err := parseCodepoint(s)
	return cp, cp, err
}

func parseCodepointSeq(s string) ([]rune, error) {
	var out []rune
	for _, part := range strings.Fields(s) {
		cp, err := parseCodepoint(part)
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, nil
}

func (p *Parser) parseUnicodeData(rep *Repertoire) error {
	path := filepath.Join(p.dir, "UnicodeData.txt")

	var rangeFirst rune = -1
	var rangeInfo CodepointInfo

	err := eachLine(path, func(line string) error {
		fields := strings.Split(line, ";")
		if len(fields) != 15 {
			return apperr.Newf(apperr.KindInvalidInput, "want 15 fields, got %d", len(fields))
		}
		cp, err := parseCodepoint(fields[0])
		if err != nil {
			return err
		}
		info := CodepointInfo{
			Codepoint:       cp,
			Name:            fields[1],
			GeneralCategory: fields[2],
			BidiClass:       fields[4],
		}
		if fields[3] != "" {
			ccc, err := strconv.Atoi(fields[3])
			if err != nil {
				return apperr.Newf(apperr.KindInvalidInput, "combining class %q", fields[3])
			}
			info.CombiningClass = ccc
		}
		if err := parseDecomposition(fields[5], &info); err != nil {
			return err
		}
		if err := parseNumeric(fields[6], fields[7], fields[8], &info); err != nil {
			return err
		}
		if fields[12] != "" {
			if info.SimpleUppercase, err = parseCodepoint(fields[12]); err != nil {
				return err
			}
		}
		if fields[13] != "" {
			if info.SimpleLowercase, err = parseCodepoint(fields[13]); err != nil {
				return err
			}
		}
		if fields[14] != "" {
			if info.SimpleTitlecase, err = parseCodepoint(fields[14]); err != nil {
				return err
			}
		}

		// Range pairs: "<CJK Ideograph, First>" … "<CJK Ideograph, Last>".
		switch {
		case strings.HasSuffix(info.Name, ", First>"):
			rangeFirst = cp
			rangeInfo = info
			return nil
		case strings.HasSuffix(info.Name, ", Last>"):
			if rangeFirst < 0 {
				return apperr.New(apperr.KindInvalidInput, "range Last without First")
			}
			base := strings.TrimSuffix(strings.TrimPrefix(info.Name, "<"), ", Last>")
			for c := rangeFirst; c <= cp; c++ {
				ci := rangeInfo
				ci.Codepoint = c
				ci.Name = "<" + base + "-" + strconv.FormatInt(int64(c), 16) + ">"
				rep.Info[c] = &ci
			}
			rangeFirst = -1
			return nil
		}

		rep.Info[cp] = &info
		return nil
	})
	return err
}

func parseDecomposition(field string, info *CodepointInfo) error {
	if field == "" {
		return nil
	}
	if strings.HasPrefix(field, "<") {
		end := strings.IndexByte(field, '>')
		if end < 0 {
			return apperr.Newf(apperr.KindInvalidInput, "decomposition %q", field)
		}
		info.DecompositionType = field[1:end]
		field = strings.TrimSpace(field[end+1:])
	}
	mapping, err := parseCodepointSeq(field)
	if err != nil {
		return err
	}
	info.DecompositionMapping = mapping
	return nil
}

func parseNumeric(decimal, digit, numeric string, info *CodepointInfo) error {
	var err error
	switch {
	case decimal != "":
		info.NumericType = "Decimal"
		info.NumericValue, err = strconv.ParseFloat(decimal, 64)
	case digit != "":
		info.NumericType = "Digit"
		info.NumericValue, err = strconv.ParseFloat(digit, 64)
	case numeric != "":
		info.NumericType = "Numeric"
		if num, den, ok := strings.Cut(numeric, "/"); ok {
			n, errN := strconv.ParseFloat(num, 64)
			d, errD := strconv.ParseFloat(den, 64)
			if errN != nil || errD != nil || d == 0 {
				return apperr.Newf(apperr.KindInvalidInput, "numeric value %q", numeric)
			}
			info.NumericValue = n / d
		} else {
			info.NumericValue, err = strconv.ParseFloat(numeric, 64)
		}
	}
	if err != nil {
		return apperr.Wrap(apperr.KindInvalidInput, "numeric value", err)
	}
	return nil
}

// rangeValueFile parses the common "range ; value" layout.
func (p *Parser) rangeValueFile(rep *Repertoire, path string, apply func(*CodepointInfo, string)) error {
	return eachLine(path, func(line string) error {
		rangeStr, value, ok := strings.Cut(line, ";")
		if !ok {
			return apperr.New(apperr.KindInvalidInput, "want 'range ; value'")
		}
		lo, hi, err := parseRange(rangeStr)
		if err != nil {
			return err
		}
		value = strings.TrimSpace(value)
		for cp := lo; cp <= hi; cp++ {
			if info := rep.Info[cp]; info != nil {
				apply(info, value)
			}
		}
		return nil
	})
}

func (p *Parser) parseScripts(rep *Repertoire, path string) error {
	return p.rangeValueFile(rep, path, func(i *CodepointInfo, v string) { i.Script = v })
}

func (p *Parser) parseScriptExtensions(rep *Repertoire, path string) error {
	return p.rangeValueFile(rep, path, func(i *CodepointInfo, v string) {
		i.ScriptExtensions = strings.Fields(v)
	})
}

func (p *Parser) parseBlocks(rep *Repertoire, path string) error {
	return p.rangeValueFile(rep, path, func(i *CodepointInfo, v string) { i.Block = v })
}

func (p *Parser) parseAge(rep *Repertoire, path string) error {
	return p.rangeValueFile(rep, path, func(i *CodepointInfo, v string) { i.Age = v })
}

func (p *Parser) parseEastAsianWidth(rep *Repertoire, path string) error {
	return p.rangeValueFile(rep, path, func(i *CodepointInfo, v string) { i.EastAsianWidth = v })
}

func (p *Parser) parseLineBreak(rep *Repertoire, path string) error {
	return p.rangeValueFile(rep, path, func(i *CodepointInfo, v string) { i.LineBreak = v })
}

func (p *Parser) parseHangulSyllableType(rep *Repertoire, path string) error {
	return p.rangeValueFile(rep, path, func(i *CodepointInfo, v string) { i.HangulSyllableType = v })
}

func (p *Parser) parseEmojiData(rep *Repertoire, path string) error {
	return p.rangeValueFile(rep, path, func(i *CodepointInfo, v string) {
		switch v {
		case "Emoji":
			i.Emoji = true
		case "Emoji_Presentation":
			i.EmojiPresentation = true
		case "Emoji_Modifier_Base":
			i.EmojiModifierBase = true
		case "Emoji_Component":
			i.EmojiComponent = true
		case "Extended_Pictographic":
			i.ExtendedPictographic = true
		}
	})
}

func (p *Parser) parseZWJSequences(rep *Repertoire, path string) error {
	return eachLine(path, func(line string) error {
		seqStr, _, ok := strings.Cut(line, ";")
		if !ok {
			return apperr.New(apperr.KindInvalidInput, "want 'sequence ; type'")
		}
		seq, err := parseCodepointSeq(seqStr)
		if err != nil {
			return err
		}
		if len(seq) >= 2 {
			rep.ZWJSequences = append(rep.ZWJSequences, seq)
		}
		return nil
	})
}

func (p *Parser) parseConfusables(rep *Repertoire, path string) error {
	return eachLine(path, func(line string) error {
		parts := strings.Split(line, ";")
		if len(parts) < 2 {
			return apperr.New(apperr.KindInvalidInput, "want 'source ; target ; type'")
		}
		src, err := parseCodepointSeq(parts[0])
		if err != nil {
			return err
		}
		if len(src) != 1 {
			return nil // only single-codepoint sources feed the graph
		}
		target, err := parseCodepointSeq(parts[1])
		if err != nil {
			return err
		}
		if info := rep.Info[src[0]]; info != nil {
			info.Confusable = target
		}
		return nil
	})
}

// parseRadicalStrokes reads the Unihan kRSUnicode export: tab-separated
// "U+4E2D<tab>kRSUnicode<tab>2.3" records.
func (p *Parser) parseRadicalStrokes(rep *Repertoire, path string) error {
	return eachLine(path, func(line string) error {
		fields := strings.Split(line, "\t")
		if len(fields) < 3 || fields[1] != "kRSUnicode" {
			return nil
		}
		cp, err := parseCodepoint(strings.TrimPrefix(fields[0], "U+"))
		if err != nil {
			return err
		}
		value := strings.Fields(fields[2])[0]
		radStr, strokeStr, ok := strings.Cut(value, ".")
		if !ok {
			return apperr.Newf(apperr.KindInvalidInput, "radical-stroke %q", value)
		}
		radStr = strings.TrimRight(radStr, "'")
		radical, err := strconv.Atoi(radStr)
		if err != nil {
			return apperr.Newf(apperr.KindInvalidInput, "radical %q", radStr)
		}
		strokes, err := strconv.Atoi(strokeStr)
		if err != nil {
			return apperr.Newf(apperr.KindInvalidInput, "strokes %q", strokeStr)
		}
		if info := rep.Info[cp]; info != nil {
			info.Radical = radical
			info.Strokes = strokes
		}
		return nil
	})
}

// parseAllkeys reads the DUCET and records the first collation element's
// primary and secondary weights for single-codepoint entries.
func (p *Parser) parseAllkeys(rep *Repertoire) error {
	path := filepath.Join(p.dir, "allkeys.txt")
	return eachLine(path, func(line string) error {
		cpsStr, weights, ok := strings.Cut(line, ";")
		if !ok {
			return apperr.New(apperr.KindInvalidInput, "want 'codepoints ; elements'")
		}
		cps, err := parseCodepointSeq(cpsStr)
		if err != nil {
			return err
		}
		if len(cps) != 1 {
			return nil // contractions do not weight individual atoms
		}
		start := strings.IndexAny(weights, "[")
		if start < 0 {
			return apperr.New(apperr.KindInvalidInput, "no collation element")
		}
		end := strings.IndexByte(weights[start:], ']')
		if end < 0 {
			return apperr.New(apperr.KindInvalidInput, "unterminated collation element")
		}
		element := weights[start+1 : start+end]
		element = strings.TrimPrefix(element, "*")
		element = strings.TrimPrefix(element, ".")
		parts := strings.Split(element, ".")
		if len(parts) < 2 {
			return apperr.Newf(apperr.KindInvalidInput, "collation element %q", element)
		}
		primary, err := strconv.ParseUint(parts[0], 16, 16)
		if err != nil {
			return apperr.Newf(apperr.KindInvalidInput, "primary weight %q", parts[0])
		}
		secondary, err := strconv.ParseUint(parts[1], 16, 16)
		if err != nil {
			return apperr.Newf(apperr.KindInvalidInput, "secondary weight %q", parts[1])
		}
		if info := rep.Info[cps[0]]; info != nil {
			info.HasCollation = true
			info.UCAPrimary = uint16(primary)
			info.UCASecondary = uint16(secondary)
		}
		return nil
	})
}
