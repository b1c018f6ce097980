package bulkload

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"

	"github.com/hartonomous/substrate/internal/apperr"
)

// Mode selects the COPY framing. It is fixed at construction and cannot
// change mid-stream.
type Mode int

const (
	// Binary is the length-prefixed big-endian COPY framing.
	Binary Mode = iota
	// Text is the tab-separated escaped-text COPY framing.
	Text
)

func (m Mode) String() string {
	if m == Text {
		return "text"
	}
	return "binary"
}

// ParseMode maps a config string to a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "binary", "":
		return Binary, nil
	case "text":
		return Text, nil
	default:
		return Binary, apperr.Newf(apperr.KindInvalidInput, "unknown bulk loader mode %q", s)
	}
}

// framer turns rows into COPY stream bytes. The two variants are a closed
// set, so the loader holds the sum type rather than an open interface.
type framer interface {
	header(buf *bytes.Buffer)
	row(buf *bytes.Buffer, values []any) error
	trailer(buf *bytes.Buffer)
	copyOptions() string
}

func framerFor(m Mode) framer {
	if m == Text {
		return textFramer{}
	}
	return binaryFramer{}
}

// binaryFramer implements the PGCOPY binary framing: signature header, two
// 4-byte flag/extension fields, per-row 2-byte field count, per-field 4-byte
// big-endian length with −1 for NULL, and a −1 field-count trailer.
type binaryFramer struct{}

var binarySignature = []byte("PGCOPY\n\377\r\n\x00")

func (binaryFramer) header(buf *bytes.Buffer) {
	buf.Write(binarySignature)
	var flags [8]byte // flags and header extension length, both zero
	buf.Write(flags[:])
}

func (binaryFramer) row(buf *bytes.Buffer, values []any) error {
	var n [2]byte
	binary.BigEndian.PutUint16(n[:], uint16(len(values)))
	buf.Write(n[:])
	for i, v := range values {
		if err := writeBinaryField(buf, v); err != nil {
			return apperr.Wrap(apperr.KindInvalidInput, fmt.Sprintf("field %d", i), err)
		}
	}
	return nil
}

func writeBinaryField(buf *bytes.Buffer, v any) error {
	writeLen := func(n int) {
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], uint32(int32(n)))
		buf.Write(b[:])
	}
	switch x := v.(type) {
	case nil:
		writeLen(-1)
	case []byte:
		writeLen(len(x))
		buf.Write(x)
	case int64:
		writeLen(8)
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], uint64(x))
		buf.Write(b[:])
	case float64:
		writeLen(8)
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], math.Float64bits(x))
		buf.Write(b[:])
	case string:
		writeLen(len(x))
		buf.WriteString(x)
	case bool:
		writeLen(1)
		if x {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
	default:
		return fmt.Errorf("unsupported value type %T", v)
	}
	return nil
}

func (binaryFramer) trailer(buf *bytes.Buffer) {
	buf.Write([]byte{0xFF, 0xFF})
}

func (binaryFramer) copyOptions() string { return "WITH (FORMAT binary)" }

// textFramer implements the escaped-text framing: tab-separated fields,
// newline-terminated rows, \N for NULL, standard backslash escapes.
type textFramer struct{}

func (textFramer) header(buf *bytes.Buffer) {}

func (textFramer) row(buf *bytes.Buffer, values []any) error {
	for i, v := range values {
		if i > 0 {
			buf.WriteByte('\t')
		}
		if err := writeTextField(buf, v); err != nil {
			return apperr.Wrap(apperr.KindInvalidInput, fmt.Sprintf("field %d", i), err)
		}
	}
	buf.WriteByte('\n')
	return nil
}

func writeTextField(buf *bytes.Buffer, v any) error {
	switch x := v.(type) {
	case nil:
		buf.WriteString(`\N`)
	case []byte:
		// bytea hex form; the backslash itself is escaped for COPY text.
		buf.WriteString(`\\x`)
		const hex = "0123456789abcdef"
		for _, c := range x {
			buf.WriteByte(hex[c>>4])
			buf.WriteByte(hex[c&0xF])
		}
	case int64:
		buf.WriteString(strconv.FormatInt(x, 10))
	case float64:
		buf.WriteString(strconv.FormatFloat(x, 'g', -1, 64))
	case string:
		escapeText(buf, x)
	case bool:
		if x {
			buf.WriteByte('t')
		} else {
			buf.WriteByte('f')
		}
	default:
		return fmt.Errorf("unsupported value type %T", v)
	}
	return nil
}

func escapeText(buf *bytes.Buffer, s string) {
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\':
			buf.WriteString(`\\`)
		case '\t':
			buf.WriteString(`\t`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		default:
			buf.WriteByte(s[i])
		}
	}
}

func (textFramer) trailer(buf *bytes.Buffer) {}

func (textFramer) copyOptions() string { return "WITH (FORMAT text)" }
