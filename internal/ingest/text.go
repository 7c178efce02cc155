package ingest

import (
	"encoding/csv"
	"fmt"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/unicode"
)

// Table is a parsed source before it becomes an editable grid.
type Table struct {
	Headers []string
	Rows    [][]string
}

// Width is the widest of the header and every row.
func (t *Table) Width() int {
	w := len(t.Headers)
	for _, r := range t.Rows {
		if len(r) > w {
			w = len(r)
		}
	}
	return w
}

func decoder(enc Encoding) *encoding.Decoder {
	switch enc {
	case GBK:
		return simplifiedchinese.GBK.NewDecoder()
	case ISO8859_1:
		return charmap.ISO8859_1.NewDecoder()
	default:
		return unicode.UTF8BOM.NewDecoder()
	}
}

// ParseText splits delimited text into a table according to s.
func ParseText(data []byte, s Settings) (*Table, error) {
	s = s.Canonical()
	decoded, err := decoder(s.Encoding).Bytes(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.Encoding, err)
	}

	lines := strings.Split(string(decoded), "\n")
	return collect(len(lines), s, func(i int) ([]string, bool, error) {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			return nil, false, nil
		}
		fields, err := splitLine(line, s.Separator)
		if err != nil {
			return nil, false, fmt.Errorf("line %d: %w", i+1, err)
		}
		return fields, true, nil
	})
}

// collect walks n source lines, taking the header line and every line from
// StartRow on. read returns false for lines that should be ignored.
func collect(n int, s Settings, read func(i int) ([]string, bool, error)) (*Table, error) {
	t := &Table{}
	headerFound := false
	startIdx, headerIdx := s.StartRow-1, s.HeaderRow-1
	for i := 0; i < n; i++ {
		isHeader := s.UseHeader && i == headerIdx
		if i < startIdx && !isHeader {
			continue
		}
		fields, ok, err := read(i)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}

		if isHeader {
			t.Headers = fields
			headerFound = true
		} else if i >= startIdx {
			t.Rows = append(t.Rows, fields)
		}
	}

	if !headerFound || len(t.Headers) == 0 {
		t.Headers = defaultHeaders(t.Width())
	}
	return t, nil
}

// splitLine breaks one line into trimmed fields with one pair of
// surrounding double quotes removed. Space-separated lines treat any run of
// blanks as one separator.
func splitLine(line string, sep Separator) ([]string, error) {
	var fields []string
	if sep == Space {
		fields = strings.Fields(line)
	} else {
		r := csv.NewReader(strings.NewReader(line))
		r.Comma = sep.rune()
		r.FieldsPerRecord = -1
		r.LazyQuotes = true
		rec, err := r.Read()
		if err != nil {
			return nil, err
		}
		fields = rec
	}
	for i, f := range fields {
		fields[i] = unquote(strings.TrimSpace(f))
	}
	return fields, nil
}

func unquote(f string) string {
	if len(f) >= 2 && strings.HasPrefix(f, `"`) && strings.HasSuffix(f, `"`) {
		return f[1 : len(f)-1]
	}
	return f
}

func defaultHeaders(n int) []string {
	headers := make([]string, n)
	for i := range headers {
		headers[i] = fmt.Sprintf("Col %d", i+1)
	}
	return headers
}
