package table

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lox/welltest/internal/models"
)

// The persisted table is a JSON array: one {"headers": [...]} object
// followed by one {"row_data": [...]} object per row. Column semantics are
// not part of this format.

type headerElement struct {
	Headers []string `json:"headers"`
}

type rowElement struct {
	RowData []string `json:"row_data"`
}

var ErrNotArray = errors.New("table data is not a JSON array")

// Serialize encodes g in the persisted array format. A nil grid encodes as
// a table with no columns.
func Serialize(g *Grid) ([]byte, error) {
	headers := []string{}
	var rows [][]string
	if g != nil {
		headers = append(headers, g.headers...)
		rows = g.rows
	}

	elems := make([]any, 0, len(rows)+1)
	elems = append(elems, headerElement{Headers: headers})
	for _, row := range rows {
		elems = append(elems, rowElement{RowData: append([]string{}, row...)})
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(elems); err != nil {
		return nil, fmt.Errorf("encode table: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Deserialize replaces the contents of g and reg with the table in data.
// Every header gets a default Custom definition. Rows shorter than the
// header are padded with empty cells and longer rows widen the grid. If data
// is not a JSON array nothing is modified.
func Deserialize(data []byte, g *Grid, reg *Registry) error {
	var elems []json.RawMessage
	if err := json.Unmarshal(data, &elems); err != nil {
		return fmt.Errorf("%w: %v", ErrNotArray, err)
	}
	if elems == nil {
		return ErrNotArray
	}

	g.Clear()
	reg.Clear()
	if len(elems) == 0 {
		return nil
	}

	if headers, ok := textArrayField(elems[0], "headers"); ok {
		g.SetHeaders(headers)
		for _, h := range headers {
			reg.Append(models.NewColumnDefinition(h))
		}
	}

	for _, elem := range elems[1:] {
		cells, ok := textArrayField(elem, "row_data")
		if !ok {
			continue
		}
		g.AppendRow(cells)
	}
	return nil
}

// textArrayField reads key from a JSON object as a list of cell texts. It
// reports false when raw is not an object or lacks key.
func textArrayField(raw json.RawMessage, key string) ([]string, bool) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
		return nil, false
	}
	field, ok := obj[key]
	if !ok {
		return nil, false
	}
	var values []json.RawMessage
	if err := json.Unmarshal(field, &values); err != nil {
		return []string{}, true
	}
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = textOf(v)
	}
	return out, true
}

// textOf converts a scalar JSON value to cell text. Strings are unquoted,
// numbers and booleans keep their literal spelling, everything else is "".
func textOf(v json.RawMessage) string {
	v = bytes.TrimSpace(v)
	if len(v) == 0 {
		return ""
	}
	switch v[0] {
	case '"':
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return ""
		}
		return s
	case 't', 'f':
		return string(v)
	case 'n', '{', '[':
		return ""
	default:
		return string(v)
	}
}
