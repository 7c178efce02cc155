package table

import (
	"strconv"
	"strings"
)

// Grid is a rectangular table of text cells with one header per column.
// Every row always holds exactly ColumnCount cells.
type Grid struct {
	headers []string
	rows    [][]string
}

func NewGrid(headers ...string) *Grid {
	g := &Grid{}
	g.SetHeaders(headers)
	return g
}

func (g *Grid) RowCount() int    { return len(g.rows) }
func (g *Grid) ColumnCount() int { return len(g.headers) }

// Cell returns the text at (row, col), or "" when either index is out of range.
func (g *Grid) Cell(row, col int) string {
	if row < 0 || row >= len(g.rows) || col < 0 || col >= len(g.headers) {
		return ""
	}
	return g.rows[row][col]
}

// SetCell writes text at (row, col). Out-of-range writes are ignored and
// reported as false.
func (g *Grid) SetCell(row, col int, text string) bool {
	if row < 0 || row >= len(g.rows) || col < 0 || col >= len(g.headers) {
		return false
	}
	g.rows[row][col] = text
	return true
}

func (g *Grid) Header(col int) string {
	if col < 0 || col >= len(g.headers) {
		return ""
	}
	return g.headers[col]
}

func (g *Grid) SetHeader(col int, name string) bool {
	if col < 0 || col >= len(g.headers) {
		return false
	}
	g.headers[col] = name
	return true
}

func (g *Grid) Headers() []string {
	return append([]string(nil), g.headers...)
}

// SetHeaders replaces the leading headers, widening the grid when more
// labels than columns are given. Columns beyond the labels keep their
// current header.
func (g *Grid) SetHeaders(labels []string) {
	g.widen(len(labels))
	copy(g.headers, labels)
}

// Row returns a copy of one row.
func (g *Grid) Row(row int) []string {
	if row < 0 || row >= len(g.rows) {
		return nil
	}
	return append([]string(nil), g.rows[row]...)
}

// Rows returns a deep copy of all rows.
func (g *Grid) Rows() [][]string {
	out := make([][]string, len(g.rows))
	for i, r := range g.rows {
		out[i] = append([]string(nil), r...)
	}
	return out
}

// AppendRow adds a row at the end. Short rows are padded with empty cells;
// long rows widen the grid.
func (g *Grid) AppendRow(cells []string) {
	g.InsertRow(len(g.rows), cells)
}

// InsertRow inserts a row before index at (clamped to [0, RowCount]).
func (g *Grid) InsertRow(at int, cells []string) {
	g.widen(len(cells))
	row := make([]string, len(g.headers))
	copy(row, cells)

	at = clamp(at, 0, len(g.rows))
	g.rows = append(g.rows, nil)
	copy(g.rows[at+1:], g.rows[at:])
	g.rows[at] = row
}

func (g *Grid) RemoveRow(at int) bool {
	if at < 0 || at >= len(g.rows) {
		return false
	}
	g.rows = append(g.rows[:at], g.rows[at+1:]...)
	return true
}

// InsertColumn inserts an empty column before index at (clamped to
// [0, ColumnCount]) and returns the index actually used.
func (g *Grid) InsertColumn(at int) int {
	at = clamp(at, 0, len(g.headers))
	g.headers = insertString(g.headers, at, strconv.Itoa(at+1))
	for i := range g.rows {
		g.rows[i] = insertString(g.rows[i], at, "")
	}
	return at
}

// AppendColumn adds an empty column named name and returns its index.
func (g *Grid) AppendColumn(name string) int {
	at := g.InsertColumn(len(g.headers))
	g.headers[at] = name
	return at
}

func (g *Grid) RemoveColumn(at int) bool {
	if at < 0 || at >= len(g.headers) {
		return false
	}
	g.headers = append(g.headers[:at], g.headers[at+1:]...)
	for i := range g.rows {
		g.rows[i] = append(g.rows[i][:at], g.rows[i][at+1:]...)
	}
	return true
}

// Clear drops every row and column.
func (g *Grid) Clear() {
	g.headers = nil
	g.rows = nil
}

// Match returns the indices of rows where any cell matches the wildcard
// pattern, case-insensitively. An empty pattern matches every row.
func (g *Grid) Match(pattern string) []int {
	var out []int
	pattern = strings.ToLower(pattern)
	for i, row := range g.rows {
		if pattern == "" {
			out = append(out, i)
			continue
		}
		for _, cell := range row {
			if wildcardContains(strings.ToLower(cell), pattern) {
				out = append(out, i)
				break
			}
		}
	}
	return out
}

// widen grows the grid to n columns. Unnamed columns are labelled with
// their 1-based position.
func (g *Grid) widen(n int) {
	for len(g.headers) < n {
		g.headers = append(g.headers, strconv.Itoa(len(g.headers)+1))
	}
	for i, row := range g.rows {
		for len(row) < len(g.headers) {
			row = append(row, "")
		}
		g.rows[i] = row
	}
}

func insertString(s []string, at int, v string) []string {
	s = append(s, "")
	copy(s[at+1:], s[at:])
	s[at] = v
	return s
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// wildcardContains reports whether some substring of s matches pattern,
// where '*' matches any run and '?' any single rune.
func wildcardContains(s, pattern string) bool {
	return wildcardMatch([]rune(s), []rune("*"+pattern+"*"))
}

func wildcardMatch(s, p []rune) bool {
	si, pi := 0, 0
	star, mark := -1, 0
	for si < len(s) {
		switch {
		case pi < len(p) && (p[pi] == '?' || p[pi] == s[si]):
			si++
			pi++
		case pi < len(p) && p[pi] == '*':
			star = pi
			mark = si
			pi++
		case star >= 0:
			pi = star + 1
			mark++
			si = mark
		default:
			return false
		}
	}
	for pi < len(p) && p[pi] == '*' {
		pi++
	}
	return pi == len(p)
}
