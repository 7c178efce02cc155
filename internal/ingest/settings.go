package ingest

import (
	"fmt"
	"net/url"
	"path"
	"strings"
)

type Encoding string

const (
	UTF8      Encoding = "utf-8"
	GBK       Encoding = "gbk"
	ISO8859_1 Encoding = "iso-8859-1"
)

func ParseEncoding(s string) (Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "utf-8", "utf8":
		return UTF8, nil
	case "gbk", "gb2312", "gbk/gb2312":
		return GBK, nil
	case "iso-8859-1", "latin1", "iso8859-1":
		return ISO8859_1, nil
	}
	return "", fmt.Errorf("unknown encoding %q", s)
}

type Separator string

const (
	Comma     Separator = "comma"
	Tab       Separator = "tab"
	Space     Separator = "space"
	Semicolon Separator = "semicolon"
)

func ParseSeparator(s string) (Separator, error) {
	// The literal blank separators must be matched before trimming.
	switch s {
	case "\t":
		return Tab, nil
	case " ":
		return Space, nil
	}
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "comma", ",":
		return Comma, nil
	case "tab", `\t`:
		return Tab, nil
	case "space":
		return Space, nil
	case "semicolon", ";":
		return Semicolon, nil
	}
	return "", fmt.Errorf("unknown separator %q", s)
}

func (s Separator) rune() rune {
	switch s {
	case Tab:
		return '\t'
	case Space:
		return ' '
	case Semicolon:
		return ';'
	default:
		return ','
	}
}

// Settings describes how to turn a source file into a table. Row numbers are
// 1-based, as shown to users.
type Settings struct {
	Source    string    `json:"source"`
	Encoding  Encoding  `json:"encoding"`
	Separator Separator `json:"separator"`
	StartRow  int       `json:"start_row"`
	UseHeader bool      `json:"use_header"`
	HeaderRow int       `json:"header_row"`
	IsExcel   bool      `json:"is_excel"`
}

// Canonical returns s with Encoding and Separator replaced by the constants
// their aliases stand for. Unrecognized values are kept for ValidateSettings
// to flag.
func (s Settings) Canonical() Settings {
	if enc, err := ParseEncoding(string(s.Encoding)); err == nil {
		s.Encoding = enc
	}
	if sep, err := ParseSeparator(string(s.Separator)); err == nil {
		s.Separator = sep
	}
	return s
}

// DefaultSettings reads source from the first line with a header on line 1.
func DefaultSettings(source string) Settings {
	return Settings{
		Source:    source,
		Encoding:  UTF8,
		Separator: Comma,
		StartRow:  1,
		UseHeader: true,
		HeaderRow: 1,
		IsExcel:   IsSpreadsheet(source),
	}
}

// Format names the parser a source needs.
type Format string

const (
	FormatText  Format = "text"
	FormatExcel Format = "excel"
	FormatJSON  Format = "json"
)

// DetectFormat picks the format from the settings and the source extension.
func DetectFormat(s Settings) Format {
	switch {
	case s.IsExcel || IsSpreadsheet(s.Source):
		return FormatExcel
	case strings.EqualFold(extension(s.Source), ".json"):
		return FormatJSON
	default:
		return FormatText
	}
}

func IsSpreadsheet(source string) bool {
	ext := strings.ToLower(extension(source))
	return ext == ".xls" || ext == ".xlsx"
}

func extension(source string) string {
	if u, err := url.Parse(source); err == nil && u.Scheme != "" && len(u.Scheme) > 1 {
		return path.Ext(u.Path)
	}
	return path.Ext(strings.ReplaceAll(source, `\`, "/"))
}

// Summary describes a completed import.
type Summary struct {
	Source    string `json:"source"`
	Format    Format `json:"format"`
	Rows      int    `json:"rows"`
	Columns   int    `json:"columns"`
	SizeBytes int    `json:"size_bytes"`
}
