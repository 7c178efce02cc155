package ingest

import (
	"errors"
	"fmt"
	"strings"
)

const (
	FlagStartRowInvalid  = "start_row_invalid"
	FlagHeaderRowInvalid = "header_row_invalid"
	FlagHeaderAfterStart = "header_after_start"
	FlagEncodingUnknown  = "encoding_unknown"
	FlagSeparatorUnknown = "separator_unknown"
	FlagSourceEmpty      = "source_empty"
)

var ErrInvalidSettings = errors.New("invalid import settings")

// ValidateSettings returns the problems found in s. A header line below the
// first data line is flagged but still importable; the header line is then
// also skipped as data.
func ValidateSettings(s Settings) []string {
	var flags []string

	if strings.TrimSpace(s.Source) == "" {
		flags = append(flags, FlagSourceEmpty)
	}
	if s.StartRow < 1 {
		flags = append(flags, FlagStartRowInvalid)
	}
	if s.UseHeader && s.HeaderRow < 1 {
		flags = append(flags, FlagHeaderRowInvalid)
	}
	if s.UseHeader && s.HeaderRow > s.StartRow && s.StartRow >= 1 {
		flags = append(flags, FlagHeaderAfterStart)
	}
	if _, err := ParseEncoding(string(s.Encoding)); err != nil {
		flags = append(flags, FlagEncodingUnknown)
	}
	if _, err := ParseSeparator(string(s.Separator)); err != nil {
		flags = append(flags, FlagSeparatorUnknown)
	}

	return flags
}

// Check fails on every flag except FlagHeaderAfterStart.
func (s Settings) Check() error {
	var fatal []string
	for _, f := range ValidateSettings(s) {
		if f != FlagHeaderAfterStart {
			fatal = append(fatal, f)
		}
	}
	if len(fatal) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidSettings, strings.Join(fatal, ", "))
	}
	return nil
}
