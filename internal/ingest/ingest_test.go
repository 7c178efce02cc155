package ingest

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/simplifiedchinese"
)

func TestParseText(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		settings    func(s *Settings)
		wantHeaders []string
		wantRows    [][]string
	}{
		{
			name:        "header and rows",
			input:       "date,time,pressure\n2025-01-01,10:00:00,100\n2025-01-01,11:00:00,90\n",
			wantHeaders: []string{"date", "time", "pressure"},
			wantRows:    [][]string{{"2025-01-01", "10:00:00", "100"}, {"2025-01-01", "11:00:00", "90"}},
		},
		{
			name:        "crlf, blank lines and quotes",
			input:       "\"a\",\"b\"\r\n\r\n  \"x, y\", 2 \r\n",
			wantHeaders: []string{"a", "b"},
			wantRows:    [][]string{{"x, y", "2"}},
		},
		{
			name:        "no header gives default names",
			input:       "1,2\n3,4,5\n",
			settings:    func(s *Settings) { s.UseHeader = false },
			wantHeaders: []string{"Col 1", "Col 2", "Col 3"},
			wantRows:    [][]string{{"1", "2"}, {"3", "4", "5"}},
		},
		{
			name:  "header below preamble",
			input: "Well: X-1\nGauge: 42\ntime\tp\n10:00\t5\n10:05\t4.5\n",
			settings: func(s *Settings) {
				s.Separator = Tab
				s.HeaderRow = 3
				s.StartRow = 4
			},
			wantHeaders: []string{"time", "p"},
			wantRows:    [][]string{{"10:00", "5"}, {"10:05", "4.5"}},
		},
		{
			name:        "space separated collapses runs",
			input:       "t   p\n1   2\n",
			settings:    func(s *Settings) { s.Separator = Space },
			wantHeaders: []string{"t", "p"},
			wantRows:    [][]string{{"1", "2"}},
		},
		{
			name:        "semicolon",
			input:       "a;b\n1,5;2\n",
			settings:    func(s *Settings) { s.Separator = Semicolon },
			wantHeaders: []string{"a", "b"},
			wantRows:    [][]string{{"1,5", "2"}},
		},
		{
			name:        "utf-8 bom stripped",
			input:       "\ufeffname\nv\n",
			wantHeaders: []string{"name"},
			wantRows:    [][]string{{"v"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := DefaultSettings("data.csv")
			if tt.settings != nil {
				tt.settings(&s)
			}
			got, err := ParseText([]byte(tt.input), s)
			if err != nil {
				t.Fatalf("ParseText: %v", err)
			}
			if !reflect.DeepEqual(got.Headers, tt.wantHeaders) {
				t.Errorf("Headers = %q, want %q", got.Headers, tt.wantHeaders)
			}
			if !reflect.DeepEqual(got.Rows, tt.wantRows) {
				t.Errorf("Rows = %q, want %q", got.Rows, tt.wantRows)
			}
		})
	}
}

func TestParseText_GBK(t *testing.T) {
	encoded, err := simplifiedchinese.GBK.NewEncoder().Bytes([]byte("时间,压力\n10:00,5\n"))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	s := DefaultSettings("data.txt")
	s.Encoding = GBK

	got, err := ParseText(encoded, s)
	if err != nil {
		t.Fatalf("ParseText: %v", err)
	}
	if !reflect.DeepEqual(got.Headers, []string{"时间", "压力"}) {
		t.Errorf("Headers = %q", got.Headers)
	}
}

func TestParseText_SettingAliases(t *testing.T) {
	gbk, err := simplifiedchinese.GBK.NewEncoder().Bytes([]byte("时间;压力\n10:00;5\n"))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	tests := []struct {
		name      string
		input     []byte
		encoding  Encoding
		separator Separator
	}{
		{"semicolon literal", []byte("时间;压力\n10:00;5\n"), "utf8", ";"},
		{"tab literal", []byte("时间\t压力\n10:00\t5\n"), "UTF-8", "\t"},
		{"space literal", []byte("时间 压力\n10:00   5\n"), "", " "},
		{"gbk upper case", gbk, "GBK", "Semicolon"},
		{"gb2312", gbk, "gb2312", ";"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := DefaultSettings("data.txt")
			s.Encoding, s.Separator = tt.encoding, tt.separator
			if err := s.Check(); err != nil {
				t.Fatalf("Check: %v", err)
			}

			got, err := ParseText(tt.input, s)
			if err != nil {
				t.Fatalf("ParseText: %v", err)
			}
			if !reflect.DeepEqual(got.Headers, []string{"时间", "压力"}) {
				t.Errorf("Headers = %q", got.Headers)
			}
			if !reflect.DeepEqual(got.Rows, [][]string{{"10:00", "5"}}) {
				t.Errorf("Rows = %q", got.Rows)
			}
		})
	}
}

func TestCanonical(t *testing.T) {
	s := Settings{Encoding: "latin1", Separator: " "}.Canonical()
	if s.Encoding != ISO8859_1 || s.Separator != Space {
		t.Errorf("Canonical = %q, %q", s.Encoding, s.Separator)
	}

	s = Settings{Encoding: "ebcdic", Separator: "|"}.Canonical()
	if s.Encoding != "ebcdic" || s.Separator != "|" {
		t.Errorf("unknown values changed: %q, %q", s.Encoding, s.Separator)
	}
}

func TestParseExcel(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	f.SetSheetRow(sheet, "A1", &[]any{"日期", "时刻", "压力"})
	f.SetSheetRow(sheet, "A2", &[]any{"2025-01-01", "10:00:00", 100})
	f.SetSheetRow(sheet, "A3", &[]any{"2025-01-01", "11:00:00", 95.5})

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatalf("write workbook: %v", err)
	}

	s := DefaultSettings("gauge.xlsx")
	if DetectFormat(s) != FormatExcel {
		t.Fatalf("DetectFormat = %s, want excel", DetectFormat(s))
	}
	got, err := Parse(buf.Bytes(), s)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !reflect.DeepEqual(got.Headers, []string{"日期", "时刻", "压力"}) {
		t.Errorf("Headers = %q", got.Headers)
	}
	want := [][]string{{"2025-01-01", "10:00:00", "100"}, {"2025-01-01", "11:00:00", "95.5"}}
	if !reflect.DeepEqual(got.Rows, want) {
		t.Errorf("Rows = %q, want %q", got.Rows, want)
	}
}

func TestParseExcel_NotAWorkbook(t *testing.T) {
	if _, err := ParseExcel([]byte("plain text"), DefaultSettings("x.xls")); err == nil {
		t.Fatal("expected error for non-xlsx data")
	}
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		source string
		want   Format
	}{
		{"data.csv", FormatText},
		{"data.TXT", FormatText},
		{"book.XLSX", FormatExcel},
		{"old.xls", FormatExcel},
		{"project.json", FormatJSON},
		{"ftp://logger.local/exports/run1.xlsx", FormatExcel},
		{`C:\data\run.json`, FormatJSON},
	}
	for _, tt := range tests {
		if got := DetectFormat(Settings{Source: tt.source}); got != tt.want {
			t.Errorf("DetectFormat(%q) = %s, want %s", tt.source, got, tt.want)
		}
	}
}

func TestParseSettingsValues(t *testing.T) {
	if enc, err := ParseEncoding("GBK/GB2312"); err != nil || enc != GBK {
		t.Errorf("ParseEncoding = %v, %v", enc, err)
	}
	if _, err := ParseEncoding("ebcdic"); err == nil {
		t.Error("expected error for unknown encoding")
	}
	if sep, err := ParseSeparator("tab"); err != nil || sep != Tab {
		t.Errorf("ParseSeparator = %v, %v", sep, err)
	}
	if _, err := ParseSeparator("auto"); err == nil {
		t.Error("separator detection is not supported")
	}
}

func TestFetch_Local(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.csv")
	if err := os.WriteFile(path, []byte("a\n1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	body, err := NewFetcher().Fetch(context.Background(), path)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(body) != "a\n1\n" {
		t.Errorf("body = %q", body)
	}
}

func TestFetch_HTTPRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		if !strings.HasPrefix(r.Header.Get("User-Agent"), "welltest/") {
			t.Errorf("User-Agent = %q", r.Header.Get("User-Agent"))
		}
		w.Write([]byte("t,p\n"))
	}))
	defer srv.Close()

	f := NewFetcher()
	f.maxElapsedTime = 10 * time.Second
	body, err := f.Fetch(context.Background(), srv.URL+"/run.csv")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(body) != "t,p\n" {
		t.Errorf("body = %q", body)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
}

func TestFetch_HTTPNotFoundIsPermanent(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	if _, err := NewFetcher().Fetch(context.Background(), srv.URL+"/missing.csv"); err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestFetch_UnsupportedScheme(t *testing.T) {
	if _, err := NewFetcher().Fetch(context.Background(), "s3://bucket/key.csv"); err == nil {
		t.Fatal("expected error")
	}
}

func TestValidateSettings(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(s *Settings)
		want    []string
		wantErr bool
	}{
		{"defaults", func(s *Settings) {}, nil, false},
		{"zero start row", func(s *Settings) { s.StartRow = 0 }, []string{FlagStartRowInvalid}, true},
		{"header row ignored without header", func(s *Settings) { s.UseHeader = false; s.HeaderRow = 0 }, nil, false},
		{"header after start", func(s *Settings) { s.HeaderRow = 3 }, []string{FlagHeaderAfterStart}, false},
		{"unknown separator", func(s *Settings) { s.Separator = "pipe" }, []string{FlagSeparatorUnknown}, true},
		{"empty source", func(s *Settings) { s.Source = " " }, []string{FlagSourceEmpty}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := DefaultSettings("run.csv")
			tt.mutate(&s)
			if got := ValidateSettings(s); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ValidateSettings = %v, want %v", got, tt.want)
			}
			if err := s.Check(); (err != nil) != tt.wantErr {
				t.Errorf("Check() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

type countingImporter struct {
	calls atomic.Int32
}

func (c *countingImporter) Import(ctx context.Context, s Settings) (Summary, error) {
	c.calls.Add(1)
	return Summary{Source: s.Source}, nil
}

func TestScheduler_ImportsImmediatelyAndStops(t *testing.T) {
	imp := &countingImporter{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		NewScheduler(imp, DefaultSettings("ftp://logger/run.csv"), time.Hour).Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for imp.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	if imp.calls.Load() != 1 {
		t.Errorf("imports = %d, want 1", imp.calls.Load())
	}
}
