package api_test

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/simplifiedchinese"

	"github.com/lox/welltest/internal/api"
	"github.com/lox/welltest/internal/editor"
	"github.com/lox/welltest/internal/store"

	_ "modernc.org/sqlite"
)

const gaugeCSV = "日期,时刻,压力\n2025-03-01,08:00:00,25.0\n2025-03-01,09:00:00,24.5\n2025-03-01,10:30:00,23.75\n"

func setupTestStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	s := store.New(db)
	if err := s.Migrate(); err != nil {
		t.Fatal(err)
	}
	return s
}

func newServer(t *testing.T) http.Handler {
	t.Helper()
	return api.NewServer(editor.New(setupTestStore(t), nil), ":0").Handler()
}

func do(t *testing.T, h http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body == nil {
		r = httptest.NewRequest(method, target, nil)
	} else {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		r = httptest.NewRequest(method, target, bytes.NewReader(b))
		r.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func upload(t *testing.T, h http.Handler, filename, content string, fields map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	fw.Write([]byte(content))
	mw.Close()

	r := httptest.NewRequest("POST", "/api/import", &buf)
	r.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
	return v
}

func loaded(t *testing.T) http.Handler {
	t.Helper()
	h := newServer(t)
	if w := upload(t, h, "gauge.csv", gaugeCSV, nil); w.Code != 200 {
		t.Fatalf("upload: %d %s", w.Code, w.Body.String())
	}
	return h
}

func column(snap editor.Snapshot, col int) []string {
	var out []string
	for _, r := range snap.Rows {
		out = append(out, r[col])
	}
	return out
}

func TestHealthEndpoint(t *testing.T) {
	t.Parallel()
	w := do(t, newServer(t), "GET", "/health", nil)
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"status":"ok"`) {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()
	h := loaded(t)
	w := do(t, h, "GET", "/metrics", nil)
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "welltest_imports_total") {
		t.Error("expected welltest_imports_total in metrics output")
	}
}

func TestIndexPage(t *testing.T) {
	t.Parallel()

	w := do(t, newServer(t), "GET", "/", nil)
	if w.Code != 200 || !strings.Contains(w.Body.String(), `class="empty"`) {
		t.Errorf("empty page: %d %s", w.Code, w.Body.String())
	}

	w = do(t, loaded(t), "GET", "/", nil)
	body := w.Body.String()
	if !strings.Contains(body, "<th>压力") || !strings.Contains(body, "<td>23.75</td>") {
		t.Errorf("table page missing data: %s", body)
	}

	if w := do(t, newServer(t), "GET", "/nope", nil); w.Code != 404 {
		t.Errorf("unknown path = %d, want 404", w.Code)
	}
}

func TestImportUpload(t *testing.T) {
	t.Parallel()
	h := newServer(t)

	w := upload(t, h, "gauge.txt", "Well X-1\nt\tp\n1\t2\n", map[string]string{
		"separator":  "tab",
		"header_row": "2",
		"start_row":  "3",
	})
	if w.Code != 200 {
		t.Fatalf("upload: %d %s", w.Code, w.Body.String())
	}
	sum := decode[map[string]any](t, w)
	if sum["rows"] != float64(1) || sum["columns"] != float64(2) || sum["format"] != "text" {
		t.Errorf("summary = %v", sum)
	}

	snap := decode[editor.Snapshot](t, do(t, h, "GET", "/api/table", nil))
	if !reflect.DeepEqual(snap.Headers, []string{"t", "p"}) {
		t.Errorf("Headers = %q", snap.Headers)
	}
}

func TestImportUpload_Excel(t *testing.T) {
	t.Parallel()
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	f.SetSheetRow(sheet, "A1", &[]any{"时刻", "压力"})
	f.SetSheetRow(sheet, "A2", &[]any{"08:00:00", 25})
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatal(err)
	}
	f.Close()

	h := newServer(t)
	w := upload(t, h, "gauge.xlsx", buf.String(), nil)
	if w.Code != 200 {
		t.Fatalf("upload: %d %s", w.Code, w.Body.String())
	}
	snap := decode[editor.Snapshot](t, do(t, h, "GET", "/api/table", nil))
	if !reflect.DeepEqual(snap.Rows, [][]string{{"08:00:00", "25"}}) {
		t.Errorf("Rows = %q", snap.Rows)
	}
}

func TestImportUpload_BadSettings(t *testing.T) {
	t.Parallel()
	h := newServer(t)

	if w := upload(t, h, "a.csv", "a\n1\n", map[string]string{"separator": "pipe"}); w.Code != 400 {
		t.Errorf("bad separator = %d, want 400", w.Code)
	}
	if w := upload(t, h, "a.csv", "a\n1\n", map[string]string{"start_row": "0"}); w.Code != 400 {
		t.Errorf("start_row 0 = %d, want 400", w.Code)
	}
}

func TestImportFromPath(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "gauge.csv")
	if err := os.WriteFile(path, []byte(gaugeCSV), 0o644); err != nil {
		t.Fatal(err)
	}
	h := newServer(t)

	w := do(t, h, "POST", "/api/import", map[string]any{"source": path})
	if w.Code != 200 {
		t.Fatalf("import: %d %s", w.Code, w.Body.String())
	}

	w = do(t, h, "POST", "/api/import", map[string]any{"source": filepath.Join(t.TempDir(), "missing.csv")})
	if w.Code != 422 {
		t.Errorf("missing file = %d, want 422", w.Code)
	}

	runs := decode[[]map[string]any](t, do(t, h, "GET", "/api/imports", nil))
	if len(runs) != 2 {
		t.Fatalf("import runs = %v", runs)
	}
}

func TestImportFromPath_SettingAliases(t *testing.T) {
	t.Parallel()
	semicolons := strings.ReplaceAll(gaugeCSV, ",", ";")
	gbk, err := simplifiedchinese.GBK.NewEncoder().Bytes([]byte(semicolons))
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "gauge.txt")
	if err := os.WriteFile(path, gbk, 0o644); err != nil {
		t.Fatal(err)
	}
	h := newServer(t)

	w := do(t, h, "POST", "/api/import", map[string]any{
		"source":    path,
		"encoding":  "GBK",
		"separator": ";",
	})
	if w.Code != 200 {
		t.Fatalf("import: %d %s", w.Code, w.Body.String())
	}

	snap := decode[editor.Snapshot](t, do(t, h, "GET", "/api/table", nil))
	if !reflect.DeepEqual(snap.Headers, []string{"日期", "时刻", "压力"}) {
		t.Errorf("Headers = %q", snap.Headers)
	}
	if len(snap.Rows) != 3 || !reflect.DeepEqual(snap.Rows[0], []string{"2025-03-01", "08:00:00", "25.0"}) {
		t.Errorf("Rows = %q", snap.Rows)
	}
}

func TestCalculations(t *testing.T) {
	t.Parallel()
	h := loaded(t)

	w := do(t, h, "PUT", "/api/columns", []map[string]any{
		{"name": "日期", "type": "date"},
		{"name": "时刻", "type": "time_of_day"},
		{"name": "压力", "type": "pressure", "unit": "MPa", "decimal_places": 3},
	})
	if w.Code != 200 {
		t.Fatalf("define columns: %d %s", w.Code, w.Body.String())
	}

	w = do(t, h, "POST", "/api/time-convert", map[string]any{
		"use_date_and_time": true,
		"date_column_index": 0,
		"time_column_index": 1,
		"output_unit":       "min",
	})
	if w.Code != 200 {
		t.Fatalf("time-convert: %d %s", w.Code, w.Body.String())
	}
	res := decode[map[string]any](t, w)
	if res["column_name"] != `时间\min` || res["processed_rows"] != float64(3) {
		t.Errorf("time-convert result = %v", res)
	}

	w = do(t, h, "POST", "/api/pressure-drop", nil)
	if w.Code != 200 {
		t.Fatalf("pressure-drop: %d %s", w.Code, w.Body.String())
	}

	snap := decode[editor.Snapshot](t, do(t, h, "GET", "/api/table", nil))
	if got := column(snap, 3); !reflect.DeepEqual(got, []string{"0.000", "60.000", "150.000"}) {
		t.Errorf("elapsed = %q", got)
	}
	if got := column(snap, 4); !reflect.DeepEqual(got, []string{"0.000", "0.500", "1.250"}) {
		t.Errorf("drop = %q", got)
	}
}

func TestCalculations_Failures(t *testing.T) {
	t.Parallel()

	w := do(t, newServer(t), "POST", "/api/pressure-drop", nil)
	if w.Code != 422 {
		t.Fatalf("empty table = %d, want 422", w.Code)
	}
	res := decode[map[string]any](t, w)
	if res["success"] != false || res["added_column_index"] != float64(-1) {
		t.Errorf("result = %v", res)
	}

	h := newServer(t)
	upload(t, h, "a.csv", "t,v\n1,2\n", nil)
	if w := do(t, h, "POST", "/api/pressure-drop", nil); w.Code != 422 {
		t.Errorf("no pressure column = %d, want 422", w.Code)
	}
	if w := do(t, h, "POST", "/api/time-convert", map[string]any{"output_unit": "days"}); w.Code != 400 {
		t.Errorf("bad unit = %d, want 400", w.Code)
	}
}

func TestRowAndColumnEditing(t *testing.T) {
	t.Parallel()
	h := loaded(t)

	w := do(t, h, "POST", "/api/rows", map[string]any{"position": "above", "current": 0})
	if w.Code != 201 || decode[map[string]int](t, w)["index"] != 0 {
		t.Fatalf("add row: %d %s", w.Code, w.Body.String())
	}
	w = do(t, h, "POST", "/api/rows", nil)
	if decode[map[string]int](t, w)["index"] != 4 {
		t.Errorf("append row: %s", w.Body.String())
	}

	w = do(t, h, "DELETE", "/api/rows", map[string]any{"rows": []int{0, 4, 4}})
	if decode[map[string]int](t, w)["deleted"] != 2 {
		t.Errorf("delete rows: %s", w.Body.String())
	}

	w = do(t, h, "POST", "/api/columns", map[string]any{"position": "right", "current": 0})
	if decode[map[string]int](t, w)["index"] != 1 {
		t.Errorf("add column: %s", w.Body.String())
	}
	if w := do(t, h, "PUT", "/api/cells", map[string]any{"row": 0, "column": 1, "value": "note"}); w.Code != 204 {
		t.Errorf("set cell = %d", w.Code)
	}
	if w := do(t, h, "PUT", "/api/cells", map[string]any{"row": 50, "column": 1, "value": "x"}); w.Code != 404 {
		t.Errorf("set missing cell = %d, want 404", w.Code)
	}

	snap := decode[editor.Snapshot](t, do(t, h, "GET", "/api/table", nil))
	if !reflect.DeepEqual(snap.Headers, []string{"日期", editor.NewColumnName, "时刻", "压力"}) {
		t.Errorf("Headers = %q", snap.Headers)
	}
	if len(snap.Rows) != 3 || snap.Rows[0][1] != "note" || len(snap.Definitions) != 4 {
		t.Errorf("snapshot = %+v", snap)
	}

	w = do(t, h, "DELETE", "/api/columns", map[string]any{"columns": []int{1}})
	if decode[map[string]int](t, w)["deleted"] != 1 {
		t.Errorf("delete columns: %s", w.Body.String())
	}

	if w := do(t, h, "POST", "/api/rows", map[string]any{"position": "sideways"}); w.Code != 400 {
		t.Errorf("bad position = %d, want 400", w.Code)
	}
}

func TestSearch(t *testing.T) {
	t.Parallel()
	h := loaded(t)

	res := decode[map[string]any](t, do(t, h, "GET", "/api/search?q=09:*", nil))
	if !reflect.DeepEqual(res["rows"], []any{float64(1)}) {
		t.Errorf("search = %v", res)
	}
	res = decode[map[string]any](t, do(t, h, "GET", "/api/search?q=nothing", nil))
	if !reflect.DeepEqual(res["rows"], []any{}) {
		t.Errorf("empty search = %v", res)
	}
}

func TestSaveAndLoad(t *testing.T) {
	t.Parallel()
	st := setupTestStore(t)
	h := api.NewServer(editor.New(st, nil), ":0").Handler()
	upload(t, h, "gauge.csv", gaugeCSV, nil)
	do(t, h, "PUT", "/api/columns", []map[string]any{
		{"name": "日期", "type": "date"},
		{"name": "时刻", "type": "time_of_day"},
		{"name": "压力", "type": "pressure", "unit": "MPa"},
	})

	if w := do(t, h, "POST", "/api/save", nil); w.Code != 200 {
		t.Fatalf("save: %d %s", w.Code, w.Body.String())
	}
	if w := do(t, h, "DELETE", "/api/rows", map[string]any{"rows": []int{0, 1, 2}}); w.Code != 200 {
		t.Fatalf("delete rows: %d", w.Code)
	}
	w := do(t, h, "POST", "/api/load", nil)
	if w.Code != 200 {
		t.Fatalf("load: %d %s", w.Code, w.Body.String())
	}
	snap := decode[editor.Snapshot](t, w)
	if len(snap.Rows) != 3 || snap.Definitions[2].Unit != "MPa" {
		t.Errorf("restored = %+v", snap)
	}
}

func TestClearTable_RemovesSavedTable(t *testing.T) {
	t.Parallel()
	st := setupTestStore(t)
	h := api.NewServer(editor.New(st, nil), ":0").Handler()
	upload(t, h, "gauge.csv", gaugeCSV, nil)
	if w := do(t, h, "POST", "/api/save", nil); w.Code != 200 {
		t.Fatalf("save: %d %s", w.Code, w.Body.String())
	}

	if w := do(t, h, "DELETE", "/api/table", nil); w.Code != 204 {
		t.Fatalf("clear: %d %s", w.Code, w.Body.String())
	}
	w := do(t, h, "POST", "/api/load", nil)
	if w.Code != 200 {
		t.Fatalf("load: %d %s", w.Code, w.Body.String())
	}
	if snap := decode[editor.Snapshot](t, w); len(snap.Rows) != 0 || len(snap.Headers) != 0 {
		t.Errorf("after clear and load = %+v", snap)
	}

	runs := decode[[]map[string]any](t, do(t, h, "GET", "/api/imports", nil))
	if len(runs) != 1 {
		t.Errorf("import runs after clear = %d, want 1", len(runs))
	}
}

func TestSave_NoProject(t *testing.T) {
	t.Parallel()
	h := api.NewServer(editor.New(nil, nil), ":0").Handler()
	if w := do(t, h, "POST", "/api/save", nil); w.Code != 409 {
		t.Errorf("save without project = %d, want 409", w.Code)
	}
}

func TestExport(t *testing.T) {
	t.Parallel()
	h := loaded(t)

	w := do(t, h, "GET", "/api/export?format=csv", nil)
	if w.Code != 200 || w.Body.String() != gaugeCSV {
		t.Errorf("csv export: %d %q", w.Code, w.Body.String())
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "table.csv") {
		t.Errorf("Content-Disposition = %q", cd)
	}

	w = do(t, h, "GET", "/api/export", nil)
	if !strings.HasPrefix(w.Body.String(), `[{"headers":["日期","时刻","压力"]}`) {
		t.Errorf("json export = %s", w.Body.String())
	}

	w = do(t, h, "GET", "/api/export?format=xlsx", nil)
	f, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	if err != nil {
		t.Fatalf("open exported workbook: %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows(f.GetSheetName(0))
	if err != nil || len(rows) != 4 {
		t.Errorf("xlsx rows = %q, %v", rows, err)
	}

	if w := do(t, h, "GET", "/api/export?format=pdf", nil); w.Code != 400 {
		t.Errorf("pdf export = %d, want 400", w.Code)
	}
}
