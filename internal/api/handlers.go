package api

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log"
	"mime"
	"net/http"
	"strconv"

	"github.com/lox/welltest/internal/editor"
	"github.com/lox/welltest/internal/export"
	"github.com/lox/welltest/internal/ingest"
	"github.com/lox/welltest/internal/models"
	"github.com/lox/welltest/internal/table"
)

type HealthStatus struct {
	Status  string `json:"status"`
	Rows    int    `json:"rows"`
	Columns int    `json:"columns"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := s.editor.Snapshot()
	writeJSON(w, http.StatusOK, HealthStatus{
		Status:  "ok",
		Rows:    len(snap.Rows),
		Columns: len(snap.Headers),
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	snap := s.editor.Snapshot()
	var buf bytes.Buffer
	if err := s.tmpl.ExecuteTemplate(&buf, "table.html", newTableView(snap)); err != nil {
		log.Printf("api: render table: %v", err)
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	buf.WriteTo(w)
}

func (s *Server) handleTable(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.editor.Snapshot())
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if err := s.editor.Clear(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleImport accepts either a multipart upload (field "file" plus optional
// settings fields) or a JSON ingest.Settings naming a path or URL to fetch.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	var (
		sum ingest.Summary
		err error
	)
	if mediaType == "multipart/form-data" {
		sum, err = s.importUpload(r)
	} else {
		settings := ingest.DefaultSettings("")
		if err := decodeJSON(r, &settings); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("decode settings: %w", err))
			return
		}
		sum, err = s.editor.Import(r.Context(), settings)
	}

	switch {
	case errors.Is(err, errBadUpload), errors.Is(err, ingest.ErrInvalidSettings):
		writeError(w, http.StatusBadRequest, err)
	case err != nil:
		writeError(w, http.StatusUnprocessableEntity, err)
	default:
		writeJSON(w, http.StatusOK, sum)
	}
}

var errBadUpload = errors.New("bad upload")

func (s *Server) importUpload(r *http.Request) (ingest.Summary, error) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return ingest.Summary{}, fmt.Errorf("%w: %v", errBadUpload, err)
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return ingest.Summary{}, fmt.Errorf("%w: %v", errBadUpload, err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return ingest.Summary{}, fmt.Errorf("read upload: %w", err)
	}

	settings, err := formSettings(r, header.Filename)
	if err != nil {
		return ingest.Summary{}, fmt.Errorf("%w: %v", errBadUpload, err)
	}
	return s.editor.ImportData(settings, data)
}

func formSettings(r *http.Request, filename string) (ingest.Settings, error) {
	s := ingest.DefaultSettings(filename)
	var err error
	if v := r.FormValue("encoding"); v != "" {
		if s.Encoding, err = ingest.ParseEncoding(v); err != nil {
			return s, err
		}
	}
	if v := r.FormValue("separator"); v != "" {
		if s.Separator, err = ingest.ParseSeparator(v); err != nil {
			return s, err
		}
	}
	if v := r.FormValue("start_row"); v != "" {
		if s.StartRow, err = strconv.Atoi(v); err != nil {
			return s, fmt.Errorf("start_row: %w", err)
		}
	}
	if v := r.FormValue("header_row"); v != "" {
		if s.HeaderRow, err = strconv.Atoi(v); err != nil {
			return s, fmt.Errorf("header_row: %w", err)
		}
	}
	if v := r.FormValue("use_header"); v != "" {
		if s.UseHeader, err = strconv.ParseBool(v); err != nil {
			return s, fmt.Errorf("use_header: %w", err)
		}
	}
	if v := r.FormValue("is_excel"); v != "" {
		if s.IsExcel, err = strconv.ParseBool(v); err != nil {
			return s, fmt.Errorf("is_excel: %w", err)
		}
	}
	return s, nil
}

func (s *Server) handleImports(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", v))
			return
		}
		limit = n
	}

	runs, err := s.editor.ImportHistory(limit)
	if errors.Is(err, editor.ErrNoProject) {
		writeError(w, http.StatusConflict, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, newImportRunViews(runs))
}

func (s *Server) handleDefineColumns(w http.ResponseWriter, r *http.Request) {
	var defs []models.ColumnDefinition
	if err := decodeJSON(r, &defs); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode definitions: %w", err))
		return
	}
	s.editor.DefineColumns(defs)
	writeJSON(w, http.StatusOK, s.editor.Snapshot())
}

type insertRequest struct {
	Position string `json:"position"`
	Current  *int   `json:"current"`
}

func (req insertRequest) parse() (editor.Position, int, error) {
	pos, err := editor.ParsePosition(req.Position)
	if err != nil {
		return pos, 0, err
	}
	current := -1
	if req.Current != nil {
		current = *req.Current
	}
	return pos, current, nil
}

type indexResponse struct {
	Index int `json:"index"`
}

func (s *Server) handleAddRow(w http.ResponseWriter, r *http.Request) {
	var req insertRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	pos, current, err := req.parse()
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusCreated, indexResponse{Index: s.editor.AddRow(pos, current)})
}

func (s *Server) handleAddColumn(w http.ResponseWriter, r *http.Request) {
	var req insertRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	pos, current, err := req.parse()
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusCreated, indexResponse{Index: s.editor.AddColumn(pos, current)})
}

type deleteRequest struct {
	Rows    []int `json:"rows,omitempty"`
	Columns []int `json:"columns,omitempty"`
}

type deleteResponse struct {
	Deleted int `json:"deleted"`
}

func (s *Server) handleDeleteRows(w http.ResponseWriter, r *http.Request) {
	var req deleteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, deleteResponse{Deleted: s.editor.DeleteRows(req.Rows)})
}

func (s *Server) handleDeleteColumns(w http.ResponseWriter, r *http.Request) {
	var req deleteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, deleteResponse{Deleted: s.editor.DeleteColumns(req.Columns)})
}

type cellRequest struct {
	Row    int    `json:"row"`
	Column int    `json:"column"`
	Value  string `json:"value"`
}

func (s *Server) handleSetCell(w http.ResponseWriter, r *http.Request) {
	var req cellRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.editor.SetCell(req.Row, req.Column, req.Value); err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTimeConvert(w http.ResponseWriter, r *http.Request) {
	cfg := models.DefaultTimeConversionConfig()
	if err := decodeJSON(r, &cfg); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode config: %w", err))
		return
	}
	if _, err := models.ParseTimeUnit(string(cfg.OutputUnit)); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeResult(w, s.editor.ConvertTime(cfg))
}

func (s *Server) handlePressureDrop(w http.ResponseWriter, r *http.Request) {
	writeResult(w, s.editor.PressureDrop())
}

func writeResult(w http.ResponseWriter, res models.CalculationResult) {
	status := http.StatusOK
	if !res.Success {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, res)
}

type searchResponse struct {
	Pattern string `json:"pattern"`
	Rows    []int  `json:"rows"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	rows := s.editor.Search(q)
	if rows == nil {
		rows = []int{}
	}
	writeJSON(w, http.StatusOK, searchResponse{Pattern: q, Rows: rows})
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	s.projectOp(w, s.editor.Save(r.Context()))
}

func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	s.projectOp(w, s.editor.LoadFromProject(r.Context()))
}

func (s *Server) projectOp(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, editor.ErrNoProject):
		writeError(w, http.StatusConflict, err)
	case err != nil:
		writeError(w, http.StatusInternalServerError, err)
	default:
		writeJSON(w, http.StatusOK, s.editor.Snapshot())
	}
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var buf bytes.Buffer
	err = s.editor.View(func(g *table.Grid, reg *table.Registry) error {
		return export.Write(&buf, format, g, reg)
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="table.%s"`, format))
	buf.WriteTo(w)
}

// decodeOptionalJSON decodes the body into v, treating an empty body as {}.
func decodeOptionalJSON(r *http.Request, v any) error {
	err := decodeJSON(r, v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
