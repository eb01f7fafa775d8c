package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"regiondb/pkg/memstore"
	"regiondb/pkg/region"
)

const (
	contentTypeJSON        = "application/json"
	defaultHTTPPort        = "8080"
	defaultShutdownTimeout = time.Second * 5
)

type iRegions interface {
	Add(startRow []byte) (*region.Region, error)
	Locate(row []byte) (*region.Region, error)
	StartRows() [][]byte
}

type iMetrics interface {
	Snapshot() (counters, gauges map[string]float64)
}

// Server exposes the region API over HTTP.
type Server struct {
	regions    iRegions
	metrics    iMetrics
	scanners   *scannerRegistry
	httpServer *http.Server
	URL        string
	addr       string
}

// NewServer creates a new server instance. metrics may be nil.
func NewServer(regions iRegions, metrics iMetrics, port string) *Server {
	if port == "" {
		port = defaultHTTPPort
	}
	return &Server{
		regions:  regions,
		metrics:  metrics,
		scanners: newScannerRegistry(),
		URL:      "http://localhost:" + port,
		addr:     ":" + port,
	}
}

// Start starts the server
func (s *Server) Start() error {
	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Stop stops the server
func (s *Server) Stop() error {
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
		defer cancel()

		if err := s.httpServer.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown HTTP server: %w", err)
		}
	}
	return nil
}

// createRouter builds chi router
func (s *Server) createRouter() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", s.handleHealth)
	r.Get("/metrics", s.handleMetrics)

	r.Put("/api/cell", s.handlePut)
	r.Get("/api/cell", s.handleGet)
	r.Delete("/api/cell", s.handleDelete)

	r.Get("/api/row", s.handleGetRow)
	r.Get("/api/row/closest", s.handleClosestRow)

	r.Post("/api/scanner", s.handleOpenScanner)
	r.Get("/api/scanner/{id}/next", s.handleScannerNext)
	r.Delete("/api/scanner/{id}", s.handleCloseScanner)

	r.Post("/api/regions", s.handleAddRegion)
	r.Get("/api/regions", s.handleListRegions)

	return r
}

func (s *Server) startHTTPServer() error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.createRouter(),
		ReadHeaderTimeout: time.Second,
	}

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	slog.Info("HTTP server started", "addr", s.URL)
	return nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Warn("Error encoding response", "error", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, NewOKResponse())
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	var b strings.Builder
	b.WriteString("# RegionDB Metrics\n")
	if s.metrics != nil {
		counters, gauges := s.metrics.Snapshot()
		for _, series := range sortedSeries(counters) {
			fmt.Fprintf(&b, "%s %v\n", series, counters[series])
		}
		for _, series := range sortedSeries(gauges) {
			fmt.Fprintf(&b, "%s %v\n", series, gauges[series])
		}
	}
	if _, err := w.Write([]byte(b.String())); err != nil {
		slog.Warn("Failed to write metrics response", "error", err)
	}
}

func sortedSeries(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// versionParam parses an optional version. Absent means "now" for writes and
// "newest" for reads.
func versionParam(raw string, fallback int64) (int64, error) {
	if raw == "" {
		return fallback, nil
	}
	return strconv.ParseInt(raw, 10, 64)
}

func (s *Server) locate(w http.ResponseWriter, row string) (*region.Region, bool) {
	if row == "" {
		s.writeJSON(w, http.StatusBadRequest, NewErrorResponse("Missing row"))
		return nil, false
	}
	reg, err := s.regions.Locate([]byte(row))
	if err != nil {
		s.writeJSON(w, http.StatusNotFound, NewErrorResponse(err.Error()))
		return nil, false
	}
	return reg, true
}

func (s *Server) handlePut(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.writeJSON(w, http.StatusBadRequest, NewErrorResponse("Failed to parse form"))
		return
	}

	row := r.FormValue("row")
	column := r.FormValue("column")
	value := r.FormValue("value")
	if row == "" || column == "" || value == "" {
		s.writeJSON(w, http.StatusBadRequest, NewErrorResponse("Missing row, column or value"))
		return
	}

	version, err := versionParam(r.FormValue("version"), 0)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, NewErrorResponse("Invalid version"))
		return
	}

	reg, ok := s.locate(w, row)
	if !ok {
		return
	}

	assigned, err := reg.Put([]byte(row), []byte(column), []byte(value), version)
	if err != nil {
		s.writeJSON(w, http.StatusInternalServerError, NewErrorResponse(err.Error()))
		return
	}

	s.writeJSON(w, http.StatusOK, NewVersionResponse(assigned))
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	row := r.URL.Query().Get("row")
	column := r.URL.Query().Get("column")
	if column == "" {
		s.writeJSON(w, http.StatusBadRequest, NewErrorResponse("Missing column"))
		return
	}

	version, err := versionParam(r.URL.Query().Get("version"), memstore.MaxVersion)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, NewErrorResponse("Invalid version"))
		return
	}
	maxVersions := 1
	if raw := r.URL.Query().Get("versions"); raw != "" {
		if maxVersions, err = strconv.Atoi(raw); err != nil {
			s.writeJSON(w, http.StatusBadRequest, NewErrorResponse("Invalid versions"))
			return
		}
	}

	reg, ok := s.locate(w, row)
	if !ok {
		return
	}

	cells := reg.Get([]byte(row), []byte(column), version, maxVersions)
	if len(cells) == 0 {
		s.writeJSON(w, http.StatusNotFound, NewErrorResponse("Cell not found"))
		return
	}

	out := make([]Cell, len(cells))
	for i, c := range cells {
		out[i] = Cell{Column: column, Value: string(c.Value), Version: c.Version}
	}
	s.writeJSON(w, http.StatusOK, NewCellsResponse(out))
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	row := r.URL.Query().Get("row")
	column := r.URL.Query().Get("column")
	if column == "" {
		s.writeJSON(w, http.StatusBadRequest, NewErrorResponse("Missing column"))
		return
	}

	version, err := versionParam(r.URL.Query().Get("version"), 0)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, NewErrorResponse("Invalid version"))
		return
	}

	reg, ok := s.locate(w, row)
	if !ok {
		return
	}

	assigned, err := reg.Delete([]byte(row), []byte(column), version)
	if err != nil {
		s.writeJSON(w, http.StatusInternalServerError, NewErrorResponse(err.Error()))
		return
	}

	s.writeJSON(w, http.StatusOK, NewVersionResponse(assigned))
}

func (s *Server) handleGetRow(w http.ResponseWriter, r *http.Request) {
	row := r.URL.Query().Get("row")
	version, err := versionParam(r.URL.Query().Get("version"), memstore.MaxVersion)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, NewErrorResponse("Invalid version"))
		return
	}

	reg, ok := s.locate(w, row)
	if !ok {
		return
	}

	results := reg.GetRow([]byte(row), parseColumns(r.URL.Query().Get("columns")), version)
	if len(results) == 0 {
		s.writeJSON(w, http.StatusNotFound, NewErrorResponse("Row not found"))
		return
	}

	s.writeJSON(w, http.StatusOK, NewRowResponse(row, rowCells(results)))
}

func (s *Server) handleClosestRow(w http.ResponseWriter, r *http.Request) {
	row := r.URL.Query().Get("row")

	reg, ok := s.locate(w, row)
	if !ok {
		return
	}

	found, cells, ok := reg.ClosestRowBefore([]byte(row))
	if !ok {
		s.writeJSON(w, http.StatusNotFound, NewErrorResponse("No row at or before key"))
		return
	}

	out := make([]Cell, 0, len(cells))
	for column, version := range cells {
		out = append(out, Cell{Column: column, Version: version})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Column < out[j].Column })
	s.writeJSON(w, http.StatusOK, NewRowResponse(string(found), out))
}

func (s *Server) handleOpenScanner(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.writeJSON(w, http.StatusBadRequest, NewErrorResponse("Failed to parse form"))
		return
	}

	row := r.FormValue("row")
	version, err := versionParam(r.FormValue("version"), memstore.MaxVersion)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, NewErrorResponse("Invalid version"))
		return
	}

	// the scanner's region is the one holding the start row; an empty start
	// row scans the first region
	reg, err := s.regions.Locate([]byte(row))
	if err != nil {
		s.writeJSON(w, http.StatusNotFound, NewErrorResponse(err.Error()))
		return
	}

	sc := reg.OpenScanner(version, parseColumns(r.FormValue("columns")), []byte(row), nil)
	id := s.scanners.add(sc)
	s.writeJSON(w, http.StatusOK, NewScannerResponse(id))
}

func (s *Server) handleScannerNext(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, NewErrorResponse("Invalid scanner id"))
		return
	}

	h, ok := s.scanners.get(id)
	if !ok {
		s.writeJSON(w, http.StatusNotFound, NewErrorResponse("Scanner not found"))
		return
	}

	res, ok := h.next()
	if !ok {
		s.writeJSON(w, http.StatusOK, NewDoneResponse())
		return
	}

	s.writeJSON(w, http.StatusOK, NewRowResponse(string(res.Row), rowCells(res.Columns)))
}

func (s *Server) handleCloseScanner(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, NewErrorResponse("Invalid scanner id"))
		return
	}

	if !s.scanners.close(id) {
		s.writeJSON(w, http.StatusNotFound, NewErrorResponse("Scanner not found"))
		return
	}
	s.writeJSON(w, http.StatusOK, NewSuccessResponse())
}

func (s *Server) handleAddRegion(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.writeJSON(w, http.StatusBadRequest, NewErrorResponse("Failed to parse form"))
		return
	}

	if _, err := s.regions.Add([]byte(r.FormValue("start"))); err != nil {
		s.writeJSON(w, http.StatusInternalServerError, NewErrorResponse(err.Error()))
		return
	}
	s.writeJSON(w, http.StatusOK, NewSuccessResponse())
}

func (s *Server) handleListRegions(w http.ResponseWriter, r *http.Request) {
	starts := s.regions.StartRows()
	cells := make([]Cell, len(starts))
	for i, start := range starts {
		cells[i] = Cell{Column: string(start)}
	}
	s.writeJSON(w, http.StatusOK, NewCellsResponse(cells))
}

func parseColumns(raw string) [][]byte {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([][]byte, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, []byte(p))
		}
	}
	return out
}

func rowCells(results map[string]memstore.Cell) []Cell {
	out := make([]Cell, 0, len(results))
	for column, cell := range results {
		out = append(out, Cell{Column: column, Value: string(cell.Value), Version: cell.Version})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Column < out[j].Column })
	return out
}
