// Package api serves the analysis, negotiation and history endpoints.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/ericksa/contractlens/internal/analysis"
	"github.com/ericksa/contractlens/internal/audit"
	"github.com/ericksa/contractlens/internal/extract"
	"github.com/ericksa/contractlens/internal/logging"
	"github.com/ericksa/contractlens/internal/middleware"
	"github.com/ericksa/contractlens/internal/negotiation"
	"github.com/ericksa/contractlens/internal/storage"
)

// multipartOverhead is the slack allowed above extract.MaxBytes for form fields.
const multipartOverhead = 1 << 20

type Analyzer interface {
	Run(ctx context.Context, in analysis.Input) (analysis.Output, error)
}

type Negotiator interface {
	Negotiate(ctx context.Context, req negotiation.Request) (negotiation.Result, error)
}

type ReportStore interface {
	Save(ctx context.Context, userID, fileName string, out analysis.Output) (string, error)
	List(ctx context.Context, userID string) ([]storage.StoredReport, error)
	Get(ctx context.Context, userID, id string) (storage.StoredReport, error)
}

type DocumentArchive interface {
	Put(ctx context.Context, userID, fileName, contentType string, data []byte) (string, error)
}

type AuditLog interface {
	Log(ctx context.Context, rec audit.Record)
	GetLogs(ctx context.Context, limit int) ([]audit.AuditEntry, error)
}

// Options wires a Server. Reports, Archive and Audit are optional.
type Options struct {
	Analyzer   Analyzer
	Negotiator Negotiator
	Reports    ReportStore
	Archive    DocumentArchive
	Audit      AuditLog
	Logger     *zap.Logger
	// MaxRounds applies when a negotiation request leaves maxRounds unset.
	MaxRounds int
}

type Server struct {
	opts   Options
	logger *zap.Logger
}

func NewServer(opts Options) *Server {
	return &Server{opts: opts, logger: logging.OrNop(opts.Logger).Named("api")}
}

// Register mounts every route on r.
func (s *Server) Register(r *mux.Router) {
	r.HandleFunc("/health", s.health).Methods(http.MethodGet)
	r.HandleFunc("/api/extract", s.extractText).Methods(http.MethodPost)
	r.HandleFunc("/api/analyze", s.analyze).Methods(http.MethodPost)
	r.HandleFunc("/api/negotiate", s.negotiate).Methods(http.MethodPost)
	r.HandleFunc("/api/history", s.history).Methods(http.MethodGet)
	r.HandleFunc("/api/history/{id}", s.historyItem).Methods(http.MethodGet)
	r.HandleFunc("/api/audit", s.auditLog).Methods(http.MethodGet)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type extractResponse struct {
	FileName   string `json:"fileName"`
	Text       string `json:"text"`
	Characters int    `json:"characters"`
}

func (s *Server) extractText(w http.ResponseWriter, r *http.Request) {
	up, err := readUpload(w, r)
	if err != nil {
		s.fail(w, err)
		return
	}
	text, err := extract.Text(up.data, up.contentType, up.fileName)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, extractResponse{FileName: up.fileName, Text: text, Characters: len([]rune(text))})
}

type analyzeRequest struct {
	FileText string `json:"fileText"`
	FileName string `json:"fileName"`
	Language string `json:"language"`
}

type analyzeResponse struct {
	analysis.Output
	ReportID string `json:"reportId,omitempty"`
}

func (s *Server) analyze(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	userID := middleware.UserID(ctx)

	var (
		req analyzeRequest
		up  *upload
	)
	if isMultipart(r) {
		u, err := readUpload(w, r)
		if err != nil {
			s.fail(w, err)
			return
		}
		text, err := extract.Text(u.data, u.contentType, u.fileName)
		if err != nil {
			s.fail(w, err)
			return
		}
		up = u
		req = analyzeRequest{FileText: text, FileName: u.fileName, Language: r.FormValue("language")}
	} else if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, err)
		return
	}

	lang, err := analysis.ParseLanguage(req.Language)
	if err != nil {
		s.fail(w, err)
		return
	}

	out, err := s.opts.Analyzer.Run(ctx, analysis.Input{
		FileText: req.FileText,
		FileName: req.FileName,
		Language: lang,
		Progress: func(label string, percent int) {
			s.logger.Debug("progress", zap.String("file", req.FileName), zap.String("step", label), zap.Int("percent", percent))
		},
	})
	s.audit(ctx, "analyze", userID, req.FileName, map[string]any{"language": lang, "chars": len(req.FileText)}, err, start)
	if err != nil {
		s.fail(w, err)
		return
	}

	resp := analyzeResponse{Output: out}
	if userID != "" && s.opts.Reports != nil {
		id, err := s.opts.Reports.Save(ctx, userID, req.FileName, out)
		if err != nil {
			s.logger.Error("failed to save report", zap.String("user", userID), zap.Error(err))
		} else {
			resp.ReportID = id
		}
	}
	if up != nil && s.opts.Archive != nil {
		if _, err := s.opts.Archive.Put(ctx, userID, up.fileName, up.contentType, up.data); err != nil {
			s.logger.Warn("failed to archive document", zap.String("file", up.fileName), zap.Error(err))
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type negotiateRequest struct {
	Clause    analysis.RiskedClause `json:"clause"`
	Archetype string                `json:"archetype"`
	MaxRounds int                   `json:"maxRounds"`
}

func (s *Server) negotiate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	var req negotiateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, err)
		return
	}
	archetype, err := negotiation.ParseArchetype(req.Archetype)
	if err != nil {
		s.fail(w, err)
		return
	}
	if req.MaxRounds == 0 {
		req.MaxRounds = s.opts.MaxRounds
	}

	result, err := s.opts.Negotiator.Negotiate(ctx, negotiation.Request{
		Clause:    req.Clause,
		Archetype: archetype,
		MaxRounds: req.MaxRounds,
	})
	s.audit(ctx, "negotiate", middleware.UserID(ctx), req.Clause.ID, map[string]any{"archetype": archetype, "maxRounds": req.MaxRounds}, err, start)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	reports, err := s.opts.Reports.List(ctx, userID)
	s.audit(ctx, "history.list", userID, "", nil, err, start)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reports)
}

func (s *Server) historyItem(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	id := mux.Vars(r)["id"]
	report, err := s.opts.Reports.Get(ctx, userID, id)
	s.audit(ctx, "history.get", userID, id, nil, err, start)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) auditLog(w http.ResponseWriter, r *http.Request) {
	if s.opts.Audit == nil {
		writeJSON(w, http.StatusOK, []audit.AuditEntry{})
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := s.opts.Audit.GetLogs(r.Context(), limit)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	if s.opts.Reports == nil {
		writeError(w, http.StatusNotFound, "history is not enabled")
		return "", false
	}
	userID := middleware.UserID(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, middleware.UserHeader+" header is required")
		return "", false
	}
	return userID, true
}

func (s *Server) audit(ctx context.Context, action, userID, subject string, input any, err error, start time.Time) {
	if s.opts.Audit == nil {
		return
	}
	s.opts.Audit.Log(ctx, audit.Record{
		Action:   action,
		UserID:   userID,
		Subject:  subject,
		Input:    input,
		Err:      err,
		Duration: time.Since(start),
	})
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Int("status", status), zap.Error(err))
	}
	writeError(w, status, err.Error())
}

var errBadRequest = errors.New("bad request")

func statusFor(err error) int {
	var maxErr *http.MaxBytesError
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, analysis.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, extract.ErrTooLarge), errors.As(err, &maxErr):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, extract.ErrUnsupportedType):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, extract.ErrUnreadable), errors.Is(err, extract.ErrTooShort):
		return http.StatusUnprocessableEntity
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

type upload struct {
	fileName    string
	contentType string
	data        []byte
}

func isMultipart(r *http.Request) bool {
	return strings.HasPrefix(strings.ToLower(r.Header.Get("Content-Type")), "multipart/form-data")
}

// readUpload reads the "file" part of a multipart form, bounded by
// extract.MaxBytes.
func readUpload(w http.ResponseWriter, r *http.Request) (*upload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, extract.MaxBytes+multipartOverhead)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, extract.ErrTooLarge
		}
		return nil, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, fmt.Errorf("%w: missing file field", errBadRequest)
	}
	defer file.Close()

	if header.Size > extract.MaxBytes {
		return nil, extract.ErrTooLarge
	}
	data, err := io.ReadAll(io.LimitReader(file, extract.MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	if len(data) > extract.MaxBytes {
		return nil, extract.ErrTooLarge
	}
	return &upload{
		fileName:    header.Filename,
		contentType: header.Header.Get("Content-Type"),
		data:        data,
	}, nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, extract.MaxBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return extract.ErrTooLarge
		}
		return fmt.Errorf("%w: invalid JSON body: %v", errBadRequest, err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
