// Package httpapi is the REST surface of the evidence server: upload,
// lookup, verification and health, routed with chi.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrijs2005/evidencekeeper/internal/common"
	"github.com/dmitrijs2005/evidencekeeper/internal/filex"
	"github.com/dmitrijs2005/evidencekeeper/internal/logging"
	"github.com/dmitrijs2005/evidencekeeper/internal/server/ledger"
	"github.com/dmitrijs2005/evidencekeeper/internal/server/models"
	"github.com/dmitrijs2005/evidencekeeper/internal/server/services"
)

type EvidenceService interface {
	Upload(ctx context.Context, req services.UploadRequest) (*services.UploadResult, error)
	Resolve(ctx context.Context, recordID string) (*services.Resolved, error)
	Verify(ctx context.Context, query string) (*services.Verification, error)
	VerifyRecordID(ctx context.Context, recordID string) (*services.VerificationResult, error)
	FindByPlate(ctx context.Context, plate string) ([]*models.EvidenceRecord, error)
	All(ctx context.Context) ([]*models.EvidenceRecord, error)
}

type LedgerStatuses interface {
	Names() []string
	Statuses() map[string]string
}

type Options struct {
	UploadsDir      string
	DeleteTempFiles bool
	MaxUploadSize   int64
}

type Handler struct {
	evidence        EvidenceService
	ledgers         LedgerStatuses
	uploadsDir      string
	deleteTempFiles bool
	maxUploadSize   int64
	now             func() time.Time
	randSuffix      func() string
	logger          logging.Logger
}

// NewHandler creates the uploads directory if needed.
func NewHandler(evidence EvidenceService, ledgers LedgerStatuses, opts Options, l logging.Logger) (*Handler, error) {
	dir, err := filex.EnsureDir(opts.UploadsDir)
	if err != nil {
		return nil, fmt.Errorf("uploads dir: %w", err)
	}
	return &Handler{
		evidence:        evidence,
		ledgers:         ledgers,
		uploadsDir:      dir,
		deleteTempFiles: opts.DeleteTempFiles,
		maxUploadSize:   opts.MaxUploadSize,
		now:             time.Now,
		randSuffix:      randomSuffix,
		logger:          l.With("module", "http"),
	}, nil
}

func randomSuffix() string {
	s, err := common.MakeRandHexString(5)
	if err != nil {
		return strconv.FormatInt(time.Now().UnixNano(), 36)
	}
	return s
}

type uploadResponse struct {
	Success bool `json:"success"`
	*services.UploadResult
}

// Upload handles POST /api/evidence/upload.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	if h.maxUploadSize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)
	}

	form, err := h.readUploadForm(r)
	if err != nil {
		if form != nil && form.File != nil {
			filex.RemoveQuietly(form.File.Path)
		}
		h.logger.Warn(r.Context(), "upload rejected", "error", err)
		writeError(w, r, err)
		return
	}

	h.logger.Info(r.Context(), "evidence upload started", "plate", form.Plate, "file", form.File.FileName, "size", form.File.Size)

	res, err := h.evidence.Upload(r.Context(), services.UploadRequest{
		Source:   services.FileSource(form.File.Path),
		Plate:    form.Plate,
		FileName: form.File.FileName,
		FileSize: form.File.Size,
	})
	if err != nil {
		filex.RemoveQuietly(form.File.Path)
		h.logger.Error(r.Context(), "evidence upload failed", "plate", form.Plate, "error", err)
		writeError(w, r, err)
		return
	}

	if h.deleteTempFiles && filex.RemoveQuietly(form.File.Path) {
		h.logger.Debug(r.Context(), "temp file deleted", "path", form.File.Path)
	}

	writeJSON(w, http.StatusOK, uploadResponse{Success: true, UploadResult: res})
}

type recordResponse struct {
	Success bool                   `json:"success"`
	Source  string                 `json:"source"`
	Ledger  string                 `json:"chain,omitempty"`
	Record  *models.EvidenceRecord `json:"record"`
}

type verificationResponse struct {
	Success bool `json:"success"`
	*services.VerificationResult
}

type listResponse struct {
	Success bool                     `json:"success"`
	Query   string                   `json:"query,omitempty"`
	Count   int                      `json:"count"`
	Records []*models.EvidenceRecord `json:"records"`
}

// GetRecord handles GET /api/evidence/verify/{recordId}. Without
// ?check=true it only resolves the record; with it the content is fetched
// and rehashed.
func (h *Handler) GetRecord(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "recordId")

	if check, _ := strconv.ParseBool(r.URL.Query().Get("check")); check {
		res, err := h.evidence.VerifyRecordID(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, verificationResponse{Success: true, VerificationResult: res})
		return
	}

	res, err := h.evidence.Resolve(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recordResponse{Success: true, Source: res.Source, Ledger: res.Ledger, Record: res.Record})
}

type verifyRequest struct {
	Query string `json:"query"`
}

// Verify handles POST /api/evidence/verify with {"query": "..."}.
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, fmt.Errorf("%w: invalid JSON body: %v", common.ErrValidation, err))
		return
	}

	v, err := h.evidence.Verify(r.Context(), req.Query)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if v.Single != nil {
		writeJSON(w, http.StatusOK, verificationResponse{Success: true, VerificationResult: v.Single})
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Success: true, Query: v.Query, Count: len(v.Records), Records: newestFirst(v.Records)})
}

// ByPlate handles GET /api/evidence/plate/{plate}. An unknown plate is an
// empty list, not an error.
func (h *Handler) ByPlate(w http.ResponseWriter, r *http.Request) {
	plate := chi.URLParam(r, "plate")

	recs, err := h.evidence.FindByPlate(r.Context(), plate)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Success: true, Count: len(recs), Records: newestFirst(recs)})
}

// Records handles GET /api/evidence/records.
func (h *Handler) Records(w http.ResponseWriter, r *http.Request) {
	recs, err := h.evidence.All(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Success: true, Count: len(recs), Records: recs})
}

type ledgerHealth struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

type healthResponse struct {
	Status    string         `json:"status"`
	Timestamp time.Time      `json:"timestamp"`
	Mode      string         `json:"mode"`
	Ledgers   []ledgerHealth `json:"ledgers"`
}

// Health handles GET /health. Mode is "mock" when no ledger is usable.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	statuses := h.ledgers.Statuses()
	resp := healthResponse{Status: "ok", Timestamp: h.now().UTC(), Mode: "mock", Ledgers: []ledgerHealth{}}
	for _, name := range h.ledgers.Names() {
		st := statuses[name]
		resp.Ledgers = append(resp.Ledgers, ledgerHealth{Name: name, Status: st})
		if st == ledger.StatusConfigured {
			resp.Mode = "live"
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) notFound(w http.ResponseWriter, r *http.Request) {
	writeErrorMessage(w, r, http.StatusNotFound, CodeNotFound, "route not found: "+r.Method+" "+r.URL.Path)
}

func (h *Handler) methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeErrorMessage(w, r, http.StatusMethodNotAllowed, CodeValidation, "method not allowed: "+r.Method+" "+r.URL.Path)
}

func newestFirst(recs []*models.EvidenceRecord) []*models.EvidenceRecord {
	out := make([]*models.EvidenceRecord, len(recs))
	copy(out, recs)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp > out[j].Timestamp })
	return out
}
