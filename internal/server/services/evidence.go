// Package services holds the evidence pipeline: upload (hash, pin, anchor,
// index) and verify (resolve, retrieve, rehash, compare).
package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dmitrijs2005/evidencekeeper/internal/common"
	"github.com/dmitrijs2005/evidencekeeper/internal/hashx"
	"github.com/dmitrijs2005/evidencekeeper/internal/logging"
	"github.com/dmitrijs2005/evidencekeeper/internal/server/contentstore"
	"github.com/dmitrijs2005/evidencekeeper/internal/server/ledger"
	"github.com/dmitrijs2005/evidencekeeper/internal/server/models"
	"github.com/dmitrijs2005/evidencekeeper/internal/server/repositories/records"
)

type ContentStore interface {
	Upload(ctx context.Context, r io.Reader, name string) (string, error)
	Retrieve(ctx context.Context, cid string) (*contentstore.Blob, error)
	Resolve(cid string) string
}

type Anchorer interface {
	AnchorAll(ctx context.Context, recordID, plate, cid, hash string) models.LedgerRefs
	Lookup(ctx context.Context, recordID string) (*ledger.Evidence, error)
	Explorers() map[string]ledger.Explorer
}

// Mirror keeps a secondary copy of pinned content.
type Mirror interface {
	Put(ctx context.Context, cid string, body io.Reader) error
}

type UploadRequest struct {
	Source   Source
	Plate    string
	FileName string
	FileSize int64
}

type UploadResult struct {
	RecordID    string            `json:"recordId"`
	ContentHash string            `json:"hash"`
	ContentID   string            `json:"cid"`
	Timestamp   int64             `json:"timestamp"`
	LedgerRefs  models.LedgerRefs `json:"ledgerRefs"`
	LocalID     string            `json:"localId"`
}

// Resolved is a record found by record id plus where it was found.
type Resolved struct {
	Record *models.EvidenceRecord
	// Source is "ledger" or "index".
	Source string
	Ledger string
}

type VerificationResult struct {
	RecordID      string            `json:"recordId"`
	Plate         string            `json:"plate"`
	ContentID     string            `json:"cid"`
	Timestamp     int64             `json:"timestamp"`
	AnchoredHash  string            `json:"onChainHash"`
	ComputedHash  string            `json:"localHash"`
	Matches       bool              `json:"matches"`
	Source        string            `json:"source"`
	Ledger        string            `json:"chain,omitempty"`
	Gateway       string            `json:"gateway"`
	ContentURL    string            `json:"contentUrl"`
	LedgerRefs    models.LedgerRefs `json:"ledgerRefs,omitempty"`
	ExplorerLinks map[string]string `json:"explorerLinks,omitempty"`
	ContractURL   string            `json:"explorerUrl,omitempty"`
	VerifiedAt    time.Time         `json:"verifiedAt"`
}

// Verification is either a single verified record or the plate list form.
type Verification struct {
	Query   string
	Single  *VerificationResult
	Records []*models.EvidenceRecord
}

const (
	SourceLedger = "ledger"
	SourceIndex  = "index"
)

type EvidenceService struct {
	store   ContentStore
	anchors Anchorer
	records records.Repository
	mirror  Mirror
	ids     *recordIDIssuer
	now     func() time.Time
	// anchorTimeout bounds anchoring and the mirror copy once content is
	// pinned. Zero means no bound beyond the ledgers' own.
	anchorTimeout time.Duration
	logger        logging.Logger
}

// NewEvidenceService wires the pipeline. mirror may be nil.
func NewEvidenceService(store ContentStore, anchors Anchorer, repo records.Repository, mirror Mirror,
	anchorTimeout time.Duration, l logging.Logger) *EvidenceService {
	return &EvidenceService{
		store:         store,
		anchors:       anchors,
		records:       repo,
		mirror:        mirror,
		ids:           newRecordIDIssuer(),
		now:           time.Now,
		anchorTimeout: anchorTimeout,
		logger:        l.With("module", "evidence"),
	}
}

// Upload hashes, pins, anchors and indexes one piece of evidence. Ledger
// failures never fail the upload; they show up in LedgerRefs.
func (s *EvidenceService) Upload(ctx context.Context, req UploadRequest) (*UploadResult, error) {
	if strings.TrimSpace(req.Plate) == "" {
		return nil, fmt.Errorf("%w: plate number is required", common.ErrValidation)
	}
	if req.Source == nil {
		return nil, fmt.Errorf("%w: evidence content is required", common.ErrValidation)
	}

	hash, err := s.digest(req.Source)
	if err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "evidence hashed", "plate", req.Plate, "hash", hash, "size", req.FileSize)

	cid, err := s.pin(ctx, req)
	if err != nil {
		return nil, err
	}

	// Content is pinned from here on. The rest runs even if the caller goes
	// away, so the record is anchored and indexed rather than lost.
	ctx = context.WithoutCancel(ctx)

	ts := s.now().Unix()
	recordID, err := s.issueRecordID(ctx, req.Plate, ts)
	if err != nil {
		return nil, err
	}

	anchorCtx, cancel := s.boundedContext(ctx)
	refs := s.anchors.AnchorAll(anchorCtx, recordID, req.Plate, cid, hash)
	cancel()
	s.logger.Info(ctx, "anchoring finished", "record_id", recordID, "refs", refs.Strings())

	mirrorCtx, cancel := s.boundedContext(ctx)
	s.mirrorCopy(mirrorCtx, req.Source, cid)
	cancel()

	saved, err := s.records.Save(ctx, &models.EvidenceRecord{
		RecordID:    recordID,
		Plate:       req.Plate,
		Timestamp:   ts,
		ContentHash: hash,
		ContentID:   cid,
		LedgerRefs:  refs,
		FileName:    req.FileName,
		FileSize:    req.FileSize,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: index record %s: %v", common.ErrInternal, recordID, err)
	}

	s.logger.Info(ctx, "evidence uploaded", "record_id", recordID, "local_id", saved.LocalID, "cid", cid)
	return &UploadResult{
		RecordID:    recordID,
		ContentHash: hash,
		ContentID:   cid,
		Timestamp:   ts,
		LedgerRefs:  refs,
		LocalID:     saved.LocalID,
	}, nil
}

func (s *EvidenceService) boundedContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.anchorTimeout > 0 {
		return context.WithTimeout(ctx, s.anchorTimeout)
	}
	return context.WithCancel(ctx)
}

func (s *EvidenceService) digest(src Source) (string, error) {
	rc, err := src.Open()
	if err != nil {
		return "", &hashx.Error{Source: "upload", Err: err}
	}
	defer rc.Close()
	return hashx.Digest(rc)
}

func (s *EvidenceService) pin(ctx context.Context, req UploadRequest) (string, error) {
	rc, err := req.Source.Open()
	if err != nil {
		return "", fmt.Errorf("%w: reopen upload: %v", contentstore.ErrUpload, err)
	}
	defer rc.Close()

	name := req.FileName
	if name == "" {
		name = "evidence"
	}
	cid, err := s.store.Upload(ctx, rc, name)
	if err != nil {
		s.logger.Error(ctx, "content store upload failed", "plate", req.Plate, "error", err)
		return "", fmt.Errorf("upload to content store: %w", err)
	}
	return cid, nil
}

func (s *EvidenceService) issueRecordID(ctx context.Context, plate string, ts int64) (string, error) {
	for {
		id := s.ids.next(plate, ts)
		_, err := s.records.FindByRecordID(ctx, id)
		switch {
		case errors.Is(err, common.ErrNotFound):
			return id, nil
		case err != nil:
			return "", fmt.Errorf("%w: check record id %s: %v", common.ErrInternal, id, err)
		}
	}
}

func (s *EvidenceService) mirrorCopy(ctx context.Context, src Source, cid string) {
	if s.mirror == nil {
		return
	}
	rc, err := src.Open()
	if err != nil {
		s.logger.Warn(ctx, "mirror skipped", "cid", cid, "error", err)
		return
	}
	defer rc.Close()

	if err := s.mirror.Put(ctx, cid, rc); err != nil {
		s.logger.Warn(ctx, "mirror copy failed", "cid", cid, "error", err)
	}
}

// Resolve finds a record by id, asking the ledgers first and the local
// index when no ledger has it.
func (s *EvidenceService) Resolve(ctx context.Context, recordID string) (*Resolved, error) {
	recordID = strings.TrimSpace(recordID)
	if recordID == "" {
		return nil, fmt.Errorf("%w: record id is required", common.ErrValidation)
	}

	local, localErr := s.records.FindByRecordID(ctx, recordID)
	if localErr != nil && !errors.Is(localErr, common.ErrNotFound) {
		s.logger.Warn(ctx, "index lookup failed", "record_id", recordID, "error", localErr)
		local = nil
	}

	ev, err := s.anchors.Lookup(ctx, recordID)
	if err == nil {
		rec := &models.EvidenceRecord{
			RecordID:    recordID,
			Plate:       ev.Plate,
			Timestamp:   ev.Timestamp,
			ContentHash: ev.ContentHash,
			ContentID:   ev.ContentID,
		}
		if local != nil {
			rec.LocalID = local.LocalID
			rec.LedgerRefs = local.LedgerRefs
			rec.FileName = local.FileName
			rec.FileSize = local.FileSize
			rec.CreatedAt = local.CreatedAt
		}
		return &Resolved{Record: rec, Source: SourceLedger, Ledger: ev.Ledger}, nil
	}
	s.logger.Info(ctx, "ledger lookup missed, falling back to index", "record_id", recordID, "error", err)

	if local == nil {
		if localErr != nil && !errors.Is(localErr, common.ErrNotFound) {
			return nil, fmt.Errorf("%w: index lookup %s: %v", common.ErrInternal, recordID, localErr)
		}
		return nil, fmt.Errorf("%w: evidence record %s", common.ErrNotFound, recordID)
	}
	return &Resolved{Record: local, Source: SourceIndex}, nil
}

// Verify treats a record-id shaped query as a single verification and
// anything else as a plate lookup. A hash mismatch is a result, not an error.
func (s *EvidenceService) Verify(ctx context.Context, query string) (*Verification, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return nil, fmt.Errorf("%w: record id or plate is required", common.ErrValidation)
	}

	if IsRecordID(q) {
		res, err := s.VerifyRecordID(ctx, q)
		if err != nil {
			return nil, err
		}
		return &Verification{Query: q, Single: res}, nil
	}

	recs, err := s.FindByPlate(ctx, q)
	if err != nil {
		return nil, err
	}
	return &Verification{Query: q, Records: recs}, nil
}

func (s *EvidenceService) VerifyRecordID(ctx context.Context, recordID string) (*VerificationResult, error) {
	resolved, err := s.Resolve(ctx, recordID)
	if err != nil {
		return nil, err
	}
	rec := resolved.Record

	blob, err := s.store.Retrieve(ctx, rec.ContentID)
	if err != nil {
		return nil, fmt.Errorf("retrieve %s: %w", rec.ContentID, err)
	}

	computed := hashx.DigestBytes(blob.Data)
	res := &VerificationResult{
		RecordID:      rec.RecordID,
		Plate:         rec.Plate,
		ContentID:     rec.ContentID,
		Timestamp:     rec.Timestamp,
		AnchoredHash:  rec.ContentHash,
		ComputedHash:  computed,
		Matches:       hashx.Equal(computed, rec.ContentHash),
		Source:        resolved.Source,
		Ledger:        resolved.Ledger,
		Gateway:       blob.Gateway,
		ContentURL:    s.store.Resolve(rec.ContentID),
		LedgerRefs:    rec.LedgerRefs,
		ExplorerLinks: map[string]string{},
		VerifiedAt:    s.now().UTC(),
	}

	explorers := s.anchors.Explorers()
	for name, ref := range rec.LedgerRefs {
		if link, ok := explorers[name].TxURL(ref); ok {
			res.ExplorerLinks[name] = link
		}
	}
	if resolved.Source == SourceLedger {
		if link, ok := explorers[resolved.Ledger].AddressURL(); ok {
			res.ContractURL = link
		}
	}

	if res.Matches {
		s.logger.Info(ctx, "evidence verified", "record_id", rec.RecordID, "source", res.Source, "gateway", res.Gateway)
	} else {
		s.logger.Warn(ctx, "evidence hash mismatch", "record_id", rec.RecordID, "anchored", rec.ContentHash, "computed", computed)
	}
	return res, nil
}

// FindByPlate returns index records for plate in insertion order.
func (s *EvidenceService) FindByPlate(ctx context.Context, plate string) ([]*models.EvidenceRecord, error) {
	if strings.TrimSpace(plate) == "" {
		return nil, fmt.Errorf("%w: plate number is required", common.ErrValidation)
	}
	recs, err := s.records.FindByPlate(ctx, plate)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInternal, err)
	}
	return recs, nil
}

func (s *EvidenceService) All(ctx context.Context) ([]*models.EvidenceRecord, error) {
	recs, err := s.records.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInternal, err)
	}
	return recs, nil
}
