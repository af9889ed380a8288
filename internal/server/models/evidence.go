// Package models defines the evidence records shared by the index,
// the pipeline and the HTTP layer.
package models

import (
	"maps"
	"time"
)

// EvidenceRecord is one uploaded piece of evidence together with where its
// fingerprint was anchored.
type EvidenceRecord struct {
	// LocalID is the storage key assigned by the record index.
	LocalID string `json:"id"`
	// RecordID is the public "<plate>-<unix seconds>" identifier.
	RecordID    string     `json:"recordId"`
	Plate       string     `json:"plate"`
	Timestamp   int64      `json:"timestamp"`
	ContentHash string     `json:"hash"`
	ContentID   string     `json:"cid"`
	LedgerRefs  LedgerRefs `json:"ledgerRefs"`
	FileName    string     `json:"fileName,omitempty"`
	FileSize    int64      `json:"fileSize,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// Clone returns a deep copy so callers can't mutate stored state.
func (r *EvidenceRecord) Clone() *EvidenceRecord {
	if r == nil {
		return nil
	}
	c := *r
	c.LedgerRefs = maps.Clone(r.LedgerRefs)
	return &c
}
