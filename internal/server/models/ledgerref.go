package models

import (
	"encoding/json"
	"regexp"
	"strings"
)

// LedgerState is the terminal outcome of anchoring one record on one ledger.
type LedgerState string

const (
	LedgerConfirmed LedgerState = "confirmed"
	LedgerFailed    LedgerState = "failed"
	LedgerSkipped   LedgerState = "skipped"
	LedgerMock      LedgerState = "mock"
)

const txRefLen = 64

var txRefRe = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

// LedgerRef is the per-ledger anchoring outcome. Only Confirmed refs carry
// a transaction hash. The string form is produced at the JSON boundary.
type LedgerRef struct {
	State  LedgerState
	TxHash string
	Reason string
}

func ConfirmedRef(txHash string) LedgerRef {
	return LedgerRef{State: LedgerConfirmed, TxHash: txHash}
}

func FailedRef(reason string) LedgerRef {
	return LedgerRef{State: LedgerFailed, Reason: reason}
}

func SkippedRef(reason string) LedgerRef {
	return LedgerRef{State: LedgerSkipped, Reason: reason}
}

func MockRef() LedgerRef {
	return LedgerRef{State: LedgerMock, Reason: "no ledgers configured"}
}

// IsTxRef reports whether s has the shape of a real transaction hash.
func IsTxRef(s string) bool {
	return txRefRe.MatchString(s)
}

func sentinel(word string) string {
	return "0x" + word + strings.Repeat("0", txRefLen-len(word))
}

var (
	mockSentinel          = sentinel("mock")
	errorSentinel         = sentinel("error")
	notConfiguredSentinel = sentinel("notconfigured")
)

// String projects the ref to its wire form: the tx hash, or a sentinel
// that deliberately fails IsTxRef.
func (r LedgerRef) String() string {
	switch r.State {
	case LedgerConfirmed:
		return r.TxHash
	case LedgerSkipped:
		return notConfiguredSentinel
	case LedgerMock:
		return mockSentinel
	default:
		return errorSentinel
	}
}

// Anchored reports whether the ref points at a real transaction.
func (r LedgerRef) Anchored() bool {
	return r.State == LedgerConfirmed && IsTxRef(r.TxHash)
}

// ParseLedgerRef is the inverse of String. Unknown values become Failed.
func ParseLedgerRef(s string) LedgerRef {
	s = strings.TrimSpace(s)
	switch {
	case s == mockSentinel:
		return MockRef()
	case s == notConfiguredSentinel:
		return SkippedRef("not configured")
	case s == errorSentinel:
		return FailedRef("submission failed")
	case IsTxRef(s):
		return ConfirmedRef(s)
	default:
		return FailedRef("unrecognized reference " + s)
	}
}

func (r LedgerRef) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

func (r *LedgerRef) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	*r = ParseLedgerRef(s)
	return nil
}

// LedgerRefs maps ledger name to outcome.
type LedgerRefs map[string]LedgerRef

// Strings returns the wire projection of every ref.
func (l LedgerRefs) Strings() map[string]string {
	out := make(map[string]string, len(l))
	for name, ref := range l {
		out[name] = ref.String()
	}
	return out
}
