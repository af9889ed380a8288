// Package hashx computes the SHA-256 content fingerprints that evidence
// records are anchored and verified against.
package hashx

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
)

// DigestLen is the length of a hex-encoded digest.
const DigestLen = sha256.Size * 2

const chunkSize = 64 * 1024

// ErrHashComputation is matched by every *Error.
var ErrHashComputation = errors.New("hash computation failed")

var digestRe = regexp.MustCompile(`^[0-9a-f]{64}$`)

// Error carries the I/O failure that interrupted hashing.
type Error struct {
	Source string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("hash computation failed for %s: %v", e.Source, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return target == ErrHashComputation }

// Digest streams r through SHA-256 in fixed-size chunks and returns the
// lowercase hex digest. The result does not depend on how r splits its reads.
func Digest(r io.Reader) (string, error) {
	if r == nil {
		return "", &Error{Source: "stream", Err: errors.New("nil reader")}
	}
	h := sha256.New()
	buf := make([]byte, chunkSize)
	if _, err := io.CopyBuffer(h, r, buf); err != nil {
		return "", &Error{Source: "stream", Err: err}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// DigestFile hashes the file at path without loading it into memory.
func DigestFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", &Error{Source: path, Err: err}
	}
	defer f.Close()

	sum, err := Digest(f)
	if err != nil {
		return "", &Error{Source: path, Err: errors.Unwrap(err)}
	}
	return sum, nil
}

// DigestBytes hashes an in-memory buffer.
func DigestBytes(b []byte) string {
	sum, _ := Digest(bytes.NewReader(b))
	return sum
}

// Equal compares two hex digests ignoring case and surrounding whitespace.
func Equal(a, b string) bool {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if a == "" || b == "" {
		return false
	}
	return strings.EqualFold(a, b)
}

// IsDigest reports whether s is a lowercase 64-char hex digest.
func IsDigest(s string) bool {
	return digestRe.MatchString(s)
}
