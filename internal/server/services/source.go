package services

import (
	"bytes"
	"io"
	"os"
)

// Source can be opened more than once: once for hashing, once for
// pinning and once for the mirror.
type Source interface {
	Open() (io.ReadCloser, error)
}

// FileSource reads a spooled upload from disk.
type FileSource string

func (f FileSource) Open() (io.ReadCloser, error) {
	return os.Open(string(f))
}

// BytesSource serves an in-memory buffer.
type BytesSource []byte

func (b BytesSource) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(b)), nil
}
