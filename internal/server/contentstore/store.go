// Package contentstore talks to the content-addressed store: pinning
// uploads through Pinata and retrieving bytes back through an ordered
// list of gateways.
package contentstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dmitrijs2005/evidencekeeper/internal/logging"
)

// Uploader pins bytes and returns their CID.
type Uploader interface {
	Upload(ctx context.Context, r io.Reader, name string) (string, error)
}

// Blob is retrieved content plus the gateway that served it.
type Blob struct {
	Data    []byte
	Gateway string
}

type Store struct {
	uploader       Uploader
	gateways       []Gateway
	resolveBase    string
	maxAttempts    int
	attemptTimeout time.Duration
	logger         logging.Logger
}

type Options struct {
	// ResolveBase is the gateway used by Resolve.
	ResolveBase string
	// MaxAttempts caps how many gateways Retrieve tries; 0 means all.
	MaxAttempts int
	// AttemptTimeout bounds a single gateway fetch; 0 means no bound.
	AttemptTimeout time.Duration
}

func NewStore(u Uploader, gateways []Gateway, opts Options, l logging.Logger) *Store {
	return &Store{
		uploader:       u,
		gateways:       gateways,
		resolveBase:    opts.ResolveBase,
		maxAttempts:    opts.MaxAttempts,
		attemptTimeout: opts.AttemptTimeout,
		logger:         l.With("module", "contentstore"),
	}
}

func (s *Store) Upload(ctx context.Context, r io.Reader, name string) (string, error) {
	return s.uploader.Upload(ctx, r, name)
}

// Resolve returns the canonical retrieval URL without touching the network.
func (s *Store) Resolve(cid string) string {
	return NewHTTPGateway(s.resolveBase, nil, 0).URL(cid)
}

// Retrieve walks the gateways in order and returns the first success.
func (s *Store) Retrieve(ctx context.Context, cid string) (*Blob, error) {
	cid = CleanCID(cid)
	if cid == "" {
		return nil, fmt.Errorf("%w: empty content id", ErrRetrievalExhausted)
	}

	var errs []error
	for i, g := range s.gateways {
		if s.maxAttempts > 0 && i >= s.maxAttempts {
			break
		}

		data, err := s.fetch(ctx, g, cid)
		if err == nil {
			s.logger.Info(ctx, "content retrieved", "cid", cid, "gateway", g.Name(), "bytes", len(data))
			return &Blob{Data: data, Gateway: g.Name()}, nil
		}

		s.logger.Warn(ctx, "gateway failed", "cid", cid, "gateway", g.Name(), "error", err)
		errs = append(errs, fmt.Errorf("%s: %w", g.Name(), err))

		if ctx.Err() != nil {
			break
		}
	}

	if len(errs) == 0 {
		return nil, fmt.Errorf("%w: %s: no gateways configured", ErrRetrievalExhausted, cid)
	}
	return nil, fmt.Errorf("%w: %s: %w", ErrRetrievalExhausted, cid, errors.Join(errs...))
}

func (s *Store) fetch(ctx context.Context, g Gateway, cid string) ([]byte, error) {
	if s.attemptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.attemptTimeout)
		defer cancel()
	}
	return g.Fetch(ctx, cid)
}
