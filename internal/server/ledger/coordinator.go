package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/evidencekeeper/internal/logging"
	"github.com/dmitrijs2005/evidencekeeper/internal/server/models"
)

// Anchorer is the per-ledger surface the coordinator drives.
type Anchorer interface {
	Submit(ctx context.Context, recordID, plate, cid, hash string) (string, error)
	Read(ctx context.Context, recordID string) (*Evidence, error)
}

// Slot is one ledger position in configured order. Err records why the
// client could not be built; a slot whose Err is ErrNotConfigured is never
// called.
type Slot struct {
	Name     string
	Ledger   Anchorer
	Err      error
	Explorer Explorer
}

func (s Slot) configured() bool {
	return !errors.Is(s.Err, ErrNotConfigured)
}

func (s Slot) usable() bool {
	return s.Err == nil && s.Ledger != nil
}

// Status values reported per ledger.
const (
	StatusConfigured    = "configured"
	StatusNotConfigured = "notconfigured"
	StatusError         = "error"
)

type Coordinator struct {
	slots   []Slot
	timeout time.Duration
	logger  logging.Logger
}

// NewCoordinator keeps slots in the given order. A zero timeout disables
// the per-ledger bound.
func NewCoordinator(slots []Slot, timeout time.Duration, l logging.Logger) *Coordinator {
	return &Coordinator{slots: slots, timeout: timeout, logger: l.With("module", "anchor")}
}

// Configured counts ledgers that will be attempted.
func (c *Coordinator) Configured() int {
	n := 0
	for _, s := range c.slots {
		if s.configured() {
			n++
		}
	}
	return n
}

func (c *Coordinator) Names() []string {
	names := make([]string, 0, len(c.slots))
	for _, s := range c.slots {
		names = append(names, s.Name)
	}
	return names
}

func (c *Coordinator) Statuses() map[string]string {
	out := make(map[string]string, len(c.slots))
	for _, s := range c.slots {
		switch {
		case !s.configured():
			out[s.Name] = StatusNotConfigured
		case s.usable():
			out[s.Name] = StatusConfigured
		default:
			out[s.Name] = StatusError
		}
	}
	return out
}

func (c *Coordinator) Explorers() map[string]Explorer {
	out := make(map[string]Explorer, len(c.slots))
	for _, s := range c.slots {
		out[s.Name] = s.Explorer
	}
	return out
}

// AnchorAll submits to every ledger in parallel and never fails: each
// ledger's outcome is captured in its own ref. With no ledger configured
// every ref is Mock and nothing is called.
func (c *Coordinator) AnchorAll(ctx context.Context, recordID, plate, cid, hash string) models.LedgerRefs {
	refs := make(models.LedgerRefs, len(c.slots))

	if c.Configured() == 0 {
		for _, s := range c.slots {
			refs[s.Name] = models.MockRef()
		}
		c.logger.Warn(ctx, "no ledgers configured, returning mock references", "record_id", recordID)
		return refs
	}

	results := make([]models.LedgerRef, len(c.slots))
	var wg sync.WaitGroup

	for i, s := range c.slots {
		if !s.usable() {
			results[i] = c.unbuilt(ctx, s, recordID)
			continue
		}

		wg.Add(1)
		go func(i int, s Slot) {
			defer wg.Done()
			results[i] = c.submit(ctx, s, recordID, plate, cid, hash)
		}(i, s)
	}
	wg.Wait()

	for i, s := range c.slots {
		refs[s.Name] = results[i]
	}
	return refs
}

func (c *Coordinator) unbuilt(ctx context.Context, s Slot, recordID string) models.LedgerRef {
	reason := "no client"
	if s.Err != nil {
		reason = s.Err.Error()
	}
	if s.configured() {
		c.logger.Error(ctx, "ledger unavailable", "ledger", s.Name, "record_id", recordID, "error", s.Err)
		return models.FailedRef(reason)
	}
	c.logger.Info(ctx, "ledger skipped", "ledger", s.Name, "record_id", recordID, "reason", reason)
	return models.SkippedRef(reason)
}

func (c *Coordinator) submit(ctx context.Context, s Slot, recordID, plate, cid, hash string) models.LedgerRef {
	tx, err := callWithTimeout(ctx, c.timeout, s.Name, func(ctx context.Context) (string, error) {
		return s.Ledger.Submit(ctx, recordID, plate, cid, hash)
	})
	if err != nil {
		c.logger.Error(ctx, "anchoring failed", "ledger", s.Name, "record_id", recordID, "error", err)
		return models.FailedRef(err.Error())
	}
	if !models.IsTxRef(tx) {
		c.logger.Error(ctx, "ledger returned malformed reference", "ledger", s.Name, "record_id", recordID, "tx", tx)
		return models.FailedRef("malformed transaction reference")
	}
	c.logger.Info(ctx, "anchored", "ledger", s.Name, "record_id", recordID, "tx", tx)
	return models.ConfirmedRef(tx)
}

// Lookup reads recordID from every configured ledger in parallel and
// returns the hit from the earliest ledger in configured order.
func (c *Coordinator) Lookup(ctx context.Context, recordID string) (*Evidence, error) {
	type result struct {
		ev  *Evidence
		err error
	}
	results := make([]result, len(c.slots))
	var wg sync.WaitGroup

	asked := 0
	for i, s := range c.slots {
		if !s.usable() {
			continue
		}
		asked++
		wg.Add(1)
		go func(i int, s Slot) {
			defer wg.Done()
			ev, err := callWithTimeout(ctx, c.timeout, s.Name, func(ctx context.Context) (*Evidence, error) {
				return s.Ledger.Read(ctx, recordID)
			})
			results[i] = result{ev: ev, err: err}
		}(i, s)
	}
	wg.Wait()

	if asked == 0 {
		return nil, fmt.Errorf("%w: no ledgers configured", ErrUnavailable)
	}

	var errs []error
	unavailable := false
	for i, r := range results {
		if r.ev != nil {
			r.ev.Ledger = c.slots[i].Name
			return r.ev, nil
		}
		if r.err != nil {
			errs = append(errs, r.err)
			if !errors.Is(r.err, ErrRecordNotFound) {
				unavailable = true
			}
		}
	}

	c.logger.Info(ctx, "record not found on any ledger", "record_id", recordID, "errors", len(errs))
	if unavailable {
		return nil, fmt.Errorf("%w: %s: %w", ErrUnavailable, recordID, errors.Join(errs...))
	}
	return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, recordID)
}

// callWithTimeout runs fn under its own deadline and gives up on it when
// the deadline passes even if fn ignores ctx. Panics become errors.
func callWithTimeout[T any](ctx context.Context, timeout time.Duration, name string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)

	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- result{err: fmt.Errorf("%w: %s panicked: %v", ErrSubmission, name, p)}
			}
		}()
		v, err := fn(ctx)
		done <- result{v: v, err: err}
	}()

	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		return zero, fmt.Errorf("%w: %s: %w", ErrTimeout, name, ctx.Err())
	}
}
