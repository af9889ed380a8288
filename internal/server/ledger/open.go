package ledger

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/evidencekeeper/internal/logging"
)

// Open builds one slot per ledger, in order. Ledgers that cannot be built
// become skipped or failed slots instead of aborting startup. The returned
// func closes every client that was built.
func Open(ctx context.Context, all []Settings, l logging.Logger) ([]Slot, func()) {
	slots := make([]Slot, 0, len(all))
	var clients []*Client

	for _, s := range all {
		slot := Slot{
			Name:     s.Name,
			Explorer: Explorer{BaseURL: s.ExplorerURL, ContractAddress: s.ContractAddress},
		}

		c, err := NewClient(ctx, s, l)
		switch {
		case err == nil:
			slot.Ledger = c
			slot.Explorer = c.Explorer()
			clients = append(clients, c)
			l.Info(ctx, "ledger configured", "ledger", s.Name, "rpc", s.RPCURL, "contract", c.address.Hex())
		case errors.Is(err, ErrNotConfigured):
			slot.Err = err
			l.Warn(ctx, "ledger not configured", "ledger", s.Name, "error", err)
		default:
			slot.Err = err
			l.Error(ctx, "ledger client failed", "ledger", s.Name, "error", err)
		}
		slots = append(slots, slot)
	}

	return slots, func() {
		for _, c := range clients {
			c.Close()
		}
	}
}
