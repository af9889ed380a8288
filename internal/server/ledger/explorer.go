package ledger

import (
	"strings"

	"github.com/dmitrijs2005/evidencekeeper/internal/server/models"
)

// Explorer builds public block explorer links.
type Explorer struct {
	BaseURL         string
	ContractAddress string
}

// TxURL links a transaction. Sentinel refs never get a link.
func (e Explorer) TxURL(ref models.LedgerRef) (string, bool) {
	if e.BaseURL == "" || !ref.Anchored() {
		return "", false
	}
	return strings.TrimRight(e.BaseURL, "/") + "/tx/" + ref.TxHash, true
}

func (e Explorer) AddressURL() (string, bool) {
	if e.BaseURL == "" || e.ContractAddress == "" {
		return "", false
	}
	return strings.TrimRight(e.BaseURL, "/") + "/address/" + e.ContractAddress, true
}
