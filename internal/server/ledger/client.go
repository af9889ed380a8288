// Package ledger anchors evidence fingerprints on smart-contract ledgers
// and reads them back. Client talks to one network; Coordinator fans out
// over all of them.
package ledger

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/evidencekeeper/internal/logging"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Settings configure one ledger. ChainID 0 means ask the node.
type Settings struct {
	Name            string
	RPCURL          string
	ContractAddress string
	ExplorerURL     string
	ChainID         int64
	SigningKey      string
	Confirmations   int
}

// Evidence is a record as stored on a ledger.
type Evidence struct {
	Ledger      string
	RecordID    string
	Plate       string
	ContentID   string
	ContentHash string
	Timestamp   int64
	SubmittedBy string
}

type chainBackend interface {
	bind.DeployBackend
	BlockNumber(ctx context.Context) (uint64, error)
	ChainID(ctx context.Context) (*big.Int, error)
	Close()
}

var dialRPC = func(ctx context.Context, rawURL string) (*ethclient.Client, error) {
	return ethclient.DialContext(ctx, rawURL)
}

var waitMined = bind.WaitMined

type Client struct {
	settings     Settings
	address      common.Address
	key          *ecdsa.PrivateKey
	backend      chainBackend
	registry     registry
	pollInterval time.Duration
	logger       logging.Logger

	// sendMu serializes nonce allocation for the shared signing key.
	sendMu  sync.Mutex
	idMu    sync.Mutex
	chainId *big.Int
}

// NewClient validates s and dials the ledger. Missing or invalid
// configuration yields a *NotConfiguredError.
func NewClient(ctx context.Context, s Settings, l logging.Logger) (*Client, error) {
	address, key, err := s.validate()
	if err != nil {
		return nil, err
	}

	ec, err := dialRPC(ctx, s.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrUnavailable, s.Name, err)
	}

	reg, err := newBoundRegistry(address, ec)
	if err != nil {
		ec.Close()
		return nil, fmt.Errorf("bind registry on %s: %w", s.Name, err)
	}

	return newClient(s, address, key, ec, reg, l), nil
}

func newClient(s Settings, address common.Address, key *ecdsa.PrivateKey, backend chainBackend, reg registry, l logging.Logger) *Client {
	if s.Confirmations < 1 {
		s.Confirmations = 1
	}
	return &Client{
		settings:     s,
		address:      address,
		key:          key,
		backend:      backend,
		registry:     reg,
		pollInterval: 2 * time.Second,
		logger:       l.With("module", "ledger", "ledger", s.Name),
	}
}

func (s Settings) validate() (common.Address, *ecdsa.PrivateKey, error) {
	notConfigured := func(missing, detail string) error {
		return &NotConfiguredError{Ledger: s.Name, Missing: missing, Detail: detail}
	}

	rpc := strings.TrimSpace(s.RPCURL)
	if rpc == "" {
		return common.Address{}, nil, notConfigured("rpc url", "")
	}
	u, err := url.Parse(rpc)
	if err != nil || u.Host == "" {
		return common.Address{}, nil, notConfigured("rpc url", "not a valid url")
	}
	switch u.Scheme {
	case "http", "https", "ws", "wss":
	default:
		return common.Address{}, nil, notConfigured("rpc url", "unsupported scheme "+u.Scheme)
	}

	addr := strings.TrimSpace(s.ContractAddress)
	if addr == "" {
		return common.Address{}, nil, notConfigured("contract address", "")
	}
	if !common.IsHexAddress(addr) {
		return common.Address{}, nil, notConfigured("contract address", "not a hex address")
	}
	address := common.HexToAddress(addr)
	if address == (common.Address{}) {
		return common.Address{}, nil, notConfigured("contract address", "zero address")
	}

	rawKey := strings.TrimPrefix(strings.TrimSpace(s.SigningKey), "0x")
	if rawKey == "" {
		return common.Address{}, nil, notConfigured("signing key", "")
	}
	key, err := crypto.HexToECDSA(rawKey)
	if err != nil {
		return common.Address{}, nil, notConfigured("signing key", "not a valid secp256k1 key")
	}

	return address, key, nil
}

func (c *Client) Name() string { return c.settings.Name }

// Explorer returns the block explorer for this ledger.
func (c *Client) Explorer() Explorer {
	return Explorer{BaseURL: c.settings.ExplorerURL, ContractAddress: c.address.Hex()}
}

func (c *Client) Close() {
	if c.backend != nil {
		c.backend.Close()
	}
}

func (c *Client) chainID(ctx context.Context) (*big.Int, error) {
	c.idMu.Lock()
	defer c.idMu.Unlock()

	if c.chainId != nil {
		return c.chainId, nil
	}
	if c.settings.ChainID > 0 {
		c.chainId = big.NewInt(c.settings.ChainID)
		return c.chainId, nil
	}
	id, err := c.backend.ChainID(ctx)
	if err != nil {
		return nil, err
	}
	c.chainId = id
	return id, nil
}

func (c *Client) send(ctx context.Context, fn func(opts *bind.TransactOpts) (*types.Transaction, error)) (*types.Transaction, error) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	opts, err := c.transactOpts(ctx)
	if err != nil {
		return nil, err
	}
	return fn(opts)
}

func (c *Client) transactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	id, err := c.chainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("chain id: %w", err)
	}
	opts, err := bind.NewKeyedTransactorWithChainID(c.key, id)
	if err != nil {
		return nil, err
	}
	opts.Context = ctx
	return opts, nil
}

// Submit anchors one record and returns the transaction hash once the
// configured number of confirmations is reached.
func (c *Client) Submit(ctx context.Context, recordID, plate, cid, hash string) (string, error) {
	tx, err := c.send(ctx, func(opts *bind.TransactOpts) (*types.Transaction, error) {
		return c.registry.StoreEvidence(opts, recordID, plate, cid, hash)
	})
	if err != nil {
		return "", fmt.Errorf("%w: %s: storeEvidence: %v", ErrSubmission, c.Name(), err)
	}
	c.logger.Info(ctx, "transaction sent", "record_id", recordID, "tx", tx.Hash().Hex())

	if err := c.awaitConfirmations(ctx, tx); err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrSubmission, c.Name(), err)
	}

	c.logger.Info(ctx, "transaction confirmed", "record_id", recordID, "tx", tx.Hash().Hex(), "confirmations", c.settings.Confirmations)
	return tx.Hash().Hex(), nil
}

// Amend replaces the CID and hash of a record this signer submitted.
func (c *Client) Amend(ctx context.Context, recordID, cid, hash string) (string, error) {
	tx, err := c.send(ctx, func(opts *bind.TransactOpts) (*types.Transaction, error) {
		return c.registry.UpdateEvidence(opts, recordID, cid, hash)
	})
	if err != nil {
		return "", fmt.Errorf("%w: %s: updateEvidence: %v", ErrSubmission, c.Name(), err)
	}
	if err := c.awaitConfirmations(ctx, tx); err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrSubmission, c.Name(), err)
	}
	return tx.Hash().Hex(), nil
}

func (c *Client) awaitConfirmations(ctx context.Context, tx *types.Transaction) error {
	receipt, err := waitMined(ctx, c.backend, tx)
	if err != nil {
		return fmt.Errorf("wait mined: %w", err)
	}
	if receipt == nil {
		return fmt.Errorf("no receipt for %s", tx.Hash().Hex())
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("transaction %s reverted", tx.Hash().Hex())
	}
	if c.settings.Confirmations <= 1 || receipt.BlockNumber == nil {
		return nil
	}

	target := receipt.BlockNumber.Uint64() + uint64(c.settings.Confirmations) - 1
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		head, err := c.backend.BlockNumber(ctx)
		if err != nil {
			return fmt.Errorf("block number: %w", err)
		}
		if head >= target {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Read returns the record as stored on this ledger. A missing record is
// ErrRecordNotFound; any failure to ask is ErrUnavailable.
func (c *Client) Read(ctx context.Context, recordID string) (*Evidence, error) {
	ev, err := c.registry.GetEvidence(&bind.CallOpts{Context: ctx}, recordID)
	if err != nil {
		if isRevert(err) {
			return nil, fmt.Errorf("%w: %s on %s", ErrRecordNotFound, recordID, c.Name())
		}
		return nil, fmt.Errorf("%w: %s: getEvidence: %v", ErrUnavailable, c.Name(), err)
	}
	if !ev.Exists {
		return nil, fmt.Errorf("%w: %s on %s", ErrRecordNotFound, recordID, c.Name())
	}

	var ts int64
	if ev.Timestamp != nil {
		ts = ev.Timestamp.Int64()
	}
	return &Evidence{
		Ledger:      c.Name(),
		RecordID:    recordID,
		Plate:       ev.Plate,
		ContentID:   ev.IpfsCid,
		ContentHash: ev.Hash,
		Timestamp:   ts,
		SubmittedBy: ev.SubmittedBy.Hex(),
	}, nil
}

func (c *Client) Exists(ctx context.Context, recordID string) (bool, error) {
	ok, err := c.registry.RecordExists(&bind.CallOpts{Context: ctx}, recordID)
	if err != nil {
		return false, fmt.Errorf("%w: %s: recordExists: %v", ErrUnavailable, c.Name(), err)
	}
	return ok, nil
}

func (c *Client) TotalRecords(ctx context.Context) (uint64, error) {
	n, err := c.registry.TotalRecords(&bind.CallOpts{Context: ctx})
	if err != nil {
		return 0, fmt.Errorf("%w: %s: getTotalRecords: %v", ErrUnavailable, c.Name(), err)
	}
	return n.Uint64(), nil
}

func isRevert(err error) bool {
	if errors.Is(err, bind.ErrNoCode) {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "execution reverted") || strings.Contains(msg, "record does not exist")
}
