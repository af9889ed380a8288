package ledger

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/evidencekeeper/internal/logging"
	"github.com/dmitrijs2005/evidencekeeper/internal/server/models"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testKey      = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	testContract = "0x5FbDB2315678afecb367f032d93F642f64180aa3"
)

type fakeBackend struct {
	chainBackend

	receipt      *types.Receipt
	receiptErr   error
	heads        []uint64
	headCalls    int32
	chainID      int64
	chainIDCalls int32
	closed       bool
}

func (f *fakeBackend) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	return f.receipt, f.receiptErr
}

func (f *fakeBackend) BlockNumber(ctx context.Context) (uint64, error) {
	i := int(atomic.AddInt32(&f.headCalls, 1)) - 1
	if i >= len(f.heads) {
		i = len(f.heads) - 1
	}
	return f.heads[i], nil
}

func (f *fakeBackend) ChainID(ctx context.Context) (*big.Int, error) {
	atomic.AddInt32(&f.chainIDCalls, 1)
	return big.NewInt(f.chainID), nil
}

func (f *fakeBackend) Close() { f.closed = true }

type fakeRegistry struct {
	registry

	tx        *types.Transaction
	sendErr   error
	gotFrom   common.Address
	gotArgs   []string
	evidence  onchainEvidence
	readErr   error
	exists    bool
	total     *big.Int
	sendCalls int32
}

func (f *fakeRegistry) StoreEvidence(opts *bind.TransactOpts, recordID, plate, cid, hash string) (*types.Transaction, error) {
	atomic.AddInt32(&f.sendCalls, 1)
	f.gotFrom = opts.From
	f.gotArgs = []string{recordID, plate, cid, hash}
	return f.tx, f.sendErr
}

func (f *fakeRegistry) UpdateEvidence(opts *bind.TransactOpts, recordID, cid, hash string) (*types.Transaction, error) {
	f.gotArgs = []string{recordID, cid, hash}
	return f.tx, f.sendErr
}

func (f *fakeRegistry) GetEvidence(opts *bind.CallOpts, recordID string) (onchainEvidence, error) {
	return f.evidence, f.readErr
}

func (f *fakeRegistry) RecordExists(opts *bind.CallOpts, recordID string) (bool, error) {
	return f.exists, f.readErr
}

func (f *fakeRegistry) TotalRecords(opts *bind.CallOpts) (*big.Int, error) {
	return f.total, f.readErr
}

func testTx() *types.Transaction {
	return types.NewTx(&types.LegacyTx{Nonce: 7, Gas: 300000, GasPrice: big.NewInt(1), Value: big.NewInt(0)})
}

func newTestClient(t *testing.T, s Settings, b *fakeBackend, r *fakeRegistry) *Client {
	t.Helper()
	key, err := crypto.HexToECDSA(testKey)
	require.NoError(t, err)
	if s.Name == "" {
		s.Name = "scroll"
	}
	c := newClient(s, common.HexToAddress(testContract), key, b, r, logging.NewDiscard())
	c.pollInterval = time.Millisecond
	return c
}

func okReceipt(block int64) *types.Receipt {
	return &types.Receipt{Status: types.ReceiptStatusSuccessful, BlockNumber: big.NewInt(block)}
}

func TestSettings_Validate(t *testing.T) {
	valid := Settings{Name: "scroll", RPCURL: "https://sepolia-rpc.scroll.io", ContractAddress: testContract, SigningKey: testKey}

	tests := []struct {
		name    string
		mutate  func(s *Settings)
		missing string
	}{
		{name: "no rpc", mutate: func(s *Settings) { s.RPCURL = " " }, missing: "rpc url"},
		{name: "bad rpc", mutate: func(s *Settings) { s.RPCURL = "sepolia" }, missing: "rpc url"},
		{name: "bad scheme", mutate: func(s *Settings) { s.RPCURL = "ftp://node" }, missing: "rpc url"},
		{name: "no contract", mutate: func(s *Settings) { s.ContractAddress = "" }, missing: "contract address"},
		{name: "zero contract", mutate: func(s *Settings) { s.ContractAddress = "0x0000000000000000000000000000000000000000" }, missing: "contract address"},
		{name: "bad contract", mutate: func(s *Settings) { s.ContractAddress = "0x1234" }, missing: "contract address"},
		{name: "no key", mutate: func(s *Settings) { s.SigningKey = "" }, missing: "signing key"},
		{name: "bad key", mutate: func(s *Settings) { s.SigningKey = "0xnothex" }, missing: "signing key"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid
			tt.mutate(&s)

			_, _, err := s.validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrNotConfigured)

			var nce *NotConfiguredError
			require.ErrorAs(t, err, &nce)
			assert.Equal(t, "scroll", nce.Ledger)
			assert.Equal(t, tt.missing, nce.Missing)
		})
	}

	addr, key, err := valid.validate()
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(testContract), addr)
	assert.NotNil(t, key)

	withPrefix := valid
	withPrefix.SigningKey = "0x" + testKey
	_, _, err = withPrefix.validate()
	assert.NoError(t, err)
}

func TestNewClient_NotConfigured(t *testing.T) {
	_, err := NewClient(context.Background(), Settings{Name: "arbitrum"}, logging.NewDiscard())
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.Contains(t, err.Error(), "arbitrum")
}

func TestNewClient_BuildsWithoutNetwork(t *testing.T) {
	c, err := NewClient(context.Background(), Settings{
		Name: "local", RPCURL: "http://127.0.0.1:8545", ContractAddress: testContract,
		SigningKey: testKey, ExplorerURL: "https://explorer.example",
	}, logging.NewDiscard())
	require.NoError(t, err)
	defer c.Close()

	assert.Equal(t, "local", c.Name())
	assert.Equal(t, 1, c.settings.Confirmations)
	assert.Equal(t, common.HexToAddress(testContract).Hex(), c.Explorer().ContractAddress)
}

func TestClient_Submit_WaitsForConfirmations(t *testing.T) {
	b := &fakeBackend{receipt: okReceipt(100), heads: []uint64{100, 101, 102}}
	r := &fakeRegistry{tx: testTx()}
	c := newTestClient(t, Settings{ChainID: 534351, Confirmations: 3}, b, r)

	ref, err := c.Submit(context.Background(), "ABC123-1700000000", "ABC123", "bafy", strings.Repeat("a", 64))
	require.NoError(t, err)

	assert.Equal(t, r.tx.Hash().Hex(), ref)
	assert.True(t, models.IsTxRef(ref))
	assert.Equal(t, []string{"ABC123-1700000000", "ABC123", "bafy", strings.Repeat("a", 64)}, r.gotArgs)
	assert.EqualValues(t, 3, b.headCalls)
	assert.Zero(t, b.chainIDCalls, "configured chain id must be used")

	key, _ := crypto.HexToECDSA(testKey)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), r.gotFrom)
}

func TestClient_Submit_SingleConfirmationSkipsPolling(t *testing.T) {
	b := &fakeBackend{receipt: okReceipt(5), heads: []uint64{5}, chainID: 421614}
	r := &fakeRegistry{tx: testTx()}
	c := newTestClient(t, Settings{}, b, r)

	_, err := c.Submit(context.Background(), "id-1700000000", "id", "cid", "h")
	require.NoError(t, err)
	_, err = c.Submit(context.Background(), "id-1700000001", "id", "cid", "h")
	require.NoError(t, err)

	assert.Zero(t, b.headCalls)
	assert.EqualValues(t, 1, b.chainIDCalls, "chain id is fetched once and cached")
}

func TestClient_Submit_Failures(t *testing.T) {
	t.Run("send rejected", func(t *testing.T) {
		c := newTestClient(t, Settings{ChainID: 1}, &fakeBackend{}, &fakeRegistry{sendErr: errors.New("insufficient funds")})
		_, err := c.Submit(context.Background(), "r", "p", "c", "h")
		assert.ErrorIs(t, err, ErrSubmission)
		assert.Contains(t, err.Error(), "insufficient funds")
	})

	t.Run("reverted", func(t *testing.T) {
		b := &fakeBackend{receipt: &types.Receipt{Status: types.ReceiptStatusFailed, BlockNumber: big.NewInt(1)}}
		c := newTestClient(t, Settings{ChainID: 1}, b, &fakeRegistry{tx: testTx()})
		_, err := c.Submit(context.Background(), "r", "p", "c", "h")
		assert.ErrorIs(t, err, ErrSubmission)
		assert.Contains(t, err.Error(), "reverted")
	})

	t.Run("wait cancelled", func(t *testing.T) {
		orig := waitMined
		t.Cleanup(func() { waitMined = orig })
		waitMined = func(ctx context.Context, b bind.DeployBackend, tx *types.Transaction) (*types.Receipt, error) {
			return nil, context.DeadlineExceeded
		}

		c := newTestClient(t, Settings{ChainID: 1}, &fakeBackend{}, &fakeRegistry{tx: testTx()})
		_, err := c.Submit(context.Background(), "r", "p", "c", "h")
		assert.ErrorIs(t, err, ErrSubmission)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("confirmation wait cancelled", func(t *testing.T) {
		b := &fakeBackend{receipt: okReceipt(10), heads: []uint64{10}}
		c := newTestClient(t, Settings{ChainID: 1, Confirmations: 5}, b, &fakeRegistry{tx: testTx()})

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err := c.Submit(ctx, "r", "p", "c", "h")
		assert.ErrorIs(t, err, ErrSubmission)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestClient_Read(t *testing.T) {
	submitter := common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")

	t.Run("found", func(t *testing.T) {
		r := &fakeRegistry{evidence: onchainEvidence{
			Plate: "ABC123", IpfsCid: "bafy", Hash: "abc", Timestamp: big.NewInt(1700000005),
			SubmittedBy: submitter, Exists: true,
		}}
		ev, err := newTestClient(t, Settings{}, &fakeBackend{}, r).Read(context.Background(), "ABC123-1700000000")
		require.NoError(t, err)
		assert.Equal(t, &Evidence{
			Ledger: "scroll", RecordID: "ABC123-1700000000", Plate: "ABC123", ContentID: "bafy",
			ContentHash: "abc", Timestamp: 1700000005, SubmittedBy: submitter.Hex(),
		}, ev)
	})

	t.Run("exists flag false", func(t *testing.T) {
		_, err := newTestClient(t, Settings{}, &fakeBackend{}, &fakeRegistry{}).Read(context.Background(), "x-1700000000")
		assert.ErrorIs(t, err, ErrRecordNotFound)
	})

	t.Run("reverted", func(t *testing.T) {
		r := &fakeRegistry{readErr: errors.New("execution reverted: Record does not exist")}
		_, err := newTestClient(t, Settings{}, &fakeBackend{}, r).Read(context.Background(), "x-1700000000")
		assert.ErrorIs(t, err, ErrRecordNotFound)
	})

	t.Run("unreachable", func(t *testing.T) {
		r := &fakeRegistry{readErr: errors.New("dial tcp: connection refused")}
		_, err := newTestClient(t, Settings{}, &fakeBackend{}, r).Read(context.Background(), "x-1700000000")
		assert.ErrorIs(t, err, ErrUnavailable)
		assert.NotErrorIs(t, err, ErrRecordNotFound)
	})

	t.Run("no contract code", func(t *testing.T) {
		r := &fakeRegistry{readErr: bind.ErrNoCode}
		_, err := newTestClient(t, Settings{}, &fakeBackend{}, r).Read(context.Background(), "x-1700000000")
		assert.ErrorIs(t, err, ErrUnavailable)
	})
}

func TestClient_ExistsTotalAmend(t *testing.T) {
	r := &fakeRegistry{exists: true, total: big.NewInt(42), tx: testTx()}
	c := newTestClient(t, Settings{ChainID: 1}, &fakeBackend{receipt: okReceipt(1)}, r)

	ok, err := c.Exists(context.Background(), "r")
	require.NoError(t, err)
	assert.True(t, ok)

	n, err := c.TotalRecords(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 42, n)

	ref, err := c.Amend(context.Background(), "r", "bafy2", "hash2")
	require.NoError(t, err)
	assert.Equal(t, r.tx.Hash().Hex(), ref)
	assert.Equal(t, []string{"r", "bafy2", "hash2"}, r.gotArgs)

	r.readErr = errors.New("timeout")
	_, err = c.Exists(context.Background(), "r")
	assert.ErrorIs(t, err, ErrUnavailable)
	_, err = c.TotalRecords(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestClient_Close(t *testing.T) {
	b := &fakeBackend{}
	newTestClient(t, Settings{}, b, &fakeRegistry{}).Close()
	assert.True(t, b.closed)
}

func TestExplorer(t *testing.T) {
	e := Explorer{BaseURL: "https://sepolia.scrollscan.com/", ContractAddress: testContract}
	tx := "0x" + strings.Repeat("ab", 32)

	u, ok := e.TxURL(models.ConfirmedRef(tx))
	assert.True(t, ok)
	assert.Equal(t, "https://sepolia.scrollscan.com/tx/"+tx, u)

	_, ok = e.TxURL(models.MockRef())
	assert.False(t, ok)
	_, ok = Explorer{}.TxURL(models.ConfirmedRef(tx))
	assert.False(t, ok)

	u, ok = e.AddressURL()
	assert.True(t, ok)
	assert.Equal(t, "https://sepolia.scrollscan.com/address/"+testContract, u)
}
