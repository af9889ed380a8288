package ledger

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// registryABI is the evidence registry contract surface deployed on every ledger.
const registryABI = `[
 {"type":"function","name":"storeEvidence","stateMutability":"nonpayable",
  "inputs":[{"name":"recordId","type":"string"},{"name":"plate","type":"string"},{"name":"ipfsCid","type":"string"},{"name":"hash","type":"string"}],
  "outputs":[]},
 {"type":"function","name":"updateEvidence","stateMutability":"nonpayable",
  "inputs":[{"name":"recordId","type":"string"},{"name":"newIpfsCid","type":"string"},{"name":"newHash","type":"string"}],
  "outputs":[]},
 {"type":"function","name":"getEvidence","stateMutability":"view",
  "inputs":[{"name":"recordId","type":"string"}],
  "outputs":[{"name":"","type":"tuple","components":[
    {"name":"plate","type":"string"},
    {"name":"ipfsCid","type":"string"},
    {"name":"hash","type":"string"},
    {"name":"timestamp","type":"uint256"},
    {"name":"submittedBy","type":"address"},
    {"name":"exists","type":"bool"}]}]},
 {"type":"function","name":"recordExists","stateMutability":"view",
  "inputs":[{"name":"recordId","type":"string"}],
  "outputs":[{"name":"","type":"bool"}]},
 {"type":"function","name":"getTotalRecords","stateMutability":"view",
  "inputs":[],
  "outputs":[{"name":"","type":"uint256"}]},
 {"type":"event","name":"EvidenceStored","anonymous":false,
  "inputs":[{"name":"recordId","type":"string","indexed":true},{"name":"plate","type":"string","indexed":false},{"name":"ipfsCid","type":"string","indexed":false},{"name":"hash","type":"string","indexed":false},{"name":"timestamp","type":"uint256","indexed":false},{"name":"submittedBy","type":"address","indexed":true}]}
]`

// onchainEvidence mirrors the getEvidence tuple.
type onchainEvidence struct {
	Plate       string
	IpfsCid     string
	Hash        string
	Timestamp   *big.Int
	SubmittedBy common.Address
	Exists      bool
}

type registry interface {
	StoreEvidence(opts *bind.TransactOpts, recordID, plate, cid, hash string) (*types.Transaction, error)
	UpdateEvidence(opts *bind.TransactOpts, recordID, cid, hash string) (*types.Transaction, error)
	GetEvidence(opts *bind.CallOpts, recordID string) (onchainEvidence, error)
	RecordExists(opts *bind.CallOpts, recordID string) (bool, error)
	TotalRecords(opts *bind.CallOpts) (*big.Int, error)
}

type boundRegistry struct {
	contract *bind.BoundContract
}

func newBoundRegistry(address common.Address, backend bind.ContractBackend) (*boundRegistry, error) {
	parsed, err := abi.JSON(strings.NewReader(registryABI))
	if err != nil {
		return nil, err
	}
	return &boundRegistry{contract: bind.NewBoundContract(address, parsed, backend, backend, backend)}, nil
}

func (r *boundRegistry) StoreEvidence(opts *bind.TransactOpts, recordID, plate, cid, hash string) (*types.Transaction, error) {
	return r.contract.Transact(opts, "storeEvidence", recordID, plate, cid, hash)
}

func (r *boundRegistry) UpdateEvidence(opts *bind.TransactOpts, recordID, cid, hash string) (*types.Transaction, error) {
	return r.contract.Transact(opts, "updateEvidence", recordID, cid, hash)
}

func (r *boundRegistry) GetEvidence(opts *bind.CallOpts, recordID string) (onchainEvidence, error) {
	var out []interface{}
	if err := r.contract.Call(opts, &out, "getEvidence", recordID); err != nil {
		return onchainEvidence{}, err
	}
	return *abi.ConvertType(out[0], new(onchainEvidence)).(*onchainEvidence), nil
}

func (r *boundRegistry) RecordExists(opts *bind.CallOpts, recordID string) (bool, error) {
	var out []interface{}
	if err := r.contract.Call(opts, &out, "recordExists", recordID); err != nil {
		return false, err
	}
	return *abi.ConvertType(out[0], new(bool)).(*bool), nil
}

func (r *boundRegistry) TotalRecords(opts *bind.CallOpts) (*big.Int, error) {
	var out []interface{}
	if err := r.contract.Call(opts, &out, "getTotalRecords"); err != nil {
		return nil, err
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}
