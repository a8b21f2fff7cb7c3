package safe

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/go-faster/errors"
)

// Binding talks to a deployed safe.
type Binding struct {
	address  common.Address
	caller   bind.ContractCaller
	contract *bind.BoundContract
}

func NewBinding(address common.Address, backend bind.ContractBackend) *Binding {
	return &Binding{
		address:  address,
		caller:   backend,
		contract: bind.NewBoundContract(address, ContractABI, backend, backend, backend),
	}
}

func (b *Binding) Address() common.Address {
	return b.address
}

func (b *Binding) call(opts *bind.CallOpts, method string, args ...interface{}) (interface{}, error) {
	var out []interface{}
	if err := b.contract.Call(opts, &out, method, args...); err != nil {
		return nil, errors.Wrapf(err, "call %v", method)
	}
	if len(out) != 1 {
		return nil, errors.Errorf("%v returned %d values", method, len(out))
	}
	return out[0], nil
}

func (b *Binding) Nonce(opts *bind.CallOpts) (*big.Int, error) {
	out, err := b.call(opts, MethodNonce)
	if err != nil {
		return nil, err
	}
	return abi.ConvertType(out, new(big.Int)).(*big.Int), nil
}

func (b *Binding) GetThreshold(opts *bind.CallOpts) (uint8, error) {
	out, err := b.call(opts, MethodGetThreshold)
	if err != nil {
		return 0, err
	}
	return *abi.ConvertType(out, new(uint8)).(*uint8), nil
}

func (b *Binding) GetOwners(opts *bind.CallOpts) ([]common.Address, error) {
	out, err := b.call(opts, MethodGetOwners)
	if err != nil {
		return nil, err
	}
	return *abi.ConvertType(out, new([]common.Address)).(*[]common.Address), nil
}

func (b *Binding) GetModules(opts *bind.CallOpts) ([]common.Address, error) {
	out, err := b.call(opts, MethodGetModules)
	if err != nil {
		return nil, err
	}
	return *abi.ConvertType(out, new([]common.Address)).(*[]common.Address), nil
}

func (b *Binding) IsOwner(opts *bind.CallOpts, owner common.Address) (bool, error) {
	out, err := b.call(opts, MethodIsOwner, owner)
	if err != nil {
		return false, err
	}
	return *abi.ConvertType(out, new(bool)).(*bool), nil
}

func (b *Binding) Name(opts *bind.CallOpts) (string, error) {
	out, err := b.call(opts, MethodName)
	if err != nil {
		return "", err
	}
	return *abi.ConvertType(out, new(string)).(*string), nil
}

func (b *Binding) Version(opts *bind.CallOpts) (string, error) {
	out, err := b.call(opts, MethodVersion)
	if err != nil {
		return "", err
	}
	return *abi.ConvertType(out, new(string)).(*string), nil
}

func (b *Binding) TotalGasCosts(opts *bind.CallOpts, executionGas, dataGas *big.Int) (*big.Int, error) {
	out, err := b.call(opts, MethodTotalGasCosts, orZero(executionGas), orZero(dataGas))
	if err != nil {
		return nil, err
	}
	return abi.ConvertType(out, new(big.Int)).(*big.Int), nil
}

// GetTransactionHash asks the contract for the hash of tx, including tx.Nonce.
func (b *Binding) GetTransactionHash(opts *bind.CallOpts, tx Transaction) (common.Hash, error) {
	tx = tx.Normalized()
	out, err := b.call(opts, MethodGetTransactionHash,
		tx.To, tx.Value, tx.Data, uint8(tx.Operation),
		tx.SafeTxGas, tx.DataGas, tx.GasPrice, tx.GasToken, tx.Nonce)
	if err != nil {
		return common.Hash{}, err
	}
	return common.Hash(*abi.ConvertType(out, new([32]byte)).(*[32]byte)), nil
}

// State reads owners, modules, threshold and nonce. Pin opts.BlockNumber
// to get a consistent snapshot.
func (b *Binding) State(opts *bind.CallOpts) (State, error) {
	owners, err := b.GetOwners(opts)
	if err != nil {
		return State{}, err
	}
	modules, err := b.GetModules(opts)
	if err != nil {
		return State{}, err
	}
	threshold, err := b.GetThreshold(opts)
	if err != nil {
		return State{}, err
	}
	nonce, err := b.Nonce(opts)
	if err != nil {
		return State{}, err
	}
	return State{Owners: owners, Modules: modules, Threshold: threshold, Nonce: nonce}, nil
}

// RequiredTxGas runs requiredTxGas as the safe itself and decodes the estimate
// from the revert payload.
func (b *Binding) RequiredTxGas(ctx context.Context, to common.Address, value *big.Int, data []byte, op Operation) (*big.Int, error) {
	input, err := PackRequiredTxGas(to, value, data, op)
	if err != nil {
		return nil, err
	}
	_, err = b.caller.CallContract(ctx, ethereum.CallMsg{From: b.address, To: &b.address, Data: input}, nil)
	if err == nil {
		return nil, errors.New("requiredTxGas did not revert")
	}
	revertData, ok := revertData(err)
	if !ok {
		return nil, errors.Wrap(err, "requiredTxGas")
	}
	return DecodeRequiredGas(revertData)
}

func revertData(err error) ([]byte, bool) {
	var dataErr rpc.DataError
	if !errors.As(err, &dataErr) {
		return nil, false
	}
	s, ok := dataErr.ErrorData().(string)
	if !ok {
		return nil, false
	}
	data, err := hexutil.Decode(s)
	if err != nil || len(data) == 0 {
		return nil, false
	}
	return data, true
}

func (b *Binding) ExecAndPayTransaction(opts *bind.TransactOpts, tx Transaction, sigs Signatures) (*types.Transaction, error) {
	tx = tx.Normalized()
	v, r, s := sigs.Split()
	return b.contract.Transact(opts, MethodExecAndPayTransaction,
		tx.To, tx.Value, tx.Data, uint8(tx.Operation),
		tx.SafeTxGas, tx.DataGas, tx.GasPrice, tx.GasToken,
		v, r, s)
}

func (b *Binding) ExecTransactionFromModule(opts *bind.TransactOpts, to common.Address, value *big.Int, data []byte, op Operation) (*types.Transaction, error) {
	return b.contract.Transact(opts, MethodExecTransactionFromModule, to, orZero(value), nonNil(data), uint8(op))
}

// Transfer sends ether to the payable fallback.
func (b *Binding) Transfer(opts *bind.TransactOpts) (*types.Transaction, error) {
	return b.contract.Transfer(opts)
}
