package safe

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// PackExecAndPayTransaction builds calldata for execAndPayTransaction.
// The nonce of tx is not part of the call: the contract uses its own.
func PackExecAndPayTransaction(tx Transaction, sigs Signatures) ([]byte, error) {
	tx = tx.Normalized()
	v, r, s := sigs.Split()
	return ContractABI.Pack(MethodExecAndPayTransaction,
		tx.To, tx.Value, tx.Data, uint8(tx.Operation),
		tx.SafeTxGas, tx.DataGas, tx.GasPrice, tx.GasToken,
		v, r, s)
}

func PackExecTransactionFromModule(to common.Address, value *big.Int, data []byte, op Operation) ([]byte, error) {
	return ContractABI.Pack(MethodExecTransactionFromModule, to, orZero(value), nonNil(data), uint8(op))
}

func PackSetup(owners []common.Address, threshold uint8, to common.Address, data []byte) ([]byte, error) {
	return ContractABI.Pack(MethodSetup, owners, threshold, to, nonNil(data))
}

func PackAddOwnerWithThreshold(owner common.Address, threshold uint8) ([]byte, error) {
	return ContractABI.Pack(MethodAddOwnerWithThreshold, owner, threshold)
}

func PackRemoveOwner(prevOwner, owner common.Address, threshold uint8) ([]byte, error) {
	return ContractABI.Pack(MethodRemoveOwner, prevOwner, owner, threshold)
}

func PackSwapOwner(prevOwner, oldOwner, newOwner common.Address) ([]byte, error) {
	return ContractABI.Pack(MethodSwapOwner, prevOwner, oldOwner, newOwner)
}

func PackChangeThreshold(threshold uint8) ([]byte, error) {
	return ContractABI.Pack(MethodChangeThreshold, threshold)
}

func PackEnableModule(module common.Address) ([]byte, error) {
	return ContractABI.Pack(MethodEnableModule, module)
}

func PackDisableModule(prevModule, module common.Address) ([]byte, error) {
	return ContractABI.Pack(MethodDisableModule, prevModule, module)
}

func PackChangeMasterCopy(masterCopy common.Address) ([]byte, error) {
	return ContractABI.Pack(MethodChangeMasterCopy, masterCopy)
}

func PackRequiredTxGas(to common.Address, value *big.Int, data []byte, op Operation) ([]byte, error) {
	return ContractABI.Pack(MethodRequiredTxGas, to, orZero(value), nonNil(data), uint8(op))
}

func PackERC20Transfer(to common.Address, amount *big.Int) ([]byte, error) {
	return ERC20ABI.Pack("transfer", to, orZero(amount))
}

// Call is decoded calldata.
type Call struct {
	Method *abi.Method
	Args   []interface{}
}

// DecodeCall decodes calldata addressed to a safe.
func DecodeCall(data []byte) (*Call, error) {
	return decodeCall(ContractABI, data)
}

// DecodeERC20Call decodes calldata addressed to a token.
func DecodeERC20Call(data []byte) (*Call, error) {
	return decodeCall(ERC20ABI, data)
}

func decodeCall(contract abi.ABI, data []byte) (*Call, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("calldata is too short: %d bytes", len(data))
	}
	method, err := contract.MethodById(data[:4])
	if err != nil {
		return nil, err
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, err
	}
	return &Call{Method: method, Args: args}, nil
}

// Address returns the i-th argument as an address.
func (c *Call) Address(i int) (common.Address, error) {
	if i >= len(c.Args) {
		return common.Address{}, fmt.Errorf("%v has no argument %d", c.Method.Name, i)
	}
	a, ok := c.Args[i].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("%v argument %d is %T, not an address", c.Method.Name, i, c.Args[i])
	}
	return a, nil
}

// Uint8 returns the i-th argument as uint8.
func (c *Call) Uint8(i int) (uint8, error) {
	if i >= len(c.Args) {
		return 0, fmt.Errorf("%v has no argument %d", c.Method.Name, i)
	}
	v, ok := c.Args[i].(uint8)
	if !ok {
		return 0, fmt.Errorf("%v argument %d is %T, not uint8", c.Method.Name, i, c.Args[i])
	}
	return v, nil
}

// BigInt returns the i-th argument as *big.Int.
func (c *Call) BigInt(i int) (*big.Int, error) {
	if i >= len(c.Args) {
		return nil, fmt.Errorf("%v has no argument %d", c.Method.Name, i)
	}
	v, ok := c.Args[i].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%v argument %d is %T, not uint256", c.Method.Name, i, c.Args[i])
	}
	return v, nil
}

// Bytes returns the i-th argument as a byte slice.
func (c *Call) Bytes(i int) ([]byte, error) {
	if i >= len(c.Args) {
		return nil, fmt.Errorf("%v has no argument %d", c.Method.Name, i)
	}
	v, ok := c.Args[i].([]byte)
	if !ok {
		return nil, fmt.Errorf("%v argument %d is %T, not bytes", c.Method.Name, i, c.Args[i])
	}
	return v, nil
}

var (
	revertSelector = crypto.Keccak256([]byte("Error(string)"))[:4]
	stringType, _  = abi.NewType("string", "", nil)
)

// encodeRequiredGas builds the revert payload of requiredTxGas: an
// Error(string) whose string is the packed uint256 of the gas used.
func encodeRequiredGas(gas *big.Int) []byte {
	packed, err := abi.Arguments{{Type: stringType}}.Pack(string(word(gas)))
	if err != nil {
		panic(err)
	}
	return append(append([]byte{}, revertSelector...), packed...)
}

// DecodeRequiredGas extracts the gas estimate from requiredTxGas revert data.
func DecodeRequiredGas(revertData []byte) (*big.Int, error) {
	reason, err := abi.UnpackRevert(revertData)
	if err != nil {
		return nil, err
	}
	if len(reason) != 32 {
		return nil, fmt.Errorf("unexpected requiredTxGas payload of %d bytes", len(reason))
	}
	return new(big.Int).SetBytes([]byte(reason)), nil
}

func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
