package safe

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// Transaction is everything owners sign off-chain.
// Nil numeric fields are treated as zero.
type Transaction struct {
	To        common.Address
	Value     *big.Int
	Data      []byte
	Operation Operation
	SafeTxGas *big.Int
	DataGas   *big.Int
	GasPrice  *big.Int
	GasToken  common.Address
	Nonce     *big.Int
}

// Normalized returns a copy with every nil number replaced by zero.
func (tx Transaction) Normalized() Transaction {
	tx.Value = orZero(tx.Value)
	tx.SafeTxGas = orZero(tx.SafeTxGas)
	tx.DataGas = orZero(tx.DataGas)
	tx.GasPrice = orZero(tx.GasPrice)
	tx.Nonce = orZero(tx.Nonce)
	if tx.Data == nil {
		tx.Data = []byte{}
	}
	return tx
}

// WithNonce returns a copy of the transaction bound to another nonce.
func (tx Transaction) WithNonce(nonce *big.Int) Transaction {
	tx.Nonce = new(big.Int).Set(orZero(nonce))
	return tx
}

// Validate checks that every field fits its ABI type.
func (tx Transaction) Validate() error {
	if !tx.Operation.IsValid() {
		return fmt.Errorf("invalid operation %d", tx.Operation)
	}
	for name, v := range map[string]*big.Int{
		"value":     tx.Value,
		"safeTxGas": tx.SafeTxGas,
		"dataGas":   tx.DataGas,
		"gasPrice":  tx.GasPrice,
		"nonce":     tx.Nonce,
	} {
		if v == nil {
			continue
		}
		if v.Sign() < 0 || v.Cmp(maxUint256) > 0 {
			return fmt.Errorf("%v is out of uint256 range", name)
		}
	}
	return nil
}

// TransactionHash is the digest owners sign. It matches getTransactionHash
// of the contract deployed at safe: keccak256 over the tightly packed
// 0x19, 0x00, safe, to, value, data, operation, safeTxGas, dataGas,
// gasPrice, gasToken and nonce.
func TransactionHash(safe common.Address, tx Transaction) common.Hash {
	tx = tx.Normalized()
	return crypto.Keccak256Hash(
		[]byte{0x19, 0x00},
		safe.Bytes(),
		tx.To.Bytes(),
		word(tx.Value),
		tx.Data,
		[]byte{byte(tx.Operation)},
		word(tx.SafeTxGas),
		word(tx.DataGas),
		word(tx.GasPrice),
		tx.GasToken.Bytes(),
		word(tx.Nonce),
	)
}

func word(x *big.Int) []byte {
	return common.LeftPadBytes(x.Bytes(), 32)
}

func orZero(x *big.Int) *big.Int {
	if x == nil {
		return new(big.Int)
	}
	return x
}
