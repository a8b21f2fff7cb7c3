package safe

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

var (
	testSafe  = common.HexToAddress("0x5afe000000000000000000000000000000000001")
	testTo    = common.HexToAddress("0x000000000000000000000000000000000000beef")
	testToken = common.HexToAddress("0x00000000000000000000000000000000000070c1")
)

func baseTransaction() Transaction {
	return Transaction{
		To:        testTo,
		Value:     big.NewInt(1_000_000_000),
		Data:      []byte{0xca, 0xfe},
		Operation: OperationCall,
		SafeTxGas: big.NewInt(50_000),
		DataGas:   big.NewInt(10_000),
		GasPrice:  big.NewInt(2),
		GasToken:  common.Address{},
		Nonce:     big.NewInt(5),
	}
}

func TestTransactionHash_deterministic(t *testing.T) {
	tx := baseTransaction()
	h1 := TransactionHash(testSafe, tx)
	h2 := TransactionHash(testSafe, baseTransaction())
	require.Equal(t, h1, h2)
	require.NotEqual(t, common.Hash{}, h1)
}

func TestTransactionHash_nilNumbersAreZero(t *testing.T) {
	tx := Transaction{To: testTo}
	zero := Transaction{
		To:        testTo,
		Value:     new(big.Int),
		Data:      []byte{},
		SafeTxGas: new(big.Int),
		DataGas:   new(big.Int),
		GasPrice:  new(big.Int),
		Nonce:     new(big.Int),
	}
	require.Equal(t, TransactionHash(testSafe, zero), TransactionHash(testSafe, tx))
}

func TestTransactionHash_everyFieldMatters(t *testing.T) {
	base := TransactionHash(testSafe, baseTransaction())
	tests := []struct {
		name   string
		safe   common.Address
		modify func(tx *Transaction)
	}{
		{name: "to", modify: func(tx *Transaction) { tx.To = common.HexToAddress("0xdead") }},
		{name: "value", modify: func(tx *Transaction) { tx.Value = big.NewInt(1_000_000_001) }},
		{name: "data", modify: func(tx *Transaction) { tx.Data = []byte{0xca, 0xff} }},
		{name: "empty data", modify: func(tx *Transaction) { tx.Data = nil }},
		{name: "operation", modify: func(tx *Transaction) { tx.Operation = OperationDelegateCall }},
		{name: "safeTxGas", modify: func(tx *Transaction) { tx.SafeTxGas = big.NewInt(50_001) }},
		{name: "dataGas", modify: func(tx *Transaction) { tx.DataGas = big.NewInt(10_001) }},
		{name: "gasPrice", modify: func(tx *Transaction) { tx.GasPrice = big.NewInt(3) }},
		{name: "gasToken", modify: func(tx *Transaction) { tx.GasToken = testToken }},
		{name: "nonce", modify: func(tx *Transaction) { tx.Nonce = big.NewInt(6) }},
		{name: "safe", safe: common.HexToAddress("0x5afe000000000000000000000000000000000002")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := baseTransaction()
			if tt.modify != nil {
				tt.modify(&tx)
			}
			safe := testSafe
			if tt.safe != (common.Address{}) {
				safe = tt.safe
			}
			require.NotEqual(t, base, TransactionHash(safe, tx))
		})
	}
}

func TestTransactionHash_matchesContractView(t *testing.T) {
	c := NewContract(testSafe, common.Address{}, nil)
	tx := baseTransaction()
	input, err := ContractABI.Pack(MethodGetTransactionHash,
		tx.To, tx.Value, tx.Data, uint8(tx.Operation), tx.SafeTxGas, tx.DataGas, tx.GasPrice, tx.GasToken, tx.Nonce)
	require.Nil(t, err)
	output, err := c.Invoke(common.Address{}, input)
	require.Nil(t, err)
	values, err := ContractABI.Unpack(MethodGetTransactionHash, output)
	require.Nil(t, err)
	require.Equal(t, [32]byte(TransactionHash(testSafe, tx)), values[0])
}

func TestTransaction_Validate(t *testing.T) {
	tests := []struct {
		name    string
		tx      Transaction
		wantErr bool
	}{
		{name: "all good", tx: baseTransaction()},
		{name: "empty", tx: Transaction{}},
		{name: "negative value", tx: Transaction{Value: big.NewInt(-1)}, wantErr: true},
		{name: "nonce too big", tx: Transaction{Nonce: new(big.Int).Lsh(big.NewInt(1), 256)}, wantErr: true},
		{name: "unknown operation", tx: Transaction{Operation: 3}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.tx.Validate()
			if tt.wantErr {
				require.NotNil(t, err)
				return
			}
			require.Nil(t, err)
		})
	}
}

func TestParseOperation(t *testing.T) {
	tests := []struct {
		input   string
		want    Operation
		wantErr bool
	}{
		{input: "call", want: OperationCall},
		{input: "", want: OperationCall},
		{input: "DelegateCall", want: OperationDelegateCall},
		{input: "2", want: OperationCreate},
		{input: "3", wantErr: true},
		{input: "send", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			op, err := ParseOperation(tt.input)
			if tt.wantErr {
				require.NotNil(t, err)
				return
			}
			require.Nil(t, err)
			require.Equal(t, tt.want, op)
		})
	}
}
