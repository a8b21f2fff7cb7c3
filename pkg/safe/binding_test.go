package safe

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	pkgTesting "github.com/arnac-io/opensafeapi/pkg/testing"
)

// modelBackend answers eth_call against a contract model.
type modelBackend struct {
	bind.ContractBackend
	contract *Contract
}

func (b *modelBackend) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	return []byte{0x60}, nil
}

func (b *modelBackend) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return b.contract.Clone().Invoke(msg.From, msg.Data)
}

func TestBinding_views(t *testing.T) {
	owners := pkgTesting.Accounts(t, "binding", 3)
	c := newTestContract(t, owners, 2)
	module := pkgTesting.NewAccount(t, "binding-module").Address
	require.Nil(t, c.EnableModule(testSafe, module))
	execSelf(t, c, nil, owners[0], owners[1])

	b := NewBinding(testSafe, &modelBackend{contract: c})
	opts := &bind.CallOpts{Context: context.Background()}

	state, err := b.State(opts)
	require.Nil(t, err)
	require.Equal(t, pkgTesting.Addresses(owners), state.Owners)
	require.Equal(t, []common.Address{module}, state.Modules)
	require.Equal(t, uint8(2), state.Threshold)
	require.Equal(t, int64(1), state.Nonce.Int64())

	isOwner, err := b.IsOwner(opts, owners[2].Address)
	require.Nil(t, err)
	require.True(t, isOwner)

	name, err := b.Name(opts)
	require.Nil(t, err)
	require.Equal(t, Name, name)
	version, err := b.Version(opts)
	require.Nil(t, err)
	require.Equal(t, Version, version)

	total, err := b.TotalGasCosts(opts, big.NewInt(100), nil)
	require.Nil(t, err)
	require.Equal(t, int64(100+PaymentBaseGas), total.Int64())

	tx := baseTransaction()
	hash, err := b.GetTransactionHash(opts, tx)
	require.Nil(t, err)
	require.Equal(t, TransactionHash(testSafe, tx), hash)
}

func TestBinding_RequiredTxGas(t *testing.T) {
	owners := pkgTesting.Accounts(t, "binding-gas", 1)
	handler := &recordingHandler{failFor: testToken}
	c := NewContract(testSafe, common.Address{}, handler)
	require.Nil(t, c.Setup(pkgTesting.Addresses(owners), 1, common.Address{}, nil))
	b := NewBinding(testSafe, &modelBackend{contract: c})

	gas, err := b.RequiredTxGas(context.Background(), testTo, big.NewInt(0), []byte{0x01}, OperationCall)
	require.Nil(t, err)
	require.Equal(t, int64(21_000), gas.Int64())

	_, err = b.RequiredTxGas(context.Background(), testToken, nil, nil, OperationCall)
	require.NotNil(t, err)
}

func TestBinding_ExecAndPayTransaction(t *testing.T) {
	owners := pkgTesting.Accounts(t, "binding-exec", 3)
	c := newTestContract(t, owners, 2)
	c.Deposit(big.NewInt(1000))
	relayer := pkgTesting.NewAccount(t, "binding-relayer")

	auth, err := bind.NewKeyedTransactorWithChainID(relayer.Key, big.NewInt(1337))
	require.Nil(t, err)
	auth.NoSend = true
	auth.Nonce = big.NewInt(0)
	auth.GasPrice = big.NewInt(1)
	auth.GasLimit = 500_000

	tx := Transaction{To: testTo, Value: big.NewInt(10), Nonce: c.Nonce()}
	b := NewBinding(testSafe, &modelBackend{contract: c})
	ethTx, err := b.ExecAndPayTransaction(auth, tx, sortedSignatures(t, c.TransactionHash(tx), owners[1], owners[2]))
	require.Nil(t, err)
	require.Equal(t, testSafe, *ethTx.To())

	_, err = c.Invoke(relayer.Address, ethTx.Data())
	require.Nil(t, err)
	require.Equal(t, int64(1), c.Nonce().Int64())
	require.Equal(t, int64(990), c.Balance().Int64())
}
