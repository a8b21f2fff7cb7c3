package chain

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/arnac-io/opensafeapi/pkg/core"
	"github.com/arnac-io/opensafeapi/pkg/safe"
	"github.com/arnac-io/opensafeapi/pkg/safe/safetest"
	pkgTesting "github.com/arnac-io/opensafeapi/pkg/testing"
)

func TestStorage(t *testing.T) {
	owners := pkgTesting.Accounts(t, "storage", 3)
	address := safetest.SafeAddress("storage")
	chain := safetest.NewChain()
	contract, err := chain.Deploy(address, pkgTesting.Addresses(owners), 2)
	require.Nil(t, err)
	contract.Deposit(big.NewInt(500))

	storage, err := NewStorage(zap.L(), chain, WithPreloadSafes([]common.Address{address}), WithAttempts(1))
	require.Nil(t, err)
	require.True(t, storage.IsTracked(address))
	require.Equal(t, []common.Address{address}, storage.TrackedSafes())

	ctx := context.Background()
	info, err := storage.GetSafe(ctx, address)
	require.Nil(t, err)
	require.Equal(t, safe.Name, info.Name)
	require.Equal(t, safe.Version, info.Version)
	require.Equal(t, pkgTesting.Addresses(owners), info.Owners)
	require.Equal(t, uint8(2), info.Threshold)
	require.Equal(t, int64(0), info.Nonce.Int64())
	require.Equal(t, int64(500), info.Balance.Int64())

	tx := safe.Transaction{To: common.HexToAddress("0xbeef"), Value: big.NewInt(1), Nonce: big.NewInt(7)}
	hash, err := storage.GetTransactionHash(ctx, address, tx)
	require.Nil(t, err)
	require.Equal(t, safe.TransactionHash(address, tx), hash)

	require.Nil(t, chain.Update(address, func(c *safe.Contract) error {
		return c.ChangeThreshold(address, 3)
	}))
	storage.Invalidate(ctx, address)
	nonce, err := storage.GetNonce(ctx, address)
	require.Nil(t, err)
	require.Equal(t, int64(0), nonce.Int64())

	state, err := storage.GetState(ctx, address)
	require.Nil(t, err)
	require.Equal(t, uint8(3), state.Threshold)
}

func TestStorage_notFound(t *testing.T) {
	chain := safetest.NewChain()
	storage, err := NewStorage(zap.L(), chain, WithAttempts(1))
	require.Nil(t, err)
	_, err = storage.GetSafe(context.Background(), common.HexToAddress("0x1234"))
	require.ErrorIs(t, err, core.ErrEntityNotFound)
}

func TestStorage_RequiredTxGas(t *testing.T) {
	owners := pkgTesting.Accounts(t, "storage-gas", 1)
	address := safetest.SafeAddress("storage-gas")
	chain := safetest.NewChain()
	_, err := chain.Deploy(address, pkgTesting.Addresses(owners), 1)
	require.Nil(t, err)
	storage, err := NewStorage(zap.L(), chain, WithAttempts(1))
	require.Nil(t, err)

	gas, err := storage.RequiredTxGas(context.Background(), address, safe.Transaction{To: common.HexToAddress("0xbeef")})
	require.Nil(t, err)
	require.Equal(t, int64(0), gas.Int64())

	_, err = storage.RequiredTxGas(context.Background(), address, safe.Transaction{
		To:    common.HexToAddress("0xbeef"),
		Value: big.NewInt(1),
	})
	require.ErrorIs(t, err, safe.ErrReverted)
}
