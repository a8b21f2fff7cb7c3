package blockchain

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/Narasimha1997/ratelimiter"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/arnac-io/opensafeapi/pkg/safe"
	"github.com/arnac-io/opensafeapi/pkg/safe/safetest"
	pkgTesting "github.com/arnac-io/opensafeapi/pkg/testing"
)

func TestRelayer_dropExpired(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name       string
		mempool    map[common.Hash]Submission
		wantHashes []common.Hash
	}{
		{
			name: "expire some submissions",
			mempool: map[common.Hash]Submission{
				{0x01}: {SubmittedAt: now.Unix()},
				{0x02}: {SubmittedAt: now.Add(-6 * time.Minute).Unix()},
				{0x03}: {SubmittedAt: now.Add(-4 * time.Minute).Unix()},
			},
			wantHashes: []common.Hash{{0x01}, {0x03}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &Relayer{mempool: tt.mempool, ttl: 5 * time.Minute}
			r.dropExpired(now.Unix())
			var got []common.Hash
			for hash := range r.mempool {
				got = append(got, hash)
			}
			require.ElementsMatch(t, tt.wantHashes, got)
		})
	}
}

func newRelayerFixture(t *testing.T, ch chan Submission) (*Relayer, *safetest.Chain, common.Address, []pkgTesting.Account) {
	owners := pkgTesting.Accounts(t, "relayer", 2)
	address := safetest.SafeAddress("relayer")
	chain := safetest.NewChain()
	_, err := chain.Deploy(address, pkgTesting.Addresses(owners), 2)
	require.Nil(t, err)
	relayerKey := pkgTesting.NewAccount(t, "relayer-key").Key
	var channels []chan Submission
	if ch != nil {
		channels = append(channels, ch)
	}
	r := NewRelayer(zap.L(), chain, relayerKey, big.NewInt(safetest.ChainID), 100, channels)
	r.receiptAttempts = 3
	r.receiptDelay = time.Millisecond
	return r, chain, address, owners
}

func signed(t *testing.T, address common.Address, tx safe.Transaction, owners []pkgTesting.Account) safe.Signatures {
	hash := safe.TransactionHash(address, tx)
	var sigs safe.Signatures
	for _, o := range owners {
		sig, err := safe.Sign(hash, o.Key)
		require.Nil(t, err)
		sigs = append(sigs, sig)
	}
	return sigs
}

func TestRelayer_Submit(t *testing.T) {
	ch := make(chan Submission, 1)
	r, chain, address, owners := newRelayerFixture(t, ch)
	ctx := context.Background()

	tx := safe.Transaction{To: common.HexToAddress("0xbeef"), Nonce: big.NewInt(0)}
	ethTx, err := r.Submit(ctx, address, tx, signed(t, address, tx, owners))
	require.Nil(t, err)

	copied := <-ch
	require.Equal(t, ethTx.Hash(), copied.Tx.Hash())
	require.Equal(t, safe.TransactionHash(address, tx), copied.SafeTxHash)
	require.Len(t, r.pending(), 1)

	receipt, err := r.WaitReceipt(ctx, ethTx.Hash())
	require.Nil(t, err)
	require.Equal(t, types.ReceiptStatusSuccessful, receipt.Status)
	require.Empty(t, r.pending())
	require.Len(t, chain.Sent(), 1)

	// the same signatures are now for a used nonce
	ethTx, err = r.Submit(ctx, address, tx, signed(t, address, tx, owners))
	require.Nil(t, err)
	<-ch
	receipt, err = r.WaitReceipt(ctx, ethTx.Hash())
	require.Nil(t, err)
	require.Equal(t, types.ReceiptStatusFailed, receipt.Status)
}

func TestRelayer_Submit_rateLimit(t *testing.T) {
	r, _, address, owners := newRelayerFixture(t, nil)
	r.limiter = ratelimiter.NewDefaultLimiter(1, time.Minute)
	defer r.limiter.Kill()

	tx := safe.Transaction{To: common.HexToAddress("0xbeef")}
	_, err := r.Submit(context.Background(), address, tx, signed(t, address, tx, owners))
	require.Nil(t, err)
	_, err = r.Submit(context.Background(), address, tx, signed(t, address, tx, owners))
	require.ErrorIs(t, err, ErrRateLimit)
}

func TestRelayer_sendFromMempool(t *testing.T) {
	r, chain, address, owners := newRelayerFixture(t, nil)
	tx := safe.Transaction{To: common.HexToAddress("0xbeef")}
	ethTx, err := r.Submit(context.Background(), address, tx, signed(t, address, tx, owners))
	require.Nil(t, err)

	r.sendFromMempool(context.Background())
	require.Empty(t, r.pending())
	require.Len(t, chain.Sent(), 1)
	require.Equal(t, ethTx.Hash(), chain.Sent()[0].Hash())
}

func TestRelayer_WaitReceipt_notFound(t *testing.T) {
	r, _, _, _ := newRelayerFixture(t, nil)
	_, err := r.WaitReceipt(context.Background(), common.Hash{0x01})
	require.NotNil(t, err)
}
