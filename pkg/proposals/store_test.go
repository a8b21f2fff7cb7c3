package proposals

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/arnac-io/opensafeapi/pkg/core"
	"github.com/arnac-io/opensafeapi/pkg/safe"
	pkgTesting "github.com/arnac-io/opensafeapi/pkg/testing"
)

var testSafe = common.HexToAddress("0x5afe000000000000000000000000000000000001")

func newProposal(t *testing.T, nonce int64, signers ...pkgTesting.Account) *core.Proposal {
	tx := safe.Transaction{
		To:       common.HexToAddress("0xbeef"),
		Value:    big.NewInt(1000),
		Data:     []byte{0xca, 0xfe},
		GasPrice: big.NewInt(3),
		Nonce:    big.NewInt(nonce),
	}
	p := &core.Proposal{
		Hash:        safe.TransactionHash(testSafe, tx),
		Safe:        testSafe,
		Transaction: tx,
		Threshold:   2,
		Status:      core.ProposalPending,
	}
	for _, s := range signers {
		sig, err := safe.Sign(p.Hash, s.Key)
		require.Nil(t, err)
		p.AddSignature(safe.SignedBy{Signer: s.Address, Signature: sig})
	}
	return p
}

func openStore(t *testing.T) *Store {
	s, err := Open(":memory:")
	require.Nil(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_CreateGet(t *testing.T) {
	owners := pkgTesting.Accounts(t, "store", 2)
	s := openStore(t)
	ctx := context.Background()

	p := newProposal(t, 5, owners[1])
	require.Nil(t, s.Create(ctx, p))
	require.ErrorIs(t, s.Create(ctx, newProposal(t, 5)), ErrExists)

	got, err := s.Get(ctx, p.Hash)
	require.Nil(t, err)
	require.Equal(t, p.Hash, got.Hash)
	require.Equal(t, testSafe, got.Safe)
	require.Equal(t, p.Transaction.Data, got.Transaction.Data)
	require.Equal(t, 0, got.Transaction.Value.Cmp(big.NewInt(1000)))
	require.Equal(t, 0, got.Transaction.Nonce.Cmp(big.NewInt(5)))
	require.Equal(t, safe.TransactionHash(testSafe, got.Transaction), got.Hash)
	require.Equal(t, core.ProposalPending, got.Status)
	require.Equal(t, p.Signatures, got.Signatures)

	_, err = s.Get(ctx, common.Hash{0x01})
	require.ErrorIs(t, err, core.ErrEntityNotFound)
}

func TestStore_AddSignature(t *testing.T) {
	owners := pkgTesting.Accounts(t, "store-sig", 2)
	s := openStore(t)
	ctx := context.Background()
	p := newProposal(t, 0)
	require.Nil(t, s.Create(ctx, p))

	sig, err := safe.Sign(p.Hash, owners[0].Key)
	require.Nil(t, err)
	added, err := s.AddSignature(ctx, p.Hash, safe.SignedBy{Signer: owners[0].Address, Signature: sig})
	require.Nil(t, err)
	require.True(t, added)
	added, err = s.AddSignature(ctx, p.Hash, safe.SignedBy{Signer: owners[0].Address, Signature: sig})
	require.Nil(t, err)
	require.False(t, added)

	got, err := s.Get(ctx, p.Hash)
	require.Nil(t, err)
	require.Len(t, got.Signatures, 1)
	require.Equal(t, sig, got.Signatures[0].Signature)
}

func TestStore_Update(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	p := newProposal(t, 0)
	require.Nil(t, s.Create(ctx, p))

	execTx := common.Hash{0xaa}
	created := common.HexToAddress("0xc0ffee")
	p.Status = core.ProposalExecuted
	p.ExecutionTx = &execTx
	p.CreatedContract = &created
	require.Nil(t, s.Update(ctx, p))

	got, err := s.Get(ctx, p.Hash)
	require.Nil(t, err)
	require.Equal(t, core.ProposalExecuted, got.Status)
	require.Equal(t, &execTx, got.ExecutionTx)
	require.Equal(t, &created, got.CreatedContract)

	require.ErrorIs(t, s.Update(ctx, &core.Proposal{Hash: common.Hash{0x02}}), core.ErrEntityNotFound)
}

func TestStore_List(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	clock := time.Unix(1_700_000_000, 0)
	s.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	for _, nonce := range []int64{7, 5, 6} {
		require.Nil(t, s.Create(ctx, newProposal(t, nonce)))
	}
	stale := newProposal(t, 4)
	stale.Status = core.ProposalStale
	require.Nil(t, s.Create(ctx, stale))

	all, err := s.List(ctx, testSafe)
	require.Nil(t, err)
	var nonces []int64
	for _, p := range all {
		nonces = append(nonces, p.Transaction.Nonce.Int64())
	}
	require.Equal(t, []int64{4, 5, 6, 7}, nonces)

	pending, err := s.List(ctx, testSafe, core.ProposalPending, core.ProposalAuthorized)
	require.Nil(t, err)
	require.Len(t, pending, 3)

	other, err := s.List(ctx, common.HexToAddress("0x1234"))
	require.Nil(t, err)
	require.Empty(t, other)
}
