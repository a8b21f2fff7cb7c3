package api

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/arnac-io/opensafeapi/pkg/addressbook"
	"github.com/arnac-io/opensafeapi/pkg/core"
	"github.com/arnac-io/opensafeapi/pkg/emulation"
	"github.com/arnac-io/opensafeapi/pkg/safe"
)

type storage interface {
	// GetSafe returns a snapshot of the safe read at a single block.
	GetSafe(ctx context.Context, address common.Address) (core.SafeInfo, error)
	// Invalidate drops the cached snapshot of the safe.
	Invalidate(ctx context.Context, address common.Address)
	// Track makes the safe part of the watched set.
	Track(address common.Address)
	TrackedSafes() []common.Address
}

// collector drives the lifecycle of a proposal.
type collector interface {
	Hash(ctx context.Context, safeAddress common.Address, tx safe.Transaction) (safe.Transaction, common.Hash, error)
	Propose(ctx context.Context, safeAddress common.Address, tx safe.Transaction, sigs safe.Signatures) (*core.Proposal, error)
	AddSignature(ctx context.Context, hash common.Hash, sig safe.Signature) (*core.Proposal, bool, error)
	Status(ctx context.Context, hash common.Hash) (*core.Proposal, error)
	List(ctx context.Context, safeAddress common.Address, statuses ...core.ProposalStatus) ([]*core.Proposal, error)
	Emulate(ctx context.Context, hash common.Hash) (*emulation.Result, error)
	Execute(ctx context.Context, hash common.Hash) (*core.Proposal, error)
}

type addressBook interface {
	Safes() []addressbook.KnownSafe
	GetSafe(a common.Address) (addressbook.KnownSafe, bool)
	GetAddressInfoByAddress(a common.Address) (addressbook.KnownAddress, bool)
	GetTokenInfo(a common.Address) (addressbook.KnownToken, bool)
	SearchAttachedAccountsByPrefix(prefix string) []addressbook.AttachedAccount
}

// chainState provides blockchain parameters which change slowly.
type chainState interface {
	GasPrice() *big.Int
	Head() uint64
}
