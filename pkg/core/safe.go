package core

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/exp/slices"

	"github.com/arnac-io/opensafeapi/pkg/safe"
)

// SafeInfo is a snapshot of a safe taken at BlockNumber.
type SafeInfo struct {
	Address     common.Address
	Label       string
	Name        string
	Version     string
	Owners      []common.Address
	Modules     []common.Address
	Threshold   uint8
	Nonce       *big.Int
	Balance     *big.Int
	BlockNumber uint64
}

func (s SafeInfo) State() safe.State {
	nonce := new(big.Int)
	if s.Nonce != nil {
		nonce.Set(s.Nonce)
	}
	return safe.State{
		Owners:    slices.Clone(s.Owners),
		Modules:   slices.Clone(s.Modules),
		Threshold: s.Threshold,
		Nonce:     nonce,
	}
}

func (s SafeInfo) IsOwner(a common.Address) bool {
	return slices.Contains(s.Owners, a)
}
