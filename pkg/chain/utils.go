package chain

import (
	"hash/maphash"

	"github.com/ethereum/go-ethereum/common"
)

func hashAddress(seed maphash.Seed, a common.Address) uint64 {
	var h maphash.Hash
	h.SetSeed(seed)
	h.Write(a.Bytes())
	return h.Sum64()
}
