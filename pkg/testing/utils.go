package testing

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"sort"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

// Account is a deterministic key pair for tests.
type Account struct {
	Key     *ecdsa.PrivateKey
	Address common.Address
}

// NewAccount derives a key from name, so the same name always gives the same address.
func NewAccount(t *testing.T, name string) Account {
	key, err := crypto.ToECDSA(crypto.Keccak256([]byte(name)))
	require.Nil(t, err)
	return Account{Key: key, Address: crypto.PubkeyToAddress(key.PublicKey)}
}

// Accounts returns n accounts sorted by address ascending.
func Accounts(t *testing.T, prefix string, n int) []Account {
	accounts := make([]Account, 0, n)
	for i := 0; i < n; i++ {
		accounts = append(accounts, NewAccount(t, fmt.Sprintf("%v-%d", prefix, i)))
	}
	sort.Slice(accounts, func(i, j int) bool {
		return bytes.Compare(accounts[i].Address.Bytes(), accounts[j].Address.Bytes()) < 0
	})
	return accounts
}

func Addresses(accounts []Account) []common.Address {
	out := make([]common.Address, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, a.Address)
	}
	return out
}

// RequireJSONEqual compares the JSON form of got with a JSON literal.
func RequireJSONEqual(t *testing.T, want string, got any) {
	bs, err := json.Marshal(got)
	require.Nil(t, err)
	require.JSONEq(t, want, string(bs))
}
