package addressbook

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testBook = `
safes:
  - address: "0x5555555555555555555555555555555555555555"
    name: Team Treasury
    tags: [ops]
  - address: "0x3333333333333333333333333333333333333333"
    name: Grants
accounts:
  - address: "0x1111111111111111111111111111111111111111"
    name: Alice
  - address: "0x2222222222222222222222222222222222222222"
    name: Treasury Drainer
    is_scam: true
tokens:
  - address: "0x7777777777777777777777777777777777777777"
    symbol: USDC
    decimals: 6
`

var (
	treasury = common.HexToAddress("0x5555555555555555555555555555555555555555")
	grants   = common.HexToAddress("0x3333333333333333333333333333333333333333")
	alice    = common.HexToAddress("0x1111111111111111111111111111111111111111")
	usdc     = common.HexToAddress("0x7777777777777777777777777777777777777777")
)

func newTestBook(t *testing.T) *Book {
	path := filepath.Join(t.TempDir(), "book.yaml")
	require.Nil(t, os.WriteFile(path, []byte(testBook), 0o600))
	book, err := NewAddressBook(zap.NewNop(), path)
	require.Nil(t, err)
	return book
}

func TestBook_lookups(t *testing.T) {
	book := newTestBook(t)

	safes := book.Safes()
	require.Len(t, safes, 2)
	require.Equal(t, "Grants", safes[0].Name)
	require.Equal(t, []string{"ops"}, safes[1].Tags)

	info, ok := book.GetAddressInfoByAddress(treasury)
	require.True(t, ok)
	require.Equal(t, "Team Treasury", info.Name)
	info, ok = book.GetAddressInfoByAddress(alice)
	require.True(t, ok)
	require.Equal(t, "Alice", info.Name)

	token, ok := book.GetTokenInfo(usdc)
	require.True(t, ok)
	require.Equal(t, int32(6), token.Decimals)
	_, ok = book.GetTokenInfo(alice)
	require.False(t, ok)
}

func TestBook_SearchAttachedAccountsByPrefix(t *testing.T) {
	book := newTestBook(t)
	tests := []struct {
		name   string
		prefix string
		want   []common.Address
	}{
		{name: "first word", prefix: "team", want: []common.Address{treasury}},
		{name: "rotated name", prefix: "Treas", want: []common.Address{treasury}},
		{name: "scam is hidden", prefix: "drainer", want: nil},
		{name: "token", prefix: "us", want: []common.Address{usdc}},
		{name: "nothing", prefix: "zzz", want: nil},
		{name: "empty", prefix: " ", want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []common.Address
			for _, a := range book.SearchAttachedAccountsByPrefix(tt.prefix) {
				got = append(got, a.Wallet)
			}
			require.Equal(t, tt.want, got)
		})
	}
}

func TestBook_refresh(t *testing.T) {
	path := filepath.Join(t.TempDir(), "book.yaml")
	require.Nil(t, os.WriteFile(path, []byte(testBook), 0o600))
	book, err := NewAddressBook(zap.NewNop(), path)
	require.Nil(t, err)

	require.Nil(t, os.WriteFile(path, []byte("safes:\n  - address: \"0x3333333333333333333333333333333333333333\"\n    name: Renamed\n"), 0o600))
	require.Nil(t, book.refresh())
	require.Len(t, book.Safes(), 1)
	s, ok := book.GetSafe(grants)
	require.True(t, ok)
	require.Equal(t, "Renamed", s.Name)

	require.Nil(t, os.WriteFile(path, []byte("safes: ["), 0o600))
	require.NotNil(t, book.refresh())
	require.Len(t, book.Safes(), 1)
}

func TestGenerateNameVariants(t *testing.T) {
	require.Equal(t, []string{"a b c d", "b c d a", "c d a b"}, GenerateNameVariants("a b c d"))
	require.Nil(t, GenerateNameVariants(""))
}
