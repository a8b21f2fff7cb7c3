package i18n

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func ether(s string) *big.Int {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic(s)
	}
	return n
}

func TestFormatEther(t *testing.T) {
	tests := []struct {
		name   string
		amount *big.Int
		want   string
	}{
		{name: "nil", amount: nil, want: "0 ETH"},
		{name: "zero", amount: big.NewInt(0), want: "0 ETH"},
		{name: "one", amount: ether("1000000000000000000"), want: "1 ETH"},
		{name: "minus one", amount: ether("-1000000000000000000"), want: "-1 ETH"},
		{name: "large", amount: ether("33000144000000000000000"), want: "33 000 ETH"},
		{name: "three digits", amount: ether("1249000000000000000"), want: "1.24 ETH"},
		{name: "finney", amount: ether("1000000000000000"), want: "0.001 ETH"},
		{name: "negative fraction", amount: ether("-500000000000000000"), want: "-0.5 ETH"},
		{name: "wei", amount: big.NewInt(143_145), want: "0.000000000000143 ETH"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, FormatEther(tt.amount))
		})
	}
}

func TestFormatTokens(t *testing.T) {
	tests := []struct {
		name     string
		amount   int64
		decimals int32
		symbol   string
		want     string
	}{
		{name: "usdc", amount: 1_500_000, decimals: 6, symbol: "USDC", want: "1.5 USDC"},
		{name: "usdc large", amount: 1_234_567_000_000, decimals: 6, symbol: "USDC", want: "1 234 567 USDC"},
		{name: "no decimals", amount: 42, decimals: 0, symbol: "TKN", want: "42 TKN"},
		{name: "small", amount: 1, decimals: 6, symbol: "USDC", want: "0.000001 USDC"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, FormatTokens(*big.NewInt(tt.amount), tt.decimals, tt.symbol))
		})
	}
}
