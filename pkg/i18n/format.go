package i18n

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// FormatEther represents the given amount of wei in ether and formats it according to the scheme (# ### or #.##)
func FormatEther(amount *big.Int) string {
	if amount == nil {
		amount = new(big.Int)
	}
	return FormatTokens(*amount, 18, "ETH")
}

// FormatTokens translates the value in indivisible units into a user-friendly form taking into account
// decimals according to the scheme (# ### or #.##)
func FormatTokens(amount big.Int, decimals int32, symbol string) string {
	x := decimal.NewFromBigInt(&amount, -1*decimals)
	x = truncate(x, 3)
	intPart := x.IntPart()
	if x.Equal(decimal.New(x.IntPart(), 0)) {
		return fmt.Sprintf("%s %s", formatIntPart(intPart), symbol)
	}
	parts := strings.Split(x.String(), ".")
	if len(parts) != 2 {
		return fmt.Sprintf("%s %s", formatIntPart(intPart), symbol)
	}
	sign := ""
	if x.IsNegative() && intPart == 0 {
		sign = "-"
	}
	return fmt.Sprintf("%s%s.%s %s", sign, formatIntPart(intPart), parts[1], symbol)
}

// truncate keeps n significant digits of the fractional part.
func truncate(d decimal.Decimal, n int32) decimal.Decimal {
	if n <= 0 {
		return d.Truncate(n)
	}
	if d.IsZero() {
		return decimal.Zero
	}
	dn := decimal.New(1, n-1)
	if d.Abs().GreaterThanOrEqual(dn) {
		return d.Truncate(0)
	}
	for i := int32(0); i < 40; i++ {
		if d.Abs().Shift(i).GreaterThanOrEqual(dn) {
			return d.Truncate(i)
		}
	}
	return d
}

func formatIntPart(n int64) string {
	s := fmt.Sprintf("%d", n)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	length := len(s)
	var result []string
	for length > 3 {
		result = append([]string{s[length-3:]}, result...)
		length -= 3
	}
	result = append([]string{s[:length]}, result...)
	out := strings.Join(result, " ")
	if neg {
		return "-" + out
	}
	return out
}
