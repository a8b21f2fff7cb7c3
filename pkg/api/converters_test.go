package api

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/arnac-io/opensafeapi/pkg/core"
	"github.com/arnac-io/opensafeapi/pkg/safe"
)

func Test_parseStatuses(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []core.ProposalStatus
		wantErr bool
	}{
		{name: "empty", input: "", want: []core.ProposalStatus{}},
		{name: "single", input: "pending", want: []core.ProposalStatus{core.ProposalPending}},
		{name: "mixed case and spaces", input: "Pending, EXECUTED", want: []core.ProposalStatus{core.ProposalPending, core.ProposalExecuted}},
		{name: "unknown", input: "pending,lost", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseStatuses(tt.input)
			if tt.wantErr {
				require.NotNil(t, err)
				require.Equal(t, 400, statusCode(err))
				return
			}
			require.Nil(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func Test_convertTransaction(t *testing.T) {
	tx := safe.Transaction{To: common.HexToAddress("0x01"), Value: big.NewInt(5), Nonce: big.NewInt(3)}
	res := convertTransaction(tx)
	require.Equal(t, int64(0), toBig(res.SafeTxGas).Int64())
	require.Equal(t, int64(5), toBig(res.Value).Int64())

	back := convertTransactionFromJSON(res)
	require.Equal(t, tx.Normalized(), back)

	res.Nonce = nil
	require.Nil(t, convertTransactionFromJSON(res).Nonce)
}
