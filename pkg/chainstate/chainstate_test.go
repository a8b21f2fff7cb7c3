package chainstate

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockSource struct {
	gasPrice *big.Int
	head     uint64
	err      error
}

func (m *mockSource) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return m.gasPrice, m.err
}

func (m *mockSource) BlockNumber(ctx context.Context) (uint64, error) {
	return m.head, m.err
}

func TestChainState_refresh(t *testing.T) {
	tests := []struct {
		name         string
		source       *mockSource
		wantGasPrice int64
		wantHead     uint64
		wantErr      bool
	}{
		{
			name:         "all good",
			source:       &mockSource{gasPrice: big.NewInt(30), head: 100},
			wantGasPrice: 30,
			wantHead:     100,
		},
		{
			name:    "node is down",
			source:  &mockSource{err: errors.New("connection refused")},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewChainState(zap.L(), tt.source)
			err := s.refresh(context.Background())
			if tt.wantErr {
				require.NotNil(t, err)
				require.Equal(t, int64(0), s.GasPrice().Int64())
				require.True(t, s.Updated().IsZero())
				return
			}
			require.Nil(t, err)
			require.Equal(t, tt.wantGasPrice, s.GasPrice().Int64())
			require.Equal(t, tt.wantHead, s.Head())
		})
	}
}

func TestChainState_Run(t *testing.T) {
	s := NewChainState(zap.L(), &mockSource{gasPrice: big.NewInt(7), head: 3})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx, time.Millisecond)
		close(done)
	}()
	require.Eventually(t, func() bool { return s.Head() == 3 }, time.Second, time.Millisecond)
	cancel()
	<-done
	require.Equal(t, int64(7), s.GasPrice().Int64())
}
