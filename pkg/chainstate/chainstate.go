package chainstate

import (
	"context"
	"math/big"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Source reports chain parameters. *ethclient.Client implements it.
type Source interface {
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// ChainState keeps slowly changing chain parameters up to date.
type ChainState struct {
	source   Source
	logger   *zap.Logger
	mu       sync.RWMutex
	gasPrice *big.Int
	head     uint64
	updated  time.Time
}

func NewChainState(logger *zap.Logger, source Source) *ChainState {
	return &ChainState{
		source:   source,
		logger:   logger,
		gasPrice: new(big.Int),
	}
}

// Run refreshes the state every interval until ctx is done.
func (s *ChainState) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := s.refresh(ctx); err != nil {
			s.logger.Warn("failed to refresh chain state", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *ChainState) refresh(ctx context.Context) error {
	gasPrice, err := s.source.SuggestGasPrice(ctx)
	if err != nil {
		return err
	}
	head, err := s.source.BlockNumber(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gasPrice = gasPrice
	s.head = head
	s.updated = time.Now()
	return nil
}

// GasPrice returns the last suggested gas price, zero before the first refresh.
func (s *ChainState) GasPrice() *big.Int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return new(big.Int).Set(s.gasPrice)
}

func (s *ChainState) Head() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.head
}

func (s *ChainState) Updated() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updated
}
