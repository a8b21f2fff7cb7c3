package sources

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/arnac-io/opensafeapi/pkg/core"
	"github.com/arnac-io/opensafeapi/pkg/safe"
)

var watcherHeadGauge = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "safe_log_watcher_block",
	Help: "Last block scanned for safe events",
})

// LogBackend is the part of the node API the watcher polls.
type LogBackend interface {
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// safeRegistry tells which safes to watch and drops cached state on changes.
type safeRegistry interface {
	TrackedSafes() []common.Address
	Invalidate(ctx context.Context, address common.Address)
}

// LogWatcher notifies about ExecutionFailed and ContractCreation events
// emitted by the tracked safes.
type LogWatcher struct {
	logger     *zap.Logger
	backend    LogBackend
	registry   safeRegistry
	dispatcher *Dispatcher
	// lastBlock is the last scanned block, zero before the first poll.
	lastBlock uint64
	// maxRange caps the number of blocks requested in a single FilterLogs call.
	maxRange uint64
}

func NewLogWatcher(logger *zap.Logger, backend LogBackend, registry safeRegistry, dispatcher *Dispatcher) *LogWatcher {
	return &LogWatcher{
		logger:     logger,
		backend:    backend,
		registry:   registry,
		dispatcher: dispatcher,
		maxRange:   1000,
	}
}

// Run polls the node every interval until ctx is done.
func (w *LogWatcher) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := w.poll(ctx); err != nil && ctx.Err() == nil {
			w.logger.Warn("failed to poll safe logs", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (w *LogWatcher) poll(ctx context.Context) error {
	head, err := w.backend.BlockNumber(ctx)
	if err != nil {
		return err
	}
	if w.lastBlock == 0 {
		// start from the current head, history is not replayed
		w.lastBlock = head
		watcherHeadGauge.Set(float64(head))
		return nil
	}
	safes := w.registry.TrackedSafes()
	for w.lastBlock < head {
		from := w.lastBlock + 1
		to := head
		if to-from+1 > w.maxRange {
			to = from + w.maxRange - 1
		}
		if len(safes) > 0 {
			logs, err := w.backend.FilterLogs(ctx, ethereum.FilterQuery{
				FromBlock: new(big.Int).SetUint64(from),
				ToBlock:   new(big.Int).SetUint64(to),
				Addresses: safes,
				Topics:    [][]common.Hash{{safe.ExecutionFailedTopic, safe.ContractCreationTopic}},
			})
			if err != nil {
				return err
			}
			w.handleLogs(ctx, logs)
		}
		w.lastBlock = to
		watcherHeadGauge.Set(float64(to))
	}
	return nil
}

func (w *LogWatcher) handleLogs(ctx context.Context, logs []types.Log) {
	for _, log := range logs {
		event, ok, err := safe.ParseLog(log)
		if err != nil {
			w.logger.Warn("failed to parse safe log",
				zap.Stringer("tx_hash", log.TxHash),
				zap.Error(err))
			continue
		}
		if !ok {
			continue
		}
		w.registry.Invalidate(ctx, log.Address)
		txHash := log.TxHash
		safeEvent := core.SafeEvent{
			Safe:        log.Address,
			TxHash:      &txHash,
			BlockNumber: log.BlockNumber,
		}
		switch event.Kind {
		case safe.ExecutionFailed:
			safeEvent.Kind = core.EventExecutionFailed
		case safe.ContractCreation:
			safeEvent.Kind = core.EventContractCreation
			created := event.NewContract
			safeEvent.NewContract = &created
		}
		w.dispatcher.Publish(safeEvent)
	}
}
