package chain

import (
	"context"
	"math/big"
	"time"

	"github.com/avast/retry-go"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/go-faster/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/puzpuzpuz/xsync/v2"
	"github.com/sourcegraph/conc/iter"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/arnac-io/opensafeapi/pkg/core"
	"github.com/arnac-io/opensafeapi/pkg/safe"
)

var storageTimeHistogramVec = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "chain_storage_functions_time",
		Help:    "Chain storage functions execution duration distribution in seconds",
		Buckets: []float64{0.001, 0.01, 0.05, 0.1, 1, 5, 10},
	},
	[]string{"method"},
)

var tracer = otel.Tracer("github.com/arnac-io/opensafeapi/pkg/chain")

// Backend is the part of an Ethereum node API the storage relies on.
// *ethclient.Client implements it.
type Backend interface {
	bind.ContractBackend
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// Storage reads safes from the chain. Snapshots are cached until they expire
// or Invalidate is called for the safe.
type Storage struct {
	logger   *zap.Logger
	backend  Backend
	cache    ICache[core.SafeInfo]
	cacheTTL time.Duration
	bindings *xsync.MapOf[common.Address, *safe.Binding]
	// tracked are the safes this instance serves, defined with the SAFES env variable and the address book.
	tracked *xsync.MapOf[common.Address, struct{}]
	// maxGoroutines specifies a number of goroutines used to preload safes.
	maxGoroutines int
	attempts      uint
}

type Options struct {
	preloadSafes  []common.Address
	cacheTTL      time.Duration
	maxGoroutines int
	attempts      uint
}

type Option func(o *Options)

func WithPreloadSafes(safes []common.Address) Option {
	return func(o *Options) {
		o.preloadSafes = safes
	}
}

func WithCacheTTL(ttl time.Duration) Option {
	return func(o *Options) {
		o.cacheTTL = ttl
	}
}

func WithMaxGoroutines(n int) Option {
	return func(o *Options) {
		o.maxGoroutines = n
	}
}

// WithAttempts limits retries of a single node request.
func WithAttempts(n uint) Option {
	return func(o *Options) {
		o.attempts = n
	}
}

func NewStorage(log *zap.Logger, backend Backend, opts ...Option) (*Storage, error) {
	o := &Options{
		cacheTTL:      15 * time.Second,
		maxGoroutines: 5,
		attempts:      5,
	}
	for i := range opts {
		opts[i](o)
	}
	stateCache, err := NewCache[core.SafeInfo](10_000)
	if err != nil {
		return nil, err
	}
	storage := &Storage{
		logger:        log,
		backend:       backend,
		cache:         stateCache,
		cacheTTL:      o.cacheTTL,
		bindings:      xsync.NewTypedMapOf[common.Address, *safe.Binding](hashAddress),
		tracked:       xsync.NewTypedMapOf[common.Address, struct{}](hashAddress),
		maxGoroutines: o.maxGoroutines,
		attempts:      o.attempts,
	}
	for _, a := range o.preloadSafes {
		storage.tracked.Store(a, struct{}{})
	}
	iterator := iter.Iterator[common.Address]{MaxGoroutines: storage.maxGoroutines}
	iterator.ForEach(o.preloadSafes, func(address *common.Address) {
		if _, err := storage.GetSafe(context.Background(), *address); err != nil {
			log.Error("failed to preload safe",
				zap.Stringer("safe", address),
				zap.Error(err))
		}
	})
	return storage, nil
}

func (s *Storage) Backend() Backend {
	return s.backend
}

// Binding returns a contract binding for the safe at address.
func (s *Storage) Binding(address common.Address) *safe.Binding {
	b, _ := s.bindings.LoadOrCompute(address, func() *safe.Binding {
		return safe.NewBinding(address, s.backend)
	})
	return b
}

func (s *Storage) Track(address common.Address) {
	s.tracked.Store(address, struct{}{})
}

func (s *Storage) IsTracked(address common.Address) bool {
	_, ok := s.tracked.Load(address)
	return ok
}

// TrackedSafes returns the tracked safes in no particular order.
func (s *Storage) TrackedSafes() []common.Address {
	var out []common.Address
	s.tracked.Range(func(a common.Address, _ struct{}) bool {
		out = append(out, a)
		return true
	})
	return out
}

func (s *Storage) timer(method string) *prometheus.Timer {
	return prometheus.NewTimer(prometheus.ObserverFunc(func(v float64) {
		storageTimeHistogramVec.WithLabelValues(method).Observe(v)
	}))
}

func (s *Storage) retry(ctx context.Context, fn func() error) error {
	return retry.Do(fn,
		retry.Context(ctx),
		retry.Attempts(s.attempts),
		retry.Delay(10*time.Millisecond),
		retry.LastErrorOnly(true))
}

func (s *Storage) startSpan(ctx context.Context, name string, address common.Address) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attribute.String("safe", address.Hex())))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// GetSafe returns a consistent snapshot of the safe, all values read at the same block.
func (s *Storage) GetSafe(ctx context.Context, address common.Address) (info core.SafeInfo, err error) {
	defer s.timer("get_safe").ObserveDuration()
	ctx, span := s.startSpan(ctx, "GetSafe", address)
	defer func() { endSpan(span, err) }()

	info, err = s.cache.Get(ctx, address.Hex())
	if err == nil {
		return info, nil
	}
	info, err = s.fetchSafe(ctx, address)
	if err != nil {
		return core.SafeInfo{}, err
	}
	if err := s.cache.Set(ctx, address.Hex(), info, s.cacheTTL); err != nil {
		s.logger.Warn("failed to cache safe", zap.Stringer("safe", address), zap.Error(err))
	}
	return info, nil
}

func (s *Storage) fetchSafe(ctx context.Context, address common.Address) (core.SafeInfo, error) {
	var block uint64
	err := s.retry(ctx, func() error {
		var err error
		block, err = s.backend.BlockNumber(ctx)
		return err
	})
	if err != nil {
		return core.SafeInfo{}, errors.Wrap(err, "block number")
	}
	blockNumber := new(big.Int).SetUint64(block)
	var code []byte
	err = s.retry(ctx, func() error {
		var err error
		code, err = s.backend.CodeAt(ctx, address, blockNumber)
		return err
	})
	if err != nil {
		return core.SafeInfo{}, errors.Wrap(err, "code")
	}
	if len(code) == 0 {
		return core.SafeInfo{}, core.ErrEntityNotFound
	}

	binding := s.Binding(address)
	opts := &bind.CallOpts{Context: ctx, BlockNumber: blockNumber}
	info := core.SafeInfo{Address: address, BlockNumber: block}
	err = s.retry(ctx, func() error {
		state, err := binding.State(opts)
		if err != nil {
			return err
		}
		info.Owners, info.Modules, info.Threshold, info.Nonce = state.Owners, state.Modules, state.Threshold, state.Nonce
		if info.Name, err = binding.Name(opts); err != nil {
			return err
		}
		if info.Version, err = binding.Version(opts); err != nil {
			return err
		}
		info.Balance, err = s.backend.BalanceAt(ctx, address, blockNumber)
		return err
	})
	if err != nil {
		return core.SafeInfo{}, errors.Wrapf(err, "read safe %v", address)
	}
	return info, nil
}

// GetState returns owners, modules, threshold and nonce of the safe.
func (s *Storage) GetState(ctx context.Context, address common.Address) (safe.State, error) {
	info, err := s.GetSafe(ctx, address)
	if err != nil {
		return safe.State{}, err
	}
	return info.State(), nil
}

// GetNonce always reads the latest nonce, bypassing the cache.
func (s *Storage) GetNonce(ctx context.Context, address common.Address) (nonce *big.Int, err error) {
	defer s.timer("get_nonce").ObserveDuration()
	ctx, span := s.startSpan(ctx, "GetNonce", address)
	defer func() { endSpan(span, err) }()

	binding := s.Binding(address)
	err = s.retry(ctx, func() error {
		var err error
		nonce, err = binding.Nonce(&bind.CallOpts{Context: ctx})
		return err
	})
	if err != nil {
		return nil, err
	}
	return nonce, nil
}

// GetTransactionHash asks the deployed contract for the hash of tx.
func (s *Storage) GetTransactionHash(ctx context.Context, address common.Address, tx safe.Transaction) (hash common.Hash, err error) {
	defer s.timer("get_transaction_hash").ObserveDuration()
	ctx, span := s.startSpan(ctx, "GetTransactionHash", address)
	defer func() { endSpan(span, err) }()

	binding := s.Binding(address)
	err = s.retry(ctx, func() error {
		var err error
		hash, err = binding.GetTransactionHash(&bind.CallOpts{Context: ctx}, tx)
		return err
	})
	return hash, err
}

// RequiredTxGas estimates the gas of the inner call of tx. A call that
// would fail is reported with safe.ErrReverted and is not retried.
func (s *Storage) RequiredTxGas(ctx context.Context, address common.Address, tx safe.Transaction) (gas *big.Int, err error) {
	defer s.timer("required_tx_gas").ObserveDuration()
	ctx, span := s.startSpan(ctx, "RequiredTxGas", address)
	defer func() { endSpan(span, err) }()

	tx = tx.Normalized()
	gas, err = s.Binding(address).RequiredTxGas(ctx, tx.To, tx.Value, tx.Data, tx.Operation)
	if err != nil {
		return nil, errors.Wrap(safe.ErrReverted, err.Error())
	}
	return gas, nil
}

// Invalidate drops the cached snapshot of the safe.
func (s *Storage) Invalidate(ctx context.Context, address common.Address) {
	if err := s.cache.Delete(ctx, address.Hex()); err != nil {
		s.logger.Warn("failed to invalidate safe", zap.Stringer("safe", address), zap.Error(err))
	}
}
