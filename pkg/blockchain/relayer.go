package blockchain

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"sync"
	"time"

	"github.com/Narasimha1997/ratelimiter"
	"github.com/avast/retry-go"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/go-faster/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/arnac-io/opensafeapi/pkg/safe"
)

var ErrRateLimit = errors.New("relayer rate limit")

var submissionsCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "relayer_submissions_total",
	Help: "Number of execAndPayTransaction submissions by result",
}, []string{"result"})

// Backend is the part of the node API needed to send transactions and
// follow them. *ethclient.Client implements it.
type Backend interface {
	bind.ContractBackend
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Submission is a relayed safe transaction.
type Submission struct {
	Safe        common.Address
	SafeTxHash  common.Hash
	Tx          *types.Transaction
	SubmittedAt int64
}

// Relayer pays for execAndPayTransaction with its own key.
type Relayer struct {
	logger  *zap.Logger
	backend Backend
	key     *ecdsa.PrivateKey
	chainID *big.Int
	limiter *ratelimiter.DefaultLimiter
	// sendMu keeps account nonces of concurrent submissions apart.
	sendMu sync.Mutex
	mu     sync.Mutex
	// channels receive a copy of every submission before it is sent to the chain.
	channels []chan Submission
	// mempool keeps submissions for re-broadcast until they are mined or expire.
	mempool         map[common.Hash]Submission
	ttl             time.Duration
	receiptAttempts uint
	receiptDelay    time.Duration
}

func NewRelayer(logger *zap.Logger, backend Backend, key *ecdsa.PrivateKey, chainID *big.Int, rps int, channels []chan Submission) *Relayer {
	if rps <= 0 {
		rps = 1
	}
	return &Relayer{
		logger:          logger,
		backend:         backend,
		key:             key,
		chainID:         chainID,
		limiter:         ratelimiter.NewDefaultLimiter(uint64(rps), time.Second),
		channels:        channels,
		mempool:         map[common.Hash]Submission{},
		ttl:             5 * time.Minute,
		receiptAttempts: 60,
		receiptDelay:    2 * time.Second,
	}
}

func (r *Relayer) Address() common.Address {
	return crypto.PubkeyToAddress(r.key.PublicKey)
}

// Run re-broadcasts pending submissions until ctx is done.
func (r *Relayer) Run(ctx context.Context) {
	defer r.limiter.Kill()
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sendFromMempool(ctx)
		}
	}
}

// Submit sends execAndPayTransaction for tx with sigs to the safe.
func (r *Relayer) Submit(ctx context.Context, safeAddress common.Address, tx safe.Transaction, sigs safe.Signatures) (*types.Transaction, error) {
	allowed, err := r.limiter.ShouldAllow(1)
	if err != nil {
		return nil, err
	}
	if !allowed {
		submissionsCounter.WithLabelValues("rate_limited").Inc()
		return nil, ErrRateLimit
	}
	auth, err := bind.NewKeyedTransactorWithChainID(r.key, r.chainID)
	if err != nil {
		return nil, err
	}
	auth.Context = ctx
	auth.NoSend = true

	r.sendMu.Lock()
	defer r.sendMu.Unlock()
	ethTx, err := safe.NewBinding(safeAddress, r.backend).ExecAndPayTransaction(auth, tx, sigs)
	if err != nil {
		submissionsCounter.WithLabelValues("build_failed").Inc()
		return nil, errors.Wrap(err, "build transaction")
	}
	submission := Submission{
		Safe:        safeAddress,
		SafeTxHash:  safe.TransactionHash(safeAddress, tx),
		Tx:          ethTx,
		SubmittedAt: time.Now().Unix(),
	}
	for _, ch := range r.channels {
		select {
		case ch <- submission:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := r.backend.SendTransaction(ctx, ethTx); err != nil {
		submissionsCounter.WithLabelValues("send_failed").Inc()
		return nil, errors.Wrap(err, "send transaction")
	}
	submissionsCounter.WithLabelValues("sent").Inc()
	r.mu.Lock()
	r.mempool[ethTx.Hash()] = submission
	r.mu.Unlock()
	r.logger.Info("relayed safe transaction",
		zap.Stringer("safe", safeAddress),
		zap.Stringer("safe_tx_hash", submission.SafeTxHash),
		zap.Stringer("tx_hash", ethTx.Hash()))
	return ethTx, nil
}

// WaitReceipt polls for the receipt of hash.
func (r *Relayer) WaitReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	var receipt *types.Receipt
	err := retry.Do(func() error {
		var err error
		receipt, err = r.backend.TransactionReceipt(ctx, hash)
		return err
	},
		retry.Context(ctx),
		retry.Attempts(r.receiptAttempts),
		retry.Delay(r.receiptDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return errors.Is(err, ethereum.NotFound)
		}))
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	delete(r.mempool, hash)
	r.mu.Unlock()
	return receipt, nil
}

func (r *Relayer) dropExpired(now int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for hash, s := range r.mempool {
		if now-s.SubmittedAt > int64(r.ttl.Seconds()) {
			delete(r.mempool, hash)
		}
	}
}

func (r *Relayer) pending() []Submission {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Submission, 0, len(r.mempool))
	for _, s := range r.mempool {
		out = append(out, s)
	}
	return out
}

func (r *Relayer) sendFromMempool(ctx context.Context) {
	r.dropExpired(time.Now().Unix())
	for _, s := range r.pending() {
		hash := s.Tx.Hash()
		if receipt, err := r.backend.TransactionReceipt(ctx, hash); err == nil && receipt != nil {
			r.mu.Lock()
			delete(r.mempool, hash)
			r.mu.Unlock()
			continue
		}
		if err := r.backend.SendTransaction(ctx, s.Tx); err != nil {
			r.logger.Debug("re-broadcast failed", zap.Stringer("tx_hash", hash), zap.Error(err))
		}
	}
}
