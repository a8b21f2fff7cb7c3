// Package collector drives a proposal from creation through signature
// collection to execution by the relayer.
package collector

import (
	"context"
	"fmt"
	"hash/maphash"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	sentrygo "github.com/getsentry/sentry-go"
	"github.com/go-faster/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/puzpuzpuz/xsync/v2"
	"go.uber.org/zap"

	"github.com/arnac-io/opensafeapi/pkg/core"
	"github.com/arnac-io/opensafeapi/pkg/emulation"
	"github.com/arnac-io/opensafeapi/pkg/proposals"
	"github.com/arnac-io/opensafeapi/pkg/safe"
	"github.com/arnac-io/opensafeapi/pkg/sentry"
)

var (
	ErrNotOwner          = errors.New("signer is not an owner of the safe")
	ErrInvalidSignature  = errors.New("invalid signature")
	ErrEmulationReverted = errors.New("transaction would revert")
	ErrStaleNonce        = core.ErrStaleNonce
)

var proposalsCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "collector_proposals_total",
	Help: "Number of proposals reaching a status",
}, []string{"status"})

type chainReader interface {
	GetSafe(ctx context.Context, address common.Address) (core.SafeInfo, error)
	GetNonce(ctx context.Context, address common.Address) (*big.Int, error)
	Invalidate(ctx context.Context, address common.Address)
}

type proposalStore interface {
	Create(ctx context.Context, p *core.Proposal) error
	AddSignature(ctx context.Context, hash common.Hash, sig safe.SignedBy) (bool, error)
	Update(ctx context.Context, p *core.Proposal) error
	Get(ctx context.Context, hash common.Hash) (*core.Proposal, error)
	List(ctx context.Context, safeAddress common.Address, statuses ...core.ProposalStatus) ([]*core.Proposal, error)
}

type emulator interface {
	Emulate(ctx context.Context, info core.SafeInfo, tx safe.Transaction, sigs safe.Signatures, origin common.Address) (*emulation.Result, error)
}

type relayer interface {
	Address() common.Address
	Submit(ctx context.Context, safeAddress common.Address, tx safe.Transaction, sigs safe.Signatures) (*types.Transaction, error)
	WaitReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

// Signer signs for owners whose keys are held locally.
type Signer interface {
	Has(owner common.Address) bool
	Sign(owner common.Address, hash common.Hash) (safe.Signature, error)
}

// Publisher receives proposal lifecycle events.
type Publisher interface {
	Publish(event core.SafeEvent)
}

type Collector struct {
	logger    *zap.Logger
	chain     chainReader
	store     proposalStore
	emulator  emulator
	relayer   relayer
	signer    Signer
	publisher Publisher
	// maxResubmits bounds re-signing after the nonce was taken by another transaction.
	maxResubmits int
	// locks serialize the read-modify-write steps on a single proposal.
	locks *xsync.MapOf[common.Hash, *sync.Mutex]
}

type Options struct {
	signer       Signer
	publisher    Publisher
	maxResubmits int
}

type Option func(o *Options)

// WithSigner enables automatic re-signing with local owner keys.
func WithSigner(s Signer) Option {
	return func(o *Options) {
		o.signer = s
	}
}

func WithPublisher(p Publisher) Option {
	return func(o *Options) {
		o.publisher = p
	}
}

func WithMaxResubmits(n int) Option {
	return func(o *Options) {
		o.maxResubmits = n
	}
}

func New(logger *zap.Logger, chain chainReader, store proposalStore, emulator emulator, relayer relayer, opts ...Option) *Collector {
	o := &Options{maxResubmits: 3}
	for i := range opts {
		opts[i](o)
	}
	return &Collector{
		logger:       logger,
		chain:        chain,
		store:        store,
		emulator:     emulator,
		relayer:      relayer,
		signer:       o.signer,
		publisher:    o.publisher,
		maxResubmits: o.maxResubmits,
		locks:        xsync.NewTypedMapOf[common.Hash, *sync.Mutex](hashProposal),
	}
}

func hashProposal(seed maphash.Seed, h common.Hash) uint64 {
	var mh maphash.Hash
	mh.SetSeed(seed)
	mh.Write(h.Bytes())
	return mh.Sum64()
}

// lock acquires the mutex of the proposal and returns its release.
func (c *Collector) lock(hash common.Hash) func() {
	mu, _ := c.locks.LoadOrCompute(hash, func() *sync.Mutex {
		return &sync.Mutex{}
	})
	mu.Lock()
	return mu.Unlock
}

// reconcile aligns the status of p with the owners and threshold of info
// and stores the change.
func (c *Collector) reconcile(ctx context.Context, p *core.Proposal, info core.SafeInfo) error {
	thresholdChanged := p.Threshold != info.Threshold
	if !p.Reconcile(info.Owners, info.Threshold) {
		if thresholdChanged && !p.Status.Terminal() {
			return c.store.Update(ctx, p)
		}
		return nil
	}
	if err := c.store.Update(ctx, p); err != nil {
		return err
	}
	proposalsCounter.WithLabelValues(string(p.Status)).Inc()
	return nil
}

func (c *Collector) publish(p *core.Proposal, kind core.SafeEventKind, txHash *common.Hash) {
	if c.publisher == nil {
		return
	}
	hash := p.Hash
	c.publisher.Publish(core.SafeEvent{
		Safe:         p.Safe,
		Kind:         kind,
		TxHash:       txHash,
		ProposalHash: &hash,
		NewContract:  p.CreatedContract,
	})
}

// Hash validates tx against the current state of the safe and returns the
// digest owners have to sign. A nil nonce is replaced by the current one.
func (c *Collector) Hash(ctx context.Context, safeAddress common.Address, tx safe.Transaction) (safe.Transaction, common.Hash, error) {
	if err := tx.Validate(); err != nil {
		return safe.Transaction{}, common.Hash{}, err
	}
	nonce, err := c.chain.GetNonce(ctx, safeAddress)
	if err != nil {
		return safe.Transaction{}, common.Hash{}, err
	}
	if tx.Nonce == nil {
		tx.Nonce = nonce
	} else if tx.Nonce.Cmp(nonce) < 0 {
		return safe.Transaction{}, common.Hash{}, errors.Wrapf(ErrStaleNonce, "nonce %v, safe is at %v", tx.Nonce, nonce)
	}
	tx = tx.Normalized()
	return tx, safe.TransactionHash(safeAddress, tx), nil
}

// Propose stores tx as a pending proposal and adds sigs to it. Proposing
// the same transaction twice returns the existing proposal.
func (c *Collector) Propose(ctx context.Context, safeAddress common.Address, tx safe.Transaction, sigs safe.Signatures) (*core.Proposal, error) {
	info, err := c.chain.GetSafe(ctx, safeAddress)
	if err != nil {
		return nil, err
	}
	tx, hash, err := c.Hash(ctx, safeAddress, tx)
	if err != nil {
		return nil, err
	}
	p := &core.Proposal{
		Hash:        hash,
		Safe:        safeAddress,
		Transaction: tx,
		Threshold:   info.Threshold,
		Status:      core.ProposalPending,
	}
	err = c.store.Create(ctx, p)
	switch {
	case errors.Is(err, proposals.ErrExists):
		if p, err = c.store.Get(ctx, hash); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	default:
		proposalsCounter.WithLabelValues(string(core.ProposalPending)).Inc()
		c.publish(p, core.EventProposalCreated, nil)
	}
	for _, sig := range sigs {
		if p, _, err = c.AddSignature(ctx, hash, sig); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// AddSignature records sig on the proposal. added is false when the owner
// had already signed. A proposal with threshold signatures of current owners
// becomes Authorized.
func (c *Collector) AddSignature(ctx context.Context, hash common.Hash, sig safe.Signature) (p *core.Proposal, added bool, err error) {
	signer, err := safe.Recover(hash, sig)
	if err != nil {
		return nil, false, errors.Wrap(ErrInvalidSignature, err.Error())
	}
	defer c.lock(hash)()

	p, err = c.store.Get(ctx, hash)
	if err != nil {
		return nil, false, err
	}
	if p.Status.Terminal() {
		return p, false, errors.Wrapf(core.ErrInvalidTransition, "proposal is %v", p.Status)
	}
	c.chain.Invalidate(ctx, p.Safe)
	info, err := c.chain.GetSafe(ctx, p.Safe)
	if err != nil {
		return nil, false, err
	}
	if !info.IsOwner(signer) {
		return nil, false, errors.Wrapf(ErrNotOwner, "%v", signer)
	}
	added, err = c.store.AddSignature(ctx, hash, safe.SignedBy{Signer: signer, Signature: sig})
	if err != nil {
		return nil, false, err
	}
	// the stored set is authoritative, the copy read above may miss signatures
	if p, err = c.store.Get(ctx, hash); err != nil {
		return nil, false, err
	}
	if err := c.reconcile(ctx, p, info); err != nil {
		return nil, false, err
	}
	if added {
		c.publish(p, core.EventSignatureAdded, nil)
	}
	return p, added, nil
}

// Status returns the proposal, marking it Stale if its nonce has been used
// by another transaction.
func (c *Collector) Status(ctx context.Context, hash common.Hash) (*core.Proposal, error) {
	defer c.lock(hash)()
	p, err := c.store.Get(ctx, hash)
	if err != nil {
		return nil, err
	}
	if p.Status.Terminal() {
		return p, nil
	}
	nonce, err := c.chain.GetNonce(ctx, p.Safe)
	if err != nil {
		return nil, err
	}
	if p.Transaction.Nonce.Cmp(nonce) < 0 {
		if err := c.markStale(ctx, p, ""); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (c *Collector) List(ctx context.Context, safeAddress common.Address, statuses ...core.ProposalStatus) ([]*core.Proposal, error) {
	return c.store.List(ctx, safeAddress, statuses...)
}

// Emulate runs the proposal against the current state of its safe.
func (c *Collector) Emulate(ctx context.Context, hash common.Hash) (*emulation.Result, error) {
	p, err := c.store.Get(ctx, hash)
	if err != nil {
		return nil, err
	}
	info, err := c.chain.GetSafe(ctx, p.Safe)
	if err != nil {
		return nil, err
	}
	return c.emulator.Emulate(ctx, info, p.Transaction, p.Bundle(info.Owners), c.relayer.Address())
}

func (c *Collector) markStale(ctx context.Context, p *core.Proposal, reason string) error {
	if !p.Status.CanTransition(core.ProposalStale) {
		return errors.Wrapf(core.ErrInvalidTransition, "%v to %v", p.Status, core.ProposalStale)
	}
	p.Status = core.ProposalStale
	p.Error = reason
	if err := c.store.Update(ctx, p); err != nil {
		return err
	}
	proposalsCounter.WithLabelValues(string(core.ProposalStale)).Inc()
	c.publish(p, core.EventProposalStale, nil)
	return nil
}

// Execute relays an authorized proposal and waits for it to be mined.
// The returned proposal is Executed or Failed on success. When another
// transaction took the nonce and local keys can reach the threshold, the
// descriptor is re-signed for the new nonce and the replacement proposal is
// executed instead.
func (c *Collector) Execute(ctx context.Context, hash common.Hash) (*core.Proposal, error) {
	unlock := c.lock(hash)
	defer func() { unlock() }()
	p, err := c.store.Get(ctx, hash)
	if err != nil {
		return nil, err
	}
	for attempt := 0; ; attempt++ {
		if !p.Status.Terminal() {
			c.chain.Invalidate(ctx, p.Safe)
			info, err := c.chain.GetSafe(ctx, p.Safe)
			if err != nil {
				return nil, err
			}
			if err := c.reconcile(ctx, p, info); err != nil {
				return nil, err
			}
			if p.Status == core.ProposalPending {
				return p, errors.Wrapf(core.ErrNotAuthorized, "%d of %d signatures",
					len(p.CurrentSignatures(info.Owners)), p.Threshold)
			}
		}
		if p.Status != core.ProposalAuthorized {
			return p, errors.Wrapf(core.ErrInvalidTransition, "proposal is %v", p.Status)
		}
		nonce, err := c.chain.GetNonce(ctx, p.Safe)
		if err != nil {
			return nil, err
		}
		switch p.Transaction.Nonce.Cmp(nonce) {
		case 1:
			return p, errors.Wrapf(core.ErrFutureNonce, "nonce %v, safe is at %v", p.Transaction.Nonce, nonce)
		case -1:
			next, err := c.resubmit(ctx, p, nonce, attempt)
			if err != nil {
				return p, err
			}
			unlock()
			unlock = c.lock(next.Hash)
			if p, err = c.store.Get(ctx, next.Hash); err != nil {
				return nil, err
			}
			continue
		}
		mined, retry, err := c.execute(ctx, p)
		if err != nil {
			return p, err
		}
		if !retry {
			return mined, nil
		}
	}
}

// resubmit handles a proposal whose nonce is behind the chain.
func (c *Collector) resubmit(ctx context.Context, p *core.Proposal, nonce *big.Int, attempt int) (*core.Proposal, error) {
	if attempt >= c.maxResubmits {
		if err := c.markStale(ctx, p, ""); err != nil {
			return nil, err
		}
		return nil, errors.Wrapf(ErrStaleNonce, "nonce %v, safe is at %v", p.Transaction.Nonce, nonce)
	}
	next, err := c.resign(ctx, p, nonce)
	if err != nil {
		return nil, err
	}
	if next == nil {
		if err := c.markStale(ctx, p, ""); err != nil {
			return nil, err
		}
		return nil, errors.Wrapf(ErrStaleNonce, "nonce %v, safe is at %v", p.Transaction.Nonce, nonce)
	}
	if err := c.markStale(ctx, p, fmt.Sprintf("superseded by %v", next.Hash.Hex())); err != nil {
		return nil, err
	}
	c.logger.Info("proposal re-signed for a new nonce",
		zap.Stringer("safe", p.Safe),
		zap.Stringer("proposal", p.Hash),
		zap.Stringer("replacement", next.Hash),
		zap.Stringer("nonce", nonce))
	return next, nil
}

// resign binds the descriptor of p to nonce and signs it with the local
// owner keys. It returns nil if they cannot reach the threshold.
func (c *Collector) resign(ctx context.Context, p *core.Proposal, nonce *big.Int) (*core.Proposal, error) {
	if c.signer == nil {
		return nil, nil
	}
	c.chain.Invalidate(ctx, p.Safe)
	info, err := c.chain.GetSafe(ctx, p.Safe)
	if err != nil {
		return nil, err
	}
	var local []common.Address
	for _, owner := range info.Owners {
		if c.signer.Has(owner) {
			local = append(local, owner)
		}
	}
	if len(local) < int(info.Threshold) || info.Threshold == 0 {
		return nil, nil
	}
	tx := p.Transaction.WithNonce(nonce)
	hash := safe.TransactionHash(p.Safe, tx)
	var sigs safe.Signatures
	for _, owner := range local[:info.Threshold] {
		sig, err := c.signer.Sign(owner, hash)
		if err != nil {
			return nil, errors.Wrapf(err, "sign as %v", owner)
		}
		sigs = append(sigs, sig)
	}
	return c.Propose(ctx, p.Safe, tx, sigs)
}

// execute emulates, relays and observes p. retry is set when the
// transaction lost its nonce while in flight.
func (c *Collector) execute(ctx context.Context, p *core.Proposal) (*core.Proposal, bool, error) {
	c.chain.Invalidate(ctx, p.Safe)
	info, err := c.chain.GetSafe(ctx, p.Safe)
	if err != nil {
		return nil, false, err
	}
	sigs := p.Bundle(info.Owners)
	result, err := c.emulator.Emulate(ctx, info, p.Transaction, sigs, c.relayer.Address())
	if err != nil {
		return nil, false, errors.Wrap(err, "emulate")
	}
	if result.Reverted {
		return nil, false, errors.Wrap(ErrEmulationReverted, result.RevertReason)
	}
	ethTx, err := c.relayer.Submit(ctx, p.Safe, p.Transaction, sigs)
	if err != nil {
		return nil, false, errors.Wrap(err, "relay")
	}
	txHash := ethTx.Hash()
	p.ExecutionTx = &txHash
	if err := c.store.Update(ctx, p); err != nil {
		return nil, false, err
	}

	receipt, err := c.relayer.WaitReceipt(ctx, txHash)
	if err != nil {
		return nil, false, errors.Wrapf(err, "receipt of %v", txHash)
	}
	c.chain.Invalidate(ctx, p.Safe)
	if receipt.Status != types.ReceiptStatusSuccessful {
		nonce, err := c.chain.GetNonce(ctx, p.Safe)
		if err == nil && p.Transaction.Nonce.Cmp(nonce) < 0 {
			return nil, true, nil
		}
		p.Error = "transaction reverted"
		if err := c.store.Update(ctx, p); err != nil {
			return nil, false, err
		}
		c.report(p, txHash, "safe transaction reverted")
		return nil, false, errors.Wrapf(safe.ErrReverted, "transaction %v", txHash)
	}

	p.Status = core.ProposalExecuted
	for _, log := range receipt.Logs {
		if log.Address != p.Safe {
			continue
		}
		event, ok, err := safe.ParseLog(*log)
		if err != nil || !ok {
			continue
		}
		switch event.Kind {
		case safe.ExecutionFailed:
			p.Status = core.ProposalFailed
		case safe.ContractCreation:
			if event.NewContract != (common.Address{}) {
				created := event.NewContract
				p.CreatedContract = &created
			}
		}
	}
	p.Error = ""
	if p.Status == core.ProposalFailed {
		p.Error = "execution failed"
	}
	if err := c.store.Update(ctx, p); err != nil {
		return nil, false, err
	}
	proposalsCounter.WithLabelValues(string(p.Status)).Inc()
	if p.Status == core.ProposalFailed {
		c.report(p, txHash, "safe transaction execution failed")
		c.publish(p, core.EventProposalFailed, &txHash)
	} else {
		c.publish(p, core.EventProposalExecuted, &txHash)
	}
	c.logger.Info("proposal mined",
		zap.Stringer("safe", p.Safe),
		zap.Stringer("proposal", p.Hash),
		zap.Stringer("tx_hash", txHash),
		zap.String("status", string(p.Status)))
	return p, false, nil
}

func (c *Collector) report(p *core.Proposal, txHash common.Hash, title string) {
	c.logger.Warn(title,
		zap.Stringer("safe", p.Safe),
		zap.Stringer("proposal", p.Hash),
		zap.Stringer("tx_hash", txHash))
	sentry.Send(title, sentry.SentryInfoData{
		"safe":     p.Safe.Hex(),
		"proposal": p.Hash.Hex(),
		"tx_hash":  txHash.Hex(),
		"nonce":    p.Transaction.Nonce.String(),
	}, sentrygo.LevelWarning)
}
