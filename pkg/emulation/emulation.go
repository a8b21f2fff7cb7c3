// Package emulation runs a safe transaction against a model of the safe
// built from chain state, so that transactions that would revert are caught
// before anyone pays gas for them.
package emulation

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/go-faster/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/arnac-io/opensafeapi/pkg/core"
	"github.com/arnac-io/opensafeapi/pkg/safe"
)

var emulationsCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "safe_emulations_total",
	Help: "Number of emulated safe transactions by outcome",
}, []string{"outcome"})

// Backend runs calls of the safe against other contracts.
// *ethclient.Client implements it.
type Backend interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
}

type Result struct {
	// Reverted means the transaction would not be mined successfully.
	Reverted     bool
	RevertReason string
	// Success is false when the inner call fails and ExecutionFailed is emitted.
	Success         bool
	Events          []safe.Event
	CreatedContract *common.Address
	GasUsed         uint64
	Payment         *big.Int
	NonceAfter      *big.Int
	// Unverified is set when part of the execution could not be simulated, e.g. a delegate call.
	Unverified bool
}

type Emulator struct {
	logger  *zap.Logger
	backend Backend
}

// NewEmulator returns an emulator. With a nil backend every external call
// is treated as a plain transfer.
func NewEmulator(logger *zap.Logger, backend Backend) *Emulator {
	return &Emulator{logger: logger, backend: backend}
}

// Emulate runs execAndPayTransaction on a copy of the safe described by info.
// origin receives the gas refund.
func (e *Emulator) Emulate(ctx context.Context, info core.SafeInfo, tx safe.Transaction, sigs safe.Signatures, origin common.Address) (*Result, error) {
	var handler safe.CallHandler = &safe.TransferHandler{}
	var ch *chainHandler
	if e.backend != nil {
		ch = &chainHandler{ctx: ctx, backend: e.backend, logger: e.logger}
		handler = ch
	}
	contract, err := safe.ContractFromState(info.Address, info.State(), info.Balance, handler)
	if err != nil {
		return nil, errors.Wrap(err, "rebuild safe")
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	receipt, err := contract.ExecAndPayTransaction(safe.ExecContext{Origin: origin}, tx, sigs)
	result := &Result{NonceAfter: contract.Nonce(), Unverified: ch != nil && ch.unverified}
	var revert *safe.RevertError
	switch {
	case errors.As(err, &revert):
		result.Reverted = true
		result.RevertReason = revert.Reason
		emulationsCounter.WithLabelValues("reverted").Inc()
		return result, nil
	case err != nil:
		return nil, err
	}
	result.Success = receipt.Success
	result.Events = receipt.Events
	result.GasUsed = receipt.GasUsed
	result.Payment = receipt.Payment
	if created, ok := receipt.CreatedContract(); ok {
		result.CreatedContract = &created
	}
	if result.Success {
		emulationsCounter.WithLabelValues("success").Inc()
	} else {
		emulationsCounter.WithLabelValues("execution_failed").Inc()
	}
	return result, nil
}

// chainHandler answers inner calls of the model with eth_call against the node.
type chainHandler struct {
	ctx        context.Context
	backend    Backend
	logger     *zap.Logger
	unverified bool
	created    uint64
}

func (h *chainHandler) Call(from, to common.Address, value *big.Int, data []byte, gas uint64) (bool, uint64) {
	msg := ethereum.CallMsg{From: from, To: &to, Value: value, Data: data, Gas: gas}
	if _, err := h.backend.CallContract(h.ctx, msg, nil); err != nil {
		h.logger.Debug("emulated call failed", zap.Stringer("to", to), zap.Error(err))
		return false, 0
	}
	used, err := h.backend.EstimateGas(h.ctx, msg)
	if err != nil {
		return false, 0
	}
	return true, used
}

// DelegateCall runs foreign code on the safe's own storage, which eth_call
// cannot reproduce. It is assumed to succeed and the result is flagged.
func (h *chainHandler) DelegateCall(from, to common.Address, data []byte, gas uint64) (bool, uint64) {
	h.unverified = true
	return true, 0
}

func (h *chainHandler) Create(from common.Address, data []byte, gas uint64) (common.Address, bool, uint64) {
	msg := ethereum.CallMsg{From: from, Data: data, Gas: gas}
	if len(data) == 0 {
		return common.Address{}, false, 0
	}
	if _, err := h.backend.CallContract(h.ctx, msg, nil); err != nil {
		return common.Address{}, false, 0
	}
	used, err := h.backend.EstimateGas(h.ctx, msg)
	if err != nil {
		return common.Address{}, false, 0
	}
	nonce, err := h.backend.PendingNonceAt(h.ctx, from)
	if err != nil {
		h.unverified = true
	}
	address := crypto.CreateAddress(from, nonce+h.created)
	h.created++
	return address, true, used
}
