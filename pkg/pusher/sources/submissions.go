package sources

import (
	"context"

	"go.uber.org/zap"

	"github.com/arnac-io/opensafeapi/pkg/blockchain"
	"github.com/arnac-io/opensafeapi/pkg/core"
)

// ConsumeSubmissions publishes a proposal_submitted event for every
// transaction the relayer hands over. It returns when ctx is done or ch is closed.
func (disp *Dispatcher) ConsumeSubmissions(ctx context.Context, ch <-chan blockchain.Submission) {
	for {
		select {
		case <-ctx.Done():
			return
		case s, ok := <-ch:
			if !ok {
				return
			}
			txHash, proposal := s.Tx.Hash(), s.SafeTxHash
			disp.logger.Debug("safe transaction submitted",
				zap.Stringer("safe", s.Safe),
				zap.Stringer("tx_hash", txHash))
			disp.Publish(core.SafeEvent{
				Safe:         s.Safe,
				Kind:         core.EventProposalSubmitted,
				TxHash:       &txHash,
				ProposalHash: &proposal,
			})
		}
	}
}
