package core

import (
	"bytes"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/exp/slices"

	"github.com/arnac-io/opensafeapi/pkg/safe"
)

type ProposalStatus string

const (
	// ProposalPending collects signatures.
	ProposalPending ProposalStatus = "pending"
	// ProposalAuthorized has at least threshold owner signatures.
	ProposalAuthorized ProposalStatus = "authorized"
	// ProposalExecuted was mined and the inner call succeeded.
	ProposalExecuted ProposalStatus = "executed"
	// ProposalFailed was mined, consumed its nonce and emitted ExecutionFailed.
	ProposalFailed ProposalStatus = "failed"
	// ProposalStale lost its nonce to another transaction.
	ProposalStale ProposalStatus = "stale"
)

var proposalTransitions = map[ProposalStatus][]ProposalStatus{
	ProposalPending:    {ProposalAuthorized, ProposalStale},
	// an owner removal can take signatures away from an authorized proposal
	ProposalAuthorized: {ProposalPending, ProposalExecuted, ProposalFailed, ProposalStale},
}

func (s ProposalStatus) Terminal() bool {
	return len(proposalTransitions[s]) == 0
}

func (s ProposalStatus) CanTransition(to ProposalStatus) bool {
	return slices.Contains(proposalTransitions[s], to)
}

func (s ProposalStatus) Valid() bool {
	switch s {
	case ProposalPending, ProposalAuthorized, ProposalExecuted, ProposalFailed, ProposalStale:
		return true
	}
	return false
}

// Proposal is a transaction waiting for owner signatures and execution.
type Proposal struct {
	Hash        common.Hash
	Safe        common.Address
	Transaction safe.Transaction
	// Signatures are kept ordered by signer.
	Signatures []safe.SignedBy
	Threshold  uint8
	Status     ProposalStatus
	// ExecutionTx is the hash of the relayed Ethereum transaction.
	ExecutionTx     *common.Hash
	CreatedContract *common.Address
	Error           string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (p *Proposal) SignedBy(owner common.Address) bool {
	for _, s := range p.Signatures {
		if s.Signer == owner {
			return true
		}
	}
	return false
}

// AddSignature inserts sig keeping the signer order. It returns false if
// the signer already signed.
func (p *Proposal) AddSignature(sig safe.SignedBy) bool {
	i, found := slices.BinarySearchFunc(p.Signatures, sig.Signer, func(s safe.SignedBy, signer common.Address) int {
		return bytes.Compare(s.Signer.Bytes(), signer.Bytes())
	})
	if found {
		return false
	}
	p.Signatures = slices.Insert(p.Signatures, i, sig)
	return true
}

// CurrentSignatures returns the signatures made by owners, in signer order.
// Signatures of removed owners stay stored but are not counted.
func (p *Proposal) CurrentSignatures(owners []common.Address) []safe.SignedBy {
	out := make([]safe.SignedBy, 0, len(p.Signatures))
	for _, s := range p.Signatures {
		if slices.Contains(owners, s.Signer) {
			out = append(out, s)
		}
	}
	return out
}

// Bundle returns the signatures of current owners in the order
// execAndPayTransaction expects.
func (p *Proposal) Bundle(owners []common.Address) safe.Signatures {
	return safe.Bundle(p.CurrentSignatures(owners))
}

// Authorized reports whether owners signed at least threshold times.
func (p *Proposal) Authorized(owners []common.Address) bool {
	return p.Threshold > 0 && len(p.CurrentSignatures(owners)) >= int(p.Threshold)
}

// Reconcile moves a Pending or Authorized proposal to the status matching
// the current owners and threshold. It reports whether the status changed.
func (p *Proposal) Reconcile(owners []common.Address, threshold uint8) bool {
	if p.Status != ProposalPending && p.Status != ProposalAuthorized {
		return false
	}
	p.Threshold = threshold
	status := ProposalPending
	if p.Authorized(owners) {
		status = ProposalAuthorized
	}
	if status == p.Status {
		return false
	}
	p.Status = status
	return true
}
