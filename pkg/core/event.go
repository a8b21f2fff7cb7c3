package core

import (
	"github.com/ethereum/go-ethereum/common"
)

type SafeEventKind string

const (
	EventExecutionFailed   SafeEventKind = "execution_failed"
	EventContractCreation  SafeEventKind = "contract_creation"
	EventProposalCreated   SafeEventKind = "proposal_created"
	EventSignatureAdded    SafeEventKind = "signature_added"
	EventProposalExecuted  SafeEventKind = "proposal_executed"
	EventProposalFailed    SafeEventKind = "proposal_failed"
	EventProposalStale     SafeEventKind = "proposal_stale"
	EventProposalSubmitted SafeEventKind = "proposal_submitted"
)

// SafeEvent is something that happened to a safe, either on chain or to one of its proposals.
type SafeEvent struct {
	Safe         common.Address  `json:"safe"`
	Kind         SafeEventKind   `json:"kind"`
	TxHash       *common.Hash    `json:"tx_hash,omitempty"`
	BlockNumber  uint64          `json:"block_number,omitempty"`
	ProposalHash *common.Hash    `json:"proposal_hash,omitempty"`
	NewContract  *common.Address `json:"new_contract,omitempty"`
}
