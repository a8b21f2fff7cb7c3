package safe

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

type EventKind int

const (
	ExecutionFailed EventKind = iota + 1
	ContractCreation
)

func (k EventKind) String() string {
	switch k {
	case ExecutionFailed:
		return EventExecutionFailed
	case ContractCreation:
		return EventContractCreation
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// Event is one of the two events the contract emits.
type Event struct {
	Kind EventKind
	// NewContract is set for ContractCreation. It is the zero address when creation failed.
	NewContract common.Address
}

// Log encodes the event the way the contract at safe emits it.
func (e Event) Log(safe common.Address) (types.Log, error) {
	switch e.Kind {
	case ExecutionFailed:
		return types.Log{Address: safe, Topics: []common.Hash{ExecutionFailedTopic}}, nil
	case ContractCreation:
		data, err := ContractABI.Events[EventContractCreation].Inputs.Pack(e.NewContract)
		if err != nil {
			return types.Log{}, err
		}
		return types.Log{Address: safe, Topics: []common.Hash{ContractCreationTopic}, Data: data}, nil
	}
	return types.Log{}, fmt.Errorf("unknown event kind %v", e.Kind)
}

// ParseLog decodes a safe log. ok is false for logs of other contracts' events.
func ParseLog(log types.Log) (e Event, ok bool, err error) {
	if len(log.Topics) == 0 {
		return Event{}, false, nil
	}
	switch log.Topics[0] {
	case ExecutionFailedTopic:
		return Event{Kind: ExecutionFailed}, true, nil
	case ContractCreationTopic:
		values, err := ContractABI.Events[EventContractCreation].Inputs.Unpack(log.Data)
		if err != nil {
			return Event{}, true, err
		}
		if len(values) != 1 {
			return Event{}, true, fmt.Errorf("unexpected %v values in ContractCreation", len(values))
		}
		addr, isAddr := values[0].(common.Address)
		if !isAddr {
			return Event{}, true, fmt.Errorf("unexpected %T in ContractCreation", values[0])
		}
		return Event{Kind: ContractCreation, NewContract: addr}, true, nil
	}
	return Event{}, false, nil
}
