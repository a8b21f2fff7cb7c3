// Package actions turns safe transactions into human-readable actions.
package actions

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/arnac-io/opensafeapi/pkg/safe"
)

const (
	EtherTransfer    ActionType = "EtherTransfer"
	TokenTransfer    ActionType = "TokenTransfer"
	ContractCall     ActionType = "ContractCall"
	DelegateCall     ActionType = "DelegateCall"
	ContractCreate   ActionType = "ContractCreate"
	AddOwner         ActionType = "AddOwner"
	RemoveOwner      ActionType = "RemoveOwner"
	SwapOwner        ActionType = "SwapOwner"
	ChangeThreshold  ActionType = "ChangeThreshold"
	EnableModule     ActionType = "EnableModule"
	DisableModule    ActionType = "DisableModule"
	ChangeMasterCopy ActionType = "ChangeMasterCopy"
	SafeCall         ActionType = "SafeCall"
)

type ActionType string

// IsAdmin reports whether the action changes the configuration of the safe.
func (t ActionType) IsAdmin() bool {
	switch t {
	case AddOwner, RemoveOwner, SwapOwner, ChangeThreshold, EnableModule, DisableModule, ChangeMasterCopy:
		return true
	}
	return false
}

type (
	Action struct {
		Type          ActionType
		EtherTransfer *EtherTransferAction `json:",omitempty"`
		TokenTransfer *TokenTransferAction `json:",omitempty"`
		ContractCall  *ContractCallAction  `json:",omitempty"`
		Admin         *AdminAction         `json:",omitempty"`
	}
	EtherTransferAction struct {
		Amount    *big.Int
		Recipient common.Address
	}
	TokenTransferAction struct {
		Token     common.Address
		Amount    *big.Int
		Recipient common.Address
	}
	// ContractCallAction covers calls, delegate calls and deployments
	// that could not be decoded any further.
	ContractCallAction struct {
		Target    common.Address
		Amount    *big.Int
		Operation safe.Operation
		// Selector is the first four bytes of the calldata, if any.
		Selector string `json:",omitempty"`
	}
	AdminAction struct {
		Method     string
		Owner      *common.Address `json:",omitempty"`
		NewOwner   *common.Address `json:",omitempty"`
		Module     *common.Address `json:",omitempty"`
		MasterCopy *common.Address `json:",omitempty"`
		Threshold  *uint8          `json:",omitempty"`
	}
)

// Decode classifies tx sent by the safe at safeAddress.
func Decode(safeAddress common.Address, tx safe.Transaction) (Action, error) {
	tx = tx.Normalized()
	switch tx.Operation {
	case safe.OperationCreate:
		return Action{Type: ContractCreate, ContractCall: &ContractCallAction{
			Amount:    tx.Value,
			Operation: tx.Operation,
		}}, nil
	case safe.OperationDelegateCall:
		return Action{Type: DelegateCall, ContractCall: contractCall(tx)}, nil
	}
	if tx.To == safeAddress && len(tx.Data) > 0 {
		return decodeSelfCall(tx)
	}
	if len(tx.Data) == 0 {
		return Action{Type: EtherTransfer, EtherTransfer: &EtherTransferAction{
			Amount:    tx.Value,
			Recipient: tx.To,
		}}, nil
	}
	if call, err := safe.DecodeERC20Call(tx.Data); err == nil && call.Method.Name == "transfer" {
		recipient, err := call.Address(0)
		if err != nil {
			return Action{}, err
		}
		amount, err := call.BigInt(1)
		if err != nil {
			return Action{}, err
		}
		return Action{Type: TokenTransfer, TokenTransfer: &TokenTransferAction{
			Token:     tx.To,
			Amount:    amount,
			Recipient: recipient,
		}}, nil
	}
	return Action{Type: ContractCall, ContractCall: contractCall(tx)}, nil
}

func contractCall(tx safe.Transaction) *ContractCallAction {
	action := &ContractCallAction{
		Target:    tx.To,
		Amount:    tx.Value,
		Operation: tx.Operation,
	}
	if len(tx.Data) >= 4 {
		action.Selector = hexutil.Encode(tx.Data[:4])
	}
	return action
}

func decodeSelfCall(tx safe.Transaction) (Action, error) {
	call, err := safe.DecodeCall(tx.Data)
	if err != nil {
		return Action{Type: ContractCall, ContractCall: contractCall(tx)}, nil
	}
	admin := &AdminAction{Method: call.Method.Name}
	var typ ActionType
	switch call.Method.Name {
	case safe.MethodAddOwnerWithThreshold:
		typ = AddOwner
		err = decodeArgs(call, argAddress(0, &admin.Owner), argUint8(1, &admin.Threshold))
	case safe.MethodRemoveOwner:
		typ = RemoveOwner
		err = decodeArgs(call, argAddress(1, &admin.Owner), argUint8(2, &admin.Threshold))
	case safe.MethodSwapOwner:
		typ = SwapOwner
		err = decodeArgs(call, argAddress(1, &admin.Owner), argAddress(2, &admin.NewOwner))
	case safe.MethodChangeThreshold:
		typ = ChangeThreshold
		err = decodeArgs(call, argUint8(0, &admin.Threshold))
	case safe.MethodEnableModule:
		typ = EnableModule
		err = decodeArgs(call, argAddress(0, &admin.Module))
	case safe.MethodDisableModule:
		typ = DisableModule
		err = decodeArgs(call, argAddress(1, &admin.Module))
	case safe.MethodChangeMasterCopy:
		typ = ChangeMasterCopy
		err = decodeArgs(call, argAddress(0, &admin.MasterCopy))
	default:
		typ = SafeCall
	}
	if err != nil {
		return Action{}, fmt.Errorf("decode %v: %w", call.Method.Name, err)
	}
	return Action{Type: typ, Admin: admin}, nil
}

type argFn func(call *safe.Call) error

func argAddress(i int, dst **common.Address) argFn {
	return func(call *safe.Call) error {
		a, err := call.Address(i)
		if err != nil {
			return err
		}
		*dst = &a
		return nil
	}
}

func argUint8(i int, dst **uint8) argFn {
	return func(call *safe.Call) error {
		v, err := call.Uint8(i)
		if err != nil {
			return err
		}
		*dst = &v
		return nil
	}
}

func decodeArgs(call *safe.Call, args ...argFn) error {
	for _, arg := range args {
		if err := arg(call); err != nil {
			return err
		}
	}
	return nil
}
