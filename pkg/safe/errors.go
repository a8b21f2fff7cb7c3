package safe

import (
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-faster/errors"
)

// ErrReverted matches every RevertError.
var ErrReverted = errors.New("execution reverted")

// RevertError is a failed pre-execution check of the contract.
// The chain reports it without a structured reason, so Reason is only
// filled in by the local contract model.
type RevertError struct {
	Reason string
	// Data is the raw revert payload, if any.
	Data []byte
}

func (e *RevertError) Error() string {
	if e.Reason == "" {
		return ErrReverted.Error()
	}
	return "execution reverted: " + e.Reason
}

func (e *RevertError) Is(target error) bool {
	return target == ErrReverted
}

// ErrorCode and ErrorData make RevertError look like a JSON-RPC revert to go-ethereum callers.
func (e *RevertError) ErrorCode() int { return 3 }

func (e *RevertError) ErrorData() interface{} {
	return hexutil.Encode(e.Data)
}

var (
	ErrAlreadySetUp      = &RevertError{Reason: "safe has already been set up"}
	ErrSetupCallFailed   = &RevertError{Reason: "could not finish initialization"}
	ErrThresholdTooHigh  = &RevertError{Reason: "threshold cannot exceed owner count"}
	ErrThresholdTooLow   = &RevertError{Reason: "threshold needs to be greater than 0"}
	ErrInvalidOwner      = &RevertError{Reason: "invalid owner address provided"}
	ErrDuplicateOwner    = &RevertError{Reason: "address is already an owner"}
	ErrInvalidPrevOwner  = &RevertError{Reason: "invalid prevOwner, owner pair provided"}
	ErrInvalidModule     = &RevertError{Reason: "invalid module address provided"}
	ErrDuplicateModule   = &RevertError{Reason: "module has already been added"}
	ErrInvalidPrevModule = &RevertError{Reason: "invalid prevModule, module pair provided"}
	ErrInvalidMasterCopy = &RevertError{Reason: "invalid master copy address provided"}
	ErrUnauthorized      = &RevertError{Reason: "method can only be called from this contract"}
	ErrModuleNotEnabled  = &RevertError{Reason: "method can only be called from an enabled module"}
	ErrNotEnoughSigs     = &RevertError{Reason: "not enough signatures provided"}
	ErrInvalidSignatures = &RevertError{Reason: "invalid signatures provided"}
	ErrNotEnoughGas      = &RevertError{Reason: "not enough gas to execute safe transaction"}
	ErrPaymentFailed     = &RevertError{Reason: "could not pay gas costs"}
	ErrUnknownMethod     = &RevertError{Reason: "unknown method"}
)
