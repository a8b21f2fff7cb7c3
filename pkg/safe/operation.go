package safe

import (
	"fmt"
	"strconv"
	"strings"
)

// Operation selects how the safe dispatches a transaction.
type Operation uint8

const (
	OperationCall Operation = iota
	OperationDelegateCall
	OperationCreate
)

func (o Operation) IsValid() bool {
	return o <= OperationCreate
}

func (o Operation) String() string {
	switch o {
	case OperationCall:
		return "call"
	case OperationDelegateCall:
		return "delegatecall"
	case OperationCreate:
		return "create"
	}
	return fmt.Sprintf("operation(%d)", uint8(o))
}

// ParseOperation accepts either a name ("call", "delegatecall", "create") or the numeric value.
func ParseOperation(s string) (Operation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "call":
		return OperationCall, nil
	case "delegatecall", "delegate_call":
		return OperationDelegateCall, nil
	case "create":
		return OperationCreate, nil
	}
	n, err := strconv.ParseUint(s, 10, 8)
	if err != nil || !Operation(n).IsValid() {
		return 0, fmt.Errorf("unknown operation %q", s)
	}
	return Operation(n), nil
}

func (o Operation) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

func (o *Operation) UnmarshalText(text []byte) error {
	op, err := ParseOperation(string(text))
	if err != nil {
		return err
	}
	*o = op
	return nil
}
