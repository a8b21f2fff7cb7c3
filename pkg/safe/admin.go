package safe

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

func (c *Contract) authorized(sender common.Address) error {
	if sender != c.address {
		return ErrUnauthorized
	}
	return nil
}

// AddOwnerWithThreshold inserts owner at the head of the owner list and sets a new threshold.
func (c *Contract) AddOwnerWithThreshold(sender, owner common.Address, threshold uint8) error {
	if err := c.authorized(sender); err != nil {
		return err
	}
	return c.atomically(func() error {
		if err := c.st.owners.InsertHead(owner); err != nil {
			return err
		}
		if threshold != c.st.threshold {
			return c.changeThreshold(threshold)
		}
		return nil
	})
}

// RemoveOwner unlinks owner. prevOwner has to point to it.
func (c *Contract) RemoveOwner(sender, prevOwner, owner common.Address, threshold uint8) error {
	if err := c.authorized(sender); err != nil {
		return err
	}
	return c.atomically(func() error {
		if c.st.owners.Len()-1 < int(threshold) {
			return ErrThresholdTooHigh
		}
		if err := c.st.owners.Remove(prevOwner, owner); err != nil {
			return err
		}
		if threshold != c.st.threshold {
			return c.changeThreshold(threshold)
		}
		return nil
	})
}

// SwapOwner replaces oldOwner with newOwner in place.
func (c *Contract) SwapOwner(sender, prevOwner, oldOwner, newOwner common.Address) error {
	if err := c.authorized(sender); err != nil {
		return err
	}
	return c.atomically(func() error {
		return c.st.owners.Replace(prevOwner, oldOwner, newOwner)
	})
}

func (c *Contract) ChangeThreshold(sender common.Address, threshold uint8) error {
	if err := c.authorized(sender); err != nil {
		return err
	}
	return c.changeThreshold(threshold)
}

func (c *Contract) changeThreshold(threshold uint8) error {
	if int(threshold) > c.st.owners.Len() {
		return ErrThresholdTooHigh
	}
	if threshold < 1 {
		return ErrThresholdTooLow
	}
	c.st.threshold = threshold
	return nil
}

func (c *Contract) EnableModule(sender, module common.Address) error {
	if err := c.authorized(sender); err != nil {
		return err
	}
	return c.st.modules.InsertHead(module)
}

func (c *Contract) DisableModule(sender, prevModule, module common.Address) error {
	if err := c.authorized(sender); err != nil {
		return err
	}
	return c.st.modules.Remove(prevModule, module)
}

func (c *Contract) ChangeMasterCopy(sender, masterCopy common.Address) error {
	if err := c.authorized(sender); err != nil {
		return err
	}
	if masterCopy == (common.Address{}) {
		return ErrInvalidMasterCopy
	}
	c.st.masterCopy = masterCopy
	return nil
}

// Invoke runs ABI encoded calldata as if sender called the contract and
// returns the ABI encoded outputs. Execution uses an unlimited gas budget
// with sender as tx.origin.
func (c *Contract) Invoke(sender common.Address, data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}
	call, err := DecodeCall(data)
	if err != nil {
		return nil, ErrUnknownMethod
	}
	a := call.Args
	var out []interface{}
	switch call.Method.Name {
	case MethodIsOwner:
		out = []interface{}{c.IsOwner(a[0].(common.Address))}
	case MethodGetOwners:
		out = []interface{}{c.Owners()}
	case MethodGetModules:
		out = []interface{}{c.Modules()}
	case MethodGetThreshold:
		out = []interface{}{c.Threshold()}
	case MethodNonce:
		out = []interface{}{c.Nonce()}
	case MethodName:
		out = []interface{}{Name}
	case MethodVersion:
		out = []interface{}{Version}
	case MethodSentinelOwners, MethodSentinelModules:
		out = []interface{}{Sentinel}
	case MethodTotalGasCosts:
		out = []interface{}{TotalGasCosts(a[0].(*big.Int), a[1].(*big.Int))}
	case MethodGetTransactionHash:
		tx := Transaction{
			To:        a[0].(common.Address),
			Value:     a[1].(*big.Int),
			Data:      a[2].([]byte),
			Operation: Operation(a[3].(uint8)),
			SafeTxGas: a[4].(*big.Int),
			DataGas:   a[5].(*big.Int),
			GasPrice:  a[6].(*big.Int),
			GasToken:  a[7].(common.Address),
			Nonce:     a[8].(*big.Int),
		}
		out = []interface{}{[32]byte(c.TransactionHash(tx))}
	case MethodSetup:
		err = c.Setup(a[0].([]common.Address), a[1].(uint8), a[2].(common.Address), a[3].([]byte))
	case MethodAddOwnerWithThreshold:
		err = c.AddOwnerWithThreshold(sender, a[0].(common.Address), a[1].(uint8))
	case MethodRemoveOwner:
		err = c.RemoveOwner(sender, a[0].(common.Address), a[1].(common.Address), a[2].(uint8))
	case MethodSwapOwner:
		err = c.SwapOwner(sender, a[0].(common.Address), a[1].(common.Address), a[2].(common.Address))
	case MethodChangeThreshold:
		err = c.ChangeThreshold(sender, a[0].(uint8))
	case MethodEnableModule:
		err = c.EnableModule(sender, a[0].(common.Address))
	case MethodDisableModule:
		err = c.DisableModule(sender, a[0].(common.Address), a[1].(common.Address))
	case MethodChangeMasterCopy:
		err = c.ChangeMasterCopy(sender, a[0].(common.Address))
	case MethodExecTransactionFromModule:
		var success bool
		success, err = c.ExecTransactionFromModule(sender, a[0].(common.Address), a[1].(*big.Int), a[2].([]byte), Operation(a[3].(uint8)))
		out = []interface{}{success}
	case MethodRequiredTxGas:
		err = c.RequiredTxGas(sender, a[0].(common.Address), a[1].(*big.Int), a[2].([]byte), Operation(a[3].(uint8)))
	case MethodExecAndPayTransaction:
		// a nested call is paid to the origin of the outer transaction
		origin := sender
		if sender == c.address {
			origin = c.origin
		}
		var sigs Signatures
		sigs, err = JoinSignatures(a[8].([]uint8), a[9].([][32]byte), a[10].([][32]byte))
		if err != nil {
			return nil, &RevertError{Reason: err.Error()}
		}
		tx := Transaction{
			To:        a[0].(common.Address),
			Value:     a[1].(*big.Int),
			Data:      a[2].([]byte),
			Operation: Operation(a[3].(uint8)),
			SafeTxGas: a[4].(*big.Int),
			DataGas:   a[5].(*big.Int),
			GasPrice:  a[6].(*big.Int),
			GasToken:  a[7].(common.Address),
		}
		_, err = c.ExecAndPayTransaction(ExecContext{Origin: origin}, tx, sigs)
	default:
		return nil, ErrUnknownMethod
	}
	if err != nil {
		return nil, err
	}
	return call.Method.Outputs.Pack(out...)
}
