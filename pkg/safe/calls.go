package safe

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/exp/slices"
)

// AdminCalls builds the transactions a safe has to send to itself to change
// its configuration. Predecessor pointers are taken from the observed list
// order, and everything the contract would reject is rejected up front.
type AdminCalls struct {
	safe  common.Address
	state State
}

func NewAdminCalls(safe common.Address, state State) *AdminCalls {
	return &AdminCalls{safe: safe, state: state}
}

// tx leaves the nonce unset so that it is bound when the transaction is hashed.
func (a *AdminCalls) tx(data []byte) Transaction {
	return Transaction{
		To:        a.safe,
		Value:     new(big.Int),
		Data:      data,
		Operation: OperationCall,
	}
}

func (a *AdminCalls) checkThreshold(threshold uint8, owners int) error {
	if threshold < 1 {
		return ErrThresholdTooLow
	}
	if int(threshold) > owners {
		return ErrThresholdTooHigh
	}
	return nil
}

func checkNewEntry(list []common.Address, entry common.Address, errs entryErrors) error {
	if entry == (common.Address{}) || entry == Sentinel {
		return errs.invalid
	}
	if slices.Contains(list, entry) {
		return errs.duplicate
	}
	return nil
}

func (a *AdminCalls) AddOwnerWithThreshold(owner common.Address, threshold uint8) (Transaction, error) {
	if err := checkNewEntry(a.state.Owners, owner, ownerErrors); err != nil {
		return Transaction{}, err
	}
	if err := a.checkThreshold(threshold, len(a.state.Owners)+1); err != nil {
		return Transaction{}, err
	}
	data, err := PackAddOwnerWithThreshold(owner, threshold)
	if err != nil {
		return Transaction{}, err
	}
	return a.tx(data), nil
}

// RemoveOwner keeps the owner count at or above the new threshold.
func (a *AdminCalls) RemoveOwner(owner common.Address, threshold uint8) (Transaction, error) {
	prev, ok := PrevEntry(a.state.Owners, owner)
	if !ok {
		return Transaction{}, ErrInvalidPrevOwner
	}
	if err := a.checkThreshold(threshold, len(a.state.Owners)-1); err != nil {
		return Transaction{}, err
	}
	data, err := PackRemoveOwner(prev, owner, threshold)
	if err != nil {
		return Transaction{}, err
	}
	return a.tx(data), nil
}

func (a *AdminCalls) SwapOwner(oldOwner, newOwner common.Address) (Transaction, error) {
	if err := checkNewEntry(a.state.Owners, newOwner, ownerErrors); err != nil {
		return Transaction{}, err
	}
	prev, ok := PrevEntry(a.state.Owners, oldOwner)
	if !ok {
		return Transaction{}, ErrInvalidPrevOwner
	}
	data, err := PackSwapOwner(prev, oldOwner, newOwner)
	if err != nil {
		return Transaction{}, err
	}
	return a.tx(data), nil
}

func (a *AdminCalls) ChangeThreshold(threshold uint8) (Transaction, error) {
	if err := a.checkThreshold(threshold, len(a.state.Owners)); err != nil {
		return Transaction{}, err
	}
	data, err := PackChangeThreshold(threshold)
	if err != nil {
		return Transaction{}, err
	}
	return a.tx(data), nil
}

func (a *AdminCalls) EnableModule(module common.Address) (Transaction, error) {
	if err := checkNewEntry(a.state.Modules, module, moduleErrors); err != nil {
		return Transaction{}, err
	}
	data, err := PackEnableModule(module)
	if err != nil {
		return Transaction{}, err
	}
	return a.tx(data), nil
}

func (a *AdminCalls) DisableModule(module common.Address) (Transaction, error) {
	prev, ok := PrevEntry(a.state.Modules, module)
	if !ok {
		return Transaction{}, ErrInvalidPrevModule
	}
	data, err := PackDisableModule(prev, module)
	if err != nil {
		return Transaction{}, err
	}
	return a.tx(data), nil
}

func (a *AdminCalls) ChangeMasterCopy(masterCopy common.Address) (Transaction, error) {
	if masterCopy == (common.Address{}) {
		return Transaction{}, ErrInvalidMasterCopy
	}
	data, err := PackChangeMasterCopy(masterCopy)
	if err != nil {
		return Transaction{}, err
	}
	return a.tx(data), nil
}
