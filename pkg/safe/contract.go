package safe

import (
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// PaymentBaseGas is added to every refund on top of the measured execution gas
// and the signed dataGas. It covers the base transaction cost and the refund transfer.
const PaymentBaseGas = 32000

// TotalGasCosts mirrors the pure totalGasCosts view.
func TotalGasCosts(executionGas, dataGas *big.Int) *big.Int {
	total := new(big.Int).Add(orZero(executionGas), orZero(dataGas))
	return total.Add(total, big.NewInt(PaymentBaseGas))
}

// CallHandler runs the calls a safe makes to other accounts.
// Each method reports success and the gas the call consumed.
type CallHandler interface {
	Call(from, to common.Address, value *big.Int, data []byte, gas uint64) (bool, uint64)
	DelegateCall(from, to common.Address, data []byte, gas uint64) (bool, uint64)
	Create(from common.Address, data []byte, gas uint64) (common.Address, bool, uint64)
}

// TransferHandler treats every other account as an externally owned one:
// calls succeed, delegate calls fail because there is no code to run,
// and non-empty init code always deploys.
type TransferHandler struct {
	mu     sync.Mutex
	nonces map[common.Address]uint64
}

func (h *TransferHandler) Call(from, to common.Address, value *big.Int, data []byte, gas uint64) (bool, uint64) {
	return true, 0
}

func (h *TransferHandler) DelegateCall(from, to common.Address, data []byte, gas uint64) (bool, uint64) {
	return false, 0
}

func (h *TransferHandler) Create(from common.Address, data []byte, gas uint64) (common.Address, bool, uint64) {
	if len(data) == 0 {
		return common.Address{}, false, 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.nonces == nil {
		h.nonces = map[common.Address]uint64{}
	}
	// contract accounts start with nonce 1
	nonce := h.nonces[from] + 1
	h.nonces[from] = nonce
	return crypto.CreateAddress(from, nonce), true, 0
}

// ExecContext describes the outer Ethereum transaction.
type ExecContext struct {
	// Origin is tx.origin, the account refunded for gas.
	Origin common.Address
	// Gas available to the safe. Zero means unlimited.
	Gas uint64
}

// Receipt is the outcome of a successful execAndPayTransaction.
type Receipt struct {
	Hash    common.Hash
	Success bool
	GasUsed uint64
	Payment *big.Int
	Events  []Event
}

// CreatedContract returns the address reported by ContractCreation, if any.
func (r Receipt) CreatedContract() (common.Address, bool) {
	for _, e := range r.Events {
		if e.Kind == ContractCreation && e.NewContract != (common.Address{}) {
			return e.NewContract, true
		}
	}
	return common.Address{}, false
}

// State is the observable configuration of a safe.
type State struct {
	Owners    []common.Address
	Modules   []common.Address
	Threshold uint8
	Nonce     *big.Int
}

type contractState struct {
	masterCopy common.Address
	owners     *entryList
	modules    *entryList
	threshold  uint8
	nonce      *big.Int
	balance    *big.Int
	events     []Event
}

func (s *contractState) clone() *contractState {
	return &contractState{
		masterCopy: s.masterCopy,
		owners:     s.owners.clone(),
		modules:    s.modules.clone(),
		threshold:  s.threshold,
		nonce:      new(big.Int).Set(s.nonce),
		balance:    new(big.Int).Set(s.balance),
		events:     append([]Event(nil), s.events...),
	}
}

// Contract is an in-memory model of a safe proxy. It follows the
// contract's rules for authorization, ordering and state transitions and
// is used to check a transaction before paying for it on chain.
// Contract is not safe for concurrent use.
type Contract struct {
	address common.Address
	handler CallHandler
	st      *contractState
	// origin pays for the transaction being executed, set for nested calls.
	origin common.Address
}

func NewContract(address, masterCopy common.Address, handler CallHandler) *Contract {
	if handler == nil {
		handler = &TransferHandler{}
	}
	return &Contract{
		address: address,
		handler: handler,
		st: &contractState{
			masterCopy: masterCopy,
			owners:     newEntryList(ownerErrors),
			modules:    newEntryList(moduleErrors),
			nonce:      new(big.Int),
			balance:    new(big.Int),
		},
	}
}

// ContractFromState rebuilds a model of an already deployed safe.
func ContractFromState(address common.Address, state State, balance *big.Int, handler CallHandler) (*Contract, error) {
	c := NewContract(address, common.Address{}, handler)
	if state.Threshold == 0 {
		return nil, ErrThresholdTooLow
	}
	if int(state.Threshold) > len(state.Owners) {
		return nil, ErrThresholdTooHigh
	}
	for _, owner := range state.Owners {
		if err := c.st.owners.Append(owner); err != nil {
			return nil, err
		}
	}
	for _, module := range state.Modules {
		if err := c.st.modules.Append(module); err != nil {
			return nil, err
		}
	}
	c.st.threshold = state.Threshold
	c.st.nonce.Set(orZero(state.Nonce))
	c.st.balance.Set(orZero(balance))
	return c, nil
}

// Clone returns an independent copy sharing the call handler.
func (c *Contract) Clone() *Contract {
	return &Contract{address: c.address, handler: c.handler, st: c.st.clone()}
}

func (c *Contract) Address() common.Address       { return c.address }
func (c *Contract) MasterCopy() common.Address    { return c.st.masterCopy }
func (c *Contract) Threshold() uint8              { return c.st.threshold }
func (c *Contract) Nonce() *big.Int               { return new(big.Int).Set(c.st.nonce) }
func (c *Contract) Balance() *big.Int             { return new(big.Int).Set(c.st.balance) }
func (c *Contract) Owners() []common.Address      { return c.st.owners.Entries() }
func (c *Contract) Modules() []common.Address     { return c.st.modules.Entries() }
func (c *Contract) IsOwner(a common.Address) bool { return c.st.owners.Contains(a) }

// Events returns everything emitted so far.
func (c *Contract) Events() []Event {
	return append([]Event(nil), c.st.events...)
}

func (c *Contract) State() State {
	return State{
		Owners:    c.Owners(),
		Modules:   c.Modules(),
		Threshold: c.Threshold(),
		Nonce:     c.Nonce(),
	}
}

// TransactionHash is getTransactionHash for this safe.
func (c *Contract) TransactionHash(tx Transaction) common.Hash {
	return TransactionHash(c.address, tx)
}

// Deposit is the payable fallback.
func (c *Contract) Deposit(value *big.Int) {
	c.st.balance.Add(c.st.balance, orZero(value))
}

// Setup initializes owners and threshold and optionally delegate calls to
// to with data. It can only run once.
func (c *Contract) Setup(owners []common.Address, threshold uint8, to common.Address, data []byte) error {
	return c.atomically(func() error {
		if c.st.threshold != 0 {
			return ErrAlreadySetUp
		}
		if int(threshold) > len(owners) {
			return ErrThresholdTooHigh
		}
		if threshold < 1 {
			return ErrThresholdTooLow
		}
		for _, owner := range owners {
			if err := c.st.owners.Append(owner); err != nil {
				return err
			}
		}
		c.st.threshold = threshold
		if to != (common.Address{}) {
			if ok, _ := c.handler.DelegateCall(c.address, to, data, 0); !ok {
				return ErrSetupCallFailed
			}
		}
		return nil
	})
}

// checkHash verifies that the first threshold signatures come from
// distinct owners in strictly ascending order.
func (c *Contract) checkHash(hash common.Hash, sigs Signatures) error {
	if len(sigs) < int(c.st.threshold) {
		return ErrNotEnoughSigs
	}
	var last common.Address
	for i := 0; i < int(c.st.threshold); i++ {
		signer, err := Recover(hash, sigs[i])
		if err != nil {
			return ErrInvalidSignatures
		}
		if !c.st.owners.Contains(signer) || signer.Big().Cmp(last.Big()) <= 0 {
			return ErrInvalidSignatures
		}
		last = signer
	}
	return nil
}

// ExecAndPayTransaction executes tx if sigs authorize it for the current
// nonce. The nonce of tx is ignored, as the contract does not take it as an
// argument. A failing inner call does not revert: it emits ExecutionFailed
// and the nonce is still consumed.
func (c *Contract) ExecAndPayTransaction(ctx ExecContext, tx Transaction, sigs Signatures) (*Receipt, error) {
	tx = tx.Normalized()
	if err := tx.Validate(); err != nil {
		return nil, &RevertError{Reason: err.Error()}
	}
	prevOrigin := c.origin
	c.origin = ctx.Origin
	defer func() { c.origin = prevOrigin }()
	var receipt *Receipt
	err := c.atomically(func() error {
		hash := TransactionHash(c.address, tx.WithNonce(c.st.nonce))
		if err := c.checkHash(hash, sigs); err != nil {
			return err
		}
		c.st.nonce.Add(c.st.nonce, big.NewInt(1))
		if ctx.Gas != 0 && tx.SafeTxGas.Cmp(new(big.Int).SetUint64(ctx.Gas)) > 0 {
			return ErrNotEnoughGas
		}
		firstEvent := len(c.st.events)
		success, gasUsed := c.execute(tx.To, tx.Value, tx.Data, tx.Operation, gasLimit(tx.SafeTxGas))
		if !success {
			c.emit(Event{Kind: ExecutionFailed})
		}
		payment := new(big.Int)
		if tx.GasPrice.Sign() > 0 {
			payment = TotalGasCosts(new(big.Int).SetUint64(gasUsed), tx.DataGas)
			payment.Mul(payment, tx.GasPrice)
			if err := c.pay(ctx.Origin, tx.GasToken, payment); err != nil {
				return err
			}
		}
		receipt = &Receipt{
			Hash:    hash,
			Success: success,
			GasUsed: gasUsed,
			Payment: payment,
			Events:  append([]Event(nil), c.st.events[firstEvent:]...),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

// ExecTransactionFromModule lets an enabled module execute without signatures.
func (c *Contract) ExecTransactionFromModule(sender, to common.Address, value *big.Int, data []byte, op Operation) (bool, error) {
	if sender == Sentinel || !c.st.modules.Contains(sender) {
		return false, ErrModuleNotEnabled
	}
	if !op.IsValid() {
		return false, &RevertError{Reason: "invalid operation"}
	}
	var success bool
	err := c.atomically(func() error {
		success, _ = c.execute(to, orZero(value), data, op, 0)
		return nil
	})
	return success, err
}

// RequiredTxGas simulates the inner call. Like the contract, it always
// reverts: with the estimate as payload on success, or without one on failure.
func (c *Contract) RequiredTxGas(sender, to common.Address, value *big.Int, data []byte, op Operation) error {
	if sender != c.address {
		return ErrUnauthorized
	}
	sandbox := c.Clone()
	success, gasUsed := sandbox.execute(to, orZero(value), data, op, 0)
	if !success {
		return &RevertError{}
	}
	return &RevertError{Reason: "required gas", Data: encodeRequiredGas(new(big.Int).SetUint64(gasUsed))}
}

func gasLimit(safeTxGas *big.Int) uint64 {
	if !safeTxGas.IsUint64() {
		return 0
	}
	return safeTxGas.Uint64()
}

// execute dispatches an inner call. A failed call leaves no effects.
func (c *Contract) execute(to common.Address, value *big.Int, data []byte, op Operation, gas uint64) (bool, uint64) {
	if op == OperationCreate {
		created, ok, gasUsed := c.handler.Create(c.address, data, gas)
		if !ok || (gas != 0 && gasUsed > gas) {
			created = common.Address{}
		}
		c.emit(Event{Kind: ContractCreation, NewContract: created})
		return created != (common.Address{}), gasUsed
	}
	snapshot := c.st.clone()
	success, gasUsed := c.dispatch(to, value, data, op, gas)
	if gas != 0 && gasUsed > gas {
		success = false
	}
	if !success {
		c.st = snapshot
	}
	return success, gasUsed
}

func (c *Contract) dispatch(to common.Address, value *big.Int, data []byte, op Operation, gas uint64) (bool, uint64) {
	switch op {
	case OperationCall:
		if c.st.balance.Cmp(value) < 0 {
			return false, 0
		}
		if to == c.address {
			return c.selfCall(data), 0
		}
		c.st.balance.Sub(c.st.balance, value)
		return c.handler.Call(c.address, to, value, data, gas)
	case OperationDelegateCall:
		return c.handler.DelegateCall(c.address, to, data, gas)
	}
	return false, 0
}

// selfCall handles a transaction the safe sends to itself, which is how
// owners reach the authorized administration methods. Calldata that matches
// no method lands in the payable fallback and succeeds.
func (c *Contract) selfCall(data []byte) bool {
	if _, err := DecodeCall(data); err != nil {
		return true
	}
	_, err := c.Invoke(c.address, data)
	return err == nil
}

func (c *Contract) pay(receiver, token common.Address, amount *big.Int) error {
	if token == (common.Address{}) {
		if c.st.balance.Cmp(amount) < 0 {
			return ErrPaymentFailed
		}
		c.st.balance.Sub(c.st.balance, amount)
		return nil
	}
	data, err := PackERC20Transfer(receiver, amount)
	if err != nil {
		return err
	}
	if ok, _ := c.handler.Call(c.address, token, new(big.Int), data, 0); !ok {
		return ErrPaymentFailed
	}
	return nil
}

func (c *Contract) emit(e Event) {
	c.st.events = append(c.st.events, e)
}

// atomically restores the previous state when fn fails.
func (c *Contract) atomically(fn func() error) error {
	snapshot := c.st.clone()
	if err := fn(); err != nil {
		c.st = snapshot
		return err
	}
	return nil
}
