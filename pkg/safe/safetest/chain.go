// Package safetest provides an in-memory chain that runs safes on the
// contract model and answers the subset of the JSON-RPC API used by the
// service.
package safetest

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/go-faster/errors"

	"github.com/arnac-io/opensafeapi/pkg/safe"
)

const ChainID = 1337

var ErrNotSupported = errors.New("not supported by the simulated chain")

// Chain mines every submitted transaction into its own block.
type Chain struct {
	mu       sync.Mutex
	signer   types.Signer
	block    uint64
	safes    map[common.Address]*safe.Contract
	nonces   map[common.Address]uint64
	receipts map[common.Hash]*types.Receipt
	logs     []types.Log
	sent     []*types.Transaction
	// failSend makes SendTransaction return the error.
	failSend error
}

func NewChain() *Chain {
	return &Chain{
		signer:   types.LatestSignerForChainID(big.NewInt(ChainID)),
		block:    1,
		safes:    map[common.Address]*safe.Contract{},
		nonces:   map[common.Address]uint64{},
		receipts: map[common.Hash]*types.Receipt{},
	}
}

// Deploy adds a safe set up with owners and threshold.
func (c *Chain) Deploy(address common.Address, owners []common.Address, threshold uint8) (*safe.Contract, error) {
	contract := safe.NewContract(address, common.HexToAddress("0x3a51e2"), nil)
	if err := contract.Setup(owners, threshold, common.Address{}, nil); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.safes[address] = contract
	return contract, nil
}

// Update runs fn against the safe under the chain lock and mines a block.
func (c *Chain) Update(address common.Address, fn func(contract *safe.Contract) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	contract, ok := c.safes[address]
	if !ok {
		return errors.Errorf("no safe at %v", address)
	}
	c.block++
	return fn(contract)
}

func (c *Chain) FailSend(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failSend = err
}

// Sent returns every transaction accepted by SendTransaction.
func (c *Chain) Sent() []*types.Transaction {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*types.Transaction(nil), c.sent...)
}

func (c *Chain) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.safes[account]; ok {
		return []byte{0x60, 0x80}, nil
	}
	return nil, nil
}

func (c *Chain) PendingCodeAt(ctx context.Context, account common.Address) ([]byte, error) {
	return c.CodeAt(ctx, account, nil)
}

func (c *Chain) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	c.mu.Lock()
	contract, ok := c.safes[*msg.To]
	if ok {
		contract = contract.Clone()
	}
	c.mu.Unlock()
	if !ok {
		return nil, nil
	}
	return contract.Invoke(msg.From, msg.Data)
}

func (c *Chain) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if contract, ok := c.safes[account]; ok {
		return contract.Balance(), nil
	}
	return new(big.Int), nil
}

func (c *Chain) BlockNumber(ctx context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.block, nil
}

func (c *Chain) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return &types.Header{Number: new(big.Int).SetUint64(c.block), GasLimit: 30_000_000}, nil
}

func (c *Chain) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nonces[account], nil
}

func (c *Chain) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (c *Chain) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (c *Chain) EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error) {
	return 300_000, nil
}

func (c *Chain) ChainID(ctx context.Context) (*big.Int, error) {
	return big.NewInt(ChainID), nil
}

// SendTransaction mines tx right away. A reverting call is mined with a failed status.
func (c *Chain) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	from, err := types.Sender(c.signer, tx)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failSend != nil {
		return c.failSend
	}
	if tx.Nonce() != c.nonces[from] {
		return errors.Errorf("nonce too low: have %d, want %d", tx.Nonce(), c.nonces[from])
	}
	c.nonces[from]++
	c.block++
	c.sent = append(c.sent, tx)

	receipt := &types.Receipt{
		Status:      types.ReceiptStatusSuccessful,
		TxHash:      tx.Hash(),
		BlockNumber: new(big.Int).SetUint64(c.block),
		GasUsed:     100_000,
	}
	if contract, ok := c.safes[*tx.To()]; ok {
		seen := len(contract.Events())
		contract.Deposit(tx.Value())
		if _, err := contract.Invoke(from, tx.Data()); err != nil {
			receipt.Status = types.ReceiptStatusFailed
		}
		for _, e := range contract.Events()[seen:] {
			log, err := e.Log(contract.Address())
			if err != nil {
				return err
			}
			log.BlockNumber = c.block
			log.TxHash = tx.Hash()
			log.Index = uint(len(c.logs))
			c.logs = append(c.logs, log)
			receipt.Logs = append(receipt.Logs, &c.logs[len(c.logs)-1])
		}
	}
	c.receipts[tx.Hash()] = receipt
	return nil
}

func (c *Chain) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	receipt, ok := c.receipts[hash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return receipt, nil
}

func (c *Chain) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []types.Log
	for _, log := range c.logs {
		if q.FromBlock != nil && log.BlockNumber < q.FromBlock.Uint64() {
			continue
		}
		if q.ToBlock != nil && log.BlockNumber > q.ToBlock.Uint64() {
			continue
		}
		if len(q.Addresses) > 0 && !containsAddress(q.Addresses, log.Address) {
			continue
		}
		if len(q.Topics) > 0 && len(q.Topics[0]) > 0 && !containsHash(q.Topics[0], log.Topics[0]) {
			continue
		}
		out = append(out, log)
	}
	return out, nil
}

func (c *Chain) SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
	return nil, ErrNotSupported
}

func containsAddress(list []common.Address, a common.Address) bool {
	for _, x := range list {
		if x == a {
			return true
		}
	}
	return false
}

func containsHash(list []common.Hash, h common.Hash) bool {
	for _, x := range list {
		if x == h {
			return true
		}
	}
	return false
}

// SafeAddress derives a stable safe address for tests.
func SafeAddress(name string) common.Address {
	return common.BytesToAddress(crypto.Keccak256([]byte("safe:" + name)))
}
