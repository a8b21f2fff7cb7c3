package api

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"

	"github.com/arnac-io/opensafeapi/pkg/actions"
	"github.com/arnac-io/opensafeapi/pkg/safe"
)

// Transaction is the JSON form of a safe transaction. Numbers are accepted
// as decimal or 0x-prefixed hex strings and written as hex.
type Transaction struct {
	To        common.Address        `json:"to"`
	Value     *math.HexOrDecimal256 `json:"value,omitempty"`
	Data      hexutil.Bytes         `json:"data,omitempty"`
	Operation safe.Operation        `json:"operation"`
	SafeTxGas *math.HexOrDecimal256 `json:"safe_tx_gas,omitempty"`
	DataGas   *math.HexOrDecimal256 `json:"data_gas,omitempty"`
	GasPrice  *math.HexOrDecimal256 `json:"gas_price,omitempty"`
	GasToken  common.Address        `json:"gas_token"`
	Nonce     *math.HexOrDecimal256 `json:"nonce,omitempty"`
}

type Safe struct {
	Address     common.Address   `json:"address"`
	Label       string           `json:"label,omitempty"`
	Tags        []string         `json:"tags,omitempty"`
	Name        string           `json:"name"`
	Version     string           `json:"version"`
	Owners      []common.Address `json:"owners"`
	Modules     []common.Address `json:"modules"`
	Threshold   uint8            `json:"threshold"`
	Nonce       *hexutil.Big     `json:"nonce"`
	Balance     *hexutil.Big     `json:"balance"`
	BlockNumber uint64           `json:"block_number"`
}

type SafeListItem struct {
	Address common.Address `json:"address"`
	Label   string         `json:"label,omitempty"`
	Tags    []string       `json:"tags,omitempty"`
}

type Safes struct {
	Safes []SafeListItem `json:"safes"`
}

type HashRequest struct {
	Transaction Transaction `json:"transaction"`
}

type HashResponse struct {
	Transaction Transaction `json:"transaction"`
	Hash        common.Hash `json:"hash"`
}

type ProposeRequest struct {
	Transaction Transaction      `json:"transaction"`
	Signatures  []safe.Signature `json:"signatures,omitempty"`
}

type SignatureRequest struct {
	Signature safe.Signature `json:"signature"`
}

// AdminRequest asks for a configuration change transaction. Which fields
// are used depends on Method.
type AdminRequest struct {
	Method     string          `json:"method"`
	Owner      *common.Address `json:"owner,omitempty"`
	NewOwner   *common.Address `json:"new_owner,omitempty"`
	Module     *common.Address `json:"module,omitempty"`
	MasterCopy *common.Address `json:"master_copy,omitempty"`
	Threshold  *uint8          `json:"threshold,omitempty"`
}

type Signature struct {
	Signer    common.Address `json:"signer"`
	Signature safe.Signature `json:"signature"`
}

type Proposal struct {
	Hash            common.Hash     `json:"hash"`
	Safe            common.Address  `json:"safe"`
	Transaction     Transaction     `json:"transaction"`
	Signatures      []Signature     `json:"signatures"`
	Threshold       uint8           `json:"threshold"`
	Status          string          `json:"status"`
	ExecutionTx     *common.Hash    `json:"execution_tx,omitempty"`
	CreatedContract *common.Address `json:"created_contract,omitempty"`
	Error           string          `json:"error,omitempty"`
	CreatedAt       int64           `json:"created_at"`
	UpdatedAt       int64           `json:"updated_at"`
	Description     *Description    `json:"description,omitempty"`
}

type Proposals struct {
	Proposals []Proposal `json:"proposals"`
}

type SignatureResponse struct {
	Proposal Proposal `json:"proposal"`
	Added    bool     `json:"added"`
}

type Description struct {
	Type     actions.ActionType `json:"type"`
	Text     string             `json:"text"`
	Action   actions.Action     `json:"action"`
	Risk     Risk               `json:"risk"`
	Warnings []string           `json:"warnings,omitempty"`
}

type Risk struct {
	Ether            *hexutil.Big                    `json:"ether"`
	Tokens           map[common.Address]*hexutil.Big `json:"tokens,omitempty"`
	Payment          *hexutil.Big                    `json:"payment"`
	GasToken         common.Address                  `json:"gas_token"`
	DelegateCall     bool                            `json:"delegate_call"`
	ChangesOwnership bool                            `json:"changes_ownership"`
}

type EmulationResult struct {
	Reverted        bool            `json:"reverted"`
	RevertReason    string          `json:"revert_reason,omitempty"`
	Success         bool            `json:"success"`
	Events          []string        `json:"events,omitempty"`
	CreatedContract *common.Address `json:"created_contract,omitempty"`
	GasUsed         uint64          `json:"gas_used"`
	Payment         *hexutil.Big    `json:"payment,omitempty"`
	NonceAfter      *hexutil.Big    `json:"nonce_after,omitempty"`
	Unverified      bool            `json:"unverified,omitempty"`
}

type Status struct {
	Head     uint64       `json:"head"`
	GasPrice *hexutil.Big `json:"gas_price"`
	Relayer  string       `json:"relayer,omitempty"`
}

type FoundAccounts struct {
	Addresses []FoundAccount `json:"addresses"`
}

type FoundAccount struct {
	Address common.Address `json:"address"`
	Name    string         `json:"name"`
	Type    string         `json:"type"`
}
