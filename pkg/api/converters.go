package api

import (
	"math/big"
	"strings"
	"unicode"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"

	"github.com/arnac-io/opensafeapi/internal/g"
	"github.com/arnac-io/opensafeapi/pkg/actions"
	"github.com/arnac-io/opensafeapi/pkg/addressbook"
	"github.com/arnac-io/opensafeapi/pkg/core"
	"github.com/arnac-io/opensafeapi/pkg/emulation"
	"github.com/arnac-io/opensafeapi/pkg/safe"
)

func toBig(x *math.HexOrDecimal256) *big.Int {
	if x == nil {
		return nil
	}
	return new(big.Int).Set((*big.Int)(x))
}

func fromBig(x *big.Int) *math.HexOrDecimal256 {
	if x == nil {
		return nil
	}
	return (*math.HexOrDecimal256)(new(big.Int).Set(x))
}

func hexBig(x *big.Int) *hexutil.Big {
	if x == nil {
		x = new(big.Int)
	}
	return (*hexutil.Big)(new(big.Int).Set(x))
}

// convertTransactionFromJSON keeps a missing nonce nil so that the current one is used.
func convertTransactionFromJSON(tx Transaction) safe.Transaction {
	return safe.Transaction{
		To:        tx.To,
		Value:     toBig(tx.Value),
		Data:      tx.Data,
		Operation: tx.Operation,
		SafeTxGas: toBig(tx.SafeTxGas),
		DataGas:   toBig(tx.DataGas),
		GasPrice:  toBig(tx.GasPrice),
		GasToken:  tx.GasToken,
		Nonce:     toBig(tx.Nonce),
	}
}

func convertTransaction(tx safe.Transaction) Transaction {
	tx = tx.Normalized()
	return Transaction{
		To:        tx.To,
		Value:     fromBig(tx.Value),
		Data:      tx.Data,
		Operation: tx.Operation,
		SafeTxGas: fromBig(tx.SafeTxGas),
		DataGas:   fromBig(tx.DataGas),
		GasPrice:  fromBig(tx.GasPrice),
		GasToken:  tx.GasToken,
		Nonce:     fromBig(tx.Nonce),
	}
}

func convertSafe(info core.SafeInfo, known addressbook.KnownSafe) Safe {
	s := Safe{
		Address:     info.Address,
		Label:       info.Label,
		Name:        info.Name,
		Version:     info.Version,
		Owners:      info.Owners,
		Modules:     info.Modules,
		Threshold:   info.Threshold,
		Nonce:       hexBig(info.Nonce),
		Balance:     hexBig(info.Balance),
		BlockNumber: info.BlockNumber,
		Tags:        known.Tags,
	}
	if s.Label == "" {
		s.Label = known.Name
	}
	return s
}

func convertProposal(p *core.Proposal) Proposal {
	res := Proposal{
		Hash:            p.Hash,
		Safe:            p.Safe,
		Transaction:     convertTransaction(p.Transaction),
		Signatures:      make([]Signature, 0, len(p.Signatures)),
		Threshold:       p.Threshold,
		Status:          string(p.Status),
		ExecutionTx:     p.ExecutionTx,
		CreatedContract: p.CreatedContract,
		Error:           p.Error,
		CreatedAt:       p.CreatedAt.Unix(),
		UpdatedAt:       p.UpdatedAt.Unix(),
	}
	for _, s := range p.Signatures {
		res.Signatures = append(res.Signatures, Signature{Signer: s.Signer, Signature: s.Signature})
	}
	return res
}

func convertDescription(d *actions.Description) *Description {
	if d == nil {
		return nil
	}
	risk := Risk{
		Ether:            hexBig(d.Risk.Ether),
		Payment:          hexBig(d.Risk.Payment),
		GasToken:         d.Risk.GasToken,
		DelegateCall:     d.Risk.DelegateCall,
		ChangesOwnership: d.Risk.ChangesOwnership,
	}
	if len(d.Risk.Tokens) > 0 {
		risk.Tokens = make(map[common.Address]*hexutil.Big, len(d.Risk.Tokens))
		for token, amount := range d.Risk.Tokens {
			risk.Tokens[token] = hexBig(amount)
		}
	}
	return &Description{
		Type:     d.Action.Type,
		Text:     d.Text,
		Action:   d.Action,
		Risk:     risk,
		Warnings: d.Warnings,
	}
}

func convertEmulation(r *emulation.Result) EmulationResult {
	res := EmulationResult{
		Reverted:        r.Reverted,
		RevertReason:    r.RevertReason,
		Success:         r.Success,
		CreatedContract: r.CreatedContract,
		GasUsed:         r.GasUsed,
		Unverified:      r.Unverified,
	}
	if r.Payment != nil {
		res.Payment = hexBig(r.Payment)
	}
	if r.NonceAfter != nil {
		res.NonceAfter = hexBig(r.NonceAfter)
	}
	for _, e := range r.Events {
		res.Events = append(res.Events, e.Kind.String())
	}
	return res
}

func parseStatuses(s string) ([]core.ProposalStatus, error) {
	parts := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	})
	statuses := g.FromStrings[core.ProposalStatus](parts)
	for _, status := range statuses {
		if !status.Valid() {
			return nil, badRequest("unknown status %q", status)
		}
	}
	return statuses, nil
}
