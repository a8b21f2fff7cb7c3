package actions

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/arnac-io/opensafeapi/pkg/safe"
)

// Risk specifies assets that could be lost if the transaction was proposed
// by a malicious actor. It makes sense to understand the risk BEFORE the
// owners sign it.
type Risk struct {
	// Ether is the value sent with the inner call, in wei.
	Ether *big.Int
	// Tokens are not normalized and have to be post-processed with respect to the token decimals.
	Tokens map[common.Address]*big.Int
	// Payment is the refund owed to the relayer if the inner call uses all of safeTxGas,
	// paid in GasToken (ether when GasToken is the zero address).
	Payment  *big.Int
	GasToken common.Address
	// DelegateCall gives the target full control over the storage and balance of the safe.
	DelegateCall bool
	// ChangesOwnership is set for owner, threshold, module and master copy updates.
	ChangesOwnership bool
}

func ExtractRisk(safeAddress common.Address, tx safe.Transaction) (*Risk, error) {
	action, err := Decode(safeAddress, tx)
	if err != nil {
		return nil, err
	}
	return ExtractRiskFromAction(action, tx), nil
}

func ExtractRiskFromAction(action Action, tx safe.Transaction) *Risk {
	tx = tx.Normalized()
	risk := &Risk{
		Ether:        new(big.Int).Set(tx.Value),
		Tokens:       map[common.Address]*big.Int{},
		Payment:      payment(tx),
		GasToken:     tx.GasToken,
		DelegateCall: action.Type == DelegateCall,
	}
	if action.Type.IsAdmin() {
		risk.ChangesOwnership = true
	}
	if t := action.TokenTransfer; t != nil {
		risk.addTokens(t.Token, t.Amount)
	}
	if tx.GasToken != (common.Address{}) && risk.Payment.Sign() > 0 {
		risk.addTokens(tx.GasToken, risk.Payment)
	}
	return risk
}

func (r *Risk) addTokens(token common.Address, amount *big.Int) {
	total, ok := r.Tokens[token]
	if !ok {
		total = new(big.Int)
		r.Tokens[token] = total
	}
	total.Add(total, amount)
}

// TotalEther is the ether value plus the refund when it is paid in ether.
func (r *Risk) TotalEther() *big.Int {
	total := new(big.Int).Set(r.Ether)
	if r.GasToken == (common.Address{}) {
		total.Add(total, r.Payment)
	}
	return total
}

func payment(tx safe.Transaction) *big.Int {
	gas := new(big.Int).Add(tx.SafeTxGas, tx.DataGas)
	gas.Add(gas, big.NewInt(safe.PaymentBaseGas))
	return gas.Mul(gas, tx.GasPrice)
}
