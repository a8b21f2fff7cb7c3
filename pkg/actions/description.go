package actions

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/arnac-io/opensafeapi/pkg/addressbook"
	"github.com/arnac-io/opensafeapi/pkg/i18n"
	"github.com/arnac-io/opensafeapi/pkg/safe"
)

type addressBook interface {
	GetAddressInfoByAddress(a common.Address) (addressbook.KnownAddress, bool)
	GetTokenInfo(a common.Address) (addressbook.KnownToken, bool)
}

// Description is what owners see before signing a transaction.
type Description struct {
	Action   Action
	Text     string
	Risk     *Risk
	Warnings []string
}

type Describer struct {
	book addressBook
}

// NewDescriber returns a describer. book may be nil.
func NewDescriber(book addressBook) *Describer {
	return &Describer{book: book}
}

func (d *Describer) Describe(safeAddress common.Address, tx safe.Transaction, lang string) (*Description, error) {
	action, err := Decode(safeAddress, tx)
	if err != nil {
		return nil, err
	}
	risk := ExtractRiskFromAction(action, tx)
	desc := &Description{
		Action: action,
		Text:   d.text(action, lang),
		Risk:   risk,
	}
	if risk.DelegateCall {
		desc.Warnings = append(desc.Warnings, i18n.T(lang, i18n.C{MessageID: "RiskDelegateCall"}))
	}
	if risk.ChangesOwnership {
		desc.Warnings = append(desc.Warnings, i18n.T(lang, i18n.C{MessageID: "RiskOwnership"}))
	}
	return desc, nil
}

func (d *Describer) text(action Action, lang string) string {
	t := func(id string, data i18n.Template) string {
		return i18n.T(lang, i18n.C{MessageID: id, TemplateData: data})
	}
	switch action.Type {
	case EtherTransfer:
		a := action.EtherTransfer
		return t("ActionEtherTransfer", i18n.Template{"Amount": i18n.FormatEther(a.Amount), "Recipient": d.name(a.Recipient)})
	case TokenTransfer:
		a := action.TokenTransfer
		return t("ActionTokenTransfer", i18n.Template{"Amount": d.tokens(a.Token, a.Amount), "Recipient": d.name(a.Recipient)})
	case ContractCreate:
		return t("ActionCreateContract", nil)
	case DelegateCall:
		return t("ActionDelegateCall", i18n.Template{"Target": d.name(action.ContractCall.Target)})
	case ContractCall:
		a := action.ContractCall
		if a.Amount != nil && a.Amount.Sign() > 0 {
			return t("ActionContractCallWithValue", i18n.Template{"Target": d.name(a.Target), "Amount": i18n.FormatEther(a.Amount)})
		}
		return t("ActionContractCall", i18n.Template{"Target": d.name(a.Target)})
	}
	a := action.Admin
	if a == nil {
		return ""
	}
	data := i18n.Template{"Method": a.Method}
	if a.Owner != nil {
		data["Owner"] = d.name(*a.Owner)
	}
	if a.NewOwner != nil {
		data["NewOwner"] = d.name(*a.NewOwner)
	}
	if a.Module != nil {
		data["Module"] = d.name(*a.Module)
	}
	if a.MasterCopy != nil {
		data["MasterCopy"] = a.MasterCopy.Hex()
	}
	if a.Threshold != nil {
		data["Threshold"] = *a.Threshold
	}
	return t("Action"+string(action.Type), data)
}

func (d *Describer) name(a common.Address) string {
	if d.book != nil {
		if info, ok := d.book.GetAddressInfoByAddress(a); ok && info.Name != "" {
			return info.Name
		}
	}
	return a.Hex()
}

func (d *Describer) tokens(token common.Address, amount *big.Int) string {
	if amount == nil {
		amount = new(big.Int)
	}
	if d.book != nil {
		if info, ok := d.book.GetTokenInfo(token); ok {
			return i18n.FormatTokens(*amount, info.Decimals, info.Symbol)
		}
	}
	return i18n.FormatTokens(*amount, 0, token.Hex())
}
