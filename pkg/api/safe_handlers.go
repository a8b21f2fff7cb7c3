package api

import (
	"bytes"
	"net/http"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-faster/errors"

	"github.com/arnac-io/opensafeapi/pkg/safe"
)

// GetSafes lists the safes from the address book followed by the other tracked ones.
func (h *Handler) GetSafes(w http.ResponseWriter, r *http.Request) error {
	known := h.addressBook.Safes()
	res := Safes{Safes: make([]SafeListItem, 0, len(known))}
	seen := make(map[common.Address]struct{}, len(known))
	for _, s := range known {
		seen[s.Address] = struct{}{}
		res.Safes = append(res.Safes, SafeListItem{Address: s.Address, Label: s.Name, Tags: s.Tags})
	}
	var others []common.Address
	for _, a := range h.storage.TrackedSafes() {
		if _, ok := seen[a]; !ok {
			others = append(others, a)
		}
	}
	sort.Slice(others, func(i, j int) bool {
		return bytes.Compare(others[i].Bytes(), others[j].Bytes()) < 0
	})
	for _, a := range others {
		res.Safes = append(res.Safes, SafeListItem{Address: a})
	}
	return writeJSON(w, r, http.StatusOK, res)
}

func (h *Handler) GetSafe(w http.ResponseWriter, r *http.Request) error {
	address, err := addressParam(r, "address")
	if err != nil {
		return err
	}
	info, err := h.storage.GetSafe(r.Context(), address)
	if err != nil {
		return notFoundIfMissing(err, "no safe at %v", address)
	}
	known, _ := h.addressBook.GetSafe(address)
	return writeJSON(w, r, http.StatusOK, convertSafe(info, known))
}

// GetTransactionHash fills in the nonce and returns the digest owners sign.
func (h *Handler) GetTransactionHash(w http.ResponseWriter, r *http.Request) error {
	address, err := addressParam(r, "address")
	if err != nil {
		return err
	}
	var req HashRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	tx := convertTransactionFromJSON(req.Transaction)
	if err := tx.Validate(); err != nil {
		return badRequest("%v", err)
	}
	tx, hash, err := h.collector.Hash(r.Context(), address, tx)
	if err != nil {
		return err
	}
	return writeJSON(w, r, http.StatusOK, HashResponse{Transaction: convertTransaction(tx), Hash: hash})
}

// BuildAdminTransaction builds a configuration change of the safe with the
// predecessor pointers taken from its current owner and module lists.
func (h *Handler) BuildAdminTransaction(w http.ResponseWriter, r *http.Request) error {
	address, err := addressParam(r, "address")
	if err != nil {
		return err
	}
	var req AdminRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	// predecessor pointers must come from the current lists
	h.storage.Invalidate(r.Context(), address)
	info, err := h.storage.GetSafe(r.Context(), address)
	if err != nil {
		return notFoundIfMissing(err, "no safe at %v", address)
	}
	tx, err := buildAdminTransaction(safe.NewAdminCalls(address, info.State()), req)
	if err != nil {
		var revert *safe.RevertError
		if errors.As(err, &revert) {
			return badRequest("%v", err)
		}
		return err
	}
	tx, hash, err := h.collector.Hash(r.Context(), address, tx)
	if err != nil {
		return err
	}
	return writeJSON(w, r, http.StatusOK, HashResponse{Transaction: convertTransaction(tx), Hash: hash})
}

func buildAdminTransaction(calls *safe.AdminCalls, req AdminRequest) (safe.Transaction, error) {
	address := func(name string, a *common.Address) (common.Address, error) {
		if a == nil {
			return common.Address{}, badRequest("%v is required for %v", name, req.Method)
		}
		return *a, nil
	}
	threshold := func() (uint8, error) {
		if req.Threshold == nil {
			return 0, badRequest("threshold is required for %v", req.Method)
		}
		return *req.Threshold, nil
	}
	switch strings.TrimSpace(req.Method) {
	case safe.MethodAddOwnerWithThreshold:
		owner, err := address("owner", req.Owner)
		if err != nil {
			return safe.Transaction{}, err
		}
		t, err := threshold()
		if err != nil {
			return safe.Transaction{}, err
		}
		return calls.AddOwnerWithThreshold(owner, t)
	case safe.MethodRemoveOwner:
		owner, err := address("owner", req.Owner)
		if err != nil {
			return safe.Transaction{}, err
		}
		t, err := threshold()
		if err != nil {
			return safe.Transaction{}, err
		}
		return calls.RemoveOwner(owner, t)
	case safe.MethodSwapOwner:
		owner, err := address("owner", req.Owner)
		if err != nil {
			return safe.Transaction{}, err
		}
		newOwner, err := address("new_owner", req.NewOwner)
		if err != nil {
			return safe.Transaction{}, err
		}
		return calls.SwapOwner(owner, newOwner)
	case safe.MethodChangeThreshold:
		t, err := threshold()
		if err != nil {
			return safe.Transaction{}, err
		}
		return calls.ChangeThreshold(t)
	case safe.MethodEnableModule:
		module, err := address("module", req.Module)
		if err != nil {
			return safe.Transaction{}, err
		}
		return calls.EnableModule(module)
	case safe.MethodDisableModule:
		module, err := address("module", req.Module)
		if err != nil {
			return safe.Transaction{}, err
		}
		return calls.DisableModule(module)
	case safe.MethodChangeMasterCopy:
		masterCopy, err := address("master_copy", req.MasterCopy)
		if err != nil {
			return safe.Transaction{}, err
		}
		return calls.ChangeMasterCopy(masterCopy)
	}
	return safe.Transaction{}, badRequest("unknown method %q", req.Method)
}

func (h *Handler) SearchAccounts(w http.ResponseWriter, r *http.Request) error {
	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" {
		return badRequest("name is required")
	}
	found := h.addressBook.SearchAttachedAccountsByPrefix(name)
	res := FoundAccounts{Addresses: make([]FoundAccount, 0, len(found))}
	for _, a := range found {
		res.Addresses = append(res.Addresses, FoundAccount{Address: a.Wallet, Name: a.Name, Type: string(a.Type)})
	}
	return writeJSON(w, r, http.StatusOK, res)
}

func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) error {
	res := Status{GasPrice: hexBig(nil)}
	if h.state != nil {
		res.Head = h.state.Head()
		res.GasPrice = hexBig(h.state.GasPrice())
	}
	if h.relayer != nil {
		res.Relayer = h.relayer.Hex()
	}
	return writeJSON(w, r, http.StatusOK, res)
}
