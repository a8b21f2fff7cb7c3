package api

import (
	"net/http"

	"github.com/arnac-io/opensafeapi/pkg/safe"
)

func (h *Handler) CreateProposal(w http.ResponseWriter, r *http.Request) error {
	address, err := addressParam(r, "address")
	if err != nil {
		return err
	}
	var req ProposeRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	tx := convertTransactionFromJSON(req.Transaction)
	if err := tx.Validate(); err != nil {
		return badRequest("%v", err)
	}
	p, err := h.collector.Propose(r.Context(), address, tx, safe.Signatures(req.Signatures))
	if err != nil {
		return notFoundIfMissing(err, "no safe at %v", address)
	}
	h.storage.Track(address)
	return writeJSON(w, r, http.StatusCreated, h.proposal(p, language(r)))
}

// GetProposals lists proposals of a safe, optionally filtered with ?status=pending,authorized.
func (h *Handler) GetProposals(w http.ResponseWriter, r *http.Request) error {
	address, err := addressParam(r, "address")
	if err != nil {
		return err
	}
	statuses, err := parseStatuses(r.URL.Query().Get("status"))
	if err != nil {
		return err
	}
	list, err := h.collector.List(r.Context(), address, statuses...)
	if err != nil {
		return err
	}
	lang := language(r)
	res := Proposals{Proposals: make([]Proposal, 0, len(list))}
	for _, p := range list {
		res.Proposals = append(res.Proposals, h.proposal(p, lang))
	}
	return writeJSON(w, r, http.StatusOK, res)
}

func (h *Handler) GetProposal(w http.ResponseWriter, r *http.Request) error {
	hash, err := hashParam(r, "hash")
	if err != nil {
		return err
	}
	p, err := h.collector.Status(r.Context(), hash)
	if err != nil {
		return notFoundIfMissing(err, "proposal %v not found", hash)
	}
	return writeJSON(w, r, http.StatusOK, h.proposal(p, language(r)))
}

func (h *Handler) AddSignature(w http.ResponseWriter, r *http.Request) error {
	hash, err := hashParam(r, "hash")
	if err != nil {
		return err
	}
	var req SignatureRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	p, added, err := h.collector.AddSignature(r.Context(), hash, req.Signature)
	if err != nil {
		return notFoundIfMissing(err, "proposal %v not found", hash)
	}
	return writeJSON(w, r, http.StatusOK, SignatureResponse{Proposal: h.proposal(p, language(r)), Added: added})
}

func (h *Handler) EmulateProposal(w http.ResponseWriter, r *http.Request) error {
	hash, err := hashParam(r, "hash")
	if err != nil {
		return err
	}
	result, err := h.collector.Emulate(r.Context(), hash)
	if err != nil {
		return notFoundIfMissing(err, "proposal %v not found", hash)
	}
	return writeJSON(w, r, http.StatusOK, convertEmulation(result))
}

// ExecuteProposal relays the proposal and blocks until it is mined. The
// returned proposal may be a replacement signed for a newer nonce.
func (h *Handler) ExecuteProposal(w http.ResponseWriter, r *http.Request) error {
	hash, err := hashParam(r, "hash")
	if err != nil {
		return err
	}
	p, err := h.collector.Execute(r.Context(), hash)
	if err != nil {
		return notFoundIfMissing(err, "proposal %v not found", hash)
	}
	return writeJSON(w, r, http.StatusOK, h.proposal(p, language(r)))
}
