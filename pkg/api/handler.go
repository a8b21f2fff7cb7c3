package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-faster/errors"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/arnac-io/opensafeapi/pkg/actions"
	"github.com/arnac-io/opensafeapi/pkg/addressbook"
	"github.com/arnac-io/opensafeapi/pkg/cache"
	"github.com/arnac-io/opensafeapi/pkg/core"
	"github.com/arnac-io/opensafeapi/pkg/i18n"
)

const (
	maxBodySize    = 1 << 20
	descriptionTTL = 10 * time.Minute
)

type Handler struct {
	logger      *zap.Logger
	storage     storage
	collector   collector
	addressBook addressBook
	state       chainState
	describer   *actions.Describer
	// descriptions are keyed by proposal hash and language; a proposal never changes its transaction.
	descriptions cache.Cache[string, *actions.Description]
	relayer      *common.Address
}

// Options configures a Handler. Storage and collector are required.
type Options struct {
	storage     storage
	collector   collector
	addressBook addressBook
	chainState  chainState
	relayer     *common.Address
}

type Option func(o *Options)

func WithStorage(s storage) Option {
	return func(o *Options) {
		o.storage = s
	}
}

func WithCollector(c collector) Option {
	return func(o *Options) {
		o.collector = c
	}
}

func WithAddressBook(book addressBook) Option {
	return func(o *Options) {
		o.addressBook = book
	}
}

func WithChainState(state chainState) Option {
	return func(o *Options) {
		o.chainState = state
	}
}

// WithRelayer reports the account paying for executions in /v1/status.
func WithRelayer(address common.Address) Option {
	return func(o *Options) {
		o.relayer = &address
	}
}

func NewHandler(logger *zap.Logger, opts ...Option) (*Handler, error) {
	options := &Options{}
	for _, o := range opts {
		o(options)
	}
	if options.storage == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if options.collector == nil {
		return nil, fmt.Errorf("collector is not configured")
	}
	if options.addressBook == nil {
		book, err := addressbook.NewAddressBook(logger, "")
		if err != nil {
			return nil, err
		}
		options.addressBook = book
	}
	return &Handler{
		logger:       logger,
		storage:      options.storage,
		collector:    options.collector,
		addressBook:  options.addressBook,
		state:        options.chainState,
		describer:    actions.NewDescriber(options.addressBook),
		descriptions: cache.NewLRUCache[string, *actions.Description](10_000, "descriptions"),
		relayer:      options.relayer,
	}, nil
}

type handlerFunc func(w http.ResponseWriter, r *http.Request) error

// wrap turns errors returned by fn into JSON error responses.
func (h *Handler) wrap(fn handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := fn(w, r); err != nil {
			status := statusCode(err)
			if status == http.StatusInternalServerError {
				h.logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
			}
			writeError(w, status, err)
		}
	}
}

// writeJSON sends v. GET responses carry an ETag and honour If-None-Match.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	if r.Method == http.MethodGet && status == http.StatusOK {
		etag := fmt.Sprintf(`"%016x"`, xxhash.Sum64(body))
		w.Header().Set("ETag", etag)
		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return nil
		}
	}
	w.WriteHeader(status)
	_, err = w.Write(body)
	return err
}

func decodeJSON(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return badRequest("read body: %v", err)
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return badRequest("invalid body: %v", err)
	}
	return nil
}

func addressParam(r *http.Request, name string) (common.Address, error) {
	s := mux.Vars(r)[name]
	if !common.IsHexAddress(s) {
		return common.Address{}, badRequest("invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}

func hashParam(r *http.Request, name string) (common.Hash, error) {
	s := mux.Vars(r)[name]
	b, err := hexutil.Decode(s)
	if err != nil || len(b) != common.HashLength {
		return common.Hash{}, badRequest("invalid hash %q", s)
	}
	return common.BytesToHash(b), nil
}

func language(r *http.Request) string {
	return i18n.NormalizeLanguage(r.Header.Get("Accept-Language"))
}

// describe attaches the decoded action to a proposal response. A calldata
// that cannot be decoded leaves the description out.
func (h *Handler) describe(p *core.Proposal, lang string) *Description {
	key := p.Hash.Hex() + "/" + lang
	if d, ok := h.descriptions.Get(key); ok {
		return convertDescription(d)
	}
	d, err := h.describer.Describe(p.Safe, p.Transaction, lang)
	if err != nil {
		h.logger.Debug("failed to describe proposal", zap.Stringer("hash", p.Hash), zap.Error(err))
		return nil
	}
	// names in the address book may change on reload
	h.descriptions.Set(key, d, cache.WithExpiration(descriptionTTL))
	return convertDescription(d)
}

func (h *Handler) proposal(p *core.Proposal, lang string) Proposal {
	res := convertProposal(p)
	res.Description = h.describe(p, lang)
	return res
}

func notFoundIfMissing(err error, format string, args ...any) error {
	if errors.Is(err, core.ErrEntityNotFound) {
		return notFound(format, args...)
	}
	return err
}
