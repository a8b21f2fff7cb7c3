package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/arnac-io/opensafeapi/pkg/addressbook"
	"github.com/arnac-io/opensafeapi/pkg/blockchain"
	"github.com/arnac-io/opensafeapi/pkg/chain"
	collectorpkg "github.com/arnac-io/opensafeapi/pkg/collector"
	"github.com/arnac-io/opensafeapi/pkg/emulation"
	"github.com/arnac-io/opensafeapi/pkg/proposals"
	"github.com/arnac-io/opensafeapi/pkg/safe"
	"github.com/arnac-io/opensafeapi/pkg/safe/safetest"
	pkgTesting "github.com/arnac-io/opensafeapi/pkg/testing"
)

type fixture struct {
	chain   *safetest.Chain
	safe    common.Address
	owners  []pkgTesting.Account
	relayer common.Address
	router  *mux.Router
}

func newFixture(t *testing.T, name string, options *ServerOptions) *fixture {
	logger := zap.NewNop()
	owners := pkgTesting.Accounts(t, name, 3)
	address := safetest.SafeAddress(name)
	simulated := safetest.NewChain()
	_, err := simulated.Deploy(address, pkgTesting.Addresses(owners), 2)
	require.Nil(t, err)

	bookPath := filepath.Join(t.TempDir(), "book.yaml")
	content := fmt.Sprintf("safes:\n  - address: %q\n    name: Treasury\n    tags: [ops]\naccounts:\n  - address: %q\n    name: Alice\n",
		address.Hex(), owners[0].Address.Hex())
	require.Nil(t, os.WriteFile(bookPath, []byte(content), 0o600))
	book, err := addressbook.NewAddressBook(logger, bookPath)
	require.Nil(t, err)

	storage, err := chain.NewStorage(logger, simulated, chain.WithAttempts(1))
	require.Nil(t, err)
	store, err := proposals.Open(":memory:")
	require.Nil(t, err)
	t.Cleanup(func() { store.Close() })
	relayer := blockchain.NewRelayer(logger, simulated, pkgTesting.NewAccount(t, name+"-relayer").Key, big.NewInt(safetest.ChainID), 100, nil)
	c := collectorpkg.New(logger, storage, store, emulation.NewEmulator(logger, nil), relayer)

	h, err := NewHandler(logger,
		WithStorage(storage),
		WithCollector(c),
		WithAddressBook(book),
		WithRelayer(relayer.Address()))
	require.Nil(t, err)
	if options == nil {
		options = &ServerOptions{}
	}
	return &fixture{
		chain:   simulated,
		safe:    address,
		owners:  owners,
		relayer: relayer.Address(),
		router:  NewRouter(logger, h, options),
	}
}

func (f *fixture) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		bs, err := json.Marshal(b)
		require.Nil(t, err)
		reader = bytes.NewReader(bs)
	}
	req := httptest.NewRequest(method, path, reader)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	var v T
	require.Nil(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (f *fixture) sign(t *testing.T, hash common.Hash, owner int) safe.Signature {
	sig, err := safe.Sign(hash, f.owners[owner].Key)
	require.Nil(t, err)
	return sig
}

func TestAPI_proposalLifecycle(t *testing.T) {
	f := newFixture(t, "api-lifecycle", nil)
	safePath := "/v1/safes/" + f.safe.Hex()

	rec := f.do(t, http.MethodGet, safePath, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	info := decode[Safe](t, rec)
	require.Equal(t, "Treasury", info.Label)
	require.Equal(t, []string{"ops"}, info.Tags)
	require.Equal(t, uint8(2), info.Threshold)
	require.Equal(t, pkgTesting.Addresses(f.owners), info.Owners)
	require.Equal(t, int64(0), info.Nonce.ToInt().Int64())

	txJSON := map[string]any{"to": f.owners[0].Address.Hex(), "value": "0"}
	rec = f.do(t, http.MethodPost, safePath+"/hash", map[string]any{"transaction": txJSON})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	hashed := decode[HashResponse](t, rec)
	want := safe.TransactionHash(f.safe, safe.Transaction{To: f.owners[0].Address, Nonce: big.NewInt(0)})
	require.Equal(t, want, hashed.Hash)

	rec = f.do(t, http.MethodPost, safePath+"/proposals", map[string]any{
		"transaction": txJSON,
		"signatures":  []safe.Signature{f.sign(t, want, 0)},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	p := decode[Proposal](t, rec)
	require.Equal(t, want, p.Hash)
	require.Equal(t, "pending", p.Status)
	require.Len(t, p.Signatures, 1)
	require.NotNil(t, p.Description)
	require.Equal(t, "Send 0 ETH to Alice", p.Description.Text)

	proposalPath := "/v1/proposals/" + want.Hex()
	rec = f.do(t, http.MethodPost, proposalPath+"/execute", nil)
	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodPost, proposalPath+"/signatures", SignatureRequest{Signature: f.sign(t, want, 1)})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	signed := decode[SignatureResponse](t, rec)
	require.True(t, signed.Added)
	require.Equal(t, "authorized", signed.Proposal.Status)

	rec = f.do(t, http.MethodPost, proposalPath+"/emulate", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	emulated := decode[EmulationResult](t, rec)
	require.False(t, emulated.Reverted)
	require.True(t, emulated.Success)

	rec = f.do(t, http.MethodPost, proposalPath+"/execute", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	p = decode[Proposal](t, rec)
	require.Equal(t, "executed", p.Status)
	require.NotNil(t, p.ExecutionTx)

	rec = f.do(t, http.MethodGet, proposalPath, nil, "Accept-Language", "ru-RU")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "Отправить 0 ETH на Alice", decode[Proposal](t, rec).Description.Text)
	etag := rec.Header().Get("ETag")
	require.NotEmpty(t, etag)
	rec = f.do(t, http.MethodGet, proposalPath, nil, "Accept-Language", "ru-RU", "If-None-Match", etag)
	require.Equal(t, http.StatusNotModified, rec.Code)

	rec = f.do(t, http.MethodGet, safePath+"/proposals?status=executed", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decode[Proposals](t, rec).Proposals, 1)
	rec = f.do(t, http.MethodGet, safePath+"/proposals?status=pending", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decode[Proposals](t, rec).Proposals, 0)

	rec = f.do(t, http.MethodGet, safePath, nil)
	require.Equal(t, int64(1), decode[Safe](t, rec).Nonce.ToInt().Int64())

	// the nonce is used now
	txJSON["nonce"] = "0"
	rec = f.do(t, http.MethodPost, safePath+"/hash", map[string]any{"transaction": txJSON})
	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
}

func TestAPI_errors(t *testing.T) {
	f := newFixture(t, "api-errors", nil)
	safePath := "/v1/safes/" + f.safe.Hex()
	tx := safe.Transaction{To: common.HexToAddress("0xd0"), Nonce: big.NewInt(0)}
	hash := safe.TransactionHash(f.safe, tx)
	rec := f.do(t, http.MethodPost, safePath+"/proposals", map[string]any{"transaction": map[string]any{"to": tx.To.Hex()}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	stranger := pkgTesting.NewAccount(t, "api-errors-stranger")
	strangerSig, err := safe.Sign(hash, stranger.Key)
	require.Nil(t, err)

	tests := []struct {
		name       string
		method     string
		path       string
		body       any
		wantStatus int
	}{
		{name: "invalid address", method: http.MethodGet, path: "/v1/safes/0x12", wantStatus: http.StatusBadRequest},
		{name: "no safe", method: http.MethodGet, path: "/v1/safes/0x0000000000000000000000000000000000000bad", wantStatus: http.StatusNotFound},
		{name: "invalid hash", method: http.MethodGet, path: "/v1/proposals/0x1234", wantStatus: http.StatusBadRequest},
		{name: "unknown proposal", method: http.MethodGet, path: "/v1/proposals/" + common.HexToHash("0x01").Hex(), wantStatus: http.StatusNotFound},
		{name: "malformed body", method: http.MethodPost, path: safePath + "/hash", body: "{", wantStatus: http.StatusBadRequest},
		{name: "unknown field", method: http.MethodPost, path: safePath + "/hash", body: `{"tx": {}}`, wantStatus: http.StatusBadRequest},
		{name: "invalid operation", method: http.MethodPost, path: safePath + "/hash", body: fmt.Sprintf(`{"transaction": {"to": %q, "operation": "jump"}}`, tx.To.Hex()), wantStatus: http.StatusBadRequest},
		{name: "unknown status", method: http.MethodGet, path: safePath + "/proposals?status=lost", wantStatus: http.StatusBadRequest},
		{name: "not authorized", method: http.MethodPost, path: "/v1/proposals/" + hash.Hex() + "/execute", wantStatus: http.StatusConflict},
		{name: "signature of a stranger", method: http.MethodPost, path: "/v1/proposals/" + hash.Hex() + "/signatures", body: SignatureRequest{Signature: strangerSig}, wantStatus: http.StatusBadRequest},
		{name: "future nonce", method: http.MethodPost, path: safePath + "/hash", body: fmt.Sprintf(`{"transaction": {"to": %q, "nonce": "7"}}`, tx.To.Hex()), wantStatus: http.StatusOK},
		{name: "unknown route", method: http.MethodGet, path: "/v2/safes", wantStatus: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, tt.method, tt.path, tt.body)
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.wantStatus >= http.StatusBadRequest {
				var body map[string]string
				require.Nil(t, json.Unmarshal(rec.Body.Bytes(), &body))
				require.NotEmpty(t, body["error"])
			}
		})
	}
}

func TestAPI_admin(t *testing.T) {
	f := newFixture(t, "api-admin", nil)
	path := "/v1/safes/" + f.safe.Hex() + "/admin"
	owner := f.owners[2].Address

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantData   func() ([]byte, error)
	}{
		{
			name:       "remove owner",
			body:       fmt.Sprintf(`{"method": "removeOwner", "owner": %q, "threshold": 2}`, owner.Hex()),
			wantStatus: http.StatusOK,
			wantData: func() ([]byte, error) {
				return safe.PackRemoveOwner(f.owners[1].Address, owner, 2)
			},
		},
		{
			name:       "change threshold",
			body:       `{"method": "changeThreshold", "threshold": 3}`,
			wantStatus: http.StatusOK,
			wantData: func() ([]byte, error) {
				return safe.PackChangeThreshold(3)
			},
		},
		{
			name:       "threshold above owner count",
			body:       fmt.Sprintf(`{"method": "removeOwner", "owner": %q, "threshold": 3}`, owner.Hex()),
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "missing argument",
			body:       `{"method": "enableModule"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unknown method",
			body:       `{"method": "selfDestruct"}`,
			wantStatus: http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, path, tt.body)
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.wantData == nil {
				return
			}
			res := decode[HashResponse](t, rec)
			data, err := tt.wantData()
			require.Nil(t, err)
			require.Equal(t, f.safe, res.Transaction.To)
			require.Equal(t, data, []byte(res.Transaction.Data))
			tx := convertTransactionFromJSON(res.Transaction)
			require.Equal(t, safe.TransactionHash(f.safe, tx), res.Hash)
		})
	}
}

func TestAPI_admin_readsCurrentOwners(t *testing.T) {
	f := newFixture(t, "api-admin-current", nil)
	path := "/v1/safes/" + f.safe.Hex() + "/admin"
	rec := f.do(t, http.MethodPost, path, `{"method": "changeThreshold", "threshold": 1}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	require.Nil(t, f.chain.Update(f.safe, func(contract *safe.Contract) error {
		return contract.RemoveOwner(f.safe, f.owners[0].Address, f.owners[1].Address, 2)
	}))

	owner := f.owners[2].Address
	rec = f.do(t, http.MethodPost, path, fmt.Sprintf(`{"method": "removeOwner", "owner": %q, "threshold": 1}`, owner.Hex()))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[HashResponse](t, rec)
	want, err := safe.PackRemoveOwner(f.owners[0].Address, owner, 1)
	require.Nil(t, err)
	require.Equal(t, want, []byte(res.Transaction.Data))
}

func TestAPI_listings(t *testing.T) {
	f := newFixture(t, "api-listings", nil)

	rec := f.do(t, http.MethodGet, "/v1/safes", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	safes := decode[Safes](t, rec)
	require.Equal(t, []SafeListItem{{Address: f.safe, Label: "Treasury", Tags: []string{"ops"}}}, safes.Safes)

	rec = f.do(t, http.MethodGet, "/v1/accounts/search?name=ali", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	found := decode[FoundAccounts](t, rec)
	require.Len(t, found.Addresses, 1)
	require.Equal(t, f.owners[0].Address, found.Addresses[0].Address)

	rec = f.do(t, http.MethodGet, "/v1/accounts/search", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/v1/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, f.relayer.Hex(), decode[Status](t, rec).Relayer)
}

func TestAPI_rateLimit(t *testing.T) {
	f := newFixture(t, "api-rate-limit", &ServerOptions{rps: 1, burst: 1})

	rec := f.do(t, http.MethodGet, "/v1/status", nil, clientNameHeader, "alice")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Header().Get(requestIDHeader))
	rec = f.do(t, http.MethodGet, "/v1/status", nil, clientNameHeader, "alice")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.JSONEq(t, `{"error": "rate limit"}`, rec.Body.String())
	rec = f.do(t, http.MethodGet, "/v1/status", nil, clientNameHeader, "bob")
	require.Equal(t, http.StatusOK, rec.Code)
}
