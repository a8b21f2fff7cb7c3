// Package proposals persists proposals and their signatures in SQLite.
package proposals

import (
	"context"
	"database/sql"
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-faster/errors"
	_ "github.com/mattn/go-sqlite3"

	"github.com/arnac-io/opensafeapi/pkg/core"
	"github.com/arnac-io/opensafeapi/pkg/safe"
)

var ErrExists = errors.New("proposal already exists")

const schema = `
CREATE TABLE IF NOT EXISTS proposals (
	hash TEXT PRIMARY KEY,
	safe TEXT NOT NULL,
	to_address TEXT NOT NULL,
	value TEXT NOT NULL,
	data BLOB,
	operation INTEGER NOT NULL,
	safe_tx_gas TEXT NOT NULL,
	data_gas TEXT NOT NULL,
	gas_price TEXT NOT NULL,
	gas_token TEXT NOT NULL,
	nonce TEXT NOT NULL,
	threshold INTEGER NOT NULL,
	status TEXT NOT NULL,
	execution_tx TEXT,
	created_contract TEXT,
	error TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS signatures (
	proposal_hash TEXT NOT NULL,
	signer TEXT NOT NULL,
	signature TEXT NOT NULL,
	PRIMARY KEY (proposal_hash, signer),
	FOREIGN KEY (proposal_hash) REFERENCES proposals(hash)
);

CREATE INDEX IF NOT EXISTS idx_proposals_safe_status ON proposals(safe, status);
`

const proposalColumns = `hash, safe, to_address, value, data, operation, safe_tx_gas, data_gas,
	gas_price, gas_token, nonce, threshold, status, execution_tx, created_contract, error, created_at, updated_at`

type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the database at path. ":memory:" keeps everything in memory.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	// one connection keeps ":memory:" databases alive and serializes writers
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "create schema")
	}
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Create stores a new proposal with its signatures.
func (s *Store) Create(ctx context.Context, p *core.Proposal) error {
	now := s.now()
	p.CreatedAt, p.UpdatedAt = now, now
	tx := p.Transaction.Normalized()
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer dbTx.Rollback()
	res, err := dbTx.ExecContext(ctx, `INSERT OR IGNORE INTO proposals (`+proposalColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.Hash.Hex(), p.Safe.Hex(), tx.To.Hex(), tx.Value.String(), tx.Data, int(tx.Operation),
		tx.SafeTxGas.String(), tx.DataGas.String(), tx.GasPrice.String(), tx.GasToken.Hex(), tx.Nonce.String(),
		int(p.Threshold), string(p.Status), hashOrNil(p.ExecutionTx), addressOrNil(p.CreatedContract), p.Error,
		now.UnixNano(), now.UnixNano())
	if err != nil {
		return errors.Wrap(err, "insert proposal")
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return ErrExists
	}
	for _, sig := range p.Signatures {
		if _, err := dbTx.ExecContext(ctx,
			`INSERT INTO signatures (proposal_hash, signer, signature) VALUES (?, ?, ?)`,
			p.Hash.Hex(), sig.Signer.Hex(), sig.Signature.String()); err != nil {
			return errors.Wrap(err, "insert signature")
		}
	}
	return dbTx.Commit()
}

// AddSignature stores sig. It returns false if the signer has already signed.
func (s *Store) AddSignature(ctx context.Context, hash common.Hash, sig safe.SignedBy) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO signatures (proposal_hash, signer, signature) VALUES (?, ?, ?)`,
		hash.Hex(), sig.Signer.Hex(), sig.Signature.String())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE proposals SET updated_at = ? WHERE hash = ?`,
		s.now().UnixNano(), hash.Hex()); err != nil {
		return false, err
	}
	return n > 0, nil
}

// Update saves the mutable fields of p: status, threshold and the execution outcome.
func (s *Store) Update(ctx context.Context, p *core.Proposal) error {
	p.UpdatedAt = s.now()
	res, err := s.db.ExecContext(ctx, `UPDATE proposals
		SET status = ?, threshold = ?, execution_tx = ?, created_contract = ?, error = ?, updated_at = ?
		WHERE hash = ?`,
		string(p.Status), int(p.Threshold), hashOrNil(p.ExecutionTx), addressOrNil(p.CreatedContract), p.Error,
		p.UpdatedAt.UnixNano(), p.Hash.Hex())
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return core.ErrEntityNotFound
	}
	return nil
}

func (s *Store) Get(ctx context.Context, hash common.Hash) (*core.Proposal, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+proposalColumns+` FROM proposals WHERE hash = ?`, hash.Hex())
	p, err := scanProposal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrEntityNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := s.loadSignatures(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// List returns the proposals of a safe ordered by nonce and creation time.
// An empty statuses list matches every status.
func (s *Store) List(ctx context.Context, safeAddress common.Address, statuses ...core.ProposalStatus) ([]*core.Proposal, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+proposalColumns+` FROM proposals WHERE safe = ?`, safeAddress.Hex())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*core.Proposal
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, err
		}
		if len(statuses) > 0 && !containsStatus(statuses, p.Status) {
			continue
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()
	for _, p := range out {
		if err := s.loadSignatures(ctx, p); err != nil {
			return nil, err
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if c := out[i].Transaction.Nonce.Cmp(out[j].Transaction.Nonce); c != 0 {
			return c < 0
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) loadSignatures(ctx context.Context, p *core.Proposal) error {
	rows, err := s.db.QueryContext(ctx, `SELECT signer, signature FROM signatures WHERE proposal_hash = ?`, p.Hash.Hex())
	if err != nil {
		return err
	}
	defer rows.Close()
	p.Signatures = nil
	for rows.Next() {
		var signer, text string
		if err := rows.Scan(&signer, &text); err != nil {
			return err
		}
		var sig safe.Signature
		if err := sig.UnmarshalText([]byte(text)); err != nil {
			return errors.Wrapf(err, "signature of %v", signer)
		}
		p.AddSignature(safe.SignedBy{Signer: common.HexToAddress(signer), Signature: sig})
	}
	return rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProposal(row scanner) (*core.Proposal, error) {
	var (
		p                                                          core.Proposal
		hash, safeAddress, to, gasToken                            string
		value, safeTxGas, dataGas, gasPrice, nonce, status, errMsg string
		operation, threshold                                       int
		executionTx, createdContract                               sql.NullString
		createdAt, updatedAt                                       int64
	)
	err := row.Scan(&hash, &safeAddress, &to, &value, &p.Transaction.Data, &operation, &safeTxGas, &dataGas,
		&gasPrice, &gasToken, &nonce, &threshold, &status, &executionTx, &createdContract, &errMsg, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	p.Hash = common.HexToHash(hash)
	p.Safe = common.HexToAddress(safeAddress)
	p.Transaction.To = common.HexToAddress(to)
	p.Transaction.GasToken = common.HexToAddress(gasToken)
	p.Transaction.Operation = safe.Operation(operation)
	for _, f := range []struct {
		dst **big.Int
		src string
	}{
		{&p.Transaction.Value, value},
		{&p.Transaction.SafeTxGas, safeTxGas},
		{&p.Transaction.DataGas, dataGas},
		{&p.Transaction.GasPrice, gasPrice},
		{&p.Transaction.Nonce, nonce},
	} {
		n, ok := new(big.Int).SetString(f.src, 10)
		if !ok {
			return nil, errors.Errorf("proposal %v: invalid number %q", hash, f.src)
		}
		*f.dst = n
	}
	p.Threshold = uint8(threshold)
	p.Status = core.ProposalStatus(status)
	p.Error = errMsg
	if executionTx.Valid {
		h := common.HexToHash(executionTx.String)
		p.ExecutionTx = &h
	}
	if createdContract.Valid {
		a := common.HexToAddress(createdContract.String)
		p.CreatedContract = &a
	}
	p.CreatedAt = time.Unix(0, createdAt)
	p.UpdatedAt = time.Unix(0, updatedAt)
	return &p, nil
}

func hashOrNil(h *common.Hash) any {
	if h == nil {
		return nil
	}
	return h.Hex()
}

func addressOrNil(a *common.Address) any {
	if a == nil {
		return nil
	}
	return a.Hex()
}

func containsStatus(list []core.ProposalStatus, s core.ProposalStatus) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}
