// Package keystore keeps owner keys encrypted on disk and signs safe
// transaction hashes with them.
package keystore

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/go-faster/errors"
	"github.com/tyler-smith/go-bip39"
	"golang.org/x/exp/slices"

	"github.com/arnac-io/opensafeapi/pkg/safe"
)

const keyFileExt = ".key"

var (
	ErrInvalidMnemonic    = errors.New("invalid mnemonic")
	ErrPassphraseRequired = errors.New("passphrase is required")
	ErrUnknownOwner       = errors.New("no key for owner")
)

// Keystore is safe for concurrent use.
type Keystore struct {
	dir        string
	passphrase string
	mu         sync.RWMutex
	keys       map[common.Address]*ecdsa.PrivateKey
}

// Open loads every key file in dir. An empty dir gives an in-memory keystore.
func Open(dir, passphrase string) (*Keystore, error) {
	ks := &Keystore{
		dir:        dir,
		passphrase: passphrase,
		keys:       map[common.Address]*ecdsa.PrivateKey{},
	}
	if dir == "" {
		return ks, nil
	}
	if passphrase == "" {
		return nil, ErrPassphraseRequired
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), keyFileExt) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		raw, err := decrypt(passphrase, data)
		if err != nil {
			return nil, errors.Wrapf(err, "key file %v", entry.Name())
		}
		key, err := crypto.ToECDSA(raw)
		zeroBytes(raw)
		if err != nil {
			return nil, errors.Wrapf(err, "key file %v", entry.Name())
		}
		ks.keys[crypto.PubkeyToAddress(key.PublicKey)] = key
	}
	return ks, nil
}

// Import stores key and returns its address.
func (ks *Keystore) Import(key *ecdsa.PrivateKey) (common.Address, error) {
	address := crypto.PubkeyToAddress(key.PublicKey)
	if ks.dir != "" {
		raw := crypto.FromECDSA(key)
		data, err := encrypt(ks.passphrase, raw)
		zeroBytes(raw)
		if err != nil {
			return common.Address{}, err
		}
		path := filepath.Join(ks.dir, strings.ToLower(address.Hex())+keyFileExt)
		if err := os.WriteFile(path, data, 0o600); err != nil {
			return common.Address{}, err
		}
	}
	ks.mu.Lock()
	defer ks.mu.Unlock()
	ks.keys[address] = key
	return address, nil
}

// ImportMnemonic derives the index-th key of a BIP-39 mnemonic and stores it.
func (ks *Keystore) ImportMnemonic(mnemonic string, index uint32) (common.Address, error) {
	key, err := DeriveKey(mnemonic, index)
	if err != nil {
		return common.Address{}, err
	}
	return ks.Import(key)
}

// Generate creates a new mnemonic and imports its first key.
func (ks *Keystore) Generate() (string, common.Address, error) {
	entropy, err := bip39.NewEntropy(256)
	if err != nil {
		return "", common.Address{}, err
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", common.Address{}, err
	}
	address, err := ks.ImportMnemonic(mnemonic, 0)
	return mnemonic, address, err
}

// DeriveKey turns a mnemonic into a key: keccak256(seed || index), retried
// with the next counter in the unlikely case the digest is not a valid scalar.
func DeriveKey(mnemonic string, index uint32) (*ecdsa.PrivateKey, error) {
	mnemonic = strings.TrimSpace(mnemonic)
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, ErrInvalidMnemonic
	}
	seed := bip39.NewSeed(mnemonic, "")
	defer zeroBytes(seed)
	var suffix [8]byte
	binary.BigEndian.PutUint32(suffix[:4], index)
	for counter := uint32(0); ; counter++ {
		binary.BigEndian.PutUint32(suffix[4:], counter)
		key, err := crypto.ToECDSA(crypto.Keccak256(seed, suffix[:]))
		if err == nil {
			return key, nil
		}
	}
}

func (ks *Keystore) Has(owner common.Address) bool {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	_, ok := ks.keys[owner]
	return ok
}

// Addresses returns the stored owners in ascending order.
func (ks *Keystore) Addresses() []common.Address {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	out := make([]common.Address, 0, len(ks.keys))
	for a := range ks.keys {
		out = append(out, a)
	}
	slices.SortFunc(out, func(a, b common.Address) int {
		return bytes.Compare(a.Bytes(), b.Bytes())
	})
	return out
}

func (ks *Keystore) Sign(owner common.Address, hash common.Hash) (safe.Signature, error) {
	ks.mu.RLock()
	key, ok := ks.keys[owner]
	ks.mu.RUnlock()
	if !ok {
		return safe.Signature{}, errors.Wrap(ErrUnknownOwner, owner.Hex())
	}
	return safe.Sign(hash, key)
}
