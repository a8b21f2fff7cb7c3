package safe

import (
	"bytes"
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/go-faster/errors"
	"golang.org/x/exp/slices"
)

// Signature is a single (v, r, s) triple over a transaction hash.
// V is 27 or 28, as expected by ecrecover.
type Signature struct {
	V uint8
	R [32]byte
	S [32]byte
}

// Sign signs the raw hash, without any message prefix.
func Sign(hash common.Hash, key *ecdsa.PrivateKey) (Signature, error) {
	raw, err := crypto.Sign(hash.Bytes(), key)
	if err != nil {
		return Signature{}, err
	}
	return SignatureFromBytes(raw)
}

// SignatureFromBytes parses a 65 byte r || s || v signature.
// Both 0/1 and 27/28 recovery ids are accepted.
func SignatureFromBytes(b []byte) (Signature, error) {
	if len(b) != crypto.SignatureLength {
		return Signature{}, fmt.Errorf("signature must be %d bytes, got %d", crypto.SignatureLength, len(b))
	}
	var sig Signature
	copy(sig.R[:], b[:32])
	copy(sig.S[:], b[32:64])
	sig.V = b[64]
	if sig.V < 27 {
		sig.V += 27
	}
	if sig.V != 27 && sig.V != 28 {
		return Signature{}, fmt.Errorf("invalid recovery id %d", b[64])
	}
	return sig, nil
}

// Bytes returns r || s || v.
func (s Signature) Bytes() []byte {
	out := make([]byte, 0, crypto.SignatureLength)
	out = append(out, s.R[:]...)
	out = append(out, s.S[:]...)
	return append(out, s.V)
}

func (s Signature) String() string {
	return hexutil.Encode(s.Bytes())
}

func (s Signature) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Signature) UnmarshalText(text []byte) error {
	raw, err := hexutil.Decode(string(text))
	if err != nil {
		return err
	}
	sig, err := SignatureFromBytes(raw)
	if err != nil {
		return err
	}
	*s = sig
	return nil
}

// Recover returns the address that produced the signature, the way the
// ecrecover precompile does.
func Recover(hash common.Hash, sig Signature) (common.Address, error) {
	if sig.V != 27 && sig.V != 28 {
		return common.Address{}, ErrInvalidSignatures
	}
	r := new(big.Int).SetBytes(sig.R[:])
	s := new(big.Int).SetBytes(sig.S[:])
	if !crypto.ValidateSignatureValues(sig.V-27, r, s, false) {
		return common.Address{}, ErrInvalidSignatures
	}
	raw := sig.Bytes()
	raw[64] -= 27
	pub, err := crypto.SigToPub(hash.Bytes(), raw)
	if err != nil {
		return common.Address{}, errors.Wrap(ErrInvalidSignatures, err.Error())
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// Signatures is an ordered signature bundle.
type Signatures []Signature

// Split returns the parallel v, r and s arrays of execAndPayTransaction.
func (sigs Signatures) Split() ([]uint8, [][32]byte, [][32]byte) {
	v := make([]uint8, 0, len(sigs))
	r := make([][32]byte, 0, len(sigs))
	s := make([][32]byte, 0, len(sigs))
	for _, sig := range sigs {
		v = append(v, sig.V)
		r = append(r, sig.R)
		s = append(s, sig.S)
	}
	return v, r, s
}

// JoinSignatures is the inverse of Split.
func JoinSignatures(v []uint8, r, s [][32]byte) (Signatures, error) {
	if len(v) != len(r) || len(v) != len(s) {
		return nil, fmt.Errorf("signature arrays differ in length: %d, %d, %d", len(v), len(r), len(s))
	}
	sigs := make(Signatures, 0, len(v))
	for i := range v {
		sigs = append(sigs, Signature{V: v[i], R: r[i], S: s[i]})
	}
	return sigs, nil
}

// SignedBy pairs a signature with the address it recovers to.
type SignedBy struct {
	Signer    common.Address
	Signature Signature
}

// SortBySigner recovers every signature over hash and orders them by signer
// address ascending, which is the order the contract accepts.
func SortBySigner(hash common.Hash, sigs Signatures) ([]SignedBy, error) {
	signed := make([]SignedBy, 0, len(sigs))
	for i, sig := range sigs {
		signer, err := Recover(hash, sig)
		if err != nil {
			return nil, errors.Wrapf(err, "signature %d", i)
		}
		signed = append(signed, SignedBy{Signer: signer, Signature: sig})
	}
	slices.SortFunc(signed, func(a, b SignedBy) int {
		return bytes.Compare(a.Signer.Bytes(), b.Signer.Bytes())
	})
	return signed, nil
}

// Bundle extracts the ordered signatures.
func Bundle(signed []SignedBy) Signatures {
	sigs := make(Signatures, 0, len(signed))
	for _, s := range signed {
		sigs = append(sigs, s.Signature)
	}
	return sigs
}
