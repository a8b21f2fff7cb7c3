package keystore

import (
	"crypto/rand"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	envelopeVersion = 1
	saltSize        = 16
	filePrefix      = "OSAFEKEY1\n"
	kdfName         = "argon2id"
	kdfTime         = 2
	kdfMemoryKB     = 64 * 1024
	kdfThreads      = 1
)

var (
	ErrAuthFailed = errors.New("wrong passphrase or corrupted key file")
	ErrInvalid    = errors.New("key file is invalid")
)

// envelope is a passphrase encrypted secret as stored on disk.
type envelope struct {
	Version     uint32
	KDF         string
	KDFTime     uint32
	KDFMemoryKB uint32
	KDFThreads  uint8
	Salt        []byte
	Nonce       []byte
	Ciphertext  []byte
}

func (env *envelope) encode() []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("version")
	e.UInt32(env.Version)
	e.FieldStart("kdf")
	e.Str(env.KDF)
	e.FieldStart("kdf_time")
	e.UInt32(env.KDFTime)
	e.FieldStart("kdf_memory_kb")
	e.UInt32(env.KDFMemoryKB)
	e.FieldStart("kdf_threads")
	e.UInt8(env.KDFThreads)
	e.FieldStart("salt")
	e.Base64(env.Salt)
	e.FieldStart("nonce")
	e.Base64(env.Nonce)
	e.FieldStart("ciphertext")
	e.Base64(env.Ciphertext)
	e.ObjEnd()
	return e.Bytes()
}

func (env *envelope) decode(data []byte) error {
	return jx.DecodeBytes(data).ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "version":
			env.Version, err = d.UInt32()
		case "kdf":
			env.KDF, err = d.Str()
		case "kdf_time":
			env.KDFTime, err = d.UInt32()
		case "kdf_memory_kb":
			env.KDFMemoryKB, err = d.UInt32()
		case "kdf_threads":
			env.KDFThreads, err = d.UInt8()
		case "salt":
			env.Salt, err = d.Base64()
		case "nonce":
			env.Nonce, err = d.Base64()
		case "ciphertext":
			env.Ciphertext, err = d.Base64()
		default:
			err = d.Skip()
		}
		return err
	})
}

func encrypt(passphrase string, plaintext []byte) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	env := &envelope{
		Version:     envelopeVersion,
		KDF:         kdfName,
		KDFTime:     kdfTime,
		KDFMemoryKB: kdfMemoryKB,
		KDFThreads:  kdfThreads,
		Salt:        salt,
	}
	key := env.deriveKey(passphrase)
	defer zeroBytes(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	env.Nonce = make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(env.Nonce); err != nil {
		return nil, err
	}
	env.Ciphertext = aead.Seal(nil, env.Nonce, plaintext, nil)
	return append([]byte(filePrefix), env.encode()...), nil
}

func decrypt(passphrase string, data []byte) ([]byte, error) {
	if !strings.HasPrefix(string(data), filePrefix) {
		return nil, ErrInvalid
	}
	var env envelope
	if err := env.decode(data[len(filePrefix):]); err != nil {
		return nil, errors.Wrap(ErrInvalid, err.Error())
	}
	if env.Version != envelopeVersion || env.KDF != kdfName || len(env.Nonce) != chacha20poly1305.NonceSizeX {
		return nil, ErrInvalid
	}
	key := env.deriveKey(passphrase)
	defer zeroBytes(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	plaintext, err := aead.Open(nil, env.Nonce, env.Ciphertext, nil)
	if err != nil {
		return nil, ErrAuthFailed
	}
	return plaintext, nil
}

func (env *envelope) deriveKey(passphrase string) []byte {
	return argon2.IDKey([]byte(passphrase), env.Salt, env.KDFTime, env.KDFMemoryKB, env.KDFThreads, chacha20poly1305.KeySize)
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
