// Package stream provides the symmetric transform applied to every Data and
// ClientList payload after the handshake.
//
// Every suite satisfies the same contract: ciphertext has the same length as
// plaintext, and decryption is encryption under the same key. No suite here
// authenticates or randomizes its output.
package stream

import (
	"crypto/sha256"
	"errors"
	"io"

	"github.com/samber/oops"
	"golang.org/x/crypto/chacha20"
	"golang.org/x/crypto/hkdf"
)

// Suite names a cipher construction. Both peers must use the same suite.
type Suite string

const (
	// SuiteXOR repeats the key over the data. This is the wire default.
	SuiteXOR Suite = "xor"

	// SuiteChaCha20 XORs with a ChaCha20 keystream under a fixed nonce.
	SuiteChaCha20 Suite = "chacha20"
)

var (
	// ErrEmptyKey is returned when a cipher is built from a zero-length key.
	ErrEmptyKey = errors.New("cipher key is empty")

	// ErrUnknownSuite is returned for a suite name this package does not know.
	ErrUnknownSuite = errors.New("unknown cipher suite")
)

var hkdfInfo = []byte("relaychat stream v1")

// Encrypt returns data XOR key, with the key repeated over the data. It
// panics if key is empty.
func Encrypt(key, data []byte) []byte {
	out := make([]byte, len(data))
	for i, b := range data {
		out[i] = b ^ key[i%len(key)]
	}
	return out
}

// Decrypt is Encrypt.
func Decrypt(key, data []byte) []byte {
	return Encrypt(key, data)
}

// Cipher is an immutable keyed transform. It is safe for concurrent use.
type Cipher struct {
	suite Suite
	key   []byte
}

// New builds a cipher for suite from key. The key is copied.
func New(suite Suite, key []byte) (Cipher, error) {
	if len(key) == 0 {
		return Cipher{}, ErrEmptyKey
	}

	switch suite {
	case SuiteXOR, "":
		return Cipher{suite: SuiteXOR, key: append([]byte(nil), key...)}, nil
	case SuiteChaCha20:
		stretched := make([]byte, chacha20.KeySize)
		if _, err := io.ReadFull(hkdf.New(sha256.New, key, nil, hkdfInfo), stretched); err != nil {
			return Cipher{}, oops.Wrapf(err, "failed to stretch key for %s", suite)
		}
		return Cipher{suite: SuiteChaCha20, key: stretched}, nil
	default:
		return Cipher{}, oops.Wrapf(ErrUnknownSuite, "%q", string(suite))
	}
}

// ParseSuite validates a suite name from configuration.
func ParseSuite(name string) (Suite, error) {
	switch Suite(name) {
	case SuiteXOR, "":
		return SuiteXOR, nil
	case SuiteChaCha20:
		return SuiteChaCha20, nil
	default:
		return "", oops.Wrapf(ErrUnknownSuite, "%q", name)
	}
}

// Suite reports which construction c uses.
func (c Cipher) Suite() Suite {
	return c.suite
}

// Encrypt transforms plaintext into a ciphertext of the same length.
func (c Cipher) Encrypt(data []byte) []byte {
	if c.suite == SuiteChaCha20 {
		return c.keystream(data)
	}
	return Encrypt(c.key, data)
}

// Decrypt reverses Encrypt.
func (c Cipher) Decrypt(data []byte) []byte {
	return c.Encrypt(data)
}

func (c Cipher) keystream(data []byte) []byte {
	var nonce [chacha20.NonceSize]byte
	s, err := chacha20.NewUnauthenticatedCipher(c.key, nonce[:])
	if err != nil {
		// key and nonce lengths are fixed at construction
		panic(err)
	}
	out := make([]byte, len(data))
	s.XORKeyStream(out, data)
	return out
}
