// Package dh implements the relaychat key agreement: a modular-exponentiation
// exchange over a fixed small group and the expansion of the resulting shared
// secret into a symmetric key.
//
// The group parameters are protocol constants kept for wire compatibility.
// They provide no security.
package dh

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"math/big"
	"math/bits"

	"github.com/go-i2p/logger"
	"github.com/samber/oops"
)

var log = logger.GetGoI2PLogger()

const (
	// Prime is the group modulus.
	Prime uint64 = 23

	// Generator is the group generator.
	Generator uint64 = 5

	// KeySize is the length of a derived symmetric key in bytes.
	KeySize = 16

	// PublicSize is the length of an encoded public value.
	PublicSize = 8
)

// ErrNotReady is returned by DeriveKey before a shared secret exists.
var ErrNotReady = errors.New("shared secret not computed yet")

// ModPow computes base^exp mod m by square-and-multiply. Intermediate
// products are 128 bits wide so any 64-bit modulus is safe.
func ModPow(base, exp, m uint64) uint64 {
	if m == 1 {
		return 0
	}
	result := uint64(1)
	base %= m
	for exp > 0 {
		if exp&1 == 1 {
			result = mulMod(result, base, m)
		}
		exp >>= 1
		base = mulMod(base, base, m)
	}
	return result
}

func mulMod(a, b, m uint64) uint64 {
	hi, lo := bits.Mul64(a, b)
	return bits.Rem64(hi, lo, m)
}

// Party is one side of the exchange. The zero value is not usable; create
// parties with NewParty.
type Party struct {
	private uint64
	public  uint64

	shared    uint64
	hasShared bool
}

// NewParty samples a private exponent uniformly from [2, Prime-2] and
// computes the matching public value.
func NewParty() (*Party, error) {
	n, err := rand.Int(rand.Reader, new(big.Int).SetUint64(Prime-3))
	if err != nil {
		return nil, oops.Wrapf(err, "failed to sample private exponent")
	}
	return newPartyWithPrivate(n.Uint64() + 2), nil
}

func newPartyWithPrivate(private uint64) *Party {
	return &Party{
		private: private,
		public:  ModPow(Generator, private, Prime),
	}
}

// PublicKey returns the value sent to the peer.
func (p *Party) PublicKey() uint64 {
	return p.public
}

// PublicBytes returns the public value as 8 little-endian bytes.
func (p *Party) PublicBytes() []byte {
	return EncodePublic(p.public)
}

// ComputeShared computes peerPublic^private mod Prime. The first result is
// stored as the party's shared secret; later calls return the recomputed
// value but do not replace the stored one.
func (p *Party) ComputeShared(peerPublic uint64) uint64 {
	secret := ModPow(peerPublic, p.private, Prime)
	if !p.hasShared {
		p.shared = secret
		p.hasShared = true
	} else if secret != p.shared {
		log.WithField("at", "dh.Party.ComputeShared").Warn("shared_secret_recomputed_with_different_peer_value")
	}
	return secret
}

// SharedSecret returns the stored secret and whether one has been computed.
func (p *Party) SharedSecret() (uint64, bool) {
	return p.shared, p.hasShared
}

// DeriveKey expands the stored shared secret into a KeySize-byte key.
func (p *Party) DeriveKey() ([]byte, error) {
	if !p.hasShared {
		return nil, ErrNotReady
	}
	return DeriveKey(p.shared), nil
}

// Wipe clears the private exponent. The party can still derive its key but
// can no longer compute a shared secret.
func (p *Party) Wipe() {
	p.private = 0
}

// DeriveKey expands secret into a key by taking the low byte and rotating
// the value right by eight bits, KeySize times.
func DeriveKey(secret uint64) []byte {
	key := make([]byte, KeySize)
	v := secret
	for i := range key {
		key[i] = byte(v)
		v = bits.RotateLeft64(v, -8)
	}
	return key
}

// EncodePublic encodes a public value for a KeyExchange payload.
func EncodePublic(v uint64) []byte {
	b := make([]byte, PublicSize)
	binary.LittleEndian.PutUint64(b, v)
	return b
}

// DecodePublic parses a KeyExchange payload.
func DecodePublic(b []byte) (uint64, error) {
	if len(b) != PublicSize {
		return 0, oops.Errorf("public value must be %d bytes, got %d", PublicSize, len(b))
	}
	return binary.LittleEndian.Uint64(b), nil
}
