package stream

import (
	"bytes"
	"crypto/rand"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptKnownVector(t *testing.T) {
	key := []byte{0x01, 0x02, 0x03, 0x04}
	got := Encrypt(key, []byte("Hello, world!"))

	want := []byte("Hello, world!")
	for i := range want {
		want[i] ^= key[i%len(key)]
	}
	assert.Equal(t, want, got)
}

func TestCipherInvolution(t *testing.T) {
	for _, suite := range []Suite{SuiteXOR, SuiteChaCha20} {
		for keyLen := 1; keyLen <= 33; keyLen += 4 {
			for _, size := range []int{0, 1, 15, 16, 17, 1000} {
				key := make([]byte, keyLen)
				msg := make([]byte, size)
				_, _ = rand.Read(key)
				_, _ = rand.Read(msg)

				c, err := New(suite, key)
				require.NoError(t, err)

				ct := c.Encrypt(msg)
				assert.Len(t, ct, size)
				assert.Equal(t, msg, c.Decrypt(ct), "suite %s keyLen %d size %d", suite, keyLen, size)
			}
		}
	}
}

func TestDecryptIsEncrypt(t *testing.T) {
	key := []byte("sixteen byte key")
	msg := []byte("Message received")
	assert.Equal(t, Encrypt(key, msg), Decrypt(key, msg))
	assert.Equal(t, msg, Decrypt(key, Encrypt(key, msg)))
}

func TestXORSuiteMatchesPureFunction(t *testing.T) {
	key := []byte{9, 8, 7}
	c, err := New(SuiteXOR, key)
	require.NoError(t, err)
	assert.Equal(t, Encrypt(key, []byte("payload")), c.Encrypt([]byte("payload")))
}

func TestChaCha20SuiteDiffersFromXOR(t *testing.T) {
	key := bytes.Repeat([]byte{0x42}, 16)
	x, err := New(SuiteXOR, key)
	require.NoError(t, err)
	c, err := New(SuiteChaCha20, key)
	require.NoError(t, err)

	msg := []byte("the same plaintext")
	assert.NotEqual(t, x.Encrypt(msg), c.Encrypt(msg))
	assert.Equal(t, c.Encrypt(msg), c.Encrypt(msg), "transform must be stateless")
}

func TestNewCopiesKey(t *testing.T) {
	key := []byte{1, 2, 3}
	c, err := New(SuiteXOR, key)
	require.NoError(t, err)

	before := c.Encrypt([]byte("abc"))
	key[0] = 0xFF
	assert.Equal(t, before, c.Encrypt([]byte("abc")))
}

func TestNewErrors(t *testing.T) {
	_, err := New(SuiteXOR, nil)
	assert.True(t, errors.Is(err, ErrEmptyKey))

	_, err = New(Suite("rot13"), []byte{1})
	assert.True(t, errors.Is(err, ErrUnknownSuite))
}

func TestParseSuite(t *testing.T) {
	s, err := ParseSuite("")
	require.NoError(t, err)
	assert.Equal(t, SuiteXOR, s)

	s, err = ParseSuite("chacha20")
	require.NoError(t, err)
	assert.Equal(t, SuiteChaCha20, s)

	_, err = ParseSuite("aes")
	assert.True(t, errors.Is(err, ErrUnknownSuite))
}

func TestCipherConcurrentUse(t *testing.T) {
	c, err := New(SuiteChaCha20, []byte("0123456789abcdef"))
	require.NoError(t, err)
	msg := []byte("shared by the session and the fan-out")
	want := c.Encrypt(msg)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if !bytes.Equal(want, c.Encrypt(msg)) {
					t.Error("concurrent Encrypt produced a different ciphertext")
					return
				}
			}
		}()
	}
	wg.Wait()
}
