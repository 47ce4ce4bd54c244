package relay

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/go-i2p/go-relaychat/lib/crypto/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMember(t *testing.T, id string) *Member {
	t.Helper()
	c, err := stream.New(stream.SuiteXOR, []byte{1, 2, 3, 4})
	require.NoError(t, err)
	return NewMember(id, c, nil, 0)
}

func TestRegistryRegisterAndRemove(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(testMember(t, "b")))
	require.NoError(t, r.Register(testMember(t, "a")))
	assert.Equal(t, 2, r.Count())

	m, ok := r.Get("a")
	require.True(t, ok)
	assert.Equal(t, "a", m.ID)

	assert.Equal(t, []string{"a", "b"}, r.IDs())

	assert.True(t, r.Remove("a"))
	assert.False(t, r.Remove("a"), "second removal is a no-op")
	_, ok = r.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 1, r.Count())
}

func TestRegistryRejectsDuplicate(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(testMember(t, "a")))
	err := r.Register(testMember(t, "a"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicateIdentity))
	assert.Equal(t, 1, r.Count())
}

func TestRegistrySnapshotIsIndependent(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(testMember(t, "a")))
	snap := r.Snapshot()
	r.Remove("a")
	require.Len(t, snap, 1)
	assert.Equal(t, "a", snap[0].ID)
	assert.Empty(t, r.Snapshot())
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("client-%02d", i)
			assert.NoError(t, r.Register(testMember(t, id)))
			_ = r.Snapshot()
			if i%2 == 0 {
				r.Remove(id)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 25, r.Count())
}
