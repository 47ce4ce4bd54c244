package relay

import (
	"sort"
	"sync"
	"time"

	"github.com/go-i2p/go-relaychat/lib/crypto/stream"
	"github.com/go-i2p/go-relaychat/lib/protocol"
	"github.com/go-i2p/logger"
	"github.com/samber/oops"
)

// Member is a registered client: its identity, its cipher and the framed
// connection used to reach it. A Member is immutable after registration.
type Member struct {
	ID       string
	Cipher   stream.Cipher
	JoinedAt time.Time

	conn         *protocol.Conn
	writeTimeout time.Duration
}

// NewMember builds a registry entry for an established connection.
func NewMember(id string, c stream.Cipher, conn *protocol.Conn, writeTimeout time.Duration) *Member {
	return &Member{
		ID:           id,
		Cipher:       c,
		JoinedAt:     time.Now(),
		conn:         conn,
		writeTimeout: writeTimeout,
	}
}

// Send encrypts plaintext under the member's key and writes one frame.
func (m *Member) Send(t protocol.Type, plaintext []byte) error {
	return m.conn.SendWithin(t, m.Cipher.Encrypt(plaintext), m.writeTimeout)
}

// Registry maps connection identities to members. All methods are safe for
// concurrent use and hold the lock only for map access.
type Registry struct {
	mu      sync.Mutex
	members map[string]*Member
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{members: make(map[string]*Member)}
}

// Register adds m. It fails if m.ID is already present.
func (r *Registry) Register(m *Member) error {
	r.mu.Lock()
	if _, exists := r.members[m.ID]; exists {
		r.mu.Unlock()
		return oops.Wrapf(ErrDuplicateIdentity, "%s", m.ID)
	}
	r.members[m.ID] = m
	count := len(r.members)
	r.mu.Unlock()

	log.WithFields(logger.Fields{
		"at":      "relay.Registry.Register",
		"client":  m.ID,
		"members": count,
	}).Debug("member_registered")
	return nil
}

// Remove deletes the entry for id and reports whether one existed.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	_, ok := r.members[id]
	delete(r.members, id)
	r.mu.Unlock()
	return ok
}

// Get returns the member registered under id.
func (r *Registry) Get(id string) (*Member, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.members[id]
	return m, ok
}

// Count returns the number of registered members.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}

// Snapshot returns the current members ordered by identity. The slice is
// the caller's; members in it may leave the registry at any time.
func (r *Registry) Snapshot() []*Member {
	r.mu.Lock()
	out := make([]*Member, 0, len(r.members))
	for _, m := range r.members {
		out = append(out, m)
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// IDs returns the registered identities in sorted order.
func (r *Registry) IDs() []string {
	members := r.Snapshot()
	ids := make([]string, len(members))
	for i, m := range members {
		ids[i] = m.ID
	}
	return ids
}
