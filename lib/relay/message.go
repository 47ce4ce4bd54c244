package relay

// Message is one unit of work for the fan-out. Content is plaintext; the
// fan-out encrypts it separately for each recipient.
type Message struct {
	Sender        string
	Content       []byte
	ExcludeSender bool

	// Recipient, when set, restricts delivery to that one identity.
	Recipient string
}

// deliversTo reports whether the member with identity id should receive m.
func (m Message) deliversTo(id string) bool {
	if m.Recipient != "" {
		return id == m.Recipient
	}
	return !(m.ExcludeSender && id == m.Sender)
}

func joinNotice(id string) []byte {
	return []byte("* New client connected: " + id)
}

func leaveNotice(id string) []byte {
	return []byte("* Client disconnected: " + id)
}
