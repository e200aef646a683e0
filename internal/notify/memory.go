package notify

import (
	"context"
	"sync"
)

// MemoryTransport records messages in memory.
type MemoryTransport struct {
	mu   sync.Mutex
	sent []Message
	err  error
}

// NewMemoryTransport returns an empty MemoryTransport.
func NewMemoryTransport() *MemoryTransport {
	return &MemoryTransport{}
}

// FailWith makes every later Send return err.
func (t *MemoryTransport) FailWith(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.err = err
}

// Send records msg.
func (t *MemoryTransport) Send(_ context.Context, msg Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err != nil {
		return t.err
	}
	t.sent = append(t.sent, msg)
	return nil
}

// Sent returns the recorded messages.
func (t *MemoryTransport) Sent() []Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Message(nil), t.sent...)
}
