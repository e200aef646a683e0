// Package memory records published cycle reports in memory. Tests and
// single-process setups use it in place of Pub/Sub.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/sitewatch/internal/monitor"
)

// Publisher keeps every publish call for later inspection.
type Publisher struct {
	mu       sync.RWMutex
	messages []Message
	failWith error
}

// Message is one recorded publish call.
type Message struct {
	ID      string
	Topic   string
	Payload any
}

// New returns an empty Publisher.
func New() *Publisher {
	return &Publisher{}
}

// FailWith makes subsequent Publish calls return err. Nil restores success.
func (p *Publisher) FailWith(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failWith = err
}

// Publish records payload under topic. Failed calls are not recorded.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failWith != nil {
		return "", p.failWith
	}
	if topic == "" {
		return "", fmt.Errorf("topic is required")
	}
	id := fmt.Sprintf("%s-%d", topic, len(p.messages)+1)
	p.messages = append(p.messages, Message{ID: id, Topic: topic, Payload: payload})
	return id, nil
}

// Messages returns a copy of the recorded messages in publish order.
func (p *Publisher) Messages() []Message {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]Message(nil), p.messages...)
}

// Reports returns the cycle reports published to topic.
func (p *Publisher) Reports(topic string) []monitor.CycleReport {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []monitor.CycleReport
	for _, m := range p.messages {
		if m.Topic != topic {
			continue
		}
		if rep, ok := m.Payload.(monitor.CycleReport); ok {
			out = append(out, rep)
		}
	}
	return out
}
