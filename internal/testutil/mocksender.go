// Package testutil provides helper methods that are useful for implementing tests.
package testutil

import (
	"sync"

	"github.com/relab/flooding"
)

// MockSender records the messages broadcast through it.
type MockSender struct {
	mut          sync.Mutex
	messagesSent []flooding.Message
}

// NewMockSender returns an empty MockSender.
func NewMockSender() *MockSender {
	return &MockSender{}
}

// Broadcast records msg.
func (m *MockSender) Broadcast(msg flooding.Message) {
	m.mut.Lock()
	defer m.mut.Unlock()
	m.messagesSent = append(m.messagesSent, msg)
}

// MessagesSent returns the recorded messages in the order they were broadcast.
func (m *MockSender) MessagesSent() []flooding.Message {
	m.mut.Lock()
	defer m.mut.Unlock()
	return append([]flooding.Message(nil), m.messagesSent...)
}

// Proposals returns the recorded proposal messages.
func (m *MockSender) Proposals() []flooding.ProposalMsg {
	var proposals []flooding.ProposalMsg
	for _, msg := range m.MessagesSent() {
		if p, ok := msg.(flooding.ProposalMsg); ok {
			proposals = append(proposals, p)
		}
	}
	return proposals
}

// Decisions returns the recorded decision messages.
func (m *MockSender) Decisions() []flooding.DecisionMsg {
	var decisions []flooding.DecisionMsg
	for _, msg := range m.MessagesSent() {
		if d, ok := msg.(flooding.DecisionMsg); ok {
			decisions = append(decisions, d)
		}
	}
	return decisions
}

// Reset forgets the recorded messages.
func (m *MockSender) Reset() {
	m.mut.Lock()
	defer m.mut.Unlock()
	m.messagesSent = nil
}
