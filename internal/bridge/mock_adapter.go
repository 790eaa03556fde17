package bridge

import (
	"context"
	"fmt"
	"sync"
)

// MockAdapter implements Adapter for testing. It records sent messages
// and allows simulating inbound messages via SimulateInbound. Failures
// can be injected per method to exercise retry and degradation paths.
type MockAdapter struct {
	mu        sync.Mutex
	connected bool
	closed    bool
	inbound   chan InboundMessage
	sent      []OutboundText
	media     []string // paths passed to SendMedia
	deleted   []MessageRef
	nextID    int

	// Failure injection: when > 0, the next N calls to the method fail.
	FailTexts  int
	FailMedia  int
	FailDelete int

	// TransientFn overrides failure classification; when nil every
	// injected failure counts as transient.
	TransientFn func(err error) bool
}

// Transient classifies a delivery failure via TransientFn, defaulting
// to transient.
func (m *MockAdapter) Transient(err error) bool {
	if m.TransientFn != nil {
		return m.TransientFn(err)
	}
	return true
}

// NewMockAdapter creates a MockAdapter with a buffered inbound channel.
func NewMockAdapter() *MockAdapter {
	return &MockAdapter{
		inbound: make(chan InboundMessage, 100),
	}
}

// Connect marks the adapter as connected.
func (m *MockAdapter) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("mock adapter: already closed")
	}
	m.connected = true
	return nil
}

// Listen returns the inbound message channel. Must be called after Connect.
func (m *MockAdapter) Listen(ctx context.Context) (<-chan InboundMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return nil, fmt.Errorf("mock adapter: not connected")
	}
	return m.inbound, nil
}

// SendText records the outbound message, or fails if FailTexts > 0.
func (m *MockAdapter) SendText(ctx context.Context, msg OutboundText) (MessageRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return MessageRef{}, fmt.Errorf("mock adapter: not connected")
	}
	if m.FailTexts > 0 {
		m.FailTexts--
		return MessageRef{}, fmt.Errorf("mock adapter: injected text failure")
	}
	m.nextID++
	m.sent = append(m.sent, msg)
	return MessageRef{ChatID: msg.ChatID, MessageID: m.nextID}, nil
}

// SendMedia records the media path, or fails if FailMedia > 0.
func (m *MockAdapter) SendMedia(ctx context.Context, chatID int64, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return fmt.Errorf("mock adapter: not connected")
	}
	if m.FailMedia > 0 {
		m.FailMedia--
		return fmt.Errorf("mock adapter: injected media failure")
	}
	m.media = append(m.media, path)
	return nil
}

// DeleteMessage records the deleted reference, or fails if FailDelete > 0.
func (m *MockAdapter) DeleteMessage(ctx context.Context, ref MessageRef) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailDelete > 0 {
		m.FailDelete--
		return fmt.Errorf("mock adapter: injected delete failure")
	}
	m.deleted = append(m.deleted, ref)
	return nil
}

// Close shuts down the mock adapter and closes the inbound channel.
func (m *MockAdapter) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	m.connected = false
	close(m.inbound)
	return nil
}

// SimulateInbound delivers a message as if it arrived from the platform.
func (m *MockAdapter) SimulateInbound(msg InboundMessage) {
	m.inbound <- msg
}

// Sent returns a copy of all recorded text messages.
func (m *MockAdapter) Sent() []OutboundText {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]OutboundText, len(m.sent))
	copy(out, m.sent)
	return out
}

// LastText returns the text of the most recently sent message, or "".
func (m *MockAdapter) LastText() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return ""
	}
	return m.sent[len(m.sent)-1].Text
}

// Media returns a copy of all recorded media paths.
func (m *MockAdapter) Media() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.media))
	copy(out, m.media)
	return out
}

// Deleted returns a copy of all deleted message references.
func (m *MockAdapter) Deleted() []MessageRef {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MessageRef, len(m.deleted))
	copy(out, m.deleted)
	return out
}
