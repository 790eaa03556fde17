// Package bridge connects Courier to a chat platform: the platform
// Adapter abstraction, the retrying delivery gateway, the per-chat admin
// conversation flow, and the message router with its per-chat dispatch
// queue.
package bridge

import (
	"context"
	"time"
)

// Adapter is the interface a platform-specific implementation must
// satisfy. An adapter owns connection management and message I/O for a
// single chat platform.
type Adapter interface {
	// Connect establishes a connection to the chat platform.
	Connect(ctx context.Context) error

	// Listen returns a channel of inbound messages. The channel is
	// closed when the context is cancelled or the adapter is closed.
	// Listen must only be called after Connect.
	Listen(ctx context.Context) (<-chan InboundMessage, error)

	// SendText delivers a text message and returns a reference usable
	// with DeleteMessage.
	SendText(ctx context.Context, msg OutboundText) (MessageRef, error)

	// SendMedia delivers a media file from a local path.
	SendMedia(ctx context.Context, chatID int64, path string) error

	// DeleteMessage removes a previously sent message.
	DeleteMessage(ctx context.Context, ref MessageRef) error

	// Close gracefully shuts down the adapter connection.
	Close() error
}

// InboundMessage represents a message received from the chat platform.
type InboundMessage struct {
	ChatID    int64     // platform chat identifier
	UserID    int64     // platform user identifier
	Text      string    // raw message text
	Timestamp time.Time // when the message was sent
}

// OutboundText represents a text message to be sent.
type OutboundText struct {
	ChatID   int64
	Text     string
	Keyboard *Keyboard // optional reply keyboard
}

// Keyboard is a platform-agnostic reply keyboard: rows of button labels.
type Keyboard struct {
	Rows    [][]string
	OneTime bool // hide the keyboard after one use
}

// MessageRef identifies a previously sent message for deletion.
type MessageRef struct {
	ChatID    int64
	MessageID int
}

// Zero reports whether the reference points at no message.
func (r MessageRef) Zero() bool {
	return r.MessageID == 0
}
