package bridge

import (
	"context"
	"fmt"
	"log"
	"time"
)

// RetryPolicy bounds retries around outbound sends: at most MaxAttempts
// tries with a fixed Backoff between them. Kept as an explicit value so
// tests can shrink the delays.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
}

// DefaultRetryPolicy matches the platform behavior the bot has always
// had: three attempts, one second apart.
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 3, Backoff: time.Second}

// failureNotice is the last-ditch reply sent when a user-facing message
// could not be delivered after all retries.
const failureNotice = "❌ Could not deliver the message. Please try again later."

// TransientClassifier is optionally implemented by adapters that can
// tell transient delivery failures (network errors, timeouts, rate
// limits) from permanent ones (bad chat id, blocked bot). Permanent
// failures are not retried.
type TransientClassifier interface {
	Transient(err error) bool
}

// Sender is the delivery gateway: a retrying wrapper around outbound
// text sends plus single-attempt media delivery. Status messages degrade
// gracefully on failure; a failed media send is terminal for its job and
// the error is propagated to the caller.
type Sender struct {
	adapter Adapter
	policy  RetryPolicy
}

// NewSender creates a Sender. A zero policy falls back to
// DefaultRetryPolicy.
func NewSender(adapter Adapter, policy RetryPolicy) (*Sender, error) {
	if adapter == nil {
		return nil, fmt.Errorf("bridge: sender: adapter is required")
	}
	if policy.MaxAttempts <= 0 {
		policy = DefaultRetryPolicy
	}
	return &Sender{adapter: adapter, policy: policy}, nil
}

// SendText delivers a text message, retrying transient failures up to
// the policy bound. It returns the last error once retries are
// exhausted; callers decide whether that is fatal for them.
func (s *Sender) SendText(ctx context.Context, msg OutboundText) (MessageRef, error) {
	var lastErr error
	for attempt := 1; attempt <= s.policy.MaxAttempts; attempt++ {
		ref, err := s.adapter.SendText(ctx, msg)
		if err == nil {
			return ref, nil
		}
		lastErr = err
		if c, ok := s.adapter.(TransientClassifier); ok && !c.Transient(err) {
			break
		}
		if attempt == s.policy.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return MessageRef{}, ctx.Err()
		case <-time.After(s.policy.Backoff):
		}
	}
	return MessageRef{}, fmt.Errorf("bridge: send text to %d: %w", msg.ChatID, lastErr)
}

// Reply is SendText with graceful degradation: exhausted retries are
// logged, never returned, and a fixed failure notice is attempted once
// so the user is not left waiting in silence. Used for user-facing
// status and error replies where a delivery failure must not abort the
// surrounding work.
func (s *Sender) Reply(ctx context.Context, chatID int64, text string) MessageRef {
	ref, err := s.SendText(ctx, OutboundText{ChatID: chatID, Text: text})
	if err != nil {
		return s.degrade(ctx, chatID, err)
	}
	return ref
}

// ReplyKeyboard is Reply with an attached reply keyboard.
func (s *Sender) ReplyKeyboard(ctx context.Context, chatID int64, text string, kb *Keyboard) MessageRef {
	ref, err := s.SendText(ctx, OutboundText{ChatID: chatID, Text: text, Keyboard: kb})
	if err != nil {
		return s.degrade(ctx, chatID, err)
	}
	return ref
}

// degrade logs a dropped reply and makes one direct, best-effort
// attempt to tell the user delivery is failing. No retries here; if the
// notice is dropped too, there is nothing more to do.
func (s *Sender) degrade(ctx context.Context, chatID int64, err error) MessageRef {
	log.Printf("bridge: reply to %d dropped: %v", chatID, err)
	if _, noticeErr := s.adapter.SendText(ctx, OutboundText{ChatID: chatID, Text: failureNotice}); noticeErr != nil {
		log.Printf("bridge: failure notice to %d dropped: %v", chatID, noticeErr)
	}
	return MessageRef{}
}

// SendMedia delivers a media file in a single attempt. Media sends are
// large; retrying one risks duplicate delivery, so failure is returned
// to the caller and is terminal for the owning job.
func (s *Sender) SendMedia(ctx context.Context, chatID int64, path string) error {
	if err := s.adapter.SendMedia(ctx, chatID, path); err != nil {
		return fmt.Errorf("bridge: send media to %d: %w", chatID, err)
	}
	return nil
}

// Delete removes a previously sent message, best-effort. A zero ref is
// ignored, so callers can pass the result of a dropped Reply directly.
func (s *Sender) Delete(ctx context.Context, ref MessageRef) {
	if ref.Zero() {
		return
	}
	if err := s.adapter.DeleteMessage(ctx, ref); err != nil {
		log.Printf("bridge: delete message %d in %d: %v", ref.MessageID, ref.ChatID, err)
	}
}
