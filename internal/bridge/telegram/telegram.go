// Package telegram implements the bridge Adapter for Telegram using the
// Bot API long-polling transport.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/vgrishin/courier/internal/bridge"
)

// pollTimeout is the long-poll timeout in seconds for getUpdates.
const pollTimeout = 30

// botAPI abstracts the tgbotapi.BotAPI methods we use, enabling test mocks.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Adapter implements bridge.Adapter for Telegram via Bot API long polling.
type Adapter struct {
	api      botAPI
	botToken string

	mu        sync.Mutex
	connected bool
	closed    bool
	inbound   chan bridge.InboundMessage
	pumpDone  chan struct{}
}

// AdapterOpts holds parameters for creating a Telegram Adapter.
type AdapterOpts struct {
	BotToken string // Telegram bot token
	// For testing: inject a mock API instead of the real Bot API client.
	API botAPI
}

// New creates a Telegram Adapter.
func New(opts AdapterOpts) (*Adapter, error) {
	if opts.API == nil && opts.BotToken == "" {
		return nil, fmt.Errorf("telegram: bot token is required")
	}
	return &Adapter{
		api:      opts.API,
		botToken: opts.BotToken,
		inbound:  make(chan bridge.InboundMessage, 100),
	}, nil
}

// Connect authenticates against the Bot API.
func (a *Adapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return fmt.Errorf("telegram: adapter already closed")
	}
	if a.connected {
		return nil
	}

	// Create the real client if not injected (production path).
	if a.api == nil {
		bot, err := tgbotapi.NewBotAPI(a.botToken)
		if err != nil {
			return fmt.Errorf("telegram: authenticate: %w", err)
		}
		log.Printf("telegram: connected as @%s", bot.Self.UserName)
		a.api = bot
	}

	a.connected = true
	return nil
}

// Listen starts the long-polling update pump and returns the inbound
// channel. Must be called after Connect. The channel is closed when the
// context is cancelled or the adapter is closed.
func (a *Adapter) Listen(ctx context.Context) (<-chan bridge.InboundMessage, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.connected {
		return nil, fmt.Errorf("telegram: not connected")
	}
	if a.pumpDone != nil {
		return a.inbound, nil
	}

	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = pollTimeout
	updates := a.api.GetUpdatesChan(cfg)

	a.pumpDone = make(chan struct{})
	go a.pump(ctx, updates)

	return a.inbound, nil
}

// pump converts Bot API updates into inbound messages until the update
// stream ends or the context is cancelled.
func (a *Adapter) pump(ctx context.Context, updates tgbotapi.UpdatesChannel) {
	defer func() {
		close(a.inbound)
		close(a.pumpDone)
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			msg, ok := convertUpdate(update)
			if !ok {
				continue
			}
			select {
			case a.inbound <- msg:
			case <-ctx.Done():
				return
			}
		}
	}
}

// convertUpdate maps a Bot API update onto an InboundMessage. Updates
// without a text message (edits, joins, media uploads) are skipped.
func convertUpdate(update tgbotapi.Update) (bridge.InboundMessage, bool) {
	m := update.Message
	if m == nil || m.From == nil || m.Text == "" {
		return bridge.InboundMessage{}, false
	}
	return bridge.InboundMessage{
		ChatID:    m.Chat.ID,
		UserID:    m.From.ID,
		Text:      m.Text,
		Timestamp: time.Unix(int64(m.Date), 0).UTC(),
	}, true
}

// SendText delivers a text message, attaching a reply keyboard when one
// is set.
func (a *Adapter) SendText(ctx context.Context, msg bridge.OutboundText) (bridge.MessageRef, error) {
	if err := a.checkConnected(); err != nil {
		return bridge.MessageRef{}, err
	}

	cfg := tgbotapi.NewMessage(msg.ChatID, msg.Text)
	if msg.Keyboard != nil {
		cfg.ReplyMarkup = buildKeyboard(msg.Keyboard)
	}

	sent, err := a.api.Send(cfg)
	if err != nil {
		return bridge.MessageRef{}, fmt.Errorf("telegram: send message: %w", err)
	}
	return bridge.MessageRef{ChatID: msg.ChatID, MessageID: sent.MessageID}, nil
}

// SendMedia uploads a local video file to the chat.
func (a *Adapter) SendMedia(ctx context.Context, chatID int64, path string) error {
	if err := a.checkConnected(); err != nil {
		return err
	}

	cfg := tgbotapi.NewVideo(chatID, tgbotapi.FilePath(path))
	if _, err := a.api.Send(cfg); err != nil {
		return fmt.Errorf("telegram: send video: %w", err)
	}
	return nil
}

// DeleteMessage removes a previously sent message.
func (a *Adapter) DeleteMessage(ctx context.Context, ref bridge.MessageRef) error {
	if err := a.checkConnected(); err != nil {
		return err
	}

	cfg := tgbotapi.NewDeleteMessage(ref.ChatID, ref.MessageID)
	if _, err := a.api.Request(cfg); err != nil {
		return fmt.Errorf("telegram: delete message: %w", err)
	}
	return nil
}

// Close stops the update pump and waits for it to drain. The inbound
// channel is closed by the pump on exit.
func (a *Adapter) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	a.connected = false
	pumpDone := a.pumpDone
	api := a.api
	a.mu.Unlock()

	if api != nil {
		api.StopReceivingUpdates()
	}
	if pumpDone != nil {
		<-pumpDone
	} else {
		close(a.inbound)
	}
	return nil
}

// Transient classifies a send failure for retry purposes: rate limits
// and server-side errors are worth retrying, Bot API client errors (bad
// chat id, blocked bot) are not. Network-level errors and timeouts are
// transient.
func (a *Adapter) Transient(err error) bool {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == 429 || apiErr.Code >= 500
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

func (a *Adapter) checkConnected() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.connected {
		return fmt.Errorf("telegram: not connected")
	}
	return nil
}

// buildKeyboard translates the platform-agnostic keyboard into a Bot API
// reply keyboard markup.
func buildKeyboard(kb *bridge.Keyboard) tgbotapi.ReplyKeyboardMarkup {
	rows := make([][]tgbotapi.KeyboardButton, 0, len(kb.Rows))
	for _, labels := range kb.Rows {
		row := make([]tgbotapi.KeyboardButton, 0, len(labels))
		for _, label := range labels {
			row = append(row, tgbotapi.NewKeyboardButton(label))
		}
		rows = append(rows, row)
	}
	markup := tgbotapi.NewReplyKeyboard(rows...)
	markup.OneTimeKeyboard = kb.OneTime
	return markup
}
