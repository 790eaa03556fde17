package bridge

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
)

// URLHandler consumes messages that are neither commands nor flow input,
// i.e. candidate video URLs. Implemented by the download orchestrator.
type URLHandler interface {
	HandleURL(ctx context.Context, msg InboundMessage)
}

// Router classifies inbound chat messages and routes them: /start and
// the admin menu buttons to the conversation flow, input for an open
// flow to the flow, everything else to the URL handler.
type Router struct {
	flow   *Flow
	urls   URLHandler
	sender *Sender
	out    io.Writer
}

// RouterOpts holds parameters for creating a Router.
type RouterOpts struct {
	Flow       *Flow
	URLHandler URLHandler
	Sender     *Sender
	Out        io.Writer // defaults to os.Stdout
}

// NewRouter creates a Router.
func NewRouter(opts RouterOpts) (*Router, error) {
	if opts.Flow == nil {
		return nil, fmt.Errorf("bridge: router: flow is required")
	}
	if opts.URLHandler == nil {
		return nil, fmt.Errorf("bridge: router: url handler is required")
	}
	if opts.Sender == nil {
		return nil, fmt.Errorf("bridge: router: sender is required")
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	return &Router{
		flow:   opts.Flow,
		urls:   opts.URLHandler,
		sender: opts.Sender,
		out:    out,
	}, nil
}

// Handle classifies and routes a single inbound message. Routing paths:
//  1. "/start" → hard reset + welcome
//  2. open flow for this chat → flow input
//  3. admin menu button → flow entry
//  4. everything else → URL handler
//
// A panic anywhere in handling is recovered here so one failing job
// cannot take down concurrent chats.
func (r *Router) Handle(ctx context.Context, msg InboundMessage) {
	defer func() {
		if rec := recover(); rec != nil {
			fmt.Fprintf(r.out, "bridge: router: panic handling chat %d: %v\n", msg.ChatID, rec)
			r.sender.Reply(ctx, msg.ChatID, "❌ Something went wrong. Please try again.")
		}
	}()

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}
	fmt.Fprintf(r.out, "bridge: router: recv [chat=%d user=%d] %q\n",
		msg.ChatID, msg.UserID, truncate(text, 80))

	switch {
	case text == CmdStart:
		r.flow.Welcome(ctx, msg.ChatID)
	case r.flow.Active(msg.ChatID):
		r.flow.HandleInput(ctx, msg.ChatID, text)
	case text == CmdAddAdmin:
		r.flow.StartAdd(ctx, msg.ChatID)
	case text == CmdRemoveAdmin:
		r.flow.StartRemove(ctx, msg.ChatID)
	case text == CmdListAdmins:
		r.flow.ShowAdmins(ctx, msg.ChatID)
	case text == CmdCancel:
		r.flow.Welcome(ctx, msg.ChatID)
	default:
		r.urls.HandleURL(ctx, msg)
	}
}

// truncate returns s truncated to maxLen with "..." appended if needed.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
