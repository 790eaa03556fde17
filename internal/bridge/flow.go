package bridge

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"

	"github.com/vgrishin/courier/internal/registry"
)

// Entry commands and tokens for the admin-management flow. These match
// the bot's reply-keyboard buttons.
const (
	CmdStart       = "/start"
	CmdAddAdmin    = "Add admin"
	CmdRemoveAdmin = "Remove admin"
	CmdListAdmins  = "Admins"
	CmdCancel      = "Cancel"
)

// flowState is the per-chat conversation state.
type flowState int

const (
	stateIdle flowState = iota
	stateAwaitingAddID
	stateAwaitingRemoveID
)

// Flow drives the multi-turn admin-management conversations. State is a
// per-chat in-memory map: at most one open flow per chat, lost on
// restart (the operator simply starts the flow again). The state lock is
// held only around map access, never across registry or send calls.
type Flow struct {
	reg    *registry.Registry
	sender *Sender

	mu     sync.Mutex
	states map[int64]flowState
}

// NewFlow creates a Flow.
func NewFlow(reg *registry.Registry, sender *Sender) (*Flow, error) {
	if reg == nil {
		return nil, fmt.Errorf("bridge: flow: registry is required")
	}
	if sender == nil {
		return nil, fmt.Errorf("bridge: flow: sender is required")
	}
	return &Flow{
		reg:    reg,
		sender: sender,
		states: make(map[int64]flowState),
	}, nil
}

// Active reports whether chatID has an open flow awaiting input.
func (f *Flow) Active(chatID int64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.states[chatID] != stateIdle
}

// Reset closes any open flow for chatID.
func (f *Flow) Reset(chatID int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.states, chatID)
}

// setState records the flow state for chatID.
func (f *Flow) setState(chatID int64, s flowState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s == stateIdle {
		delete(f.states, chatID)
		return
	}
	f.states[chatID] = s
}

// state reads the flow state for chatID.
func (f *Flow) state(chatID int64) flowState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.states[chatID]
}

// Welcome sends the /start greeting: admins get the management keyboard,
// everyone else gets usage guidance. Always resets the flow first, so
// /start doubles as a hard cancel.
func (f *Flow) Welcome(ctx context.Context, chatID int64) {
	f.Reset(chatID)

	isAdmin, err := f.reg.IsAdmin(chatID)
	if err != nil {
		log.Printf("bridge: flow: welcome %d: %v", chatID, err)
	}
	if isAdmin {
		f.sender.ReplyKeyboard(ctx, chatID,
			"Hi! Send me a video link and I'll download it for you.",
			adminKeyboard())
		return
	}
	f.sender.Reply(ctx, chatID,
		"Send me a video link from TikTok, YouTube, VK or Instagram and I'll download it for you.")
}

// StartAdd enters the add-admin flow. Only root admins may manage
// admins; everyone else gets a denial and the state stays idle.
func (f *Flow) StartAdd(ctx context.Context, chatID int64) {
	if !f.reg.IsRoot(chatID) {
		f.sender.Reply(ctx, chatID, "❌ This command is only available to root admins.")
		return
	}
	f.setState(chatID, stateAwaitingAddID)
	f.sender.ReplyKeyboard(ctx, chatID,
		"Please send the ID of the user you want to add as an admin:",
		cancelKeyboard())
}

// StartRemove enters the remove-admin flow. When the durable registry is
// empty it short-circuits with an informational reply instead of
// entering the waiting state.
func (f *Flow) StartRemove(ctx context.Context, chatID int64) {
	if !f.reg.IsRoot(chatID) {
		f.sender.Reply(ctx, chatID, "❌ This command is only available to root admins.")
		return
	}

	admins, err := f.reg.List()
	if err != nil {
		log.Printf("bridge: flow: list admins for %d: %v", chatID, err)
		f.sender.Reply(ctx, chatID, "❌ Something went wrong. Please try again.")
		return
	}
	if len(admins) == 0 {
		f.sender.Reply(ctx, chatID, "❌ No admins have been added.")
		return
	}

	f.setState(chatID, stateAwaitingRemoveID)
	f.sender.ReplyKeyboard(ctx, chatID,
		formatAdminList(admins)+"\n❓ Please send the ID of the admin you want to remove:",
		cancelKeyboard())
}

// ShowAdmins lists the durable admins. Root-only, no state change.
func (f *Flow) ShowAdmins(ctx context.Context, chatID int64) {
	if !f.reg.IsRoot(chatID) {
		f.sender.Reply(ctx, chatID, "❌ This command is only available to root admins.")
		return
	}
	admins, err := f.reg.List()
	if err != nil {
		log.Printf("bridge: flow: list admins for %d: %v", chatID, err)
		f.sender.Reply(ctx, chatID, "❌ Something went wrong. Please try again.")
		return
	}
	if len(admins) == 0 {
		f.sender.Reply(ctx, chatID, "❌ No admins have been added.")
		return
	}
	f.sender.Reply(ctx, chatID, formatAdminList(admins))
}

// HandleInput feeds a message into an open flow. Cancel tokens and
// parseable IDs are terminal; unparsable input re-prompts and leaves the
// state unchanged.
func (f *Flow) HandleInput(ctx context.Context, chatID int64, text string) {
	text = strings.TrimSpace(text)
	if text == CmdCancel || text == CmdStart {
		f.Welcome(ctx, chatID)
		return
	}

	state := f.state(chatID)
	id, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		// Re-prompt; the state does not advance on parse failure.
		f.sender.Reply(ctx, chatID, "❌ Invalid user ID format. Enter a number.")
		return
	}

	switch state {
	case stateAwaitingAddID:
		f.finishAdd(ctx, chatID, id)
	case stateAwaitingRemoveID:
		f.finishRemove(ctx, chatID, id)
	default:
		// No open flow; nothing to do.
	}
}

// finishAdd completes the add-admin flow for the parsed target id.
func (f *Flow) finishAdd(ctx context.Context, chatID, target int64) {
	added, err := f.reg.Add(target)
	if err != nil {
		log.Printf("bridge: flow: add admin %d: %v", target, err)
		f.sender.Reply(ctx, chatID, "❌ Something went wrong. Please try again.")
		f.Welcome(ctx, chatID)
		return
	}
	if added {
		f.sender.Reply(ctx, chatID, fmt.Sprintf("✅ User %d is now an admin.", target))
	} else {
		f.sender.Reply(ctx, chatID, fmt.Sprintf("❌ User %d is already an admin.", target))
	}
	f.Welcome(ctx, chatID)
}

// finishRemove completes the remove-admin flow. Root admins are not
// demotable; removing one reports not-an-admin like any unknown id.
func (f *Flow) finishRemove(ctx context.Context, chatID, target int64) {
	removed, err := f.reg.Remove(target)
	if err != nil {
		log.Printf("bridge: flow: remove admin %d: %v", target, err)
		f.sender.Reply(ctx, chatID, "❌ Something went wrong. Please try again.")
		f.Welcome(ctx, chatID)
		return
	}
	if removed {
		f.sender.Reply(ctx, chatID, fmt.Sprintf("✅ User %d has been removed from the admin list.", target))
	} else {
		f.sender.Reply(ctx, chatID, fmt.Sprintf("❌ User %d is not an admin.", target))
	}
	f.Welcome(ctx, chatID)
}

// adminKeyboard is the main menu shown to admins on /start.
func adminKeyboard() *Keyboard {
	return &Keyboard{
		Rows: [][]string{
			{CmdAddAdmin, CmdRemoveAdmin},
			{CmdListAdmins},
		},
	}
}

// cancelKeyboard is the single-button keyboard shown while waiting for
// an ID.
func cancelKeyboard() *Keyboard {
	return &Keyboard{
		Rows:    [][]string{{CmdCancel}},
		OneTime: true,
	}
}

// formatAdminList renders the durable admin list for display.
func formatAdminList(admins []int64) string {
	var b strings.Builder
	b.WriteString("📜 Admins:\n")
	for i, id := range admins {
		fmt.Fprintf(&b, "%d. ID: %d\n", i+1, id)
	}
	return strings.TrimRight(b.String(), "\n")
}
