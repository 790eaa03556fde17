package job

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/vgrishin/courier/internal/bridge"
	"github.com/vgrishin/courier/internal/fetch"
	"github.com/vgrishin/courier/internal/quota"
)

// Orchestrator drives one download job per inbound URL: quota check,
// source validation, workspace creation, fetch, delivery, quota
// accounting and cleanup. It implements bridge.URLHandler.
type Orchestrator struct {
	tracker   *quota.Tracker
	sender    *bridge.Sender
	fetcher   fetch.Fetcher
	workspace *Workspace
	creds     *fetch.Credentials
	out       io.Writer

	active atomic.Int64
}

// OrchestratorOpts holds parameters for creating an Orchestrator.
type OrchestratorOpts struct {
	Tracker   *quota.Tracker
	Sender    *bridge.Sender
	Fetcher   fetch.Fetcher
	Workspace *Workspace
	// Credentials for sources that need authentication; nil when not
	// configured.
	Credentials *fetch.Credentials
	Out         io.Writer // defaults to os.Stdout
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(opts OrchestratorOpts) (*Orchestrator, error) {
	if opts.Tracker == nil {
		return nil, fmt.Errorf("job: tracker is required")
	}
	if opts.Sender == nil {
		return nil, fmt.Errorf("job: sender is required")
	}
	if opts.Fetcher == nil {
		return nil, fmt.Errorf("job: fetcher is required")
	}
	if opts.Workspace == nil {
		return nil, fmt.Errorf("job: workspace is required")
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	return &Orchestrator{
		tracker:   opts.Tracker,
		sender:    opts.Sender,
		fetcher:   opts.Fetcher,
		workspace: opts.Workspace,
		creds:     opts.Credentials,
		out:       out,
	}, nil
}

// Active returns the number of jobs currently in flight.
func (o *Orchestrator) Active() int64 {
	return o.active.Load()
}

// HandleURL runs the full download pipeline for one message. All
// outcomes are reported to the chat; HandleURL itself never fails
// upward.
func (o *Orchestrator) HandleURL(ctx context.Context, msg bridge.InboundMessage) {
	url := msg.Text

	limit, err := o.tracker.LimitFor(msg.ChatID)
	if err != nil {
		fmt.Fprintf(o.out, "job: limit lookup for chat %d: %v\n", msg.ChatID, err)
		o.sender.Reply(ctx, msg.ChatID, "❌ An unexpected error occurred. Please try again.")
		return
	}
	count, err := o.tracker.DailyCount(msg.UserID)
	if err != nil {
		fmt.Fprintf(o.out, "job: count lookup for user %d: %v\n", msg.UserID, err)
		o.sender.Reply(ctx, msg.ChatID, "❌ An unexpected error occurred. Please try again.")
		return
	}
	if count >= limit {
		o.sender.Reply(ctx, msg.ChatID, fmt.Sprintf(
			"❌ You've reached your daily download limit (%d videos). Try again tomorrow.", limit))
		return
	}

	if !fetch.Supported(url) {
		o.sender.Reply(ctx, msg.ChatID, fmt.Sprintf(
			"⚠️ Please send a video link from %s.", fetch.SupportedSources()))
		return
	}

	var creds *fetch.Credentials
	if fetch.RequiresCredentials(url) {
		if o.creds == nil {
			o.sender.Reply(ctx, msg.ChatID,
				"❌ Instagram downloads require credentials. Please set the INSTAGRAM_USERNAME and INSTAGRAM_PASSWORD environment variables.")
			return
		}
		creds = o.creds
	}

	o.active.Add(1)
	defer o.active.Add(-1)

	j := New(msg.ChatID, msg.UserID, url)
	fmt.Fprintf(o.out, "job: %s start [chat=%d user=%d]\n", j.ID, j.ChatID, j.UserID)
	o.run(ctx, j, creds)
	fmt.Fprintf(o.out, "job: %s done state=%s\n", j.ID, j.State)
}

// run executes the job pipeline from the validating state onward.
func (o *Orchestrator) run(ctx context.Context, j *Job, creds *fetch.Credentials) {
	dir, err := o.workspace.Create(j.ID)
	if err != nil {
		fmt.Fprintf(o.out, "job: %s workspace: %v\n", j.ID, err)
		j.Advance(StateFailed)
		o.sender.Reply(ctx, j.ChatID, "❌ An unexpected error occurred. Please try again.")
		return
	}
	j.Dir = dir
	j.Advance(StateFetching)

	status := o.sender.Reply(ctx, j.ChatID, "🔄 Downloading video...")

	path, err := o.fetcher.Fetch(ctx, fetch.Request{
		URL:            j.URL,
		OutputTemplate: filepath.Join(dir, "video-"+j.ID+".%(ext)s"),
		Timeout:        fetch.DefaultTimeout,
		Credentials:    creds,
	})
	o.sender.Delete(ctx, status)
	if err != nil {
		o.fail(ctx, j, err)
		return
	}

	if _, statErr := os.Stat(path); statErr != nil {
		fmt.Fprintf(o.out, "job: %s artifact missing: %v\n", j.ID, statErr)
		j.Advance(StateFailed)
		o.sender.Reply(ctx, j.ChatID, "❌ Could not find the downloaded video.")
		o.workspace.Schedule(j.ID, j.Dir, DeferredCleanupDelay)
		return
	}
	j.Artifact = path
	j.Advance(StateReady)

	if err := o.sender.SendMedia(ctx, j.ChatID, path); err != nil {
		fmt.Fprintf(o.out, "job: %s deliver: %v\n", j.ID, err)
		j.Advance(StateFailed)
		o.sender.Reply(ctx, j.ChatID, "❌ Failed to send the video. Please try again.")
		o.workspace.Schedule(j.ID, j.Dir, DeferredCleanupDelay)
		return
	}
	j.Advance(StateDelivered)

	// Quota counts completed deliveries, exactly once per job. A
	// bookkeeping failure must not fail the user after delivery.
	if err := o.tracker.Increment(j.UserID); err != nil {
		fmt.Fprintf(o.out, "job: %s quota increment: %v\n", j.ID, err)
	}

	if err := o.workspace.Cleanup(j.Dir); err != nil {
		fmt.Fprintf(o.out, "job: %s cleanup: %v\n", j.ID, err)
	}
	j.Advance(StateCleaned)
}

// fail reports a fetch failure to the chat. Library errors surface their
// first line only; anything else gets a generic reply.
func (o *Orchestrator) fail(ctx context.Context, j *Job, err error) {
	j.Advance(StateFailed)
	if fetch.IsFetchError(err) {
		o.sender.Reply(ctx, j.ChatID, fmt.Sprintf(
			"❌ Error downloading video: %s", fetch.FirstLine(err)))
	} else {
		fmt.Fprintf(o.out, "job: %s fetch: %v\n", j.ID, err)
		o.sender.Reply(ctx, j.ChatID, fmt.Sprintf(
			"❌ An unexpected error occurred: %s", fetch.FirstLine(err)))
	}
	o.workspace.Schedule(j.ID, j.Dir, DeferredCleanupDelay)
}
