// Package daemon wires Courier's components together and runs the
// inbound message pump until the context is cancelled.
package daemon

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/vgrishin/courier/internal/bridge"
	"github.com/vgrishin/courier/internal/config"
	"github.com/vgrishin/courier/internal/fetch"
	"github.com/vgrishin/courier/internal/job"
	"github.com/vgrishin/courier/internal/quota"
	"github.com/vgrishin/courier/internal/registry"
	"gorm.io/gorm"
)

// Daemon is the assembled bot service: adapter, router, per-chat
// dispatcher, download orchestrator and maintenance loop.
type Daemon struct {
	cfg        *config.Config
	adapter    bridge.Adapter
	dispatcher *bridge.Dispatcher
	router     *bridge.Router
	workspace  *job.Workspace
	orch       *job.Orchestrator
	tracker    *quota.Tracker
	reg        *registry.Registry
	out        io.Writer
	done       chan struct{} // closed on shutdown; stops the maintenance loop
}

// Opts holds parameters for creating a Daemon.
type Opts struct {
	DB      *gorm.DB
	Config  *config.Config
	Adapter bridge.Adapter
	Fetcher fetch.Fetcher
	Out     io.Writer // defaults to os.Stdout
}

// New wires up a Daemon from its external dependencies.
func New(opts Opts) (*Daemon, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("daemon: db is required")
	}
	if opts.Config == nil {
		return nil, fmt.Errorf("daemon: config is required")
	}
	if opts.Adapter == nil {
		return nil, fmt.Errorf("daemon: adapter is required")
	}
	if opts.Fetcher == nil {
		return nil, fmt.Errorf("daemon: fetcher is required")
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}

	reg := registry.New(opts.DB, opts.Config.RootAdmins)

	tracker, err := quota.NewTracker(quota.TrackerOpts{
		DB:           opts.DB,
		Registry:     reg,
		RegularLimit: opts.Config.RegularDailyLimit,
		AdminLimit:   opts.Config.AdminDailyLimit,
	})
	if err != nil {
		return nil, err
	}

	sender, err := bridge.NewSender(opts.Adapter, bridge.DefaultRetryPolicy)
	if err != nil {
		return nil, err
	}

	flow, err := bridge.NewFlow(reg, sender)
	if err != nil {
		return nil, err
	}

	workspace, err := job.NewWorkspace(job.WorkspaceOpts{
		Root: opts.Config.DownloadDir,
		Out:  out,
	})
	if err != nil {
		return nil, err
	}

	var creds *fetch.Credentials
	if username, password, ok := opts.Config.InstagramCredentials(); ok {
		creds = &fetch.Credentials{Username: username, Password: password}
	}

	orch, err := job.NewOrchestrator(job.OrchestratorOpts{
		Tracker:     tracker,
		Sender:      sender,
		Fetcher:     opts.Fetcher,
		Workspace:   workspace,
		Credentials: creds,
		Out:         out,
	})
	if err != nil {
		return nil, err
	}

	router, err := bridge.NewRouter(bridge.RouterOpts{
		Flow:       flow,
		URLHandler: orch,
		Sender:     sender,
		Out:        out,
	})
	if err != nil {
		return nil, err
	}

	d := &Daemon{
		cfg:       opts.Config,
		adapter:   opts.Adapter,
		router:    router,
		workspace: workspace,
		orch:      orch,
		tracker:   tracker,
		reg:       reg,
		out:       out,
		done:      make(chan struct{}),
	}
	d.dispatcher = bridge.NewDispatcher(router.Handle)
	return d, nil
}

// Tracker returns the quota tracker, for the dashboard.
func (d *Daemon) Tracker() *quota.Tracker {
	return d.tracker
}

// Registry returns the admin registry, for the dashboard.
func (d *Daemon) Registry() *registry.Registry {
	return d.reg
}

// ActiveJobs returns the number of downloads currently in flight.
func (d *Daemon) ActiveJobs() int64 {
	return d.orch.Active()
}

// Run connects the adapter and pumps inbound messages into the per-chat
// dispatcher until ctx is cancelled or the inbound channel closes. On
// exit it drains in-flight work before returning.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.adapter.Connect(ctx); err != nil {
		return fmt.Errorf("daemon: connect: %w", err)
	}
	inbound, err := d.adapter.Listen(ctx)
	if err != nil {
		return fmt.Errorf("daemon: listen: %w", err)
	}

	go d.runMaintenance(ctx)

	fmt.Fprintf(d.out, "daemon: running\n")
	for {
		select {
		case <-ctx.Done():
			return d.shutdown()
		case msg, ok := <-inbound:
			if !ok {
				return d.shutdown()
			}
			d.dispatcher.Dispatch(ctx, msg)
		}
	}
}

// shutdown drains in-flight jobs, then closes the adapter and stops
// deferred cleanups and the maintenance loop. The dispatcher is drained
// first so handlers still running can deliver their final replies over
// a live adapter.
func (d *Daemon) shutdown() error {
	fmt.Fprintf(d.out, "daemon: shutting down\n")
	close(d.done)
	d.dispatcher.Wait()
	err := d.adapter.Close()
	d.workspace.Shutdown()
	fmt.Fprintf(d.out, "daemon: stopped\n")
	return err
}
