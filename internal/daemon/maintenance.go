package daemon

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// cronParser uses standard 5-field cron expressions (minute, hour, dom,
// month, dow).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// nextCronDuration parses a 5-field cron expression and returns the
// duration until the next fire time. Returns 0 on parse error.
func nextCronDuration(expr string) time.Duration {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return 0
	}
	next := sched.Next(time.Now())
	d := time.Until(next)
	if d < 0 {
		return 0
	}
	return d
}

// workspaceSweepAge is how stale an abandoned job directory must be
// before the nightly sweep reclaims it. Anything an hour old has long
// outlived its deferred cleanup window.
const workspaceSweepAge = time.Hour

// runMaintenance runs the nightly maintenance pass on the configured
// cron schedule: purge expired quota rows and sweep abandoned job
// workspaces. Exits on context cancellation or daemon shutdown.
func (d *Daemon) runMaintenance(ctx context.Context) {
	expr := d.cfg.Maintenance.Cron
	for {
		wait := nextCronDuration(expr)
		if wait == 0 {
			fmt.Fprintf(d.out, "daemon: invalid maintenance cron %q, maintenance disabled\n", expr)
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-d.done:
			return
		case <-time.After(wait):
		}
		d.maintain()
	}
}

// maintain performs one maintenance pass.
func (d *Daemon) maintain() {
	cutoff := time.Now().UTC().AddDate(0, 0, -d.cfg.Maintenance.RetentionDays).Format("2006-01-02")
	purged, err := d.tracker.PurgeBefore(cutoff)
	if err != nil {
		fmt.Fprintf(d.out, "daemon: quota purge: %v\n", err)
	} else if purged > 0 {
		fmt.Fprintf(d.out, "daemon: purged %d quota rows older than %s\n", purged, cutoff)
	}

	swept, err := d.workspace.Sweep(workspaceSweepAge)
	if err != nil {
		fmt.Fprintf(d.out, "daemon: workspace sweep: %v\n", err)
	} else if swept > 0 {
		fmt.Fprintf(d.out, "daemon: swept %d abandoned job directories\n", swept)
	}
}
