package job

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// DeferredCleanupDelay is how long a failed job's workspace is kept
// around before it is reclaimed. Long enough to inspect a partial
// download, short enough not to leak disk.
const DeferredCleanupDelay = 5 * time.Minute

// Workspace manages per-job directories under a single download root.
// Every job gets its own directory; cleanup is idempotent and never
// removes a directory that still holds unexpected files.
type Workspace struct {
	root string
	out  io.Writer

	mu     sync.Mutex
	timers map[string]*time.Timer
}

// WorkspaceOpts holds parameters for creating a Workspace.
type WorkspaceOpts struct {
	Root string    // download root directory, created if missing
	Out  io.Writer // defaults to os.Stdout
}

// NewWorkspace creates the download root and returns a Workspace over it.
func NewWorkspace(opts WorkspaceOpts) (*Workspace, error) {
	if opts.Root == "" {
		return nil, fmt.Errorf("job: workspace root is required")
	}
	if err := os.MkdirAll(opts.Root, 0o755); err != nil {
		return nil, fmt.Errorf("job: create workspace root: %w", err)
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	return &Workspace{
		root:   opts.Root,
		out:    out,
		timers: make(map[string]*time.Timer),
	}, nil
}

// Root returns the download root directory.
func (w *Workspace) Root() string {
	return w.root
}

// Create makes the directory for one job and returns its path.
func (w *Workspace) Create(jobID string) (string, error) {
	dir := filepath.Join(w.root, "job-"+jobID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("job: create workspace: %w", err)
	}
	return dir, nil
}

// Cleanup removes a job directory: first any artifacts the job produced,
// then the directory itself if it is empty. A directory that still holds
// files it did not expect is logged and left in place for the sweep.
// Safe to call more than once; a directory that is already gone is not
// an error.
func (w *Workspace) Cleanup(dir string) error {
	if dir == "" {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("job: read workspace: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("job: remove artifact: %w", err)
		}
	}

	// Remove the directory only when nothing is left inside. os.Remove
	// refuses non-empty directories, which is exactly the guarantee we
	// want here.
	if err := os.Remove(dir); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(w.out, "job: workspace %s not empty after cleanup, leaving for sweep\n", dir)
	}
	return nil
}

// Schedule arranges a deferred Cleanup of dir after delay, replacing any
// earlier schedule for the same job.
func (w *Workspace) Schedule(jobID, dir string, delay time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if old, ok := w.timers[jobID]; ok {
		old.Stop()
	}
	w.timers[jobID] = time.AfterFunc(delay, func() {
		w.mu.Lock()
		delete(w.timers, jobID)
		w.mu.Unlock()
		if err := w.Cleanup(dir); err != nil {
			fmt.Fprintf(w.out, "job: deferred cleanup of %s: %v\n", dir, err)
		}
	})
}

// Cancel drops a previously scheduled cleanup for the job, if any.
func (w *Workspace) Cancel(jobID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if timer, ok := w.timers[jobID]; ok {
		timer.Stop()
		delete(w.timers, jobID)
	}
}

// Shutdown stops all pending cleanup timers. Leftover directories are
// reclaimed by the next sweep.
func (w *Workspace) Shutdown() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for jobID, timer := range w.timers {
		timer.Stop()
		delete(w.timers, jobID)
	}
}

// Sweep removes abandoned job directories last modified before the
// cutoff, regardless of contents, and returns how many were reclaimed.
// This is the maintenance backstop behind Cleanup's conservatism.
func (w *Workspace) Sweep(olderThan time.Duration) (int, error) {
	entries, err := os.ReadDir(w.root)
	if err != nil {
		return 0, fmt.Errorf("job: read workspace root: %w", err)
	}
	cutoff := time.Now().Add(-olderThan)

	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), "job-") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(w.root, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			fmt.Fprintf(w.out, "job: sweep %s: %v\n", path, err)
			continue
		}
		removed++
	}
	return removed, nil
}
