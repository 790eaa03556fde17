package daemon

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/vgrishin/courier/internal/bridge"
	"github.com/vgrishin/courier/internal/config"
	"github.com/vgrishin/courier/internal/db"
	"github.com/vgrishin/courier/internal/fetch"
	"github.com/vgrishin/courier/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const rootID int64 = 1276928573

// writingFetcher produces a real artifact where the template points.
type writingFetcher struct{}

func (writingFetcher) Fetch(ctx context.Context, req fetch.Request) (string, error) {
	path := strings.Replace(req.OutputTemplate, "%(ext)s", "mp4", 1)
	return path, os.WriteFile(path, []byte("video"), 0o644)
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrate(gdb); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}
	return gdb
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		BotToken:          "test-token",
		DatabaseURL:       "unused",
		RegularDailyLimit: 5,
		AdminDailyLimit:   50,
		RootAdmins:        []int64{rootID},
		DownloadDir:       filepath.Join(t.TempDir(), "downloads"),
		Maintenance: config.MaintenanceConfig{
			Cron:          "10 0 * * *",
			RetentionDays: 90,
		},
	}
}

func newTestDaemon(t *testing.T) (*Daemon, *bridge.MockAdapter) {
	t.Helper()
	adapter := bridge.NewMockAdapter()
	d, err := New(Opts{
		DB:      openTestDB(t),
		Config:  testConfig(t),
		Adapter: adapter,
		Fetcher: writingFetcher{},
		Out:     &bytes.Buffer{},
	})
	if err != nil {
		t.Fatalf("new daemon: %v", err)
	}
	return d, adapter
}

func TestNew_RequiredFields(t *testing.T) {
	gdb := openTestDB(t)
	cfg := testConfig(t)
	adapter := bridge.NewMockAdapter()

	for _, tc := range []struct {
		name string
		opts Opts
	}{
		{"missing db", Opts{Config: cfg, Adapter: adapter, Fetcher: writingFetcher{}}},
		{"missing config", Opts{DB: gdb, Adapter: adapter, Fetcher: writingFetcher{}}},
		{"missing adapter", Opts{DB: gdb, Config: cfg, Fetcher: writingFetcher{}}},
		{"missing fetcher", Opts{DB: gdb, Config: cfg, Adapter: adapter}},
	} {
		if _, err := New(tc.opts); err == nil {
			t.Errorf("%s: expected error", tc.name)
		}
	}
}

func TestRun_PumpsMessagesAndShutsDown(t *testing.T) {
	d, adapter := newTestDaemon(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	adapter.SimulateInbound(bridge.InboundMessage{ChatID: 42, UserID: 7, Text: "https://youtube.com/watch?v=x"})

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) && len(adapter.Media()) == 0 {
		time.Sleep(10 * time.Millisecond)
	}
	if got := len(adapter.Media()); got != 1 {
		t.Fatalf("delivered %d videos, want 1", got)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop on context cancellation")
	}
	if d.ActiveJobs() != 0 {
		t.Errorf("active jobs = %d after shutdown", d.ActiveJobs())
	}
}

func TestRun_AdminFlowEndToEnd(t *testing.T) {
	d, adapter := newTestDaemon(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	adapter.SimulateInbound(bridge.InboundMessage{ChatID: rootID, UserID: rootID, Text: "Add admin"})
	adapter.SimulateInbound(bridge.InboundMessage{ChatID: rootID, UserID: rootID, Text: "555"})

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if ok, _ := d.Registry().IsAdmin(555); ok {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if ok, _ := d.Registry().IsAdmin(555); !ok {
		t.Fatal("admin was not added through the message pump")
	}

	cancel()
	<-done
}

// gatedFetcher blocks each fetch until released, exposing the window
// between shutdown starting and in-flight jobs finishing.
type gatedFetcher struct {
	started chan struct{}
	release chan struct{}
}

func (f *gatedFetcher) Fetch(ctx context.Context, req fetch.Request) (string, error) {
	close(f.started)
	<-f.release
	path := strings.Replace(req.OutputTemplate, "%(ext)s", "mp4", 1)
	return path, os.WriteFile(path, []byte("video"), 0o644)
}

func TestRun_InFlightJobFinishesAcrossShutdown(t *testing.T) {
	fetcher := &gatedFetcher{started: make(chan struct{}), release: make(chan struct{})}
	adapter := bridge.NewMockAdapter()
	d, err := New(Opts{
		DB:      openTestDB(t),
		Config:  testConfig(t),
		Adapter: adapter,
		Fetcher: fetcher,
		Out:     &bytes.Buffer{},
	})
	if err != nil {
		t.Fatalf("new daemon: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	adapter.SimulateInbound(bridge.InboundMessage{ChatID: 42, UserID: 7, Text: "https://youtube.com/watch?v=x"})
	select {
	case <-fetcher.started:
	case <-time.After(5 * time.Second):
		t.Fatal("fetch never started")
	}

	// Shutdown begins while the job is mid-fetch; the delivery must
	// still reach the platform before the adapter closes.
	cancel()
	close(fetcher.release)

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop")
	}
	if got := len(adapter.Media()); got != 1 {
		t.Errorf("delivered %d videos, want the in-flight job's delivery", got)
	}
}

func TestRunMaintenance_ExitsOnShutdown(t *testing.T) {
	d, _ := newTestDaemon(t)

	finished := make(chan struct{})
	go func() {
		d.runMaintenance(context.Background())
		close(finished)
	}()

	// The cron wait is hours away; shutdown must still stop the loop.
	d.shutdown()

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("maintenance loop survived shutdown")
	}
}

func TestRun_StopsWhenInboundCloses(t *testing.T) {
	d, adapter := newTestDaemon(t)

	done := make(chan error, 1)
	go func() { done <- d.Run(context.Background()) }()

	time.Sleep(50 * time.Millisecond)
	adapter.Close()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop when the inbound channel closed")
	}
}

func TestMaintain(t *testing.T) {
	gdb := openTestDB(t)
	cfg := testConfig(t)
	adapter := bridge.NewMockAdapter()
	d, err := New(Opts{
		DB:      gdb,
		Config:  cfg,
		Adapter: adapter,
		Fetcher: writingFetcher{},
		Out:     &bytes.Buffer{},
	})
	if err != nil {
		t.Fatalf("new daemon: %v", err)
	}

	// An expired quota row and a fresh one.
	if err := gdb.Create(&models.DownloadCount{UserID: 1, Date: "2020-01-01", Count: 3}).Error; err != nil {
		t.Fatal(err)
	}
	today := d.Tracker().Today()
	if err := gdb.Create(&models.DownloadCount{UserID: 2, Date: today, Count: 1}).Error; err != nil {
		t.Fatal(err)
	}

	// A stale abandoned workspace and a fresh one.
	staleDir := filepath.Join(cfg.DownloadDir, "job-stale")
	os.MkdirAll(staleDir, 0o755)
	old := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(staleDir, old, old); err != nil {
		t.Fatal(err)
	}
	freshDir := filepath.Join(cfg.DownloadDir, "job-fresh")
	os.MkdirAll(freshDir, 0o755)

	d.maintain()

	var rows []models.DownloadCount
	if err := gdb.Find(&rows).Error; err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].Date != today {
		t.Errorf("rows after purge = %+v, want only today's", rows)
	}
	if _, err := os.Stat(staleDir); !os.IsNotExist(err) {
		t.Error("stale workspace should be swept")
	}
	if _, err := os.Stat(freshDir); err != nil {
		t.Error("fresh workspace must survive maintenance")
	}
}

func TestNextCronDuration(t *testing.T) {
	if d := nextCronDuration("10 0 * * *"); d <= 0 || d > 24*time.Hour {
		t.Errorf("duration = %v, want within a day", d)
	}
	if d := nextCronDuration("not a cron"); d != 0 {
		t.Errorf("invalid expression should yield 0, got %v", d)
	}
}
