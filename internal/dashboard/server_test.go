package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/vgrishin/courier/internal/db"
	"github.com/vgrishin/courier/internal/models"
	"github.com/vgrishin/courier/internal/registry"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

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

func get(t *testing.T, router http.Handler, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	router.ServeHTTP(w, req)
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode %s: %v (body %q)", path, err, w.Body.String())
	}
	return w, body
}

func TestStart_RequiredFields(t *testing.T) {
	gdb := openTestDB(t)
	ctx := context.Background()

	if err := Start(ctx, StartOpts{Registry: registry.New(gdb, nil)}); err == nil ||
		!strings.Contains(err.Error(), "db is required") {
		t.Errorf("missing db: err = %v", err)
	}
	if err := Start(ctx, StartOpts{DB: gdb}); err == nil ||
		!strings.Contains(err.Error(), "registry is required") {
		t.Errorf("missing registry: err = %v", err)
	}
}

func TestHealthz(t *testing.T) {
	gdb := openTestDB(t)
	router := newRouter(StartOpts{DB: gdb, Registry: registry.New(gdb, nil)})

	w, body := get(t, router, "/healthz")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if body["status"] != "ok" {
		t.Errorf("body = %v", body)
	}
}

func TestStats(t *testing.T) {
	gdb := openTestDB(t)
	reg := registry.New(gdb, nil)
	reg.Add(555)
	reg.Add(556)

	today := time.Now().UTC().Format("2006-01-02")
	gdb.Create(&models.DownloadCount{UserID: 1, Date: today, Count: 3})
	gdb.Create(&models.DownloadCount{UserID: 2, Date: today, Count: 2})
	// A row from another day must not count.
	gdb.Create(&models.DownloadCount{UserID: 1, Date: "2020-01-01", Count: 9})

	router := newRouter(StartOpts{
		DB:         gdb,
		Registry:   reg,
		ActiveJobs: func() int64 { return 4 },
	})

	w, body := get(t, router, "/api/stats")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if body["downloads_today"] != float64(5) {
		t.Errorf("downloads_today = %v, want 5", body["downloads_today"])
	}
	if body["admins"] != float64(2) {
		t.Errorf("admins = %v, want 2", body["admins"])
	}
	if body["active_jobs"] != float64(4) {
		t.Errorf("active_jobs = %v, want 4", body["active_jobs"])
	}
}

func TestStats_EmptyDatabase(t *testing.T) {
	gdb := openTestDB(t)
	router := newRouter(StartOpts{DB: gdb, Registry: registry.New(gdb, nil)})

	w, body := get(t, router, "/api/stats")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if body["downloads_today"] != float64(0) || body["active_jobs"] != float64(0) {
		t.Errorf("body = %v, want zeros", body)
	}
}

func TestAdmins(t *testing.T) {
	gdb := openTestDB(t)
	reg := registry.New(gdb, []int64{1})
	reg.Add(555)

	router := newRouter(StartOpts{DB: gdb, Registry: reg})
	w, body := get(t, router, "/api/admins")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	admins, ok := body["admins"].([]any)
	if !ok || len(admins) != 1 {
		t.Fatalf("admins = %v, want the one durable admin", body["admins"])
	}
	if admins[0] != float64(555) {
		t.Errorf("admins[0] = %v, want 555", admins[0])
	}
}

func TestAdmins_Empty(t *testing.T) {
	gdb := openTestDB(t)
	router := newRouter(StartOpts{DB: gdb, Registry: registry.New(gdb, nil)})

	_, body := get(t, router, "/api/admins")
	admins, ok := body["admins"].([]any)
	if !ok || len(admins) != 0 {
		t.Errorf("admins = %v, want empty array", body["admins"])
	}
}

func TestStart_ShutsDownOnContextCancel(t *testing.T) {
	gdb := openTestDB(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- Start(ctx, StartOpts{
			DB:       gdb,
			Registry: registry.New(gdb, nil),
			Addr:     "127.0.0.1:0",
		})
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("start returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
