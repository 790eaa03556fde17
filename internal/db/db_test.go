package db

import (
	"testing"

	"github.com/vgrishin/courier/internal/models"
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
	return gdb
}

func TestAutoMigrate(t *testing.T) {
	gdb := openTestDB(t)
	if err := AutoMigrate(gdb); err != nil {
		t.Fatalf("auto-migrate: %v", err)
	}
	for _, m := range AllModels() {
		if !gdb.Migrator().HasTable(m) {
			t.Errorf("missing table for %T", m)
		}
	}
}

func TestAutoMigrate_Idempotent(t *testing.T) {
	gdb := openTestDB(t)
	if err := AutoMigrate(gdb); err != nil {
		t.Fatalf("first auto-migrate: %v", err)
	}
	if err := AutoMigrate(gdb); err != nil {
		t.Fatalf("second auto-migrate: %v", err)
	}
}

func TestDownloadCount_CompositeKey(t *testing.T) {
	gdb := openTestDB(t)
	if err := AutoMigrate(gdb); err != nil {
		t.Fatalf("auto-migrate: %v", err)
	}

	row := models.DownloadCount{UserID: 7, Date: "2026-08-31", Count: 1}
	if err := gdb.Create(&row).Error; err != nil {
		t.Fatalf("create: %v", err)
	}
	// Same user, different date is a separate row.
	other := models.DownloadCount{UserID: 7, Date: "2026-09-01", Count: 1}
	if err := gdb.Create(&other).Error; err != nil {
		t.Fatalf("create second date: %v", err)
	}
	// Same (user, date) violates the composite key.
	dup := models.DownloadCount{UserID: 7, Date: "2026-08-31", Count: 1}
	if err := gdb.Create(&dup).Error; err == nil {
		t.Fatal("expected composite key violation")
	}
}
