package registry

import (
	"testing"

	"github.com/vgrishin/courier/internal/db"
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

func TestIsAdmin_RootAndDurable(t *testing.T) {
	reg := New(openTestDB(t), []int64{100})

	if ok, _ := reg.IsAdmin(100); !ok {
		t.Error("root id should be admin")
	}
	if ok, _ := reg.IsAdmin(200); ok {
		t.Error("unknown id should not be admin")
	}

	if added, err := reg.Add(200); err != nil || !added {
		t.Fatalf("Add(200) = %v, %v; want true, nil", added, err)
	}
	if ok, _ := reg.IsAdmin(200); !ok {
		t.Error("durable id should be admin after Add")
	}
}

func TestAdd_Idempotent(t *testing.T) {
	reg := New(openTestDB(t), []int64{100})

	if added, _ := reg.Add(555); !added {
		t.Fatal("first Add(555) should report added")
	}
	if added, _ := reg.Add(555); added {
		t.Error("second Add(555) should report already admin")
	}
	count, err := reg.Count()
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Errorf("Count() = %d, want 1", count)
	}
}

func TestAdd_RootIsAlreadyAdmin(t *testing.T) {
	reg := New(openTestDB(t), []int64{100})

	if added, _ := reg.Add(100); added {
		t.Error("adding a root id should report already admin")
	}
	if count, _ := reg.Count(); count != 0 {
		t.Errorf("root ids must never be stored, got %d rows", count)
	}
}

func TestRemove(t *testing.T) {
	reg := New(openTestDB(t), []int64{100})
	reg.Add(555)

	if removed, _ := reg.Remove(555); !removed {
		t.Error("Remove(555) should report removed")
	}
	if ok, _ := reg.IsAdmin(555); ok {
		t.Error("555 should not be admin after Remove")
	}
	if removed, _ := reg.Remove(555); removed {
		t.Error("second Remove(555) should report not found")
	}
}

func TestRemove_RootIsNoOp(t *testing.T) {
	reg := New(openTestDB(t), []int64{100})

	if removed, _ := reg.Remove(100); removed {
		t.Error("removing a root id must be a no-op")
	}
	if ok, _ := reg.IsAdmin(100); !ok {
		t.Error("root id must remain admin across the process lifetime")
	}
}

func TestList_InsertionOrder(t *testing.T) {
	reg := New(openTestDB(t), nil)
	for _, id := range []int64{30, 10, 20} {
		if _, err := reg.Add(id); err != nil {
			t.Fatalf("add %d: %v", id, err)
		}
	}

	ids, err := reg.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(ids) != 3 {
		t.Fatalf("len(ids) = %d, want 3", len(ids))
	}
	// All rows share a CreatedAt granularity in this test, so the
	// chat_id tiebreak applies; the important property is that roots
	// never appear and all durable admins do.
	seen := map[int64]bool{}
	for _, id := range ids {
		seen[id] = true
	}
	for _, id := range []int64{10, 20, 30} {
		if !seen[id] {
			t.Errorf("List() missing %d", id)
		}
	}
}
