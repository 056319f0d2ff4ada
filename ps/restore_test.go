package ps

import (
	"testing"
)

func TestSnapshot(t *testing.T) {
	persistence, err := NewMemoryPersistence()
	if err != nil {
		t.Fatalf("Failed to create persistence: %v", err)
	}

	if err := persistence.Snapshot("empty", nil); err == nil {
		t.Error("Expected snapshot of an empty history to fail")
	}

	if _, err := persistence.Save([]byte("v1"), testIdentity, "v1"); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if err := persistence.Snapshot("v1.0.0", nil); err != nil {
		t.Fatalf("Failed to create snapshot: %v", err)
	}
	if err := persistence.Snapshot("v1.0.0", nil); err == nil {
		t.Error("Expected duplicate snapshot name to fail")
	}

	names, err := persistence.Snapshots()
	if err != nil {
		t.Fatalf("Failed to list snapshots: %v", err)
	}
	if len(names) != 1 || names[0] != "v1.0.0" {
		t.Errorf("Unexpected snapshots %v", names)
	}
}

func TestRecover(t *testing.T) {
	persistence, err := NewMemoryPersistence()
	if err != nil {
		t.Fatalf("Failed to create persistence: %v", err)
	}

	first, err := persistence.Save([]byte("before"), testIdentity, "before")
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if _, err := persistence.Save([]byte("after"), testIdentity, "after"); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if err := persistence.Snapshot("before-change", &first); err != nil {
		t.Fatalf("Failed to create snapshot at transaction: %v", err)
	}

	txn, err := persistence.Recover("before-change", testIdentity)
	if err != nil {
		t.Fatalf("Failed to recover to snapshot: %v", err)
	}

	data, _ := persistence.Load()
	if string(data) != "before" {
		t.Errorf("Expected recovered snapshot, got %q", data)
	}

	if persistence.LatestTransaction().Id != txn.Id {
		t.Error("Expected recover to create a new transaction")
	}

	history, _ := persistence.TransactionsFrom(txn.Id)
	if len(history) != 3 {
		t.Errorf("Expected history to be kept, got %d transactions", len(history))
	}
}

func TestRecoverUnknownSnapshot(t *testing.T) {
	persistence, err := NewMemoryPersistence()
	if err != nil {
		t.Fatalf("Failed to create persistence: %v", err)
	}

	if _, err := persistence.Recover("missing", testIdentity); err == nil {
		t.Error("Expected error for unknown snapshot")
	}
}

func TestRestore(t *testing.T) {
	persistence, err := NewMemoryPersistence()
	if err != nil {
		t.Fatalf("Failed to create persistence: %v", err)
	}

	first, _ := persistence.Save([]byte("one"), testIdentity, "one")
	second, _ := persistence.Save([]byte("two"), testIdentity, "two")

	data, err := persistence.SnapshotAt(first)
	if err != nil {
		t.Fatalf("SnapshotAt failed: %v", err)
	}
	if string(data) != "one" {
		t.Errorf("SnapshotAt(first) = %q", data)
	}

	txn, err := persistence.Restore(first, testIdentity)
	if err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	if txn.Id == first.Id || txn.Id == second.Id {
		t.Error("Expected restore to be recorded as a new transaction")
	}

	data, _ = persistence.Load()
	if string(data) != "one" {
		t.Errorf("Expected restored snapshot, got %q", data)
	}
}
