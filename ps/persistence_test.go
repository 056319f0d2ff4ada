package ps

import (
	"bytes"
	"testing"
	"time"

	"github.com/nickyhof/AdOrchDB/core"
)

var testIdentity = core.Identity{Name: "test", Email: "test@test.com"}

func TestMemoryPersistenceSaveLoad(t *testing.T) {
	persistence, err := NewMemoryPersistence()
	if err != nil {
		t.Fatalf("Failed to create persistence: %v", err)
	}

	data, err := persistence.Load()
	if err != nil {
		t.Fatalf("Load on empty store failed: %v", err)
	}
	if data != nil {
		t.Fatalf("Expected no snapshot, got %q", data)
	}

	txn, err := persistence.Save([]byte(`{"users":[]}`), testIdentity, "first")
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if txn.Id == "" {
		t.Error("Expected commit id for a save with history")
	}
	if txn.Author != "test <test@test.com>" {
		t.Errorf("Unexpected author %q", txn.Author)
	}

	data, err = persistence.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if string(data) != `{"users":[]}` {
		t.Errorf("Unexpected snapshot %q", data)
	}

	latest := persistence.LatestTransaction()
	if latest.Id != txn.Id {
		t.Errorf("Latest transaction %s, want %s", latest.Id, txn.Id)
	}
	if latest.Message != "first" {
		t.Errorf("Latest message %q, want first", latest.Message)
	}
}

func TestSaveOverwrites(t *testing.T) {
	persistence, err := NewMemoryPersistence()
	if err != nil {
		t.Fatalf("Failed to create persistence: %v", err)
	}

	for _, body := range []string{"one", "two", "three"} {
		if _, err := persistence.Save([]byte(body), testIdentity, body); err != nil {
			t.Fatalf("Save %s failed: %v", body, err)
		}
	}

	data, _ := persistence.Load()
	if string(data) != "three" {
		t.Errorf("Expected last save to win, got %q", data)
	}

	head, err := persistence.ReadFileDirect(DefaultSnapshotPath)
	if err != nil {
		t.Fatalf("ReadFileDirect failed: %v", err)
	}
	if string(head) != "three" {
		t.Errorf("HEAD snapshot %q, want three", head)
	}

	history, err := persistence.TransactionsSince(time.Time{})
	if err != nil {
		t.Fatalf("TransactionsSince failed: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("Expected 3 transactions, got %d", len(history))
	}
	if history[0].Message != "three" || history[2].Message != "one" {
		t.Errorf("Expected newest first, got %v", history)
	}

	older, err := persistence.TransactionsFrom(history[1].Id)
	if err != nil {
		t.Fatalf("TransactionsFrom failed: %v", err)
	}
	if len(older) != 2 {
		t.Errorf("Expected 2 transactions from the second save, got %d", len(older))
	}
}

func TestPersistenceWithoutHistory(t *testing.T) {
	persistence, err := NewMemoryPersistence(WithHistory(false))
	if err != nil {
		t.Fatalf("Failed to create persistence: %v", err)
	}

	if persistence.HasHistory() {
		t.Fatal("Expected history to be disabled")
	}

	txn, err := persistence.Save([]byte("x"), testIdentity, "save")
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if txn.Id != "" {
		t.Errorf("Expected empty id without history, got %s", txn.Id)
	}

	if _, err := persistence.TransactionsSince(time.Time{}); err != ErrHistoryDisabled {
		t.Errorf("Expected ErrHistoryDisabled, got %v", err)
	}
	if err := persistence.Snapshot("v1", nil); err != ErrHistoryDisabled {
		t.Errorf("Expected ErrHistoryDisabled, got %v", err)
	}
}

func TestFilePersistenceReopen(t *testing.T) {
	dir := t.TempDir()

	persistence, err := NewFilePersistence(dir, WithSnapshotPath("store/data.json"))
	if err != nil {
		t.Fatalf("Failed to create persistence: %v", err)
	}

	payload := []byte(`{"approvals":[]}`)
	txn, err := persistence.Save(payload, testIdentity, "save")
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	reopened, err := NewFilePersistence(dir, WithSnapshotPath("store/data.json"))
	if err != nil {
		t.Fatalf("Failed to reopen persistence: %v", err)
	}

	data, err := reopened.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !bytes.Equal(data, payload) {
		t.Errorf("Reopened snapshot %q, want %q", data, payload)
	}
	if reopened.LatestTransaction().Id != txn.Id {
		t.Error("Expected reopened history to keep the save")
	}
}

func TestNilPersistence(t *testing.T) {
	var persistence *Persistence

	if persistence.IsInitialized() {
		t.Error("Expected nil persistence to be uninitialized")
	}
	if _, err := persistence.Save(nil, testIdentity, ""); err != ErrNotInitialized {
		t.Errorf("Expected ErrNotInitialized, got %v", err)
	}
	if _, err := persistence.Load(); err != ErrNotInitialized {
		t.Errorf("Expected ErrNotInitialized, got %v", err)
	}
}
