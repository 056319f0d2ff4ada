package ps

import (
	"strings"
	"testing"

	"github.com/nickyhof/AdOrchDB/core"
)

func TestRemotes(t *testing.T) {
	persistence, err := NewMemoryPersistence()
	if err != nil {
		t.Fatalf("Failed to create persistence: %v", err)
	}

	if err := persistence.AddRemote("backup", "https://example.com/adorch.git"); err != nil {
		t.Fatalf("AddRemote failed: %v", err)
	}
	if err := persistence.AddRemote("backup", "https://example.com/other.git"); err == nil {
		t.Error("Expected error adding a duplicate remote")
	}

	remotes, err := persistence.ListRemotes()
	if err != nil {
		t.Fatalf("ListRemotes failed: %v", err)
	}
	if len(remotes) != 1 || remotes[0].Name != "backup" || remotes[0].URLs[0] != "https://example.com/adorch.git" {
		t.Errorf("Unexpected remotes: %+v", remotes)
	}

	if err := persistence.RemoveRemote("backup"); err != nil {
		t.Fatalf("RemoveRemote failed: %v", err)
	}
	remotes, err = persistence.ListRemotes()
	if err != nil {
		t.Fatalf("ListRemotes failed: %v", err)
	}
	if len(remotes) != 0 {
		t.Errorf("Expected no remotes, got %+v", remotes)
	}
}

func TestRemotesNeedHistory(t *testing.T) {
	persistence, err := NewMemoryPersistence(WithHistory(false))
	if err != nil {
		t.Fatalf("Failed to create persistence: %v", err)
	}

	if err := persistence.AddRemote("backup", "https://example.com/adorch.git"); err != ErrHistoryDisabled {
		t.Errorf("Expected ErrHistoryDisabled, got %v", err)
	}
	if err := persistence.Push("", nil); err != ErrHistoryDisabled {
		t.Errorf("Expected ErrHistoryDisabled, got %v", err)
	}
}

func TestPushBeforeFirstSave(t *testing.T) {
	persistence, err := NewMemoryPersistence()
	if err != nil {
		t.Fatalf("Failed to create persistence: %v", err)
	}

	err = persistence.Push("", nil)
	if err == nil || !strings.Contains(err.Error(), "nothing saved") {
		t.Errorf("Expected nothing saved error, got %v", err)
	}
}

func TestPushRejectsBadAuth(t *testing.T) {
	persistence, err := NewMemoryPersistence()
	if err != nil {
		t.Fatalf("Failed to create persistence: %v", err)
	}
	if _, err := persistence.Save([]byte("{}"), core.Identity{Name: "test", Email: "test@test.com"}, "seed"); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	for _, auth := range []*RemoteAuth{{Type: "kerberos"}, {Type: AuthTypeToken}} {
		if err := persistence.Push("origin", auth); err == nil || !strings.Contains(err.Error(), "auth") {
			t.Errorf("Expected auth error for %q, got %v", auth.Type, err)
		}
	}
}
