package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nickyhof/AdOrchDB"
	"github.com/nickyhof/AdOrchDB/config"
	"github.com/nickyhof/AdOrchDB/core"
	"github.com/nickyhof/AdOrchDB/ps"
	"github.com/nickyhof/AdOrchDB/workflow"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"
)

func setupTestCLI(t *testing.T) (*CLI, *bytes.Buffer) {
	persistence, err := ps.NewMemoryPersistence()
	if err != nil {
		t.Fatalf("Failed to create persistence: %v", err)
	}

	engine, err := AdOrchDB.Open(persistence).Engine(core.Identity{
		Name:  "test",
		Email: "test@test.com",
	})
	if err != nil {
		t.Fatalf("Failed to open engine: %v", err)
	}

	var out bytes.Buffer
	return &CLI{
		engine:  engine,
		out:     &out,
		history: make([]string, 0),
	}, &out
}

// runCommand executes the root command in a scratch directory
func runCommand(t *testing.T, args ...string) (string, error) {
	t.Chdir(t.TempDir())
	t.Setenv("LOG_LEVEL", "error")

	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return out.String(), err
}

func TestCLIExecuteInsertAndSelect(t *testing.T) {
	cli, out := setupTestCLI(t)

	cli.execute("INSERT INTO campaigns (title, status) VALUES ('Spring', 'active')")
	if !strings.Contains(out.String(), "id 1") {
		t.Errorf("Expected inserted id in output, got %q", out.String())
	}

	out.Reset()
	cli.execute("SELECT * FROM campaigns WHERE status = 'active'")
	if !strings.Contains(out.String(), "Spring") {
		t.Errorf("Expected row in output, got %q", out.String())
	}
	if !strings.Contains(out.String(), "1 rows") {
		t.Errorf("Expected row count in output, got %q", out.String())
	}
}

func TestCLIExecuteError(t *testing.T) {
	cli, out := setupTestCLI(t)

	cli.execute("SELECT name")
	if !strings.Contains(out.String(), "Error") {
		t.Errorf("Expected error in output, got %q", out.String())
	}

	out.Reset()
	cli.execute("SELECT * FROM nowhere")
	if strings.Contains(out.String(), "Error") || !strings.Contains(out.String(), "0 rows") {
		t.Errorf("Expected an unknown collection to read as empty, got %q", out.String())
	}
}

func TestCLIRunMultiLine(t *testing.T) {
	cli, out := setupTestCLI(t)

	input := "INSERT INTO users (name)\nVALUES ('Ada');\n.tables\n.quit\n"
	cli.run(strings.NewReader(input))

	users, err := cli.engine.LookupAll("SELECT * FROM users")
	if err != nil {
		t.Fatalf("Failed to read users: %v", err)
	}
	if len(users) != 1 {
		t.Errorf("Expected 1 user, got %d", len(users))
	}
	if len(cli.history) != 1 || cli.history[0] != "INSERT INTO users (name) VALUES ('Ada');" {
		t.Errorf("Unexpected history: %v", cli.history)
	}
	if !strings.Contains(out.String(), "approval_steps") {
		t.Errorf("Expected collections listing, got %q", out.String())
	}
	if !strings.Contains(out.String(), "Goodbye") {
		t.Error("Expected goodbye on .quit")
	}
}

func TestCLIRunEndOfInput(t *testing.T) {
	cli, out := setupTestCLI(t)

	cli.run(strings.NewReader(""))
	if !strings.Contains(out.String(), "Goodbye") {
		t.Error("Expected goodbye at end of input")
	}
}

func TestCLIHandleCommand(t *testing.T) {
	cli, out := setupTestCLI(t)

	tests := []struct {
		input string
		quit  bool
		want  string
	}{
		{".help", false, "Special Commands"},
		{".version", false, "AdOrchDB version"},
		{".history", false, "No command history"},
		{".import", false, "Usage"},
		{".nope", false, "Unknown command"},
		{".exit", true, "Goodbye"},
	}

	for _, tt := range tests {
		out.Reset()
		if quit := cli.handleCommand(tt.input); quit != tt.quit {
			t.Errorf("%s: expected quit=%v, got %v", tt.input, tt.quit, quit)
		}
		if !strings.Contains(out.String(), tt.want) {
			t.Errorf("%s: expected %q in output, got %q", tt.input, tt.want, out.String())
		}
	}
}

func TestCLIHistory(t *testing.T) {
	cli, out := setupTestCLI(t)

	cli.addToHistory("SELECT * FROM users;")
	cli.addToHistory("SELECT * FROM users;")
	cli.addToHistory("SELECT * FROM assets;")

	if len(cli.history) != 2 {
		t.Fatalf("Expected consecutive duplicates dropped, got %v", cli.history)
	}

	cli.printHistory()
	if !strings.Contains(out.String(), "SELECT * FROM assets;") {
		t.Errorf("Expected history listing, got %q", out.String())
	}
}

func TestCLIHistoryFile(t *testing.T) {
	cli, _ := setupTestCLI(t)
	cli.historyFile = filepath.Join(t.TempDir(), "history")

	cli.addToHistory("SELECT * FROM users;")
	cli.addToHistory("SELECT * FROM assets;")
	cli.saveHistory()

	reloaded, _ := setupTestCLI(t)
	reloaded.historyFile = cli.historyFile
	reloaded.loadHistory()

	if len(reloaded.history) != 2 || reloaded.history[1] != "SELECT * FROM assets;" {
		t.Errorf("Unexpected reloaded history: %v", reloaded.history)
	}
}

func TestPrintBanner(t *testing.T) {
	cli, out := setupTestCLI(t)

	cli.printBanner()
	if !strings.Contains(out.String(), "AdOrchDB v"+Version) {
		t.Errorf("Expected version in banner, got %q", out.String())
	}
	if !strings.Contains(out.String(), "in-memory store") {
		t.Error("Expected in-memory notice")
	}
}

func TestGetPrompt(t *testing.T) {
	cli, _ := setupTestCLI(t)

	if !strings.Contains(cli.getPrompt(false), "adorch>") {
		t.Error("Expected main prompt")
	}
	if !strings.Contains(cli.getPrompt(true), "...>") {
		t.Error("Expected continuation prompt")
	}
}

func TestSplitStatements(t *testing.T) {
	content := `-- seed data
INSERT INTO users (name) VALUES ('a;b');
INSERT INTO users (name) VALUES ("c");

SELECT * FROM users`

	statements := splitStatements(content)
	want := []string{
		"INSERT INTO users (name) VALUES ('a;b')",
		`INSERT INTO users (name) VALUES ("c")`,
		"SELECT * FROM users",
	}

	if len(statements) != len(want) {
		t.Fatalf("Expected %d statements, got %d: %v", len(want), len(statements), statements)
	}
	for i := range want {
		if statements[i] != want[i] {
			t.Errorf("Statement %d: expected %q, got %q", i, want[i], statements[i])
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("Expected short unchanged, got %q", got)
	}
	if got := truncate("a\nmuch longer statement", 10); got != "a much ..." {
		t.Errorf("Expected truncated, got %q", got)
	}
}

func TestParseParam(t *testing.T) {
	tests := []struct {
		arg  string
		want any
	}{
		{"42", int64(42)},
		{"1.5", 1.5},
		{"true", true},
		{"FALSE", false},
		{"null", nil},
		{"'42'", "42"},
		{"pending", "pending"},
	}

	for _, tt := range tests {
		if got := parseParam(tt.arg); got != tt.want {
			t.Errorf("parseParam(%q) = %#v, want %#v", tt.arg, got, tt.want)
		}
	}
}

func TestImportFile(t *testing.T) {
	cli, out := setupTestCLI(t)

	file := filepath.Join(t.TempDir(), "seed.sql")
	content := "INSERT INTO users (name) VALUES ('Ada');\nINSERT INTO nowhere (name) VALUES ('x');\nUPDATE users name = 'x';\nSELECT * FROM users;"
	if err := os.WriteFile(file, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write seed: %v", err)
	}

	if err := importFile(out, cli.engine, file); err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if !strings.Contains(out.String(), "3 succeeded, 1 failed") {
		t.Errorf("Unexpected import summary: %q", out.String())
	}
	if !strings.Contains(out.String(), "(0 affected)") {
		t.Errorf("Expected the unknown collection insert to affect nothing: %q", out.String())
	}

	if err := importFile(out, cli.engine, filepath.Join(t.TempDir(), "missing.sql")); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestRootCommandRegistersSubcommands(t *testing.T) {
	cmd := NewRootCommand()

	for _, name := range []string{"query", "shell", "approvals", "snapshots", "monitor"} {
		found, _, err := cmd.Find([]string{name})
		if err != nil || found.Name() != name {
			t.Errorf("Expected subcommand %s", name)
		}
	}
}

func TestRootCommandRejectsFormat(t *testing.T) {
	_, err := runCommand(t, "--memory", "--format", "yaml", "approvals", "stats")
	if err == nil || !strings.Contains(err.Error(), "invalid format") {
		t.Errorf("Expected invalid format error, got %v", err)
	}
}

func TestApprovalsCreateCommand(t *testing.T) {
	out, err := runCommand(t, "--memory", "--format", "json", "approvals", "create", "--approvers", "3,4", "--priority", "high")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	var created map[string]int64
	if err := json.Unmarshal([]byte(out), &created); err != nil {
		t.Fatalf("Expected JSON output, got %q: %v", out, err)
	}
	if created["id"] != 1 {
		t.Errorf("Expected id 1, got %d", created["id"])
	}
}

func TestApprovalsCreateCommandRejectsEmptySubject(t *testing.T) {
	_, err := runCommand(t, "--memory", "approvals", "create", "--approvers", "3", "--asset", "1", "--campaign", "2")
	if workflow.CodeOf(err) != workflow.ErrCodeInvalidSubject {
		t.Errorf("Expected invalid subject, got %v", err)
	}
}

func TestQueryCommand(t *testing.T) {
	out, err := runCommand(t, "--memory", "query", "INSERT INTO campaigns (title) VALUES (?)", "Spring")
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if !strings.Contains(out, "1 record(s) affected, id 1") {
		t.Errorf("Unexpected output: %q", out)
	}

	if _, err := runCommand(t, "--memory", "query"); err == nil {
		t.Error("Expected error without a statement")
	}
}

func TestMetricsServer(t *testing.T) {
	server := newMetricsServer(&config.Config{MetricsAddr: "127.0.0.1:0"})

	for _, path := range []string{"/healthz", "/metrics"} {
		recorder := httptest.NewRecorder()
		server.Handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, path, nil))
		if recorder.Code != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", path, recorder.Code)
		}
	}

	lc := fxtest.NewLifecycle(t)
	startMetricsServer(lc, server, zap.NewNop())
	lc.RequireStart()
	lc.RequireStop()
}

func TestStartSLAMonitor(t *testing.T) {
	cli, _ := setupTestCLI(t)
	engine := workflow.NewEngine(cli.engine)

	if _, err := engine.Create(context.Background(), workflow.CreateRequest{Approvers: []int64{7}, SLAHours: 1}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	monitor, err := workflow.NewSLAMonitor(engine, "", 0, nil)
	if err != nil {
		t.Fatalf("Failed to build monitor: %v", err)
	}

	lc := fxtest.NewLifecycle(t)
	startSLAMonitor(lc, monitor, zap.NewNop())
	lc.RequireStart()
	if monitor.Last() != 1 {
		t.Errorf("Expected an initial check on start, got %d", monitor.Last())
	}
	lc.RequireStop()
}

func TestSnapshotsExportImport(t *testing.T) {
	source := t.TempDir()
	target := t.TempDir()
	mirror := filepath.Join(t.TempDir(), "mirror", "data.json")

	if _, err := runCommand(t, "--data-dir", source, "query", "INSERT INTO campaigns (title) VALUES (?)", "Spring"); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if _, err := runCommand(t, "--data-dir", source, "snapshots", "export", mirror); err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if _, err := runCommand(t, "--data-dir", target, "snapshots", "import", mirror); err != nil {
		t.Fatalf("Import failed: %v", err)
	}

	out, err := runCommand(t, "--data-dir", target, "query", "SELECT * FROM campaigns")
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if !strings.Contains(out, "Spring") {
		t.Errorf("Expected imported campaign, got %q", out)
	}

	t.Setenv("ADORCH_MIRROR_URL", "")
	if _, err := runCommand(t, "--data-dir", target, "snapshots", "export"); err == nil {
		t.Error("Expected error without a location")
	}
}

func TestSnapshotsTagAndRecover(t *testing.T) {
	dir := t.TempDir()

	if _, err := runCommand(t, "--data-dir", dir, "query", "INSERT INTO campaigns (title) VALUES (?)", "Spring"); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if _, err := runCommand(t, "--data-dir", dir, "snapshots", "tag", "launch"); err != nil {
		t.Fatalf("Tag failed: %v", err)
	}
	if _, err := runCommand(t, "--data-dir", dir, "query", "DELETE FROM campaigns WHERE id = ?", "1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	out, err := runCommand(t, "--data-dir", dir, "snapshots", "list")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if !strings.Contains(out, "launch") {
		t.Errorf("Expected snapshot name, got %q", out)
	}

	if _, err := runCommand(t, "--data-dir", dir, "snapshots", "recover", "launch"); err != nil {
		t.Fatalf("Recover failed: %v", err)
	}

	out, err = runCommand(t, "--data-dir", dir, "query", "SELECT COUNT(*) as count FROM campaigns")
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if !strings.Contains(out, "| 1") {
		t.Errorf("Expected the campaign back, got %q", out)
	}
}
