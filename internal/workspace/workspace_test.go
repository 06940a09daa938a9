package workspace

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

var wantFiles = []string{
	"IDENTITY.md", "AGENTS.md", "HEARTBEAT.md", "SOUL.md",
	"USER.md", "TOOLS.md", "BOOTSTRAP.md", "MEMORY.md",
}

func TestCreateScaffold(t *testing.T) {
	dir := t.TempDir()
	err := Create(dir, Params{
		AgentName: "Scout",
		UserName:  "Sam",
		Timezone:  "Europe/Berlin",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	for _, sub := range []string{"sessions", "memory", "state", "cron", "skills"} {
		info, err := os.Stat(filepath.Join(dir, sub))
		if err != nil || !info.IsDir() {
			t.Fatalf("subdirectory %s missing: %v", sub, err)
		}
	}
	for _, name := range wantFiles {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Fatalf("file %s missing: %v", name, err)
		}
	}

	identity, _ := os.ReadFile(filepath.Join(dir, "IDENTITY.md"))
	if !strings.Contains(string(identity), "Scout") {
		t.Fatalf("agent name not rendered: %s", identity)
	}
	user, _ := os.ReadFile(filepath.Join(dir, "USER.md"))
	if !strings.Contains(string(user), "Sam") || !strings.Contains(string(user), "Europe/Berlin") {
		t.Fatalf("user params not rendered: %s", user)
	}
}

func TestCreateDefaults(t *testing.T) {
	dir := t.TempDir()
	if err := Create(dir, Params{}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	soul, _ := os.ReadFile(filepath.Join(dir, "SOUL.md"))
	if !strings.Contains(string(soul), "PocketClaw") {
		t.Fatalf("default agent name not rendered: %s", soul)
	}
	if !strings.Contains(string(soul), DefaultCommStyle) {
		t.Fatal("default communication style not rendered")
	}
	user, _ := os.ReadFile(filepath.Join(dir, "USER.md"))
	if !strings.Contains(string(user), "UTC") {
		t.Fatal("default timezone not rendered")
	}
}

func TestCreateNeverOverwrites(t *testing.T) {
	dir := t.TempDir()
	if err := Create(dir, Params{AgentName: "First"}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	custom := filepath.Join(dir, "IDENTITY.md")
	if err := os.WriteFile(custom, []byte("my own identity"), 0o644); err != nil {
		t.Fatalf("overwrite: %v", err)
	}

	if err := Create(dir, Params{AgentName: "Second"}); err != nil {
		t.Fatalf("second Create: %v", err)
	}
	got, _ := os.ReadFile(custom)
	if string(got) != "my own identity" {
		t.Fatalf("existing file was overwritten: %s", got)
	}
}
