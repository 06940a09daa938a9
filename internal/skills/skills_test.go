package skills

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/basket/pocketclaw/internal/bus"
	"github.com/basket/pocketclaw/internal/events"
)

const validManifest = `name: web-search
description: Search the web
version: 1.0.0
author: tester
tags: [search, web]
tools:
  - name: search
    description: Run a web search
    kind: shell
    command: search.sh
  - name: summarize
    kind: shell
    command: summarize.sh
`

func TestParseManifest(t *testing.T) {
	skill, err := ParseManifest([]byte(validManifest))
	if err != nil {
		t.Fatalf("ParseManifest: %v", err)
	}
	if skill.Name != "web-search" || skill.Version != "1.0.0" || skill.Author != "tester" {
		t.Fatalf("skill = %+v", skill)
	}
	if !reflect.DeepEqual(skill.Tags, []string{"search", "web"}) {
		t.Fatalf("tags = %v", skill.Tags)
	}
	if got := skill.ToolNames(); !reflect.DeepEqual(got, []string{"search", "summarize"}) {
		t.Fatalf("tool names = %v", got)
	}
	if skill.Tools[0].Kind != "shell" || skill.Tools[0].Command != "search.sh" {
		t.Fatalf("tool = %+v", skill.Tools[0])
	}
}

func TestParseManifestRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"missing version":   "name: a\ndescription: d\n",
		"bad name":          "name: '../evil'\ndescription: d\nversion: '1'\n",
		"unknown field":     "name: a\ndescription: d\nversion: '1'\nbogus: true\n",
		"tool without name": "name: a\ndescription: d\nversion: '1'\ntools:\n  - command: x\n",
		"empty":             "",
		"not yaml":          "{{{",
	}
	for label, doc := range cases {
		if _, err := ParseManifest([]byte(doc)); err == nil {
			t.Fatalf("%s: expected error", label)
		}
	}
}

func writeSkill(t *testing.T, root, dir, manifest string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, dir, ManifestName), []byte(manifest), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
}

func TestLoaderList(t *testing.T) {
	root := t.TempDir()
	writeSkill(t, root, "zeta", "name: zeta\ndescription: z\nversion: '1'\n")
	writeSkill(t, root, "alpha", validManifest)
	writeSkill(t, root, "broken", "name: broken\n")
	if err := os.WriteFile(filepath.Join(root, "stray.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	loader := NewLoader(root, slog.New(slog.DiscardHandler))
	skills, err := loader.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(skills) != 2 {
		t.Fatalf("got %d skills, want 2: %+v", len(skills), skills)
	}
	if skills[0].Dir != "alpha" || skills[1].Dir != "zeta" {
		t.Fatalf("order = %s, %s", skills[0].Dir, skills[1].Dir)
	}
	if skills[0].Name != "web-search" {
		t.Fatalf("name = %s", skills[0].Name)
	}
}

func TestLoaderListMissingDir(t *testing.T) {
	loader := NewLoader(filepath.Join(t.TempDir(), "absent"), slog.New(slog.DiscardHandler))
	skills, err := loader.List()
	if err != nil || skills != nil {
		t.Fatalf("got %v, %v", skills, err)
	}
}

func TestLoaderTools(t *testing.T) {
	root := t.TempDir()
	writeSkill(t, root, "search", validManifest)
	loader := NewLoader(root, slog.New(slog.DiscardHandler))

	tools, err := loader.Tools("web-search")
	if err != nil || len(tools) != 2 {
		t.Fatalf("Tools = %v, %v", tools, err)
	}
	// Directory name works as a fallback lookup key.
	if _, err := loader.Tools("search"); err != nil {
		t.Fatalf("Tools by dir: %v", err)
	}
	if _, err := loader.Tools("nope"); err == nil {
		t.Fatal("expected not-found error")
	}
}

func TestInstallerLocalInstallAndRemove(t *testing.T) {
	src := t.TempDir()
	if err := os.WriteFile(filepath.Join(src, ManifestName), []byte(validManifest), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(src, ".git"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	skillsDir := t.TempDir()
	installer := NewInstaller(skillsDir, slog.New(slog.DiscardHandler))

	name, err := installer.Install(context.Background(), src)
	if err != nil {
		t.Fatalf("Install: %v", err)
	}
	if name != "web-search" {
		t.Fatalf("name = %s", name)
	}
	if _, err := os.Stat(filepath.Join(skillsDir, "web-search", ManifestName)); err != nil {
		t.Fatalf("manifest not installed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(skillsDir, "web-search", ".git")); !os.IsNotExist(err) {
		t.Fatal("VCS metadata copied into install")
	}

	if _, err := installer.Install(context.Background(), src); err == nil ||
		!strings.Contains(err.Error(), "already installed") {
		t.Fatalf("second install: %v", err)
	}

	if err := installer.Remove("web-search"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := installer.Remove("web-search"); err == nil ||
		!strings.Contains(err.Error(), "not installed") {
		t.Fatalf("second remove: %v", err)
	}
}

func TestInstallerRejectsBadSources(t *testing.T) {
	installer := NewInstaller(t.TempDir(), slog.New(slog.DiscardHandler))
	if _, err := installer.Install(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty source")
	}
	if _, err := installer.Install(context.Background(), filepath.Join(t.TempDir(), "absent")); err == nil {
		t.Fatal("expected error for missing source dir")
	}
	noManifest := t.TempDir()
	if _, err := installer.Install(context.Background(), noManifest); err == nil {
		t.Fatal("expected error for missing manifest")
	}
}

func TestRemoveRejectsTraversal(t *testing.T) {
	installer := NewInstaller(t.TempDir(), slog.New(slog.DiscardHandler))
	for _, name := range []string{"", ".", "..", "../other", "a/b", `a\b`} {
		if err := installer.Remove(name); err == nil ||
			!strings.Contains(err.Error(), "invalid skill name") && !strings.Contains(err.Error(), "empty skill name") {
			t.Fatalf("Remove(%q) = %v", name, err)
		}
	}
}

func TestWatcherPublishesOnManifestChange(t *testing.T) {
	dir := t.TempDir()
	eventBus := bus.New()
	bridge := events.NewBridge(nil)
	watcher := NewWatcher(WatcherConfig{
		Dir:      dir,
		Bus:      eventBus,
		Events:   bridge,
		Logger:   slog.New(slog.DiscardHandler),
		Debounce: 10 * time.Millisecond,
	})
	sub := eventBus.Subscribe(bus.TopicSkillsChanged)
	defer eventBus.Unsubscribe(sub)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- watcher.Run(ctx) }()

	// Give the watcher time to register before mutating the tree.
	time.Sleep(100 * time.Millisecond)
	writeSkill(t, dir, "fresh", validManifest)

	select {
	case ev := <-sub.Ch():
		if ev.Topic != bus.TopicSkillsChanged {
			t.Fatalf("topic = %s", ev.Topic)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no skills change published")
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run returned %v, want nil on cancellation", err)
	}
	if !strings.Contains(bridge.Recent(10), `"channel":"skills"`) {
		t.Fatal("change event not recorded")
	}
}

func TestWatcherIgnoresIrrelevantFiles(t *testing.T) {
	dir := t.TempDir()
	eventBus := bus.New()
	watcher := NewWatcher(WatcherConfig{
		Dir:      dir,
		Bus:      eventBus,
		Logger:   slog.New(slog.DiscardHandler),
		Debounce: 10 * time.Millisecond,
	})
	sub := eventBus.Subscribe(bus.TopicSkillsChanged)
	defer eventBus.Unsubscribe(sub)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- watcher.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case ev := <-sub.Ch():
		t.Fatalf("unexpected publish: %+v", ev)
	case <-time.After(300 * time.Millisecond):
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run returned %v", err)
	}
}
