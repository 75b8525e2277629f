package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"bgmrules/internal/config"
)

func timeIn(loc *time.Location) (string, int) {
	return time.Date(2025, time.October, 1, 0, 0, 0, 0, loc).Zone()
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadTaskYAML(t *testing.T) {
	path := writeFile(t, "tasks.yaml", "description: 2025年10月新番\nsite: kansou\nroot_path: 'D:\\Anime'\n")
	task, err := config.LoadTask(path)
	if err != nil {
		t.Fatalf("LoadTask returned error: %v", err)
	}
	if task.Description != "2025年10月新番" {
		t.Fatalf("unexpected description %q", task.Description)
	}
	if task.RootPath != `D:\Anime` {
		t.Fatalf("unexpected root path %q", task.RootPath)
	}
}

func TestLoadTaskJSON(t *testing.T) {
	path := writeFile(t, "tasks.json", `{"description": "autumn", "site": "Kansou", "root_path": "D:\\Anime"}`)
	task, err := config.LoadTask(path)
	if err != nil {
		t.Fatalf("LoadTask returned error: %v", err)
	}
	if task.Site != config.SiteKansou {
		t.Fatalf("unexpected site %q", task.Site)
	}
	if task.RootPath != `D:\Anime` {
		t.Fatalf("unexpected root path %q", task.RootPath)
	}
}

func TestLoadTaskRejectsUnknownSite(t *testing.T) {
	path := writeFile(t, "tasks.yaml", "description: x\nsite: animelist\n")
	if _, err := config.LoadTask(path); err == nil {
		t.Fatal("expected error for unsupported site")
	}
}

func TestRootPathOr(t *testing.T) {
	var task *config.Task
	if got := task.RootPathOr("fallback"); got != "fallback" {
		t.Fatalf("unexpected root path %q", got)
	}
	task = &config.Task{RootPath: "R:"}
	if got := task.RootPathOr("fallback"); got != "R:" {
		t.Fatalf("unexpected root path %q", got)
	}
}
