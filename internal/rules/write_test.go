package rules

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"bgmrules/internal/anime"
)

func TestWriteFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out", "qb_download_rules.json")
	result := Generate([]anime.Resolution{{Work: anime.Work{CleanedTitle: "作品 <A&B>"}}}, Options{RootPath: "/srv", Season: "S"})
	if err := WriteFile(path, result.Rules); err != nil {
		t.Fatalf("WriteFile returned error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	text := string(data)
	for _, fragment := range []string{`"mustContain"`, `"torrentParams"`, `"addPaused": null`, `"previouslyMatchedEpisodes": []`, "<A&B>"} {
		if !strings.Contains(text, fragment) {
			t.Fatalf("output missing %s:\n%s", fragment, text)
		}
	}
	back, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile returned error: %v", err)
	}
	if len(back) != 1 {
		t.Fatalf("expected 1 rule, got %d", len(back))
	}
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".tmp") {
			t.Fatalf("temp file left behind: %s", entry.Name())
		}
	}
}

func TestWriteFileEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.json")
	if err := WriteFile(path, nil); err != nil {
		t.Fatalf("WriteFile returned error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if strings.TrimSpace(string(data)) != "{}" {
		t.Fatalf("expected empty object, got %s", data)
	}
}
