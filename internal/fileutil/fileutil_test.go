package fileutil

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestWriteJSONIndentsWithoutEscaping(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "out.json")
	value := map[string]string{"name": "<異世界> & co"}

	if err := WriteJSON(path, value); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	want := "{\n  \"name\": \"<異世界> & co\"\n}\n"
	if string(data) != want {
		t.Fatalf("content mismatch: got %q, want %q", data, want)
	}

	var back map[string]string
	if err := ReadJSON(path, &back); err != nil {
		t.Fatal(err)
	}
	if back["name"] != value["name"] {
		t.Fatalf("round trip mismatch: %q", back["name"])
	}
}

func TestWriteAtomicLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.json")

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := WriteAtomic(path, []byte(strings.Repeat("x", i+1)), 0o600); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".tmp") {
			t.Fatalf("temp file left behind: %s", entry.Name())
		}
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("unexpected mode %v", info.Mode().Perm())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Trim(string(data), "x") != "" || len(data) == 0 {
		t.Fatalf("unexpected content %q", data)
	}
}

func TestReadJSONReportsDecodeErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte("{"), 0o644); err != nil {
		t.Fatal(err)
	}
	var target map[string]any
	err := ReadJSON(path, &target)
	if err == nil || !strings.Contains(err.Error(), "decode") {
		t.Fatalf("expected decode error, got %v", err)
	}
}
