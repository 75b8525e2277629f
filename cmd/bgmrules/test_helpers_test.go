package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type cliTestEnv struct {
	baseDir    string
	configPath string
	outputDir  string
	cacheDir   string
}

type testEndpoints struct {
	listingURL string
	bangumiURL string
	llmURL     string
}

func setupCLITestEnv(t *testing.T, endpoints testEndpoints) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	homeDir := filepath.Join(base, "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)
	for _, key := range []string{"BGMRULES_LLM_API_KEY", "DEEPSEEK_API_KEY"} {
		t.Setenv(key, "")
	}

	env := &cliTestEnv{
		baseDir:    base,
		configPath: filepath.Join(base, "config.toml"),
		outputDir:  filepath.Join(base, "out"),
		cacheDir:   filepath.Join(base, "cache"),
	}
	writeTestConfig(t, env, endpoints)
	return env
}

func writeTestConfig(t *testing.T, env *cliTestEnv, endpoints testEndpoints) {
	t.Helper()
	var b strings.Builder
	fmt.Fprintf(&b, "[paths]\noutput_dir = %q\nlog_dir = %q\ncache_dir = %q\n\n",
		env.outputDir, filepath.Join(env.baseDir, "logs"), env.cacheDir)
	if endpoints.listingURL != "" {
		fmt.Fprintf(&b, "[listing]\nurl = %q\n\n", endpoints.listingURL)
	}
	if endpoints.bangumiURL != "" {
		fmt.Fprintf(&b, "[bangumi]\nbase_url = %q\nuser_agent = \"bgmrules-test/1.0\"\nrequests_per_second = 100\n\n", endpoints.bangumiURL)
	}
	if endpoints.llmURL != "" {
		fmt.Fprintf(&b, "[llm]\nprovider = \"deepseek\"\napi_key = \"test-key\"\nbase_url = %q\nretry_attempts = 1\n\n", endpoints.llmURL)
	}
	b.WriteString("[matching]\nbatch_interval_ms = 0\n\n[title_cleaning]\nbatch_interval_ms = 0\n\n")
	b.WriteString("[rules]\nroot_path = \"D:\\\\Anime\"\nfeeds = [\"https://example.org/rss.xml\"]\n\n")
	b.WriteString("[logging]\nlevel = \"error\"\n")
	if err := os.WriteFile(env.configPath, []byte(b.String()), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
