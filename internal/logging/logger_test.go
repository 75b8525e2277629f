package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"bgmrules/internal/config"
	"bgmrules/internal/logging"
	"bgmrules/internal/services"
)

func TestNewFromConfigWritesLogFile(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()
	cfg.Logging.Level = "info"

	logger, err := logging.NewFromConfig(&cfg)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.Info("hello from config")

	content, err := os.ReadFile(filepath.Join(cfg.Paths.LogDir, "bgmrules.log"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), "hello from config") {
		t.Fatalf("expected message in log file, got %q", content)
	}
}

func TestConsoleLoggerOmitsCallerForInfo(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", Writer: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("message without caller")
	if strings.Contains(buf.String(), ".go:") {
		t.Fatalf("expected no caller information in info logs, got %q", buf.String())
	}
}

func TestConsoleLoggerIncludesCallerForDebug(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: "console", Level: "debug", Writer: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("message with caller")
	if !strings.Contains(buf.String(), "logger_test.go:") {
		t.Fatalf("expected caller information in debug logs, got %q", buf.String())
	}
}

func TestConsoleLoggerRendersComponentAndRun(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", Writer: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx := services.WithRunID(context.Background(), "0123456789abcdef")
	ctx = services.WithStage(ctx, "matching")
	logger = logging.WithContext(ctx, logging.NewComponentLogger(logger, "matcher"))
	logger.Info("batch matched", logging.Int("matched", 7), logging.String("note", "two words"))

	line := buf.String()
	for _, fragment := range []string{
		"INFO  matcher: batch matched",
		"[run=01234567 stage=matching]",
		"matched=7",
		`note="two words"`,
	} {
		if !strings.Contains(line, fragment) {
			t.Fatalf("expected %q in %q", fragment, line)
		}
	}
}

func TestJSONLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: "json", Level: "info", Writer: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	ctx := services.WithBatchIndex(context.Background(), 1)
	logging.WithContext(ctx, logger).Info("structured", logging.Error(errors.New("boom")))

	var payload map[string]any
	if err := json.Unmarshal(buf.Bytes(), &payload); err != nil {
		t.Fatalf("decode log line: %v (%q)", err, buf.String())
	}
	if payload["msg"] != "structured" {
		t.Fatalf("unexpected msg %v", payload["msg"])
	}
	if payload["level"] != "info" {
		t.Fatalf("unexpected level %v", payload["level"])
	}
	if _, ok := payload["ts"]; !ok {
		t.Fatalf("expected ts field, got %v", payload)
	}
	if payload["batch_index"] != float64(1) {
		t.Fatalf("unexpected batch_index %v", payload["batch_index"])
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml", Writer: &bytes.Buffer{}}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestWarnWithContextInjectsDefaults(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: "json", Level: "info", Writer: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logging.WarnWithContext(logger, "degraded", "match_batch_degraded", logging.String(logging.FieldImpact, "batch unmatched"))

	var payload map[string]any
	if err := json.Unmarshal(buf.Bytes(), &payload); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if payload[logging.FieldEventType] != "match_batch_degraded" {
		t.Fatalf("unexpected event_type %v", payload[logging.FieldEventType])
	}
	if payload[logging.FieldErrorHint] != "rerun with --verbose and inspect bgmrules.log" {
		t.Fatalf("unexpected error_hint %v", payload[logging.FieldErrorHint])
	}
	if payload[logging.FieldImpact] != "batch unmatched" {
		t.Fatalf("expected caller-supplied impact to win, got %v", payload[logging.FieldImpact])
	}
}

func TestNopLoggerDiscards(t *testing.T) {
	logger := logging.NewComponentLogger(nil, "test")
	logger.Info("ignored")
	if logger.Enabled(context.Background(), 12) {
		t.Fatal("expected no-op logger to be disabled")
	}
}

func TestArgsFeedsVariadicLoggerMethods(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: "json", Level: "debug", Writer: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	ctx := services.WithStage(context.Background(), "matching")
	attrs := logging.DecisionAttrs("catalog_match", "accepted", "confidence above threshold")
	logging.WithContext(ctx, logger).Debug("match decision", logging.Args(attrs...)...)

	var payload map[string]any
	if err := json.Unmarshal(buf.Bytes(), &payload); err != nil {
		t.Fatalf("decode log line: %v (%q)", err, buf.String())
	}
	if payload[logging.FieldStage] != "matching" {
		t.Fatalf("unexpected stage %v", payload[logging.FieldStage])
	}
	if payload[logging.FieldDecisionType] != "catalog_match" || payload["decision_result"] != "accepted" {
		t.Fatalf("unexpected decision fields %v", payload)
	}
	if got := logging.Args(); len(got) != 0 {
		t.Fatalf("expected empty args, got %v", got)
	}
}
