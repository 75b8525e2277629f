package workflow

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"bgmrules/internal/anime"
	"bgmrules/internal/config"
	"bgmrules/internal/listing"
	"bgmrules/internal/resolve"
	"bgmrules/internal/rules"
	"bgmrules/internal/services"
	"bgmrules/internal/services/llm"
	"bgmrules/internal/titleclean"
)

const testPage = `<html><body>
<h2>お知らせ</h2>
<table><tr><th>日付</th><th>内容</th></tr><tr><td>2025/10/01</td><td>更新</td></tr></table>
<h2>2025年秋アニメ</h2>
<table>
  <tr><th>作品名</th><th>放送開始日</th></tr>
  <tr><td>異世界かるてっと3</td><td>2025/10/13(月)</td></tr>
  <tr><td>破産富豪</td><td>2025/10/05(日)</td></tr>
  <tr><td>未定の作品</td><td>2026年</td></tr>
</table>
</body></html>`

type pageSource struct {
	err error
}

func (p pageSource) FetchTables(context.Context) ([]listing.Table, error) {
	if p.err != nil {
		return nil, p.err
	}
	return listing.ExtractTables(strings.NewReader(testPage))
}

type scriptedModel struct {
	mu    sync.Mutex
	usage llm.Usage
}

func (s *scriptedModel) Complete(_ context.Context, prompt string) (llm.Completion, error) {
	var content string
	switch {
	case strings.Contains(prompt, "table_index"):
		content = `{"table_index": 1}`
	case strings.Contains(prompt, "=== Task"):
		content = `{"matches":[{"source_index":0,"matched_bangumi_id":564421,"confidence":0.95,"reasoning":"same season"}]}`
	default:
		content = `{"works":[
			{"original_title":"異世界かるてっと3","cleaned_title":"異世界かるてっと3","keywords":["Isekai Quartet 3"]},
			{"original_title":"破産富豪","cleaned_title":"破产富豪","keywords":["破産富豪"]}]}`
	}
	usage := llm.Usage{Requests: 1, PromptTokens: 10, CompletionTokens: 5}
	s.mu.Lock()
	s.usage = s.usage.Add(usage)
	s.mu.Unlock()
	return llm.Completion{Content: content, Usage: usage}, nil
}

func (s *scriptedModel) Usage() llm.Usage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usage
}

type catalogStub struct{}

func (catalogStub) Query(_ context.Context, keyword string, _ *time.Time) ([]anime.Candidate, error) {
	switch keyword {
	case "異世界かるてっと3", "Isekai Quartet 3":
		return []anime.Candidate{{
			CatalogID:      564421,
			PrimaryTitle:   "異世界かるてっと3",
			LocalizedTitle: "异世界四重奏 第三季",
			Aliases:        []string{"Isekai Quartet 3"},
		}}, nil
	}
	return []anime.Candidate{}, nil
}

func newTestManager(t *testing.T, source TableSource) (*Manager, *config.Config) {
	t.Helper()
	cfg := config.Default()
	cfg.Paths.OutputDir = t.TempDir()
	cfg.Rules.RootPath = `D:\Anime`
	model := &scriptedModel{}
	cleaner, err := titleclean.New(model, titleclean.Options{})
	if err != nil {
		t.Fatalf("titleclean.New: %v", err)
	}
	resolver, err := resolve.NewResolver(catalogStub{}, model, resolve.Options{})
	if err != nil {
		t.Fatalf("resolve.NewResolver: %v", err)
	}
	mgr, err := NewManager(&cfg, Dependencies{
		Listing:  source,
		Cleaner:  cleaner,
		Resolver: resolver,
		AIUsage:  model.Usage,
		Clock:    func() time.Time { return time.Date(2025, time.September, 1, 0, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return mgr, &cfg
}

func TestRunEndToEnd(t *testing.T) {
	mgr, cfg := newTestManager(t, pageSource{})
	task := &config.Task{Description: "2025年10月新番", Site: config.SiteKansou}
	report, err := mgr.Run(context.Background(), task)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if report.RunID == "" || report.Season != "2025年10月新番" || report.TableTitle != "2025年秋アニメ" {
		t.Fatalf("unexpected report header %+v", report)
	}
	if report.TableWorks != 3 || report.Undetermined != 1 || report.AIProcessed != 2 {
		t.Fatalf("unexpected listing stats %+v", report)
	}
	if report.Resolution.Matched != 1 || len(report.Unmatched) != 1 || report.Unmatched[0].CleanedTitle != "破产富豪" {
		t.Fatalf("unexpected resolution stats %+v", report)
	}
	if report.RulesGenerated != 2 || len(report.RulesFailed) != 0 {
		t.Fatalf("unexpected rule stats %+v", report)
	}
	if report.AIRequests != 3 || report.TotalTokens() != 45 {
		t.Fatalf("unexpected AI usage %+v", report)
	}

	resolutions, err := LoadResults(cfg.ResultsPath())
	if err != nil {
		t.Fatalf("LoadResults: %v", err)
	}
	if len(resolutions) != 2 || !resolutions[0].Matched || resolutions[0].CatalogID != 564421 {
		t.Fatalf("unexpected cached results %+v", resolutions)
	}

	written, err := rules.ReadFile(cfg.RulesPath())
	if err != nil {
		t.Fatalf("read rules: %v", err)
	}
	rule, ok := written["2025年10月新番 异世界四重奏 第三季"]
	if !ok {
		t.Fatalf("expected matched rule, got %d rules", len(written))
	}
	if rule.SavePath != `D:\Anime\2025年10月新番\异世界四重奏 第三季` {
		t.Fatalf("unexpected save path %q", rule.SavePath)
	}
	if _, ok := written["2025年10月新番 破产富豪"]; !ok {
		t.Fatal("expected rule for unmatched work")
	}

	var out bytes.Buffer
	if err := report.Render(&out); err != nil {
		t.Fatalf("Render: %v", err)
	}
	for _, fragment := range []string{"works parsed from table", "破产富豪", "rules generated"} {
		if !strings.Contains(out.String(), fragment) {
			t.Fatalf("report missing %q:\n%s", fragment, out.String())
		}
	}
}

func TestRunReportsFailingStage(t *testing.T) {
	fetchErr := services.Wrap(services.ErrRetrieval, "listing", "fetch", "status 503", nil)
	mgr, _ := newTestManager(t, pageSource{err: fetchErr})
	_, err := mgr.Run(context.Background(), &config.Task{Description: "x", Site: config.SiteKansou})
	if !IsStage(err, StageListing) {
		t.Fatalf("expected listing stage error, got %v", err)
	}
	if !errors.Is(err, services.ErrRetrieval) {
		t.Fatalf("expected retrieval marker, got %v", err)
	}
}

func TestRunRejectsInvalidTask(t *testing.T) {
	mgr, _ := newTestManager(t, pageSource{})
	if _, err := mgr.Run(context.Background(), &config.Task{Description: "x", Site: "other"}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestResolveThenGenerateRules(t *testing.T) {
	mgr, cfg := newTestManager(t, nil)
	works := []anime.Work{{OriginalTitle: "異世界かるてっと3", CleanedTitle: "異世界かるてっと3", AirDate: anime.Date(2025, 10, 13)}}
	output := filepath.Join(t.TempDir(), "custom.json")
	report, resolutions, err := mgr.Resolve(context.Background(), works, output)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if report.Resolution.Matched != 1 || len(resolutions) != 1 {
		t.Fatalf("unexpected resolve report %+v", report)
	}
	if _, err := os.Stat(output); err != nil {
		t.Fatalf("expected results at %s: %v", output, err)
	}

	loaded, err := LoadResults(output)
	if err != nil {
		t.Fatalf("LoadResults: %v", err)
	}
	rulesReport, err := mgr.GenerateRules(context.Background(), loaded, "2025年10月新番", "")
	if err != nil {
		t.Fatalf("GenerateRules: %v", err)
	}
	if rulesReport.RulesGenerated != 1 || rulesReport.Resolution.Matched != 1 {
		t.Fatalf("unexpected rules report %+v", rulesReport)
	}
	if _, err := os.Stat(cfg.RulesPath()); err != nil {
		t.Fatalf("expected rules file: %v", err)
	}
	if _, err := mgr.GenerateRules(context.Background(), loaded, " ", ""); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for blank season, got %v", err)
	}
}

func TestWorksRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "works.json")
	works := []anime.Work{{OriginalTitle: "a", CleanedTitle: "a", Keywords: []string{"k"}}, {OriginalTitle: "b"}}
	if err := SaveWorks(path, works); err != nil {
		t.Fatalf("SaveWorks: %v", err)
	}
	back, err := LoadWorks(path)
	if err != nil {
		t.Fatalf("LoadWorks: %v", err)
	}
	if len(back) != 2 || back[0].Keywords[0] != "k" || back[1].AirDate != nil {
		t.Fatalf("unexpected works %+v", back)
	}
	if _, err := LoadWorks(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
