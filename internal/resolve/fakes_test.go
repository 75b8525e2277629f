package resolve

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"bgmrules/internal/anime"
	"bgmrules/internal/services/llm"
)

type searchCall struct {
	keyword string
	airDate *time.Time
}

type fakeSearcher struct {
	mu      sync.Mutex
	results map[string][]anime.Candidate
	errs    map[string]error
	calls   []searchCall
}

func (f *fakeSearcher) Query(_ context.Context, keyword string, airDate *time.Time) ([]anime.Candidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, searchCall{keyword: keyword, airDate: airDate})
	if err := f.errs[keyword]; err != nil {
		return nil, err
	}
	return f.results[keyword], nil
}

func (f *fakeSearcher) keywords() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.calls))
	for _, call := range f.calls {
		out = append(out, call.keyword)
	}
	return out
}

type fakeCompleter struct {
	mu      sync.Mutex
	prompts []string
	reply   func(call int, prompt string) (string, error)
}

func (f *fakeCompleter) Complete(_ context.Context, prompt string) (llm.Completion, error) {
	f.mu.Lock()
	call := len(f.prompts)
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()
	content, err := f.reply(call, prompt)
	if err != nil {
		return llm.Completion{}, err
	}
	return llm.Completion{
		Content: content,
		Usage:   llm.Usage{Requests: 1, PromptTokens: 100, CompletionTokens: 20},
	}, nil
}

func (f *fakeCompleter) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

func taskCount(prompt string) int {
	return strings.Count(prompt, "=== Task ")
}

func matchJSON(entries ...string) string {
	return `{"matches":[` + strings.Join(entries, ",") + `]}`
}

func matchEntryJSON(index int, id int64, confidence float64) string {
	if id == 0 {
		return fmt.Sprintf(`{"source_index":%d,"matched_bangumi_id":null,"confidence":%g,"reasoning":"none"}`, index, confidence)
	}
	return fmt.Sprintf(`{"source_index":%d,"matched_bangumi_id":%d,"confidence":%g,"reasoning":"same work"}`, index, id, confidence)
}
