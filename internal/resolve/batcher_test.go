package resolve

import (
	"errors"
	"testing"

	"bgmrules/internal/anime"
	"bgmrules/internal/services"
)

func TestBatchSplitsContiguously(t *testing.T) {
	tasks := make([]anime.MatchTask, 25)
	for i := range tasks {
		tasks[i].Work.OriginalTitle = string(rune('a' + i))
	}
	batches, err := Batch(tasks, 10)
	if err != nil {
		t.Fatalf("Batch returned error: %v", err)
	}
	sizes := []int{10, 10, 5}
	if len(batches) != len(sizes) {
		t.Fatalf("expected %d batches, got %d", len(sizes), len(batches))
	}
	pos := 0
	for b, batch := range batches {
		if len(batch) != sizes[b] {
			t.Fatalf("batch %d has %d tasks, want %d", b, len(batch), sizes[b])
		}
		for _, task := range batch {
			if task.Work.OriginalTitle != tasks[pos].Work.OriginalTitle {
				t.Fatalf("order not preserved at %d", pos)
			}
			pos++
		}
	}
}

func TestBatchEdgeCases(t *testing.T) {
	batches, err := Batch(nil, 10)
	if err != nil || len(batches) != 0 {
		t.Fatalf("expected no batches, got %v (err=%v)", batches, err)
	}
	if _, err := Batch(make([]anime.MatchTask, 3), 0); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for size 0, got %v", err)
	}
	batches, err = Batch(make([]anime.MatchTask, 3), 10)
	if err != nil || len(batches) != 1 || len(batches[0]) != 3 {
		t.Fatalf("expected one short batch, got %v (err=%v)", batches, err)
	}
}
