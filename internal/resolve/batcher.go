package resolve

import (
	"fmt"
	"slices"

	"bgmrules/internal/anime"
	"bgmrules/internal/services"
)

// Batch splits tasks into contiguous chunks of at most size tasks.
func Batch(tasks []anime.MatchTask, size int) ([][]anime.MatchTask, error) {
	if size <= 0 {
		return nil, services.Wrap(services.ErrValidation, "matching", "batch", fmt.Sprintf("batch size must be positive, got %d", size), nil)
	}
	batches := make([][]anime.MatchTask, 0, (len(tasks)+size-1)/size)
	for chunk := range slices.Chunk(tasks, size) {
		batches = append(batches, chunk)
	}
	return batches, nil
}
