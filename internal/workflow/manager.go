package workflow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"bgmrules/internal/config"
	"bgmrules/internal/listing"
	"bgmrules/internal/logging"
	"bgmrules/internal/resolve"
	"bgmrules/internal/services/llm"
	"bgmrules/internal/titleclean"
)

// TableSource provides the tables of the listing page.
type TableSource interface {
	FetchTables(ctx context.Context) ([]listing.Table, error)
}

// Dependencies bundles the collaborators a Manager drives. Only the pieces a
// given operation needs must be set.
type Dependencies struct {
	Listing  TableSource
	Cleaner  *titleclean.Cleaner
	Resolver *resolve.Resolver
	// AIUsage reports cumulative model usage across all AI stages.
	AIUsage func() llm.Usage
	Logger  *slog.Logger
	Clock   func() time.Time
}

// Manager coordinates one pipeline run.
type Manager struct {
	cfg      *config.Config
	listing  TableSource
	cleaner  *titleclean.Cleaner
	resolver *resolve.Resolver
	aiUsage  func() llm.Usage
	logger   *slog.Logger
	now      func() time.Time
}

// NewManager constructs a workflow manager.
func NewManager(cfg *config.Config, deps Dependencies) (*Manager, error) {
	if cfg == nil {
		return nil, errors.New("workflow requires config")
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	now := deps.Clock
	if now == nil {
		now = time.Now
	}
	aiUsage := deps.AIUsage
	if aiUsage == nil {
		aiUsage = func() llm.Usage { return llm.Usage{} }
	}
	return &Manager{
		cfg:      cfg,
		listing:  deps.Listing,
		cleaner:  deps.Cleaner,
		resolver: deps.Resolver,
		aiUsage:  aiUsage,
		logger:   logging.NewComponentLogger(logger, "workflow"),
		now:      now,
	}, nil
}
