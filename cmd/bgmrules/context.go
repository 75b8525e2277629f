package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"bgmrules/internal/catalog"
	"bgmrules/internal/config"
	"bgmrules/internal/listing"
	"bgmrules/internal/logging"
	"bgmrules/internal/resolve"
	"bgmrules/internal/services/llm"
	"bgmrules/internal/titleclean"
	"bgmrules/internal/workflow"
)

type commandContext struct {
	configFlag  *string
	verboseFlag *bool

	configOnce   sync.Once
	config       *config.Config
	configPath   string
	configExists bool
	configErr    error

	loggerOnce sync.Once
	logger     *slog.Logger
	loggerErr  error
}

func newCommandContext(configFlag *string, verboseFlag *bool) *commandContext {
	return &commandContext{
		configFlag:  configFlag,
		verboseFlag: verboseFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, exists, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
		c.configExists = exists
	})
	return c.config, c.configErr
}

func (c *commandContext) ensureLogger() (*slog.Logger, error) {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.loggerErr = err
			return
		}
		logCfg := *cfg
		if c.verboseFlag != nil && *c.verboseFlag {
			logCfg.Logging.Level = "debug"
		}
		logger, err := logging.NewFromConfig(&logCfg)
		if err != nil {
			c.loggerErr = fmt.Errorf("init logger: %w", err)
			return
		}
		c.logger = logger.With(logging.String("component", "cli"))
	})
	return c.logger, c.loggerErr
}

// pipeline holds the clients built from configuration for one command.
type pipeline struct {
	cfg     *config.Config
	logger  *slog.Logger
	model   *llm.Client
	catalog *catalog.Client
	cache   *catalog.Cache
	manager *workflow.Manager
}

func (p *pipeline) Close() error {
	return p.cache.Close()
}

// buildPipeline wires every stage. progress, when non-nil, receives
// stage progress lines.
func (c *commandContext) buildPipeline(progress io.Writer) (*pipeline, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.ValidateLLM(); err != nil {
		return nil, err
	}
	logger, err := c.ensureLogger()
	if err != nil {
		return nil, err
	}

	model, err := newModelClient(cfg)
	if err != nil {
		return nil, err
	}
	bangumi, cache, err := newCatalogClient(cfg, logger)
	if err != nil {
		return nil, err
	}

	var observer resolve.Observer
	if progress != nil {
		observer = newProgressReporter(progress)
	}

	resolver, err := resolve.NewResolver(bangumi, model, resolve.Options{
		BatchSize:             cfg.Matching.BatchSize,
		Threshold:             cfg.Matching.ConfidenceThreshold,
		BatchInterval:         cfg.BatchInterval(),
		AbortOnRetrievalError: cfg.Matching.OnRetrievalError == config.RetrievalAbort,
		Observer:              observer,
		Logger:                logger,
	})
	if err != nil {
		_ = cache.Close()
		return nil, err
	}
	cleaner, err := titleclean.New(model, titleclean.Options{
		BatchSize:     cfg.TitleCleaning.BatchSize,
		BatchInterval: cfg.CleaningInterval(),
		Observer:      observer,
		Logger:        logger,
	})
	if err != nil {
		_ = cache.Close()
		return nil, err
	}
	source, err := listing.New(cfg.Listing.URL,
		listing.WithTimeout(time.Duration(cfg.Listing.TimeoutSeconds)*time.Second),
		listing.WithLogger(logger),
	)
	if err != nil {
		_ = cache.Close()
		return nil, err
	}

	manager, err := workflow.NewManager(cfg, workflow.Dependencies{
		Listing:  source,
		Cleaner:  cleaner,
		Resolver: resolver,
		AIUsage:  model.Usage,
		Logger:   logger,
	})
	if err != nil {
		_ = cache.Close()
		return nil, err
	}

	return &pipeline{
		cfg:     cfg,
		logger:  logger,
		model:   model,
		catalog: bangumi,
		cache:   cache,
		manager: manager,
	}, nil
}

func newModelClient(cfg *config.Config) (*llm.Client, error) {
	provider, err := llm.ParseProvider(cfg.LLM.Provider)
	if err != nil {
		return nil, err
	}
	return llm.NewClient(llm.Config{
		Provider:       provider,
		APIKey:         cfg.LLM.APIKey,
		BaseURL:        cfg.LLM.BaseURL,
		Model:          cfg.LLM.Model,
		TimeoutSeconds: cfg.LLM.TimeoutSeconds,
	}, llm.WithRetryMaxAttempts(cfg.LLM.RetryAttempts))
}

// newCatalogClient builds the Bangumi client. The returned cache is never
// nil; it is inert when caching is disabled.
func newCatalogClient(cfg *config.Config, logger *slog.Logger) (*catalog.Client, *catalog.Cache, error) {
	loc, err := cfg.CatalogLocation()
	if err != nil {
		return nil, nil, err
	}
	ttl := time.Duration(cfg.Bangumi.CacheTTLHours) * time.Hour
	cache, err := catalog.OpenCache(cfg.CatalogCachePath(), ttl, logger)
	if err != nil {
		return nil, nil, err
	}
	client, err := catalog.New(cfg.Bangumi.BaseURL, cfg.Bangumi.UserAgent,
		catalog.WithTimeout(time.Duration(cfg.Bangumi.TimeoutSeconds)*time.Second),
		catalog.WithRateLimit(cfg.Bangumi.RequestsPerSecond),
		catalog.WithDateWindow(cfg.Bangumi.DateWindowDays, loc),
		catalog.WithSubjectType(cfg.Bangumi.SubjectType),
		catalog.WithCache(cache),
		catalog.WithLogger(logger),
	)
	if err != nil {
		_ = cache.Close()
		return nil, nil, err
	}
	return client, cache, nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
