package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeListing()
	c.normalizeBangumi()
	c.normalizeLLM()
	c.normalizeMatching()
	c.normalizeRules()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		c.Paths.OutputDir = defaultOutputDir
	}
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.CacheDir) == "" {
		c.Paths.CacheDir = defaultCacheDir
	}
	if c.Paths.CacheDir, err = expandPath(c.Paths.CacheDir); err != nil {
		return fmt.Errorf("paths.cache_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeListing() {
	c.Listing.URL = strings.TrimSpace(c.Listing.URL)
	if c.Listing.URL == "" {
		c.Listing.URL = defaultListingURL
	}
}

func (c *Config) normalizeBangumi() {
	c.Bangumi.BaseURL = strings.TrimRight(strings.TrimSpace(c.Bangumi.BaseURL), "/")
	if c.Bangumi.BaseURL == "" {
		c.Bangumi.BaseURL = defaultBangumiBaseURL
	}
	c.Bangumi.UserAgent = strings.TrimSpace(c.Bangumi.UserAgent)
	if c.Bangumi.UserAgent == "" {
		c.Bangumi.UserAgent = defaultBangumiUserAgent
	}
	c.Bangumi.Timezone = strings.TrimSpace(c.Bangumi.Timezone)
	if c.Bangumi.Timezone == "" {
		c.Bangumi.Timezone = defaultBangumiTimezone
	}
}

// normalizeLLM fills provider defaults and resolves the API key from
// BGMRULES_LLM_API_KEY, then the provider's own variable.
func (c *Config) normalizeLLM() {
	c.LLM.Provider = strings.ToLower(strings.TrimSpace(c.LLM.Provider))
	if c.LLM.Provider == "" {
		c.LLM.Provider = defaultLLMProvider
	}
	c.LLM.APIKey = strings.TrimSpace(c.LLM.APIKey)
	if c.LLM.APIKey == "" {
		if value, ok := os.LookupEnv("BGMRULES_LLM_API_KEY"); ok && strings.TrimSpace(value) != "" {
			c.LLM.APIKey = strings.TrimSpace(value)
		}
	}
	defaults, known := providerDefaults[c.LLM.Provider]
	if !known {
		return
	}
	if c.LLM.APIKey == "" {
		if value, ok := os.LookupEnv(defaults.envKey); ok {
			c.LLM.APIKey = strings.TrimSpace(value)
		}
	}
	c.LLM.BaseURL = strings.TrimSpace(c.LLM.BaseURL)
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = defaults.baseURL
	}
	c.LLM.Model = strings.TrimSpace(c.LLM.Model)
	if c.LLM.Model == "" {
		c.LLM.Model = defaults.model
	}
}

func (c *Config) normalizeMatching() {
	c.Matching.OnRetrievalError = strings.ToLower(strings.TrimSpace(c.Matching.OnRetrievalError))
	if c.Matching.OnRetrievalError == "" {
		c.Matching.OnRetrievalError = defaultOnRetrievalError
	}
}

func (c *Config) normalizeRules() {
	c.Rules.RootPath = strings.TrimSpace(c.Rules.RootPath)
	c.Rules.OutputFile = strings.TrimSpace(c.Rules.OutputFile)
	if c.Rules.OutputFile == "" {
		c.Rules.OutputFile = defaultRulesOutputFile
	}
	feeds := make([]string, 0, len(c.Rules.Feeds))
	for _, feed := range c.Rules.Feeds {
		if trimmed := strings.TrimSpace(feed); trimmed != "" {
			feeds = append(feeds, trimmed)
		}
	}
	if len(feeds) == 0 {
		feeds = defaultFeeds()
	}
	c.Rules.Feeds = feeds
	if strings.TrimSpace(c.Rules.MustNotContain) == "" {
		c.Rules.MustNotContain = defaultRulesMustNotContain
	}
}

func (c *Config) normalizeLogging() {
	format := strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch format {
	case "", "console", "text":
		c.Logging.Format = "console"
	case "json":
		c.Logging.Format = "json"
	default:
		c.Logging.Format = format
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
