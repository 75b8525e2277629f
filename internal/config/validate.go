package config

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
)

// Validate ensures the configuration is usable. The LLM API key is checked
// separately by ValidateLLM because catalog-only commands do not need it.
func (c *Config) Validate() error {
	if err := c.validateListing(); err != nil {
		return err
	}
	if err := c.validateBangumi(); err != nil {
		return err
	}
	if err := c.validateLLMSettings(); err != nil {
		return err
	}
	if err := c.validateMatching(); err != nil {
		return err
	}
	if err := c.validateTitleCleaning(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

// ValidateLLM reports whether an AI backend can be constructed.
func (c *Config) ValidateLLM() error {
	if err := c.validateLLMSettings(); err != nil {
		return err
	}
	if c.LLM.APIKey == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = defaultConfigPath
		}
		return fmt.Errorf("llm.api_key is required. Set BGMRULES_LLM_API_KEY or %s, or edit %s (create with 'bgmrules config init')",
			providerDefaults[c.LLM.Provider].envKey, defaultPath)
	}
	return nil
}

func (c *Config) validateListing() error {
	if err := validateURL("listing.url", c.Listing.URL); err != nil {
		return err
	}
	if c.Listing.TimeoutSeconds <= 0 {
		return errors.New("listing.timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateBangumi() error {
	if err := validateURL("bangumi.base_url", c.Bangumi.BaseURL); err != nil {
		return err
	}
	if err := ensurePositiveMap(map[string]int{
		"bangumi.subject_type":    c.Bangumi.SubjectType,
		"bangumi.timeout_seconds": c.Bangumi.TimeoutSeconds,
	}); err != nil {
		return err
	}
	if c.Bangumi.DateWindowDays < 0 {
		return errors.New("bangumi.date_window_days must not be negative")
	}
	if c.Bangumi.RequestsPerSecond <= 0 {
		return errors.New("bangumi.requests_per_second must be positive")
	}
	if c.Bangumi.CacheEnabled && c.Bangumi.CacheTTLHours <= 0 {
		return errors.New("bangumi.cache_ttl_hours must be positive when bangumi.cache_enabled is true")
	}
	if _, err := c.CatalogLocation(); err != nil {
		return fmt.Errorf("bangumi.timezone: %w", err)
	}
	return nil
}

func (c *Config) validateLLMSettings() error {
	if _, ok := providerDefaults[c.LLM.Provider]; !ok {
		return fmt.Errorf("llm.provider: unsupported value %q (expected deepseek, openrouter, or openai)", c.LLM.Provider)
	}
	if err := validateURL("llm.base_url", c.LLM.BaseURL); err != nil {
		return err
	}
	if c.LLM.Model == "" {
		return errors.New("llm.model must be set")
	}
	if c.LLM.TimeoutSeconds <= 0 {
		return errors.New("llm.timeout_seconds must be positive")
	}
	if c.LLM.RetryAttempts < 1 {
		return errors.New("llm.retry_attempts must be at least 1")
	}
	return nil
}

func (c *Config) validateMatching() error {
	if c.Matching.BatchSize <= 0 {
		return errors.New("matching.batch_size must be positive")
	}
	if t := c.Matching.ConfidenceThreshold; !(t > 0 && t < 1) {
		return errors.New("matching.confidence_threshold must be greater than 0 and less than 1")
	}
	if c.Matching.BatchIntervalMS < 0 {
		return errors.New("matching.batch_interval_ms must not be negative")
	}
	switch c.Matching.OnRetrievalError {
	case RetrievalSkip, RetrievalAbort:
	default:
		return fmt.Errorf("matching.on_retrieval_error: unsupported value %q (expected skip or abort)", c.Matching.OnRetrievalError)
	}
	return nil
}

func (c *Config) validateTitleCleaning() error {
	if c.TitleCleaning.BatchSize <= 0 {
		return errors.New("title_cleaning.batch_size must be positive")
	}
	if c.TitleCleaning.BatchIntervalMS < 0 {
		return errors.New("title_cleaning.batch_interval_ms must not be negative")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}

func validateURL(key, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s must be set", key)
	}
	parsed, err := url.Parse(value)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("%s must be an absolute URL, got %q", key, value)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	for _, key := range keys {
		if values[key] <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
