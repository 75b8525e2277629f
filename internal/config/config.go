package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"bgmrules/internal/fileutil"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains output, log, and cache directories.
type Paths struct {
	OutputDir string `toml:"output_dir"`
	LogDir    string `toml:"log_dir"`
	CacheDir  string `toml:"cache_dir"`
}

// Listing contains configuration for fetching the seasonal listing page.
type Listing struct {
	URL            string `toml:"url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Bangumi contains configuration for the Bangumi subject search API.
type Bangumi struct {
	BaseURL           string  `toml:"base_url"`
	UserAgent         string  `toml:"user_agent"`
	SubjectType       int     `toml:"subject_type"`
	DateWindowDays    int     `toml:"date_window_days"`
	Timezone          string  `toml:"timezone"`
	TimeoutSeconds    int     `toml:"timeout_seconds"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
	CacheEnabled      bool    `toml:"cache_enabled"`
	CacheTTLHours     int     `toml:"cache_ttl_hours"`
}

// LLM contains chat-completion connection settings shared by matching and
// title cleaning.
type LLM struct {
	Provider       string `toml:"provider"`
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	RetryAttempts  int    `toml:"retry_attempts"`
}

// Matching contains configuration for AI batch matching.
type Matching struct {
	BatchSize           int     `toml:"batch_size"`
	ConfidenceThreshold float64 `toml:"confidence_threshold"`
	BatchIntervalMS     int     `toml:"batch_interval_ms"`
	// OnRetrievalError is "skip" or "abort".
	OnRetrievalError string `toml:"on_retrieval_error"`
}

// TitleCleaning contains configuration for AI title cleaning.
type TitleCleaning struct {
	BatchSize       int `toml:"batch_size"`
	BatchIntervalMS int `toml:"batch_interval_ms"`
}

// Rules contains configuration for qBittorrent rule output.
type Rules struct {
	RootPath       string   `toml:"root_path"`
	Feeds          []string `toml:"feeds"`
	MustNotContain string   `toml:"must_not_contain"`
	OutputFile     string   `toml:"output_file"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for bgmrules.
//
// Configuration sections by subsystem:
//   - Paths: output, log, and cache directories
//   - Listing: seasonal listing page source
//   - Bangumi: catalog search API, date window, and response cache
//   - LLM: chat-completion provider shared by AI stages
//   - Matching: batch size, threshold, and pacing of semantic matching
//   - TitleCleaning: batch size and pacing of title cleaning
//   - Rules: qBittorrent rule output
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Listing       Listing       `toml:"listing"`
	Bangumi       Bangumi       `toml:"bangumi"`
	LLM           LLM           `toml:"llm"`
	Matching      Matching      `toml:"matching"`
	TitleCleaning TitleCleaning `toml:"title_cleaning"`
	Rules         Rules         `toml:"rules"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs(projectConfigName)
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the output and log directories, and the cache
// directory when the catalog response cache is enabled.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.OutputDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if c.Bangumi.CacheEnabled && strings.TrimSpace(c.Paths.CacheDir) != "" {
		if err := os.MkdirAll(c.Paths.CacheDir, 0o755); err != nil {
			return fmt.Errorf("create cache directory %q: %w", c.Paths.CacheDir, err)
		}
	}
	return nil
}

// CatalogCachePath returns the SQLite response cache location, or "" when the
// cache is disabled.
func (c *Config) CatalogCachePath() string {
	if !c.Bangumi.CacheEnabled || strings.TrimSpace(c.Paths.CacheDir) == "" {
		return ""
	}
	return filepath.Join(c.Paths.CacheDir, "bangumi_cache.db")
}

// ResultsPath returns where resolutions are cached between runs.
func (c *Config) ResultsPath() string {
	return filepath.Join(c.Paths.OutputDir, resultsFileName)
}

// RulesPath returns where generated qBittorrent rules are written.
func (c *Config) RulesPath() string {
	if filepath.IsAbs(c.Rules.OutputFile) {
		return c.Rules.OutputFile
	}
	return filepath.Join(c.Paths.OutputDir, c.Rules.OutputFile)
}

// CatalogLocation loads the catalog reference timezone.
func (c *Config) CatalogLocation() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Bangumi.Timezone)
	if err != nil {
		// Minimal systems may lack tzdata; Tokyo has no DST.
		if c.Bangumi.Timezone == defaultBangumiTimezone {
			return time.FixedZone("JST", 9*60*60), nil
		}
		return nil, fmt.Errorf("load timezone %q: %w", c.Bangumi.Timezone, err)
	}
	return loc, nil
}

// BatchInterval returns the minimum spacing between matching requests.
func (c *Config) BatchInterval() time.Duration {
	return time.Duration(c.Matching.BatchIntervalMS) * time.Millisecond
}

// CleaningInterval returns the minimum spacing between title-cleaning requests.
func (c *Config) CleaningInterval() time.Duration {
	return time.Duration(c.TitleCleaning.BatchIntervalMS) * time.Millisecond
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes the embedded sample configuration to path, creating
// parent directories as needed.
func CreateSample(path string) error {
	if err := fileutil.WriteAtomic(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
