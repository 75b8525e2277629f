package config

const (
	defaultConfigPath  = "~/.config/bgmrules/config.toml"
	projectConfigName  = "bgmrules.toml"
	resultsFileName    = "bangumi_results.json"
	defaultOutputDir   = "."
	defaultLogDir      = "~/.local/share/bgmrules/logs"
	defaultCacheDir    = "~/.cache/bgmrules"
	defaultListingURL  = "https://www.kansou.me/"
	defaultListingTime = 30

	defaultBangumiBaseURL        = "https://api.bgm.tv"
	defaultBangumiUserAgent      = "smart_bangumi_qb_rule_generator/0.1.0"
	defaultBangumiSubjectType    = 2
	defaultBangumiDateWindowDays = 100
	defaultBangumiTimezone       = "Asia/Tokyo"
	defaultBangumiTimeout        = 30
	defaultBangumiRPS            = 4
	defaultBangumiCacheTTLHours  = 24

	defaultLLMProvider      = ProviderDeepSeek
	defaultLLMTimeout       = 180
	defaultLLMRetryAttempts = 3

	defaultMatchingBatchSize  = 10
	defaultMatchingThreshold  = 0.7
	defaultMatchingIntervalMS = 500
	defaultOnRetrievalError   = RetrievalSkip

	defaultCleaningBatchSize  = 20
	defaultCleaningIntervalMS = 2000

	defaultRulesOutputFile     = "qb_download_rules.json"
	defaultRulesMustNotContain = `.+01\-.+|.+合集.+|.+先行.+|.+\[V0.+|.+全集.+`

	defaultLogFormat = "console"
	defaultLogLevel  = "info"
)

// Supported chat-completion providers.
const (
	ProviderDeepSeek   = "deepseek"
	ProviderOpenRouter = "openrouter"
	ProviderOpenAI     = "openai"
)

// Retrieval error policies for [matching] on_retrieval_error.
const (
	RetrievalSkip  = "skip"
	RetrievalAbort = "abort"
)

var providerDefaults = map[string]struct {
	baseURL string
	model   string
	envKey  string
}{
	ProviderDeepSeek:   {"https://api.deepseek.com/v1/chat/completions", "deepseek-chat", "DEEPSEEK_API_KEY"},
	ProviderOpenRouter: {"https://openrouter.ai/api/v1/chat/completions", "deepseek/deepseek-chat", "OPENROUTER_API_KEY"},
	ProviderOpenAI:     {"https://api.openai.com/v1/chat/completions", "gpt-4o-mini", "OPENAI_API_KEY"},
}

func defaultFeeds() []string {
	return []string{
		"https://acg.rip/1.xml",
		"https://nyaa.si/?page=rss&c=1_4",
		"https://acg.rip/page/6.xml?term=jibaketa+kiratto]",
		"https://share.dmhy.org/topics/rss/sort_id/2/rss.xml",
	}
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			OutputDir: defaultOutputDir,
			LogDir:    defaultLogDir,
			CacheDir:  defaultCacheDir,
		},
		Listing: Listing{
			URL:            defaultListingURL,
			TimeoutSeconds: defaultListingTime,
		},
		Bangumi: Bangumi{
			BaseURL:           defaultBangumiBaseURL,
			UserAgent:         defaultBangumiUserAgent,
			SubjectType:       defaultBangumiSubjectType,
			DateWindowDays:    defaultBangumiDateWindowDays,
			Timezone:          defaultBangumiTimezone,
			TimeoutSeconds:    defaultBangumiTimeout,
			RequestsPerSecond: defaultBangumiRPS,
			CacheEnabled:      true,
			CacheTTLHours:     defaultBangumiCacheTTLHours,
		},
		LLM: LLM{
			Provider:       defaultLLMProvider,
			TimeoutSeconds: defaultLLMTimeout,
			RetryAttempts:  defaultLLMRetryAttempts,
		},
		Matching: Matching{
			BatchSize:           defaultMatchingBatchSize,
			ConfidenceThreshold: defaultMatchingThreshold,
			BatchIntervalMS:     defaultMatchingIntervalMS,
			OnRetrievalError:    defaultOnRetrievalError,
		},
		TitleCleaning: TitleCleaning{
			BatchSize:       defaultCleaningBatchSize,
			BatchIntervalMS: defaultCleaningIntervalMS,
		},
		Rules: Rules{
			Feeds:          defaultFeeds(),
			MustNotContain: defaultRulesMustNotContain,
			OutputFile:     defaultRulesOutputFile,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
