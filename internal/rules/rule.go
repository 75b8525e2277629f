package rules

// Rule mirrors one entry of qBittorrent's RSS download rules export.
type Rule struct {
	AddPaused                 *bool         `json:"addPaused"`
	AffectedFeeds             []string      `json:"affectedFeeds"`
	AssignedCategory          string        `json:"assignedCategory"`
	Enabled                   bool          `json:"enabled"`
	EpisodeFilter             string        `json:"episodeFilter"`
	IgnoreDays                int           `json:"ignoreDays"`
	LastMatch                 string        `json:"lastMatch"`
	MustContain               string        `json:"mustContain"`
	MustNotContain            string        `json:"mustNotContain"`
	PreviouslyMatchedEpisodes []string      `json:"previouslyMatchedEpisodes"`
	Priority                  int           `json:"priority"`
	SavePath                  string        `json:"savePath"`
	SmartFilter               bool          `json:"smartFilter"`
	TorrentContentLayout      *string       `json:"torrentContentLayout"`
	TorrentParams             TorrentParams `json:"torrentParams"`
	UseRegex                  bool          `json:"useRegex"`
}

// TorrentParams holds the per-torrent settings applied when a rule fires.
type TorrentParams struct {
	Category                 string   `json:"category"`
	DownloadLimit            int      `json:"download_limit"`
	DownloadPath             string   `json:"download_path"`
	InactiveSeedingTimeLimit int      `json:"inactive_seeding_time_limit"`
	OperatingMode            string   `json:"operating_mode"`
	RatioLimit               int      `json:"ratio_limit"`
	SavePath                 string   `json:"save_path"`
	SeedingTimeLimit         int      `json:"seeding_time_limit"`
	ShareLimitAction         string   `json:"share_limit_action"`
	SkipChecking             bool     `json:"skip_checking"`
	SSLCertificate           string   `json:"ssl_certificate"`
	SSLDHParams              string   `json:"ssl_dh_params"`
	SSLPrivateKey            string   `json:"ssl_private_key"`
	Tags                     []string `json:"tags"`
	UploadLimit              int      `json:"upload_limit"`
	UseAutoTMM               bool     `json:"use_auto_tmm"`
}

func newRule(category, savePath, mustContain, mustNotContain string, feeds []string) Rule {
	return Rule{
		AffectedFeeds:             append([]string(nil), feeds...),
		AssignedCategory:          category,
		Enabled:                   true,
		MustContain:               mustContain,
		MustNotContain:            mustNotContain,
		PreviouslyMatchedEpisodes: []string{},
		SavePath:                  savePath,
		TorrentParams: TorrentParams{
			Category:                 category,
			DownloadLimit:            -1,
			InactiveSeedingTimeLimit: -2,
			OperatingMode:            "AutoManaged",
			RatioLimit:               -2,
			SavePath:                 toForwardSlashes(savePath),
			SeedingTimeLimit:         -2,
			ShareLimitAction:         "Default",
			Tags:                     []string{},
			UploadLimit:              -1,
		},
		UseRegex: true,
	}
}
