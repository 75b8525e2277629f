// Package workflow runs the end-to-end rule generation pipeline.
//
// A run moves through fixed stages: the listing page is fetched, the model
// picks the table matching the task description, raw titles are cleaned,
// works are resolved against the catalog, resolutions are cached to disk and
// finally qBittorrent rules are written. Every stage is logged with the run's
// correlation id and its duration, and the run ends with a statistics Report.
package workflow
