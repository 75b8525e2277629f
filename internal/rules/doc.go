// Package rules turns resolutions into qBittorrent RSS auto-download rules.
//
// One rule is generated per distinct work name. Matched works are searched by
// their localized title, catalog aliases and cleaned title; unmatched works
// fall back to the keywords produced during title cleaning. Every name is
// regex-quoted and inserted into a release-group pattern that requires a
// resolution or source tag next to a subtitle tag.
package rules
