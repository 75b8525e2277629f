// Package catalog retrieves candidate works from the Bangumi subject search
// API.
//
// Client.Query posts one keyword search per call, restricted to anime
// subjects and, when the work's air date is known, to a window of days around
// it anchored in Japan Standard Time. Results are converted to
// anime.Candidate values with aliases and air dates lifted from the free-form
// infobox. Requests are paced by a token-bucket limiter and may be served
// from an optional SQLite response cache; cache faults never fail a query.
package catalog
