// Package anime holds the records that flow through the resolution pipeline.
//
// Work values come from the listing and title-cleaning stages and are treated
// as read-only. Candidate values are created fresh for every catalog query.
// Resolution is the only durable output; its JSON form is the record written
// to bangumi_results.json and read back by rule generation.
package anime
