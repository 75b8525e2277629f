// Package main hosts the bgmrules CLI entrypoint and command graph.
//
// The Cobra command tree loads configuration once, builds the listing,
// Bangumi, and model clients from it, and hands them to the workflow
// manager. Subcommands cover the full run, resolution from a saved work
// list, rule regeneration from cached results, ad hoc catalog searches, and
// maintenance of the config file and the Bangumi response cache.
package main
