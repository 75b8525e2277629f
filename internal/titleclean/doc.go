// Package titleclean uses the language model to pick the listing table that
// matches a task description and to normalise raw listing titles into
// search-friendly titles and keywords.
package titleclean
