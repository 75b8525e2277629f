package rules

import (
	"bgmrules/internal/fileutil"
)

// WriteFile writes rules as indented JSON. The write happens under an
// exclusive lock on path+".lock" and replaces path atomically, so concurrent
// runs never interleave partial files.
func WriteFile(path string, rules map[string]Rule) error {
	if rules == nil {
		rules = map[string]Rule{}
	}
	return fileutil.WriteJSON(path, rules)
}

// ReadFile loads a rules file written by WriteFile.
func ReadFile(path string) (map[string]Rule, error) {
	var rules map[string]Rule
	if err := fileutil.ReadJSON(path, &rules); err != nil {
		return nil, err
	}
	return rules, nil
}
