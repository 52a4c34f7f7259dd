package config

import (
	"regexp"
	"strings"
)

var whitespaceRE = regexp.MustCompile(`\s+`)

// placeholders are the sample values shipped in .env templates; they
// must never reach a credential pool.
var placeholders = map[string]struct{}{
	"key1": {},
	"key2": {},
}

// minKeyLength filters out truncated paste fragments; no real API key
// is this short.
const minKeyLength = 11

// CleanAPIKeys parses a comma-separated key list from the environment,
// tolerating the multi-line format people end up with in .env files.
// Whitespace is stripped, placeholder and truncated entries dropped.
func CleanAPIKeys(raw string) []string {
	if raw == "" {
		return nil
	}
	cleaned := whitespaceRE.ReplaceAllString(raw, "")

	var keys []string
	for _, key := range strings.Split(cleaned, ",") {
		if key == "" {
			continue
		}
		if _, placeholder := placeholders[key]; placeholder {
			continue
		}
		if len(key) < minKeyLength {
			continue
		}
		keys = append(keys, key)
	}
	return keys
}
