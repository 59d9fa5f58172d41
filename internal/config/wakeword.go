package config

import (
	"encoding/json"
	"os"
	"strings"

	. "github.com/waseemjarad3-bot/nova/internal/logging"
	"github.com/waseemjarad3-bot/nova/internal/paths"
)

// DefaultWakeWord is used whenever the assistant config cannot supply one.
const DefaultWakeWord = "nova"

// ResolveWakeWord reads the assistant config at path and returns its normalized
// "wakeWord". It never fails: an empty path, a missing or unreadable file,
// malformed JSON, or a missing/blank/non-string field all yield DefaultWakeWord.
// The file is read on every call; nothing is cached.
func ResolveWakeWord(path string) string {
	if strings.TrimSpace(path) == "" {
		return DefaultWakeWord
	}
	expanded, err := paths.ExpandTilde(path)
	if err != nil {
		return DefaultWakeWord
	}

	data, err := os.ReadFile(expanded)
	if err != nil {
		L_trace("config: wake word file unreadable", "path", expanded, "error", err)
		return DefaultWakeWord
	}

	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		L_trace("config: wake word file malformed", "path", expanded, "error", err)
		return DefaultWakeWord
	}

	word, _ := doc["wakeWord"].(string)
	word = strings.ToLower(strings.TrimSpace(word))
	if word == "" {
		return DefaultWakeWord
	}
	return word
}
