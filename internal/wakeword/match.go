// Package wakeword turns microphone utterances into WAKE_WORD events.
package wakeword

import (
	"strings"

	"github.com/waseemjarad3-bot/nova/internal/monitor"
	"github.com/waseemjarad3-bot/nova/internal/protocol"
)

// Match reports whether word occurs in transcript, either as a whitespace
// separated token or anywhere as a substring. Both inputs are expected lowercase.
// The substring rule means "nova" also matches "novation".
func Match(word, transcript string) bool {
	if word == "" {
		return false
	}
	for _, tok := range strings.Fields(transcript) {
		if tok == word {
			return true
		}
	}
	return strings.Contains(transcript, word)
}

// Command strips the first occurrence of word from transcript.
func Command(word, transcript string) string {
	return strings.TrimSpace(strings.Replace(transcript, word, "", 1))
}

// Mapper emits WAKE_WORD for transcripts that mention the current wake word.
func Mapper(ev monitor.RawEvent, word string) (protocol.Event, bool) {
	text := strings.ToLower(ev.Transcript)
	if text == "" || !Match(word, text) {
		return nil, false
	}
	return protocol.WakeWord{Text: text, Command: Command(word, text)}, true
}
