// Package intent classifies caller utterances for conversational control
// signals.
//
// The only classifier today is [IsTerminationSignal], a case-insensitive
// substring match against a fixed set of closing phrases. Substring matching
// is deliberately simple and has known false positives ("I bought a goodbye
// card" signals termination); callers that need higher precision should layer
// their own heuristics on top.
package intent

import "strings"

// terminationPhrases are the closing phrases that signal the caller wants to
// end the conversation. Matching is case-insensitive substring containment.
var terminationPhrases = []string{
	"goodbye",
	"bye",
	"thank you for your time",
	"i'll let you go",
	"talk to you later",
	"have a good day",
	"i have to go",
	"gotta go",
}

// IsTerminationSignal reports whether utterance contains a phrase indicating
// the caller wants to end the call. Empty or whitespace-only input never
// signals termination.
func IsTerminationSignal(utterance string) bool {
	text := strings.ToLower(strings.TrimSpace(utterance))
	if text == "" {
		return false
	}
	for _, phrase := range terminationPhrases {
		if strings.Contains(text, phrase) {
			return true
		}
	}
	return false
}
