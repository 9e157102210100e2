// Package escalation decides whether an assistant reply hands the customer
// over to a human agent.
package escalation

import "strings"

// HandoffSentence is the reply the assistant is instructed to give when the
// knowledge base has no good answer. It must always classify as escalated.
const HandoffSentence = "I understand your question, but I need to connect you with a human support agent for the best assistance. Please hold while I transfer you."

// Markers are matched case-insensitively anywhere in a reply.
var Markers = []string{
	"connect you with a human support agent",
	"transfer you",
	"escalate",
	"human support",
	"I need to connect you",
	"senior support agent",
	"specialized issue that requires expert attention",
}

var lowered = func() []string {
	out := make([]string, len(Markers))
	for i, m := range Markers {
		out[i] = strings.ToLower(m)
	}
	return out
}()

// IsEscalated reports whether text contains any escalation marker.
func IsEscalated(text string) bool {
	if text == "" {
		return false
	}
	t := strings.ToLower(text)
	for _, m := range lowered {
		if strings.Contains(t, m) {
			return true
		}
	}
	return false
}
