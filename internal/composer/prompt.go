package composer

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/kalambet/supportbot/internal/escalation"
	"github.com/kalambet/supportbot/internal/faq"
)

// HistoryWindow is the number of trailing conversation turns included in a
// prompt.
const HistoryWindow = 5

// Turn is one prior message of the conversation as the prompt sees it.
type Turn struct {
	Role    string
	Content string
}

const personaHeader = `You are a helpful customer support AI assistant. Your role is to:

1. Answer customer questions based on the provided FAQ knowledge base
2. Be friendly, professional, and helpful
3. If you cannot find a relevant answer in the FAQs, politely escalate to human support
4. Keep responses concise but informative
5. Always maintain a helpful tone

FAQ Knowledge Base:
`

const personaFooter = `

Instructions:
- If the customer's question matches or is similar to any FAQ, provide the relevant answer
- If the question is not covered in the FAQs or you're unsure, respond with: "` + escalation.HandoffSentence + `"
- Always be polite and professional
- If asked about topics not related to customer support, politely redirect to support-related questions

Remember: When in doubt, escalate to human support rather than providing potentially incorrect information.`

// Composer assembles the single text prompt sent to the LLM from the fixed
// support persona, the FAQ knowledge base, the recent conversation and the
// customer's question.
type Composer struct{}

// New creates a Composer.
func New() *Composer {
	return &Composer{}
}

// Compose builds the prompt. Only the last HistoryWindow turns of history are
// rendered; the history section is omitted when there is none. query is
// inserted verbatim.
func (c *Composer) Compose(query string, history []Turn, faqs []faq.Entry) string {
	var sb strings.Builder
	sb.WriteString(SystemPrompt(faqs))
	sb.WriteString("\n\n")

	if len(history) > HistoryWindow {
		history = history[len(history)-HistoryWindow:]
	}
	if len(history) > 0 {
		sb.WriteString("Previous conversation:\n")
		for i, t := range history {
			if i > 0 {
				sb.WriteByte('\n')
			}
			sb.WriteString(titleRole(t.Role))
			sb.WriteString(": ")
			sb.WriteString(t.Content)
		}
		sb.WriteString("\n\n")
	}

	sb.WriteString("Customer Question: ")
	sb.WriteString(query)
	sb.WriteString("\n\nPlease provide a helpful response:")
	return sb.String()
}

// SystemPrompt renders the persona with the knowledge base embedded.
func SystemPrompt(faqs []faq.Entry) string {
	blocks := make([]string, len(faqs))
	for i, f := range faqs {
		blocks[i] = "Q: " + f.Question + "\nA: " + f.Answer + "\n"
	}
	return personaHeader + strings.Join(blocks, "\n") + personaFooter
}

// titleRole upper-cases the first letter of a stored role ("user" -> "User").
func titleRole(role string) string {
	r, size := utf8.DecodeRuneInString(role)
	if r == utf8.RuneError {
		return role
	}
	return string(unicode.ToUpper(r)) + role[size:]
}

// EstimateTokens provides a rough token count using 4 chars per token heuristic.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}
