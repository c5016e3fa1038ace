package llm

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"docchat-backend/internal/chat"
)

const (
	SystemPrompt = "You are a helpful AI assistant that answers questions based only on provided document context."

	DefaultTemperature = 0.7
	DefaultMaxTokens   = 1000
)

const promptInstructions = `Instructions:
- Only use information from the provided context
- If the context doesn't contain relevant information, say so clearly
- Be concise but comprehensive
- Mention which documents you're referencing as [doc <id>] when relevant
- If you're not certain about something, express that uncertainty`

// BuildPrompt renders the user prompt shared by all backends.
func BuildPrompt(bundle *chat.ContextBundle) string {
	var sb strings.Builder

	sb.WriteString("You are an AI assistant helping users understand their documents.\n")
	sb.WriteString("Answer the user's question based only on the provided context from their documents.\n\n")

	if len(bundle.RecentMessages) > 0 {
		sb.WriteString("Conversation so far:\n")
		for _, msg := range bundle.RecentMessages {
			fmt.Fprintf(&sb, "%s: %s\n", msg.Role, msg.Content)
		}
		sb.WriteString("\n")
	}

	sb.WriteString("Context from documents:\n")
	if len(bundle.Chunks) == 0 {
		sb.WriteString("No relevant document content was found for this question.\n\n")
	} else {
		for _, chunk := range bundle.Chunks {
			fmt.Fprintf(&sb, "[doc %d] From document '%s':\n%s\n\n", chunk.DocumentID, chunk.DocumentName, chunk.Text)
		}
	}

	fmt.Fprintf(&sb, "User question: %s\n\n", bundle.UserText)
	sb.WriteString(promptInstructions)
	sb.WriteString("\n\nAnswer:")

	return sb.String()
}

var citationPattern = regexp.MustCompile(`\[doc (\d+)\]`)

// ReferencedDocuments reports the documents behind an answer: the distinct
// documents of the chunks the backend was given, narrowed to the ones the
// answer cites when it cites any of them.
func ReferencedDocuments(bundle *chat.ContextBundle, answer string) []int64 {
	var provided []int64
	seen := make(map[int64]bool)
	for _, chunk := range bundle.Chunks {
		if !seen[chunk.DocumentID] {
			seen[chunk.DocumentID] = true
			provided = append(provided, chunk.DocumentID)
		}
	}

	cited := make(map[int64]bool)
	for _, match := range citationPattern.FindAllStringSubmatch(answer, -1) {
		id, err := strconv.ParseInt(match[1], 10, 64)
		if err == nil && seen[id] {
			cited[id] = true
		}
	}
	if len(cited) == 0 {
		return provided
	}

	refs := make([]int64, 0, len(cited))
	for _, id := range provided {
		if cited[id] {
			refs = append(refs, id)
		}
	}
	return refs
}
