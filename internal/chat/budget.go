package chat

const (
	// Instructions and section headers around the assembled context.
	promptOverheadTokens  = 120
	messageOverheadTokens = 4
	chunkOverheadTokens   = 12
)

// FitToBudget trims a bundle until its estimated prompt size is within
// maxTokens. Conversation history goes first, oldest exchange first, then
// chunks from the lowest score up. The user text is never dropped, so a bundle
// may still exceed the budget when the question alone does.
func FitToBudget(bundle *ContextBundle, counter TokenCounter, maxTokens int) {
	if bundle == nil || counter == nil || maxTokens <= 0 {
		return
	}

	total := promptOverheadTokens + counter.Count(bundle.UserText)

	messageCosts := make([]int, len(bundle.RecentMessages))
	for i, msg := range bundle.RecentMessages {
		messageCosts[i] = messageOverheadTokens + counter.Count(string(msg.Role)) + counter.Count(msg.Content)
		total += messageCosts[i]
	}

	chunkCosts := make([]int, len(bundle.Chunks))
	for i, chunk := range bundle.Chunks {
		chunkCosts[i] = chunkOverheadTokens + counter.Count(chunk.DocumentName) + counter.Count(chunk.Text)
		total += chunkCosts[i]
	}

	dropped := 0
	for total > maxTokens && dropped < len(bundle.RecentMessages) {
		total -= messageCosts[dropped]
		dropped++
		// Keep exchanges whole: a reply goes with the question it answered.
		if bundle.RecentMessages[dropped-1].Role == RoleUser &&
			dropped < len(bundle.RecentMessages) &&
			bundle.RecentMessages[dropped].Role == RoleAssistant {
			total -= messageCosts[dropped]
			dropped++
		}
	}
	bundle.RecentMessages = bundle.RecentMessages[dropped:]
	bundle.DroppedMessages += dropped

	kept := len(bundle.Chunks)
	for total > maxTokens && kept > 0 {
		kept--
		total -= chunkCosts[kept]
	}
	bundle.DroppedChunks += len(bundle.Chunks) - kept
	bundle.Chunks = bundle.Chunks[:kept]
}
