package turn

import (
	"encoding/json"
	"fmt"
	"strings"

	"ai-assistant-be/internal/entity"
	"ai-assistant-be/pkg/llm"
	"ai-assistant-be/pkg/store"
)

const systemInstructions = `You are a helpful assistant. Answer the user's latest message using the conversation so far.

Rules:
- When <reference_material> is provided, ground your answer in it and mention which document the information came from.
- When a tool result is available, use it instead of guessing. If a tool call failed, acknowledge the failure and answer as best you can without it.
- Keep answers concise and direct.`

// truncatedFallback is the reply when the round cap is reached and the
// model produced no text on the final round.
const truncatedFallback = "I could not finish all the lookups in time, so here is my best answer with what I have so far."

// buildSystemMessage renders the system prompt, splicing in retrieved
// passages when retrieval produced any.
func buildSystemMessage(passages []store.Passage) llm.Message {
	if len(passages) == 0 {
		return llm.Message{Role: "system", Content: systemInstructions}
	}

	var b strings.Builder
	b.WriteString(systemInstructions)
	b.WriteString("\n\n<reference_material>\n")
	for i, p := range passages {
		fmt.Fprintf(&b, "[%d] %s\n%s\n\n", i+1, p.Title, p.Content)
	}
	b.WriteString("</reference_material>")
	return llm.Message{Role: "system", Content: b.String()}
}

// historyMessages maps committed conversation history into prompt messages.
// Tool and system rows are skipped; the model only needs the dialogue.
func historyMessages(history []*entity.Message) []llm.Message {
	messages := make([]llm.Message, 0, len(history))
	for _, m := range history {
		if m.Role != entity.MessageRoleUser && m.Role != entity.MessageRoleAssistant {
			continue
		}
		if m.Content == "" {
			continue
		}
		messages = append(messages, llm.Message{Role: m.Role, Content: m.Content})
	}
	return messages
}

// toolResultContent renders one settled tool result as the content of a
// tool-role message so the model can read it on the next round.
func toolResultContent(result store.ToolCallResult) string {
	if result.Failed() {
		return fmt.Sprintf(`{"error": %q}`, result.Error)
	}
	raw, err := json.Marshal(result.Output)
	if err != nil {
		return fmt.Sprintf(`{"error": "unencodable tool output: %v"}`, err)
	}
	return string(raw)
}
