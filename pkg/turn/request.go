package turn

import (
	"errors"
	"strings"

	"github.com/google/uuid"
)

const (
	titleWordBudget = 10
	titleCharBudget = 80
)

// Request describes one turn. Transient, never persisted.
type Request struct {
	UserId         uuid.UUID
	ConversationId *uuid.UUID // nil means create a new conversation
	Title          string     // optional override, used only on creation
	Message        string
	UseRetrieval   bool
	UseTools       bool
	DocumentScope  []uuid.UUID

	// Generation overrides; zero values fall back to provider defaults.
	Model       string
	Temperature *float64
	MaxTokens   int
}

var ErrEmptyMessage = errors.New("user message must not be empty")

func (r *Request) Validate() error {
	if strings.TrimSpace(r.Message) == "" {
		return ErrEmptyMessage
	}
	return nil
}

// deriveTitle builds a conversation title from the first few words of the
// user message, capped to a fixed character budget.
func deriveTitle(message string) string {
	words := strings.Fields(message)
	if len(words) > titleWordBudget {
		words = words[:titleWordBudget]
	}
	title := strings.Join(words, " ")
	if len(title) > titleCharBudget {
		title = strings.TrimSpace(title[:titleCharBudget])
	}
	if title == "" {
		title = "New conversation"
	}
	return title
}
