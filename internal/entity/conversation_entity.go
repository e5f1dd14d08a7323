package entity

import (
	"time"

	"github.com/google/uuid"
)

type Conversation struct {
	Id           uuid.UUID      `json:"id"`
	UserId       uuid.UUID      `json:"user_id"`
	Title        string         `json:"title"`
	IsActive     bool           `json:"is_active"`
	MessageCount int            `json:"message_count"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    *time.Time     `json:"updated_at,omitempty"`
	DeletedAt    *time.Time     `json:"-"`
	IsDeleted    bool           `json:"-"`
}
