package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Message has no UpdatedAt/DeletedAt on purpose: committed messages are
// immutable and only removed when their conversation is deleted.
type Message struct {
	Id             uuid.UUID         `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	ConversationId uuid.UUID         `gorm:"type:uuid;not null;index"`
	Role           string            `gorm:"type:varchar(50);not null"`
	Content        string            `gorm:"type:text;not null"`
	TokenCount     int               `gorm:"not null;default:0"`
	ToolCalls      datatypes.JSON    `gorm:"type:jsonb"`
	ToolResults    datatypes.JSON    `gorm:"type:jsonb"`
	Metadata       datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt      time.Time         `gorm:"autoCreateTime"`
}

func (Message) TableName() string {
	return "messages"
}
