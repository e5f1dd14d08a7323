package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Conversation struct {
	Id           uuid.UUID         `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	UserId       uuid.UUID         `gorm:"type:uuid;not null;index"` // User ownership for data isolation
	Title        string            `gorm:"type:text;not null"`
	IsActive     bool              `gorm:"not null;default:true"`
	MessageCount int               `gorm:"not null;default:0"`
	Metadata     datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt    time.Time         `gorm:"autoCreateTime"`
	UpdatedAt    time.Time         `gorm:"autoUpdateTime"`
	DeletedAt    gorm.DeletedAt    `gorm:"index"`
}

func (Conversation) TableName() string {
	return "conversations"
}
