// Package models holds the persisted representations shared by the
// server and the consentctl tool.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Derived from gorm.Model
type Model struct {
	CreatedAt time.Time
	UpdatedAt time.Time
	ID        uuid.UUID `gorm:"primaryKey;default:uuidv7_sub_ms()"`
}

type ConsentAPIModel interface {
	GetID() uuid.UUID
}
