package models

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a prompt. Transitions are unrestricted
// (any status may move to any other) but always require a comment and are
// recorded as a status_changed event.
type Status string

const (
	StatusDraft      Status = "draft"
	StatusInReview   Status = "in_review"
	StatusTesting    Status = "testing"
	StatusActive     Status = "active"
	StatusDeprecated Status = "deprecated"
	StatusArchived   Status = "archived"
)

func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusInReview, StatusTesting, StatusActive, StatusDeprecated, StatusArchived:
		return true
	}
	return false
}

// Statuses lists every valid status, in workflow order.
func Statuses() []Status {
	return []Status{StatusDraft, StatusInReview, StatusTesting, StatusActive, StatusDeprecated, StatusArchived}
}

type EventType string

const (
	EventCreated         EventType = "created"
	EventVersionCreated  EventType = "version_created"
	EventStatusChanged   EventType = "status_changed"
	EventMetadataUpdated EventType = "metadata_updated"
	EventRollback        EventType = "rollback"
)

type Prompt struct {
	ID               uuid.UUID  `json:"id" db:"id"`
	Name             string     `json:"name" db:"name"`
	Description      string     `json:"description,omitempty" db:"description"`
	Purpose          string     `json:"purpose" db:"purpose"`
	Tags             []string   `json:"tags" db:"tags"`
	Status           Status     `json:"status" db:"status"`
	Owner            string     `json:"owner,omitempty" db:"owner"`
	CurrentVersionID *uuid.UUID `json:"current_version_id,omitempty" db:"current_version_id"`
	SearchText       string     `json:"-" db:"search_text"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at" db:"updated_at"`
}

// Version is an immutable snapshot of a prompt's content. Versions are never
// mutated or reassigned; new content always produces a new row.
type Version struct {
	ID                uuid.UUID       `json:"id" db:"id"`
	PromptID          uuid.UUID       `json:"prompt_id" db:"prompt_id"`
	VersionNumber     string          `json:"version_number" db:"version_number"`
	ChangeDescription string          `json:"change_description" db:"change_description"`
	Content           string          `json:"content" db:"content"`
	SystemPrompt      string          `json:"system_prompt,omitempty" db:"system_prompt"`
	Models            []string        `json:"models" db:"models"`
	ModelConfig       json.RawMessage `json:"model_config" db:"model_config"`
	Author            string          `json:"author,omitempty" db:"author"`
	PreviousVersionID *uuid.UUID      `json:"previous_version_id,omitempty" db:"previous_version_id"`
	CreatedAt         time.Time       `json:"created_at" db:"created_at"`
}

// Event is an append-only audit record. Events are only removed as part of a
// prompt hard delete.
type Event struct {
	ID        uuid.UUID       `json:"id" db:"id"`
	PromptID  uuid.UUID       `json:"prompt_id" db:"prompt_id"`
	EventType EventType       `json:"event_type" db:"event_type"`
	Comment   string          `json:"comment,omitempty" db:"comment"`
	Metadata  json.RawMessage `json:"metadata" db:"metadata"`
	CreatedBy string          `json:"created_by,omitempty" db:"created_by"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}

// SearchTextContentLimit caps how much of the current content is folded into
// the denormalized search blob.
const SearchTextContentLimit = 500

// BuildSearchText composes the denormalized blob that free-text search runs
// against: name, description, purpose, tags and the head of the current
// content.
func BuildSearchText(name, description, purpose string, tags []string, content string) string {
	if len(content) > SearchTextContentLimit {
		content = content[:SearchTextContentLimit]
	}
	parts := make([]string, 0, 5)
	for _, p := range []string{name, description, purpose, strings.Join(tags, " "), content} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}
