// Package store defines the storage-agnostic persistence contract the
// lifecycle engine and query façade rely on. Adapters (postgres, redisdoc,
// memory) implement only this contract and never re-derive business rules.
//
// Every mutating operation that takes EventFields must write the event in
// the same atomic unit as the state change it describes: a caller never
// observes the state change without its audit record or vice versa.
package store

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/promptvault/promptvault/internal/models"
)

// PromptFields carries the prompt-level attributes of a create call.
type PromptFields struct {
	Name        string
	Description string
	Purpose     string
	Tags        []string
	Owner       string
	SearchText  string
}

// VersionFields carries a fully-resolved version to insert. The version
// number and previous-version back-reference are computed by the lifecycle
// engine, never by the adapter.
type VersionFields struct {
	VersionNumber     string
	ChangeDescription string
	Content           string
	SystemPrompt      string
	Models            []string
	ModelConfig       json.RawMessage
	Author            string
	PreviousVersionID *uuid.UUID
}

// EventFields carries an audit record to append alongside a state change.
type EventFields struct {
	EventType models.EventType
	Comment   string
	Metadata  map[string]any
	CreatedBy string
}

// WithTransition copies event metadata and records the from/to status pair.
// Adapters call it while applying a status change so the recorded transition
// is the one their atomic unit actually performed.
func WithTransition(metadata map[string]any, from, to models.Status) map[string]any {
	out := make(map[string]any, len(metadata)+2)
	for k, v := range metadata {
		out[k] = v
	}
	out["from"] = string(from)
	out["to"] = string(to)
	return out
}

// MetadataPatch applies only the non-nil fields. SearchText is always
// recomputed by the caller when any searchable field changes.
type MetadataPatch struct {
	Name        *string
	Description *string
	Purpose     *string
	Tags        *[]string
	Owner       *string
	SearchText  *string
}

// SearchQuery composes conjunctive filters over prompts.
type SearchQuery struct {
	Search   string
	Tags     []string // overlap: at least one requested tag present
	Purpose  string   // exact match
	Statuses []models.Status
	Models   []string // overlap against the current version's models
	Sort     string   // name | created_at | updated_at | rank
	Order    string   // asc | desc
	Limit    int
	Offset   int
}

// PromptSummary is a prompt enriched with its current version identity for
// list responses.
type PromptSummary struct {
	models.Prompt
	CurrentVersion *VersionSummary `json:"current_version,omitempty"`
}

type VersionSummary struct {
	VersionNumber string   `json:"version_number"`
	Models        []string `json:"models"`
}

// SearchResult carries one page plus the full filtered count.
type SearchResult struct {
	Items  []PromptSummary `json:"items"`
	Total  int             `json:"total"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
}

type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

type PurposeCount struct {
	Purpose string `json:"purpose"`
	Count   int    `json:"count"`
}

// Store is the atomic persistence contract.
type Store interface {
	// CreatePrompt inserts the prompt (status draft), its initial version,
	// sets current_version_id and appends the created event as one atomic
	// unit. On any partial failure the whole unit rolls back.
	CreatePrompt(ctx context.Context, prompt PromptFields, version VersionFields, event EventFields) (*models.Prompt, *models.Version, error)

	GetPrompt(ctx context.Context, id uuid.UUID) (*models.Prompt, error)
	GetPromptWithCurrentVersion(ctx context.Context, id uuid.UUID) (*models.Prompt, *models.Version, error)

	// ListVersions returns a prompt's versions newest first. An unknown
	// prompt yields an empty slice; the lifecycle engine resolves the
	// prompt before listing.
	ListVersions(ctx context.Context, promptID uuid.UUID) ([]models.Version, error)
	GetVersionByNumber(ctx context.Context, promptID uuid.UUID, versionNumber string) (*models.Version, error)

	// AppendVersion inserts the version, repoints current_version_id to it,
	// refreshes updated_at and search_text, and appends the event, all
	// atomically. It fails with a Conflict error if the prompt's
	// current_version_id no longer equals expectedCurrentID.
	AppendVersion(ctx context.Context, promptID uuid.UUID, version VersionFields, expectedCurrentID uuid.UUID, searchText string, event EventFields) (*models.Version, error)

	UpdatePromptMetadata(ctx context.Context, id uuid.UUID, patch MetadataPatch, event EventFields) (*models.Prompt, error)

	// UpdatePromptStatus flips the status and appends the event atomically,
	// returning the previous status. Last-writer-wins by design.
	UpdatePromptStatus(ctx context.Context, id uuid.UUID, status models.Status, event EventFields) (models.Status, error)

	// DeletePrompt hard-deletes the prompt with its versions and events in
	// one atomic unit.
	DeletePrompt(ctx context.Context, id uuid.UUID) error

	// ListEvents returns a page of events newest first plus the full count.
	// Like ListVersions, an unknown prompt yields an empty page.
	ListEvents(ctx context.Context, promptID uuid.UUID, limit, offset int) ([]models.Event, int, error)

	SearchPrompts(ctx context.Context, q SearchQuery) (*SearchResult, error)
	ListTags(ctx context.Context) ([]TagCount, error)
	ListPurposes(ctx context.Context) ([]PurposeCount, error)

	Ping(ctx context.Context) error
}
