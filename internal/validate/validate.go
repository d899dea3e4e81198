// Package validate holds one typed request per mutating operation plus the
// search query parser. Every request is checked once here, before the
// lifecycle engine runs; nothing re-validates deeper in the stack.
package validate

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/promptvault/promptvault/internal/apperrors"
	"github.com/promptvault/promptvault/internal/models"
	"github.com/promptvault/promptvault/internal/semver"
	"github.com/promptvault/promptvault/internal/store"
)

// Field-level limits shared across operations.
const (
	MaxNameLen         = 255
	MaxDescriptionLen  = 2000
	MaxPurposeLen      = 500
	MaxTags            = 20
	MaxTagLen          = 100
	MaxModels          = 20
	MaxContentLen      = 50000
	MaxSystemPromptLen = 10000

	DefaultLimit = 50
	MaxLimit     = 100
)

type CreatePromptRequest struct {
	Name         string         `json:"name"`
	Description  string         `json:"description"`
	Purpose      string         `json:"purpose"`
	Tags         []string       `json:"tags"`
	Owner        string         `json:"owner"`
	Content      string         `json:"content"`
	SystemPrompt string         `json:"system_prompt"`
	Models       []string       `json:"models"`
	ModelConfig  map[string]any `json:"model_config"`
	Author       string         `json:"author"`
}

func (r *CreatePromptRequest) Validate() error {
	if err := checkName(r.Name, true); err != nil {
		return err
	}
	if len(r.Description) > MaxDescriptionLen {
		return apperrors.Validation("description", "description must be at most %d characters", MaxDescriptionLen)
	}
	if err := checkPurpose(r.Purpose, true); err != nil {
		return err
	}
	if err := checkTags(r.Tags); err != nil {
		return err
	}
	if err := checkContent(r.Content); err != nil {
		return err
	}
	if len(r.SystemPrompt) > MaxSystemPromptLen {
		return apperrors.Validation("system_prompt", "system_prompt must be at most %d characters", MaxSystemPromptLen)
	}
	if len(r.Models) > MaxModels {
		return apperrors.Validation("models", "at most %d models allowed", MaxModels)
	}
	return nil
}

type UpdateMetadataRequest struct {
	Name        *string   `json:"name"`
	Description *string   `json:"description"`
	Purpose     *string   `json:"purpose"`
	Tags        *[]string `json:"tags"`
	Owner       *string   `json:"owner"`
	Author      string    `json:"author"`
}

func (r *UpdateMetadataRequest) Validate() error {
	if r.Name != nil {
		if err := checkName(*r.Name, true); err != nil {
			return err
		}
	}
	if r.Description != nil && len(*r.Description) > MaxDescriptionLen {
		return apperrors.Validation("description", "description must be at most %d characters", MaxDescriptionLen)
	}
	if r.Purpose != nil {
		if err := checkPurpose(*r.Purpose, true); err != nil {
			return err
		}
	}
	if r.Tags != nil {
		if err := checkTags(*r.Tags); err != nil {
			return err
		}
	}
	return nil
}

// Empty reports whether the patch provides no fields at all.
func (r *UpdateMetadataRequest) Empty() bool {
	return r.Name == nil && r.Description == nil && r.Purpose == nil && r.Tags == nil && r.Owner == nil
}

// ChangedFields names the provided fields, for the metadata_updated event.
func (r *UpdateMetadataRequest) ChangedFields() []string {
	var fields []string
	if r.Name != nil {
		fields = append(fields, "name")
	}
	if r.Description != nil {
		fields = append(fields, "description")
	}
	if r.Purpose != nil {
		fields = append(fields, "purpose")
	}
	if r.Tags != nil {
		fields = append(fields, "tags")
	}
	if r.Owner != nil {
		fields = append(fields, "owner")
	}
	return fields
}

type CreateVersionRequest struct {
	Content           string         `json:"content"`
	SystemPrompt      string         `json:"system_prompt"`
	ChangeDescription string         `json:"change_description"`
	BumpType          string         `json:"bump_type"`
	Models            []string       `json:"models"`
	ModelConfig       map[string]any `json:"model_config"`
	Author            string         `json:"author"`
}

func (r *CreateVersionRequest) Validate() error {
	if err := checkContent(r.Content); err != nil {
		return err
	}
	if len(r.SystemPrompt) > MaxSystemPromptLen {
		return apperrors.Validation("system_prompt", "system_prompt must be at most %d characters", MaxSystemPromptLen)
	}
	if strings.TrimSpace(r.ChangeDescription) == "" {
		return apperrors.Validation("change_description", "change description is required")
	}
	if !semver.BumpType(r.BumpType).Valid() {
		return apperrors.Validation("bump_type", "bump_type must be one of major, minor, patch")
	}
	if len(r.Models) > MaxModels {
		return apperrors.Validation("models", "at most %d models allowed", MaxModels)
	}
	return nil
}

type StatusChangeRequest struct {
	Status  string `json:"status"`
	Comment string `json:"comment"`
	Author  string `json:"author"`
}

func (r *StatusChangeRequest) Validate() error {
	if !models.Status(r.Status).Valid() {
		return apperrors.Validation("status", "status must be one of draft, in_review, testing, active, deprecated, archived")
	}
	if strings.TrimSpace(r.Comment) == "" {
		return apperrors.Validation("comment", "comment is required for status changes")
	}
	return nil
}

type RollbackRequest struct {
	Comment string `json:"comment"`
	Author  string `json:"author"`
}

func (r *RollbackRequest) Validate() error {
	if strings.TrimSpace(r.Comment) == "" {
		return apperrors.Validation("comment", "comment is required for rollback")
	}
	return nil
}

// ParseSearchQuery builds a validated search query from URL parameters.
// Array parameters accept repeated keys and comma-separated values.
func ParseSearchQuery(values url.Values) (store.SearchQuery, error) {
	q := store.SearchQuery{
		Search:  strings.TrimSpace(values.Get("search")),
		Purpose: values.Get("purpose"),
		Tags:    multiValue(values, "tags"),
		Models:  multiValue(values, "models"),
		Sort:    values.Get("sort"),
		Order:   values.Get("order"),
		Limit:   DefaultLimit,
		Offset:  0,
	}

	for _, s := range multiValue(values, "status") {
		st := models.Status(s)
		if !st.Valid() {
			return store.SearchQuery{}, apperrors.Validation("status", "invalid status %q", s)
		}
		q.Statuses = append(q.Statuses, st)
	}

	switch q.Sort {
	case "":
		q.Sort = "updated_at"
	case "name", "created_at", "updated_at", "rank":
	default:
		return store.SearchQuery{}, apperrors.Validation("sort", "sort must be one of name, created_at, updated_at, rank")
	}

	switch q.Order {
	case "":
		q.Order = "desc"
	case "asc", "desc":
	default:
		return store.SearchQuery{}, apperrors.Validation("order", "order must be asc or desc")
	}

	if v := values.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > MaxLimit {
			return store.SearchQuery{}, apperrors.Validation("limit", "limit must be an integer between 1 and %d", MaxLimit)
		}
		q.Limit = n
	}
	if v := values.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return store.SearchQuery{}, apperrors.Validation("offset", "offset must be a non-negative integer")
		}
		q.Offset = n
	}
	return q, nil
}

// ParseEventsQuery extracts limit/offset for the event log with the same
// bounds as search.
func ParseEventsQuery(values url.Values) (limit, offset int, err error) {
	limit = DefaultLimit
	if v := values.Get("limit"); v != "" {
		n, convErr := strconv.Atoi(v)
		if convErr != nil || n < 1 || n > MaxLimit {
			return 0, 0, apperrors.Validation("limit", "limit must be an integer between 1 and %d", MaxLimit)
		}
		limit = n
	}
	if v := values.Get("offset"); v != "" {
		n, convErr := strconv.Atoi(v)
		if convErr != nil || n < 0 {
			return 0, 0, apperrors.Validation("offset", "offset must be a non-negative integer")
		}
		offset = n
	}
	return limit, offset, nil
}

func checkName(name string, required bool) error {
	if strings.TrimSpace(name) == "" {
		if required {
			return apperrors.Validation("name", "name is required")
		}
		return nil
	}
	if len(name) > MaxNameLen {
		return apperrors.Validation("name", "name must be at most %d characters", MaxNameLen)
	}
	return nil
}

func checkPurpose(purpose string, required bool) error {
	if strings.TrimSpace(purpose) == "" {
		if required {
			return apperrors.Validation("purpose", "purpose is required")
		}
		return nil
	}
	if len(purpose) > MaxPurposeLen {
		return apperrors.Validation("purpose", "purpose must be at most %d characters", MaxPurposeLen)
	}
	return nil
}

func checkTags(tags []string) error {
	if len(tags) > MaxTags {
		return apperrors.Validation("tags", "at most %d tags allowed", MaxTags)
	}
	for _, t := range tags {
		if len(t) > MaxTagLen {
			return apperrors.Validation("tags", "each tag must be at most %d characters", MaxTagLen)
		}
	}
	return nil
}

func checkContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return apperrors.Validation("content", "content is required")
	}
	if len(content) > MaxContentLen {
		return apperrors.Validation("content", "content must be at most %d characters", MaxContentLen)
	}
	return nil
}

func multiValue(values url.Values, key string) []string {
	var out []string
	for _, raw := range values[key] {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	// Support the tags[]/status[] spelling some clients send.
	for _, raw := range values[key+"[]"] {
		if raw = strings.TrimSpace(raw); raw != "" {
			out = append(out, raw)
		}
	}
	return out
}
