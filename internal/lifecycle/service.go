// Package lifecycle implements the prompt state machine: the creation
// protocol, the version-bump and rollback protocols over immutable version
// chains, status transitions and deletion. It is the single owner of these
// rules; store adapters only execute the atomic writes it asks for.
package lifecycle

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/promptvault/promptvault/internal/apperrors"
	"github.com/promptvault/promptvault/internal/models"
	"github.com/promptvault/promptvault/internal/semver"
	"github.com/promptvault/promptvault/internal/store"
	"github.com/promptvault/promptvault/internal/validate"
)

// InitialVersion is the version number every prompt starts at.
const InitialVersion = "1.0.0"

type Service struct {
	store store.Store
}

func NewService(st store.Store) *Service {
	return &Service{store: st}
}

// PromptDetail is a prompt joined with its current version for read
// responses.
type PromptDetail struct {
	models.Prompt
	CurrentVersion *models.Version `json:"current_version,omitempty"`
	VersionCount   int             `json:"version_count"`
}

// Create runs the creation protocol: prompt (status draft) + version 1.0.0 +
// created event, atomically. Callers observe the full triple or nothing.
func (s *Service) Create(ctx context.Context, req validate.CreatePromptRequest) (*models.Prompt, *models.Version, error) {
	cfg, err := marshalConfig(req.ModelConfig)
	if err != nil {
		return nil, nil, err
	}

	prompt := store.PromptFields{
		Name:        req.Name,
		Description: req.Description,
		Purpose:     req.Purpose,
		Tags:        req.Tags,
		Owner:       req.Owner,
		SearchText:  models.BuildSearchText(req.Name, req.Description, req.Purpose, req.Tags, req.Content),
	}
	version := store.VersionFields{
		VersionNumber:     InitialVersion,
		ChangeDescription: "Initial version",
		Content:           req.Content,
		SystemPrompt:      req.SystemPrompt,
		Models:            req.Models,
		ModelConfig:       cfg,
		Author:            req.Author,
	}
	event := store.EventFields{
		EventType: models.EventCreated,
		Metadata:  map[string]any{"initial_version": InitialVersion},
		CreatedBy: req.Author,
	}
	return s.store.CreatePrompt(ctx, prompt, version, event)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*PromptDetail, error) {
	p, v, err := s.store.GetPromptWithCurrentVersion(ctx, id)
	if err != nil {
		return nil, err
	}
	versions, err := s.store.ListVersions(ctx, id)
	if err != nil {
		return nil, err
	}
	return &PromptDetail{Prompt: *p, CurrentVersion: v, VersionCount: len(versions)}, nil
}

// CreateVersion runs the bump protocol. The new version number is derived
// from the current version and the bump type, never supplied by the caller.
// A concurrent writer loses with a Conflict error.
func (s *Service) CreateVersion(ctx context.Context, id uuid.UUID, req validate.CreateVersionRequest) (*models.Version, error) {
	p, current, err := s.store.GetPromptWithCurrentVersion(ctx, id)
	if err != nil {
		return nil, err
	}
	if current == nil {
		// Unreachable after a completed creation; defensive check.
		return nil, apperrors.Conflict("prompt %s has no current version", id)
	}

	newNumber, err := semver.Bump(current.VersionNumber, semver.BumpType(req.BumpType))
	if err != nil {
		return nil, apperrors.Validation("bump_type", "cannot bump version %q: %v", current.VersionNumber, err)
	}

	version := store.VersionFields{
		VersionNumber:     newNumber,
		ChangeDescription: req.ChangeDescription,
		Content:           req.Content,
		SystemPrompt:      req.SystemPrompt,
		Models:            req.Models,
		Author:            req.Author,
		PreviousVersionID: &current.ID,
	}
	// models and model_config carry over from the current version when the
	// request omits them.
	if version.Models == nil {
		version.Models = current.Models
	}
	if req.ModelConfig != nil {
		version.ModelConfig, err = marshalConfig(req.ModelConfig)
		if err != nil {
			return nil, err
		}
	} else {
		version.ModelConfig = current.ModelConfig
	}

	searchText := models.BuildSearchText(p.Name, p.Description, p.Purpose, p.Tags, req.Content)
	event := store.EventFields{
		EventType: models.EventVersionCreated,
		Metadata: map[string]any{
			"version":          newNumber,
			"previous_version": current.VersionNumber,
			"type":             req.BumpType,
		},
		CreatedBy: req.Author,
	}
	return s.store.AppendVersion(ctx, id, version, current.ID, searchText, event)
}

// Rollback restores a prior version's content by minting a new version
// patch-bumped from the pre-rollback current version. History is never
// deleted or rewritten.
func (s *Service) Rollback(ctx context.Context, id uuid.UUID, versionNumber string, req validate.RollbackRequest) (*models.Version, error) {
	p, current, err := s.store.GetPromptWithCurrentVersion(ctx, id)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, apperrors.Conflict("prompt %s has no current version", id)
	}

	target, err := s.store.GetVersionByNumber(ctx, id, versionNumber)
	if err != nil {
		return nil, err
	}

	newNumber, err := semver.Bump(current.VersionNumber, semver.BumpPatch)
	if err != nil {
		return nil, apperrors.Store(fmt.Errorf("bump current version %q: %w", current.VersionNumber, err))
	}

	version := store.VersionFields{
		VersionNumber:     newNumber,
		ChangeDescription: fmt.Sprintf("Rollback to version %s: %s", target.VersionNumber, req.Comment),
		Content:           target.Content,
		SystemPrompt:      target.SystemPrompt,
		Models:            target.Models,
		ModelConfig:       target.ModelConfig,
		Author:            req.Author,
		PreviousVersionID: &current.ID,
	}
	searchText := models.BuildSearchText(p.Name, p.Description, p.Purpose, p.Tags, target.Content)
	event := store.EventFields{
		EventType: models.EventRollback,
		Comment:   req.Comment,
		Metadata: map[string]any{
			"from_version": current.VersionNumber,
			"to_version":   target.VersionNumber,
			"new_version":  newNumber,
		},
		CreatedBy: req.Author,
	}
	return s.store.AppendVersion(ctx, id, version, current.ID, searchText, event)
}

// ChangeStatus applies a status transition. Any status may move to any
// other; the comment is mandatory and the transition is recorded with its
// from/to pair.
func (s *Service) ChangeStatus(ctx context.Context, id uuid.UUID, req validate.StatusChangeRequest) (from, to models.Status, err error) {
	to = models.Status(req.Status)
	event := store.EventFields{
		EventType: models.EventStatusChanged,
		Comment:   req.Comment,
		CreatedBy: req.Author,
	}
	from, err = s.store.UpdatePromptStatus(ctx, id, to, event)
	if err != nil {
		return "", "", err
	}
	return from, to, nil
}

// UpdateMetadata applies only the provided fields and recomputes the search
// blob when any searchable field changed.
func (s *Service) UpdateMetadata(ctx context.Context, id uuid.UUID, req validate.UpdateMetadataRequest) (*models.Prompt, error) {
	p, current, err := s.store.GetPromptWithCurrentVersion(ctx, id)
	if err != nil {
		return nil, err
	}

	patch := store.MetadataPatch{
		Name:        req.Name,
		Description: req.Description,
		Purpose:     req.Purpose,
		Tags:        req.Tags,
		Owner:       req.Owner,
	}

	name, description, purpose, tags := p.Name, p.Description, p.Purpose, p.Tags
	if req.Name != nil {
		name = *req.Name
	}
	if req.Description != nil {
		description = *req.Description
	}
	if req.Purpose != nil {
		purpose = *req.Purpose
	}
	if req.Tags != nil {
		tags = *req.Tags
	}
	content := ""
	if current != nil {
		content = current.Content
	}
	searchText := models.BuildSearchText(name, description, purpose, tags, content)
	patch.SearchText = &searchText

	event := store.EventFields{
		EventType: models.EventMetadataUpdated,
		Metadata:  map[string]any{"fields": req.ChangedFields()},
		CreatedBy: req.Author,
	}
	return s.store.UpdatePromptMetadata(ctx, id, patch, event)
}

// Delete removes a prompt. Hard deletion cascades versions and events in
// one atomic unit; soft deletion archives the prompt and keeps all data.
func (s *Service) Delete(ctx context.Context, id uuid.UUID, hard bool) error {
	if hard {
		return s.store.DeletePrompt(ctx, id)
	}
	event := store.EventFields{
		EventType: models.EventStatusChanged,
		Comment:   "Prompt archived via delete",
		Metadata:  map[string]any{"reason": "deleted"},
	}
	_, err := s.store.UpdatePromptStatus(ctx, id, models.StatusArchived, event)
	return err
}

func (s *Service) ListVersions(ctx context.Context, id uuid.UUID) ([]models.Version, error) {
	if _, err := s.store.GetPrompt(ctx, id); err != nil {
		return nil, err
	}
	return s.store.ListVersions(ctx, id)
}

func (s *Service) GetVersion(ctx context.Context, id uuid.UUID, versionNumber string) (*models.Version, error) {
	if _, err := s.store.GetPrompt(ctx, id); err != nil {
		return nil, err
	}
	return s.store.GetVersionByNumber(ctx, id, versionNumber)
}

func (s *Service) ListEvents(ctx context.Context, id uuid.UUID, limit, offset int) ([]models.Event, int, error) {
	if _, err := s.store.GetPrompt(ctx, id); err != nil {
		return nil, 0, err
	}
	return s.store.ListEvents(ctx, id, limit, offset)
}

func marshalConfig(cfg map[string]any) (json.RawMessage, error) {
	if cfg == nil {
		return json.RawMessage(`{}`), nil
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		return nil, apperrors.Validation("model_config", "model_config must be a JSON object")
	}
	return raw, nil
}
