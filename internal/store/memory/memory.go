// Package memory implements the store contract in process memory. It exists
// for tests and local development; it honors the same atomicity and
// optimistic-concurrency semantics as the durable adapters.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/promptvault/promptvault/internal/apperrors"
	"github.com/promptvault/promptvault/internal/models"
	"github.com/promptvault/promptvault/internal/store"
)

type Store struct {
	mu       sync.RWMutex
	prompts  map[uuid.UUID]*models.Prompt
	versions map[uuid.UUID]*models.Version
	events   map[uuid.UUID][]models.Event // per prompt, insertion order
	byPrompt map[uuid.UUID][]uuid.UUID    // version ids, insertion order
}

func New() *Store {
	return &Store{
		prompts:  make(map[uuid.UUID]*models.Prompt),
		versions: make(map[uuid.UUID]*models.Version),
		events:   make(map[uuid.UUID][]models.Event),
		byPrompt: make(map[uuid.UUID][]uuid.UUID),
	}
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) CreatePrompt(_ context.Context, prompt store.PromptFields, version store.VersionFields, event store.EventFields) (*models.Prompt, *models.Version, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	v := newVersion(version, now)

	p := &models.Prompt{
		ID:               uuid.New(),
		Name:             prompt.Name,
		Description:      prompt.Description,
		Purpose:          prompt.Purpose,
		Tags:             cloneStrings(prompt.Tags),
		Status:           models.StatusDraft,
		Owner:            prompt.Owner,
		CurrentVersionID: &v.ID,
		SearchText:       prompt.SearchText,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	v.PromptID = p.ID

	s.prompts[p.ID] = p
	s.versions[v.ID] = v
	s.byPrompt[p.ID] = append(s.byPrompt[p.ID], v.ID)
	if err := s.appendEventLocked(p.ID, event, now); err != nil {
		delete(s.prompts, p.ID)
		delete(s.versions, v.ID)
		delete(s.byPrompt, p.ID)
		return nil, nil, err
	}

	return clonePrompt(p), cloneVersion(v), nil
}

func (s *Store) GetPrompt(_ context.Context, id uuid.UUID) (*models.Prompt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.prompts[id]
	if !ok {
		return nil, apperrors.NotFound("prompt %s not found", id)
	}
	return clonePrompt(p), nil
}

func (s *Store) GetPromptWithCurrentVersion(_ context.Context, id uuid.UUID) (*models.Prompt, *models.Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.prompts[id]
	if !ok {
		return nil, nil, apperrors.NotFound("prompt %s not found", id)
	}
	if p.CurrentVersionID == nil {
		return clonePrompt(p), nil, nil
	}
	v, ok := s.versions[*p.CurrentVersionID]
	if !ok {
		return nil, nil, apperrors.NotFound("current version of prompt %s not found", id)
	}
	return clonePrompt(p), cloneVersion(v), nil
}

func (s *Store) ListVersions(_ context.Context, promptID uuid.UUID) ([]models.Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byPrompt[promptID]
	out := make([]models.Version, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		out = append(out, *cloneVersion(s.versions[ids[i]]))
	}
	return out, nil
}

func (s *Store) GetVersionByNumber(_ context.Context, promptID uuid.UUID, versionNumber string) (*models.Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, vid := range s.byPrompt[promptID] {
		if v := s.versions[vid]; v.VersionNumber == versionNumber {
			return cloneVersion(v), nil
		}
	}
	return nil, apperrors.NotFound("version %s of prompt %s not found", versionNumber, promptID)
}

func (s *Store) AppendVersion(_ context.Context, promptID uuid.UUID, version store.VersionFields, expectedCurrentID uuid.UUID, searchText string, event store.EventFields) (*models.Version, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.prompts[promptID]
	if !ok {
		return nil, apperrors.NotFound("prompt %s not found", promptID)
	}
	if p.CurrentVersionID == nil || *p.CurrentVersionID != expectedCurrentID {
		return nil, apperrors.Conflict("prompt %s was modified concurrently", promptID)
	}

	now := time.Now().UTC()
	v := newVersion(version, now)
	v.PromptID = promptID

	s.versions[v.ID] = v
	s.byPrompt[promptID] = append(s.byPrompt[promptID], v.ID)
	p.CurrentVersionID = &v.ID
	p.SearchText = searchText
	p.UpdatedAt = now

	if err := s.appendEventLocked(promptID, event, now); err != nil {
		return nil, err
	}
	return cloneVersion(v), nil
}

func (s *Store) UpdatePromptMetadata(_ context.Context, id uuid.UUID, patch store.MetadataPatch, event store.EventFields) (*models.Prompt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.prompts[id]
	if !ok {
		return nil, apperrors.NotFound("prompt %s not found", id)
	}
	if patch.Name != nil {
		p.Name = *patch.Name
	}
	if patch.Description != nil {
		p.Description = *patch.Description
	}
	if patch.Purpose != nil {
		p.Purpose = *patch.Purpose
	}
	if patch.Tags != nil {
		p.Tags = cloneStrings(*patch.Tags)
	}
	if patch.Owner != nil {
		p.Owner = *patch.Owner
	}
	if patch.SearchText != nil {
		p.SearchText = *patch.SearchText
	}
	now := time.Now().UTC()
	p.UpdatedAt = now

	if err := s.appendEventLocked(id, event, now); err != nil {
		return nil, err
	}
	return clonePrompt(p), nil
}

func (s *Store) UpdatePromptStatus(_ context.Context, id uuid.UUID, status models.Status, event store.EventFields) (models.Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.prompts[id]
	if !ok {
		return "", apperrors.NotFound("prompt %s not found", id)
	}
	previous := p.Status
	now := time.Now().UTC()
	p.Status = status
	p.UpdatedAt = now

	ev := event
	ev.Metadata = store.WithTransition(event.Metadata, previous, status)

	if err := s.appendEventLocked(id, ev, now); err != nil {
		return "", err
	}
	return previous, nil
}

func (s *Store) DeletePrompt(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.prompts[id]; !ok {
		return apperrors.NotFound("prompt %s not found", id)
	}
	for _, vid := range s.byPrompt[id] {
		delete(s.versions, vid)
	}
	delete(s.byPrompt, id)
	delete(s.events, id)
	delete(s.prompts, id)
	return nil
}

func (s *Store) ListEvents(_ context.Context, promptID uuid.UUID, limit, offset int) ([]models.Event, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.events[promptID]
	out := make([]models.Event, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		out = append(out, all[i])
	}
	total := len(out)
	if offset >= total {
		return []models.Event{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return out[offset:end], total, nil
}

func (s *Store) SearchPrompts(_ context.Context, q store.SearchQuery) (*store.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var filtered []*models.Prompt
	for _, p := range s.prompts {
		if !s.matchesLocked(p, q) {
			continue
		}
		filtered = append(filtered, p)
	}

	desc := q.Order != "asc"
	sort.SliceStable(filtered, func(i, j int) bool {
		a, b := filtered[i], filtered[j]
		var less bool
		switch q.Sort {
		case "name":
			less = a.Name < b.Name
		case "created_at":
			less = a.CreatedAt.Before(b.CreatedAt)
		default:
			less = a.UpdatedAt.Before(b.UpdatedAt)
		}
		if desc {
			return !less && !sortKeyEqual(a, b, q.Sort)
		}
		return less
	})

	result := &store.SearchResult{Items: []store.PromptSummary{}, Total: len(filtered), Limit: q.Limit, Offset: q.Offset}
	if q.Offset < len(filtered) {
		end := q.Offset + q.Limit
		if end > len(filtered) {
			end = len(filtered)
		}
		for _, p := range filtered[q.Offset:end] {
			item := store.PromptSummary{Prompt: *clonePrompt(p)}
			if p.CurrentVersionID != nil {
				v := s.versions[*p.CurrentVersionID]
				item.CurrentVersion = &store.VersionSummary{VersionNumber: v.VersionNumber, Models: cloneStrings(v.Models)}
			}
			result.Items = append(result.Items, item)
		}
	}
	return result, nil
}

func (s *Store) ListTags(context.Context) ([]store.TagCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := map[string]int{}
	for _, p := range s.prompts {
		for _, t := range p.Tags {
			counts[t]++
		}
	}
	out := make([]store.TagCount, 0, len(counts))
	for t, c := range counts {
		out = append(out, store.TagCount{Tag: t, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Tag < out[j].Tag
	})
	return out, nil
}

func (s *Store) ListPurposes(context.Context) ([]store.PurposeCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := map[string]int{}
	for _, p := range s.prompts {
		counts[p.Purpose]++
	}
	out := make([]store.PurposeCount, 0, len(counts))
	for pu, c := range counts {
		out = append(out, store.PurposeCount{Purpose: pu, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Purpose < out[j].Purpose
	})
	return out, nil
}

func (s *Store) matchesLocked(p *models.Prompt, q store.SearchQuery) bool {
	if len(q.Statuses) > 0 {
		found := false
		for _, st := range q.Statuses {
			if st == p.Status {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if q.Purpose != "" && p.Purpose != q.Purpose {
		return false
	}
	if len(q.Tags) > 0 && !overlaps(p.Tags, q.Tags) {
		return false
	}
	if len(q.Models) > 0 {
		if p.CurrentVersionID == nil {
			return false
		}
		v := s.versions[*p.CurrentVersionID]
		if v == nil || !overlaps(v.Models, q.Models) {
			return false
		}
	}
	if q.Search != "" && !strings.Contains(strings.ToLower(p.SearchText), strings.ToLower(q.Search)) {
		return false
	}
	return true
}

func (s *Store) appendEventLocked(promptID uuid.UUID, f store.EventFields, now time.Time) error {
	metadata, err := json.Marshal(f.Metadata)
	if err != nil {
		return apperrors.Store(fmt.Errorf("marshal event metadata: %w", err))
	}
	s.events[promptID] = append(s.events[promptID], models.Event{
		ID:        uuid.New(),
		PromptID:  promptID,
		EventType: f.EventType,
		Comment:   f.Comment,
		Metadata:  metadata,
		CreatedBy: f.CreatedBy,
		CreatedAt: now,
	})
	return nil
}

func newVersion(f store.VersionFields, now time.Time) *models.Version {
	cfg := f.ModelConfig
	if len(cfg) == 0 {
		cfg = json.RawMessage(`{}`)
	}
	return &models.Version{
		ID:                uuid.New(),
		VersionNumber:     f.VersionNumber,
		ChangeDescription: f.ChangeDescription,
		Content:           f.Content,
		SystemPrompt:      f.SystemPrompt,
		Models:            cloneStrings(f.Models),
		ModelConfig:       cfg,
		Author:            f.Author,
		PreviousVersionID: f.PreviousVersionID,
		CreatedAt:         now,
	}
}

func sortKeyEqual(a, b *models.Prompt, field string) bool {
	switch field {
	case "name":
		return a.Name == b.Name
	case "created_at":
		return a.CreatedAt.Equal(b.CreatedAt)
	default:
		return a.UpdatedAt.Equal(b.UpdatedAt)
	}
}

func overlaps(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}

func cloneStrings(in []string) []string {
	if in == nil {
		return []string{}
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func clonePrompt(p *models.Prompt) *models.Prompt {
	out := *p
	out.Tags = cloneStrings(p.Tags)
	if p.CurrentVersionID != nil {
		id := *p.CurrentVersionID
		out.CurrentVersionID = &id
	}
	return &out
}

func cloneVersion(v *models.Version) *models.Version {
	out := *v
	out.Models = cloneStrings(v.Models)
	out.ModelConfig = append(json.RawMessage(nil), v.ModelConfig...)
	if v.PreviousVersionID != nil {
		id := *v.PreviousVersionID
		out.PreviousVersionID = &id
	}
	return &out
}
