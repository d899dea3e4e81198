// Package redisdoc implements the store contract on Redis as a document
// store: one JSON document per entity, per-prompt index structures, and
// WATCH/MULTI/EXEC transactions for the atomic pointer repoints. It mirrors
// the hosted document backend the relational adapter is interchangeable
// with; free-text search is substring matching over the denormalized blob
// and rank sorting falls back to recency.
package redisdoc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/promptvault/promptvault/internal/apperrors"
	"github.com/promptvault/promptvault/internal/models"
	"github.com/promptvault/promptvault/internal/store"
)

// lwwRetries bounds the watch loop for last-writer-wins operations
// (status/metadata). Version-chain operations never retry; they surface
// Conflict instead.
const lwwRetries = 3

type Store struct {
	client *redis.Client
}

func New(client *redis.Client) *Store {
	return &Store{client: client}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func promptKey(id uuid.UUID) string   { return "prompt:" + id.String() }
func versionKey(id uuid.UUID) string  { return "version:" + id.String() }
func versionsKey(id uuid.UUID) string { return "prompt:" + id.String() + ":versions" }
func vnumsKey(id uuid.UUID) string    { return "prompt:" + id.String() + ":vnums" }
func eventsKey(id uuid.UUID) string   { return "prompt:" + id.String() + ":events" }

const allPromptsKey = "prompts"

func (s *Store) CreatePrompt(ctx context.Context, prompt store.PromptFields, version store.VersionFields, event store.EventFields) (*models.Prompt, *models.Version, error) {
	now := time.Now().UTC()
	v := newVersion(uuid.New(), version, now)

	p := &models.Prompt{
		ID:               uuid.New(),
		Name:             prompt.Name,
		Description:      prompt.Description,
		Purpose:          prompt.Purpose,
		Tags:             emptyIfNil(prompt.Tags),
		Status:           models.StatusDraft,
		Owner:            prompt.Owner,
		CurrentVersionID: &v.ID,
		SearchText:       prompt.SearchText,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	v.PromptID = p.ID

	e, err := encodeEvent(p.ID, event, now)
	if err != nil {
		return nil, nil, err
	}
	pDoc, vDoc, err := encodeDocs(p, v)
	if err != nil {
		return nil, nil, err
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, promptKey(p.ID), pDoc, 0)
		pipe.Set(ctx, versionKey(v.ID), vDoc, 0)
		pipe.RPush(ctx, versionsKey(p.ID), v.ID.String())
		pipe.HSet(ctx, vnumsKey(p.ID), v.VersionNumber, v.ID.String())
		pipe.RPush(ctx, eventsKey(p.ID), e)
		pipe.SAdd(ctx, allPromptsKey, p.ID.String())
		return nil
	})
	if err != nil {
		return nil, nil, apperrors.Store(fmt.Errorf("create prompt: %w", err))
	}
	return p, v, nil
}

func (s *Store) GetPrompt(ctx context.Context, id uuid.UUID) (*models.Prompt, error) {
	return s.getPrompt(ctx, id)
}

func (s *Store) GetPromptWithCurrentVersion(ctx context.Context, id uuid.UUID) (*models.Prompt, *models.Version, error) {
	p, err := s.getPrompt(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if p.CurrentVersionID == nil {
		return p, nil, nil
	}
	v, err := s.getVersion(ctx, *p.CurrentVersionID)
	if err != nil {
		return nil, nil, err
	}
	return p, v, nil
}

func (s *Store) ListVersions(ctx context.Context, promptID uuid.UUID) ([]models.Version, error) {
	ids, err := s.client.LRange(ctx, versionsKey(promptID), 0, -1).Result()
	if err != nil {
		return nil, apperrors.Store(fmt.Errorf("list version ids: %w", err))
	}
	versions := make([]models.Version, 0, len(ids))
	// Insertion order is chronological; reverse for newest first.
	for i := len(ids) - 1; i >= 0; i-- {
		vid, err := uuid.Parse(ids[i])
		if err != nil {
			return nil, apperrors.Store(fmt.Errorf("bad version id %q: %w", ids[i], err))
		}
		v, err := s.getVersion(ctx, vid)
		if err != nil {
			return nil, err
		}
		versions = append(versions, *v)
	}
	return versions, nil
}

func (s *Store) GetVersionByNumber(ctx context.Context, promptID uuid.UUID, versionNumber string) (*models.Version, error) {
	idStr, err := s.client.HGet(ctx, vnumsKey(promptID), versionNumber).Result()
	if errors.Is(err, redis.Nil) {
		return nil, apperrors.NotFound("version %s of prompt %s not found", versionNumber, promptID)
	}
	if err != nil {
		return nil, apperrors.Store(fmt.Errorf("lookup version number: %w", err))
	}
	vid, err := uuid.Parse(idStr)
	if err != nil {
		return nil, apperrors.Store(fmt.Errorf("bad version id %q: %w", idStr, err))
	}
	return s.getVersion(ctx, vid)
}

func (s *Store) AppendVersion(ctx context.Context, promptID uuid.UUID, version store.VersionFields, expectedCurrentID uuid.UUID, searchText string, event store.EventFields) (*models.Version, error) {
	var created *models.Version

	txn := func(tx *redis.Tx) error {
		p, err := getPromptCmd(ctx, tx, promptID)
		if err != nil {
			return err
		}
		if p.CurrentVersionID == nil || *p.CurrentVersionID != expectedCurrentID {
			return apperrors.Conflict("prompt %s was modified concurrently", promptID)
		}

		now := time.Now().UTC()
		v := newVersion(uuid.New(), version, now)
		v.PromptID = promptID

		p.CurrentVersionID = &v.ID
		p.SearchText = searchText
		p.UpdatedAt = now

		e, err := encodeEvent(promptID, event, now)
		if err != nil {
			return err
		}
		pDoc, vDoc, err := encodeDocs(p, v)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, versionKey(v.ID), vDoc, 0)
			pipe.RPush(ctx, versionsKey(promptID), v.ID.String())
			pipe.HSet(ctx, vnumsKey(promptID), v.VersionNumber, v.ID.String())
			pipe.Set(ctx, promptKey(promptID), pDoc, 0)
			pipe.RPush(ctx, eventsKey(promptID), e)
			return nil
		})
		if err != nil {
			return err
		}
		created = v
		return nil
	}

	err := s.client.Watch(ctx, txn, promptKey(promptID))
	if errors.Is(err, redis.TxFailedErr) {
		return nil, apperrors.Conflict("prompt %s was modified concurrently", promptID)
	}
	if err != nil {
		if apperrors.KindOf(err) != apperrors.KindUnknown {
			return nil, err
		}
		return nil, apperrors.Store(fmt.Errorf("append version: %w", err))
	}
	return created, nil
}

func (s *Store) UpdatePromptMetadata(ctx context.Context, id uuid.UUID, patch store.MetadataPatch, event store.EventFields) (*models.Prompt, error) {
	var updated *models.Prompt

	err := s.watchLWW(ctx, id, func(tx *redis.Tx) error {
		p, err := getPromptCmd(ctx, tx, id)
		if err != nil {
			return err
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
			p.Tags = emptyIfNil(*patch.Tags)
		}
		if patch.Owner != nil {
			p.Owner = *patch.Owner
		}
		if patch.SearchText != nil {
			p.SearchText = *patch.SearchText
		}
		now := time.Now().UTC()
		p.UpdatedAt = now

		e, err := encodeEvent(id, event, now)
		if err != nil {
			return err
		}
		pDoc, err := json.Marshal(p)
		if err != nil {
			return apperrors.Store(fmt.Errorf("marshal prompt: %w", err))
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, promptKey(id), pDoc, 0)
			pipe.RPush(ctx, eventsKey(id), e)
			return nil
		})
		if err != nil {
			return err
		}
		updated = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Store) UpdatePromptStatus(ctx context.Context, id uuid.UUID, status models.Status, event store.EventFields) (models.Status, error) {
	var previous models.Status

	err := s.watchLWW(ctx, id, func(tx *redis.Tx) error {
		p, err := getPromptCmd(ctx, tx, id)
		if err != nil {
			return err
		}
		previous = p.Status
		now := time.Now().UTC()
		p.Status = status
		p.UpdatedAt = now

		ev := event
		ev.Metadata = store.WithTransition(event.Metadata, previous, status)
		e, err := encodeEvent(id, ev, now)
		if err != nil {
			return err
		}
		pDoc, err := json.Marshal(p)
		if err != nil {
			return apperrors.Store(fmt.Errorf("marshal prompt: %w", err))
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, promptKey(id), pDoc, 0)
			pipe.RPush(ctx, eventsKey(id), e)
			return nil
		})
		return err
	})
	if err != nil {
		return "", err
	}
	return previous, nil
}

func (s *Store) DeletePrompt(ctx context.Context, id uuid.UUID) error {
	txn := func(tx *redis.Tx) error {
		if _, err := getPromptCmd(ctx, tx, id); err != nil {
			return err
		}
		ids, err := tx.LRange(ctx, versionsKey(id), 0, -1).Result()
		if err != nil {
			return apperrors.Store(fmt.Errorf("list version ids: %w", err))
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			keys := []string{promptKey(id), versionsKey(id), vnumsKey(id), eventsKey(id)}
			for _, vid := range ids {
				keys = append(keys, "version:"+vid)
			}
			pipe.Del(ctx, keys...)
			pipe.SRem(ctx, allPromptsKey, id.String())
			return nil
		})
		return err
	}

	err := s.client.Watch(ctx, txn, promptKey(id))
	if errors.Is(err, redis.TxFailedErr) {
		return apperrors.Conflict("prompt %s was modified concurrently", id)
	}
	if err != nil && apperrors.KindOf(err) == apperrors.KindUnknown {
		return apperrors.Store(fmt.Errorf("delete prompt: %w", err))
	}
	return err
}

func (s *Store) ListEvents(ctx context.Context, promptID uuid.UUID, limit, offset int) ([]models.Event, int, error) {
	raw, err := s.client.LRange(ctx, eventsKey(promptID), 0, -1).Result()
	if err != nil {
		return nil, 0, apperrors.Store(fmt.Errorf("list events: %w", err))
	}
	// Insertion order is chronological; reverse for newest first.
	events := make([]models.Event, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		var e models.Event
		if err := json.Unmarshal([]byte(raw[i]), &e); err != nil {
			return nil, 0, apperrors.Store(fmt.Errorf("decode event: %w", err))
		}
		events = append(events, e)
	}
	total := len(events)
	return page(events, limit, offset), total, nil
}

func (s *Store) SearchPrompts(ctx context.Context, q store.SearchQuery) (*store.SearchResult, error) {
	prompts, err := s.allPrompts(ctx)
	if err != nil {
		return nil, err
	}

	filtered := prompts[:0]
	for _, p := range prompts {
		if !matches(p, q) {
			continue
		}
		if len(q.Models) > 0 {
			if p.CurrentVersionID == nil {
				continue
			}
			v, err := s.getVersion(ctx, *p.CurrentVersionID)
			if err != nil {
				return nil, err
			}
			if !overlaps(v.Models, q.Models) {
				continue
			}
		}
		filtered = append(filtered, p)
	}

	sortPrompts(filtered, q.Sort, q.Order)

	result := &store.SearchResult{
		Items:  []store.PromptSummary{},
		Total:  len(filtered),
		Limit:  q.Limit,
		Offset: q.Offset,
	}
	for _, p := range page(filtered, q.Limit, q.Offset) {
		item := store.PromptSummary{Prompt: *p}
		if p.CurrentVersionID != nil {
			v, err := s.getVersion(ctx, *p.CurrentVersionID)
			if err != nil {
				return nil, err
			}
			item.CurrentVersion = &store.VersionSummary{VersionNumber: v.VersionNumber, Models: v.Models}
		}
		result.Items = append(result.Items, item)
	}
	return result, nil
}

func (s *Store) ListTags(ctx context.Context) ([]store.TagCount, error) {
	prompts, err := s.allPrompts(ctx)
	if err != nil {
		return nil, err
	}
	counts := map[string]int{}
	for _, p := range prompts {
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

func (s *Store) ListPurposes(ctx context.Context) ([]store.PurposeCount, error) {
	prompts, err := s.allPrompts(ctx)
	if err != nil {
		return nil, err
	}
	counts := map[string]int{}
	for _, p := range prompts {
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

// watchLWW runs a watched transaction for a last-writer-wins operation,
// retrying a bounded number of times when a concurrent writer invalidates
// the watch.
func (s *Store) watchLWW(ctx context.Context, id uuid.UUID, txn func(tx *redis.Tx) error) error {
	var err error
	for i := 0; i < lwwRetries; i++ {
		err = s.client.Watch(ctx, txn, promptKey(id))
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}
	if errors.Is(err, redis.TxFailedErr) {
		return apperrors.Conflict("prompt %s was modified concurrently", id)
	}
	if err != nil && apperrors.KindOf(err) == apperrors.KindUnknown {
		return apperrors.Store(err)
	}
	return err
}

type cmdable interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func getPromptCmd(ctx context.Context, c cmdable, id uuid.UUID) (*models.Prompt, error) {
	doc, err := c.Get(ctx, promptKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, apperrors.NotFound("prompt %s not found", id)
	}
	if err != nil {
		return nil, apperrors.Store(fmt.Errorf("get prompt: %w", err))
	}
	var p models.Prompt
	if err := json.Unmarshal([]byte(doc), &p); err != nil {
		return nil, apperrors.Store(fmt.Errorf("decode prompt: %w", err))
	}
	return &p, nil
}

func (s *Store) getPrompt(ctx context.Context, id uuid.UUID) (*models.Prompt, error) {
	return getPromptCmd(ctx, s.client, id)
}

func (s *Store) getVersion(ctx context.Context, id uuid.UUID) (*models.Version, error) {
	doc, err := s.client.Get(ctx, versionKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, apperrors.NotFound("version %s not found", id)
	}
	if err != nil {
		return nil, apperrors.Store(fmt.Errorf("get version: %w", err))
	}
	var v models.Version
	if err := json.Unmarshal([]byte(doc), &v); err != nil {
		return nil, apperrors.Store(fmt.Errorf("decode version: %w", err))
	}
	return &v, nil
}

func (s *Store) allPrompts(ctx context.Context) ([]*models.Prompt, error) {
	ids, err := s.client.SMembers(ctx, allPromptsKey).Result()
	if err != nil {
		return nil, apperrors.Store(fmt.Errorf("list prompt ids: %w", err))
	}
	prompts := make([]*models.Prompt, 0, len(ids))
	for _, idStr := range ids {
		id, err := uuid.Parse(idStr)
		if err != nil {
			return nil, apperrors.Store(fmt.Errorf("bad prompt id %q: %w", idStr, err))
		}
		p, err := s.getPrompt(ctx, id)
		if apperrors.IsKind(err, apperrors.KindNotFound) {
			continue // index lagging a delete
		}
		if err != nil {
			return nil, err
		}
		prompts = append(prompts, p)
	}
	return prompts, nil
}

func newVersion(id uuid.UUID, f store.VersionFields, now time.Time) *models.Version {
	cfg := f.ModelConfig
	if len(cfg) == 0 {
		cfg = json.RawMessage(`{}`)
	}
	return &models.Version{
		ID:                id,
		VersionNumber:     f.VersionNumber,
		ChangeDescription: f.ChangeDescription,
		Content:           f.Content,
		SystemPrompt:      f.SystemPrompt,
		Models:            emptyIfNil(f.Models),
		ModelConfig:       cfg,
		Author:            f.Author,
		PreviousVersionID: f.PreviousVersionID,
		CreatedAt:         now,
	}
}

func encodeDocs(p *models.Prompt, v *models.Version) ([]byte, []byte, error) {
	pDoc, err := json.Marshal(p)
	if err != nil {
		return nil, nil, apperrors.Store(fmt.Errorf("marshal prompt: %w", err))
	}
	vDoc, err := json.Marshal(v)
	if err != nil {
		return nil, nil, apperrors.Store(fmt.Errorf("marshal version: %w", err))
	}
	return pDoc, vDoc, nil
}

func encodeEvent(promptID uuid.UUID, f store.EventFields, now time.Time) ([]byte, error) {
	metadata, err := json.Marshal(f.Metadata)
	if err != nil {
		return nil, apperrors.Store(fmt.Errorf("marshal event metadata: %w", err))
	}
	e := models.Event{
		ID:        uuid.New(),
		PromptID:  promptID,
		EventType: f.EventType,
		Comment:   f.Comment,
		Metadata:  metadata,
		CreatedBy: f.CreatedBy,
		CreatedAt: now,
	}
	doc, err := json.Marshal(e)
	if err != nil {
		return nil, apperrors.Store(fmt.Errorf("marshal event: %w", err))
	}
	return doc, nil
}

func matches(p *models.Prompt, q store.SearchQuery) bool {
	if len(q.Statuses) > 0 && !containsStatus(q.Statuses, p.Status) {
		return false
	}
	if q.Purpose != "" && p.Purpose != q.Purpose {
		return false
	}
	if len(q.Tags) > 0 && !overlaps(p.Tags, q.Tags) {
		return false
	}
	if q.Search != "" && !strings.Contains(strings.ToLower(p.SearchText), strings.ToLower(q.Search)) {
		return false
	}
	return true
}

func sortPrompts(prompts []*models.Prompt, field, order string) {
	desc := order != "asc"
	less := func(i, j int) bool {
		var c bool
		switch field {
		case "name":
			c = prompts[i].Name < prompts[j].Name
		case "created_at":
			c = prompts[i].CreatedAt.Before(prompts[j].CreatedAt)
		default: // updated_at and rank fallback
			c = prompts[i].UpdatedAt.Before(prompts[j].UpdatedAt)
		}
		if desc {
			return !c && !equalSortKey(prompts[i], prompts[j], field)
		}
		return c
	}
	sort.SliceStable(prompts, less)
}

func equalSortKey(a, b *models.Prompt, field string) bool {
	switch field {
	case "name":
		return a.Name == b.Name
	case "created_at":
		return a.CreatedAt.Equal(b.CreatedAt)
	default:
		return a.UpdatedAt.Equal(b.UpdatedAt)
	}
}

func containsStatus(set []models.Status, s models.Status) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
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

func emptyIfNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}
