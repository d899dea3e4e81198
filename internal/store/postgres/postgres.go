// Package postgres implements the store contract on PostgreSQL via pgx.
// All multi-entity writes run inside a single transaction; optimistic
// concurrency on the current-version pointer uses a row lock plus an
// explicit pointer comparison.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/promptvault/promptvault/internal/apperrors"
	"github.com/promptvault/promptvault/internal/models"
	"github.com/promptvault/promptvault/internal/store"
)

type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

const promptCols = `p.id, p.name, p.description, p.purpose, p.tags, p.status, p.owner, p.current_version_id, p.search_text, p.created_at, p.updated_at`

const versionCols = `v.id, v.prompt_id, v.version_number, v.change_description, v.content, v.system_prompt, v.models, v.model_config, v.author, v.previous_version_id, v.created_at`

func scanPrompt(row pgx.Row) (*models.Prompt, error) {
	var p models.Prompt
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Purpose, &p.Tags, &p.Status,
		&p.Owner, &p.CurrentVersionID, &p.SearchText, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func scanVersion(row pgx.Row) (*models.Version, error) {
	var v models.Version
	err := row.Scan(&v.ID, &v.PromptID, &v.VersionNumber, &v.ChangeDescription, &v.Content,
		&v.SystemPrompt, &v.Models, &v.ModelConfig, &v.Author, &v.PreviousVersionID, &v.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (s *Store) CreatePrompt(ctx context.Context, prompt store.PromptFields, version store.VersionFields, event store.EventFields) (*models.Prompt, *models.Version, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, nil, apperrors.Store(fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback(ctx)

	p, err := scanPrompt(tx.QueryRow(ctx,
		`INSERT INTO prompts (name, description, purpose, tags, status, owner, search_text)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING `+stripAlias(promptCols),
		prompt.Name, prompt.Description, prompt.Purpose, tags(prompt.Tags), models.StatusDraft, prompt.Owner, prompt.SearchText,
	))
	if err != nil {
		return nil, nil, apperrors.Store(fmt.Errorf("insert prompt: %w", err))
	}

	v, err := insertVersion(ctx, tx, p.ID, version)
	if err != nil {
		return nil, nil, err
	}

	if _, err := tx.Exec(ctx,
		`UPDATE prompts SET current_version_id = $1 WHERE id = $2`, v.ID, p.ID,
	); err != nil {
		return nil, nil, apperrors.Store(fmt.Errorf("set current version: %w", err))
	}
	p.CurrentVersionID = &v.ID

	if err := insertEvent(ctx, tx, p.ID, event); err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, apperrors.Store(fmt.Errorf("commit: %w", err))
	}
	return p, v, nil
}

func (s *Store) GetPrompt(ctx context.Context, id uuid.UUID) (*models.Prompt, error) {
	p, err := scanPrompt(s.pool.QueryRow(ctx,
		`SELECT `+promptCols+` FROM prompts p WHERE p.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFound("prompt %s not found", id)
	}
	if err != nil {
		return nil, apperrors.Store(fmt.Errorf("get prompt: %w", err))
	}
	return p, nil
}

func (s *Store) GetPromptWithCurrentVersion(ctx context.Context, id uuid.UUID) (*models.Prompt, *models.Version, error) {
	p, err := s.GetPrompt(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if p.CurrentVersionID == nil {
		return p, nil, nil
	}
	v, err := scanVersion(s.pool.QueryRow(ctx,
		`SELECT `+versionCols+` FROM prompt_versions v WHERE v.id = $1`, *p.CurrentVersionID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, apperrors.NotFound("current version of prompt %s not found", id)
	}
	if err != nil {
		return nil, nil, apperrors.Store(fmt.Errorf("get current version: %w", err))
	}
	return p, v, nil
}

func (s *Store) ListVersions(ctx context.Context, promptID uuid.UUID) ([]models.Version, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+versionCols+` FROM prompt_versions v
		 WHERE v.prompt_id = $1 ORDER BY v.created_at DESC, v.seq DESC`, promptID)
	if err != nil {
		return nil, apperrors.Store(fmt.Errorf("list versions: %w", err))
	}
	defer rows.Close()

	var versions []models.Version
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, apperrors.Store(fmt.Errorf("scan version: %w", err))
		}
		versions = append(versions, *v)
	}
	return versions, rows.Err()
}

func (s *Store) GetVersionByNumber(ctx context.Context, promptID uuid.UUID, versionNumber string) (*models.Version, error) {
	v, err := scanVersion(s.pool.QueryRow(ctx,
		`SELECT `+versionCols+` FROM prompt_versions v
		 WHERE v.prompt_id = $1 AND v.version_number = $2`, promptID, versionNumber))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFound("version %s of prompt %s not found", versionNumber, promptID)
	}
	if err != nil {
		return nil, apperrors.Store(fmt.Errorf("get version: %w", err))
	}
	return v, nil
}

func (s *Store) AppendVersion(ctx context.Context, promptID uuid.UUID, version store.VersionFields, expectedCurrentID uuid.UUID, searchText string, event store.EventFields) (*models.Version, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, apperrors.Store(fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback(ctx)

	var currentID *uuid.UUID
	err = tx.QueryRow(ctx,
		`SELECT current_version_id FROM prompts WHERE id = $1 FOR UPDATE`, promptID,
	).Scan(&currentID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFound("prompt %s not found", promptID)
	}
	if err != nil {
		return nil, apperrors.Store(fmt.Errorf("lock prompt: %w", err))
	}
	if currentID == nil || *currentID != expectedCurrentID {
		return nil, apperrors.Conflict("prompt %s was modified concurrently", promptID)
	}

	v, err := insertVersion(ctx, tx, promptID, version)
	if err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx,
		`UPDATE prompts SET current_version_id = $1, search_text = $2, updated_at = now() WHERE id = $3`,
		v.ID, searchText, promptID,
	); err != nil {
		return nil, apperrors.Store(fmt.Errorf("repoint current version: %w", err))
	}

	if err := insertEvent(ctx, tx, promptID, event); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, apperrors.Store(fmt.Errorf("commit: %w", err))
	}
	return v, nil
}

func (s *Store) UpdatePromptMetadata(ctx context.Context, id uuid.UUID, patch store.MetadataPatch, event store.EventFields) (*models.Prompt, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, apperrors.Store(fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback(ctx)

	sets := []string{"updated_at = now()"}
	args := []any{}
	argIdx := 1

	add := func(col string, val any) {
		sets = append(sets, fmt.Sprintf("%s = $%d", col, argIdx))
		args = append(args, val)
		argIdx++
	}
	if patch.Name != nil {
		add("name", *patch.Name)
	}
	if patch.Description != nil {
		add("description", *patch.Description)
	}
	if patch.Purpose != nil {
		add("purpose", *patch.Purpose)
	}
	if patch.Tags != nil {
		add("tags", tags(*patch.Tags))
	}
	if patch.Owner != nil {
		add("owner", *patch.Owner)
	}
	if patch.SearchText != nil {
		add("search_text", *patch.SearchText)
	}

	query := fmt.Sprintf(`UPDATE prompts p SET %s WHERE p.id = $%d RETURNING %s`,
		strings.Join(sets, ", "), argIdx, promptCols)
	args = append(args, id)

	p, err := scanPrompt(tx.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFound("prompt %s not found", id)
	}
	if err != nil {
		return nil, apperrors.Store(fmt.Errorf("update prompt: %w", err))
	}

	if err := insertEvent(ctx, tx, id, event); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, apperrors.Store(fmt.Errorf("commit: %w", err))
	}
	return p, nil
}

func (s *Store) UpdatePromptStatus(ctx context.Context, id uuid.UUID, status models.Status, event store.EventFields) (models.Status, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", apperrors.Store(fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback(ctx)

	var previous models.Status
	err = tx.QueryRow(ctx,
		`SELECT status FROM prompts WHERE id = $1 FOR UPDATE`, id,
	).Scan(&previous)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", apperrors.NotFound("prompt %s not found", id)
	}
	if err != nil {
		return "", apperrors.Store(fmt.Errorf("lock prompt: %w", err))
	}

	if _, err := tx.Exec(ctx,
		`UPDATE prompts SET status = $1, updated_at = now() WHERE id = $2`, status, id,
	); err != nil {
		return "", apperrors.Store(fmt.Errorf("update status: %w", err))
	}

	event.Metadata = store.WithTransition(event.Metadata, previous, status)
	if err := insertEvent(ctx, tx, id, event); err != nil {
		return "", err
	}

	if err := tx.Commit(ctx); err != nil {
		return "", apperrors.Store(fmt.Errorf("commit: %w", err))
	}
	return previous, nil
}

func (s *Store) DeletePrompt(ctx context.Context, id uuid.UUID) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return apperrors.Store(fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback(ctx)

	// Clear the version back-reference before cascading the versions.
	tag, err := tx.Exec(ctx, `UPDATE prompts SET current_version_id = NULL WHERE id = $1`, id)
	if err != nil {
		return apperrors.Store(fmt.Errorf("clear current version: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("prompt %s not found", id)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM prompt_events WHERE prompt_id = $1`, id); err != nil {
		return apperrors.Store(fmt.Errorf("delete events: %w", err))
	}
	if _, err := tx.Exec(ctx, `DELETE FROM prompt_versions WHERE prompt_id = $1`, id); err != nil {
		return apperrors.Store(fmt.Errorf("delete versions: %w", err))
	}
	if _, err := tx.Exec(ctx, `DELETE FROM prompts WHERE id = $1`, id); err != nil {
		return apperrors.Store(fmt.Errorf("delete prompt: %w", err))
	}

	if err := tx.Commit(ctx); err != nil {
		return apperrors.Store(fmt.Errorf("commit: %w", err))
	}
	return nil
}

func (s *Store) ListEvents(ctx context.Context, promptID uuid.UUID, limit, offset int) ([]models.Event, int, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, prompt_id, event_type, comment, metadata, created_by, created_at, COUNT(*) OVER() AS total
		 FROM prompt_events WHERE prompt_id = $1
		 ORDER BY created_at DESC, seq DESC
		 LIMIT $2 OFFSET $3`, promptID, limit, offset)
	if err != nil {
		return nil, 0, apperrors.Store(fmt.Errorf("list events: %w", err))
	}
	defer rows.Close()

	var events []models.Event
	var total int
	for rows.Next() {
		var e models.Event
		if err := rows.Scan(&e.ID, &e.PromptID, &e.EventType, &e.Comment, &e.Metadata, &e.CreatedBy, &e.CreatedAt, &total); err != nil {
			return nil, 0, apperrors.Store(fmt.Errorf("scan event: %w", err))
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, apperrors.Store(fmt.Errorf("list events: %w", err))
	}
	if total == 0 && offset > 0 {
		// Page past the end: the window count is unavailable, recount.
		err := s.pool.QueryRow(ctx,
			`SELECT COUNT(*) FROM prompt_events WHERE prompt_id = $1`, promptID).Scan(&total)
		if err != nil {
			return nil, 0, apperrors.Store(fmt.Errorf("count events: %w", err))
		}
	}
	return events, total, nil
}

func (s *Store) SearchPrompts(ctx context.Context, q store.SearchQuery) (*store.SearchResult, error) {
	where := []string{"TRUE"}
	args := []any{}
	argIdx := 1

	if len(q.Statuses) > 0 {
		where = append(where, fmt.Sprintf("p.status = ANY($%d)", argIdx))
		args = append(args, statusStrings(q.Statuses))
		argIdx++
	}
	if q.Purpose != "" {
		where = append(where, fmt.Sprintf("p.purpose = $%d", argIdx))
		args = append(args, q.Purpose)
		argIdx++
	}
	if len(q.Tags) > 0 {
		where = append(where, fmt.Sprintf("p.tags && $%d", argIdx))
		args = append(args, tags(q.Tags))
		argIdx++
	}
	if len(q.Models) > 0 {
		where = append(where, fmt.Sprintf(
			"EXISTS (SELECT 1 FROM prompt_versions cv WHERE cv.id = p.current_version_id AND cv.models && $%d)", argIdx))
		args = append(args, tags(q.Models))
		argIdx++
	}
	if q.Search != "" {
		where = append(where, fmt.Sprintf("p.search_text ILIKE '%%' || $%d || '%%'", argIdx))
		args = append(args, q.Search)
		argIdx++
	}

	// rank sorting has no meaning without a ranked index; fall back to
	// recency, matching the degraded-mode search contract.
	sortCol := map[string]string{
		"name":       "p.name",
		"created_at": "p.created_at",
		"updated_at": "p.updated_at",
		"rank":       "p.updated_at",
	}[q.Sort]
	if sortCol == "" {
		sortCol = "p.updated_at"
	}
	dir := "DESC"
	if q.Order == "asc" {
		dir = "ASC"
	}

	query := fmt.Sprintf(
		`SELECT %s, v.version_number, v.models, COUNT(*) OVER() AS total
		 FROM prompts p
		 LEFT JOIN prompt_versions v ON v.id = p.current_version_id
		 WHERE %s
		 ORDER BY %s %s
		 LIMIT $%d OFFSET $%d`,
		promptCols, strings.Join(where, " AND "), sortCol, dir, argIdx, argIdx+1)
	args = append(args, q.Limit, q.Offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Store(fmt.Errorf("search prompts: %w", err))
	}
	defer rows.Close()

	result := &store.SearchResult{Items: []store.PromptSummary{}, Limit: q.Limit, Offset: q.Offset}
	for rows.Next() {
		var item store.PromptSummary
		var versionNumber *string
		var versionModels []string
		err := rows.Scan(&item.ID, &item.Name, &item.Description, &item.Purpose, &item.Tags,
			&item.Status, &item.Owner, &item.CurrentVersionID, &item.SearchText,
			&item.CreatedAt, &item.UpdatedAt, &versionNumber, &versionModels, &result.Total)
		if err != nil {
			return nil, apperrors.Store(fmt.Errorf("scan prompt: %w", err))
		}
		if versionNumber != nil {
			item.CurrentVersion = &store.VersionSummary{VersionNumber: *versionNumber, Models: versionModels}
		}
		result.Items = append(result.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Store(fmt.Errorf("search prompts: %w", err))
	}
	return result, nil
}

func (s *Store) ListTags(ctx context.Context) ([]store.TagCount, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT t.tag, COUNT(*) FROM prompts p, unnest(p.tags) AS t(tag)
		 GROUP BY t.tag ORDER BY COUNT(*) DESC, t.tag ASC`)
	if err != nil {
		return nil, apperrors.Store(fmt.Errorf("list tags: %w", err))
	}
	defer rows.Close()

	var out []store.TagCount
	for rows.Next() {
		var tc store.TagCount
		if err := rows.Scan(&tc.Tag, &tc.Count); err != nil {
			return nil, apperrors.Store(fmt.Errorf("scan tag: %w", err))
		}
		out = append(out, tc)
	}
	return out, rows.Err()
}

func (s *Store) ListPurposes(ctx context.Context) ([]store.PurposeCount, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT purpose, COUNT(*) FROM prompts GROUP BY purpose ORDER BY COUNT(*) DESC, purpose ASC`)
	if err != nil {
		return nil, apperrors.Store(fmt.Errorf("list purposes: %w", err))
	}
	defer rows.Close()

	var out []store.PurposeCount
	for rows.Next() {
		var pc store.PurposeCount
		if err := rows.Scan(&pc.Purpose, &pc.Count); err != nil {
			return nil, apperrors.Store(fmt.Errorf("scan purpose: %w", err))
		}
		out = append(out, pc)
	}
	return out, rows.Err()
}

func insertVersion(ctx context.Context, tx pgx.Tx, promptID uuid.UUID, f store.VersionFields) (*models.Version, error) {
	cfg := f.ModelConfig
	if len(cfg) == 0 {
		cfg = json.RawMessage(`{}`)
	}
	v, err := scanVersion(tx.QueryRow(ctx,
		`INSERT INTO prompt_versions (prompt_id, version_number, change_description, content, system_prompt, models, model_config, author, previous_version_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING `+stripAlias(versionCols),
		promptID, f.VersionNumber, f.ChangeDescription, f.Content, f.SystemPrompt,
		tags(f.Models), cfg, f.Author, f.PreviousVersionID,
	))
	if err != nil {
		return nil, apperrors.Store(fmt.Errorf("insert version: %w", err))
	}
	return v, nil
}

func insertEvent(ctx context.Context, tx pgx.Tx, promptID uuid.UUID, e store.EventFields) error {
	metadata, err := json.Marshal(e.Metadata)
	if err != nil {
		return apperrors.Store(fmt.Errorf("marshal event metadata: %w", err))
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO prompt_events (prompt_id, event_type, comment, metadata, created_by)
		 VALUES ($1, $2, $3, $4, $5)`,
		promptID, e.EventType, e.Comment, metadata, e.CreatedBy,
	); err != nil {
		return apperrors.Store(fmt.Errorf("insert event: %w", err))
	}
	return nil
}

func statusStrings(in []models.Status) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = string(s)
	}
	return out
}

// tags normalizes nil slices to empty ones so text[] columns never store
// NULL.
func tags(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}

// stripAlias rewrites the aliased column list for RETURNING clauses.
func stripAlias(cols string) string {
	return strings.NewReplacer("p.", "", "v.", "").Replace(cols)
}
