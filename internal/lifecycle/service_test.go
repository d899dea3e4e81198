package lifecycle_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptvault/promptvault/internal/apperrors"
	"github.com/promptvault/promptvault/internal/lifecycle"
	"github.com/promptvault/promptvault/internal/models"
	"github.com/promptvault/promptvault/internal/store"
	"github.com/promptvault/promptvault/internal/store/memory"
	"github.com/promptvault/promptvault/internal/validate"
)

func newService() (*lifecycle.Service, *memory.Store) {
	st := memory.New()
	return lifecycle.NewService(st), st
}

func createPrompt(t *testing.T, svc *lifecycle.Service) *models.Prompt {
	t.Helper()
	p, v, err := svc.Create(context.Background(), validate.CreatePromptRequest{
		Name:    "summarizer",
		Purpose: "summarization",
		Tags:    []string{"nlp"},
		Owner:   "platform",
		Content: "Summarize the following text.",
		Author:  "alice",
	})
	require.NoError(t, err)
	require.NotNil(t, v)
	return p
}

func TestCreateStartsAtInitialVersion(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()

	p, v, err := svc.Create(ctx, validate.CreatePromptRequest{
		Name:    "classifier",
		Purpose: "classification",
		Content: "Classify the input.",
		Author:  "alice",
	})
	require.NoError(t, err)

	assert.Equal(t, models.StatusDraft, p.Status)
	assert.Equal(t, lifecycle.InitialVersion, v.VersionNumber)
	assert.Equal(t, "Initial version", v.ChangeDescription)
	assert.Nil(t, v.PreviousVersionID)
	require.NotNil(t, p.CurrentVersionID)
	assert.Equal(t, v.ID, *p.CurrentVersionID)

	events, total, err := svc.ListEvents(ctx, p.ID, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, events, 1)
	assert.Equal(t, models.EventCreated, events[0].EventType)
}

func TestCreateVersionBumps(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()
	p := createPrompt(t, svc)

	v2, err := svc.CreateVersion(ctx, p.ID, validate.CreateVersionRequest{
		Content:           "Summarize the following text in one sentence.",
		ChangeDescription: "Tighten output length",
		BumpType:          "minor",
		Author:            "bob",
	})
	require.NoError(t, err)
	assert.Equal(t, "1.1.0", v2.VersionNumber)
	require.NotNil(t, v2.PreviousVersionID)

	detail, err := svc.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, detail.VersionCount)
	require.NotNil(t, detail.CurrentVersion)
	assert.Equal(t, "1.1.0", detail.CurrentVersion.VersionNumber)

	versions, err := svc.ListVersions(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	// Newest first.
	assert.Equal(t, "1.1.0", versions[0].VersionNumber)
	assert.Equal(t, "1.0.0", versions[1].VersionNumber)
}

func TestCreateVersionInheritsModels(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()

	p, _, err := svc.Create(ctx, validate.CreatePromptRequest{
		Name:        "router",
		Purpose:     "routing",
		Content:     "Route the request.",
		Models:      []string{"gpt-4o"},
		ModelConfig: map[string]any{"temperature": 0.2},
		Author:      "alice",
	})
	require.NoError(t, err)

	v2, err := svc.CreateVersion(ctx, p.ID, validate.CreateVersionRequest{
		Content:           "Route the request to the best handler.",
		ChangeDescription: "Clarify instructions",
		BumpType:          "patch",
		Author:            "alice",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"gpt-4o"}, v2.Models)

	var cfg map[string]any
	require.NoError(t, json.Unmarshal(v2.ModelConfig, &cfg))
	assert.Equal(t, 0.2, cfg["temperature"])
}

func TestCreateVersionConflictOnStaleCurrent(t *testing.T) {
	svc, st := newService()
	ctx := context.Background()
	p := createPrompt(t, svc)

	_, current, err := st.GetPromptWithCurrentVersion(ctx, p.ID)
	require.NoError(t, err)

	// A concurrent writer moves the chain forward.
	_, err = svc.CreateVersion(ctx, p.ID, validate.CreateVersionRequest{
		Content:           "v2",
		ChangeDescription: "Concurrent change",
		BumpType:          "minor",
		Author:            "bob",
	})
	require.NoError(t, err)

	// Replaying an append against the stale current must lose.
	_, err = st.AppendVersion(ctx, p.ID, store.VersionFields{
		VersionNumber:     "1.0.1",
		ChangeDescription: "stale write",
		Content:           "stale",
	}, current.ID, "stale", store.EventFields{EventType: models.EventVersionCreated})
	require.Error(t, err)
	assert.Equal(t, apperrors.KindConflict, apperrors.KindOf(err))
}

func TestRollbackMintsPatchVersionWithTargetContent(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()
	p := createPrompt(t, svc)

	_, err := svc.CreateVersion(ctx, p.ID, validate.CreateVersionRequest{
		Content:           "Second revision content.",
		ChangeDescription: "Rewrite",
		BumpType:          "minor",
		Author:            "bob",
	})
	require.NoError(t, err)

	rb, err := svc.Rollback(ctx, p.ID, "1.0.0", validate.RollbackRequest{
		Comment: "second revision regressed",
		Author:  "carol",
	})
	require.NoError(t, err)

	// Patch bump from the pre-rollback current (1.1.0), not from the target.
	assert.Equal(t, "1.1.1", rb.VersionNumber)
	assert.Equal(t, "Summarize the following text.", rb.Content)
	assert.Equal(t, "Rollback to version 1.0.0: second revision regressed", rb.ChangeDescription)

	versions, err := svc.ListVersions(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, versions, 3)

	events, _, err := svc.ListEvents(ctx, p.ID, 10, 0)
	require.NoError(t, err)
	require.NotEmpty(t, events)
	assert.Equal(t, models.EventRollback, events[0].EventType)

	var md map[string]any
	require.NoError(t, json.Unmarshal(events[0].Metadata, &md))
	assert.Equal(t, "1.1.0", md["from_version"])
	assert.Equal(t, "1.0.0", md["to_version"])
	assert.Equal(t, "1.1.1", md["new_version"])
}

func TestRollbackToUnknownVersion(t *testing.T) {
	svc, _ := newService()
	p := createPrompt(t, svc)

	_, err := svc.Rollback(context.Background(), p.ID, "9.9.9", validate.RollbackRequest{
		Comment: "nope",
		Author:  "carol",
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))
}

func TestChangeStatusRecordsTransition(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()
	p := createPrompt(t, svc)

	from, to, err := svc.ChangeStatus(ctx, p.ID, validate.StatusChangeRequest{
		Status:  "active",
		Comment: "approved for production",
		Author:  "dave",
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusDraft, from)
	assert.Equal(t, models.StatusActive, to)

	events, _, err := svc.ListEvents(ctx, p.ID, 10, 0)
	require.NoError(t, err)
	require.NotEmpty(t, events)
	assert.Equal(t, models.EventStatusChanged, events[0].EventType)
	assert.Equal(t, "approved for production", events[0].Comment)

	var md map[string]any
	require.NoError(t, json.Unmarshal(events[0].Metadata, &md))
	assert.Equal(t, "draft", md["from"])
	assert.Equal(t, "active", md["to"])
}

func TestUpdateMetadataAppliesOnlyProvidedFields(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()
	p := createPrompt(t, svc)

	name := "summarizer-v2"
	updated, err := svc.UpdateMetadata(ctx, p.ID, validate.UpdateMetadataRequest{
		Name:   &name,
		Author: "alice",
	})
	require.NoError(t, err)
	assert.Equal(t, "summarizer-v2", updated.Name)
	assert.Equal(t, "summarization", updated.Purpose)
	assert.Equal(t, []string{"nlp"}, updated.Tags)

	events, _, err := svc.ListEvents(ctx, p.ID, 10, 0)
	require.NoError(t, err)
	require.NotEmpty(t, events)
	assert.Equal(t, models.EventMetadataUpdated, events[0].EventType)

	var md map[string]any
	require.NoError(t, json.Unmarshal(events[0].Metadata, &md))
	assert.Equal(t, []any{"name"}, md["fields"])
}

func TestSoftDeleteArchives(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()
	p := createPrompt(t, svc)

	require.NoError(t, svc.Delete(ctx, p.ID, false))

	detail, err := svc.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusArchived, detail.Status)

	versions, err := svc.ListVersions(ctx, p.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, versions)

	events, _, err := svc.ListEvents(ctx, p.ID, 10, 0)
	require.NoError(t, err)
	require.NotEmpty(t, events)
	var md map[string]any
	require.NoError(t, json.Unmarshal(events[0].Metadata, &md))
	assert.Equal(t, "deleted", md["reason"])
}

func TestHardDeleteRemovesEverything(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()
	p := createPrompt(t, svc)

	require.NoError(t, svc.Delete(ctx, p.ID, true))

	_, err := svc.Get(ctx, p.ID)
	require.Error(t, err)
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))
}

func TestListVersionsUnknownPrompt(t *testing.T) {
	svc, _ := newService()
	_, err := svc.ListVersions(context.Background(), uuid.New())
	require.Error(t, err)
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))
}

func TestListEventsUnknownPrompt(t *testing.T) {
	svc, _ := newService()
	_, _, err := svc.ListEvents(context.Background(), uuid.New(), 10, 0)
	require.Error(t, err)
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))
}

func TestGetUnknownPrompt(t *testing.T) {
	svc, _ := newService()
	_, err := svc.Get(context.Background(), uuid.New())
	require.Error(t, err)
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))
}
