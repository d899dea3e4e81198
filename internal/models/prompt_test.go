package models_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/promptvault/promptvault/internal/models"
)

func TestStatusValid(t *testing.T) {
	for _, s := range models.Statuses() {
		assert.True(t, s.Valid(), "status %q", s)
	}
	assert.False(t, models.Status("live").Valid())
	assert.False(t, models.Status("").Valid())
}

func TestBuildSearchText(t *testing.T) {
	got := models.BuildSearchText("Summarizer", "Condenses documents", "summarization", []string{"nlp", "prod"}, "Summarize the text.")
	assert.Contains(t, got, "Summarizer")
	assert.Contains(t, got, "Condenses documents")
	assert.Contains(t, got, "summarization")
	assert.Contains(t, got, "nlp")
	assert.Contains(t, got, "Summarize the text.")
}

func TestBuildSearchTextTruncatesContent(t *testing.T) {
	long := strings.Repeat("x", models.SearchTextContentLimit+100)
	got := models.BuildSearchText("n", "", "p", nil, long)
	assert.Contains(t, got, strings.Repeat("x", models.SearchTextContentLimit))
	assert.NotContains(t, got, strings.Repeat("x", models.SearchTextContentLimit+1))
}
