// Package query is the read-side façade: filtered, sorted, paginated prompt
// listings plus the distinct tag/purpose aggregations. It never touches the
// lifecycle engine.
package query

import (
	"context"

	"github.com/promptvault/promptvault/internal/store"
)

type Service struct {
	store store.Store
}

func NewService(st store.Store) *Service {
	return &Service{store: st}
}

// Search runs a validated query. Rank ordering only applies with a search
// term; without one it falls back to recency.
func (s *Service) Search(ctx context.Context, q store.SearchQuery) (*store.SearchResult, error) {
	if q.Sort == "rank" && q.Search == "" {
		q.Sort = "updated_at"
	}
	return s.store.SearchPrompts(ctx, q)
}

func (s *Service) Tags(ctx context.Context) ([]store.TagCount, error) {
	return s.store.ListTags(ctx)
}

func (s *Service) Purposes(ctx context.Context) ([]store.PurposeCount, error) {
	return s.store.ListPurposes(ctx)
}
