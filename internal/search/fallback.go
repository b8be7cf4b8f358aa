package search

import (
	"context"
	"fmt"

	"editdesk/api/internal/store"
)

// RequestLister is the slice of the store the fallback searcher needs.
type RequestLister interface {
	ListEditRequests(ctx context.Context, filter store.RequestFilter) ([]store.EditRequest, error)
}

// Fallback answers searches with the store's substring filter. It is used
// when Meilisearch is not configured or unhealthy.
type Fallback struct {
	lister RequestLister
}

func NewFallback(lister RequestLister) *Fallback {
	return &Fallback{lister: lister}
}

func (f *Fallback) Healthy() bool {
	return f != nil && f.lister != nil
}

func (f *Fallback) Search(ctx context.Context, q Query) ([]Result, int, error) {
	if q.ProjectID == "" {
		return nil, 0, fmt.Errorf("fallback search: project id is required")
	}
	items, err := f.lister.ListEditRequests(ctx, store.RequestFilter{
		ProjectID: q.ProjectID,
		PageURL:   q.PageURL,
		Status:    q.Status,
		Search:    q.Text,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("fallback search: %w", err)
	}

	total := len(items)
	start := q.Offset
	if start < 0 {
		start = 0
	}
	if start > total {
		start = total
	}
	end := start + normalizeLimit(q.Limit)
	if end > total {
		end = total
	}

	results := make([]Result, 0, end-start)
	for _, item := range items[start:end] {
		results = append(results, requestToResult(item))
	}
	return results, total, nil
}

// LoadAllRecords reads every edit request for reindexing.
func (f *Fallback) LoadAllRecords(ctx context.Context) ([]RequestRecord, error) {
	items, err := f.lister.ListEditRequests(ctx, store.RequestFilter{})
	if err != nil {
		return nil, fmt.Errorf("load edit requests: %w", err)
	}
	records := make([]RequestRecord, 0, len(items))
	for _, item := range items {
		records = append(records, RecordFromRequest(item))
	}
	return records, nil
}

func requestToResult(item store.EditRequest) Result {
	result := Result{
		ID:        item.ID,
		ProjectID: item.ProjectID,
		PageURL:   item.PageURL,
		Status:    string(item.Status),
		Snippet:   item.Message,
	}
	if item.SectionID != nil {
		result.SectionID = *item.SectionID
	}
	return result
}

// RecordFromRequest flattens an edit request into its index document.
func RecordFromRequest(item store.EditRequest) RequestRecord {
	rec := RequestRecord{
		ID:        item.ID,
		ProjectID: item.ProjectID,
		PageURL:   item.PageURL,
		Message:   item.Message,
		Status:    string(item.Status),
		Replies:   make([]string, 0, len(item.Replies)),
		CreatedAt: item.CreatedAt.Unix(),
	}
	if item.SectionID != nil {
		rec.SectionID = *item.SectionID
	}
	if item.SubmittedBy != nil {
		rec.SubmittedBy = *item.SubmittedBy
	}
	for _, reply := range item.Replies {
		rec.Replies = append(rec.Replies, reply.Message)
	}
	return rec
}
