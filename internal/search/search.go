package search

import "context"

// Result is a single search hit returned to the caller.
type Result struct {
	ID        string `json:"id"`
	ProjectID string `json:"projectId"`
	PageURL   string `json:"pageUrl"`
	SectionID string `json:"sectionId,omitempty"`
	Status    string `json:"status"`
	Snippet   string `json:"snippet"`
}

// Query describes a search request. ProjectID is always applied.
type Query struct {
	Text      string
	ProjectID string
	Status    string
	PageURL   string
	Limit     int
	Offset    int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
	Engine  string   `json:"engine"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Result, int, error)
	Healthy() bool
}

// RequestRecord is the data we index for an edit request.
type RequestRecord struct {
	ID          string   `json:"id"`
	ProjectID   string   `json:"projectId"`
	PageURL     string   `json:"pageUrl"`
	SectionID   string   `json:"sectionId"`
	Message     string   `json:"message"`
	Status      string   `json:"status"`
	SubmittedBy string   `json:"submittedBy"`
	Replies     []string `json:"replies"`
	CreatedAt   int64    `json:"createdAt"`
}

const defaultLimit = 20

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	if limit > 100 {
		return 100
	}
	return limit
}
