package search

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
	"github.com/rs/zerolog/log"

	"editdesk/api/internal/store"
)

const idxRequests = "lef_edit_requests"

// Meili implements Searcher via Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a Meilisearch client and configures the index. The client
// is returned even when the server is down; a background loop tracks health.
func NewMeili(url, apiKey string) *Meili {
	client := meili.New(url, meili.WithAPIKey(apiKey))

	m := &Meili{
		client: client,
		done:   make(chan struct{}),
	}

	if _, err := client.Health(); err != nil {
		log.Warn().Err(err).Str("url", url).Msg("search: meilisearch unavailable")
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndex()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndex() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{
		Uid:        idxRequests,
		PrimaryKey: "id",
	}); err != nil {
		log.Debug().Err(err).Str("index", idxRequests).Msg("search: create index (may already exist)")
	}

	index := m.client.Index(idxRequests)
	filterable := []interface{}{"projectId", "status", "pageUrl"}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		log.Warn().Err(err).Str("index", idxRequests).Msg("search: update filterable attributes")
	}
	searchable := []string{"message", "sectionId", "replies", "submittedBy"}
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		log.Warn().Err(err).Str("index", idxRequests).Msg("search: update searchable attributes")
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				log.Info().Msg("search: meilisearch recovered, reconfiguring index")
				m.configureIndex()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// Ping reports the live health of the server.
func (m *Meili) Ping(context.Context) error {
	if _, err := m.client.Health(); err != nil {
		return fmt.Errorf("meilisearch health: %w", err)
	}
	return nil
}

func (m *Meili) Search(_ context.Context, q Query) ([]Result, int, error) {
	if !m.healthy.Load() {
		return nil, 0, fmt.Errorf("meilisearch unhealthy")
	}
	if q.ProjectID == "" {
		return nil, 0, fmt.Errorf("meilisearch search: project id is required")
	}

	resp, err := m.client.MultiSearch(&meili.MultiSearchRequest{
		Queries: []*meili.SearchRequest{{
			IndexUID:              idxRequests,
			Query:                 q.Text,
			Limit:                 int64(normalizeLimit(q.Limit)),
			Offset:                int64(q.Offset),
			Filter:                meiliFilters(q),
			AttributesToHighlight: []string{"message"},
			HighlightPreTag:       "<mark>",
			HighlightPostTag:      "</mark>",
		}},
	})
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, fmt.Errorf("meilisearch multi-search: %w", err)
	}

	results := make([]Result, 0)
	total := 0
	for _, sr := range resp.Results {
		total += int(sr.EstimatedTotalHits)
		for _, hit := range sr.Hits {
			results = append(results, hitToResult(hit))
		}
	}
	return results, total, nil
}

// meiliFilters scopes a query to its project. Blank page and status values,
// and the "all" sentinel, leave that attribute unfiltered.
func meiliFilters(q Query) []string {
	filters := []string{fmt.Sprintf("projectId = %q", q.ProjectID)}
	if restricts(q.Status) {
		filters = append(filters, fmt.Sprintf("status = %q", q.Status))
	}
	if restricts(q.PageURL) {
		filters = append(filters, fmt.Sprintf("pageUrl = %q", q.PageURL))
	}
	return filters
}

func restricts(value string) bool {
	return value != "" && value != store.FilterAll
}

func hitToResult(hit meili.Hit) Result {
	return Result{
		ID:        decodeString(hit, "id"),
		ProjectID: decodeString(hit, "projectId"),
		PageURL:   decodeString(hit, "pageUrl"),
		SectionID: decodeString(hit, "sectionId"),
		Status:    decodeString(hit, "status"),
		Snippet:   firstNonBlank(decodeFormattedString(hit, "message"), decodeString(hit, "message")),
	}
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

func decodeFormattedString(hit meili.Hit, key string) string {
	raw, ok := hit["_formatted"]
	if !ok {
		return ""
	}
	var formatted map[string]json.RawMessage
	if err := json.Unmarshal(raw, &formatted); err != nil {
		return ""
	}
	var s string
	if err := json.Unmarshal(formatted[key], &s); err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

// IndexRequest adds or replaces an edit request in the index.
func (m *Meili) IndexRequest(rec RequestRecord) error {
	_, err := m.client.Index(idxRequests).AddDocuments([]RequestRecord{rec}, nil)
	return err
}

// IndexRequests bulk-indexes edit requests.
func (m *Meili) IndexRequests(records []RequestRecord) error {
	if len(records) == 0 {
		return nil
	}
	_, err := m.client.Index(idxRequests).AddDocuments(records, nil)
	return err
}
