package search

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

const (
	EngineMeili    = "meilisearch"
	EngineFallback = "store"
)

// indexQueueDepth bounds pending index writes. Writes beyond it are dropped
// and picked up by the next ReindexAll.
const indexQueueDepth = 256

// Service is the facade that tries Meilisearch first and falls back to the
// store's filter.
type Service struct {
	meili    *Meili
	fallback *Fallback

	queue     chan RequestRecord
	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
}

// NewService creates a search service. meili may be nil if Meilisearch is not
// configured; otherwise a single goroutine applies index writes in the order
// they were queued.
func NewService(meili *Meili, fallback *Fallback) *Service {
	s := &Service{meili: meili, fallback: fallback}
	if meili != nil {
		s.queue = make(chan RequestRecord, indexQueueDepth)
		s.done = make(chan struct{})
		s.stopped = make(chan struct{})
		go s.indexLoop()
	}
	return s
}

func (s *Service) indexLoop() {
	defer close(s.stopped)
	for {
		select {
		case <-s.done:
			return
		case rec := <-s.queue:
			if err := s.meili.IndexRequest(rec); err != nil {
				log.Warn().Err(err).Str("request_id", rec.ID).Msg("search: index request")
			}
		}
	}
}

// Close stops the index writer and the Meilisearch health monitor. Queued
// writes that have not started are discarded.
func (s *Service) Close() {
	if s == nil || s.meili == nil {
		return
	}
	s.closeOnce.Do(func() {
		close(s.done)
		<-s.stopped
		s.meili.Close()
	})
}

// Search never fails: errors degrade to an empty response.
func (s *Service) Search(ctx context.Context, q Query) Response {
	empty := Response{Results: []Result{}, Total: 0, Query: q.Text, Engine: EngineFallback}
	if q.ProjectID == "" {
		return empty
	}

	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(ctx, q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text, Engine: EngineMeili}
		}
		log.Warn().Err(err).Msg("search: meilisearch error, falling back to store")
	}

	if s.fallback == nil {
		return empty
	}
	results, total, err := s.fallback.Search(ctx, q)
	if err != nil {
		log.Error().Err(err).Msg("search: fallback error")
		return empty
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text, Engine: EngineFallback}
}

// IndexRequest queues an edit request for indexing without waiting for
// Meilisearch.
func (s *Service) IndexRequest(rec RequestRecord) {
	if s == nil || s.meili == nil || !s.meili.Healthy() {
		return
	}
	select {
	case <-s.done:
	case s.queue <- rec:
	default:
		log.Warn().Str("request_id", rec.ID).Msg("search: index queue full, write dropped")
	}
}

// ReindexAll reads every edit request from the store and pushes it to
// Meilisearch.
func (s *Service) ReindexAll(ctx context.Context) {
	if s.meili == nil || !s.meili.Healthy() || s.fallback == nil {
		return
	}
	records, err := s.fallback.LoadAllRecords(ctx)
	if err != nil {
		log.Error().Err(err).Msg("search: reindex load failed")
		return
	}
	if err := s.meili.IndexRequests(records); err != nil {
		log.Error().Err(err).Msg("search: reindex requests")
		return
	}
	log.Info().Int("requests", len(records)).Msg("search: reindexed")
}

// Ping reports Meilisearch health; nil when it is not configured.
func (s *Service) Ping(ctx context.Context) error {
	if s == nil || s.meili == nil {
		return nil
	}
	return s.meili.Ping(ctx)
}

func (s *Service) MeiliConfigured() bool {
	return s != nil && s.meili != nil
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
