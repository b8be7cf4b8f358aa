package export

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"editdesk/api/internal/store"
)

// DataStore is the slice of the store a report needs.
type DataStore interface {
	ListEditRequests(ctx context.Context, filter store.RequestFilter) ([]store.EditRequest, error)
}

const publishTTL = 24 * time.Hour

// Service builds feedback reports
type Service struct {
	store   DataStore
	objects *ObjectStore
	pdf     func(context.Context, string) ([]byte, error)
	now     func() time.Time
}

// NewService creates an export service. objects may be nil when no object
// storage is configured.
func NewService(dataStore DataStore, objects *ObjectStore) *Service {
	return &Service{
		store:   dataStore,
		objects: objects,
		pdf:     renderPDF,
		now:     time.Now,
	}
}

// Export renders the report for req.ProjectID in the requested format.
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	if req.Format != FormatHTML && req.Format != FormatPDF {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, req.Format)
	}

	items, err := s.store.ListEditRequests(ctx, store.RequestFilter{
		ProjectID: req.ProjectID,
		PageURL:   req.PageURL,
		Status:    req.Status,
	})
	if err != nil {
		return nil, fmt.Errorf("list edit requests: %w", err)
	}

	generatedAt := s.now().UTC()
	html, err := RenderReportHTML(buildTemplateData(req.ProjectID, generatedAt, items))
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	base := sanitizeFilename(req.ProjectID) + "-feedback-" + generatedAt.Format("20060102")
	if req.Format == FormatHTML {
		return &Result{
			Data:     []byte(html),
			Filename: base + ".html",
			MimeType: "text/html; charset=utf-8",
		}, nil
	}

	pdfData, err := s.pdf(ctx, html)
	if err != nil {
		return nil, err
	}
	return &Result{
		Data:     pdfData,
		Filename: base + ".pdf",
		MimeType: "application/pdf",
	}, nil
}

// Publish uploads result to object storage.
func (s *Service) Publish(ctx context.Context, projectID string, result *Result) (Published, error) {
	if s.objects == nil {
		return Published{}, ErrStorageNotConfigured
	}
	published, err := s.objects.Put(ctx, projectID, result, publishTTL)
	if err != nil {
		return Published{}, err
	}
	log.Info().Str("project_id", projectID).Str("key", published.Key).Msg("export: report published")
	return published, nil
}

func (s *Service) StorageConfigured() bool {
	return s != nil && s.objects != nil
}

func (s *Service) Ping(ctx context.Context) error {
	if s == nil || s.objects == nil {
		return nil
	}
	return s.objects.Ping(ctx)
}

func buildTemplateData(projectID string, generatedAt time.Time, items []store.EditRequest) TemplateData {
	data := TemplateData{
		ProjectID:   projectID,
		GeneratedAt: generatedAt,
		Total:       len(items),
		Requests:    make([]TemplateRequest, 0, len(items)),
	}
	for _, item := range items {
		switch item.Status {
		case store.StatusOpen:
			data.Open++
		case store.StatusInProgress:
			data.InProgress++
		case store.StatusResolved:
			data.Resolved++
		}
		entry := TemplateRequest{
			PageURL:   item.PageURL,
			Message:   item.Message,
			Status:    string(item.Status),
			CreatedAt: item.CreatedAt,
			Replies:   make([]TemplateReply, 0, len(item.Replies)),
		}
		if item.SectionID != nil {
			entry.SectionID = *item.SectionID
		}
		if item.SubmittedBy != nil {
			entry.SubmittedBy = *item.SubmittedBy
		}
		for _, reply := range item.Replies {
			entry.Replies = append(entry.Replies, TemplateReply{From: reply.From, Message: reply.Message})
		}
		data.Requests = append(data.Requests, entry)
	}
	return data
}
