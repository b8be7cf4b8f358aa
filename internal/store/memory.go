package store

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"sync"
	"time"

	"editdesk/api/internal/util"
)

// MemoryStore keeps everything in process. It backs development runs and
// tests and follows PostgresStore's contract, including sql.ErrNoRows for
// missing rows and atomic reply appends.
type MemoryStore struct {
	mu       sync.Mutex
	now      func() time.Time
	requests map[string]EditRequest
	projects map[string]Project
	comments map[string]Comment
	seq      int64
	order    map[string]int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now:      time.Now,
		requests: map[string]EditRequest{},
		projects: map[string]Project{},
		comments: map[string]Comment{},
		order:    map[string]int64{},
	}
}

func (s *MemoryStore) stamp(id string) time.Time {
	s.seq++
	s.order[id] = s.seq
	return s.now().UTC()
}

// newer orders by creation time, then insertion order.
func (s *MemoryStore) newer(aID string, a time.Time, bID string, b time.Time) bool {
	if !a.Equal(b) {
		return a.After(b)
	}
	return s.order[aID] > s.order[bID]
}

func cloneString(v *string) *string {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneRequest(item EditRequest) EditRequest {
	item.SectionID = cloneString(item.SectionID)
	item.SubmittedBy = cloneString(item.SubmittedBy)
	replies := make([]Reply, len(item.Replies))
	copy(replies, item.Replies)
	item.Replies = replies
	return item
}

func cloneComment(item Comment) Comment {
	item.ParentID = cloneString(item.ParentID)
	return item
}

func inScope(projectID, owner string) bool {
	return projectID == "" || projectID == owner
}

func (s *MemoryStore) InsertEditRequest(_ context.Context, item EditRequest) (EditRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if item.ID == "" {
		item.ID = util.NewID("req")
	}
	if item.Status == "" {
		item.Status = StatusOpen
	}
	now := s.stamp(item.ID)
	item.Replies = make([]Reply, 0)
	item.Version = 1
	item.CreatedAt = now
	item.UpdatedAt = now
	s.requests[item.ID] = cloneRequest(item)
	return cloneRequest(item), nil
}

func (s *MemoryStore) GetEditRequest(_ context.Context, projectID, id string) (EditRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.requests[id]
	if !ok || !inScope(projectID, item.ProjectID) {
		return EditRequest{}, sql.ErrNoRows
	}
	return cloneRequest(item), nil
}

func (s *MemoryStore) ListEditRequests(_ context.Context, filter RequestFilter) ([]EditRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	search := strings.ToLower(strings.TrimSpace(filter.Search))
	items := make([]EditRequest, 0)
	for _, item := range s.requests {
		if !inScope(filter.ProjectID, item.ProjectID) {
			continue
		}
		if filter.PageURL != "" && filter.PageURL != FilterAll && item.PageURL != filter.PageURL {
			continue
		}
		if filter.Status != "" && filter.Status != FilterAll && string(item.Status) != filter.Status {
			continue
		}
		if search != "" {
			section := ""
			if item.SectionID != nil {
				section = *item.SectionID
			}
			if !strings.Contains(strings.ToLower(item.Message), search) && !strings.Contains(strings.ToLower(section), search) {
				continue
			}
		}
		items = append(items, cloneRequest(item))
	}
	sort.Slice(items, func(i, j int) bool {
		return s.newer(items[i].ID, items[i].CreatedAt, items[j].ID, items[j].CreatedAt)
	})
	return items, nil
}

func (s *MemoryStore) UpdateEditRequestStatus(_ context.Context, projectID, id string, status RequestStatus) (EditRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.requests[id]
	if !ok || !inScope(projectID, item.ProjectID) {
		return EditRequest{}, sql.ErrNoRows
	}
	item.Status = status
	item.Version++
	item.UpdatedAt = s.now().UTC()
	s.requests[id] = item
	return cloneRequest(item), nil
}

func (s *MemoryStore) AppendReply(_ context.Context, projectID, id string, reply Reply) (EditRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.requests[id]
	if !ok || !inScope(projectID, item.ProjectID) {
		return EditRequest{}, sql.ErrNoRows
	}
	item = cloneRequest(item)
	item.Replies = append(item.Replies, reply)
	item.Version++
	item.UpdatedAt = s.now().UTC()
	s.requests[id] = item
	return cloneRequest(item), nil
}

func (s *MemoryStore) ListPageURLs(_ context.Context, projectID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[string]struct{}{}
	items := make([]string, 0)
	for _, item := range s.requests {
		if !inScope(projectID, item.ProjectID) {
			continue
		}
		if _, dup := seen[item.PageURL]; dup {
			continue
		}
		seen[item.PageURL] = struct{}{}
		items = append(items, item.PageURL)
	}
	sort.Strings(items)
	return items, nil
}

func (s *MemoryStore) InsertProject(_ context.Context, item Project) (Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if item.ID == "" {
		item.ID = util.NewID("prj")
	}
	now := s.stamp(item.ID)
	item.CreatedAt = now
	item.UpdatedAt = now
	s.projects[item.ID] = item
	return item, nil
}

func (s *MemoryStore) ListProjects(_ context.Context, designerID string) ([]Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]Project, 0)
	for _, item := range s.projects {
		if item.DesignerID == designerID {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		return s.newer(items[i].ID, items[i].CreatedAt, items[j].ID, items[j].CreatedAt)
	})
	return items, nil
}

func (s *MemoryStore) GetProject(_ context.Context, designerID, id string) (Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.projects[id]
	if !ok || item.DesignerID != designerID {
		return Project{}, sql.ErrNoRows
	}
	return item, nil
}

func (s *MemoryStore) UpdateProject(_ context.Context, update Project) (Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.projects[update.ID]
	if !ok || item.DesignerID != update.DesignerID {
		return Project{}, sql.ErrNoRows
	}
	item.Name = update.Name
	item.URL = update.URL
	item.Slug = update.Slug
	item.UpdatedAt = s.now().UTC()
	s.projects[item.ID] = item
	return item, nil
}

func (s *MemoryStore) DeleteProject(_ context.Context, designerID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.projects[id]
	if !ok || item.DesignerID != designerID {
		return sql.ErrNoRows
	}
	delete(s.projects, id)
	return nil
}

func (s *MemoryStore) InsertComment(_ context.Context, item Comment) (Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if item.ParentID != nil {
		parent, ok := s.comments[*item.ParentID]
		if !ok || parent.ProjectID != item.ProjectID {
			return Comment{}, sql.ErrNoRows
		}
	}
	if item.ID == "" {
		item.ID = util.NewID("cmt")
	}
	if item.Status == "" {
		item.Status = CommentOpen
	}
	now := s.stamp(item.ID)
	item.CreatedAt = now
	item.UpdatedAt = now
	s.comments[item.ID] = cloneComment(item)
	return cloneComment(item), nil
}

func (s *MemoryStore) GetComment(_ context.Context, projectID, id string) (Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.comments[id]
	if !ok || item.ProjectID != projectID {
		return Comment{}, sql.ErrNoRows
	}
	return cloneComment(item), nil
}

func (s *MemoryStore) ListComments(_ context.Context, projectID, parentID string) ([]Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]Comment, 0)
	for _, item := range s.comments {
		if item.ProjectID != projectID {
			continue
		}
		if parentID == "" && item.ParentID != nil {
			continue
		}
		if parentID != "" && (item.ParentID == nil || *item.ParentID != parentID) {
			continue
		}
		items = append(items, cloneComment(item))
	}
	sort.Slice(items, func(i, j int) bool {
		return s.newer(items[j].ID, items[j].CreatedAt, items[i].ID, items[i].CreatedAt)
	})
	return items, nil
}

func (s *MemoryStore) UpdateCommentStatus(_ context.Context, projectID, id string, status CommentStatus) (Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.comments[id]
	if !ok || item.ProjectID != projectID {
		return Comment{}, sql.ErrNoRows
	}
	item.Status = status
	item.UpdatedAt = s.now().UTC()
	s.comments[id] = item
	return cloneComment(item), nil
}

// DeleteComment removes id and, transitively, its replies.
func (s *MemoryStore) DeleteComment(_ context.Context, projectID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.comments[id]
	if !ok || item.ProjectID != projectID {
		return sql.ErrNoRows
	}
	pending := []string{id}
	for len(pending) > 0 {
		current := pending[0]
		pending = pending[1:]
		delete(s.comments, current)
		for childID, child := range s.comments {
			if child.ParentID != nil && *child.ParentID == current {
				pending = append(pending, childID)
			}
		}
	}
	return nil
}

func (s *MemoryStore) Ping(context.Context) error {
	return nil
}
