package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func strPtr(v string) *string { return &v }

func seedRequests(t *testing.T, s *MemoryStore) {
	t.Helper()
	ctx := context.Background()
	items := []EditRequest{
		{ProjectID: "proj_a", PageURL: "/home", Message: "Fix headline", SectionID: strPtr("hero")},
		{ProjectID: "proj_a", PageURL: "/about", Message: "Swap the team photo"},
		{ProjectID: "proj_b", PageURL: "/home", Message: "Fix footer links", SectionID: strPtr("footer")},
		{ProjectID: "proj_a", PageURL: "/home", Message: "Darker button", SectionID: strPtr("HERO-cta")},
	}
	for _, item := range items {
		if _, err := s.InsertEditRequest(ctx, item); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
}

func TestMemoryStoreInsertDefaults(t *testing.T) {
	s := NewMemoryStore()
	created, err := s.InsertEditRequest(context.Background(), EditRequest{ProjectID: "proj_a", PageURL: "/", Message: "hello"})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if created.ID == "" || created.Status != StatusOpen || created.Replies == nil || len(created.Replies) != 0 {
		t.Fatalf("unexpected defaults: %+v", created)
	}
	if created.Version != 1 || created.CreatedAt.IsZero() || !created.CreatedAt.Equal(created.UpdatedAt) {
		t.Fatalf("unexpected bookkeeping: %+v", created)
	}
}

func TestMemoryStoreListFilters(t *testing.T) {
	s := NewMemoryStore()
	seedRequests(t, s)
	ctx := context.Background()

	tests := []struct {
		name   string
		filter RequestFilter
		want   []string
	}{
		{name: "project scope newest first", filter: RequestFilter{ProjectID: "proj_a"}, want: []string{"Darker button", "Swap the team photo", "Fix headline"}},
		{name: "all sentinels", filter: RequestFilter{ProjectID: "proj_a", PageURL: FilterAll, Status: FilterAll}, want: []string{"Darker button", "Swap the team photo", "Fix headline"}},
		{name: "page", filter: RequestFilter{ProjectID: "proj_a", PageURL: "/home"}, want: []string{"Darker button", "Fix headline"}},
		{name: "search message", filter: RequestFilter{ProjectID: "proj_a", Search: "FIX"}, want: []string{"Fix headline"}},
		{name: "search section", filter: RequestFilter{ProjectID: "proj_a", Search: "hero"}, want: []string{"Darker button", "Fix headline"}},
		{name: "status", filter: RequestFilter{ProjectID: "proj_a", Status: string(StatusResolved)}, want: []string{}},
		{name: "other project", filter: RequestFilter{ProjectID: "proj_b", Search: "fix"}, want: []string{"Fix footer links"}},
		{name: "unknown project", filter: RequestFilter{ProjectID: "proj_z"}, want: []string{}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			items, err := s.ListEditRequests(ctx, tc.filter)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if items == nil {
				t.Fatal("expected empty slice, got nil")
			}
			got := make([]string, 0, len(items))
			for _, item := range items {
				if tc.filter.ProjectID != "" && item.ProjectID != tc.filter.ProjectID {
					t.Fatalf("request %s leaked from %s", item.ID, item.ProjectID)
				}
				got = append(got, item.Message)
			}
			if fmt.Sprint(got) != fmt.Sprint(tc.want) {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestMemoryStoreScopedLookups(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	created, err := s.InsertEditRequest(ctx, EditRequest{ProjectID: "proj_a", PageURL: "/", Message: "m"})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	if _, err := s.GetEditRequest(ctx, "proj_b", created.ID); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected ErrNoRows across projects, got %v", err)
	}
	if _, err := s.UpdateEditRequestStatus(ctx, "proj_b", created.ID, StatusResolved); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected ErrNoRows for foreign status update, got %v", err)
	}
	if _, err := s.AppendReply(ctx, "proj_b", created.ID, Reply{ID: "r1", Message: "x"}); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected ErrNoRows for foreign reply, got %v", err)
	}
	if _, err := s.GetEditRequest(ctx, "", created.ID); err != nil {
		t.Fatalf("unscoped get: %v", err)
	}
}

func TestMemoryStoreStatusUpdateKeepsOtherFields(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }

	created, _ := s.InsertEditRequest(ctx, EditRequest{ProjectID: "proj_a", PageURL: "/", Message: "m"})
	withReply, err := s.AppendReply(ctx, "proj_a", created.ID, Reply{ID: "r1", Message: "first", From: "client"})
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	s.now = func() time.Time { return base.Add(time.Hour) }
	updated, err := s.UpdateEditRequestStatus(ctx, "proj_a", created.ID, StatusResolved)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Status != StatusResolved || !updated.UpdatedAt.Equal(base.Add(time.Hour)) {
		t.Fatalf("status not applied: %+v", updated)
	}
	if updated.Message != created.Message || updated.PageURL != created.PageURL || !updated.CreatedAt.Equal(created.CreatedAt) {
		t.Fatalf("immutable fields changed: %+v", updated)
	}
	if len(updated.Replies) != 1 || updated.Replies[0] != withReply.Replies[0] {
		t.Fatalf("replies changed: %+v", updated.Replies)
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	created, _ := s.InsertEditRequest(ctx, EditRequest{ProjectID: "proj_a", PageURL: "/", Message: "m"})
	item, _ := s.AppendReply(ctx, "proj_a", created.ID, Reply{ID: "r1", Message: "first"})

	item.Replies[0].Message = "tampered"
	item.Replies = append(item.Replies, Reply{ID: "r2"})

	stored, _ := s.GetEditRequest(ctx, "proj_a", created.ID)
	if len(stored.Replies) != 1 || stored.Replies[0].Message != "first" {
		t.Fatalf("stored replies mutated through a returned value: %+v", stored.Replies)
	}
}

func TestMemoryStoreConcurrentAppendsKeepEveryReply(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	created, _ := s.InsertEditRequest(ctx, EditRequest{ProjectID: "proj_a", PageURL: "/", Message: "m"})

	const writers = 50
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := s.AppendReply(ctx, "proj_a", created.ID, Reply{ID: fmt.Sprintf("r%d", i), Message: "hi"}); err != nil {
				t.Errorf("append %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	stored, _ := s.GetEditRequest(ctx, "proj_a", created.ID)
	if len(stored.Replies) != writers {
		t.Fatalf("expected %d replies, got %d", writers, len(stored.Replies))
	}
	if stored.Version != writers+1 {
		t.Fatalf("expected version %d, got %d", writers+1, stored.Version)
	}
}

func TestMemoryStorePageURLs(t *testing.T) {
	s := NewMemoryStore()
	seedRequests(t, s)
	pages, err := s.ListPageURLs(context.Background(), "proj_a")
	if err != nil {
		t.Fatalf("list pages: %v", err)
	}
	if fmt.Sprint(pages) != "[/about /home]" {
		t.Fatalf("unexpected pages: %v", pages)
	}
}

func TestMemoryStoreProjectsAreOwnerScoped(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	first, _ := s.InsertProject(ctx, Project{DesignerID: "dana", Name: "Bakery", URL: "https://bakery.test"})
	second, _ := s.InsertProject(ctx, Project{DesignerID: "dana", Name: "Florist", URL: "https://florist.test"})
	_, _ = s.InsertProject(ctx, Project{DesignerID: "sam", Name: "Garage", URL: "https://garage.test"})

	items, _ := s.ListProjects(ctx, "dana")
	if len(items) != 2 || items[0].ID != second.ID || items[1].ID != first.ID {
		t.Fatalf("unexpected projects: %+v", items)
	}
	if _, err := s.GetProject(ctx, "sam", first.ID); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected ErrNoRows for foreign project, got %v", err)
	}
	if _, err := s.UpdateProject(ctx, Project{ID: first.ID, DesignerID: "sam", Name: "x", URL: "y"}); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected ErrNoRows for foreign update, got %v", err)
	}
	if err := s.DeleteProject(ctx, "dana", first.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.DeleteProject(ctx, "dana", first.ID); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected ErrNoRows on second delete, got %v", err)
	}
}

func TestMemoryStoreCommentsCascade(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	root, _ := s.InsertComment(ctx, Comment{ProjectID: "proj_a", UserID: "u1", Content: "move this", X: 10, Y: 20})
	reply, _ := s.InsertComment(ctx, Comment{ProjectID: "proj_a", UserID: "u2", Content: "ok", ParentID: strPtr(root.ID)})
	_, _ = s.InsertComment(ctx, Comment{ProjectID: "proj_a", UserID: "u1", Content: "thanks", ParentID: strPtr(reply.ID)})
	other, _ := s.InsertComment(ctx, Comment{ProjectID: "proj_a", UserID: "u1", Content: "another"})

	top, _ := s.ListComments(ctx, "proj_a", "")
	if len(top) != 2 || top[0].ID != root.ID || top[1].ID != other.ID {
		t.Fatalf("unexpected top-level comments: %+v", top)
	}
	replies, _ := s.ListComments(ctx, "proj_a", root.ID)
	if len(replies) != 1 || replies[0].ID != reply.ID {
		t.Fatalf("unexpected replies: %+v", replies)
	}
	if _, err := s.InsertComment(ctx, Comment{ProjectID: "proj_b", UserID: "u3", Content: "x", ParentID: strPtr(root.ID)}); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected ErrNoRows for cross-project parent, got %v", err)
	}

	if err := s.DeleteComment(ctx, "proj_a", root.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	remaining, _ := s.ListComments(ctx, "proj_a", "")
	if len(remaining) != 1 || remaining[0].ID != other.ID {
		t.Fatalf("unexpected remaining comments: %+v", remaining)
	}
	if _, err := s.GetComment(ctx, "proj_a", reply.ID); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("reply survived cascade: %v", err)
	}
}
