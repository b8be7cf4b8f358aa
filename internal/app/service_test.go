package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"editdesk/api/internal/auth"
	"editdesk/api/internal/config"
	"editdesk/api/internal/handshake"
	"editdesk/api/internal/rbac"
	"editdesk/api/internal/search"
	"editdesk/api/internal/store"
)

const testSecret = "test-secret"

// fakeStore delegates to a MemoryStore unless a function field overrides the
// call.
type fakeStore struct {
	*store.MemoryStore
	insertEditRequestFn func(context.Context, store.EditRequest) (store.EditRequest, error)
	listEditRequestsFn  func(context.Context, store.RequestFilter) ([]store.EditRequest, error)
	updateStatusFn      func(context.Context, string, string, store.RequestStatus) (store.EditRequest, error)
	appendReplyFn       func(context.Context, string, string, store.Reply) (store.EditRequest, error)
	pingFn              func(context.Context) error
}

func newFakeStore() *fakeStore {
	return &fakeStore{MemoryStore: store.NewMemoryStore()}
}

func (f *fakeStore) InsertEditRequest(ctx context.Context, item store.EditRequest) (store.EditRequest, error) {
	if f.insertEditRequestFn != nil {
		return f.insertEditRequestFn(ctx, item)
	}
	return f.MemoryStore.InsertEditRequest(ctx, item)
}

func (f *fakeStore) ListEditRequests(ctx context.Context, filter store.RequestFilter) ([]store.EditRequest, error) {
	if f.listEditRequestsFn != nil {
		return f.listEditRequestsFn(ctx, filter)
	}
	return f.MemoryStore.ListEditRequests(ctx, filter)
}

func (f *fakeStore) UpdateEditRequestStatus(ctx context.Context, projectID, id string, status store.RequestStatus) (store.EditRequest, error) {
	if f.updateStatusFn != nil {
		return f.updateStatusFn(ctx, projectID, id, status)
	}
	return f.MemoryStore.UpdateEditRequestStatus(ctx, projectID, id, status)
}

func (f *fakeStore) AppendReply(ctx context.Context, projectID, id string, reply store.Reply) (store.EditRequest, error) {
	if f.appendReplyFn != nil {
		return f.appendReplyFn(ctx, projectID, id, reply)
	}
	return f.MemoryStore.AppendReply(ctx, projectID, id, reply)
}

func (f *fakeStore) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return nil
}

func testConfig() config.Config {
	return config.Config{
		Env:       "test",
		JWTSecret: testSecret,
		TokenTTL:  time.Hour,
	}
}

func newTestService(fs *fakeStore) *Service {
	return New(testConfig(), fs, nil, nil, handshake.NewMemoryBus())
}

func mustCreate(t *testing.T, svc *Service, projectID, pageURL, message string) store.EditRequest {
	t.Helper()
	created, err := svc.CreateRequest(context.Background(), CreateRequestInput{
		PageURL:   pageURL,
		Message:   message,
		ProjectID: projectID,
	})
	require.NoError(t, err)
	return created
}

func TestCreateRequestStartsOpenWithoutReplies(t *testing.T) {
	svc := newTestService(newFakeStore())

	created, err := svc.CreateRequest(context.Background(), CreateRequestInput{
		PageURL:     " /home ",
		SectionID:   "  ",
		Message:     "  Fix headline ",
		ProjectID:   "proj_123",
		SubmittedBy: "client@x.com",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, created.ID)
	assert.Equal(t, store.StatusOpen, created.Status)
	assert.NotNil(t, created.Replies)
	assert.Empty(t, created.Replies)
	assert.Equal(t, "Fix headline", created.Message)
	assert.Equal(t, "/home", created.PageURL)
	assert.Nil(t, created.SectionID)
	require.NotNil(t, created.SubmittedBy)
	assert.Equal(t, "client@x.com", *created.SubmittedBy)
}

func TestCreateRequestValidation(t *testing.T) {
	svc := newTestService(newFakeStore())

	cases := []struct {
		name  string
		input CreateRequestInput
		field string
	}{
		{"empty message", CreateRequestInput{PageURL: "/", ProjectID: "p"}, "message"},
		{"whitespace message", CreateRequestInput{PageURL: "/", Message: " \t ", ProjectID: "p"}, "message"},
		{"missing project", CreateRequestInput{PageURL: "/", Message: "hi"}, "projectId"},
		{"missing page", CreateRequestInput{Message: "hi", ProjectID: "p"}, "pageUrl"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateRequest(context.Background(), tc.input)
			require.ErrorIs(t, err, ErrValidation)

			var domainErr *DomainError
			require.ErrorAs(t, err, &domainErr)
			assert.Equal(t, http.StatusUnprocessableEntity, domainErr.Status)
			assert.Equal(t, map[string]any{"field": tc.field}, domainErr.Details)
		})
	}
}

func TestCreateRequestPersistenceFailure(t *testing.T) {
	fs := newFakeStore()
	boom := errors.New("connection reset")
	fs.insertEditRequestFn = func(context.Context, store.EditRequest) (store.EditRequest, error) {
		return store.EditRequest{}, boom
	}
	svc := newTestService(fs)

	_, err := svc.CreateRequest(context.Background(), CreateRequestInput{PageURL: "/", Message: "hi", ProjectID: "p"})
	require.ErrorIs(t, err, ErrPersistence)
	require.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrValidation)

	status, code, _, _ := mapError(err)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "PERSISTENCE_ERROR", code)
}

func TestListRequestsNeverCrossesProjects(t *testing.T) {
	svc := newTestService(newFakeStore())
	for i := 0; i < 3; i++ {
		mustCreate(t, svc, "proj_a", "/home", fmt.Sprintf("a-%d", i))
		mustCreate(t, svc, "proj_b", "/home", fmt.Sprintf("b-%d", i))
	}

	filters := []store.RequestFilter{
		{ProjectID: "proj_a"},
		{ProjectID: "proj_a", PageURL: store.FilterAll, Status: store.FilterAll},
		{ProjectID: "proj_a", PageURL: "/home", Search: "b-"},
		{ProjectID: "proj_a", Status: string(store.StatusOpen)},
	}
	for _, filter := range filters {
		items, err := svc.ListRequests(context.Background(), filter)
		require.NoError(t, err)
		for _, item := range items {
			assert.Equal(t, "proj_a", item.ProjectID, "filter %+v", filter)
		}
	}

	items, err := svc.ListRequests(context.Background(), store.RequestFilter{ProjectID: "proj_a"})
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "a-2", items[0].Message, "newest first")

	none, err := svc.ListRequests(context.Background(), store.RequestFilter{ProjectID: "proj_a", Search: "nothing matches"})
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestListRequestsRejectsUnknownStatus(t *testing.T) {
	svc := newTestService(newFakeStore())
	_, err := svc.ListRequests(context.Background(), store.RequestFilter{ProjectID: "p", Status: "done"})
	require.ErrorIs(t, err, ErrValidation)
}

func TestSetStatusChangesOnlyStatus(t *testing.T) {
	svc := newTestService(newFakeStore())
	ctx := context.Background()
	created := mustCreate(t, svc, "proj_a", "/pricing", "Raise the price")
	before, err := svc.AddReply(ctx, "proj_a", created.ID, ReplyInput{Message: "Sure", From: "designer"})
	require.NoError(t, err)

	for _, status := range []string{"in-progress", "resolved", "open", "open"} {
		after, err := svc.SetStatus(ctx, "proj_a", created.ID, status)
		require.NoError(t, err)

		assert.Equal(t, store.RequestStatus(status), after.Status)
		assert.Equal(t, before.Message, after.Message)
		assert.Equal(t, before.PageURL, after.PageURL)
		assert.Equal(t, before.Replies, after.Replies)
		assert.True(t, before.CreatedAt.Equal(after.CreatedAt))
		assert.False(t, after.UpdatedAt.Before(before.UpdatedAt))
	}
}

func TestSetStatusErrors(t *testing.T) {
	svc := newTestService(newFakeStore())
	created := mustCreate(t, svc, "proj_a", "/", "hi")

	_, err := svc.SetStatus(context.Background(), "proj_a", created.ID, "archived")
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.SetStatus(context.Background(), "proj_a", "req_missing", "resolved")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = svc.SetStatus(context.Background(), "proj_b", created.ID, "resolved")
	require.ErrorIs(t, err, ErrNotFound, "requests of other projects are invisible")
}

func TestSetStatusPersistenceFailure(t *testing.T) {
	fs := newFakeStore()
	fs.updateStatusFn = func(context.Context, string, string, store.RequestStatus) (store.EditRequest, error) {
		return store.EditRequest{}, errors.New("deadlock detected")
	}
	svc := newTestService(fs)

	_, err := svc.SetStatus(context.Background(), "proj_a", "req_1", "resolved")
	require.ErrorIs(t, err, ErrPersistence)
}

func TestAddReplySequentialKeepsOrder(t *testing.T) {
	svc := newTestService(newFakeStore())
	ctx := context.Background()
	created := mustCreate(t, svc, "proj_a", "/", "hi")

	_, err := svc.AddReply(ctx, "proj_a", created.ID, ReplyInput{Message: "first", From: "client"})
	require.NoError(t, err)
	updated, err := svc.AddReply(ctx, "proj_a", created.ID, ReplyInput{Message: " second ", From: "designer"})
	require.NoError(t, err)

	require.Len(t, updated.Replies, 2)
	assert.Equal(t, "first", updated.Replies[0].Message)
	assert.Equal(t, "second", updated.Replies[1].Message)
	assert.NotEqual(t, updated.Replies[0].ID, updated.Replies[1].ID)
	assert.Equal(t, store.StatusOpen, updated.Status, "replies never change status")
	assert.Equal(t, time.UTC, updated.Replies[1].Timestamp.Location())
}

func TestAddReplyConcurrentAppendsAreAllKept(t *testing.T) {
	svc := newTestService(newFakeStore())
	created := mustCreate(t, svc, "proj_a", "/", "hi")

	const writers = 25
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			from := "client"
			if i%2 == 0 {
				from = "designer"
			}
			_, err := svc.AddReply(context.Background(), "proj_a", created.ID, ReplyInput{Message: fmt.Sprintf("reply %d", i), From: from})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	final, err := svc.GetRequest(context.Background(), "proj_a", created.ID)
	require.NoError(t, err)
	require.Len(t, final.Replies, writers)

	ids := map[string]struct{}{}
	for _, reply := range final.Replies {
		ids[reply.ID] = struct{}{}
	}
	assert.Len(t, ids, writers)
}

func TestAddReplyErrors(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)
	created := mustCreate(t, svc, "proj_a", "/", "hi")

	_, err := svc.AddReply(context.Background(), "proj_a", created.ID, ReplyInput{Message: "   ", From: "client"})
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.AddReply(context.Background(), "proj_a", created.ID, ReplyInput{Message: "hi", From: "admin"})
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.AddReply(context.Background(), "proj_a", "req_missing", ReplyInput{Message: "hi", From: "client"})
	require.ErrorIs(t, err, ErrNotFound)

	fs.appendReplyFn = func(context.Context, string, string, store.Reply) (store.EditRequest, error) {
		return store.EditRequest{}, errors.New("disk full")
	}
	_, err = svc.AddReply(context.Background(), "proj_a", created.ID, ReplyInput{Message: "hi", From: "client"})
	require.ErrorIs(t, err, ErrPersistence)
}

func TestLifecycleScenario(t *testing.T) {
	svc := newTestService(newFakeStore())
	ctx := context.Background()

	created, err := svc.CreateRequest(ctx, CreateRequestInput{
		PageURL:     "/home",
		Message:     "Fix headline",
		ProjectID:   "proj_123",
		SubmittedBy: "client@x.com",
	})
	require.NoError(t, err)
	_, err = svc.SetStatus(ctx, "proj_123", created.ID, "in-progress")
	require.NoError(t, err)
	final, err := svc.AddReply(ctx, "proj_123", created.ID, ReplyInput{Message: "Working on it", From: "designer"})
	require.NoError(t, err)

	assert.Equal(t, store.StatusInProgress, final.Status)
	require.Len(t, final.Replies, 1)
	assert.Equal(t, "designer", final.Replies[0].From)
}

func TestListPages(t *testing.T) {
	svc := newTestService(newFakeStore())
	mustCreate(t, svc, "proj_a", "/home", "one")
	mustCreate(t, svc, "proj_a", "/about", "two")
	mustCreate(t, svc, "proj_a", "/home", "three")
	mustCreate(t, svc, "proj_b", "/secret", "four")

	pages, err := svc.ListPages(context.Background(), "proj_a")
	require.NoError(t, err)
	assert.Equal(t, []string{"/about", "/home"}, pages)
}

func TestSearchUsesStoreFallbackScopedToProject(t *testing.T) {
	svc := newTestService(newFakeStore())
	mustCreate(t, svc, "proj_a", "/home", "Fix the headline")
	mustCreate(t, svc, "proj_b", "/home", "Fix the footer")

	response, err := svc.Search(context.Background(), "proj_a", search.Query{Text: "fix"})
	require.NoError(t, err)
	assert.Equal(t, "store", response.Engine)
	require.Len(t, response.Results, 1)
	assert.Equal(t, "proj_a", response.Results[0].ProjectID)

	all, err := svc.Search(context.Background(), "proj_a", search.Query{Text: "fix", Status: store.FilterAll, PageURL: store.FilterAll})
	require.NoError(t, err)
	assert.Len(t, all.Results, 1)

	empty, err := svc.Search(context.Background(), "", search.Query{Text: "fix"})
	require.NoError(t, err)
	assert.Empty(t, empty.Results)
}

func TestSearchRejectsUnknownStatus(t *testing.T) {
	svc := newTestService(newFakeStore())

	_, err := svc.Search(context.Background(), "proj_a", search.Query{Text: "fix", Status: "closed"})
	require.ErrorIs(t, err, ErrValidation)
}

func TestProjectsAreScopedByDesigner(t *testing.T) {
	svc := newTestService(newFakeStore())
	ctx := context.Background()

	created, err := svc.CreateProject(ctx, "designer_1", ProjectInput{Name: " Acme ", URL: "https://acme.test"})
	require.NoError(t, err)
	assert.Equal(t, "Acme", created.Name)
	assert.Equal(t, "designer_1", created.CreatedBy)

	_, err = svc.CreateProject(ctx, "designer_1", ProjectInput{URL: "https://acme.test"})
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.GetProject(ctx, "designer_2", created.ID)
	require.ErrorIs(t, err, ErrNotFound)

	updated, err := svc.UpdateProject(ctx, "designer_1", created.ID, ProjectInput{Name: "Acme Inc", URL: "https://acme.test"})
	require.NoError(t, err)
	assert.Equal(t, "Acme Inc", updated.Name)

	_, err = svc.UpdateProject(ctx, "designer_2", created.ID, ProjectInput{Name: "Stolen", URL: "https://x.test"})
	require.ErrorIs(t, err, ErrNotFound)

	others, err := svc.ListProjects(ctx, "designer_2")
	require.NoError(t, err)
	assert.Empty(t, others)

	require.ErrorIs(t, svc.DeleteProject(ctx, "designer_2", created.ID), ErrNotFound)
	require.NoError(t, svc.DeleteProject(ctx, "designer_1", created.ID))
	require.ErrorIs(t, svc.DeleteProject(ctx, "designer_1", created.ID), ErrNotFound)
}

func TestCommentsThreadAndCascade(t *testing.T) {
	svc := newTestService(newFakeStore())
	ctx := context.Background()

	pin, err := svc.CreateComment(ctx, "proj_a", CommentInput{PageURL: "/home", UserID: "u1", Content: "Too bright", X: 0.4, Y: 0.2})
	require.NoError(t, err)
	assert.Equal(t, store.CommentOpen, pin.Status)

	reply, err := svc.CreateComment(ctx, "proj_a", CommentInput{PageURL: "/ignored", UserID: "u2", ParentID: pin.ID, Content: "Agreed"})
	require.NoError(t, err)
	assert.Equal(t, "/home", reply.PageURL, "replies inherit the pin's page")

	_, err = svc.CreateComment(ctx, "proj_b", CommentInput{PageURL: "/home", UserID: "u3", ParentID: pin.ID, Content: "Sneaky"})
	require.ErrorIs(t, err, ErrNotFound)

	_, err = svc.CreateComment(ctx, "proj_a", CommentInput{PageURL: "/home", Content: "anonymous"})
	require.ErrorIs(t, err, ErrValidation)

	top, err := svc.ListComments(ctx, "proj_a")
	require.NoError(t, err)
	require.Len(t, top, 1)

	replies, err := svc.ListCommentReplies(ctx, "proj_a", pin.ID)
	require.NoError(t, err)
	require.Len(t, replies, 1)
	assert.Equal(t, reply.ID, replies[0].ID)

	resolved, err := svc.SetCommentStatus(ctx, "proj_a", pin.ID, "resolved")
	require.NoError(t, err)
	assert.Equal(t, store.CommentResolved, resolved.Status)
	_, err = svc.SetCommentStatus(ctx, "proj_a", pin.ID, "archived")
	require.ErrorIs(t, err, ErrValidation)

	require.NoError(t, svc.DeleteComment(ctx, "proj_a", pin.ID))
	_, err = svc.ListCommentReplies(ctx, "proj_a", pin.ID)
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, svc.DeleteComment(ctx, "proj_a", reply.ID), ErrNotFound, "replies are deleted with their pin")
}

func TestExportHTMLAndUnsupportedFormat(t *testing.T) {
	svc := newTestService(newFakeStore())
	mustCreate(t, svc, "proj_a", "/home", "Fix headline")

	out, err := svc.Export(context.Background(), "proj_a", ExportInput{})
	require.NoError(t, err)
	assert.Contains(t, string(out.Result.Data), "Fix headline")
	assert.Nil(t, out.Published)

	_, err = svc.Export(context.Background(), "proj_a", ExportInput{Format: "docx"})
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.Export(context.Background(), "proj_a", ExportInput{Publish: true})
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestResolveHandshakeAnnouncesAndIssuesToken(t *testing.T) {
	bus := handshake.NewMemoryBus()
	svc := New(testConfig(), newFakeStore(), nil, nil, bus)

	var (
		mu       sync.Mutex
		received []handshake.Message
	)
	unsubscribe, err := handshake.Listen(context.Background(), bus.Window("host"), func(msg handshake.Message) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, msg)
	})
	require.NoError(t, err)
	defer unsubscribe()

	result, err := svc.ResolveHandshake(context.Background(), ResolveHandshakeInput{
		HTML:    `<div id="lef-designer-root" data-project-id="proj_123" data-user-role="designer"></div>`,
		Frame:   FrameIDs{Self: "frame", Parent: "host", Top: "host"},
		Subject: "designer_1",
		Trusted: true,
	})
	require.NoError(t, err)
	assert.Equal(t, handshake.Context{ProjectID: "proj_123", Role: rbac.RoleDesigner}, result.Context)

	mu.Lock()
	require.Len(t, received, 1, "parent and top coincide")
	ready, ok := received[0].(handshake.WidgetReady)
	mu.Unlock()
	require.True(t, ok)
	assert.Equal(t, "proj_123", ready.ProjectID)

	claims, err := auth.ParseToken([]byte(testSecret), result.Token)
	require.NoError(t, err)
	assert.Equal(t, "proj_123", claims.ProjectID)
	assert.Equal(t, rbac.RoleDesigner, claims.FrameRole())
	assert.Equal(t, "designer_1", claims.Subject)
}

func TestResolveHandshakeWithoutHostKeyCapsRole(t *testing.T) {
	svc := newTestService(newFakeStore())

	result, err := svc.ResolveHandshake(context.Background(), ResolveHandshakeInput{
		HTML:    `<div id="lef-designer-root" data-project-id="proj_123"></div>`,
		Frame:   FrameIDs{Self: "frame"},
		Subject: "designer_1",
	})
	require.NoError(t, err)
	assert.Equal(t, rbac.RoleDesigner, result.Context.Role, "the page context is reported as read")
	assert.Equal(t, rbac.RoleClient, result.Role)
	assert.Empty(t, result.Subject)

	claims, err := auth.ParseToken([]byte(testSecret), result.Token)
	require.NoError(t, err)
	assert.Equal(t, rbac.RoleClient, claims.FrameRole())
	assert.Empty(t, claims.Subject)
}

func TestResolveHandshakeAnnouncesToDefaultFrameWindow(t *testing.T) {
	bus := handshake.NewMemoryBus()
	svc := New(testConfig(), newFakeStore(), nil, nil, bus)

	var (
		mu       sync.Mutex
		received []handshake.Message
	)
	unsubscribe, err := handshake.Listen(context.Background(), bus.Window(handshake.DefaultFrameWindow), func(msg handshake.Message) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, msg)
	})
	require.NoError(t, err)
	defer unsubscribe()

	_, err = svc.ResolveHandshake(context.Background(), ResolveHandshakeInput{
		HTML: `<div id="lef-client-root" data-project-id="proj_1"></div>`,
	})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 1)
	assert.Equal(t, handshake.TypeWidgetReady, received[0].Type())
}

func TestResolveHandshakeWithoutProject(t *testing.T) {
	svc := newTestService(newFakeStore())

	_, err := svc.ResolveHandshake(context.Background(), ResolveHandshakeInput{
		HTML: `<main><div id="lef-client-root"></div></main>`,
	})
	require.ErrorIs(t, err, ErrConfiguration)

	status, code, _, _ := mapError(err)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "CONFIGURATION_ERROR", code)
}

func TestPostWindowMessage(t *testing.T) {
	bus := handshake.NewMemoryBus()
	svc := New(testConfig(), newFakeStore(), nil, nil, bus)

	holder := handshake.NewHolder(handshake.Context{})
	unsubscribe, err := svc.SubscribeWindow(context.Background(), "frame", func(msg handshake.Message) {
		holder.Apply(msg)
	})
	require.NoError(t, err)
	defer unsubscribe()

	delivered, err := svc.PostWindowMessage(context.Background(), "frame", []byte(`{"type":"lef-config-update","projectId":"proj_9","data":{"role":"client"}}`))
	require.NoError(t, err)
	assert.True(t, delivered)

	current, generation := holder.Current()
	assert.Equal(t, handshake.Context{ProjectID: "proj_9", Role: rbac.RoleClient}, current)
	assert.Equal(t, uint64(1), generation)

	for _, payload := range []string{`not json`, `{"type":"other-thing"}`, `[]`, `{"type":42}`} {
		delivered, err := svc.PostWindowMessage(context.Background(), "frame", []byte(payload))
		require.NoError(t, err, payload)
		assert.False(t, delivered, payload)
	}

	_, err = svc.PostWindowMessage(context.Background(), " ", []byte(`{"type":"lef-role-selected"}`))
	require.ErrorIs(t, err, ErrValidation)
}

func TestReadinessReportsFailingDatabase(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)

	report := svc.Readiness(context.Background())
	assert.True(t, report.Ready)
	assert.Equal(t, "ok", report.Checks["database"].Status)
	assert.Equal(t, "disabled", report.Checks["redis"].Status)
	assert.Equal(t, "disabled", report.Checks["meilisearch"].Status)

	fs.pingFn = func(context.Context) error { return errors.New("connection refused") }
	report = svc.Readiness(context.Background())
	assert.False(t, report.Ready)
	assert.Equal(t, ReadinessCheck{Status: "error", Error: "connection refused"}, report.Checks["database"])
}

func TestListRequestsPersistenceFailure(t *testing.T) {
	fs := newFakeStore()
	fs.listEditRequestsFn = func(context.Context, store.RequestFilter) ([]store.EditRequest, error) {
		return nil, errors.New("statement timeout")
	}
	svc := newTestService(fs)

	_, err := svc.ListRequests(context.Background(), store.RequestFilter{ProjectID: "proj_a"})
	require.ErrorIs(t, err, ErrPersistence)
}
