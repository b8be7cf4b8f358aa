package app

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"

	"editdesk/api/internal/auth"
	"editdesk/api/internal/config"
	"editdesk/api/internal/export"
	"editdesk/api/internal/handshake"
	"editdesk/api/internal/rbac"
	"editdesk/api/internal/search"
	"editdesk/api/internal/store"
)

type DataStore interface {
	InsertEditRequest(ctx context.Context, item store.EditRequest) (store.EditRequest, error)
	GetEditRequest(ctx context.Context, projectID, id string) (store.EditRequest, error)
	ListEditRequests(ctx context.Context, filter store.RequestFilter) ([]store.EditRequest, error)
	UpdateEditRequestStatus(ctx context.Context, projectID, id string, status store.RequestStatus) (store.EditRequest, error)
	AppendReply(ctx context.Context, projectID, id string, reply store.Reply) (store.EditRequest, error)
	ListPageURLs(ctx context.Context, projectID string) ([]string, error)

	InsertProject(ctx context.Context, item store.Project) (store.Project, error)
	ListProjects(ctx context.Context, designerID string) ([]store.Project, error)
	GetProject(ctx context.Context, designerID, id string) (store.Project, error)
	UpdateProject(ctx context.Context, item store.Project) (store.Project, error)
	DeleteProject(ctx context.Context, designerID, id string) error

	InsertComment(ctx context.Context, item store.Comment) (store.Comment, error)
	GetComment(ctx context.Context, projectID, id string) (store.Comment, error)
	ListComments(ctx context.Context, projectID, parentID string) ([]store.Comment, error)
	UpdateCommentStatus(ctx context.Context, projectID, id string, status store.CommentStatus) (store.Comment, error)
	DeleteComment(ctx context.Context, projectID, id string) error

	Ping(ctx context.Context) error
}

type CreateRequestInput struct {
	PageURL     string `json:"pageUrl"`
	SectionID   string `json:"sectionId"`
	Message     string `json:"message"`
	ProjectID   string `json:"projectId"`
	SubmittedBy string `json:"submittedBy"`
}

type ReplyInput struct {
	Message string `json:"message"`
	From    string `json:"from"`
}

type ProjectInput struct {
	Name string `json:"name"`
	URL  string `json:"url"`
	Slug string `json:"slug"`
}

type CommentInput struct {
	PageURL  string  `json:"pageUrl"`
	UserID   string  `json:"userId"`
	ParentID string  `json:"parentId"`
	Content  string  `json:"content"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
}

type ExportInput struct {
	PageURL string
	Status  string
	Format  string
	Publish bool
}

type ExportOutput struct {
	Result    *export.Result
	Published *export.Published
}

type FrameIDs struct {
	Self   string `json:"self"`
	Parent string `json:"parent"`
	Top    string `json:"top"`
}

type ResolveHandshakeInput struct {
	HTML    string   `json:"html"`
	Frame   FrameIDs `json:"frame"`
	Subject string   `json:"subject"`
	// Trusted is set when the caller presented the host key.
	Trusted bool `json:"-"`
}

// HandshakeResult carries the context read from the page and the role and
// subject actually granted to the frame token.
type HandshakeResult struct {
	Context   handshake.Context
	Role      rbac.Role
	Subject   string
	Token     string
	ExpiresAt time.Time
}

type ReadinessCheck struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type Readiness struct {
	Ready  bool
	Checks map[string]ReadinessCheck
}

type pinger interface {
	Ping(ctx context.Context) error
}

type Service struct {
	cfg      config.Config
	store    DataStore
	search   *search.Service
	exporter *export.Service
	bus      handshake.Bus
	now      func() time.Time
}

// New wires the service. searchSvc, exporter and bus may be nil; they default
// to the store fallback search, HTML-only export and an in-process bus.
func New(cfg config.Config, dataStore DataStore, searchSvc *search.Service, exporter *export.Service, bus handshake.Bus) *Service {
	if searchSvc == nil {
		searchSvc = search.NewService(nil, search.NewFallback(dataStore))
	}
	if exporter == nil {
		exporter = export.NewService(dataStore, nil)
	}
	if bus == nil {
		bus = handshake.NewMemoryBus()
	}
	return &Service{
		cfg:      cfg,
		store:    dataStore,
		search:   searchSvc,
		exporter: exporter,
		bus:      bus,
		now:      time.Now,
	}
}

func optional(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}

func parseRequestStatus(value string) (store.RequestStatus, error) {
	status := store.RequestStatus(strings.TrimSpace(value))
	if !status.Valid() {
		return "", validationError("Unknown status", map[string]any{"status": value})
	}
	return status, nil
}

func validateStatusFilter(value string) error {
	if value == "" || value == store.FilterAll {
		return nil
	}
	_, err := parseRequestStatus(value)
	return err
}

func (s *Service) CreateRequest(ctx context.Context, input CreateRequestInput) (store.EditRequest, error) {
	message := strings.TrimSpace(input.Message)
	projectID := strings.TrimSpace(input.ProjectID)
	pageURL := strings.TrimSpace(input.PageURL)
	switch {
	case message == "":
		return store.EditRequest{}, validationError("Message is required", map[string]any{"field": "message"})
	case projectID == "":
		return store.EditRequest{}, validationError("Project id is required", map[string]any{"field": "projectId"})
	case pageURL == "":
		return store.EditRequest{}, validationError("Page URL is required", map[string]any{"field": "pageUrl"})
	}

	created, err := s.store.InsertEditRequest(ctx, store.EditRequest{
		ProjectID:   projectID,
		PageURL:     pageURL,
		SectionID:   optional(input.SectionID),
		Message:     message,
		Status:      store.StatusOpen,
		SubmittedBy: optional(input.SubmittedBy),
	})
	if err != nil {
		return store.EditRequest{}, persistenceError("create request", err)
	}
	s.index(created)
	log.Info().Str("project_id", projectID).Str("request_id", created.ID).Msg("edit request created")
	return created, nil
}

// ListRequests returns newest first. filter.ProjectID is applied as a hard
// scope whenever it is set.
func (s *Service) ListRequests(ctx context.Context, filter store.RequestFilter) ([]store.EditRequest, error) {
	if err := validateStatusFilter(filter.Status); err != nil {
		return nil, err
	}
	items, err := s.store.ListEditRequests(ctx, filter)
	if err != nil {
		return nil, persistenceError("list requests", err)
	}
	if items == nil {
		items = []store.EditRequest{}
	}
	return items, nil
}

func (s *Service) GetRequest(ctx context.Context, projectID, id string) (store.EditRequest, error) {
	if strings.TrimSpace(id) == "" {
		return store.EditRequest{}, notFoundError("Edit request")
	}
	item, err := s.store.GetEditRequest(ctx, projectID, id)
	if err != nil {
		return store.EditRequest{}, storeError("load request", "Edit request", err)
	}
	return item, nil
}

// SetStatus allows any transition, including to the current status.
func (s *Service) SetStatus(ctx context.Context, projectID, id, status string) (store.EditRequest, error) {
	next, err := parseRequestStatus(status)
	if err != nil {
		return store.EditRequest{}, err
	}
	updated, err := s.store.UpdateEditRequestStatus(ctx, projectID, id, next)
	if err != nil {
		return store.EditRequest{}, storeError("update status", "Edit request", err)
	}
	s.index(updated)
	log.Info().Str("request_id", id).Str("status", string(next)).Msg("edit request status changed")
	return updated, nil
}

// AddReply appends one reply with a fresh id. The append is a single store
// operation, so concurrent replies to the same request are all kept.
func (s *Service) AddReply(ctx context.Context, projectID, id string, input ReplyInput) (store.EditRequest, error) {
	message := strings.TrimSpace(input.Message)
	if message == "" {
		return store.EditRequest{}, validationError("Reply message is required", map[string]any{"field": "message"})
	}
	from, ok := rbac.Parse(strings.TrimSpace(input.From))
	if !ok {
		return store.EditRequest{}, validationError("Reply sender must be client or designer", map[string]any{"field": "from"})
	}

	updated, err := s.store.AppendReply(ctx, projectID, id, store.Reply{
		ID:        uuid.NewString(),
		Message:   message,
		From:      string(from),
		Timestamp: s.now().UTC(),
	})
	if err != nil {
		return store.EditRequest{}, storeError("add reply", "Edit request", err)
	}
	s.index(updated)
	return updated, nil
}

func (s *Service) ListPages(ctx context.Context, projectID string) ([]string, error) {
	pages, err := s.store.ListPageURLs(ctx, projectID)
	if err != nil {
		return nil, persistenceError("list pages", err)
	}
	return pages, nil
}

// Search runs a project-scoped full-text query. The status filter accepts the
// same values as ListRequests.
func (s *Service) Search(ctx context.Context, projectID string, query search.Query) (search.Response, error) {
	if err := validateStatusFilter(query.Status); err != nil {
		return search.Response{}, err
	}
	query.ProjectID = projectID
	query.Text = strings.TrimSpace(query.Text)
	return s.search.Search(ctx, query), nil
}

func (s *Service) index(item store.EditRequest) {
	s.search.IndexRequest(search.RecordFromRequest(item))
}

func (s *Service) CreateProject(ctx context.Context, designerID string, input ProjectInput) (store.Project, error) {
	item, err := projectFromInput(designerID, input)
	if err != nil {
		return store.Project{}, err
	}
	item.CreatedBy = item.DesignerID
	created, err := s.store.InsertProject(ctx, item)
	if err != nil {
		return store.Project{}, persistenceError("create project", err)
	}
	log.Info().Str("designer_id", designerID).Str("project_id", created.ID).Msg("project created")
	return created, nil
}

func projectFromInput(designerID string, input ProjectInput) (store.Project, error) {
	item := store.Project{
		DesignerID: strings.TrimSpace(designerID),
		Name:       strings.TrimSpace(input.Name),
		URL:        strings.TrimSpace(input.URL),
		Slug:       strings.TrimSpace(input.Slug),
	}
	switch {
	case item.DesignerID == "":
		return store.Project{}, validationError("Designer id is required", map[string]any{"field": "designerId"})
	case item.Name == "":
		return store.Project{}, validationError("Project name is required", map[string]any{"field": "name"})
	case item.URL == "":
		return store.Project{}, validationError("Project URL is required", map[string]any{"field": "url"})
	}
	return item, nil
}

func (s *Service) ListProjects(ctx context.Context, designerID string) ([]store.Project, error) {
	items, err := s.store.ListProjects(ctx, designerID)
	if err != nil {
		return nil, persistenceError("list projects", err)
	}
	return items, nil
}

func (s *Service) GetProject(ctx context.Context, designerID, id string) (store.Project, error) {
	item, err := s.store.GetProject(ctx, designerID, id)
	if err != nil {
		return store.Project{}, storeError("load project", "Project", err)
	}
	return item, nil
}

func (s *Service) UpdateProject(ctx context.Context, designerID, id string, input ProjectInput) (store.Project, error) {
	item, err := projectFromInput(designerID, input)
	if err != nil {
		return store.Project{}, err
	}
	item.ID = id
	updated, err := s.store.UpdateProject(ctx, item)
	if err != nil {
		return store.Project{}, storeError("update project", "Project", err)
	}
	return updated, nil
}

func (s *Service) DeleteProject(ctx context.Context, designerID, id string) error {
	if err := s.store.DeleteProject(ctx, designerID, id); err != nil {
		return storeError("delete project", "Project", err)
	}
	log.Info().Str("designer_id", designerID).Str("project_id", id).Msg("project deleted")
	return nil
}

func (s *Service) CreateComment(ctx context.Context, projectID string, input CommentInput) (store.Comment, error) {
	item := store.Comment{
		ProjectID: strings.TrimSpace(projectID),
		PageURL:   strings.TrimSpace(input.PageURL),
		UserID:    strings.TrimSpace(input.UserID),
		ParentID:  optional(input.ParentID),
		Content:   strings.TrimSpace(input.Content),
		X:         input.X,
		Y:         input.Y,
		Status:    store.CommentOpen,
	}
	switch {
	case item.ProjectID == "":
		return store.Comment{}, validationError("Project id is required", map[string]any{"field": "projectId"})
	case item.UserID == "":
		return store.Comment{}, validationError("Comment author is required", map[string]any{"field": "userId"})
	case item.Content == "":
		return store.Comment{}, validationError("Comment content is required", map[string]any{"field": "content"})
	case item.PageURL == "" && item.ParentID == nil:
		return store.Comment{}, validationError("Page URL is required", map[string]any{"field": "pageUrl"})
	}

	if item.ParentID != nil {
		parent, err := s.store.GetComment(ctx, item.ProjectID, *item.ParentID)
		if err != nil {
			return store.Comment{}, storeError("load parent comment", "Parent comment", err)
		}
		item.PageURL = parent.PageURL
	}

	created, err := s.store.InsertComment(ctx, item)
	if err != nil {
		return store.Comment{}, storeError("create comment", "Parent comment", err)
	}
	return created, nil
}

// ListComments returns the top-level pins of a project, oldest first.
func (s *Service) ListComments(ctx context.Context, projectID string) ([]store.Comment, error) {
	items, err := s.store.ListComments(ctx, projectID, "")
	if err != nil {
		return nil, persistenceError("list comments", err)
	}
	return items, nil
}

func (s *Service) ListCommentReplies(ctx context.Context, projectID, parentID string) ([]store.Comment, error) {
	if _, err := s.store.GetComment(ctx, projectID, parentID); err != nil {
		return nil, storeError("load comment", "Comment", err)
	}
	items, err := s.store.ListComments(ctx, projectID, parentID)
	if err != nil {
		return nil, persistenceError("list comment replies", err)
	}
	return items, nil
}

func (s *Service) SetCommentStatus(ctx context.Context, projectID, id, status string) (store.Comment, error) {
	next := store.CommentStatus(strings.TrimSpace(status))
	if !next.Valid() {
		return store.Comment{}, validationError("Unknown comment status", map[string]any{"status": status})
	}
	updated, err := s.store.UpdateCommentStatus(ctx, projectID, id, next)
	if err != nil {
		return store.Comment{}, storeError("update comment", "Comment", err)
	}
	return updated, nil
}

func (s *Service) DeleteComment(ctx context.Context, projectID, id string) error {
	if err := s.store.DeleteComment(ctx, projectID, id); err != nil {
		return storeError("delete comment", "Comment", err)
	}
	return nil
}

func (s *Service) Export(ctx context.Context, projectID string, input ExportInput) (ExportOutput, error) {
	format, ok := export.ParseFormat(strings.ToLower(strings.TrimSpace(input.Format)))
	if !ok {
		return ExportOutput{}, validationError("Unsupported export format", map[string]any{"format": input.Format})
	}
	if err := validateStatusFilter(input.Status); err != nil {
		return ExportOutput{}, err
	}

	result, err := s.exporter.Export(ctx, export.Request{
		ProjectID: projectID,
		PageURL:   input.PageURL,
		Status:    input.Status,
		Format:    format,
	})
	switch {
	case errors.Is(err, export.ErrPDFDependencyMissing):
		return ExportOutput{}, unavailableError("PDF_DEPENDENCY_MISSING", "PDF export is not available on this server", err)
	case errors.Is(err, export.ErrUnsupportedFormat):
		return ExportOutput{}, validationError("Unsupported export format", map[string]any{"format": input.Format})
	case err != nil:
		return ExportOutput{}, persistenceError("export report", err)
	}

	out := ExportOutput{Result: result}
	if !input.Publish {
		return out, nil
	}
	published, err := s.exporter.Publish(ctx, projectID, result)
	if errors.Is(err, export.ErrStorageNotConfigured) {
		return ExportOutput{}, unavailableError("STORAGE_NOT_CONFIGURED", "Report publishing is not configured", err)
	}
	if err != nil {
		return ExportOutput{}, persistenceError("publish report", err)
	}
	out.Published = &published
	return out, nil
}

// ResolveHandshake reads the host page once, announces readiness to the
// frame's windows and issues a frame token for the resolved context. Without
// the host key the token is capped at the client role and carries no subject.
func (s *Service) ResolveHandshake(ctx context.Context, input ResolveHandshakeInput) (HandshakeResult, error) {
	doc, err := handshake.ParseDocumentString(input.HTML)
	if err != nil {
		return HandshakeResult{}, validationError("Host page could not be parsed", nil)
	}

	self := strings.TrimSpace(input.Frame.Self)
	if self == "" {
		self = handshake.DefaultFrameWindow
	}
	frame := handshake.FrameOnBus(s.bus, self, strings.TrimSpace(input.Frame.Parent), strings.TrimSpace(input.Frame.Top))
	resolved, err := handshake.NewResolver(frame).Resolve(ctx, doc)
	if errors.Is(err, handshake.ErrMissingProjectID) {
		return HandshakeResult{}, configurationError("No project found", map[string]any{
			"containers": []string{"#" + handshake.DesignerRootID, "#" + handshake.ClientRootID, "[" + handshake.ProjectIDAttr + "]"},
		})
	}
	if err != nil {
		return HandshakeResult{}, errors.Wrap(err, "resolve handshake")
	}

	role, subject := resolved.Role, strings.TrimSpace(input.Subject)
	if !input.Trusted {
		if role == rbac.RoleDesigner {
			role = rbac.RoleClient
		}
		if subject != "" || resolved.Role != role {
			log.Warn().
				Str("project_id", resolved.ProjectID).
				Str("role", string(resolved.Role)).
				Msg("handshake without host key, designer role and subject withheld")
		}
		subject = ""
	}

	token, expiresAt, err := auth.IssueToken([]byte(s.cfg.JWTSecret), resolved.ProjectID, role, subject, s.cfg.TokenTTL)
	if err != nil {
		return HandshakeResult{}, errors.Wrap(err, "issue frame token")
	}
	return HandshakeResult{Context: resolved, Role: role, Subject: subject, Token: token, ExpiresAt: expiresAt}, nil
}

// PostWindowMessage relays a raw payload to a window. It reports false when
// the payload is not a namespaced message; such payloads are dropped without
// error.
func (s *Service) PostWindowMessage(ctx context.Context, windowID string, payload []byte) (bool, error) {
	windowID = strings.TrimSpace(windowID)
	if windowID == "" {
		return false, validationError("Window id is required", nil)
	}
	msg, err := handshake.Decode(payload)
	if errors.Is(err, handshake.ErrIgnored) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "decode window message")
	}
	if err := s.bus.Window(windowID).Post(ctx, msg); err != nil {
		return false, unavailableError("BUS_UNAVAILABLE", "Message bus is unavailable", err)
	}
	return true, nil
}

func (s *Service) SubscribeWindow(ctx context.Context, windowID string, onMessage func(handshake.Message)) (func(), error) {
	windowID = strings.TrimSpace(windowID)
	if windowID == "" {
		return nil, validationError("Window id is required", nil)
	}
	unsubscribe, err := handshake.Listen(ctx, s.bus.Window(windowID), onMessage)
	if err != nil {
		return nil, unavailableError("BUS_UNAVAILABLE", "Message bus is unavailable", err)
	}
	return unsubscribe, nil
}

// Readiness checks every configured dependency concurrently. Unconfigured
// optional dependencies are reported as disabled and do not fail readiness.
func (s *Service) Readiness(ctx context.Context) Readiness {
	checks := map[string]pinger{"database": s.store}
	if p, ok := s.bus.(pinger); ok {
		checks["redis"] = p
	}
	if s.search.MeiliConfigured() {
		checks["meilisearch"] = s.search
	}
	if s.exporter.StorageConfigured() {
		checks["storage"] = s.exporter
	}

	var (
		mu  sync.Mutex
		wg  conc.WaitGroup
		out = Readiness{Ready: true, Checks: map[string]ReadinessCheck{}}
	)
	for name, check := range checks {
		wg.Go(func() {
			result := ReadinessCheck{Status: "ok"}
			if err := check.Ping(ctx); err != nil {
				result = ReadinessCheck{Status: "error", Error: err.Error()}
			}
			mu.Lock()
			defer mu.Unlock()
			out.Checks[name] = result
			if result.Status != "ok" {
				out.Ready = false
			}
		})
	}
	wg.Wait()

	for _, name := range []string{"redis", "meilisearch", "storage"} {
		if _, ok := out.Checks[name]; !ok {
			out.Checks[name] = ReadinessCheck{Status: "disabled"}
		}
	}
	return out
}
