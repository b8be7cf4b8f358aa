package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"editdesk/api/internal/util"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

const editRequestColumns = `id, project_id, page_url, section_id, message, status, submitted_by, replies, version, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEditRequest(row rowScanner) (EditRequest, error) {
	var (
		item        EditRequest
		sectionID   sql.NullString
		submittedBy sql.NullString
		repliesRaw  []byte
	)
	if err := row.Scan(
		&item.ID,
		&item.ProjectID,
		&item.PageURL,
		&sectionID,
		&item.Message,
		&item.Status,
		&submittedBy,
		&repliesRaw,
		&item.Version,
		&item.CreatedAt,
		&item.UpdatedAt,
	); err != nil {
		return EditRequest{}, err
	}
	item.SectionID = nullableString(sectionID)
	item.SubmittedBy = nullableString(submittedBy)
	item.Replies = make([]Reply, 0)
	if len(repliesRaw) > 0 {
		if err := json.Unmarshal(repliesRaw, &item.Replies); err != nil {
			return EditRequest{}, fmt.Errorf("decode replies of %s: %w", item.ID, err)
		}
	}
	return item, nil
}

func nullableString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func (s *PostgresStore) InsertEditRequest(ctx context.Context, item EditRequest) (EditRequest, error) {
	if item.ID == "" {
		item.ID = util.NewID("req")
	}
	if item.Status == "" {
		item.Status = StatusOpen
	}
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO edit_requests (id, project_id, page_url, section_id, message, status, submitted_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+editRequestColumns,
		item.ID, item.ProjectID, item.PageURL, item.SectionID, item.Message, item.Status, item.SubmittedBy)
	created, err := scanEditRequest(row)
	if err != nil {
		return EditRequest{}, fmt.Errorf("insert edit request: %w", err)
	}
	return created, nil
}

// GetEditRequest returns sql.ErrNoRows when id does not exist in projectID.
// An empty projectID matches every project.
func (s *PostgresStore) GetEditRequest(ctx context.Context, projectID, id string) (EditRequest, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+editRequestColumns+`
		FROM edit_requests
		WHERE id=$1 AND ($2='' OR project_id=$2)
	`, id, projectID)
	return scanEditRequest(row)
}

func (s *PostgresStore) ListEditRequests(ctx context.Context, filter RequestFilter) ([]EditRequest, error) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, value any) {
		args = append(args, value)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if filter.ProjectID != "" {
		add("project_id=$%d", filter.ProjectID)
	}
	if filter.PageURL != "" && filter.PageURL != FilterAll {
		add("page_url=$%d", filter.PageURL)
	}
	if filter.Status != "" && filter.Status != FilterAll {
		add("status=$%d", filter.Status)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		add(`(message ILIKE $%[1]d ESCAPE '\' OR COALESCE(section_id, '') ILIKE $%[1]d ESCAPE '\')`, "%"+escapeLike(search)+"%")
	}

	query := `SELECT ` + editRequestColumns + ` FROM edit_requests`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list edit requests: %w", err)
	}
	defer rows.Close()

	items := make([]EditRequest, 0)
	for rows.Next() {
		item, err := scanEditRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan edit request: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate edit requests: %w", err)
	}
	return items, nil
}

func escapeLike(value string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(value)
}

// UpdateEditRequestStatus touches only status, updated_at and version.
func (s *PostgresStore) UpdateEditRequestStatus(ctx context.Context, projectID, id string, status RequestStatus) (EditRequest, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE edit_requests
		SET status=$3, version=version+1, updated_at=NOW()
		WHERE id=$1 AND ($2='' OR project_id=$2)
		RETURNING `+editRequestColumns,
		id, projectID, status)
	return scanEditRequest(row)
}

// AppendReply appends reply in a single UPDATE so concurrent appends to the
// same request serialize on the row lock and none is lost.
func (s *PostgresStore) AppendReply(ctx context.Context, projectID, id string, reply Reply) (EditRequest, error) {
	payload, err := json.Marshal([]Reply{reply})
	if err != nil {
		return EditRequest{}, fmt.Errorf("encode reply: %w", err)
	}
	row := s.db.QueryRowContext(ctx, `
		UPDATE edit_requests
		SET replies = replies || $3::jsonb, version=version+1, updated_at=NOW()
		WHERE id=$1 AND ($2='' OR project_id=$2)
		RETURNING `+editRequestColumns,
		id, projectID, string(payload))
	return scanEditRequest(row)
}

func (s *PostgresStore) ListPageURLs(ctx context.Context, projectID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT page_url
		FROM edit_requests
		WHERE ($1='' OR project_id=$1)
		ORDER BY page_url ASC
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list page urls: %w", err)
	}
	defer rows.Close()

	items := make([]string, 0)
	for rows.Next() {
		var pageURL string
		if err := rows.Scan(&pageURL); err != nil {
			return nil, fmt.Errorf("scan page url: %w", err)
		}
		items = append(items, pageURL)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate page urls: %w", err)
	}
	return items, nil
}

const projectColumns = `id, designer_id, name, url, COALESCE(slug, ''), created_by, created_at, updated_at`

func scanProject(row rowScanner) (Project, error) {
	var item Project
	err := row.Scan(
		&item.ID,
		&item.DesignerID,
		&item.Name,
		&item.URL,
		&item.Slug,
		&item.CreatedBy,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	return item, err
}

func (s *PostgresStore) InsertProject(ctx context.Context, item Project) (Project, error) {
	if item.ID == "" {
		item.ID = util.NewID("prj")
	}
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO projects (id, designer_id, name, url, slug, created_by)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)
		RETURNING `+projectColumns,
		item.ID, item.DesignerID, item.Name, item.URL, item.Slug, item.CreatedBy)
	created, err := scanProject(row)
	if err != nil {
		return Project{}, fmt.Errorf("insert project: %w", err)
	}
	return created, nil
}

func (s *PostgresStore) ListProjects(ctx context.Context, designerID string) ([]Project, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+projectColumns+`
		FROM projects
		WHERE designer_id=$1
		ORDER BY created_at DESC, id DESC
	`, designerID)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	items := make([]Project, 0)
	for rows.Next() {
		item, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate projects: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetProject(ctx context.Context, designerID, id string) (Project, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+projectColumns+`
		FROM projects
		WHERE id=$1 AND designer_id=$2
	`, id, designerID)
	return scanProject(row)
}

func (s *PostgresStore) UpdateProject(ctx context.Context, item Project) (Project, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE projects
		SET name=$3, url=$4, slug=NULLIF($5, ''), updated_at=NOW()
		WHERE id=$1 AND designer_id=$2
		RETURNING `+projectColumns,
		item.ID, item.DesignerID, item.Name, item.URL, item.Slug)
	return scanProject(row)
}

func (s *PostgresStore) DeleteProject(ctx context.Context, designerID, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE id=$1 AND designer_id=$2`, id, designerID)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	return expectAffected(result, "delete project")
}

const commentColumns = `id, project_id, page_url, user_id, parent_id, content, x, y, status, created_at, updated_at`

func scanComment(row rowScanner) (Comment, error) {
	var (
		item     Comment
		parentID sql.NullString
	)
	if err := row.Scan(
		&item.ID,
		&item.ProjectID,
		&item.PageURL,
		&item.UserID,
		&parentID,
		&item.Content,
		&item.X,
		&item.Y,
		&item.Status,
		&item.CreatedAt,
		&item.UpdatedAt,
	); err != nil {
		return Comment{}, err
	}
	item.ParentID = nullableString(parentID)
	return item, nil
}

func (s *PostgresStore) InsertComment(ctx context.Context, item Comment) (Comment, error) {
	if item.ID == "" {
		item.ID = util.NewID("cmt")
	}
	if item.Status == "" {
		item.Status = CommentOpen
	}
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO comments (id, project_id, page_url, user_id, parent_id, content, x, y, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+commentColumns,
		item.ID, item.ProjectID, item.PageURL, item.UserID, item.ParentID, item.Content, item.X, item.Y, item.Status)
	created, err := scanComment(row)
	if err != nil {
		return Comment{}, fmt.Errorf("insert comment: %w", err)
	}
	return created, nil
}

func (s *PostgresStore) GetComment(ctx context.Context, projectID, id string) (Comment, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+commentColumns+`
		FROM comments
		WHERE id=$1 AND project_id=$2
	`, id, projectID)
	return scanComment(row)
}

// ListComments returns top-level comments when parentID is empty and the
// replies of parentID otherwise, oldest first.
func (s *PostgresStore) ListComments(ctx context.Context, projectID, parentID string) ([]Comment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+commentColumns+`
		FROM comments
		WHERE project_id=$1
		  AND (($2='' AND parent_id IS NULL) OR parent_id=$2)
		ORDER BY created_at ASC, id ASC
	`, projectID, parentID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	items := make([]Comment, 0)
	for rows.Next() {
		item, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comments: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) UpdateCommentStatus(ctx context.Context, projectID, id string, status CommentStatus) (Comment, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE comments
		SET status=$3, updated_at=NOW()
		WHERE id=$1 AND project_id=$2
		RETURNING `+commentColumns,
		id, projectID, status)
	return scanComment(row)
}

func (s *PostgresStore) DeleteComment(ctx context.Context, projectID, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM comments WHERE id=$1 AND project_id=$2`, id, projectID)
	if err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}
	return expectAffected(result, "delete comment")
}

func expectAffected(result sql.Result, op string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows: %w", op, err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
