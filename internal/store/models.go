package store

import "time"

type RequestStatus string

const (
	StatusOpen       RequestStatus = "open"
	StatusInProgress RequestStatus = "in-progress"
	StatusResolved   RequestStatus = "resolved"
)

// FilterAll disables the page and status filters of a RequestFilter.
const FilterAll = "all"

func (s RequestStatus) Valid() bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusResolved:
		return true
	default:
		return false
	}
}

// Reply is one entry of an edit request's thread. Replies are stored as a
// JSON array, so the field names here are the persisted format.
type Reply struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	From      string    `json:"from"`
	Timestamp time.Time `json:"timestamp"`
}

type EditRequest struct {
	ID          string
	ProjectID   string
	PageURL     string
	SectionID   *string
	Message     string
	Status      RequestStatus
	SubmittedBy *string
	Replies     []Reply
	Version     int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// RequestFilter narrows ListEditRequests. Empty fields (and FilterAll for
// PageURL and Status) impose no restriction; ProjectID "" is unscoped.
type RequestFilter struct {
	ProjectID string
	PageURL   string
	Status    string
	Search    string
}

type Project struct {
	ID         string
	DesignerID string
	Name       string
	URL        string
	Slug       string
	CreatedBy  string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type CommentStatus string

const (
	CommentOpen     CommentStatus = "open"
	CommentResolved CommentStatus = "resolved"
)

func (s CommentStatus) Valid() bool {
	return s == CommentOpen || s == CommentResolved
}

type Comment struct {
	ID        string
	ProjectID string
	PageURL   string
	UserID    string
	ParentID  *string
	Content   string
	X         float64
	Y         float64
	Status    CommentStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}
