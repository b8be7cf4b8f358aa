// Package export renders feedback reports for a project as HTML or PDF and
// publishes them to object storage.
package export

import (
	"errors"
	"time"
)

// Format represents the export output format
type Format string

const (
	FormatHTML Format = "html"
	FormatPDF  Format = "pdf"
)

func ParseFormat(value string) (Format, bool) {
	switch Format(value) {
	case "", FormatHTML:
		return FormatHTML, true
	case FormatPDF:
		return FormatPDF, true
	default:
		return "", false
	}
}

// Request contains parameters for an export operation
type Request struct {
	ProjectID string
	PageURL   string
	Status    string
	Format    Format
}

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

// Published describes a report uploaded to object storage.
type Published struct {
	Bucket    string    `json:"bucket"`
	Key       string    `json:"key"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}

var (
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
	ErrUnsupportedFormat    = errors.New("export format not supported")
	ErrStorageNotConfigured = errors.New("export object storage not configured")
)
