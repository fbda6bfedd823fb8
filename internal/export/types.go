// Package export renders a cycle's strategy map to SVG and PDF and archives
// snapshots to object storage.
package export

import "errors"

// Format represents the export output format
type Format string

const (
	FormatSVG Format = "svg"
	FormatPDF Format = "pdf"
)

// Request contains parameters for an export operation
type Request struct {
	InstitutionID string
	CycleID       string // empty = institution's current cycle
	Format        Format
}

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

var (
	// ErrContentUnavailable indicates map content could not be loaded for export.
	ErrContentUnavailable = errors.New("export content unavailable")
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
	// ErrArchiveUnavailable indicates no object storage is configured for snapshots.
	ErrArchiveUnavailable = errors.New("export archive unavailable")
)
