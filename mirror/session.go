package mirror

import (
	"context"
	"errors"
	"io"
)

var (
	// ErrExportSizeLimit is returned by ExportContent when Drive refuses to
	// export a document because it is too large.
	ErrExportSizeLimit = errors.New("export size limit exceeded")

	// ErrLinkLookup marks a failed metadata lookup while writing a link file.
	ErrLinkLookup = errors.New("link lookup failed")
)

// Page is one page of a folder listing.
type Page struct {
	Items         []RemoteItem
	NextPageToken string
}

// Metadata is the subset of file metadata the mirror asks for.
type Metadata struct {
	ID          string
	Name        string
	WebViewLink string
}

// Session is an authenticated Drive session.
type Session interface {
	// ListChildren lists the non-trashed children of folderID. driveID scopes
	// the listing to a shared drive when non-empty.
	ListChildren(ctx context.Context, folderID, pageToken, driveID string) (*Page, error)

	// GetContent streams the stored bytes of a file.
	GetContent(ctx context.Context, fileID string) (io.ReadCloser, error)

	// ExportContent streams a Google-native document converted to mimeType.
	ExportContent(ctx context.Context, fileID, mimeType string) (io.ReadCloser, error)

	// GetMetadata fetches the named fields of a file.
	GetMetadata(ctx context.Context, fileID string, fields ...string) (*Metadata, error)
}
