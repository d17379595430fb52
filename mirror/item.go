// Package mirror copies a Google Drive folder tree onto the local filesystem.
//
// A Walker lists one folder at a time, recreates every subfolder under the
// local root and hands each file to a Downloader. Google Docs, Sheets and
// Slides are exported to office formats; when an export is refused because the
// document is too large, a small link file pointing at the document is written
// instead. Nothing is persisted besides the mirrored files: running the walk
// again skips every file whose local copy is already complete.
package mirror

import (
	"fmt"
	"strings"
)

// FolderMimeType is the mimeType of Drive folders.
const FolderMimeType = "application/vnd.google-apps.folder"

// RemoteItem is one child returned by a folder listing.
type RemoteItem struct {
	ID          string
	Name        string
	MimeType    string
	Size        *int64 // nil when Drive reports no size (Google-native documents)
	MD5Checksum string
}

// IsFolder reports whether the item is a folder.
func (i RemoteItem) IsFolder() bool {
	return i.MimeType == FolderMimeType
}

func (i RemoteItem) String() string {
	return fmt.Sprintf("'%s' (fileId: %s)", i.Name, i.ID)
}

// LocalTarget is where a RemoteItem lands locally.
type LocalTarget struct {
	Path      string
	Extension string
}

// TraversalContext is passed down the recursion. Each folder gets its own.
type TraversalContext struct {
	LocalFolderPath string
	SharedDriveID   string

	names NameSet // names already used in LocalFolderPath
}

// Status is the outcome of processing one file.
type Status int

const (
	StatusSaved Status = iota
	StatusSkipped
	StatusLinked
	StatusFiltered
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusSaved:
		return "saved"
	case StatusSkipped:
		return "skipped"
	case StatusLinked:
		return "linked"
	case StatusFiltered:
		return "filtered"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Result reports what happened to one remote file or folder.
type Result struct {
	Item   RemoteItem
	Path   string
	Status Status
	Bytes  int64
	Err    error
}

// Summary aggregates the results of a walk.
type Summary struct {
	Folders  int
	Saved    int
	Skipped  int
	Linked   int
	Filtered int
	Failed   int
	Bytes    int64
	Failures []Result
}

// Add folds one result into the summary.
func (s *Summary) Add(r Result) {
	switch r.Status {
	case StatusSaved:
		s.Saved++
	case StatusSkipped:
		s.Skipped++
	case StatusLinked:
		s.Linked++
	case StatusFiltered:
		s.Filtered++
	case StatusFailed:
		s.Failed++
		s.Failures = append(s.Failures, r)
	}
	s.Bytes += r.Bytes
}

// Transfers is the number of files whose content was fetched.
func (s Summary) Transfers() int {
	return s.Saved + s.Linked
}

func (s Summary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d folders, %d saved, %d skipped, %d linked", s.Folders, s.Saved, s.Skipped, s.Linked)
	if s.Filtered > 0 {
		fmt.Fprintf(&b, ", %d filtered", s.Filtered)
	}
	fmt.Fprintf(&b, ", %d failed", s.Failed)
	return b.String()
}
