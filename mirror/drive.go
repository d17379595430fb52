package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"

	drive "google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"

	"github.com/tanaikech/gdmirror/internal/retry"
)

const (
	listFields = "nextPageToken, files(id, name, mimeType, size, md5Checksum)"
	listOrder  = "folder,name,createdTime"
	pageSize   = 1000
)

// DriveSession implements Session with the Drive v3 API.
type DriveSession struct {
	srv *drive.Service
}

// NewDriveSession wraps an authenticated Drive service.
func NewDriveSession(srv *drive.Service) *DriveSession {
	return &DriveSession{srv: srv}
}

// ListChildren implements Session.
func (s *DriveSession) ListChildren(ctx context.Context, folderID, pageToken, driveID string) (*Page, error) {
	call := s.srv.Files.List().
		Q(childrenQuery(folderID)).
		Spaces("drive").
		Fields(listFields).
		OrderBy(listOrder).
		PageSize(pageSize).
		SupportsAllDrives(true).
		IncludeItemsFromAllDrives(true)
	if driveID != "" {
		call = call.Corpora("drive").DriveId(driveID)
	} else {
		call = call.Corpora("user")
	}
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}
	res, err := call.Context(ctx).Do()
	if err != nil {
		return nil, classifyError(err)
	}

	page := &Page{
		Items:         make([]RemoteItem, 0, len(res.Files)),
		NextPageToken: res.NextPageToken,
	}
	for _, f := range res.Files {
		page.Items = append(page.Items, remoteItem(f))
	}
	return page, nil
}

// GetContent implements Session.
func (s *DriveSession) GetContent(ctx context.Context, fileID string) (io.ReadCloser, error) {
	res, err := s.srv.Files.Get(fileID).SupportsAllDrives(true).Context(ctx).Download()
	if err != nil {
		return nil, classifyError(err)
	}
	return res.Body, nil
}

// ExportContent implements Session. A refused export of an oversized document
// is reported as ErrExportSizeLimit.
func (s *DriveSession) ExportContent(ctx context.Context, fileID, mimeType string) (io.ReadCloser, error) {
	res, err := s.srv.Files.Export(fileID, mimeType).Context(ctx).Download()
	if err != nil {
		return nil, classifyError(err)
	}
	return res.Body, nil
}

// GetMetadata implements Session.
func (s *DriveSession) GetMetadata(ctx context.Context, fileID string, fields ...string) (*Metadata, error) {
	if len(fields) == 0 {
		fields = []string{"id", "name", "webViewLink"}
	}
	f, err := s.srv.Files.Get(fileID).
		Fields(googleapi.Field(strings.Join(fields, ","))).
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return nil, classifyError(err)
	}
	return &Metadata{ID: f.Id, Name: f.Name, WebViewLink: f.WebViewLink}, nil
}

func childrenQuery(folderID string) string {
	id := strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(folderID)
	return fmt.Sprintf("'%s' in parents and trashed = false", id)
}

func remoteItem(f *drive.File) RemoteItem {
	item := RemoteItem{
		ID:          f.Id,
		Name:        f.Name,
		MimeType:    f.MimeType,
		MD5Checksum: f.Md5Checksum,
	}
	// Google-native files and folders carry no size; 0 would read as empty.
	if !IsNative(f.MimeType) {
		size := f.Size
		item.Size = &size
	}
	return item
}

const exportLimitReason = "exportSizeLimitExceeded"

var retryableReasons = map[string]bool{
	"rateLimitExceeded":     true,
	"userRateLimitExceeded": true,
	"backendError":          true,
	"internalError":         true,
}

// classifyError maps Drive and transport errors onto the mirror's taxonomy:
// export-limit refusals become ErrExportSizeLimit, transient failures are
// marked retryable, everything else is returned as is.
func classifyError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		for _, reason := range errorReasons(gerr) {
			if reason == exportLimitReason {
				return fmt.Errorf("%w: %w", ErrExportSizeLimit, err)
			}
			if retryableReasons[reason] {
				return retry.Retryable(err)
			}
		}
		if strings.Contains(strings.ToLower(gerr.Message), "too large to be exported") {
			return fmt.Errorf("%w: %w", ErrExportSizeLimit, err)
		}
		if gerr.Code == http.StatusTooManyRequests || gerr.Code >= http.StatusInternalServerError {
			return retry.Retryable(err)
		}
		return err
	}

	var nerr net.Error
	if errors.As(err, &nerr) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) {
		return retry.Retryable(err)
	}
	return err
}

// errorReasons lists the reasons of a Drive error. Media downloads leave the
// JSON body unparsed, so the reasons are looked up in Body then.
func errorReasons(gerr *googleapi.Error) []string {
	var reasons []string
	for _, item := range gerr.Errors {
		reasons = append(reasons, item.Reason)
	}
	if len(reasons) > 0 || gerr.Body == "" {
		return reasons
	}
	var body struct {
		Error struct {
			Errors []struct {
				Reason string `json:"reason"`
			} `json:"errors"`
		} `json:"error"`
	}
	if json.Unmarshal([]byte(gerr.Body), &body) != nil {
		return nil
	}
	for _, item := range body.Error.Errors {
		reasons = append(reasons, item.Reason)
	}
	return reasons
}
