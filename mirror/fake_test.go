package mirror

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"testing"
	"time"

	"github.com/tanaikech/gdmirror/internal/retry"
)

// fakeSession is an in-memory Drive.
type fakeSession struct {
	children   map[string][]RemoteItem
	content    map[string][]byte
	exported   map[string][]byte
	exportErr  map[string]error
	contentErr map[string][]error // consumed one per GetContent call
	listErr    map[string]error
	metaErr    map[string]error
	links      map[string]string
	pageSize   int

	listCalls    int
	contentCalls int
	exportCalls  int
	metaCalls    int
	driveIDs     []string
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		children:   map[string][]RemoteItem{},
		content:    map[string][]byte{},
		exported:   map[string][]byte{},
		exportErr:  map[string]error{},
		contentErr: map[string][]error{},
		listErr:    map[string]error{},
		metaErr:    map[string]error{},
		links:      map[string]string{},
	}
}

func (f *fakeSession) addFolder(parent, id, name string) {
	f.children[parent] = append(f.children[parent], RemoteItem{ID: id, Name: name, MimeType: FolderMimeType})
}

func (f *fakeSession) addFile(parent, id, name, mimeType string, data []byte) RemoteItem {
	item := RemoteItem{ID: id, Name: name, MimeType: mimeType}
	if IsNative(mimeType) {
		f.exported[id] = data
	} else {
		size := int64(len(data))
		item.Size = &size
		f.content[id] = data
	}
	f.children[parent] = append(f.children[parent], item)
	return item
}

func (f *fakeSession) transfers() int {
	return f.contentCalls + f.exportCalls
}

func (f *fakeSession) ListChildren(ctx context.Context, folderID, pageToken, driveID string) (*Page, error) {
	f.listCalls++
	f.driveIDs = append(f.driveIDs, driveID)
	if err := f.listErr[folderID]; err != nil {
		return nil, err
	}
	items := f.children[folderID]
	if f.pageSize == 0 {
		return &Page{Items: items}, nil
	}
	offset := 0
	if pageToken != "" {
		n, err := strconv.Atoi(pageToken)
		if err != nil {
			return nil, fmt.Errorf("bad page token %q", pageToken)
		}
		offset = n
	}
	end := offset + f.pageSize
	page := &Page{}
	if end < len(items) {
		page.NextPageToken = strconv.Itoa(end)
	} else {
		end = len(items)
	}
	page.Items = items[offset:end]
	return page, nil
}

func (f *fakeSession) GetContent(ctx context.Context, fileID string) (io.ReadCloser, error) {
	f.contentCalls++
	if errs := f.contentErr[fileID]; len(errs) > 0 {
		err := errs[0]
		f.contentErr[fileID] = errs[1:]
		if err != nil {
			return nil, err
		}
	}
	data, ok := f.content[fileID]
	if !ok {
		return nil, fmt.Errorf("file %s not found", fileID)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeSession) ExportContent(ctx context.Context, fileID, mimeType string) (io.ReadCloser, error) {
	f.exportCalls++
	if err := f.exportErr[fileID]; err != nil {
		return nil, err
	}
	data, ok := f.exported[fileID]
	if !ok {
		return nil, fmt.Errorf("file %s not exportable", fileID)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeSession) GetMetadata(ctx context.Context, fileID string, fields ...string) (*Metadata, error) {
	f.metaCalls++
	if err := f.metaErr[fileID]; err != nil {
		return nil, err
	}
	return &Metadata{ID: fileID, WebViewLink: f.links[fileID]}, nil
}

// brokenBody yields data and then fails.
type brokenBody struct {
	data []byte
	err  error
}

func (b *brokenBody) Read(p []byte) (int, error) {
	if len(b.data) == 0 {
		return 0, b.err
	}
	n := copy(p, b.data)
	b.data = b.data[n:]
	return n, nil
}

func (b *brokenBody) Close() error { return nil }

// streamSession serves a custom body for GetContent.
type streamSession struct {
	*fakeSession
	bodies []io.ReadCloser
}

func (s *streamSession) GetContent(ctx context.Context, fileID string) (io.ReadCloser, error) {
	s.contentCalls++
	body := s.bodies[0]
	s.bodies = s.bodies[1:]
	return body, nil
}

func testOptions(t *testing.T) Options {
	t.Helper()
	return Options{
		Root:      t.TempDir(),
		ChunkSize: 4,
		Retry: retry.Config{
			MaxAttempts: 3,
			InitialWait: time.Millisecond,
			MaxWait:     time.Millisecond,
			Multiplier:  1,
		},
	}
}
