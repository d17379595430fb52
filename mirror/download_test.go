package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tanaikech/gdmirror/internal/retry"
)

const sheetMime = "application/vnd.google-apps.spreadsheet"

func rootContext(opts Options) TraversalContext {
	return TraversalContext{LocalFolderPath: opts.Root, names: NameSet{}}
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestDownloadSavesDirectContent(t *testing.T) {
	s := newFakeSession()
	item := s.addFile("root", "f1", "notes", "text/plain", []byte("hello, drive"))
	opts := testOptions(t)
	d := NewDownloader(s, opts)

	res := d.Download(context.Background(), rootContext(opts), item)

	require.NoError(t, res.Err)
	assert.Equal(t, StatusSaved, res.Status)
	assert.Equal(t, int64(12), res.Bytes)
	assert.Equal(t, filepath.Join(opts.Root, "notes.txt"), res.Path)
	data, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	assert.Equal(t, "hello, drive", string(data))
	assert.Equal(t, []string{"notes.txt"}, listDir(t, opts.Root))
}

func TestDownloadExportsNativeDocument(t *testing.T) {
	s := newFakeSession()
	item := s.addFile("root", "s1", "Budget", sheetMime, []byte("PK-xlsx"))
	opts := testOptions(t)
	d := NewDownloader(s, opts)

	res := d.Download(context.Background(), rootContext(opts), item)

	require.NoError(t, res.Err)
	assert.Equal(t, StatusSaved, res.Status)
	assert.Equal(t, filepath.Join(opts.Root, "Budget.xlsx"), res.Path)
	assert.Equal(t, 1, s.exportCalls)
	assert.Equal(t, 0, s.contentCalls)
}

func TestDownloadSkipsCompleteFile(t *testing.T) {
	s := newFakeSession()
	item := s.addFile("root", "f1", "Q1.pdf", "application/pdf", make([]byte, 1024))
	opts := testOptions(t)
	require.NoError(t, os.WriteFile(filepath.Join(opts.Root, "Q1.pdf"), make([]byte, 1024), 0o644))
	d := NewDownloader(s, opts)

	res := d.Download(context.Background(), rootContext(opts), item)

	assert.Equal(t, StatusSkipped, res.Status)
	assert.Equal(t, 0, s.transfers())
}

func TestDownloadReplacesPartialFile(t *testing.T) {
	s := newFakeSession()
	item := s.addFile("root", "f1", "Q1.pdf", "application/pdf", make([]byte, 1024))
	opts := testOptions(t)
	require.NoError(t, os.WriteFile(filepath.Join(opts.Root, "Q1.pdf"), make([]byte, 100), 0o644))
	d := NewDownloader(s, opts)

	res := d.Download(context.Background(), rootContext(opts), item)

	assert.Equal(t, StatusSaved, res.Status)
	fi, err := os.Stat(res.Path)
	require.NoError(t, err)
	assert.Equal(t, int64(1024), fi.Size())
}

func TestDownloadExportLimitWritesLinkFile(t *testing.T) {
	s := newFakeSession()
	item := s.addFile("root", "s1", "Huge sheet", sheetMime, nil)
	s.exportErr["s1"] = ErrExportSizeLimit
	s.links["s1"] = "https://docs.google.com/spreadsheets/d/s1/edit"
	opts := testOptions(t)
	d := NewDownloader(s, opts)

	res := d.Download(context.Background(), rootContext(opts), item)

	require.NoError(t, res.Err)
	assert.Equal(t, StatusLinked, res.Status)
	assert.Equal(t, filepath.Join(opts.Root, "Huge sheet.gsheet"), res.Path)
	assert.Equal(t, []string{"Huge sheet.gsheet"}, listDir(t, opts.Root))

	data, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	var link linkFile
	require.NoError(t, json.Unmarshal(data, &link))
	assert.Equal(t, "https://docs.google.com/spreadsheets/d/s1/edit", link.URL)
	assert.Equal(t, "s1", link.DocID)
}

func TestDownloadExportLimitKeepsExistingLinkFile(t *testing.T) {
	s := newFakeSession()
	item := s.addFile("root", "s1", "Huge sheet", sheetMime, nil)
	s.exportErr["s1"] = ErrExportSizeLimit
	opts := testOptions(t)
	path := filepath.Join(opts.Root, "Huge sheet.gsheet")
	require.NoError(t, os.WriteFile(path, []byte("kept"), 0o644))
	d := NewDownloader(s, opts)

	res := d.Download(context.Background(), rootContext(opts), item)

	assert.Equal(t, StatusSkipped, res.Status)
	assert.Equal(t, 0, s.metaCalls)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "kept", string(data))
}

func TestDownloadLinkLookupFailure(t *testing.T) {
	s := newFakeSession()
	item := s.addFile("root", "s1", "Huge sheet", sheetMime, nil)
	s.exportErr["s1"] = ErrExportSizeLimit
	s.metaErr["s1"] = errors.New("403 insufficient permissions")
	opts := testOptions(t)
	d := NewDownloader(s, opts)

	res := d.Download(context.Background(), rootContext(opts), item)

	assert.Equal(t, StatusFailed, res.Status)
	assert.ErrorIs(t, res.Err, ErrLinkLookup)
	assert.Empty(t, listDir(t, opts.Root))
}

func TestDownloadLinkFallsBackToOpenURL(t *testing.T) {
	s := newFakeSession()
	item := s.addFile("root", "frm1", "Survey", "application/vnd.google-apps.form", nil)
	opts := testOptions(t)
	d := NewDownloader(s, opts)

	res := d.Download(context.Background(), rootContext(opts), item)

	require.NoError(t, res.Err)
	assert.Equal(t, StatusLinked, res.Status)
	assert.Equal(t, 0, s.exportCalls)
	data, err := os.ReadFile(filepath.Join(opts.Root, "Survey.gform"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "https://drive.google.com/open?id=frm1")
}

func TestDownloadRetriesTransientErrors(t *testing.T) {
	s := newFakeSession()
	item := s.addFile("root", "f1", "data.csv", "text/csv", []byte("a,b\n1,2\n"))
	s.contentErr["f1"] = []error{retry.Retryable(errors.New("503 backend error")), nil}
	opts := testOptions(t)
	d := NewDownloader(s, opts)

	res := d.Download(context.Background(), rootContext(opts), item)

	require.NoError(t, res.Err)
	assert.Equal(t, StatusSaved, res.Status)
	assert.Equal(t, 2, s.contentCalls)
}

func TestDownloadPermanentErrorIsReported(t *testing.T) {
	s := newFakeSession()
	item := s.addFile("root", "f1", "secret.pdf", "application/pdf", []byte("x"))
	s.contentErr["f1"] = []error{errors.New("403 cannotDownloadFile")}
	opts := testOptions(t)
	d := NewDownloader(s, opts)

	res := d.Download(context.Background(), rootContext(opts), item)

	assert.Equal(t, StatusFailed, res.Status)
	assert.Contains(t, res.Err.Error(), "cannotDownloadFile")
	assert.Equal(t, 1, s.contentCalls)
	assert.Empty(t, listDir(t, opts.Root))
}

func TestDownloadBrokenStreamLeavesNothingBehind(t *testing.T) {
	base := newFakeSession()
	item := base.addFile("root", "f1", "video.mp4", "video/mp4", []byte(strings.Repeat("v", 64)))
	s := &streamSession{
		fakeSession: base,
		bodies: []io.ReadCloser{
			&brokenBody{data: []byte(strings.Repeat("v", 20)), err: syscall.ECONNRESET},
			&brokenBody{data: []byte(strings.Repeat("v", 20)), err: io.ErrUnexpectedEOF},
			&brokenBody{data: []byte(strings.Repeat("v", 10)), err: io.EOF},
		},
	}
	opts := testOptions(t)
	d := NewDownloader(s, opts)

	res := d.Download(context.Background(), rootContext(opts), item)

	assert.Equal(t, StatusFailed, res.Status)
	assert.Contains(t, res.Err.Error(), "short transfer")
	assert.Equal(t, 3, s.contentCalls)
	assert.Empty(t, listDir(t, opts.Root))
}

func TestDownloadRecoversFromBrokenStream(t *testing.T) {
	base := newFakeSession()
	payload := strings.Repeat("v", 64)
	item := base.addFile("root", "f1", "video.mp4", "video/mp4", []byte(payload))
	s := &streamSession{
		fakeSession: base,
		bodies: []io.ReadCloser{
			&brokenBody{data: []byte(payload[:30]), err: syscall.ECONNRESET},
			io.NopCloser(strings.NewReader(payload)),
		},
	}
	opts := testOptions(t)
	d := NewDownloader(s, opts)

	res := d.Download(context.Background(), rootContext(opts), item)

	require.NoError(t, res.Err)
	assert.Equal(t, StatusSaved, res.Status)
	data, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	assert.Equal(t, payload, string(data))
	assert.Equal(t, []string{"video.mp4"}, listDir(t, opts.Root))
}

func TestDownloadProgress(t *testing.T) {
	s := newFakeSession()
	item := s.addFile("root", "f1", "a.bin", "application/octet-stream", []byte("0123456789"))
	opts := testOptions(t)
	var out strings.Builder
	opts.Progress = &out
	d := NewDownloader(s, opts)

	res := d.Download(context.Background(), rootContext(opts), item)

	require.NoError(t, res.Err)
	assert.Contains(t, out.String(), "Downloading 'a.bin' (bytes)... 10 / 10")
}

// listingBody records the entries of dir when the first chunk is read.
type listingBody struct {
	io.Reader
	dir  string
	seen []string
}

func (b *listingBody) Read(p []byte) (int, error) {
	if b.seen == nil {
		entries, err := os.ReadDir(b.dir)
		if err != nil {
			return 0, err
		}
		b.seen = []string{}
		for _, e := range entries {
			b.seen = append(b.seen, e.Name())
		}
	}
	return b.Reader.Read(p)
}

func (b *listingBody) Close() error { return nil }

func TestDownloadWritesThroughHiddenPartFile(t *testing.T) {
	base := newFakeSession()
	item := base.addFile("root", "f1", strings.Repeat("n", 250)+".csv", "text/csv", []byte("a,b\n"))
	opts := testOptions(t)
	body := &listingBody{Reader: strings.NewReader("a,b\n"), dir: opts.Root}
	s := &streamSession{fakeSession: base, bodies: []io.ReadCloser{body}}
	d := NewDownloader(s, opts)

	res := d.Download(context.Background(), rootContext(opts), item)

	require.NoError(t, res.Err)
	require.Len(t, body.seen, 1)
	assert.Regexp(t, `^\.gdmirror-[^/]*\.part$`, body.seen[0])
	assert.Equal(t, []string{filepath.Base(res.Path)}, listDir(t, opts.Root))
}

func TestDownloadFailsWhenFolderIsMissing(t *testing.T) {
	s := newFakeSession()
	item := s.addFile("root", "f1", "a.txt", "text/plain", []byte("a"))
	opts := testOptions(t)
	tc := TraversalContext{LocalFolderPath: filepath.Join(opts.Root, "gone"), names: NameSet{}}
	d := NewDownloader(s, opts)

	res := d.Download(context.Background(), tc, item)

	assert.Equal(t, StatusFailed, res.Status)
	assert.Error(t, res.Err)
	assert.NoDirExists(t, tc.LocalFolderPath)
	assert.Empty(t, listDir(t, opts.Root))
}
