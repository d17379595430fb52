package mirror

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/tanaikech/gdmirror/internal/metrics"
	"github.com/tanaikech/gdmirror/internal/retry"
)

const tracerName = "github.com/tanaikech/gdmirror/mirror"

// Downloader materializes single remote files below a local directory.
type Downloader struct {
	session  Session
	paths    PathBuilder
	verify   Verify
	retry    retry.Config
	buf      []byte
	progress io.Writer
	log      *zap.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer
}

// NewDownloader creates a Downloader.
func NewDownloader(session Session, opts Options) *Downloader {
	opts = opts.withDefaults()
	return &Downloader{
		session:  session,
		paths:    opts.pathBuilder(),
		verify:   opts.Verify,
		retry:    opts.Retry,
		buf:      make([]byte, opts.ChunkSize),
		progress: opts.Progress,
		log:      opts.Logger,
		metrics:  opts.Metrics,
		tracer:   otel.Tracer(tracerName),
	}
}

func (d *Downloader) target(tc TraversalContext, item RemoteItem, ext string, aliases ...string) LocalTarget {
	name := tc.names.Claim(FileName(Sanitize(item.Name), ext, aliases...))
	return LocalTarget{
		Path:      d.paths.Join(tc.LocalFolderPath, name),
		Extension: ext,
	}
}

// Download fetches one file into the folder of tc. Failures are returned in
// the Result, never as a panic or error, so the walk can go on.
func (d *Downloader) Download(ctx context.Context, tc TraversalContext, item RemoteItem) Result {
	ctx, span := d.tracer.Start(ctx, "mirror.download", trace.WithAttributes(
		attribute.String("file.id", item.ID),
		attribute.String("file.mime_type", item.MimeType),
	))
	defer span.End()

	res := d.download(ctx, tc, item)
	span.SetAttributes(
		attribute.String("file.path", res.Path),
		attribute.String("result", res.Status.String()),
		attribute.Int64("bytes", res.Bytes),
	)
	if res.Err != nil {
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, res.Err.Error())
	}
	return res
}

func (d *Downloader) download(ctx context.Context, tc TraversalContext, item RemoteItem) Result {
	f := Resolve(item.MimeType)
	if f.Strategy == LinkOnly {
		return d.writeLink(ctx, tc, item, f)
	}

	target := d.target(tc, item, f.Extension, f.Aliases...)
	res := Result{Item: item, Path: target.Path}

	expect := item
	if f.Strategy == Export {
		expect.Size = nil
	}
	done, err := Exists(target.Path, expect, d.verify)
	if err != nil {
		return failed(res, fmt.Errorf("checking local file: %w", err))
	}
	if done {
		res.Status = StatusSkipped
		return res
	}

	start := time.Now()
	n, err := d.fetch(ctx, item, f, target.Path)
	if errors.Is(err, ErrExportSizeLimit) {
		d.log.Info("export refused, writing link file instead",
			zap.String("file", item.Name), zap.String("fileId", item.ID))
		return d.writeLink(ctx, tc, item, f)
	}
	if err != nil {
		return failed(res, err)
	}
	d.metrics.RecordTransfer(time.Since(start))
	res.Status = StatusSaved
	res.Bytes = n
	return res
}

// fetch streams the content of item to path, retrying transient failures.
func (d *Downloader) fetch(ctx context.Context, item RemoteItem, f Format, path string) (int64, error) {
	return retry.DoWithResult(ctx, d.retryConfig("download", item), func() (int64, error) {
		var body io.ReadCloser
		var err error
		if f.Strategy == Export {
			body, err = d.session.ExportContent(ctx, item.ID, f.ExportMimeType)
		} else {
			body, err = d.session.GetContent(ctx, item.ID)
		}
		if err != nil {
			return 0, err
		}
		defer body.Close()

		var size int64 = -1
		if f.Strategy == Direct && item.Size != nil {
			size = *item.Size
		}
		return d.writeFile(path, body, item.Name, size)
	})
}

// linkFile is the JSON body of a link placeholder.
type linkFile struct {
	URL   string `json:"url"`
	DocID string `json:"doc_id"`
	Name  string `json:"name"`
}

// writeLink writes a small file pointing at the document in Drive. An
// existing link file is left alone.
func (d *Downloader) writeLink(ctx context.Context, tc TraversalContext, item RemoteItem, f Format) Result {
	target := d.target(tc, item, f.NativeExtension)
	res := Result{Item: item, Path: target.Path}

	done, err := Exists(target.Path, RemoteItem{}, VerifyPresence)
	if err != nil {
		return failed(res, fmt.Errorf("checking local file: %w", err))
	}
	if done {
		res.Status = StatusSkipped
		return res
	}

	meta, err := retry.DoWithResult(ctx, d.retryConfig("metadata", item), func() (*Metadata, error) {
		return d.session.GetMetadata(ctx, item.ID, "id", "name", "webViewLink")
	})
	if err != nil {
		return failed(res, fmt.Errorf("%w: %w", ErrLinkLookup, err))
	}
	link := meta.WebViewLink
	if link == "" {
		link = "https://drive.google.com/open?id=" + url.QueryEscape(item.ID)
	}

	body, err := json.Marshal(linkFile{URL: link, DocID: item.ID, Name: item.Name})
	if err != nil {
		return failed(res, err)
	}
	body = append(body, '\n')
	n, err := writeAtomic(target.Path, bytes.NewReader(body), d.buf, nil, -1)
	if err != nil {
		return failed(res, err)
	}
	res.Status = StatusLinked
	res.Bytes = n
	return res
}

func (d *Downloader) writeFile(path string, r io.Reader, name string, size int64) (int64, error) {
	var p *progress
	if d.progress != nil {
		p = &progress{w: d.progress, name: name, size: size}
		defer p.done()
	}
	return writeAtomic(path, r, d.buf, p, size)
}

func (d *Downloader) retryConfig(op string, item RemoteItem) retry.Config {
	cfg := d.retry
	cfg.OnRetry = func(attempt int, wait time.Duration, err error) {
		d.metrics.RecordRetry(op)
		d.log.Warn("retrying",
			zap.String("operation", op),
			zap.String("file", item.Name),
			zap.String("fileId", item.ID),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err))
	}
	return cfg
}

func failed(res Result, err error) Result {
	res.Status = StatusFailed
	res.Err = err
	return res
}

// readError marks a failure while reading the remote stream, as opposed to
// writing the local file.
type readError struct{ err error }

func (e *readError) Error() string { return e.err.Error() }
func (e *readError) Unwrap() error { return e.err }

// partPattern names the temporary file of a download in progress. It does not
// embed the target name, which may already use all of NAME_MAX.
const partPattern = ".gdmirror-*.part"

// writeAtomic streams r in chunks of len(buf) bytes into a temporary file next
// to path and renames it into place once every byte arrived, so a partial
// download is never visible at path. The directory of path must exist. A non-negative want is the expected
// length; a shorter or longer stream is a retryable failure.
func writeAtomic(path string, r io.Reader, buf []byte, p *progress, want int64) (int64, error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), partPattern)
	if err != nil {
		return 0, err
	}
	n, err := copyChunks(tmp, r, buf, p)
	if err == nil && want >= 0 && n != want {
		err = retry.Retryable(fmt.Errorf("short transfer: got %d of %d bytes", n, want))
	}
	if err == nil {
		err = tmp.Sync()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(tmp.Name(), path)
	}
	if err != nil {
		os.Remove(tmp.Name())
		var rerr *readError
		if errors.As(err, &rerr) {
			return n, classifyError(rerr.err)
		}
		return n, err
	}
	return n, nil
}

func copyChunks(dst io.Writer, src io.Reader, buf []byte, p *progress) (int64, error) {
	var total int64
	for {
		n, rerr := readChunk(src, buf)
		if n > 0 {
			if _, err := dst.Write(buf[:n]); err != nil {
				return total, err
			}
			total += int64(n)
			p.add(n)
		}
		if rerr == io.EOF {
			return total, nil
		}
		if rerr != nil {
			return total, &readError{err: rerr}
		}
	}
}

// readChunk fills buf unless the stream ends first.
func readChunk(r io.Reader, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		m, err := r.Read(buf[n:])
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

// progress prints a running byte counter for one transfer.
type progress struct {
	w       io.Writer
	name    string
	size    int64
	current int64
}

func (p *progress) add(n int) {
	if p == nil {
		return
	}
	p.current += int64(n)
	if p.size > 0 {
		fmt.Fprintf(p.w, "\rDownloading '%s' (bytes)... %d / %d", p.name, p.current, p.size)
	} else {
		fmt.Fprintf(p.w, "\rDownloading '%s' (bytes)... %d", p.name, p.current)
	}
}

func (p *progress) done() {
	if p.current > 0 {
		fmt.Fprintln(p.w)
	}
}
