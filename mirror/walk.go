package mirror

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/tanaikech/gdmirror/internal/metrics"
	"github.com/tanaikech/gdmirror/internal/retry"
)

// Walker mirrors a remote folder tree into Options.Root.
type Walker struct {
	session    Session
	downloader *Downloader
	paths      PathBuilder
	opts       Options
	log        *zap.Logger
	metrics    *metrics.Metrics
	tracer     trace.Tracer
}

// New creates a Walker that uses session for every remote call.
func New(session Session, opts Options) *Walker {
	opts = opts.withDefaults()
	return &Walker{
		session:    session,
		downloader: NewDownloader(session, opts),
		paths:      opts.pathBuilder(),
		opts:       opts,
		log:        opts.Logger,
		metrics:    opts.Metrics,
		tracer:     otel.Tracer(tracerName),
	}
}

// Walk mirrors folderID and everything below it. Per-file failures are
// reported and counted in the Summary; the returned error is non-nil only
// when the root folder cannot be listed or ctx is done.
func (w *Walker) Walk(ctx context.Context, folderID string) (*Summary, error) {
	start := time.Now()
	sum := &Summary{}
	if err := os.MkdirAll(w.paths.Root, 0o755); err != nil {
		return sum, fmt.Errorf("creating local root: %w", err)
	}
	tc := TraversalContext{
		LocalFolderPath: w.paths.Root,
		SharedDriveID:   w.opts.SharedDriveID,
	}
	err := w.walk(ctx, folderID, tc, sum)
	w.metrics.RecordRun(time.Since(start), err == nil && sum.Failed == 0)
	return sum, err
}

func (w *Walker) walk(ctx context.Context, folderID string, tc TraversalContext, sum *Summary) error {
	ctx, span := w.tracer.Start(ctx, "mirror.folder", trace.WithAttributes(
		attribute.String("folder.id", folderID),
		attribute.String("folder.path", tc.LocalFolderPath),
	))
	defer span.End()

	items, err := w.list(ctx, folderID, tc.SharedDriveID)
	if err != nil {
		span.RecordError(err)
		return err
	}
	span.SetAttributes(attribute.Int("folder.children", len(items)))
	w.log.Debug("folder listed",
		zap.String("folderId", folderID),
		zap.String("path", tc.LocalFolderPath),
		zap.Int("children", len(items)))

	tc.names = NameSet{}
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return err
		}
		if item.IsFolder() {
			if err := w.descend(ctx, tc, item, sum); err != nil {
				return err
			}
			continue
		}
		if !w.opts.accepts(item.MimeType) {
			w.report(sum, Result{Item: item, Status: StatusFiltered})
			continue
		}
		w.report(sum, w.downloader.Download(ctx, tc, item))
	}
	return nil
}

// descend creates the local directory of a subfolder and walks it. Only a
// cancelled ctx is returned; other failures are reported for the folder.
func (w *Walker) descend(ctx context.Context, tc TraversalContext, item RemoteItem, sum *Summary) error {
	dir := w.paths.Join(tc.LocalFolderPath, tc.names.Claim(Sanitize(item.Name)))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		w.report(sum, Result{Item: item, Path: dir, Status: StatusFailed, Err: fmt.Errorf("creating folder: %w", err)})
		return nil
	}
	sum.Folders++
	w.metrics.RecordFolder()

	child := TraversalContext{LocalFolderPath: dir, SharedDriveID: tc.SharedDriveID}
	if err := w.walk(ctx, item.ID, child, sum); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		w.report(sum, Result{Item: item, Path: dir, Status: StatusFailed, Err: err})
	}
	return nil
}

// list returns every child of folderID, following nextPageToken.
func (w *Walker) list(ctx context.Context, folderID, driveID string) ([]RemoteItem, error) {
	cfg := w.opts.Retry
	cfg.OnRetry = func(attempt int, wait time.Duration, err error) {
		w.metrics.RecordRetry("list")
		w.log.Warn("retrying",
			zap.String("operation", "list"),
			zap.String("folderId", folderID),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err))
	}

	var items []RemoteItem
	pageToken := ""
	for {
		page, err := retry.DoWithResult(ctx, cfg, func() (*Page, error) {
			return w.session.ListChildren(ctx, folderID, pageToken, driveID)
		})
		if err != nil {
			return nil, fmt.Errorf("listing folder %s: %w", folderID, err)
		}
		w.metrics.RecordListPage()
		items = append(items, page.Items...)

		if page.NextPageToken == "" {
			return items, nil
		}
		if page.NextPageToken == pageToken {
			return nil, fmt.Errorf("listing folder %s: page token %q repeated", folderID, pageToken)
		}
		pageToken = page.NextPageToken
	}
}

func (w *Walker) report(sum *Summary, r Result) {
	sum.Add(r)
	if !r.Item.IsFolder() {
		w.metrics.RecordFile(r.Status.String(), r.Bytes)
	}
	if r.Status == StatusFailed {
		w.log.Warn("failed",
			zap.String("file", r.Item.Name),
			zap.String("fileId", r.Item.ID),
			zap.String("path", r.Path),
			zap.Error(r.Err))
	}
	if w.opts.Report != nil {
		w.opts.Report(r)
	}
}

// NameSet hands out unique names within one local folder. Names are compared
// case-insensitively; a taken name gets _2, _3, ... before its extension.
type NameSet map[string]struct{}

// Claim reserves name, or the first free suffixed form of it, and returns it.
func (s NameSet) Claim(name string) string {
	if s == nil {
		return name
	}
	if _, taken := s[strings.ToLower(name)]; !taken {
		s[strings.ToLower(name)] = struct{}{}
		return name
	}
	ext := shortExt(name)
	stem := strings.TrimSuffix(name, ext)
	for n := 2; ; n++ {
		suffix := "_" + strconv.Itoa(n)
		candidate := truncate(stem, MaxSegmentBytes-len(suffix)-len(ext)) + suffix + ext
		if _, taken := s[strings.ToLower(candidate)]; !taken {
			s[strings.ToLower(candidate)] = struct{}{}
			return candidate
		}
	}
}
