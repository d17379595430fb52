package mirror

import (
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/tanaikech/gdmirror/internal/metrics"
	"github.com/tanaikech/gdmirror/internal/retry"
)

// DefaultChunkSize is the size of one streamed read.
const DefaultChunkSize = 8 << 20

// Options configures a Walker. Zero values fall back to the defaults.
type Options struct {
	// Root is the local directory the remote folder is mirrored into.
	Root string
	// SharedDriveID scopes listings to a shared drive.
	SharedDriveID string

	MaxPathLength int
	SegmentLength int
	Verify        Verify
	ChunkSize     int

	// MimeTypes restricts downloads to these remote mimeTypes when non-empty.
	MimeTypes []string

	Retry retry.Config

	// Progress receives a live byte counter per transfer; nil disables it.
	Progress io.Writer
	// Report is called once per file (and per failed folder).
	Report func(Result)

	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

func (o Options) withDefaults() Options {
	if o.Root == "" {
		o.Root = "."
	}
	if o.MaxPathLength == 0 {
		o.MaxPathLength = DefaultMaxPathLength
	}
	if o.SegmentLength == 0 {
		o.SegmentLength = DefaultSegmentLength
	}
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.Retry.MaxAttempts == 0 && o.Retry.InitialWait == 0 {
		o.Retry = retry.DefaultConfig()
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Metrics == nil {
		o.Metrics = metrics.New()
	}
	return o
}

func (o Options) pathBuilder() PathBuilder {
	b := NewPathBuilder(o.Root)
	b.MaxLength = o.MaxPathLength
	b.SegmentLength = o.SegmentLength
	return b
}

func (o Options) accepts(mimeType string) bool {
	if len(o.MimeTypes) == 0 {
		return true
	}
	for _, m := range o.MimeTypes {
		if strings.EqualFold(strings.TrimSpace(m), mimeType) {
			return true
		}
	}
	return false
}
