// Package backend provides the transport capability for moving objects to
// and from S3-compatible storage. Two variants exist: a Simple backend for
// small objects transferred in a single request, and a Chunked backend that
// moves larger objects in fixed-size chunks. Both expose the same Put/Get
// shape so callers stay backend-agnostic beyond the selection decision.
package backend

import (
	"context"
	"io"
	"mime"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/cargohold-io/cargohold/fs"
)

// Kind identifies a transport backend variant.
type Kind string

const (
	// KindSimple is the single-shot small-object backend.
	KindSimple Kind = "simple"

	// KindChunked is the chunked large-object backend.
	KindChunked Kind = "chunked"
)

// Default size limits and chunk size. All are overridable through
// configuration; the ceilings here mirror the transport tiers the system
// is built around.
const (
	// DefaultSimpleLimit is the per-object ceiling for the Simple backend.
	DefaultSimpleLimit int64 = 50_000_000

	// DefaultChunkedLimit is the per-object ceiling for the Chunked backend.
	DefaultChunkedLimit int64 = 2_000_000_000

	// DefaultChunkSize is the fixed chunk size for Chunked transfers.
	DefaultChunkSize int64 = 32 * 1024 * 1024

	// DefaultContentType is used when content type detection fails.
	DefaultContentType = "application/octet-stream"
)

// RemoteRef identifies an object stored on a specific backend. It is
// produced only by a successful Put and is sufficient to retrieve the
// object later.
type RemoteRef struct {
	Backend Kind   `json:"backend"`
	Bucket  string `json:"bucket"`
	Key     string `json:"key"`
	ETag    string `json:"etag,omitempty"`
	Size    int64  `json:"size"`
}

// Tracker receives transfer progress updates.
// Implementations can provide real-time progress during uploads and downloads.
type Tracker interface {
	// Update is called with cumulative transferred bytes and the total
	Update(bytesTransferred, totalBytes int64)

	// Complete is called when the transfer completes successfully
	Complete()

	// Error is called when the transfer fails
	Error(err error)
}

// Adapter is the transport capability implemented by both backend variants.
type Adapter interface {
	// Kind returns the backend variant.
	Kind() Kind

	// MaxObjectSize returns the hard per-object ceiling in bytes.
	MaxObjectSize() int64

	// Put uploads size bytes from body under key and returns the remote
	// reference. Anything larger than MaxObjectSize is rejected before
	// any network call.
	Put(ctx context.Context, key string, body io.Reader, size int64, opts ...TransferOption) (*RemoteRef, error)

	// Get streams the referenced object into dst and returns the number
	// of bytes written.
	Get(ctx context.Context, ref RemoteRef, dst io.Writer, opts ...TransferOption) (int64, error)

	// Head returns the size of the referenced object without retrieving
	// it, or an error satisfying errors.IsNotFound if it does not exist.
	Head(ctx context.Context, ref RemoteRef) (int64, error)
}

// TransferConfig holds per-call options for Put and Get.
type TransferConfig struct {
	Tracker     Tracker
	ContentType string
}

// TransferOption is a functional option for a single Put or Get call.
type TransferOption func(*TransferConfig)

// WithTracker attaches a progress tracker to the transfer.
func WithTracker(t Tracker) TransferOption {
	return func(c *TransferConfig) {
		c.Tracker = t
	}
}

// WithContentType sets the content type stored with the object.
func WithContentType(ct string) TransferOption {
	return func(c *TransferConfig) {
		c.ContentType = ct
	}
}

func applyTransferOptions(opts []TransferOption) *TransferConfig {
	cfg := &TransferConfig{
		ContentType: DefaultContentType,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// progressReader wraps an io.Reader to report cumulative bytes to a Tracker.
type progressReader struct {
	reader    io.Reader
	tracker   Tracker
	total     int64
	bytesRead int64
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.reader.Read(p)
	if n > 0 {
		pr.bytesRead += int64(n)
		if pr.tracker != nil {
			pr.tracker.Update(pr.bytesRead, pr.total)
		}
	}
	//nolint:wrapcheck // io.Reader interface contract - error comes from underlying reader
	return n, err
}

// DetectContentType determines the content type of a local file, sniffing
// its first bytes where possible and falling back to extension-based
// detection.
func DetectContentType(fsys fs.Filesystem, path string) string {
	info, err := fsys.Stat(path)
	if err != nil || info.IsDir() {
		return detectContentTypeFromExtension(path)
	}

	file, err := fsys.Open(path)
	if err != nil {
		return detectContentTypeFromExtension(path)
	}
	defer file.Close()

	buf := make([]byte, 512)
	n, _ := file.Read(buf)
	if n > 0 {
		if mt := mimetype.Detect(buf[:n]); mt != nil {
			return mt.String()
		}
	}

	return detectContentTypeFromExtension(path)
}

func detectContentTypeFromExtension(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != "" {
		if byExt := mime.TypeByExtension(ext); byExt != "" {
			return byExt
		}
	}
	return DefaultContentType
}
