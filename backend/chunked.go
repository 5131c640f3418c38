package backend

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	awstypes "github.com/aws/aws-sdk-go-v2/service/s3/types"

	cargoerrors "github.com/cargohold-io/cargohold/errors"
	"github.com/cargohold-io/cargohold/internal/s3api"
)

// Chunked is the transport for larger objects. Uploads run as multipart
// uploads and downloads as ranged reads, both in fixed-size chunks handled
// strictly in sequence. Progress is reported and cancellation observed at
// every chunk boundary, so an aborted transfer never leaves a half-written
// chunk behind.
type Chunked struct {
	client    s3api.S3API
	bucket    string
	limit     int64
	chunkSize int64
}

// NewChunked creates a Chunked backend bound to a bucket. Non-positive
// limit or chunk size fall back to the defaults.
func NewChunked(client s3api.S3API, bucket string, limit, chunkSize int64) *Chunked {
	if limit <= 0 {
		limit = DefaultChunkedLimit
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Chunked{
		client:    client,
		bucket:    bucket,
		limit:     limit,
		chunkSize: chunkSize,
	}
}

// Kind returns KindChunked.
func (c *Chunked) Kind() Kind {
	return KindChunked
}

// MaxObjectSize returns the per-object ceiling.
func (c *Chunked) MaxObjectSize() int64 {
	return c.limit
}

// Put uploads size bytes from body as a multipart upload. On any failure
// the multipart upload is aborted so no orphaned parts accumulate.
func (c *Chunked) Put(
	ctx context.Context,
	key string,
	body io.Reader,
	size int64,
	opts ...TransferOption,
) (*RemoteRef, error) {
	cfg := applyTransferOptions(opts)

	if size > c.limit {
		return nil, cargoerrors.New("put",
			fmt.Errorf("%w: %d bytes over the %d byte ceiling", cargoerrors.ErrSizeLimit, size, c.limit)).
			WithPath(key).WithBackend(string(KindChunked))
	}

	create, err := c.client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(cfg.ContentType),
	})
	if err != nil {
		return nil, c.putError(cfg, key, err)
	}
	uploadID := aws.ToString(create.UploadId)

	parts, err := c.uploadChunks(ctx, key, uploadID, body, size, cfg)
	if err != nil {
		c.abort(ctx, key, uploadID)
		return nil, c.putError(cfg, key, err)
	}

	complete, err := c.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:   aws.String(c.bucket),
		Key:      aws.String(key),
		UploadId: aws.String(uploadID),
		MultipartUpload: &awstypes.CompletedMultipartUpload{
			Parts: parts,
		},
	})
	if err != nil {
		c.abort(ctx, key, uploadID)
		return nil, c.putError(cfg, key, err)
	}

	if cfg.Tracker != nil {
		cfg.Tracker.Update(size, size)
		cfg.Tracker.Complete()
	}

	return &RemoteRef{
		Backend: KindChunked,
		Bucket:  c.bucket,
		Key:     key,
		ETag:    aws.ToString(complete.ETag),
		Size:    size,
	}, nil
}

// uploadChunks moves the body one chunk at a time, checking for
// cancellation before each chunk starts.
func (c *Chunked) uploadChunks(
	ctx context.Context,
	key, uploadID string,
	body io.Reader,
	size int64,
	cfg *TransferConfig,
) ([]awstypes.CompletedPart, error) {
	numParts := int(max64(1, (size+c.chunkSize-1)/c.chunkSize))
	parts := make([]awstypes.CompletedPart, 0, numParts)
	buf := make([]byte, c.chunkSize)

	var done int64
	for partNum := 1; partNum <= numParts; partNum++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		want := min64(c.chunkSize, size-done)
		if want > 0 {
			if _, err := io.ReadFull(body, buf[:want]); err != nil {
				return nil, fmt.Errorf("%w: reading chunk %d: %w", cargoerrors.ErrIO, partNum, err)
			}
		}

		out, err := c.client.UploadPart(ctx, &s3.UploadPartInput{
			Bucket:        aws.String(c.bucket),
			Key:           aws.String(key),
			UploadId:      aws.String(uploadID),
			PartNumber:    aws.Int32(int32(partNum)),
			Body:          bytes.NewReader(buf[:want]),
			ContentLength: aws.Int64(want),
		})
		if err != nil {
			return nil, err
		}

		parts = append(parts, awstypes.CompletedPart{
			ETag:       out.ETag,
			PartNumber: aws.Int32(int32(partNum)),
		})

		done += want
		if cfg.Tracker != nil {
			cfg.Tracker.Update(done, size)
		}
	}

	return parts, nil
}

// Get streams the referenced object into dst as sequential ranged reads.
func (c *Chunked) Get(ctx context.Context, ref RemoteRef, dst io.Writer, opts ...TransferOption) (int64, error) {
	cfg := applyTransferOptions(opts)
	bucket := c.refBucket(ref)

	total := ref.Size
	if total <= 0 {
		size, err := c.Head(ctx, ref)
		if err != nil {
			return 0, err
		}
		total = size
	}

	var written int64
	for written < total {
		if err := ctx.Err(); err != nil {
			return written, cargoerrors.New("get", err).WithPath(ref.Key).WithBackend(string(KindChunked))
		}

		end := min64(written+c.chunkSize, total) - 1
		out, err := c.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(ref.Key),
			Range:  aws.String(fmt.Sprintf("bytes=%d-%d", written, end)),
		})
		if err != nil {
			return written, c.getError(cfg, ref.Key, err)
		}

		n, err := io.Copy(dst, out.Body)
		closeErr := out.Body.Close()
		written += n
		if err != nil {
			return written, c.getError(cfg, ref.Key, err)
		}
		if closeErr != nil {
			return written, c.getError(cfg, ref.Key, closeErr)
		}

		if cfg.Tracker != nil {
			cfg.Tracker.Update(written, total)
		}
	}

	if cfg.Tracker != nil {
		cfg.Tracker.Complete()
	}

	return written, nil
}

// Head returns the size of the referenced object.
func (c *Chunked) Head(ctx context.Context, ref RemoteRef) (int64, error) {
	out, err := c.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(c.refBucket(ref)),
		Key:    aws.String(ref.Key),
	})
	if err != nil {
		return 0, cargoerrors.New("head", classify(err)).WithPath(ref.Key).WithBackend(string(KindChunked))
	}
	if out.ContentLength == nil {
		return 0, nil
	}
	return *out.ContentLength, nil
}

func (c *Chunked) putError(cfg *TransferConfig, key string, err error) error {
	if cfg.Tracker != nil {
		cfg.Tracker.Error(err)
	}
	return cargoerrors.New("put", classify(err)).WithPath(key).WithBackend(string(KindChunked))
}

func (c *Chunked) getError(cfg *TransferConfig, key string, err error) error {
	if cfg.Tracker != nil {
		cfg.Tracker.Error(err)
	}
	return cargoerrors.New("get", classify(err)).WithPath(key).WithBackend(string(KindChunked))
}

// abort cleans up a failed multipart upload. Errors during cleanup are
// ignored.
func (c *Chunked) abort(ctx context.Context, key, uploadID string) {
	_, _ = c.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(c.bucket),
		Key:      aws.String(key),
		UploadId: aws.String(uploadID),
	})
}

func (c *Chunked) refBucket(ref RemoteRef) string {
	if ref.Bucket != "" {
		return ref.Bucket
	}
	return c.bucket
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
