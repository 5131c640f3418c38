package backend

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	cargoerrors "github.com/cargohold-io/cargohold/errors"
	"github.com/cargohold-io/cargohold/internal/s3api"
)

// Simple is the single-shot transport for small objects. The whole object
// moves in one request; anything over the ceiling is rejected up front.
type Simple struct {
	client s3api.S3API
	bucket string
	limit  int64
}

// NewSimple creates a Simple backend bound to a bucket. A non-positive
// limit falls back to DefaultSimpleLimit.
func NewSimple(client s3api.S3API, bucket string, limit int64) *Simple {
	if limit <= 0 {
		limit = DefaultSimpleLimit
	}
	return &Simple{
		client: client,
		bucket: bucket,
		limit:  limit,
	}
}

// Kind returns KindSimple.
func (s *Simple) Kind() Kind {
	return KindSimple
}

// MaxObjectSize returns the per-object ceiling.
func (s *Simple) MaxObjectSize() int64 {
	return s.limit
}

// Put uploads size bytes from body in a single request.
func (s *Simple) Put(
	ctx context.Context,
	key string,
	body io.Reader,
	size int64,
	opts ...TransferOption,
) (*RemoteRef, error) {
	cfg := applyTransferOptions(opts)

	if size > s.limit {
		return nil, cargoerrors.New("put",
			fmt.Errorf("%w: %d bytes over the %d byte ceiling", cargoerrors.ErrSizeLimit, size, s.limit)).
			WithPath(key).WithBackend(string(KindSimple))
	}

	reader := body
	if cfg.Tracker != nil {
		reader = &progressReader{
			reader:  body,
			tracker: cfg.Tracker,
			total:   size,
		}
	}

	out, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          reader,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(cfg.ContentType),
	})
	if err != nil {
		if cfg.Tracker != nil {
			cfg.Tracker.Error(err)
		}
		return nil, cargoerrors.New("put", classify(err)).WithPath(key).WithBackend(string(KindSimple))
	}

	if cfg.Tracker != nil {
		cfg.Tracker.Update(size, size)
		cfg.Tracker.Complete()
	}

	return &RemoteRef{
		Backend: KindSimple,
		Bucket:  s.bucket,
		Key:     key,
		ETag:    aws.ToString(out.ETag),
		Size:    size,
	}, nil
}

// Get streams the referenced object into dst and returns the bytes written.
func (s *Simple) Get(ctx context.Context, ref RemoteRef, dst io.Writer, opts ...TransferOption) (int64, error) {
	cfg := applyTransferOptions(opts)
	bucket := s.refBucket(ref)

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(ref.Key),
	})
	if err != nil {
		if cfg.Tracker != nil {
			cfg.Tracker.Error(err)
		}
		return 0, cargoerrors.New("get", classify(err)).WithPath(ref.Key).WithBackend(string(KindSimple))
	}
	defer out.Body.Close()

	total := int64(0)
	if out.ContentLength != nil {
		total = *out.ContentLength
	}

	var reader io.Reader = out.Body
	if cfg.Tracker != nil {
		reader = &progressReader{
			reader:  out.Body,
			tracker: cfg.Tracker,
			total:   total,
		}
	}

	written, err := io.Copy(dst, reader)
	if err != nil {
		if cfg.Tracker != nil {
			cfg.Tracker.Error(err)
		}
		return written, cargoerrors.New("get", classify(err)).WithPath(ref.Key).WithBackend(string(KindSimple))
	}

	if cfg.Tracker != nil {
		cfg.Tracker.Update(written, total)
		cfg.Tracker.Complete()
	}

	return written, nil
}

// Head returns the size of the referenced object.
func (s *Simple) Head(ctx context.Context, ref RemoteRef) (int64, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.refBucket(ref)),
		Key:    aws.String(ref.Key),
	})
	if err != nil {
		return 0, cargoerrors.New("head", classify(err)).WithPath(ref.Key).WithBackend(string(KindSimple))
	}
	if out.ContentLength == nil {
		return 0, nil
	}
	return *out.ContentLength, nil
}

func (s *Simple) refBucket(ref RemoteRef) string {
	if ref.Bucket != "" {
		return ref.Bucket
	}
	return s.bucket
}
