package backend

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cargoerrors "github.com/cargohold-io/cargohold/errors"
	"github.com/cargohold-io/cargohold/internal/testutil"
)

// TestSimple_Put tests the single-shot upload path with a mocked S3 client.
func TestSimple_Put(t *testing.T) {
	tests := []struct {
		name        string
		key         string
		content     string
		limit       int64
		setupMock   func(*testutil.MockS3Client)
		wantErr     bool
		wantKind    func(error) bool
		errContains string
	}{
		{
			name:    "successful upload",
			key:     "backups/photos_001.zip",
			content: "zip bytes",
			setupMock: func(m *testutil.MockS3Client) {
				m.PutObjectFunc = func(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
					assert.Equal(t, "test-bucket", aws.ToString(params.Bucket))
					assert.Equal(t, "backups/photos_001.zip", aws.ToString(params.Key))
					assert.Equal(t, int64(9), aws.ToInt64(params.ContentLength))

					body, err := io.ReadAll(params.Body)
					require.NoError(t, err)
					assert.Equal(t, "zip bytes", string(body))

					return &s3.PutObjectOutput{
						ETag: aws.String("mock-etag-123"),
					}, nil
				}
			},
		},
		{
			name:    "oversized payload is rejected before any network call",
			key:     "backups/huge.zip",
			content: "0123456789",
			limit:   5,
			setupMock: func(m *testutil.MockS3Client) {
				m.PutObjectFunc = func(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
					t.Fatal("PutObject must not be called for oversized payloads")
					return nil, nil
				}
			},
			wantErr:     true,
			wantKind:    cargoerrors.IsSizeLimit,
			errContains: "over the 5 byte ceiling",
		},
		{
			name:    "access denied maps to an auth error",
			key:     "backups/denied.zip",
			content: "data",
			setupMock: func(m *testutil.MockS3Client) {
				m.PutObjectFunc = func(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
					return nil, &smithy.GenericAPIError{Code: "AccessDenied", Message: "no"}
				}
			},
			wantErr:  true,
			wantKind: cargoerrors.IsAuth,
		},
		{
			name:    "throttling maps to a transient error",
			key:     "backups/busy.zip",
			content: "data",
			setupMock: func(m *testutil.MockS3Client) {
				m.PutObjectFunc = func(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
					return nil, &smithy.GenericAPIError{Code: "SlowDown", Message: "busy"}
				}
			},
			wantErr:  true,
			wantKind: cargoerrors.IsTransient,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockClient := &testutil.MockS3Client{}
			if tt.setupMock != nil {
				tt.setupMock(mockClient)
			}

			backend := NewSimple(mockClient, "test-bucket", tt.limit)
			ref, err := backend.Put(
				context.Background(),
				tt.key,
				strings.NewReader(tt.content),
				int64(len(tt.content)),
			)

			if tt.wantErr {
				require.Error(t, err)
				if tt.wantKind != nil {
					assert.True(t, tt.wantKind(err))
				}
				if tt.errContains != "" {
					assert.Contains(t, err.Error(), tt.errContains)
				}
				assert.Nil(t, ref)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, ref)
			assert.Equal(t, KindSimple, ref.Backend)
			assert.Equal(t, "test-bucket", ref.Bucket)
			assert.Equal(t, tt.key, ref.Key)
			assert.Equal(t, int64(len(tt.content)), ref.Size)
			assert.NotEmpty(t, ref.ETag)
		})
	}
}

// TestSimple_Put_Progress verifies the tracker sees byte counts and a
// final completion.
func TestSimple_Put_Progress(t *testing.T) {
	content := strings.Repeat("x", 1000)
	mockClient := &testutil.MockS3Client{
		PutObjectFunc: func(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
			_, err := io.ReadAll(params.Body)
			require.NoError(t, err)
			return &s3.PutObjectOutput{ETag: aws.String("e")}, nil
		},
	}
	tracker := &testutil.MockTracker{}

	backend := NewSimple(mockClient, "test-bucket", 0)
	_, err := backend.Put(
		context.Background(),
		"key",
		strings.NewReader(content),
		int64(len(content)),
		WithTracker(tracker),
	)
	require.NoError(t, err)

	assert.True(t, tracker.UpdateCalled)
	assert.True(t, tracker.CompleteCalled)
	assert.False(t, tracker.ErrorCalled)
	assert.Equal(t, int64(len(content)), tracker.BytesDone)
	assert.Equal(t, int64(len(content)), tracker.BytesTotal)
}

// TestSimple_Put_ErrorNotifiesTracker verifies failed uploads surface
// through the tracker.
func TestSimple_Put_ErrorNotifiesTracker(t *testing.T) {
	mockClient := &testutil.MockS3Client{
		PutObjectFunc: func(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
			return nil, errors.New("wire snapped")
		},
	}
	tracker := &testutil.MockTracker{}

	backend := NewSimple(mockClient, "test-bucket", 0)
	_, err := backend.Put(context.Background(), "key", strings.NewReader("data"), 4, WithTracker(tracker))

	require.Error(t, err)
	assert.True(t, tracker.ErrorCalled)
	assert.False(t, tracker.CompleteCalled)
}

// TestSimple_Get tests the single-shot download path.
func TestSimple_Get(t *testing.T) {
	content := "downloaded zip bytes"
	mockClient := &testutil.MockS3Client{
		GetObjectFunc: func(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
			assert.Equal(t, "other-bucket", aws.ToString(params.Bucket))
			assert.Equal(t, "backups/photos_001.zip", aws.ToString(params.Key))
			return &s3.GetObjectOutput{
				Body:          io.NopCloser(strings.NewReader(content)),
				ContentLength: aws.Int64(int64(len(content))),
			}, nil
		},
	}
	tracker := &testutil.MockTracker{}

	backend := NewSimple(mockClient, "test-bucket", 0)
	ref := RemoteRef{
		Backend: KindSimple,
		Bucket:  "other-bucket",
		Key:     "backups/photos_001.zip",
		Size:    int64(len(content)),
	}

	var dst bytes.Buffer
	written, err := backend.Get(context.Background(), ref, &dst, WithTracker(tracker))

	require.NoError(t, err)
	assert.Equal(t, int64(len(content)), written)
	assert.Equal(t, content, dst.String())
	assert.True(t, tracker.CompleteCalled)
	assert.Equal(t, int64(len(content)), tracker.BytesDone)
}

// TestSimple_Get_MissingObject maps NoSuchKey to a not found error.
func TestSimple_Get_MissingObject(t *testing.T) {
	mockClient := &testutil.MockS3Client{
		GetObjectFunc: func(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
			return nil, &smithy.GenericAPIError{Code: "NoSuchKey", Message: "gone"}
		},
	}

	backend := NewSimple(mockClient, "test-bucket", 0)
	var dst bytes.Buffer
	_, err := backend.Get(context.Background(), RemoteRef{Key: "missing"}, &dst)

	require.Error(t, err)
	assert.True(t, cargoerrors.IsNotFound(err))
}

// TestSimple_Head returns the remote object size.
func TestSimple_Head(t *testing.T) {
	mockClient := &testutil.MockS3Client{
		HeadObjectFunc: func(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
			assert.Equal(t, "test-bucket", aws.ToString(params.Bucket))
			return &s3.HeadObjectOutput{ContentLength: aws.Int64(12345)}, nil
		},
	}

	backend := NewSimple(mockClient, "test-bucket", 0)
	size, err := backend.Head(context.Background(), RemoteRef{Key: "k"})

	require.NoError(t, err)
	assert.Equal(t, int64(12345), size)
}

func TestSimple_Defaults(t *testing.T) {
	backend := NewSimple(&testutil.MockS3Client{}, "b", 0)

	assert.Equal(t, KindSimple, backend.Kind())
	assert.Equal(t, int64(DefaultSimpleLimit), backend.MaxObjectSize())
}
