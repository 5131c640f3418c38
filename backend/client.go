package backend

import (
	"context"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	cargoerrors "github.com/cargohold-io/cargohold/errors"
)

// S3Config carries the connection settings for the S3 client shared by
// the Simple and Chunked backends. Zero values defer to the default AWS
// credential chain and region resolution.
type S3Config struct {
	// Region is the AWS region. Empty falls back to the environment and
	// then to us-east-1.
	Region string

	// Endpoint overrides the S3 endpoint URL, for S3-compatible stores
	// such as MinIO.
	Endpoint string

	// AccessKey and SecretKey select static credentials. When either is
	// empty the default credential chain is used instead.
	AccessKey string
	SecretKey string

	// SessionToken is an optional token for temporary static credentials.
	SessionToken string

	// ForcePathStyle addresses buckets as path segments instead of
	// subdomains. Required by most S3-compatible stores.
	ForcePathStyle bool

	// Timeout bounds each HTTP request. Zero means no timeout.
	Timeout time.Duration

	// MaxRetries caps the SDK's own retry attempts per request. Zero
	// keeps the SDK default.
	MaxRetries int
}

// NewS3Client builds an S3 client from the given settings. Credentials
// come from the default chain unless static keys are configured.
func NewS3Client(ctx context.Context, cfg S3Config) (*s3.Client, error) {
	var loadOpts []func(*config.LoadOptions) error

	if cfg.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, cfg.SessionToken),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, cargoerrors.New("client initialization", err)
	}

	if awsCfg.Region == "" {
		awsCfg.Region = "us-east-1"
	}
	if cfg.MaxRetries > 0 {
		awsCfg.RetryMaxAttempts = cfg.MaxRetries
	}

	var s3Opts []func(*s3.Options)

	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}
	if cfg.ForcePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}
	if cfg.Timeout > 0 {
		httpClient := &http.Client{
			Timeout: cfg.Timeout,
		}
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.HTTPClient = httpClient
		})
	}

	return s3.NewFromConfig(awsCfg, s3Opts...), nil
}
