package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"

	awstypes "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	cargoerrors "github.com/cargohold-io/cargohold/errors"
)

// classify maps AWS SDK and network errors onto the failure categories the
// orchestrator's retry policy is built on. Errors that already carry a
// category, and cancellation, pass through unchanged; anything
// unrecognizable is returned as-is.
func classify(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, cargoerrors.ErrTransient),
		errors.Is(err, cargoerrors.ErrAuth),
		errors.Is(err, cargoerrors.ErrSizeLimit),
		errors.Is(err, cargoerrors.ErrIntegrity),
		errors.Is(err, cargoerrors.ErrNotFound),
		errors.Is(err, cargoerrors.ErrIO):
		return err
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		// A fired per-attempt timeout counts as a transient failure.
		return fmt.Errorf("%w: %w", cargoerrors.ErrTransient, err)
	}

	var noSuchKey *awstypes.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return fmt.Errorf("%w: %w", cargoerrors.ErrNotFound, err)
	}
	var notFound *awstypes.NotFound
	if errors.As(err, &notFound) {
		return fmt.Errorf("%w: %w", cargoerrors.ErrNotFound, err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "AccessDenied", "AccessDeniedException", "InvalidAccessKeyId",
			"SignatureDoesNotMatch", "ExpiredToken", "ExpiredTokenException",
			"InvalidToken", "TokenRefreshRequired", "InvalidClientTokenId",
			"MissingAuthenticationToken", "AuthorizationHeaderMalformed":
			return fmt.Errorf("%w: %w", cargoerrors.ErrAuth, err)
		case "NoSuchKey", "NoSuchBucket", "NotFound":
			return fmt.Errorf("%w: %w", cargoerrors.ErrNotFound, err)
		case "SlowDown", "Throttling", "ThrottlingException",
			"TooManyRequestsException", "RequestLimitExceeded",
			"RequestTimeout", "RequestTimeoutException",
			"ServiceUnavailable", "InternalError", "InternalServerError":
			return fmt.Errorf("%w: %w", cargoerrors.ErrTransient, err)
		}
		if apiErr.ErrorFault() == smithy.FaultServer {
			return fmt.Errorf("%w: %w", cargoerrors.ErrTransient, err)
		}
		return err
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %w", cargoerrors.ErrTransient, err)
	}
	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %w", cargoerrors.ErrTransient, err)
	}

	return err
}
