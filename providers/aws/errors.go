package aws

import (
	"errors"
	"fmt"

	"github.com/aws/smithy-go"

	"github.com/chicago-crimes/crimectl/internal/pipeline"
)

// errorCode extracts the service error code from an SDK error, or "" when
// the error carries none.
func errorCode(err error) string {
	var ae smithy.APIError
	if errors.As(err, &ae) {
		return ae.ErrorCode()
	}
	return ""
}

var transientCodes = map[string]bool{
	"Throttling":                  true,
	"ThrottlingException":         true,
	"TooManyRequestsException":    true,
	"RequestLimitExceeded":        true,
	"ServiceUnavailable":          true,
	"ServiceUnavailableException": true,
	"InternalError":               true,
	"InternalServerError":         true,
	"InternalFailure":             true,
	"RequestTimeout":              true,
	"SlowDown":                    true,
}

var deniedCodes = map[string]bool{
	"AccessDenied":                true,
	"AccessDeniedException":       true,
	"UnauthorizedOperation":       true,
	"Forbidden":                   true,
	"UnrecognizedClientException": true,
	"InvalidClientTokenId":        true,
	"ExpiredToken":                true,
	"ExpiredTokenException":       true,
}

// classify maps an SDK error onto the pipeline taxonomy so the runner can
// decide between retrying, failing fast, and surfacing a permission problem.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	switch code := errorCode(err); {
	case deniedCodes[code]:
		return &pipeline.PermissionDeniedError{Op: op, Cause: err}
	case transientCodes[code]:
		return &pipeline.TransientProviderError{Op: op, Cause: err}
	}
	return fmt.Errorf("%s: %w", op, err)
}
