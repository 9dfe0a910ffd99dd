package pipeline

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsAbsent(t *testing.T) {
	assert.True(t, IsAbsent(ErrAbsent))
	assert.True(t, IsAbsent(fmt.Errorf("probe: %w", ErrAbsent)))
	assert.False(t, IsAbsent(errors.New("resource absent"))) // same text, different error
	assert.False(t, IsAbsent(nil))
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"typed transient", &TransientProviderError{Op: "HeadBucket", Cause: errors.New("x")}, true},
		{"wrapped typed transient", fmt.Errorf("find: %w", &TransientProviderError{Op: "op", Cause: errors.New("x")}), true},
		{"permission denied", &PermissionDeniedError{Op: "CreateBucket", Cause: errors.New("AccessDenied")}, false},
		{"configuration", &ConfigurationError{Field: "region", Reason: "empty"}, false},
		{"throttling message", errors.New("ThrottlingException: Rate exceeded"), true},
		{"connection reset", errors.New("read tcp: connection reset by peer"), true},
		{"timeout message", errors.New("RequestCanceled: request timeout"), true},
		{"plain failure", errors.New("validation failed"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestIsAbsentSentinel(t *testing.T) {
	assert.True(t, IsAbsentSentinel(""))
	assert.True(t, IsAbsentSentinel("None"))
	assert.True(t, IsAbsentSentinel("null"))
	assert.False(t, IsAbsentSentinel("E2EXAMPLE123"))
	assert.False(t, IsAbsentSentinel("0"))
}

func TestErrorMessages(t *testing.T) {
	missing := &MissingDependencyError{Step: "exec-role", Requires: "uploads-bucket", Reason: "no handle recorded"}
	assert.Contains(t, missing.Error(), "exec-role")
	assert.Contains(t, missing.Error(), "uploads-bucket")

	mismatch := &MismatchError{Step: "results-table", Field: "hash key", Want: "file_key", Got: "id"}
	assert.Contains(t, mismatch.Error(), "file_key")
	assert.Contains(t, mismatch.Error(), "id")

	notReady := &AsyncNotReadyError{Kind: KindCDNDistribution, Name: "site-cdn", Timeout: 2 * time.Minute}
	assert.Contains(t, notReady.Error(), "site-cdn")
	assert.Contains(t, notReady.Error(), "2m")

	var cause error = &ToolingMissingError{Tool: "docker", Cause: errors.New("daemon unreachable")}
	var tooling *ToolingMissingError
	assert.True(t, errors.As(cause, &tooling))
}
