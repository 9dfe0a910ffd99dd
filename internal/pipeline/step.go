package pipeline

import (
	"fmt"
	"time"
)

// Step places one descriptor in the pipeline. DependsOn lists the names of
// steps whose handles must exist before this step may run; the descriptor's
// ref:// properties add implicit dependencies on top of that.
type Step struct {
	Name           string        `json:"name"`
	Descriptor     *Descriptor   `json:"descriptor"`
	DependsOn      []string      `json:"dependsOn,omitempty"`
	IdempotencyKey string        `json:"idempotencyKey"`
	ReadyTimeout   time.Duration `json:"readyTimeout,omitempty"`
}

// Key returns the idempotency key, deriving the default kind/lookup form
// when none was set explicitly.
func (s *Step) Key() string {
	if s.IdempotencyKey != "" {
		return s.IdempotencyKey
	}
	return fmt.Sprintf("%s/%s", s.Descriptor.Kind, s.Descriptor.LookupKey)
}
