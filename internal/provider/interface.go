package provider

import (
	"context"

	"github.com/chicago-crimes/crimectl/internal/pipeline"
)

// Interface is the contract every resource backend implements. Lookup and
// mutation are separate calls so a dry run can stay strictly read-only.
type Interface interface {
	// Name identifies the backend in logs and step results.
	Name() string

	// Configure passes run-level settings once, before any other call.
	Configure(ctx context.Context, settings map[string]string) error

	// Find locates the resource a descriptor names. It returns
	// pipeline.ErrAbsent when nothing matches and a LookupAmbiguousError
	// when the lookup key matches more than one resource.
	Find(ctx context.Context, desc *pipeline.Descriptor) (*pipeline.Handle, error)

	// Create provisions the resource and returns its handle. The handle
	// may come back Pending; Ready reports settlement.
	Create(ctx context.Context, desc *pipeline.Descriptor) (*pipeline.Handle, error)

	// Ready reports whether an asynchronously created resource has
	// settled. It never blocks; the caller owns the polling loop.
	Ready(ctx context.Context, desc *pipeline.Descriptor, h *pipeline.Handle) (*pipeline.Handle, bool, error)

	// Validate compares a found resource against the descriptor and
	// returns a MismatchError describing any divergence.
	Validate(ctx context.Context, desc *pipeline.Descriptor, h *pipeline.Handle) error
}
