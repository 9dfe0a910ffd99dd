// Package fake is an in-memory provider used by tests. Behavior is
// scripted per resource key: seed what already exists, queue errors,
// and delay readiness by a poll count. Every call is counted so tests
// can assert on read-only guarantees.
package fake

import (
	"context"
	"fmt"
	"sync"

	"github.com/chicago-crimes/crimectl/internal/pipeline"
	"github.com/chicago-crimes/crimectl/internal/provider"
)

var _ provider.Interface = (*Provider)(nil)

type Provider struct {
	name string

	mu       sync.Mutex
	existing map[string]*pipeline.Handle
	polls    map[string]int

	// Scripting knobs. Keys are Kind/LookupKey.
	ReadyAfterPolls map[string]int
	FindErrs        map[string][]error
	CreateErrs      map[string][]error
	ValidateErrs    map[string][]error

	FindCalls     int
	CreateCalls   int
	ReadyCalls    int
	ValidateCalls int

	Settings map[string]string
}

func New() *Provider {
	return &Provider{
		name:            "fake",
		existing:        make(map[string]*pipeline.Handle),
		polls:           make(map[string]int),
		ReadyAfterPolls: make(map[string]int),
		FindErrs:        make(map[string][]error),
		CreateErrs:      make(map[string][]error),
		ValidateErrs:    make(map[string][]error),
	}
}

func (p *Provider) Name() string { return p.name }

// Key returns the lookup key a descriptor maps to inside the fake.
func Key(kind pipeline.Kind, lookupKey string) string {
	return fmt.Sprintf("%s/%s", kind, lookupKey)
}

func descKey(desc *pipeline.Descriptor) string {
	return Key(desc.Kind, desc.LookupKey)
}

// Seed registers a pre-existing resource.
func (p *Provider) Seed(kind pipeline.Kind, lookupKey string, h *pipeline.Handle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.existing[Key(kind, lookupKey)] = h
}

// Handle returns the stored handle for a key, if any.
func (p *Provider) Handle(kind pipeline.Kind, lookupKey string) (*pipeline.Handle, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	h, ok := p.existing[Key(kind, lookupKey)]
	return h, ok
}

func (p *Provider) Configure(ctx context.Context, settings map[string]string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Settings = settings
	return nil
}

func (p *Provider) Find(ctx context.Context, desc *pipeline.Descriptor) (*pipeline.Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.FindCalls++

	key := descKey(desc)
	if err := p.popErr(p.FindErrs, key); err != nil {
		return nil, err
	}
	h, ok := p.existing[key]
	if !ok {
		return nil, pipeline.ErrAbsent
	}
	return h, nil
}

func (p *Provider) Create(ctx context.Context, desc *pipeline.Descriptor) (*pipeline.Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CreateCalls++

	key := descKey(desc)
	if err := p.popErr(p.CreateErrs, key); err != nil {
		return nil, err
	}

	h := &pipeline.Handle{
		Kind:   desc.Kind,
		Name:   desc.Name,
		ID:     fmt.Sprintf("fake-%s", desc.Name),
		Status: pipeline.StatusActive,
	}
	h.SetAttr("name", desc.LookupKey)
	h.SetAttr("arn", fmt.Sprintf("arn:fake:%s", desc.LookupKey))
	// Attributes downstream references consume, deterministic per key.
	for _, attr := range []string{"regional_domain", "root_resource_id", "execute_arn", "uri"} {
		h.SetAttr(attr, fmt.Sprintf("fake-%s-%s", desc.LookupKey, attr))
	}
	if p.ReadyAfterPolls[key] > 0 {
		h.Status = pipeline.StatusPending
	}

	p.existing[key] = h
	return h, nil
}

func (p *Provider) Ready(ctx context.Context, desc *pipeline.Descriptor, h *pipeline.Handle) (*pipeline.Handle, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ReadyCalls++

	key := descKey(desc)
	p.polls[key]++
	if p.polls[key] >= p.ReadyAfterPolls[key] {
		h.Status = pipeline.StatusActive
		return h, true, nil
	}
	return h, false, nil
}

func (p *Provider) Validate(ctx context.Context, desc *pipeline.Descriptor, h *pipeline.Handle) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ValidateCalls++
	return p.popErr(p.ValidateErrs, descKey(desc))
}

// Polls returns how many readiness probes a key has received.
func (p *Provider) Polls(kind pipeline.Kind, lookupKey string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.polls[Key(kind, lookupKey)]
}

func (p *Provider) popErr(queue map[string][]error, key string) error {
	errs := queue[key]
	if len(errs) == 0 {
		return nil
	}
	err := errs[0]
	queue[key] = errs[1:]
	return err
}
