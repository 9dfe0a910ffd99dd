package pipeline

import "strings"

// Propagator carries handles produced by completed steps to the steps that
// run after them. It lives for exactly one run: single writer (the step
// runner), read-only for everything downstream.
type Propagator struct {
	handles map[string]*Handle
}

func NewPropagator() *Propagator {
	return &Propagator{handles: make(map[string]*Handle)}
}

// Store records the handle a step produced.
func (p *Propagator) Store(step string, h *Handle) {
	p.handles[step] = h
}

// Handle returns the stored handle for a step name.
func (p *Propagator) Handle(step string) (*Handle, bool) {
	h, ok := p.handles[step]
	return h, ok
}

// Require fails unless every named step has a stored, non-Failed handle.
// It never substitutes a default.
func (p *Propagator) Require(dependent string, steps ...string) error {
	for _, s := range steps {
		h, ok := p.handles[s]
		if !ok {
			return &MissingDependencyError{Step: dependent, Requires: s, Reason: "no handle recorded"}
		}
		if h.Status == StatusFailed {
			return &MissingDependencyError{Step: dependent, Requires: s, Reason: "upstream handle is Failed"}
		}
	}
	return nil
}

// Attr returns one typed attribute of an upstream handle.
func (p *Propagator) Attr(dependent, step, attr string) (string, error) {
	if err := p.Require(dependent, step); err != nil {
		return "", err
	}
	v, ok := p.handles[step].Attr(attr)
	if !ok {
		return "", &MissingDependencyError{
			Step:     dependent,
			Requires: step,
			Reason:   "handle has no attribute " + attr,
		}
	}
	return v, nil
}

// Resolve returns a copy of props with every ref://step/attr string replaced
// by the stored attribute value. A reference into a missing or Failed handle
// fails resolution; partially resolved properties are never returned.
func (p *Propagator) Resolve(dependent string, props map[string]any) (map[string]any, error) {
	resolved, err := p.resolveValue(dependent, props)
	if err != nil {
		return nil, err
	}
	return resolved.(map[string]any), nil
}

// UnknownValue marks attribute values that only exist after a real create.
const UnknownValue = "(known after create)"

// ContainsUnknown reports whether a plan-resolved value still carries the
// UnknownValue placeholder. Providers treat such lookups as absent.
func ContainsUnknown(v string) bool {
	return strings.Contains(v, UnknownValue)
}

// ResolveForPlan resolves like Resolve but substitutes UnknownValue for
// references that cannot be satisfied yet, so a dry run can keep walking
// the chain without inventing real values.
func (p *Propagator) ResolveForPlan(props map[string]any) map[string]any {
	return p.resolvePlanValue(props).(map[string]any)
}

func (p *Propagator) resolvePlanValue(val any) any {
	switch v := val.(type) {
	case string:
		step, attr, ok := ParseRef(v)
		if !ok {
			return v
		}
		h, ok := p.handles[step]
		if !ok {
			return UnknownValue
		}
		resolved, ok := h.Attr(attr)
		if !ok {
			return UnknownValue
		}
		return resolved
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = p.resolvePlanValue(item)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = p.resolvePlanValue(item)
		}
		return out
	default:
		return v
	}
}

func (p *Propagator) resolveValue(dependent string, val any) (any, error) {
	switch v := val.(type) {
	case string:
		step, attr, ok := ParseRef(v)
		if !ok {
			return v, nil
		}
		return p.Attr(dependent, step, attr)
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			r, err := p.resolveValue(dependent, item)
			if err != nil {
				return nil, err
			}
			out[k] = r
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			r, err := p.resolveValue(dependent, item)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	default:
		return v, nil
	}
}
