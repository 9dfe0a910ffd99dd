package pipeline

// Status describes how far a provisioned resource has progressed.
type Status string

const (
	StatusPending Status = "Pending"
	StatusActive  Status = "Active"
	StatusFailed  Status = "Failed"
)

// Handle records the identity of a resource as the provider reported it.
// Probes and provisioners both produce handles; later steps consume them
// through the propagator.
type Handle struct {
	Kind       Kind              `json:"kind"`
	Name       string            `json:"name"` // logical name, mirrors the descriptor
	ID         string            `json:"id"`   // provider identifier: ARN, ID or URI
	Status     Status            `json:"status"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Warnings   []string          `json:"warnings,omitempty"`
}

// Attr returns a named attribute. The handle ID and logical name are
// addressable as "id" and "name" even when absent from the attribute map.
func (h *Handle) Attr(name string) (string, bool) {
	if v, ok := h.Attributes[name]; ok {
		return v, true
	}
	switch name {
	case "id":
		return h.ID, h.ID != ""
	case "name":
		return h.Name, h.Name != ""
	}
	return "", false
}

// SetAttr stores one attribute, allocating the map on first use.
func (h *Handle) SetAttr(name, value string) {
	if h.Attributes == nil {
		h.Attributes = make(map[string]string)
	}
	h.Attributes[name] = value
}

// AddWarning attaches a non-fatal annotation, e.g. a readiness timeout.
func (h *Handle) AddWarning(msg string) {
	h.Warnings = append(h.Warnings, msg)
}

// IsAbsentSentinel reports whether a provider response value means "no such
// resource". Some control-plane tools print a placeholder string instead of
// an empty result, and that placeholder must never be mistaken for an
// identifier.
func IsAbsentSentinel(v string) bool {
	switch v {
	case "", "None", "none", "null":
		return true
	}
	return false
}
