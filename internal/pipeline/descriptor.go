package pipeline

import "strings"

// Kind identifies the class of cloud resource a descriptor provisions.
type Kind string

const (
	KindObjectStore       Kind = "ObjectStore"
	KindObjectStorePolicy Kind = "ObjectStorePolicy"
	KindCDNDistribution   Kind = "CDNDistribution"
	KindAPIGateway        Kind = "APIGateway"
	KindAPIRoute          Kind = "APIRoute"
	KindTable             Kind = "Table"
	KindImageRegistry     Kind = "ImageRegistry"
	KindContainerImage    Kind = "ContainerImage"
	KindRole              Kind = "Role"
	KindEmailIdentity     Kind = "EmailIdentity"
	KindFunction          Kind = "Function"
)

// Descriptor declares one desired resource. It is immutable once built;
// the runner resolves references into a copy before handing it to a provider.
type Descriptor struct {
	Kind       Kind           `json:"kind"`
	Name       string         `json:"name"` // logical name, unique per pipeline
	Provider   string         `json:"provider"`
	LookupKey  string         `json:"lookupKey"` // provider-side key a probe matches on
	Properties map[string]any `json:"properties"`
}

// WithProperties returns a copy of d carrying props instead of the original
// property map.
func (d *Descriptor) WithProperties(props map[string]any) *Descriptor {
	c := *d
	c.Properties = props
	return &c
}

const refPrefix = "ref://"

// Ref builds a reference to an attribute of an earlier step's handle,
// e.g. Ref("site-cdn", "id") -> "ref://site-cdn/id".
func Ref(step, attr string) string {
	return refPrefix + step + "/" + attr
}

// ParseRef splits a ref://step/attr reference into its parts.
func ParseRef(ref string) (step, attr string, ok bool) {
	if !strings.HasPrefix(ref, refPrefix) {
		return "", "", false
	}
	parts := strings.SplitN(ref[len(refPrefix):], "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// ExtractRefs collects every ref:// string nested anywhere in v.
func ExtractRefs(v any) []string {
	var refs []string
	switch val := v.(type) {
	case string:
		if strings.HasPrefix(val, refPrefix) {
			refs = append(refs, val)
		}
	case map[string]any:
		for _, v := range val {
			refs = append(refs, ExtractRefs(v)...)
		}
	case []any:
		for _, v := range val {
			refs = append(refs, ExtractRefs(v)...)
		}
	}
	return refs
}

var secretKeyMarkers = []string{"secret", "password", "token", "credential", "authorization"}

// RedactProperties returns a copy of props safe for logging: values whose
// keys look like secrets are masked, nested maps are walked.
func RedactProperties(props map[string]any) map[string]any {
	if props == nil {
		return nil
	}
	out := make(map[string]any, len(props))
	for k, v := range props {
		if isSecretKey(k) {
			out[k] = "(redacted)"
			continue
		}
		if nested, ok := v.(map[string]any); ok {
			out[k] = RedactProperties(nested)
			continue
		}
		out[k] = v
	}
	return out
}

func isSecretKey(k string) bool {
	lower := strings.ToLower(k)
	for _, marker := range secretKeyMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
