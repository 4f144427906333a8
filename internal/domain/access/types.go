package access

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/astro-web3/permission-filter/internal/infra/pdp"
)

var (
	// ErrInvalidUserShape is raised for a structured user without a key,
	// before any network call.
	ErrInvalidUserShape = errors.New("access: invalid user shape")
	// ErrInvalidResourceShape is raised for a structured resource that has no
	// type after defaulting, before any network call.
	ErrInvalidResourceShape = errors.New("access: invalid resource shape")
)

// SubjectRef identifies the user a permission check is evaluated for. Callers
// may supply a bare key or a structured object; JSON input accepts both
// (`"alice"` and `{"key": "alice", ...}`). The ref is normalized to the
// canonical PDP shape exactly once, at the service boundary.
type SubjectRef struct {
	Key        string         `json:"key"`
	FirstName  string         `json:"first_name,omitempty"`
	LastName   string         `json:"last_name,omitempty"`
	Email      string         `json:"email,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// Subject returns a SubjectRef for a bare user key.
func Subject(key string) SubjectRef {
	return SubjectRef{Key: key}
}

func (s *SubjectRef) UnmarshalJSON(data []byte) error {
	var key string
	if err := json.Unmarshal(data, &key); err == nil {
		*s = SubjectRef{Key: key}
		return nil
	}

	type structured SubjectRef
	var obj structured
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidUserShape, err)
	}
	*s = SubjectRef(obj)
	return nil
}

func (s SubjectRef) validate() error {
	if s.Key == "" {
		return fmt.Errorf("%w: missing key", ErrInvalidUserShape)
	}
	return nil
}

func (s SubjectRef) toPDP() pdp.User {
	return pdp.User{
		Key:        s.Key,
		FirstName:  s.FirstName,
		LastName:   s.LastName,
		Email:      s.Email,
		Attributes: s.Attributes,
	}
}

// ResourceRef identifies the object being accessed. A bare key is accepted
// and resolved against the service's default resource type, so `"doc123"` is
// equivalent to `{"type": "document", "key": "doc123"}` under the default.
type ResourceRef struct {
	Type       string         `json:"type,omitempty"`
	Key        string         `json:"key,omitempty"`
	Tenant     string         `json:"tenant,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// Resource returns a ResourceRef for a bare resource key.
func Resource(key string) ResourceRef {
	return ResourceRef{Key: key}
}

func (r *ResourceRef) UnmarshalJSON(data []byte) error {
	var key string
	if err := json.Unmarshal(data, &key); err == nil {
		*r = ResourceRef{Key: key}
		return nil
	}

	type structured ResourceRef
	var obj structured
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidResourceShape, err)
	}
	*r = ResourceRef(obj)
	return nil
}

// normalize applies the default type and validates the result.
func (r ResourceRef) normalize(defaultType string) (ResourceRef, error) {
	if r.Type == "" {
		r.Type = defaultType
	}
	if r.Type == "" {
		return r, fmt.Errorf("%w: missing type", ErrInvalidResourceShape)
	}
	return r, nil
}

func (r ResourceRef) toPDP() pdp.Resource {
	return pdp.Resource{
		Type:       r.Type,
		Key:        r.Key,
		Tenant:     r.Tenant,
		Attributes: r.Attributes,
	}
}
