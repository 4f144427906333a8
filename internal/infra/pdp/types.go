package pdp

import "encoding/json"

// User is the canonical subject shape submitted to the policy decision point.
type User struct {
	Key        string         `json:"key"`
	FirstName  string         `json:"first_name,omitempty"`
	LastName   string         `json:"last_name,omitempty"`
	Email      string         `json:"email,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// Resource is the canonical resource shape submitted to the policy decision
// point. Key may be empty for type-level checks.
type Resource struct {
	Type       string         `json:"type"`
	Key        string         `json:"key,omitempty"`
	Tenant     string         `json:"tenant,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// AllowedRequest is a single allow/deny query.
type AllowedRequest struct {
	User     User           `json:"user"`
	Action   string         `json:"action"`
	Resource Resource       `json:"resource"`
	Context  map[string]any `json:"context,omitempty"`
}

// AllowedResponse carries the PDP decision for one query.
type AllowedResponse struct {
	Allow bool `json:"allow"`
}

// BulkAllowedRequest batches several allow/deny queries into one round trip.
type BulkAllowedRequest struct {
	Checks []AllowedRequest `json:"checks"`
}

// BulkAllowedResponse carries one decision per submitted check, in request
// order.
type BulkAllowedResponse struct {
	Allow []AllowedResponse `json:"allow"`
}

// UserPermissionsRequest asks which resources a user may act on.
type UserPermissionsRequest struct {
	User          User     `json:"user"`
	Tenants       []string `json:"tenants,omitempty"`
	ResourceTypes []string `json:"resource_types,omitempty"`
}

// PermittedResource is one permitted resource instance with the actions the
// user holds on it.
type PermittedResource struct {
	ID      string   `json:"id"`
	Actions []string `json:"actions"`
}

// UserPermissionsResponse is left partially raw: the PDP has been observed
// returning both a tenant-keyed mapping (tenant -> resource type -> entries)
// and a flat mapping (resource type -> entries). The access service
// normalizes both shapes.
type UserPermissionsResponse map[string]json.RawMessage
