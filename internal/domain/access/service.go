package access

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/astro-web3/permission-filter/internal/infra/pdp"
)

// Service answers permission questions against the policy decision point.
// Implementations hold no per-request state and may be shared across
// concurrent requests.
type Service interface {
	// Check reports whether subject may perform action on resource.
	// QueryContext carries free-form key/value data for attribute- and
	// relationship-based rules.
	Check(ctx context.Context, subject SubjectRef, action string, resource ResourceRef, queryContext map[string]any) (bool, error)

	// ListPermittedResourceIDs returns the ids of every resource of
	// resourceType on which subject holds action. Output order is
	// deterministic but not meaningful.
	ListPermittedResourceIDs(ctx context.Context, subject SubjectRef, action, resourceType string) ([]string, error)

	// FilterAllowed returns the subset of candidateIDs that subject may
	// perform action on, preserving the relative order of candidateIDs.
	// The whole candidate list goes to the PDP in one batch call.
	FilterAllowed(ctx context.Context, subject SubjectRef, action, resourceType string, candidateIDs []string) ([]string, error)
}

type service struct {
	client              pdp.Client
	defaultResourceType string
}

func NewService(client pdp.Client, defaultResourceType string) Service {
	return &service{
		client:              client,
		defaultResourceType: defaultResourceType,
	}
}

func (s *service) Check(
	ctx context.Context,
	subject SubjectRef,
	action string,
	resource ResourceRef,
	queryContext map[string]any,
) (bool, error) {
	if err := subject.validate(); err != nil {
		return false, err
	}
	resource, err := resource.normalize(s.defaultResourceType)
	if err != nil {
		return false, err
	}

	resp, err := s.client.Allowed(ctx, &pdp.AllowedRequest{
		User:     subject.toPDP(),
		Action:   action,
		Resource: resource.toPDP(),
		Context:  queryContext,
	})
	if err != nil {
		return false, fmt.Errorf("access: check failed: %w", err)
	}

	return resp.Allow, nil
}

func (s *service) ListPermittedResourceIDs(
	ctx context.Context,
	subject SubjectRef,
	action, resourceType string,
) ([]string, error) {
	if err := subject.validate(); err != nil {
		return nil, err
	}
	if resourceType == "" {
		resourceType = s.defaultResourceType
	}

	resp, err := s.client.UserPermissions(ctx, &pdp.UserPermissionsRequest{
		User:          subject.toPDP(),
		ResourceTypes: []string{resourceType},
	})
	if err != nil {
		return nil, fmt.Errorf("access: user permissions query failed: %w", err)
	}

	return collectPermittedIDs(resp, resourceType, action), nil
}

func (s *service) FilterAllowed(
	ctx context.Context,
	subject SubjectRef,
	action, resourceType string,
	candidateIDs []string,
) ([]string, error) {
	if err := subject.validate(); err != nil {
		return nil, err
	}
	if resourceType == "" {
		resourceType = s.defaultResourceType
	}
	if len(candidateIDs) == 0 {
		return nil, nil
	}

	user := subject.toPDP()
	checks := make([]pdp.AllowedRequest, 0, len(candidateIDs))
	for _, id := range candidateIDs {
		checks = append(checks, pdp.AllowedRequest{
			User:   user,
			Action: action,
			Resource: pdp.Resource{
				Type: resourceType,
				Key:  id,
			},
		})
	}

	resp, err := s.client.BulkAllowed(ctx, &pdp.BulkAllowedRequest{Checks: checks})
	if err != nil {
		return nil, fmt.Errorf("access: bulk filter failed: %w", err)
	}

	// Stable filter: decisions come back in request order, so the output
	// keeps the candidates' relative order with no re-sort.
	allowed := make([]string, 0, len(candidateIDs))
	for i, decision := range resp.Allow {
		if decision.Allow {
			allowed = append(allowed, candidateIDs[i])
		}
	}

	return allowed, nil
}

// collectPermittedIDs normalizes the two observed user-permissions response
// shapes: tenant-keyed (tenant -> resource type -> entries) and flat
// (resource type -> entries). Only ids whose entry lists the requested action
// survive. Top-level keys are walked in sorted order so output is
// deterministic.
func collectPermittedIDs(resp pdp.UserPermissionsResponse, resourceType, action string) []string {
	keys := make([]string, 0, len(resp))
	for key := range resp {
		keys = append(keys, key)
	}
	slices.Sort(keys)

	var ids []string
	for _, key := range keys {
		raw := resp[key]

		if key == resourceType {
			var entries []pdp.PermittedResource
			if err := json.Unmarshal(raw, &entries); err == nil {
				ids = appendActionable(ids, entries, action)
				continue
			}
		}

		var byType map[string][]pdp.PermittedResource
		if err := json.Unmarshal(raw, &byType); err == nil {
			ids = appendActionable(ids, byType[resourceType], action)
		}
	}

	return ids
}

func appendActionable(ids []string, entries []pdp.PermittedResource, action string) []string {
	for _, entry := range entries {
		if slices.Contains(entry.Actions, action) {
			ids = append(ids, entry.ID)
		}
	}
	return ids
}
