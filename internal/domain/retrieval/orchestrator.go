package retrieval

import (
	"context"
	"errors"
	"fmt"

	"log/slog"

	"github.com/astro-web3/permission-filter/internal/domain/access"
	"github.com/astro-web3/permission-filter/pkg/logger"
)

// Step names a phase of an orchestrated retrieval. A failed request reports
// the step it died in.
type Step string

const (
	StepBaseRetrieval     Step = "base_retrieval"
	StepPermissionFilter  Step = "permission_filter"
	StepPermissionListing Step = "permission_listing"
)

// StepError wraps a failure with the orchestration step that produced it.
// No partial results accompany a StepError.
type StepError struct {
	Step Step
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("retrieval: step %s failed: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Request describes one orchestrated retrieval. The orchestrator owns the
// request's lifecycle end to end and keeps no state across requests.
type Request struct {
	Query        string
	Subject      access.SubjectRef
	Action       string
	ResourceType string

	// Limit caps the number of returned documents. Zero or negative means
	// no truncation.
	Limit int
}

// ErrNoRetrieverConfigured is returned by Retrieve when the orchestrator was
// built without a base retriever. The permission-first path still works.
var ErrNoRetrieverConfigured = errors.New("retrieval: no retriever configured")

// Orchestrator composes a Retriever's ranked output with the access
// service's batch permission filter.
type Orchestrator struct {
	retriever Retriever
	access    access.Service
}

func NewOrchestrator(retriever Retriever, accessService access.Service) *Orchestrator {
	return &Orchestrator{
		retriever: retriever,
		access:    accessService,
	}
}

// Retrieve runs base retrieval, filters the candidates through one batch
// permission call, and truncates to the request limit. Rank order is
// preserved through every step: two calls with identical inputs and
// identical PDP decisions produce identical output order.
func (o *Orchestrator) Retrieve(ctx context.Context, req Request) ([]Document, error) {
	if o.retriever == nil {
		return nil, &StepError{Step: StepBaseRetrieval, Err: ErrNoRetrieverConfigured}
	}

	docs, err := o.retriever.Retrieve(ctx, req.Query)
	if err != nil {
		return nil, &StepError{Step: StepBaseRetrieval, Err: err}
	}

	// A document without an identifier cannot be authorized; it is excluded
	// here rather than treated as an error.
	candidates := make([]Document, 0, len(docs))
	candidateIDs := make([]string, 0, len(docs))
	for _, doc := range docs {
		id, ok := doc.ID()
		if !ok {
			logger.DebugContext(ctx, "dropping document without identifier",
				slog.String("query", req.Query))
			continue
		}
		candidates = append(candidates, doc)
		candidateIDs = append(candidateIDs, id)
	}

	allowedIDs, err := o.access.FilterAllowed(ctx, req.Subject, req.Action, req.ResourceType, candidateIDs)
	if err != nil {
		return nil, &StepError{Step: StepPermissionFilter, Err: err}
	}

	allowed := make(map[string]bool, len(allowedIDs))
	for _, id := range allowedIDs {
		allowed[id] = true
	}

	result := make([]Document, 0, len(allowedIDs))
	for i, doc := range candidates {
		if !allowed[candidateIDs[i]] {
			continue
		}
		result = append(result, doc)
		if req.Limit > 0 && len(result) == req.Limit {
			break
		}
	}

	return result, nil
}

// ListPermitted is the permission-first path: no base retrieval, just the
// resources the subject holds the action on, rendered as placeholder
// documents.
func (o *Orchestrator) ListPermitted(ctx context.Context, req Request) ([]Document, error) {
	ids, err := o.access.ListPermittedResourceIDs(ctx, req.Subject, req.Action, req.ResourceType)
	if err != nil {
		return nil, &StepError{Step: StepPermissionListing, Err: err}
	}

	if req.Limit > 0 && len(ids) > req.Limit {
		ids = ids[:req.Limit]
	}

	docs := make([]Document, 0, len(ids))
	for _, id := range ids {
		docs = append(docs, Document{
			Metadata: map[string]any{
				MetadataIDKey:   id,
				"resource_type": req.ResourceType,
				"permitted":     true,
			},
		})
	}

	return docs, nil
}
