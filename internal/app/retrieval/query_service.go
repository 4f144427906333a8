package retrieval

import (
	"context"

	"github.com/astro-web3/permission-filter/internal/domain/access"
	retrievaldomain "github.com/astro-web3/permission-filter/internal/domain/retrieval"
	"github.com/astro-web3/permission-filter/pkg/tracer"
	"go.opentelemetry.io/otel/attribute"
)

// QueryRequest is the transport-facing shape of one retrieval query.
type QueryRequest struct {
	Query        string             `json:"query"`
	User         access.SubjectRef  `json:"user"`
	Action       string             `json:"action"`
	ResourceType string             `json:"resource_type,omitempty"`
	Limit        int                `json:"limit,omitempty"`
}

// QueryService fronts the retrieval orchestrator, filling configured
// defaults and adding spans.
type QueryService interface {
	Query(ctx context.Context, req QueryRequest) ([]retrievaldomain.Document, error)
	ListPermitted(ctx context.Context, req QueryRequest) ([]retrievaldomain.Document, error)
}

type queryService struct {
	orchestrator        *retrievaldomain.Orchestrator
	defaultLimit        int
	defaultResourceType string
}

func NewQueryService(
	orchestrator *retrievaldomain.Orchestrator,
	defaultLimit int,
	defaultResourceType string,
) QueryService {
	return &queryService{
		orchestrator:        orchestrator,
		defaultLimit:        defaultLimit,
		defaultResourceType: defaultResourceType,
	}
}

func (s *queryService) Query(ctx context.Context, req QueryRequest) ([]retrievaldomain.Document, error) {
	ctx, span := tracer.Start(ctx, "app.retrieval.Query")
	defer span.End()

	domainReq := s.toDomain(req)
	span.SetAttributes(
		attribute.String("retrieval.action", domainReq.Action),
		attribute.String("retrieval.resource_type", domainReq.ResourceType),
		attribute.Int("retrieval.limit", domainReq.Limit),
	)

	docs, err := s.orchestrator.Retrieve(ctx, domainReq)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(attribute.Int("retrieval.result_count", len(docs)))
	return docs, nil
}

func (s *queryService) ListPermitted(ctx context.Context, req QueryRequest) ([]retrievaldomain.Document, error) {
	ctx, span := tracer.Start(ctx, "app.retrieval.ListPermitted")
	defer span.End()

	domainReq := s.toDomain(req)
	docs, err := s.orchestrator.ListPermitted(ctx, domainReq)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(attribute.Int("retrieval.result_count", len(docs)))
	return docs, nil
}

func (s *queryService) toDomain(req QueryRequest) retrievaldomain.Request {
	limit := req.Limit
	if limit <= 0 {
		limit = s.defaultLimit
	}
	resourceType := req.ResourceType
	if resourceType == "" {
		resourceType = s.defaultResourceType
	}
	return retrievaldomain.Request{
		Query:        req.Query,
		Subject:      req.User,
		Action:       req.Action,
		ResourceType: resourceType,
		Limit:        limit,
	}
}
