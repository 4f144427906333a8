package tools

import (
	"context"
	"errors"

	"github.com/astro-web3/permission-filter/internal/domain/access"
	"github.com/astro-web3/permission-filter/internal/domain/token"
	"github.com/astro-web3/permission-filter/pkg/tracer"
	"go.opentelemetry.io/otel/attribute"
)

var (
	ErrMissingToken  = errors.New("tools: jwt_token is required")
	ErrMissingAction = errors.New("tools: action is required")
)

// ValidateTokenRequest carries a signed identity token to validate.
type ValidateTokenRequest struct {
	JWTToken string `json:"jwt_token"`
}

// CheckPermissionRequest carries one permission query. User and Resource
// accept either a bare string identifier or a structured object.
type CheckPermissionRequest struct {
	User     access.SubjectRef  `json:"user"`
	Action   string             `json:"action"`
	Resource access.ResourceRef `json:"resource"`
	Context  map[string]any     `json:"context,omitempty"`
}

// Service exposes token validation and permission checking as discrete
// invocable operations with input validation. All methods are ctx-aware and
// safe for concurrent use; lifecycle is owned by the caller.
type Service interface {
	ValidateToken(ctx context.Context, req ValidateTokenRequest) (*token.Claims, error)
	CheckPermission(ctx context.Context, req CheckPermissionRequest) (bool, error)
}

type service struct {
	verifier      *token.Verifier
	accessService access.Service
}

func NewService(verifier *token.Verifier, accessService access.Service) Service {
	return &service{
		verifier:      verifier,
		accessService: accessService,
	}
}

func (s *service) ValidateToken(ctx context.Context, req ValidateTokenRequest) (*token.Claims, error) {
	ctx, span := tracer.Start(ctx, "app.tools.ValidateToken")
	defer span.End()

	if req.JWTToken == "" {
		return nil, ErrMissingToken
	}

	claims, err := s.verifier.Verify(ctx, req.JWTToken)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(attribute.Bool("token.valid", true))
	return claims, nil
}

func (s *service) CheckPermission(ctx context.Context, req CheckPermissionRequest) (bool, error) {
	ctx, span := tracer.Start(ctx, "app.tools.CheckPermission")
	defer span.End()

	if req.Action == "" {
		return false, ErrMissingAction
	}

	span.SetAttributes(
		attribute.String("permission.action", req.Action),
		attribute.String("permission.resource_type", req.Resource.Type),
	)

	allowed, err := s.accessService.Check(ctx, req.User, req.Action, req.Resource, req.Context)
	if err != nil {
		span.RecordError(err)
		return false, err
	}

	span.SetAttributes(attribute.Bool("permission.allowed", allowed))
	return allowed, nil
}
