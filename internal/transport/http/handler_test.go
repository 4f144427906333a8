package http_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	retrievalapp "github.com/astro-web3/permission-filter/internal/app/retrieval"
	"github.com/astro-web3/permission-filter/internal/app/tools"
	"github.com/astro-web3/permission-filter/internal/domain/access"
	"github.com/astro-web3/permission-filter/internal/domain/retrieval"
	"github.com/astro-web3/permission-filter/internal/domain/token"
	"github.com/astro-web3/permission-filter/internal/infra/pdp"
	transporthttp "github.com/astro-web3/permission-filter/internal/transport/http"
	"github.com/gin-gonic/gin"
)

type mockToolsService struct {
	validateTokenFunc   func(ctx context.Context, req tools.ValidateTokenRequest) (*token.Claims, error)
	checkPermissionFunc func(ctx context.Context, req tools.CheckPermissionRequest) (bool, error)
}

func (m *mockToolsService) ValidateToken(ctx context.Context, req tools.ValidateTokenRequest) (*token.Claims, error) {
	return m.validateTokenFunc(ctx, req)
}

func (m *mockToolsService) CheckPermission(ctx context.Context, req tools.CheckPermissionRequest) (bool, error) {
	return m.checkPermissionFunc(ctx, req)
}

type mockQueryService struct {
	queryFunc         func(ctx context.Context, req retrievalapp.QueryRequest) ([]retrieval.Document, error)
	listPermittedFunc func(ctx context.Context, req retrievalapp.QueryRequest) ([]retrieval.Document, error)
}

func (m *mockQueryService) Query(ctx context.Context, req retrievalapp.QueryRequest) ([]retrieval.Document, error) {
	return m.queryFunc(ctx, req)
}

func (m *mockQueryService) ListPermitted(ctx context.Context, req retrievalapp.QueryRequest) ([]retrieval.Document, error) {
	return m.listPermittedFunc(ctx, req)
}

func newTestRouter(toolsSvc tools.Service, querySvc retrievalapp.QueryService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	handler := transporthttp.NewHandler(toolsSvc, querySvc)

	router := gin.New()
	v1 := router.Group("/v1")
	v1.POST("/tokens/validate", handler.ValidateToken)
	v1.POST("/permissions/check", handler.CheckPermission)
	v1.POST("/documents/query", handler.Query)
	v1.POST("/documents/permitted", handler.ListPermitted)
	return router
}

func doJSON(t *testing.T, router *gin.Engine, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandler_ValidateToken(t *testing.T) {
	toolsSvc := &mockToolsService{
		validateTokenFunc: func(_ context.Context, req tools.ValidateTokenRequest) (*token.Claims, error) {
			if req.JWTToken != "signed-token" {
				t.Errorf("unexpected token %q", req.JWTToken)
			}
			return &token.Claims{
				Subject: "user-123",
				Raw:     map[string]any{"sub": "user-123", "email": "a@example.com"},
			}, nil
		},
	}
	router := newTestRouter(toolsSvc, &mockQueryService{})

	rec := doJSON(t, router, "/v1/tokens/validate", `{"jwt_token": "signed-token"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Claims map[string]any `json:"claims"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Claims["sub"] != "user-123" {
		t.Errorf("expected raw claims in body, got %v", resp.Claims)
	}
}

func TestHandler_ValidateToken_ErrorStatuses(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{name: "missing token", err: tools.ErrMissingToken, wantStatus: http.StatusBadRequest},
		{name: "expired", err: token.ErrTokenExpired, wantStatus: http.StatusUnauthorized},
		{name: "unknown key", err: token.ErrKeyNotFound, wantStatus: http.StatusUnauthorized},
		{name: "malformed", err: token.ErrMalformedToken, wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			toolsSvc := &mockToolsService{
				validateTokenFunc: func(context.Context, tools.ValidateTokenRequest) (*token.Claims, error) {
					return nil, tt.err
				},
			}
			router := newTestRouter(toolsSvc, &mockQueryService{})

			rec := doJSON(t, router, "/v1/tokens/validate", `{"jwt_token": "x"}`)
			if rec.Code != tt.wantStatus {
				t.Errorf("expected %d, got %d: %s", tt.wantStatus, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestHandler_ValidateToken_MalformedBody(t *testing.T) {
	router := newTestRouter(&mockToolsService{}, &mockQueryService{})

	rec := doJSON(t, router, "/v1/tokens/validate", `{not json`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestHandler_CheckPermission(t *testing.T) {
	toolsSvc := &mockToolsService{
		checkPermissionFunc: func(_ context.Context, req tools.CheckPermissionRequest) (bool, error) {
			if req.User.Key != "alice" || req.Resource.Key != "doc-1" {
				t.Errorf("unexpected request: %+v", req)
			}
			return true, nil
		},
	}
	router := newTestRouter(toolsSvc, &mockQueryService{})

	rec := doJSON(t, router, "/v1/permissions/check", `{"user": "alice", "action": "view", "resource": "doc-1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Allow bool `json:"allow"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if !resp.Allow {
		t.Error("expected allow in body")
	}
}

func TestHandler_CheckPermission_ErrorStatuses(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{name: "invalid user shape", err: access.ErrInvalidUserShape, wantStatus: http.StatusBadRequest},
		{name: "invalid resource shape", err: access.ErrInvalidResourceShape, wantStatus: http.StatusBadRequest},
		{name: "missing action", err: tools.ErrMissingAction, wantStatus: http.StatusBadRequest},
		{name: "pdp unavailable", err: pdp.ErrServiceUnavailable, wantStatus: http.StatusBadGateway},
		{name: "pdp timeout", err: pdp.ErrTimeout, wantStatus: http.StatusGatewayTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			toolsSvc := &mockToolsService{
				checkPermissionFunc: func(context.Context, tools.CheckPermissionRequest) (bool, error) {
					return false, tt.err
				},
			}
			router := newTestRouter(toolsSvc, &mockQueryService{})

			rec := doJSON(t, router, "/v1/permissions/check", `{"user": "alice", "action": "view", "resource": "doc-1"}`)
			if rec.Code != tt.wantStatus {
				t.Errorf("expected %d, got %d: %s", tt.wantStatus, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestHandler_Query(t *testing.T) {
	querySvc := &mockQueryService{
		queryFunc: func(_ context.Context, req retrievalapp.QueryRequest) ([]retrieval.Document, error) {
			if req.Query != "quarterly report" || req.User.Key != "alice" {
				t.Errorf("unexpected request: %+v", req)
			}
			return []retrieval.Document{
				{Content: "alpha", Metadata: map[string]any{"id": "doc-1"}},
				{Content: "bravo", Metadata: map[string]any{"id": "doc-2"}},
			}, nil
		},
	}
	router := newTestRouter(&mockToolsService{}, querySvc)

	rec := doJSON(t, router, "/v1/documents/query", `{"query": "quarterly report", "user": "alice", "action": "view"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Documents []struct {
			Content  string         `json:"content"`
			Metadata map[string]any `json:"metadata"`
		} `json:"documents"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(resp.Documents) != 2 || resp.Documents[0].Content != "alpha" {
		t.Errorf("unexpected documents: %+v", resp.Documents)
	}
	if resp.Documents[1].Metadata["id"] != "doc-2" {
		t.Errorf("expected metadata to round-trip, got %v", resp.Documents[1].Metadata)
	}
}

func TestHandler_Query_StepErrorsMapToStatuses(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{
			name:       "no retriever configured",
			err:        &retrieval.StepError{Step: retrieval.StepBaseRetrieval, Err: retrieval.ErrNoRetrieverConfigured},
			wantStatus: http.StatusNotImplemented,
		},
		{
			name:       "pdp unavailable during filter",
			err:        &retrieval.StepError{Step: retrieval.StepPermissionFilter, Err: pdp.ErrServiceUnavailable},
			wantStatus: http.StatusBadGateway,
		},
		{
			name:       "opaque retriever failure",
			err:        &retrieval.StepError{Step: retrieval.StepBaseRetrieval, Err: context.DeadlineExceeded},
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			querySvc := &mockQueryService{
				queryFunc: func(context.Context, retrievalapp.QueryRequest) ([]retrieval.Document, error) {
					return nil, tt.err
				},
			}
			router := newTestRouter(&mockToolsService{}, querySvc)

			rec := doJSON(t, router, "/v1/documents/query", `{"query": "q", "user": "alice", "action": "view"}`)
			if rec.Code != tt.wantStatus {
				t.Errorf("expected %d, got %d: %s", tt.wantStatus, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestHandler_ListPermitted(t *testing.T) {
	querySvc := &mockQueryService{
		listPermittedFunc: func(_ context.Context, req retrievalapp.QueryRequest) ([]retrieval.Document, error) {
			if req.User.Key != "alice" || req.Action != "view" {
				t.Errorf("unexpected request: %+v", req)
			}
			return []retrieval.Document{
				{Metadata: map[string]any{"id": "doc-1", "permitted": true}},
			}, nil
		},
	}
	router := newTestRouter(&mockToolsService{}, querySvc)

	rec := doJSON(t, router, "/v1/documents/permitted", `{"user": "alice", "action": "view"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Documents []struct {
			Metadata map[string]any `json:"metadata"`
		} `json:"documents"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(resp.Documents) != 1 || resp.Documents[0].Metadata["id"] != "doc-1" {
		t.Errorf("unexpected documents: %+v", resp.Documents)
	}
}
