package retrieval_test

import (
	"context"
	"testing"

	retrievalapp "github.com/astro-web3/permission-filter/internal/app/retrieval"
	"github.com/astro-web3/permission-filter/internal/domain/access"
	"github.com/astro-web3/permission-filter/internal/domain/retrieval"
)

type recordingAccess struct {
	listArgs   []string
	filterArgs []string
}

func (r *recordingAccess) Check(context.Context, access.SubjectRef, string, access.ResourceRef, map[string]any) (bool, error) {
	panic("unexpected Check call")
}

func (r *recordingAccess) ListPermittedResourceIDs(_ context.Context, _ access.SubjectRef, action, resourceType string) ([]string, error) {
	r.listArgs = []string{action, resourceType}
	return []string{"doc-1", "doc-2", "doc-3", "doc-4"}, nil
}

func (r *recordingAccess) FilterAllowed(_ context.Context, _ access.SubjectRef, action, resourceType string, candidateIDs []string) ([]string, error) {
	r.filterArgs = []string{action, resourceType}
	return candidateIDs, nil
}

type staticRetriever struct {
	docs []retrieval.Document
}

func (s *staticRetriever) Retrieve(context.Context, string) ([]retrieval.Document, error) {
	return s.docs, nil
}

func TestQueryService_Query_FillsDefaults(t *testing.T) {
	acc := &recordingAccess{}
	retriever := &staticRetriever{docs: []retrieval.Document{
		{Content: "a", Metadata: map[string]any{"id": "doc-1"}},
		{Content: "b", Metadata: map[string]any{"id": "doc-2"}},
		{Content: "c", Metadata: map[string]any{"id": "doc-3"}},
		{Content: "d", Metadata: map[string]any{"id": "doc-4"}},
	}}
	orch := retrieval.NewOrchestrator(retriever, acc)
	svc := retrievalapp.NewQueryService(orch, 3, "document")

	docs, err := svc.Query(context.Background(), retrievalapp.QueryRequest{
		Query:  "q",
		User:   access.Subject("alice"),
		Action: "view",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(docs) != 3 {
		t.Errorf("expected default limit 3 applied, got %d documents", len(docs))
	}
	if acc.filterArgs[1] != "document" {
		t.Errorf("expected default resource type, got %q", acc.filterArgs[1])
	}
}

func TestQueryService_Query_ExplicitValuesWin(t *testing.T) {
	acc := &recordingAccess{}
	retriever := &staticRetriever{docs: []retrieval.Document{
		{Content: "a", Metadata: map[string]any{"id": "doc-1"}},
		{Content: "b", Metadata: map[string]any{"id": "doc-2"}},
	}}
	orch := retrieval.NewOrchestrator(retriever, acc)
	svc := retrievalapp.NewQueryService(orch, 3, "document")

	docs, err := svc.Query(context.Background(), retrievalapp.QueryRequest{
		Query:        "q",
		User:         access.Subject("alice"),
		Action:       "view",
		ResourceType: "folder",
		Limit:        1,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(docs) != 1 {
		t.Errorf("expected explicit limit 1, got %d documents", len(docs))
	}
	if acc.filterArgs[1] != "folder" {
		t.Errorf("expected explicit resource type, got %q", acc.filterArgs[1])
	}
}

func TestQueryService_ListPermitted_FillsDefaults(t *testing.T) {
	acc := &recordingAccess{}
	orch := retrieval.NewOrchestrator(nil, acc)
	svc := retrievalapp.NewQueryService(orch, 3, "document")

	docs, err := svc.ListPermitted(context.Background(), retrievalapp.QueryRequest{
		User:   access.Subject("alice"),
		Action: "view",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(docs) != 3 {
		t.Errorf("expected default limit 3 applied, got %d documents", len(docs))
	}
	if acc.listArgs[1] != "document" {
		t.Errorf("expected default resource type, got %q", acc.listArgs[1])
	}
}
