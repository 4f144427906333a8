package retrieval

import "context"

// MetadataIDKey is the metadata field correlating a document with the
// resource id submitted to the permission filter.
const MetadataIDKey = "id"

// Document is an opaque content payload plus metadata. The metadata must
// carry a stable identifier under MetadataIDKey for the document to be
// authorizable.
type Document struct {
	Content  string
	Metadata map[string]any
}

// ID returns the document's stable identifier, or false when the document
// carries none.
func (d Document) ID() (string, bool) {
	id, ok := d.Metadata[MetadataIDKey].(string)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

// Retriever produces ranked documents for a query. The underlying search
// mechanism is an external collaborator; this package only depends on the
// ranked output.
type Retriever interface {
	Retrieve(ctx context.Context, query string) ([]Document, error)
}

// EnsembleRetriever merges the ranked outputs of several retrievers into one
// ranked list: results interleave by rank position and the first occurrence
// of an id wins. It satisfies Retriever, so an orchestrator sits over an
// ensemble exactly like over a single retriever.
type EnsembleRetriever struct {
	retrievers []Retriever
}

func NewEnsembleRetriever(retrievers ...Retriever) *EnsembleRetriever {
	return &EnsembleRetriever{retrievers: retrievers}
}

func (e *EnsembleRetriever) Retrieve(ctx context.Context, query string) ([]Document, error) {
	ranked := make([][]Document, 0, len(e.retrievers))
	maxLen := 0
	for _, r := range e.retrievers {
		docs, err := r.Retrieve(ctx, query)
		if err != nil {
			return nil, err
		}
		ranked = append(ranked, docs)
		if len(docs) > maxLen {
			maxLen = len(docs)
		}
	}

	seen := make(map[string]bool)
	var merged []Document
	for rank := 0; rank < maxLen; rank++ {
		for _, docs := range ranked {
			if rank >= len(docs) {
				continue
			}
			doc := docs[rank]
			if id, ok := doc.ID(); ok {
				if seen[id] {
					continue
				}
				seen[id] = true
			}
			merged = append(merged, doc)
		}
	}

	return merged, nil
}

var _ Retriever = (*EnsembleRetriever)(nil)
