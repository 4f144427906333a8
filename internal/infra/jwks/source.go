package jwks

import (
	"context"
	"errors"
	"fmt"
	"os"

	httpclient "github.com/astro-web3/permission-filter/pkg/http"
)

var (
	// ErrSourceUnreachable wraps network and HTTP failures fetching a key set.
	ErrSourceUnreachable = errors.New("jwks: key source unreachable")
	// ErrNoSourceConfigured is returned when neither a URL nor an inline key
	// set is available.
	ErrNoSourceConfigured = errors.New("jwks: no key source configured")
)

const envJWKSURL = "PERMIT_JWKS_URL"

// Source resolves the current key set.
type Source interface {
	Resolve(ctx context.Context) (*KeySet, error)
}

type urlSource struct {
	url string
}

// NewURLSource returns a Source that fetches the key set from a JWKS endpoint
// on every call. Wrap it in a CachingSource to avoid redundant fetches.
func NewURLSource(url string) Source {
	return &urlSource{url: url}
}

func (s *urlSource) Resolve(ctx context.Context) (*KeySet, error) {
	var keySet KeySet
	resp, err := httpclient.Get(ctx, s.url, httpclient.WithResult(&keySet))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceUnreachable, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: status %d from %s", ErrSourceUnreachable, resp.StatusCode(), s.url)
	}
	return &keySet, nil
}

type staticSource struct {
	keySet *KeySet
}

// NewStaticSource returns a Source backed by an inline key set. No network
// calls are made.
func NewStaticSource(keySet *KeySet) Source {
	return &staticSource{keySet: keySet}
}

func (s *staticSource) Resolve(_ context.Context) (*KeySet, error) {
	return s.keySet, nil
}

// NewSourceFromConfig resolves a Source from an explicit URL, an inline key
// set, or the PERMIT_JWKS_URL environment default, in that order.
func NewSourceFromConfig(url string, inline *KeySet) (Source, error) {
	if url != "" {
		return NewURLSource(url), nil
	}
	if inline != nil {
		return NewStaticSource(inline), nil
	}
	if envURL := os.Getenv(envJWKSURL); envURL != "" {
		return NewURLSource(envURL), nil
	}
	return nil, ErrNoSourceConfigured
}
