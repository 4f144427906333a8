package pdp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	httpclient "github.com/astro-web3/permission-filter/pkg/http"
)

var (
	// ErrServiceUnavailable wraps transport and server-side failures talking
	// to the policy decision point. Callers decide retry policy; the client
	// never retries on its own.
	ErrServiceUnavailable = errors.New("pdp: authorization service unavailable")
	// ErrTimeout is returned when a call exceeds the client's configured
	// deadline, kept distinct from other unavailability.
	ErrTimeout = errors.New("pdp: authorization service timed out")
)

// Client is the raw RPC envelope over the policy decision point. Instances
// hold no per-request state and are safe to share across requests.
type Client interface {
	Allowed(ctx context.Context, req *AllowedRequest) (*AllowedResponse, error)
	BulkAllowed(ctx context.Context, req *BulkAllowedRequest) (*BulkAllowedResponse, error)
	UserPermissions(ctx context.Context, req *UserPermissionsRequest) (UserPermissionsResponse, error)
}

type pdpClient struct {
	baseURL string
	apiKey  string
	timeout time.Duration
}

func NewClient(baseURL, apiKey string, timeout time.Duration) Client {
	baseURL = strings.TrimSuffix(baseURL, "/")
	return &pdpClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		timeout: timeout,
	}
}

func (c *pdpClient) Allowed(ctx context.Context, req *AllowedRequest) (*AllowedResponse, error) {
	var result AllowedResponse
	if err := c.post(ctx, "/allowed", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *pdpClient) BulkAllowed(ctx context.Context, req *BulkAllowedRequest) (*BulkAllowedResponse, error) {
	var result BulkAllowedResponse
	if err := c.post(ctx, "/allowed/bulk", req, &result); err != nil {
		return nil, err
	}
	if len(result.Allow) != len(req.Checks) {
		return nil, fmt.Errorf(
			"pdp: bulk response size mismatch: sent %d checks, got %d decisions",
			len(req.Checks), len(result.Allow),
		)
	}
	return &result, nil
}

func (c *pdpClient) UserPermissions(ctx context.Context, req *UserPermissionsRequest) (UserPermissionsResponse, error) {
	var result UserPermissionsResponse
	if err := c.post(ctx, "/user-permissions", req, &result); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *pdpClient) post(ctx context.Context, path string, body, result any) error {
	ctx, cancel := httpclient.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := httpclient.Post(
		ctx,
		c.baseURL+path,
		httpclient.WithAuthToken(c.apiKey),
		httpclient.WithBody(body),
		httpclient.WithResult(result),
	)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %s: %w", ErrTimeout, path, err)
		}
		return fmt.Errorf("%w: %s: %w", ErrServiceUnavailable, path, err)
	}

	if resp.StatusCode() >= http.StatusInternalServerError {
		return fmt.Errorf(
			"%w: %s returned status %d: %s",
			ErrServiceUnavailable, path, resp.StatusCode(), string(resp.Body()),
		)
	}

	if resp.IsError() {
		return fmt.Errorf(
			"pdp: %s failed with status %d: %s",
			path, resp.StatusCode(), string(resp.Body()),
		)
	}

	return nil
}
