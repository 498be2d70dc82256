// Package cluster talks to the object storage cluster the gateway fronts:
// creating and deleting storage accounts for auth accounts and reading
// container ACL metadata for authorization.
package cluster

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

var (
	// ErrNotFound means the storage account or container does not exist.
	ErrNotFound = errors.New("cluster: not found")
	// ErrNotEmpty means the storage account still holds data.
	ErrNotEmpty = errors.New("cluster: account not empty")
)

// Client is the gateway's view of the storage cluster.
type Client interface {
	// CreateTenant creates the storage account for the given account id.
	// Creating an existing account is not an error.
	CreateTenant(ctx context.Context, accountID string) error
	// DeleteTenant removes the storage account. Returns ErrNotEmpty when the
	// account still holds containers and ErrNotFound when it never existed.
	DeleteTenant(ctx context.Context, accountID string) error
	// ContainerACL reads the read and write ACL strings of a container.
	// A missing container yields empty ACLs, not an error.
	ContainerACL(ctx context.Context, accountID, container string) (read, write string, err error)
}

// HTTP implements Client against a storage cluster's HTTP API.
type HTTP struct {
	base   *url.URL
	client *http.Client
	token  func() string
}

// HTTPOption configures the HTTP client.
type HTTPOption func(*HTTP)

// WithHTTPClient overrides the underlying http.Client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(h *HTTP) {
		if c != nil {
			h.client = c
		}
	}
}

// WithTokenSource sets the provider of the token sent as X-Auth-Token on
// cluster requests.
func WithTokenSource(fn func() string) HTTPOption {
	return func(h *HTTP) {
		if fn != nil {
			h.token = fn
		}
	}
}

// NewHTTP builds an HTTP cluster client for the given storage base URL,
// e.g. "http://127.0.0.1:8080/v1".
func NewHTTP(base string, opts ...HTTPOption) (*HTTP, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("cluster: parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("cluster: base url %q must be absolute", base)
	}
	h := &HTTP{
		base:   u,
		client: &http.Client{Timeout: 10 * time.Second},
		token:  func() string { return "" },
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

func (h *HTTP) do(ctx context.Context, method string, u *url.URL) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, u.String(), nil)
	if err != nil {
		return nil, err
	}
	if tok := h.token(); tok != "" {
		req.Header.Set("X-Auth-Token", tok)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cluster: %s %s: %w", method, u.Path, err)
	}
	return resp, nil
}

// CreateTenant issues PUT <base>/<accountID>.
func (h *HTTP) CreateTenant(ctx context.Context, accountID string) error {
	resp, err := h.do(ctx, http.MethodPut, h.base.JoinPath(accountID))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("cluster: create tenant %s: unexpected status %s", accountID, resp.Status)
	}
	return nil
}

// DeleteTenant issues DELETE <base>/<accountID>.
func (h *HTTP) DeleteTenant(ctx context.Context, accountID string) error {
	resp, err := h.do(ctx, http.MethodDelete, h.base.JoinPath(accountID))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode == http.StatusConflict:
		return ErrNotEmpty
	case resp.StatusCode/100 != 2:
		return fmt.Errorf("cluster: delete tenant %s: unexpected status %s", accountID, resp.Status)
	}
	return nil
}

// ContainerACL issues HEAD <base>/<accountID>/<container> and returns the
// X-Container-Read and X-Container-Write header values.
func (h *HTTP) ContainerACL(ctx context.Context, accountID, container string) (string, string, error) {
	resp, err := h.do(ctx, http.MethodHead, h.base.JoinPath(accountID, container))
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", "", nil
	case resp.StatusCode/100 != 2:
		return "", "", fmt.Errorf("cluster: head container %s/%s: unexpected status %s", accountID, container, resp.Status)
	}
	return resp.Header.Get("X-Container-Read"), resp.Header.Get("X-Container-Write"), nil
}
