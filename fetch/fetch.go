// Package fetch wraps the credentialed retrieval of a user's data object.
// The retrieval protocol itself belongs to the pod provider; this package
// only fixes the contract the distribution client depends on.
package fetch

import (
	"context"
	"io"
	"net/http"
	"time"

	"golang.org/x/xerrors"
)

// Gateway retrieves the raw bytes behind a data URI on behalf of the user
type Gateway interface {
	Fetch(ctx context.Context, dataURI string) ([]byte, error)
}

// HTTPGateway fetches data objects over HTTP with a bearer credential
type HTTPGateway struct {
	client *http.Client
	token  string
}

// NewHTTPGateway creates a gateway authenticating with the given token
func NewHTTPGateway(token string) *HTTPGateway {
	return &HTTPGateway{
		client: &http.Client{Timeout: time.Second * 30},
		token:  token,
	}
}

// Fetch implements Gateway
func (g *HTTPGateway) Fetch(ctx context.Context, dataURI string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, dataURI, nil)
	if err != nil {
		return nil, err
	}
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, xerrors.Errorf("failed to fetch %s: %v", dataURI, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, xerrors.Errorf("fetch of %s returned status %d", dataURI, resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}
