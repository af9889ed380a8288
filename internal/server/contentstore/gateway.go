package contentstore

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// DefaultGateways are tried in this order when nothing else is configured.
var DefaultGateways = []string{
	"https://ipfs.io/ipfs/",
	"https://gateway.pinata.cloud/ipfs/",
	"https://cloudflare-ipfs.com/ipfs/",
}

// Gateway is one independent retrieval endpoint.
type Gateway interface {
	Name() string
	Fetch(ctx context.Context, cid string) ([]byte, error)
}

// HTTPGateway fetches content from a public IPFS HTTP gateway.
type HTTPGateway struct {
	base    string
	client  *http.Client
	maxSize int64
}

func NewHTTPGateway(base string, client *http.Client, maxSize int64) *HTTPGateway {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPGateway{base: strings.TrimRight(base, "/"), client: client, maxSize: maxSize}
}

func (g *HTTPGateway) Name() string { return g.base }

// URL is the retrieval URL for cid on this gateway.
func (g *HTTPGateway) URL(cid string) string {
	return g.base + "/" + CleanCID(cid)
}

func (g *HTTPGateway) Fetch(ctx context.Context, cid string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.URL(cid), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "video/*,application/octet-stream,*/*")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("gateway returned %d", resp.StatusCode)
	}

	body := io.Reader(resp.Body)
	if g.maxSize > 0 {
		body = io.LimitReader(resp.Body, g.maxSize+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	if g.maxSize > 0 && int64(len(data)) > g.maxSize {
		return nil, fmt.Errorf("content exceeds %d bytes", g.maxSize)
	}
	return data, nil
}

// CleanCID strips whitespace and an ipfs:// scheme.
func CleanCID(cid string) string {
	cid = strings.TrimSpace(cid)
	cid = strings.TrimPrefix(cid, "ipfs://")
	return strings.TrimPrefix(cid, "ipfs/")
}
