package github

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	gh "github.com/google/go-github/v80/github"
	"golang.org/x/oauth2"

	"github.com/custodia-labs/devtrawl/internal/core/domain"
)

const (
	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 30 * time.Second
)

// Clients holds one go-github client per credential. go-github remembers
// rate limit responses per client and refuses further calls until the
// reset time, so a client must never be shared between credentials.
type Clients struct {
	mu      sync.Mutex
	clients map[int]*gh.Client
	baseURL *url.URL
	base    http.RoundTripper
}

// ClientsOption configures Clients.
type ClientsOption func(*Clients)

// WithBaseURL points the clients at another API root, such as a GitHub
// Enterprise server or a test server.
func WithBaseURL(u *url.URL) ClientsOption {
	return func(c *Clients) {
		c.baseURL = u
	}
}

// WithTransport sets the transport underneath the oauth2 transport.
func WithTransport(rt http.RoundTripper) ClientsOption {
	return func(c *Clients) {
		c.base = rt
	}
}

// NewClients creates an empty client set. Clients are built lazily, the
// first time a credential is used.
func NewClients(opts ...ClientsOption) *Clients {
	c := &Clients{clients: make(map[int]*gh.Client)}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ParseBaseURL parses an API root and ensures the trailing slash go-github
// requires. An empty string returns nil.
func ParseBaseURL(raw string) (*url.URL, error) {
	if raw == "" {
		return nil, nil
	}
	if !strings.HasSuffix(raw, "/") {
		raw += "/"
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: api_base_url: %w", domain.ErrConfiguration, err)
	}
	return u, nil
}

// For returns the client bound to cred.
func (c *Clients) For(cred domain.Credential) *gh.Client {
	c.mu.Lock()
	defer c.mu.Unlock()

	if client, ok := c.clients[cred.Index]; ok {
		return client
	}

	client := c.newClient(cred.Token)
	c.clients[cred.Index] = client
	return client
}

// newClient builds a go-github client with a static access token.
// Works for both PAT and OAuth access tokens.
func (c *Clients) newClient(token string) *gh.Client {
	ctx := context.Background()
	if c.base != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Transport: c.base})
	}

	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: token},
	)
	tc := oauth2.NewClient(ctx, ts)
	tc.Timeout = DefaultTimeout

	client := gh.NewClient(tc)
	if c.baseURL != nil {
		client.BaseURL = c.baseURL
	}
	return client
}
