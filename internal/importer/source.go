package importer

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"golang.org/x/time/rate"
)

//go:embed schema/listing.schema.json
var listingSchema string

const maxListingBytes = 8 << 20

// Source fetches scraped candidate records for a listing
type Source interface {
	// CheckConfig reports missing credentials without touching the network
	CheckConfig() error
	Login(ctx context.Context) error
	FetchListing(ctx context.Context, listing Listing) ([]Record, error)
}

// HTTPSourceConfig configures an HTTPSource
type HTTPSourceConfig struct {
	BaseURL   string
	Username  string
	Password  string
	RateLimit float64 // requests per second, 0 for unlimited
	Burst     int
	Timeout   time.Duration
}

// HTTPSource talks to a scraping gateway over JSON
type HTTPSource struct {
	cfg     HTTPSourceConfig
	client  *http.Client
	limiter *rate.Limiter
	schema  *jsonschema.Schema

	mu    sync.RWMutex
	token string
}

// NewHTTPSource creates a source and compiles the listing schema
func NewHTTPSource(cfg HTTPSourceConfig) (*HTTPSource, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("listing.schema.json", strings.NewReader(listingSchema)); err != nil {
		return nil, fmt.Errorf("failed to add listing schema: %w", err)
	}
	schema, err := compiler.Compile("listing.schema.json")
	if err != nil {
		return nil, fmt.Errorf("failed to compile listing schema: %w", err)
	}

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &HTTPSource{
		cfg:     cfg,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(limit, burst),
		schema:  schema,
	}, nil
}

func (s *HTTPSource) CheckConfig() error {
	if strings.TrimSpace(s.cfg.BaseURL) == "" {
		return &ConfigError{Msg: "source base_url is not configured"}
	}
	if s.cfg.Username == "" || s.cfg.Password == "" {
		return &ConfigError{Msg: "missing source credentials"}
	}
	return nil
}

func (s *HTTPSource) Login(ctx context.Context) error {
	body, err := json.Marshal(map[string]string{
		"username": s.cfg.Username,
		"password": s.cfg.Password,
	})
	if err != nil {
		return fmt.Errorf("failed to encode login: %w", err)
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint("/api/login"), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("login request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &AuthError{Msg: fmt.Sprintf("source rejected credentials (HTTP %d)", resp.StatusCode)}
	case resp.StatusCode >= 300:
		return fmt.Errorf("login returned HTTP %d", resp.StatusCode)
	}

	var out struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return &AuthError{Msg: "malformed login response", Err: err}
	}
	if out.Token == "" {
		return &AuthError{Msg: "login response carried no token"}
	}

	s.mu.Lock()
	s.token = out.Token
	s.mu.Unlock()
	return nil
}

func (s *HTTPSource) FetchListing(ctx context.Context, listing Listing) ([]Record, error) {
	locator := listing.Locator()

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.listingURL(listing), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build listing request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	// the session token only ever goes back to the gateway that issued it
	if s.onGateway(req.URL) {
		s.mu.RLock()
		if s.token != "" {
			req.Header.Set("Authorization", "Bearer "+s.token)
		}
		s.mu.RUnlock()
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("listing request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &AuthError{Msg: fmt.Sprintf("session rejected while fetching %s (HTTP %d)", locator, resp.StatusCode)}
	case resp.StatusCode == http.StatusNotFound:
		return nil, &ExtractionError{Locator: locator, Msg: "listing not found"}
	case resp.StatusCode >= 300:
		return nil, fmt.Errorf("listing %s returned HTTP %d", locator, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxListingBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read listing %s: %w", locator, err)
	}

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &ExtractionError{Locator: locator, Msg: "listing is not JSON", Err: err}
	}
	if err := s.schema.Validate(doc); err != nil {
		return nil, &ExtractionError{Locator: locator, Msg: "unexpected listing structure", Err: err}
	}

	var page struct {
		Candidates []Record `json:"candidates"`
	}
	if err := json.Unmarshal(data, &page); err != nil {
		return nil, &ExtractionError{Locator: locator, Msg: "failed to decode records", Err: err}
	}
	if len(page.Candidates) == 0 {
		return nil, &ExtractionError{Locator: locator, Msg: "no candidate records found"}
	}
	return page.Candidates, nil
}

func (s *HTTPSource) listingURL(listing Listing) string {
	if listing.JobURL != "" {
		return listing.JobURL
	}
	return s.endpoint("/api/jobs/" + url.PathEscape(listing.JobID) + "/candidates")
}

func (s *HTTPSource) onGateway(u *url.URL) bool {
	base, err := url.Parse(s.cfg.BaseURL)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Scheme, base.Scheme) && strings.EqualFold(u.Host, base.Host)
}

func (s *HTTPSource) endpoint(path string) string {
	return strings.TrimRight(s.cfg.BaseURL, "/") + path
}
