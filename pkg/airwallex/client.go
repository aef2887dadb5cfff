/**
 * @description
 * This package provides a client for the Airwallex payments platform API.
 * It owns the access-token lifecycle (login, expiry tracking, transparent
 * re-authentication) and exposes the paginated listing endpoints used by the
 * reconciliation engine.
 *
 * The token and its expiry are the only mutable state on the client. They are
 * guarded by a mutex so that a parallelized caller never triggers two
 * concurrent logins.
 *
 * @dependencies
 * - bytes, context, encoding/json, fmt, net/http, sync, time: Standard Go libraries.
 */
package airwallex

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	defaultTokenExpiryMargin = 60 * time.Second
	defaultPageSize          = 100

	// Used when the login response carries an expiry we cannot parse.
	fallbackTokenTTL = 30 * time.Minute
)

// Client is a client for the Airwallex API.
type Client struct {
	BaseURL    string
	ClientID   string
	APIKey     string
	HTTPClient *http.Client

	pageSize     int
	expiryMargin time.Duration

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// NewClient creates a new Airwallex API client.
func NewClient(baseURL, clientID, apiKey string) *Client {
	return &Client{
		BaseURL:  strings.TrimRight(baseURL, "/"),
		ClientID: clientID,
		APIKey:   apiKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		pageSize:     defaultPageSize,
		expiryMargin: defaultTokenExpiryMargin,
	}
}

// ConfigurePagination overrides the page size requested from listing endpoints.
func (c *Client) ConfigurePagination(pageSize int) {
	if pageSize > 0 {
		c.pageSize = pageSize
	}
}

// ConfigureTokenExpiryMargin overrides the safety margin subtracted from the
// server-declared token expiry.
func (c *Client) ConfigureTokenExpiryMargin(margin time.Duration) {
	if margin > 0 {
		c.expiryMargin = margin
	}
}

// AuthError indicates that credentials are missing or the token exchange was
// rejected. It is fatal to an entire sync run.
type AuthError struct {
	Status  int
	Message string
}

func (e *AuthError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("airwallex authentication failed (status %d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("airwallex authentication failed: %s", e.Message)
}

// PageFetchError indicates a non-success response or network failure while
// listing. It aborts the current listing call; items accumulated from earlier
// pages are still returned to the caller.
type PageFetchError struct {
	Endpoint string
	Status   int
	Message  string
}

func (e *PageFetchError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("airwallex page fetch failed (%s, status %d): %s", e.Endpoint, e.Status, e.Message)
	}
	return fmt.Sprintf("airwallex page fetch failed (%s): %s", e.Endpoint, e.Message)
}

type loginResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
}

// Authenticate exchanges the configured credentials for an access token. The
// stored expiry is set a safety margin earlier than the server-declared one so
// a token is never used right at its edge.
func (c *Client) Authenticate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authenticateLocked(ctx)
}

func (c *Client) authenticateLocked(ctx context.Context) error {
	if strings.TrimSpace(c.ClientID) == "" || strings.TrimSpace(c.APIKey) == "" {
		return &AuthError{Message: "client id and api key must be configured"}
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.BaseURL+"/api/v1/authentication/login", nil)
	if err != nil {
		return &AuthError{Message: fmt.Sprintf("failed to create login request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-client-id", c.ClientID)
	req.Header.Set("x-api-key", c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return &AuthError{Message: fmt.Sprintf("failed to execute login request: %v", err)}
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return &AuthError{Message: fmt.Sprintf("failed to read login response: %v", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Printf("level=warn component=airwallex_client op=login status=%d msg=\"token exchange rejected\"", resp.StatusCode)
		return &AuthError{Status: resp.StatusCode, Message: strings.TrimSpace(string(bodyBytes))}
	}

	var login loginResponse
	if err := json.Unmarshal(bodyBytes, &login); err != nil {
		return &AuthError{Message: fmt.Sprintf("failed to decode login response: %v", err)}
	}
	if strings.TrimSpace(login.Token) == "" {
		return &AuthError{Message: "login response missing token"}
	}

	expiresAt, ok := parseExpiry(login.ExpiresAt)
	if !ok {
		log.Printf("level=warn component=airwallex_client op=login msg=\"unparsable expires_at; assuming fallback ttl\" expires_at=%q", login.ExpiresAt)
		expiresAt = time.Now().Add(fallbackTokenTTL)
	}

	c.token = login.Token
	c.expiresAt = expiresAt.Add(-c.expiryMargin)
	return nil
}

// parseExpiry accepts the RFC3339 variants Airwallex has been observed to emit.
func parseExpiry(raw string) (time.Time, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05Z0700"} {
		if ts, err := time.Parse(layout, trimmed); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

// ensureAuthenticated re-runs the login exchange iff the stored token is
// missing or at/past its expiry. Safe to call before every page fetch.
func (c *Client) ensureAuthenticated(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && time.Now().Before(c.expiresAt) {
		return nil
	}
	return c.authenticateLocked(ctx)
}

func (c *Client) bearerToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// doGet issues an authenticated GET and returns the raw body for 2xx responses.
// A 404 is reported via the notFound flag rather than an error so single-record
// fetches can treat it as "record gone".
func (c *Client) doGet(ctx context.Context, path string) (body []byte, notFound bool, err error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.BaseURL+path, nil)
	if err != nil {
		return nil, false, &PageFetchError{Endpoint: path, Message: fmt.Sprintf("failed to create request: %v", err)}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.bearerToken())

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, false, &PageFetchError{Endpoint: path, Message: fmt.Sprintf("failed to execute request: %v", err)}
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, false, &PageFetchError{Endpoint: path, Message: fmt.Sprintf("failed to read response: %v", err)}
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, true, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Printf("level=warn component=airwallex_client op=get endpoint=%s status=%d msg=\"non-2xx response\"", path, resp.StatusCode)
		return nil, false, &PageFetchError{Endpoint: path, Status: resp.StatusCode, Message: strings.TrimSpace(string(bodyBytes))}
	}

	return bodyBytes, false, nil
}
