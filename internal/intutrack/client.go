// Package intutrack wraps the IntuTrack trip-tracking REST API. Bearer
// calls go through a cached login token that is refreshed when fewer than
// 60 seconds of its lifetime remain; consent/trip-management endpoints that
// require Basic auth bypass the cache entirely.
package intutrack

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	expirySkew     = 60 * time.Second
	fallbackWindow = 55 * time.Minute
)

// APIError is a non-2xx IntuTrack response. Payload holds the parsed body
// (JSON object/array when the content type is JSON, raw text otherwise).
type APIError struct {
	Status  int
	Payload any
}

func (e *APIError) Error() string {
	return fmt.Sprintf("intutrack: request failed with status %d", e.Status)
}

// ErrTimeout marks calls cancelled by the configured timeout.
var ErrTimeout = errors.New("intutrack: request timed out")

type cachedToken struct {
	token     string
	expiresAt time.Time
}

// Client is safe for concurrent use. The token cache is replaced as a whole
// value under the mutex; a race between two expiry checks costs at most one
// redundant login.
type Client struct {
	baseURL  string
	username string
	password string
	timeout  time.Duration
	http     *http.Client
	now      func() time.Time

	mu    sync.Mutex
	token *cachedToken
}

// Config holds IntuTrack connection settings.
type Config struct {
	BaseURL  string
	Username string
	Password string
	Timeout  time.Duration
}

// New validates credentials and returns a ready client.
func New(cfg Config) (*Client, error) {
	if cfg.Username == "" || cfg.Password == "" {
		return nil, errors.New("intutrack: username and password are required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://sct.intutrack.com/api/prod"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		username: cfg.Username,
		password: cfg.Password,
		timeout:  cfg.Timeout,
		http:     &http.Client{},
		now:      time.Now,
	}, nil
}

type authMode int

const (
	authBearer authMode = iota
	authBasic
)

type requestOptions struct {
	method string
	auth   authMode
	body   any
	query  url.Values
}

type loginResponse struct {
	Token string `json:"token"`
}

// Token returns the cached bearer token, logging in again only when fewer
// than 60 seconds of the token's lifetime remain. The expiry comes from the
// token's own exp claim; tokens without a decodable claim are assumed valid
// for 55 minutes.
func (c *Client) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	if t := c.token; t != nil && t.expiresAt.Sub(c.now()) > expirySkew {
		c.mu.Unlock()
		return t.token, nil
	}
	c.mu.Unlock()

	payload, err := c.do(ctx, "/login", requestOptions{method: http.MethodPost, auth: authBasic})
	if err != nil {
		return "", err
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("intutrack: encode login response: %w", err)
	}
	var login loginResponse
	if err := json.Unmarshal(raw, &login); err != nil || login.Token == "" {
		return "", errors.New("intutrack: login response missing token")
	}

	expiresAt := decodeExpiry(login.Token)
	if expiresAt.IsZero() {
		expiresAt = c.now().Add(fallbackWindow)
	}
	c.mu.Lock()
	c.token = &cachedToken{token: login.Token, expiresAt: expiresAt}
	c.mu.Unlock()
	return login.Token, nil
}

// decodeExpiry reads the exp claim from a JWT-shaped token without
// verifying its signature. Returns the zero time when the token or claim
// cannot be decoded.
func decodeExpiry(token string) time.Time {
	parser := jwt.NewParser()
	parsed, _, err := parser.ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return time.Time{}
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}

func (c *Client) basicAuthHeader() string {
	creds := base64.StdEncoding.EncodeToString([]byte(c.username + ":" + c.password))
	return "Basic " + creds
}

// do executes one IntuTrack call. Non-2xx responses become *APIError with
// the parsed payload attached for caller inspection.
func (c *Client) do(ctx context.Context, path string, opts requestOptions) (any, error) {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return nil, fmt.Errorf("intutrack: build url: %w", err)
	}
	if opts.query != nil {
		u.RawQuery = opts.query.Encode()
	}

	method := opts.method
	if method == "" {
		method = http.MethodGet
	}

	var bodyReader io.Reader
	var hasBody bool
	if opts.body != nil {
		raw, err := json.Marshal(opts.body)
		if err != nil {
			return nil, fmt.Errorf("intutrack: marshal body: %w", err)
		}
		bodyReader = bytes.NewReader(raw)
		hasBody = true
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, u.String(), bodyReader)
	if err != nil {
		return nil, fmt.Errorf("intutrack: build request: %w", err)
	}
	if opts.auth == authBasic {
		req.Header.Set("Authorization", c.basicAuthHeader())
	} else {
		token, err := c.Token(ctx)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if hasBody {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, fmt.Errorf("intutrack: request failed: %w", err)
	}
	defer res.Body.Close()

	text, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("intutrack: read response: %w", err)
	}

	var payload any
	if strings.Contains(res.Header.Get("Content-Type"), "application/json") && len(text) > 0 {
		if err := json.Unmarshal(text, &payload); err != nil {
			return nil, fmt.Errorf("intutrack: decode response: %w", err)
		}
	} else {
		payload = string(text)
	}

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, &APIError{Status: res.StatusCode, Payload: payload}
	}
	return payload, nil
}

// StartTrip begins live tracking for a trip.
func (c *Client) StartTrip(ctx context.Context, payload map[string]any) (any, error) {
	return c.do(ctx, "/trips/start", requestOptions{method: http.MethodPost, body: payload, auth: authBearer})
}

// SubmitTrip registers a trip without starting tracking.
func (c *Client) SubmitTrip(ctx context.Context, payload map[string]any) (any, error) {
	return c.do(ctx, "/trips/submit", requestOptions{method: http.MethodPost, body: payload, auth: authBearer})
}

// UpdateTrip changes trip attributes, including tracking_state START/STOP.
func (c *Client) UpdateTrip(ctx context.Context, payload map[string]any) (any, error) {
	return c.do(ctx, "/trips/", requestOptions{method: http.MethodPut, body: payload, auth: authBasic})
}

// EndTrip stops tracking for the given provider trip id.
func (c *Client) EndTrip(ctx context.Context, tripID string) (any, error) {
	return c.do(ctx, "/trips/end/"+tripID, requestOptions{method: http.MethodPost, auth: authBasic})
}

// GeneratePublicLink returns a shareable tracking URL for a trip.
func (c *Client) GeneratePublicLink(ctx context.Context, tripID string) (any, error) {
	return c.do(ctx, "/trips/generatepubliclink", requestOptions{
		method: http.MethodPost,
		body:   map[string]any{"tripId": tripID},
		auth:   authBasic,
	})
}

// Consents looks up the consent state for a driver phone number.
func (c *Client) Consents(ctx context.Context, tel string) (any, error) {
	q := url.Values{}
	q.Set("tel", tel)
	return c.do(ctx, "/consents", requestOptions{query: q, auth: authBearer})
}

// Locations fetches recent position reports for a trip.
func (c *Client) Locations(ctx context.Context, tripID string, limit int) (any, error) {
	q := url.Values{}
	q.Set("tripId", tripID)
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	return c.do(ctx, "/status", requestOptions{query: q, auth: authBearer})
}
