package surepass

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Options configures the Surepass clients. All credential fields are
// required for the encrypted channel; key material is normalized with
// NormalizePEM before use.
type Options struct {
	BaseURL       string
	ClientID      string
	APIToken      string
	PublicKeyPEM  string
	PrivateKeyPEM string
	Timeout       time.Duration
}

// EncryptedClient talks to the envelope-encrypted provider endpoints. One
// instance is safe for concurrent use; it holds no per-request state.
type EncryptedClient struct {
	baseURL       string
	clientID      string
	apiToken      string
	publicKeyPEM  string
	privateKeyPEM string
	timeout       time.Duration
	http          *http.Client
}

// NewEncryptedClient validates credentials and returns a ready client.
// Missing credentials are a configuration error and fail construction.
func NewEncryptedClient(opts Options) (*EncryptedClient, error) {
	if opts.ClientID == "" || opts.APIToken == "" || opts.PublicKeyPEM == "" || opts.PrivateKeyPEM == "" {
		return nil, errors.New("surepass: client id, api token and key material are required")
	}
	if opts.BaseURL == "" {
		opts.BaseURL = "https://sandbox-encrypted.surepass.app"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 120 * time.Second
	}
	return &EncryptedClient{
		baseURL:       strings.TrimRight(opts.BaseURL, "/"),
		clientID:      opts.ClientID,
		apiToken:      opts.APIToken,
		publicKeyPEM:  NormalizePEM(opts.PublicKeyPEM),
		privateKeyPEM: NormalizePEM(opts.PrivateKeyPEM),
		timeout:       opts.Timeout,
		http:          &http.Client{},
	}, nil
}

// PostJSON marshals body and sends it through the encrypted channel with a
// declared content type of application/json.
func (c *EncryptedClient) PostJSON(ctx context.Context, endpoint string, body any) (Response, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return Response{}, fmt.Errorf("surepass: marshal request: %w", err)
	}
	return c.PostEncrypted(ctx, endpoint, string(raw), "application/json")
}

// PostEncrypted seals plaintext into an envelope and POSTs it as opaque
// text. The true content type and plaintext length travel in side-channel
// headers. The response is decrypted first; if that fails and the raw body
// looks like JSON it is parsed as-is (the provider returns plain error
// bodies on occasion); if neither works the call yields a synthetic
// non_encrypted_response failure instead of an error. Network faults and
// timeouts are returned as errors.
func (c *EncryptedClient) PostEncrypted(ctx context.Context, endpoint, plaintext, contentType string) (Response, error) {
	env, err := EncryptPayload(plaintext, c.publicKeyPEM)
	if err != nil {
		return Response{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, strings.NewReader(env.Encrypted))
	if err != nil {
		return Response{}, fmt.Errorf("surepass: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiToken)
	req.Header.Set("x-client-id", c.clientID)
	req.Header.Set("Content-Type", "text/plain")
	req.Header.Set("x-content-type", contentType)
	req.Header.Set("x-content-length", strconv.Itoa(env.ContentLength))

	res, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return Response{}, ErrTimeout
		}
		return Response{}, &Error{Message: fmt.Sprintf("surepass: request failed: %v", err)}
	}
	defer res.Body.Close()

	bodyText, err := io.ReadAll(res.Body)
	if err != nil {
		return Response{}, &Error{Message: fmt.Sprintf("surepass: read response: %v", err), Status: res.StatusCode}
	}

	decrypted, decErr := DecryptPayload(string(bodyText), c.privateKeyPEM)
	if decErr == nil {
		if resp, err := ParseResponse([]byte(decrypted)); err == nil {
			return resp, nil
		}
	} else {
		log.Printf("surepass: response decrypt failed (%v), trying plain parse", decErr)
	}

	// The provider sometimes answers with an unencrypted JSON error body.
	if trimmed := strings.TrimSpace(string(bodyText)); strings.HasPrefix(trimmed, "{") {
		if resp, err := ParseResponse([]byte(trimmed)); err == nil {
			return resp, nil
		}
	}

	msg := "Non-encrypted response from Surepass"
	return Response{
		Success:     false,
		StatusCode:  res.StatusCode,
		Message:     &msg,
		MessageCode: "non_encrypted_response",
	}, nil
}

// PlainClient covers the provider endpoints that use ordinary JSON with the
// same bearer auth and timeout conventions as the encrypted channel.
type PlainClient struct {
	baseURL  string
	apiToken string
	timeout  time.Duration
	http     *http.Client
}

// NewPlainClient requires only the API token; BaseURL defaults to the
// provider sandbox.
func NewPlainClient(baseURL, apiToken string, timeout time.Duration) (*PlainClient, error) {
	if apiToken == "" {
		return nil, errors.New("surepass: api token is required")
	}
	if baseURL == "" {
		baseURL = "https://sandbox.surepass.io"
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &PlainClient{
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiToken: apiToken,
		timeout:  timeout,
		http:     &http.Client{},
	}, nil
}

// Post sends a JSON body and parses the provider response. A non-2xx status
// wraps the parsed body into a *Error so callers can inspect both.
func (c *PlainClient) Post(ctx context.Context, endpoint string, body any) (Response, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return Response{}, fmt.Errorf("surepass: marshal request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(raw))
	if err != nil {
		return Response{}, fmt.Errorf("surepass: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiToken)

	res, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return Response{}, ErrTimeout
		}
		return Response{}, &Error{Message: fmt.Sprintf("surepass: request failed: %v", err)}
	}
	defer res.Body.Close()

	bodyText, err := io.ReadAll(res.Body)
	if err != nil {
		return Response{}, &Error{Message: fmt.Sprintf("surepass: read response: %v", err), Status: res.StatusCode}
	}
	parsed, err := ParseResponse(bodyText)
	if err != nil {
		return Response{}, &Error{Message: err.Error(), Status: res.StatusCode}
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return Response{}, &Error{Message: "surepass: request failed", Status: res.StatusCode, Payload: parsed}
	}
	return parsed, nil
}
