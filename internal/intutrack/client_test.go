package intutrack

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// signedToken builds an HS256 token with the given expiry; the client never
// verifies the signature so any secret works.
func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"exp": exp.Unix()})
	signed, err := tok.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return signed
}

// trackerStub is a fake IntuTrack server that counts logins and serves a
// token minted by the mint callback.
type trackerStub struct {
	*httptest.Server
	logins int64
	mint   func() string
}

func newTrackerStub(t *testing.T, mint func() string) *trackerStub {
	t.Helper()
	s := &trackerStub{mint: mint}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/login":
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Contains(t, r.Header.Get("Authorization"), "Basic ")
			atomic.AddInt64(&s.logins, 1)
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprintf(w, `{"token":%q}`, s.mint())
		case "/consents":
			assert.Contains(t, r.Header.Get("Authorization"), "Bearer ")
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"consent":"ALLOWED"}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	return s
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	c, err := New(Config{BaseURL: baseURL, Username: "user", Password: "pass", Timeout: 5 * time.Second})
	require.NoError(t, err)
	return c
}

func TestNewRequiresCredentials(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
}

func TestTokenCachedWhileFresh(t *testing.T) {
	srv := newTrackerStub(t, func() string {
		return signedToken(t, time.Now().Add(time.Hour))
	})
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	first, err := c.Token(context.Background())
	require.NoError(t, err)
	second, err := c.Token(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.EqualValues(t, 1, atomic.LoadInt64(&srv.logins))
}

func TestTokenRefreshedInsideSkewWindow(t *testing.T) {
	srv := newTrackerStub(t, func() string {
		// Expires in 30 seconds: inside the 60-second skew, so the next
		// call must log in again.
		return signedToken(t, time.Now().Add(30*time.Second))
	})
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.Token(context.Background())
	require.NoError(t, err)
	_, err = c.Token(context.Background())
	require.NoError(t, err)

	assert.EqualValues(t, 2, atomic.LoadInt64(&srv.logins))
}

func TestTokenFallbackWindowWithoutExpClaim(t *testing.T) {
	srv := newTrackerStub(t, func() string { return "opaque-session-token" })
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	base := time.Now()
	c.now = func() time.Time { return base }
	_, err := c.Token(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt64(&srv.logins))

	// 50 minutes in: still inside the 55-minute fallback window.
	c.now = func() time.Time { return base.Add(50 * time.Minute) }
	_, err = c.Token(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt64(&srv.logins))

	// 54m30s in: fewer than 60 seconds remain, refresh.
	c.now = func() time.Time { return base.Add(54*time.Minute + 30*time.Second) }
	_, err = c.Token(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, atomic.LoadInt64(&srv.logins))
}

func TestBearerCallUsesCachedToken(t *testing.T) {
	srv := newTrackerStub(t, func() string {
		return signedToken(t, time.Now().Add(time.Hour))
	})
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	payload, err := c.Consents(context.Background(), "+919876543210")
	require.NoError(t, err)

	m, ok := payload.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "ALLOWED", m["consent"])
	assert.EqualValues(t, 1, atomic.LoadInt64(&srv.logins))
}

func TestNon2xxBecomesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		fmt.Fprint(w, `{"error":"trip already ended"}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.EndTrip(context.Background(), "trip-1")
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.Status)
	m, ok := apiErr.Payload.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "trip already ended", m["error"])
}

func TestNonJSONBodyKeptAsText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/login" {
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprintf(w, `{"token":%q}`, signedToken(t, time.Now().Add(time.Hour)))
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprint(w, "OK")
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	payload, err := c.Locations(context.Background(), "trip-1", 10)
	require.NoError(t, err)
	assert.Equal(t, "OK", payload)
}

func TestDecodeExpiry(t *testing.T) {
	exp := time.Now().Add(2 * time.Hour).Truncate(time.Second)
	got := decodeExpiry(signedToken(t, exp))
	assert.True(t, got.Equal(exp), "got %v want %v", got, exp)

	assert.True(t, decodeExpiry("not-a-jwt").IsZero())

	// JWT without an exp claim.
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "x"})
	signed, err := tok.SignedString([]byte("s"))
	require.NoError(t, err)
	assert.True(t, decodeExpiry(signed).IsZero())
}

func TestGeneratePublicLinkUsesBasicAuth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/trips/generatepubliclink", r.URL.Path)
		assert.Contains(t, r.Header.Get("Authorization"), "Basic ")
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "trip-1", body["tripId"])
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"publicLink":"https://track.example/t/abc"}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	payload, err := c.GeneratePublicLink(context.Background(), "trip-1")
	require.NoError(t, err)
	m := payload.(map[string]any)
	assert.Equal(t, "https://track.example/t/abc", m["publicLink"])
}
