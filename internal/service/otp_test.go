package service

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePhone(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"9876543210", "+919876543210"},
		{"98765 43210", "+919876543210"},
		{"98765-43210", "+919876543210"},
		{"+919876543210", "+919876543210"},
		{"919876543210", "+919876543210"},
		{"+14155552671", "+14155552671"},
		// Neither 10 digits nor a recognizable prefix: left alone.
		{"12345", "12345"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, NormalizePhone(tc.in), "NormalizePhone(%q)", tc.in)
	}
}

func TestGenerateCode(t *testing.T) {
	code, err := generateCode(otpLength)
	require.NoError(t, err)
	require.Len(t, code, otpLength)
	for _, r := range code {
		assert.True(t, r >= '0' && r <= '9', "code %q contains non-digit", code)
	}
}

func TestTwilioSenderRequiresCredentials(t *testing.T) {
	_, err := NewTwilioSender("", "token", "+10000000000")
	require.Error(t, err)
	_, err = NewTwilioSender("sid", "", "+10000000000")
	require.Error(t, err)
	_, err = NewTwilioSender("sid", "token", "")
	require.Error(t, err)
}

func TestTwilioSenderSend(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/2010-04-01/Accounts/AC123/Messages.json", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "AC123", user)
		assert.Equal(t, "secret", pass)

		body, _ := io.ReadAll(r.Body)
		form, err := url.ParseQuery(string(body))
		require.NoError(t, err)
		assert.Equal(t, "+919876543210", form.Get("To"))
		assert.Equal(t, "+10000000000", form.Get("From"))
		assert.Contains(t, form.Get("Body"), "verification code")

		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"sid":"SM1"}`)
	}))
	defer srv.Close()

	sender, err := NewTwilioSender("AC123", "secret", "+10000000000")
	require.NoError(t, err)
	sender.BaseURL = srv.URL
	sender.HTTP = &http.Client{Timeout: time.Second}

	err = sender.Send(context.Background(), "+919876543210", "Your verification code is 123456.")
	require.NoError(t, err)
}

func TestTwilioSenderSendFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	sender, err := NewTwilioSender("AC123", "secret", "+10000000000")
	require.NoError(t, err)
	sender.BaseURL = srv.URL

	err = sender.Send(context.Background(), "+919876543210", "body")
	require.Error(t, err)
}
