package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// OTP verification errors surfaced to handlers.
var (
	ErrOTPExpired     = errors.New("otp expired or not requested")
	ErrOTPMismatch    = errors.New("otp does not match")
	ErrOTPMaxAttempts = errors.New("otp attempt limit reached")
)

const (
	otpLength      = 6
	otpTTL         = 5 * time.Minute
	otpMaxAttempts = 5
)

// SMSSender delivers one text message. Implemented by TwilioSender; tests
// substitute a recording fake.
type SMSSender interface {
	Send(ctx context.Context, to, body string) error
}

// OTPService issues and verifies SMS one-time codes. Codes live in redis
// under a per-phone key with a TTL; verification is attempt-capped and the
// code is deleted on success.
type OTPService struct {
	rdb    *redis.Client
	sender SMSSender
	prefix string
}

func NewOTPService(rdb *redis.Client, sender SMSSender) *OTPService {
	return &OTPService{rdb: rdb, sender: sender, prefix: "otp"}
}

var nonPhoneRe = regexp.MustCompile(`[^\d+]`)

// NormalizePhone cleans a number for SMS delivery: strips separators and
// defaults bare 10-digit Indian numbers to +91.
func NormalizePhone(phone string) string {
	cleaned := nonPhoneRe.ReplaceAllString(strings.TrimSpace(phone), "")
	if strings.HasPrefix(cleaned, "+") {
		return cleaned
	}
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, cleaned)
	if len(digits) == 10 {
		return "+91" + digits
	}
	if len(digits) == 12 && strings.HasPrefix(digits, "91") {
		return "+" + digits
	}
	return phone
}

// Request generates a fresh code, stores it with a TTL and sends it.
func (s *OTPService) Request(ctx context.Context, phone string) error {
	if s.rdb == nil {
		return errors.New("otp: store unavailable")
	}
	to := NormalizePhone(phone)
	code, err := generateCode(otpLength)
	if err != nil {
		return fmt.Errorf("otp: generate code: %w", err)
	}
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, s.codeKey(to), code, otpTTL)
	pipe.Set(ctx, s.attemptsKey(to), 0, otpTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("otp: store code: %w", err)
	}
	body := fmt.Sprintf("Your verification code is %s. It expires in %d minutes.", code, int(otpTTL.Minutes()))
	if err := s.sender.Send(ctx, to, body); err != nil {
		return fmt.Errorf("otp: send sms: %w", err)
	}
	return nil
}

// Verify compares the submitted code against the stored one. The stored
// code is consumed on success and after the attempt cap.
func (s *OTPService) Verify(ctx context.Context, phone, code string) error {
	if s.rdb == nil {
		return errors.New("otp: store unavailable")
	}
	to := NormalizePhone(phone)
	stored, err := s.rdb.Get(ctx, s.codeKey(to)).Result()
	if errors.Is(err, redis.Nil) {
		return ErrOTPExpired
	}
	if err != nil {
		return fmt.Errorf("otp: read code: %w", err)
	}

	attempts, err := s.rdb.Incr(ctx, s.attemptsKey(to)).Result()
	if err != nil {
		return fmt.Errorf("otp: count attempt: %w", err)
	}
	if attempts > otpMaxAttempts {
		s.rdb.Del(ctx, s.codeKey(to), s.attemptsKey(to))
		return ErrOTPMaxAttempts
	}

	if subtle.ConstantTimeCompare([]byte(stored), []byte(code)) != 1 {
		return ErrOTPMismatch
	}
	s.rdb.Del(ctx, s.codeKey(to), s.attemptsKey(to))
	return nil
}

func (s *OTPService) codeKey(phone string) string     { return s.prefix + ":code:" + phone }
func (s *OTPService) attemptsKey(phone string) string { return s.prefix + ":attempts:" + phone }

func generateCode(n int) (string, error) {
	var b strings.Builder
	for i := 0; i < n; i++ {
		d, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "%d", d.Int64())
	}
	return b.String(), nil
}

// TwilioSender posts messages through the Twilio REST API.
type TwilioSender struct {
	AccountSID string
	AuthToken  string
	From       string
	HTTP       *http.Client
	BaseURL    string
}

func NewTwilioSender(accountSID, authToken, from string) (*TwilioSender, error) {
	if accountSID == "" || authToken == "" || from == "" {
		return nil, errors.New("otp: twilio account sid, auth token and from number are required")
	}
	return &TwilioSender{
		AccountSID: accountSID,
		AuthToken:  authToken,
		From:       from,
		HTTP:       &http.Client{Timeout: 30 * time.Second},
		BaseURL:    "https://api.twilio.com",
	}, nil
}

// Send posts one SMS via the Messages endpoint using Basic auth.
func (t *TwilioSender) Send(ctx context.Context, to, body string) error {
	form := url.Values{}
	form.Set("To", to)
	form.Set("From", t.From)
	form.Set("Body", body)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", strings.TrimRight(t.BaseURL, "/"), t.AccountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("twilio: build request: %w", err)
	}
	req.SetBasicAuth(t.AccountSID, t.AuthToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res, err := t.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("twilio: request failed: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return fmt.Errorf("twilio: send failed with status %d", res.StatusCode)
	}
	return nil
}
