package config // package config loads application configuration from environment variables

import (
	"log"     // log is used to report configuration errors and halt execution
	"os"      // os provides access to environment variables
	"strconv" // strconv converts strings to other types
	"time"    // time parses provider timeout values
)

// Config holds all runtime configuration values. Each field corresponds to
// an environment variable. Core application settings are required and
// enforced with must(); third-party provider credentials are read as-is and
// validated by the client constructors so that a deployment without, say,
// tracking enabled can still boot.
type Config struct {
	Env            string // application environment (e.g. "dev", "prod")
	Port           string // HTTP port to listen on
	DBUser         string // database username
	DBPass         string // database password (optional)
	DBHost         string // database host address
	DBPort         string // database port number
	DBName         string // database name
	JWTSecret      string // secret used to sign JWTs
	AccessTTLMin   int    // access token time-to-live in minutes
	RefreshTTLDays int    // refresh token time-to-live in days
	BcryptCost     int    // bcrypt cost for password hashing

	Surepass  SurepassConfig  // KYC provider settings
	Intutrack IntutrackConfig // trip-tracking provider settings
	Twilio    TwilioConfig    // SMS delivery settings
}

// SurepassConfig carries the KYC provider credentials and key material.
// Key values may arrive flattened or with escaped newlines; the client
// normalizes them before use.
type SurepassConfig struct {
	BaseURL      string // encrypted channel base URL
	KYCBaseURL   string // plain channel base URL (kyc-api)
	PlainBaseURL string // plain channel base URL (sandbox)
	ClientID     string // provider-assigned client identifier
	APIToken     string // bearer token
	PublicKey    string // provider RSA public key (PEM, possibly flattened)
	PrivateKey   string // our RSA private key (PEM, possibly flattened)
	Timeout      time.Duration
}

// IntutrackConfig carries the tracking provider credentials.
type IntutrackConfig struct {
	BaseURL  string
	Username string
	Password string
	Timeout  time.Duration
}

// TwilioConfig carries SMS credentials for OTP delivery.
type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	From       string
}

// Load reads configuration values from environment variables and returns a
// Config. Required variables are enforced by must() and missing values
// cause the program to exit with a fatal log message.
func Load() Config {
	return Config{
		Env:            must("APP_ENV"),
		Port:           must("APP_PORT"),
		DBUser:         must("DB_USER"),
		DBPass:         os.Getenv("DB_PASS"), // database password (empty allowed)
		DBHost:         must("DB_HOST"),
		DBPort:         must("DB_PORT"),
		DBName:         must("DB_NAME"),
		JWTSecret:      must("JWT_SECRET"),
		AccessTTLMin:   mustInt("ACCESS_TOKEN_TTL_MIN"),
		RefreshTTLDays: mustInt("REFRESH_TOKEN_TTL_DAYS"),
		BcryptCost:     mustInt("BCRYPT_COST"),
		Surepass: SurepassConfig{
			BaseURL:      getenv("SUREPASS_BASE_URL", "https://sandbox-encrypted.surepass.app"),
			KYCBaseURL:   getenv("SUREPASS_KYC_BASE_URL", "https://kyc-api.surepass.io"),
			PlainBaseURL: getenv("SUREPASS_PLAIN_BASE_URL", "https://sandbox.surepass.io"),
			ClientID:     os.Getenv("SUREPASS_CLIENT_ID"),
			APIToken:     os.Getenv("SUREPASS_API_TOKEN"),
			PublicKey:    os.Getenv("SUREPASS_PUBLIC_KEY"),
			PrivateKey:   os.Getenv("SUREPASS_CLIENT_PRIVATE_KEY"),
			Timeout:      envMs("SUREPASS_TIMEOUT_MS", 120*time.Second),
		},
		Intutrack: IntutrackConfig{
			BaseURL:  getenv("INTUTRACK_BASE_URL", "https://sct.intutrack.com/api/prod"),
			Username: os.Getenv("INTUTRACK_USERNAME"),
			Password: os.Getenv("INTUTRACK_PASSWORD"),
			Timeout:  envMs("INTUTRACK_TIMEOUT", 120*time.Second),
		},
		Twilio: TwilioConfig{
			AccountSID: os.Getenv("TWILIO_ACCOUNT_SID"),
			AuthToken:  os.Getenv("TWILIO_AUTH_TOKEN"),
			From:       os.Getenv("TWILIO_FROM_NUMBER"),
		},
	}
}

// must retrieves the value of a required environment variable. If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

// mustInt is like must() but converts the retrieved string into an integer.
// If conversion fails, the application logs a fatal error and exits.
func mustInt(key string) int {
	s := must(key)
	n, err := strconv.Atoi(s)
	if err != nil {
		log.Fatalf("invalid int for %s: %q", key, s)
	}
	return n
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// envMs reads a millisecond count (the convention both providers use for
// their timeout variables) and falls back to def on absence or parse error.
func envMs(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return time.Duration(n) * time.Millisecond
}
