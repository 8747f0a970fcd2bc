package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing
	"github.com/redis/go-redis/v9"

	"github.com/truckmitra/freight-broker/internal/config"     // rate limit settings
	"github.com/truckmitra/freight-broker/internal/handler"    // import the handlers that implement business logic
	"github.com/truckmitra/freight-broker/internal/middleware" // import middleware for JWT authentication and role enforcement
)

// RegisterRoutes registers routes that do not require authentication on the
// provided Echo instance.  Currently it exposes only a health check.
func RegisterRoutes(e *echo.Echo) {
	// Map the GET request at path "/healthz" to the Health handler.  This
	// endpoint can be used by load balancers or monitoring systems to verify
	// that the service is up and running.
	e.GET("/healthz", handler.Health)
}

// RegisterAuth registers all authentication‑related routes and applies the
// necessary middleware.  Unauthenticated operations live under /v1/auth,
// while protected endpoints live under /v1.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string) {
	// Create a route group under the /v1/auth prefix for operations that do
	// not require an existing session (register, login, refresh).  Each of
	// these handlers is responsible for generating or exchanging tokens.
	g := e.Group("/v1/auth")
	// Register a POST endpoint to handle user registration at /v1/auth/register.
	g.POST("/register", a.Register)
	// Register a POST endpoint to handle user login at /v1/auth/login.
	g.POST("/login", a.Login)
	// Register a POST endpoint to refresh access tokens at /v1/auth/refresh. This rotates the refresh token.
	g.POST("/refresh", a.Refresh)
	// Register a POST endpoint to issue a new access token without rotating the refresh token.
	g.POST("/refresh-access", a.RefreshAccess)
	// Register a POST endpoint to log out.  The handler accepts a JSON body
	// containing a `refresh_token` and will invalidate that token; with a
	// valid bearer token and no body it revokes every session of the user.
	g.POST("/logout", a.Logout)

	// Create another group for routes that require a valid access token.  All
	// handlers registered on this group will execute the JWTAuth middleware
	// before being invoked.
	auth := e.Group("/v1")
	// Apply the JWTAuth middleware to the protected group using the provided secret.
	auth.Use(middleware.JWTAuth(jwtSecret))
	// Register a GET endpoint at /v1/me that returns the authenticated user's information.
	auth.GET("/me", a.Me)
}

// RegisterKYC registers the identity verification endpoints.  All of them
// require a valid access token; the rate limiter protects the metered
// provider quota.
func RegisterKYC(e *echo.Echo, k *handler.KYCHandler, jwtSecret string, rl config.RateLimitConfig, rdb *redis.Client) {
	g := e.Group("/v1/kyc")
	g.Use(middleware.JWTAuth(jwtSecret))
	g.Use(middleware.RequireRole("ADMIN", "CARRIER", "SHIPPER"))
	g.Use(middleware.NewTokenBucket(rl, rdb))
	// PAN verification over the encrypted provider channel.
	g.POST("/pan", k.VerifyPAN)
	// PAN verification with contact details over the plain channel.
	g.POST("/pan-comprehensive", k.VerifyPANComprehensive)
	// GSTIN verification.
	g.POST("/gstin", k.VerifyGSTIN)
	// Email deliverability check.
	g.POST("/email-check", k.VerifyEmail)
}

// RegisterTrips registers the trip tracking endpoints.  Creation and state
// changes are restricted to ADMIN and CARRIER; read endpoints are open to
// every authenticated role so shippers can follow their consignments.
func RegisterTrips(e *echo.Echo, t *handler.TripHandler, jwtSecret string, rl config.RateLimitConfig, rdb *redis.Client) {
	g := e.Group("/v1/trips")
	g.Use(middleware.JWTAuth(jwtSecret))
	g.Use(middleware.NewTokenBucket(rl, rdb))

	write := g.Group("")
	write.Use(middleware.RequireRole("ADMIN", "CARRIER"))
	// Register a trip and start live tracking immediately.
	write.POST("/start", t.Start)
	// Register a trip without starting tracking.
	write.POST("/submit", t.Submit)
	// Forward a tracking_state change (START/STOP) to the provider.
	write.PUT("", t.Update)
	// Stop tracking and mark the trip ended.
	write.POST("/:id/end", t.End)
	// Ask the provider for a shareable tracking URL.
	write.POST("/:id/public-link", t.PublicLink)

	read := g.Group("")
	read.Use(middleware.RequireRole("ADMIN", "CARRIER", "SHIPPER"))
	// Driver consent state by phone number.
	read.GET("/consents", t.Consents)
	// All trips, most recently started first.
	read.GET("", t.List)
	// Recent positions for one trip.
	read.GET("/:id/locations", t.Locations)
	// One trip by local or provider id.
	read.GET("/:id", t.Get)
}

// RegisterOTP registers the SMS one‑time‑code endpoints.  They are
// unauthenticated (they run during signup) but rate limited.
func RegisterOTP(e *echo.Echo, o *handler.OTPHandler, rl config.RateLimitConfig, rdb *redis.Client) {
	g := e.Group("/v1/otp")
	g.Use(middleware.NewTokenBucket(rl, rdb))
	// Generate, store and send a verification code.
	g.POST("/request", o.Request)
	// Compare a submitted code against the stored one.
	g.POST("/verify", o.Verify)
}
