package server

// Route path constants
const (
	// Auth Routes
	RouteAuthPage     = "/auth/"
	RouteAuthCallback = "/auth/callback"
	RouteAuthLogout   = "/auth/logout"
	RouteAuthStatus   = "/auth/status"

	// API Routes (require an authenticated session)
	RouteAPIMe      = "/api/me"
	RouteAPIDevices = "/api/devices"

	// Operational Routes
	RouteHealth  = "/health"
	RouteMetrics = "/metrics"
)

const (
	// oauthStateCookieName carries the CSRF state planted by whoever starts the
	// authorization redirect. The callback expects it on Path "/", HttpOnly,
	// SameSite=Lax (Strict would drop it on the provider's redirect back) and
	// Secure outside DEV, living no longer than StateCookieMaxAge. StateCookie
	// builds it.
	oauthStateCookieName = "oauth_state"

	// devicesPath is the downstream API resource behind RouteAPIDevices.
	devicesPath = "/device-v2/devices/mine"

	sessionExpiredMessage = "Session expired, please log in again"
)
