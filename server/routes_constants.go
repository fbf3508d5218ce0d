package server

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	RouteHome = "/"

	// Auth Routes
	RouteLogin      = "/login"
	RouteAuthLogin  = "/auth/login"
	RouteAuthRetry  = "/auth/retry"
	RouteAuthLogout = "/auth/logout"

	RouteMetrics = "/metrics"
)
