package routes

import (
	"net/http"
	"time"

	"github.com/refactorly/console/internal/app"
	"github.com/refactorly/console/internal/handler"
	"github.com/refactorly/console/internal/middleware"
)

func SetupRoutes(app *app.App) http.Handler {
	// Handlers
	auth := handler.NewAuthHandler(app.Sessions, app.Linking, app.Paths)
	oauth := handler.NewOAuthHandler(app.Linking, app.Sessions, app.Cfg.AppURL, app.Paths)
	verify := handler.NewVerifyHandler(app.Verification)
	dashboard := handler.NewAppHandler(app.Sessions, app.Logout, app.Paths)
	state := handler.NewSessionHandler(app.Sessions.Store())

	requireSession := middleware.RequireSession(app.Paths)
	requireGuest := middleware.RequireGuest(app.Paths)
	rateLimit := middleware.RateLimit(5, 15*time.Minute)

	mux := http.NewServeMux()

	// ============================================================================
	// PUBLIC ROUTES
	// ============================================================================

	mux.HandleFunc("GET /{$}", dashboard.Home)

	// Session snapshot, polled by the loading and logout views
	mux.HandleFunc("GET /session", state.State)

	// Credentials
	mux.HandleFunc("GET /login", requireGuest(auth.LoginPage))
	mux.HandleFunc("POST /login", middleware.ChainFunc(auth.Login, requireGuest, rateLimit))
	mux.HandleFunc("GET /signup", requireGuest(auth.SignupPage))
	mux.HandleFunc("POST /signup", middleware.ChainFunc(auth.Signup, requireGuest, rateLimit))

	// Email verification, reachable in any session state
	mux.HandleFunc("GET /verify-email", verify.VerifyEmail)

	// Provider linking
	mux.HandleFunc("GET /auth/{provider}", middleware.ChainFunc(oauth.Login, requireGuest, rateLimit))
	mux.HandleFunc("GET /auth/{provider}/callback", rateLimit(oauth.Callback))

	// ============================================================================
	// PROTECTED ROUTES (/app/*)
	// ============================================================================

	mux.HandleFunc("GET /app/dashboard", requireSession(dashboard.DashboardPage))
	mux.HandleFunc("GET /app/onboarding", requireSession(dashboard.OnboardingPage))
	mux.HandleFunc("POST /app/onboarding", requireSession(dashboard.CompleteOnboarding))
	mux.HandleFunc("POST /app/connections/{provider}", requireSession(oauth.Connect))

	mux.HandleFunc("POST /logout", dashboard.Logout)

	// ============================================================================
	// FALLBACK
	// ============================================================================

	mux.HandleFunc("/{path...}", dashboard.NotFoundPage)

	// Global middleware - executed in order (top to bottom)
	handler := middleware.Chain(
		mux,
		middleware.Config(app.Cfg),
		middleware.RequestLogging,
		middleware.CSRFProtection,
		middleware.Session(app.Sessions.Store()),
	)

	return handler
}
