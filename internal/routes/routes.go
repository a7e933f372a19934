package routes

import (
	"net/http"

	"github.com/dropbeam/dropbeam/internal/app"
	"github.com/dropbeam/dropbeam/internal/handler"
	"github.com/dropbeam/dropbeam/internal/middleware"
)

// SetupRoutes maps every transport operation 1:1 onto a core method.
func SetupRoutes(app *app.App) http.Handler {
	// Handlers
	session := handler.NewSessionHandler(app.SessionService)
	upload := handler.NewUploadHandler(app.UploadService, app.Cfg.MaxChunkSize)
	events := handler.NewEventsHandler(app.Hub, app.SessionService)
	health := handler.NewHealthHandler(app.DB, app.Hub)

	mux := http.NewServeMux()

	// Health
	mux.HandleFunc("GET /api/health", health.Check)

	// Sessions (creation rate limited, QR generation is not free)
	rateLimiter := middleware.RateLimit(app.Cfg.RateLimitMax, app.Cfg.RateLimitWindow)
	mux.HandleFunc("POST /api/session", rateLimiter(session.Create))
	mux.HandleFunc("GET /api/session/{token}", session.Get)
	mux.HandleFunc("POST /api/session/{token}/complete", session.Complete)
	mux.HandleFunc("DELETE /api/session/{token}", session.Delete)
	mux.HandleFunc("GET /api/session/{token}/file/{id}", session.DownloadURL)

	// Uploads
	mux.HandleFunc("POST /api/upload/init", upload.Init)
	mux.HandleFunc("PUT /api/upload/part", upload.Part)
	mux.HandleFunc("POST /api/upload/complete", upload.Complete)
	mux.HandleFunc("DELETE /api/upload/{id}", upload.Abandon)

	// Event streams
	mux.HandleFunc("GET /api/events", events.SSE)
	mux.HandleFunc("GET /api/ws", events.WebSocket)

	// Global middleware - executed in order (top to bottom)
	h := middleware.Chain(
		mux,
		middleware.CORS,
		middleware.RequestLogging,
	)

	return h
}
