package router

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/app"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/attendance"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/geocode"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/imagehost"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/session"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/setting"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/user"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/user/entity"
)

// loggingResponseWriter wraps http.ResponseWriter to capture status and size.
type loggingResponseWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.status = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Write(b []byte) (int, error) {
	if lrw.status == 0 {
		lrw.status = http.StatusOK
	}
	n, err := lrw.ResponseWriter.Write(b)
	lrw.size += n
	return n, err
}

// LoggingMiddleware returns a middleware that logs requests at debug level using the provided sugared logger.
func LoggingMiddleware(logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			lrw := &loggingResponseWriter{ResponseWriter: w}
			next.ServeHTTP(lrw, r)
			dur := time.Since(start)
			// ensure status is set
			status := lrw.status
			if status == 0 {
				status = http.StatusOK
			}
			logger.Debugw("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"remote", r.RemoteAddr,
				"status", status,
				"duration_ms", float64(dur.Microseconds())/1000.0,
				"size", lrw.size,
			)
		})
	}
}

// SecurityHeadersMiddleware returns a middleware that sets common HTTP security headers.
// It is intentionally simple and conservative so it works with most setups.
func SecurityHeadersMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Prevent MIME sniffing
			w.Header().Set("X-Content-Type-Options", "nosniff")

			// Clickjacking protection
			w.Header().Set("X-Frame-Options", "DENY")

			// Referrer policy
			w.Header().Set("Referrer-Policy", "no-referrer-when-downgrade")

			// Permissions policy (formerly Feature-Policy); the API serves no pages
			// so camera and geolocation stay off even though clients use both
			w.Header().Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")

			// Basic Content-Security-Policy - block mixed content and restrict sources to self by default
			// Keep this conservative; callers may opt to override with more specific policy downstream.
			if w.Header().Get("Content-Security-Policy") == "" {
				w.Header().Set("Content-Security-Policy", "default-src 'self'; object-src 'none'; base-uri 'self';")
			}

			// HSTS - instruct browsers to use HTTPS for future requests. Only set if request is over TLS.
			if r.TLS != nil {
				// 30 days by default
				w.Header().Set("Strict-Transport-Security", "max-age=2592000; includeSubDomains")
			}

			next.ServeHTTP(w, r)
		})
	}
}

// CORSMiddleware answers preflight requests and echoes the single allowed
// origin. An empty origin disables CORS headers entirely.
func CORSMiddleware(allowedOrigin string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if allowedOrigin == "" || origin == "" || (allowedOrigin != "*" && origin != allowedOrigin) {
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
				w.Header().Set("Access-Control-Max-Age", "600")
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RegisterRoutes mounts HTTP handlers using the standard library's http.ServeMux.
func RegisterRoutes(logger *zap.SugaredLogger, a *app.App) http.Handler {
	mux := http.NewServeMux()

	auth := session.RequireAuth(a.Sessions, logger)
	admin := func(h http.HandlerFunc) http.Handler {
		return auth(session.RequireRole(logger, entity.RoleAdmin)(h))
	}
	authed := func(h http.HandlerFunc) http.Handler { return auth(h) }

	sessionHandler := session.NewHandler(a.Sessions, a.Users, logger)
	userHandler := user.NewHandler(a.Users, a.Sessions, logger)
	attendanceHandler := attendance.NewHandler(a.Attendance, logger)
	settingHandler := setting.NewHandler(a.Hours, logger)
	geocodeHandler := geocode.NewHandler(a.Geocoder, logger)
	uploadHandler := imagehost.NewHandler(a.Images, logger)

	// health
	mux.HandleFunc("GET /api/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// session
	mux.HandleFunc("POST /api/register", userHandler.Register)
	mux.HandleFunc("POST /api/login", sessionHandler.Login)
	mux.HandleFunc("GET /api/validate-token", sessionHandler.ValidateToken)
	mux.HandleFunc("POST /api/refresh-token", sessionHandler.RefreshToken)
	mux.HandleFunc("POST /api/logout", sessionHandler.Logout)

	// users
	mux.Handle("GET /api/v1/users/me", authed(userHandler.Me))
	mux.Handle("PUT /api/v1/users/me", authed(userHandler.UpdateMe))
	mux.Handle("PUT /api/v1/users/me/password", authed(userHandler.ChangePassword))
	mux.Handle("GET /api/v1/users", admin(userHandler.List))
	mux.Handle("POST /api/v1/users", admin(userHandler.CreateEmployee))

	// attendance
	mux.Handle("POST /api/v1/attendance", authed(attendanceHandler.Submit))
	mux.Handle("GET /api/v1/attendance", authed(attendanceHandler.History))
	mux.Handle("GET /api/v1/attendance/today/{userId}", authed(attendanceHandler.Today))
	mux.Handle("GET /api/v1/stats/dashboard", admin(attendanceHandler.Dashboard))

	// business hours
	mux.Handle("GET /api/v1/business-hours", authed(settingHandler.Get))
	mux.Handle("PUT /api/v1/business-hours", admin(settingHandler.Update))

	// outbound proxies
	mux.Handle("POST /api/v1/uploads", authed(uploadHandler.Upload))
	mux.Handle("GET /api/v1/geocode/reverse", authed(geocodeHandler.Reverse))

	// wrap with CORS, security headers, then logging middleware
	handler := LoggingMiddleware(logger)(SecurityHeadersMiddleware()(CORSMiddleware(a.Config.CORSAllowedOrigin)(mux)))
	return handler
}
