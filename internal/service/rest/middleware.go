package rest

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/nutshop/internal/auth"
	"github.com/vladislavdragonenkov/nutshop/internal/metrics"
)

type contextKey string

// claimsContextKey хранит разобранные claims токена в контексте запроса.
const claimsContextKey contextKey = "auth-claims"

// claimsFromContext достаёт claims, положенные authenticate.
func claimsFromContext(ctx context.Context) (auth.Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey).(auth.Claims)
	return claims, ok
}

// authenticate проверяет Bearer-токен и кладёт claims в контекст.
//
// Любой дефект токена, включая просроченный, отдаётся как 400 с
// историческим текстом "Invalid User Token.".
func authenticate(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				writeFailure(w, http.StatusBadRequest, "Invalid User Token.")
				return
			}

			claims, err := auth.ParseToken(token, secret)
			if err != nil || claims.UserID <= 0 {
				writeFailure(w, http.StatusBadRequest, "Invalid User Token.")
				return
			}

			ctx := context.WithValue(r.Context(), claimsContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken извлекает токен из заголовка Authorization. Принимается как
// схема Bearer, так и голый токен.
func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return ""
	}
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return header
}

// requirePermission пропускает только токены с нужным правом; отказ
// отдаётся как 400 с переданным текстом.
func requirePermission(permission, denialMessage string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := claimsFromContext(r.Context())
			if !ok {
				writeFailure(w, http.StatusBadRequest, "Invalid User Token.")
				return
			}
			if !claims.Allowed(permission) {
				writeFailure(w, http.StatusBadRequest, denialMessage)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requestLogger пишет строку доступа в структурированный лог.
func requestLogger(logger *log.Entry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			logger.WithFields(log.Fields{
				"method":   r.Method,
				"path":     r.URL.Path,
				"status":   ww.Status(),
				"duration": time.Since(start),
				"bytes":    ww.BytesWritten(),
			}).Info("http request")
		})
	}
}

// observeRequests снимает длительность запроса в гистограмму по шаблону
// маршрута chi, а не по сырому пути, чтобы не раздувать кардинальность.
func observeRequests(m *metrics.OrderMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			route := chi.RouteContext(r.Context()).RoutePattern()
			if route == "" {
				route = "unmatched"
			}
			m.RecordHTTPRequest(r.Method, route, strconv.Itoa(ww.Status()), time.Since(start))
		})
	}
}
