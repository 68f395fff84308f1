package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"
)

type ServerConfig struct {
	Port           int
	AllowedOrigins []string
}

func NewServer(config ServerConfig, h *Handler) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/ping", ping)
	mux.HandleFunc("/api/users", h.withTimeout(h.users))
	mux.HandleFunc("/api/users/", h.withTimeout(h.userById))
	mux.HandleFunc("/books", h.withTimeout(h.books))
	mux.HandleFunc("/books/", h.withTimeout(h.bookById))
	mux.HandleFunc("/assign", h.withTimeout(h.assign))
	mux.HandleFunc("/borrowed-books/", h.withTimeout(h.borrowedBooks))
	mux.HandleFunc("/return-books", h.withTimeout(h.returnBooks))
	mux.HandleFunc("/dashboard/stats", h.withTimeout(h.dashboardStats))

	server := http.Server{
		Addr:    fmt.Sprintf(":%d", config.Port),
		Handler: logRequests(h.logger, cors(config.AllowedOrigins, mux)),
	}
	return &server
}

/* Tests the http server connection.  */
func ping(w http.ResponseWriter, r *http.Request) {
	method := r.Method
	if method == http.MethodGet {
		w.WriteHeader(http.StatusNoContent)
		return
	} else {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
}

/* Bounds the request context with the handler's request timeout, when one is set. */
func (h *Handler) withTimeout(next http.HandlerFunc) http.HandlerFunc {
	if h.requestTimeout <= 0 {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
		defer cancel()
		next(w, r.WithContext(ctx))
	}
}

/* Answers CORS preflights and tags responses for the allowed origins. "*" allows any origin. */
func cors(allowedOrigins []string, next http.Handler) http.Handler {
	anyOrigin := slices.Contains(allowedOrigins, "*")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		allowed := origin != "" && (anyOrigin || slices.Contains(allowedOrigins, origin))
		if allowed {
			if anyOrigin {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			} else {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			}
			w.Header().Set("Access-Control-Allow-Methods", strings.Join([]string{
				http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions,
			}, ", "))
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}

		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			if !allowed {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(status int) {
	rec.status = status
	rec.ResponseWriter.WriteHeader(status)
}

func logRequests(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start))
	})
}
