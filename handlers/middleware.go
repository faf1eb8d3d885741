package handlers

import (
	"context"
	"crypto/subtle"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"railgate.app/api/internal/access"
	"railgate.app/api/internal/logger"
)

type ctxKey int

const emailKey ctxKey = iota

func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		// Query strings carry magic-link tokens, so only the path is logged.
		logger.Info("Request handled", map[string]interface{}{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      ww.Status(),
			"bytes":       ww.BytesWritten(),
			"duration_ms": time.Since(start).Milliseconds(),
			"request_id":  middleware.GetReqID(r.Context()),
			"remote_addr": r.RemoteAddr,
		})
	})
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter == nil || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		addr := clientAddr(r)
		if !s.limiter.Allow(addr) {
			logger.Warn("Rate limit exceeded", map[string]interface{}{
				"remote_addr": addr,
				"path":        r.URL.Path,
			})
			writeErrorResponse(w, http.StatusTooManyRequests, "Too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *Server) requireAccess(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		email, err := s.gate.RequireAccess(r.Context(), tokenFromRequest(r))
		switch {
		case err == nil:
		case errors.Is(err, access.ErrMissingToken):
			writeErrorResponse(w, http.StatusUnauthorized, "missing token")
			return
		case errors.Is(err, access.ErrInvalidToken):
			writeErrorResponse(w, http.StatusUnauthorized, "invalid token")
			return
		case errors.Is(err, access.ErrInactive):
			writeErrorResponse(w, http.StatusForbidden, "subscription inactive")
			return
		default:
			logger.Error("Access check failed", map[string]interface{}{
				"error": err.Error(),
				"path":  r.URL.Path,
			})
			writeErrorResponse(w, http.StatusInternalServerError, "Internal server error")
			return
		}

		ctx := context.WithValue(r.Context(), emailKey, email)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func tokenFromRequest(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return ""
}

func emailFromContext(ctx context.Context) string {
	email, _ := ctx.Value(emailKey).(string)
	return email
}

// adminOnly is a no-op when no admin key is configured.
func (s *Server) adminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		want := s.cfg.AdminKey
		if want == "" {
			next.ServeHTTP(w, r)
			return
		}

		got := r.Header.Get("X-Admin-Key")
		if got == "" {
			got = r.URL.Query().Get("key")
		}
		if subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
			logger.Warn("Admin key rejected", map[string]interface{}{
				"path":        r.URL.Path,
				"remote_addr": r.RemoteAddr,
			})
			writeErrorResponse(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}
