package server

import (
	"crypto/sha256"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

const authCacheTTL = 5 * time.Minute

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.AllowLocalhostNoAuth && requestIsLoopback(r) {
			next.ServeHTTP(w, r)
			return
		}
		if !s.keyAllowed(bearerToken(r.Header)) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(h http.Header) string {
	auth := h.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// keyAllowed compares the presented key against every stored bcrypt hash.
// A hash comparison costs tens of milliseconds, so verified keys are
// remembered for a few minutes, keyed by digest rather than the key itself.
func (s *Server) keyAllowed(token string) bool {
	if token == "" {
		return false
	}
	sum := sha256.Sum256([]byte(token))
	now := time.Now()
	if _, ok := s.authCache.Get(sum, now); ok {
		return true
	}
	for _, k := range s.cfg.APIKeys {
		if bcrypt.CompareHashAndPassword([]byte(k.Hash), []byte(token)) == nil {
			s.authCache.Set(sum, struct{}{}, now, authCacheTTL)
			return true
		}
	}
	return false
}

func requestIsLoopback(r *http.Request) bool {
	return hostIsLoopback(remoteHost(r))
}

func remoteHost(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return ""
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return host
}

func hostIsLoopback(host string) bool {
	if host == "" {
		return false
	}
	ip := net.ParseIP(host)
	if ip != nil {
		return ip.IsLoopback()
	}
	return strings.EqualFold(host, "localhost")
}
