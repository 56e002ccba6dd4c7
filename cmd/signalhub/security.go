package main

import (
	"crypto/subtle"
	"net/http"

	"signalhub/internal/httputil"
	"signalhub/internal/security"

	"github.com/sirupsen/logrus"
)

const apiKeyHeader = "X-API-Key"

// authMiddleware guards the private API with an API key and an optional
// source IP allow list. Loopback callers are always admitted by the list
// but still need the key.
func (s *Server) authMiddleware() func(http.Handler) http.Handler {
	allowList := security.NewAllowList(s.cfg.Server.AllowedIPs)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientIP := httputil.GetClientIP(r)

			if !allowList.AllowsIP(clientIP) {
				s.logger.WithFields(logrus.Fields{
					"remote_ip": clientIP,
					"path":      r.URL.Path,
				}).Warn("Request from disallowed IP")
				writeError(w, http.StatusForbidden, "forbidden")
				return
			}

			if s.cfg.Server.APIKey != "" {
				provided := r.Header.Get(apiKeyHeader)
				if subtle.ConstantTimeCompare([]byte(provided), []byte(s.cfg.Server.APIKey)) != 1 {
					s.logger.WithFields(logrus.Fields{
						"remote_ip": clientIP,
						"path":      r.URL.Path,
					}).Warn("Request with missing or invalid API key")
					writeError(w, http.StatusUnauthorized, "unauthorized")
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}
