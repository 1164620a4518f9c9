package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"strings"
)

// UnknownIdentifier is used when neither a token nor an address can be derived
const UnknownIdentifier = "unknown"

// IdentifierFunc derives the caller identity used in the bucket key
type IdentifierFunc func(r *http.Request) string

// BearerOrIPIdentifier prefers the bearer token, then the client address.
// The token is hashed so credentials never end up in store keys or logs.
func BearerOrIPIdentifier(r *http.Request) string {
	if token := bearerToken(r); token != "" {
		sum := sha256.Sum256([]byte(token))
		return "bearer:" + hex.EncodeToString(sum[:])
	}
	return IPIdentifier(r)
}

// IPIdentifier identifies the caller by client address only
func IPIdentifier(r *http.Request) string {
	if ip := extractIP(r); ip != "" {
		return "ip:" + ip
	}
	return UnknownIdentifier
}

// bearerToken extrai o token do header Authorization
func bearerToken(r *http.Request) string {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(auth) < 7 || !strings.EqualFold(auth[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(auth[7:])
}

// extractIP extrai o IP real do cliente considerando proxies
func extractIP(r *http.Request) string {
	// 1. Tenta X-Forwarded-For (proxy, load balancer)
	if forwardedFor := r.Header.Get("X-Forwarded-For"); forwardedFor != "" {
		// Pega o primeiro IP da lista (cliente original)
		ips := strings.Split(forwardedFor, ",")
		if ip := strings.TrimSpace(ips[0]); ip != "" {
			return ip
		}
	}

	// 2. Tenta X-Real-IP (nginx, cloudflare)
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}

	// 3. Usa RemoteAddr (conexão direta)
	// Remove porta: "192.168.1.1:12345" → "192.168.1.1", "[::1]:80" → "::1"
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
