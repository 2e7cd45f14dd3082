package ratelimit

import (
	"errors"
	"net"
	"net/http"
)

// Trusted server-side applications making requests on behalf of other
// clients authenticate with an API key and supply the client's IP address
// in a header. That IP is then used for rate limiting instead.
const (
	HeaderForwardedIP = "Bytebin-Forwarded-For"
	HeaderAPIKey      = "Bytebin-Api-Key"
)

// Sentinel errors mapped to HTTP statuses by the route handlers.
var (
	ErrInvalidAPIKey = errors.New("API key is invalid")
	ErrRateLimited   = errors.New("Rate limit exceeded")
)

// Result describes the rate-limit classification of a request.
type Result struct {
	// IP is the address used for rate limiting.
	IP string

	// RealUser is false for requests made by a trusted application on its
	// own behalf (valid API key, no forwarded IP). Metrics and the
	// not-found limiter only apply to real users.
	RealUser bool
}

// CountMetrics reports whether the request should count towards metrics.
func (r Result) CountMetrics() bool {
	return r.RealUser
}

// Handler resolves client IP addresses and applies a rate limiter.
type Handler struct {
	apiKeys map[string]struct{}
}

// NewHandler creates a Handler trusting the given API keys.
func NewHandler(apiKeys []string) *Handler {
	set := make(map[string]struct{}, len(apiKeys))
	for _, k := range apiKeys {
		set[k] = struct{}{}
	}
	return &Handler{apiKeys: set}
}

// ClientIP resolves the requester address, preferring the x-real-ip header
// set by fronting proxies over the socket address.
func ClientIP(req *http.Request) string {
	if ip := req.Header.Get("x-real-ip"); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		return req.RemoteAddr
	}
	return host
}

// Check resolves the requester IP, applies API key based trust and records
// the request against the limiter. Returns ErrInvalidAPIKey for a bad key
// and ErrRateLimited when the limiter rejects the request.
func (h *Handler) Check(req *http.Request, limiter RateLimiter) (Result, error) {
	ip := ClientIP(req)
	realUser := true

	if apiKey := req.Header.Get(HeaderAPIKey); apiKey != "" {
		if _, ok := h.apiKeys[apiKey]; !ok {
			return Result{}, ErrInvalidAPIKey
		}
		if forwarded := req.Header.Get(HeaderForwardedIP); forwarded != "" {
			ip = forwarded
		} else {
			realUser = false
		}
	}

	if limiter.CheckAndIncrement(ip) {
		return Result{}, ErrRateLimited
	}

	return Result{IP: ip, RealUser: realUser}, nil
}
