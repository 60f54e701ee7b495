package ratelimit

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
)

// UnknownClient is the key component used when no client address resolves.
const UnknownClient = "unknown"

// maxBodyPeek bounds how much of a request body is read to find an email.
const maxBodyPeek = 1 << 20

type clientIPKey struct{}

// WithClientIP pins the client address for the request. ClientIP prefers it
// over any header.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey{}, ip)
}

// ClientIP resolves the client address: an address pinned with WithClientIP,
// then the first X-Forwarded-For entry, then X-Real-IP, then the host part of
// RemoteAddr, then UnknownClient.
func ClientIP(r *http.Request) string {
	if ip, ok := r.Context().Value(clientIPKey{}).(string); ok && ip != "" {
		return ip
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}

	if ip := RemoteHost(r.RemoteAddr); ip != "" {
		return ip
	}
	return UnknownClient
}

// RemoteHost strips the port from a socket address.
func RemoteHost(addr string) string {
	addr = strings.TrimSpace(addr)
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

// NormalizeEmail trims and lower-cases an address. It returns "" for blank input.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// EmailFromBody extracts the normalized "email" field of a JSON request body.
// The body is restored so the next handler can decode it again.
func EmailFromBody(r *http.Request) string {
	if r.Body == nil || r.Body == http.NoBody {
		return ""
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyPeek))
	// Anything past the peek stays unread so the handler sees the whole body.
	r.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(data), r.Body), r.Body}
	if err != nil || len(data) == 0 {
		return ""
	}

	var payload struct {
		Email any `json:"email"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return ""
	}
	email, ok := payload.Email.(string)
	if !ok {
		return ""
	}
	return NormalizeEmail(email)
}
