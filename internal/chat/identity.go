package chat

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// Identity is the audit identity of one chat request. Raw IP and
// session values never leave the process; only salted hashes are
// persisted.
type Identity struct {
	RequestID   string
	ClientIP    string
	IPHash      string
	SessionHash string
}

// IdentityFromRequest derives the audit identity from forwarded
// headers, falling back to generated and placeholder values.
func IdentityFromRequest(r *http.Request, salt string) Identity {
	requestID := strings.TrimSpace(r.Header.Get("X-Request-Id"))
	if requestID == "" {
		requestID = uuid.NewString()
	}

	ip := clientIP(r)

	session := strings.TrimSpace(r.Header.Get("X-Session-Id"))
	if session == "" {
		session = r.Header.Get("Cookie")
	}
	if session == "" {
		session = r.Header.Get("User-Agent")
	}

	return Identity{
		RequestID:   requestID,
		ClientIP:    ip,
		IPHash:      saltedHash(salt, ip),
		SessionHash: saltedHash(salt, session),
	}
}

// clientIP prefers the first x-forwarded-for value, then x-real-ip.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first := strings.TrimSpace(strings.Split(fwd, ",")[0])
		if first != "" {
			return first
		}
	}
	if real := strings.TrimSpace(r.Header.Get("X-Real-Ip")); real != "" {
		return real
	}
	return "0.0.0.0"
}

func saltedHash(salt, value string) string {
	sum := sha256.Sum256([]byte(salt + ":" + value))
	return hex.EncodeToString(sum[:])
}
