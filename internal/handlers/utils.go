package handlers

import "strings"

// extractCookieToken extracts a named cookie value from the "Cookie" header,
// or returns empty if not found.
func extractCookieToken(cookieHeader, cookieName string) string {
	parts := strings.Split(cookieHeader, cookieName+"=")
	if len(parts) < 2 {
		return ""
	}
	token := parts[1]
	if idx := strings.Index(token, ";"); idx != -1 {
		token = token[:idx]
	}
	return token
}

// bearerToken extracts the token from an "Authorization: Bearer" header.
func bearerToken(authHeader string) string {
	const prefix = "Bearer "
	if strings.HasPrefix(authHeader, prefix) {
		return strings.TrimSpace(authHeader[len(prefix):])
	}
	return ""
}
