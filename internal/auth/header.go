package auth

import (
	"net/http"
	"net/url"
	"strings"
)

// TokenInputField is the request input key consulted when no Authorization header is present.
const TokenInputField = "token"

// ExtractToken returns the raw token carried by a request. It accepts
// "Authorization: Bearer <t>" and "Authorization: token <t>" (scheme is case-insensitive)
// and falls back to the "token" input field.
func ExtractToken(headers http.Header, input url.Values) (string, bool) {
	if authHeader := headers.Get("Authorization"); authHeader != "" {
		scheme, value, found := strings.Cut(strings.TrimSpace(authHeader), " ")
		if found {
			value = strings.TrimSpace(value)
			if value != "" && (strings.EqualFold(scheme, "bearer") || strings.EqualFold(scheme, "token")) {
				return value, true
			}
		}
	}
	if input != nil {
		if value := strings.TrimSpace(input.Get(TokenInputField)); value != "" {
			return value, true
		}
	}
	return "", false
}
