package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/knightwatch/chessd/internal/auth"
	"github.com/knightwatch/chessd/internal/game"
)

// extractCookieToken pulls a named cookie value out of a raw Cookie header, or
// returns empty if not present.
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

// EnsureIdentity resolves the requester from the auth_token cookie, minting an
// ephemeral guest identity when the cookie is missing or invalid. Guests keep
// their identity across requests through the cookie set here. The display name
// comes from the username query parameter when given.
func EnsureIdentity(w http.ResponseWriter, r *http.Request) (game.Actor, error) {
	cookieHeader := r.Header.Get("Cookie")
	token := extractCookieToken(cookieHeader, "auth_token")

	var userID uuid.UUID
	if token != "" {
		if sub, err := auth.AuthenticateJWT(token); err == nil {
			if id, err := uuid.Parse(sub); err == nil {
				userID = id
			}
		}
	}
	if userID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return game.Actor{}, fmt.Errorf("mint guest id: %w", err)
		}
		newToken, err := auth.CreateJWT(id.String())
		if err != nil {
			return game.Actor{}, fmt.Errorf("mint guest token: %w", err)
		}
		http.SetCookie(w, &http.Cookie{
			Name:     "auth_token",
			Value:    newToken,
			HttpOnly: true,
			Path:     "/",
		})
		userID = id
	}

	username := strings.TrimSpace(r.URL.Query().Get("username"))
	if username == "" {
		username = "guest-" + userID.String()[:8]
	}
	return game.Actor{UserID: userID, Username: username}, nil
}
