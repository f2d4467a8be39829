// Package identity provides anonymous per-browser identity primitives.
//
// A browser profile is identified by a long-lived cookie (the server-side
// equivalent of browser local storage). A browser session is identified by a
// cookie without Max-Age, so it ends when the browser session ends.
//
// Cookies are shared by every tab of a browser, so all tabs see the same
// browser session and the same chat state. Clients that need per-tab
// isolation send their own id in the X-Console-Session-ID header.
package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"
)

const (
	ProfileCookieName = "console_profile"
	SessionCookieName = "console_tab"
	SessionHeaderName = "X-Console-Session-ID"
	profileCookieAge  = 365 * 24 * time.Hour
)

type contextKey int

const (
	profileKeyKey contextKey = iota
	sessionKeyKey
)

var (
	profileKeyPattern = regexp.MustCompile(`^profile_[a-f0-9]{32}$`)
	sessionKeyPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)
)

// ProfileKeyFromContext extracts the browser profile key from the request context.
func ProfileKeyFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(profileKeyKey).(string); ok {
		return v
	}
	return ""
}

// SessionKeyFromContext extracts the browser session key from the request context.
func SessionKeyFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(sessionKeyKey).(string); ok {
		return v
	}
	return ""
}

// WithKeys returns a context carrying the given identity, for tests and
// internal callers.
func WithKeys(ctx context.Context, profileKey, sessionKey string) context.Context {
	ctx = context.WithValue(ctx, profileKeyKey, profileKey)
	return context.WithValue(ctx, sessionKeyKey, sessionKey)
}

func generateID(prefix string) (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate %s id: %w", prefix, err)
	}
	return prefix + "_" + hex.EncodeToString(buf), nil
}

func isValidProfileKey(id string) bool {
	return profileKeyPattern.MatchString(id)
}

func isValidSessionKey(id string) bool {
	return sessionKeyPattern.MatchString(strings.TrimSpace(id))
}

func getOrCreateProfileKey(w http.ResponseWriter, r *http.Request, isDev bool) (string, error) {
	id := ""
	if c, err := r.Cookie(ProfileCookieName); err == nil && isValidProfileKey(c.Value) {
		id = c.Value
	} else {
		id, err = generateID("profile")
		if err != nil {
			return "", err
		}
	}

	// Refresh on every request so active profiles never expire.
	http.SetCookie(w, &http.Cookie{
		Name:     ProfileCookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(profileCookieAge.Seconds()),
		Expires:  time.Now().Add(profileCookieAge),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   !isDev,
	})
	return id, nil
}

func getOrCreateSessionKey(w http.ResponseWriter, r *http.Request, isDev bool) (string, error) {
	if sid := strings.TrimSpace(r.Header.Get(SessionHeaderName)); sid != "" && isValidSessionKey(sid) {
		return sid, nil
	}
	if c, err := r.Cookie(SessionCookieName); err == nil && isValidSessionKey(c.Value) {
		return c.Value, nil
	}

	id, err := generateID("tab")
	if err != nil {
		return "", err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   !isDev,
	})
	return id, nil
}

// Middleware injects the anonymous browser profile and browser session keys.
func Middleware(isDev bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			profileKey, err := getOrCreateProfileKey(w, r, isDev)
			if err != nil {
				http.Error(w, `{"error":"failed to establish anonymous identity"}`, http.StatusInternalServerError)
				return
			}

			sessionKey, err := getOrCreateSessionKey(w, r, isDev)
			if err != nil {
				http.Error(w, `{"error":"failed to establish browser session"}`, http.StatusInternalServerError)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithKeys(r.Context(), profileKey, sessionKey)))
		})
	}
}
