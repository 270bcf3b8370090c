package httputil

import (
	"net/http"
	"time"
)

// Cookie names. The session ID is not secret but the token is; both are
// HttpOnly and both are required to resolve a session.
const (
	CookieSessionID    = "session_id"
	CookieSessionToken = "session_token"
)

// CookieConfig holds cookie configuration.
type CookieConfig struct {
	Domain   string
	Path     string
	Secure   bool // true in production (HTTPS)
	SameSite http.SameSite
}

// DefaultCookieConfig returns default cookie configuration.
func DefaultCookieConfig() CookieConfig {
	return CookieConfig{
		Path:     "/",
		Secure:   false,
		SameSite: http.SameSiteLaxMode,
	}
}

// SetSessionCookies sets HttpOnly cookies for the session pair.
func SetSessionCookies(w http.ResponseWriter, sessionID, token string, ttl time.Duration, cfg CookieConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieSessionID,
		Value:    sessionID,
		Path:     cfg.Path,
		Domain:   cfg.Domain,
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: cfg.SameSite,
	})

	http.SetCookie(w, &http.Cookie{
		Name:     CookieSessionToken,
		Value:    token,
		Path:     cfg.Path,
		Domain:   cfg.Domain,
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: cfg.SameSite,
	})
}

// ClearSessionCookies clears the session cookies.
func ClearSessionCookies(w http.ResponseWriter, cfg CookieConfig) {
	for _, name := range []string{CookieSessionID, CookieSessionToken} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     cfg.Path,
			Domain:   cfg.Domain,
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   cfg.Secure,
			SameSite: cfg.SameSite,
		})
	}
}

// GetSessionFromCookies extracts the session pair from cookies.
func GetSessionFromCookies(r *http.Request) (sessionID, token string, ok bool) {
	idCookie, err := r.Cookie(CookieSessionID)
	if err != nil {
		return "", "", false
	}
	tokenCookie, err := r.Cookie(CookieSessionToken)
	if err != nil {
		return "", "", false
	}
	return idCookie.Value, tokenCookie.Value, true
}

// IsMobileClient checks if the request is from a mobile client. Mobile
// clients send the session pair in the request body instead of cookies and
// should set header: X-Client-Type: mobile
func IsMobileClient(r *http.Request) bool {
	return r.Header.Get("X-Client-Type") == "mobile"
}
