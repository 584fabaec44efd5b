package httpx

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

const (
	// DefaultCSRFCookieName is the cookie holding the double-submit token.
	DefaultCSRFCookieName = "csrf_token"
	// DefaultCSRFHeaderName is the header API clients echo the token in (canonical form).
	DefaultCSRFHeaderName = "X-Csrf-Token"
	// csrfFormField is the form field the sign-out form echoes the token in.
	csrfFormField   = "csrf_token"
	csrfTokenLength = 32
	csrfCookieAge   = 12 * 3600
)

// CSRFProtection guards state-changing requests with the double-submit cookie pattern.
// Every request gets a token cookie when it has none; POST, PUT, PATCH and DELETE must echo
// it in the X-Csrf-Token header or the csrf_token form field.
func CSRFProtection(cookieDomain string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := cookieValue(r, DefaultCSRFCookieName)
			if token == "" {
				var err error
				if token, err = generateCSRFToken(); err != nil {
					http.Error(w, "unable to generate CSRF token", http.StatusInternalServerError)
					return
				}
				setCSRFCookie(w, r, cookieDomain, token)
			}
			r = r.WithContext(context.WithValue(r.Context(), csrfTokenKey{}, token))

			if requiresCSRFValidation(r.Method) && !validCSRFToken(r, token) {
				WriteError(w, ErrorParams{
					Code:    http.StatusForbidden,
					ErrCode: "csrf_failed",
					Err:     errors.New("CSRF token validation failed"),
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func requiresCSRFValidation(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return false
	default:
		return true
	}
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}

// generateCSRFToken fails closed when the system RNG does.
func generateCSRFToken() (string, error) {
	b := make([]byte, csrfTokenLength)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("csrf token generation failed: %w", err)
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// setCSRFCookie leaves the cookie readable by scripts so API callers can echo it.
func setCSRFCookie(w http.ResponseWriter, r *http.Request, domain, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     DefaultCSRFCookieName,
		Value:    token,
		Path:     "/",
		Domain:   domain,
		HttpOnly: false,
		Secure:   isSecureRequest(r),
		SameSite: http.SameSiteStrictMode,
		MaxAge:   csrfCookieAge,
	})
}

// validCSRFToken compares the echoed token in constant time. The header wins over the form field.
func validCSRFToken(r *http.Request, cookieToken string) bool {
	if cookieToken == "" {
		return false
	}
	if header := r.Header.Get(DefaultCSRFHeaderName); header != "" {
		return subtle.ConstantTimeCompare([]byte(header), []byte(cookieToken)) == 1
	}
	ct := r.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "application/x-www-form-urlencoded") || strings.HasPrefix(ct, "multipart/form-data") {
		if err := r.ParseForm(); err != nil {
			return false
		}
		if field := r.FormValue(csrfFormField); field != "" {
			return subtle.ConstantTimeCompare([]byte(field), []byte(cookieToken)) == 1
		}
	}
	return false
}

type csrfTokenKey struct{}

// CSRFToken returns the token CSRFProtection attached to the request, or "".
func CSRFToken(r *http.Request) string {
	token, _ := r.Context().Value(csrfTokenKey{}).(string)
	return token
}
