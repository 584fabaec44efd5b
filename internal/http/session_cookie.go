package httpx

import (
	"crypto/subtle"
	"net/http"
	"time"

	domainauth "github.com/joblink/joblink-web/internal/domain/auth"
)

// sessionCookie carries the id of the session a browser signed in with.
const sessionCookie = "joblink_session"

func requestSessionID(r *http.Request) string {
	return cookieValue(r, sessionCookie)
}

// bindState narrows the controller state to what the client presenting sid may act on.
// Only the holder of the current session sees it; everyone else is a signed-out visitor.
// A credential presented while the controller is still loading with no session yet keeps
// the loading state so guards wait for it to settle.
func bindState(sid string, s domainauth.State) domainauth.State {
	switch {
	case sid == "":
		return domainauth.SignedOutState()
	case s.Session == nil:
		if s.Loading {
			return s
		}
		return domainauth.SignedOutState()
	case subtle.ConstantTimeCompare([]byte(sid), []byte(s.Session.ID)) == 1:
		return s
	default:
		return domainauth.SignedOutState()
	}
}

// requestState is the controller snapshot bound to the request's session credential.
func requestState(r *http.Request, s domainauth.State) domainauth.State {
	return bindState(requestSessionID(r), s)
}

// setSessionCookie hands the browser its session credential, expiring with the session.
func (h *AuthHandlers) setSessionCookie(w http.ResponseWriter, r *http.Request, sess domainauth.Session) {
	c := &http.Cookie{
		Name:     sessionCookie,
		Value:    sess.ID,
		Path:     "/",
		Domain:   h.CookieDomain,
		HttpOnly: true,
		Secure:   isSecureRequest(r),
		SameSite: http.SameSiteLaxMode,
	}
	if !sess.ExpiresAt.IsZero() {
		c.Expires = sess.ExpiresAt.UTC()
		c.MaxAge = max(int(time.Until(sess.ExpiresAt).Seconds()), 1)
	}
	http.SetCookie(w, c)
}
