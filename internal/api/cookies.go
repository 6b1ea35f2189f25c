package api

import (
	"net/http"
	"time"
)

const (
	accessTokenCookie  = "opsdec_access_token"
	refreshTokenCookie = "opsdec_refresh_token"
)

// setAuthCookies attaches HttpOnly cookies for both tokens alongside the
// JSON body every token-issuing response also carries them in.
func setAuthCookies(w http.ResponseWriter, accessToken, refreshToken string, accessTTL, refreshTTL time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     accessTokenCookie,
		Value:    accessToken,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(accessTTL.Seconds()),
	})
	http.SetCookie(w, &http.Cookie{
		Name:     refreshTokenCookie,
		Value:    refreshToken,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(refreshTTL.Seconds()),
	})
}

// clearAuthCookies expires both cookies, used on logout.
func clearAuthCookies(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name: accessTokenCookie, Value: "", Path: "/", HttpOnly: true, MaxAge: -1,
	})
	http.SetCookie(w, &http.Cookie{
		Name: refreshTokenCookie, Value: "", Path: "/", HttpOnly: true, MaxAge: -1,
	})
}

// bearerOrCookie extracts an access token from the Authorization header
// first, falling back to the cookie so a browser session without JS-visible
// storage still authenticates.
func bearerOrCookie(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); len(auth) > 7 && auth[:7] == "Bearer " {
		return auth[7:]
	}
	if c, err := r.Cookie(accessTokenCookie); err == nil {
		return c.Value
	}
	return ""
}

// refreshFromCookie extracts the refresh token cookie, used when the
// request body didn't carry one.
func refreshFromCookie(r *http.Request) string {
	if c, err := r.Cookie(refreshTokenCookie); err == nil {
		return c.Value
	}
	return ""
}
