package identity

import (
	"net/http"
	"time"
)

// CookieJar maps Credentials to and from HTTP cookies.
type CookieJar struct {
	AccessName  string
	RefreshName string
	AccessTTL   time.Duration
	RefreshTTL  time.Duration
	Secure      bool
}

// Read extracts credentials from the request cookies.
func (j CookieJar) Read(r *http.Request) Credentials {
	var creds Credentials
	if c, err := r.Cookie(j.AccessName); err == nil {
		creds.AccessToken = c.Value
	}
	if c, err := r.Cookie(j.RefreshName); err == nil {
		creds.RefreshToken = c.Value
	}
	return creds
}

// Write sets both credential cookies on the response.
func (j CookieJar) Write(w http.ResponseWriter, creds Credentials) {
	http.SetCookie(w, j.cookie(j.AccessName, creds.AccessToken, j.AccessTTL))
	http.SetCookie(w, j.cookie(j.RefreshName, creds.RefreshToken, j.RefreshTTL))
}

// Clear expires both credential cookies.
func (j CookieJar) Clear(w http.ResponseWriter) {
	http.SetCookie(w, j.cookie(j.AccessName, "", -1))
	http.SetCookie(w, j.cookie(j.RefreshName, "", -1))
}

func (j CookieJar) cookie(name, value string, ttl time.Duration) *http.Cookie {
	c := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   j.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	if ttl < 0 {
		c.MaxAge = -1
		return c
	}
	c.MaxAge = int(ttl.Seconds())
	c.Expires = time.Now().Add(ttl)
	return c
}

// Apply replaces the credential cookies carried by r so handlers further down
// the chain see creds instead of the values the client sent.
func (j CookieJar) Apply(r *http.Request, creds Credentials) {
	kept := r.Cookies()
	r.Header.Del("Cookie")
	for _, c := range kept {
		if c.Name == j.AccessName || c.Name == j.RefreshName {
			continue
		}
		r.AddCookie(c)
	}
	r.AddCookie(&http.Cookie{Name: j.AccessName, Value: creds.AccessToken})
	r.AddCookie(&http.Cookie{Name: j.RefreshName, Value: creds.RefreshToken})
}
