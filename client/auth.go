package client

import (
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"ohnitiel/upsql/dberr"
)

// TokenAuthFiller sends an API token with every call. Tokens that happen to
// be JWTs are checked for expiry locally; opaque tokens are passed as is.
type TokenAuthFiller struct {
	token string
	now   func() time.Time
}

func NewTokenAuthFiller(token string) *TokenAuthFiller {
	return &TokenAuthFiller{token: token, now: time.Now}
}

func (f *TokenAuthFiller) Fill(req *http.Request) error {
	if f.token == "" || tokenExpired(f.token, f.now()) {
		return dberr.NewAuth(0, "", req.Header.Get(RequestIDHeader))
	}
	req.Header.Set("Authorization", f.token)
	return nil
}

func tokenExpired(token string, now time.Time) bool {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return false
	}
	return claims.ExpiresAt != nil && claims.ExpiresAt.Before(now)
}
