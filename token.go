package authclient

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
)

// ErrUnableToDecodeToken is returned when an access token cannot be parsed.
var ErrUnableToDecodeToken = goerrors.New("unable to decode access token", goerrors.CategoryAuth).
	WithCode(goerrors.CodeUnauthorized)

// DecodeExpiry extracts the expiry claim from an access token without
// verifying its signature; verification is a server responsibility, the
// client only needs liveness. Tokens without an exp claim are rejected.
func DecodeExpiry(token string) (time.Time, error) {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()

	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return time.Time{}, goerrors.Wrap(err, goerrors.CategoryAuth, "unable to decode access token").
			WithCode(goerrors.CodeUnauthorized)
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, ErrUnableToDecodeToken
	}

	return exp.Time, nil
}

// IsExpired reports whether the access token's expiry claim is at or before
// now. Fails closed: undecodable tokens are treated as expired.
func IsExpired(token string, now time.Time) bool {
	exp, err := DecodeExpiry(token)
	if err != nil {
		return true
	}
	return !exp.After(now)
}
