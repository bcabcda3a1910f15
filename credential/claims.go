package credential

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrMalformedToken is returned by ParseClaims when a token cannot be decoded.
var ErrMalformedToken = errors.New("credential: malformed token")

// TokenClaims holds the claims of an access or refresh token that the
// manager needs to decide whether a token is still usable.
type TokenClaims struct {
	Subject string    // Subject (sub), empty when absent
	Expiry  time.Time // Expiry time (exp)
}

// ParseClaims decodes the payload segment of a compact JWT without verifying
// its signature. A token without an exp claim is reported as malformed.
func ParseClaims(token string) (*TokenClaims, error) {
	if token == "" {
		return nil, ErrMalformedToken
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	if exp == nil {
		return nil, fmt.Errorf("%w: missing exp claim", ErrMalformedToken)
	}

	sub, _ := claims.GetSubject()

	return &TokenClaims{
		Subject: sub,
		Expiry:  exp.Time,
	}, nil
}

// expiredAt reports whether token is unusable at now. A token is usable only
// while its expiry is strictly after now+leeway. The exp claim decides for
// JWTs; reported, the issuer's stated expiry, decides for opaque tokens. An
// opaque token without a reported expiry counts as expired.
func expiredAt(token string, reported, now time.Time, leeway time.Duration) bool {
	expiry, ok := expiresAt(token, reported)
	if !ok {
		return true
	}
	return expiry.Unix() <= now.Add(leeway).Unix()
}

func expiresAt(token string, reported time.Time) (time.Time, bool) {
	if token == "" {
		return time.Time{}, false
	}
	if claims, err := ParseClaims(token); err == nil {
		return claims.Expiry, true
	}
	if reported.IsZero() {
		return time.Time{}, false
	}
	return reported, true
}
