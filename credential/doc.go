// Package credential keeps a bearer credential usable for outgoing service calls.
//
// A Manager owns one access/refresh token pair. Each call to AuthorizationValue
// reuses the access token while its exp claim is in the future, otherwise
// refreshes it through the Issuer while the refresh token is alive, and as a
// last resort logs in again. Issuer failures are logged and swallowed: the
// caller simply gets no token and proceeds unauthenticated.
//
// # Features
//
//   - Expiry derived from the token itself on every check (no cached validity flag)
//   - Monotonic escalation: reuse, refresh, login
//   - Serialized refresh/login so concurrent callers cause one issuer call
//   - JSON login/refresh issuer (HTTPIssuer) and OAuth2 issuer (OAuth2Issuer)
//   - Optional JWKS signature verification (JWKSVerifier)
//   - oauth2.TokenSource implementation for reuse with golang.org/x/oauth2
//
// # Quick Start
//
//	issuer := credential.NewHTTPIssuer("https://api.example.com", credential.UserCredentials{
//	    Email:    "svc@example.com",
//	    Password: os.Getenv("SVC_PASSWORD"),
//	})
//	manager := credential.NewManager(issuer, credential.WithLogger(logger))
//
//	if token, ok := manager.AuthorizationValue(ctx); ok {
//	    req.Header.Set("Authorization", "Bearer "+token)
//	}
package credential
