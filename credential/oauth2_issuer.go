package credential

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// OAuth2Issuer mints credentials from a standards-based OAuth2 token endpoint.
//
// Login uses the client credentials grant unless user credentials are set, in
// which case the resource owner password grant is used. Refresh uses the
// refresh_token grant.
type OAuth2Issuer struct {
	config      *oauth2.Config
	clientCreds *clientcredentials.Config
	user        *UserCredentials
	httpClient  *http.Client
}

// NewOAuth2Issuer creates an issuer for tokenURL.
//
// Parameters:
//   - tokenURL: OAuth2 token endpoint (e.g., "https://auth.example.com/oauth/v2/token")
//   - clientID: OAuth2 client identifier
//   - clientSecret: OAuth2 client secret
//   - scopes: Space-separated list of OAuth2 scopes (e.g., "openid profile email")
//   - user: Optional resource owner credentials; nil selects the client credentials grant
func NewOAuth2Issuer(tokenURL, clientID, clientSecret, scopes string, user *UserCredentials) *OAuth2Issuer {
	// Split scopes by whitespace to avoid sending a single concatenated scope.
	scopesList := strings.Fields(scopes)

	return &OAuth2Issuer{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     oauth2.Endpoint{TokenURL: tokenURL},
			Scopes:       scopesList,
		},
		clientCreds: &clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			TokenURL:     tokenURL,
			Scopes:       scopesList,
		},
		user: user,
	}
}

// SetHTTPClient makes token requests go through client, e.g. one carrying
// custom TLS settings. Without it the client from ctx (oauth2.HTTPClient) or
// http.DefaultClient is used.
func (i *OAuth2Issuer) SetHTTPClient(client *http.Client) *OAuth2Issuer {
	i.httpClient = client
	return i
}

// Login fetches a fresh token pair from the token endpoint.
func (i *OAuth2Issuer) Login(ctx context.Context) (TokenPair, error) {
	ctx = i.context(ctx)

	var (
		token *oauth2.Token
		err   error
	)
	if i.user != nil {
		token, err = i.config.PasswordCredentialsToken(ctx, i.user.Email, i.user.Password)
	} else {
		token, err = i.clientCreds.Token(ctx)
	}
	if err != nil {
		return TokenPair{}, oauth2Error(err, "credential: oauth2 token request failed")
	}

	return pairFromOAuth2(token), nil
}

// Refresh exchanges refreshToken at the token endpoint.
func (i *OAuth2Issuer) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	ctx = i.context(ctx)

	// An empty access token forces the source to hit the endpoint.
	token, err := i.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return TokenPair{}, oauth2Error(err, "credential: oauth2 refresh failed")
	}

	pair := pairFromOAuth2(token)
	if pair.RefreshToken == refreshToken {
		pair.RefreshToken = ""
	}
	return pair, nil
}

func (i *OAuth2Issuer) context(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if i.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, i.httpClient)
	}
	return ctx
}

// pairFromOAuth2 keeps the reported lifetimes so opaque tokens stay usable.
// refresh_expires_in is a common extension (e.g. Keycloak); without it an
// opaque refresh token is never offered back and the manager logs in again.
func pairFromOAuth2(token *oauth2.Token) TokenPair {
	return TokenPair{
		AccessToken:   token.AccessToken,
		RefreshToken:  token.RefreshToken,
		AccessExpiry:  token.Expiry,
		RefreshExpiry: expiryAfter(time.Now(), extraSeconds(token.Extra("refresh_expires_in"))),
	}
}

// extraSeconds reads a numeric token response field, which arrives as a
// float64 from JSON bodies and as a string from form-encoded ones.
func extraSeconds(v any) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case string:
		secs, err := strconv.ParseInt(n, 10, 64)
		if err != nil {
			return 0
		}
		return secs
	default:
		return 0
	}
}

func oauth2Error(err error, message string) *goerrors.Error {
	var retrieve *oauth2.RetrieveError
	if errors.As(err, &retrieve) && retrieve.Response != nil {
		return issuerError(err, message, retrieve.Response.StatusCode)
	}
	return issuerError(err, message, http.StatusBadGateway)
}
