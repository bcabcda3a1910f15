// Package httpclient is the request pipeline of go-resx: bearer token injection,
// retry with exponential backoff and TLS/mTLS options.
//
// AuthTransport asks an AuthorizationSource (usually a *credential.Manager) for a
// token on every round trip and sets "Authorization: Bearer <token>". When no
// token is available the request goes out without the header, unless the
// transport is marked Required.
//
// Client resolves paths against a base URL, encodes JSON bodies once and
// replays them on every attempt. Attempts that receive no response (network
// error or the per-attempt timeout) and 5xx responses are retried; 4xx
// responses are not. With the defaults a failing call makes 4 attempts
// separated by 1s, 2s and 4s.
//
// # Features
//
//   - Fluent Builder producing a retrying Client or a plain http.Client
//   - TLS 1.2+ by default, with custom CA/mTLS and optional InsecureSkipVerify
//   - Per-attempt timeout, retry budget and backoff, token bucket rate limiting
//   - X-Request-Id header, identical across the retries of one call
//   - Failures as *goerrors.Error carrying the final HTTP status
//
// # Quick Start
//
//	manager := credential.NewManager(credential.NewHTTPIssuer(baseURL, creds))
//
//	client, err := httpclient.NewBuilder().
//	    WithBaseURL(baseURL).
//	    WithCredentials(manager).
//	    WithTLS("/path/to/ca.crt", "", "").
//	    Build()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	resp, err := client.Do(ctx, http.MethodGet, "/users/", nil)
//
// # Manual Transport Wrapping
//
//	transport := httpclient.NewAuthTransport(manager, nil)
//	client := &http.Client{Transport: transport}
//
// All components are safe for concurrent use.
package httpclient
