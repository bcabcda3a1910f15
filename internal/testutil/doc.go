// Package testutil provides test helpers for go-resx packages.
//
// It complements the public testutil package with helpers that only this
// module's tests need.
//
// # Utilities
//
//   - MockOAuth2Server, StaticJSONResponse, JSONResponse: stub OAuth2 token endpoints and capture requests
//   - WriteTestCACert / WriteTestCertAndKey: generate temporary CA and leaf certificates for tests
//   - GenerateTestKeyPair, CreateJWKSServer, SignRS256: RS256 tokens and a JWKS endpoint for verification tests
//   - CaptureLogger: a glog.Logger that records entries
package testutil
