package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	goerrors "github.com/goliatone/go-errors"
)

// Text codes attached to pipeline failures.
const (
	TextCodeCredentialRequired = "HTTP_CREDENTIAL_REQUIRED"
	TextCodeNetwork            = "HTTP_NETWORK_FAILURE"
	TextCodeStatus             = "HTTP_STATUS_FAILURE"
	TextCodeRequest            = "HTTP_REQUEST_INVALID"
)

// ErrCredentialRequired is the cause of the failure an AuthTransport with
// Required set returns when no credential could be obtained. Match it with
// errors.Is. It is never retried.
var ErrCredentialRequired = errors.New("httpclient: no credential available")

// credentialRequiredError returns a new failure wrapping ErrCredentialRequired
// on every call, so callers may decorate it freely.
func credentialRequiredError() *goerrors.Error {
	return goerrors.Wrap(ErrCredentialRequired, goerrors.CategoryAuth, "httpclient: request requires a credential").
		WithCode(http.StatusUnauthorized).
		WithTextCode(TextCodeCredentialRequired)
}

// statusError builds the failure for a final non-2xx response.
func statusError(method, url string, status int, body []byte) *goerrors.Error {
	metadata := map[string]any{
		"method": method,
		"url":    url,
	}
	if len(body) > 0 {
		metadata["body"] = truncate(string(body), 512)
	}

	return goerrors.New(fmt.Sprintf("httpclient: HTTP %d on %s %s", status, method, url), categoryForStatus(status)).
		WithCode(status).
		WithTextCode(TextCodeStatus).
		WithMetadata(metadata)
}

// networkError builds the failure for an attempt that produced no response.
func networkError(err error, method, url string, attempts int) *goerrors.Error {
	code := http.StatusBadGateway
	if errors.Is(err, context.DeadlineExceeded) {
		code = http.StatusGatewayTimeout
	}

	return goerrors.Wrap(err, goerrors.CategoryExternal,
		fmt.Sprintf("httpclient: %s %s failed after %d attempt(s)", method, url, attempts)).
		WithCode(code).
		WithTextCode(TextCodeNetwork)
}

func categoryForStatus(status int) goerrors.Category {
	switch {
	case status == http.StatusUnauthorized:
		return goerrors.CategoryAuth
	case status == http.StatusForbidden:
		return goerrors.CategoryAuthz
	case status == http.StatusNotFound:
		return goerrors.CategoryNotFound
	case status == http.StatusConflict:
		return goerrors.CategoryConflict
	case status == http.StatusTooManyRequests:
		return goerrors.CategoryRateLimit
	case status >= 400 && status < 500:
		return goerrors.CategoryBadInput
	default:
		return goerrors.CategoryExternal
	}
}

// StatusCode returns the HTTP status carried by a pipeline failure, or 0.
func StatusCode(err error) int {
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		return rich.Code
	}
	return 0
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
