package resource

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-logger/glog"

	"github.com/AmmannChristian/go-resx/credential"
	"github.com/AmmannChristian/go-resx/httpclient"
)

// Text codes attached to failures raised by the resource client.
const (
	// TextCodeBadEnvelope marks a 2xx response whose body is not an envelope.
	TextCodeBadEnvelope = "RESOURCE_BAD_ENVELOPE"
	// TextCodeRemoteError marks a 2xx envelope whose error field is set.
	TextCodeRemoteError = "RESOURCE_REMOTE_ERROR"
)

// Fallback messages placed in Envelope.Error when a call fails.
const (
	MessageListFailed   = "Failed to fetch entities"
	MessageGetFailed    = "Failed to fetch entity with ID %s"
	MessageCreateFailed = "Failed to create entity"
	MessageUpdateFailed = "Failed to update entity with ID %s"
	MessageDeleteFailed = "Failed to delete entity with ID %s"
)

// Doer sends one logical request, retries included. *httpclient.Client implements it.
type Doer interface {
	Do(ctx context.Context, method, path string, body any) (*httpclient.Response, error)
}

// Client performs CRUD calls for entities of type T mounted at one resource
// path. It never returns an error: every outcome is an Envelope.
type Client[T any] struct {
	pipeline Doer
	path     string
	manager  *credential.Manager
	logger   glog.Logger
}

// New creates a client for the collection at resourcePath served through pipeline.
func New[T any](pipeline Doer, resourcePath string, opts ...Option) *Client[T] {
	o := collectOptions(opts)

	return &Client[T]{
		pipeline: pipeline,
		path:     "/" + strings.Trim(resourcePath, "/"),
		logger:   o.logger,
	}
}

// Path returns the collection path, e.g. "/users".
func (c *Client[T]) Path() string {
	return c.path
}

// Credentials returns the manager built by NewFromConfig, or nil.
func (c *Client[T]) Credentials() *credential.Manager {
	return c.manager
}

// List fetches the whole collection: GET /P/.
func (c *Client[T]) List(ctx context.Context) Envelope[[]T] {
	var env Envelope[[]T]
	remote, err := c.call(ctx, http.MethodGet, c.collection(), nil, &env)
	if err != nil && !remote {
		return Envelope[[]T]{Data: []T{}, Error: MessageListFailed, Failure: err}
	}
	if env.Data == nil {
		env.Data = []T{}
	}
	env.Failure = err
	return env
}

// Get fetches one entity: GET /P/{id}.
func (c *Client[T]) Get(ctx context.Context, id string) Envelope[*T] {
	return c.single(ctx, http.MethodGet, c.item(id), nil, fmt.Sprintf(MessageGetFailed, id))
}

// Create stores a new entity: POST /P/.
func (c *Client[T]) Create(ctx context.Context, entity T) Envelope[*T] {
	return c.single(ctx, http.MethodPost, c.collection(), entity, MessageCreateFailed)
}

// Update replaces the entity stored under id: PUT /P/{id}.
func (c *Client[T]) Update(ctx context.Context, id string, entity T) Envelope[*T] {
	return c.single(ctx, http.MethodPut, c.item(id), entity, fmt.Sprintf(MessageUpdateFailed, id))
}

// Delete removes the entity stored under id: DELETE /P/{id}.
func (c *Client[T]) Delete(ctx context.Context, id string) Envelope[*T] {
	return c.single(ctx, http.MethodDelete, c.item(id), nil, fmt.Sprintf(MessageDeleteFailed, id))
}

func (c *Client[T]) single(ctx context.Context, method, path string, body any, message string) Envelope[*T] {
	var env Envelope[*T]
	remote, err := c.call(ctx, method, path, body, &env)
	if err != nil && !remote {
		return Envelope[*T]{Error: message, Failure: err}
	}
	env.Failure = err
	return env
}

// envelopeBody is implemented by *Envelope[X] for any X.
type envelopeBody interface {
	remoteError() string
}

func (e *Envelope[T]) remoteError() string {
	return e.Error
}

// call sends the request and decodes a 2xx body into out. A remote envelope
// that reports an error is a failure too; remote is then true and out holds
// that envelope unchanged.
func (c *Client[T]) call(ctx context.Context, method, path string, body any, out envelopeBody) (remote bool, err error) {
	resp, err := c.pipeline.Do(ctx, method, path, body)
	if err != nil {
		c.logger.Error("resource: request failed",
			"method", method, "path", path, "status", httpclient.StatusCode(err), "error", err)
		return false, err
	}

	// 204 and other empty 2xx replies carry no envelope.
	if len(bytes.TrimSpace(resp.Body)) == 0 {
		c.logger.Debug("resource: request completed without body", "method", method, "path", path, "status", resp.StatusCode)
		return false, nil
	}

	if err := json.Unmarshal(resp.Body, out); err != nil {
		wrapped := goerrors.Wrap(err, goerrors.CategoryBadInput,
			fmt.Sprintf("resource: %s %s returned an undecodable body", method, path)).
			WithCode(resp.StatusCode).
			WithTextCode(TextCodeBadEnvelope)
		c.logger.Error("resource: decode failed", "method", method, "path", path, "error", err)
		return false, wrapped
	}

	if message := out.remoteError(); message != "" {
		c.logger.Warn("resource: remote reported an error", "method", method, "path", path, "error", message)
		return true, goerrors.New(message, goerrors.CategoryExternal).
			WithCode(resp.StatusCode).
			WithTextCode(TextCodeRemoteError)
	}

	c.logger.Debug("resource: request completed", "method", method, "path", path, "status", resp.StatusCode)
	return false, nil
}

func (c *Client[T]) collection() string {
	return c.path + "/"
}

func (c *Client[T]) item(id string) string {
	return c.path + "/" + url.PathEscape(id)
}
