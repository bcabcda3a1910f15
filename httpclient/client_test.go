package httpclient

import (
	"context"
	"errors"
	"net/http"
	"reflect"
	"sync"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"

	"github.com/AmmannChristian/go-resx/internal/testutil"
	pub "github.com/AmmannChristian/go-resx/testutil"
)

type recordingSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	return ctx.Err()
}

func (r *recordingSleeper) Delays() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.delays...)
}

type countingSource struct {
	mu    sync.Mutex
	calls int
}

func (s *countingSource) AuthorizationValue(context.Context) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return "token", true
}

func newTestClient(t *testing.T, server *pub.ResourceServer, configure ...func(*Builder)) (*Client, *recordingSleeper) {
	t.Helper()

	sleeper := &recordingSleeper{}
	builder := NewBuilder().
		WithBaseURL(server.URL).
		WithSleeper(sleeper.Sleep).
		WithLogger(testutil.NewCaptureLogger())
	for _, fn := range configure {
		fn(builder)
	}

	client, err := builder.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return client, sleeper
}

func TestClient_Backoff(t *testing.T) {
	client, err := NewBuilder().Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	for n, expected := range want {
		if got := client.Backoff(n); got != expected {
			t.Errorf("Backoff(%d) = %v, want %v", n, got, expected)
		}
	}
}

func TestClient_Do_Success(t *testing.T) {
	server := pub.NewResourceServer(t, "items")
	client, sleeper := newTestClient(t, server)

	resp, err := client.Do(context.Background(), http.MethodGet, "/items/", nil)
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}

	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
	if string(resp.Body) != `{"data":[]}`+"\n" && string(resp.Body) != `{"data":[]}` {
		t.Errorf("unexpected body %q", resp.Body)
	}
	if len(sleeper.Delays()) != 0 {
		t.Errorf("expected no delays, got %v", sleeper.Delays())
	}
}

func TestClient_Do_RetriesExhausted(t *testing.T) {
	server := pub.NewResourceServer(t, "items")
	server.InjectFaults(500, 502, 503, 500)
	client, sleeper := newTestClient(t, server)

	_, err := client.Do(context.Background(), http.MethodGet, "/items/", nil)
	if err == nil {
		t.Fatal("expected error after exhausted retries")
	}

	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	if got := sleeper.Delays(); !reflect.DeepEqual(got, want) {
		t.Errorf("delays = %v, want %v", got, want)
	}
	if n := len(server.Requests()); n != 4 {
		t.Errorf("expected 4 attempts, got %d", n)
	}
	if StatusCode(err) != http.StatusInternalServerError {
		t.Errorf("expected final status 500, got %d", StatusCode(err))
	}

	var rich *goerrors.Error
	if !goerrors.As(err, &rich) || rich.Category != goerrors.CategoryExternal {
		t.Errorf("expected an external failure, got %v", err)
	}
}

func TestClient_Do_RecoversAfterTwo503(t *testing.T) {
	server := pub.NewResourceServer(t, "items")
	server.InjectFaults(http.StatusServiceUnavailable, http.StatusServiceUnavailable)
	client, sleeper := newTestClient(t, server)

	resp, err := client.Do(context.Background(), http.MethodGet, "/items/", nil)
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}

	want := []time.Duration{time.Second, 2 * time.Second}
	if got := sleeper.Delays(); !reflect.DeepEqual(got, want) {
		t.Errorf("delays = %v, want %v", got, want)
	}
	if n := len(server.Requests()); n != 3 {
		t.Errorf("expected 3 attempts, got %d", n)
	}
}

func TestClient_Do_ClientErrorsNotRetried(t *testing.T) {
	tests := []struct {
		status   int
		category goerrors.Category
	}{
		{status: http.StatusBadRequest, category: goerrors.CategoryBadInput},
		{status: http.StatusUnauthorized, category: goerrors.CategoryAuth},
		{status: http.StatusForbidden, category: goerrors.CategoryAuthz},
		{status: http.StatusNotFound, category: goerrors.CategoryNotFound},
		{status: http.StatusConflict, category: goerrors.CategoryConflict},
		{status: http.StatusTooManyRequests, category: goerrors.CategoryRateLimit},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			server := pub.NewResourceServer(t, "items")
			server.InjectFaults(tt.status)
			client, sleeper := newTestClient(t, server)

			_, err := client.Do(context.Background(), http.MethodPut, "/items/1", map[string]string{"id": "1"})
			if err == nil {
				t.Fatal("expected error")
			}

			if n := len(server.Requests()); n != 1 {
				t.Errorf("expected a single attempt, got %d", n)
			}
			if len(sleeper.Delays()) != 0 {
				t.Errorf("expected no delays, got %v", sleeper.Delays())
			}
			if StatusCode(err) != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, StatusCode(err))
			}

			var rich *goerrors.Error
			if !goerrors.As(err, &rich) || rich.Category != tt.category {
				t.Errorf("expected category %v, got %v", tt.category, err)
			}
		})
	}
}

func TestClient_Do_NetworkFailureRetriedWithBodyReplay(t *testing.T) {
	server := pub.NewResourceServer(t, "items")
	server.InjectFaults(pub.DropConnection, http.StatusBadGateway)
	client, sleeper := newTestClient(t, server)

	entity := map[string]string{"id": "42", "name": "widget"}
	resp, err := client.Do(context.Background(), http.MethodPost, "/items/", entity)
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Errorf("expected 201, got %d", resp.StatusCode)
	}

	requests := server.Requests()
	if len(requests) != 3 {
		t.Fatalf("expected 3 attempts, got %d", len(requests))
	}
	for i, req := range requests {
		if req.Body != requests[0].Body || req.Body == "" {
			t.Errorf("attempt %d: body %q was not replayed", i, req.Body)
		}
	}
	if got := sleeper.Delays(); len(got) != 2 {
		t.Errorf("expected 2 delays, got %v", got)
	}
	if server.Len() != 1 {
		t.Errorf("expected the entity to be stored once, got %d", server.Len())
	}
}

func TestClient_Do_NetworkFailureExhausted(t *testing.T) {
	server := pub.NewResourceServer(t, "items")
	server.InjectFaults(pub.DropConnection, pub.DropConnection, pub.DropConnection, pub.DropConnection)
	client, _ := newTestClient(t, server)

	_, err := client.Do(context.Background(), http.MethodDelete, "/items/1", nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if StatusCode(err) != http.StatusBadGateway {
		t.Errorf("expected 502 for a missing response, got %d", StatusCode(err))
	}
}

func TestClient_Do_AttemptTimeoutRetried(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	base := pub.RoundTripFunc(func(req *http.Request) (*http.Response, error) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()

		if n == 1 {
			<-req.Context().Done()
			return nil, req.Context().Err()
		}
		return okTransport(http.StatusOK, `{"data":null}`)(req)
	})

	sleeper := &recordingSleeper{}
	client, err := NewBuilder().
		WithBaseURL("https://api.example.com").
		WithBaseTransport(base).
		WithTimeout(20 * time.Millisecond).
		WithSleeper(sleeper.Sleep).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if _, err := client.Do(context.Background(), http.MethodGet, "/items/1", nil); err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if got := sleeper.Delays(); !reflect.DeepEqual(got, []time.Duration{time.Second}) {
		t.Errorf("expected one 1s delay, got %v", got)
	}
}

func TestClient_Do_RequestIDStableAcrossRetries(t *testing.T) {
	server := pub.NewResourceServer(t, "items")
	server.InjectFaults(500, 500)
	client, _ := newTestClient(t, server)

	if _, err := client.Do(context.Background(), http.MethodGet, "/items/", nil); err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if _, err := client.Do(context.Background(), http.MethodGet, "/items/", nil); err != nil {
		t.Fatalf("Do failed: %v", err)
	}

	requests := server.Requests()
	if len(requests) != 4 {
		t.Fatalf("expected 4 requests, got %d", len(requests))
	}
	first := requests[0].RequestID
	if first == "" {
		t.Fatal("expected a request id")
	}
	for i := 1; i < 3; i++ {
		if requests[i].RequestID != first {
			t.Errorf("retry %d carried a different request id", i)
		}
	}
	if requests[3].RequestID == first {
		t.Error("a new call should get a new request id")
	}
}

func TestClient_Do_WithoutRequestID(t *testing.T) {
	server := pub.NewResourceServer(t, "items")
	client, _ := newTestClient(t, server, func(b *Builder) { b.WithoutRequestID() })

	if _, err := client.Do(context.Background(), http.MethodGet, "/items/", nil); err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if id := server.Requests()[0].RequestID; id != "" {
		t.Errorf("expected no request id, got %q", id)
	}
}

func TestClient_Do_CredentialPerAttempt(t *testing.T) {
	server := pub.NewResourceServer(t, "items")
	server.InjectFaults(500)
	src := &countingSource{}
	client, _ := newTestClient(t, server, func(b *Builder) { b.WithCredentials(src) })

	if _, err := client.Do(context.Background(), http.MethodGet, "/items/", nil); err != nil {
		t.Fatalf("Do failed: %v", err)
	}

	if src.calls != 2 {
		t.Errorf("expected the source to be asked once per attempt, got %d", src.calls)
	}
	for i, req := range server.Requests() {
		if req.Authorization != "Bearer token" {
			t.Errorf("attempt %d: unexpected Authorization %q", i, req.Authorization)
		}
	}
}

func TestClient_Do_RequiredCredentialNotRetried(t *testing.T) {
	server := pub.NewResourceServer(t, "items")
	client, sleeper := newTestClient(t, server, func(b *Builder) {
		b.WithCredentials(staticSource{}).RequireCredential()
	})

	_, err := client.Do(context.Background(), http.MethodGet, "/items/", nil)
	if !errors.Is(err, ErrCredentialRequired) {
		t.Fatalf("expected ErrCredentialRequired, got %v", err)
	}
	if n := len(server.Requests()); n != 0 {
		t.Errorf("request should not reach the server, got %d", n)
	}
	if len(sleeper.Delays()) != 0 {
		t.Errorf("expected no retries, got %v", sleeper.Delays())
	}
}

func TestClient_Do_RequiredCredentialErrorIsFresh(t *testing.T) {
	server := pub.NewResourceServer(t, "items")
	client, _ := newTestClient(t, server, func(b *Builder) {
		b.RequireCredential()
	})

	_, first := client.Do(context.Background(), http.MethodGet, "/items/", nil)
	var rich *goerrors.Error
	if !goerrors.As(first, &rich) {
		t.Fatalf("expected *goerrors.Error, got %T", first)
	}
	rich.WithCode(http.StatusTeapot).WithMetadata(map[string]any{"caller": "decorated"})

	_, second := client.Do(context.Background(), http.MethodGet, "/items/", nil)
	if !errors.Is(second, ErrCredentialRequired) {
		t.Fatalf("expected ErrCredentialRequired, got %v", second)
	}
	if first == second {
		t.Fatal("expected a new error value per call")
	}
	if StatusCode(second) != http.StatusUnauthorized {
		t.Errorf("expected status 401, got %d", StatusCode(second))
	}
	var again *goerrors.Error
	if goerrors.As(second, &again) && again.Metadata["caller"] != nil {
		t.Errorf("decoration of an earlier failure leaked: %v", again.Metadata)
	}
	if _, ok := ErrCredentialRequired.(*goerrors.Error); ok {
		t.Error("the sentinel must not be a mutable *goerrors.Error")
	}
}

func TestClient_Do_CancelledDuringBackoff(t *testing.T) {
	server := pub.NewResourceServer(t, "items")
	server.InjectFaults(500, 500)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client, err := NewBuilder().
		WithBaseURL(server.URL).
		WithSleeper(func(ctx context.Context, d time.Duration) error {
			cancel()
			return sleepContext(ctx, d)
		}).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if _, err := client.Do(ctx, http.MethodGet, "/items/", nil); err == nil {
		t.Fatal("expected error after cancellation")
	}
	if n := len(server.Requests()); n != 1 {
		t.Errorf("expected no attempt after cancellation, got %d", n)
	}
}

func TestClient_Do_RateLimitWait(t *testing.T) {
	server := pub.NewResourceServer(t, "items")
	client, _ := newTestClient(t, server, func(b *Builder) { b.WithRateLimit(0.001, 1) })

	if _, err := client.Do(context.Background(), http.MethodGet, "/items/", nil); err != nil {
		t.Fatalf("first call should use the burst: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.Do(ctx, http.MethodGet, "/items/", nil)
	if err == nil {
		t.Fatal("expected the limiter to refuse the second call")
	}
	if StatusCode(err) != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", StatusCode(err))
	}
	if n := len(server.Requests()); n != 1 {
		t.Errorf("expected only the first call to reach the server, got %d", n)
	}
}

func TestClient_Do_EncodeError(t *testing.T) {
	server := pub.NewResourceServer(t, "items")
	client, _ := newTestClient(t, server)

	if _, err := client.Do(context.Background(), http.MethodPost, "/items/", make(chan int)); err == nil {
		t.Fatal("expected an encoding error")
	}
	if n := len(server.Requests()); n != 0 {
		t.Errorf("expected no request, got %d", n)
	}
}

func TestClient_Do_InvalidRequestNotRetried(t *testing.T) {
	server := pub.NewResourceServer(t, "items")
	client, sleeper := newTestClient(t, server)

	_, err := client.Do(context.Background(), "BAD METHOD", "/items/", nil)
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) || rich.TextCode != TextCodeRequest {
		t.Fatalf("expected an invalid request error, got %v", err)
	}
	if len(sleeper.Delays()) != 0 || len(server.Requests()) != 0 {
		t.Errorf("expected no retries and no requests, got %v delays", sleeper.Delays())
	}
}

func TestStatusCode_NonPipelineError(t *testing.T) {
	if StatusCode(errors.New("plain")) != 0 {
		t.Error("expected 0 for errors without a status")
	}
}
