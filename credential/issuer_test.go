package credential

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"testing"

	goerrors "github.com/goliatone/go-errors"

	"github.com/AmmannChristian/go-resx/internal/testutil"
	pub "github.com/AmmannChristian/go-resx/testutil"
)

func TestHTTPIssuer_Login(t *testing.T) {
	var gotPath, gotContentType string
	var gotBody map[string]string

	server := pub.NewLocalHTTPServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotContentType = r.Header.Get("Content-Type")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{"access_token":"access","refresh_token":"refresh"}`))
	}))

	issuer := NewHTTPIssuer(server.URL+"/api/", UserCredentials{Email: "a@example.com", Password: "pw"})

	pair, err := issuer.Login(context.Background())
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	if pair.AccessToken != "access" || pair.RefreshToken != "refresh" {
		t.Errorf("unexpected pair: %+v", pair)
	}
	if gotPath != "/api/auth/login" {
		t.Errorf("expected /api/auth/login, got %s", gotPath)
	}
	if gotContentType != "application/json" {
		t.Errorf("expected JSON content type, got %s", gotContentType)
	}
	if gotBody["email"] != "a@example.com" || gotBody["password"] != "pw" {
		t.Errorf("unexpected login body: %v", gotBody)
	}
}

func TestHTTPIssuer_Refresh(t *testing.T) {
	var gotPath string
	var gotBody map[string]string

	server := pub.NewLocalHTTPServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{"access_token":"new-access"}`))
	}))

	issuer := NewHTTPIssuer(server.URL, UserCredentials{}, WithRefreshPath("/oauth/renew"))

	pair, err := issuer.Refresh(context.Background(), "refresh-1")
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	if pair.AccessToken != "new-access" || pair.RefreshToken != "" {
		t.Errorf("unexpected pair: %+v", pair)
	}
	if gotPath != "/oauth/renew" {
		t.Errorf("expected custom refresh path, got %s", gotPath)
	}
	if gotBody["refresh_token"] != "refresh-1" {
		t.Errorf("unexpected refresh body: %v", gotBody)
	}
}

func TestHTTPIssuer_Errors(t *testing.T) {
	tests := []struct {
		name         string
		status       int
		body         string
		wantRejected bool
		wantCategory goerrors.Category
	}{
		{name: "unauthorized", status: http.StatusUnauthorized, wantRejected: true, wantCategory: goerrors.CategoryAuth},
		{name: "forbidden", status: http.StatusForbidden, wantRejected: true, wantCategory: goerrors.CategoryAuthz},
		{name: "server error", status: http.StatusServiceUnavailable, wantCategory: goerrors.CategoryExternal},
		{name: "invalid json", status: http.StatusOK, body: "not json", wantCategory: goerrors.CategoryBadInput},
		{name: "missing access token", status: http.StatusOK, body: `{"refresh_token":"r"}`, wantCategory: goerrors.CategoryExternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := pub.NewLocalHTTPServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))

			issuer := NewHTTPIssuer(server.URL, UserCredentials{}, WithLoginPath("login"))

			_, err := issuer.Login(context.Background())
			if err == nil {
				t.Fatal("expected error")
			}

			if IsRejected(err) != tt.wantRejected {
				t.Errorf("IsRejected = %v, want %v", IsRejected(err), tt.wantRejected)
			}

			var rich *goerrors.Error
			if !goerrors.As(err, &rich) {
				t.Fatalf("expected *goerrors.Error, got %T", err)
			}
			if rich.Category != tt.wantCategory {
				t.Errorf("expected category %v, got %v", tt.wantCategory, rich.Category)
			}
		})
	}
}

func TestHTTPIssuer_NetworkFailure(t *testing.T) {
	client := &http.Client{Transport: pub.RoundTripFunc(func(*http.Request) (*http.Response, error) {
		return nil, io.ErrUnexpectedEOF
	})}

	issuer := NewHTTPIssuer("https://issuer.example.com", UserCredentials{}, WithHTTPClient(client))

	_, err := issuer.Refresh(context.Background(), "r")
	if err == nil {
		t.Fatal("expected error")
	}
	if IsRejected(err) {
		t.Error("network failures are not rejections")
	}
}

func TestOAuth2Issuer_ClientCredentials(t *testing.T) {
	server := testutil.NewMockOAuth2Server(t, nil)

	issuer := NewOAuth2Issuer(server.URL+"/token", "client", "secret", "openid profile", nil)

	pair, err := issuer.Login(server.Ctx)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if pair.AccessToken != "mock-access-token" || pair.RefreshToken != "mock-refresh-token" {
		t.Errorf("unexpected pair: %+v", pair)
	}

	requests := server.Requests()
	if len(requests) != 1 {
		t.Fatalf("expected 1 token request, got %d", len(requests))
	}
	form := readForm(t, requests[0])
	if form.Get("grant_type") != "client_credentials" {
		t.Errorf("expected client_credentials grant, got %s", form.Get("grant_type"))
	}
	if form.Get("scope") != "openid profile" {
		t.Errorf("expected scopes to be sent, got %q", form.Get("scope"))
	}
}

func TestOAuth2Issuer_PasswordAndRefresh(t *testing.T) {
	server := testutil.NewMockOAuth2Server(t, nil)

	issuer := NewOAuth2Issuer(server.URL+"/token", "client", "secret", "",
		&UserCredentials{Email: "user@example.com", Password: "pw"})

	if _, err := issuer.Login(server.Ctx); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	pair, err := issuer.Refresh(server.Ctx, "old-refresh")
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if pair.AccessToken != "mock-access-token" {
		t.Errorf("unexpected access token %q", pair.AccessToken)
	}
	if pair.RefreshToken != "mock-refresh-token" {
		t.Errorf("expected rotated refresh token, got %q", pair.RefreshToken)
	}

	requests := server.Requests()
	if len(requests) != 2 {
		t.Fatalf("expected 2 token requests, got %d", len(requests))
	}

	login := readForm(t, requests[0])
	if login.Get("grant_type") != "password" || login.Get("username") != "user@example.com" {
		t.Errorf("unexpected password grant form: %v", login)
	}

	refresh := readForm(t, requests[1])
	if refresh.Get("grant_type") != "refresh_token" || refresh.Get("refresh_token") != "old-refresh" {
		t.Errorf("unexpected refresh grant form: %v", refresh)
	}
}

func TestOAuth2Issuer_Rejected(t *testing.T) {
	server := testutil.NewMockOAuth2Server(t,
		testutil.JSONResponse(http.StatusUnauthorized, `{"error":"invalid_client"}`))

	issuer := NewOAuth2Issuer(server.URL+"/token", "client", "wrong", "", nil)

	_, err := issuer.Login(server.Ctx)
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsRejected(err) {
		t.Errorf("expected a rejection, got %v", err)
	}
}

func readForm(t *testing.T, req *http.Request) url.Values {
	t.Helper()

	if req.Body == nil {
		t.Fatal("request has no body")
	}
	body, err := io.ReadAll(req.Body)
	if err != nil {
		t.Fatalf("failed to read request body: %v", err)
	}
	form, err := url.ParseQuery(strings.TrimSpace(string(body)))
	if err != nil {
		t.Fatalf("failed to parse form: %v", err)
	}
	return form
}

func TestOAuth2Issuer_SetHTTPClient(t *testing.T) {
	server := testutil.NewMockOAuth2Server(t, nil)

	issuer := NewOAuth2Issuer(server.URL+"/token", "client", "secret", "", nil).
		SetHTTPClient(server.Client)

	if _, err := issuer.Login(context.Background()); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if len(server.Requests()) != 1 {
		t.Errorf("expected the configured client to be used, got %d requests", len(server.Requests()))
	}
}
