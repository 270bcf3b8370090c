package http

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/psantos/driverauth/internal/httputil"
	"github.com/psantos/driverauth/pkg/auth"
	"github.com/psantos/driverauth/pkg/store/memory"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	directory := auth.NewUserDirectory(memory.NewUserStore(), logger)
	sessions := auth.NewSessionManager(auth.SessionConfig{}, memory.NewSessionStore(), logger)
	limiter := auth.NewRateLimiter(memory.NewRateLimitStore(), logger, 5, 15*time.Minute)
	authenticator := auth.NewAuthenticator(directory, sessions, limiter, logger)
	tokens := auth.NewAccessTokenIssuer(auth.AccessTokenConfig{
		Secret: []byte("test-secret"),
		Issuer: "test",
		TTL:    time.Minute,
	})

	router := NewRouter(RouterConfig{
		Auth:     authenticator,
		Tokens:   tokens,
		Sessions: sessions,
		Cookies:  httputil.DefaultCookieConfig(),
		Logger:   logger,
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, client *http.Client, url string, body map[string]string, headers map[string]string) (*http.Response, map[string]any) {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	defer resp.Body.Close()

	var decoded map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func registrationBody() map[string]string {
	return map[string]string{
		"username":         "ana",
		"password":         "s3cret-pass",
		"password_confirm": "s3cret-pass",
		"full_name":        "Ana Souza",
		"national_id":      "123.456.789-09",
		"birth_date":       "1990-05-01",
		"secret_question":  "first pet",
		"secret_answer":    "rex",
	}
}

func TestWebAuthFlow(t *testing.T) {
	srv := newTestServer(t)
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar: %v", err)
	}
	client := &http.Client{Jar: jar}

	resp, _ := postJSON(t, client, srv.URL+"/v1/auth/register", registrationBody(), nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register: status = %d", resp.StatusCode)
	}

	resp, body := postJSON(t, client, srv.URL+"/v1/auth/login", map[string]string{
		"username": "ana",
		"password": "s3cret-pass",
	}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login: status = %d", resp.StatusCode)
	}
	accessToken, _ := body["access_token"].(string)
	if accessToken == "" {
		t.Fatal("login response has no access token")
	}
	if _, ok := body["session_token"]; ok {
		t.Error("web login leaked the session token into the body")
	}
	if len(jar.Cookies(mustParseURL(t, srv.URL))) == 0 {
		t.Fatal("web login set no session cookies")
	}

	// The access token authorizes reads.
	req, err := http.NewRequest(http.MethodGet, srv.URL+"/v1/me", nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	meResp, err := client.Do(req)
	if err != nil {
		t.Fatalf("GET /v1/me: %v", err)
	}
	meResp.Body.Close()
	if meResp.StatusCode != http.StatusOK {
		t.Errorf("me: status = %d", meResp.StatusCode)
	}

	// The cookie pair refreshes.
	resp, body = postJSON(t, client, srv.URL+"/v1/auth/refresh", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("refresh: status = %d", resp.StatusCode)
	}
	if tok, _ := body["access_token"].(string); tok == "" {
		t.Error("refresh minted no access token")
	}

	resp, _ = postJSON(t, client, srv.URL+"/v1/auth/logout", nil, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("logout: status = %d", resp.StatusCode)
	}

	resp, _ = postJSON(t, client, srv.URL+"/v1/auth/refresh", nil, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("refresh after logout: status = %d, want 401", resp.StatusCode)
	}
}

func TestMobileAuthFlow(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()
	mobile := map[string]string{"X-Client-Type": "mobile"}

	resp, _ := postJSON(t, client, srv.URL+"/v1/auth/register", registrationBody(), mobile)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register: status = %d", resp.StatusCode)
	}

	resp, body := postJSON(t, client, srv.URL+"/v1/auth/login", map[string]string{
		"username": "ana",
		"password": "s3cret-pass",
	}, mobile)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login: status = %d", resp.StatusCode)
	}

	sessionID, _ := body["session_id"].(string)
	sessionToken, _ := body["session_token"].(string)
	if sessionID == "" || sessionToken == "" {
		t.Fatal("mobile login did not return the session pair in the body")
	}
	for _, c := range resp.Cookies() {
		if c.Name == httputil.CookieSessionID || c.Name == httputil.CookieSessionToken {
			t.Errorf("mobile login set cookie %q", c.Name)
		}
	}

	resp, body = postJSON(t, client, srv.URL+"/v1/auth/refresh", map[string]string{
		"session_id":    sessionID,
		"session_token": sessionToken,
	}, mobile)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("refresh: status = %d", resp.StatusCode)
	}
	if tok, _ := body["access_token"].(string); tok == "" {
		t.Error("refresh minted no access token")
	}

	resp, _ = postJSON(t, client, srv.URL+"/v1/auth/refresh", map[string]string{
		"session_id":    sessionID,
		"session_token": "tampered",
	}, mobile)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("refresh with a tampered token: status = %d, want 401", resp.StatusCode)
	}
}

func TestRegistrationErrors(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()

	missing := registrationBody()
	missing["username"] = ""
	resp, _ := postJSON(t, client, srv.URL+"/v1/auth/register", missing, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing fields: status = %d, want 400", resp.StatusCode)
	}

	mismatch := registrationBody()
	mismatch["password_confirm"] = "other"
	resp, _ = postJSON(t, client, srv.URL+"/v1/auth/register", mismatch, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("password mismatch: status = %d, want 400", resp.StatusCode)
	}

	resp, _ = postJSON(t, client, srv.URL+"/v1/auth/register", registrationBody(), nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register: status = %d", resp.StatusCode)
	}

	second := registrationBody()
	second["username"] = "bruno"
	second["national_id"] = "98765432100"
	resp, _ = postJSON(t, client, srv.URL+"/v1/auth/register", second, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("second registration: status = %d, want 403", resp.StatusCode)
	}
}

func TestLoginLockout(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()

	resp, _ := postJSON(t, client, srv.URL+"/v1/auth/register", registrationBody(), nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register: status = %d", resp.StatusCode)
	}

	for i := 0; i < 5; i++ {
		resp, _ := postJSON(t, client, srv.URL+"/v1/auth/login", map[string]string{
			"username": "ana",
			"password": "wrong",
		}, nil)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("attempt %d: status = %d, want 401", i+1, resp.StatusCode)
		}
	}

	resp, _ = postJSON(t, client, srv.URL+"/v1/auth/login", map[string]string{
		"username": "ana",
		"password": "s3cret-pass",
	}, nil)
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("login during lockout: status = %d, want 429", resp.StatusCode)
	}
}

func TestRecoveryAlwaysAccepted(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()

	resp, _ := postJSON(t, client, srv.URL+"/v1/auth/register", registrationBody(), nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register: status = %d", resp.StatusCode)
	}

	bodies := []map[string]string{
		{
			"national_id":      "123.456.789-09",
			"birth_date":       "1990-05-01",
			"secret_question":  "first pet",
			"secret_answer":    "rex",
			"new_password":     "reset-pass-1",
			"password_confirm": "reset-pass-1",
		},
		{"national_id": "000"},
		{},
	}

	var messages []string
	for i, body := range bodies {
		resp, decoded := postJSON(t, client, srv.URL+"/v1/auth/recovery", body, nil)
		if resp.StatusCode != http.StatusAccepted {
			t.Fatalf("recovery %d: status = %d, want 202", i, resp.StatusCode)
		}
		msg, _ := decoded["message"].(string)
		messages = append(messages, msg)
	}

	for i := 1; i < len(messages); i++ {
		if messages[i] != messages[0] {
			t.Errorf("recovery acknowledgment %d differs: %q vs %q", i, messages[i], messages[0])
		}
	}

	// The genuine request did reset the password.
	resp, _ = postJSON(t, client, srv.URL+"/v1/auth/login", map[string]string{
		"username": "ana",
		"password": "reset-pass-1",
	}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("login with recovered password: status = %d", resp.StatusCode)
	}
}

func TestChangePasswordEndpoint(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()

	resp, _ := postJSON(t, client, srv.URL+"/v1/auth/register", registrationBody(), nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register: status = %d", resp.StatusCode)
	}

	resp, body := postJSON(t, client, srv.URL+"/v1/auth/login", map[string]string{
		"username": "ana",
		"password": "s3cret-pass",
	}, map[string]string{"X-Client-Type": "mobile"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login: status = %d", resp.StatusCode)
	}
	accessToken, _ := body["access_token"].(string)

	resp, _ = postJSON(t, client, srv.URL+"/v1/auth/password/change", map[string]string{
		"current_password": "s3cret-pass",
		"new_password":     "next-pass",
	}, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("unauthenticated change: status = %d, want 401", resp.StatusCode)
	}

	authz := map[string]string{"Authorization": "Bearer " + accessToken}

	resp, _ = postJSON(t, client, srv.URL+"/v1/auth/password/change", map[string]string{
		"current_password": "wrong",
		"new_password":     "next-pass",
	}, authz)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("wrong current password: status = %d, want 401", resp.StatusCode)
	}

	resp, _ = postJSON(t, client, srv.URL+"/v1/auth/password/change", map[string]string{
		"current_password": "s3cret-pass",
		"new_password":     "next-pass",
	}, authz)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("change password: status = %d", resp.StatusCode)
	}

	resp, _ = postJSON(t, client, srv.URL+"/v1/auth/login", map[string]string{
		"username": "ana",
		"password": "next-pass",
	}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("login with new password: status = %d", resp.StatusCode)
	}
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)

	resp, err := srv.Client().Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
	if got := resp.Header.Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", got)
	}
}

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	return u
}
