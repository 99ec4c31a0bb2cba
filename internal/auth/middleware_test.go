package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestMiddlewareAcceptsBearerHeader(t *testing.T) {
	s := newTestService()
	token := s.IssueToken("user-1", time.Now().Add(time.Hour))

	var seen string
	h := s.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = UserID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/sessions", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if seen != "user-1" {
		t.Fatalf("resolved user = %q, want user-1", seen)
	}
}

func TestMiddlewareAcceptsAccessTokenQueryParam(t *testing.T) {
	s := newTestService()
	token := s.IssueToken("user-1", time.Now().Add(time.Hour))

	var seen string
	h := s.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = UserID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/sessions/s1/generate/ws?access_token="+token, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if seen != "user-1" {
		t.Fatalf("resolved user = %q, want user-1", seen)
	}
}

func TestMiddlewareRejectsMissingAndInvalidTokens(t *testing.T) {
	s := newTestService()
	h := s.Middleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatalf("handler reached without a valid token")
	}))

	for name, setup := range map[string]func(*http.Request){
		"no token":      func(*http.Request) {},
		"garbage token": func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") },
		"wrong scheme":  func(r *http.Request) { r.Header.Set("Authorization", "Basic dXNlcjpwYXNz") },
	} {
		req := httptest.NewRequest(http.MethodGet, "/v1/sessions", nil)
		setup(req)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s: status = %d, want 401", name, rec.Code)
		}
		if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
			t.Fatalf("%s: Content-Type = %q, want application/json", name, ct)
		}
		var body struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
			t.Fatalf("%s: decode body: %v", name, err)
		}
		if body.Code != "unauthenticated" || body.Error == "" {
			t.Fatalf("%s: body = %+v, want unauthenticated error", name, body)
		}
	}
}
