package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthMiddleware(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		apiKey    string
		header    string
		wantCode  int
		challenge string
	}{
		{name: "disabled without key", apiKey: "", wantCode: http.StatusOK},
		{name: "disabled ignores header", apiKey: "", header: "Bearer whatever", wantCode: http.StatusOK},
		{name: "valid token", apiKey: "s3cret", header: "Bearer s3cret", wantCode: http.StatusOK},
		{name: "scheme is case insensitive", apiKey: "s3cret", header: "bearer s3cret", wantCode: http.StatusOK},
		{name: "missing header", apiKey: "s3cret", wantCode: http.StatusUnauthorized, challenge: `Bearer realm="docrag"`},
		{name: "wrong token", apiKey: "s3cret", header: "Bearer nope", wantCode: http.StatusUnauthorized, challenge: `error="invalid_token"`},
		{name: "basic scheme", apiKey: "s3cret", header: "Basic czNjcmV0", wantCode: http.StatusUnauthorized, challenge: `Bearer realm="docrag"`},
		{name: "token prefix", apiKey: "s3cret", header: "Bearer s3c", wantCode: http.StatusUnauthorized, challenge: `error="invalid_token"`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodPost, "/api/chat", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			authMiddleware(tc.apiKey, okHandler()).ServeHTTP(w, req)

			if w.Code != tc.wantCode {
				t.Fatalf("expected %d, got %d", tc.wantCode, w.Code)
			}
			if tc.wantCode != http.StatusUnauthorized {
				return
			}
			if got := w.Header().Get("WWW-Authenticate"); !strings.Contains(got, tc.challenge) {
				t.Errorf("WWW-Authenticate = %q, want it to contain %q", got, tc.challenge)
			}
			var body errorResponse
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil || body.Error == "" {
				t.Errorf("expected JSON error body, got %q", w.Body.String())
			}
		})
	}
}

func TestBearerToken(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"":                  "",
		"Bearer abc":        "abc",
		"BEARER abc":        "abc",
		"Bearer   abc  ":    "abc",
		"Bearer":            "",
		"Token abc":         "",
		"Bearer abc def":    "abc def",
		"Basic dXNlcjpwdw==": "",
	}
	for hdr, want := range cases {
		req := httptest.NewRequest(http.MethodPost, "/api/stores/delete", nil)
		if hdr != "" {
			req.Header.Set("Authorization", hdr)
		}
		if got := bearerToken(req); got != want {
			t.Errorf("bearerToken(%q) = %q, want %q", hdr, got, want)
		}
	}
}
