package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
)

func TestRequestID(t *testing.T) {
	t.Run("generates request ID when not provided", func(t *testing.T) {
		var seen string
		handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = GetRequestID(r.Context())
			w.WriteHeader(http.StatusOK)
		}))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/test", nil))

		if _, err := uuid.Parse(seen); err != nil {
			t.Fatalf("expected a UUID request id, got %q", seen)
		}
		if got := rec.Header().Get(RequestIDHeader); got != seen {
			t.Errorf("response header %q does not match context id %q", got, seen)
		}
	})

	t.Run("uses client-provided request ID", func(t *testing.T) {
		var seen string
		handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = GetRequestID(r.Context())
		}))

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set(RequestIDHeader, "client-request-123")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if seen != "client-request-123" {
			t.Errorf("expected client id, got %q", seen)
		}
		if got := rec.Header().Get(RequestIDHeader); got != "client-request-123" {
			t.Errorf("expected client id echoed, got %q", got)
		}
	})

	t.Run("replaces malformed client ID", func(t *testing.T) {
		tests := []string{"has space", "line\nbreak", string(make([]byte, 65))}
		for _, bad := range tests {
			var seen string
			handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = GetRequestID(r.Context())
			}))
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			req.Header[RequestIDHeader] = []string{bad}
			handler.ServeHTTP(httptest.NewRecorder(), req)
			if seen == bad {
				t.Errorf("malformed id %q was accepted", bad)
			}
		}
	})
}

func TestGetRequestIDMissing(t *testing.T) {
	if id := GetRequestID(context.Background()); id != "" {
		t.Fatalf("expected empty id, got %q", id)
	}
}
