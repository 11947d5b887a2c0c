package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	sharedErrors "github.com/khanhnv2901/seca-gap/internal/shared/errors"
)

func TestSessionAttachesCredentialsOnRequest(t *testing.T) {
	var gotAuth []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = append(gotAuth, r.Header.Get("Authorization"))
		if r.Header.Get("User-Agent") == "" {
			t.Error("expected user agent")
		}
	}))
	defer server.Close()

	creds := http.Header{}
	creds.Set("Authorization", "Bearer secret")
	pool := NewPool(Options{RatePerSecond: 100, Credentials: creds})
	session := pool.For(server.URL)

	for _, with := range []bool{false, true} {
		req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
		resp, err := session.Do(context.Background(), req, RequestOptions{WithCredentials: with})
		if err != nil {
			t.Fatalf("Do: %v", err)
		}
		resp.Body.Close()
	}
	if gotAuth[0] != "" || gotAuth[1] != "Bearer secret" {
		t.Fatalf("unexpected auth headers %q", gotAuth)
	}
	if !session.HasCredentials() {
		t.Fatal("expected HasCredentials")
	}
}

func TestSessionDoesNotFollowRedirectsByDefault(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/login" {
			return
		}
		http.Redirect(w, r, "/login", http.StatusFound)
	}))
	defer server.Close()

	session := NewPool(Options{RatePerSecond: 100}).For(server.URL)
	req, _ := http.NewRequest(http.MethodGet, server.URL+"/admin", nil)
	resp, err := session.Do(context.Background(), req, RequestOptions{})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("expected 302, got %d", resp.StatusCode)
	}

	req, _ = http.NewRequest(http.MethodGet, server.URL+"/admin", nil)
	resp, err = session.Do(context.Background(), req, RequestOptions{FollowRedirects: true})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 after redirect, got %d", resp.StatusCode)
	}
}

func TestSessionKeepsCredentialsOnOriginalHost(t *testing.T) {
	var leaked []string
	other := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		leaked = append(leaked, r.Header.Get("X-Api-Key"))
	}))
	defer other.Close()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, other.URL+"/landing", http.StatusFound)
	}))
	defer server.Close()

	creds := http.Header{}
	creds.Set("X-Api-Key", "secret")
	session := NewPool(Options{RatePerSecond: 100, Credentials: creds}).For(server.URL)

	req, _ := http.NewRequest(http.MethodGet, server.URL+"/", nil)
	resp, err := session.Do(context.Background(), req, RequestOptions{FollowRedirects: true, WithCredentials: true})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("cross-host redirect must be returned, got %d", resp.StatusCode)
	}
	if len(leaked) != 0 {
		t.Fatalf("credentials followed a redirect to another host: %q", leaked)
	}

	req, _ = http.NewRequest(http.MethodGet, server.URL+"/", nil)
	resp, err = session.Do(context.Background(), req, RequestOptions{FollowRedirects: true})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	resp.Body.Close()
	if len(leaked) != 1 || leaked[0] != "" {
		t.Fatalf("anonymous requests may follow, without credentials: %q", leaked)
	}
}

func TestPoolSharesSessionPerHost(t *testing.T) {
	pool := NewPool(Options{})
	if pool.For("https://example.com/a") != pool.For("https://EXAMPLE.com/b") {
		t.Fatal("expected one session per host")
	}
	if pool.For("https://example.com/") == pool.For("https://example.org/") {
		t.Fatal("expected distinct sessions for distinct hosts")
	}
}

func TestClassify(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := server.URL
	server.Close()

	session := NewPool(Options{RatePerSecond: 100, RequestTimeout: time.Second}).For(addr)
	req, _ := http.NewRequest(http.MethodGet, addr, nil)
	_, err := session.Do(context.Background(), req, RequestOptions{})
	if !errors.Is(err, sharedErrors.ErrNetwork) && !errors.Is(err, sharedErrors.ErrTimeout) {
		t.Fatalf("expected network error, got %v", err)
	}
	if got := Classify(context.DeadlineExceeded); !errors.Is(got, sharedErrors.ErrTimeout) {
		t.Fatalf("expected timeout, got %v", got)
	}
}
