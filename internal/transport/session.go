// Package transport provides the per-target HTTP sessions shared by
// discovery and probing: one connection pool and one outbound rate limiter
// per target host.
package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/khanhnv2901/seca-gap/internal/shared/constants"
	sharedErrors "github.com/khanhnv2901/seca-gap/internal/shared/errors"
)

// Options configures sessions handed out by a Pool.
type Options struct {
	RequestTimeout     time.Duration
	RatePerSecond      float64
	Burst              int
	UserAgent          string
	InsecureSkipVerify bool
	// Credentials are attached only to requests that ask for them.
	Credentials http.Header
}

func (o Options) withDefaults() Options {
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = constants.DefaultRequestTimeout
	}
	if o.RatePerSecond <= 0 {
		o.RatePerSecond = constants.DefaultRateLimit
	}
	if o.Burst <= 0 {
		o.Burst = constants.DefaultRateBurst
	}
	if o.UserAgent == "" {
		o.UserAgent = constants.DefaultUserAgent
	}
	return o
}

// Session is the shared, read-only HTTP context for one target.
type Session struct {
	follow         *http.Client
	noFollow       *http.Client
	followSameHost *http.Client // used when operator credentials are attached
	limiter        *rate.Limiter
	userAgent      string
	credentials    http.Header
	timeout        time.Duration
}

func newSession(opts Options) *Session {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   opts.RequestTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: opts.InsecureSkipVerify, // #nosec G402 -- operator opt-in for lab targets
			MinVersion:         tls.VersionTLS10,
		},
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       60 * time.Second,
		TLSHandshakeTimeout:   opts.RequestTimeout,
		ResponseHeaderTimeout: opts.RequestTimeout,
	}
	return &Session{
		follow: &http.Client{Transport: transport, Timeout: opts.RequestTimeout},
		noFollow: &http.Client{
			Transport: transport,
			Timeout:   opts.RequestTimeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		followSameHost: &http.Client{
			Transport:     transport,
			Timeout:       opts.RequestTimeout,
			CheckRedirect: sameHostRedirect,
		},
		limiter:     rate.NewLimiter(rate.Limit(opts.RatePerSecond), opts.Burst),
		userAgent:   opts.UserAgent,
		credentials: opts.Credentials.Clone(),
		timeout:     opts.RequestTimeout,
	}
}

const maxRedirects = 10

// sameHostRedirect stops at the first redirect leaving the original host and
// hands that response back to the caller.
func sameHostRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return fmt.Errorf("stopped after %d redirects", maxRedirects)
	}
	if !strings.EqualFold(req.URL.Host, via[0].URL.Host) {
		return http.ErrUseLastResponse
	}
	return nil
}

// RequestOptions tunes a single request.
type RequestOptions struct {
	FollowRedirects bool
	WithCredentials bool
}

// Do waits for the target's rate limiter and sends req. Errors are wrapped
// into the shared taxonomy (ErrTimeout or ErrNetwork).
func (s *Session) Do(ctx context.Context, req *http.Request, opts RequestOptions) (*http.Response, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, Classify(err)
	}
	req = req.WithContext(ctx)
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", s.userAgent)
	}
	if opts.WithCredentials {
		for k, vs := range s.credentials {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}
	}
	client := s.noFollow
	switch {
	case opts.FollowRedirects && opts.WithCredentials && s.HasCredentials():
		client = s.followSameHost
	case opts.FollowRedirects:
		client = s.follow
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, Classify(err)
	}
	return resp, nil
}

// HasCredentials reports whether the session carries operator credentials.
func (s *Session) HasCredentials() bool { return len(s.credentials) > 0 }

// Timeout returns the per-request timeout.
func (s *Session) Timeout() time.Duration { return s.timeout }

// Classify wraps err into ErrTimeout or ErrNetwork.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sharedErrors.ErrTimeout) || errors.Is(err, sharedErrors.ErrNetwork) {
		return err
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %v", sharedErrors.ErrTimeout, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %v", sharedErrors.ErrNetwork, err)
}

// Pool hands out one Session per target host. Safe for concurrent use.
type Pool struct {
	mu       sync.Mutex
	opts     Options
	sessions map[string]*Session
}

// NewPool creates a session pool.
func NewPool(opts Options) *Pool {
	return &Pool{opts: opts.withDefaults(), sessions: make(map[string]*Session)}
}

// For returns the session for target's host, creating it on first use.
func (p *Pool) For(target string) *Session {
	key := strings.ToLower(target)
	if u, err := url.Parse(target); err == nil && u.Host != "" {
		key = strings.ToLower(u.Host)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.sessions[key]; ok {
		return s
	}
	s := newSession(p.opts)
	p.sessions[key] = s
	return s
}
