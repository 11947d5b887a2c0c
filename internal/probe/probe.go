// Package probe executes bounded, non-destructive test interactions against
// discovered endpoints and records what it observes.
package probe

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/khanhnv2901/seca-gap/internal/domain/assessment"
	"github.com/khanhnv2901/seca-gap/internal/shared/constants"
	sharedErrors "github.com/khanhnv2901/seca-gap/internal/shared/errors"
	"github.com/khanhnv2901/seca-gap/internal/transport"
)

// ErrUnknownKind is returned for probe kinds without a registered builder.
var ErrUnknownKind = errors.New("unknown probe kind")

// Config bounds every probe run by the engine.
type Config struct {
	// EndpointBudget caps the wall time spent probing one endpoint with one kind.
	EndpointBudget time.Duration
	// MaxRequests caps the requests sent to one endpoint by one kind.
	MaxRequests int
	// MaxParams caps how many parameters of one endpoint are injected.
	MaxParams int
	BurstSize int
	CacheTTL  time.Duration
}

func (c Config) withDefaults() Config {
	if c.EndpointBudget <= 0 {
		c.EndpointBudget = constants.DefaultEndpointBudget
	}
	if c.MaxRequests <= 0 {
		c.MaxRequests = constants.DefaultEndpointMaxReqs
	}
	if c.MaxParams <= 0 {
		c.MaxParams = 5
	}
	if c.BurstSize <= 0 {
		c.BurstSize = constants.DefaultBurstSize
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = constants.DefaultCacheTTL
	}
	return c
}

// SessionProvider returns the shared HTTP session for a target.
type SessionProvider interface {
	For(target string) *transport.Session
}

// Engine runs probes. It is safe for concurrent use.
type Engine struct {
	sessions SessionProvider
	cache    Cache
	flight   singleflight.Group
	cfg      Config
	logger   *zap.Logger
	now      func() time.Time
}

// NewEngine creates a probe engine. cache may be nil.
func NewEngine(sessions SessionProvider, cache Cache, cfg Config, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		sessions: sessions,
		cache:    cache,
		cfg:      cfg.withDefaults(),
		logger:   logger,
		now:      time.Now,
	}
}

// attempt is one request a probe kind wants sent.
type attempt struct {
	req         *http.Request
	payload     string
	class       string
	variant     string
	param       string
	marker      string
	credentials bool
	follow      bool
}

type response struct {
	status  int
	header  http.Header
	body    []byte
	cookies []*http.Cookie
	tls     *tls.ConnectionState
	latency time.Duration
	url     *url.URL
	err     error
}

type buildInput struct {
	endpoint       assessment.Endpoint
	payloads       []Payload
	marker         string
	hasCredentials bool
	maxParams      int
	burst          int
}

type kindSpec struct {
	build  func(in buildInput) ([]attempt, error)
	detect func(ep assessment.Endpoint, a attempt, r, base *response) []assessment.Indicator
	// summarize, when set, folds all responses into a single observation.
	summarize func(ep assessment.Endpoint, results []*response) []assessment.Indicator
}

var kinds = map[assessment.ProbeKind]kindSpec{
	assessment.ProbeReflection: {build: buildReflection, detect: detectReflection},
	assessment.ProbeMethod:     {build: buildMethod, detect: detectMethod},
	assessment.ProbeUnauth:     {build: buildUnauth, detect: detectUnauth},
	assessment.ProbeBoundary:   {build: buildBoundary, detect: detectBoundary},
	assessment.ProbeTiming:     {build: buildTiming, summarize: summarizeTiming},
	assessment.ProbeHeaders:    {build: buildHeaders, detect: detectHeaders},
	assessment.ProbeLogin:      {build: buildLogin, detect: detectLogin},
	assessment.ProbeErrorPage:  {build: buildErrorPage, detect: detectErrorPage},
	assessment.ProbeExposure:   {build: buildExposure, detect: detectExposure},
}

// Kinds lists the registered probe kinds.
func Kinds() []assessment.ProbeKind {
	out := make([]assessment.ProbeKind, 0, len(kinds))
	for k := range kinds {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Probe runs kind against ep and returns the recorded observations.
// Request failures are recorded as observations rather than returned; an
// error is returned only for unknown kinds or when ctx ends first.
//
// Concurrent calls with the same key share one run. That run is detached
// from every caller and bounded by the endpoint budget alone, so one
// caller's deadline never leaks into another caller's observations.
func (e *Engine) Probe(ctx context.Context, target assessment.Target, ep assessment.Endpoint, kind assessment.ProbeKind, payloads []Payload) ([]assessment.Observation, error) {
	if _, ok := kinds[kind]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	if err := ctx.Err(); err != nil {
		return nil, transport.Classify(err)
	}
	key := CacheKey(target, kind, ep, payloads)
	if e.cache != nil {
		if obs, ok := e.cache.Get(key); ok {
			return obs, nil
		}
	}

	ch := e.flight.DoChan(key, func() (any, error) {
		obs, err := e.run(context.WithoutCancel(ctx), target, ep, kind, payloads)
		if err == nil && e.cache != nil && cacheable(obs) {
			e.cache.Set(key, obs, e.cfg.CacheTTL)
		}
		return obs, err
	})
	select {
	case <-ctx.Done():
		return nil, transport.Classify(ctx.Err())
	case r := <-ch:
		obs, _ := r.Val.([]assessment.Observation)
		return append([]assessment.Observation(nil), obs...), r.Err
	}
}

// cacheable reports whether obs may be replayed to later callers. Sets
// holding transient failures are not: a retry must probe again.
func cacheable(obs []assessment.Observation) bool {
	for _, o := range obs {
		if sharedErrors.IsTransientKind(o.ErrorKind) {
			return false
		}
	}
	return true
}

// CacheKey fingerprints a probe: target, kind, endpoint method and URL,
// endpoint parameters and payload values.
func CacheKey(target assessment.Target, kind assessment.ProbeKind, ep assessment.Endpoint, payloads []Payload) string {
	var b strings.Builder
	b.WriteString(target.ID())
	b.WriteString("|")
	b.WriteString(string(kind))
	b.WriteString("|")
	b.WriteString(ep.Key())
	for _, p := range ep.Params {
		b.WriteString("|" + string(p.Source) + ":" + p.Name)
	}
	for _, p := range payloads {
		b.WriteString("|" + p.Class + ":" + p.Value)
	}
	return b.String()
}

func (e *Engine) run(ctx context.Context, target assessment.Target, ep assessment.Endpoint, kind assessment.ProbeKind, payloads []Payload) ([]assessment.Observation, error) {
	spec := kinds[kind]
	session := e.sessions.For(target.ID())

	attempts, err := spec.build(buildInput{
		endpoint:       ep,
		payloads:       payloads,
		marker:         NewMarker(),
		hasCredentials: session.HasCredentials(),
		maxParams:      e.cfg.MaxParams,
		burst:          e.cfg.BurstSize,
	})
	if err != nil {
		return []assessment.Observation{e.failure(ep, kind, "", err)}, nil
	}

	budgetCtx, cancel := context.WithTimeout(ctx, e.cfg.EndpointBudget)
	defer cancel()

	var (
		obs       []assessment.Observation
		responses []*response
		baseline  = map[string]*response{}
		sent      int
	)
	for _, a := range attempts {
		if sent >= e.cfg.MaxRequests || budgetCtx.Err() != nil {
			obs = append(obs, e.budgetExceeded(ep, kind, a))
			break
		}
		sent++
		resp := e.send(budgetCtx, session, a)
		if a.variant == variantBaseline {
			if resp.err == nil {
				baseline[a.param] = resp
			}
			continue
		}
		if spec.summarize != nil {
			responses = append(responses, resp)
			continue
		}
		o := e.observation(ep, kind, a, resp)
		if resp.err == nil {
			o.Indicators = spec.detect(ep, a, resp, baseline[a.param])
		}
		obs = append(obs, o)
	}

	if spec.summarize != nil && len(responses) > 0 {
		o := assessment.Observation{
			Endpoint:   ep.URL,
			Method:     ep.Method,
			Kind:       kind,
			Payload:    fmt.Sprintf("burst of %d requests", len(responses)),
			Indicators: spec.summarize(ep, responses),
			Timestamp:  e.now().UTC(),
		}
		var total time.Duration
		for _, r := range responses {
			total += r.latency
			if o.Status == 0 && r.err == nil {
				o.Status = r.status
			}
		}
		o.LatencyMS = (total / time.Duration(len(responses))).Milliseconds()
		obs = append(obs, o)
	}
	return obs, nil
}

func (e *Engine) send(ctx context.Context, session *transport.Session, a attempt) *response {
	start := e.now()
	resp, err := session.Do(ctx, a.req, transport.RequestOptions{
		FollowRedirects: a.follow,
		WithCredentials: a.credentials,
	})
	out := &response{url: a.req.URL}
	if err != nil {
		out.err = err
		out.latency = e.now().Sub(start)
		return out
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, constants.MaxProbeBodyBytes))
	out.status = resp.StatusCode
	out.header = resp.Header
	out.body = body
	out.cookies = resp.Cookies()
	out.tls = resp.TLS
	out.latency = e.now().Sub(start)
	return out
}

func (e *Engine) observation(ep assessment.Endpoint, kind assessment.ProbeKind, a attempt, r *response) assessment.Observation {
	o := assessment.Observation{
		Endpoint:  ep.URL,
		Method:    a.req.Method,
		Kind:      kind,
		Payload:   truncate(a.payload, 160),
		Status:    r.status,
		LatencyMS: r.latency.Milliseconds(),
		Timestamp: e.now().UTC(),
	}
	if a.req.URL.String() != ep.URL {
		o.Endpoint = a.req.URL.String()
	}
	if r.err != nil {
		o.Error = r.err.Error()
		o.ErrorKind = sharedErrors.Kind(r.err)
		return o
	}
	o.Excerpt = truncate(strings.TrimSpace(string(r.body)), constants.ExcerptLimit)
	return o
}

func (e *Engine) budgetExceeded(ep assessment.Endpoint, kind assessment.ProbeKind, a attempt) assessment.Observation {
	return assessment.Observation{
		Endpoint:  ep.URL,
		Method:    a.req.Method,
		Kind:      kind,
		Payload:   truncate(a.payload, 160),
		Error:     "probe budget exceeded",
		ErrorKind: sharedErrors.KindTimeout,
		Timestamp: e.now().UTC(),
	}
}

func (e *Engine) failure(ep assessment.Endpoint, kind assessment.ProbeKind, payload string, err error) assessment.Observation {
	return assessment.Observation{
		Endpoint:  ep.URL,
		Method:    ep.Method,
		Kind:      kind,
		Payload:   payload,
		Error:     err.Error(),
		ErrorKind: sharedErrors.Kind(err),
		Timestamp: e.now().UTC(),
	}
}
