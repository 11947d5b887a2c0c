package modules

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/khanhnv2901/seca-gap/internal/discovery"
	"github.com/khanhnv2901/seca-gap/internal/domain/assessment"
	"github.com/khanhnv2901/seca-gap/internal/evaluator"
	"github.com/khanhnv2901/seca-gap/internal/evidence"
	"github.com/khanhnv2901/seca-gap/internal/probe"
	sharedErrors "github.com/khanhnv2901/seca-gap/internal/shared/errors"
	"github.com/khanhnv2901/seca-gap/internal/transport"
)

func newTestRunner(t *testing.T, collector EvidenceCollector) *Runner {
	t.Helper()
	logger := zaptest.NewLogger(t)
	pool := transport.NewPool(transport.Options{RatePerSecond: 1000, Burst: 100, RequestTimeout: 2 * time.Second})
	return NewRunner(
		discovery.NewEngine(pool, logger),
		probe.NewEngine(pool, probe.NewMemoryCache(), probe.Config{}, logger),
		evaluator.New(evaluator.DefaultCalibration(), logger),
		collector,
		logger,
	)
}

func webTarget(t *testing.T, raw string) assessment.Target {
	t.Helper()
	target, err := assessment.NewTarget(raw+"/", assessment.TargetKindWeb)
	if err != nil {
		t.Fatal(err)
	}
	return target
}

func mustModule(t *testing.T, id string) Module {
	t.Helper()
	m, err := Default().Lookup(id)
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func statusOf(t *testing.T, res assessment.ModuleResult, id string) assessment.ControlResult {
	t.Helper()
	for _, d := range res.Details {
		if d.ControlID == id {
			return d
		}
	}
	t.Fatalf("control %s missing from %s result", id, res.Module)
	return assessment.ControlResult{}
}

type staticCollector struct {
	items []assessment.Evidence
	calls atomic.Int32
}

func (c *staticCollector) Collect(context.Context, assessment.Target) ([]assessment.Evidence, []evidence.SourceError, error) {
	c.calls.Add(1)
	return c.items, []evidence.SourceError{{Source: "tool:missing", Kind: sharedErrors.KindToolUnavailable, Error: "not installed"}}, nil
}

var quick = RunConfig{SkipBurst: true, Discovery: discovery.Options{DepthLimit: 1, PageLimit: 10}}

func TestRunUnreachableTargetReportsEveryControlNotTested(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	base := server.URL
	server.Close()

	runner := newTestRunner(t, nil)
	target := webTarget(t, base)
	for _, m := range Default().All() {
		res, err := runner.Run(context.Background(), m, target, quick)
		if err == nil {
			t.Fatalf("%s: expected an error for an unreachable target", m.Descriptor().ID)
		}
		if res.State != assessment.RunFailed || res.Error == nil || res.Error.Kind != sharedErrors.KindNetwork {
			t.Fatalf("%s: unexpected state %s error %+v", m.Descriptor().ID, res.State, res.Error)
		}
		if len(res.Details) != len(m.Descriptor().Controls) {
			t.Fatalf("%s: %d results for %d controls", m.Descriptor().ID, len(res.Details), len(m.Descriptor().Controls))
		}
		for _, d := range res.Details {
			if d.Status != assessment.StatusNotTested {
				t.Fatalf("%s: control %s is %s", m.Descriptor().ID, d.ControlID, d.Status)
			}
		}
		if res.Summary.NotTested != res.Summary.Total || res.Summary.Coverage != 0 {
			t.Fatalf("%s: unexpected summary %+v", m.Descriptor().ID, res.Summary)
		}
	}
}

func TestRunAuthorizationPassesWhenStateChangingEndpointsRequireAuth(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body>
<a href="/admin">Admin</a>
<form method="post" action="/orders"><input name="item"><input type="submit"></form>
<form method="post" action="/account/delete"><input name="reason"></form>
</body></html>`)
	})
	deny := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("WWW-Authenticate", "Bearer")
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}
	mux.HandleFunc("/admin", deny)
	mux.HandleFunc("/orders", deny)
	mux.HandleFunc("/account/delete", deny)
	server := httptest.NewServer(mux)
	defer server.Close()

	res, err := newTestRunner(t, nil).Run(context.Background(), mustModule(t, "authorization"), webTarget(t, server.URL), quick)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.State != assessment.RunCompleted {
		t.Fatalf("expected completed run, got %s", res.State)
	}
	for _, id := range []string{"Role_Based_Access_Control", "API_Authorization"} {
		d := statusOf(t, res, id)
		if d.Status != assessment.StatusPass {
			t.Fatalf("%s: expected pass, got %s (%s)", id, d.Status, d.Rationale)
		}
		if d.Confidence < evaluator.DefaultCalibration().PassThreshold || len(d.Supporting) == 0 {
			t.Fatalf("%s: pass without support: %+v", id, d)
		}
	}
	if d := statusOf(t, res, "User_State_Management"); d.Status != assessment.StatusNotTested {
		t.Fatalf("documentation-only control decided without evidence: %+v", d)
	}
}

func TestRunInputValidationFailsOnReflectedMarker(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body><form method="get" action="/search"><input name="q" value="shoes"></form></body></html>`)
	})
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, "<html><body><h1>Results for %s</h1></body></html>", r.URL.Query().Get("q"))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	res, err := newTestRunner(t, nil).Run(context.Background(), mustModule(t, "input_validation"), webTarget(t, server.URL), quick)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	xss := statusOf(t, res, "XSS")
	if xss.Status != assessment.StatusFail {
		t.Fatalf("expected XSS fail, got %s (%s)", xss.Status, xss.Rationale)
	}
	if xss.Confidence < evaluator.DefaultCalibration().FailThreshold {
		t.Fatalf("fail below threshold: %v", xss.Confidence)
	}
	// No upload or XML endpoints were discovered.
	for _, id := range []string{"File_Upload_Validation", "XML_Validation", "DOS_Basic"} {
		if d := statusOf(t, res, id); d.Status != assessment.StatusNotTested {
			t.Fatalf("%s: expected not_tested, got %s", id, d.Status)
		}
	}
}

func TestRunDocumentSetDecidesFromEvidence(t *testing.T) {
	collector := &staticCollector{items: []assessment.Evidence{
		{
			Source:     "policies/passwords.md",
			SourceKind: assessment.SourceDocument,
			Indicator:  assessment.Strong(evidence.DocPasswordHashing, assessment.Exculpatory, "bcrypt cost 12"),
		},
		{
			Source:     "policies/logging.md",
			SourceKind: assessment.SourceDocument,
			Indicator:  assessment.Strong(evidence.DocLogMasking, assessment.Positive, "card numbers are logged in full"),
		},
	}}
	target, err := assessment.NewTarget(t.TempDir(), assessment.TargetKindDocumentSet)
	if err != nil {
		t.Fatal(err)
	}
	runner := newTestRunner(t, collector)
	m := mustModule(t, "sensitive_data")

	res, err := runner.Run(context.Background(), m, target, RunConfig{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := statusOf(t, res, "Password_Encryption_Rest").Status; got != assessment.StatusPass {
		t.Fatalf("expected pass from documentation, got %s", got)
	}
	if got := statusOf(t, res, "PCI_Log_Masking").Status; got != assessment.StatusFail {
		t.Fatalf("expected fail from documentation, got %s", got)
	}
	if got := statusOf(t, res, "HTTPS_TLS").Status; got != assessment.StatusNotTested {
		t.Fatalf("live-only control decided for a document set: %s", got)
	}
	if len(res.Observations) != 0 || res.Catalogue.Len() != 0 {
		t.Fatalf("document set should not be probed: %d observations", len(res.Observations))
	}

	if _, err := runner.Run(context.Background(), mustModule(t, "logging_monitoring"), target, RunConfig{}); err != nil {
		t.Fatal(err)
	}
	if n := collector.calls.Load(); n != 1 {
		t.Fatalf("expected evidence collected once per target, got %d", n)
	}
}

func TestRunExpiredContextFailsWithTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html></html>")
	}))
	defer server.Close()

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	m := mustModule(t, "api_security")
	res, err := newTestRunner(t, nil).Run(ctx, m, webTarget(t, server.URL), quick)
	if err == nil {
		t.Fatal("expected an error")
	}
	if res.Error == nil || res.Error.Kind != sharedErrors.KindTimeout {
		t.Fatalf("expected timeout kind, got %+v", res.Error)
	}
	if res.Summary.Total != len(m.Descriptor().Controls) || res.Summary.NotTested != res.Summary.Total {
		t.Fatalf("unexpected summary %+v", res.Summary)
	}
}

type countingDiscoverer struct {
	calls atomic.Int32
}

func (d *countingDiscoverer) Discover(_ context.Context, t assessment.Target, opts discovery.Options) (*assessment.Catalogue, error) {
	d.calls.Add(1)
	return &assessment.Catalogue{Target: t.ID(), DepthLimit: opts.DepthLimit, PageLimit: opts.PageLimit}, nil
}

func TestSharedDiscoveryCrawlsOncePerTarget(t *testing.T) {
	inner := &countingDiscoverer{}
	shared := &sharedDiscovery{next: inner}
	target := webTarget(t, "https://example.com")
	opts := discovery.Options{DepthLimit: 2, PageLimit: 50}

	first, err := shared.Discover(context.Background(), target, opts)
	if err != nil {
		t.Fatal(err)
	}
	first.Truncated = true
	second, err := shared.Discover(context.Background(), target, opts)
	if err != nil {
		t.Fatal(err)
	}
	if inner.calls.Load() != 1 {
		t.Fatalf("expected one crawl, got %d", inner.calls.Load())
	}
	if second.Truncated {
		t.Fatal("callers must receive independent snapshots")
	}
}

func TestModulesSharingRunnerKeepTheirOwnDeadlines(t *testing.T) {
	started := make(chan struct{}, 1)
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		select {
		case started <- struct{}{}:
		default:
		}
		time.Sleep(200 * time.Millisecond)
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body><a href="/api/v1/orders">orders</a></body></html>`)
	})
	mux.HandleFunc("/api/v1/orders", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[]`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	runner := newTestRunner(t, nil)
	target := webTarget(t, server.URL)

	type outcome struct {
		res assessment.ModuleResult
		err error
	}
	short := make(chan outcome, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		res, err := runner.Run(ctx, mustModule(t, "api_security"), target, quick)
		short <- outcome{res, err}
	}()
	<-started

	res, err := runner.Run(context.Background(), mustModule(t, "sensitive_data"), target, quick)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	requireNoTimeouts(t, res)

	timedOut := <-short
	if timedOut.err == nil || timedOut.res.Error == nil || timedOut.res.Error.Kind != sharedErrors.KindTimeout {
		t.Fatalf("expected the short unit to time out, got %+v", timedOut.res.Error)
	}

	again, err := runner.Run(context.Background(), mustModule(t, "api_security"), target, quick)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	requireNoTimeouts(t, again)
}

func requireNoTimeouts(t *testing.T, res assessment.ModuleResult) {
	t.Helper()
	if res.State != assessment.RunCompleted {
		t.Fatalf("%s: expected completed run, got %s (%+v)", res.Module, res.State, res.Error)
	}
	for _, o := range res.Observations {
		if o.ErrorKind == sharedErrors.KindTimeout {
			t.Fatalf("%s: timeout observation from another unit's deadline: %+v", res.Module, o)
		}
	}
}

func TestRunHonoursZeroDepth(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<a href="/level1">L1</a><form method="get" action="/search"><input name="q"></form>`)
	})
	mux.HandleFunc("/level1", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<a href="/level2">L2</a>`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	cfg := RunConfig{SkipBurst: true, Discovery: discovery.Options{DepthLimit: 0, PageLimit: 10}}
	res, err := newTestRunner(t, nil).Run(context.Background(), mustModule(t, "input_validation"), webTarget(t, server.URL), cfg)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Catalogue == nil || res.Catalogue.DepthLimit != 0 {
		t.Fatalf("expected a depth 0 catalogue, got %+v", res.Catalogue)
	}
	for _, ep := range res.Catalogue.Endpoints {
		if ep.Depth != 0 || strings.Contains(ep.URL, "/level") {
			t.Fatalf("endpoint beyond depth 0: %+v", ep)
		}
	}
	for _, o := range res.Observations {
		if strings.Contains(o.Endpoint, "/level") {
			t.Fatalf("requested an endpoint beyond depth 0: %s", o.Endpoint)
		}
	}
}
