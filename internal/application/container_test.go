package application

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/khanhnv2901/seca-gap/internal/application/assess"
	"github.com/khanhnv2901/seca-gap/internal/domain/assessment"
	"github.com/khanhnv2901/seca-gap/internal/evidence"
	"github.com/khanhnv2901/seca-gap/internal/orchestrator"
	"github.com/khanhnv2901/seca-gap/internal/transport"
)

func TestContainerRunsAndPersists(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			w.Header().Set("Content-Type", "text/html")
			fmt.Fprint(w, `<html><body><a href="/admin">admin</a></body></html>`)
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c, err := NewContainer(Config{
		ResultsDir: t.TempDir(),
		Transport:  transport.Options{RatePerSecond: 1000, Burst: 100, RequestTimeout: 2 * time.Second},
	}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("container: %v", err)
	}

	out, err := c.Assessments.Run(context.Background(), assess.Request{
		Targets: []string{srv.URL},
		Modules: []string{"authorization"},
		Options: orchestrator.Options{MaxWorkers: 1, TimeoutPerUnit: 30 * time.Second},
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(out.Batch.Modules) != 1 {
		t.Fatalf("expected one module result, got %d", len(out.Batch.Modules))
	}
	res := out.Batch.Modules[0]
	if res.State != assessment.RunCompleted {
		t.Fatalf("unit did not complete: %+v", res.Error)
	}
	if res.Summary.Total != 5 {
		t.Fatalf("expected 5 authorization controls, got %d", res.Summary.Total)
	}

	stored, err := c.Repository.LoadModules(context.Background(), out.Batch.RunID)
	if err != nil {
		t.Fatalf("load modules: %v", err)
	}
	if len(stored) != 1 || stored[0].Module != "authorization" {
		t.Fatalf("unexpected stored modules %+v", stored)
	}
}

func TestNewCollectorSources(t *testing.T) {
	logger := zaptest.NewLogger(t)
	c := NewCollector(EvidenceConfig{
		Nmap: NmapConfig{Enabled: true},
		Tools: []evidence.ToolConfig{
			{Name: "zap-baseline", Command: "zap-baseline"},
			{Name: "broken"},
		},
	}, logger)

	got := c.Sources()
	want := []string{"documents", "tool:zap-baseline", "nmap"}
	if len(got) != len(want) {
		t.Fatalf("sources = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sources = %v, want %v", got, want)
		}
	}
}

func TestNewContainerRejectsBadCalibration(t *testing.T) {
	cfg := Config{ResultsDir: t.TempDir()}
	cfg.Calibration.FailThreshold = 2
	cfg.Calibration.StrongWeight = 0.6
	if _, err := NewContainer(cfg, nil); err == nil {
		t.Fatal("expected calibration error")
	}
}
