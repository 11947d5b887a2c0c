package evaluator

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/khanhnv2901/seca-gap/internal/domain/assessment"
	sharedErrors "github.com/khanhnv2901/seca-gap/internal/shared/errors"
)

var xssRule = Rule{
	Control:     assessment.Control{ID: "XSS", Number: "002", Name: "Cross-Site Scripting"},
	Positive:    []string{"payload_reflected_unescaped"},
	Exculpatory: []string{"payload_reflected_encoded", "payload_not_reflected"},
	Kinds:       []assessment.ProbeKind{assessment.ProbeReflection},
	Evidence:    []string{"xss_scan"},
}

func obs(seq int, endpoint, payload string, inds ...assessment.Indicator) assessment.Observation {
	return assessment.Observation{
		Seq:        seq,
		Endpoint:   endpoint,
		Method:     "GET",
		Kind:       assessment.ProbeReflection,
		Payload:    payload,
		Status:     200,
		Indicators: inds,
	}
}

func TestEvaluateDecisions(t *testing.T) {
	strongPos := assessment.Strong("payload_reflected_unescaped", assessment.Positive, "script")
	weakPos := assessment.Weak("payload_reflected_unescaped", assessment.Positive, "comment")
	strongExc := assessment.Strong("payload_reflected_encoded", assessment.Exculpatory, "")
	weakExc := assessment.Weak("payload_not_reflected", assessment.Exculpatory, "")

	tests := []struct {
		name     string
		obs      []assessment.Observation
		evidence []assessment.Evidence
		want     assessment.Status
	}{
		{
			name: "no evidence",
			want: assessment.StatusNotTested,
		},
		{
			name: "single strong positive fails",
			obs:  []assessment.Observation{obs(1, "/a", "p1", strongPos)},
			want: assessment.StatusFail,
		},
		{
			name: "single weak positive stays not tested",
			obs:  []assessment.Observation{obs(1, "/a", "p1", weakPos)},
			want: assessment.StatusNotTested,
		},
		{
			name: "weak positive blocks pass",
			obs: []assessment.Observation{
				obs(1, "/a", "p1", weakPos),
				obs(2, "/b", "p1", strongExc),
			},
			want: assessment.StatusNotTested,
		},
		{
			name: "three corroborating weak hits fail",
			obs: []assessment.Observation{
				obs(1, "/a", "p1", weakPos),
				obs(2, "/b", "p1", weakPos),
				obs(3, "/c", "p1", weakPos),
			},
			want: assessment.StatusFail,
		},
		{
			name: "repeated hit on same endpoint and payload counts once",
			obs: []assessment.Observation{
				obs(1, "/a", "p1", weakPos),
				obs(2, "/a", "p1", weakPos),
				obs(3, "/a", "p1", weakPos),
			},
			want: assessment.StatusNotTested,
		},
		{
			name: "exculpatory passes",
			obs:  []assessment.Observation{obs(1, "/a", "p1", strongExc), obs(2, "/b", "p1", weakExc)},
			want: assessment.StatusPass,
		},
		{
			name: "other probe kinds ignored",
			obs: []assessment.Observation{{
				Seq: 1, Endpoint: "/a", Kind: assessment.ProbeHeaders,
				Indicators: []assessment.Indicator{strongPos},
			}},
			want: assessment.StatusNotTested,
		},
		{
			name: "document evidence alone decides",
			evidence: []assessment.Evidence{{
				Source: "policy.md", SourceKind: assessment.SourceDocument,
				Indicator: assessment.Strong("xss_scan", assessment.Exculpatory, "output encoding library"),
			}},
			want: assessment.StatusPass,
		},
		{
			name: "evidence addressed to the control",
			evidence: []assessment.Evidence{{
				Source: "scanner", SourceKind: assessment.SourceTool, Control: "XSS",
				Indicator: assessment.Strong("anything", assessment.Positive, "reflected"),
			}},
			want: assessment.StatusFail,
		},
		{
			name: "evidence addressed elsewhere ignored",
			evidence: []assessment.Evidence{{
				Source: "scanner", SourceKind: assessment.SourceTool, Control: "SQL_Injection",
				Indicator: assessment.Strong("xss_scan", assessment.Positive, ""),
			}},
			want: assessment.StatusNotTested,
		},
	}

	ev := New(DefaultCalibration(), zaptest.NewLogger(t))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ev.Evaluate(xssRule, tt.obs, tt.evidence)
			if got.Status != tt.want {
				t.Fatalf("status = %s, want %s (%s)", got.Status, tt.want, got.Rationale)
			}
			if got.ControlID != "XSS" || got.Number != "002" {
				t.Fatalf("control identity not carried: %+v", got)
			}
			if got.Status == assessment.StatusFail {
				if len(got.Supporting) == 0 {
					t.Fatal("fail without supporting refs")
				}
				if got.Confidence < ev.Calibration().FailThreshold {
					t.Fatalf("fail below threshold: %v", got.Confidence)
				}
			}
			if got.Rationale == "" {
				t.Fatal("missing rationale")
			}
		})
	}
}

func TestEvaluateNeverFailsUnsupported(t *testing.T) {
	ev := New(DefaultCalibration(), zaptest.NewLogger(t))
	strengths := []assessment.Strength{assessment.StrengthStrong, assessment.StrengthWeak}
	for n := 0; n < 6; n++ {
		for _, s := range strengths {
			var list []assessment.Observation
			for i := 0; i < n; i++ {
				ind := assessment.Indicator{Name: "payload_reflected_unescaped", Strength: s, Polarity: assessment.Positive}
				list = append(list, obs(i+1, "/p", string(rune('a'+i)), ind))
			}
			got := ev.Evaluate(xssRule, list, nil)
			if got.Status == assessment.StatusFail && (len(got.Supporting) == 0 || got.Confidence < 0.5) {
				t.Fatalf("unsupported fail for n=%d strength=%s: %+v", n, s, got)
			}
		}
	}
}

func TestEvaluateRecoversPanics(t *testing.T) {
	rule := xssRule
	rule.Filter = func(assessment.Observation) bool { panic("boom") }
	ev := New(DefaultCalibration(), zaptest.NewLogger(t))
	got := ev.Evaluate(rule, []assessment.Observation{obs(1, "/a", "p", assessment.Strong("payload_reflected_unescaped", assessment.Positive, ""))}, nil)
	if got.Status != assessment.StatusNotTested {
		t.Fatalf("expected not_tested, got %s", got.Status)
	}
	if got.Rationale != "evaluation error: boom" {
		t.Fatalf("unexpected rationale %q", got.Rationale)
	}
}

func TestControlThresholdOverride(t *testing.T) {
	cal := DefaultCalibration()
	cal.Controls = map[string]float64{"XSS": 0.9}
	ev := New(cal, zaptest.NewLogger(t))
	got := ev.Evaluate(xssRule, []assessment.Observation{obs(1, "/a", "p", assessment.Strong("payload_reflected_unescaped", assessment.Positive, ""))}, nil)
	if got.Status != assessment.StatusNotTested {
		t.Fatalf("expected not_tested under raised threshold, got %s", got.Status)
	}
}

func TestLoadCalibration(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "calibration.yaml")
	if err := os.WriteFile(path, []byte("fail_threshold: 0.7\ncontrols:\n  XSS: 0.4\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	cal, err := LoadCalibration(path)
	if err != nil {
		t.Fatalf("LoadCalibration: %v", err)
	}
	if cal.FailThreshold != 0.7 || cal.StrongWeight != 0.6 || cal.Controls["XSS"] != 0.4 {
		t.Fatalf("unexpected calibration %+v", cal)
	}

	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("weak_weight: 1.5\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadCalibration(bad); !errors.Is(err, sharedErrors.ErrConfig) {
		t.Fatalf("expected config error, got %v", err)
	}
}
