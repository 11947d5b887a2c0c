package modules

import (
	"errors"
	"fmt"
	"testing"

	sharedErrors "github.com/khanhnv2901/seca-gap/internal/shared/errors"
)

func TestDefaultRegistryDeclaresEveryControlOnce(t *testing.T) {
	reg := Default()

	wantCounts := map[string]int{
		"input_validation":   10,
		"authentication":     7,
		"authorization":      5,
		"sensitive_data":     12,
		"session_management": 7,
		"logging_monitoring": 8,
		"api_security":       10,
		"infrastructure":     6,
	}
	if got := len(reg.All()); got != len(wantCounts) {
		t.Fatalf("expected %d modules, got %d", len(wantCounts), got)
	}
	if reg.ControlCount() != 65 {
		t.Fatalf("expected 65 controls, got %d", reg.ControlCount())
	}

	next := 1
	for i, d := range reg.Descriptors() {
		if d.Number != i+1 {
			t.Errorf("module %s has number %d at position %d", d.ID, d.Number, i)
		}
		if len(d.Controls) != wantCounts[d.ID] {
			t.Errorf("module %s declares %d controls, want %d", d.ID, len(d.Controls), wantCounts[d.ID])
		}
		for _, c := range d.Controls {
			if c.Number != fmt.Sprintf("%03d", next) {
				t.Errorf("control %s numbered %s, want %03d", c.ID, c.Number, next)
			}
			if c.Name == "" || c.Description == "" {
				t.Errorf("control %s lacks a name or description", c.ID)
			}
			next++
		}
	}
}

func TestRulesCarryTheirControl(t *testing.T) {
	for _, m := range Default().All() {
		pm := m.(*planModule)
		for _, c := range pm.controls {
			if c.rule.Control.ID != c.ID {
				t.Errorf("rule of %s bound to %q", c.ID, c.rule.Control.ID)
			}
		}
	}
}

func TestRegistryLookup(t *testing.T) {
	reg := Default()
	for _, key := range []string{"authorization", "3", "module3", " Authorization "} {
		m, err := reg.Lookup(key)
		if err != nil {
			t.Fatalf("Lookup(%q): %v", key, err)
		}
		if m.Descriptor().ID != "authorization" {
			t.Fatalf("Lookup(%q) = %s", key, m.Descriptor().ID)
		}
	}
	if _, err := reg.Lookup("module9"); !errors.Is(err, sharedErrors.ErrUnknownModule) {
		t.Fatalf("expected ErrUnknownModule, got %v", err)
	}
}

func TestRegistrySelectKeepsRegistryOrder(t *testing.T) {
	mods, err := Default().Select([]string{"infrastructure", "1", ""})
	if err != nil {
		t.Fatal(err)
	}
	if len(mods) != 2 || mods[0].Descriptor().Number != 1 || mods[1].Descriptor().Number != 8 {
		t.Fatalf("unexpected selection: %v", mods)
	}

	all, err := Default().Select(nil)
	if err != nil || len(all) != 8 {
		t.Fatalf("empty selection should return all modules, got %d (%v)", len(all), err)
	}
}

func TestNewRegistryRejectsDuplicateControls(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for duplicate module")
		}
	}()
	NewRegistry(authorization(), authorization())
}
