package aggregate

import (
	"errors"
	"math/rand"
	"reflect"
	"testing"

	"github.com/khanhnv2901/seca-gap/internal/domain/assessment"
	sharedErrors "github.com/khanhnv2901/seca-gap/internal/shared/errors"
)

func result(target, module string, number int, statuses ...assessment.Status) assessment.ModuleResult {
	res := assessment.ModuleResult{Target: target, Module: module, ModuleNumber: number, Controls: map[string]assessment.Status{}}
	for i, s := range statuses {
		id := module + string(rune('A'+i))
		res.Details = append(res.Details, assessment.ControlResult{ControlID: id, Status: s})
		res.Controls[id] = s
	}
	return res
}

const (
	pass = assessment.StatusPass
	fail = assessment.StatusFail
	nt   = assessment.StatusNotTested
)

func TestMergeTotals(t *testing.T) {
	results := []assessment.ModuleResult{
		result("https://a.example/", "authentication", 2, pass, pass, fail, nt),
		result("https://a.example/", "authorization", 3, nt, nt),
		result("https://b.example/", "authentication", 2, pass, fail, fail, nt),
	}
	overall, perTarget, err := Merge(results)
	if err != nil {
		t.Fatal(err)
	}

	want := assessment.Summary{Total: 10, Passed: 3, Failed: 3, NotTested: 4, PassRate: 50, Coverage: 60}
	if overall != want {
		t.Fatalf("overall = %+v, want %+v", overall, want)
	}
	a := perTarget["https://a.example/"]
	if a.Total != 6 || a.Passed != 2 || a.Failed != 1 || a.NotTested != 3 || a.PassRate != 66.67 || a.Coverage != 50 {
		t.Fatalf("unexpected per-target summary %+v", a)
	}
}

func TestMergeNothingTested(t *testing.T) {
	overall, _, err := Merge([]assessment.ModuleResult{result("t", "m", 1, nt, nt, nt)})
	if err != nil {
		t.Fatal(err)
	}
	if overall.PassRate != 0 || overall.Coverage != 0 || overall.NotTested != 3 {
		t.Fatalf("unexpected summary %+v", overall)
	}
}

func TestMergeIsOrderIndependent(t *testing.T) {
	results := []assessment.ModuleResult{
		result("t1", "m1", 1, pass, fail),
		result("t1", "m2", 2, nt, pass, pass),
		result("t2", "m1", 1, fail),
		result("t2", "m2", 2, pass, nt),
		result("t3", "m1", 1, nt),
	}
	wantOverall, wantTargets, err := Merge(results)
	if err != nil {
		t.Fatal(err)
	}

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		shuffled := append([]assessment.ModuleResult(nil), results...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		gotOverall, gotTargets, err := Merge(shuffled)
		if err != nil {
			t.Fatal(err)
		}
		if gotOverall != wantOverall || !reflect.DeepEqual(gotTargets, wantTargets) {
			t.Fatalf("permutation %d changed the aggregate", i)
		}
	}

	// Idempotent: merging again yields the same values.
	again, _, _ := Merge(results)
	if again != wantOverall {
		t.Fatal("merge is not idempotent")
	}
}

func TestMergeRejectsDuplicateUnits(t *testing.T) {
	_, _, err := Merge([]assessment.ModuleResult{
		result("t", "m", 1, pass),
		result("t", "m", 1, fail),
	})
	if !errors.Is(err, sharedErrors.ErrDuplicateUnit) {
		t.Fatalf("expected ErrDuplicateUnit, got %v", err)
	}
}

func TestSortByTargetThenModuleNumber(t *testing.T) {
	results := []assessment.ModuleResult{
		result("b", "m8", 8),
		result("a", "m3", 3),
		result("b", "m1", 1),
		result("a", "m1", 1),
	}
	Sort(results)
	var got []string
	for _, r := range results {
		got = append(got, r.Target+"/"+r.Module)
	}
	want := []string{"a/m1", "a/m3", "b/m1", "b/m8"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	if ts := Targets(results); !reflect.DeepEqual(ts, []string{"a", "b"}) {
		t.Fatalf("targets = %v", ts)
	}
}
