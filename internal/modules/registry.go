// Package modules declares the control families and runs them against a
// target through the shared discovery, probe and evaluation pipeline.
package modules

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/khanhnv2901/seca-gap/internal/domain/assessment"
	"github.com/khanhnv2901/seca-gap/internal/evaluator"
	sharedErrors "github.com/khanhnv2901/seca-gap/internal/shared/errors"
)

// Registry is the fixed, ordered set of modules.
type Registry struct {
	modules []Module
	byID    map[string]Module
}

// NewRegistry indexes mods by id. Duplicate ids or control ids panic; the
// table is static so this is a programming error.
func NewRegistry(mods ...Module) *Registry {
	r := &Registry{byID: make(map[string]Module, len(mods))}
	controls := make(map[string]string)
	for _, m := range mods {
		d := m.Descriptor()
		if _, dup := r.byID[d.ID]; dup {
			panic(fmt.Sprintf("duplicate module %s", d.ID))
		}
		for _, c := range d.Controls {
			if owner, dup := controls[c.ID]; dup {
				panic(fmt.Sprintf("control %s declared by %s and %s", c.ID, owner, d.ID))
			}
			controls[c.ID] = d.ID
		}
		r.byID[d.ID] = m
		r.modules = append(r.modules, m)
	}
	return r
}

// Default returns the registry of the eight built-in modules.
func Default() *Registry {
	return NewRegistry(
		inputValidation(),
		authentication(),
		authorization(),
		sensitiveData(),
		sessionManagement(),
		loggingMonitoring(),
		apiSecurity(),
		infrastructure(),
	)
}

// All returns every module in number order.
func (r *Registry) All() []Module { return append([]Module(nil), r.modules...) }

// Lookup finds a module by id or number ("3", "module3").
func (r *Registry) Lookup(key string) (Module, error) {
	key = strings.ToLower(strings.TrimSpace(key))
	if m, ok := r.byID[key]; ok {
		return m, nil
	}
	if n, err := strconv.Atoi(strings.TrimPrefix(key, "module")); err == nil {
		for _, m := range r.modules {
			if m.Descriptor().Number == n {
				return m, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: %s", sharedErrors.ErrUnknownModule, key)
}

// Select resolves keys to modules, preserving registry order. No keys
// selects every module.
func (r *Registry) Select(keys []string) ([]Module, error) {
	if len(keys) == 0 {
		return r.All(), nil
	}
	want := make(map[string]bool, len(keys))
	for _, k := range keys {
		if strings.TrimSpace(k) == "" {
			continue
		}
		m, err := r.Lookup(k)
		if err != nil {
			return nil, err
		}
		want[m.Descriptor().ID] = true
	}
	var out []Module
	for _, m := range r.modules {
		if want[m.Descriptor().ID] {
			out = append(out, m)
		}
	}
	return out, nil
}

// Descriptors lists every module descriptor.
func (r *Registry) Descriptors() []Descriptor {
	out := make([]Descriptor, 0, len(r.modules))
	for _, m := range r.modules {
		out = append(out, m.Descriptor())
	}
	return out
}

// ControlCount returns the number of declared controls across modules.
func (r *Registry) ControlCount() int {
	n := 0
	for _, m := range r.modules {
		n += len(m.Descriptor().Controls)
	}
	return n
}

func def(number int, id, name, description string, rule evaluator.Rule) control {
	c := assessment.Control{
		ID:          id,
		Number:      fmt.Sprintf("%03d", number),
		Name:        name,
		Description: description,
	}
	rule.Control = c
	return control{Control: c, rule: rule}
}

func kinds(k ...assessment.ProbeKind) []assessment.ProbeKind { return k }

func tags(t ...assessment.Tag) []assessment.Tag { return t }
