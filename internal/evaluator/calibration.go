package evaluator

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	sharedErrors "github.com/khanhnv2901/seca-gap/internal/shared/errors"
)

// Calibration holds the thresholds and weights of the confidence model.
// Values are heuristics; operators tune them against labelled runs.
type Calibration struct {
	FailThreshold  float64 `yaml:"fail_threshold" json:"fail_threshold"`
	PassThreshold  float64 `yaml:"pass_threshold" json:"pass_threshold"`
	StrongWeight   float64 `yaml:"strong_weight" json:"strong_weight"`
	WeakWeight     float64 `yaml:"weak_weight" json:"weak_weight"`
	ExternalWeight float64 `yaml:"external_weight" json:"external_weight"`
	// Controls overrides the fail threshold per control id.
	Controls map[string]float64 `yaml:"controls,omitempty" json:"controls,omitempty"`
}

// DefaultCalibration returns the built-in calibration: one strong
// structural hit fails a control, a single weak hit never does.
func DefaultCalibration() Calibration {
	return Calibration{
		FailThreshold:  0.5,
		PassThreshold:  0.25,
		StrongWeight:   0.6,
		WeakWeight:     0.25,
		ExternalWeight: 0.8,
	}
}

// LoadCalibration reads a YAML calibration file. Missing fields keep
// their defaults.
func LoadCalibration(path string) (Calibration, error) {
	cal := DefaultCalibration()
	data, err := os.ReadFile(path)
	if err != nil {
		return cal, fmt.Errorf("%w: read calibration: %v", sharedErrors.ErrConfig, err)
	}
	if err := yaml.Unmarshal(data, &cal); err != nil {
		return cal, fmt.Errorf("%w: parse calibration: %v", sharedErrors.ErrConfig, err)
	}
	if err := cal.Validate(); err != nil {
		return cal, err
	}
	return cal, nil
}

// Validate rejects weights and thresholds outside (0, 1].
func (c Calibration) Validate() error {
	check := func(name string, v float64) error {
		if v <= 0 || v > 1 {
			return fmt.Errorf("%w: %s must be in (0, 1], got %v", sharedErrors.ErrConfig, name, v)
		}
		return nil
	}
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"fail_threshold", c.FailThreshold},
		{"pass_threshold", c.PassThreshold},
		{"strong_weight", c.StrongWeight},
		{"weak_weight", c.WeakWeight},
		{"external_weight", c.ExternalWeight},
	} {
		if err := check(f.name, f.v); err != nil {
			return err
		}
	}
	if c.WeakWeight > c.StrongWeight {
		return fmt.Errorf("%w: weak_weight must not exceed strong_weight", sharedErrors.ErrConfig)
	}
	for id, v := range c.Controls {
		if err := check("controls."+id, v); err != nil {
			return err
		}
	}
	return nil
}

func (c Calibration) failThreshold(controlID string, override float64) float64 {
	if v, ok := c.Controls[controlID]; ok {
		return v
	}
	if override > 0 {
		return override
	}
	return c.FailThreshold
}
