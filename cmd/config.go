package cmd

import (
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/khanhnv2901/seca-gap/internal/application"
	"github.com/khanhnv2901/seca-gap/internal/discovery"
	"github.com/khanhnv2901/seca-gap/internal/evaluator"
	"github.com/khanhnv2901/seca-gap/internal/modules"
	"github.com/khanhnv2901/seca-gap/internal/orchestrator"
	"github.com/khanhnv2901/seca-gap/internal/probe"
	"github.com/khanhnv2901/seca-gap/internal/shared/constants"
	sharedErrors "github.com/khanhnv2901/seca-gap/internal/shared/errors"
	"github.com/khanhnv2901/seca-gap/internal/transport"
)

const (
	configName       = "seca-gap"
	envPrefix        = "SECA_GAP"
	defaultResults   = "./results"
	defaultServeAddr = "127.0.0.1:8080"
)

// CLIConfig captures runtime configuration shared across commands.
// Precedence is flag, then environment (SECA_GAP_*), then config file,
// then built-in defaults.
type CLIConfig struct {
	ResultsDir      string                     `mapstructure:"results_dir"`
	CalibrationFile string                     `mapstructure:"calibration_file"`
	Assess          AssessConfig               `mapstructure:"assess"`
	HTTP            HTTPConfig                 `mapstructure:"http"`
	Evidence        application.EvidenceConfig `mapstructure:"evidence"`
	Serve           ServeConfig                `mapstructure:"serve"`
}

// AssessConfig groups orchestration and discovery settings.
type AssessConfig struct {
	MaxWorkers      int                      `mapstructure:"max_workers"`
	TimeoutPerUnit  time.Duration            `mapstructure:"timeout_per_unit"`
	Retry           orchestrator.RetryPolicy `mapstructure:"retry"`
	DepthLimit      int                      `mapstructure:"depth_limit"`
	PageLimit       int                      `mapstructure:"page_limit"`
	AllowSubdomains bool                     `mapstructure:"allow_subdomains"`
	OpenAPI         bool                     `mapstructure:"openapi"`
	WellKnown       bool                     `mapstructure:"well_known"`
	MaxEndpoints    int                      `mapstructure:"max_endpoints"`
	SkipBurst       bool                     `mapstructure:"skip_burst"`
	Telemetry       bool                     `mapstructure:"telemetry"`
	Progress        bool                     `mapstructure:"progress"`
	DisableCache    bool                     `mapstructure:"disable_cache"`
}

// HTTPConfig groups transport and probe budgets.
type HTTPConfig struct {
	RequestTimeout     time.Duration     `mapstructure:"request_timeout"`
	RatePerSecond      float64           `mapstructure:"rate"`
	Burst              int               `mapstructure:"burst"`
	UserAgent          string            `mapstructure:"user_agent"`
	InsecureSkipVerify bool              `mapstructure:"insecure_skip_verify"`
	Headers            map[string]string `mapstructure:"headers"`
	EndpointBudget     time.Duration     `mapstructure:"endpoint_budget"`
	MaxRequests        int               `mapstructure:"max_requests"`
	BurstSize          int               `mapstructure:"burst_size"`
	CacheTTL           time.Duration     `mapstructure:"cache_ttl"`
}

// ServeConfig holds the API server settings.
type ServeConfig struct {
	Addr            string        `mapstructure:"addr"`
	AuthToken       string        `mapstructure:"auth_token"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	RateLimit       int           `mapstructure:"rate_limit"`
	RateBurst       int           `mapstructure:"rate_burst"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxJobs         int           `mapstructure:"max_jobs"`
}

func setDefaults(v *viper.Viper) {
	retry := orchestrator.DefaultRetryPolicy()

	v.SetDefault("results_dir", defaultResults)
	v.SetDefault("assess.max_workers", constants.DefaultMaxWorkers)
	v.SetDefault("assess.timeout_per_unit", constants.DefaultUnitTimeout)
	v.SetDefault("assess.retry.max_attempts", retry.MaxAttempts)
	v.SetDefault("assess.retry.base", retry.Base)
	v.SetDefault("assess.retry.max", retry.Max)
	v.SetDefault("assess.retry.kind", string(retry.Kind))
	v.SetDefault("assess.depth_limit", constants.DefaultDepthLimit)
	v.SetDefault("assess.page_limit", constants.DefaultPageLimit)
	v.SetDefault("assess.openapi", true)
	v.SetDefault("assess.well_known", true)
	v.SetDefault("assess.max_endpoints", constants.DefaultProbeEndpoints)
	v.SetDefault("assess.telemetry", true)
	v.SetDefault("assess.progress", true)

	v.SetDefault("http.request_timeout", constants.DefaultRequestTimeout)
	v.SetDefault("http.rate", constants.DefaultRateLimit)
	v.SetDefault("http.burst", constants.DefaultRateBurst)
	v.SetDefault("http.user_agent", constants.DefaultUserAgent)
	v.SetDefault("http.endpoint_budget", constants.DefaultEndpointBudget)
	v.SetDefault("http.max_requests", constants.DefaultEndpointMaxReqs)
	v.SetDefault("http.burst_size", constants.DefaultBurstSize)
	v.SetDefault("http.cache_ttl", constants.DefaultCacheTTL)

	v.SetDefault("serve.addr", defaultServeAddr)
	v.SetDefault("serve.rate_limit", 10)
	v.SetDefault("serve.rate_burst", 20)
	v.SetDefault("serve.shutdown_timeout", 30*time.Second)
	v.SetDefault("serve.max_jobs", 1000)
}

// bindFlags maps command flags onto config keys. Unchanged flags do not
// shadow config or environment values.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet, keys map[string]string) {
	for name, key := range keys {
		if f := flags.Lookup(name); f != nil {
			_ = v.BindPFlag(key, f)
		}
	}
}

func loadCLIConfig(v *viper.Viper) (*CLIConfig, error) {
	cfg := &CLIConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("%w: decode config: %v", sharedErrors.ErrConfig, err)
	}
	if cfg.ResultsDir == "" {
		cfg.ResultsDir = defaultResults
	}
	if abs, err := filepath.Abs(cfg.ResultsDir); err == nil {
		cfg.ResultsDir = abs
	}
	if err := cfg.orchestratorOptions().Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// orchestratorOptions builds the batch options.
func (c *CLIConfig) orchestratorOptions() orchestrator.Options {
	return orchestrator.Options{
		MaxWorkers:     c.Assess.MaxWorkers,
		TimeoutPerUnit: c.Assess.TimeoutPerUnit,
		Retry:          c.Assess.Retry,
		Run: modules.RunConfig{
			Discovery: discovery.Options{
				DepthLimit:      c.Assess.DepthLimit,
				PageLimit:       c.Assess.PageLimit,
				AllowSubdomains: c.Assess.AllowSubdomains,
				OpenAPI:         c.Assess.OpenAPI,
				WellKnown:       c.Assess.WellKnown,
			},
			MaxEndpoints: c.Assess.MaxEndpoints,
			SkipBurst:    c.Assess.SkipBurst,
		},
	}
}

// containerConfig builds the pipeline wiring config, loading the
// calibration file when one is set.
func (c *CLIConfig) containerConfig() (application.Config, error) {
	cal := evaluator.DefaultCalibration()
	if c.CalibrationFile != "" {
		loaded, err := evaluator.LoadCalibration(c.CalibrationFile)
		if err != nil {
			return application.Config{}, err
		}
		cal = loaded
	}

	var headers http.Header
	for name, value := range c.HTTP.Headers {
		if headers == nil {
			headers = make(http.Header)
		}
		headers.Set(name, value)
	}

	return application.Config{
		ResultsDir: c.ResultsDir,
		Transport: transport.Options{
			RequestTimeout:     c.HTTP.RequestTimeout,
			RatePerSecond:      c.HTTP.RatePerSecond,
			Burst:              c.HTTP.Burst,
			UserAgent:          c.HTTP.UserAgent,
			InsecureSkipVerify: c.HTTP.InsecureSkipVerify,
			Credentials:        headers,
		},
		Probe: probe.Config{
			EndpointBudget: c.HTTP.EndpointBudget,
			MaxRequests:    c.HTTP.MaxRequests,
			BurstSize:      c.HTTP.BurstSize,
			CacheTTL:       c.HTTP.CacheTTL,
		},
		Calibration:      cal,
		Evidence:         c.Evidence,
		DisableCache:     c.Assess.DisableCache,
		DisableTelemetry: !c.Assess.Telemetry,
	}, nil
}
