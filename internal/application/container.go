package application

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/khanhnv2901/seca-gap/internal/application/assess"
	"github.com/khanhnv2901/seca-gap/internal/discovery"
	"github.com/khanhnv2901/seca-gap/internal/domain/assessment"
	"github.com/khanhnv2901/seca-gap/internal/evaluator"
	"github.com/khanhnv2901/seca-gap/internal/evidence"
	"github.com/khanhnv2901/seca-gap/internal/infrastructure/persistence/json"
	"github.com/khanhnv2901/seca-gap/internal/infrastructure/schema"
	"github.com/khanhnv2901/seca-gap/internal/modules"
	"github.com/khanhnv2901/seca-gap/internal/orchestrator"
	"github.com/khanhnv2901/seca-gap/internal/probe"
	"github.com/khanhnv2901/seca-gap/internal/target"
	"github.com/khanhnv2901/seca-gap/internal/transport"
)

// NmapConfig enables the port scan evidence source.
type NmapConfig struct {
	Enabled        bool     `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Ports          []string `mapstructure:"ports" yaml:"ports" json:"ports"`
	TimeoutSeconds int      `mapstructure:"timeout_seconds" yaml:"timeout_seconds" json:"timeout_seconds"`
}

// EvidenceConfig selects external evidence sources.
type EvidenceConfig struct {
	// DocumentsDir is scanned for web and api targets as well.
	DocumentsDir string                `mapstructure:"documents_dir" yaml:"documents_dir" json:"documents_dir"`
	Nmap         NmapConfig            `mapstructure:"nmap" yaml:"nmap" json:"nmap"`
	Tools        []evidence.ToolConfig `mapstructure:"tools" yaml:"tools" json:"tools"`
}

// Config is everything the container needs to wire the pipeline.
type Config struct {
	ResultsDir  string
	Transport   transport.Options
	Probe       probe.Config
	Calibration evaluator.Calibration
	Evidence    EvidenceConfig

	// DisableCache turns off the probe observation cache.
	DisableCache bool
	// DisableTelemetry skips the telemetry.jsonl record of each run.
	DisableTelemetry bool
}

// Container holds the wired pipeline and its services.
// This is a simple dependency injection container
type Container struct {
	Resolver     *target.Resolver
	Registry     *modules.Registry
	Evaluator    *evaluator.Evaluator
	Collector    *evidence.Collector
	Runner       *modules.Runner
	Orchestrator *orchestrator.Orchestrator
	Validator    *schema.Validator
	Repository   *json.ResultRepository
	Telemetry    *json.TelemetryLog

	Assessments *assess.Service
}

// NewContainer wires the pipeline from cfg.
func NewContainer(cfg Config, logger *zap.Logger) (*Container, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Calibration.FailThreshold == 0 && cfg.Calibration.StrongWeight == 0 {
		cfg.Calibration = evaluator.DefaultCalibration()
	}
	if err := cfg.Calibration.Validate(); err != nil {
		return nil, err
	}

	validator, err := schema.Default()
	if err != nil {
		return nil, fmt.Errorf("failed to load result schema: %w", err)
	}
	repo, err := json.NewResultRepository(cfg.ResultsDir, validator)
	if err != nil {
		return nil, fmt.Errorf("failed to create result repository: %w", err)
	}
	var (
		telemetry *json.TelemetryLog
		recorder  assessment.TelemetryRecorder
	)
	if !cfg.DisableTelemetry {
		telemetry, err = json.NewTelemetryLog(cfg.ResultsDir)
		if err != nil {
			return nil, fmt.Errorf("failed to create telemetry log: %w", err)
		}
		recorder = telemetry
	}

	pool := transport.NewPool(cfg.Transport)
	var cache probe.Cache
	if !cfg.DisableCache {
		cache = probe.NewMemoryCache()
	}
	collector := NewCollector(cfg.Evidence, logger)
	eval := evaluator.New(cfg.Calibration, logger.Named("evaluator"))
	runner := modules.NewRunner(
		discovery.NewEngine(pool, logger.Named("discovery")),
		probe.NewEngine(pool, cache, cfg.Probe, logger.Named("probe")),
		eval,
		collector,
		logger.Named("runner"),
	)
	orch := orchestrator.New(runner, logger.Named("orchestrator"))
	resolver := target.NewResolver(logger.Named("target"))
	registry := modules.Default()

	return &Container{
		Resolver:     resolver,
		Registry:     registry,
		Evaluator:    eval,
		Collector:    collector,
		Runner:       runner,
		Orchestrator: orch,
		Validator:    validator,
		Repository:   repo,
		Telemetry:    telemetry,
		Assessments:  assess.NewService(resolver, registry, orch, repo, recorder, logger.Named("assess")),
	}, nil
}

// NewCollector builds the evidence collector from cfg. Document-set targets
// are always scanned; the other sources are opt-in.
func NewCollector(cfg EvidenceConfig, logger *zap.Logger) *evidence.Collector {
	sources := []evidence.Source{evidence.NewDocumentAnalyzer(cfg.DocumentsDir, logger.Named("documents"))}
	for _, tool := range cfg.Tools {
		if tool.Command == "" {
			logger.Warn("tool without command ignored", zap.String("tool", tool.Name))
			continue
		}
		sources = append(sources, evidence.NewToolRunner(tool))
	}
	if cfg.Nmap.Enabled {
		timeout := time.Duration(cfg.Nmap.TimeoutSeconds) * time.Second
		sources = append(sources, evidence.NewNmapScanner(cfg.Nmap.Ports, timeout, logger.Named("nmap")))
	}
	return evidence.NewCollector(logger.Named("evidence"), sources...)
}

var _ assessment.Repository = (*json.ResultRepository)(nil)
