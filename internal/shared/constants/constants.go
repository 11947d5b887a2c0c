package constants

import (
	"io/fs"
	"time"
)

const (
	// DefaultDirPerm is the default permission used when creating directories.
	DefaultDirPerm fs.FileMode = 0o755
	// DefaultFilePerm is the default permission used when creating files.
	DefaultFilePerm fs.FileMode = 0o644
)

const (
	// MaxCrawlBodyBytes caps how much of a page discovery will parse.
	MaxCrawlBodyBytes = 512 * 1024
	// MaxProbeBodyBytes caps how much of a probe response detectors inspect.
	MaxProbeBodyBytes = 256 * 1024
	// MaxToolOutputBytes caps the stdout read from one external tool.
	MaxToolOutputBytes = 8 * 1024 * 1024
	// MaxToolStderrBytes caps the stderr kept for a failing tool's error.
	MaxToolStderrBytes = 4 * 1024
	// ExcerptLimit caps response excerpts stored alongside observations.
	ExcerptLimit = 240
	// TLSSoonExpiryWindow flags certificates expiring inside this window.
	TLSSoonExpiryWindow = 14 * 24 * time.Hour
)

// Pipeline defaults. Every value is overridable through configuration.
const (
	DefaultDepthLimit      = 2
	DefaultPageLimit       = 50
	DefaultMaxWorkers      = 4
	DefaultUnitTimeout     = 5 * time.Minute
	DefaultRequestTimeout  = 10 * time.Second
	DefaultEndpointBudget  = 30 * time.Second
	// Discovery and evidence collection are shared by every module of a
	// target and run under their own deadline, not any one unit's.
	DefaultDiscoveryBudget = 2 * time.Minute
	DefaultEvidenceBudget  = 2 * time.Minute
	DefaultEndpointMaxReqs = 40
	DefaultRateLimit       = 10.0
	DefaultRateBurst       = 5
	DefaultBurstSize       = 20
	DefaultProbeEndpoints  = 5
	DefaultRetryAttempts   = 2
	DefaultRetryBackoff    = 2 * time.Second
	DefaultRetryMaxBackoff = 30 * time.Second
	DefaultCacheTTL        = 10 * time.Minute
	DefaultUserAgent       = "seca-gap/1.0 (+security-gap-analysis)"
)
