package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/khanhnv2901/seca-gap/internal/application/assess"
	"github.com/khanhnv2901/seca-gap/internal/domain/assessment"
	"github.com/khanhnv2901/seca-gap/internal/shared/constants"
	"github.com/khanhnv2901/seca-gap/internal/target"
)

type assessOptions struct {
	targetsFile string
	modules     []string
	runID       string
	jsonOutput  bool
	details     bool
}

func newAssessCmd(app *AppContext) *cobra.Command {
	opts := &assessOptions{}
	cmd := &cobra.Command{
		Use:   "assess [target...]",
		Short: "Assess targets against the security control catalogue",
		Long: `Assess runs every selected module against every target on a bounded
worker pool. Targets are URLs, host names or paths to policy document
directories. Each (target, module) unit writes its own result file and the
run ends with a merged batch_result.json.`,
		Example: `  seca-gap assess https://shop.example.com
  seca-gap assess https://api.example.com --modules authentication,3 --workers 8
  seca-gap assess --targets-file targets.txt --skip-burst
  seca-gap assess ./policies --modules logging_monitoring`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAssess(cmd, app, opts, args)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.targetsFile, "targets-file", "f", "", "file with one target per line (# comments allowed)")
	flags.StringSliceVarP(&opts.modules, "modules", "m", nil, "modules to run by id or number (default all)")
	flags.StringVar(&opts.runID, "run-id", "", "run identifier (default random UUID)")
	flags.BoolVar(&opts.jsonOutput, "json", false, "print the batch result as JSON")
	flags.BoolVar(&opts.details, "details", false, "print every control verdict")

	flags.Int("workers", constants.DefaultMaxWorkers, "maximum concurrent (target, module) units")
	flags.Duration("timeout-per-unit", constants.DefaultUnitTimeout, "deadline for one unit")
	flags.Int("retries", constants.DefaultRetryAttempts, "attempts per unit for transient failures")
	flags.String("backoff", "exponential", "retry backoff curve (exponential|constant)")
	flags.Int("depth", constants.DefaultDepthLimit, "discovery crawl depth")
	flags.Int("pages", constants.DefaultPageLimit, "discovery page limit")
	flags.Bool("allow-subdomains", false, "follow links to subdomains of the target")
	flags.Bool("openapi", true, "probe well-known OpenAPI document locations")
	flags.Bool("well-known", true, "check common paths and exposed sensitive files")
	flags.Int("max-endpoints", constants.DefaultProbeEndpoints, "endpoints probed per probe step")
	flags.Bool("skip-burst", false, "skip burst probes (rate limiting, resilience)")
	flags.Bool("no-cache", false, "disable the probe observation cache")
	flags.Bool("telemetry", true, "append a telemetry record for the run")
	flags.Bool("progress", true, "show live progress on stderr")

	flags.Duration("request-timeout", constants.DefaultRequestTimeout, "HTTP request timeout")
	flags.Float64("rate", constants.DefaultRateLimit, "requests per second per target host")
	flags.Int("burst", constants.DefaultRateBurst, "request rate burst per target host")
	flags.String("user-agent", constants.DefaultUserAgent, "HTTP User-Agent")
	flags.Bool("insecure", false, "skip TLS certificate verification for probe requests")
	flags.StringToString("header", nil, "credential header attached to authenticated probes (Name=value)")

	bindFlags(app.viper, flags, map[string]string{
		"workers":          "assess.max_workers",
		"timeout-per-unit": "assess.timeout_per_unit",
		"retries":          "assess.retry.max_attempts",
		"backoff":          "assess.retry.kind",
		"depth":            "assess.depth_limit",
		"pages":            "assess.page_limit",
		"allow-subdomains": "assess.allow_subdomains",
		"openapi":          "assess.openapi",
		"well-known":       "assess.well_known",
		"max-endpoints":    "assess.max_endpoints",
		"skip-burst":       "assess.skip_burst",
		"no-cache":         "assess.disable_cache",
		"telemetry":        "assess.telemetry",
		"progress":         "assess.progress",
		"request-timeout":  "http.request_timeout",
		"rate":             "http.rate",
		"burst":            "http.burst",
		"user-agent":       "http.user_agent",
		"insecure":         "http.insecure_skip_verify",
		"header":           "http.headers",
	})
	return cmd
}

func runAssess(cmd *cobra.Command, app *AppContext, opts *assessOptions, args []string) error {
	inputs := append([]string(nil), args...)
	if opts.targetsFile != "" {
		lines, err := target.ReadFile(opts.targetsFile)
		if err != nil {
			return err
		}
		inputs = append(inputs, lines...)
	}

	container, err := app.container()
	if err != nil {
		return err
	}

	req := assess.Request{
		Command: "assess",
		Targets: inputs,
		Modules: opts.modules,
		Options: app.Config.orchestratorOptions(),
	}
	req.Options.RunID = opts.runID

	// Configuration errors surface before the progress line starts.
	if _, _, err := container.Assessments.Prepare(req); err != nil {
		return err
	}

	var progress *progressPrinter
	if app.Config.Assess.Progress && !opts.jsonOutput {
		progress = newProgressPrinter(cmd.ErrOrStderr(), 0, "assess")
		req.Options.Progress = progress.Handle
		progress.Start()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out, runErr := container.Assessments.Run(ctx, req)
	if progress != nil {
		progress.Stop()
	}
	if out == nil {
		return runErr
	}

	w := cmd.OutOrStdout()
	if opts.jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out.Batch); err != nil {
			return err
		}
	} else {
		printBatch(w, out.Batch, opts.details)
		if out.BatchPath != "" {
			fmt.Fprintf(w, "%s Results written to %s\n", colorInfo("→"), out.BatchPath)
		}
	}
	return runErr
}

func printBatch(w io.Writer, batch *assessment.BatchResult, details bool) {
	fmt.Fprintf(w, "%s %s (run %s)\n", colorInfo("→"), batch.ReportType, batch.RunID)
	for _, t := range batch.Targets {
		fmt.Fprintf(w, "\nTarget %s\n", t)
		for _, res := range batch.Modules {
			if res.Target != t {
				continue
			}
			fmt.Fprintf(w, "  [%d] %-28s %-10s %s\n",
				res.ModuleNumber, res.ModuleName, formatStateWithColor(res.State), formatSummary(res.Summary))
			if res.Error != nil {
				fmt.Fprintf(w, "      %s %s: %s\n", colorWarn("!"), res.Error.Kind, res.Error.Message)
			}
			if details {
				for _, c := range res.Details {
					fmt.Fprintf(w, "      %-6s %-44s %-10s %.2f\n",
						c.Number, c.Name, formatStatusWithColor(c.Status), c.Confidence)
				}
			}
		}
		if s, ok := batch.TargetsSummary[t]; ok {
			fmt.Fprintf(w, "  %-39s %s\n", "Target total", formatSummary(s))
		}
	}
	fmt.Fprintf(w, "\nOverall: %s\n", formatSummary(batch.OverallSummary))
	if n := len(batch.Execution.Errors); n > 0 {
		fmt.Fprintf(w, "%s %d unit(s) did not complete\n", colorWarn("!"), n)
	}
}

func formatSummary(s assessment.Summary) string {
	return fmt.Sprintf("%s:%d %s:%d %s:%d pass_rate:%.2f%% coverage:%.2f%%",
		colorSuccess("pass"), s.Passed,
		colorError("fail"), s.Failed,
		colorWarn("not_tested"), s.NotTested,
		s.PassRate, s.Coverage)
}
