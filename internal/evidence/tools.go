package evidence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/khanhnv2901/seca-gap/internal/domain/assessment"
	"github.com/khanhnv2901/seca-gap/internal/shared/constants"
	sharedErrors "github.com/khanhnv2901/seca-gap/internal/shared/errors"
)

// ToolConfig describes an external scanner invoked as a subprocess. The
// target id is appended as the last argument.
type ToolConfig struct {
	Name           string            `mapstructure:"name" yaml:"name" json:"name"`
	Command        string            `mapstructure:"command" yaml:"command" json:"command"`
	Args           []string          `mapstructure:"args" yaml:"args" json:"args"`
	Env            map[string]string `mapstructure:"env" yaml:"env" json:"env"`
	TimeoutSeconds int               `mapstructure:"timeout_seconds" yaml:"timeout_seconds" json:"timeout_seconds"`
}

// ToolRunner runs one external tool. Its stdout must be a JSON document
// of the form {"findings":[{"control","indicator","strength","polarity","detail"}]}.
type ToolRunner struct {
	name    string
	command string
	args    []string
	env     map[string]string
	timeout time.Duration
	// maxOutput caps stdout; a tool writing more is killed.
	maxOutput int64
}

// NewToolRunner creates a runner from cfg.
func NewToolRunner(cfg ToolConfig) *ToolRunner {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	name := cfg.Name
	if name == "" {
		name = cfg.Command
	}
	return &ToolRunner{
		name:    name,
		command: cfg.Command,
		args:    cfg.Args,
		env:     cfg.Env,
		timeout: timeout,

		maxOutput: constants.MaxToolOutputBytes,
	}
}

func (t *ToolRunner) Name() string { return "tool:" + t.name }

type toolOutput struct {
	Findings []toolFinding `json:"findings"`
}

type toolFinding struct {
	Control   string `json:"control"`
	Indicator string `json:"indicator"`
	Strength  string `json:"strength"`
	Polarity  string `json:"polarity"`
	Detail    string `json:"detail"`
}

// Collect runs the tool. A missing binary, a non-zero exit or a timeout is
// ToolUnavailable; malformed or oversized output is ParseError.
func (t *ToolRunner) Collect(ctx context.Context, target assessment.Target) ([]assessment.Evidence, error) {
	if t.command == "" {
		return nil, fmt.Errorf("%w: %s: command is empty", sharedErrors.ErrToolUnavailable, t.name)
	}
	if _, err := exec.LookPath(t.command); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", sharedErrors.ErrToolUnavailable, t.name, err)
	}

	runCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	args := append([]string{}, t.args...)
	args = append(args, target.ID())

	cmd := exec.CommandContext(runCtx, t.command, args...)
	cmd.Env = os.Environ()
	for k, v := range t.env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}

	stderr := &cappedBuffer{limit: constants.MaxToolStderrBytes}
	cmd.Stderr = stderr
	cmd.WaitDelay = time.Second
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", sharedErrors.ErrToolUnavailable, t.name, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", sharedErrors.ErrToolUnavailable, t.name, err)
	}
	output, readErr := io.ReadAll(io.LimitReader(stdout, t.maxOutput+1))
	overflow := int64(len(output)) > t.maxOutput
	if overflow {
		cancel()
	}
	err = cmd.Wait()
	if overflow {
		return nil, fmt.Errorf("%w: %s: output exceeds %d bytes", sharedErrors.ErrParse, t.name, t.maxOutput)
	}
	if err == nil {
		err = readErr
	}
	if err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s exceeded %s", sharedErrors.ErrTimeout, t.name, t.timeout)
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		msg := err.Error()
		if s := strings.TrimSpace(stderr.String()); s != "" {
			msg = s
		}
		return nil, fmt.Errorf("%w: %s: %s", sharedErrors.ErrToolUnavailable, t.name, msg)
	}
	return parseToolOutput(t.Name(), output)
}

func parseToolOutput(source string, data []byte) ([]assessment.Evidence, error) {
	var out toolOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("%w: %s: invalid output: %v", sharedErrors.ErrParse, source, err)
	}
	evidence := make([]assessment.Evidence, 0, len(out.Findings))
	for i, f := range out.Findings {
		if f.Indicator == "" {
			return nil, fmt.Errorf("%w: %s: finding %d has no indicator", sharedErrors.ErrParse, source, i)
		}
		strength := assessment.Strength(strings.ToLower(f.Strength))
		if strength != assessment.StrengthStrong && strength != assessment.StrengthWeak {
			return nil, fmt.Errorf("%w: %s: finding %d has strength %q", sharedErrors.ErrParse, source, i, f.Strength)
		}
		polarity := assessment.Polarity(strings.ToLower(f.Polarity))
		if polarity != assessment.Positive && polarity != assessment.Exculpatory {
			return nil, fmt.Errorf("%w: %s: finding %d has polarity %q", sharedErrors.ErrParse, source, i, f.Polarity)
		}
		evidence = append(evidence, assessment.Evidence{
			Source:     source,
			SourceKind: assessment.SourceTool,
			Control:    f.Control,
			Indicator: assessment.Indicator{
				Name:     f.Indicator,
				Strength: strength,
				Polarity: polarity,
				Detail:   f.Detail,
			},
			Excerpt: excerpt(f.Detail),
		})
	}
	return evidence, nil
}

// cappedBuffer keeps the first limit bytes written and drops the rest.
type cappedBuffer struct {
	buf   []byte
	limit int
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	if room := b.limit - len(b.buf); room > 0 {
		if len(p) < room {
			room = len(p)
		}
		b.buf = append(b.buf, p[:room]...)
	}
	return len(p), nil
}

func (b *cappedBuffer) String() string { return string(b.buf) }
