package evidence

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/Ullaakut/nmap/v3"
	"go.uber.org/zap"

	"github.com/khanhnv2901/seca-gap/internal/domain/assessment"
	sharedErrors "github.com/khanhnv2901/seca-gap/internal/shared/errors"
)

// Port scan indicator names.
const (
	IndExposedRiskyPort   = "exposed_risky_port"
	IndExposedDatabase    = "exposed_database_port"
	IndExposedRemoteAdmin = "exposed_remote_admin"
	IndNoRiskyPorts       = "no_risky_ports"
)

// DefaultScanPorts are probed when no port list is configured.
var DefaultScanPorts = []string{"21", "22", "23", "25", "110", "143", "445", "1433", "3306", "3389", "5432", "5900", "6379", "8080", "8443", "9200", "27017"}

var (
	databasePorts    = map[uint16]bool{1433: true, 3306: true, 5432: true, 6379: true, 9200: true, 27017: true}
	remoteAdminPorts = map[uint16]bool{23: true, 3389: true, 5900: true}
)

// portRisk grades an exposed port.
func portRisk(port uint16) string {
	switch port {
	case 23, 3389, 5900:
		return "critical"
	case 21, 22, 445, 1433, 3306, 5432, 6379, 9200, 27017:
		return "high"
	case 25, 110, 143, 8080, 8443:
		return "medium"
	case 80, 443:
		return "low"
	}
	return "info"
}

// NmapScanner reports risky exposed services of a target host.
type NmapScanner struct {
	Ports   []string
	Timeout time.Duration
	logger  *zap.Logger
}

// NewNmapScanner creates a scanner over ports (DefaultScanPorts when empty).
func NewNmapScanner(ports []string, timeout time.Duration, logger *zap.Logger) *NmapScanner {
	if len(ports) == 0 {
		ports = DefaultScanPorts
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NmapScanner{Ports: ports, Timeout: timeout, logger: logger}
}

func (n *NmapScanner) Name() string { return "nmap" }

// Collect scans the target host. Document-set targets yield nothing.
func (n *NmapScanner) Collect(ctx context.Context, target assessment.Target) ([]assessment.Evidence, error) {
	if !target.IsRemote() {
		return nil, nil
	}
	u, err := url.Parse(target.ID())
	if err != nil || u.Hostname() == "" {
		return nil, fmt.Errorf("%w: cannot derive host from %s", sharedErrors.ErrInvalidTarget, target.ID())
	}
	host := u.Hostname()

	scanCtx, cancel := context.WithTimeout(ctx, n.Timeout)
	defer cancel()

	scanner, err := nmap.NewScanner(scanCtx,
		nmap.WithTargets(host),
		nmap.WithPorts(strings.Join(n.Ports, ",")),
		nmap.WithOpenOnly(),
		nmap.WithSkipHostDiscovery(),
		nmap.WithServiceInfo(),
		nmap.WithVersionLight(),
		nmap.WithTimingTemplate(nmap.TimingPolite),
	)
	if err != nil {
		if errors.Is(err, nmap.ErrNmapNotInstalled) {
			return nil, fmt.Errorf("%w: %v", sharedErrors.ErrToolUnavailable, err)
		}
		return nil, fmt.Errorf("%w: create nmap scanner: %v", sharedErrors.ErrToolUnavailable, err)
	}

	n.logger.Debug("running nmap", zap.String("host", host), zap.Strings("ports", n.Ports))
	result, warnings, err := scanner.Run()
	if err != nil {
		if errors.Is(scanCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: nmap exceeded %s", sharedErrors.ErrTimeout, n.Timeout)
		}
		return nil, fmt.Errorf("%w: run nmap: %v", sharedErrors.ErrToolUnavailable, err)
	}
	if warnings != nil && len(*warnings) > 0 {
		n.logger.Warn("nmap produced warnings", zap.Strings("warnings", *warnings))
	}
	return evidenceFromScan(host, result), nil
}

// evidenceFromScan converts open ports into evidence.
func evidenceFromScan(host string, result *nmap.Run) []assessment.Evidence {
	source := "nmap:" + host
	if result == nil {
		return nil
	}
	var (
		out   []assessment.Evidence
		risky []string
	)
	for _, h := range result.Hosts {
		ports := append([]nmap.Port(nil), h.Ports...)
		sort.Slice(ports, func(i, j int) bool { return ports[i].ID < ports[j].ID })
		for _, p := range ports {
			if !strings.HasPrefix(strings.ToLower(p.State.State), "open") {
				continue
			}
			risk := portRisk(p.ID)
			if risk != "critical" && risk != "high" {
				continue
			}
			desc := fmt.Sprintf("%d/%s %s (%s)", p.ID, p.Protocol, p.Service.Name, risk)
			risky = append(risky, desc)
			switch {
			case databasePorts[p.ID]:
				out = append(out, assessment.Evidence{
					Source: source, SourceKind: assessment.SourceTool,
					Indicator: assessment.Strong(IndExposedDatabase, assessment.Positive, desc),
				})
			case remoteAdminPorts[p.ID]:
				out = append(out, assessment.Evidence{
					Source: source, SourceKind: assessment.SourceTool,
					Indicator: assessment.Strong(IndExposedRemoteAdmin, assessment.Positive, desc),
				})
			}
		}
	}
	if len(risky) > 0 {
		out = append(out, assessment.Evidence{
			Source: source, SourceKind: assessment.SourceTool,
			Indicator: assessment.Strong(IndExposedRiskyPort, assessment.Positive, strings.Join(risky, ", ")),
		})
		return out
	}
	return []assessment.Evidence{{
		Source: source, SourceKind: assessment.SourceTool,
		Indicator: assessment.Weak(IndNoRiskyPorts, assessment.Exculpatory, "no high-risk services open"),
	}}
}
