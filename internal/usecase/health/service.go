package health

import (
	"context"
	"time"
)

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates an optional component failed.
	Degraded Status = "degraded"
	// Unhealthy indicates the upstream is unreachable.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

const (
	checkUpstream     = "upstream"
	checkSessionStore = "session_store"

	defaultCheckTimeout = 2 * time.Second
)

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// Ready reports whether the gateway can serve searches.
func (r Report) Ready() bool { return r.Status != Unhealthy }

// Service coordinates health checks.
type Service struct {
	upstream Pinger
	store    Pinger
	timeout  time.Duration
}

// New creates a Service. store can be nil when no session store is configured.
func New(upstream, store Pinger) *Service {
	return &Service{upstream: upstream, store: store, timeout: defaultCheckTimeout}
}

// Check runs health checks against all components.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)
	checks[checkUpstream] = s.ping(ctx, s.upstream)
	if s.store != nil {
		checks[checkSessionStore] = s.ping(ctx, s.store)
	}

	status := Healthy
	switch {
	case checks[checkUpstream] == CheckError:
		status = Unhealthy
	case checks[checkSessionStore] == CheckError:
		status = Degraded
	}

	return Report{Status: status, Checks: checks}
}

func (s *Service) ping(ctx context.Context, p Pinger) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := p.Ping(ctx); err != nil {
		return CheckError
	}
	return CheckOK
}
