package health

import "context"

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates an optional provider is failing; search and aggregation
	// fall back to slower paths.
	Degraded Status = "degraded"
	// Unhealthy indicates the database is unreachable.
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

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// Service coordinates health checks.
type Service struct {
	db        DBPinger
	embedding ProviderChecker
	llm       ProviderChecker
}

// New creates a Service. embedding and llm can be nil.
func New(db DBPinger, embedding, llm ProviderChecker) *Service {
	return &Service{db: db, embedding: embedding, llm: llm}
}

// Check runs health checks against all components.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)
	status := Healthy

	if err := s.db.Ping(ctx); err != nil {
		checks["database"] = CheckError
		status = Unhealthy
	} else {
		checks["database"] = CheckOK
	}

	for name, p := range map[string]ProviderChecker{"embedding": s.embedding, "llm": s.llm} {
		if p == nil {
			continue
		}
		if err := p.HealthCheck(ctx); err != nil {
			checks[name] = CheckError
			if status == Healthy {
				status = Degraded
			}
		} else {
			checks[name] = CheckOK
		}
	}

	return Report{Status: status, Checks: checks}
}
