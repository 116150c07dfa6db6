package health

import (
	"context"
	"errors"
	"testing"
)

// --- Mocks ---

type mockDBPinger struct {
	err error
}

func (m *mockDBPinger) Ping(_ context.Context) error { return m.err }

type mockProvider struct {
	err error
}

func (m *mockProvider) HealthCheck(_ context.Context) error { return m.err }

// --- Tests ---

func TestCheck(t *testing.T) {
	down := errors.New("down")

	tests := []struct {
		name      string
		db        error
		embedding ProviderChecker
		llm       ProviderChecker
		status    Status
		checks    map[string]CheckResult
	}{
		{
			name:      "all healthy",
			embedding: &mockProvider{},
			llm:       &mockProvider{},
			status:    Healthy,
			checks:    map[string]CheckResult{"database": CheckOK, "embedding": CheckOK, "llm": CheckOK},
		},
		{
			name:      "embedding down",
			embedding: &mockProvider{err: down},
			status:    Degraded,
			checks:    map[string]CheckResult{"database": CheckOK, "embedding": CheckError},
		},
		{
			name:   "llm down",
			llm:    &mockProvider{err: down},
			status: Degraded,
			checks: map[string]CheckResult{"database": CheckOK, "llm": CheckError},
		},
		{
			name:      "database down",
			db:        down,
			embedding: &mockProvider{},
			status:    Unhealthy,
			checks:    map[string]CheckResult{"database": CheckError, "embedding": CheckOK},
		},
		{
			name:      "everything down",
			db:        down,
			embedding: &mockProvider{err: down},
			llm:       &mockProvider{err: down},
			status:    Unhealthy,
			checks:    map[string]CheckResult{"database": CheckError, "embedding": CheckError, "llm": CheckError},
		},
		{
			name:   "database only",
			status: Healthy,
			checks: map[string]CheckResult{"database": CheckOK},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc := New(&mockDBPinger{err: tc.db}, tc.embedding, tc.llm)
			r := svc.Check(context.Background())

			if r.Status != tc.status {
				t.Errorf("status = %q, want %q", r.Status, tc.status)
			}
			if len(r.Checks) != len(tc.checks) {
				t.Fatalf("checks = %v, want %v", r.Checks, tc.checks)
			}
			for name, want := range tc.checks {
				if r.Checks[name] != want {
					t.Errorf("%s = %q, want %q", name, r.Checks[name], want)
				}
			}
		})
	}
}
