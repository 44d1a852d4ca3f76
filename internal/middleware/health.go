package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"
)

// HealthChecker defines interface for health checking
type HealthChecker interface {
	Check(ctx context.Context) error
}

// Pinger is anything with a Ping, the repositories and file stores all are
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingChecker checks a dependency through its Ping
type PingChecker struct {
	Target  Pinger
	Timeout time.Duration
}

func (p PingChecker) Check(ctx context.Context) error {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return p.Target.Ping(ctx)
}

// HealthStatus represents the health status
type HealthStatus struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckStatus `json:"checks"`
}

// CheckStatus represents individual check status
type CheckStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HealthHandler runs every checker and answers 503 when any fails
func HealthHandler(checkers map[string]HealthChecker) http.HandlerFunc {
	names := make([]string, 0, len(checkers))
	for name := range checkers {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := HealthStatus{
			Status:    "healthy",
			Timestamp: time.Now().UTC(),
			Checks:    make(map[string]CheckStatus, len(checkers)),
		}
		for _, name := range names {
			if err := checkers[name].Check(ctx); err != nil {
				health.Status = "unhealthy"
				health.Checks[name] = CheckStatus{Status: "unhealthy", Message: err.Error()}
				continue
			}
			health.Checks[name] = CheckStatus{Status: "healthy"}
		}

		statusCode := http.StatusOK
		if health.Status == "unhealthy" {
			statusCode = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)
		_ = json.NewEncoder(w).Encode(health)
	}
}

// LivenessHandler creates a liveness check handler (simplest check)
func LivenessHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
