package health

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"cockpit/fusion/internal/profile"
)

type CheckResult struct {
	Name    string        `json:"name"`
	OK      bool          `json:"ok"`
	Latency time.Duration `json:"latency_ms"`
	Error   string        `json:"error,omitempty"`
}

type HealthStatus struct {
	OK        bool          `json:"ok"`
	Checks    []CheckResult `json:"checks"`
	CheckedAt time.Time     `json:"checked_at"`
}

func (h HealthStatus) String() string {
	status := "OK"
	if !h.OK {
		status = "FAIL"
	}
	s := fmt.Sprintf("Health: %s\n", status)
	for _, c := range h.Checks {
		mark := "✓"
		if !c.OK {
			mark = "✗"
		}
		s += fmt.Sprintf("  %s %s (%dms)", mark, c.Name, c.Latency.Milliseconds())
		if c.Error != "" {
			s += fmt.Sprintf(" - %s", c.Error)
		}
		s += "\n"
	}
	return s
}

// Deps are the components readiness depends on. Nil fields are skipped.
type Deps struct {
	Profiles *profile.Store
	Engine   interface{ Running() bool }
	// LogPath is the interaction log file; its directory must exist.
	LogPath string
}

// CheckAll runs all health checks and returns combined status
func CheckAll(ctx context.Context, d Deps) HealthStatus {
	var checks []CheckResult
	if d.Profiles != nil {
		checks = append(checks, checkProfiles(d.Profiles))
	}
	if d.Engine != nil {
		checks = append(checks, checkEngine(d.Engine))
	}
	if d.LogPath != "" {
		checks = append(checks, checkLogSink(d.LogPath))
	}
	if err := ctx.Err(); err != nil {
		checks = append(checks, CheckResult{Name: "context", Error: err.Error()})
	}

	allOK := true
	for _, c := range checks {
		if !c.OK {
			allOK = false
		}
	}

	return HealthStatus{
		OK:        allOK,
		Checks:    checks,
		CheckedAt: time.Now().UTC(),
	}
}

func checkProfiles(s *profile.Store) CheckResult {
	start := time.Now()
	result := CheckResult{Name: "profiles"}
	if _, ok := s.User(profile.DefaultUserID); !ok {
		result.Error = "default user missing from snapshot"
		result.Latency = time.Since(start)
		return result
	}
	if p := s.Path(); p != "" {
		if _, err := os.Stat(p); err != nil {
			result.Error = fmt.Sprintf("profile file: %v", err)
			result.Latency = time.Since(start)
			return result
		}
	}
	result.OK = true
	result.Latency = time.Since(start)
	return result
}

func checkEngine(e interface{ Running() bool }) CheckResult {
	start := time.Now()
	result := CheckResult{Name: "engine"}
	if !e.Running() {
		result.Error = "fusion loop not running"
	} else {
		result.OK = true
	}
	result.Latency = time.Since(start)
	return result
}

func checkLogSink(path string) CheckResult {
	start := time.Now()
	result := CheckResult{Name: "interaction_log"}
	st, err := os.Stat(filepath.Dir(path))
	switch {
	case err != nil:
		result.Error = fmt.Sprintf("log dir: %v", err)
	case !st.IsDir():
		result.Error = "log dir is not a directory"
	default:
		result.OK = true
	}
	result.Latency = time.Since(start)
	return result
}
