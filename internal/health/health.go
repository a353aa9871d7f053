// Copyright 2024 AgriGenius Project
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package health reports whether the advisory service can serve flows.
package health

import (
	"context"
	"net/http"
	"os"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
	StatusDegraded  = "degraded"

	DefaultTimeout = 5 * time.Second
)

// CheckResult is the outcome of one dependency check.
type CheckResult struct {
	Status    string         `json:"status"`
	Latency   time.Duration  `json:"latency"`
	Error     string         `json:"error,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Response is the body of the health endpoint.
type Response struct {
	Status       string                 `json:"status"`
	Service      string                 `json:"service"`
	Version      string                 `json:"version"`
	Uptime       string                 `json:"uptime"`
	Dependencies map[string]CheckResult `json:"dependencies"`
	Metadata     map[string]any         `json:"metadata"`
	Timestamp    time.Time              `json:"timestamp"`
}

// Checker checks one dependency.
type Checker interface {
	Check(ctx context.Context) CheckResult
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func(ctx context.Context) CheckResult

// Check implements Checker.
func (f CheckerFunc) Check(ctx context.Context) CheckResult {
	return f(ctx)
}

// Manager runs the registered checkers concurrently.
type Manager struct {
	serviceName string
	version     string
	startTime   time.Time
	timeout     time.Duration
	logger      *zap.Logger

	mu       sync.RWMutex
	checkers map[string]Checker
}

// NewManager creates a Manager with the default timeout.
func NewManager(serviceName, version string, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		serviceName: serviceName,
		version:     version,
		startTime:   time.Now(),
		timeout:     DefaultTimeout,
		logger:      logger,
		checkers:    make(map[string]Checker),
	}
}

// SetTimeout bounds a whole Check run.
func (m *Manager) SetTimeout(timeout time.Duration) {
	m.timeout = timeout
}

// AddChecker registers checker under name, replacing any previous one.
func (m *Manager) AddChecker(name string, checker Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers[name] = checker
}

// Names returns the registered checker names in order.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.checkers))
	for name := range m.checkers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Check runs every checker. The overall status is the worst dependency status.
func (m *Manager) Check(ctx context.Context) Response {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	m.mu.RLock()
	checkers := make(map[string]Checker, len(m.checkers))
	for name, c := range m.checkers {
		checkers[name] = c
	}
	m.mu.RUnlock()

	var (
		resultsMu sync.Mutex
		results   = make(map[string]CheckResult, len(checkers))
		g         errgroup.Group
	)
	for name, checker := range checkers {
		g.Go(func() error {
			start := time.Now()
			result := checker.Check(ctx)
			result.Latency = time.Since(start)
			result.Timestamp = time.Now()

			resultsMu.Lock()
			results[name] = result
			resultsMu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	overall := StatusHealthy
	for name, result := range results {
		switch result.Status {
		case StatusUnhealthy:
			overall = StatusUnhealthy
			m.logger.Warn("Health check failed", zap.String("dependency", name), zap.String("error", result.Error))
		case StatusDegraded:
			if overall != StatusUnhealthy {
				overall = StatusDegraded
			}
		}
	}

	return Response{
		Status:       overall,
		Service:      m.serviceName,
		Version:      m.version,
		Uptime:       time.Since(m.startTime).Round(time.Second).String(),
		Dependencies: results,
		Metadata:     systemMetadata(),
		Timestamp:    time.Now(),
	}
}

// Handler serves the health response. Unhealthy maps to 503; degraded stays 200.
func (m *Manager) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		result := m.Check(c.Request.Context())

		status := http.StatusOK
		if result.Status == StatusUnhealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, result)
	}
}

func systemMetadata() map[string]any {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return map[string]any{
		"go_version": runtime.Version(),
		"goroutines": runtime.NumGoroutine(),
		"hostname":   hostname,
	}
}

// ModelChecker reports the configured model backend. It never calls the
// provider, so a health check costs nothing.
func ModelChecker(provider, model string, configured bool) Checker {
	return CheckerFunc(func(context.Context) CheckResult {
		result := CheckResult{
			Status:   StatusHealthy,
			Metadata: map[string]any{"provider": provider, "model": model},
		}
		if !configured {
			result.Status = StatusUnhealthy
			result.Error = "model credentials are not configured"
		}
		return result
	})
}

// PingChecker reports a storage dependency through its ping function.
// Failures degrade the service; flows keep working without their ledger.
func PingChecker(name string, ping func(ctx context.Context) error) Checker {
	return CheckerFunc(func(ctx context.Context) CheckResult {
		if err := ping(ctx); err != nil {
			return CheckResult{
				Status:   StatusDegraded,
				Error:    name + " ping failed: " + err.Error(),
				Metadata: map[string]any{"storage": name},
			}
		}
		return CheckResult{Status: StatusHealthy, Metadata: map[string]any{"storage": name}}
	})
}

// CatalogueChecker reports how many flows are registered; none is unhealthy.
func CatalogueChecker(names func() []string) Checker {
	return CheckerFunc(func(context.Context) CheckResult {
		flows := names()
		if len(flows) == 0 {
			return CheckResult{Status: StatusUnhealthy, Error: "no flows registered"}
		}
		return CheckResult{Status: StatusHealthy, Metadata: map[string]any{"flows": len(flows)}}
	})
}
