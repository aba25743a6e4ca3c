// Copyright 2026 The Authrim Authors
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

// Package health collects components that can self-check. The registry is
// populated once at the composition root before the listener starts and is
// never mutated afterwards.
package health

import (
	"context"
	"sync"
	"time"
)

// Checkable is implemented by components that can report their own health.
type Checkable interface {
	// Name identifies the component in the health report.
	Name() string

	// HealthCheck returns nil when the component is operational.
	HealthCheck(ctx context.Context) error
}

// Status of a single component.
type Status struct {
	Name      string `json:"name"`
	Healthy   bool   `json:"healthy"`
	Error     string `json:"error,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

// Report aggregates component statuses.
type Report struct {
	Healthy    bool     `json:"healthy"`
	Components []Status `json:"components"`
}

// Registry holds the health-checkable components.
type Registry struct {
	mu         sync.RWMutex
	components []Checkable
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a component. Call only during composition, before serving.
func (r *Registry) Register(c Checkable) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.components = append(r.components, c)
}

// Check runs every registered component check and aggregates the result.
// A failing component never aborts the remaining checks.
func (r *Registry) Check(ctx context.Context) Report {
	r.mu.RLock()
	components := r.components
	r.mu.RUnlock()

	report := Report{Healthy: true}
	for _, c := range components {
		start := time.Now()
		err := c.HealthCheck(ctx)
		status := Status{
			Name:      c.Name(),
			Healthy:   err == nil,
			LatencyMS: time.Since(start).Milliseconds(),
		}
		if err != nil {
			status.Error = err.Error()
			report.Healthy = false
		}
		report.Components = append(report.Components, status)
	}
	return report
}

// CheckFunc adapts a function to the Checkable interface.
type CheckFunc struct {
	ComponentName string
	Fn            func(ctx context.Context) error
}

func (c CheckFunc) Name() string { return c.ComponentName }

func (c CheckFunc) HealthCheck(ctx context.Context) error { return c.Fn(ctx) }
