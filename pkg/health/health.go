// Package health grades the client's fitness from the pieces that can
// degrade independently: topology freshness, slot coverage, node
// reachability, pool saturation. A degraded client still serves; the
// grades exist so an operator sees trouble before callers do.
package health

import (
	"time"
)

// NewHealthChecker creates an empty checker. With no probes registered
// every evaluation reports healthy.
func NewHealthChecker() *HealthChecker {
	return &HealthChecker{started: time.Now()}
}

func (hc *HealthChecker) register(cl class, name string, run CheckFunc) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	for i := range hc.probes[cl] {
		if hc.probes[cl][i].name == name {
			hc.probes[cl][i].run = run
			return
		}
	}
	hc.probes[cl] = append(hc.probes[cl], probe{name: name, run: run})
}

// RegisterCheck adds or replaces a probe in the health set
func (hc *HealthChecker) RegisterCheck(name string, check CheckFunc) {
	hc.register(classHealth, name, check)
}

// RegisterReadinessCheck adds or replaces a probe in the readiness set
func (hc *HealthChecker) RegisterReadinessCheck(name string, check CheckFunc) {
	hc.register(classReady, name, check)
}

// RegisterLivenessCheck adds or replaces a probe in the liveness set
func (hc *HealthChecker) RegisterLivenessCheck(name string, check CheckFunc) {
	hc.register(classLive, name, check)
}

func (hc *HealthChecker) snapshot(cl class) []probe {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	out := make([]probe, len(hc.probes[cl]))
	copy(out, hc.probes[cl])
	return out
}

func (hc *HealthChecker) evaluate(cl class) Response {
	resp := Response{
		Status:    StatusHealthy,
		Timestamp: time.Now(),
		Checks:    make(map[string]Check),
		UptimeSec: time.Since(hc.started).Seconds(),
	}

	for _, p := range hc.snapshot(cl) {
		began := time.Now()
		check := p.run()
		check.Name = p.name
		check.CheckedAt = began
		check.DurationMS = float64(time.Since(began)) / float64(time.Millisecond)

		resp.Checks[p.name] = check
		resp.Status = worse(resp.Status, check.Status)
	}
	return resp
}

// Check evaluates the health probe set
func (hc *HealthChecker) Check() Response {
	return hc.evaluate(classHealth)
}

// CheckReadiness evaluates the readiness probe set
func (hc *HealthChecker) CheckReadiness() Response {
	return hc.evaluate(classReady)
}

// CheckLiveness evaluates the liveness probe set
func (hc *HealthChecker) CheckLiveness() Response {
	return hc.evaluate(classLive)
}
