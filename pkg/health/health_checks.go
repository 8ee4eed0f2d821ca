package health

import (
	"fmt"
	"time"

	"github.com/dd0wney/cluso-kvclient/pkg/cluster"
	"github.com/dd0wney/cluso-kvclient/pkg/pool"
)

// SimpleCheck returns an always-healthy result, for probes whose only
// job is proving the process answers
func SimpleCheck(name string) Check {
	return Check{Name: name, Status: StatusHealthy, CheckedAt: time.Now()}
}

// TopologyCheck probes topology freshness. A missing snapshot is
// unhealthy; one older than staleAfter is degraded. Zero staleAfter
// disables the age test, which is what readiness wants: once a
// topology exists, the client can route.
func TopologyCheck(cached func() *cluster.Snapshot, staleAfter time.Duration) CheckFunc {
	return func() Check {
		snap := cached()
		if snap == nil {
			return Check{
				Name:    "topology",
				Status:  StatusUnhealthy,
				Message: "No topology discovered yet",
			}
		}

		age := snap.Age()
		result := Check{
			Name:    "topology",
			Status:  StatusHealthy,
			Message: "Topology fresh",
			Details: Details{
				"version": snap.Version,
				"age_ms":  age.Milliseconds(),
				"nodes":   snap.Topology.Size(),
				"masters": snap.Topology.MasterCount(),
				"source":  snap.Source.String(),
			},
		}
		if staleAfter > 0 && age > staleAfter {
			result.Status = StatusDegraded
			result.Message = fmt.Sprintf("Topology snapshot is %s old", age.Round(time.Millisecond))
		}
		return result
	}
}

// CoverageCheck probes slot coverage. Unserved slots degrade the
// client: keys hashing into a gap cannot be routed.
func CoverageCheck(topology func() *cluster.Topology) CheckFunc {
	return func() Check {
		topo := topology()
		if topo == nil {
			return Check{
				Name:    "slot_coverage",
				Status:  StatusUnhealthy,
				Message: "No topology discovered yet",
			}
		}

		coverage := topo.Coverage()
		result := Check{
			Name:    "slot_coverage",
			Status:  StatusHealthy,
			Message: "All slots served",
			Details: Details{
				"served": coverage.Served,
				"total":  cluster.SlotCount,
				"gaps":   len(coverage.Gaps),
			},
		}
		if !coverage.Full() {
			result.Status = StatusDegraded
			result.Message = fmt.Sprintf("%d of %d slots unserved",
				cluster.SlotCount-coverage.Served, cluster.SlotCount)
		}
		return result
	}
}

// ReachabilityCheck probes node reachability. The probe typically fans
// a ping out across the cluster.
func ReachabilityCheck(probe func() (reachable, total int)) CheckFunc {
	return func() Check {
		reachable, total := probe()
		result := Check{
			Name:    "reachability",
			Details: Details{"reachable": reachable, "total": total},
		}

		switch {
		case total == 0:
			result.Status = StatusUnhealthy
			result.Message = "No nodes known"
		case reachable == 0:
			result.Status = StatusUnhealthy
			result.Message = "No nodes reachable"
		case reachable < total:
			result.Status = StatusDegraded
			result.Message = fmt.Sprintf("%d of %d nodes reachable", reachable, total)
		default:
			result.Status = StatusHealthy
			result.Message = "All nodes reachable"
		}
		return result
	}
}

// PoolCheck probes connection pool saturation. A pool running at its
// per-node cap is degraded: callers are about to queue on borrows.
func PoolCheck(stats func() []pool.Stats, maxPerNode int) CheckFunc {
	return func() Check {
		all := stats()
		if len(all) == 0 {
			return Check{
				Name:    "connection_pools",
				Status:  StatusHealthy,
				Message: "No pools open",
			}
		}

		var active, idle, saturated int
		for _, s := range all {
			active += s.Active
			idle += s.Idle
			if maxPerNode > 0 && s.Active >= maxPerNode {
				saturated++
			}
		}

		result := Check{
			Name:    "connection_pools",
			Status:  StatusHealthy,
			Message: "Pools within capacity",
			Details: Details{
				"pools":     len(all),
				"active":    active,
				"idle":      idle,
				"saturated": saturated,
			},
		}
		if saturated > 0 {
			result.Status = StatusDegraded
			result.Message = fmt.Sprintf("%d pools at capacity", saturated)
		}
		return result
	}
}

// MemoryCheck probes process memory, degrading when allocations press
// against what the runtime has from the OS
func MemoryCheck(getUsage func() (alloc, sys uint64)) CheckFunc {
	return func() Check {
		alloc, sys := getUsage()
		result := Check{
			Name:    "memory",
			Status:  StatusHealthy,
			Message: "Memory usage normal",
			Details: Details{"alloc_bytes": alloc, "sys_bytes": sys},
		}
		if sys > 0 && float64(alloc) > 0.9*float64(sys) {
			result.Status = StatusDegraded
			result.Message = "High memory usage"
		}
		return result
	}
}
