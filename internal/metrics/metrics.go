// Package metrics collects and exposes pi-exthost runtime observability
// data.
//
// # Design rationale
//
// Two metric stores coexist in this package:
//
//  1. The in-process Metrics struct (atomic counters) for the lightweight
//     JSON /metrics endpoint.
//  2. A Prometheus registry (prometheus.go) for scraping by external
//     monitoring systems.
//
// # Concurrency
//
// Every Record* method is called from the manager/runtime hot path and uses
// atomic increments exclusively; per-extension/per-event breakdowns live in
// a sync.Map, which is read-heavy and write-once-per-new-key — the ideal
// use case for sync.Map.
package metrics

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics collects pi-exthost runtime counters: hostcalls by
// operation/result, events dispatched by name, VFS operations by kind, and
// session-store appends/bytes.
type Metrics struct {
	HostcallsTotal    atomic.Int64
	HostcallsFailed   atomic.Int64
	EventsDispatched  atomic.Int64
	VFSOpsTotal       atomic.Int64
	SessionAppends    atomic.Int64
	SessionAppendBytes atomic.Int64

	DispatchLatencyTotalMs atomic.Int64
	DispatchLatencyMinMs   atomic.Int64
	DispatchLatencyMaxMs   atomic.Int64

	hostcallsByOp sync.Map // operation name -> *OpCounters
	eventsByName  sync.Map // event name -> *atomic.Int64
	vfsByKind     sync.Map // op kind ("read"/"write"/"stat"/...) -> *atomic.Int64

	startTime time.Time
}

// OpCounters tracks per-hostcall-operation success/failure counts.
type OpCounters struct {
	Total  atomic.Int64
	Failed atomic.Int64
}

var global = &Metrics{startTime: time.Now()}

func init() {
	global.DispatchLatencyMinMs.Store(int64(^uint64(0) >> 1))
}

// Global returns the global metrics instance.
func Global() *Metrics { return global }

// StartTime returns when the metrics system was initialized.
func StartTime() time.Time { return global.startTime }

// RecordHostcall records a hostcall operation's result.
func (m *Metrics) RecordHostcall(operation string, failed bool) {
	m.HostcallsTotal.Add(1)
	if failed {
		m.HostcallsFailed.Add(1)
	}

	oc := m.opCounters(operation)
	oc.Total.Add(1)
	if failed {
		oc.Failed.Add(1)
	}

	RecordPrometheusHostcall(operation, failed)
}

// RecordEventDispatch records one event dispatch, tracked by event name and
// contributing to the dispatch-latency histogram.
func (m *Metrics) RecordEventDispatch(eventName string, latencyMs int64) {
	m.EventsDispatched.Add(1)
	m.DispatchLatencyTotalMs.Add(latencyMs)
	updateMin(&m.DispatchLatencyMinMs, latencyMs)
	updateMax(&m.DispatchLatencyMaxMs, latencyMs)

	counter := m.eventCounter(eventName)
	counter.Add(1)

	RecordPrometheusEventDispatch(eventName, latencyMs)
}

// RecordVFSOp records one VFS operation by kind (e.g. "read", "write",
// "stat", "mkdir").
func (m *Metrics) RecordVFSOp(kind string) {
	m.VFSOpsTotal.Add(1)
	counter := m.vfsCounter(kind)
	counter.Add(1)
	RecordPrometheusVFSOp(kind)
}

// RecordSessionAppend records one session-store append and its payload size
// in bytes.
func (m *Metrics) RecordSessionAppend(bytes int) {
	m.SessionAppends.Add(1)
	m.SessionAppendBytes.Add(int64(bytes))
	RecordPrometheusSessionAppend(bytes)
}

func (m *Metrics) opCounters(operation string) *OpCounters {
	if v, ok := m.hostcallsByOp.Load(operation); ok {
		return v.(*OpCounters)
	}
	oc := &OpCounters{}
	actual, _ := m.hostcallsByOp.LoadOrStore(operation, oc)
	return actual.(*OpCounters)
}

func (m *Metrics) eventCounter(name string) *atomic.Int64 {
	if v, ok := m.eventsByName.Load(name); ok {
		return v.(*atomic.Int64)
	}
	c := &atomic.Int64{}
	actual, _ := m.eventsByName.LoadOrStore(name, c)
	return actual.(*atomic.Int64)
}

func (m *Metrics) vfsCounter(kind string) *atomic.Int64 {
	if v, ok := m.vfsByKind.Load(kind); ok {
		return v.(*atomic.Int64)
	}
	c := &atomic.Int64{}
	actual, _ := m.vfsByKind.LoadOrStore(kind, c)
	return actual.(*atomic.Int64)
}

// Snapshot returns a point-in-time view of all metrics for the JSON
// endpoint.
func (m *Metrics) Snapshot() map[string]interface{} {
	avgLatency := float64(0)
	if events := m.EventsDispatched.Load(); events > 0 {
		avgLatency = float64(m.DispatchLatencyTotalMs.Load()) / float64(events)
	}
	minLatency := m.DispatchLatencyMinMs.Load()
	if minLatency == int64(^uint64(0)>>1) {
		minLatency = 0
	}

	return map[string]interface{}{
		"uptime_seconds": int64(time.Since(m.startTime).Seconds()),
		"hostcalls": map[string]interface{}{
			"total":     m.HostcallsTotal.Load(),
			"failed":    m.HostcallsFailed.Load(),
			"by_op":     m.hostcallsByOpSnapshot(),
		},
		"events": map[string]interface{}{
			"dispatched": m.EventsDispatched.Load(),
			"by_name":    m.counterMapSnapshot(&m.eventsByName),
			"latency_ms": map[string]interface{}{
				"avg": avgLatency,
				"min": minLatency,
				"max": m.DispatchLatencyMaxMs.Load(),
			},
		},
		"vfs": map[string]interface{}{
			"total":  m.VFSOpsTotal.Load(),
			"by_kind": m.counterMapSnapshot(&m.vfsByKind),
		},
		"session_store": map[string]interface{}{
			"appends": m.SessionAppends.Load(),
			"bytes":   m.SessionAppendBytes.Load(),
		},
	}
}

func (m *Metrics) hostcallsByOpSnapshot() map[string]interface{} {
	result := make(map[string]interface{})
	m.hostcallsByOp.Range(func(key, value interface{}) bool {
		oc := value.(*OpCounters)
		result[key.(string)] = map[string]interface{}{
			"total":  oc.Total.Load(),
			"failed": oc.Failed.Load(),
		}
		return true
	})
	return result
}

func (m *Metrics) counterMapSnapshot(sm *sync.Map) map[string]int64 {
	result := make(map[string]int64)
	sm.Range(func(key, value interface{}) bool {
		result[key.(string)] = value.(*atomic.Int64).Load()
		return true
	})
	return result
}

// JSONHandler returns an HTTP handler exposing metrics in JSON format.
func (m *Metrics) JSONHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(m.Snapshot())
	})
}

func updateMin(target *atomic.Int64, value int64) {
	for {
		old := target.Load()
		if value >= old {
			return
		}
		if target.CompareAndSwap(old, value) {
			return
		}
	}
}

func updateMax(target *atomic.Int64, value int64) {
	for {
		old := target.Load()
		if value <= old {
			return
		}
		if target.CompareAndSwap(old, value) {
			return
		}
	}
}
