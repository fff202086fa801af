package rpc

import (
	"context"
	"log"
	"sync"
	"time"
)

// ServiceStatus is the last recorded probe result for one service.
type ServiceStatus struct {
	Name         string        `json:"name"`
	Healthy      bool          `json:"healthy"`
	LastCheck    time.Time     `json:"lastCheck"`
	ResponseTime time.Duration `json:"responseTime"`
	Err          string        `json:"error,omitempty"`
}

// target is anything the monitor can probe. *Client satisfies it.
type target interface {
	Name() string
	Ping(ctx context.Context) error
}

// HealthMonitor periodically pings downstream services and caches the
// result. It is a fast-path signal only: callers use IsHealthy to refuse
// work proactively, but every real call still goes through the breaker.
type HealthMonitor struct {
	log      *log.Logger
	interval time.Duration
	timeout  time.Duration
	targets  []target

	mu     sync.RWMutex
	status map[string]ServiceStatus

	stop chan struct{}
	done chan struct{}
}

func NewHealthMonitor(logger *log.Logger, interval, timeout time.Duration, clients ...*Client) *HealthMonitor {
	hm := &HealthMonitor{
		log:      logger,
		interval: interval,
		timeout:  timeout,
		status:   make(map[string]ServiceStatus),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, c := range clients {
		hm.targets = append(hm.targets, c)
	}

	return hm
}

// Run probes all targets immediately, then on every interval tick until
// Stop is called. It blocks; callers run it in a goroutine.
func (hm *HealthMonitor) Run() {
	defer close(hm.done)

	hm.probeAll()

	ticker := time.NewTicker(hm.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			hm.probeAll()
		case <-hm.stop:
			return
		}
	}
}

func (hm *HealthMonitor) Stop() {
	close(hm.stop)
	<-hm.done
}

func (hm *HealthMonitor) probeAll() {
	for _, t := range hm.targets {
		hm.probe(t)
	}
}

func (hm *HealthMonitor) probe(t target) {
	ctx, cancel := context.WithTimeout(context.Background(), hm.timeout)
	defer cancel()

	start := time.Now()
	err := t.Ping(ctx)
	elapsed := time.Since(start)

	st := ServiceStatus{
		Name:         t.Name(),
		Healthy:      err == nil,
		LastCheck:    time.Now(),
		ResponseTime: elapsed,
	}
	if err != nil {
		st.Err = err.Error()
		hm.log.Printf("health: %s unhealthy: %v", t.Name(), err)
	}

	hm.mu.Lock()
	hm.status[t.Name()] = st
	hm.mu.Unlock()
}

// IsHealthy reports the cached view of one service. Unknown services are
// reported unhealthy.
func (hm *HealthMonitor) IsHealthy(name string) bool {
	hm.mu.RLock()
	defer hm.mu.RUnlock()

	st, ok := hm.status[name]
	return ok && st.Healthy
}

// Snapshot returns a copy of every service's last status.
func (hm *HealthMonitor) Snapshot() []ServiceStatus {
	hm.mu.RLock()
	defer hm.mu.RUnlock()

	statuses := make([]ServiceStatus, 0, len(hm.status))
	for _, st := range hm.status {
		statuses = append(statuses, st)
	}
	return statuses
}
