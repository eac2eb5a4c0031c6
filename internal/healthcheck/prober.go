package healthcheck

import (
	"context"
	"log"
	"sync"
	"time"
)

// ProbeFunc pings one dependency (redis, postgres).
type ProbeFunc func(ctx context.Context) error

type Status struct {
	Name       string    `json:"name"`
	Healthy    bool      `json:"healthy"`
	LastCheck  time.Time `json:"last_check"`
	LastError  string    `json:"last_error,omitempty"`
	FailCount  int       `json:"fail_count"`
	TotalFails int64     `json:"total_fails"`
}

// Prober periodically pings the service's dependencies and caches the
// results, so /health answers from memory instead of blocking on a dead
// store.
type Prober struct {
	mu       sync.RWMutex
	probes   map[string]ProbeFunc
	statuses map[string]*Status

	interval    time.Duration
	timeout     time.Duration
	maxFailures int
	stopChan    chan struct{}
	running     bool
}

type Config struct {
	Interval    time.Duration // How often to check (default: 10s)
	Timeout     time.Duration // Probe timeout (default: 5s)
	MaxFailures int           // Consecutive failures before unhealthy (default: 3)
}

func NewProber(cfg Config) *Prober {
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}

	return &Prober{
		probes:      make(map[string]ProbeFunc),
		statuses:    make(map[string]*Status),
		interval:    cfg.Interval,
		timeout:     cfg.Timeout,
		maxFailures: cfg.MaxFailures,
		stopChan:    make(chan struct{}),
	}
}

// Register adds a named dependency. Call before Start.
func (p *Prober) Register(name string, probe ProbeFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.probes[name] = probe
	p.statuses[name] = &Status{
		Name:      name,
		Healthy:   true, // Assume healthy initially
		LastCheck: time.Now(),
	}
}

// Begins periodic probing
func (p *Prober) Start() {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.mu.Unlock()

	log.Printf("Starting health probes for %d dependencies (interval: %v)", len(p.probes), p.interval)

	p.checkAll()

	go func() {
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				p.checkAll()
			case <-p.stopChan:
				return
			}
		}
	}()
}

func (p *Prober) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		close(p.stopChan)
		p.running = false
	}
}

func (p *Prober) checkAll() {
	p.mu.RLock()
	names := make([]string, 0, len(p.probes))
	for name := range p.probes {
		names = append(names, name)
	}
	p.mu.RUnlock()

	var wg sync.WaitGroup
	for _, name := range names {
		wg.Add(1)
		go func(n string) {
			defer wg.Done()
			p.check(n)
		}(name)
	}
	wg.Wait()
}

func (p *Prober) check(name string) {
	p.mu.RLock()
	probe := p.probes[name]
	p.mu.RUnlock()

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	err := probe(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()

	status := p.statuses[name]
	status.LastCheck = time.Now()

	if err != nil {
		status.FailCount++
		status.TotalFails++
		status.LastError = err.Error()

		if status.FailCount >= p.maxFailures && status.Healthy {
			status.Healthy = false
			log.Printf("Dependency %s marked unhealthy: %v", name, err)
		}
		return
	}

	if !status.Healthy {
		log.Printf("Dependency %s recovered", name)
	}
	status.Healthy = true
	status.FailCount = 0
	status.LastError = ""
}

// Healthy reports whether every registered dependency is healthy
func (p *Prober) Healthy() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, status := range p.statuses {
		if !status.Healthy {
			return false
		}
	}
	return true
}

// Statuses returns a snapshot of all dependency statuses
func (p *Prober) Statuses() map[string]Status {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make(map[string]Status, len(p.statuses))
	for name, status := range p.statuses {
		out[name] = *status
	}
	return out
}
