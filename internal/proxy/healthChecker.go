package proxy

import (
	"context"
	"time"

	applog "github.com/fclink/socks5fleet/internal/log"
)

// DefaultProbeInterval matches the original's _balancer_loop sleep(10).
const DefaultProbeInterval = 10 * time.Second

// HealthProber periodically refreshes every link's reachability and latency.
type HealthProber struct {
	balancer *Balancer
	interval time.Duration
}

// NewHealthProber builds a prober for balancer at the given interval. An
// interval of 0 falls back to DefaultProbeInterval.
func NewHealthProber(balancer *Balancer, interval time.Duration) *HealthProber {
	if interval <= 0 {
		interval = DefaultProbeInterval
	}
	return &HealthProber{balancer: balancer, interval: interval}
}

// Run probes once immediately, then on every tick of the prober's interval,
// until ctx is canceled. Intended to run in its own goroutine.
func (p *HealthProber) Run(ctx context.Context) {
	p.balancer.RefreshAll()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			applog.Info("HealthProber", "stopped.")
			return
		case <-ticker.C:
			p.balancer.RefreshAll()
		}
	}
}
