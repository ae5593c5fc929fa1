package proxy

import (
	"fmt"
	"sync"

	applog "github.com/fclink/socks5fleet/internal/log"
	imetrics "github.com/fclink/socks5fleet/internal/metrics"
)

// Balancer owns the fleet of Links, the global accept/reject matchers, and
// the per-pick strategy. It is the only type that mutates lastSelected or
// issues connection ids, so all picks serialize through balMu. Health probes
// (RefreshAll) do not take balMu.
type Balancer struct {
	strategy Strategy
	matchers []*RequestMatcher // global gate: allow/forbid only (spec.md §4.4)
	links    []*Link

	balMu        sync.Mutex
	lastSelected *Link
	nextConnID   uint64
}

// NewBalancer builds an empty Balancer using strategy for link selection.
func NewBalancer(strategy Strategy) *Balancer {
	if !strategy.valid() {
		strategy = StrategyRoundRobin
	}
	return &Balancer{strategy: strategy}
}

// AddLink registers a link with the fleet.
func (b *Balancer) AddLink(l *Link) *Balancer {
	b.links = append(b.links, l)
	return b
}

// AddMatcher appends a global gate matcher. Only Allow/Forbid policies are
// meaningful here; Prioritize/Deprioritize matchers are accepted (config
// validation allows all four policies) and ignored by the global gate
// (spec.md §4.4).
func (b *Balancer) AddMatcher(m *RequestMatcher) *Balancer {
	b.matchers = append(b.matchers, m)
	return b
}

// Strategy reports the configured selection strategy.
func (b *Balancer) Strategy() Strategy { return b.strategy }

// Links returns the fleet's links in registration order.
func (b *Balancer) Links() []*Link { return append([]*Link(nil), b.links...) }

// Matchers returns the global gate matchers in registration order.
func (b *Balancer) Matchers() []*RequestMatcher { return append([]*RequestMatcher(nil), b.matchers...) }

// shouldAccept applies the global gate: forbidden unless every Forbid
// matcher misses and every Allow matcher hits (spec.md §4.4).
func (b *Balancer) shouldAccept(r Request) bool {
	for _, m := range b.matchers {
		matches := m.Matches(r)
		switch m.Policy {
		case PolicyForbid:
			if matches {
				return false
			}
		case PolicyAllow:
			if !matches {
				return false
			}
		}
	}
	return true
}

// partition buckets the fleet's links by priority for r, per spec.md §4.4:
// links classified forbid for this request are dropped entirely.
func (b *Balancer) partition(r Request) (high, normal, low []*Link) {
	for _, l := range b.links {
		switch l.Priority(r) {
		case PriorityHigh:
			high = append(high, l)
		case PriorityNormal:
			normal = append(normal, l)
		case PriorityLow:
			low = append(low, l)
		}
	}
	return
}

// Pick selects the link that should carry r, or nil if the fleet rejects it
// (global gate miss, or every link forbids it). On a non-nil pick it
// allocates and returns a fresh connection id, and updates lastSelected for
// round_robin's rotation (spec.md §4.4).
func (b *Balancer) Pick(r Request) (*Link, string) {
	b.balMu.Lock()
	defer b.balMu.Unlock()

	if !b.shouldAccept(r) {
		applog.Warning("Balancer", fmt.Sprintf("request %s rejected by global policy.", r))
		imetrics.BalancerRejectionInc()
		return nil, ""
	}

	high, normal, low := b.partition(r)
	var bucket []*Link
	var priority string
	switch {
	case len(high) > 0:
		bucket, priority = high, string(PriorityHigh)
	case len(normal) > 0:
		bucket, priority = normal, string(PriorityNormal)
	case len(low) > 0:
		bucket, priority = low, string(PriorityLow)
	default:
		applog.Warning("Balancer", fmt.Sprintf("no link available for request %s.", r))
		imetrics.BalancerRejectionInc()
		return nil, ""
	}

	link := pick(b.strategy, bucket, b.lastSelected)
	if link == nil {
		imetrics.BalancerRejectionInc()
		return nil, ""
	}
	b.lastSelected = link

	b.nextConnID++
	id := fmt.Sprintf("%d", b.nextConnID)
	imetrics.BalancerPickInc(link.String(), priority)
	return link, id
}

// RefreshAll runs one health-probe cycle over every link in the fleet.
// Sequential by design, matching the original's update_links_status (the
// comment there flags this as a future parallelization target, which this
// port leaves as-is: health probes are cheap and the balancer is not
// blocked while they run, since RefreshAll is called from a background
// goroutine, not from Pick's critical section).
func (b *Balancer) RefreshAll() {
	for _, l := range b.links {
		l.Refresh()
	}
}
