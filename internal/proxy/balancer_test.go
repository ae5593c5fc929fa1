package proxy

import "testing"

func TestBalancerRoundRobinRotation(t *testing.T) {
	banner(t, "BalancerRoundRobinRotation")

	l1, l2, l3 := NewLink(), NewLink(), NewLink()
	b := NewBalancer(StrategyRoundRobin).AddLink(l1).AddLink(l2).AddLink(l3)

	want := []*Link{l1, l2, l3, l1}
	for i, w := range want {
		got, id := b.Pick(NewRequest("test", 80))
		if got != w {
			t.Fatalf("pick %d: got link %p, want %p", i, got, w)
		}
		if id == "" {
			t.Fatalf("pick %d: expected a non-empty connection id", i)
		}
	}
}

func TestBalancerGlobalForbidByPort(t *testing.T) {
	banner(t, "BalancerGlobalForbidByPort")

	b := NewBalancer(StrategyRoundRobin).
		AddLink(NewLink()).
		AddMatcher(NewRequestMatcher(PolicyForbid).AddPort(80))

	if got, _ := b.Pick(NewRequest("test", 80)); got != nil {
		t.Fatalf("expected nil pick under a global forbid-port-80 matcher, got a link")
	}
}

func TestBalancerGlobalAllowByPort(t *testing.T) {
	banner(t, "BalancerGlobalAllowByPort")

	l1 := NewLink()
	b := NewBalancer(StrategyRoundRobin).
		AddLink(l1).
		AddMatcher(NewRequestMatcher(PolicyAllow).AddPort(80))

	got, _ := b.Pick(NewRequest("test", 80))
	if got != l1 {
		t.Fatalf("expected l1 to be picked under a global allow-port-80 matcher")
	}
}

func TestBalancerNoEligibleLinkReturnsNil(t *testing.T) {
	banner(t, "BalancerNoEligibleLinkReturnsNil")

	l1 := NewLink()
	l1.status = false
	b := NewBalancer(StrategyRoundRobin).AddLink(l1)

	if got, _ := b.Pick(NewRequest("test", 80)); got != nil {
		t.Fatalf("expected nil pick when every link forbids the request")
	}
}

func TestBalancerLinksPreserveInsertionOrder(t *testing.T) {
	banner(t, "BalancerLinksPreserveInsertionOrder")

	l1, l2, l3 := NewLink(), NewLink(), NewLink()
	b := NewBalancer(StrategyRoundRobin).AddLink(l1).AddLink(l2).AddLink(l3)

	links := b.Links()
	if len(links) != 3 || links[0] != l1 || links[1] != l2 || links[2] != l3 {
		t.Fatalf("expected Links() to preserve insertion order")
	}
}
