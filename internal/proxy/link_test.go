package proxy

import "testing"

func TestLinkPriorityForbidWhenUnhealthy(t *testing.T) {
	banner(t, "LinkPriorityForbidWhenUnhealthy")

	l := NewLink()
	l.status = false
	if got := l.Priority(NewRequest("example.com", 80)); got != PriorityForbid {
		t.Fatalf("unhealthy link: got priority %q, want forbid", got)
	}
}

func TestLinkPriorityForbidViaRegex(t *testing.T) {
	banner(t, "LinkPriorityForbidViaRegex")

	l := NewLink().AddMatcher(NewRequestMatcher(PolicyForbid).AddDomainPattern(`^.+\.com$`))
	if got := l.Priority(NewRequest("google.com", 80)); got != PriorityForbid {
		t.Fatalf("google.com: got priority %q, want forbid", got)
	}
	if got := l.Priority(NewRequest("google.fr", 80)); got != PriorityNormal {
		t.Fatalf("google.fr: got priority %q, want normal", got)
	}
}

func TestLinkPriorityAllowMiss(t *testing.T) {
	banner(t, "LinkPriorityAllowMiss")

	l := NewLink().AddMatcher(NewRequestMatcher(PolicyAllow).AddPort(80))
	if got := l.Priority(NewRequest("example.com", 443)); got != PriorityForbid {
		t.Fatalf("non-matching allow matcher: got priority %q, want forbid", got)
	}
}

func TestLinkPriorityHighLowNormal(t *testing.T) {
	banner(t, "LinkPriorityHighLowNormal")

	req := NewRequest("example.com", 80)

	high := NewLink().AddMatcher(NewRequestMatcher(PolicyPrioritize).AddPort(80))
	if got := high.Priority(req); got != PriorityHigh {
		t.Fatalf("prioritize-only: got %q, want high", got)
	}

	low := NewLink().AddMatcher(NewRequestMatcher(PolicyDeprioritize).AddPort(80))
	if got := low.Priority(req); got != PriorityLow {
		t.Fatalf("deprioritize-only: got %q, want low", got)
	}

	both := NewLink().
		AddMatcher(NewRequestMatcher(PolicyPrioritize).AddPort(80)).
		AddMatcher(NewRequestMatcher(PolicyDeprioritize).AddPort(80))
	if got := both.Priority(req); got != PriorityNormal {
		t.Fatalf("prioritize+deprioritize: got %q, want normal", got)
	}

	neither := NewLink()
	if got := neither.Priority(req); got != PriorityNormal {
		t.Fatalf("neither: got %q, want normal", got)
	}
}

func TestLinkOpenCloseLifecycle(t *testing.T) {
	banner(t, "LinkOpenCloseLifecycle")

	srv := newLoopbackEcho(t)
	defer srv.Close()

	l := NewLink()
	conn, err := l.Open("1", srv.Addr().String())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if l.ConnectionCount() != 1 {
		t.Fatalf("expected 1 live connection, got %d", l.ConnectionCount())
	}

	if _, err := l.Open("1", srv.Addr().String()); err == nil {
		t.Fatalf("expected ErrConnectionIDInUse on duplicate open")
	}

	l.Close("1")
	if l.ConnectionCount() != 0 {
		t.Fatalf("expected 0 live connections after close, got %d", l.ConnectionCount())
	}
	// Idempotent.
	l.Close("1")

	buf := make([]byte, 1)
	if _, err := conn.Write(buf); err == nil {
		t.Fatalf("expected write on closed connection to fail")
	}
}

func TestLinkRefreshAgainstLoopback(t *testing.T) {
	banner(t, "LinkRefreshAgainstLoopback")

	srv := newLoopbackEcho(t)
	defer srv.Close()

	host, port := splitHostPortT(t, srv.Addr().String())
	l := NewLink().WithProbeTarget(host, port)
	l.Refresh()

	if !l.Status() {
		t.Fatalf("expected link to be reported healthy against a live loopback echo server")
	}
}

func TestLinkRefreshUnreachable(t *testing.T) {
	banner(t, "LinkRefreshUnreachable")

	l := NewLink().WithProbeTarget("127.0.0.1", 1)
	l.Refresh()
	if l.Status() {
		t.Fatalf("expected link to be reported unhealthy against an unreachable target")
	}
}
