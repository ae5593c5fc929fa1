package proxy

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	applog "github.com/fclink/socks5fleet/internal/log"
)

// defaultAcceptTimeout bounds how long the accept loop blocks per iteration,
// which in turn bounds shutdown latency (spec.md §5). The standard library's
// net.Listener has no backlog knob; the kernel default backlog of the
// platform substitutes for spec.md §4.7's backlog-10 socket option.
const defaultAcceptTimeout = 5 * time.Second

// Server defaults per spec.md §3.
const (
	DefaultBindHost          = "0.0.0.0"
	DefaultBindPort   uint16 = 1080
	DefaultMaxWorkers        = 200
)

// Server is the SOCKS5 listener: it accepts client sessions, runs each
// through the NEG_AWAIT_GREETING → RELAY → DONE state machine (spec.md
// §4.7), and drives the fleet's background health prober for its lifetime.
type Server struct {
	balancer      *Balancer
	bindHost      string
	bindPort      uint16
	acceptTimeout time.Duration
	maxWorkers    int
	probeInterval time.Duration
	admission     *AdmissionGate
	prober        *HealthProber

	listener net.Listener
	stopCtx  context.Context
	stop     context.CancelFunc
	wg       sync.WaitGroup
}

// NewServer builds a Server. acceptTimeout <= 0 falls back to
// defaultAcceptTimeout; maxWorkers <= 0 means unbounded concurrent sessions;
// probeInterval <= 0 falls back to DefaultProbeInterval.
func NewServer(balancer *Balancer, bindHost string, bindPort uint16, acceptTimeout time.Duration, maxWorkers int, probeInterval time.Duration) *Server {
	if acceptTimeout <= 0 {
		acceptTimeout = defaultAcceptTimeout
	}
	if probeInterval <= 0 {
		probeInterval = DefaultProbeInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		balancer:      balancer,
		bindHost:      bindHost,
		bindPort:      bindPort,
		acceptTimeout: acceptTimeout,
		maxWorkers:    maxWorkers,
		probeInterval: probeInterval,
		admission:     NewAdmissionGate(maxWorkers),
		prober:        NewHealthProber(balancer, probeInterval),
		stopCtx:       ctx,
		stop:          cancel,
	}
}

// Balancer returns the server's fleet balancer, for serialization.
func (s *Server) Balancer() *Balancer { return s.balancer }

// BindHost returns the configured bind host, for serialization.
func (s *Server) BindHost() string { return s.bindHost }

// BindPort returns the configured bind port, for serialization.
func (s *Server) BindPort() uint16 { return s.bindPort }

// AcceptTimeout returns the configured accept-loop timeout, for serialization.
func (s *Server) AcceptTimeout() time.Duration { return s.acceptTimeout }

// MaxWorkers returns the configured worker-slot ceiling, for serialization.
func (s *Server) MaxWorkers() int { return s.maxWorkers }

// Start binds the listening socket and launches the accept loop and health
// prober as background goroutines. Returns false on bind/listen failure
// (spec.md §4.7: "log error and return a boolean failure from start").
func (s *Server) Start() bool {
	addr := net.JoinHostPort(s.bindHost, fmt.Sprintf("%d", s.bindPort))
	lc := net.ListenConfig{}
	ln, err := lc.Listen(s.stopCtx, "tcp", addr)
	if err != nil {
		applog.Error("Server", fmt.Sprintf("failed to bind %s: %q.", addr, err))
		return false
	}
	s.listener = ln
	applog.Info("Server", fmt.Sprintf("listening on %s.", addr))

	s.wg.Add(2)
	go func() { defer s.wg.Done(); s.prober.Run(s.stopCtx) }()
	go func() { defer s.wg.Done(); s.acceptLoop() }()
	return true
}

// Stop signals shutdown and blocks until the accept loop, the prober, and
// every in-flight session goroutine this Server started have returned.
func (s *Server) Stop() {
	s.stop()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	applog.Info("Server", "stopped.")
}

func (s *Server) acceptLoop() {
	for {
		select {
		case <-s.stopCtx.Done():
			return
		default:
		}

		release, err := s.admission.Acquire(s.stopCtx)
		if err != nil {
			return
		}

		if tc, ok := s.listener.(interface{ SetDeadline(time.Time) error }); ok {
			_ = tc.SetDeadline(time.Now().Add(s.acceptTimeout))
		}
		conn, err := s.listener.Accept()
		if err != nil {
			release()
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			select {
			case <-s.stopCtx.Done():
				return
			default:
				applog.Warning("Server", fmt.Sprintf("accept error: %q.", err))
				continue
			}
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer release()
			s.handleSession(conn)
		}()
	}
}

// handleSession drives one client through the full SOCKS5 state machine.
func (s *Server) handleSession(client net.Conn) {
	defer client.Close()

	accepted, err := readGreeting(client)
	if err != nil {
		applog.Warning("Server", fmt.Sprintf("greeting error from %s: %q.", client.RemoteAddr(), err))
		return
	}
	if writeErr := writeNegotiationReply(client, accepted); writeErr != nil {
		return
	}
	if !accepted {
		return
	}

	req, rep, err := readRequest(client)
	if err != nil {
		_ = writeRequestReply(client, rep)
		return
	}

	link, id := s.balancer.Pick(req.Request)
	if link == nil {
		applog.Warning("Server", fmt.Sprintf("no link selected for request %s, sending SERVER_FAILURE.", req.Request))
		_ = writeRequestReply(client, replyServerFailure)
		return
	}

	upstream, err := link.Open(id, req.Request.String())
	if err != nil {
		applog.Error("Server", fmt.Sprintf("failed to open upstream for request %s via %s: %q.", req.Request, link, err))
		_ = writeRequestReply(client, replyNetworkUnreachable)
		return
	}
	defer link.Close(id)

	if err := writeRequestReply(client, replySucceeded); err != nil {
		return
	}

	relay(client, upstream, link.IOTimeout(), s.stopCtx.Done())
}
