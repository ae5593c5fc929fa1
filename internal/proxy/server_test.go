package proxy

import (
	"bytes"
	"net"
	"testing"
	"time"
)

func TestSocksEndToEndRelay(t *testing.T) {
	banner(t, "SocksEndToEndRelay")

	upstream := newLoopbackEcho(t)
	defer upstream.Close()
	host, port := splitHostPortT(t, upstream.Addr().String())

	link := NewLink().WithProbeTarget(host, port)
	balancer := NewBalancer(StrategyRoundRobin).AddLink(link)
	srv := NewServer(balancer, "127.0.0.1", 0, 0, 0, time.Hour)
	if !srv.Start() {
		t.Fatalf("server failed to start")
	}
	defer srv.Stop()

	clientAddr := srv.listener.Addr().String()
	conn, err := net.Dial("tcp", clientAddr)
	if err != nil {
		t.Fatalf("dial proxy: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte{0x05, 0x01, 0x00}); err != nil {
		t.Fatalf("send greeting: %v", err)
	}
	negReply := make([]byte, 2)
	if _, err := io_ReadFull(conn, negReply); err != nil {
		t.Fatalf("read negotiation reply: %v", err)
	}
	if !bytes.Equal(negReply, []byte{0x05, 0x00}) {
		t.Fatalf("unexpected negotiation reply: % x", negReply)
	}

	req := buildConnectRequest(t, host, port)
	if _, err := conn.Write(req); err != nil {
		t.Fatalf("send request: %v", err)
	}
	reqReply := make([]byte, 10)
	if _, err := io_ReadFull(conn, reqReply); err != nil {
		t.Fatalf("read request reply: %v", err)
	}
	want := []byte{0x05, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}
	if !bytes.Equal(reqReply, want) {
		t.Fatalf("unexpected request reply: % x, want % x", reqReply, want)
	}

	payload := []byte("hello through the tunnel")
	if _, err := conn.Write(payload); err != nil {
		t.Fatalf("send payload: %v", err)
	}
	echoed := make([]byte, len(payload))
	if _, err := io_ReadFull(conn, echoed); err != nil {
		t.Fatalf("read echoed payload: %v", err)
	}
	if !bytes.Equal(echoed, payload) {
		t.Fatalf("payload did not round-trip: got %q, want %q", echoed, payload)
	}
}

// buildConnectRequest encodes a domain-address CONNECT request per spec.md
// §6, e.g. 05 01 00 03 <len> <domain> <port-hi> <port-lo>.
func buildConnectRequest(t *testing.T, domain string, port uint16) []byte {
	t.Helper()
	buf := []byte{0x05, 0x01, 0x00, 0x03, byte(len(domain))}
	buf = append(buf, []byte(domain)...)
	buf = append(buf, byte(port>>8), byte(port))
	return buf
}

func io_ReadFull(conn net.Conn, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		m, err := conn.Read(buf[n:])
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

func TestServerPickNilSendsServerFailure(t *testing.T) {
	banner(t, "ServerPickNilSendsServerFailure")

	balancer := NewBalancer(StrategyRoundRobin) // no links registered
	srv := NewServer(balancer, "127.0.0.1", 0, 0, 0, time.Hour)
	if !srv.Start() {
		t.Fatalf("server failed to start")
	}
	defer srv.Stop()

	conn, err := net.Dial("tcp", srv.listener.Addr().String())
	if err != nil {
		t.Fatalf("dial proxy: %v", err)
	}
	defer conn.Close()

	conn.Write([]byte{0x05, 0x01, 0x00})
	negReply := make([]byte, 2)
	io_ReadFull(conn, negReply)

	conn.Write(buildConnectRequest(t, "example.com", 80))
	reqReply := make([]byte, 10)
	if _, err := io_ReadFull(conn, reqReply); err != nil {
		t.Fatalf("read request reply: %v", err)
	}
	if reqReply[1] != byte(replyServerFailure) {
		t.Fatalf("expected SERVER_FAILURE reply when no link is available, got rep=0x%02x", reqReply[1])
	}
}
