package proxy

import (
	"errors"
	"fmt"
	"net"
	"runtime"
	"syscall"
	"time"

	"golang.org/x/net/proxy"
	"golang.org/x/sys/unix"
)

// ErrInterfaceBindUnsupported is returned by a dial attempt on a Link with a
// non-empty Interface when running on a platform without SO_BINDTODEVICE.
var ErrInterfaceBindUnsupported = errors.New("link: interface binding requires Linux (SO_BINDTODEVICE)")

// dial builds a connection to addr ("host:port") the way this link is
// configured to reach it: bound to Interface (if set) and, for chained
// protocols, tunneled through ProxyHost:ProxyPort (spec.md §4.3's
// _build_socket order: chain dialer wraps the interface-bound base dialer,
// then the whole thing is given Timeout to complete).
func (l *Link) dial(addr string) (net.Conn, error) {
	base := &net.Dialer{Timeout: time.Duration(l.Timeout) * time.Second}
	if l.Interface != "" {
		if err := bindToDevice(base, l.Interface); err != nil {
			return nil, err
		}
	}

	switch l.Protocol {
	case ProtocolDirect, "":
		return base.Dial("tcp", addr)
	case ProtocolSocks5, ProtocolSocks4:
		return l.dialChained(base, addr)
	case ProtocolHTTP:
		return l.dialHTTPConnect(base, addr)
	default:
		return nil, fmt.Errorf("link: unknown protocol %q", l.Protocol)
	}
}

// dialChained wraps base in a golang.org/x/net/proxy SOCKS4/SOCKS5 dialer
// pointed at this link's chain proxy, then dials addr through it.
func (l *Link) dialChained(base *net.Dialer, addr string) (net.Conn, error) {
	proxyAddr := net.JoinHostPort(l.ProxyHost, fmt.Sprintf("%d", l.ProxyPort))
	var (
		d   proxy.Dialer
		err error
	)
	switch l.Protocol {
	case ProtocolSocks5:
		d, err = proxy.SOCKS5("tcp", proxyAddr, nil, base)
	case ProtocolSocks4:
		// golang.org/x/net/proxy has no native SOCKS4 scheme; reuse the
		// SOCKS5 dialer's framing is not valid for SOCKS4, so dial the chain
		// hop directly and speak the v4 CONNECT handshake by hand.
		return l.dialSocks4(base, proxyAddr, addr)
	default:
		return nil, fmt.Errorf("link: %q is not a chained protocol", l.Protocol)
	}
	if err != nil {
		return nil, fmt.Errorf("link: build socks dialer: %w", err)
	}
	return d.Dial("tcp", addr)
}

// dialSocks4 speaks the minimal SOCKS4 CONNECT handshake (RFC-less, de facto
// standard): VER=4, CMD=1, DSTPORT, DSTIP, USERID="", NUL.
func (l *Link) dialSocks4(base *net.Dialer, proxyAddr, addr string) (net.Conn, error) {
	conn, err := base.Dial("tcp", proxyAddr)
	if err != nil {
		return nil, fmt.Errorf("link: dial socks4 proxy: %w", err)
	}

	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("link: invalid target address %q: %w", addr, err)
	}
	ip := net.ParseIP(host)
	if ip == nil {
		ips, lookupErr := net.LookupIP(host)
		if lookupErr != nil || len(ips) == 0 {
			conn.Close()
			return nil, fmt.Errorf("link: resolve %q for socks4: %w", host, lookupErr)
		}
		ip = ips[0]
	}
	ip4 := ip.To4()
	if ip4 == nil {
		conn.Close()
		return nil, fmt.Errorf("link: socks4 requires an IPv4 target, got %q", host)
	}
	var port int
	if _, err := fmt.Sscanf(portStr, "%d", &port); err != nil {
		conn.Close()
		return nil, fmt.Errorf("link: invalid port %q: %w", portStr, err)
	}

	req := make([]byte, 0, 9)
	req = append(req, 0x04, 0x01, byte(port>>8), byte(port))
	req = append(req, ip4...)
	req = append(req, 0x00)
	if _, err := conn.Write(req); err != nil {
		conn.Close()
		return nil, fmt.Errorf("link: socks4 request: %w", err)
	}

	resp := make([]byte, 8)
	if _, err := readFull(conn, resp); err != nil {
		conn.Close()
		return nil, fmt.Errorf("link: socks4 reply: %w", err)
	}
	if resp[1] != 0x5a {
		conn.Close()
		return nil, fmt.Errorf("link: socks4 proxy rejected connection, code 0x%02x", resp[1])
	}
	return conn, nil
}

// dialHTTPConnect opens addr through an HTTP CONNECT tunnel. No example
// library in the reference pack provides this, so it is hand-rolled per
// RFC 7231 §4.3.6, mirroring the minimal framing of dialSocks4 above.
func (l *Link) dialHTTPConnect(base *net.Dialer, addr string) (net.Conn, error) {
	proxyAddr := net.JoinHostPort(l.ProxyHost, fmt.Sprintf("%d", l.ProxyPort))
	conn, err := base.Dial("tcp", proxyAddr)
	if err != nil {
		return nil, fmt.Errorf("link: dial http proxy: %w", err)
	}

	req := fmt.Sprintf("CONNECT %s HTTP/1.1\r\nHost: %s\r\n\r\n", addr, addr)
	if _, err := conn.Write([]byte(req)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("link: http connect request: %w", err)
	}

	status, err := readHTTPStatusLine(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("link: http connect response: %w", err)
	}
	if status != 200 {
		conn.Close()
		return nil, fmt.Errorf("link: http proxy rejected connect, status %d", status)
	}
	return conn, nil
}

func readFull(conn net.Conn, buf []byte) (int, error) {
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

// readHTTPStatusLine reads exactly the "HTTP/1.x NNN ..." line plus the
// trailing header block, returning NNN. Good enough for a tunnel handshake:
// the body of a 200 response to CONNECT is the raw byte stream itself.
func readHTTPStatusLine(conn net.Conn) (int, error) {
	buf := make([]byte, 0, 512)
	one := make([]byte, 1)
	for {
		if len(buf) > 8192 {
			return 0, fmt.Errorf("http response headers too large")
		}
		n, err := conn.Read(one)
		if n == 1 {
			buf = append(buf, one[0])
			if len(buf) >= 4 && string(buf[len(buf)-4:]) == "\r\n\r\n" {
				break
			}
		}
		if err != nil {
			return 0, err
		}
	}
	var version string
	var status int
	if _, err := fmt.Sscanf(string(buf), "%s %d", &version, &status); err != nil {
		return 0, fmt.Errorf("malformed status line: %w", err)
	}
	return status, nil
}

// bindToDevice constrains base's outbound socket to iface via SO_BINDTODEVICE.
// Linux-only: spec.md's Interface field assumes a Linux host, matching the
// original's use of the SO_BINDTODEVICE socket option.
func bindToDevice(base *net.Dialer, iface string) error {
	if runtime.GOOS != "linux" {
		return fmt.Errorf("%w, running on %s", ErrInterfaceBindUnsupported, runtime.GOOS)
	}
	base.Control = func(network, address string, c syscall.RawConn) error {
		var sockErr error
		err := c.Control(func(fd uintptr) {
			sockErr = unix.BindToDevice(int(fd), iface)
		})
		if err != nil {
			return err
		}
		return sockErr
	}
	return nil
}
