package proxy

import (
	"encoding/binary"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	imetrics "github.com/fclink/socks5fleet/internal/metrics"
)

const socksVersion5 byte = 0x05

const (
	socksMethodNoAuth       byte = 0x00
	socksMethodNoAcceptable byte = 0xFF
)

const socksCmdConnect byte = 0x01

const (
	socksAtypIPv4   byte = 0x01
	socksAtypDomain byte = 0x03
	socksAtypIPv6   byte = 0x04
)

// socksReply is a REP code from spec.md §6.
type socksReply byte

const (
	replySucceeded               socksReply = 0x00
	replyServerFailure           socksReply = 0x01
	replyNotAllowed              socksReply = 0x02
	replyNetworkUnreachable      socksReply = 0x03
	replyHostUnreachable         socksReply = 0x04
	replyConnectionRefused       socksReply = 0x05
	replyTTLExpired              socksReply = 0x06
	replyCommandNotSupported     socksReply = 0x07
	replyAddressTypeNotSupported socksReply = 0x08
)

const maxSocksFrame = 2048

// errBadGreeting signals a greeting that fails version/method validation.
var errBadGreeting = fmt.Errorf("socks: invalid greeting")

// readGreeting parses the client's method-negotiation message and reports
// whether no-authentication was offered (spec.md §4.7 NEG_AWAIT_GREETING).
func readGreeting(conn net.Conn) (ok bool, err error) {
	buf := make([]byte, maxSocksFrame)
	n, err := conn.Read(buf)
	if err != nil {
		return false, err
	}
	if n < 2 {
		return false, errBadGreeting
	}
	version, nmethods := buf[0], int(buf[1])
	if version != socksVersion5 {
		return false, errBadGreeting
	}
	if n != 2+nmethods {
		return false, errBadGreeting
	}
	methods := buf[2:n]
	for _, m := range methods {
		if m == socksMethodNoAuth {
			return true, nil
		}
	}
	return false, nil
}

// writeNegotiationReply sends the NEG_REPLY frame.
func writeNegotiationReply(conn net.Conn, accepted bool) error {
	method := socksMethodNoAcceptable
	if accepted {
		method = socksMethodNoAuth
	}
	_, err := conn.Write([]byte{socksVersion5, method})
	return err
}

// socksRequest is a parsed REQ_AWAIT frame.
type socksRequest struct {
	Command byte
	Atyp    byte
	Request Request
}

// readRequest parses the client's connection request (spec.md §4.7 REQ_AWAIT).
func readRequest(conn net.Conn) (*socksRequest, socksReply, error) {
	buf := make([]byte, maxSocksFrame)
	n, err := conn.Read(buf)
	if err != nil {
		return nil, replyServerFailure, err
	}
	if n < 4 || buf[0] != socksVersion5 {
		return nil, replyServerFailure, fmt.Errorf("socks: malformed request")
	}
	cmd, atyp := buf[1], buf[3]
	if cmd != socksCmdConnect {
		return nil, replyCommandNotSupported, fmt.Errorf("socks: unsupported command 0x%02x", cmd)
	}

	rest := buf[4:n]
	var domain string
	switch atyp {
	case socksAtypIPv4:
		if len(rest) < 4+2 {
			return nil, replyServerFailure, fmt.Errorf("socks: truncated ipv4 request")
		}
		domain = net.IP(rest[:4]).String()
		rest = rest[4:]
	case socksAtypDomain:
		if len(rest) < 1 {
			return nil, replyServerFailure, fmt.Errorf("socks: truncated domain length")
		}
		length := int(rest[0])
		rest = rest[1:]
		if len(rest) < length+2 {
			return nil, replyServerFailure, fmt.Errorf("socks: truncated domain request")
		}
		domain = string(rest[:length])
		rest = rest[length:]
	case socksAtypIPv6:
		if len(rest) < 16+2 {
			return nil, replyServerFailure, fmt.Errorf("socks: truncated ipv6 request")
		}
		domain = net.IP(rest[:16]).String()
		rest = rest[16:]
	default:
		return nil, replyAddressTypeNotSupported, fmt.Errorf("socks: unknown address type 0x%02x", atyp)
	}

	port := binary.BigEndian.Uint16(rest[:2])
	return &socksRequest{Command: cmd, Atyp: atyp, Request: NewRequest(domain, port)}, replySucceeded, nil
}

// writeRequestReply sends the REQ_REPLY frame with zeroed BND fields
// (spec.md §4.7/§6: clients that validate BND strictly are out of scope).
func writeRequestReply(conn net.Conn, rep socksReply) error {
	frame := []byte{socksVersion5, byte(rep), 0x00, socksAtypIPv4, 0, 0, 0, 0, 0, 0}
	_, err := conn.Write(frame)
	return err
}

// relay multiplexes client and upstream until one side closes or errors, the
// link's idle timeout elapses with no data in either direction, or stopCh
// signals shutdown (spec.md §4.7 RELAY, §5: bounded by "the upstream
// socket's receive timeout"). idleTimeout <= 0 means no deadline.
func relay(client, upstream net.Conn, idleTimeout time.Duration, stopCh <-chan struct{}) {
	done := make(chan struct{}, 2)
	var lastActivity atomic.Int64
	lastActivity.Store(time.Now().UnixNano())
	copyDirection := func(dst, src net.Conn, direction string) {
		defer func() { done <- struct{}{} }()
		buf := make([]byte, maxSocksFrame)
		for {
			if idleTimeout > 0 {
				_ = src.SetReadDeadline(time.Now().Add(idleTimeout))
			}
			n, err := src.Read(buf)
			if n > 0 {
				lastActivity.Store(time.Now().UnixNano())
				reportRelayedBytes(direction, n)
				if _, werr := dst.Write(buf[:n]); werr != nil {
					return
				}
			}
			if err != nil {
				// A read deadline on this side alone is not idleness while
				// the other direction has moved data within the period.
				if ne, ok := err.(net.Error); ok && ne.Timeout() && idleTimeout > 0 &&
					time.Since(time.Unix(0, lastActivity.Load())) < idleTimeout {
					continue
				}
				return
			}
		}
	}
	go copyDirection(upstream, client, "client_to_upstream")
	go copyDirection(client, upstream, "upstream_to_client")

	select {
	case <-done:
	case <-stopCh:
	}
}

func reportRelayedBytes(direction string, n int) {
	imetrics.RelayBytesAdd(direction, n)
}
