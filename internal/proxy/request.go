package proxy

import "fmt"

// Request is the destination of one SOCKS5 CONNECT — a domain name, dotted
// IPv4, or bracket-less IPv6 literal, plus a port. It is immutable once
// built and carries no protocol state.
type Request struct {
	Domain string
	Port   uint16
}

// NewRequest builds a Request for the given destination.
func NewRequest(domain string, port uint16) Request {
	return Request{Domain: domain, Port: port}
}

func (r Request) String() string {
	return fmt.Sprintf("%s:%d", r.Domain, r.Port)
}
