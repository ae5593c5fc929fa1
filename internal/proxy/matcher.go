package proxy

import (
	"fmt"
	"regexp"
)

// Policy is the declarative action a RequestMatcher attaches to a match.
type Policy string

const (
	PolicyForbid       Policy = "forbid"
	PolicyAllow        Policy = "allow"
	PolicyDeprioritize Policy = "deprioritize"
	PolicyPrioritize   Policy = "prioritize"
)

func (p Policy) valid() bool {
	switch p {
	case PolicyForbid, PolicyAllow, PolicyDeprioritize, PolicyPrioritize:
		return true
	default:
		return false
	}
}

// RequestMatcher is a predicate over a Request paired with a Policy tag.
// Domain patterns are kept alongside their compiled form so the matcher can
// be serialized back out verbatim (see internal/config).
type RequestMatcher struct {
	Policy Policy

	domainPatterns []string
	domainRe       []*regexp.Regexp
	ports          map[uint16]struct{}
}

// NewRequestMatcher builds an empty matcher for the given policy.
func NewRequestMatcher(policy Policy) *RequestMatcher {
	return &RequestMatcher{Policy: policy, ports: map[uint16]struct{}{}}
}

// AddPort registers a port this matcher restricts to.
func (m *RequestMatcher) AddPort(port uint16) *RequestMatcher {
	m.ports[port] = struct{}{}
	return m
}

// AddDomainPattern compiles and appends a domain regular expression. Panics
// on an invalid pattern: patterns only ever originate from config load (which
// validates them) or from code under direct programmer control.
func (m *RequestMatcher) AddDomainPattern(pattern string) *RequestMatcher {
	re := regexp.MustCompile(pattern)
	m.domainPatterns = append(m.domainPatterns, pattern)
	m.domainRe = append(m.domainRe, re)
	return m
}

// DomainPatterns returns the matcher's source regex strings, for serialization.
func (m *RequestMatcher) DomainPatterns() []string {
	return append([]string(nil), m.domainPatterns...)
}

// Ports returns the matcher's port set, for serialization.
func (m *RequestMatcher) Ports() []uint16 {
	ports := make([]uint16, 0, len(m.ports))
	for p := range m.ports {
		ports = append(ports, p)
	}
	return ports
}

// Matches reports whether the matcher's predicate holds for r.
func (m *RequestMatcher) Matches(r Request) bool {
	if len(m.ports) != 0 {
		if _, ok := m.ports[r.Port]; !ok {
			return false
		}
	}
	if len(m.domainRe) == 0 {
		return true
	}
	for _, re := range m.domainRe {
		if loc := re.FindStringIndex(r.Domain); loc != nil && loc[0] == 0 {
			return true
		}
	}
	return false
}

func (m *RequestMatcher) String() string {
	return fmt.Sprintf("RequestMatcher:%s,%d domain(s),%d port(s)", m.Policy, len(m.domainPatterns), len(m.ports))
}
