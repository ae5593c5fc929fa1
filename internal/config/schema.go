// Package config loads and saves the fleet's JSON configuration document.
// Each entity below mirrors the source descriptor model — one explicit
// struct per entity, json tags for the wire key, validator tags for the
// mandatory/enum constraints a descriptor would have declared — plus a
// finalize step after unmarshal (matcher.go's regex recompilation) in place
// of a per-entity callback.
package config

// serverDocument is the root of the configuration file.
type serverDocument struct {
	BindHost             string             `json:"bind_host,omitempty"`
	BindPort             uint16             `json:"bind_port,omitempty"`
	AcceptTimeoutSeconds uint32             `json:"accept_timeout_seconds,omitempty"`
	MaxWorkers           uint32             `json:"max_workers,omitempty"`
	ProbeIntervalSeconds uint32             `json:"probe_interval_seconds,omitempty"`
	ProbeAddress         string             `json:"probe_address,omitempty"`
	ProbePort            uint16           `json:"probe_port,omitempty"`
	Balancer             balancerDocument `json:"balancer" validate:"required"`
}

// balancerDocument mirrors proxy.Balancer. Links is a pointer so presence of
// the key (required) is distinguishable from an empty list (permitted):
// spec.md §9 requires the key but allows it to hold zero links.
type balancerDocument struct {
	Strategy string            `json:"strategy" validate:"required,oneof=round_robin random_link least_connections"`
	Matchers []matcherDocument `json:"matchers,omitempty" validate:"dive"`
	Links    *[]linkDocument   `json:"links" validate:"required,dive"`
}

// linkDocument mirrors proxy.Link.
type linkDocument struct {
	Interface      string            `json:"interface,omitempty"`
	Protocol       string            `json:"protocol,omitempty" validate:"omitempty,oneof=direct socks5 socks4 http"`
	ProxyHost      string            `json:"proxy_host,omitempty"`
	ProxyPort      uint16            `json:"proxy_port,omitempty"`
	TimeoutSeconds uint32            `json:"timeout_seconds,omitempty"`
	Weight         uint32            `json:"weight,omitempty"`
	Matchers       []matcherDocument `json:"matchers,omitempty" validate:"dive"`
}

// matcherDocument mirrors proxy.RequestMatcher.
type matcherDocument struct {
	Policy         string   `json:"policy" validate:"required,oneof=forbid allow deprioritize prioritize"`
	DomainPatterns []string `json:"domain_patterns,omitempty"`
	Ports          []uint16 `json:"ports,omitempty"`
}
