package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"sort"
	"time"

	validatorpkg "github.com/go-playground/validator/v10"

	"github.com/fclink/socks5fleet/internal/proxy"
)

var validate = validatorpkg.New()

// Load reads path, validates it against the schema in schema.go (mandatory
// keys enforced via struct tags), and builds a fully-populated *proxy.Server.
// A missing mandatory key or bad enum value is a ConfigError, fatal at boot
// (spec.md §7).
func Load(path string) (*proxy.Server, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var doc serverDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := validate.Struct(doc); err != nil {
		return nil, fmt.Errorf("config: invalid document %s: %w", path, err)
	}

	balancer, err := toBalancer(doc.Balancer)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	bindHost := doc.BindHost
	if bindHost == "" {
		bindHost = proxy.DefaultBindHost
	}
	bindPort := doc.BindPort
	if bindPort == 0 {
		bindPort = proxy.DefaultBindPort
	}
	acceptTimeout := time.Duration(doc.AcceptTimeoutSeconds) * time.Second
	maxWorkers := int(doc.MaxWorkers)
	if doc.MaxWorkers == 0 {
		maxWorkers = proxy.DefaultMaxWorkers
	}
	probeInterval := time.Duration(doc.ProbeIntervalSeconds) * time.Second

	if doc.ProbeAddress != "" || doc.ProbePort != 0 {
		probeAddress := doc.ProbeAddress
		if probeAddress == "" {
			probeAddress = proxy.DefaultProbeAddress
		}
		probePort := doc.ProbePort
		if probePort == 0 {
			probePort = proxy.DefaultProbePort
		}
		for _, l := range balancer.Links() {
			l.WithProbeTarget(probeAddress, probePort)
		}
	}

	return proxy.NewServer(balancer, bindHost, bindPort, acceptTimeout, maxWorkers, probeInterval), nil
}

// Save serializes server back to path as JSON in the schema's field order
// (spec.md §8's round-trip invariant: deserialize(serialize(x)) reserializes
// identically). It writes the bind address, accept timeout, max workers and
// balancer; probe_interval_seconds, probe_address and probe_port are not
// written.
func Save(server *proxy.Server, path string) error {
	doc := serverDocument{
		BindHost:             server.BindHost(),
		BindPort:             server.BindPort(),
		AcceptTimeoutSeconds: uint32(server.AcceptTimeout() / time.Second),
		MaxWorkers:           uint32(server.MaxWorkers()),
		Balancer:             fromBalancer(server.Balancer()),
	}

	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

func toBalancer(doc balancerDocument) (*proxy.Balancer, error) {
	balancer := proxy.NewBalancer(proxy.Strategy(doc.Strategy))
	for _, m := range doc.Matchers {
		matcher, err := toMatcher(m)
		if err != nil {
			return nil, err
		}
		balancer.AddMatcher(matcher)
	}
	for _, l := range *doc.Links {
		link, err := toLink(l)
		if err != nil {
			return nil, err
		}
		balancer.AddLink(link)
	}
	return balancer, nil
}

func fromBalancer(balancer *proxy.Balancer) balancerDocument {
	doc := balancerDocument{Strategy: string(balancer.Strategy())}
	for _, m := range balancer.Matchers() {
		doc.Matchers = append(doc.Matchers, fromMatcher(m))
	}
	links := make([]linkDocument, 0, len(balancer.Links()))
	for _, l := range balancer.Links() {
		links = append(links, fromLink(l))
	}
	doc.Links = &links
	return doc
}

func toLink(doc linkDocument) (*proxy.Link, error) {
	link := proxy.NewLink()
	link.Interface = doc.Interface
	if doc.Protocol != "" {
		link.Protocol = proxy.Protocol(doc.Protocol)
	}
	link.ProxyHost = doc.ProxyHost
	link.ProxyPort = doc.ProxyPort
	if doc.TimeoutSeconds != 0 {
		link.Timeout = doc.TimeoutSeconds
	}
	if doc.Weight != 0 {
		link.Weight = doc.Weight
	}
	for _, m := range doc.Matchers {
		matcher, err := toMatcher(m)
		if err != nil {
			return nil, err
		}
		link.AddMatcher(matcher)
	}
	return link, nil
}

func fromLink(link *proxy.Link) linkDocument {
	doc := linkDocument{
		Interface:      link.Interface,
		Protocol:       string(link.Protocol),
		ProxyHost:      link.ProxyHost,
		ProxyPort:      link.ProxyPort,
		TimeoutSeconds: link.Timeout,
		Weight:         link.Weight,
	}
	for _, m := range link.Matchers() {
		doc.Matchers = append(doc.Matchers, fromMatcher(m))
	}
	return doc
}

func toMatcher(doc matcherDocument) (*proxy.RequestMatcher, error) {
	policy := proxy.Policy(doc.Policy)
	matcher := proxy.NewRequestMatcher(policy)
	for _, p := range doc.Ports {
		matcher.AddPort(p)
	}
	for _, pattern := range doc.DomainPatterns {
		if _, err := regexp.Compile(pattern); err != nil {
			return nil, fmt.Errorf("matcher: invalid domain pattern %q: %w", pattern, err)
		}
		matcher.AddDomainPattern(pattern)
	}
	return matcher, nil
}

func fromMatcher(matcher *proxy.RequestMatcher) matcherDocument {
	ports := matcher.Ports()
	sort.Slice(ports, func(i, j int) bool { return ports[i] < ports[j] })
	return matcherDocument{
		Policy:         string(matcher.Policy),
		DomainPatterns: matcher.DomainPatterns(),
		Ports:          ports,
	}
}
