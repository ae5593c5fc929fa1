/*
Example raw-TCP echo server used to exercise the fleet proxy end-to-end
(spec.md §8 scenario 7): a client connects through socks5d, the proxy opens
a Link to this server, and every byte sent is echoed back unmodified.

Typical usage:
- Start the server and send SOCKS5 CONNECT requests for its address through socks5d.
- Configuration is read only from YAML (configs/config-upstream.yaml or .yml).

Example YAML:

	upstream:
	  listen: [":9000", ":9001"]

Note: this is a demo app, not a production server.
*/
package main

import (
	"io"
	"log"
	"os"
	"strings"
	"sync"

	"net"

	"gopkg.in/yaml.v3"
)

// StringList allows YAML "listen" to be either a comma-separated string or a
// YAML sequence.
type StringList []string

// UnmarshalYAML accepts a scalar such as ":9000,:9001" or a sequence of strings.
func (s *StringList) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		*s = strings.Split(value.Value, ",")
		return nil
	}
	var list []string
	if err := value.Decode(&list); err != nil {
		return err
	}
	*s = list
	return nil
}

func main() {
	listenAddrs := loadListenAddressesFromYAML()

	var wg sync.WaitGroup
	for _, addr := range listenAddrs {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			continue
		}
		wg.Add(1)
		go func(addr string) {
			defer wg.Done()
			log.Printf("starting echo upstream on %s", addr)
			if err := serveEcho(addr); err != nil {
				log.Printf("echo upstream %s exited: %v", addr, err)
			}
		}(addr)
	}
	wg.Wait()
}

func serveEcho(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	defer ln.Close()

	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go func() {
			defer conn.Close()
			io.Copy(conn, conn)
		}()
	}
}

type upstreamYAML struct {
	Upstream *struct {
		Listen StringList `yaml:"listen"`
	} `yaml:"upstream"`
}

// loadListenAddressesFromYAML returns the echo server's listen addresses,
// falling back to [":9000"] if no config is found.
func loadListenAddressesFromYAML() []string {
	defaultAddresses := []string{":9000"}

	candidates := []string{
		"configs/config-upstream.yaml", "configs/config-upstream.yml",
	}

	var configPath string
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			configPath = c
			break
		}
	}

	if configPath != "" {
		if b, err := os.ReadFile(configPath); err == nil {
			var cfg upstreamYAML
			if err := yaml.Unmarshal(b, &cfg); err == nil {
				if cfg.Upstream != nil && len(cfg.Upstream.Listen) > 0 {
					return cfg.Upstream.Listen
				}
			}
		}
	}

	return defaultAddresses
}
