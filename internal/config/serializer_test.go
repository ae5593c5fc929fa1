package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

const sampleDocument = `{
  "bind_host": "0.0.0.0",
  "bind_port": 1080,
  "accept_timeout_seconds": 5,
  "max_workers": 200,
  "balancer": {
    "strategy": "round_robin",
    "matchers": [
      {"policy": "forbid", "ports": [25]}
    ],
    "links": [
      {
        "protocol": "direct",
        "weight": 1,
        "matchers": [
          {"policy": "forbid", "domain_patterns": ["^.+\\.invalid$"]}
        ]
      },
      {
        "protocol": "socks5",
        "proxy_host": "127.0.0.1",
        "proxy_port": 1081,
        "weight": 2
      }
    ]
  }
}`

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fleet.json")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoadBuildsServerFromDocument(t *testing.T) {
	path := writeTempConfig(t, sampleDocument)

	server, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if server.BindHost() != "0.0.0.0" || server.BindPort() != 1080 {
		t.Fatalf("unexpected bind address: %s:%d", server.BindHost(), server.BindPort())
	}
	if server.MaxWorkers() != 200 {
		t.Fatalf("unexpected max workers: %d", server.MaxWorkers())
	}

	links := server.Balancer().Links()
	if len(links) != 2 {
		t.Fatalf("expected 2 links, got %d", len(links))
	}
	if links[1].Weight != 2 {
		t.Fatalf("expected second link weight 2, got %d", links[1].Weight)
	}
}

func TestLoadRejectsMissingMandatoryField(t *testing.T) {
	path := writeTempConfig(t, `{"balancer": {"links": []}}`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected an error for a document missing the mandatory strategy field")
	}
}

func TestLoadRejectsBadEnumValue(t *testing.T) {
	path := writeTempConfig(t, `{"balancer": {"strategy": "not_a_strategy", "links": [{}]}}`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected an error for an unrecognized strategy value")
	}
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	path := writeTempConfig(t, sampleDocument)
	server, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	savedPath := filepath.Join(t.TempDir(), "roundtrip.json")
	if err := Save(server, savedPath); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reloaded, err := Load(savedPath)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}

	firstJSON, _ := json.Marshal(fromBalancer(server.Balancer()))
	secondJSON, _ := json.Marshal(fromBalancer(reloaded.Balancer()))
	if string(firstJSON) != string(secondJSON) {
		t.Fatalf("round-trip mismatch:\n%s\nvs\n%s", firstJSON, secondJSON)
	}
}
