// Package config loads broker and integrator configuration from YAML files,
// CLI flags, and environment fallbacks, grounded on the teacher's
// cmd/goqtt/main.go (a flat yaml.v3-unmarshaled struct read once at
// startup) and generalized to the integrator's CLI surface.
package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/snode/goqtt/pkg/er"
)

// BrokerConfig is the broker process's full startup configuration.
type BrokerConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	TCPAddr       string `yaml:"tcp_addr"`
	TLSAddr       string `yaml:"tls_addr"`
	TLSCertFile   string `yaml:"tls_cert_file"`
	TLSKeyFile    string `yaml:"tls_key_file"`
	UnixSocket    string `yaml:"unix_socket"`
	WebSocketAddr string `yaml:"websocket_addr"`
	WebSocketPath string `yaml:"websocket_path"`

	AuthDBPath       string `yaml:"auth_db_path"`
	SessionStorePath string `yaml:"session_store_path"`
}

// LoadBrokerConfig reads and unmarshals a broker YAML config file.
func LoadBrokerConfig(path string) (*BrokerConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &er.Err{Context: "config.LoadBrokerConfig", Message: er.ErrConfigRead}
	}
	var cfg BrokerConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, &er.Err{Context: "config.LoadBrokerConfig", Message: er.ErrConfigParse}
	}
	if cfg.SessionStorePath == "" {
		cfg.SessionStorePath = os.Getenv("MQTT_SESSION_STORE")
	}
	return &cfg, nil
}

// IntegratorConfig is the integrator process's full startup configuration.
type IntegratorConfig struct {
	BrokerAddr     string `yaml:"broker_addr"`
	MappingFile    string `yaml:"mapping_file"`
	DiscoverPrefix string `yaml:"discover_prefix"`
}

// DefaultDiscoverPrefix is the integrator's default mapping-subtree scope.
const DefaultDiscoverPrefix = "iotempower"

// ResolveIntegratorConfig fills in cfg's mapping file from MQTT_MAPPING_FILE
// when the CLI flag was left unset, sets an empty discover prefix to
// DefaultDiscoverPrefix, and validates that a mapping file is ultimately
// present.
func ResolveIntegratorConfig(cfg *IntegratorConfig) error {
	if cfg.MappingFile == "" {
		cfg.MappingFile = os.Getenv("MQTT_MAPPING_FILE")
	}
	if cfg.MappingFile == "" {
		return &er.Err{Context: "config.ResolveIntegratorConfig", Message: er.ErrMissingMappingFile}
	}
	if cfg.DiscoverPrefix == "" {
		cfg.DiscoverPrefix = DefaultDiscoverPrefix
	}
	return nil
}
