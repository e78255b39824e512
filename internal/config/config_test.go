package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadBrokerConfigRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")
	yml := "name: snode\nversion: \"1.0\"\ntcp_addr: :1883\nauth_db_path: ./store/store.db\n"
	if err := os.WriteFile(path, []byte(yml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadBrokerConfig(path)
	if err != nil {
		t.Fatalf("LoadBrokerConfig: %v", err)
	}
	if cfg.Name != "snode" || cfg.TCPAddr != ":1883" || cfg.AuthDBPath != "./store/store.db" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestLoadBrokerConfigMissingFile(t *testing.T) {
	if _, err := LoadBrokerConfig(filepath.Join(t.TempDir(), "missing.yml")); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}

func TestLoadBrokerConfigSessionStoreEnvFallback(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")
	if err := os.WriteFile(path, []byte("name: snode\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("MQTT_SESSION_STORE", "/var/lib/snode/sessions")
	cfg, err := LoadBrokerConfig(path)
	if err != nil {
		t.Fatalf("LoadBrokerConfig: %v", err)
	}
	if cfg.SessionStorePath != "/var/lib/snode/sessions" {
		t.Fatalf("expected env fallback for session store path, got %q", cfg.SessionStorePath)
	}
}

func TestResolveIntegratorConfigRequiresMappingFile(t *testing.T) {
	t.Setenv("MQTT_MAPPING_FILE", "")
	cfg := &IntegratorConfig{}
	if err := ResolveIntegratorConfig(cfg); err == nil {
		t.Fatal("expected an error when no mapping file is configured")
	}
}

func TestResolveIntegratorConfigEnvFallbackAndDefaultPrefix(t *testing.T) {
	t.Setenv("MQTT_MAPPING_FILE", "/etc/snode/mapping.yml")
	cfg := &IntegratorConfig{}
	if err := ResolveIntegratorConfig(cfg); err != nil {
		t.Fatalf("ResolveIntegratorConfig: %v", err)
	}
	if cfg.MappingFile != "/etc/snode/mapping.yml" {
		t.Fatalf("expected mapping file from env, got %q", cfg.MappingFile)
	}
	if cfg.DiscoverPrefix != DefaultDiscoverPrefix {
		t.Fatalf("expected default discover prefix, got %q", cfg.DiscoverPrefix)
	}
}

func TestResolveIntegratorConfigPrefersExplicitValues(t *testing.T) {
	t.Setenv("MQTT_MAPPING_FILE", "/etc/snode/mapping.yml")
	cfg := &IntegratorConfig{MappingFile: "/custom/mapping.yml", DiscoverPrefix: "custom"}
	if err := ResolveIntegratorConfig(cfg); err != nil {
		t.Fatalf("ResolveIntegratorConfig: %v", err)
	}
	if cfg.MappingFile != "/custom/mapping.yml" || cfg.DiscoverPrefix != "custom" {
		t.Fatalf("expected explicit values preserved, got %+v", cfg)
	}
}
