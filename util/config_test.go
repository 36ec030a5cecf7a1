package util

import (
	"os"
	"reflect"
	"testing"
)

func TestConfigConstants(t *testing.T) {
	if Name != "federation" {
		t.Errorf("Expected Name 'federation', got '%s'", Name)
	}

	if ConfigFileName != "config.yaml" {
		t.Errorf("Expected ConfigFileName 'config.yaml', got '%s'", ConfigFileName)
	}
}

func writeTestConfig(t *testing.T, content string) {
	t.Helper()
	if err := os.WriteFile("config.yaml", []byte(content), 0644); err != nil {
		t.Fatalf("Failed to create test config: %v", err)
	}
	t.Cleanup(func() { os.Remove("config.yaml") })
}

func TestReadConfWithYaml(t *testing.T) {
	writeTestConfig(t, `
conf:
  host: 127.0.0.1
  httpPort: 9999
  sslDomain: example.com
  withAp: true
  withDiaspora: false
  dbPath: test.db
  protocols: [diaspora, activitypub]
  cacheHours: 6
`)

	config, err := ReadConf()
	if err != nil {
		t.Fatalf("ReadConf failed: %v", err)
	}

	if config.Conf.Host != "127.0.0.1" {
		t.Errorf("Expected Host '127.0.0.1', got '%s'", config.Conf.Host)
	}
	if config.Conf.HttpPort != 9999 {
		t.Errorf("Expected HttpPort 9999, got %d", config.Conf.HttpPort)
	}
	if config.Conf.SslDomain != "example.com" {
		t.Errorf("Expected SslDomain 'example.com', got '%s'", config.Conf.SslDomain)
	}
	if !config.Conf.WithAp {
		t.Error("Expected WithAp to be true")
	}
	if config.Conf.WithDiaspora {
		t.Error("Expected WithDiaspora to be false")
	}
	if config.Conf.DbPath != "test.db" {
		t.Errorf("Expected DbPath 'test.db', got '%s'", config.Conf.DbPath)
	}
	if config.Conf.CacheHours != 6 {
		t.Errorf("Expected CacheHours 6, got %d", config.Conf.CacheHours)
	}
}

func TestReadConfWithEnvOverrides(t *testing.T) {
	writeTestConfig(t, `
conf:
  host: 127.0.0.1
  httpPort: 9999
  sslDomain: example.com
  withAp: false
  withDiaspora: true
`)

	t.Setenv("FEDERATION_HOST", "192.168.1.1")
	t.Setenv("FEDERATION_HTTPPORT", "8080")
	t.Setenv("FEDERATION_SSLDOMAIN", "test.example.com")
	t.Setenv("FEDERATION_WITH_AP", "true")
	t.Setenv("FEDERATION_WITH_DIASPORA", "false")
	t.Setenv("FEDERATION_DB", "/tmp/federation.db")
	t.Setenv("FEDERATION_PROTOCOLS", "activitypub, diaspora")
	t.Setenv("FEDERATION_LOCAL_ACTORS", "bob@test.example.com")

	config, err := ReadConf()
	if err != nil {
		t.Fatalf("ReadConf failed: %v", err)
	}

	if config.Conf.Host != "192.168.1.1" {
		t.Errorf("Expected Host '192.168.1.1' from env, got '%s'", config.Conf.Host)
	}
	if config.Conf.HttpPort != 8080 {
		t.Errorf("Expected HttpPort 8080 from env, got %d", config.Conf.HttpPort)
	}
	if config.Conf.SslDomain != "test.example.com" {
		t.Errorf("Expected SslDomain 'test.example.com' from env, got '%s'", config.Conf.SslDomain)
	}
	if !config.Conf.WithAp {
		t.Error("Expected WithAp to be true from env")
	}
	if config.Conf.WithDiaspora {
		t.Error("Expected WithDiaspora to be false from env")
	}
	if config.Conf.DbPath != "/tmp/federation.db" {
		t.Errorf("Expected DbPath from env, got '%s'", config.Conf.DbPath)
	}
	if want := []string{"activitypub", "diaspora"}; !reflect.DeepEqual(config.Conf.Protocols, want) {
		t.Errorf("Expected Protocols %v from env, got %v", want, config.Conf.Protocols)
	}
	if want := []string{"bob@test.example.com"}; !reflect.DeepEqual(config.Conf.LocalActors, want) {
		t.Errorf("Expected LocalActors %v from env, got %v", want, config.Conf.LocalActors)
	}
}

func TestReadConfInvalidYaml(t *testing.T) {
	writeTestConfig(t, `
conf:
  host: 127.0.0.1
  httpPort: not_a_number
  invalid yaml structure
`)

	if _, err := ReadConf(); err == nil {
		t.Error("Expected error when parsing invalid YAML")
	}
}

func TestReadConfInvalidPortEnv(t *testing.T) {
	writeTestConfig(t, `
conf:
  host: 127.0.0.1
  httpPort: 9999
`)
	t.Setenv("FEDERATION_HTTPPORT", "not_a_number")

	config, err := ReadConf()
	if err != nil {
		t.Fatalf("ReadConf failed: %v", err)
	}

	// An unparsable env value keeps the YAML value
	if config.Conf.HttpPort != 9999 {
		t.Errorf("Expected HttpPort 9999, got %d", config.Conf.HttpPort)
	}
}

func TestReadConfDefaultCacheHours(t *testing.T) {
	writeTestConfig(t, `
conf:
  host: 127.0.0.1
`)

	config, err := ReadConf()
	if err != nil {
		t.Fatalf("ReadConf failed: %v", err)
	}
	if config.Conf.CacheHours != 24 {
		t.Errorf("Expected default CacheHours 24, got %d", config.Conf.CacheHours)
	}
}

func TestProtocolOrder(t *testing.T) {
	tests := []struct {
		name      string
		ap        bool
		diaspora  bool
		protocols []string
		want      []string
	}{
		{name: "default order", ap: true, diaspora: true, want: []string{"activitypub", "diaspora"}},
		{name: "explicit priority", ap: true, diaspora: true, protocols: []string{"Diaspora"}, want: []string{"diaspora", "activitypub"}},
		{name: "disabled protocol skipped", ap: false, diaspora: true, protocols: []string{"activitypub", "diaspora"}, want: []string{"diaspora"}},
		{name: "unknown names ignored", ap: true, protocols: []string{"ostatus"}, want: []string{"activitypub"}},
		{name: "nothing enabled", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := &AppConfig{}
			config.Conf.WithAp = tt.ap
			config.Conf.WithDiaspora = tt.diaspora
			config.Conf.Protocols = tt.protocols

			if got := config.ProtocolOrder(); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}
