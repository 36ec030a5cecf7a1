package util

import (
	_ "embed"
	"fmt"
	"gopkg.in/yaml.v3"
	"log"
	"os"
	"strconv"
	"strings"
)

const Name = "federation"
const ConfigFileName = "config.yaml"

//go:embed config_default.yaml
var embeddedConfig []byte

type AppConfig struct {
	Conf struct {
		Host         string
		HttpPort     int      `yaml:"httpPort"`
		SslDomain    string   `yaml:"sslDomain"`
		WithAp       bool     `yaml:"withAp"`
		WithDiaspora bool     `yaml:"withDiaspora"`
		DbPath       string   `yaml:"dbPath"`
		KeyFile      string   `yaml:"keyFile"`
		Protocols    []string `yaml:"protocols"`
		CacheHours   int      `yaml:"cacheHours"`
		// LocalActors are extra identifiers, URIs or handles, followable
		// on this server besides those under SslDomain.
		LocalActors []string `yaml:"localActors"`
	}
}

func ReadConf() (*AppConfig, error) {

	c := &AppConfig{}

	// Try to resolve config file path (local first, then user dir)
	configPath := ResolveFilePath(ConfigFileName)

	buf, err := os.ReadFile(configPath)
	if err != nil {
		// If file doesn't exist, use embedded config and create user config file
		log.Printf("Config file not found at %s, using embedded defaults", configPath)
		buf = embeddedConfig

		configDir, dirErr := GetConfigDir()
		if dirErr == nil {
			userConfigPath := configDir + "/" + ConfigFileName
			writeErr := os.WriteFile(userConfigPath, embeddedConfig, 0644)
			if writeErr != nil {
				log.Printf("Warning: could not write default config to %s: %v", userConfigPath, writeErr)
			} else {
				log.Printf("Created default config file at %s", userConfigPath)
			}
		}
	}

	err = yaml.Unmarshal(buf, c)
	if err != nil {
		return nil, fmt.Errorf("in config file: %w", err)
	}

	envHost := os.Getenv("FEDERATION_HOST")
	envHttpPort := os.Getenv("FEDERATION_HTTPPORT")
	envSslDomain := os.Getenv("FEDERATION_SSLDOMAIN")
	envWithAp := os.Getenv("FEDERATION_WITH_AP")
	envWithDiaspora := os.Getenv("FEDERATION_WITH_DIASPORA")
	envDb := os.Getenv("FEDERATION_DB")
	envProtocols := os.Getenv("FEDERATION_PROTOCOLS")
	envLocalActors := os.Getenv("FEDERATION_LOCAL_ACTORS")

	if envHost != "" {
		c.Conf.Host = envHost
	}

	if envHttpPort != "" {
		v, err := strconv.Atoi(envHttpPort)
		if err != nil {
			log.Printf("Ignoring FEDERATION_HTTPPORT: %v", err)
		} else {
			c.Conf.HttpPort = v
		}
	}

	if envSslDomain != "" {
		c.Conf.SslDomain = envSslDomain
	}

	if envWithAp != "" {
		c.Conf.WithAp = envWithAp == "true"
	}

	if envWithDiaspora != "" {
		c.Conf.WithDiaspora = envWithDiaspora == "true"
	}

	if envDb != "" {
		c.Conf.DbPath = envDb
	}

	if envProtocols != "" {
		c.Conf.Protocols = splitList(envProtocols)
	}

	if envLocalActors != "" {
		c.Conf.LocalActors = splitList(envLocalActors)
	}

	if c.Conf.CacheHours <= 0 {
		c.Conf.CacheHours = 24
	}

	return c, nil
}

// ProtocolOrder returns the enabled protocols in identification priority
// order. Protocols not listed explicitly follow in their default order.
func (c *AppConfig) ProtocolOrder() []string {
	enabled := map[string]bool{
		"activitypub": c.Conf.WithAp,
		"diaspora":    c.Conf.WithDiaspora,
	}
	var order []string
	seen := map[string]bool{}
	for _, p := range append(append([]string{}, c.Conf.Protocols...), "activitypub", "diaspora") {
		p = strings.ToLower(p)
		if enabled[p] && !seen[p] {
			order = append(order, p)
			seen[p] = true
		}
	}
	return order
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
