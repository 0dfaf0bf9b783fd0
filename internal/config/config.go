// Package config loads the gateway configuration from a YAML, TOML, or JSON
// file (or URL), selected by extension, with environment variable overrides.
package config

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config is the full gateway configuration.
type Config struct {
	// XMPP-facing server settings
	Server struct {
		// Name is the XMPP domain this gateway serves; clients must open
		// their stream to this name.
		Name   string `yaml:"name" toml:"name" json:"name" env:"XMPP_SERVER_NAME"`
		Listen string `yaml:"listen" toml:"listen" json:"listen" env:"XMPP_LISTEN"`
	} `yaml:"server" toml:"server" json:"server"`

	TLS struct {
		Cert string `yaml:"cert" toml:"cert" json:"cert" env:"XMPP_TLS_CERT"`
		Key  string `yaml:"key" toml:"key" json:"key" env:"XMPP_TLS_KEY"`
		// Require forces STARTTLS before SASL is offered.
		Require bool `yaml:"require" toml:"require" json:"require" env:"XMPP_TLS_REQUIRE"`
	} `yaml:"tls" toml:"tls" json:"tls"`

	Gateway struct {
		// HistoryLimit is the default maxstanzas for room joins that do not
		// request one.
		HistoryLimit int `yaml:"history_limit" toml:"history_limit" json:"history_limit" env:"XMPP_HISTORY_LIMIT"`
		// BufferSize caps each channel's replayable message buffer.
		BufferSize int `yaml:"buffer_size" toml:"buffer_size" json:"buffer_size" env:"XMPP_BUFFER_SIZE"`
		// KeepaliveSeconds is the interval between whitespace keepalives.
		KeepaliveSeconds int `yaml:"keepalive_seconds" toml:"keepalive_seconds" json:"keepalive_seconds" env:"XMPP_KEEPALIVE_SECONDS"`
		// PendingJoinSeconds is how long a room join may wait for the IRC
		// side to finish joining before it is failed back to the client.
		PendingJoinSeconds int `yaml:"pending_join_seconds" toml:"pending_join_seconds" json:"pending_join_seconds" env:"XMPP_PENDING_JOIN_SECONDS"`
	} `yaml:"gateway" toml:"gateway" json:"gateway"`

	// Web portal / metrics endpoint
	Web struct {
		Listen       string   `yaml:"listen" toml:"listen" json:"listen" env:"XMPP_WEB_LISTEN"`
		BearerTokens []string `yaml:"bearer_tokens" toml:"bearer_tokens" json:"bearer_tokens"`
	} `yaml:"web" toml:"web" json:"web"`

	// Bouncer accounts and their IRC networks
	Accounts []AccountConfig `yaml:"accounts" toml:"accounts" json:"accounts"`

	// Source the configuration was loaded from, kept for reloads.
	Source string `yaml:"-" toml:"-" json:"-"`
}

// AccountConfig describes one bouncer account.
type AccountConfig struct {
	Username string `yaml:"username" toml:"username" json:"username"`
	// PasswordHash is a bcrypt hash; Password is a plaintext fallback for
	// development setups. PasswordHash wins when both are set.
	Password     string          `yaml:"password" toml:"password" json:"password"`
	PasswordHash string          `yaml:"password_hash" toml:"password_hash" json:"password_hash"`
	Nickname     string          `yaml:"nickname" toml:"nickname" json:"nickname"`
	RealName     string          `yaml:"realname" toml:"realname" json:"realname"`
	Networks     []NetworkConfig `yaml:"networks" toml:"networks" json:"networks"`
}

// NetworkConfig describes one IRC network connection for an account.
type NetworkConfig struct {
	Name     string   `yaml:"name" toml:"name" json:"name"`
	Server   string   `yaml:"server" toml:"server" json:"server"`
	Port     int      `yaml:"port" toml:"port" json:"port"`
	TLS      bool     `yaml:"tls" toml:"tls" json:"tls"`
	Nick     string   `yaml:"nick" toml:"nick" json:"nick"`
	Username string   `yaml:"username" toml:"username" json:"username"`
	Channels []string `yaml:"channels" toml:"channels" json:"channels"`
}

// Load loads configuration from a file or URL.
func Load(source string) (*Config, error) {
	cfg := &Config{Source: source}

	// Defaults
	cfg.Server.Name = "localhost"
	cfg.Server.Listen = ":5222"
	cfg.Gateway.HistoryLimit = 25
	cfg.Gateway.BufferSize = 500
	cfg.Gateway.KeepaliveSeconds = 30
	cfg.Gateway.PendingJoinSeconds = 120

	if err := cfg.loadFromSource(source); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// Keepalive returns the keepalive interval as a duration.
func (c *Config) Keepalive() time.Duration {
	return time.Duration(c.Gateway.KeepaliveSeconds) * time.Second
}

// PendingJoinTimeout returns the pending room-join timeout as a duration.
func (c *Config) PendingJoinTimeout() time.Duration {
	return time.Duration(c.Gateway.PendingJoinSeconds) * time.Second
}

// loadFromSource loads configuration bytes from a file or URL and parses
// them by extension.
func (c *Config) loadFromSource(source string) error {
	var data []byte
	var err error

	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		resp, err := http.Get(source)
		if err != nil {
			return fmt.Errorf("failed to load config from URL: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("failed to load config from URL, status: %s", resp.Status)
		}

		data, err = io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read config from URL: %v", err)
		}
	} else {
		data, err = os.ReadFile(source)
		if err != nil {
			return fmt.Errorf("failed to read config file: %v", err)
		}
	}

	switch {
	case strings.HasSuffix(source, ".toml"):
		err = toml.Unmarshal(data, c)
	case strings.HasSuffix(source, ".json"):
		err = json.Unmarshal(data, c)
	default:
		// YAML is the default format
		err = yaml.Unmarshal(data, c)
	}

	if err != nil {
		return fmt.Errorf("failed to parse config: %v", err)
	}

	c.Source = source
	return nil
}

// applyEnvOverrides applies environment variable overrides to fields tagged
// with `env`.
func applyEnvOverrides(cfg *Config) {
	applyEnvOverridesValue(reflect.ValueOf(cfg).Elem())
}

func applyEnvOverridesValue(v reflect.Value) {
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fieldValue := v.Field(i)

		if field.PkgPath != "" {
			continue
		}

		if envTag := field.Tag.Get("env"); envTag != "" {
			if envValue, exists := os.LookupEnv(envTag); exists {
				setFieldFromEnv(fieldValue, envValue)
			}
		} else if field.Type.Kind() == reflect.Struct {
			applyEnvOverridesValue(fieldValue)
		}
	}
}

func setFieldFromEnv(field reflect.Value, envValue string) {
	switch field.Kind() {
	case reflect.String:
		field.SetString(envValue)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if v, err := strconv.ParseInt(envValue, 10, 64); err == nil {
			field.SetInt(v)
		}
	case reflect.Bool:
		if v, err := strconv.ParseBool(envValue); err == nil {
			field.SetBool(v)
		}
	}
}
