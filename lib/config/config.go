// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// EnvVariable names the environment variable holding the config path.
const EnvVariable = "PARLEY_CONFIG"

// Environment is the deployment environment.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
)

// Transport modes.
const (
	TransportLoopback = "loopback"
	TransportWebRTC   = "webrtc"
)

// Negotiation roles for the WebRTC transport.
const (
	RoleOffer  = "offer"
	RoleAnswer = "answer"
)

// Config is the complete parley configuration.
type Config struct {
	Environment Environment `yaml:"environment"`

	Call      CallConfig      `yaml:"call"`
	Transport TransportConfig `yaml:"transport"`
	Devices   DevicesConfig   `yaml:"devices"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Log       LogConfig       `yaml:"log"`

	Development *Overrides `yaml:"development,omitempty"`
	Staging     *Overrides `yaml:"staging,omitempty"`
	Production  *Overrides `yaml:"production,omitempty"`
}

// Overrides holds the sections an environment block may replace.
// Non-zero fields win over the base values.
type Overrides struct {
	Call      *CallConfig      `yaml:"call,omitempty"`
	Transport *TransportConfig `yaml:"transport,omitempty"`
	Log       *LogConfig       `yaml:"log,omitempty"`
}

// CallConfig tunes the call session state machine.
type CallConfig struct {
	// NegotiationTimeout bounds transport negotiation. Default: 30s.
	NegotiationTimeout time.Duration `yaml:"negotiation_timeout"`

	// TickInterval is the CallTimer period. Default: 1s.
	TickInterval time.Duration `yaml:"tick_interval"`

	// LevelInterval is the AudioLevelMonitor sampling cadence.
	// Default: 100ms.
	LevelInterval time.Duration `yaml:"level_interval"`
}

// TransportConfig selects and configures the peer transport.
type TransportConfig struct {
	// Mode is "loopback" or "webrtc". Default: loopback.
	Mode string `yaml:"mode"`

	// LoopbackDelay is how long the loopback transport waits before
	// surfacing its placeholder remote stream. Default: 1.5s.
	LoopbackDelay time.Duration `yaml:"loopback_delay"`

	// SignalURL is the WebSocket URL of the signaling relay, e.g.
	// ws://127.0.0.1:7800/signal. Required for webrtc mode.
	SignalURL string `yaml:"signal_url"`

	// Localpart identifies this endpoint on the relay.
	Localpart string `yaml:"localpart"`

	// Peer is the localpart of the remote participant.
	Peer string `yaml:"peer"`

	// Role is "offer" or "answer". Default: offer.
	Role string `yaml:"role"`

	// ICEServers lists STUN/TURN servers. Empty means host candidates
	// only, which is enough on one machine or one LAN.
	ICEServers []ICEServer `yaml:"ice_servers"`
}

// ICEServer is one STUN or TURN server entry.
type ICEServer struct {
	URLs       []string `yaml:"urls"`
	Username   string   `yaml:"username"`
	Credential string   `yaml:"credential"`
}

// DevicesConfig configures the synthetic capture devices.
type DevicesConfig struct {
	// Audio and Video report whether a microphone and camera exist.
	Audio bool `yaml:"audio"`
	Video bool `yaml:"video"`

	// DenyAudio and DenyVideo make the permission prompt refuse.
	DenyAudio bool `yaml:"deny_audio"`
	DenyVideo bool `yaml:"deny_video"`

	// ToneAmplitude is the synthetic microphone's signal level as a
	// fraction of full scale, 0..1. Default: 0.4.
	ToneAmplitude float64 `yaml:"tone_amplitude"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Listen is the address for /metrics. Empty disables the endpoint.
	Listen string `yaml:"listen"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is debug, info, warn or error. Default: info.
	Level string `yaml:"level"`
}

// Default returns the configuration every file is merged onto.
func Default() *Config {
	return &Config{
		Environment: Development,
		Call: CallConfig{
			NegotiationTimeout: 30 * time.Second,
			TickInterval:       time.Second,
			LevelInterval:      100 * time.Millisecond,
		},
		Transport: TransportConfig{
			Mode:          TransportLoopback,
			LoopbackDelay: 1500 * time.Millisecond,
			Role:          RoleOffer,
		},
		Devices: DevicesConfig{
			Audio:         true,
			Video:         true,
			ToneAmplitude: 0.4,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads the file named by PARLEY_CONFIG.
func Load() (*Config, error) {
	path := os.Getenv(EnvVariable)
	if path == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your parley.yaml config file, or use --config", EnvVariable)
	}
	return LoadFile(path)
}

// LoadFile reads a config file, applies the environment section and
// variable expansion, and validates the result.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := Default()
	if err := cfg.decode(path, data); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) decode(path string, data []byte) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		data = jsonc.ToJSON(data)
	}
	return yaml.Unmarshal(data, c)
}

func (c *Config) applyEnvironmentOverrides() {
	var overrides *Overrides
	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
	}
	if overrides == nil {
		return
	}

	if call := overrides.Call; call != nil {
		if call.NegotiationTimeout != 0 {
			c.Call.NegotiationTimeout = call.NegotiationTimeout
		}
		if call.TickInterval != 0 {
			c.Call.TickInterval = call.TickInterval
		}
		if call.LevelInterval != 0 {
			c.Call.LevelInterval = call.LevelInterval
		}
	}

	if transport := overrides.Transport; transport != nil {
		if transport.Mode != "" {
			c.Transport.Mode = transport.Mode
		}
		if transport.LoopbackDelay != 0 {
			c.Transport.LoopbackDelay = transport.LoopbackDelay
		}
		if transport.SignalURL != "" {
			c.Transport.SignalURL = transport.SignalURL
		}
		if transport.Localpart != "" {
			c.Transport.Localpart = transport.Localpart
		}
		if transport.Peer != "" {
			c.Transport.Peer = transport.Peer
		}
		if transport.Role != "" {
			c.Transport.Role = transport.Role
		}
		if len(transport.ICEServers) > 0 {
			c.Transport.ICEServers = transport.ICEServers
		}
	}

	if overrides.Log != nil && overrides.Log.Level != "" {
		c.Log.Level = overrides.Log.Level
	}
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func (c *Config) expandVariables() {
	c.Transport.SignalURL = expandVars(c.Transport.SignalURL)
	for index := range c.Transport.ICEServers {
		server := &c.Transport.ICEServers[index]
		server.Username = expandVars(server.Username)
		server.Credential = expandVars(server.Credential)
	}
}

func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		return parts[2]
	})
}

// Validate checks the configuration for errors. All problems are
// reported together.
func (c *Config) Validate() error {
	var errs []error

	if !slices.Contains([]Environment{Development, Staging, Production}, c.Environment) {
		errs = append(errs, fmt.Errorf("invalid environment: %q", c.Environment))
	}

	if c.Call.NegotiationTimeout <= 0 {
		errs = append(errs, errors.New("call.negotiation_timeout must be positive"))
	}
	if c.Call.TickInterval <= 0 {
		errs = append(errs, errors.New("call.tick_interval must be positive"))
	}
	if c.Call.LevelInterval <= 0 {
		errs = append(errs, errors.New("call.level_interval must be positive"))
	}

	switch c.Transport.Mode {
	case TransportLoopback:
		if c.Transport.LoopbackDelay < 0 {
			errs = append(errs, errors.New("transport.loopback_delay must not be negative"))
		}
	case TransportWebRTC:
		if c.Transport.SignalURL == "" {
			errs = append(errs, errors.New("transport.signal_url is required for webrtc mode"))
		}
		if c.Transport.Localpart == "" {
			errs = append(errs, errors.New("transport.localpart is required for webrtc mode"))
		}
		if c.Transport.Peer == "" {
			errs = append(errs, errors.New("transport.peer is required for webrtc mode"))
		}
		if c.Transport.Localpart != "" && c.Transport.Localpart == c.Transport.Peer {
			errs = append(errs, errors.New("transport.peer must differ from transport.localpart"))
		}
		if c.Transport.Role != RoleOffer && c.Transport.Role != RoleAnswer {
			errs = append(errs, fmt.Errorf("transport.role must be %q or %q", RoleOffer, RoleAnswer))
		}
	default:
		errs = append(errs, fmt.Errorf("transport.mode must be %q or %q, got %q",
			TransportLoopback, TransportWebRTC, c.Transport.Mode))
	}

	for index, server := range c.Transport.ICEServers {
		if len(server.URLs) == 0 {
			errs = append(errs, fmt.Errorf("transport.ice_servers[%d].urls is empty", index))
		}
	}

	if c.Devices.ToneAmplitude < 0 || c.Devices.ToneAmplitude > 1 {
		errs = append(errs, errors.New("devices.tone_amplitude must be within 0..1"))
	}

	if !slices.Contains([]string{"debug", "info", "warn", "error"}, c.Log.Level) {
		errs = append(errs, fmt.Errorf("log.level must be debug, info, warn or error, got %q", c.Log.Level))
	}

	return errors.Join(errs...)
}
