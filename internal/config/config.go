// Package config loads the runtime configuration from a yaml file and
// environment overrides.
package config

import (
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env    string       `yaml:"env" env:"PEERCALL_ENV" env-default:"local"`
	Relay  RelayConfig  `yaml:"relay"`
	Client ClientConfig `yaml:"client"`
	WebRTC WebRTCConfig `yaml:"webrtc"`
	Call   CallConfig   `yaml:"call"`
}

type RelayConfig struct {
	Address string `yaml:"address" env:"PEERCALL_RELAY_ADDRESS" env-default:""`
}

type ClientConfig struct {
	RelayURL string `yaml:"relay_url" env:"PEERCALL_RELAY_URL" env-default:""`
	Identity string `yaml:"identity" env:"PEERCALL_IDENTITY" env-default:""`
}

type WebRTCConfig struct {
	STUNServers []string `yaml:"stun_servers" env:"PEERCALL_STUN_SERVERS" env-default:""`
}

type CallConfig struct {
	// RingTimeout bounds how long a call may ring unanswered; zero
	// disables the bound.
	RingTimeout time.Duration `yaml:"ring_timeout" env:"PEERCALL_RING_TIMEOUT" env-default:"30s"`

	// SendEndCall enables the explicit end_call teardown extension.
	SendEndCall bool `yaml:"send_end_call" env:"PEERCALL_SEND_END_CALL" env-default:"false"`
}

// Load reads the config file at path when it exists, falling back to
// environment variables and defaults otherwise.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := cleanenv.ReadConfig(path, &cfg); err != nil {
				return nil, err
			}
			cfg.setDefaults()
			return &cfg, nil
		}
	}

	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, err
	}
	cfg.setDefaults()
	return &cfg, nil
}

// MustLoad is Load for main functions: it panics on error.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic("cannot read config: " + err.Error())
	}
	return cfg
}

func (c *Config) setDefaults() {
	if c.Relay.Address == "" {
		c.Relay.Address = ":3000"
	}
	if c.Client.RelayURL == "" {
		c.Client.RelayURL = "ws://127.0.0.1:3000/ws"
	}
	if len(c.WebRTC.STUNServers) == 0 {
		c.WebRTC.STUNServers = []string{
			"stun:stun.l.google.com:19302",
			"stun:stun1.l.google.com:19302",
		}
	}
}
