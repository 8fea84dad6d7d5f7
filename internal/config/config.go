// Package config loads the romectl configuration file.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nanoncore/nano-rome/types"
	"github.com/nanoncore/nano-rome/vendors/rome"
)

// Environment variables that override the credentials in the file
const (
	EnvUsername = "ROME_USERNAME"
	EnvPassword = "ROME_PASSWORD"
)

// Config is the structure of romectl.yaml
type Config struct {
	// Address is "<host>[:<second host>]:<A|B|Q|XY>"
	Address  string         `yaml:"address"`
	Username string         `yaml:"username"`
	Password string         `yaml:"password"`
	Protocol types.Protocol `yaml:"protocol"`
	Port     int            `yaml:"port"`

	// CommandTimeout bounds a single CLI exchange
	CommandTimeout time.Duration `yaml:"command_timeout"`

	// PortTimeout is the pending-queue budget per logical port
	PortTimeout  time.Duration `yaml:"port_timeout"`
	PollInterval time.Duration `yaml:"poll_interval"`

	SevereFailureMarker string         `yaml:"severe_failure_marker"`
	Recovery            RecoveryConfig `yaml:"recovery"`

	// BladeRemap rewrites legacy blade letters, e.g. {C: Q}
	BladeRemap map[string]string `yaml:"blade_remap"`

	LogLevel string `yaml:"log_level"`

	Metadata map[string]string `yaml:"metadata"`
}

// RecoveryConfig is the severe failure recovery sequence
type RecoveryConfig struct {
	Rehome        string        `yaml:"rehome"`
	Done          string        `yaml:"done"`
	RehomeTimeout time.Duration `yaml:"rehome_timeout"`
	Enable        string        `yaml:"enable"`
}

// Default returns the configuration used for unset fields
func Default() Config {
	return Config{
		Protocol:            types.ProtocolSSH,
		CommandTimeout:      30 * time.Second,
		PortTimeout:         rome.DefaultPortTimeout,
		PollInterval:        rome.DefaultPollInterval,
		SevereFailureMarker: rome.DefaultSevereFailureMarker,
		Recovery: RecoveryConfig{
			Rehome:        rome.DefaultRehomeCommand,
			Done:          rome.DefaultRehomeDone,
			RehomeTimeout: rome.DefaultRehomeTimeout,
			Enable:        rome.DefaultEnableCommand,
		},
		LogLevel: "info",
	}
}

// Load reads path on top of Default and applies the environment. An empty
// path or a missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("failed to parse %s: %w", path, err)
			}
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

// Parse is Load for an in-memory document
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v, ok := os.LookupEnv(EnvUsername); ok {
		c.Username = v
	}
	if v, ok := os.LookupEnv(EnvPassword); ok {
		c.Password = v
	}
}

// Validate checks the fields the driver cannot default
func (c Config) Validate() error {
	if _, err := rome.ParseAddress(c.Address); err != nil {
		return err
	}
	switch c.Protocol {
	case types.ProtocolSSH, types.ProtocolTelnet:
	default:
		return fmt.Errorf("unsupported protocol %q", c.Protocol)
	}
	if c.PortTimeout <= 0 {
		return fmt.Errorf("port_timeout must be positive")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive")
	}
	return nil
}

// Equipment returns the equipment template shared by every controller.
// The factory replaces Address per host.
func (c Config) Equipment() *types.EquipmentConfig {
	meta := make(map[string]string, len(c.Metadata))
	for k, v := range c.Metadata {
		meta[k] = v
	}
	return &types.EquipmentConfig{
		Name:     c.Address,
		Type:     types.EquipmentTypeOCS,
		Vendor:   types.VendorRome,
		Address:  c.Address,
		Port:     c.Port,
		Protocol: c.Protocol,
		Username: c.Username,
		Password: c.Password,
		Timeout:  c.CommandTimeout,
		Metadata: meta,
	}
}

// Options returns the adapter options the file describes
func (c Config) Options() []rome.Option {
	remap := make(rome.BladeRemap, len(c.BladeRemap))
	for from, to := range c.BladeRemap {
		remap[strings.ToUpper(from)] = strings.ToUpper(to)
	}
	return []rome.Option{
		rome.WithPortTimeout(c.PortTimeout),
		rome.WithPollInterval(c.PollInterval),
		rome.WithSevereFailureMarker(c.SevereFailureMarker),
		rome.WithRecovery(rome.Recovery{
			Rehome:        c.Recovery.Rehome,
			Done:          c.Recovery.Done,
			RehomeTimeout: c.Recovery.RehomeTimeout,
			Enable:        c.Recovery.Enable,
		}),
		rome.WithBladeRemap(remap),
	}
}
