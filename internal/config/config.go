package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Duration accepts TOML strings like "5s" or "1m30s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(b)))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

type Config struct {
	App       AppConfig       `toml:"app"`
	WhatsApp  WhatsAppConfig  `toml:"whatsapp"`
	Directory DirectoryConfig `toml:"directory"`
	Ledger    LedgerConfig    `toml:"ledger"`
}

type AppConfig struct {
	Name        string   `toml:"name"`
	Addr        string   `toml:"addr"`
	CorsOrigins []string `toml:"cors_origins"`
}

type WhatsAppConfig struct {
	Transport      string   `toml:"transport"`
	AuthPath       string   `toml:"auth_path"`
	Passphrase     string   `toml:"passphrase"`
	SessionID      string   `toml:"session_id"`
	DefaultNumber  string   `toml:"default_number"`
	DefaultMessage string   `toml:"default_message"`
	ReconnectDelay Duration `toml:"reconnect_delay"`
	ReinitDelay    Duration `toml:"reinit_delay"`
	BackoffMult    float64  `toml:"backoff_multiplier"`
	BackoffMax     Duration `toml:"backoff_max"`
	SendTimeout    Duration `toml:"send_timeout"`
}

type DirectoryConfig struct {
	Path string `toml:"path"`
}

type LedgerConfig struct {
	Path string `toml:"path"`
}

func Load(path string) (Config, error) {
	var cfg Config
	if err := loadToml(path, &cfg); err != nil {
		return Config{}, err
	}
	cfg.ApplyDefaults()
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) ApplyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "wanotify"
	}
	if c.App.Addr == "" {
		c.App.Addr = ":8080"
	}
	if c.WhatsApp.Transport == "" {
		c.WhatsApp.Transport = "loopback"
	}
	if c.WhatsApp.AuthPath == "" {
		c.WhatsApp.AuthPath = "./auth_state"
	}
	if c.WhatsApp.SessionID == "" {
		c.WhatsApp.SessionID = "default"
	}
	if c.WhatsApp.DefaultNumber == "" {
		c.WhatsApp.DefaultNumber = "6282217417425"
	}
	if c.WhatsApp.DefaultMessage == "" {
		c.WhatsApp.DefaultMessage = "hallo_ada_orderan_dari_lynk"
	}
	if c.WhatsApp.ReconnectDelay.Duration <= 0 {
		c.WhatsApp.ReconnectDelay.Duration = 5 * time.Second
	}
	if c.WhatsApp.ReinitDelay.Duration <= 0 {
		c.WhatsApp.ReinitDelay.Duration = time.Second
	}
	if c.WhatsApp.BackoffMult < 1.0 {
		c.WhatsApp.BackoffMult = 1.0
	}
	if c.WhatsApp.SendTimeout.Duration <= 0 {
		c.WhatsApp.SendTimeout.Duration = 30 * time.Second
	}
	if c.Directory.Path == "" {
		c.Directory.Path = "./subscribers.toml"
	}
	if c.Ledger.Path == "" {
		c.Ledger.Path = "./deliveries.jsonl"
	}
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func Validate(cfg Config) error {
	if strings.TrimSpace(cfg.App.Name) == "" {
		return fmt.Errorf("config missing app name")
	}
	if strings.TrimSpace(cfg.App.Addr) == "" {
		return fmt.Errorf("config missing app addr")
	}
	switch cfg.WhatsApp.Transport {
	case "loopback":
	default:
		return fmt.Errorf("unknown whatsapp transport %q", cfg.WhatsApp.Transport)
	}
	if strings.TrimSpace(cfg.WhatsApp.AuthPath) == "" {
		return fmt.Errorf("config missing whatsapp auth_path")
	}
	if strings.TrimSpace(cfg.WhatsApp.SessionID) == "" {
		return fmt.Errorf("config missing whatsapp session_id")
	}
	if strings.TrimSpace(cfg.Directory.Path) == "" {
		return fmt.Errorf("config missing directory path")
	}
	if strings.TrimSpace(cfg.Ledger.Path) == "" {
		return fmt.Errorf("config missing ledger path")
	}
	return nil
}
