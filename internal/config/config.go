package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration decodes YAML duration strings like "2s" or "150ms". A bare
// integer is taken as seconds.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		v, perr := time.ParseDuration(s)
		if perr != nil {
			return fmt.Errorf("bad duration %q: %v", s, perr)
		}
		*d = Duration(v)
		return nil
	}
	var n int64
	if err := value.Decode(&n); err != nil {
		return fmt.Errorf("bad duration value")
	}
	*d = Duration(time.Duration(n) * time.Second)
	return nil
}

func (d Duration) String() string { return time.Duration(d).String() }

type Config struct {
	AppName    string           `yaml:"app_name"`
	Location   LocationConfig   `yaml:"location"`
	Permission PermissionConfig `yaml:"permission"`
	Display    DisplayConfig    `yaml:"display"`
	Share      ShareConfig      `yaml:"share"`
	Web        WebConfig        `yaml:"web"`
	Button     ButtonConfig     `yaml:"button"`
}

type LocationConfig struct {
	// Source selects fix ingest: "sim", "nmea" or "gpsd".
	Source      string   `yaml:"source"`
	Interval    Duration `yaml:"interval"`
	MinInterval Duration `yaml:"min_interval"`
	// Accuracy is "highest" or "balanced".
	Accuracy   string     `yaml:"accuracy"`
	WaitForFix bool       `yaml:"wait_for_fix"`
	NMEA       NMEAConfig `yaml:"nmea"`
	GPSD       GPSDConfig `yaml:"gpsd"`
	Sim        SimConfig  `yaml:"sim"`
}

type NMEAConfig struct {
	Device string `yaml:"device"`
	Baud   int    `yaml:"baud"`
}

type GPSDConfig struct {
	Addr string `yaml:"addr"`
}

type SimConfig struct {
	CruiseKmh   int `yaml:"cruise_kmh"`
	WarmupFixes int `yaml:"warmup_fixes"`
}

type PermissionConfig struct {
	// Mode is "granted", "denied" or "ask". "ask" routes requests through
	// the web UI's permission panel.
	Mode string `yaml:"mode"`
}

type DisplayConfig struct {
	Console bool       `yaml:"console"`
	OLED    OLEDConfig `yaml:"oled"`
}

type OLEDConfig struct {
	Enable  bool   `yaml:"enable"`
	I2CAddr uint16 `yaml:"i2c_addr"`
}

type ShareConfig struct {
	Default string          `yaml:"default"`
	MQTT    ShareMQTTConfig `yaml:"mqtt"`
	File    ShareFileConfig `yaml:"file"`
}

type ShareMQTTConfig struct {
	Enable   bool   `yaml:"enable"`
	Broker   string `yaml:"broker"`
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"client_id"`
}

type ShareFileConfig struct {
	Enable bool   `yaml:"enable"`
	Path   string `yaml:"path"`
}

type WebConfig struct {
	Enable bool   `yaml:"enable"`
	Addr   string `yaml:"addr"`
}

type ButtonConfig struct {
	Enable   bool     `yaml:"enable"`
	Pin      int      `yaml:"pin"`
	Debounce Duration `yaml:"debounce"`
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}

	cfg.applyEnv()

	if cfg.AppName == "" {
		cfg.AppName = "speedo"
	}

	if cfg.Location.Source == "" {
		cfg.Location.Source = "sim"
	}
	switch cfg.Location.Source {
	case "sim", "nmea", "gpsd":
	default:
		return Config{}, fmt.Errorf("location.source must be sim, nmea or gpsd (got %q)", cfg.Location.Source)
	}
	if cfg.Location.Interval <= 0 {
		cfg.Location.Interval = Duration(2 * time.Second)
	}
	if cfg.Location.MinInterval <= 0 {
		cfg.Location.MinInterval = Duration(1 * time.Second)
	}
	if cfg.Location.MinInterval > cfg.Location.Interval {
		return Config{}, fmt.Errorf("location.min_interval must not exceed location.interval")
	}
	if cfg.Location.Accuracy == "" {
		cfg.Location.Accuracy = "highest"
	}
	switch cfg.Location.Accuracy {
	case "highest", "balanced":
	default:
		return Config{}, fmt.Errorf("location.accuracy must be highest or balanced (got %q)", cfg.Location.Accuracy)
	}
	if cfg.Location.NMEA.Baud == 0 {
		cfg.Location.NMEA.Baud = 9600
	}
	if cfg.Location.GPSD.Addr == "" {
		cfg.Location.GPSD.Addr = "127.0.0.1:2947"
	}
	if cfg.Location.Sim.CruiseKmh <= 0 {
		cfg.Location.Sim.CruiseKmh = 36
	}
	if cfg.Location.Sim.WarmupFixes < 0 {
		cfg.Location.Sim.WarmupFixes = 0
	}

	if cfg.Permission.Mode == "" {
		cfg.Permission.Mode = "ask"
	}
	switch cfg.Permission.Mode {
	case "granted", "denied", "ask":
	default:
		return Config{}, fmt.Errorf("permission.mode must be granted, denied or ask (got %q)", cfg.Permission.Mode)
	}
	if cfg.Permission.Mode == "ask" && !cfg.Web.Enable {
		return Config{}, fmt.Errorf("permission.mode=ask requires web.enable (the web UI answers requests)")
	}

	if cfg.Share.MQTT.Enable {
		if cfg.Share.MQTT.Broker == "" {
			return Config{}, fmt.Errorf("share.mqtt.broker is required when share.mqtt.enable is true")
		}
		if cfg.Share.MQTT.Topic == "" {
			cfg.Share.MQTT.Topic = "speedo/share"
		}
		if cfg.Share.MQTT.ClientID == "" {
			cfg.Share.MQTT.ClientID = "speedo"
		}
	}
	if cfg.Share.File.Enable && cfg.Share.File.Path == "" {
		return Config{}, fmt.Errorf("share.file.path is required when share.file.enable is true")
	}
	if !cfg.Share.MQTT.Enable && !cfg.Share.File.Enable {
		// There is always somewhere to share to.
		cfg.Share.File.Enable = true
		cfg.Share.File.Path = "./shares.log"
	}
	switch cfg.Share.Default {
	case "":
	case "mqtt":
		if !cfg.Share.MQTT.Enable {
			return Config{}, fmt.Errorf("share.default=mqtt but share.mqtt is disabled")
		}
	case "file":
		if !cfg.Share.File.Enable {
			return Config{}, fmt.Errorf("share.default=file but share.file is disabled")
		}
	default:
		return Config{}, fmt.Errorf("share.default must be mqtt or file (got %q)", cfg.Share.Default)
	}

	if cfg.Web.Enable && cfg.Web.Addr == "" {
		cfg.Web.Addr = ":8080"
	}

	if cfg.Button.Enable {
		if cfg.Button.Pin == 0 {
			cfg.Button.Pin = 17
		}
		if cfg.Button.Debounce <= 0 {
			cfg.Button.Debounce = Duration(200 * time.Millisecond)
		}
	}

	return cfg, nil
}

// applyEnv overlays a few deploy-specific knobs from the environment so a
// shared YAML file needs no per-host edits. A .env file, if present, has
// already been loaded by main.
func (c *Config) applyEnv() {
	if v := os.Getenv("SPEEDO_WEB_ADDR"); v != "" {
		c.Web.Addr = v
	}
	if v := os.Getenv("SPEEDO_MQTT_BROKER"); v != "" {
		c.Share.MQTT.Broker = v
	}
	if v := os.Getenv("SPEEDO_GPSD_ADDR"); v != "" {
		c.Location.GPSD.Addr = v
	}
	if v := os.Getenv("SPEEDO_NMEA_DEVICE"); v != "" {
		c.Location.NMEA.Device = v
	}
}
