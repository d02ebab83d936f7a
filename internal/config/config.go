// Package config loads the immutable configuration shared by both gate nodes.
package config

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/vpetryaev/GateRTO-1000/internal/gpio"
)

// DefaultPath is where the daemons look for their config file.
const DefaultPath = "/etc/gate/config.yml"

// EnvPrefix prefixes environment overrides, e.g. GATE_WIFI_SSID.
const EnvPrefix = "GATE"

// Config is the complete node configuration. It is loaded once at startup and
// never reloaded.
type Config struct {
	WiFi     WiFiConfig     `mapstructure:"wifi" yaml:"wifi"`
	Trigger  TriggerConfig  `mapstructure:"trigger" yaml:"trigger"`
	Actuator ActuatorConfig `mapstructure:"actuator" yaml:"actuator"`
	GPIO     GPIOConfig     `mapstructure:"gpio" yaml:"gpio"`
	MQTT     MQTTConfig     `mapstructure:"mqtt" yaml:"mqtt"`
	Metrics  MetricsConfig  `mapstructure:"metrics" yaml:"metrics"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
}

// WiFiConfig holds station credentials and the reconnect policy.
type WiFiConfig struct {
	SSID             string        `mapstructure:"ssid" yaml:"ssid"`
	PSK              string        `mapstructure:"psk" yaml:"psk"`
	Interface        string        `mapstructure:"interface" yaml:"interface"`
	RetryBackoff     time.Duration `mapstructure:"retry_backoff" yaml:"retry_backoff"`
	MaxBackoff       time.Duration `mapstructure:"max_backoff" yaml:"max_backoff"`
	AssociateTimeout time.Duration `mapstructure:"associate_timeout" yaml:"associate_timeout"`
	LeaseTimeout     time.Duration `mapstructure:"lease_timeout" yaml:"lease_timeout"`
}

// TriggerConfig configures the Trigger Node control loop.
type TriggerConfig struct {
	MinRSSI          int           `mapstructure:"min_rssi" yaml:"min_rssi"`
	GateOpenURL      string        `mapstructure:"gate_open_url" yaml:"gate_open_url"`
	GateSBSURL       string        `mapstructure:"gate_sbs_url" yaml:"gate_sbs_url"`
	Poll             time.Duration `mapstructure:"poll" yaml:"poll"`
	Debounce         time.Duration `mapstructure:"debounce" yaml:"debounce"`
	WeakSignalHold   time.Duration `mapstructure:"weak_signal_hold" yaml:"weak_signal_hold"`
	LinkLossCooldown time.Duration `mapstructure:"link_loss_cooldown" yaml:"link_loss_cooldown"`
	RSSIInterval     time.Duration `mapstructure:"rssi_interval" yaml:"rssi_interval"`
	DispatchTimeout  time.Duration `mapstructure:"dispatch_timeout" yaml:"dispatch_timeout"`
	DispatchRetries  int           `mapstructure:"dispatch_retries" yaml:"dispatch_retries"`
	HTTPAddr         string        `mapstructure:"http_addr" yaml:"http_addr"`
}

// ActuatorConfig configures the Actuator Node.
type ActuatorConfig struct {
	HTTPAddr  string        `mapstructure:"http_addr" yaml:"http_addr"`
	Pulse     time.Duration `mapstructure:"pulse" yaml:"pulse"`
	LinkCheck time.Duration `mapstructure:"link_check" yaml:"link_check"`
}

// GPIOConfig selects the line backend and pin offsets.
type GPIOConfig struct {
	Backend string     `mapstructure:"backend" yaml:"backend"`
	Chip    string     `mapstructure:"chip" yaml:"chip"`
	Pins    PinsConfig `mapstructure:"pins" yaml:"pins"`
}

// PinsConfig lists line offsets. Actuator and trigger pins are never opened
// on the same node.
type PinsConfig struct {
	GateOpen   int `mapstructure:"gate_open" yaml:"gate_open"`
	GateSBS    int `mapstructure:"gate_sbs" yaml:"gate_sbs"`
	GateOpened int `mapstructure:"gate_opened" yaml:"gate_opened"`
	GateClosed int `mapstructure:"gate_closed" yaml:"gate_closed"`
	Button     int `mapstructure:"button" yaml:"button"`
	LEDRed     int `mapstructure:"led_red" yaml:"led_red"`
	LEDGreen   int `mapstructure:"led_green" yaml:"led_green"`
	LEDBlue    int `mapstructure:"led_blue" yaml:"led_blue"`
}

// MQTTConfig configures optional telemetry. An empty broker disables it.
type MQTTConfig struct {
	Broker      string `mapstructure:"broker" yaml:"broker"`
	ClientID    string `mapstructure:"client_id" yaml:"client_id"`
	TopicPrefix string `mapstructure:"topic_prefix" yaml:"topic_prefix"`
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// LogConfig holds the log level.
type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
}

// Backends accepted in gpio.backend.
const (
	BackendCdev   = gpio.BackendCdev
	BackendPeriph = gpio.BackendPeriph
)

// Default returns the configuration used when no file or env override is present.
func Default() Config {
	return Config{
		WiFi: WiFiConfig{
			Interface:        "wlan0",
			RetryBackoff:     time.Second,
			AssociateTimeout: 15 * time.Second,
			LeaseTimeout:     30 * time.Second,
		},
		Trigger: TriggerConfig{
			MinRSSI:          -80,
			GateOpenURL:      "http://192.168.0.1/gate_open",
			GateSBSURL:       "http://192.168.0.1/gate_sbs",
			Poll:             100 * time.Millisecond,
			Debounce:         100 * time.Millisecond,
			WeakSignalHold:   time.Second,
			LinkLossCooldown: time.Minute,
			RSSIInterval:     5 * time.Second,
			HTTPAddr:         ":9100",
		},
		Actuator: ActuatorConfig{
			HTTPAddr:  ":80",
			Pulse:     200 * time.Millisecond,
			LinkCheck: time.Minute,
		},
		GPIO: GPIOConfig{
			Backend: BackendCdev,
			Chip:    "gpiochip0",
			Pins: PinsConfig{
				GateOpen:   3,
				GateSBS:    10,
				GateOpened: 0,
				GateClosed: 1,
				Button:     9,
				LEDRed:     17,
				LEDGreen:   27,
				LEDBlue:    22,
			},
		},
		MQTT: MQTTConfig{
			TopicPrefix: "gate",
		},
		Metrics: MetricsConfig{Enabled: true},
		Log:     LogConfig{Level: "info"},
	}
}

// Load reads the YAML file at path (if it exists) and applies GATE_* env
// overrides on top of Default().
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			v.SetConfigType("yaml")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("stat config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("wifi.ssid", d.WiFi.SSID)
	v.SetDefault("wifi.psk", d.WiFi.PSK)
	v.SetDefault("wifi.interface", d.WiFi.Interface)
	v.SetDefault("wifi.retry_backoff", d.WiFi.RetryBackoff)
	v.SetDefault("wifi.max_backoff", d.WiFi.MaxBackoff)
	v.SetDefault("wifi.associate_timeout", d.WiFi.AssociateTimeout)
	v.SetDefault("wifi.lease_timeout", d.WiFi.LeaseTimeout)

	v.SetDefault("trigger.min_rssi", d.Trigger.MinRSSI)
	v.SetDefault("trigger.gate_open_url", d.Trigger.GateOpenURL)
	v.SetDefault("trigger.gate_sbs_url", d.Trigger.GateSBSURL)
	v.SetDefault("trigger.poll", d.Trigger.Poll)
	v.SetDefault("trigger.debounce", d.Trigger.Debounce)
	v.SetDefault("trigger.weak_signal_hold", d.Trigger.WeakSignalHold)
	v.SetDefault("trigger.link_loss_cooldown", d.Trigger.LinkLossCooldown)
	v.SetDefault("trigger.rssi_interval", d.Trigger.RSSIInterval)
	v.SetDefault("trigger.dispatch_timeout", d.Trigger.DispatchTimeout)
	v.SetDefault("trigger.dispatch_retries", d.Trigger.DispatchRetries)
	v.SetDefault("trigger.http_addr", d.Trigger.HTTPAddr)

	v.SetDefault("actuator.http_addr", d.Actuator.HTTPAddr)
	v.SetDefault("actuator.pulse", d.Actuator.Pulse)
	v.SetDefault("actuator.link_check", d.Actuator.LinkCheck)

	v.SetDefault("gpio.backend", d.GPIO.Backend)
	v.SetDefault("gpio.chip", d.GPIO.Chip)
	v.SetDefault("gpio.pins.gate_open", d.GPIO.Pins.GateOpen)
	v.SetDefault("gpio.pins.gate_sbs", d.GPIO.Pins.GateSBS)
	v.SetDefault("gpio.pins.gate_opened", d.GPIO.Pins.GateOpened)
	v.SetDefault("gpio.pins.gate_closed", d.GPIO.Pins.GateClosed)
	v.SetDefault("gpio.pins.button", d.GPIO.Pins.Button)
	v.SetDefault("gpio.pins.led_red", d.GPIO.Pins.LEDRed)
	v.SetDefault("gpio.pins.led_green", d.GPIO.Pins.LEDGreen)
	v.SetDefault("gpio.pins.led_blue", d.GPIO.Pins.LEDBlue)

	v.SetDefault("mqtt.broker", d.MQTT.Broker)
	v.SetDefault("mqtt.client_id", d.MQTT.ClientID)
	v.SetDefault("mqtt.topic_prefix", d.MQTT.TopicPrefix)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("log.level", d.Log.Level)
}

// ValidateCommon checks the settings both nodes depend on.
func (c *Config) ValidateCommon() error {
	var errs []error
	if c.WiFi.SSID == "" {
		errs = append(errs, errors.New("wifi.ssid is required"))
	}
	if c.WiFi.RetryBackoff <= 0 {
		errs = append(errs, errors.New("wifi.retry_backoff must be positive"))
	}
	if c.WiFi.MaxBackoff < 0 {
		errs = append(errs, errors.New("wifi.max_backoff must not be negative"))
	}
	switch c.GPIO.Backend {
	case BackendCdev, BackendPeriph:
	default:
		errs = append(errs, fmt.Errorf("gpio.backend %q: want %q or %q", c.GPIO.Backend, BackendCdev, BackendPeriph))
	}
	return errors.Join(errs...)
}

// ValidateActuator checks the Actuator Node settings.
func (c *Config) ValidateActuator() error {
	errs := []error{c.ValidateCommon()}
	if c.Actuator.Pulse <= 0 {
		errs = append(errs, errors.New("actuator.pulse must be positive"))
	}
	if c.Actuator.LinkCheck <= 0 {
		errs = append(errs, errors.New("actuator.link_check must be positive"))
	}
	p := c.GPIO.Pins
	errs = append(errs, uniquePins(map[string]int{
		"gate_open":   p.GateOpen,
		"gate_sbs":    p.GateSBS,
		"gate_opened": p.GateOpened,
		"gate_closed": p.GateClosed,
	}))
	return errors.Join(errs...)
}

// ValidateTrigger checks the Trigger Node settings.
func (c *Config) ValidateTrigger() error {
	errs := []error{c.ValidateCommon()}
	if c.Trigger.MinRSSI < -128 || c.Trigger.MinRSSI > 127 {
		errs = append(errs, fmt.Errorf("trigger.min_rssi %d out of int8 range", c.Trigger.MinRSSI))
	}
	for key, raw := range map[string]string{
		"trigger.gate_open_url": c.Trigger.GateOpenURL,
		"trigger.gate_sbs_url":  c.Trigger.GateSBSURL,
	} {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("%s %q: want an http(s) URL", key, raw))
		}
	}
	for key, d := range map[string]time.Duration{
		"trigger.poll":          c.Trigger.Poll,
		"trigger.debounce":      c.Trigger.Debounce,
		"trigger.rssi_interval": c.Trigger.RSSIInterval,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", key))
		}
	}
	if c.Trigger.WeakSignalHold < 0 || c.Trigger.LinkLossCooldown < 0 || c.Trigger.DispatchTimeout < 0 {
		errs = append(errs, errors.New("trigger durations must not be negative"))
	}
	if c.Trigger.DispatchRetries < 0 {
		errs = append(errs, errors.New("trigger.dispatch_retries must not be negative"))
	}
	p := c.GPIO.Pins
	errs = append(errs, uniquePins(map[string]int{
		"button":    p.Button,
		"led_red":   p.LEDRed,
		"led_green": p.LEDGreen,
		"led_blue":  p.LEDBlue,
	}))
	return errors.Join(errs...)
}

func uniquePins(pins map[string]int) error {
	seen := make(map[int]string, len(pins))
	var errs []error
	for name, offset := range pins {
		if offset < 0 {
			errs = append(errs, fmt.Errorf("gpio.pins.%s: negative offset %d", name, offset))
			continue
		}
		if other, ok := seen[offset]; ok {
			// Report in a stable order regardless of map iteration.
			a, b := other, name
			if b < a {
				a, b = b, a
			}
			errs = append(errs, fmt.Errorf("gpio.pins.%s and gpio.pins.%s share offset %d", a, b, offset))
			continue
		}
		seen[offset] = name
	}
	return errors.Join(errs...)
}

// MinRSSI returns the trigger threshold as dBm.
func (c *Config) MinRSSI() int8 {
	return int8(c.Trigger.MinRSSI)
}

// Dump writes the configuration as YAML with the PSK redacted.
func (c *Config) Dump(w io.Writer) error {
	redacted := *c
	if redacted.WiFi.PSK != "" {
		redacted.WiFi.PSK = "<redacted>"
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(redacted); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return enc.Close()
}
