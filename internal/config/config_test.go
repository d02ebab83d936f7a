package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	d := Default()
	if cfg.Trigger.MinRSSI != d.Trigger.MinRSSI {
		t.Errorf("MinRSSI: got %d, want %d", cfg.Trigger.MinRSSI, d.Trigger.MinRSSI)
	}
	if cfg.Actuator.Pulse != 200*time.Millisecond {
		t.Errorf("Pulse: got %v, want 200ms", cfg.Actuator.Pulse)
	}
	if cfg.GPIO.Pins.GateSBS != 10 {
		t.Errorf("GateSBS pin: got %d, want 10", cfg.GPIO.Pins.GateSBS)
	}
	if cfg.WiFi.RetryBackoff != time.Second {
		t.Errorf("RetryBackoff: got %v, want 1s", cfg.WiFi.RetryBackoff)
	}
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
wifi:
  ssid: Yard
  psk: secret
trigger:
  min_rssi: -70
  gate_open_url: http://10.0.0.5/gate_open
  gate_sbs_url: http://10.0.0.5/gate_sbs
  link_loss_cooldown: 30s
actuator:
  pulse: 250ms
gpio:
  backend: periph
  pins:
    button: 5
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.WiFi.SSID != "Yard" || cfg.WiFi.PSK != "secret" {
		t.Errorf("wifi: got %+v", cfg.WiFi)
	}
	if cfg.MinRSSI() != -70 {
		t.Errorf("MinRSSI: got %d, want -70", cfg.MinRSSI())
	}
	if cfg.Trigger.LinkLossCooldown != 30*time.Second {
		t.Errorf("LinkLossCooldown: got %v", cfg.Trigger.LinkLossCooldown)
	}
	if cfg.Actuator.Pulse != 250*time.Millisecond {
		t.Errorf("Pulse: got %v", cfg.Actuator.Pulse)
	}
	if cfg.GPIO.Backend != BackendPeriph {
		t.Errorf("Backend: got %q", cfg.GPIO.Backend)
	}
	if cfg.GPIO.Pins.Button != 5 {
		t.Errorf("Button: got %d, want 5", cfg.GPIO.Pins.Button)
	}
	// Untouched keys keep defaults.
	if cfg.GPIO.Pins.LEDRed != 17 {
		t.Errorf("LEDRed: got %d, want 17", cfg.GPIO.Pins.LEDRed)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	path := writeConfig(t, "wifi:\n  ssid: FromFile\n")
	t.Setenv("GATE_WIFI_SSID", "FromEnv")
	t.Setenv("GATE_TRIGGER_MIN_RSSI", "-65")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.WiFi.SSID != "FromEnv" {
		t.Errorf("SSID: got %q, want FromEnv", cfg.WiFi.SSID)
	}
	if cfg.Trigger.MinRSSI != -65 {
		t.Errorf("MinRSSI: got %d, want -65", cfg.Trigger.MinRSSI)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeConfig(t, "wifi: [unclosed\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestValidateTrigger(t *testing.T) {
	cfg := Default()
	cfg.WiFi.SSID = "Yard"
	if err := cfg.ValidateTrigger(); err != nil {
		t.Fatalf("default trigger config should validate: %v", err)
	}

	bad := cfg
	bad.Trigger.GateSBSURL = "ftp://nope"
	if err := bad.ValidateTrigger(); err == nil || !strings.Contains(err.Error(), "gate_sbs_url") {
		t.Errorf("expected gate_sbs_url error, got %v", err)
	}

	bad = cfg
	bad.Trigger.MinRSSI = -200
	if err := bad.ValidateTrigger(); err == nil {
		t.Error("expected min_rssi range error")
	}

	bad = cfg
	bad.GPIO.Pins.LEDBlue = bad.GPIO.Pins.Button
	if err := bad.ValidateTrigger(); err == nil || !strings.Contains(err.Error(), "share offset") {
		t.Errorf("expected shared offset error, got %v", err)
	}

	bad = cfg
	bad.Trigger.Poll = 0
	if err := bad.ValidateTrigger(); err == nil {
		t.Error("expected poll error")
	}
}

func TestValidateActuator(t *testing.T) {
	cfg := Default()
	cfg.WiFi.SSID = "Yard"
	if err := cfg.ValidateActuator(); err != nil {
		t.Fatalf("default actuator config should validate: %v", err)
	}

	bad := cfg
	bad.WiFi.SSID = ""
	if err := bad.ValidateActuator(); err == nil {
		t.Error("expected missing ssid error")
	}

	bad = cfg
	bad.GPIO.Backend = "sysfs"
	if err := bad.ValidateActuator(); err == nil {
		t.Error("expected backend error")
	}

	bad = cfg
	bad.Actuator.Pulse = 0
	if err := bad.ValidateActuator(); err == nil {
		t.Error("expected pulse error")
	}
}

func TestDumpRedactsPSK(t *testing.T) {
	cfg := Default()
	cfg.WiFi.SSID = "Yard"
	cfg.WiFi.PSK = "hunter2"

	var buf bytes.Buffer
	if err := cfg.Dump(&buf); err != nil {
		t.Fatalf("Dump: %v", err)
	}
	out := buf.String()
	if strings.Contains(out, "hunter2") {
		t.Error("dump leaked PSK")
	}
	if !strings.Contains(out, "ssid: Yard") {
		t.Errorf("dump missing ssid:\n%s", out)
	}
	if cfg.WiFi.PSK != "hunter2" {
		t.Error("Dump must not modify the receiver")
	}
}
