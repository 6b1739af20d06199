// Copyright (C) 2025 Josh Simonot
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const validSettings = `{
  "lights": {
    "timer": {"on": "08:00", "off": "20:00"},
    "duty": {"red": 200, "green": 89, "blue": 94, "white": 146}
  },
  "fan": {"duty": {"when lights on": 255, "when lights off": 40}},
  "time zone": {"GMT offset": -5}
}`

func TestDecodeSettingsValid(t *testing.T) {
	s, err := DecodeSettings(strings.NewReader(validSettings))
	if err != nil {
		t.Fatalf("DecodeSettings() error: %v", err)
	}
	if s.OnSeconds() != 8*3600 || s.OffSeconds() != 20*3600 {
		t.Errorf("window = %d..%d, want 28800..72000", s.OnSeconds(), s.OffSeconds())
	}
	if s.Red != 200 || s.FanLightsOff != 40 || s.UTCOffset != -5 {
		t.Errorf("unexpected settings: %+v", s)
	}
}

func TestDecodeSettingsSingleDigitHour(t *testing.T) {
	in := strings.Replace(validSettings, `"08:00"`, `"8:05"`, 1)
	s, err := DecodeSettings(strings.NewReader(in))
	if err != nil {
		t.Fatalf("DecodeSettings() error: %v", err)
	}
	if s.OnSeconds() != 8*3600+5*60 {
		t.Errorf("OnSeconds() = %d, want %d", s.OnSeconds(), 8*3600+5*60)
	}
}

func TestDecodeSettingsRejects(t *testing.T) {
	tests := []struct {
		name    string
		from    string
		to      string
		wantMsg string
	}{
		{"hour 24", `"08:00"`, `"24:00"`, "lights.timer.on"},
		{"minute 60", `"20:00"`, `"20:60"`, "lights.timer.off"},
		{"no colon", `"08:00"`, `"0800"`, "lights.timer.on"},
		{"trailing text", `"08:00"`, `"08:00pm"`, "lights.timer.on"},
		{"red over ceiling", `"red": 200`, `"red": 201`, "lights.duty.red"},
		{"green over ceiling", `"green": 89`, `"green": 90`, "lights.duty.green"},
		{"blue over ceiling", `"blue": 94`, `"blue": 95`, "lights.duty.blue"},
		{"white over ceiling", `"white": 146`, `"white": 147`, "lights.duty.white"},
		{"negative duty", `"red": 200`, `"red": -1`, "lights.duty.red"},
		{"fan over 255", `"when lights on": 255`, `"when lights on": 256`, "when lights on"},
		{"utc below -11", `"GMT offset": -5`, `"GMT offset": -12`, "GMT offset"},
		{"utc above 13", `"GMT offset": -5`, `"GMT offset": 14`, "GMT offset"},
		{"missing key", `"white": 146`, `"whitish": 146`, "lights.duty.white: missing"},
		{"non integer duty", `"red": 200`, `"red": 1.5`, "decode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := strings.Replace(validSettings, tt.from, tt.to, 1)
			_, err := DecodeSettings(strings.NewReader(in))
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, ErrInvalid) {
				t.Errorf("error %v does not match ErrInvalid", err)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error %q does not mention %q", err, tt.wantMsg)
			}
		})
	}
}

func TestDecodeSettingsReportsAllViolations(t *testing.T) {
	in := `{"lights":{"timer":{"on":"25:00","off":"20:00"},"duty":{"red":999,"green":0,"blue":0,"white":0}},
	        "fan":{"duty":{"when lights on":0,"when lights off":0}},"time zone":{"GMT offset":20}}`
	_, err := DecodeSettings(strings.NewReader(in))
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"lights.timer.on", "lights.duty.red", "GMT offset"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

func TestLoadSettingsMissingFile(t *testing.T) {
	if _, err := LoadSettings(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadServiceDefaults(t *testing.T) {
	s, err := LoadService(filepath.Join(t.TempDir(), "missing.yml"))
	if err != nil {
		t.Fatalf("LoadService() error: %v", err)
	}
	if s.Pipeline.IntervalSeconds != 3600 {
		t.Errorf("interval = %d, want 3600", s.Pipeline.IntervalSeconds)
	}
	if s.Broker.ConnectRetrySeconds != 5 || s.Broker.GraceSeconds != 3 {
		t.Errorf("broker delays = %d/%d, want 5/3", s.Broker.ConnectRetrySeconds, s.Broker.GraceSeconds)
	}
	if s.Watchdog.TimeoutSeconds != 8 {
		t.Errorf("watchdog timeout = %d, want 8", s.Watchdog.TimeoutSeconds)
	}
}

func TestLoadServiceFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gbebox.yml")
	yml := "board: sim\npipeline:\n  backlog_retention: 24\nbroker:\n  url: tcp://file:1883\n"
	if err := os.WriteFile(path, []byte(yml), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("GBE_BROKER_URL", "tcp://env:1883")

	s, err := LoadService(path)
	if err != nil {
		t.Fatalf("LoadService() error: %v", err)
	}
	if s.Board != "sim" {
		t.Errorf("board = %q, want sim", s.Board)
	}
	if s.Pipeline.BacklogRetention != 24 {
		t.Errorf("retention = %d, want 24", s.Pipeline.BacklogRetention)
	}
	if s.Broker.URL != "tcp://env:1883" {
		t.Errorf("broker url = %q, want env override", s.Broker.URL)
	}
}

func TestLoadServiceRejectsBadValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gbebox.yml")
	yml := "board: arduino\nwatchdog:\n  feed_millis: 9000\n"
	if err := os.WriteFile(path, []byte(yml), 0644); err != nil {
		t.Fatal(err)
	}
	_, err := LoadService(path)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "board") || !strings.Contains(err.Error(), "watchdog") {
		t.Errorf("error %q should mention board and watchdog", err)
	}
}

func TestLoadServiceRejectsNonPositiveDurations(t *testing.T) {
	tests := []struct {
		env string
		val string
		key string
	}{
		{"GBE_LOOPS_ACTUATOR_TICK_MILLIS", "0", "loops.actuator_tick_millis"},
		{"GBE_LOOPS_SENSOR_POLL_MILLIS", "-5", "loops.sensor_poll_millis"},
		{"GBE_LOOPS_INDICATOR_STEP_MILLIS", "0", "loops.indicator_step_millis"},
		{"GBE_BROKER_POLL_MILLIS", "0", "broker.poll_millis"},
		{"GBE_BROKER_CONNECT_RETRY_SECONDS", "0", "broker.connect_retry_seconds"},
		{"GBE_BROKER_GRACE_SECONDS", "-1", "broker.grace_seconds"},
		{"GBE_BROKER_PUBLISH_TIMEOUT_SECONDS", "0", "broker.publish_timeout_seconds"},
		{"GBE_BROKER_KEEPALIVE_SECONDS", "0", "broker.keepalive_seconds"},
		{"GBE_BROKER_HEARTBEAT_SECONDS", "0", "broker.heartbeat_seconds"},
		{"GBE_CLOCK_SYNC_INTERVAL_SECONDS", "0", "clock.sync_interval_seconds"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Setenv(tt.env, tt.val)
			_, err := LoadService(filepath.Join(t.TempDir(), "missing.yml"))
			if err == nil {
				t.Fatalf("%s=%s accepted", tt.env, tt.val)
			}
			if !strings.Contains(err.Error(), tt.key) {
				t.Errorf("error %q should name %s", err, tt.key)
			}
		})
	}
}
