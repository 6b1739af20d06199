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
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type BrokerConfig struct {
	URL               string `mapstructure:"url"`
	ClientID          string `mapstructure:"client_id"`
	Username          string `mapstructure:"username"`
	Password          string `mapstructure:"password"`
	DataTopic         string `mapstructure:"data_topic"`
	AvailabilityTopic string `mapstructure:"availability_topic"`

	KeepAliveSeconds      int `mapstructure:"keepalive_seconds"`
	ConnectRetrySeconds   int `mapstructure:"connect_retry_seconds"`
	GraceSeconds          int `mapstructure:"grace_seconds"`
	PollMillis            int `mapstructure:"poll_millis"`
	PublishTimeoutSeconds int `mapstructure:"publish_timeout_seconds"`
	HeartbeatSeconds      int `mapstructure:"heartbeat_seconds"`
}

type PipelineConfig struct {
	IntervalSeconds  int `mapstructure:"interval_seconds"`
	BacklogRetention int `mapstructure:"backlog_retention"`
	// 0 keeps every snapshot
	HistoryRetention int `mapstructure:"history_retention"`
}

type ClockConfig struct {
	NTPHost             string `mapstructure:"ntp_host"`
	SyncIntervalSeconds int    `mapstructure:"sync_interval_seconds"`
	RTCDevice           string `mapstructure:"rtc_device"`
}

type WatchdogConfig struct {
	Device         string `mapstructure:"device"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	FeedMillis     int    `mapstructure:"feed_millis"`
}

type LoopConfig struct {
	SensorPollMillis    int `mapstructure:"sensor_poll_millis"`
	ActuatorTickMillis  int `mapstructure:"actuator_tick_millis"`
	IndicatorStepMillis int `mapstructure:"indicator_step_millis"`
}

// Service holds the daemon's operational configuration, as opposed to
// the chamber Settings.
type Service struct {
	Board    string         `mapstructure:"board"` // "raspi" or "sim"
	HTTPAddr string         `mapstructure:"http_addr"`
	Broker   BrokerConfig   `mapstructure:"broker"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Clock    ClockConfig    `mapstructure:"clock"`
	Watchdog WatchdogConfig `mapstructure:"watchdog"`
	Loops    LoopConfig     `mapstructure:"loops"`
}

// Config bundles everything loaded at startup.
type Config struct {
	Settings *Settings
	Service  *Service

	RootDir string
	DataDir string
}

var defaults = map[string]any{
	"board":     "raspi",
	"http_addr": ":80",

	"broker.url":                     "tcp://broker.hivemq.com:1883",
	"broker.client_id":               "",
	"broker.username":                "",
	"broker.password":                "",
	"broker.data_topic":              "data",
	"broker.availability_topic":      "gbe/%s/availability",
	"broker.keepalive_seconds":       60,
	"broker.connect_retry_seconds":   5,
	"broker.grace_seconds":           3,
	"broker.poll_millis":             1000,
	"broker.publish_timeout_seconds": 10,
	"broker.heartbeat_seconds":       60,

	"pipeline.interval_seconds":  3600,
	"pipeline.backlog_retention": 500,
	"pipeline.history_retention": 8760,

	"clock.ntp_host":              "pool.ntp.org",
	"clock.sync_interval_seconds": 3600,
	"clock.rtc_device":            "/dev/rtc0",

	"watchdog.device":          "/dev/watchdog",
	"watchdog.timeout_seconds": 8,
	"watchdog.feed_millis":     1000,

	"loops.sensor_poll_millis":    500,
	"loops.actuator_tick_millis":  250,
	"loops.indicator_step_millis": 4,
}

// LoadService reads the YAML service config at path. A missing file is not
// an error; defaults apply. Any key can be overridden from the environment
// as GBE_<SECTION>_<KEY>, e.g. GBE_BROKER_URL.
func LoadService(path string) (*Service, error) {
	v := viper.New()
	for key, val := range defaults {
		v.SetDefault(key, val)
	}

	v.SetEnvPrefix("GBE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) || !os.IsNotExist(pathErr) {
			return nil, fmt.Errorf("read service config: %w", err)
		}
	}

	var s Service
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("decode service config: %w", err)
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Service) validate() error {
	var errs []error
	if s.Board != "raspi" && s.Board != "sim" {
		errs = append(errs, fmt.Errorf("board: %q is not raspi or sim", s.Board))
	}
	if s.Pipeline.BacklogRetention < 1 {
		errs = append(errs, fmt.Errorf("pipeline.backlog_retention: must be at least 1"))
	}
	if s.Pipeline.HistoryRetention < 0 {
		errs = append(errs, fmt.Errorf("pipeline.history_retention: must not be negative"))
	}
	if s.Pipeline.IntervalSeconds < 1 {
		errs = append(errs, fmt.Errorf("pipeline.interval_seconds: must be at least 1"))
	}
	for _, d := range s.durations() {
		if d.value < 1 {
			errs = append(errs, fmt.Errorf("%s: must be positive, got %d", d.key, d.value))
		}
	}
	feed := time.Duration(s.Watchdog.FeedMillis) * time.Millisecond
	if feed <= 0 || feed >= time.Duration(s.Watchdog.TimeoutSeconds)*time.Second {
		errs = append(errs, fmt.Errorf("watchdog: feed interval %v must be positive and below the %ds timeout",
			feed, s.Watchdog.TimeoutSeconds))
	}
	if len(errs) > 0 {
		return fmt.Errorf("service config: %w", errors.Join(errs...))
	}
	return nil
}

type duration struct {
	key   string
	value int
}

// durations lists every interval a loop or retry is built from.
func (s *Service) durations() []duration {
	return []duration{
		{"broker.keepalive_seconds", s.Broker.KeepAliveSeconds},
		{"broker.connect_retry_seconds", s.Broker.ConnectRetrySeconds},
		{"broker.grace_seconds", s.Broker.GraceSeconds},
		{"broker.poll_millis", s.Broker.PollMillis},
		{"broker.publish_timeout_seconds", s.Broker.PublishTimeoutSeconds},
		{"broker.heartbeat_seconds", s.Broker.HeartbeatSeconds},
		{"clock.sync_interval_seconds", s.Clock.SyncIntervalSeconds},
		{"loops.sensor_poll_millis", s.Loops.SensorPollMillis},
		{"loops.actuator_tick_millis", s.Loops.ActuatorTickMillis},
		{"loops.indicator_step_millis", s.Loops.IndicatorStepMillis},
	}
}

func Seconds(n int) time.Duration { return time.Duration(n) * time.Second }
func Millis(n int) time.Duration  { return time.Duration(n) * time.Millisecond }
