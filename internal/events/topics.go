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

package events

import (
	"time"

	"gbebox/pkg/eventbus"
)

var (
	TopicActuator     eventbus.Topic = "actuator"
	TopicSensors      eventbus.Topic = "sensors"
	TopicConnectivity eventbus.Topic = "connectivity"
	TopicTelemetry    eventbus.Topic = "telemetry"
)

// Status is an indicator-worthy occurrence. Any task may raise one.
type Status int

const (
	Recovered Status = iota
	Fault
	Connecting
)

func (s Status) String() string {
	switch s {
	case Recovered:
		return "recovered"
	case Fault:
		return "fault"
	case Connecting:
		return "connecting"
	}
	return "unknown"
}

// StatusSink accepts status events. The indicator implements it.
type StatusSink interface {
	Push(Status)
}

// ConnState is the broker connection state.
type ConnState int

const (
	Disconnected ConnState = iota
	ConnectingState
	Connected
)

// MarshalText renders the state by name.
func (c ConnState) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c ConnState) String() string {
	switch c {
	case Disconnected:
		return "disconnected"
	case ConnectingState:
		return "connecting"
	case Connected:
		return "connected"
	}
	return "unknown"
}

type ConnectivityUpdate struct {
	State ConnState `json:"state"`
	Since time.Time `json:"since"`
}

type ActuatorUpdate struct {
	Red      uint8     `json:"red"`
	Green    uint8     `json:"green"`
	Blue     uint8     `json:"blue"`
	White    uint8     `json:"white"`
	Fan      uint8     `json:"fan"`
	LightsOn bool      `json:"lights_on"`
	Time     time.Time `json:"time"`
}

// SensorUpdate reports a sensor health transition.
type SensorUpdate struct {
	Sensor    string    `json:"sensor"`
	Connected bool      `json:"connected"`
	Reason    string    `json:"reason,omitempty"`
	Time      time.Time `json:"time"`
}
