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

// Package status serves the live state of the box as JSON and streams
// changes to websocket clients.
package status

import (
	"encoding/json"
	"net/http"
	"time"

	"gbebox/internal/actuator"
	"gbebox/internal/box"
	"gbebox/internal/events"
	"gbebox/internal/sensors"
	"gbebox/pkg/logger"
)

type Outputs interface {
	State() actuator.State
}

type Sensors interface {
	Readings() sensors.Readings
	Health() map[string]sensors.Health
	FanRPM() float64
}

type Link interface {
	State() events.ConnState
	Since() time.Time
}

type Backlog interface {
	Len() (int, error)
}

type Tasks interface {
	Stalled(now time.Time) []string
}

// Sources are read on every request. Any may be nil.
type Sources struct {
	Outputs Outputs
	Sensors Sensors
	Link    Link
	Backlog Backlog
	Tasks   Tasks
}

type Connectivity struct {
	State string    `json:"state"`
	Since time.Time `json:"since"`
}

// Document is the /status response.
type Document struct {
	Board        string                    `json:"board"`
	Time         time.Time                 `json:"time"`
	ClockTrusted bool                      `json:"clock_trusted"`
	Outputs      *actuator.State           `json:"outputs,omitempty"`
	Readings     *sensors.Readings         `json:"readings,omitempty"`
	Sensors      map[string]sensors.Health `json:"sensors,omitempty"`
	Connectivity *Connectivity             `json:"connectivity,omitempty"`
	Backlog      *int                      `json:"backlog,omitempty"`
	Stalled      []string                  `json:"stalled"`
}

type Server struct {
	log     *logger.Logger
	box     *box.Box
	board   string
	src     Sources
	clients *clientSync
	mux     *http.ServeMux
}

func New(b *box.Box, boardID string, src Sources) *Server {
	s := &Server{
		log:     logger.New("StatusWeb"),
		box:     b,
		board:   boardID,
		src:     src,
		clients: newClientSync(),
	}
	s.mux = http.NewServeMux()
	s.mux.HandleFunc("/", s.serveDocument)
	s.mux.HandleFunc("/ws", s.serveWebSockets())
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Document gathers the current state.
func (s *Server) Document() Document {
	now := s.box.Clock.Now()
	doc := Document{
		Board:        s.board,
		Time:         now,
		ClockTrusted: s.box.Clock.Trusted(),
		Stalled:      []string{},
	}
	if s.src.Outputs != nil {
		st := s.src.Outputs.State()
		doc.Outputs = &st
	}
	if s.src.Sensors != nil {
		r := s.src.Sensors.Readings()
		doc.Readings = &r
		doc.Sensors = s.src.Sensors.Health()
	}
	if s.src.Link != nil {
		doc.Connectivity = &Connectivity{
			State: s.src.Link.State().String(),
			Since: s.src.Link.Since(),
		}
	}
	if s.src.Backlog != nil {
		if n, err := s.src.Backlog.Len(); err == nil {
			doc.Backlog = &n
		}
	}
	if s.src.Tasks != nil {
		if stalled := s.src.Tasks.Stalled(time.Now()); stalled != nil {
			doc.Stalled = stalled
		}
	}
	return doc
}

func (s *Server) serveDocument(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s.Document()); err != nil {
		s.log.Error("encode: %v", err)
	}
}
