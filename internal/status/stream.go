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

package status

import (
	"context"
	"encoding/json"
	"net/http"
	"reflect"
	"strings"
	"sync"
	"time"

	"gbebox/internal/events"
	"gbebox/internal/sensors"
	"gbebox/internal/telemetry"
	"gbebox/pkg/eventbus"
	"gbebox/pkg/logger"

	"github.com/gorilla/websocket"
)

const writeWait = 5 * time.Second

// streamed lists the bus topics forwarded to websocket clients.
var streamed = []eventbus.Topic{
	events.TopicActuator,
	events.TopicSensors,
	events.TopicConnectivity,
	events.TopicTelemetry,
}

// Message is one websocket frame.
type Message struct {
	Topic string `json:"topic"`
	Data  any    `json:"data"`
}

// SensorFrame is sent for every sensor change. The bus keeps only the
// latest update per topic, so two sensors changing together arrive as one
// update; Sensors carries the state of all of them.
type SensorFrame struct {
	Changed events.SensorUpdate       `json:"changed"`
	Sensors map[string]sensors.Health `json:"sensors,omitempty"`
}

type clientSync struct {
	clients map[*websocket.Conn]bool
	mutex   sync.Mutex
}

func newClientSync() *clientSync {
	return &clientSync{clients: make(map[*websocket.Conn]bool)}
}

func (c *clientSync) broadcast(pm *websocket.PreparedMessage, log *logger.Logger) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	for ws := range c.clients {
		ws.SetWriteDeadline(time.Now().Add(writeWait))
		if err := ws.WritePreparedMessage(pm); err != nil {
			log.Debug("dropping client: %v", err)
			ws.Close()
			delete(c.clients, ws)
		}
	}
}

func (c *clientSync) add(ws *websocket.Conn) {
	c.mutex.Lock()
	c.clients[ws] = true
	c.mutex.Unlock()
}

func (c *clientSync) remove(ws *websocket.Conn) {
	c.mutex.Lock()
	delete(c.clients, ws)
	c.mutex.Unlock()
}

func (c *clientSync) count() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return len(c.clients)
}

func (c *clientSync) closeAll() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	for ws := range c.clients {
		ws.Close()
		delete(c.clients, ws)
	}
}

// Run forwards bus updates to every websocket client until ctx ends.
func (s *Server) Run(ctx context.Context) {
	s.log.Info("Running...")
	defer s.log.Info("Stopped")
	defer s.clients.closeAll()

	cases := make([]reflect.SelectCase, 0, len(streamed)+1)
	cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(ctx.Done())})
	for _, topic := range streamed {
		ch, _ := s.box.Bus.Subscribe(ctx, topic, false)
		cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(ch)})
	}

	for {
		i, v, ok := reflect.Select(cases)
		if i == 0 {
			return
		}
		if !ok {
			// bus closed
			cases[i].Chan = reflect.Value{}
			continue
		}
		s.send(Message{Topic: string(streamed[i-1]), Data: s.streamData(v.Interface())})
	}
}

// streamData flattens telemetry to its record and widens sensor updates
// to the whole health table; other events go as is.
func (s *Server) streamData(ev any) any {
	switch ev := ev.(type) {
	case telemetry.Snapshot:
		return ev.Columns()
	case events.SensorUpdate:
		frame := SensorFrame{Changed: ev}
		if s.src.Sensors != nil {
			frame.Sensors = s.src.Sensors.Health()
		}
		return frame
	}
	return ev
}

func (s *Server) send(msg Message) {
	if s.clients.count() == 0 {
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		s.log.Error("failed to marshal broadcast: %v", err)
		return
	}
	pm, err := websocket.NewPreparedMessage(websocket.TextMessage, data)
	if err != nil {
		s.log.Error("failed to prepare message: %v", err)
		return
	}
	s.clients.broadcast(pm, s.log)
}

func (s *Server) serveWebSockets() http.HandlerFunc {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				// not a browser
				return true
			}
			if strings.Contains(origin, "localhost") {
				return true
			}
			return strings.Contains(origin, r.Host)
		},
	}

	return func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.log.Error("failed to upgrade websocket: %v", err)
			return
		}
		defer ws.Close()

		// the full picture first, then changes
		ws.SetWriteDeadline(time.Now().Add(writeWait))
		if err := ws.WriteJSON(Message{Topic: "status", Data: s.Document()}); err != nil {
			s.log.Debug("initial write: %v", err)
			return
		}
		s.clients.add(ws)
		defer s.clients.remove(ws)

		// clients only listen; reading detects the close
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					s.log.Debug("ws read: %v", err)
				}
				return
			}
		}
	}
}
