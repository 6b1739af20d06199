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

package broker

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"time"

	"gbebox/internal/config"
	"gbebox/pkg/logger"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	PayloadOnline  = "online"
	PayloadOffline = "offline"
)

// Client is a broker session. Reconnecting is the caller's job.
type Client interface {
	Connect(ctx context.Context) error
	IsConnected() bool
	Publish(ctx context.Context, topic string, payload []byte, retained bool) error
	Disconnect()
}

// PahoClient is a Client over paho.mqtt.golang with its own reconnect
// logic switched off.
type PahoClient struct {
	log     *logger.Logger
	url     string
	client  mqtt.Client
	timeout time.Duration
}

// NewPahoClient builds a client that leaves a retained "offline" on
// willTopic if the session dies.
func NewPahoClient(conf config.BrokerConfig, clientID, willTopic string) *PahoClient {
	log := logger.New("MQTT")

	opts := mqtt.NewClientOptions()
	opts.AddBroker(conf.URL)
	opts.SetClientID(clientID)
	if conf.Username != "" {
		opts.SetUsername(conf.Username)
		opts.SetPassword(conf.Password)
	}
	if strings.HasPrefix(conf.URL, "ssl://") || strings.HasPrefix(conf.URL, "wss://") {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)
	opts.SetCleanSession(true)
	opts.SetKeepAlive(config.Seconds(conf.KeepAliveSeconds))
	opts.SetConnectTimeout(config.Seconds(conf.PublishTimeoutSeconds))
	opts.SetWill(willTopic, PayloadOffline, 1, true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warn("connection lost: %v", err)
	})

	return &PahoClient{
		log:     log,
		url:     conf.URL,
		client:  mqtt.NewClient(opts),
		timeout: config.Seconds(conf.PublishTimeoutSeconds),
	}
}

func (p *PahoClient) Connect(ctx context.Context) error {
	if err := wait(ctx, p.client.Connect(), p.timeout); err != nil {
		return fmt.Errorf("connect %s: %w", p.url, err)
	}
	return nil
}

func (p *PahoClient) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

func (p *PahoClient) Publish(ctx context.Context, topic string, payload []byte, retained bool) error {
	if err := wait(ctx, p.client.Publish(topic, 1, retained, payload), p.timeout); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

func (p *PahoClient) Disconnect() {
	p.client.Disconnect(250)
}

var errTimeout = errors.New("timed out")

// wait blocks until tok completes, ctx ends or timeout passes.
func wait(ctx context.Context, tok mqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-tok.Done():
		return tok.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return errTimeout
	}
}
