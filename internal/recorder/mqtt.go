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

package recorder

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTT publishes every batch as one JSON message.
type MQTT struct {
	client  mqtt.Client
	topic   string
	timeout time.Duration
}

// DialMQTT connects to the broker; the client reconnects on its own after
// that.
func DialMQTT(broker, clientID, topic string) (*MQTT, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second)
	c := mqtt.NewClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", broker, token.Error())
	}
	return NewMQTT(c, topic), nil
}

func NewMQTT(client mqtt.Client, topic string) *MQTT {
	return &MQTT{
		client:  client,
		topic:   topic,
		timeout: 5 * time.Second,
	}
}

func (m *MQTT) Name() string {
	return "mqtt"
}

func (m *MQTT) Send(ctx context.Context, b Batch) error {
	payload, err := json.Marshal(b)
	if err != nil {
		return err
	}
	token := m.client.Publish(m.topic, 1, false, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(m.timeout):
		return fmt.Errorf("publish to %s: timeout after %v", m.topic, m.timeout)
	}
	return token.Error()
}

func (m *MQTT) Close() {
	m.client.Disconnect(250)
}
