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

package modbus

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"autoflow/pkg/logger"

	wrapper "github.com/grid-x/modbus"
)

const maxBackoff = 30 * time.Second

type Client struct {
	mu      sync.Mutex
	handler *wrapper.TCPClientHandler
	client  wrapper.Client
	config  *Config
	log     *logger.Logger
}

// NewClient connects a Modbus TCP client, retrying until ctx is done.
func NewClient(ctx context.Context, config *Config) (*Client, error) {
	c := &Client{
		config: config,
		log:    logger.New("ModbusConn"),
	}
	if err := c.connectWithRetry(ctx); err != nil {
		return nil, fmt.Errorf("connect to modbus device: %w", err)
	}
	return c, nil
}

// connectWithRetry tries to connect with exponential backoff until success
// or until ctx is done.
func (c *Client) connectWithRetry(ctx context.Context) error {
	backoff := time.Second
	for {
		err := c.connect(ctx)
		if err == nil {
			return nil
		}
		c.log.Error("Modbus connect failed: %v (retrying in %v)", err, backoff)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxBackoff)
	}
}

// connect safely (re)connects the Modbus client once.
func (c *Client) connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.handler != nil {
		_ = c.handler.Close()
	}

	url := fmt.Sprintf("%s:%d", c.config.Modbus.Host, c.config.Modbus.Port)
	handler := wrapper.NewTCPClientHandler(url)
	handler.SlaveID = c.config.Modbus.SlaveID
	handler.Timeout = time.Second * time.Duration(c.config.Modbus.Timeout)
	handler.ProtocolRecoveryTimeout = 250 * time.Millisecond
	handler.LinkRecoveryTimeout = 5 * time.Second

	c.log.Info("Connecting to %s...", url)
	if err := handler.Connect(ctx); err != nil {
		return fmt.Errorf("modbus connect failed: %w", err)
	}

	c.handler = handler
	c.client = wrapper.NewClient(handler)
	c.log.Info("Connected to %s", url)
	return nil
}

// retry runs op twice at most, reconnecting in between on connection errors.
func (c *Client) retry(ctx context.Context, op func() error) error {
	var err error
	for range 2 {
		err = op()
		if err == nil {
			return nil
		}
		if !isConnError(err) {
			c.log.Debug("retry after err: %+v", err)
			continue
		}

		c.log.Error("connection error: %v, reconnecting...", err)
		if cerr := c.connectWithRetry(ctx); cerr != nil {
			return errors.Join(err, cerr)
		}
	}
	return err
}

// WriteRegisters writes consecutive holding registers starting at addr.
func (c *Client) WriteRegisters(ctx context.Context, addr uint16, raw []byte) error {
	return c.retry(ctx, func() error {
		c.mu.Lock()
		defer c.mu.Unlock()
		_, err := c.client.WriteMultipleRegisters(ctx, addr, uint16(len(raw)/2), raw)
		return err
	})
}

// WriteCoil switches a single coil.
func (c *Client) WriteCoil(ctx context.Context, addr uint16, on bool) error {
	var value uint16
	if on {
		value = 0xFF00
	}
	return c.retry(ctx, func() error {
		c.mu.Lock()
		defer c.mu.Unlock()
		_, err := c.client.WriteSingleCoil(ctx, addr, value)
		return err
	})
}

// ReadRegisters reads holding registers safely, retrying if needed.
func (c *Client) ReadRegisters(ctx context.Context, addr, quantity uint16) ([]byte, error) {
	return c.read(ctx, func() ([]byte, error) {
		return c.client.ReadHoldingRegisters(ctx, addr, quantity)
	})
}

// ReadInputRegisters reads read-only input registers.
func (c *Client) ReadInputRegisters(ctx context.Context, addr, quantity uint16) ([]byte, error) {
	return c.read(ctx, func() ([]byte, error) {
		return c.client.ReadInputRegisters(ctx, addr, quantity)
	})
}

// ReadCoils reads one coil; bit 0 of the first byte holds its state.
func (c *Client) ReadCoils(ctx context.Context, addr uint16) ([]byte, error) {
	return c.read(ctx, func() ([]byte, error) {
		return c.client.ReadCoils(ctx, addr, 1)
	})
}

func (c *Client) ReadDiscreteInputs(ctx context.Context, addr uint16) ([]byte, error) {
	return c.read(ctx, func() ([]byte, error) {
		return c.client.ReadDiscreteInputs(ctx, addr, 1)
	})
}

func (c *Client) read(ctx context.Context, op func() ([]byte, error)) ([]byte, error) {
	var data []byte
	err := c.retry(ctx, func() error {
		c.mu.Lock()
		defer c.mu.Unlock()
		var rerr error
		data, rerr = op()
		return rerr
	})
	return data, err
}

// Close closes the underlying handler.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handler != nil {
		_ = c.handler.Close()
	}
}

// --- helpers ---

func isConnError(err error) bool {
	if err == nil {
		return false
	}
	var nerr net.Error
	if errors.As(err, &nerr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "closed by the remote host") ||
		strings.Contains(msg, "i/o timeout") ||
		strings.Contains(msg, "use of closed network connection") ||
		strings.Contains(msg, "connection refused")
}
