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

package controller

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"autoflow/internal/connector"
	"autoflow/internal/events"
	"autoflow/internal/station"
	"autoflow/pkg/eventbus"
	"autoflow/pkg/logger"
)

// Controller is the control loop: read, compute, write, pace. It owns all
// control state and is driven from a single goroutine.
type Controller struct {
	conn connector.Connector
	law  Law
	bus  *eventbus.Bus

	state State
	cycle uint64
	now   func() time.Time

	mux     sync.Once
	handler http.Handler

	log *logger.Logger
}

func New(conn connector.Connector, law Law, bus *eventbus.Bus) *Controller {
	return &Controller{
		conn: conn,
		law:  law,
		bus:  bus,
		now:  time.Now,
		log:  logger.New("Controller"),
	}
}

func (c *Controller) State() State {
	return c.state
}

// Cycle runs one read/compute/write pass and then paces. Invalid input skips
// the write and leaves the loop in FaultedOnInput; any other error is
// returned.
func (c *Controller) Cycle(ctx context.Context) error {
	c.cycle++

	snap, err := c.conn.ReadMeasurement(ctx)
	if err != nil {
		return fmt.Errorf("read measurement: %w", err)
	}
	update := events.CycleUpdate{
		Time:     c.now(),
		Cycle:    c.cycle,
		Snapshot: snap,
	}

	payload, err := c.compute(ctx, snap)
	switch {
	case errors.Is(err, ErrValidation):
		c.setState(FaultedOnInput)
		update.Reason = err.Error()
		c.log.Info("cycle %d skipped: %v", c.cycle, err)

	case err != nil:
		return err

	default:
		// a stop signal must never cut a write in half
		if err := c.conn.WriteCommand(context.WithoutCancel(ctx), payload); err != nil {
			return fmt.Errorf("write %s payload: %w", c.law.Name(), err)
		}
		c.setState(Running)
		switch p := payload.(type) {
		case station.Command:
			update.Command = &p
		case station.Snapshot:
			update.Snapshot = p
		}
	}

	if rt, ok := c.law.(RunTimeReporter); ok {
		update.RunTimes = rt.RunTimes()
	}
	update.State = c.state.String()
	if c.bus != nil {
		c.bus.Publish(events.TopicCycle, update)
	}

	return c.conn.Pace(ctx)
}

func (c *Controller) compute(ctx context.Context, snap station.Snapshot) (station.Payload, error) {
	if sc, ok := c.law.(SettingsConsumer); ok {
		s, err := c.conn.ReadSettings(ctx)
		if err != nil {
			return nil, fmt.Errorf("read settings: %w", err)
		}
		if err := sc.ApplySetting(s); err != nil {
			return nil, err
		}
	}
	return c.law.Compute(snap)
}

func (c *Controller) setState(s State) {
	if s != c.state {
		c.log.Info("state %s -> %s", c.state, s)
	}
	c.state = s
}

// Serve cycles until ctx is done. Cancellation is only observed between
// cycles or while pacing, and is not an error. Any other cycle error is
// returned, even when ctx was cancelled meanwhile.
func (c *Controller) Serve(ctx context.Context) error {
	for ctx.Err() == nil {
		if err := c.Cycle(ctx); err != nil {
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				return nil
			}
			return err
		}
	}
	return nil
}

// Run serves the loop as a service. A loop error is fatal.
func (c *Controller) Run(ctx context.Context) {
	c.log.Info("Running %s law...", c.law.Name())
	defer c.log.Info("Stopped")

	if err := c.Serve(ctx); err != nil {
		c.log.Fatal("control loop stopped: %v", err)
	}
}
