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

package connector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"autoflow/internal/station"
)

var (
	// ErrTransport wraps every failure to reach the plant.
	ErrTransport = errors.New("transport error")
	// ErrPayloadKind is returned when a connector is handed a payload it
	// cannot write.
	ErrPayloadKind = errors.New("unsupported payload kind")
)

// Connector is the control loop's only view of the plant.
type Connector interface {
	ReadMeasurement(ctx context.Context) (station.Snapshot, error)
	WriteCommand(ctx context.Context, p station.Payload) error
	ReadSettings(ctx context.Context) (station.Setting, error)
	// Pace blocks until the next cycle should start.
	Pace(ctx context.Context) error
}

func transportErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrTransport, err)
}

func payloadErr(name string, p station.Payload) error {
	return fmt.Errorf("%s connector cannot write %T: %w", name, p, ErrPayloadKind)
}

// unixSeconds converts a wall clock time to the float timestamps used by
// snapshots.
func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}
