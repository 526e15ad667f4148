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

package station

import (
	"errors"
	"fmt"
	"maps"
	"slices"
)

// ErrShapeMismatch is returned when per-pump arrays disagree in length or a
// tag set does not match its backing addresses.
var ErrShapeMismatch = errors.New("shape mismatch")

// Well-known scalar tags carried in Snapshot.Tags.
const (
	TagWetBulb        = "wet_bulb_temp"
	TagReturnSetpoint = "return_temp_setpoint"
)

// Payload is what a connector's write path accepts: a Command or a Snapshot.
type Payload interface {
	payload()
}

// Snapshot is one timestamped set of plant measurements.
type Snapshot struct {
	Timestamp  float64            `json:"timestamp"`
	WaterLevel float64            `json:"water_level"`
	Switch     []int              `json:"switch"`
	Speed      []float64          `json:"speed"`
	Outflow    []float64          `json:"outflow"`
	SEC        []float64          `json:"sec"`
	Tags       map[string]float64 `json:"tags,omitempty"`
}

func (Snapshot) payload() {}

// Validate checks that every per-pump array holds nPumps entries and that
// switches are 0/1.
func (s Snapshot) Validate(nPumps int) error {
	lengths := map[string]int{
		"switch":  len(s.Switch),
		"speed":   len(s.Speed),
		"outflow": len(s.Outflow),
		"sec":     len(s.SEC),
	}
	for name, n := range lengths {
		if n != nPumps {
			return fmt.Errorf("%w: snapshot %s has %d entries, want %d", ErrShapeMismatch, name, n, nPumps)
		}
	}
	return checkSwitches(s.Switch)
}

// TotalOutflow sums the per-pump outflow.
func (s Snapshot) TotalOutflow() float64 {
	total := 0.0
	for _, q := range s.Outflow {
		total += q
	}
	return total
}

// Active returns the switch array as a boolean mask.
func (s Snapshot) Active() []bool {
	mask := make([]bool, len(s.Switch))
	for i, sw := range s.Switch {
		mask[i] = sw != 0
	}
	return mask
}

func (s Snapshot) Clone() Snapshot {
	c := s
	c.Switch = slices.Clone(s.Switch)
	c.Speed = slices.Clone(s.Speed)
	c.Outflow = slices.Clone(s.Outflow)
	c.SEC = slices.Clone(s.SEC)
	c.Tags = maps.Clone(s.Tags)
	return c
}

// WithTag returns a copy of the snapshot with name set to value.
func (s Snapshot) WithTag(name string, value float64) Snapshot {
	c := s.Clone()
	if c.Tags == nil {
		c.Tags = make(map[string]float64)
	}
	c.Tags[name] = value
	return c
}

// Command is the control output for one cycle.
type Command struct {
	Timestamp            float64   `json:"timestamp"`
	Switch               []int     `json:"switch"`
	Speed                []float64 `json:"speed"`
	TotalOutflowSetpoint float64   `json:"total_outflow_setpoint"`
	OutflowSetpoints     []float64 `json:"outflow_setpoints"`
	LevelSetpoint        float64   `json:"level_setpoint"`
	Inflow               float64   `json:"inflow"`
}

func (Command) payload() {}

func (c Command) Validate(nPumps int) error {
	lengths := map[string]int{
		"switch":            len(c.Switch),
		"speed":             len(c.Speed),
		"outflow_setpoints": len(c.OutflowSetpoints),
	}
	for name, n := range lengths {
		if n != nPumps {
			return fmt.Errorf("%w: command %s has %d entries, want %d", ErrShapeMismatch, name, n, nPumps)
		}
	}
	return checkSwitches(c.Switch)
}

func (c Command) Clone() Command {
	out := c
	out.Switch = slices.Clone(c.Switch)
	out.Speed = slices.Clone(c.Speed)
	out.OutflowSetpoints = slices.Clone(c.OutflowSetpoints)
	return out
}

// NewCommand returns an all-off command for nPumps.
func NewCommand(t float64, nPumps int) Command {
	return Command{
		Timestamp:        t,
		Switch:           make([]int, nPumps),
		Speed:            make([]float64, nPumps),
		OutflowSetpoints: make([]float64, nPumps),
	}
}

func checkSwitches(sw []int) error {
	for i, v := range sw {
		if v != 0 && v != 1 {
			return fmt.Errorf("%w: switch[%d] = %d, want 0 or 1", ErrShapeMismatch, i, v)
		}
	}
	return nil
}

// Bounds are the hard physical limits of the station.
type Bounds struct {
	WaterLevel [2]float64 `json:"water_level"`
	Speed      [2]float64 `json:"speed"`
}

func DefaultBounds() Bounds {
	return Bounds{
		WaterLevel: [2]float64{0, 10},
		Speed:      [2]float64{40, 50},
	}
}

func (b Bounds) Validate() error {
	if b.WaterLevel[0] > b.WaterLevel[1] {
		return fmt.Errorf("water level bounds inverted: [%g, %g]", b.WaterLevel[0], b.WaterLevel[1])
	}
	if b.Speed[0] > b.Speed[1] {
		return fmt.Errorf("speed bounds inverted: [%g, %g]", b.Speed[0], b.Speed[1])
	}
	return nil
}
