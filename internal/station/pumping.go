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
	"fmt"
	"slices"

	"autoflow/pkg/logger"
)

// Clamp reports which water level bound, if any, the last update hit.
type Clamp int

const (
	ClampNone Clamp = iota
	ClampUnderflow
	ClampOverflow
)

func (c Clamp) String() string {
	switch c {
	case ClampUnderflow:
		return "underflow"
	case ClampOverflow:
		return "overflow"
	default:
		return "none"
	}
}

// PumpingStation simulates a station: per-pump predictors feeding the mass
// balance of one tank. Update is the only way to change its state.
type PumpingStation struct {
	models        []PumpModel
	variableSpeed map[int]bool
	tankArea      float64
	bounds        Bounds

	snapshot  Snapshot
	lastClamp Clamp

	log *logger.Logger
}

func NewPumpingStation(models []PumpModel, variableSpeed []int, tankArea float64, initial Snapshot, bounds Bounds) (*PumpingStation, error) {
	n := len(models)
	if err := initial.Validate(n); err != nil {
		return nil, fmt.Errorf("initial snapshot: %w", err)
	}
	if err := bounds.Validate(); err != nil {
		return nil, err
	}
	if tankArea <= 0 {
		return nil, fmt.Errorf("tank area must be positive, got %g", tankArea)
	}
	vsp := make(map[int]bool, len(variableSpeed))
	for _, i := range variableSpeed {
		if i < 0 || i >= n {
			return nil, fmt.Errorf("%w: variable speed pump index %d out of range [0, %d)", ErrShapeMismatch, i, n)
		}
		vsp[i] = true
	}
	return &PumpingStation{
		models:        models,
		variableSpeed: vsp,
		tankArea:      tankArea,
		bounds:        bounds,
		snapshot:      initial.Clone(),
		log:           logger.New("PumpStation"),
	}, nil
}

func (p *PumpingStation) NumPumps() int {
	return len(p.models)
}

func (p *PumpingStation) Bounds() Bounds {
	return p.bounds
}

func (p *PumpingStation) IsVariableSpeed(i int) bool {
	return p.variableSpeed[i]
}

// Snapshot returns a copy of the current station state.
func (p *PumpingStation) Snapshot() Snapshot {
	return p.snapshot.Clone()
}

func (p *PumpingStation) LastClamp() Clamp {
	return p.lastClamp
}

// Normalize returns cmd with fixed-speed pumps at the upper speed bound when
// switched on and every switched-off pump at speed 0.
func (p *PumpingStation) Normalize(cmd Command) Command {
	out := cmd.Clone()
	for i := range out.Speed {
		if i >= len(out.Switch) || out.Switch[i] == 0 {
			out.Speed[i] = 0
			continue
		}
		if !p.IsVariableSpeed(i) {
			out.Speed[i] = p.bounds.Speed[1]
		}
	}
	return out
}

// Update advances the station to timestamp t with the given inflow (m³/h)
// under cmd and returns the new snapshot. On error the state is unchanged.
func (p *PumpingStation) Update(t, inflow float64, cmd Command) (Snapshot, error) {
	n := len(p.models)
	if err := cmd.Validate(n); err != nil {
		return Snapshot{}, err
	}

	level := p.snapshot.WaterLevel
	sec := make([]float64, n)
	outflow := make([]float64, n)
	for i, on := range cmd.Switch {
		if on == 0 {
			continue
		}
		features := []float64{level}
		if p.variableSpeed[i] {
			features = append(features, cmd.Speed[i])
		}
		var err error
		if sec[i], err = p.models[i].SEC.Predict(features); err != nil {
			return Snapshot{}, fmt.Errorf("pump %d sec: %w", i, err)
		}
		if outflow[i], err = p.models[i].Flow.Predict(features); err != nil {
			return Snapshot{}, fmt.Errorf("pump %d flow: %w", i, err)
		}
	}

	total := 0.0
	for _, q := range outflow {
		total += q
	}
	netflow := inflow - total
	dtHours := (t - p.snapshot.Timestamp) / 3600
	next := level + netflow*dtHours/p.tankArea

	p.lastClamp = ClampNone
	switch {
	case next < p.bounds.WaterLevel[0]:
		p.log.Warn("The tank is underflowing: water_level = %.2f", next)
		next = p.bounds.WaterLevel[0]
		p.lastClamp = ClampUnderflow
	case next > p.bounds.WaterLevel[1]:
		p.log.Warn("The tank is overflowing: water_level = %.2f", next)
		next = p.bounds.WaterLevel[1]
		p.lastClamp = ClampOverflow
	}

	p.snapshot = Snapshot{
		Timestamp:  t,
		WaterLevel: next,
		Switch:     slices.Clone(cmd.Switch),
		Speed:      slices.Clone(cmd.Speed),
		Outflow:    outflow,
		SEC:        sec,
	}
	return p.snapshot.Clone(), nil
}
