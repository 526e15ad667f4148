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

package stopwatch

import (
	"fmt"
	"slices"

	"autoflow/internal/station"
)

// Group accumulates active time per channel, e.g. pump run hours.
type Group struct {
	cumulative []float64
	tLast      float64
}

// NewGroup starts n stopped channels at time t (seconds).
func NewGroup(n int, t float64) *Group {
	return &Group{
		cumulative: make([]float64, n),
		tLast:      t,
	}
}

// Update adds the time since the last call to every active channel and
// returns a copy of the cumulative times.
func (g *Group) Update(t float64, active []bool) ([]float64, error) {
	if len(active) != len(g.cumulative) {
		return nil, fmt.Errorf("stopwatch: %d channels, got mask of %d: %w", len(g.cumulative), len(active), station.ErrShapeMismatch)
	}
	dt := t - g.tLast
	for i, on := range active {
		if on {
			g.cumulative[i] += dt
		}
	}
	g.tLast = t
	return g.Cumulative(), nil
}

func (g *Group) Cumulative() []float64 {
	return slices.Clone(g.cumulative)
}
