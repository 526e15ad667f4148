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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTank_EmptyEstimateIsZero(t *testing.T) {
	tank := NewTank(100, 5, 0)
	assert.Equal(t, 0.0, tank.InflowEstimate())
	assert.Equal(t, 5.0, tank.Level())
}

func TestTank_SameTimestampIsNoop(t *testing.T) {
	tank := NewTank(100, 5, 0)
	tank.Update(60, 5.1, 1000)
	first := tank.InflowEstimate()

	tank.Update(60, 5.1, 1000)
	assert.Equal(t, 1, tank.Samples())
	assert.Equal(t, first, tank.InflowEstimate())
	assert.Equal(t, 5.1, tank.Level())
}

func TestTank_MassBalance(t *testing.T) {
	const (
		area    = 100.0
		inflow  = 3000.0
		outflow = 2000.0
		dt      = 60.0
	)
	tank := NewTank(area, 5, 0)
	level := 5.0
	for i := 1; i <= 150; i++ {
		level += (inflow - outflow) * dt / 3600 / area
		tank.Update(float64(i)*dt, level, outflow)
		assert.InDelta(t, inflow, tank.InflowEstimate(), 1e-6, "step %d", i)
	}
	assert.Equal(t, inflowHistory, tank.Samples())
}

func TestTank_EvictsOldestSample(t *testing.T) {
	tank := NewTank(100, 5, 0)
	ts := 0.0
	// 100 samples of zero inflow, then 50 samples of 500
	for range 100 {
		ts += 10
		tank.Update(ts, 5, 0)
	}
	for range 50 {
		ts += 10
		tank.Update(ts, 5, 500)
	}
	assert.InDelta(t, 250.0, tank.InflowEstimate(), 1e-9)

	for range 50 {
		ts += 10
		tank.Update(ts, 5, 500)
	}
	assert.InDelta(t, 500.0, tank.InflowEstimate(), 1e-9)
}
