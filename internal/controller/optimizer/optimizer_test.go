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

package optimizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompute(t *testing.T) {
	o := New()
	cases := map[float64]float64{
		18: 21.0,
		20: 23.0,
		22: 25.2,
		25: 28.5,
		30: 34.0,
		33: 37.0,
	}
	for in, want := range cases {
		assert.InDelta(t, want, o.Compute(in), 1e-9, "compute(%v)", in)
	}
}

func TestIncrement_ContinuousAtBreakpoints(t *testing.T) {
	const eps = 1e-9
	assert.InDelta(t, Increment(20), Increment(20+eps), 1e-6)
	assert.InDelta(t, Increment(30-eps), Increment(30), 1e-6)
	assert.Equal(t, 3.0, Increment(20))
	assert.Equal(t, 4.0, Increment(30))
	assert.InDelta(t, 3.5, Increment(25), 1e-12)
}

func TestValidate(t *testing.T) {
	o := New()
	assert.True(t, o.ValidateInput(5))
	assert.True(t, o.ValidateInput(35))
	assert.False(t, o.ValidateInput(4.9))
	assert.False(t, o.ValidateInput(35.1))

	assert.True(t, o.ValidateOutput(15))
	assert.True(t, o.ValidateOutput(30))
	assert.False(t, o.ValidateOutput(30.1))
	assert.False(t, o.ValidateOutput(14.9))

	// warm days compute a setpoint the output gate rejects
	assert.False(t, o.ValidateOutput(o.Compute(28)))
}
