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

package pid

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func saturating(kb float64) Setting {
	return Setting{
		Kp: 1, Ki: 1, Kd: 0,
		CVMin: 0, CVMax: 10, CVBar: 0,
		Kb:    kb,
		EIMin: -100, EIMax: 100,
	}
}

func TestSetting_Validate(t *testing.T) {
	assert.NoError(t, saturating(1).Validate())

	s := saturating(1)
	s.CVMin = 20
	assert.Error(t, s.Validate())

	s = saturating(1)
	s.EIMin, s.EIMax = 1, -1
	assert.Error(t, s.Validate())
}

func TestController_OutputStaysClamped(t *testing.T) {
	s := Setting{Kp: 3, Ki: 0.7, Kd: 0.4, CVMin: -5, CVMax: 12, CVBar: 1, Kb: 0.5, EIMin: -50, EIMax: 50}
	require.NoError(t, s.Validate())

	rng := rand.New(rand.NewSource(7))
	c := New(s, 0)
	tm := 0.0
	for range 2000 {
		tm += 0.1 + rng.Float64()*10
		out := c.Update(tm, rng.NormFloat64()*100, rng.NormFloat64()*100)
		require.GreaterOrEqual(t, out, s.CVMin)
		require.LessOrEqual(t, out, s.CVMax)
		require.GreaterOrEqual(t, c.Integral(), s.EIMin)
		require.LessOrEqual(t, c.Integral(), s.EIMax)
	}
}

func TestController_InitialOutputIsBias(t *testing.T) {
	s := saturating(1)
	s.CVBar = 4
	c := New(s, 10)
	assert.Equal(t, 4.0, c.Output())
	// first call at the construction time is a duplicate tick
	assert.Equal(t, 4.0, c.Update(10, 0, 100))
	assert.Equal(t, 0.0, c.Integral())
}

func TestController_DuplicateTickIsNoop(t *testing.T) {
	c := New(saturating(1), 0)
	first := c.Update(1, 0, 2)
	integral := c.Integral()

	assert.Equal(t, first, c.Update(1, 50, -50))
	assert.Equal(t, first, c.Update(1+1e-9, 50, -50))
	assert.Equal(t, integral, c.Integral())
}

func TestController_Step(t *testing.T) {
	s := Setting{Kp: 2, Ki: 0.5, Kd: 1, CVMin: -100, CVMax: 100, CVBar: 1, Kb: 1, EIMin: -100, EIMax: 100}
	c := New(s, 0)

	// e=3, dt=2: p=6, i=3, d=1.5
	assert.InDelta(t, 1+6+3+1.5, c.Update(2, 1, 4), 1e-12)
	// e=1, dt=1: p=2, i=3.5, d=-2
	assert.InDelta(t, 1+2+3.5-2, c.Update(3, 3, 4), 1e-12)
}

func TestController_AntiWindup(t *testing.T) {
	withKb := New(saturating(1), 0)
	without := New(saturating(0), 0)

	// error of 100 saturates the output for several steps
	for i := 1; i <= 5; i++ {
		tm := float64(i)
		assert.Equal(t, 10.0, withKb.Update(tm, 0, 100))
		assert.Equal(t, 10.0, without.Update(tm, 0, 100))
	}
	// back-calculation pulls the integrator down to the saturation level
	assert.Equal(t, 10.0, withKb.Integral())
	assert.Equal(t, 100.0, without.Integral())

	// error removed: the back-calculated integrator drains, the wound-up one stays stuck
	var a, b float64
	for i := 6; i <= 10; i++ {
		tm := float64(i)
		a = withKb.Update(tm, 0, 0)
		b = without.Update(tm, 0, 0)
	}
	assert.Equal(t, 0.0, a)
	assert.Equal(t, 0.0, withKb.Integral())
	assert.Equal(t, 10.0, b)
	assert.Equal(t, 100.0, without.Integral())
}

func TestController_UpdateSettingKeepsState(t *testing.T) {
	c := New(saturating(1), 0)
	c.Update(1, 0, 3)
	integral := c.Integral()

	s := saturating(1)
	s.Kp = 0
	s.Ki = 0
	c.UpdateSetting(s)
	assert.Equal(t, integral, c.Integral())
	assert.Equal(t, s, c.Setting())

	// ki=0, kp=0: only the stored integral drives the output
	assert.Equal(t, integral, c.Update(2, 0, 3))
}
