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
	"testing"

	"autoflow/internal/station"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroup_ActiveAndIdleChannels(t *testing.T) {
	g := NewGroup(2, 100)
	mask := []bool{true, false}

	tm := 100.0
	for i := range 1000 {
		tm += float64(i%7) + 0.25
		_, err := g.Update(tm, mask)
		require.NoError(t, err)
	}
	got := g.Cumulative()
	assert.InDelta(t, tm-100, got[0], 1e-9)
	assert.Equal(t, 0.0, got[1])
}

func TestGroup_MixedMask(t *testing.T) {
	g := NewGroup(3, 0)
	_, err := g.Update(10, []bool{true, false, true})
	require.NoError(t, err)
	got, err := g.Update(25, []bool{false, true, true})
	require.NoError(t, err)
	assert.Equal(t, []float64{10, 15, 25}, got)
}

func TestGroup_ReturnsCopy(t *testing.T) {
	g := NewGroup(1, 0)
	got, err := g.Update(5, []bool{true})
	require.NoError(t, err)
	got[0] = -1
	assert.Equal(t, []float64{5}, g.Cumulative())
}

func TestGroup_ShapeMismatchLeavesState(t *testing.T) {
	g := NewGroup(2, 0)
	_, err := g.Update(5, []bool{true})
	assert.ErrorIs(t, err, station.ErrShapeMismatch)

	got, err := g.Update(10, []bool{true, true})
	require.NoError(t, err)
	assert.Equal(t, []float64{10, 10}, got)
}
