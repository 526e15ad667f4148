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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const twoPumpModels = `
pumps:
  - sec:  {intercept: 0.03, coef: [0.002]}
    flow: {intercept: 4000, coef: [100]}
  - sec:  {intercept: 0.01, coef: [0.001, 0.0005]}
    flow: {intercept: 500, coef: [50, 80]}
`

func TestLinearModel_Predict(t *testing.T) {
	m := LinearModel{Intercept: 1, Coef: []float64{2, 3}}
	y, err := m.Predict([]float64{4, 5})
	require.NoError(t, err)
	assert.Equal(t, 24.0, y)

	_, err = m.Predict([]float64{4})
	assert.Error(t, err)
}

func TestParseModels(t *testing.T) {
	models, err := ParseModels([]byte(twoPumpModels), 2, []int{1})
	require.NoError(t, err)
	require.Len(t, models, 2)

	q, err := models[1].Flow.Predict([]float64{4, 50})
	require.NoError(t, err)
	assert.Equal(t, 500.0+200+4000, q)

	sec, err := models[0].SEC.Predict([]float64{5})
	require.NoError(t, err)
	assert.InDelta(t, 0.04, sec, 1e-12)
}

func TestParseModels_ShapeChecks(t *testing.T) {
	_, err := ParseModels([]byte(twoPumpModels), 3, []int{1})
	assert.ErrorIs(t, err, ErrShapeMismatch)

	// pump 1 declared fixed speed but its models take two features
	_, err = ParseModels([]byte(twoPumpModels), 2, nil)
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestLoadModels(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models.yml")
	require.NoError(t, os.WriteFile(path, []byte(twoPumpModels), 0o644))

	models, err := LoadModels(path, 2, []int{1})
	require.NoError(t, err)
	assert.Len(t, models, 2)

	_, err = LoadModels(filepath.Join(t.TempDir(), "missing.yml"), 2, nil)
	assert.Error(t, err)
}
