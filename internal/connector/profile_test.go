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
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProfile(t *testing.T) {
	samples, err := ParseProfile(strings.NewReader("inflow,note\n# warm-up\n1200,a\n1350.5,b\n900\n"))
	require.NoError(t, err)
	assert.Equal(t, []float64{1200, 1350.5, 900}, samples)
}

func TestParseProfile_Errors(t *testing.T) {
	_, err := ParseProfile(strings.NewReader("inflow\n"))
	assert.Error(t, err)

	_, err = ParseProfile(strings.NewReader("1\nlots\n"))
	assert.ErrorContains(t, err, "row 2")
}

func TestLoadProfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inflow.csv")
	require.NoError(t, os.WriteFile(path, []byte("10\n20\n"), 0o644))
	samples, err := LoadProfile(path)
	require.NoError(t, err)
	assert.Equal(t, []float64{10, 20}, samples)

	_, err = LoadProfile(filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)
}
