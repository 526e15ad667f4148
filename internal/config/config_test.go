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

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"autoflow/internal/station"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_Defaults(t *testing.T) {
	c, err := Decode(strings.NewReader(`{}`))
	require.NoError(t, err)

	assert.Equal(t, ModeVirtual, c.Mode)
	assert.Equal(t, LawCooling, c.Controller.Law)
	assert.Equal(t, 60.0, c.SampleSeconds)
	assert.Equal(t, time.Minute, c.SamplePeriod())
	assert.Equal(t, 8, c.Station.Pumps)
	assert.Equal(t, station.DefaultBounds(), c.Station.Bounds)
	assert.Equal(t, c.Station.Bounds.Speed, c.Station.Dispatch.Speed)
	assert.Equal(t, station.DefaultSetting(), c.Virtual.Setting)
	assert.Equal(t, 5, c.API.TimeoutSeconds)
	assert.Equal(t, 3, c.API.Retries)
	assert.Equal(t, ":8080", c.HTTP.Addr)
	assert.Equal(t, "06:00", c.Maintenance.ReportAt)

	loc, err := c.Location()
	require.NoError(t, err)
	assert.Equal(t, time.Local, loc)
}

func TestDecode_KeepsValues(t *testing.T) {
	c, err := Decode(strings.NewReader(`{
		"mode": "api",
		"sample_seconds": 5,
		"controller": {"law": "level", "timezone": "UTC"},
		"station": {
			"pumps": 3,
			"variable_speed_pumps": [2],
			"bounds": {"water_level": [1, 8], "speed": [30, 50]},
			"dispatch": {"pumps": [
				{"min_flow": 500, "max_flow": 1500, "opt_flow": 1000},
				{"min_flow": 500, "max_flow": 1500, "opt_flow": 1000},
				{"min_flow": 300, "max_flow": 1500, "opt_flow": 900}
			]}
		},
		"api": {"url": "http://gw/", "retries": 5}
	}`))
	require.NoError(t, err)

	assert.Equal(t, ModeAPI, c.Mode)
	assert.Equal(t, LawLevel, c.Controller.Law)
	assert.Equal(t, 3, c.Station.Pumps)
	assert.Equal(t, []int{2}, c.Station.VariableSpeed)
	assert.Equal(t, [2]float64{1, 8}, c.Station.Bounds.WaterLevel)
	assert.Equal(t, [2]float64{30, 50}, c.Station.Dispatch.Speed)
	require.Len(t, c.Station.Dispatch.Pumps, 3)
	assert.False(t, c.Station.Dispatch.Pumps[0].VariableSpeed)
	assert.False(t, c.Station.Dispatch.Pumps[1].VariableSpeed)
	assert.True(t, c.Station.Dispatch.Pumps[2].VariableSpeed)
	assert.Equal(t, 1800.0, c.Station.Dispatch.MinSwitchInterval)
	assert.Equal(t, 5, c.API.Retries)

	loc, err := c.Location()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)
}

func TestDecode_Rejects(t *testing.T) {
	for name, js := range map[string]string{
		"mode":     `{"mode": "serial"}`,
		"law":      `{"controller": {"law": "fuzzy"}}`,
		"timezone": `{"controller": {"timezone": "Mars/Olympus"}}`,
		"bounds":   `{"station": {"bounds": {"water_level": [5, 1], "speed": [40, 50]}}}`,
		"json":     `{"mode":`,
		"dispatch": `{"controller": {"law": "level"}, "station": {"pumps": 2}}`,
		"api law":  `{"mode": "api", "api": {"url": "http://gw/"}}`,
	} {
		_, err := Decode(strings.NewReader(js))
		assert.Error(t, err, name)
	}
}

func TestDecode_VariableSpeedMustAgree(t *testing.T) {
	level := func(st string) string {
		return `{"controller": {"law": "level"}, "station": ` + st + `}`
	}
	for name, js := range map[string]string{
		"dispatch only": level(`{"pumps": 1, "variable_speed_pumps": [],
			"dispatch": {"pumps": [{"min_flow": 1000, "max_flow": 50000, "opt_flow": 30000, "variable_speed": true}]}}`),
		"index out of range": level(`{"pumps": 1, "variable_speed_pumps": [1],
			"dispatch": {"pumps": [{"min_flow": 1000, "max_flow": 50000, "opt_flow": 30000}]}}`),
		"cooling law too": `{"station": {"pumps": 2, "variable_speed_pumps": [-1]}}`,
	} {
		_, err := Decode(strings.NewReader(js))
		assert.ErrorIs(t, err, station.ErrShapeMismatch, name)
	}

	c, err := Decode(strings.NewReader(level(`{"pumps": 2, "variable_speed_pumps": [0],
		"dispatch": {"pumps": [
			{"min_flow": 1000, "max_flow": 50000, "opt_flow": 30000},
			{"min_flow": 1000, "max_flow": 50000, "opt_flow": 30000, "variable_speed": false}
		]}}`)))
	require.NoError(t, err)
	assert.True(t, c.Station.Dispatch.Pumps[0].VariableSpeed)
	assert.False(t, c.Station.Dispatch.Pumps[1].VariableSpeed)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "autoflow.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"sample_seconds": 1}`), 0o644))
	assert.Equal(t, 1.0, LoadFile(path).SampleSeconds)

	assert.Panics(t, func() { LoadFile(filepath.Join(t.TempDir(), "missing.json")) })
}
