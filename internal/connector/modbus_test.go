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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"autoflow/internal/station"
	"autoflow/pkg/modbus"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTags is an in-memory register bank.
type fakeTags struct {
	defs    map[string]modbus.RegisterDef
	values  map[string]float64
	writes  []string
	readErr error
	limit   map[string]float64
}

func newFakeTags() *fakeTags {
	f := &fakeTags{
		defs:   make(map[string]modbus.RegisterDef),
		values: make(map[string]float64),
		limit:  make(map[string]float64),
	}
	for _, name := range []string{"lvl", "sw0", "sw1", "spd0", "spd1", "q0", "q1", "sec0", "sec1", "tw", "kp"} {
		f.defs[name] = modbus.RegisterDef{Type: modbus.KindInput, DataType: "float32"}
	}
	for _, name := range []string{"cmd_sw0", "cmd_sw1", "cmd_spd0", "cmd_spd1", "q_sp", "ctw_sp"} {
		f.defs[name] = modbus.RegisterDef{Type: modbus.KindHolding, DataType: "float32", Writable: true}
	}
	return f
}

func (f *fakeTags) ReadFloat(_ context.Context, name string) (float64, error) {
	if f.readErr != nil {
		return 0, f.readErr
	}
	return f.values[name], nil
}

func (f *fakeTags) WriteValue(_ context.Context, name string, value any) error {
	v, _ := toFloat(value)
	f.values[name] = v
	f.writes = append(f.writes, name)
	return nil
}

func (f *fakeTags) CheckValue(name string, value any) error {
	v, _ := toFloat(value)
	if lim, ok := f.limit[name]; ok && v > lim {
		return fmt.Errorf("%s: %g out of range", name, v)
	}
	return nil
}

func (f *fakeTags) Register(name string) (modbus.RegisterDef, bool) {
	d, ok := f.defs[name]
	return d, ok
}

const testTagMap = `
tags:
  station:
    water_level: lvl
    switch: [sw0, sw1]
    speed: [spd0, spd1]
    outflow: [q0, q1]
    sec: [sec0, sec1]
    scalars:
      wet_bulb_temp: tw
  control:
    switch: [cmd_sw0, cmd_sw1]
    speed: [cmd_spd0, cmd_spd1]
    total_outflow_setpoint: q_sp
    scalars:
      return_temp_setpoint: ctw_sp
  setting:
    pid_kp: kp
`

func newTestModbus(t *testing.T, io TagIO) *Modbus {
	t.Helper()
	tags, err := ParseTagMap([]byte(testTagMap))
	require.NoError(t, err)
	m, err := NewModbus(io, ModbusOptions{Tags: tags, Pumps: 2, Fallback: station.DefaultSetting()})
	require.NoError(t, err)
	return m
}

func TestTagMap_Check(t *testing.T) {
	tags, err := ParseTagMap([]byte(testTagMap))
	require.NoError(t, err)
	io := newFakeTags()

	assert.NoError(t, tags.Check(io, 2))
	assert.ErrorIs(t, tags.Check(io, 3), station.ErrShapeMismatch)

	missing := tags
	missing.Station.WaterLevel = "nope"
	assert.ErrorIs(t, missing.Check(io, 2), station.ErrShapeMismatch)

	readOnly := tags
	readOnly.Control.TotalOutflowSetpoint = "lvl"
	assert.ErrorIs(t, readOnly.Check(io, 2), station.ErrShapeMismatch)
}

func TestModbus_ReadMeasurement(t *testing.T) {
	io := newFakeTags()
	for name, v := range map[string]float64{
		"lvl": 4.2, "sw0": 1, "sw1": 0, "spd0": 50, "q0": 1200, "sec0": 0.05, "tw": 21.5,
	} {
		io.values[name] = v
	}
	m := newTestModbus(t, io)

	snap, err := m.ReadMeasurement(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4.2, snap.WaterLevel)
	assert.Equal(t, []int{1, 0}, snap.Switch)
	assert.Equal(t, []float64{50, 0}, snap.Speed)
	assert.Equal(t, []float64{1200, 0}, snap.Outflow)
	assert.Equal(t, 21.5, snap.Tags[station.TagWetBulb])
	assert.NoError(t, snap.Validate(2))
}

func TestModbus_ReadErrorIsTransport(t *testing.T) {
	io := newFakeTags()
	io.readErr = errors.New("connection reset")
	m := newTestModbus(t, io)

	_, err := m.ReadMeasurement(context.Background())
	assert.ErrorIs(t, err, ErrTransport)
}

func TestModbus_WriteCommand(t *testing.T) {
	io := newFakeTags()
	m := newTestModbus(t, io)

	cmd := station.NewCommand(0, 2)
	cmd.Switch = []int{1, 0}
	cmd.Speed = []float64{50, 0}
	cmd.TotalOutflowSetpoint = 1200
	require.NoError(t, m.WriteCommand(context.Background(), cmd))

	assert.Equal(t, []string{"cmd_sw0", "cmd_sw1", "cmd_spd0", "cmd_spd1", "q_sp"}, io.writes)
	assert.Equal(t, 1.0, io.values["cmd_sw0"])
	assert.Equal(t, 1200.0, io.values["q_sp"])
}

func TestModbus_NoPartialWrite(t *testing.T) {
	io := newFakeTags()
	io.limit["q_sp"] = 1000
	m := newTestModbus(t, io)

	cmd := station.NewCommand(0, 2)
	cmd.Switch = []int{1, 1}
	cmd.TotalOutflowSetpoint = 5000
	err := m.WriteCommand(context.Background(), cmd)
	assert.ErrorIs(t, err, station.ErrShapeMismatch)
	assert.Empty(t, io.writes)

	err = m.WriteCommand(context.Background(), station.NewCommand(0, 3))
	assert.ErrorIs(t, err, station.ErrShapeMismatch)
	assert.Empty(t, io.writes)
}

func TestModbus_WriteSnapshot(t *testing.T) {
	io := newFakeTags()
	m := newTestModbus(t, io)

	snap := station.Snapshot{}.WithTag(station.TagReturnSetpoint, 25.2)
	require.NoError(t, m.WriteCommand(context.Background(), snap))
	assert.Equal(t, []string{"ctw_sp"}, io.writes)
	assert.Equal(t, 25.2, io.values["ctw_sp"])

	err := m.WriteCommand(context.Background(), station.Snapshot{})
	assert.ErrorIs(t, err, station.ErrShapeMismatch)
}

func TestModbus_ReadSettingsOverridesFallback(t *testing.T) {
	io := newFakeTags()
	io.values["kp"] = -500
	m := newTestModbus(t, io)

	s, err := m.ReadSettings(context.Background())
	require.NoError(t, err)
	want := station.DefaultSetting()
	want.PIDKp = -500
	assert.Equal(t, want, s)
}

func TestModbus_ValuesHandler(t *testing.T) {
	io := newFakeTags()
	io.values["lvl"] = 3.3
	m := newTestModbus(t, io)
	_, err := m.ReadMeasurement(context.Background())
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	m.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/values", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var values []Value
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &values))
	found := false
	for _, v := range values {
		if v.ID == "lvl" {
			found = true
			assert.Equal(t, 3.3, v.Value)
			assert.False(t, v.Writable)
		}
	}
	assert.True(t, found)
}
