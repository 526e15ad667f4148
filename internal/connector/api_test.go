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
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"autoflow/internal/station"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAPI(t *testing.T, h http.Handler) *API {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	a, err := NewAPI(APIOptions{
		URL:      srv.URL + "/",
		Timeout:  time.Second,
		Retry:    NewRetry(3, time.Millisecond, "APITest"),
		Fallback: station.DefaultSetting(),
		Location: time.UTC,
		Period:   time.Second,
	})
	require.NoError(t, err)
	return a
}

func TestAPI_ReadMeasurement(t *testing.T) {
	a := newTestAPI(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/input", r.URL.Path)
		w.Write([]byte(`{
			"timestamp": "2024-03-01 12:00:00",
			"input.water_level": 4.5,
			"input.switch": [1, 0],
			"input.speed": [50, 0],
			"input.outflow": [1500, 0],
			"input.sec": [0.04, 0],
			"input.wet_bulb_temp": 23.5,
			"note": 7
		}`))
	}))

	snap, err := a.ReadMeasurement(context.Background())
	require.NoError(t, err)
	assert.Equal(t, float64(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC).Unix()), snap.Timestamp)
	assert.Equal(t, 4.5, snap.WaterLevel)
	assert.Equal(t, []int{1, 0}, snap.Switch)
	assert.Equal(t, map[string]float64{station.TagWetBulb: 23.5}, snap.Tags)
}

func TestAPI_ReadRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	a := newTestAPI(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "busy", http.StatusServiceUnavailable)
	}))

	_, err := a.ReadMeasurement(context.Background())
	assert.ErrorIs(t, err, ErrTransport)
	assert.Equal(t, int32(3), calls.Load())
}

func TestAPI_BadTimestamp(t *testing.T) {
	a := newTestAPI(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"timestamp": "yesterday"}`))
	}))
	_, err := a.ReadMeasurement(context.Background())
	assert.ErrorIs(t, err, ErrTransport)
}

func TestAPI_WriteCommand(t *testing.T) {
	var got map[string]any
	a := newTestAPI(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/output", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))

	cmd := station.NewCommand(0, 2)
	cmd.Switch = []int{1, 0}
	cmd.Speed = []float64{50, 0}
	cmd.OutflowSetpoints = []float64{1500, 0}
	cmd.TotalOutflowSetpoint = 1500
	require.NoError(t, a.WriteCommand(context.Background(), cmd))

	assert.Equal(t, []any{1.0, 0.0}, got["output.switch"])
	assert.Equal(t, []any{1500.0, 0.0}, got["output.outflow_setpoint"])
	assert.Equal(t, 1500.0, got["output.total_outflow_setpoint"])
}

func TestAPI_RejectsSnapshot(t *testing.T) {
	a := newTestAPI(t, http.NotFoundHandler())
	err := a.WriteCommand(context.Background(), station.Snapshot{})
	assert.ErrorIs(t, err, ErrPayloadKind)
}

func TestAPI_SettingsFallbackOn404(t *testing.T) {
	a := newTestAPI(t, http.NotFoundHandler())
	s, err := a.ReadSettings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, station.DefaultSetting(), s)
}

func TestAPI_SettingsOverrideFallback(t *testing.T) {
	a := newTestAPI(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"outflow_lower": 10000, "outflow_upper": 30000, "pid_ki": -1}`))
	}))
	s, err := a.ReadSettings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10000.0, s.OutflowLower)
	assert.Equal(t, 30000.0, s.OutflowUpper)
	assert.Equal(t, -1.0, s.PIDKi)
	assert.Equal(t, station.DefaultSetting().PIDKp, s.PIDKp)
}

func TestNewAPI_RequiresURL(t *testing.T) {
	_, err := NewAPI(APIOptions{})
	assert.Error(t, err)
}
