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

package recorder

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"autoflow/internal/events"
	"autoflow/internal/station"
	"autoflow/pkg/eventbus"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCycle(cycle uint64) events.CycleUpdate {
	snap := station.Snapshot{
		Timestamp:  1700000000,
		WaterLevel: 4.2,
		Switch:     []int{1, 0},
		Speed:      []float64{50, 0},
		Outflow:    []float64{1200, 0},
		SEC:        []float64{0.05, 0},
	}
	cmd := station.Command{
		Timestamp:            1700000000,
		Switch:               []int{1, 1},
		Speed:                []float64{50, 45},
		TotalOutflowSetpoint: 2000,
		OutflowSetpoints:     []float64{1000, 1000},
		LevelSetpoint:        3,
		Inflow:               1800,
	}
	return events.CycleUpdate{Cycle: cycle, State: "running", Snapshot: snap, Command: &cmd}
}

type memSink struct {
	mu      sync.Mutex
	batches []Batch
	err     error
}

func (m *memSink) Name() string { return "mem" }

func (m *memSink) Send(ctx context.Context, b Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches = append(m.batches, b)
	return m.err
}

func (m *memSink) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.batches)
}

func TestBuildBatch(t *testing.T) {
	b, err := BuildBatch(testCycle(3), "run-1")
	require.NoError(t, err)

	assert.Equal(t, uint64(3), b.Cycle)
	assert.Equal(t, "run-1", b.Station.RunID)
	assert.Equal(t, 2000.0, b.Station.TotalOutflowSetpoint)
	assert.Equal(t, 1200.0, b.Station.TotalOutflow)
	assert.InDelta(t, 0.05, b.Station.SEC, 1e-12)
	require.Len(t, b.Pumps, 2)
	assert.Equal(t, 1, b.Pumps[1].ControlSwitch)
	assert.Equal(t, 0, b.Pumps[1].Switch)
}

func TestBuildBatch_WithoutCommand(t *testing.T) {
	ev := testCycle(1)
	ev.Command = nil
	ev.Snapshot = ev.Snapshot.WithTag(station.TagReturnSetpoint, 25.2)

	b, err := BuildBatch(ev, "run-1")
	require.NoError(t, err)
	assert.Zero(t, b.Station.TotalOutflowSetpoint)
	assert.Equal(t, 0, b.Pumps[0].ControlSwitch)
	assert.Equal(t, 25.2, b.Tags[station.TagReturnSetpoint])
}

func TestBuildBatch_ShapeMismatch(t *testing.T) {
	ev := testCycle(1)
	ev.Command.Switch = []int{1}
	_, err := BuildBatch(ev, "run-1")
	assert.ErrorIs(t, err, station.ErrShapeMismatch)
}

func TestRecorder_SendsEachCycleOnce(t *testing.T) {
	bus := eventbus.New()
	sink := &memSink{err: errors.New("ignored")}
	r := New(bus, 5*time.Millisecond, sink)
	assert.NotEmpty(t, r.RunID())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	bus.Publish(events.TopicCycle, testCycle(1))
	assert.Eventually(t, func() bool { return sink.count() == 1 }, time.Second, time.Millisecond)

	// no new cycle, nothing new sent
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 1, sink.count())

	bus.Publish(events.TopicCycle, testCycle(2))
	assert.Eventually(t, func() bool { return sink.count() == 2 }, time.Second, time.Millisecond)

	cancel()
	<-done
	assert.Equal(t, r.RunID(), sink.batches[1].RunID)
}

func TestEmonCMS_Send(t *testing.T) {
	var query map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/input/post", r.URL.Path)
		query = r.URL.Query()
	}))
	defer srv.Close()

	b, err := BuildBatch(testCycle(1), "run-1")
	require.NoError(t, err)
	require.NoError(t, NewEmonCMS(srv.URL, "secret", "autoflow").Send(context.Background(), b))

	assert.Equal(t, []string{"autoflow"}, query["node"])
	assert.Equal(t, []string{"secret"}, query["apikey"])
	assert.Equal(t, []string{"1700000000"}, query["time"])

	var data map[string]float64
	require.NoError(t, json.Unmarshal([]byte(query["fulljson"][0]), &data))
	assert.Equal(t, 4.2, data["water_level"])
	assert.Equal(t, 1200.0, data["pump0_outflow"])
	assert.Equal(t, 1000.0, data["pump1_outflow_setpoint"])
}

func TestEmonCMS_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid apikey", http.StatusUnauthorized)
	}))
	defer srv.Close()

	err := NewEmonCMS(srv.URL, "bad", "autoflow").Send(context.Background(), Batch{})
	assert.ErrorContains(t, err, "401")
}

// fakeToken completes immediately.
type fakeToken struct {
	err  error
	done chan struct{}
}

func newToken(err error) *fakeToken {
	t := &fakeToken{err: err, done: make(chan struct{})}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

type fakeClient struct {
	mqtt.Client
	topic   string
	payload []byte
	err     error
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload any) mqtt.Token {
	c.topic = topic
	c.payload = payload.([]byte)
	return newToken(c.err)
}

func TestMQTT_Send(t *testing.T) {
	client := &fakeClient{}
	sink := NewMQTT(client, "autoflow/records")

	b, err := BuildBatch(testCycle(4), "run-1")
	require.NoError(t, err)
	require.NoError(t, sink.Send(context.Background(), b))

	assert.Equal(t, "autoflow/records", client.topic)
	var got Batch
	require.NoError(t, json.Unmarshal(client.payload, &got))
	assert.Equal(t, uint64(4), got.Cycle)
	assert.Len(t, got.Pumps, 2)

	client.err = errors.New("not connected")
	assert.ErrorContains(t, sink.Send(context.Background(), b), "not connected")
}
