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
	"fmt"
	"time"

	"autoflow/internal/events"
	"autoflow/internal/station"
	"autoflow/pkg/eventbus"
	"autoflow/pkg/logger"

	"github.com/google/uuid"
)

// Batch is what one recorded cycle ships to the sinks.
type Batch struct {
	RunID   string                `json:"run_id"`
	Cycle   uint64                `json:"cycle"`
	State   string                `json:"state"`
	Station station.StationRecord `json:"station"`
	Pumps   []station.PumpRecord  `json:"pumps"`
	Tags    map[string]float64    `json:"tags,omitempty"`
}

// Sink ships batches to external storage.
type Sink interface {
	Name() string
	Send(ctx context.Context, b Batch) error
}

// BuildBatch derives the records of a cycle. Cycles without a command (the
// cooling law) get an all-off control side.
func BuildBatch(ev events.CycleUpdate, runID string) (Batch, error) {
	cmd := station.NewCommand(ev.Snapshot.Timestamp, len(ev.Snapshot.Switch))
	if ev.Command != nil {
		cmd = *ev.Command
	}
	st, pumps, err := station.BuildRecords(ev.Snapshot, cmd, runID)
	if err != nil {
		return Batch{}, fmt.Errorf("cycle %d: %w", ev.Cycle, err)
	}
	return Batch{
		RunID:   runID,
		Cycle:   ev.Cycle,
		State:   ev.State,
		Station: st,
		Pumps:   pumps,
		Tags:    ev.Snapshot.Tags,
	}, nil
}

// Recorder ships the latest cycle to every sink once per interval.
type Recorder struct {
	bus      *eventbus.Bus
	sinks    []Sink
	interval time.Duration
	runID    string

	latest   *events.CycleUpdate
	recorded uint64

	log *logger.Logger
}

func New(bus *eventbus.Bus, interval time.Duration, sinks ...Sink) *Recorder {
	return &Recorder{
		bus:      bus,
		sinks:    sinks,
		interval: interval,
		runID:    uuid.NewString(),
		log:      logger.New("Recorder"),
	}
}

// RunID identifies this process run on every record.
func (r *Recorder) RunID() string {
	return r.runID
}

func (r *Recorder) Run(ctx context.Context) {
	r.log.Info("Running with run id %s...", r.runID)
	defer r.log.Info("Stopped.")

	cycles, unsub := r.bus.Subscribe(ctx, events.TopicCycle, true)
	defer unsub()

	tick := time.NewTicker(r.interval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-cycles:
			if !ok {
				return
			}
			update := ev.(events.CycleUpdate)
			r.latest = &update
		case <-tick.C:
			r.tick(ctx)
		}
	}
}

// tick sends the latest cycle unless it was already recorded.
func (r *Recorder) tick(ctx context.Context) {
	if r.latest == nil || r.latest.Cycle == r.recorded {
		return
	}
	b, err := BuildBatch(*r.latest, r.runID)
	if err != nil {
		r.log.Error("build records: %v", err)
		return
	}
	r.recorded = r.latest.Cycle
	for _, s := range r.sinks {
		if err := s.Send(ctx, b); err != nil {
			r.log.Error("%s: %v", s.Name(), err)
		}
	}
}
