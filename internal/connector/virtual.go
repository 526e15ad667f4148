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
	"errors"
	"fmt"
	"maps"
	"time"

	"autoflow/internal/station"
	"autoflow/pkg/logger"
)

// SimulationStart is the simulated clock origin of a virtual station that
// does not follow the wall clock.
var SimulationStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type VirtualOptions struct {
	Models        []station.PumpModel
	VariableSpeed []int
	TankArea      float64
	Bounds        station.Bounds

	InitialLevel  float64
	InitialSwitch []int
	InitialSpeed  []float64

	// Inflow is replayed one sample per step, wrapping around.
	Inflow []float64
	// WetBulb is optional and replayed like Inflow as the wet-bulb tag.
	WetBulb []float64

	Setting  station.Setting
	Period   time.Duration
	RealTime bool
}

// Virtual simulates a pumping station. Every Pace advances the clock by one
// period and steps the station with the last command written.
type Virtual struct {
	station *station.PumpingStation
	inflow  []float64
	wetBulb []float64
	setting station.Setting

	period   time.Duration
	realTime bool
	pacer    *Pacer
	now      func() time.Time
	start    float64
	step     int

	command station.Command
	tags    map[string]float64

	log *logger.Logger
}

func NewVirtual(opts VirtualOptions) (*Virtual, error) {
	n := len(opts.Models)
	if len(opts.Inflow) == 0 {
		return nil, errors.New("virtual station: empty inflow profile")
	}
	if opts.Period <= 0 {
		return nil, fmt.Errorf("virtual station: period must be positive, got %v", opts.Period)
	}
	if err := opts.Setting.Validate(); err != nil {
		return nil, fmt.Errorf("virtual station setting: %w", err)
	}

	v := &Virtual{
		inflow:   opts.Inflow,
		wetBulb:  opts.WetBulb,
		setting:  opts.Setting,
		period:   opts.Period,
		realTime: opts.RealTime,
		pacer:    NewPacer(opts.Period, true),
		now:      time.Now,
		tags:     make(map[string]float64),
		log:      logger.New("VirtualStation"),
	}
	v.start = unixSeconds(SimulationStart)
	if opts.RealTime {
		v.start = unixSeconds(v.now())
	}

	initial := station.Snapshot{
		Timestamp:  v.start,
		WaterLevel: opts.InitialLevel,
		Switch:     orZeros(opts.InitialSwitch, n),
		Speed:      orZeros(opts.InitialSpeed, n),
		Outflow:    make([]float64, n),
		SEC:        make([]float64, n),
	}
	ps, err := station.NewPumpingStation(opts.Models, opts.VariableSpeed, opts.TankArea, initial, opts.Bounds)
	if err != nil {
		return nil, err
	}
	v.station = ps

	v.command = station.NewCommand(v.start, n)
	copy(v.command.Switch, initial.Switch)
	copy(v.command.Speed, initial.Speed)
	v.updateTags()
	return v, nil
}

func orZeros[T int | float64](s []T, n int) []T {
	if s == nil {
		return make([]T, n)
	}
	return append([]T(nil), s...)
}

func (v *Virtual) ReadMeasurement(ctx context.Context) (station.Snapshot, error) {
	snap := v.station.Snapshot()
	if len(v.tags) > 0 {
		snap.Tags = maps.Clone(v.tags)
	}
	return snap, nil
}

// WriteCommand accepts both payload kinds: a Command drives the pumps from
// the next step on, a Snapshot hands back tagged scalars such as a computed
// return temperature setpoint.
func (v *Virtual) WriteCommand(ctx context.Context, p station.Payload) error {
	n := v.station.NumPumps()
	switch p := p.(type) {
	case station.Command:
		if err := p.Validate(n); err != nil {
			return err
		}
		v.command = p.Clone()
	case station.Snapshot:
		if err := p.Validate(n); err != nil {
			return err
		}
		maps.Copy(v.tags, p.Tags)
	default:
		return payloadErr("virtual", p)
	}
	return nil
}

func (v *Virtual) ReadSettings(ctx context.Context) (station.Setting, error) {
	return v.setting, nil
}

// Pace advances the simulated clock and steps the station. A failing
// predictor only skips this step.
func (v *Virtual) Pace(ctx context.Context) error {
	if v.realTime {
		if err := v.pacer.Wait(ctx); err != nil {
			return err
		}
	} else if err := ctx.Err(); err != nil {
		return err
	}

	v.step++
	t := v.start + float64(v.step)*v.period.Seconds()
	if v.realTime {
		t = unixSeconds(v.now())
	}
	inflow := v.inflow[v.step%len(v.inflow)]

	cmd := v.station.Normalize(v.command)
	v.command = cmd
	if _, err := v.station.Update(t, inflow, cmd); err != nil {
		v.log.Error("step %d skipped: %v", v.step, err)
	}
	v.updateTags()
	return nil
}

func (v *Virtual) updateTags() {
	if len(v.wetBulb) == 0 {
		return
	}
	v.tags[station.TagWetBulb] = v.wetBulb[v.step%len(v.wetBulb)]
}

// Station exposes the simulated station, e.g. for clamp diagnostics.
func (v *Virtual) Station() *station.PumpingStation {
	return v.station
}
