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

package controller

import (
	"fmt"
	"time"

	"autoflow/internal/controller/dispatch"
	"autoflow/internal/controller/pid"
	"autoflow/internal/controller/stopwatch"
	"autoflow/internal/station"
	"autoflow/pkg/logger"
)

type LevelConfig struct {
	Bounds   station.Bounds
	TankArea float64
	Dispatch dispatch.Config
	// Location resolves the hour of day for the setpoint windows.
	Location *time.Location
	// Setting is used until the connector provides one.
	Setting station.Setting
}

// LevelLaw holds the tank level at the scheduled setpoint. A PID on the
// water level yields the total outflow setpoint, which is dispatched over
// the pumps by run time.
type LevelLaw struct {
	bounds  station.Bounds
	area    float64
	loc     *time.Location
	setting station.Setting

	dispatcher *dispatch.Dispatcher
	tank       *station.Tank
	watch      *stopwatch.Group
	pid        *pid.Controller

	log *logger.Logger
}

func NewLevelLaw(cfg LevelConfig) (*LevelLaw, error) {
	if err := cfg.Bounds.Validate(); err != nil {
		return nil, err
	}
	if cfg.TankArea <= 0 {
		return nil, fmt.Errorf("tank area must be positive, got %g", cfg.TankArea)
	}
	if err := cfg.Setting.Validate(); err != nil {
		return nil, fmt.Errorf("level law setting: %w", err)
	}
	cfg.Dispatch.Speed = cfg.Bounds.Speed
	d, err := dispatch.New(cfg.Dispatch)
	if err != nil {
		return nil, err
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}
	return &LevelLaw{
		bounds:     cfg.Bounds,
		area:       cfg.TankArea,
		loc:        loc,
		setting:    cfg.Setting,
		dispatcher: d,
		log:        logger.New("LevelLaw"),
	}, nil
}

func (l *LevelLaw) Name() string {
	return "level"
}

// ApplySetting swaps the operator setting. PID gains and limits change in
// place; the integrator keeps its state.
func (l *LevelLaw) ApplySetting(s station.Setting) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("%w: setting: %v", ErrValidation, err)
	}
	l.setting = s
	if l.pid != nil {
		l.pid.UpdateSetting(pidSetting(s))
	}
	return nil
}

func (l *LevelLaw) RunTimes() []float64 {
	if l.watch == nil {
		return make([]float64, l.dispatcher.NumPumps())
	}
	return l.watch.Cumulative()
}

// pidSetting maps the operator setting onto the level PID: the output is the
// total outflow within the outflow band, biased to its middle.
func pidSetting(s station.Setting) pid.Setting {
	half := (s.OutflowUpper - s.OutflowLower) / 2
	return pid.Setting{
		Kp:    s.PIDKp,
		Ki:    s.PIDKi,
		Kb:    s.PIDKb,
		CVMin: s.OutflowLower,
		CVMax: s.OutflowUpper,
		CVBar: s.OutflowLower + half,
		EIMin: -half,
		EIMax: half,
	}
}

func (l *LevelLaw) Compute(snap station.Snapshot) (station.Payload, error) {
	n := l.dispatcher.NumPumps()
	if err := snap.Validate(n); err != nil {
		return nil, err
	}
	t, level := snap.Timestamp, snap.WaterLevel
	if level < l.bounds.WaterLevel[0] || level > l.bounds.WaterLevel[1] {
		return nil, fmt.Errorf("%w: water level %.2f outside [%g, %g]",
			ErrValidation, level, l.bounds.WaterLevel[0], l.bounds.WaterLevel[1])
	}

	if l.tank == nil {
		l.tank = station.NewTank(l.area, level, t)
		l.watch = stopwatch.NewGroup(n, t)
		l.pid = pid.New(pidSetting(l.setting), t)
	} else {
		l.tank.Update(t, level, snap.TotalOutflow())
	}
	runtimes, err := l.watch.Update(t, snap.Active())
	if err != nil {
		return nil, err
	}

	sp := l.setting.LevelSetpointAt(hourOfDay(t, l.loc))
	total := l.pid.Update(t, level, sp)

	plan, err := l.dispatcher.Dispatch(t, total, snap.Switch, runtimes)
	if err != nil {
		return nil, err
	}

	cmd := station.Command{
		Timestamp:            t,
		Switch:               plan.Switch,
		Speed:                plan.Speed,
		TotalOutflowSetpoint: total,
		OutflowSetpoints:     plan.OutflowSetpoints,
		LevelSetpoint:        sp,
		Inflow:               l.tank.InflowEstimate(),
	}
	l.log.Debug("level %.2f, setpoint %.2f, inflow %.0f, outflow setpoint %.0f, switch %v",
		level, sp, cmd.Inflow, total, cmd.Switch)
	return cmd, nil
}

// hourOfDay returns the fractional hour of a unix timestamp in loc.
func hourOfDay(ts float64, loc *time.Location) float64 {
	sec := int64(ts)
	t := time.Unix(sec, int64((ts-float64(sec))*1e9)).In(loc)
	return float64(t.Hour()) + float64(t.Minute())/60 + float64(t.Second())/3600
}
