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

package dispatch

import (
	"cmp"
	"fmt"
	"slices"

	"autoflow/internal/station"
	"autoflow/pkg/logger"
)

// Pump describes the operating range of one pump in m³/h.
type Pump struct {
	MinFlow       float64 `json:"min_flow"`
	MaxFlow       float64 `json:"max_flow"`
	OptFlow       float64 `json:"opt_flow"` // best efficiency point
	// VariableSpeed follows the station's variable speed pumps; a fixed
	// speed pump always runs at the upper speed bound.
	VariableSpeed bool    `json:"variable_speed"`
}

type Config struct {
	Pumps []Pump `json:"pumps"`
	// Speed bounds shared by all pumps, see station.Bounds.
	Speed [2]float64 `json:"-"`
	// MinSwitchInterval is the minimum time in seconds between two changes
	// that switch a pump off.
	MinSwitchInterval float64 `json:"min_switch_interval"`
	// MaxCumTimeDiff is the run time difference in seconds that makes an
	// idle pump take over from a running one.
	MaxCumTimeDiff float64 `json:"max_cum_time_diff"`
}

func (c Config) Validate() error {
	if len(c.Pumps) == 0 {
		return fmt.Errorf("dispatch: no pumps configured")
	}
	for i, p := range c.Pumps {
		if p.MinFlow < 0 || p.MinFlow > p.MaxFlow {
			return fmt.Errorf("dispatch: pump %d: min_flow %g, max_flow %g", i, p.MinFlow, p.MaxFlow)
		}
		if p.OptFlow <= 0 || p.OptFlow < p.MinFlow || p.OptFlow > p.MaxFlow {
			return fmt.Errorf("dispatch: pump %d: opt_flow %g outside [%g, %g]", i, p.OptFlow, p.MinFlow, p.MaxFlow)
		}
	}
	if c.Speed[0] > c.Speed[1] {
		return fmt.Errorf("dispatch: speed bounds %v", c.Speed)
	}
	return nil
}

// Plan is the per-pump outcome of one dispatch.
type Plan struct {
	Switch           []int
	Speed            []float64
	OutflowSetpoints []float64
}

// Dispatcher distributes a total outflow setpoint over the pumps, balancing
// wear by cumulative run time while holding off frequent switching.
type Dispatcher struct {
	cfg        Config
	lastChange float64
	changed    bool

	log *logger.Logger
}

func New(cfg Config) (*Dispatcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Dispatcher{
		cfg: cfg,
		log: logger.New("Dispatch"),
	}, nil
}

func (d *Dispatcher) NumPumps() int {
	return len(d.cfg.Pumps)
}

// Dispatch picks the pumps for total at time t given the switch state
// currently reported by the plant and the cumulative run time of each pump.
func (d *Dispatcher) Dispatch(t, total float64, current []int, runtimes []float64) (Plan, error) {
	n := len(d.cfg.Pumps)
	if len(current) != n || len(runtimes) != n {
		return Plan{}, fmt.Errorf("dispatch: %d pumps, got %d switches and %d run times: %w",
			n, len(current), len(runtimes), station.ErrShapeMismatch)
	}

	on := make([]bool, n)
	running := 0
	for i, s := range current {
		on[i] = s == 1
		if on[i] {
			running++
		}
	}

	want := d.pumpCount(total, runtimes)
	settled := !d.changed || t-d.lastChange >= d.cfg.MinSwitchInterval

	switch {
	case want > running:
		for range want - running {
			on[pick(on, runtimes, false, leastRun)] = true
		}
		d.markChange(t, "start", want-running)

	case want < running && settled:
		for range running - want {
			on[pick(on, runtimes, true, mostRun)] = false
		}
		d.markChange(t, "stop", running-want)

	case want == running && running > 0 && running < n && settled:
		busy := pick(on, runtimes, true, mostRun)
		idle := pick(on, runtimes, false, leastRun)
		if runtimes[busy]-runtimes[idle] > d.cfg.MaxCumTimeDiff {
			on[busy], on[idle] = false, true
			d.log.Info("rotating pump %d out for pump %d (run time difference %.0fs)", busy, idle, runtimes[busy]-runtimes[idle])
			d.markChange(t, "rotate", 1)
		}
	}

	return d.plan(total, on), nil
}

func (d *Dispatcher) markChange(t float64, what string, count int) {
	d.log.Debug("%s %d pump(s) at t=%.0f", what, count, t)
	d.lastChange = t
	d.changed = true
}

// pumpCount is the smallest number of pumps, taken by least run time, whose
// optimal flows cover total.
func (d *Dispatcher) pumpCount(total float64, runtimes []float64) int {
	if total <= 0 {
		return 0
	}
	order := make([]int, len(runtimes))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		return cmp.Compare(runtimes[a], runtimes[b])
	})

	covered := 0.0
	for k, i := range order {
		covered += d.cfg.Pumps[i].OptFlow
		if covered >= total {
			return k + 1
		}
	}
	return len(order)
}

func (d *Dispatcher) plan(total float64, on []bool) Plan {
	n := len(on)
	p := Plan{
		Switch:           make([]int, n),
		Speed:            make([]float64, n),
		OutflowSetpoints: make([]float64, n),
	}

	opt := 0.0
	for i, o := range on {
		if o {
			opt += d.cfg.Pumps[i].OptFlow
		}
	}
	lo, hi := d.cfg.Speed[0], d.cfg.Speed[1]
	for i, o := range on {
		if !o {
			continue
		}
		pump := d.cfg.Pumps[i]
		flow := min(max(total*pump.OptFlow/opt, pump.MinFlow), pump.MaxFlow)

		p.Switch[i] = 1
		p.OutflowSetpoints[i] = flow
		p.Speed[i] = hi
		if pump.VariableSpeed && pump.MaxFlow > pump.MinFlow {
			p.Speed[i] = lo + (flow-pump.MinFlow)/(pump.MaxFlow-pump.MinFlow)*(hi-lo)
		}
	}
	return p
}

type preference func(candidate, best float64) bool

func leastRun(candidate, best float64) bool { return candidate < best }
func mostRun(candidate, best float64) bool  { return candidate > best }

// pick returns the pump whose switch state equals state and whose run time
// is preferred by better. Ties go to the lowest index.
func pick(on []bool, runtimes []float64, state bool, better preference) int {
	idx := -1
	for i, o := range on {
		if o != state {
			continue
		}
		if idx < 0 || better(runtimes[i], runtimes[idx]) {
			idx = i
		}
	}
	return idx
}
