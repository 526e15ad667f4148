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
	"fmt"
)

// Setting is the operator setting of the level controller. It is read from
// the connector every cycle and may change at runtime.
type Setting struct {
	OutflowLower float64 `json:"outflow_lower"`
	OutflowUpper float64 `json:"outflow_upper"`

	// LevelSetpoint[i] applies between WindowStart[i] and WindowEnd[i]
	// (hours of the day, 15.5 means 3:30 pm).
	LevelSetpoint []float64 `json:"h_setpoint"`
	WindowStart   []float64 `json:"t_lower"`
	WindowEnd     []float64 `json:"t_upper"`

	LevelLower float64 `json:"h_lower"`
	LevelUpper float64 `json:"h_upper"`

	PIDKp float64 `json:"pid_kp"`
	PIDKi float64 `json:"pid_ki"`
	PIDKb float64 `json:"pid_kb"`
}

func DefaultSetting() Setting {
	return Setting{
		OutflowLower:  6000,
		OutflowUpper:  20000,
		LevelSetpoint: []float64{3},
		WindowStart:   []float64{8.5},
		WindowEnd:     []float64{14},
		LevelLower:    3,
		LevelUpper:    6.5,
		PIDKp:         -1000,
		PIDKi:         -5,
		PIDKb:         1,
	}
}

func (s Setting) Validate() error {
	if s.OutflowLower > s.OutflowUpper {
		return fmt.Errorf("outflow bounds inverted: [%g, %g]", s.OutflowLower, s.OutflowUpper)
	}
	if s.LevelLower > s.LevelUpper {
		return fmt.Errorf("level bounds inverted: [%g, %g]", s.LevelLower, s.LevelUpper)
	}
	n := len(s.LevelSetpoint)
	if len(s.WindowStart) != n || len(s.WindowEnd) != n {
		return fmt.Errorf("%w: %d level setpoints for %d/%d windows",
			ErrShapeMismatch, n, len(s.WindowStart), len(s.WindowEnd))
	}
	for i := range n {
		if s.LevelSetpoint[i] <= 0 {
			return fmt.Errorf("level setpoint %d must be positive, got %g", i, s.LevelSetpoint[i])
		}
		if s.WindowStart[i] < 0 || s.WindowStart[i] >= 24 || s.WindowEnd[i] <= 0 || s.WindowEnd[i] >= 24 {
			return fmt.Errorf("window %d out of range: [%g, %g)", i, s.WindowStart[i], s.WindowEnd[i])
		}
	}
	return nil
}

// LevelSetpointAt returns the level setpoint at the given hour of the day.
// The first window containing hour wins; windows may wrap midnight. Outside
// every window the setpoint is the middle of the level band. The result is
// kept within [LevelLower, LevelUpper].
func (s Setting) LevelSetpointAt(hour float64) float64 {
	sp := (s.LevelLower + s.LevelUpper) / 2
	for i := range s.LevelSetpoint {
		if i >= len(s.WindowStart) || i >= len(s.WindowEnd) {
			break
		}
		if inWindow(hour, s.WindowStart[i], s.WindowEnd[i]) {
			sp = s.LevelSetpoint[i]
			break
		}
	}
	return min(max(sp, s.LevelLower), s.LevelUpper)
}

func inWindow(hour, start, end float64) bool {
	if start <= end {
		return hour >= start && hour < end
	}
	return hour >= start || hour < end
}
