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
	"errors"

	"autoflow/internal/station"
)

// ErrValidation marks measurements or settings the control law refuses to
// act on. The cycle is skipped and nothing is written.
var ErrValidation = errors.New("validation failed")

type State int

const (
	Running State = iota
	FaultedOnInput
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case FaultedOnInput:
		return "faulted_on_input"
	}
	return "unknown"
}

// Law turns one measurement snapshot into the payload written back to the
// plant.
type Law interface {
	Name() string
	Compute(snap station.Snapshot) (station.Payload, error)
}

// SettingsConsumer is implemented by laws that follow the operator setting.
// The driver hands over a fresh setting before every Compute.
type SettingsConsumer interface {
	ApplySetting(s station.Setting) error
}

// RunTimeReporter is implemented by laws that track pump run times.
type RunTimeReporter interface {
	RunTimes() []float64
}
