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

package events

import (
	"time"

	"autoflow/internal/station"
	"autoflow/pkg/eventbus"
)

var (
	TopicCycle eventbus.Topic = "cycle"
)

// CycleUpdate is published by the control loop after every cycle.
type CycleUpdate struct {
	Time     time.Time        `json:"time"`
	Cycle    uint64           `json:"cycle"`
	State    string           `json:"state"`
	Reason   string           `json:"reason,omitempty"`
	Snapshot station.Snapshot `json:"snapshot"`
	Command  *station.Command `json:"command,omitempty"`

	// cumulative run time per pump in seconds, empty for laws that do not
	// track pumps
	RunTimes []float64 `json:"run_times,omitempty"`
}
