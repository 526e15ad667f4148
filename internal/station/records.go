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

import "fmt"

// StationRecord is the station-level row handed to external storage.
type StationRecord struct {
	RunID                string  `json:"run_id,omitempty"`
	Timestamp            float64 `json:"timestamp"`
	WaterLevel           float64 `json:"water_level"`
	TotalOutflowSetpoint float64 `json:"total_outflow_setpoint"`
	TotalOutflow         float64 `json:"total_outflow"`
	LevelSetpoint        float64 `json:"h_setpoint"`
	Inflow               float64 `json:"inflow"`
	SEC                  float64 `json:"sec"` // flow-weighted average
}

// PumpRecord is one per-pump row handed to external storage.
type PumpRecord struct {
	RunID           string  `json:"run_id,omitempty"`
	Timestamp       float64 `json:"timestamp"`
	PumpID          int     `json:"pump_id"`
	ControlSwitch   int     `json:"control_switch"`
	ControlSpeed    float64 `json:"control_speed"`
	OutflowSetpoint float64 `json:"outflow_setpoint"`
	Switch          int     `json:"switch"`
	Speed           float64 `json:"speed"`
	Outflow         float64 `json:"outflow"`
	SEC             float64 `json:"sec"`
}

// BuildRecords derives the storage records of one cycle.
func BuildRecords(snap Snapshot, cmd Command, runID string) (StationRecord, []PumpRecord, error) {
	n := len(snap.Switch)
	if err := snap.Validate(n); err != nil {
		return StationRecord{}, nil, err
	}
	if err := cmd.Validate(n); err != nil {
		return StationRecord{}, nil, fmt.Errorf("command does not match snapshot: %w", err)
	}

	total := snap.TotalOutflow()
	avgSEC := 0.0
	if total != 0 {
		for i := range n {
			avgSEC += snap.SEC[i] * snap.Outflow[i]
		}
		avgSEC /= total
	}

	st := StationRecord{
		RunID:                runID,
		Timestamp:            snap.Timestamp,
		WaterLevel:           snap.WaterLevel,
		TotalOutflowSetpoint: cmd.TotalOutflowSetpoint,
		TotalOutflow:         total,
		LevelSetpoint:        cmd.LevelSetpoint,
		Inflow:               cmd.Inflow,
		SEC:                  avgSEC,
	}

	pumps := make([]PumpRecord, n)
	for i := range n {
		pumps[i] = PumpRecord{
			RunID:           runID,
			Timestamp:       cmd.Timestamp,
			PumpID:          i,
			ControlSwitch:   cmd.Switch[i],
			ControlSpeed:    cmd.Speed[i],
			OutflowSetpoint: cmd.OutflowSetpoints[i],
			Switch:          snap.Switch[i],
			Speed:           snap.Speed[i],
			Outflow:         snap.Outflow[i],
			SEC:             snap.SEC[i],
		}
	}
	return st, pumps, nil
}
