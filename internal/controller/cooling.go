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

	"autoflow/internal/controller/optimizer"
	"autoflow/internal/station"
	"autoflow/pkg/logger"
)

// CoolingLaw sets the cooling water return temperature from the wet-bulb
// temperature tag and writes the snapshot back with the setpoint merged in.
type CoolingLaw struct {
	opt optimizer.Optimizer
	log *logger.Logger
}

func NewCoolingLaw(opt optimizer.Optimizer) *CoolingLaw {
	return &CoolingLaw{
		opt: opt,
		log: logger.New("CoolingLaw"),
	}
}

func (c *CoolingLaw) Name() string {
	return "cooling"
}

func (c *CoolingLaw) Compute(snap station.Snapshot) (station.Payload, error) {
	wetBulb, ok := snap.Tags[station.TagWetBulb]
	if !ok {
		return nil, fmt.Errorf("%w: Invalid wet bulb temperature (no %s tag)", ErrValidation, station.TagWetBulb)
	}
	if !c.opt.ValidateInput(wetBulb) {
		return nil, fmt.Errorf("%w: Invalid wet bulb temperature (%.2f°C)", ErrValidation, wetBulb)
	}
	setpoint := c.opt.Compute(wetBulb)
	if !c.opt.ValidateOutput(setpoint) {
		return nil, fmt.Errorf("%w: Invalid cooling water return temperature (%.1f°C)", ErrValidation, setpoint)
	}
	c.log.Debug("wet bulb %.2f°C -> return setpoint %.1f°C", wetBulb, setpoint)
	return snap.WithTag(station.TagReturnSetpoint, setpoint), nil
}
