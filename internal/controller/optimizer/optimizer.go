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

package optimizer

import "math"

// Optimizer maps the ambient wet-bulb temperature to a cooling water return
// temperature setpoint. Callers check ValidateInput before Compute and
// ValidateOutput after it.
type Optimizer struct {
	InputMin, InputMax   float64
	OutputMin, OutputMax float64
}

func New() Optimizer {
	return Optimizer{
		InputMin:  5,
		InputMax:  35,
		OutputMin: 15,
		OutputMax: 30,
	}
}

// ValidateInput reports whether the wet-bulb temperature is usable.
func (o Optimizer) ValidateInput(wetBulb float64) bool {
	return wetBulb >= o.InputMin && wetBulb <= o.InputMax
}

// ValidateOutput reports whether a computed setpoint may be written.
func (o Optimizer) ValidateOutput(setpoint float64) bool {
	return setpoint >= o.OutputMin && setpoint <= o.OutputMax
}

// Increment is the approach to wet-bulb: 3 °C up to 20 °C, 4 °C from 30 °C,
// linear in between.
func Increment(wetBulb float64) float64 {
	switch {
	case wetBulb <= 20:
		return 3
	case wetBulb >= 30:
		return 4
	default:
		return 3 + (wetBulb-20)/10
	}
}

// Compute returns the return temperature setpoint rounded to 0.1 °C.
func (o Optimizer) Compute(wetBulb float64) float64 {
	return math.Round((wetBulb+Increment(wetBulb))*10) / 10
}
