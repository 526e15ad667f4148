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

package pid

import (
	"fmt"
	"math"

	"autoflow/pkg/logger"
)

// timeTolerance is the absolute tolerance for treating two calls as the same tick.
const timeTolerance = 1e-8

// Setting holds the gains and limits of a Controller. It may be swapped at
// runtime with UpdateSetting without resetting the controller memory.
type Setting struct {
	Kp    float64 `json:"kp"`
	Ki    float64 `json:"ki"`
	Kd    float64 `json:"kd"`
	CVMin float64 `json:"cv_min"`
	CVMax float64 `json:"cv_max"`
	CVBar float64 `json:"cv_bar"` // output bias
	Kb    float64 `json:"kb"`     // back-calculation gain
	EIMin float64 `json:"ei_min"`
	EIMax float64 `json:"ei_max"`
}

func (s Setting) Validate() error {
	if s.CVMin > s.CVMax {
		return fmt.Errorf("cv_min should be less or equal than cv_max but got cv_min: %g and cv_max: %g", s.CVMin, s.CVMax)
	}
	if s.EIMin > s.EIMax {
		return fmt.Errorf("ei_min should be less or equal than ei_max but got ei_min: %g and ei_max: %g", s.EIMin, s.EIMax)
	}
	return nil
}

// Controller is a PID with a clamped integrator and back-calculation
// anti-windup. Not safe for concurrent use.
type Controller struct {
	setting Setting

	eLast    float64
	tLast    float64
	ei       float64
	backCalc float64
	cvLast   float64

	log *logger.Logger
}

// New returns a controller whose first tick is measured from tInit and whose
// output starts at the bias.
func New(setting Setting, tInit float64) *Controller {
	return &Controller{
		setting: setting,
		tLast:   tInit,
		cvLast:  setting.CVBar,
		log:     logger.New("PID"),
	}
}

// UpdateSetting swaps gains and limits, keeping the stored state.
func (c *Controller) UpdateSetting(setting Setting) {
	c.setting = setting
}

func (c *Controller) Setting() Setting {
	return c.setting
}

// Update returns the control variable for process value pv and setpoint sp
// at time t (seconds). A repeated t returns the previous output unchanged.
func (c *Controller) Update(t, pv, sp float64) float64 {
	if math.Abs(t-c.tLast) <= timeTolerance {
		return c.cvLast
	}
	s := c.setting
	dt := t - c.tLast

	e := sp - pv
	ep := s.Kp * e

	c.ei = clamp(c.ei+s.Ki*e*dt+c.backCalc, s.EIMin, s.EIMax)

	ed := s.Kd * (e - c.eLast) / dt

	unclamped := s.CVBar + ep + c.ei + ed
	cv := clamp(unclamped, s.CVMin, s.CVMax)

	// feed the saturation back into the next integration step
	c.backCalc = s.Kb * (cv - unclamped)

	c.log.Debug("dt=%.2fs, e=%.3f, p=%.3f, i=%.3f, d=%.3f, cv=%.3f (raw %.3f)", dt, e, ep, c.ei, ed, cv, unclamped)

	c.eLast = e
	c.tLast = t
	c.cvLast = cv
	return cv
}

// Integral is the current (clamped) integral term.
func (c *Controller) Integral() float64 {
	return c.ei
}

// Output is the last control variable.
func (c *Controller) Output() float64 {
	return c.cvLast
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
