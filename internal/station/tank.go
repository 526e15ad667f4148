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

import "math"

// inflowHistory is the number of inferred inflow samples averaged by the tank.
const inflowHistory = 100

// timeTolerance is the absolute tolerance under which two timestamps are
// treated as the same tick.
const timeTolerance = 1e-8

func sameTick(a, b float64) bool {
	return math.Abs(a-b) <= timeTolerance
}

// ring is a fixed-capacity buffer that evicts its oldest sample on overflow.
type ring struct {
	buf   [inflowHistory]float64
	head  int
	count int
}

func (r *ring) push(v float64) {
	r.buf[r.head] = v
	r.head = (r.head + 1) % len(r.buf)
	if r.count < len(r.buf) {
		r.count++
	}
}

func (r *ring) mean() float64 {
	if r.count == 0 {
		return 0
	}
	// oldest sample sits at head once the buffer is full
	start := 0
	if r.count == len(r.buf) {
		start = r.head
	}
	sum := 0.0
	for i := range r.count {
		sum += r.buf[(start+i)%len(r.buf)]
	}
	return sum / float64(r.count)
}

// Tank estimates the net inflow of a single reservoir from its observed
// level change and the known outflow.
//
// area is the surface of the reservoir plus pipe network (m²), levels are in
// m, flows in m³/h and timestamps in seconds.
type Tank struct {
	area      float64
	level     float64
	timestamp float64
	inflow    ring
}

func NewTank(area, level, timestamp float64) *Tank {
	return &Tank{
		area:      area,
		level:     level,
		timestamp: timestamp,
	}
}

// Update records a new level observation. A repeated timestamp is ignored.
func (t *Tank) Update(timestamp, level, outflow float64) *Tank {
	dt := timestamp - t.timestamp
	if sameTick(timestamp, t.timestamp) {
		return t
	}
	dh := level - t.level
	t.inflow.push(dh*t.area/dt*3600 + outflow)
	t.timestamp = timestamp
	t.level = level
	return t
}

// InflowEstimate is the mean of the last 100 inferred inflow samples (m³/h).
func (t *Tank) InflowEstimate() float64 {
	return t.inflow.mean()
}

func (t *Tank) Level() float64 {
	return t.level
}

// Samples is the number of inflow samples currently averaged.
func (t *Tank) Samples() int {
	return t.inflow.count
}
