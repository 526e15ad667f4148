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

package connector

import (
	"context"
	"time"
)

// Pacer spaces control cycles. In fixed mode it sleeps one period; in real
// time mode it wakes at the next multiple of the period on the wall clock.
type Pacer struct {
	period   time.Duration
	realTime bool
	now      func() time.Time
}

func NewPacer(period time.Duration, realTime bool) *Pacer {
	return &Pacer{
		period:   period,
		realTime: realTime,
		now:      time.Now,
	}
}

// Next returns how long Wait would block if called now.
func (p *Pacer) Next() time.Duration {
	if p.period <= 0 {
		return 0
	}
	if !p.realTime {
		return p.period
	}
	now := p.now()
	return now.Truncate(p.period).Add(p.period).Sub(now)
}

// Wait blocks for Next or until ctx is done.
func (p *Pacer) Wait(ctx context.Context) error {
	d := p.Next()
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
