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
	"errors"
	"time"

	"autoflow/pkg/logger"
)

// Retry repeats transport failures with a doubling back-off. Any other
// error is returned at once.
type Retry struct {
	Attempts int
	Delay    time.Duration

	log *logger.Logger
}

func NewRetry(attempts int, delay time.Duration, name string) Retry {
	return Retry{
		Attempts: max(attempts, 1),
		Delay:    delay,
		log:      logger.New(name),
	}
}

func (r Retry) Do(ctx context.Context, what string, op func(ctx context.Context) error) error {
	attempts := max(r.Attempts, 1)
	delay := r.Delay
	var err error
	for i := range attempts {
		if err = op(ctx); err == nil || !errors.Is(err, ErrTransport) {
			return err
		}
		if r.log != nil {
			r.log.Error("%s: attempt %d/%d: %v", what, i+1, attempts, err)
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return errors.Join(err, ctx.Err())
		case <-time.After(delay):
		}
		delay *= 2
	}
	return err
}
