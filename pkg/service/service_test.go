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

package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStart_CleanExit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	exitCh := Start(ctx, cancel, []Runnable{
		Func(func(ctx context.Context) { <-ctx.Done() }),
		Func(func(context.Context) {}),
	})
	cancel()

	select {
	case code := <-exitCh:
		assert.Equal(t, 0, code)
	case <-time.After(time.Second):
		t.Fatal("services did not stop")
	}
}

func TestStart_PanicCancelsOthers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	exitCh := Start(ctx, cancel, []Runnable{
		Func(func(ctx context.Context) { <-ctx.Done() }),
		Func(func(context.Context) { panic("boom") }),
	})

	select {
	case code := <-exitCh:
		assert.Equal(t, -1, code)
	case <-time.After(time.Second):
		t.Fatal("panic did not stop the services")
	}
}
