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
	"encoding/json"
	"net/http"
	"sort"
	"time"
)

// Value is the last value seen on a register, for display.
type Value struct {
	ID          string    `json:"id"`
	Description string    `json:"description"`
	Value       float64   `json:"value"`
	Error       string    `json:"error,omitempty"`
	Writable    bool      `json:"writable"`
	Written     bool      `json:"written"`
	Time        time.Time `json:"time"`
}

func (m *Modbus) remember(name string, v float64, err error, written bool) {
	def, _ := m.io.Register(name)
	val := Value{
		ID:          name,
		Description: def.Description,
		Value:       v,
		Writable:    def.Writable,
		Written:     written,
		Time:        m.now(),
	}
	if err != nil {
		val.Error = err.Error()
		if prev, ok := m.lastValue(name); ok {
			val.Value = prev.Value
		}
	}
	m.mu.Lock()
	m.values[name] = val
	m.mu.Unlock()
}

func (m *Modbus) lastValue(name string) (Value, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[name]
	return v, ok
}

// Values returns the last value of every register touched so far, sorted by id.
func (m *Modbus) Values() []Value {
	m.mu.RLock()
	out := make([]Value, 0, len(m.values))
	for _, v := range m.values {
		out = append(out, v)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *Modbus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/values", m.handleAPIValues)
	mux.ServeHTTP(w, r)
}

func (m *Modbus) handleAPIValues(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(m.Values()); err != nil {
		m.log.Error("failed to encode register values: %v", err)
	}
}
