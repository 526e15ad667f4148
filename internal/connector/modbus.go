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
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"autoflow/internal/station"
	"autoflow/pkg/logger"
	"autoflow/pkg/modbus"

	"gopkg.in/yaml.v3"
)

// TagIO is the named register access the Modbus connector needs.
// *modbus.Client implements it.
type TagIO interface {
	ReadFloat(ctx context.Context, name string) (float64, error)
	WriteValue(ctx context.Context, name string, value any) error
	CheckValue(name string, value any) error
	Register(name string) (modbus.RegisterDef, bool)
}

// TagMap binds snapshot, command and setting fields to register names.
// An empty name leaves the field unmapped.
type TagMap struct {
	Station StationTags `yaml:"station"`
	Control ControlTags `yaml:"control"`
	Setting SettingTags `yaml:"setting"`
}

type StationTags struct {
	WaterLevel string   `yaml:"water_level"`
	Switch     []string `yaml:"switch"`
	Speed      []string `yaml:"speed"`
	Outflow    []string `yaml:"outflow"`
	SEC        []string `yaml:"sec"`
	// snapshot tag -> register, e.g. wet_bulb_temp: tw
	Scalars map[string]string `yaml:"scalars"`
}

type ControlTags struct {
	Switch               []string `yaml:"switch"`
	Speed                []string `yaml:"speed"`
	OutflowSetpoints     []string `yaml:"outflow_setpoints"`
	TotalOutflowSetpoint string   `yaml:"total_outflow_setpoint"`
	LevelSetpoint        string   `yaml:"level_setpoint"`
	Inflow               string   `yaml:"inflow"`
	// snapshot tags written back, e.g. return_temp_setpoint: ctw_sp
	Scalars map[string]string `yaml:"scalars"`
}

type SettingTags struct {
	OutflowLower  string   `yaml:"outflow_lower"`
	OutflowUpper  string   `yaml:"outflow_upper"`
	LevelSetpoint []string `yaml:"h_setpoint"`
	WindowStart   []string `yaml:"t_lower"`
	WindowEnd     []string `yaml:"t_upper"`
	LevelLower    string   `yaml:"h_lower"`
	LevelUpper    string   `yaml:"h_upper"`
	PIDKp         string   `yaml:"pid_kp"`
	PIDKi         string   `yaml:"pid_ki"`
	PIDKb         string   `yaml:"pid_kb"`
}

// ParseTagMap reads the tags section of a register map file.
func ParseTagMap(data []byte) (TagMap, error) {
	var doc struct {
		Tags TagMap `yaml:"tags"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return TagMap{}, fmt.Errorf("parse tag map: %w", err)
	}
	return doc.Tags, nil
}

func LoadTagMap(path string) (TagMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return TagMap{}, err
	}
	return ParseTagMap(data)
}

// Check verifies that every mapped tag has a register, that per-pump lists
// cover nPumps and that control tags are writable.
func (m TagMap) Check(io TagIO, nPumps int) error {
	exists := func(section, field, name string, writable bool) error {
		if name == "" {
			return nil
		}
		def, ok := io.Register(name)
		if !ok {
			return fmt.Errorf("%w: %s.%s: register %q not configured", station.ErrShapeMismatch, section, field, name)
		}
		if writable && !def.Writable {
			return fmt.Errorf("%w: %s.%s: register %q is not writable", station.ErrShapeMismatch, section, field, name)
		}
		return nil
	}
	perPump := func(section, field string, names []string, writable bool) error {
		if len(names) != 0 && len(names) != nPumps {
			return fmt.Errorf("%w: %s.%s has %d tags, want %d", station.ErrShapeMismatch, section, field, len(names), nPumps)
		}
		for _, name := range names {
			if err := exists(section, field, name, writable); err != nil {
				return err
			}
		}
		return nil
	}

	s, c, st := m.Station, m.Control, m.Setting
	checks := []error{
		exists("station", "water_level", s.WaterLevel, false),
		perPump("station", "switch", s.Switch, false),
		perPump("station", "speed", s.Speed, false),
		perPump("station", "outflow", s.Outflow, false),
		perPump("station", "sec", s.SEC, false),
		perPump("control", "switch", c.Switch, true),
		perPump("control", "speed", c.Speed, true),
		perPump("control", "outflow_setpoints", c.OutflowSetpoints, true),
		exists("control", "total_outflow_setpoint", c.TotalOutflowSetpoint, true),
		exists("control", "level_setpoint", c.LevelSetpoint, true),
		exists("control", "inflow", c.Inflow, true),
		exists("setting", "outflow_lower", st.OutflowLower, false),
		exists("setting", "outflow_upper", st.OutflowUpper, false),
		exists("setting", "h_lower", st.LevelLower, false),
		exists("setting", "h_upper", st.LevelUpper, false),
		exists("setting", "pid_kp", st.PIDKp, false),
		exists("setting", "pid_ki", st.PIDKi, false),
		exists("setting", "pid_kb", st.PIDKb, false),
	}
	for tag, name := range s.Scalars {
		checks = append(checks, exists("station.scalars", tag, name, false))
	}
	for tag, name := range c.Scalars {
		checks = append(checks, exists("control.scalars", tag, name, true))
	}
	if len(st.LevelSetpoint) != len(st.WindowStart) || len(st.LevelSetpoint) != len(st.WindowEnd) {
		checks = append(checks, fmt.Errorf("%w: setting windows have %d setpoints, %d starts and %d ends",
			station.ErrShapeMismatch, len(st.LevelSetpoint), len(st.WindowStart), len(st.WindowEnd)))
	}
	for _, names := range [][]string{st.LevelSetpoint, st.WindowStart, st.WindowEnd} {
		for _, name := range names {
			checks = append(checks, exists("setting", "windows", name, false))
		}
	}
	for _, err := range checks {
		if err != nil {
			return err
		}
	}
	return nil
}

type ModbusOptions struct {
	Tags     TagMap
	Pumps    int
	Fallback station.Setting
	Period   time.Duration
	RealTime bool
}

// Modbus reads and writes the station through tag-addressed registers.
type Modbus struct {
	io       TagIO
	tags     TagMap
	n        int
	fallback station.Setting
	pacer    *Pacer
	now      func() time.Time

	mu     sync.RWMutex
	values map[string]Value

	log *logger.Logger
}

// NewModbus checks the tag map against the registers before any bus access.
func NewModbus(io TagIO, opts ModbusOptions) (*Modbus, error) {
	if err := opts.Tags.Check(io, opts.Pumps); err != nil {
		return nil, err
	}
	return &Modbus{
		io:       io,
		tags:     opts.Tags,
		n:        opts.Pumps,
		fallback: opts.Fallback,
		pacer:    NewPacer(opts.Period, opts.RealTime),
		now:      time.Now,
		values:   make(map[string]Value),
		log:      logger.New("ModbusConnector"),
	}, nil
}

func (m *Modbus) read(ctx context.Context, name string) (float64, error) {
	v, err := m.io.ReadFloat(ctx, name)
	m.remember(name, v, err, false)
	if err != nil {
		return 0, transportErr("read "+name, err)
	}
	return v, nil
}

func (m *Modbus) readAll(ctx context.Context, names []string) ([]float64, error) {
	out := make([]float64, m.n)
	for i, name := range names {
		v, err := m.read(ctx, name)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (m *Modbus) ReadMeasurement(ctx context.Context) (station.Snapshot, error) {
	s := m.tags.Station
	snap := station.Snapshot{Timestamp: unixSeconds(m.now())}

	var err error
	if s.WaterLevel != "" {
		if snap.WaterLevel, err = m.read(ctx, s.WaterLevel); err != nil {
			return station.Snapshot{}, err
		}
	}
	switches, err := m.readAll(ctx, s.Switch)
	if err != nil {
		return station.Snapshot{}, err
	}
	snap.Switch = make([]int, m.n)
	for i, v := range switches {
		if v != 0 {
			snap.Switch[i] = 1
		}
	}
	if snap.Speed, err = m.readAll(ctx, s.Speed); err != nil {
		return station.Snapshot{}, err
	}
	if snap.Outflow, err = m.readAll(ctx, s.Outflow); err != nil {
		return station.Snapshot{}, err
	}
	if snap.SEC, err = m.readAll(ctx, s.SEC); err != nil {
		return station.Snapshot{}, err
	}
	if len(s.Scalars) > 0 {
		snap.Tags = make(map[string]float64, len(s.Scalars))
		for tag, name := range s.Scalars {
			if snap.Tags[tag], err = m.read(ctx, name); err != nil {
				return station.Snapshot{}, err
			}
		}
	}
	return snap, nil
}

type write struct {
	name  string
	value any
}

// WriteCommand checks every value against its register before the first
// write, so a bad command never reaches the bus half written.
func (m *Modbus) WriteCommand(ctx context.Context, p station.Payload) error {
	var writes []write
	switch p := p.(type) {
	case station.Command:
		if err := p.Validate(m.n); err != nil {
			return err
		}
		writes = m.commandWrites(p)
	case station.Snapshot:
		var err error
		if writes, err = m.snapshotWrites(p); err != nil {
			return err
		}
	default:
		return payloadErr("modbus", p)
	}

	for _, w := range writes {
		if err := m.io.CheckValue(w.name, w.value); err != nil {
			return fmt.Errorf("%w: %v", station.ErrShapeMismatch, err)
		}
	}
	for _, w := range writes {
		err := m.io.WriteValue(ctx, w.name, w.value)
		f, _ := toFloat(w.value)
		m.remember(w.name, f, err, true)
		if err != nil {
			return transportErr("write "+w.name, err)
		}
	}
	return nil
}

func (m *Modbus) commandWrites(cmd station.Command) []write {
	c := m.tags.Control
	var writes []write
	for i, name := range c.Switch {
		writes = append(writes, write{name, cmd.Switch[i] == 1})
	}
	for i, name := range c.Speed {
		writes = append(writes, write{name, cmd.Speed[i]})
	}
	for i, name := range c.OutflowSetpoints {
		writes = append(writes, write{name, cmd.OutflowSetpoints[i]})
	}
	for _, w := range []write{
		{c.TotalOutflowSetpoint, cmd.TotalOutflowSetpoint},
		{c.LevelSetpoint, cmd.LevelSetpoint},
		{c.Inflow, cmd.Inflow},
	} {
		if w.name != "" {
			writes = append(writes, w)
		}
	}
	return writes
}

// snapshotWrites maps the tagged scalars of a snapshot onto the control
// scalars. Every mapped scalar must be present.
func (m *Modbus) snapshotWrites(s station.Snapshot) ([]write, error) {
	scalars := m.tags.Control.Scalars
	if len(scalars) == 0 {
		return nil, fmt.Errorf("%w: no control scalars mapped for snapshot writes", station.ErrShapeMismatch)
	}
	tags := make([]string, 0, len(scalars))
	for tag := range scalars {
		tags = append(tags, tag)
	}
	sort.Strings(tags)

	writes := make([]write, 0, len(tags))
	for _, tag := range tags {
		v, ok := s.Tags[tag]
		if !ok {
			return nil, fmt.Errorf("%w: snapshot has no tag %q", station.ErrShapeMismatch, tag)
		}
		writes = append(writes, write{scalars[tag], v})
	}
	return writes, nil
}

// ReadSettings reads the mapped setting tags over the fallback setting.
func (m *Modbus) ReadSettings(ctx context.Context) (station.Setting, error) {
	st := m.tags.Setting
	s := m.fallback
	s.LevelSetpoint = append([]float64(nil), s.LevelSetpoint...)
	s.WindowStart = append([]float64(nil), s.WindowStart...)
	s.WindowEnd = append([]float64(nil), s.WindowEnd...)

	scalars := []struct {
		name string
		dst  *float64
	}{
		{st.OutflowLower, &s.OutflowLower},
		{st.OutflowUpper, &s.OutflowUpper},
		{st.LevelLower, &s.LevelLower},
		{st.LevelUpper, &s.LevelUpper},
		{st.PIDKp, &s.PIDKp},
		{st.PIDKi, &s.PIDKi},
		{st.PIDKb, &s.PIDKb},
	}
	for _, sc := range scalars {
		if sc.name == "" {
			continue
		}
		v, err := m.read(ctx, sc.name)
		if err != nil {
			return station.Setting{}, err
		}
		*sc.dst = v
	}

	if len(st.LevelSetpoint) > 0 {
		var err error
		if s.LevelSetpoint, err = m.readList(ctx, st.LevelSetpoint); err != nil {
			return station.Setting{}, err
		}
		if s.WindowStart, err = m.readList(ctx, st.WindowStart); err != nil {
			return station.Setting{}, err
		}
		if s.WindowEnd, err = m.readList(ctx, st.WindowEnd); err != nil {
			return station.Setting{}, err
		}
	}
	return s, nil
}

func (m *Modbus) readList(ctx context.Context, names []string) ([]float64, error) {
	out := make([]float64, len(names))
	for i, name := range names {
		v, err := m.read(ctx, name)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (m *Modbus) Pace(ctx context.Context) error {
	return m.pacer.Wait(ctx)
}

func toFloat(v any) (float64, bool) {
	switch v := v.(type) {
	case float64:
		return v, true
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}
