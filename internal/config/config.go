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

package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"time"

	"autoflow/internal/controller/dispatch"
	"autoflow/internal/station"
	"autoflow/pkg/eventbus"
	"autoflow/pkg/logger"
)

const (
	ModeVirtual = "virtual"
	ModeModbus  = "modbus"
	ModeAPI     = "api"

	LawCooling = "cooling"
	LawLevel   = "level"
)

type ControllerConfig struct {
	// Law selects the control law: "cooling" or "level".
	Law string `json:"law"`

	// Timezone used to resolve the schedule windows, e.g. "Asia/Shanghai".
	// Empty means the host's local time.
	Timezone string `json:"timezone"`
}

type StationConfig struct {
	Pumps         int            `json:"pumps"`
	VariableSpeed []int          `json:"variable_speed_pumps"`
	TankArea      float64        `json:"tank_area"` // m²
	Bounds        station.Bounds `json:"bounds"`

	// YAML file with one sec/flow regression model per pump
	ModelsFile string `json:"models_file"`

	Dispatch dispatch.Config `json:"dispatch"`
}

type VirtualConfig struct {
	// CSV with one inflow sample (m³/h) per row, replayed one row per step
	InflowFile string `json:"inflow_file"`
	// optional CSV of wet-bulb temperatures for the cooling law
	WetBulbFile string `json:"wet_bulb_file"`

	InitialLevel  float64   `json:"initial_level"`
	InitialSwitch []int     `json:"initial_switch"`
	InitialSpeed  []float64 `json:"initial_speed"`

	Setting station.Setting `json:"setting"`
}

type ModbusConfig struct {
	// YAML register map with the tags section
	RegistersFile string `json:"registers_file"`

	// setting fields without a mapped tag come from here
	Setting station.Setting `json:"setting"`
}

type APIConfig struct {
	URL            string `json:"url"`
	TimeoutSeconds int    `json:"timeout_seconds"`
	Retries        int    `json:"retries"`
	BackoffMillis  int    `json:"backoff_ms"`

	// used when the gateway has no setting endpoint
	Setting station.Setting `json:"setting"`
}

type HTTPConfig struct {
	Addr string `json:"addr"`
}

type RecorderConfig struct {
	EmonCMSAddr   string `json:"emoncms_addr"`
	EmonCMSApiKey string `json:"emoncms_apikey"`
	EmonCMSNode   string `json:"emoncms_node"`

	MQTTBroker   string `json:"mqtt_broker"`
	MQTTTopic    string `json:"mqtt_topic"`
	MQTTClientID string `json:"mqtt_client_id"`

	IntervalSeconds int `json:"interval_seconds"`
}

type MaintenanceConfig struct {
	// daily report time, "15:04"
	ReportAt string `json:"report_at"`
	// run hours between two services of a pump
	ServiceHours float64 `json:"service_hours"`
	// run hours are saved here across restarts, relative to DataDir
	StateFile string `json:"state_file"`
}

type Config struct {
	Mode          string  `json:"mode"`
	SampleSeconds float64 `json:"sample_seconds"`
	// real time mode follows the wall clock instead of advancing a
	// simulated clock by SampleSeconds
	RealTime bool `json:"real_time"`

	Controller  ControllerConfig  `json:"controller"`
	Station     StationConfig     `json:"station"`
	Virtual     VirtualConfig     `json:"virtual"`
	Modbus      ModbusConfig      `json:"modbus"`
	API         APIConfig         `json:"api"`
	HTTP        HTTPConfig        `json:"http"`
	Recorder    RecorderConfig    `json:"recorder"`
	Maintenance MaintenanceConfig `json:"maintenance"`

	// not loaded from file, but added here to
	// pass to all services alongside config
	EventBus *eventbus.Bus `json:"-"`
	DataDir  string        `json:"-"`
	RootDir  string        `json:"-"`
}

// Decode reads a JSON config and applies defaults.
func Decode(r io.Reader) (*Config, error) {
	var c Config
	if err := json.NewDecoder(r).Decode(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func LoadFile(path string) *Config {
	log := logger.New("Config")
	f, err := os.Open(path)
	if err != nil {
		log.Fatal("open config: %v", err)
	}
	defer f.Close()
	c, err := Decode(f)
	if err != nil {
		log.Fatal("%s: %v", path, err)
	}
	return c
}

func (c *Config) applyDefaults() {
	if c.Mode == "" {
		c.Mode = ModeVirtual
	}
	if c.SampleSeconds == 0 {
		c.SampleSeconds = 60
	}
	if c.Controller.Law == "" {
		c.Controller.Law = LawCooling
	}
	if c.Station.Pumps == 0 {
		c.Station.Pumps = 8
	}
	if c.Station.TankArea == 0 {
		c.Station.TankArea = 1000
	}
	if c.Station.Bounds == (station.Bounds{}) {
		c.Station.Bounds = station.DefaultBounds()
	}
	c.Station.Dispatch.Speed = c.Station.Bounds.Speed
	for _, i := range c.Station.VariableSpeed {
		if i >= 0 && i < len(c.Station.Dispatch.Pumps) {
			c.Station.Dispatch.Pumps[i].VariableSpeed = true
		}
	}
	if c.Station.Dispatch.MinSwitchInterval == 0 {
		c.Station.Dispatch.MinSwitchInterval = 1800
	}
	if c.Station.Dispatch.MaxCumTimeDiff == 0 {
		c.Station.Dispatch.MaxCumTimeDiff = 24 * 3600
	}
	if c.Virtual.Setting.LevelSetpoint == nil {
		c.Virtual.Setting = station.DefaultSetting()
	}
	if c.Virtual.InitialLevel == 0 {
		c.Virtual.InitialLevel = 4.6
	}
	if c.Modbus.Setting.LevelSetpoint == nil {
		c.Modbus.Setting = station.DefaultSetting()
	}
	if c.API.TimeoutSeconds == 0 {
		c.API.TimeoutSeconds = 5
	}
	if c.API.Retries == 0 {
		c.API.Retries = 3
	}
	if c.API.BackoffMillis == 0 {
		c.API.BackoffMillis = 500
	}
	if c.API.Setting.LevelSetpoint == nil {
		c.API.Setting = station.DefaultSetting()
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	if c.Recorder.IntervalSeconds == 0 {
		c.Recorder.IntervalSeconds = 60
	}
	if c.Recorder.EmonCMSNode == "" {
		c.Recorder.EmonCMSNode = "autoflow"
	}
	if c.Recorder.MQTTTopic == "" {
		c.Recorder.MQTTTopic = "autoflow/records"
	}
	if c.Recorder.MQTTClientID == "" {
		c.Recorder.MQTTClientID = "autoflow"
	}
	if c.Maintenance.ReportAt == "" {
		c.Maintenance.ReportAt = "06:00"
	}
	if c.Maintenance.ServiceHours == 0 {
		c.Maintenance.ServiceHours = 4000
	}
	if c.Maintenance.StateFile == "" {
		c.Maintenance.StateFile = "runtimes.json.gz"
	}
}

func (c *Config) Validate() error {
	switch c.Mode {
	case ModeVirtual, ModeModbus, ModeAPI:
	default:
		return fmt.Errorf("unknown mode %q", c.Mode)
	}
	switch c.Controller.Law {
	case LawCooling, LawLevel:
	default:
		return fmt.Errorf("unknown control law %q", c.Controller.Law)
	}
	if c.SampleSeconds < 0 {
		return fmt.Errorf("sample_seconds must not be negative, got %g", c.SampleSeconds)
	}
	if c.Station.Pumps < 0 {
		return fmt.Errorf("station.pumps must not be negative, got %d", c.Station.Pumps)
	}
	if err := c.Station.Bounds.Validate(); err != nil {
		return fmt.Errorf("station.bounds: %w", err)
	}
	// the api gateway only takes pump commands
	if c.Mode == ModeAPI && c.Controller.Law == LawCooling {
		return fmt.Errorf("mode %q cannot carry the %q law, use %q", ModeAPI, LawCooling, LawLevel)
	}
	for _, i := range c.Station.VariableSpeed {
		if i < 0 || i >= c.Station.Pumps {
			return fmt.Errorf("station.variable_speed_pumps: index %d out of range [0, %d): %w",
				i, c.Station.Pumps, station.ErrShapeMismatch)
		}
	}
	if c.Controller.Law == LawLevel {
		if len(c.Station.Dispatch.Pumps) != c.Station.Pumps {
			return fmt.Errorf("station.dispatch has %d pumps, station.pumps is %d: %w",
				len(c.Station.Dispatch.Pumps), c.Station.Pumps, station.ErrShapeMismatch)
		}
		for i, p := range c.Station.Dispatch.Pumps {
			if p.VariableSpeed && !slices.Contains(c.Station.VariableSpeed, i) {
				return fmt.Errorf("station.dispatch pump %d is variable speed, station.variable_speed_pumps is %v: %w",
					i, c.Station.VariableSpeed, station.ErrShapeMismatch)
			}
		}
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves Controller.Timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.Controller.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Controller.Timezone)
	if err != nil {
		return nil, fmt.Errorf("controller.timezone: %w", err)
	}
	return loc, nil
}

// SamplePeriod is SampleSeconds as a duration.
func (c *Config) SamplePeriod() time.Duration {
	return time.Duration(c.SampleSeconds * float64(time.Second))
}
