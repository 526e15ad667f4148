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

package modbus

import (
	"fmt"
	"os"

	"autoflow/pkg/logger"

	"gopkg.in/yaml.v3"
)

// Register kinds.
const (
	KindHolding  = "holding"
	KindInput    = "input"
	KindCoil     = "coil"
	KindDiscrete = "discrete"
)

type Config struct {
	Modbus    ModbusConfig           `yaml:"modbus"`
	Registers map[string]RegisterDef `yaml:"registers"`
}

type ModbusConfig struct {
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
	SlaveID byte   `yaml:"slave_id"`
	Timeout int    `yaml:"timeout"` // seconds
}

type RegisterDef struct {
	Address     uint16  `yaml:"address"`
	Type        string  `yaml:"type"`      // "holding" (default), "input", "coil", "discrete"
	DataType    string  `yaml:"data_type"` // "uint16", "int16", "bool", "float32"; coils and discrete inputs are always bool
	Scale       float64 `yaml:"scale"`     // scaling factor (if set, interprets int16 value as scaled float)
	Offset      float64 `yaml:"offset"`    // offset value
	Description string  `yaml:"description"`
	Writable    bool    `yaml:"writable"`
}

// ParseConfig decodes a register map and checks every definition.
func ParseConfig(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parse modbus config: %w", err)
	}
	if config.Modbus.Timeout == 0 {
		config.Modbus.Timeout = 5
	}
	for name, def := range config.Registers {
		if def.Type == "" {
			def.Type = KindHolding
		}
		if def.Type == KindCoil || def.Type == KindDiscrete {
			def.DataType = "bool"
		}
		if err := def.validate(); err != nil {
			return nil, fmt.Errorf("register %q: %w", name, err)
		}
		config.Registers[name] = def
	}
	return &config, nil
}

func (d RegisterDef) validate() error {
	switch d.Type {
	case KindHolding, KindInput, KindCoil, KindDiscrete:
	default:
		return fmt.Errorf("unknown register type %q", d.Type)
	}
	if registerCount(d.DataType) == 0 {
		return fmt.Errorf("unsupported data type %q", d.DataType)
	}
	if d.Writable && (d.Type == KindInput || d.Type == KindDiscrete) {
		return fmt.Errorf("%s registers are read-only", d.Type)
	}
	return nil
}

func LoadConfig(filename string) *Config {
	log := logger.New("ModbusConfig")
	data, err := os.ReadFile(filename)
	if err != nil {
		log.Fatal("failed to read config file: %v", err)
	}
	config, err := ParseConfig(data)
	if err != nil {
		log.Fatal("%s: %v", filename, err)
	}
	return config
}
