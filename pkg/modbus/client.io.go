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
	"context"
	"encoding/binary"
	"fmt"
	"math"
)

// ReadFloat reads a register and converts any numeric or bool value to float64.
func (c *Client) ReadFloat(ctx context.Context, name string) (float64, error) {
	val, err := c.ReadValue(ctx, name)
	if err != nil {
		return 0, err
	}
	return toFloat64(val)
}

// ReadValue reads a register by name and returns its decoded value as `any`.
// Supported return types:
//   - float32 (for float32 or scaled int16/uint16 registers)
//   - int16   (for int16 registers without scaling)
//   - uint16  (for uint16 registers without scaling)
//   - bool    (for bool registers, coils and discrete inputs)
func (c *Client) ReadValue(ctx context.Context, name string) (any, error) {
	regDef, ok := c.config.Registers[name]
	if !ok {
		return nil, fmt.Errorf("register %q not configured", name)
	}

	var raw []byte
	var err error
	switch regDef.Type {
	case KindCoil:
		raw, err = c.ReadCoils(ctx, regDef.Address)
		if err == nil && len(raw) > 0 {
			return raw[0]&1 == 1, nil
		}
	case KindDiscrete:
		raw, err = c.ReadDiscreteInputs(ctx, regDef.Address)
		if err == nil && len(raw) > 0 {
			return raw[0]&1 == 1, nil
		}
	case KindInput:
		raw, err = c.ReadInputRegisters(ctx, regDef.Address, registerCount(regDef.DataType))
	default:
		raw, err = c.ReadRegisters(ctx, regDef.Address, registerCount(regDef.DataType))
	}
	if err != nil {
		return nil, fmt.Errorf("register read failed for %s: %w", name, err)
	}
	val, err := decode(regDef, raw)
	if err != nil {
		return nil, fmt.Errorf("register %q: %w", name, err)
	}
	return val, nil
}

// WriteValue writes a Go value into a named register.
// Accepted input types:
//   - float64 (for float32 and scaled int16 registers)
//   - int     (for int16/uint16 registers)
//   - bool    (for bool registers and coils)
func (c *Client) WriteValue(ctx context.Context, name string, value any) error {
	regDef, ok := c.config.Registers[name]
	if !ok {
		return fmt.Errorf("register %q not configured", name)
	}
	if !regDef.Writable {
		return fmt.Errorf("register %q is not writable", name)
	}

	c.log.Debug("WriteRegister '%s' <- %v", name, value)

	if regDef.Type == KindCoil {
		on, err := toFloat64(value)
		if err != nil {
			return err
		}
		if err := c.WriteCoil(ctx, regDef.Address, on != 0); err != nil {
			return fmt.Errorf("failed to write coil %q: %w", name, err)
		}
		return nil
	}

	raw, err := encode(regDef, value)
	if err != nil {
		return fmt.Errorf("register %q: %w", name, err)
	}
	if err := c.WriteRegisters(ctx, regDef.Address, raw); err != nil {
		return fmt.Errorf("failed to write register %q: %w", name, err)
	}
	return nil
}

// CheckValue reports whether value can be encoded into register name
// without touching the bus.
func (c *Client) CheckValue(name string, value any) error {
	regDef, ok := c.config.Registers[name]
	if !ok {
		return fmt.Errorf("register %q not configured", name)
	}
	if !regDef.Writable {
		return fmt.Errorf("register %q is not writable", name)
	}
	if regDef.Type == KindCoil {
		_, err := toFloat64(value)
		return err
	}
	_, err := encode(regDef, value)
	return err
}

// Register returns the definition of a named register.
func (c *Client) Register(name string) (RegisterDef, bool) {
	def, ok := c.config.Registers[name]
	return def, ok
}

func decode(regDef RegisterDef, raw []byte) (any, error) {
	if len(raw) < int(registerCount(regDef.DataType)*2) {
		return nil, fmt.Errorf("insufficient data: %d bytes", len(raw))
	}

	var valf64 float64
	switch regDef.DataType {
	case "float32":
		valf64 = float64(math.Float32frombits(binary.BigEndian.Uint32(raw)))
		if regDef.Scale == 0 {
			return float32(valf64), nil
		}

	case "int16":
		valf64 = float64(int16(binary.BigEndian.Uint16(raw)))
		if regDef.Scale == 0 {
			return int16(valf64), nil
		}

	case "uint16":
		valf64 = float64(binary.BigEndian.Uint16(raw))
		if regDef.Scale == 0 {
			return uint16(valf64), nil
		}

	case "bool", "binary":
		return binary.BigEndian.Uint16(raw) != 0, nil

	default:
		return nil, fmt.Errorf("unsupported data type %q", regDef.DataType)
	}

	// if requires scaling, always return float32
	valf64 = valf64*regDef.Scale + regDef.Offset
	return float32(valf64), nil
}

func encode(regDef RegisterDef, value any) ([]byte, error) {
	// all 16 & 32 bit numeric values can be represented by a float64
	valf64, err := toFloat64(value)
	if err != nil {
		return nil, err
	}
	if math.IsNaN(valf64) || math.IsInf(valf64, 0) {
		return nil, fmt.Errorf("value %v is not finite", valf64)
	}

	if regDef.Scale != 0 {
		valf64 = (valf64 - regDef.Offset) / regDef.Scale
	}

	switch regDef.DataType {
	case "float32":
		if valf64 > math.MaxFloat32 || valf64 < -math.MaxFloat32 {
			return nil, fmt.Errorf("value %v out of float32 range", valf64)
		}
		raw := make([]byte, 4)
		binary.BigEndian.PutUint32(raw, math.Float32bits(float32(valf64)))
		return raw, nil

	case "int16":
		ival := math.Round(valf64)
		if ival < math.MinInt16 || ival > math.MaxInt16 {
			return nil, fmt.Errorf("value %v out of int16 range", valf64)
		}
		return uint16ToBytes(uint16(int16(ival))), nil

	case "uint16":
		ival := math.Round(valf64)
		if ival < 0 || ival > math.MaxUint16 {
			return nil, fmt.Errorf("value %v out of uint16 range", valf64)
		}
		return uint16ToBytes(uint16(ival)), nil

	case "bool":
		if valf64 != 0 {
			return uint16ToBytes(math.MaxUint16), nil
		}
		return uint16ToBytes(0), nil

	default:
		return nil, fmt.Errorf("unsupported data type %q", regDef.DataType)
	}
}

// registerCount is the number of 16 bit registers a data type spans, 0 if unknown.
func registerCount(dt string) uint16 {
	switch dt {
	case "uint16", "int16", "bool", "binary":
		return 1
	case "float32":
		return 2
	default:
		return 0
	}
}

func uint16ToBytes(v uint16) []byte {
	buf := make([]byte, 2)
	binary.BigEndian.PutUint16(buf, v)
	return buf
}

// toFloat64 attempts to convert an interface{} value into a float64.
// It supports int, uint, float types, and returns an error otherwise.
func toFloat64(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int8:
		return float64(n), nil
	case int16:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint:
		return float64(n), nil
	case uint8:
		return float64(n), nil
	case uint16:
		return float64(n), nil
	case uint32:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case bool:
		if n {
			return 1.0, nil
		}
		return 0.0, nil
	default:
		return 0, fmt.Errorf("cannot convert %T to float64", v)
	}
}
