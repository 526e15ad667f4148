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

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Predictor evaluates a regression model on one feature vector.
// Implementations must be pure.
type Predictor interface {
	Predict(features []float64) (float64, error)
}

// PredictorFunc adapts a plain function to the Predictor interface.
type PredictorFunc func(features []float64) (float64, error)

func (f PredictorFunc) Predict(features []float64) (float64, error) {
	return f(features)
}

// PumpModel holds the SEC and flow predictors of one pump.
type PumpModel struct {
	SEC  Predictor
	Flow Predictor
}

// LinearModel is y = intercept + Σ coef[i]·x[i].
type LinearModel struct {
	Intercept float64   `yaml:"intercept"`
	Coef      []float64 `yaml:"coef"`
}

func (m LinearModel) Predict(features []float64) (float64, error) {
	if len(features) != len(m.Coef) {
		return 0, fmt.Errorf("linear model expects %d features, got %d", len(m.Coef), len(features))
	}
	y := m.Intercept
	for i, x := range features {
		y += m.Coef[i] * x
	}
	return y, nil
}

// ModelFile is the YAML layout of the per-pump model file:
//
//	pumps:
//	  - sec:  {intercept: 0.01, coef: [0.002, 0.0005]}
//	    flow: {intercept: 1200, coef: [150, 60]}
type ModelFile struct {
	Pumps []struct {
		SEC  LinearModel `yaml:"sec"`
		Flow LinearModel `yaml:"flow"`
	} `yaml:"pumps"`
}

// ParseModels decodes a model file and checks it against the pump layout.
func ParseModels(data []byte, nPumps int, variableSpeed []int) ([]PumpModel, error) {
	var f ModelFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode models: %w", err)
	}
	if len(f.Pumps) != nPumps {
		return nil, fmt.Errorf("%w: model file has %d pumps, want %d", ErrShapeMismatch, len(f.Pumps), nPumps)
	}

	vsp := make(map[int]bool, len(variableSpeed))
	for _, i := range variableSpeed {
		vsp[i] = true
	}

	models := make([]PumpModel, nPumps)
	for i, p := range f.Pumps {
		want := 1
		if vsp[i] {
			want = 2
		}
		if len(p.SEC.Coef) != want || len(p.Flow.Coef) != want {
			return nil, fmt.Errorf("%w: pump %d models need %d coefficients", ErrShapeMismatch, i, want)
		}
		models[i] = PumpModel{SEC: p.SEC, Flow: p.Flow}
	}
	return models, nil
}

func LoadModels(path string, nPumps int, variableSpeed []int) ([]PumpModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read models: %w", err)
	}
	return ParseModels(data, nPumps, variableSpeed)
}
