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

package recorder

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// EmonCMS posts batches to the EmonCMS input API as one flat node.
type EmonCMS struct {
	addr   string
	apiKey string
	node   string
	client *http.Client
}

func NewEmonCMS(addr, apiKey, node string) *EmonCMS {
	return &EmonCMS{
		addr:   addr,
		apiKey: apiKey,
		node:   node,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (e *EmonCMS) Name() string {
	return "emoncms"
}

// Flatten maps a batch onto EmonCMS input names.
func Flatten(b Batch) map[string]float64 {
	s := b.Station
	data := map[string]float64{
		"water_level":            s.WaterLevel,
		"total_outflow_setpoint": s.TotalOutflowSetpoint,
		"total_outflow":          s.TotalOutflow,
		"h_setpoint":             s.LevelSetpoint,
		"inflow":                 s.Inflow,
		"sec":                    s.SEC,
	}
	for _, p := range b.Pumps {
		prefix := fmt.Sprintf("pump%d_", p.PumpID)
		data[prefix+"switch"] = float64(p.Switch)
		data[prefix+"speed"] = p.Speed
		data[prefix+"outflow"] = p.Outflow
		data[prefix+"sec"] = p.SEC
		data[prefix+"outflow_setpoint"] = p.OutflowSetpoint
	}
	for k, v := range b.Tags {
		data[k] = v
	}
	return data
}

func (e *EmonCMS) Send(ctx context.Context, b Batch) error {
	bytes, err := json.Marshal(Flatten(b))
	if err != nil {
		return err
	}
	q := url.Values{}
	q.Set("node", e.node)
	q.Set("apikey", e.apiKey)
	q.Set("fulljson", string(bytes))
	if b.Station.Timestamp > 0 {
		q.Set("time", fmt.Sprintf("%.0f", b.Station.Timestamp))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.addr+"/input/post?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("input/post: status %d: %s", resp.StatusCode, body)
	}
	return nil
}
