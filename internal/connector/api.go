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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"autoflow/internal/station"
	"autoflow/pkg/logger"
)

// GatewayTimeLayout is the timestamp format of the gateway's input document.
const GatewayTimeLayout = "2006-01-02 15:04:05"

type APIOptions struct {
	// URL is the gateway base, e.g. "http://gateway/station1/"; the
	// endpoints "input", "output" and "setting" are appended as-is.
	URL      string
	Timeout  time.Duration
	Retry    Retry
	Fallback station.Setting
	Location *time.Location
	Period   time.Duration
	RealTime bool
	Client   *http.Client
}

// API talks to a REST gateway in front of the station.
type API struct {
	url      string
	client   *http.Client
	retry    Retry
	fallback station.Setting
	loc      *time.Location
	pacer    *Pacer
	log      *logger.Logger
}

func NewAPI(opts APIOptions) (*API, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("api connector: empty url")
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	return &API{
		url:      opts.URL,
		client:   client,
		retry:    opts.Retry,
		fallback: opts.Fallback,
		loc:      loc,
		pacer:    NewPacer(opts.Period, opts.RealTime),
		log:      logger.New("APIConnector"),
	}, nil
}

type inputDoc struct {
	Timestamp  string    `json:"timestamp"`
	WaterLevel float64   `json:"input.water_level"`
	Switch     []int     `json:"input.switch"`
	Speed      []float64 `json:"input.speed"`
	Outflow    []float64 `json:"input.outflow"`
	SEC        []float64 `json:"input.sec"`
}

var inputKeys = map[string]bool{
	"timestamp":         true,
	"input.water_level": true,
	"input.switch":      true,
	"input.speed":       true,
	"input.outflow":     true,
	"input.sec":         true,
}

type outputDoc struct {
	OutflowSetpoints     []float64 `json:"output.outflow_setpoint"`
	Speed                []float64 `json:"output.speed"`
	Switch               []int     `json:"output.switch"`
	TotalOutflowSetpoint float64   `json:"output.total_outflow_setpoint"`
}

// ReadMeasurement fetches the input document. Extra numeric "input.*" keys
// become snapshot tags without the prefix.
func (a *API) ReadMeasurement(ctx context.Context) (station.Snapshot, error) {
	var body []byte
	err := a.retry.Do(ctx, "read input", func(ctx context.Context) error {
		var err error
		body, err = a.do(ctx, http.MethodGet, "input", nil)
		return err
	})
	if err != nil {
		return station.Snapshot{}, err
	}
	return a.parseInput(body)
}

func (a *API) parseInput(body []byte) (station.Snapshot, error) {
	var doc inputDoc
	if err := json.Unmarshal(body, &doc); err != nil {
		return station.Snapshot{}, transportErr("decode input", err)
	}
	ts, err := time.ParseInLocation(GatewayTimeLayout, doc.Timestamp, a.loc)
	if err != nil {
		return station.Snapshot{}, transportErr("parse input timestamp", err)
	}
	snap := station.Snapshot{
		Timestamp:  unixSeconds(ts),
		WaterLevel: doc.WaterLevel,
		Switch:     doc.Switch,
		Speed:      doc.Speed,
		Outflow:    doc.Outflow,
		SEC:        doc.SEC,
	}

	var extra map[string]any
	if err := json.Unmarshal(body, &extra); err == nil {
		for key, v := range extra {
			f, ok := v.(float64)
			if !ok || inputKeys[key] || !strings.HasPrefix(key, "input.") {
				continue
			}
			if snap.Tags == nil {
				snap.Tags = make(map[string]float64)
			}
			snap.Tags[strings.TrimPrefix(key, "input.")] = f
		}
	}
	return snap, nil
}

// WriteCommand posts a Command to the output endpoint. Snapshots are
// rejected.
func (a *API) WriteCommand(ctx context.Context, p station.Payload) error {
	cmd, ok := p.(station.Command)
	if !ok {
		return payloadErr("api", p)
	}
	body, err := json.Marshal(outputDoc{
		OutflowSetpoints:     cmd.OutflowSetpoints,
		Speed:                cmd.Speed,
		Switch:               cmd.Switch,
		TotalOutflowSetpoint: cmd.TotalOutflowSetpoint,
	})
	if err != nil {
		return err
	}
	return a.retry.Do(ctx, "write output", func(ctx context.Context) error {
		_, err := a.do(ctx, http.MethodPost, "output", body)
		return err
	})
}

// ReadSettings fetches the setting endpoint. A gateway without one (404)
// gets the configured fallback.
func (a *API) ReadSettings(ctx context.Context) (station.Setting, error) {
	var body []byte
	notFound := false
	err := a.retry.Do(ctx, "read setting", func(ctx context.Context) error {
		var err error
		body, err = a.do(ctx, http.MethodGet, "setting", nil)
		var se *statusError
		if errors.As(err, &se) && se.code == http.StatusNotFound {
			notFound = true
			return nil
		}
		return err
	})
	if err != nil {
		return station.Setting{}, err
	}
	if notFound {
		return a.fallback, nil
	}
	s := a.fallback
	if err := json.Unmarshal(body, &s); err != nil {
		return station.Setting{}, transportErr("decode setting", err)
	}
	return s, nil
}

func (a *API) Pace(ctx context.Context) error {
	return a.pacer.Wait(ctx)
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.code, e.body)
}

// do runs one request. Every failure, including a non-2xx status, is a
// transport error; the status is recoverable with errors.As.
func (a *API) do(ctx context.Context, method, endpoint string, body []byte) ([]byte, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, a.url+endpoint, rd)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, transportErr(method+" "+endpoint, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportErr("read "+endpoint, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, transportErr(method+" "+endpoint, &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(data))})
	}
	a.log.Debug("%s %s: %d bytes", method, endpoint, len(data))
	return data, nil
}
