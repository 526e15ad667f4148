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

package maintenance

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"autoflow/internal/events"
	"autoflow/pkg/eventbus"
	"autoflow/pkg/logger"

	"github.com/go-co-op/gocron"
)

type Options struct {
	// ReportAt is the daily report time, "15:04".
	ReportAt     string
	ServiceHours float64
	StateFile    string
	Location     *time.Location
}

// state is what survives a restart. All values are run seconds.
type state struct {
	RunSeconds      []float64 `json:"run_seconds"`
	ServicedSeconds []float64 `json:"serviced_seconds"`
	Saved           time.Time `json:"saved"`
}

type PumpReport struct {
	Pump              int     `json:"pump"`
	RunHours          float64 `json:"run_hours"`
	HoursSinceService float64 `json:"hours_since_service"`
	Due               bool    `json:"due"`
}

type Report struct {
	Time  time.Time    `json:"time"`
	Pumps []PumpReport `json:"pumps"`
}

// Service keeps lifetime pump run hours across restarts and reports the
// pumps due for service once a day.
type Service struct {
	bus  *eventbus.Bus
	opts Options

	mu       sync.Mutex
	baseline []float64 // run seconds before this process
	session  []float64 // run seconds reported by the control loop
	serviced []float64

	log *logger.Logger
}

func New(bus *eventbus.Bus, opts Options) *Service {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	s := &Service{
		bus:  bus,
		opts: opts,
		log:  logger.New("Maintenance"),
	}
	s.loadFromDisk()
	return s
}

func (s *Service) Run(ctx context.Context) {
	s.log.Info("Running, daily report at %s...", s.opts.ReportAt)
	defer s.log.Info("Stopped")

	scheduler := gocron.NewScheduler(s.opts.Location)
	if _, err := scheduler.Every(1).Day().At(s.opts.ReportAt).Do(s.dailyReport); err != nil {
		s.log.Error("failed to schedule report at %q: %v", s.opts.ReportAt, err)
	}
	scheduler.StartAsync()
	defer scheduler.Stop()
	defer s.saveToDisk()

	cycles, unsub := s.bus.Subscribe(ctx, events.TopicCycle, true)
	defer unsub()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-cycles:
			if !ok {
				return
			}
			s.Observe(ev.(events.CycleUpdate))
		}
	}
}

// Observe takes the cumulative run times of a cycle.
func (s *Service) Observe(ev events.CycleUpdate) {
	if len(ev.RunTimes) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.baseline) != len(ev.RunTimes) {
		if len(s.baseline) > 0 {
			s.log.Warn("pump count changed from %d to %d, run hours restart at zero", len(s.baseline), len(ev.RunTimes))
		}
		s.baseline = make([]float64, len(ev.RunTimes))
		s.serviced = make([]float64, len(ev.RunTimes))
	}
	s.session = append(s.session[:0], ev.RunTimes...)
}

func (s *Service) totals() []float64 {
	out := make([]float64, len(s.baseline))
	for i := range out {
		out[i] = s.baseline[i]
		if i < len(s.session) {
			out[i] += s.session[i]
		}
	}
	return out
}

func (s *Service) Report() Report {
	s.mu.Lock()
	defer s.mu.Unlock()

	totals := s.totals()
	r := Report{Time: time.Now().In(s.opts.Location), Pumps: make([]PumpReport, len(totals))}
	for i, sec := range totals {
		since := (sec - s.serviced[i]) / 3600
		r.Pumps[i] = PumpReport{
			Pump:              i,
			RunHours:          sec / 3600,
			HoursSinceService: since,
			Due:               s.opts.ServiceHours > 0 && since >= s.opts.ServiceHours,
		}
	}
	return r
}

// MarkServiced restarts the service counter of one pump.
func (s *Service) MarkServiced(pump int) error {
	s.mu.Lock()
	totals := s.totals()
	if pump < 0 || pump >= len(totals) {
		s.mu.Unlock()
		return fmt.Errorf("no pump %d", pump)
	}
	s.serviced[pump] = totals[pump]
	s.mu.Unlock()

	s.log.Info("pump %d serviced at %.1f run hours", pump, totals[pump]/3600)
	s.saveToDisk()
	return nil
}

func (s *Service) dailyReport() {
	r := s.Report()
	for _, p := range r.Pumps {
		if p.Due {
			s.log.Warn("pump %d due for service: %.1f h since last service (limit %.0f h)",
				p.Pump, p.HoursSinceService, s.opts.ServiceHours)
		} else {
			s.log.Info("pump %d: %.1f run hours, %.1f h since service", p.Pump, p.RunHours, p.HoursSinceService)
		}
	}
	s.saveToDisk()
}

func (s *Service) saveToDisk() {
	if s.opts.StateFile == "" {
		return
	}
	s.mu.Lock()
	st := state{
		RunSeconds:      s.totals(),
		ServicedSeconds: append([]float64(nil), s.serviced...),
		Saved:           time.Now(),
	}
	s.mu.Unlock()
	if len(st.RunSeconds) == 0 {
		return
	}

	if err := os.MkdirAll(filepath.Dir(s.opts.StateFile), 0o755); err != nil {
		s.log.Error("failed to create state dir: %v", err)
		return
	}
	tmpPath := s.opts.StateFile + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		s.log.Error("failed to create temp state file: %v", err)
		return
	}
	defer file.Close()

	gz := gzip.NewWriter(file)
	if err := json.NewEncoder(gz).Encode(st); err != nil {
		s.log.Error("failed to encode state: %v", err)
		gz.Close()
		return
	}
	if err := gz.Close(); err != nil {
		s.log.Error("failed to close gzip: %v", err)
		return
	}
	if err := file.Sync(); err != nil {
		s.log.Error("failed to fsync state: %v", err)
	}
	file.Close()
	if err := os.Rename(tmpPath, s.opts.StateFile); err != nil {
		s.log.Error("failed to rename state file: %v", err)
		return
	}
	s.log.Debug("run hours saved for %d pumps", len(st.RunSeconds))
}

func (s *Service) loadFromDisk() {
	if s.opts.StateFile == "" {
		return
	}
	file, err := os.Open(filepath.Clean(s.opts.StateFile))
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Error("failed to open run hours: %v", err)
		}
		return
	}
	defer file.Close()

	gz, err := gzip.NewReader(file)
	if err != nil {
		s.log.Error("failed to open gzip: %v", err)
		return
	}
	defer gz.Close()

	var st state
	if err := json.NewDecoder(gz).Decode(&st); err != nil {
		s.log.Error("failed to decode run hours: %v", err)
		return
	}
	if len(st.ServicedSeconds) != len(st.RunSeconds) {
		st.ServicedSeconds = make([]float64, len(st.RunSeconds))
	}

	s.mu.Lock()
	s.baseline = st.RunSeconds
	s.serviced = st.ServicedSeconds
	s.mu.Unlock()
	s.log.Info("run hours restored for %d pumps (saved %s)", len(st.RunSeconds), st.Saved.Format(time.RFC3339))
}
