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

package sysmon

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"runtime"

	"autoflow/pkg/eventbus"
	"autoflow/pkg/logger"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

const gb = 1024 * 1024 * 1024

type Service struct {
	dir string
	bus *eventbus.Bus
	log *logger.Logger
}

// Metrics is the JSON document served to clients sending Accept: application/json.
type Metrics struct {
	GoVersion  string `json:"go_version"`
	Goroutines int    `json:"goroutines"`
	CPU        struct {
		SystemPercent  float64 `json:"system_percent"`
		ProcessPercent float64 `json:"process_percent"`
	} `json:"cpu"`
	Memory struct {
		SystemTotal uint64 `json:"system_total"`
		SystemUsed  uint64 `json:"system_used"`
		SystemFree  uint64 `json:"system_free"`
		ProcessRSS  uint64 `json:"process_rss"`
	} `json:"memory"`
	Disk     Disk            `json:"disk"`
	EventBus *eventbus.Stats `json:"event_bus,omitempty"`
}

// Disk describes the filesystem holding the data directory, where the
// maintenance state and logs are written.
type Disk struct {
	Path       string `json:"path"`
	Total      uint64 `json:"total"`
	Used       uint64 `json:"used"`
	Free       uint64 `json:"free"`
	Inodes     uint64 `json:"inodes"`
	InodesFree uint64 `json:"inodes_free"`
}

// New monitors the host and the disk holding dir. bus may be nil.
func New(dir string, bus *eventbus.Bus) *Service {
	return &Service{
		log: logger.New("System Monitor"),
		dir: dir,
		bus: bus,
	}
}

func (s *Service) collect() Metrics {
	var m Metrics
	m.GoVersion = runtime.Version()
	m.Goroutines = runtime.NumGoroutine()

	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		m.CPU.SystemPercent = pct[0]
	}
	if vmem, err := mem.VirtualMemory(); err == nil {
		m.Memory.SystemTotal = vmem.Total
		m.Memory.SystemUsed = vmem.Used
		m.Memory.SystemFree = vmem.Available
	} else {
		s.log.Debug("virtual memory: %v", err)
	}

	disk, err := statDisk(s.dir)
	if err != nil {
		s.log.Debug("disk usage of %s: %v", s.dir, err)
	}
	m.Disk = disk

	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if memInfo, err := p.MemoryInfo(); err == nil {
			m.Memory.ProcessRSS = memInfo.RSS
		}
		if pct, err := p.CPUPercent(); err == nil {
			m.CPU.ProcessPercent = pct
		}
	}

	if s.bus != nil {
		stats := s.bus.Stats()
		m.EventBus = &stats
	}
	return m
}

func (s *Service) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m := s.collect()

	if r.Header.Get("Accept") == "application/json" {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(m); err != nil {
			s.log.Error("encode metrics: %v", err)
		}
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, `
<!DOCTYPE html>
<html>
<head>
	<title>System Monitor</title>
	<style>
		body { font-family: sans-serif; margin: 2em; background: #f9f9f9; }
		h1 { color: #333; }
		table { border-collapse: collapse; width: 60%%; margin-top: 1em; }
		th, td { border: 1px solid #ccc; padding: 0.6em 1em; text-align: left; }
		th { background: #eee; }
	</style>
</head>
<body>
	<h1>System Monitor</h1>
	<h2>Go</h2>
	<p>Version: %s, goroutines: %d</p>
	<h2>CPU</h2>
	<table>
		<tr><th>System %%</th><th>Process %%</th></tr>
		<tr><td>%.2f%%</td><td>%.2f%%</td></tr>
	</table>
	<h2>Memory</h2>
	<table>
		<tr><th>System Total</th><th>System Used</th><th>System Free</th><th>Process RSS</th></tr>
		<tr><td>%.2f GB</td><td>%.2f GB</td><td>%.2f GB</td><td>%.2f MB</td></tr>
	</table>
	<h2>Disk (%s)</h2>
	<table>
		<tr><th>Total</th><th>Used</th><th>Free</th><th>Inodes Free</th></tr>
		<tr><td>%.2f GB</td><td>%.2f GB</td><td>%.2f GB</td><td>%d / %d</td></tr>
	</table>
`,
		m.GoVersion, m.Goroutines,
		m.CPU.SystemPercent, m.CPU.ProcessPercent,
		float64(m.Memory.SystemTotal)/gb,
		float64(m.Memory.SystemUsed)/gb,
		float64(m.Memory.SystemFree)/gb,
		float64(m.Memory.ProcessRSS)/(1024*1024),
		m.Disk.Path,
		float64(m.Disk.Total)/gb,
		float64(m.Disk.Used)/gb,
		float64(m.Disk.Free)/gb,
		m.Disk.InodesFree, m.Disk.Inodes,
	)
	if m.EventBus != nil {
		fmt.Fprintf(w, `
	<h2>Event Bus</h2>
	<table>
		<tr><th>Published</th><th>Delivered</th><th>Replaced</th><th>Dropped</th></tr>
		<tr><td>%d</td><td>%d</td><td>%d</td><td>%d</td></tr>
	</table>
`, m.EventBus.Events, m.EventBus.Sent, m.EventBus.Replaced, m.EventBus.Dropped)
	}
	fmt.Fprintln(w, "</body>\n</html>")
}
