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
	"strings"
	"time"

	"gbebox/pkg/logger"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

type CPU struct {
	SystemPercent  float64 `json:"system_percent"`
	ProcessPercent float64 `json:"process_percent"`
	TempC          float64 `json:"temp_c,omitempty"`
}

type Memory struct {
	SystemTotal uint64 `json:"system_total"`
	SystemUsed  uint64 `json:"system_used"`
	SystemFree  uint64 `json:"system_free"`
	ProcessRSS  uint64 `json:"process_rss"`
}

type Disk struct {
	Path       string `json:"path"`
	Total      uint64 `json:"total"`
	Used       uint64 `json:"used"`
	Free       uint64 `json:"free"`
	Inodes     uint64 `json:"inodes"`
	InodesFree uint64 `json:"inodes_free"`
	ReadOnly   bool   `json:"read_only"`
}

type Stats struct {
	GoVersion string        `json:"go_version"`
	Uptime    time.Duration `json:"uptime_ns"`
	CPU       CPU           `json:"cpu"`
	Memory    Memory        `json:"memory"`
	Disk      Disk          `json:"disk"`
}

// Service reports host health. Disk figures are for the filesystem
// holding dir, where logs and the backlog are written.
type Service struct {
	dir string
	log *logger.Logger
}

func New(dir string) *Service {
	return &Service{
		log: logger.New("System Monitor"),
		dir: dir,
	}
}

// Collect samples the host. Figures that cannot be read are left zero.
func (s *Service) Collect() Stats {
	st := Stats{GoVersion: runtime.Version(), Disk: Disk{Path: s.dir}}

	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		st.CPU.SystemPercent = pct[0]
	}
	st.CPU.TempC = socTemp()

	if vmem, err := mem.VirtualMemory(); err == nil {
		st.Memory.SystemTotal = vmem.Total
		st.Memory.SystemUsed = vmem.Used
		st.Memory.SystemFree = vmem.Available
	}

	if d, err := statDisk(s.dir); err == nil {
		st.Disk = d
	} else {
		s.log.Debug("disk usage %s: %v", s.dir, err)
	}

	if up, err := host.Uptime(); err == nil {
		st.Uptime = time.Duration(up) * time.Second
	}

	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if memInfo, err := p.MemoryInfo(); err == nil {
			st.Memory.ProcessRSS = memInfo.RSS
		}
		if pct, err := p.CPUPercent(); err == nil {
			st.CPU.ProcessPercent = pct
		}
	}
	return st
}

// socTemp returns the first CPU thermal zone reading, or zero.
func socTemp() float64 {
	temps, err := host.SensorsTemperatures()
	if err != nil {
		return 0
	}
	for _, t := range temps {
		if strings.Contains(t.SensorKey, "cpu") || strings.Contains(t.SensorKey, "soc") {
			return t.Temperature
		}
	}
	return 0
}

func (s *Service) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	st := s.Collect()

	// JSON API
	if r.Header.Get("Accept") == "application/json" {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(st)
		return
	}

	const gb, mb = 1024 * 1024 * 1024, 1024 * 1024

	// HTML dashboard
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
	<p>Go %s, up %s</p>
	<h2>CPU</h2>
	<table>
		<tr><th>System %%</th><th>Process %%</th><th>SoC &deg;C</th></tr>
		<tr><td>%.2f%%</td><td>%.2f%%</td><td>%.1f</td></tr>
	</table>
	<h2>Memory</h2>
	<table>
		<tr><th>System Total</th><th>System Used</th><th>System Free</th><th>Process RSS</th></tr>
		<tr><td>%.2f GB</td><td>%.2f GB</td><td>%.2f GB</td><td>%.2f MB</td></tr>
	</table>
	<h2>Disk (%s)</h2>
	<table>
		<tr><th>Total</th><th>Used</th><th>Free</th><th>Inodes free</th><th>Mode</th></tr>
		<tr><td>%.2f GB</td><td>%.2f GB</td><td>%.2f GB</td><td>%d / %d</td><td>%s</td></tr>
	</table>
</body>
</html>
`,
		st.GoVersion, st.Uptime.Truncate(time.Second),
		st.CPU.SystemPercent, st.CPU.ProcessPercent, st.CPU.TempC,
		float64(st.Memory.SystemTotal)/gb,
		float64(st.Memory.SystemUsed)/gb,
		float64(st.Memory.SystemFree)/gb,
		float64(st.Memory.ProcessRSS)/mb,
		st.Disk.Path,
		float64(st.Disk.Total)/gb,
		float64(st.Disk.Used)/gb,
		float64(st.Disk.Free)/gb,
		st.Disk.InodesFree, st.Disk.Inodes,
		diskMode(st.Disk.ReadOnly),
	)
}

func diskMode(readOnly bool) string {
	if readOnly {
		return "read-only"
	}
	return "read-write"
}
