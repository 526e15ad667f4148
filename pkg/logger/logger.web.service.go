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

package logger

import (
	"bufio"
	"html/template"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
)

const tailLines = 250

// Service implements http.Handler for debug/log control
type Service struct {
	mu sync.Mutex
}

func WebService() *Service {
	return &Service{}
}

// ServeHTTP implements http.Handler
func (s *Service) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/toggle":
		EnableDebug(!IsDebug())
		http.Redirect(w, r, "/logger", http.StatusSeeOther)

	case "/clear":
		if err := s.clearLog(); err != nil {
			http.Error(w, "failed to clear log: "+err.Error(), 500)
			return
		}
		http.Redirect(w, r, "/logger", http.StatusSeeOther)

	default:
		s.renderPage(w, r)
	}
}

var levelRank = map[string]int{"DEBUG": 0, "INFO": 1, "WARN": 2, "ERROR": 3, "FATAL": 4}

// parseLine splits "<date> <time> [Component] LEVEL: msg".
func parseLine(line string) (component, level string, ok bool) {
	i := strings.Index(line, "[")
	j := strings.Index(line, "] ")
	if i < 0 || j < i {
		return "", "", false
	}
	rest := line[j+2:]
	k := strings.Index(rest, ":")
	if k < 0 {
		return "", "", false
	}
	level = rest[:k]
	if _, known := levelRank[level]; !known {
		return "", "", false
	}
	return line[i+1 : j], level, true
}

// ComponentSummary counts the warnings and errors of one component, e.g.
// level clamps of the pump station or faulted control cycles.
type ComponentSummary struct {
	Component string
	Lines     int
	Warnings  int
	Errors    int
}

func summarize(lines []string) []ComponentSummary {
	byName := make(map[string]*ComponentSummary)
	for _, line := range lines {
		comp, level, ok := parseLine(line)
		if !ok {
			continue
		}
		cs := byName[comp]
		if cs == nil {
			cs = &ComponentSummary{Component: comp}
			byName[comp] = cs
		}
		cs.Lines++
		switch level {
		case "WARN":
			cs.Warnings++
		case "ERROR", "FATAL":
			cs.Errors++
		}
	}
	out := make([]ComponentSummary, 0, len(byName))
	for _, cs := range byName {
		out = append(out, *cs)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Component < out[j].Component })
	return out
}

// filterLines keeps the lines of component (any when empty) at or above
// minLevel (any when empty). Continuation lines follow their parent.
func filterLines(lines []string, component, minLevel string) []string {
	if component == "" && minLevel == "" {
		return lines
	}
	var out []string
	keep := false
	for _, line := range lines {
		if comp, level, ok := parseLine(line); ok {
			keep = (component == "" || comp == component) &&
				(minLevel == "" || levelRank[level] >= levelRank[minLevel])
		}
		if keep {
			out = append(out, line)
		}
	}
	return out
}

func (s *Service) renderPage(w http.ResponseWriter, r *http.Request) {
	lines, _ := s.tail(tailLines)
	component := r.URL.Query().Get("component")
	level := strings.ToUpper(r.URL.Query().Get("level"))
	if _, ok := levelRank[level]; !ok {
		level = ""
	}

	tpl := `
<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>AutoFlow Log</title>
  <style>
    body { font-family: Arial, sans-serif; margin: 2em; background: #f9f9f9; color: #333; }
    h1 { margin-bottom: 0.5em; }
    .status { margin-bottom: 1em; }
    .btn { display:inline-block; padding:0.5em 1em; margin:0.2em; font-size:0.9em;
           background:#007bff; color:white; border:none; border-radius:4px; cursor:pointer; text-decoration:none; }
    .btn:hover { background:#0056b3; }
    .btn-danger { background:#dc3545; }
    .btn-danger:hover { background:#a71d2a; }
    table { border-collapse: collapse; margin-bottom: 1em; }
    th, td { border: 1px solid #ccc; padding: 0.3em 0.8em; text-align: right; }
    th:first-child, td:first-child { text-align: left; }
    .warn { color: #b8860b; }
    .err { color: #dc3545; font-weight: bold; }
    pre.log { background:#222; color:#eee; padding:1em; border-radius:6px; max-height:500px; overflow:auto; }
  </style>
</head>
<body>
  <h1>AutoFlow Log</h1>
  <div class="status">
    <b>Debug:</b> {{if .Debug}}<span style="color:green;">ON</span>{{else}}<span style="color:red;">OFF</span>{{end}}
  </div>
  <form method="POST" action="/logger/toggle" style="display:inline;">
    <button class="btn" type="submit">Toggle Debug</button>
  </form>
  <form method="POST" action="/logger/clear" style="display:inline;">
    <button class="btn btn-danger" type="submit">Clear Log</button>
  </form>

  <h2>Components</h2>
  <table>
    <tr><th>Component</th><th>Lines</th><th>Warnings</th><th>Errors</th></tr>
    {{range .Summary}}
    <tr>
      <td><a href="/logger?component={{.Component}}">{{.Component}}</a></td>
      <td>{{.Lines}}</td>
      <td{{if .Warnings}} class="warn"{{end}}>{{.Warnings}}</td>
      <td{{if .Errors}} class="err"{{end}}>{{.Errors}}</td>
    </tr>
    {{end}}
  </table>

  <form method="GET" action="/logger">
    <input type="hidden" name="component" value="{{.Component}}">
    <select name="level">
      <option value="">all levels</option>
      {{range .Levels}}<option value="{{.}}"{{if eq . $.Level}} selected{{end}}>{{.}} and above</option>{{end}}
    </select>
    <button class="btn" type="submit">Filter</button>
    {{if or .Component .Level}}<a class="btn" href="/logger">Reset</a>{{end}}
  </form>

  <h2>Last {{.Lines}} log lines{{if .Component}} of {{.Component}}{{end}}</h2>
  <pre class="log">{{.Log}}</pre>
</body>
</html>
`
	t := template.Must(template.New("page").Parse(tpl))
	_ = t.Execute(w, map[string]any{
		"Debug":     IsDebug(),
		"Log":       strings.Join(filterLines(lines, component, level), "\n"),
		"Lines":     tailLines,
		"Summary":   summarize(lines),
		"Component": component,
		"Level":     level,
		"Levels":    []string{"INFO", "WARN", "ERROR"},
	})
}

// clearLog truncates and reopens the log file; loggers pick up the new
// file through the shared writer.
func (s *Service) clearLog() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if logFile == nil {
		return nil
	}

	name := logFile.Name()
	output.set(os.Stdout)
	logFile.Close()

	newf, err := os.OpenFile(name, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		logFile = nil
		return err
	}
	logFile = newf
	output.set(io.MultiWriter(os.Stdout, logFile))
	return nil
}

// tail reads last n lines of the log file
func (s *Service) tail(n int) ([]string, error) {
	if logFile == nil {
		return nil, nil
	}
	f, err := os.Open(logFile.Name())
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines, sc.Err()
}
