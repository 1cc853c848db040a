// Copyright 2026 The Procvisor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gdamore/tcell/v2"

	"github.com/procvisor/procvisor/procvisor/util"
	"github.com/procvisor/procvisor/rest"
)

// lines is a scrollable block of styled text.
type lines struct {
	text   []string
	styles []tcell.Style
	top    int
}

func (l *lines) add(style tcell.Style, format string, v ...interface{}) {
	l.text = append(l.text, fmt.Sprintf(format, v...))
	l.styles = append(l.styles, style)
}

func (l *lines) reset() {
	l.text = l.text[:0]
	l.styles = l.styles[:0]
}

func (l *lines) draw(s tcell.Screen, y0, y1 int) {
	w, _ := s.Size()
	if l.top > len(l.text)-(y1-y0) {
		l.top = len(l.text) - (y1 - y0)
	}
	if l.top < 0 {
		l.top = 0
	}
	for y, i := y0, l.top; y < y1 && i < len(l.text); y, i = y+1, i+1 {
		drawText(s, 0, y, w, l.styles[i], l.text[i])
	}
}

func (l *lines) scroll(ev *tcell.EventKey) bool {
	switch ev.Key() {
	case tcell.KeyUp:
		l.top--
	case tcell.KeyDown:
		l.top++
	case tcell.KeyPgUp:
		l.top -= 10
	case tcell.KeyPgDn:
		l.top += 10
	case tcell.KeyHome:
		l.top = 0
	case tcell.KeyEnd:
		l.top = len(l.text)
	default:
		return false
	}
	return true
}

// MainPanel lists every process, one per line.
type MainPanel struct {
	app      *App
	selected string
	cury     int
	nfailed  int
	nrunning int
	nwaiting int
	lines
}

func NewMainPanel(app *App) *MainPanel {
	return &MainPanel{app: app, cury: -1}
}

func (m *MainPanel) Title() string {
	return "Processes"
}

func (m *MainPanel) Keys() []string {
	words := []string{"[Q] Quit", "[H] Help", "[S] Shutdown"}
	if m.selected != "" {
		words = append(words, "[I] Info")
	}
	return append(words, "[L] Log")
}

func (m *MainPanel) HandleEvent(ev *tcell.EventKey) bool {
	items, _ := m.app.Items()
	switch ev.Key() {
	case tcell.KeyEsc:
		m.selected = ""
		m.cury = -1
		return true
	case tcell.KeyF1:
		m.app.ShowHelp()
		return true
	case tcell.KeyUp:
		m.move(items, -1)
		return true
	case tcell.KeyDown:
		m.move(items, 1)
		return true
	case tcell.KeyEnter:
		if m.selected != "" {
			m.app.ShowInfo(m.selected)
			return true
		}
	case tcell.KeyRune:
		switch ev.Rune() {
		case 'Q', 'q':
			m.app.Quit()
			return true
		case 'H', 'h':
			m.app.ShowHelp()
			return true
		case 'I', 'i':
			if m.selected != "" {
				m.app.ShowInfo(m.selected)
				return true
			}
		case 'L', 'l':
			m.app.ShowLog(m.selected)
			return true
		case 'S', 's':
			m.app.Shutdown()
			return true
		case 'j':
			m.move(items, 1)
			return true
		case 'k':
			m.move(items, -1)
			return true
		}
	}
	return false
}

func (m *MainPanel) move(items []rest.ProcessInfo, d int) {
	if len(items) == 0 {
		return
	}
	m.cury += d
	if m.cury < 0 {
		m.cury = 0
	}
	if m.cury >= len(items) {
		m.cury = len(items) - 1
	}
	m.selected = items[m.cury].Name
}

// update rebuilds the content from the latest items.
func (m *MainPanel) update() {
	items, err := m.app.Items()
	m.reset()
	if err != nil {
		if e, ok := err.(*rest.Error); ok && e.Code == 401 {
			m.add(StyleError, "Not authorized; use --user")
		} else {
			m.add(StyleError, "Cannot load processes: %v", err)
		}
		return
	}

	m.nfailed, m.nrunning, m.nwaiting = 0, 0, 0
	now := time.Now()
	m.add(StyleNormal, "%-20s %-10s %8s %8s %6s %10s  %s",
		"NAME", "STATUS", "PID", "LAUNCHES", "EXIT", "UPTIME", "REASON")

	// preserve selected item
	m.cury = -1
	for i := range items {
		info := &items[i]
		if info.Name == m.selected {
			m.cury = i
		}
		up := util.Uptime(info, now)
		up -= up % time.Second
		var style tcell.Style
		switch {
		case util.Failed(info):
			style = StyleError
			m.nfailed++
		case util.Running(info):
			style = StyleGood
			m.nrunning++
		default:
			style = StyleWarn
			m.nwaiting++
		}
		if info.Name == m.selected {
			style = style.Reverse(true)
		}
		m.add(style, "%-20s %-10s %8s %8d %6s %10s  %s",
			info.Name, util.Status(info), util.Pid(info),
			info.Launches, util.ExitCode(info),
			util.FormatDuration(up), info.Reason)
	}
	if m.cury < 0 {
		m.selected = ""
	}
	m.app.status = fmt.Sprintf("%6d Processes %6d Running %6d Waiting %6d Failed",
		len(items), m.nrunning, m.nwaiting, m.nfailed)
}

func (m *MainPanel) Draw(s tcell.Screen, y0, y1 int) {
	m.update()
	m.lines.draw(s, y0, y1)
}

// InfoPanel shows the details of one process.
type InfoPanel struct {
	app  *App
	name string
	lines
}

func NewInfoPanel(app *App) *InfoPanel {
	return &InfoPanel{app: app}
}

func (p *InfoPanel) SetName(name string) {
	p.name = name
	p.top = 0
}

func (p *InfoPanel) Title() string {
	return "Process: " + p.name
}

func (p *InfoPanel) Keys() []string {
	return []string{"[Q] Quit", "[H] Help", "[L] Log", "[Esc] Back"}
}

func (p *InfoPanel) HandleEvent(ev *tcell.EventKey) bool {
	switch ev.Key() {
	case tcell.KeyEsc:
		p.app.ShowMain()
		return true
	case tcell.KeyRune:
		switch ev.Rune() {
		case 'Q', 'q':
			p.app.Quit()
			return true
		case 'H', 'h':
			p.app.ShowHelp()
			return true
		case 'L', 'l':
			p.app.ShowLog(p.name)
			return true
		}
	}
	return p.scroll(ev)
}

func (p *InfoPanel) Draw(s tcell.Screen, y0, y1 int) {
	p.reset()
	info := p.app.Item(p.name)
	if info == nil {
		p.add(StyleError, "No such process: %s", p.name)
	} else {
		when := func(t time.Time) string {
			if t.IsZero() {
				return "-"
			}
			return humanize.Time(t)
		}
		p.add(StyleNormal, "Name:         %s", info.Name)
		p.add(StyleNormal, "Status:       %s", util.Status(info))
		p.add(StyleNormal, "Reason:       %s", info.Reason)
		p.add(StyleNormal, "Command:      %s", strings.Join(info.Command, " "))
		p.add(StyleNormal, "PID:          %s", util.Pid(info))
		p.add(StyleNormal, "Launch ID:    %s", info.LaunchID)
		p.add(StyleNormal, "Launches:     %d", info.Launches)
		p.add(StyleNormal, "Last exit:    %s", util.ExitCode(info))
		p.add(StyleNormal, "Started:      %s", when(info.StartTime))
		p.add(StyleNormal, "Exited:       %s", when(info.ExitTime))
		p.add(StyleNormal, "Next launch:  %s", when(info.NextLaunch))
		p.add(StyleNormal, "Restart delay: %v",
			time.Duration(info.RestartDelayMs)*time.Millisecond)
	}
	p.lines.draw(s, y0, y1)
}

// LogPanel shows recent output of one process, or all of them.
type LogPanel struct {
	app    *App
	name   string
	follow bool
	lines
}

func NewLogPanel(app *App) *LogPanel {
	return &LogPanel{app: app}
}

func (p *LogPanel) SetName(name string) {
	p.name = name
	p.follow = true
}

func (p *LogPanel) Title() string {
	if p.name == "" {
		return "Log: all processes"
	}
	return "Log: " + p.name
}

func (p *LogPanel) Keys() []string {
	return []string{"[Q] Quit", "[H] Help", "[F] Follow", "[Esc] Back"}
}

func (p *LogPanel) HandleEvent(ev *tcell.EventKey) bool {
	switch ev.Key() {
	case tcell.KeyEsc:
		p.app.ShowMain()
		return true
	case tcell.KeyRune:
		switch ev.Rune() {
		case 'Q', 'q':
			p.app.Quit()
			return true
		case 'H', 'h':
			p.app.ShowHelp()
			return true
		case 'F', 'f':
			p.follow = !p.follow
			return true
		}
	}
	if p.scroll(ev) {
		p.follow = false
		return true
	}
	return false
}

func (p *LogPanel) Draw(s tcell.Screen, y0, y1 int) {
	p.reset()
	info, err := p.app.Log(p.name)
	switch {
	case err != nil:
		p.add(StyleError, "Cannot load log: %v", err)
	case info == nil:
		p.add(StyleNormal, "Loading...")
	default:
		for i := range info.Records {
			r := &info.Records[i]
			style := StyleNormal
			if r.Stream == "stderr" {
				style = StyleWarn
			}
			p.add(style, "%s", util.FormatRecord(r, p.name == ""))
		}
	}
	if p.follow {
		p.top = len(p.text)
	}
	p.lines.draw(s, y0, y1)
}

// HelpPanel describes the keys.
type HelpPanel struct {
	app *App
	lines
}

func NewHelpPanel(app *App) *HelpPanel {
	h := &HelpPanel{app: app}
	h.add(StyleNormal, "Up/Down, j/k   select a process")
	h.add(StyleNormal, "Enter, I       show details of the selected process")
	h.add(StyleNormal, "L              show the log of the selected process,")
	h.add(StyleNormal, "               or of every process when none is selected")
	h.add(StyleNormal, "F              toggle following the end of a log")
	h.add(StyleNormal, "S              shut the supervisor down")
	h.add(StyleNormal, "Esc            go back")
	h.add(StyleNormal, "Ctrl-L         redraw the screen")
	h.add(StyleNormal, "Q, Ctrl-C      quit")
	return h
}

func (h *HelpPanel) Title() string {
	return "Help"
}

func (h *HelpPanel) Keys() []string {
	return []string{"[Q] Quit", "[Esc] Back"}
}

func (h *HelpPanel) HandleEvent(ev *tcell.EventKey) bool {
	switch ev.Key() {
	case tcell.KeyEsc:
		h.app.ShowMain()
		return true
	case tcell.KeyRune:
		switch ev.Rune() {
		case 'Q', 'q':
			h.app.Quit()
			return true
		}
	}
	return h.scroll(ev)
}

func (h *HelpPanel) Draw(s tcell.Screen, y0, y1 int) {
	h.lines.draw(s, y0, y1)
}
