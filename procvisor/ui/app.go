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

// Package ui is the full screen live view used by "procvisor top".
package ui

import (
	"context"
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/procvisor/procvisor/procvisor/util"
	"github.com/procvisor/procvisor/rest"
)

// Panel is one full screen view.  Panels draw themselves between the
// title bar and the key bar.
type Panel interface {
	Draw(s tcell.Screen, y0, y1 int)
	HandleEvent(ev *tcell.EventKey) bool
	Title() string
	Keys() []string
}

type App struct {
	screen    tcell.Screen
	client    *rest.Client
	url       string
	panel     Panel
	main      *MainPanel
	info      *InfoPanel
	log       *LogPanel
	help      *HelpPanel
	status    string
	err       error
	items     []rest.ProcessInfo
	logName   string
	logInfo   *rest.LogInfo
	logErr    error
	logCancel context.CancelFunc
	ctx       context.Context
	quit      bool
}

// update is posted by background goroutines; it runs on the event
// loop.
type update func()

func (a *App) post(fn update) {
	a.screen.PostEvent(tcell.NewEventInterrupt(fn))
}

func (a *App) show(p Panel) {
	a.panel = p
}

func (a *App) ShowHelp() {
	a.show(a.help)
}

func (a *App) ShowInfo(name string) {
	a.info.SetName(name)
	a.show(a.info)
}

func (a *App) ShowLog(name string) {
	if a.logCancel != nil {
		a.logCancel()
	}
	ctx, cancel := context.WithCancel(a.ctx)
	a.logInfo = nil
	a.logErr = nil
	a.logName = name
	a.logCancel = cancel
	a.log.SetName(name)
	go a.refreshLog(ctx, name)

	a.show(a.log)
}

func (a *App) ShowMain() {
	a.show(a.main)
}

func (a *App) Quit() {
	a.quit = true
}

// Shutdown asks the supervisor to stop everything.
func (a *App) Shutdown() {
	go func() {
		ctx, cancel := context.WithTimeout(a.ctx, 5*time.Second)
		defer cancel()
		e := a.client.Shutdown(ctx, 0)
		a.post(func() {
			if e != nil {
				a.status = "Shutdown failed: " + e.Error()
			} else {
				a.status = "Shutdown requested"
			}
		})
	}()
}

func (a *App) handleEvent(ev tcell.Event) {
	switch ev := ev.(type) {
	case *tcell.EventKey:
		switch ev.Key() {
		// Intercept a few control keys up front, for global handling.
		case tcell.KeyCtrlC:
			a.Quit()
			return
		case tcell.KeyCtrlL:
			a.screen.Sync()
			return
		}
		a.panel.HandleEvent(ev)
	case *tcell.EventResize:
		a.screen.Sync()
	case *tcell.EventInterrupt:
		if fn, ok := ev.Data().(update); ok {
			fn()
		}
	}
}

func (a *App) draw() {
	s := a.screen
	s.Clear()
	w, h := s.Size()
	a.panel.Draw(s, 1, h-2)
	titleBar(s, w, a.panel.Title(), a.url)
	status := a.status
	if a.err != nil {
		status = a.err.Error()
	}
	statusBar(s, w, h-2, status)
	keyBar(s, w, h-1, a.panel.Keys())
	s.Show()
}

// refresh keeps the app items current.
func (a *App) refresh() {
	var last *rest.ProcessList
	for {
		pl, e := a.client.WatchProcesses(a.ctx, rest.MaxPollTime, last)
		if a.ctx.Err() != nil {
			return
		}
		if e == nil {
			last = pl
			items := append([]rest.ProcessInfo(nil), pl.Processes...)
			util.SortProcesses(items)
			a.post(func() {
				a.items = items
				a.err = nil
			})
		} else {
			last = nil
			a.post(func() {
				a.err = e
			})
			time.Sleep(2 * time.Second)
		}
	}
}

func (a *App) refreshLog(ctx context.Context, name string) {
	info, e := a.client.GetLog(ctx, name)

	for {
		i, err := info, e
		a.post(func() {
			if a.logName == name {
				a.logInfo = i
				a.logErr = err
			}
		})
		if ctx.Err() != nil {
			return
		}
		if e != nil {
			time.Sleep(2 * time.Second)
			info, e = a.client.GetLog(ctx, name)
			continue
		}
		info, e = a.client.WatchLog(ctx, name, info)
	}
}

func (a *App) Items() ([]rest.ProcessInfo, error) {
	return a.items, a.err
}

func (a *App) Item(name string) *rest.ProcessInfo {
	for i := range a.items {
		if a.items[i].Name == name {
			return &a.items[i]
		}
	}
	return nil
}

func (a *App) Log(name string) (*rest.LogInfo, error) {
	if a.logName == name {
		return a.logInfo, a.logErr
	}
	return nil, nil
}

// Run takes over the terminal until the user quits.
func (a *App) Run(ctx context.Context) error {
	s, e := tcell.NewScreen()
	if e != nil {
		return e
	}
	if e = s.Init(); e != nil {
		return e
	}
	defer s.Fini()
	a.screen = s

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	a.ctx = ctx

	go a.refresh()
	go func() {
		// Give us periodic updates, so uptimes tick.
		t := time.NewTicker(time.Second)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				a.post(func() { a.quit = true })
				return
			case <-t.C:
				a.post(func() {})
			}
		}
	}()

	a.ShowMain()
	for !a.quit {
		a.draw()
		ev := s.PollEvent()
		if ev == nil {
			break
		}
		a.handleEvent(ev)
		if ctx.Err() != nil {
			break
		}
	}
	return nil
}

func NewApp(client *rest.Client, url string) *App {
	app := &App{client: client, url: url}
	app.main = NewMainPanel(app)
	app.info = NewInfoPanel(app)
	app.log = NewLogPanel(app)
	app.help = NewHelpPanel(app)
	app.panel = app.main
	app.ctx = context.Background()
	return app
}
