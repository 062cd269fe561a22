// Package uincurses is a tview/tcell live dashboard driven by
// driver.MessageBus: a header/progress/events three-pane layout fed by
// chunk and target progress events.
package uincurses

import (
	"fmt"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"forge/driver"
)

// Dashboard renders build progress as a full-screen terminal UI.
type Dashboard struct {
	app          *tview.Application
	headerText   *tview.TextView
	progressText *tview.TextView
	eventsText   *tview.TextView
	layout       *tview.Flex

	mu            sync.Mutex
	eventLines    []string
	maxEventLines int
	stopped       bool
	onInterrupt   func()

	total, done, failed int
	start               time.Time
}

// NewDashboard returns a Dashboard tracking progress out of totalTargets.
func NewDashboard(totalTargets int) *Dashboard {
	return &Dashboard{
		total:         totalTargets,
		maxEventLines: 200,
		start:         time.Now(),
	}
}

// SetInterruptHandler registers a callback invoked when the user presses
// Ctrl+C or 'q' inside the dashboard.
func (d *Dashboard) SetInterruptHandler(handler func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onInterrupt = handler
}

// Start builds the tview layout and runs the application loop in a
// background goroutine.
func (d *Dashboard) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.app = tview.NewApplication()

	d.headerText = tview.NewTextView().SetDynamicColors(true).SetTextAlign(tview.AlignLeft)
	d.headerText.SetBorder(true).SetTitle(" forge build ").SetTitleAlign(tview.AlignLeft)
	d.headerText.SetText("[yellow]Initializing build...[white]")

	d.progressText = tview.NewTextView().SetDynamicColors(true).SetTextAlign(tview.AlignLeft)
	d.progressText.SetBorder(true).SetTitle(" Progress ").SetTitleAlign(tview.AlignLeft)

	d.eventsText = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetChangedFunc(func() { d.app.Draw() })
	d.eventsText.SetBorder(true).SetTitle(" Events ").SetTitleAlign(tview.AlignLeft)

	d.layout = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(d.headerText, 3, 0, false).
		AddItem(d.progressText, 5, 0, false).
		AddItem(d.eventsText, 0, 1, false)

	d.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		quit := event.Key() == tcell.KeyCtrlC ||
			(event.Key() == tcell.KeyRune && (event.Rune() == 'q' || event.Rune() == 'Q'))
		if !quit {
			return event
		}
		d.app.Stop()
		d.mu.Lock()
		handler := d.onInterrupt
		d.mu.Unlock()
		if handler != nil {
			go handler()
		}
		return nil
	})

	go func() {
		d.app.SetRoot(d.layout, true).EnableMouse(true).Run()
	}()

	time.Sleep(100 * time.Millisecond)
	return nil
}

// Stop shuts down the application loop. Safe to call multiple times.
func (d *Dashboard) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.stopped = true
	if d.app != nil {
		d.app.Stop()
	}
}

// Subscribe registers the dashboard's Handle method on bus.
func (d *Dashboard) Subscribe(bus *driver.MessageBus) {
	bus.Subscribe(d.Handle)
}

// Handle processes one bus message and redraws the affected panes.
func (d *Dashboard) Handle(m driver.Message) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.app == nil || d.stopped {
		return
	}

	switch msg := m.(type) {
	case driver.BuildingTargetProgressMessage:
		if msg.Stage == driver.TargetFinished {
			d.done += len(msg.Targets)
		}
		for _, t := range msg.Targets {
			if msg.Stage == driver.TargetStarted {
				d.logEvent(fmt.Sprintf("[cyan]building[white] %s", t.Name))
			}
		}
	case driver.CompilerMessage:
		if msg.Kind == driver.Error {
			d.failed++
			d.logEvent(fmt.Sprintf("[red]error[white] %s: %s", msg.Source, msg.Text))
		}
	case driver.ProgressMessage:
		d.logEvent(msg.Text)
	}

	d.redraw()
}

func (d *Dashboard) redraw() {
	elapsed := time.Since(d.start).Round(time.Second)
	header := fmt.Sprintf("[yellow]Building:[white] %d/%d targets | [green]Elapsed:[white] %s",
		d.done, d.total, elapsed)
	progress := fmt.Sprintf(
		"[green]Success:[white] %3d\n[red]Failed:[white]  %3d\n[white]Remaining:[white] %3d",
		d.done-d.failed, d.failed, d.total-d.done)

	app := d.app
	app.QueueUpdateDraw(func() {
		d.headerText.SetText(header)
		d.progressText.SetText(progress)
	})
}

// logEvent appends a timestamped line to the events pane. Caller must hold d.mu.
func (d *Dashboard) logEvent(line string) {
	timestamp := time.Now().Format("15:04:05")
	d.eventLines = append(d.eventLines, fmt.Sprintf("[%s] %s", timestamp, line))
	if len(d.eventLines) > d.maxEventLines {
		d.eventLines = d.eventLines[1:]
	}
	text := ""
	for _, l := range d.eventLines {
		text += l + "\n"
	}
	app := d.app
	app.QueueUpdateDraw(func() {
		d.eventsText.SetText(text)
		d.eventsText.ScrollToEnd()
	})
}
