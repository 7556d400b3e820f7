// Package ui is the terminal dashboard for live treadmill readings.
package ui

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/lowaak/smart-trainer/pace-bridge/internal/ftms"
	"github.com/lowaak/smart-trainer/pace-bridge/internal/go_func_utils"
)

// Dashboard shows the latest reading on the left and the log tail on the right
type Dashboard struct {
	logger *log.Logger
	app    *tview.Application
	logs   *LogBuffer

	mainFlex     *tview.Flex
	metricsPanel *tview.TextView
	statusPanel  *tview.TextView
	logView      *tview.TextView

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDashboard builds the widgets. onQuit runs when the user presses Escape or q.
func NewDashboard(logger *log.Logger, app *tview.Application, logs *LogBuffer, onQuit func()) *Dashboard {
	if logger == nil {
		panic("Dashboard: logger cannot be nil")
	}
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dashboard{
		logger: logger,
		app:    app,
		logs:   logs,
		ctx:    ctx,
		cancel: cancel,
	}

	d.metricsPanel = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	d.metricsPanel.SetBorder(true).SetTitle(" Treadmill ")
	d.metricsPanel.SetText(formatReading(nil))

	d.statusPanel = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	d.statusPanel.SetText("[yellow]Esc[white]/[yellow]q[white] Quit")

	// no SetChangedFunc with app.Draw: it hangs when lines arrive after Stop
	d.logView = tview.NewTextView().
		SetDynamicColors(false).
		SetScrollable(false)
	d.logView.SetBorder(true).SetTitle(" Logs ")

	left := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(d.statusPanel, 1, 0, false).
		AddItem(d.metricsPanel, 0, 1, true)

	d.mainFlex = tview.NewFlex().
		AddItem(left, 0, 1, true).
		AddItem(d.logView, 0, 1, false)

	app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() == tcell.KeyEscape || (event.Key() == tcell.KeyRune && event.Rune() == 'q') {
			if onQuit != nil {
				onQuit()
			}
			return nil
		}
		return event
	})
	return d
}

// Watch updates the metrics panel from readings and the log pane from new
// log lines until Shutdown
func (d *Dashboard) Watch(readings <-chan ftms.TreadmillReading) {
	go_func_utils.SafeGo(d.logger, &d.wg, "dashboard readings", func() {
		for {
			select {
			case <-d.ctx.Done():
				return
			case r, ok := <-readings:
				if !ok {
					return
				}
				reading := r
				d.app.QueueUpdateDraw(func() { d.showReading(&reading) })
			}
		}
	})

	if d.logs == nil {
		return
	}
	lines := make(chan string, 1)
	unregister := d.logs.ListenToLines(lines)
	go_func_utils.SafeGo(d.logger, &d.wg, "dashboard logs", func() {
		defer unregister()
		// redraw on resize even when no lines arrive
		ticker := time.NewTicker(250 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-d.ctx.Done():
				return
			case <-lines:
			case <-ticker.C:
			}
			d.app.QueueUpdateDraw(d.refreshLogs)
		}
	})
}

func (d *Dashboard) showReading(r *ftms.TreadmillReading) {
	d.metricsPanel.SetText(formatReading(r))
}

// refreshLogs must run on the UI goroutine
func (d *Dashboard) refreshLogs() {
	_, _, _, height := d.logView.GetInnerRect()
	if height <= 0 {
		return
	}
	d.logView.SetText(strings.Join(d.logs.Tail(height), "\n"))
}

// Run sets the root and blocks until the application stops
func (d *Dashboard) Run() error {
	d.app.SetRoot(d.mainFlex, true)
	return d.app.Run()
}

// Stop stops the application, unblocking Run
func (d *Dashboard) Stop() {
	d.app.Stop()
}

// Shutdown stops the watchers and waits for them
func (d *Dashboard) Shutdown() {
	d.cancel()
	d.wg.Wait()
}

func formatReading(r *ftms.TreadmillReading) string {
	if r == nil {
		return "\n\n  [gray]Waiting for treadmill data...[white]"
	}

	var b strings.Builder
	b.WriteString("\n")
	fmt.Fprintf(&b, "  [green]Speed:[white]     [yellow]%5.1f[white] km/h\n\n", r.SpeedKmh)
	fmt.Fprintf(&b, "  [cyan]Pace:[white]      [yellow]%s[white] min/km\n\n", r.PaceString())
	fmt.Fprintf(&b, "  [blue]Incline:[white]   [yellow]%4.1f[white] %%\n\n", r.InclinePercent)
	if r.DistanceM >= 1000 {
		fmt.Fprintf(&b, "  [purple]Distance:[white]  [yellow]%.2f[white] km\n", r.DistanceM/1000)
	} else {
		fmt.Fprintf(&b, "  [purple]Distance:[white]  [yellow]%.0f[white] m\n", r.DistanceM)
	}
	return b.String()
}
