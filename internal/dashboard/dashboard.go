// Package dashboard is the terminal UI of the watch command: the connected
// device, live measurements and a log pane.
package dashboard

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/lowaak/fitness-link/internal/bt"
	"github.com/lowaak/fitness-link/internal/events"
	"github.com/lowaak/fitness-link/internal/session"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"github.com/sirupsen/logrus"
)

const defaultMaxLogLines = 200

// Session is the part of the session manager the dashboard drives.
type Session interface {
	Updates() *events.Feed[session.Update]
	Notices() *events.Feed[session.Notice]
	Disconnect() error
	Connected() (bt.Peripheral, bool)
}

type Dashboard struct {
	logger logrus.FieldLogger
	app    *tview.Application
	sess   Session

	devicePanel  *tview.TextView
	metricsPanel *tview.TextView
	logView      *tview.TextView
	root         *tview.Flex

	mu       sync.Mutex
	running  bool
	logLines []string
	maxLines int
}

func New(app *tview.Application, sess Session, logger logrus.FieldLogger) *Dashboard {
	if app == nil {
		panic("Dashboard: app cannot be nil")
	}
	if sess == nil {
		panic("Dashboard: session cannot be nil")
	}
	if logger == nil {
		panic("Dashboard: logger cannot be nil")
	}
	d := &Dashboard{
		logger:   logger,
		app:      app,
		sess:     sess,
		maxLines: defaultMaxLogLines,
	}
	d.build()
	return d
}

func (d *Dashboard) build() {
	instructions := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	instructions.SetText("[yellow]D[white] Disconnect  |  [yellow]Esc[white]/[yellow]Q[white] Quit")

	d.devicePanel = tview.NewTextView().SetDynamicColors(true)
	d.devicePanel.SetBorder(true).SetTitle(" Device ")

	d.metricsPanel = tview.NewTextView().SetDynamicColors(true)
	d.metricsPanel.SetBorder(true).SetTitle(" Workout ")

	// No SetChangedFunc(app.Draw): redraws are queued explicitly so writes
	// after the app stopped cannot hang.
	d.logView = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(false)
	d.logView.SetBorder(true).SetTitle(" Logs ")

	left := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(instructions, 1, 0, false).
		AddItem(d.devicePanel, 5, 0, false).
		AddItem(d.metricsPanel, 0, 1, true)

	d.root = tview.NewFlex().
		AddItem(left, 0, 1, true).
		AddItem(d.logView, 0, 1, false)

	initial := session.Update{}
	d.devicePanel.SetText(RenderDevice(initial))
	d.metricsPanel.SetText(RenderMetrics(initial))
}

// Run shows the dashboard until the user quits or Stop is called.
func (d *Dashboard) Run() error {
	unregisterUpdates := d.sess.Updates().Listen(d.onUpdate)
	defer unregisterUpdates()
	unregisterNotices := d.sess.Notices().Listen(d.onNotice)
	defer unregisterNotices()

	d.app.SetInputCapture(d.handleKey)

	d.mu.Lock()
	d.running = true
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		d.running = false
		d.mu.Unlock()
	}()

	return d.app.SetRoot(d.root, true).SetFocus(d.metricsPanel).Run()
}

func (d *Dashboard) Stop() {
	d.app.Stop()
}

func (d *Dashboard) handleKey(event *tcell.EventKey) *tcell.EventKey {
	switch {
	case event.Key() == tcell.KeyEscape, event.Rune() == 'q', event.Rune() == 'Q':
		d.app.Stop()
		return nil
	case event.Rune() == 'd', event.Rune() == 'D':
		// off the UI goroutine; Disconnect notifies listeners that queue draws
		go func() {
			if err := d.sess.Disconnect(); err != nil {
				d.logger.WithError(err).Warn("Dashboard: disconnect failed")
			}
		}()
		return nil
	}
	return event
}

func (d *Dashboard) onUpdate(u session.Update) {
	device, metrics := RenderDevice(u), RenderMetrics(u)
	d.queue(func() {
		d.devicePanel.SetText(device)
		d.metricsPanel.SetText(metrics)
	})
}

func (d *Dashboard) onNotice(n session.Notice) {
	d.AppendLog(FormatNotice(n))
}

// AppendLog adds one line to the log pane, dropping the oldest lines past
// the pane capacity.
func (d *Dashboard) AppendLog(line string) {
	d.mu.Lock()
	d.logLines = append(d.logLines, line)
	if len(d.logLines) > d.maxLines {
		d.logLines = d.logLines[len(d.logLines)-d.maxLines:]
	}
	text := strings.Join(d.logLines, "\n")
	d.mu.Unlock()

	d.queue(func() {
		d.logView.SetText(text)
		d.logView.ScrollToEnd()
	})
}

// LogLines returns the lines currently held by the log pane.
func (d *Dashboard) LogLines() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.logLines...)
}

// queue runs fn on the UI goroutine, or directly before the app runs.
func (d *Dashboard) queue(fn func()) {
	d.mu.Lock()
	running := d.running
	d.mu.Unlock()
	if !running {
		fn()
		return
	}
	d.app.QueueUpdateDraw(fn)
}

// RenderDevice renders the device panel text.
func RenderDevice(u session.Update) string {
	if !u.Connected {
		if u.PeripheralID != "" {
			return fmt.Sprintf("\n  [gray]Disconnected from %s[white]", tview.Escape(displayName(u)))
		}
		return "\n  [gray]No device connected[white]"
	}
	return fmt.Sprintf("\n  [green]●[white] %s\n  [gray]%s[white]", tview.Escape(displayName(u)), tview.Escape(u.PeripheralID))
}

// RenderMetrics renders the workout panel text.
func RenderMetrics(u session.Update) string {
	s := u.Snapshot
	if !s.HasData {
		return "\n\n  [gray]Waiting for data...[white]"
	}

	heartRate := "--"
	if s.HeartRate > 0 {
		heartRate = fmt.Sprintf("%d", s.HeartRate)
	}

	var b strings.Builder
	b.WriteString("\n")
	fmt.Fprintf(&b, "  [red]♥[white] Heart Rate:    [yellow]%s[white] bpm\n\n", heartRate)
	fmt.Fprintf(&b, "  [white]⏱[white] Elapsed:       [yellow]%s[white]\n\n", s.Clock())
	fmt.Fprintf(&b, "  [orange]🔥[white] Calories:      [yellow]%.1f[white] kcal\n", s.CaloriesKcal)
	return b.String()
}

// FormatNotice renders a notice as a log pane line.
func FormatNotice(n session.Notice) string {
	color := "white"
	switch n.Level {
	case session.NoticeSuccess:
		color = "green"
	case session.NoticeError:
		color = "red"
	}
	ts := n.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	return fmt.Sprintf("[gray]%s[white] [%s]%s[white]", ts.Format("15:04:05"), color, tview.Escape(n.Message))
}

func displayName(u session.Update) string {
	if u.PeripheralName != "" {
		return u.PeripheralName
	}
	return "Unknown Device"
}
