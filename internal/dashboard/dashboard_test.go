package dashboard

import (
	"fmt"
	"testing"
	"time"

	"github.com/lowaak/fitness-link/internal/bt"
	"github.com/lowaak/fitness-link/internal/events"
	"github.com/lowaak/fitness-link/internal/session"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	updates     *events.Feed[session.Update]
	notices     *events.Feed[session.Notice]
	disconnects chan struct{}
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		updates:     events.NewFeed[session.Update](true),
		notices:     events.NewFeed[session.Notice](false),
		disconnects: make(chan struct{}, 1),
	}
}

func (s *fakeSession) Updates() *events.Feed[session.Update] { return s.updates }
func (s *fakeSession) Notices() *events.Feed[session.Notice] { return s.notices }
func (s *fakeSession) Connected() (bt.Peripheral, bool) { return nil, false }

func (s *fakeSession) Disconnect() error {
	s.disconnects <- struct{}{}
	return nil
}

func newTestDashboard(t *testing.T) (*Dashboard, *fakeSession) {
	t.Helper()
	logger, _ := test.NewNullLogger()
	sess := newFakeSession()
	return New(tview.NewApplication(), sess, logger), sess
}

func TestRenderMetrics(t *testing.T) {
	assert.Contains(t, RenderMetrics(session.Update{}), "Waiting for data")

	text := RenderMetrics(session.Update{
		Connected: true,
		Snapshot:  session.Snapshot{HeartRate: 72, ElapsedSeconds: 3725, CaloriesKcal: 12.34, HasData: true},
	})
	assert.Contains(t, text, "[yellow]72[white] bpm")
	assert.Contains(t, text, "01:02:05")
	assert.Contains(t, text, "12.3[white] kcal")

	// heart rate unknown while only workout data arrived
	text = RenderMetrics(session.Update{Snapshot: session.Snapshot{ElapsedSeconds: 5, HasData: true}})
	assert.Contains(t, text, "[yellow]--[white] bpm")
}

func TestRenderDevice(t *testing.T) {
	assert.Contains(t, RenderDevice(session.Update{}), "No device connected")
	assert.Contains(t, RenderDevice(session.Update{PeripheralID: "aa", PeripheralName: "Band"}), "Disconnected from Band")

	text := RenderDevice(session.Update{PeripheralID: "aa", Connected: true})
	assert.Contains(t, text, "Unknown Device")
	assert.Contains(t, text, "aa")

	// tview color tags in names are escaped
	text = RenderDevice(session.Update{PeripheralID: "aa", PeripheralName: "[red]x", Connected: true})
	assert.Contains(t, text, "[red[]x")
}

func TestFormatNotice(t *testing.T) {
	ts := time.Date(2024, 5, 1, 14, 3, 9, 0, time.Local)
	assert.Equal(t, "[gray]14:03:09[white] [green]Device found[white]",
		FormatNotice(session.Notice{Level: session.NoticeSuccess, Message: "Device found", Time: ts}))
	assert.Contains(t, FormatNotice(session.Notice{Level: session.NoticeError, Message: "Scan failed", Time: ts}), "[red]Scan failed")
	assert.Contains(t, FormatNotice(session.Notice{Message: "Connecting to device..."}), "[white]Connecting")
}

func TestDashboard_AppendLogTrims(t *testing.T) {
	d, _ := newTestDashboard(t)
	d.maxLines = 3
	for i := 0; i < 5; i++ {
		d.AppendLog(fmt.Sprintf("line %d", i))
	}
	assert.Equal(t, []string{"line 2", "line 3", "line 4"}, d.LogLines())
	assert.Contains(t, d.logView.GetText(true), "line 4")
}

func TestDashboard_UpdateBeforeRun(t *testing.T) {
	d, _ := newTestDashboard(t)
	d.onUpdate(session.Update{
		PeripheralID:   "aa",
		PeripheralName: "Fitness Band",
		Connected:      true,
		Snapshot:       session.Snapshot{HeartRate: 88, HasData: true},
	})
	assert.Contains(t, d.metricsPanel.GetText(true), "88")
	assert.Contains(t, d.devicePanel.GetText(true), "Fitness Band")

	d.onNotice(session.Notice{Level: session.NoticeError, Message: "Failed to parse heart rate data"})
	require.Len(t, d.LogLines(), 1)
	assert.Contains(t, d.LogLines()[0], "Failed to parse heart rate data")
}

func TestDashboard_Keys(t *testing.T) {
	d, sess := newTestDashboard(t)

	assert.Nil(t, d.handleKey(tcell.NewEventKey(tcell.KeyRune, 'd', tcell.ModNone)))
	select {
	case <-sess.disconnects:
	case <-time.After(time.Second):
		t.Fatal("d did not disconnect")
	}

	other := tcell.NewEventKey(tcell.KeyRune, 'x', tcell.ModNone)
	assert.Same(t, other, d.handleKey(other))
}

func TestLogHook(t *testing.T) {
	d, _ := newTestDashboard(t)
	logger, _ := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	logger.AddHook(d.LogHook(logrus.InfoLevel))

	logger.Debug("hidden")
	logger.Info("Session: scanning")
	logger.Warn("Session: persist snapshot")

	lines := d.LogLines()
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "[gray]Session: scanning")
	assert.Contains(t, lines[1], "[yellow]Session: persist snapshot")
}

func TestNew_NilArguments(t *testing.T) {
	logger, _ := test.NewNullLogger()
	assert.Panics(t, func() { New(nil, newFakeSession(), logger) })
	assert.Panics(t, func() { New(tview.NewApplication(), nil, logger) })
	assert.Panics(t, func() { New(tview.NewApplication(), newFakeSession(), nil) })
}
