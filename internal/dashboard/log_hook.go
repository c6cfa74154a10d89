package dashboard

import (
	"fmt"

	"github.com/rivo/tview"
	"github.com/sirupsen/logrus"
)

// LogHook mirrors log entries at or above a level into the log pane.
type LogHook struct {
	dashboard *Dashboard
	levels    []logrus.Level
}

// LogHook returns a hook for the logger feeding this dashboard.
func (d *Dashboard) LogHook(minLevel logrus.Level) *LogHook {
	var levels []logrus.Level
	for _, l := range logrus.AllLevels {
		if l <= minLevel {
			levels = append(levels, l)
		}
	}
	return &LogHook{dashboard: d, levels: levels}
}

func (h *LogHook) Levels() []logrus.Level {
	return h.levels
}

func (h *LogHook) Fire(entry *logrus.Entry) error {
	color := "gray"
	switch {
	case entry.Level <= logrus.ErrorLevel:
		color = "red"
	case entry.Level == logrus.WarnLevel:
		color = "yellow"
	}
	h.dashboard.AppendLog(fmt.Sprintf("[gray]%s[white] [%s]%s[white]",
		entry.Time.Format("15:04:05"), color, tview.Escape(entry.Message)))
	return nil
}
