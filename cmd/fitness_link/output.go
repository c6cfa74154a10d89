package main

import (
	"fmt"
	"io"
	"time"

	"github.com/lowaak/fitness-link/internal/bt"
	"github.com/lowaak/fitness-link/internal/session"

	"github.com/fatih/color"
)

var (
	okColor    = color.New(color.FgGreen)
	errColor   = color.New(color.FgRed)
	valueColor = color.New(color.FgYellow)
	dimColor   = color.New(color.FgCyan)
)

func printPeripheral(w io.Writer, p bt.Peripheral) {
	name := p.Name()
	if name == "" {
		name = "Unknown Device"
	}
	okColor.Fprint(w, "Found: ")
	fmt.Fprintf(w, "%s ", name)
	dimColor.Fprintf(w, "(%s)", p.ID())
	if !p.Connectable() {
		errColor.Fprint(w, " [no GATT services]")
	}
	fmt.Fprintln(w)
}

func printSnapshot(w io.Writer, s session.Snapshot) {
	heartRate := "--"
	if s.HeartRate > 0 {
		heartRate = fmt.Sprintf("%d", s.HeartRate)
	}
	fmt.Fprint(w, "Heart rate: ")
	valueColor.Fprintf(w, "%s bpm", heartRate)
	fmt.Fprint(w, "  Time: ")
	valueColor.Fprint(w, s.Clock())
	fmt.Fprint(w, "  Calories: ")
	valueColor.Fprintf(w, "%.1f kcal", s.CaloriesKcal)
	fmt.Fprintln(w)
}

func printNotice(w io.Writer, n session.Notice) {
	ts := n.Time.Format(time.TimeOnly)
	switch n.Level {
	case session.NoticeError:
		errColor.Fprintf(w, "%s %s\n", ts, n.Message)
	case session.NoticeSuccess:
		okColor.Fprintf(w, "%s %s\n", ts, n.Message)
	default:
		fmt.Fprintf(w, "%s %s\n", ts, n.Message)
	}
}

// printGroups renders the attribute tree of a connected peripheral.
func printGroups(w io.Writer, groups []session.GroupInfo) {
	for _, g := range groups {
		fmt.Fprintf(w, "%s\n", bt.DescribeUUID(g.UUID))
		if g.Err != nil {
			errColor.Fprintf(w, "  ! %v\n", g.Err)
			continue
		}
		for _, a := range g.Attributes {
			fmt.Fprintf(w, "  - %s ", bt.DescribeUUID(a.UUID))
			dimColor.Fprintf(w, "[%s]\n", a.Properties)
		}
	}
}
