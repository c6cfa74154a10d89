package session

import (
	"github.com/lowaak/fitness-link/internal/bt"
	"github.com/lowaak/fitness-link/internal/codec"
)

// watcher binds one subscribed attribute to the snapshot fields it updates.
type watcher struct {
	id            string // metrics label
	name          string // user facing
	groupUUID     string
	attributeUUID string
	decode        func(buf []byte) (func(*Snapshot), error)
}

func (m *Manager) watchersFor(groupUUID string) []watcher {
	group := canonicalUUID(groupUUID)
	var out []watcher
	for _, w := range m.watchers() {
		if w.groupUUID == group {
			out = append(out, w)
		}
	}
	return out
}

func (m *Manager) watchers() []watcher {
	layout := m.opts.Layout
	return []watcher{
		{
			id:            "heart_rate",
			name:          "heart rate",
			groupUUID:     bt.ServiceUUIDHeartRate,
			attributeUUID: bt.CharUUIDHeartRateMeasurement,
			decode: func(buf []byte) (func(*Snapshot), error) {
				bpm, err := codec.DecodeHeartRate(buf)
				if err != nil {
					return nil, err
				}
				return func(s *Snapshot) { s.HeartRate = bpm }, nil
			},
		},
		{
			id:            "workout",
			name:          "workout",
			groupUUID:     bt.ServiceUUIDFitnessMachine,
			attributeUUID: bt.CharUUIDWorkoutData,
			decode: func(buf []byte) (func(*Snapshot), error) {
				w, err := layout.Decode(buf)
				if err != nil {
					return nil, err
				}
				return func(s *Snapshot) {
					s.ElapsedSeconds = w.ElapsedSeconds
					s.CaloriesKcal = w.CaloriesKcal
				}, nil
			},
		},
	}
}

func findAttribute(attrs []bt.Attribute, uuid string) bt.Attribute {
	want := canonicalUUID(uuid)
	for _, a := range attrs {
		if canonicalUUID(a.UUID()) == want {
			return a
		}
	}
	return nil
}

// canonicalUUID normalizes u, falling back to the input for values that are
// not UUIDs at all.
func canonicalUUID(u string) string {
	if n, err := bt.NormalizeUUID(u); err == nil {
		return n
	}
	return u
}
