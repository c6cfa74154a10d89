package session

import (
	"encoding/json"
	"errors"
	"fmt"
)

// DefaultStoreKey is the key the snapshot is mirrored under.
const DefaultStoreKey = "fitness_data"

// persistedRecord is the stored form of a Snapshot. Pointers distinguish a
// missing field from a zero value.
type persistedRecord struct {
	HeartRate      *int     `json:"heartRate"`
	Time           *uint32  `json:"time"`
	Calories       *float64 `json:"calories"`
	IsDataReceived *bool    `json:"isDataReceived"`
}

// EncodeSnapshot renders the stored record for s.
func EncodeSnapshot(s Snapshot) ([]byte, error) {
	return json.Marshal(persistedRecord{
		HeartRate:      &s.HeartRate,
		Time:           &s.ElapsedSeconds,
		Calories:       &s.CaloriesKcal,
		IsDataReceived: &s.HasData,
	})
}

// DecodeSnapshot parses a stored record. All four fields must be present and
// in range; anything else is malformed.
func DecodeSnapshot(raw []byte) (Snapshot, error) {
	var rec persistedRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Snapshot{}, fmt.Errorf("malformed snapshot record: %w", err)
	}
	if rec.HeartRate == nil || rec.Time == nil || rec.Calories == nil || rec.IsDataReceived == nil {
		return Snapshot{}, errors.New("malformed snapshot record: missing field")
	}
	if *rec.HeartRate < 0 || *rec.Calories < 0 {
		return Snapshot{}, fmt.Errorf("malformed snapshot record: negative value (heartRate=%d, calories=%v)", *rec.HeartRate, *rec.Calories)
	}
	return Snapshot{
		HeartRate:      *rec.HeartRate,
		ElapsedSeconds: *rec.Time,
		CaloriesKcal:   *rec.Calories,
		HasData:        *rec.IsDataReceived,
	}, nil
}
