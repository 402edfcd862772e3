package entities

import (
	"encoding/json"
	"fmt"
	"time"
)

// StoreTime is a timestamp that tolerates the layouts record stores emit:
// RFC3339 with or without fractional seconds, and naive ISO-8601 (read as UTC).
type StoreTime struct {
	time.Time
}

var storeTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
}

// NewStoreTime wraps t, normalised to UTC.
func NewStoreTime(t time.Time) StoreTime {
	return StoreTime{Time: t.UTC()}
}

func (st StoreTime) MarshalJSON() ([]byte, error) {
	if st.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(st.UTC().Format(time.RFC3339Nano))
}

func (st *StoreTime) UnmarshalJSON(b []byte) error {
	var raw *string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if raw == nil || *raw == "" {
		st.Time = time.Time{}
		return nil
	}
	for _, layout := range storeTimeLayouts {
		if t, err := time.Parse(layout, *raw); err == nil {
			st.Time = t.UTC()
			return nil
		}
	}
	return fmt.Errorf("unrecognised timestamp %q", *raw)
}
