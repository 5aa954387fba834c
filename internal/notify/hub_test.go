package notify

import (
	"strings"
	"testing"

	"scadenze/internal/core"
)

func TestRecordKey(t *testing.T) {
	base := func() (core.Section, int64, core.Date, core.ReminderOffset) {
		return core.SectionBills, 42, core.NewDate(2026, 9, 15), core.ReminderOffset{DaysBefore: 3, AtHour: 9}
	}

	t.Run("deterministic", func(t *testing.T) {
		s, id, d, off := base()
		if RecordKey(s, id, d, off) != RecordKey(s, id, d, off) {
			t.Error("same inputs produced different keys")
		}
	})

	t.Run("namespaced under module", func(t *testing.T) {
		s, id, d, off := base()
		if key := RecordKey(s, id, d, off); !strings.HasPrefix(key, ModuleID+"-") {
			t.Errorf("key %q missing module prefix", key)
		}
	})

	t.Run("distinguishing inputs change the key", func(t *testing.T) {
		s, id, d, off := base()
		key := RecordKey(s, id, d, off)

		variants := map[string]string{
			"section":     RecordKey(core.SectionDebts, id, d, off),
			"entity":      RecordKey(s, id+1, d, off),
			"occurrence":  RecordKey(s, id, d.AddDays(1), off),
			"days before": RecordKey(s, id, d, core.ReminderOffset{DaysBefore: 2, AtHour: 9}),
			"hour":        RecordKey(s, id, d, core.ReminderOffset{DaysBefore: 3, AtHour: 18}),
		}
		for name, other := range variants {
			if other == key {
				t.Errorf("changing %s did not change the key", name)
			}
		}
	})

	t.Run("channel does not participate in identity", func(t *testing.T) {
		s, id, d, _ := base()
		regular := RecordKey(s, id, d, core.ReminderOffset{DaysBefore: 3, Channel: core.ChannelRegular})
		alarm := RecordKey(s, id, d, core.ReminderOffset{DaysBefore: 3, Channel: core.ChannelAlarm})
		if regular != alarm {
			t.Error("channel changed the key; replacement diffing depends on it staying stable")
		}
	})
}
