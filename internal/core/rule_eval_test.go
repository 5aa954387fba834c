package core

import (
	"testing"
	"time"
)

func TestNextAfter_Daily(t *testing.T) {
	tests := []struct {
		name     string
		rule     Rule
		after    Date
		want     Date
		wantNone bool
	}{
		{
			name:  "every day",
			rule:  Rule{Type: Daily, Interval: 1, StartDate: NewDate(2024, 1, 1), End: NewEndNever()},
			after: NewDate(2024, 1, 1),
			want:  NewDate(2024, 1, 2),
		},
		{
			name:  "every third day aligns to start",
			rule:  Rule{Type: Daily, Interval: 3, StartDate: NewDate(2024, 1, 1), End: NewEndNever()},
			after: NewDate(2024, 1, 2),
			want:  NewDate(2024, 1, 4),
		},
		{
			name:  "before start returns start",
			rule:  Rule{Type: Daily, Interval: 1, StartDate: NewDate(2024, 6, 15), End: NewEndNever()},
			after: NewDate(2024, 1, 1),
			want:  NewDate(2024, 6, 15),
		},
		{
			name:     "exhausted after count",
			rule:     Rule{Type: Daily, Interval: 1, StartDate: NewDate(2024, 1, 1), End: NewEndAfterCount(3)},
			after:    NewDate(2024, 1, 3),
			wantNone: true,
		},
		{
			name:  "last counted occurrence still reachable",
			rule:  Rule{Type: Daily, Interval: 1, StartDate: NewDate(2024, 1, 1), End: NewEndAfterCount(3)},
			after: NewDate(2024, 1, 2),
			want:  NewDate(2024, 1, 3),
		},
		{
			name:     "past end date",
			rule:     Rule{Type: Daily, Interval: 1, StartDate: NewDate(2024, 1, 1), End: NewEndAfterDate(NewDate(2024, 1, 10))},
			after:    NewDate(2024, 1, 10),
			wantNone: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.rule.NextAfter(tt.after)
			if tt.wantNone {
				if ok {
					t.Errorf("NextAfter(%v) = %v, want no occurrence", tt.after, got)
				}
				return
			}
			if !ok {
				t.Fatalf("NextAfter(%v) returned no occurrence, want %v", tt.after, tt.want)
			}
			if !got.Equal(tt.want.Time) {
				t.Errorf("NextAfter(%v) = %v, want %v", tt.after, got, tt.want)
			}
		})
	}
}

func TestNextAfter_MonthlyClamping(t *testing.T) {
	tests := []struct {
		name  string
		rule  Rule
		after Date
		want  Date
	}{
		{
			name:  "day 31 clamps to Feb 29 in leap year",
			rule:  Rule{Type: Monthly, Interval: 1, StartDate: NewDate(2024, 1, 31), End: NewEndNever()},
			after: NewDate(2024, 1, 31),
			want:  NewDate(2024, 2, 29),
		},
		{
			name:  "day 31 clamps to Feb 28 in non-leap year",
			rule:  Rule{Type: Monthly, Interval: 1, StartDate: NewDate(2023, 1, 31), End: NewEndNever()},
			after: NewDate(2023, 1, 31),
			want:  NewDate(2023, 2, 28),
		},
		{
			name:  "clamp recovers in longer month",
			rule:  Rule{Type: Monthly, Interval: 1, StartDate: NewDate(2024, 1, 31), End: NewEndNever()},
			after: NewDate(2024, 2, 29),
			want:  NewDate(2024, 3, 31),
		},
		{
			name:  "day 31 clamps to April 30",
			rule:  Rule{Type: Monthly, Interval: 1, StartDate: NewDate(2024, 1, 31), End: NewEndNever()},
			after: NewDate(2024, 3, 31),
			want:  NewDate(2024, 4, 30),
		},
		{
			name:  "explicit day of month overrides start day",
			rule:  Rule{Type: Monthly, Interval: 1, DaysOfMonth: []int{15}, StartDate: NewDate(2024, 1, 1), End: NewEndNever()},
			after: NewDate(2024, 1, 1),
			want:  NewDate(2024, 1, 15),
		},
		{
			name:  "quarterly steps in whole intervals",
			rule:  Rule{Type: Monthly, Interval: 3, StartDate: NewDate(2024, 1, 10), End: NewEndNever()},
			after: NewDate(2024, 2, 1),
			want:  NewDate(2024, 4, 10),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.rule.NextAfter(tt.after)
			if !ok {
				t.Fatalf("NextAfter(%v) returned no occurrence, want %v", tt.after, tt.want)
			}
			if !got.Equal(tt.want.Time) {
				t.Errorf("NextAfter(%v) = %v, want %v", tt.after, got, tt.want)
			}
		})
	}
}

func TestNextAfter_Weekly(t *testing.T) {
	// 2024-01-01 is a Monday.
	mondays := Rule{
		Type:       Weekly,
		Interval:   1,
		DaysOfWeek: []time.Weekday{time.Monday},
		StartDate:  NewDate(2024, 1, 1),
		End:        NewEndNever(),
	}

	t.Run("all mondays of january", func(t *testing.T) {
		got := mondays.OccurrencesBetween(NewDate(2024, 1, 1), NewDate(2024, 1, 31))
		want := []Date{
			NewDate(2024, 1, 1), NewDate(2024, 1, 8), NewDate(2024, 1, 15),
			NewDate(2024, 1, 22), NewDate(2024, 1, 29),
		}
		assertDates(t, got, want)
	})

	t.Run("biweekly skips alternate weeks", func(t *testing.T) {
		biweekly := mondays
		biweekly.Interval = 2
		got, ok := biweekly.NextAfter(NewDate(2024, 1, 1))
		if !ok || !got.Equal(NewDate(2024, 1, 15).Time) {
			t.Errorf("NextAfter = %v (ok=%v), want 2024-01-15", got, ok)
		}
	})

	t.Run("multiple weekdays", func(t *testing.T) {
		monWed := mondays
		monWed.DaysOfWeek = []time.Weekday{time.Monday, time.Wednesday}
		got := monWed.OccurrencesBetween(NewDate(2024, 1, 1), NewDate(2024, 1, 10))
		want := []Date{
			NewDate(2024, 1, 1), NewDate(2024, 1, 3), NewDate(2024, 1, 8), NewDate(2024, 1, 10),
		}
		assertDates(t, got, want)
	})
}

func TestNextAfter_Yearly(t *testing.T) {
	tests := []struct {
		name  string
		rule  Rule
		after Date
		want  Date
	}{
		{
			name:  "anniversary of start date",
			rule:  Rule{Type: Yearly, Interval: 1, StartDate: NewDate(2023, 6, 15), End: NewEndNever()},
			after: NewDate(2023, 6, 15),
			want:  NewDate(2024, 6, 15),
		},
		{
			name:  "feb 29 clamps to feb 28 off leap years",
			rule:  Rule{Type: Yearly, Interval: 1, StartDate: NewDate(2024, 2, 29), End: NewEndNever()},
			after: NewDate(2024, 2, 29),
			want:  NewDate(2025, 2, 28),
		},
		{
			name:  "feb 29 recovers on next leap year",
			rule:  Rule{Type: Yearly, Interval: 1, StartDate: NewDate(2024, 2, 29), End: NewEndNever()},
			after: NewDate(2027, 3, 1),
			want:  NewDate(2028, 2, 29),
		},
		{
			name: "explicit month day pair",
			rule: Rule{
				Type: Yearly, Interval: 1, StartDate: NewDate(2024, 1, 1),
				DayOfYear: &MonthDay{Month: 12, Day: 25}, End: NewEndNever(),
			},
			after: NewDate(2024, 1, 1),
			want:  NewDate(2024, 12, 25),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.rule.NextAfter(tt.after)
			if !ok {
				t.Fatalf("NextAfter(%v) returned no occurrence, want %v", tt.after, tt.want)
			}
			if !got.Equal(tt.want.Time) {
				t.Errorf("NextAfter(%v) = %v, want %v", tt.after, got, tt.want)
			}
		})
	}
}

func TestNextAfter_Custom(t *testing.T) {
	t.Run("day of month set", func(t *testing.T) {
		rule := Rule{
			Type: Custom, Interval: 1, DaysOfMonth: []int{1, 15},
			StartDate: NewDate(2024, 1, 1), End: NewEndNever(),
		}
		got := rule.OccurrencesBetween(NewDate(2024, 1, 1), NewDate(2024, 2, 29))
		want := []Date{
			NewDate(2024, 1, 1), NewDate(2024, 1, 15),
			NewDate(2024, 2, 1), NewDate(2024, 2, 15),
		}
		assertDates(t, got, want)
	})

	t.Run("day of month clamps in short months", func(t *testing.T) {
		rule := Rule{
			Type: Custom, Interval: 1, DaysOfMonth: []int{30},
			StartDate: NewDate(2024, 1, 1), End: NewEndNever(),
		}
		got, ok := rule.NextAfter(NewDate(2024, 2, 1))
		if !ok || !got.Equal(NewDate(2024, 2, 29).Time) {
			t.Errorf("NextAfter = %v (ok=%v), want 2024-02-29", got, ok)
		}
	})

	t.Run("weekday and day of month combine", func(t *testing.T) {
		// First Monday-the-1st after Jan 2024 is April (2024-04-01).
		rule := Rule{
			Type: Custom, Interval: 1,
			DaysOfWeek:  []time.Weekday{time.Monday},
			DaysOfMonth: []int{1},
			StartDate:   NewDate(2024, 1, 2), End: NewEndNever(),
		}
		got, ok := rule.NextAfter(NewDate(2024, 1, 2))
		if !ok || !got.Equal(NewDate(2024, 4, 1).Time) {
			t.Errorf("NextAfter = %v (ok=%v), want 2024-04-01", got, ok)
		}
	})

	t.Run("unconstrained behaves as interval days", func(t *testing.T) {
		rule := Rule{Type: Custom, Interval: 10, StartDate: NewDate(2024, 1, 1), End: NewEndNever()}
		got, ok := rule.NextAfter(NewDate(2024, 1, 1))
		if !ok || !got.Equal(NewDate(2024, 1, 11).Time) {
			t.Errorf("NextAfter = %v (ok=%v), want 2024-01-11", got, ok)
		}
	})

	t.Run("day of year pair clamps", func(t *testing.T) {
		rule := Rule{
			Type: Custom, Interval: 1, DayOfYear: &MonthDay{Month: 2, Day: 30},
			StartDate: NewDate(2023, 1, 1), End: NewEndNever(),
		}
		got, ok := rule.NextAfter(NewDate(2023, 1, 1))
		if !ok || !got.Equal(NewDate(2023, 2, 28).Time) {
			t.Errorf("NextAfter = %v (ok=%v), want 2023-02-28", got, ok)
		}
	})
}

func TestNextAfter_SkipWeekends(t *testing.T) {
	t.Run("saturday shifts to monday", func(t *testing.T) {
		// 2025-03-15 is a Saturday.
		rule := Rule{
			Type: Monthly, Interval: 1, StartDate: NewDate(2025, 1, 15),
			End: NewEndNever(), SkipWeekends: true,
		}
		got, ok := rule.NextAfter(NewDate(2025, 3, 1))
		if !ok || !got.Equal(NewDate(2025, 3, 17).Time) {
			t.Errorf("NextAfter = %v (ok=%v), want 2025-03-17", got, ok)
		}
	})

	t.Run("sunday shifts to monday", func(t *testing.T) {
		// 2024-09-15 is a Sunday.
		rule := Rule{
			Type: Monthly, Interval: 1, StartDate: NewDate(2024, 8, 15),
			End: NewEndNever(), SkipWeekends: true,
		}
		got, ok := rule.NextAfter(NewDate(2024, 9, 1))
		if !ok || !got.Equal(NewDate(2024, 9, 16).Time) {
			t.Errorf("NextAfter = %v (ok=%v), want 2024-09-16", got, ok)
		}
	})

	t.Run("shift collisions collapse to one date", func(t *testing.T) {
		// Fri 2024-01-05 through Mon 2024-01-08: Saturday and Sunday both
		// shift onto the Monday.
		rule := Rule{
			Type: Daily, Interval: 1, StartDate: NewDate(2024, 1, 5),
			End: NewEndNever(), SkipWeekends: true,
		}
		got := rule.OccurrencesBetween(NewDate(2024, 1, 5), NewDate(2024, 1, 8))
		want := []Date{NewDate(2024, 1, 5), NewDate(2024, 1, 8)}
		assertDates(t, got, want)
	})

	t.Run("shifted occurrence consumes one counted slot", func(t *testing.T) {
		// Start Sat 2024-01-06, one occurrence: it shifts to Monday and
		// exhausts the rule.
		rule := Rule{
			Type: Daily, Interval: 7, StartDate: NewDate(2024, 1, 6),
			End: NewEndAfterCount(1), SkipWeekends: true,
		}
		got, ok := rule.NextAfter(NewDate(2024, 1, 5))
		if !ok || !got.Equal(NewDate(2024, 1, 8).Time) {
			t.Fatalf("NextAfter = %v (ok=%v), want 2024-01-08", got, ok)
		}
		if _, ok := rule.NextAfter(NewDate(2024, 1, 8)); ok {
			t.Error("rule should be exhausted after its single occurrence")
		}
	})

	t.Run("end date applies to raw occurrence not shifted one", func(t *testing.T) {
		// Raw Sat 2024-01-06 is within the end date; its shifted Monday is
		// past it but still fires.
		rule := Rule{
			Type: Daily, Interval: 1, StartDate: NewDate(2024, 1, 5),
			End: NewEndAfterDate(NewDate(2024, 1, 6)), SkipWeekends: true,
		}
		got, ok := rule.NextAfter(NewDate(2024, 1, 5))
		if !ok || !got.Equal(NewDate(2024, 1, 8).Time) {
			t.Errorf("NextAfter = %v (ok=%v), want 2024-01-08", got, ok)
		}
	})
}

func TestIsDueOn(t *testing.T) {
	rule := Rule{Type: Monthly, Interval: 1, StartDate: NewDate(2024, 1, 31), End: NewEndNever()}

	tests := []struct {
		date Date
		want bool
	}{
		{NewDate(2024, 1, 31), true},
		{NewDate(2024, 2, 29), true},
		{NewDate(2024, 2, 28), false},
		{NewDate(2024, 3, 31), true},
		{NewDate(2024, 3, 30), false},
		{NewDate(2023, 12, 31), false}, // before start
	}

	for _, tt := range tests {
		t.Run(tt.date.String(), func(t *testing.T) {
			if got := rule.IsDueOn(tt.date); got != tt.want {
				t.Errorf("IsDueOn(%v) = %v, want %v", tt.date, got, tt.want)
			}
		})
	}
}

// Walking any rule forward from its start must yield strictly increasing
// dates, each of which the rule itself acknowledges as due.
func TestNextAfter_StreamConsistency(t *testing.T) {
	rules := map[string]Rule{
		"daily":           {Type: Daily, Interval: 2, StartDate: NewDate(2024, 1, 3), End: NewEndNever()},
		"weekly":          {Type: Weekly, Interval: 2, DaysOfWeek: []time.Weekday{time.Tuesday, time.Friday}, StartDate: NewDate(2024, 1, 1), End: NewEndNever()},
		"monthly clamped": {Type: Monthly, Interval: 1, StartDate: NewDate(2024, 1, 31), End: NewEndNever()},
		"yearly leap":     {Type: Yearly, Interval: 1, StartDate: NewDate(2024, 2, 29), End: NewEndNever()},
		"skip weekends":   {Type: Daily, Interval: 3, StartDate: NewDate(2024, 1, 1), End: NewEndNever(), SkipWeekends: true},
		"custom":          {Type: Custom, Interval: 1, DaysOfMonth: []int{10, 20, 31}, StartDate: NewDate(2024, 1, 1), End: NewEndNever()},
	}

	for name, rule := range rules {
		t.Run(name, func(t *testing.T) {
			cursor := rule.StartDate.AddDays(-1)
			for i := 0; i < 20; i++ {
				next, ok := rule.NextAfter(cursor)
				if !ok {
					t.Fatalf("stream ended unexpectedly after %d occurrences", i)
				}
				if !next.After(cursor.Time) {
					t.Fatalf("occurrence %v not strictly after cursor %v", next, cursor)
				}
				if !rule.IsDueOn(next) {
					t.Fatalf("IsDueOn(%v) = false for a produced occurrence", next)
				}
				if rule.SkipWeekends && next.IsWeekend() {
					t.Fatalf("occurrence %v falls on a weekend despite SkipWeekends", next)
				}
				cursor = next
			}
		})
	}
}

func TestOccurrencesBetween(t *testing.T) {
	t.Run("bounded and ordered", func(t *testing.T) {
		rule := Rule{Type: Daily, Interval: 5, StartDate: NewDate(2024, 1, 1), End: NewEndNever()}
		got := rule.OccurrencesBetween(NewDate(2024, 1, 3), NewDate(2024, 1, 20))
		want := []Date{NewDate(2024, 1, 6), NewDate(2024, 1, 11), NewDate(2024, 1, 16)}
		assertDates(t, got, want)
	})

	t.Run("count end bounds the window", func(t *testing.T) {
		rule := Rule{Type: Daily, Interval: 1, StartDate: NewDate(2024, 1, 1), End: NewEndAfterCount(3)}
		got := rule.OccurrencesBetween(NewDate(2024, 1, 1), NewDate(2024, 12, 31))
		want := []Date{NewDate(2024, 1, 1), NewDate(2024, 1, 2), NewDate(2024, 1, 3)}
		assertDates(t, got, want)
	})

	t.Run("recomputable", func(t *testing.T) {
		rule := Rule{Type: Weekly, Interval: 1, DaysOfWeek: []time.Weekday{time.Friday}, StartDate: NewDate(2024, 1, 1), End: NewEndNever()}
		first := rule.OccurrencesBetween(NewDate(2024, 1, 1), NewDate(2024, 3, 31))
		second := rule.OccurrencesBetween(NewDate(2024, 1, 1), NewDate(2024, 3, 31))
		assertDates(t, second, first)
	})

	t.Run("empty range", func(t *testing.T) {
		rule := Rule{Type: Monthly, Interval: 1, StartDate: NewDate(2024, 1, 15), End: NewEndNever()}
		got := rule.OccurrencesBetween(NewDate(2024, 1, 16), NewDate(2024, 2, 14))
		if len(got) != 0 {
			t.Errorf("OccurrencesBetween = %v, want empty", got)
		}
	})
}

func assertDates(t *testing.T, got, want []Date) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d occurrences %v, want %d %v", len(got), got, len(want), want)
	}
	for i := range want {
		if !got[i].Equal(want[i].Time) {
			t.Errorf("occurrence[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}
