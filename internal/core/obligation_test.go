package core

import (
	"errors"
	"strings"
	"testing"
)

func validObligation() Obligation {
	return Obligation{
		Name:     "Rent",
		Amount:   Money{Cents: 95000},
		Currency: "EUR",
		Section:  SectionBills,
		Kind:     KindBill,
		Rule:     Rule{Type: Monthly, Interval: 1, StartDate: NewDate(2024, 1, 1), End: NewEndNever()},
		DueDay:   1,
		Active:   true,
	}
}

func TestObligation_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(o *Obligation)
		wantErr error
	}{
		{name: "valid", mutate: func(o *Obligation) {}},
		{
			name:    "empty name",
			mutate:  func(o *Obligation) { o.Name = "   " },
			wantErr: ErrEmptyName,
		},
		{
			name:    "zero amount",
			mutate:  func(o *Obligation) { o.Amount = Money{} },
			wantErr: ErrInvalidAmount,
		},
		{
			name:    "negative amount",
			mutate:  func(o *Obligation) { o.Amount = Money{Cents: -100} },
			wantErr: ErrInvalidAmount,
		},
		{
			name:    "unknown kind",
			mutate:  func(o *Obligation) { o.Kind = "loan" },
			wantErr: ErrInvalidKind,
		},
		{
			name:    "unknown section",
			mutate:  func(o *Obligation) { o.Section = "groceries" },
			wantErr: ErrInvalidSection,
		},
		{
			name:    "due day out of range",
			mutate:  func(o *Obligation) { o.DueDay = 32 },
			wantErr: ErrInvalidDay,
		},
		{
			name:    "invalid rule surfaces",
			mutate:  func(o *Obligation) { o.Rule.Interval = 0 },
			wantErr: ErrInvalidInterval,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := validObligation()
			tt.mutate(&o)
			err := o.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	t.Run("name too long", func(t *testing.T) {
		o := validObligation()
		o.Name = strings.Repeat("x", 201)
		if err := o.Validate(); err == nil {
			t.Error("Validate() error = nil, want name length error")
		}
	})
}

func TestObligation_ScheduleRule(t *testing.T) {
	t.Run("due day folds into monthly rule", func(t *testing.T) {
		o := validObligation()
		o.DueDay = 31
		o.Rule.StartDate = NewDate(2024, 2, 1)

		r := o.ScheduleRule()
		if len(r.DaysOfMonth) != 1 || r.DaysOfMonth[0] != 31 {
			t.Fatalf("ScheduleRule().DaysOfMonth = %v, want [31]", r.DaysOfMonth)
		}

		// The raw day 31 is carried, so February clamps to its own length
		// and March recovers the 31st.
		feb, ok := r.NextAfter(NewDate(2024, 2, 1))
		if !ok || !feb.Equal(NewDate(2024, 2, 29).Time) {
			t.Errorf("february occurrence = %v (ok=%v), want 2024-02-29", feb, ok)
		}
		mar, ok := r.NextAfter(feb)
		if !ok || !mar.Equal(NewDate(2024, 3, 31).Time) {
			t.Errorf("march occurrence = %v (ok=%v), want 2024-03-31", mar, ok)
		}
	})

	t.Run("zero due day leaves rule untouched", func(t *testing.T) {
		o := validObligation()
		o.DueDay = 0
		if r := o.ScheduleRule(); len(r.DaysOfMonth) != 0 {
			t.Errorf("ScheduleRule().DaysOfMonth = %v, want empty", r.DaysOfMonth)
		}
	})

	t.Run("due day ignored for non-monthly rules", func(t *testing.T) {
		o := validObligation()
		o.DueDay = 15
		o.Rule = Rule{Type: Daily, Interval: 1, StartDate: NewDate(2024, 1, 1), End: NewEndNever()}
		if r := o.ScheduleRule(); len(r.DaysOfMonth) != 0 {
			t.Errorf("ScheduleRule().DaysOfMonth = %v, want empty", r.DaysOfMonth)
		}
	})
}
