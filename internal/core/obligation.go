package core

import (
	"errors"
	"strings"
)

const (
	KindBill         Kind = "bill"
	KindSubscription Kind = "subscription"
	KindDebt         Kind = "debt"
	KindLending      Kind = "lending"
	KindIncome       Kind = "income"
)

const (
	SectionBills   Section = "bills"
	SectionDebts   Section = "debts"
	SectionLending Section = "lending"
	SectionBudgets Section = "budgets"
	SectionSavings Section = "savings_goals"
	SectionIncome  Section = "recurring_income"
)

const (
	ChannelRegular Channel = "regular"
	ChannelAlarm   Channel = "alarm"
)

type (
	// Kind identifies what sort of recurring obligation a record is; the
	// projector selects its projection policy by Kind.
	Kind string

	// Section is the notification-settings bucket an obligation belongs
	// to. Each section has its own enable flag.
	Section string

	// Channel is the delivery channel of a scheduled notification.
	Channel string

	Money struct {
		Cents int64
	}

	// ReminderOffset positions one reminder relative to an occurrence:
	// DaysBefore days earlier, firing at AtHour local hour (0 means the
	// configured default hour). Channel is a preference, not the final
	// routing; overdue/due-today promotion happens during sync.
	ReminderOffset struct {
		DaysBefore int
		AtHour     int
		Channel    Channel
	}

	// Obligation is the scheduling core's read-only view of a bill,
	// subscription, debt, lending record or recurring income source.
	// The owning feature manages the record; the core only projects
	// occurrences from it.
	Obligation struct {
		ID                int64
		Name              string
		Amount            Money
		Currency          string
		CategoryID        int64
		AccountID         *int64
		Section           Section
		Kind              Kind
		Rule              Rule
		DueDay            int // monthly shortcut; 0 when unset
		NextDueDate       Date
		LastGeneratedDate Date
		Reminders         []ReminderOffset
		Active            bool
	}
)

var (
	ErrEmptyName      = errors.New("empty obligation name")
	ErrInvalidKind    = errors.New("invalid obligation kind")
	ErrInvalidSection = errors.New("invalid section")
)

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (k Kind) Validate() error {
	switch k {
	case KindBill, KindSubscription, KindDebt, KindLending, KindIncome:
		return nil
	}
	return ErrInvalidKind
}

func (s Section) Validate() error {
	switch s {
	case SectionBills, SectionDebts, SectionLending, SectionBudgets, SectionSavings, SectionIncome:
		return nil
	}
	return ErrInvalidSection
}

func (o Obligation) Validate() error {
	if len(strings.TrimSpace(o.Name)) == 0 {
		return ErrEmptyName
	}
	if len(o.Name) > 200 {
		return errors.New("obligation name too long (max 200 characters)")
	}
	if err := o.Amount.Validate(); err != nil {
		return err
	}
	if err := o.Kind.Validate(); err != nil {
		return err
	}
	if err := o.Section.Validate(); err != nil {
		return err
	}
	if o.DueDay < 0 || o.DueDay > 31 {
		return ErrInvalidDay
	}
	return o.Rule.Validate()
}

// ScheduleRule returns the rule occurrence math should evaluate: the
// stored rule, with the monthly DueDay shortcut folded in as the target
// day. The raw DueDay is carried, not a clamped copy, so a due day of 31
// still clamps per month rather than freezing at the start month's
// length.
func (o Obligation) ScheduleRule() Rule {
	r := o.Rule
	if o.DueDay >= 1 && r.Type == Monthly {
		r.DaysOfMonth = []int{o.DueDay}
	}
	return r
}
