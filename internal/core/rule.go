package core

import (
	"errors"
	"time"
)

const (
	Daily   RuleType = "daily"
	Weekly  RuleType = "weekly"
	Monthly RuleType = "monthly"
	Yearly  RuleType = "yearly"
	Custom  RuleType = "custom"
)

const (
	EndNever      EndKind = "never"
	EndAfterCount EndKind = "count"
	EndAfterDate  EndKind = "date"
	EndAfterTotal EndKind = "total"
)

type (
	// RuleType selects the recurrence family a Rule belongs to.
	RuleType string

	// EndKind tags the active variant of an EndCondition.
	EndKind string

	// MonthDay is a month/day pair used by yearly and custom rules.
	MonthDay struct {
		Month int
		Day   int
	}

	// EndCondition bounds a recurrence. Exactly one variant is active,
	// selected by Kind; the other payload fields must stay zero.
	EndCondition struct {
		Kind       EndKind
		Count      int
		Date       Date
		TotalCents int64
	}

	// Rule is an immutable description of a repeating schedule. It is
	// created whole when an obligation's schedule is edited and never
	// mutated in place; evaluation is a pure function of (rule, input).
	Rule struct {
		Type         RuleType
		Interval     int
		DaysOfWeek   []time.Weekday
		DaysOfMonth  []int
		DayOfYear    *MonthDay
		StartDate    Date
		End          EndCondition
		SkipWeekends bool
	}
)

var (
	ErrInvalidDay       = errors.New("invalid day")
	ErrInvalidMonth     = errors.New("invalid month")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidInterval  = errors.New("interval must be at least 1")
	ErrInvalidRuleType  = errors.New("invalid rule type")
	ErrEmptyDaysOfWeek  = errors.New("weekly rule requires at least one weekday")
	ErrInvalidDayOfWeek = errors.New("invalid day of week")
	ErrInvalidEnd       = errors.New("invalid end condition")
)

// NewEndNever returns the open-ended end condition.
func NewEndNever() EndCondition {
	return EndCondition{Kind: EndNever}
}

// NewEndAfterCount bounds the rule to n occurrences counted from the
// start date.
func NewEndAfterCount(n int) EndCondition {
	return EndCondition{Kind: EndAfterCount, Count: n}
}

// NewEndAfterDate bounds the rule to occurrences on or before date.
func NewEndAfterDate(date Date) EndCondition {
	return EndCondition{Kind: EndAfterDate, Date: date}
}

// NewEndAfterTotal caps the cumulative amount the schedule may reach.
// The rule itself cannot evaluate the cap; callers derive the occurrence
// limit through OccurrenceCap with the per-occurrence amount.
func NewEndAfterTotal(totalCents int64) EndCondition {
	return EndCondition{Kind: EndAfterTotal, TotalCents: totalCents}
}

func (e EndCondition) Validate() error {
	switch e.Kind {
	case EndNever, "":
		if e.Count != 0 || !e.Date.IsZero() || e.TotalCents != 0 {
			return ErrInvalidEnd
		}
	case EndAfterCount:
		if e.Count < 1 || !e.Date.IsZero() || e.TotalCents != 0 {
			return ErrInvalidEnd
		}
	case EndAfterDate:
		if e.Date.IsZero() || e.Count != 0 || e.TotalCents != 0 {
			return ErrInvalidEnd
		}
		if err := e.Date.Validate(); err != nil {
			return err
		}
	case EndAfterTotal:
		if e.TotalCents <= 0 || e.Count != 0 || !e.Date.IsZero() {
			return ErrInvalidEnd
		}
	default:
		return ErrInvalidEnd
	}
	return nil
}

// OccurrenceCap translates a total-amount end condition into a maximum
// occurrence count, given the per-occurrence amount in cents. The second
// return is false when the condition does not cap by amount.
func (e EndCondition) OccurrenceCap(amountCents int64) (int, bool) {
	if e.Kind != EndAfterTotal || amountCents <= 0 {
		return 0, false
	}
	return int(e.TotalCents / amountCents), true
}

// Validate rejects malformed rules before they are ever evaluated.
// A rule that passes Validate never produces errors mid-computation.
func (r Rule) Validate() error {
	if err := r.StartDate.Validate(); err != nil {
		return errors.New("invalid start date: " + err.Error())
	}

	if r.Interval < 1 {
		return ErrInvalidInterval
	}

	switch r.Type {
	case Daily, Monthly, Yearly, Custom:
	case Weekly:
		if len(r.DaysOfWeek) == 0 {
			return ErrEmptyDaysOfWeek
		}
	default:
		return ErrInvalidRuleType
	}

	for _, wd := range r.DaysOfWeek {
		if wd < time.Sunday || wd > time.Saturday {
			return ErrInvalidDayOfWeek
		}
	}

	for _, dom := range r.DaysOfMonth {
		if dom < 1 || dom > 31 {
			return ErrInvalidDay
		}
	}

	if dy := r.DayOfYear; dy != nil {
		if dy.Month < 1 || dy.Month > 12 {
			return ErrInvalidMonth
		}
		if dy.Day < 1 || dy.Day > 31 {
			return ErrInvalidDay
		}
	}

	if err := r.End.Validate(); err != nil {
		return err
	}

	return nil
}

// hasWeekday reports whether wd belongs to the rule's weekday set.
func (r Rule) hasWeekday(wd time.Weekday) bool {
	for _, v := range r.DaysOfWeek {
		if v == wd {
			return true
		}
	}
	return false
}
