// Package services contains the scheduling business logic: occurrence
// projection and notification-schedule reconciliation.
package services

import (
	"scadenze/internal/core"
)

// Occurrence is one concrete due date together with the reminder offsets
// that should fire for it.
type Occurrence struct {
	Date      core.Date
	Reminders []core.ReminderOffset
}

// projectionPolicy bounds a rule's occurrence stream to what the
// scheduler should act on for one obligation kind.
type projectionPolicy func(rule core.Rule, ob core.Obligation, today core.Date, windowDays int) []core.Date

// projectionPolicies maps obligation kinds to their policies. Bills,
// subscriptions and debt-like obligations keep a rolling single upcoming
// occurrence; recurring income materializes every occurrence inside the
// planning window.
var projectionPolicies = map[core.Kind]projectionPolicy{
	core.KindBill:         rollingPolicy,
	core.KindSubscription: rollingPolicy,
	core.KindDebt:         rollingPolicy,
	core.KindLending:      rollingPolicy,
	core.KindIncome:       windowPolicy,
}

// ProjectOccurrences turns an obligation plus "today" and the configured
// planning-window length into the bounded, ordered occurrence list the
// sync engine schedules from. Inactive and exhausted obligations project
// to nothing; no date precedes today or exceeds the window.
func ProjectOccurrences(ob core.Obligation, today core.Date, windowDays int) []Occurrence {
	if !ob.Active {
		return nil
	}
	policy, ok := projectionPolicies[ob.Kind]
	if !ok {
		return nil
	}

	rule := ob.ScheduleRule()
	dates := policy(rule, ob, today, windowDays)
	if maxCount, capped := rule.End.OccurrenceCap(ob.Amount.Cents); capped {
		dates = applyOccurrenceCap(rule, dates, maxCount)
	}

	out := make([]Occurrence, 0, len(dates))
	for _, d := range dates {
		out = append(out, Occurrence{Date: d, Reminders: ob.Reminders})
	}
	return out
}

// rollingPolicy maintains exactly one upcoming occurrence: the earliest
// occurrence on or after today. The slot advances once the current
// occurrence date has passed, independent of payment state. Nothing past
// the planning window is materialized.
func rollingPolicy(rule core.Rule, _ core.Obligation, today core.Date, windowDays int) []core.Date {
	next, ok := rule.NextAfter(today.AddDays(-1))
	if !ok || next.After(today.AddDays(windowDays).Time) {
		return nil
	}
	return []core.Date{next}
}

// windowPolicy materializes every occurrence inside
// [today, today+windowDays].
func windowPolicy(rule core.Rule, _ core.Obligation, today core.Date, windowDays int) []core.Date {
	return rule.OccurrencesBetween(today, today.AddDays(windowDays))
}

// applyOccurrenceCap drops projected dates whose occurrence index from
// the rule's start exceeds the total-amount cap. Occurrences already in
// the past count against the budget.
func applyOccurrenceCap(rule core.Rule, dates []core.Date, maxCount int) []core.Date {
	if len(dates) == 0 {
		return dates
	}
	spent := len(rule.OccurrencesBetween(rule.StartDate, dates[0].AddDays(-1)))
	remaining := maxCount - spent
	if remaining <= 0 {
		return nil
	}
	if len(dates) > remaining {
		dates = dates[:remaining]
	}
	return dates
}
