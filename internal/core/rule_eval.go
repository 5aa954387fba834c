package core

import "time"

// scanLimit bounds the day-by-day search used by constrained custom
// rules. Two years covers the sparsest expressible constraint (a single
// month/day pair) with room for weekend shifts.
const scanLimit = 2 * 366

// NextAfter returns the earliest occurrence strictly later than after,
// or false when the rule has no further occurrences (end date passed or
// occurrence count exhausted). A total-amount cap is not evaluated here;
// callers translate it into an occurrence count via OccurrenceCap.
//
// The result is a pure function of (rule, after): no clock reads.
func (r Rule) NextAfter(after Date) (Date, bool) {
	if r.End.Kind == EndAfterCount {
		return r.nextAfterCounted(after)
	}

	cursor := after
	if r.SkipWeekends {
		// A raw Saturday or Sunday up to three days back may shift to a
		// Monday that is still later than after.
		cursor = cursor.AddDays(-3)
	}
	if floor := r.StartDate.AddDays(-1); cursor.Before(floor.Time) {
		cursor = floor
	}

	for i := 0; i < scanLimit; i++ {
		raw, ok := r.rawNextAfter(cursor)
		if !ok {
			return Date{}, false
		}
		if r.End.Kind == EndAfterDate && raw.After(r.End.Date.Time) {
			return Date{}, false
		}
		occ := raw
		if r.SkipWeekends {
			occ = shiftWeekend(raw)
		}
		if occ.After(after.Time) {
			return occ, true
		}
		cursor = raw
	}
	return Date{}, false
}

// nextAfterCounted walks the raw occurrence stream from the start date so
// the occurrence index can be checked against the count limit. Counting
// is over raw dates: a weekend occurrence that shifts still consumes one
// slot of the budget.
func (r Rule) nextAfterCounted(after Date) (Date, bool) {
	cursor := r.StartDate.AddDays(-1)
	for seen := 0; seen < r.End.Count; seen++ {
		raw, ok := r.rawNextAfter(cursor)
		if !ok {
			return Date{}, false
		}
		cursor = raw
		occ := raw
		if r.SkipWeekends {
			occ = shiftWeekend(raw)
		}
		if occ.After(after.Time) {
			return occ, true
		}
	}
	return Date{}, false
}

// OccurrencesBetween returns every occurrence in [start, end], in order.
// It is recomputable: repeated calls with the same bounds rebuild the
// same finite sequence from scratch. Raw occurrences that shift onto the
// same business day collapse into one date.
func (r Rule) OccurrencesBetween(start, end Date) []Date {
	var out []Date
	cursor := start.AddDays(-1)
	for {
		d, ok := r.NextAfter(cursor)
		if !ok || d.After(end.Time) {
			return out
		}
		out = append(out, d)
		cursor = d
	}
}

// IsDueOn reports whether the occurrence stream produces date. It is
// defined through NextAfter so the two can never disagree.
func (r Rule) IsDueOn(date Date) bool {
	d, ok := r.NextAfter(date.AddDays(-1))
	return ok && d.Equal(date.Time)
}

// rawNextAfter computes the next occurrence ignoring SkipWeekends and the
// end condition. It returns false only for constrained custom rules whose
// day sets can never match.
func (r Rule) rawNextAfter(after Date) (Date, bool) {
	switch r.Type {
	case Daily:
		return r.nextDaily(after, r.Interval), true
	case Weekly:
		return r.nextWeekly(after)
	case Monthly:
		return r.nextMonthly(after, r.monthlyTargetDay()), true
	case Yearly:
		return r.nextYearly(after), true
	case Custom:
		return r.nextCustom(after)
	}
	return Date{}, false
}

// nextDaily advances to the next multiple of interval days from the start
// date, never before the start date.
func (r Rule) nextDaily(after Date, interval int) Date {
	start := r.StartDate
	if after.Before(start.Time) {
		return start
	}
	steps := after.DaysSince(start)/interval + 1
	return start.AddDays(steps * interval)
}

// nextWeekly finds the next date whose weekday is in the rule's set,
// stepping in whole interval-week blocks anchored at the start date's
// week (weeks begin on Monday).
func (r Rule) nextWeekly(after Date) (Date, bool) {
	start := r.StartDate
	cursor := after
	if floor := start.AddDays(-1); cursor.Before(floor.Time) {
		cursor = floor
	}
	anchor := startOfWeek(start)
	// One interval block plus a week always contains the next hit.
	for i := 1; i <= 7*(r.Interval+1); i++ {
		d := cursor.AddDays(i)
		if d.Before(start.Time) || !r.hasWeekday(d.Weekday()) {
			continue
		}
		weeks := startOfWeek(d).DaysSince(anchor) / 7
		if weeks%r.Interval == 0 {
			return d, true
		}
	}
	return Date{}, false
}

// monthlyTargetDay resolves the day a monthly rule aims for: an explicit
// single day-of-month (the obligation DueDay shortcut) when present,
// otherwise the start date's day.
func (r Rule) monthlyTargetDay() int {
	if len(r.DaysOfMonth) == 1 {
		return r.DaysOfMonth[0]
	}
	return r.StartDate.Day()
}

// nextMonthly advances in interval-month steps from the start month,
// clamping the target day to the last valid day of each month.
func (r Rule) nextMonthly(after Date, targetDay int) Date {
	start := r.StartDate
	m0 := start.Year()*12 + start.Month() - 1
	k := 0
	if mA := after.Year()*12 + after.Month() - 1; mA > m0 {
		k = mA - m0
		k -= k % r.Interval
	}
	for {
		ym := m0 + k
		d := clampedDate(ym/12, time.Month(ym%12+1), targetDay)
		if d.After(after.Time) && !d.Before(start.Time) {
			return d
		}
		k += r.Interval
	}
}

// nextYearly keeps the start date's month and day (or the explicit
// DayOfYear pair), clamping Feb 29 to Feb 28 in non-leap years.
func (r Rule) nextYearly(after Date) Date {
	start := r.StartDate
	tm, td := start.Time.Month(), start.Day()
	if r.DayOfYear != nil {
		tm, td = time.Month(r.DayOfYear.Month), r.DayOfYear.Day
	}
	k := 0
	if y := after.Year(); y > start.Year() {
		k = y - start.Year()
		k -= k % r.Interval
	}
	for {
		d := clampedDate(start.Year()+k, tm, td)
		if d.After(after.Time) && !d.Before(start.Time) {
			return d
		}
		k += r.Interval
	}
}

// nextCustom combines the configured day sets through the is-due test,
// scanning day by day. With no day sets the rule degenerates to an
// every-interval-days schedule.
func (r Rule) nextCustom(after Date) (Date, bool) {
	if len(r.DaysOfWeek) == 0 && len(r.DaysOfMonth) == 0 && r.DayOfYear == nil {
		return r.nextDaily(after, r.Interval), true
	}
	cursor := after
	if floor := r.StartDate.AddDays(-1); cursor.Before(floor.Time) {
		cursor = floor
	}
	for i := 1; i <= scanLimit; i++ {
		d := cursor.AddDays(i)
		if r.customDueOn(d) {
			return d, true
		}
	}
	return Date{}, false
}

// customDueOn is the raw membership test for constrained custom rules:
// every configured day set must match.
func (r Rule) customDueOn(d Date) bool {
	if d.Before(r.StartDate.Time) {
		return false
	}
	if len(r.DaysOfWeek) > 0 && !r.hasWeekday(d.Weekday()) {
		return false
	}
	if len(r.DaysOfMonth) > 0 && !r.matchesDayOfMonth(d) {
		return false
	}
	if dy := r.DayOfYear; dy != nil {
		want := clampedDate(d.Year(), time.Month(dy.Month), dy.Day)
		if !d.Equal(want.Time) {
			return false
		}
	}
	return true
}

// matchesDayOfMonth applies the clamping business rule to the day-of-month
// set: a configured day past the end of a short month matches that month's
// last day instead of skipping the month.
func (r Rule) matchesDayOfMonth(d Date) bool {
	last := daysInMonth(d.Year(), d.Time.Month())
	for _, dom := range r.DaysOfMonth {
		if dom == d.Day() {
			return true
		}
		if dom > last && d.Day() == last {
			return true
		}
	}
	return false
}

// shiftWeekend moves Saturday and Sunday occurrences to the following
// Monday. It never moves a date earlier, and is monotone: later raw dates
// never shift to earlier business days.
func shiftWeekend(d Date) Date {
	switch d.Weekday() {
	case time.Saturday:
		return d.AddDays(2)
	case time.Sunday:
		return d.AddDays(1)
	}
	return d
}

// startOfWeek returns the Monday on or before d.
func startOfWeek(d Date) Date {
	offset := (int(d.Weekday()) + 6) % 7
	return d.AddDays(-offset)
}
