package core

import "fmt"

// Settings is the immutable snapshot of notification preferences a sync
// pass runs against. The engine never reads ambient state: callers load a
// snapshot and pass it in, so a pass is a pure function of (obligations,
// settings, hub state, now).
type Settings struct {
	NotificationsEnabled bool
	SyncOnStartup        bool
	PlanningWindowDays   int
	DefaultReminderHour  int

	BillsEnabled           bool
	DebtsEnabled           bool
	LendingEnabled         bool
	BudgetsEnabled         bool
	SavingsGoalsEnabled    bool
	RecurringIncomeEnabled bool

	OverdueAlertsUseAlarm  bool
	DueTodayAlertsUseAlarm bool
}

// DefaultSettings returns the out-of-the-box configuration: everything
// enabled, a 30-day planning window, reminders at 09:00, alarm promotion
// off.
func DefaultSettings() Settings {
	return Settings{
		NotificationsEnabled:   true,
		SyncOnStartup:          true,
		PlanningWindowDays:     30,
		DefaultReminderHour:    9,
		BillsEnabled:           true,
		DebtsEnabled:           true,
		LendingEnabled:         true,
		BudgetsEnabled:         true,
		SavingsGoalsEnabled:    true,
		RecurringIncomeEnabled: true,
	}
}

func (s Settings) Validate() error {
	if s.PlanningWindowDays < 7 || s.PlanningWindowDays > 365 {
		return fmt.Errorf("invalid planning window %d days: must be between 7 and 365", s.PlanningWindowDays)
	}
	if s.DefaultReminderHour < 0 || s.DefaultReminderHour > 23 {
		return fmt.Errorf("invalid default reminder hour %d: must be between 0 and 23", s.DefaultReminderHour)
	}
	return nil
}

// SectionEnabled reports whether a section's notifications are on,
// combining the global switch with the per-section flag.
func (s Settings) SectionEnabled(section Section) bool {
	if !s.NotificationsEnabled {
		return false
	}
	switch section {
	case SectionBills:
		return s.BillsEnabled
	case SectionDebts:
		return s.DebtsEnabled
	case SectionLending:
		return s.LendingEnabled
	case SectionBudgets:
		return s.BudgetsEnabled
	case SectionSavings:
		return s.SavingsGoalsEnabled
	case SectionIncome:
		return s.RecurringIncomeEnabled
	}
	return false
}
