package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"scadenze/internal/core"
	"scadenze/internal/notify"
)

// ObligationSource lists the active obligations of one section. The
// storage repositories implement it; the engine never writes through it.
type ObligationSource interface {
	ListActive(ctx context.Context) ([]core.Obligation, error)
}

// SyncResult reports exactly what one reconciliation pass changed.
type SyncResult struct {
	Scheduled          int
	Cancelled          int
	Failed             int
	ScheduledBySection map[core.Section]int
}

// SyncEngineConfig holds tuning for the reconciliation engine.
type SyncEngineConfig struct {
	// Workers bounds the create/cancel worker pool (default: 4).
	Workers int
}

// DefaultSyncEngineConfig returns sensible defaults.
func DefaultSyncEngineConfig() SyncEngineConfig {
	return SyncEngineConfig{Workers: 4}
}

// SyncEngine diffs the notification set the active obligations require
// against what the hub currently has scheduled, and issues the create
// and cancel calls that reconcile them.
//
// The engine holds no state between passes beyond the mutex that
// serializes overlapping whole-module syncs, so it is safe to re-invoke
// at any time.
type SyncEngine struct {
	hub     notify.Hub
	sources map[core.Section]ObligationSource
	config  SyncEngineConfig

	// Serializes reconciliation passes: two concurrent diffs must never
	// both decide to create the same notification or race a create
	// against a cancel.
	mu sync.Mutex
}

// NewSyncEngine creates a reconciliation engine over the given hub.
// Sections without a registered source simply contribute nothing.
func NewSyncEngine(hub notify.Hub, sources map[core.Section]ObligationSource, config SyncEngineConfig) *SyncEngine {
	if config.Workers < 1 {
		config.Workers = DefaultSyncEngineConfig().Workers
	}
	return &SyncEngine{
		hub:     hub,
		sources: sources,
		config:  config,
	}
}

// SyncSchedules makes the hub's scheduled set equal to the set required
// by all active obligations in enabled sections. Per-item hub failures
// are counted and retried on the next pass; only an unreachable hub
// fails the call as a whole.
func (e *SyncEngine) SyncSchedules(ctx context.Context, settings core.Settings, now time.Time) (SyncResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	required, err := e.requiredSet(ctx, settings, now)
	if err != nil {
		return SyncResult{}, err
	}

	current, err := e.hub.ListScheduled(ctx, notify.ModuleID)
	if err != nil {
		return SyncResult{}, fmt.Errorf("list scheduled notifications: %w", err)
	}

	toSchedule, toCancel := diffSets(required, current)
	result := e.apply(ctx, toSchedule, toCancel)

	slog.InfoContext(ctx, "Notification sync complete",
		"required", len(required),
		"previously_scheduled", len(current),
		"scheduled", result.Scheduled,
		"cancelled", result.Cancelled,
		"failed", result.Failed)

	return result, nil
}

// SyncBill reconciles the notifications of a single obligation right
// after it is created or edited, leaving every other entity untouched.
func (e *SyncEngine) SyncBill(ctx context.Context, settings core.Settings, ob core.Obligation, now time.Time) (SyncResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	required := make(map[string]notify.Record)
	if settings.SectionEnabled(ob.Section) {
		e.expandObligation(required, ob, settings, now)
	}

	current, err := e.hub.ListScheduled(ctx, notify.ModuleID)
	if err != nil {
		return SyncResult{}, fmt.Errorf("list scheduled notifications: %w", err)
	}
	scoped := make([]notify.Record, 0)
	for _, rec := range current {
		if rec.EntityID == ob.ID && rec.Section == ob.Section {
			scoped = append(scoped, rec)
		}
	}

	toSchedule, toCancel := diffSets(required, scoped)
	return e.apply(ctx, toSchedule, toCancel), nil
}

// ClearScheduledNotifications cancels every notification of the module
// unconditionally and returns the number cleared. Used when the user
// disables finance notifications globally.
func (e *SyncEngine) ClearScheduledNotifications(ctx context.Context) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	current, err := e.hub.ListScheduled(ctx, notify.ModuleID)
	if err != nil {
		return 0, fmt.Errorf("list scheduled notifications: %w", err)
	}

	result := e.apply(ctx, nil, current)
	slog.InfoContext(ctx, "Cleared scheduled notifications",
		"cleared", result.Cancelled, "failed", result.Failed)
	return result.Cancelled, nil
}

// CancelBillNotifications cancels the notifications of one bill-section
// entity, used on deletion.
func (e *SyncEngine) CancelBillNotifications(ctx context.Context, id int64) error {
	return e.CancelEntityNotifications(ctx, core.SectionBills, id)
}

// CancelDebtNotifications cancels the notifications of one debt-section
// entity, used on deletion.
func (e *SyncEngine) CancelDebtNotifications(ctx context.Context, id int64) error {
	return e.CancelEntityNotifications(ctx, core.SectionDebts, id)
}

// CancelEntityNotifications cancels every notification scheduled for one
// entity in the given section.
func (e *SyncEngine) CancelEntityNotifications(ctx context.Context, section core.Section, id int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	current, err := e.hub.ListScheduled(ctx, notify.ModuleID)
	if err != nil {
		return fmt.Errorf("list scheduled notifications: %w", err)
	}

	var toCancel []notify.Record
	for _, rec := range current {
		if rec.EntityID == id && rec.Section == section {
			toCancel = append(toCancel, rec)
		}
	}

	result := e.apply(ctx, nil, toCancel)
	if result.Failed > 0 {
		return fmt.Errorf("cancel notifications for entity %d: %d of %d cancels failed",
			id, result.Failed, len(toCancel))
	}
	return nil
}

// requiredSet derives the full notification set the enabled sections
// currently require, keyed by stable record key.
func (e *SyncEngine) requiredSet(ctx context.Context, settings core.Settings, now time.Time) (map[string]notify.Record, error) {
	required := make(map[string]notify.Record)

	// Iterate sections in a fixed order so log output and error
	// attribution stay deterministic.
	sections := make([]core.Section, 0, len(e.sources))
	for section := range e.sources {
		sections = append(sections, section)
	}
	sort.Slice(sections, func(i, j int) bool { return sections[i] < sections[j] })

	for _, section := range sections {
		if !settings.SectionEnabled(section) {
			continue
		}
		obligations, err := e.sources[section].ListActive(ctx)
		if err != nil {
			return nil, fmt.Errorf("list active obligations (section=%s): %w", section, err)
		}
		for _, ob := range obligations {
			e.expandObligation(required, ob, settings, now)
		}
	}

	return required, nil
}

// expandObligation projects an obligation's occurrences and expands each
// one with its reminder offsets into concrete notification records.
func (e *SyncEngine) expandObligation(required map[string]notify.Record, ob core.Obligation, settings core.Settings, now time.Time) {
	today := core.DateOf(now)
	for _, occ := range ProjectOccurrences(ob, today, settings.PlanningWindowDays) {
		offsets := occ.Reminders
		if len(offsets) == 0 {
			// Every obligation gets at least the on-the-day reminder.
			offsets = []core.ReminderOffset{{DaysBefore: 0}}
		}
		for _, offset := range offsets {
			rec := buildRecord(ob, occ.Date, offset, settings, now)
			required[rec.Key] = rec
		}
	}
}

// buildRecord materializes one required notification, resolving its fire
// instant and delivery channel.
func buildRecord(ob core.Obligation, occurrence core.Date, offset core.ReminderOffset, settings core.Settings, now time.Time) notify.Record {
	hour := offset.AtHour
	if hour == 0 {
		hour = settings.DefaultReminderHour
	}
	fireDay := occurrence.AddDays(-offset.DaysBefore)
	fireAt := time.Date(fireDay.Year(), fireDay.Time.Month(), fireDay.Day(), hour, 0, 0, 0, time.UTC)
	if fireAt.Before(now) {
		// Overdue or already-passed reminder instants fire immediately
		// instead of silently disappearing.
		fireAt = now
	}

	return notify.Record{
		Key:            notify.RecordKey(ob.Section, ob.ID, occurrence, offset),
		ModuleID:       notify.ModuleID,
		EntityID:       ob.ID,
		Section:        ob.Section,
		OccurrenceDate: occurrence,
		FireAt:         fireAt,
		Channel:        resolveChannel(occurrence, offset, settings, now),
		Title:          ob.Name,
		Body:           fmt.Sprintf("%s due on %s", ob.Name, occurrence),
	}
}

// resolveChannel routes a notification to the alarm channel when the
// occurrence is overdue or due today and the matching setting promotes
// it, or when the reminder offset itself prefers the alarm channel.
// Everything else goes out on the regular channel.
func resolveChannel(occurrence core.Date, offset core.ReminderOffset, settings core.Settings, now time.Time) core.Channel {
	if offset.Channel == core.ChannelAlarm {
		return core.ChannelAlarm
	}
	today := core.DateOf(now)
	switch {
	case occurrence.Before(today.Time):
		if settings.OverdueAlertsUseAlarm {
			return core.ChannelAlarm
		}
	case occurrence.Equal(today.Time):
		if settings.DueTodayAlertsUseAlarm {
			return core.ChannelAlarm
		}
	}
	return core.ChannelRegular
}

// diffSets computes the create and cancel lists by stable key. A record
// present on both sides whose channel changed is replaced: it appears in
// both lists (cancel first, then recreate).
func diffSets(required map[string]notify.Record, current []notify.Record) (toSchedule, toCancel []notify.Record) {
	currentByKey := make(map[string]notify.Record, len(current))
	for _, rec := range current {
		currentByKey[rec.Key] = rec
	}

	for key, rec := range required {
		existing, ok := currentByKey[key]
		if !ok {
			toSchedule = append(toSchedule, rec)
		} else if existing.Channel != rec.Channel {
			toCancel = append(toCancel, existing)
			toSchedule = append(toSchedule, rec)
		}
	}
	for _, rec := range current {
		if _, ok := required[rec.Key]; !ok {
			toCancel = append(toCancel, rec)
		}
	}

	// Deterministic issue order regardless of map iteration.
	sort.Slice(toSchedule, func(i, j int) bool { return toSchedule[i].Key < toSchedule[j].Key })
	sort.Slice(toCancel, func(i, j int) bool { return toCancel[i].Key < toCancel[j].Key })
	return toSchedule, toCancel
}

// apply issues the cancel and create calls through a bounded worker
// pool. Each call failure is counted individually; one failure never
// aborts the batch, and the aggregated result is independent of
// completion order. Cancels run before creates so a replaced record
// never coexists with its successor.
func (e *SyncEngine) apply(ctx context.Context, toSchedule, toCancel []notify.Record) SyncResult {
	result := SyncResult{ScheduledBySection: make(map[core.Section]int)}

	cancelOK := e.runBatch(ctx, toCancel, func(ctx context.Context, rec notify.Record) error {
		return e.hub.Cancel(ctx, rec.Key)
	})
	for i, rec := range toCancel {
		if cancelOK[i] {
			result.Cancelled++
		} else {
			result.Failed++
			slog.WarnContext(ctx, "Failed to cancel notification",
				"key", rec.Key, "entity_id", rec.EntityID, "section", rec.Section)
		}
	}

	scheduleOK := e.runBatch(ctx, toSchedule, func(ctx context.Context, rec notify.Record) error {
		return e.hub.Schedule(ctx, rec)
	})
	for i, rec := range toSchedule {
		if scheduleOK[i] {
			result.Scheduled++
			result.ScheduledBySection[rec.Section]++
		} else {
			result.Failed++
			slog.WarnContext(ctx, "Failed to schedule notification",
				"key", rec.Key, "entity_id", rec.EntityID, "section", rec.Section)
		}
	}

	return result
}

// runBatch executes op for every record with bounded parallelism and
// reports per-item success positionally. Dispatched hub calls are
// allowed to finish even when the caller's context is cancelled
// mid-batch, so the hub never ends up half-told.
func (e *SyncEngine) runBatch(ctx context.Context, recs []notify.Record, op func(context.Context, notify.Record) error) []bool {
	ok := make([]bool, len(recs))
	if len(recs) == 0 {
		return ok
	}

	// Detach from caller cancellation: once a hub call is dispatched it
	// runs to completion, otherwise an abandoned sync could leave the
	// hub in a state the caller believes was never touched.
	opCtx := context.WithoutCancel(ctx)

	g := new(errgroup.Group)
	g.SetLimit(e.config.Workers)
	for i, rec := range recs {
		g.Go(func() error {
			if err := op(opCtx, rec); err != nil {
				slog.DebugContext(ctx, "Hub call failed", "key", rec.Key, "error", err)
				return nil
			}
			ok[i] = true
			return nil
		})
	}
	_ = g.Wait()
	return ok
}
