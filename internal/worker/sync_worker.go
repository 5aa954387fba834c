package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"scadenze/internal/amqp"
	"scadenze/internal/services"
	"scadenze/internal/storage"
)

// SyncWorker drives the reconciliation engine from AMQP sync requests
// and scheduled maintenance passes.
type SyncWorker struct {
	storage *storage.SQLiteRepository
	engine  *services.SyncEngine
}

func NewSyncWorker(storage *storage.SQLiteRepository, engine *services.SyncEngine) *SyncWorker {
	return &SyncWorker{
		storage: storage,
		engine:  engine,
	}
}

// HandleSyncRequest dispatches a single sync request message from AMQP.
func (w *SyncWorker) HandleSyncRequest(ctx context.Context, msg *amqp.SyncRequestMessage) error {
	switch msg.Reason {
	case amqp.ReasonFullSync:
		return w.runFullSync(ctx)
	case amqp.ReasonEntitySync:
		return w.runEntitySync(ctx, msg)
	case amqp.ReasonCancelEntity:
		return w.runCancelEntity(ctx, msg)
	case amqp.ReasonClearAll:
		return w.runClearAll(ctx)
	default:
		// Unknown reasons are dropped, not requeued: redelivery would
		// fail the same way forever.
		slog.WarnContext(ctx, "Dropping sync request with unknown reason", "reason", msg.Reason)
		return nil
	}
}

func (w *SyncWorker) runFullSync(ctx context.Context) error {
	settings, err := w.storage.LoadSettings(ctx)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	if !settings.NotificationsEnabled {
		cleared, err := w.engine.ClearScheduledNotifications(ctx)
		if err != nil {
			return fmt.Errorf("clear notifications: %w", err)
		}
		slog.InfoContext(ctx, "Notifications disabled, cleared schedule", "cleared", cleared)
		return nil
	}

	result, err := w.engine.SyncSchedules(ctx, settings, time.Now())
	if err != nil {
		return fmt.Errorf("sync schedules: %w", err)
	}

	slog.InfoContext(ctx, "Full sync completed",
		"scheduled", result.Scheduled,
		"cancelled", result.Cancelled,
		"failed", result.Failed)
	return nil
}

func (w *SyncWorker) runEntitySync(ctx context.Context, msg *amqp.SyncRequestMessage) error {
	settings, err := w.storage.LoadSettings(ctx)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	if !settings.NotificationsEnabled {
		slog.InfoContext(ctx, "Notifications disabled, skipping entity sync",
			"entity_id", msg.EntityID, "section", msg.Section)
		return nil
	}

	ob, err := w.storage.GetObligation(ctx, msg.EntityID)
	if err != nil {
		return fmt.Errorf("get obligation %d: %w", msg.EntityID, err)
	}

	result, err := w.engine.SyncBill(ctx, settings, ob, time.Now())
	if err != nil {
		return fmt.Errorf("sync obligation %d: %w", msg.EntityID, err)
	}

	slog.InfoContext(ctx, "Entity sync completed",
		"entity_id", msg.EntityID,
		"section", msg.Section,
		"scheduled", result.Scheduled,
		"cancelled", result.Cancelled,
		"failed", result.Failed)
	return nil
}

func (w *SyncWorker) runCancelEntity(ctx context.Context, msg *amqp.SyncRequestMessage) error {
	if err := w.engine.CancelEntityNotifications(ctx, msg.Section, msg.EntityID); err != nil {
		return fmt.Errorf("cancel notifications for entity %d: %w", msg.EntityID, err)
	}
	slog.InfoContext(ctx, "Entity notifications cancelled",
		"entity_id", msg.EntityID, "section", msg.Section)
	return nil
}

func (w *SyncWorker) runClearAll(ctx context.Context) error {
	cleared, err := w.engine.ClearScheduledNotifications(ctx)
	if err != nil {
		return fmt.Errorf("clear notifications: %w", err)
	}
	slog.InfoContext(ctx, "Cleared all scheduled notifications", "cleared", cleared)
	return nil
}

// StartupSyncCheck runs a reconciliation pass at worker startup when the
// settings ask for one. This recovers from missed sync requests or
// worker downtime: the diff re-derives whatever the lost messages would
// have changed.
func (w *SyncWorker) StartupSyncCheck(ctx context.Context) error {
	settings, err := w.storage.LoadSettings(ctx)
	if err != nil {
		return fmt.Errorf("load settings for startup check: %w", err)
	}

	if !settings.SyncOnStartup {
		slog.InfoContext(ctx, "Startup sync disabled in settings")
		return nil
	}

	slog.InfoContext(ctx, "Running startup sync")
	return w.runFullSync(ctx)
}

// RunMaintenanceSync is the periodic full pass the scheduler triggers.
// It rolls occurrence windows forward: yesterday's due dates leave the
// schedule and newly-in-window occurrences enter it.
func (w *SyncWorker) RunMaintenanceSync(ctx context.Context) {
	if err := w.runFullSync(ctx); err != nil {
		slog.ErrorContext(ctx, "Maintenance sync failed", "error", err)
	}
}
