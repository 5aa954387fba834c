// Package notify defines the contract between the scheduling core and
// the durable notification store, plus the stable identity of a
// scheduled notification. Delivery mechanics live behind the Hub
// interface and are out of the core's scope.
package notify

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"time"

	"scadenze/internal/core"
)

// ModuleID is the hub namespace all finance notifications live under.
const ModuleID = "finance"

var (
	// ErrHubUnavailable marks the hub as entirely unreachable. A sync
	// pass that hits it fails as a whole; per-item errors do not wrap it.
	ErrHubUnavailable = errors.New("notification hub unavailable")

	// ErrNotFound is returned by Cancel for a key the hub does not hold.
	ErrNotFound = errors.New("scheduled notification not found")
)

// Record is one scheduled notification as the hub stores it. Records are
// never mutated: a change is a cancel of the old key plus a schedule of
// the new one.
type Record struct {
	Key            string
	ModuleID       string
	EntityID       int64
	Section        core.Section
	OccurrenceDate core.Date
	FireAt         time.Time
	Channel        core.Channel
	Title          string
	Body           string
}

// ModuleSettings is the per-module preference blob the hub persists.
type ModuleSettings struct {
	ModuleID string
	Enabled  bool
	Sound    string
}

// Hub is the durable store of scheduled notifications, keyed by module.
// The engine is its only writer for ModuleID.
type Hub interface {
	Initialize(ctx context.Context) error
	ModuleSettings(ctx context.Context, moduleID string) (ModuleSettings, error)
	SetModuleSettings(ctx context.Context, settings ModuleSettings) error
	Schedule(ctx context.Context, rec Record) error
	Cancel(ctx context.Context, key string) error
	ListScheduled(ctx context.Context, moduleID string) ([]Record, error)
}

// RecordKey derives the stable identity of a notification from the
// source entity, the occurrence date and the reminder offset. The same
// inputs always produce the same key, on both the required and the
// already-scheduled side, so set difference never sees false churn.
// Channel is deliberately excluded: a channel change replaces the record
// under the same identity via cancel+recreate.
func RecordKey(section core.Section, entityID int64, occurrence core.Date, offset core.ReminderOffset) string {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%d|%s|%d|%d", section, entityID, occurrence, offset.DaysBefore, offset.AtHour)
	return fmt.Sprintf("%s-%016x", ModuleID, h.Sum64())
}
