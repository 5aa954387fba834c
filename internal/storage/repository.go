package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"scadenze/internal/core"
	"scadenze/internal/notify"

	_ "modernc.org/sqlite"
)

// settingsKey is the row the notification Settings snapshot lives under.
const settingsKey = "notification_settings"

// SQLiteRepository is the durable backend of the scheduling core: it is
// the notification hub store, the obligation repositories and the
// settings store in one SQLite database.
type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// Run migrations
	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// ---- notify.Hub ----

// Initialize implements notify.Hub. Schema setup already happened in the
// constructor, so this just verifies the store is reachable.
func (r *SQLiteRepository) Initialize(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", notify.ErrHubUnavailable, err)
	}
	return nil
}

// Schedule implements notify.Hub. Scheduling an already-present key is
// an upsert: records are immutable, so identical keys carry identical
// payloads except for an intentional channel replacement.
func (r *SQLiteRepository) Schedule(ctx context.Context, rec notify.Record) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO scheduled_notifications
			(key, module_id, entity_id, section, occurrence_date, fire_at, channel, title, body)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			fire_at = excluded.fire_at,
			channel = excluded.channel,
			title = excluded.title,
			body = excluded.body`,
		rec.Key, rec.ModuleID, rec.EntityID, string(rec.Section),
		rec.OccurrenceDate.String(), rec.FireAt.UTC(), string(rec.Channel),
		rec.Title, rec.Body)
	if err != nil {
		return fmt.Errorf("schedule notification %s: %w", rec.Key, err)
	}

	slog.DebugContext(ctx, "Notification scheduled",
		"key", rec.Key,
		"entity_id", rec.EntityID,
		"section", rec.Section,
		"fire_at", rec.FireAt.Format(time.RFC3339),
		"channel", rec.Channel)
	return nil
}

// Cancel implements notify.Hub.
func (r *SQLiteRepository) Cancel(ctx context.Context, key string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM scheduled_notifications WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("cancel notification %s: %w", key, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return notify.ErrNotFound
	}
	return nil
}

// ListScheduled implements notify.Hub.
func (r *SQLiteRepository) ListScheduled(ctx context.Context, moduleID string) ([]notify.Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT key, module_id, entity_id, section, occurrence_date, fire_at, channel, title, body
		FROM scheduled_notifications
		WHERE module_id = ?
		ORDER BY fire_at, key`, moduleID)
	if err != nil {
		return nil, fmt.Errorf("list scheduled notifications: %w", err)
	}
	defer rows.Close()

	var recs []notify.Record
	for rows.Next() {
		var (
			rec     notify.Record
			section string
			occ     string
			channel string
		)
		if err := rows.Scan(&rec.Key, &rec.ModuleID, &rec.EntityID, &section,
			&occ, &rec.FireAt, &channel, &rec.Title, &rec.Body); err != nil {
			return nil, fmt.Errorf("scan scheduled notification: %w", err)
		}
		rec.Section = core.Section(section)
		rec.Channel = core.Channel(channel)
		if rec.OccurrenceDate, err = core.ParseDate(occ); err != nil {
			return nil, fmt.Errorf("parse occurrence date %q: %w", occ, err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scheduled notifications: %w", err)
	}
	return recs, nil
}

// ModuleSettings implements notify.Hub. A module without a stored row
// gets the enabled defaults.
func (r *SQLiteRepository) ModuleSettings(ctx context.Context, moduleID string) (notify.ModuleSettings, error) {
	ms := notify.ModuleSettings{ModuleID: moduleID, Enabled: true}
	err := r.db.QueryRowContext(ctx,
		`SELECT enabled, sound FROM module_settings WHERE module_id = ?`, moduleID).
		Scan(&ms.Enabled, &ms.Sound)
	if errors.Is(err, sql.ErrNoRows) {
		return ms, nil
	}
	if err != nil {
		return ms, fmt.Errorf("get module settings: %w", err)
	}
	return ms, nil
}

// SetModuleSettings implements notify.Hub.
func (r *SQLiteRepository) SetModuleSettings(ctx context.Context, ms notify.ModuleSettings) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO module_settings (module_id, enabled, sound)
		VALUES (?, ?, ?)
		ON CONFLICT(module_id) DO UPDATE SET
			enabled = excluded.enabled,
			sound = excluded.sound`,
		ms.ModuleID, ms.Enabled, ms.Sound)
	if err != nil {
		return fmt.Errorf("set module settings: %w", err)
	}
	return nil
}

// ---- obligation repositories ----

const obligationColumns = `id, name, amount_cents, currency, category_id, account_id,
	section, kind, rule, due_day, next_due_date, last_generated_date, reminders, active`

// SectionSource exposes one section's active obligations to the sync
// engine as a services.ObligationSource.
func (r *SQLiteRepository) SectionSource(section core.Section) *SectionSource {
	return &SectionSource{repo: r, section: section}
}

type SectionSource struct {
	repo    *SQLiteRepository
	section core.Section
}

func (s *SectionSource) ListActive(ctx context.Context) ([]core.Obligation, error) {
	return s.repo.ListActiveObligations(ctx, s.section)
}

// ListActiveObligations returns the active obligations of one section.
func (r *SQLiteRepository) ListActiveObligations(ctx context.Context, section core.Section) ([]core.Obligation, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+obligationColumns+`
		FROM obligations
		WHERE section = ? AND active = 1
		ORDER BY id`, string(section))
	if err != nil {
		return nil, fmt.Errorf("list active obligations (section=%s): %w", section, err)
	}
	defer rows.Close()

	var out []core.Obligation
	for rows.Next() {
		ob, err := scanObligation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ob)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate obligations: %w", err)
	}
	return out, nil
}

// GetObligation retrieves a single obligation by ID.
func (r *SQLiteRepository) GetObligation(ctx context.Context, id int64) (core.Obligation, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+obligationColumns+`
		FROM obligations
		WHERE id = ?`, id)
	ob, err := scanObligation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Obligation{}, fmt.Errorf("obligation %d: %w", id, err)
	}
	return ob, err
}

// SaveObligation inserts or updates an obligation and returns its ID.
// The recurrence rule is persisted in its compact encoded form.
func (r *SQLiteRepository) SaveObligation(ctx context.Context, ob core.Obligation) (int64, error) {
	if err := ob.Validate(); err != nil {
		return 0, fmt.Errorf("validate obligation: %w", err)
	}

	ruleBlob, err := core.EncodeRule(ob.Rule)
	if err != nil {
		return 0, fmt.Errorf("encode obligation rule: %w", err)
	}
	remindersBlob, err := json.Marshal(ob.Reminders)
	if err != nil {
		return 0, fmt.Errorf("encode obligation reminders: %w", err)
	}

	var nextDue, lastGenerated any
	if !ob.NextDueDate.IsEmpty() {
		nextDue = ob.NextDueDate.String()
	}
	if !ob.LastGeneratedDate.IsEmpty() {
		lastGenerated = ob.LastGeneratedDate.String()
	}

	if ob.ID == 0 {
		res, err := r.db.ExecContext(ctx, `
			INSERT INTO obligations
				(name, amount_cents, currency, category_id, account_id, section, kind,
				 rule, due_day, next_due_date, last_generated_date, reminders, active)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			ob.Name, ob.Amount.Cents, ob.Currency, ob.CategoryID, ob.AccountID,
			string(ob.Section), string(ob.Kind), string(ruleBlob), ob.DueDay,
			nextDue, lastGenerated, string(remindersBlob), ob.Active)
		if err != nil {
			return 0, fmt.Errorf("insert obligation: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return 0, fmt.Errorf("obligation insert id: %w", err)
		}
		slog.InfoContext(ctx, "Obligation saved",
			"id", id, "name", ob.Name, "section", ob.Section, "kind", ob.Kind)
		return id, nil
	}

	_, err = r.db.ExecContext(ctx, `
		UPDATE obligations SET
			name = ?, amount_cents = ?, currency = ?, category_id = ?, account_id = ?,
			section = ?, kind = ?, rule = ?, due_day = ?, next_due_date = ?,
			last_generated_date = ?, reminders = ?, active = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		ob.Name, ob.Amount.Cents, ob.Currency, ob.CategoryID, ob.AccountID,
		string(ob.Section), string(ob.Kind), string(ruleBlob), ob.DueDay,
		nextDue, lastGenerated, string(remindersBlob), ob.Active, ob.ID)
	if err != nil {
		return 0, fmt.Errorf("update obligation %d: %w", ob.ID, err)
	}

	slog.InfoContext(ctx, "Obligation updated",
		"id", ob.ID, "name", ob.Name, "section", ob.Section, "kind", ob.Kind)
	return ob.ID, nil
}

// DeleteObligation removes an obligation. The caller is responsible for
// cancelling its notifications through the sync engine.
func (r *SQLiteRepository) DeleteObligation(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM obligations WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete obligation %d: %w", id, err)
	}
	slog.InfoContext(ctx, "Obligation deleted", "id", id)
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanObligation(row rowScanner) (core.Obligation, error) {
	var (
		ob            core.Obligation
		accountID     sql.NullInt64
		section       string
		kind          string
		ruleBlob      string
		nextDue       sql.NullString
		lastGenerated sql.NullString
		remindersBlob string
	)
	err := row.Scan(&ob.ID, &ob.Name, &ob.Amount.Cents, &ob.Currency, &ob.CategoryID,
		&accountID, &section, &kind, &ruleBlob, &ob.DueDay, &nextDue,
		&lastGenerated, &remindersBlob, &ob.Active)
	if err != nil {
		return core.Obligation{}, err
	}

	ob.Section = core.Section(section)
	ob.Kind = core.Kind(kind)
	if accountID.Valid {
		ob.AccountID = &accountID.Int64
	}
	if ob.Rule, err = core.DecodeRule([]byte(ruleBlob)); err != nil {
		return core.Obligation{}, fmt.Errorf("obligation %d rule: %w", ob.ID, err)
	}
	if nextDue.Valid && nextDue.String != "" {
		if ob.NextDueDate, err = core.ParseDate(nextDue.String); err != nil {
			return core.Obligation{}, fmt.Errorf("obligation %d next due date: %w", ob.ID, err)
		}
	}
	if lastGenerated.Valid && lastGenerated.String != "" {
		if ob.LastGeneratedDate, err = core.ParseDate(lastGenerated.String); err != nil {
			return core.Obligation{}, fmt.Errorf("obligation %d last generated date: %w", ob.ID, err)
		}
	}
	if err := json.Unmarshal([]byte(remindersBlob), &ob.Reminders); err != nil {
		return core.Obligation{}, fmt.Errorf("obligation %d reminders: %w", ob.ID, err)
	}
	return ob, nil
}

// ---- settings store ----

// LoadSettings returns the persisted notification settings, falling back
// to defaults when nothing has been saved yet.
func (r *SQLiteRepository) LoadSettings(ctx context.Context) (core.Settings, error) {
	var blob string
	err := r.db.QueryRowContext(ctx,
		`SELECT value FROM settings WHERE key = ?`, settingsKey).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return core.DefaultSettings(), nil
	}
	if err != nil {
		return core.Settings{}, fmt.Errorf("load settings: %w", err)
	}

	settings := core.DefaultSettings()
	if err := json.Unmarshal([]byte(blob), &settings); err != nil {
		return core.Settings{}, fmt.Errorf("decode settings: %w", err)
	}
	return settings, nil
}

// SaveSettings persists a settings snapshot.
func (r *SQLiteRepository) SaveSettings(ctx context.Context, settings core.Settings) error {
	if err := settings.Validate(); err != nil {
		return fmt.Errorf("validate settings: %w", err)
	}
	blob, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		settingsKey, string(blob))
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	slog.InfoContext(ctx, "Notification settings saved",
		"notifications_enabled", settings.NotificationsEnabled,
		"planning_window_days", settings.PlanningWindowDays)
	return nil
}
