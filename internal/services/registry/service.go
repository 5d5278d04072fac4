// Package registry keeps one row of last-known state per client in sqlite.
package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fgeck/gostation-homelab/internal/alias"
	"github.com/fgeck/gostation-homelab/internal/models"
	"github.com/rs/zerolog"

	_ "modernc.org/sqlite"
)

// DefaultPath keeps the registry in memory for the lifetime of the process.
const DefaultPath = ":memory:"

// ErrNotFound is returned by Get for a MAC that was never registered.
var ErrNotFound = errors.New("entity not found")

// Service defines the interface for the entity registry.
type Service interface {
	Notify(ctx context.Context, update models.Update)
	Record(ctx context.Context, update models.Update) error
	List(ctx context.Context) ([]models.Entity, error)
	Get(ctx context.Context, mac string) (*models.Entity, error)
	Close() error
}

// Impl implements the registry Service interface.
type Impl struct {
	db         *sql.DB
	aliases    alias.Resolver
	staleAfter time.Duration
	logger     zerolog.Logger
}

// New opens the registry database and creates its schema.
func New(ctx context.Context, logger zerolog.Logger, cfg models.RegistryConfig, aliases alias.Resolver) (*Impl, error) {
	path := cfg.Path
	if path == "" {
		path = DefaultPath
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open registry: %w", err)
	}
	// A single connection keeps an in-memory database alive and serializes writers.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if aliases == nil {
		aliases = alias.Map{}
	}
	r := &Impl{db: db, aliases: aliases, staleAfter: cfg.StaleAfter, logger: logger}
	if err := r.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	logger.Debug().Str("path", path).Dur("stale_after", cfg.StaleAfter).Msg("entity registry opened")
	return r, nil
}

// Close closes the database.
func (r *Impl) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

func (r *Impl) migrate(ctx context.Context) error {
	statements := []string{
		`PRAGMA journal_mode = WAL;`,
		`CREATE TABLE IF NOT EXISTS entities (
			mac TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			first_seen_at TEXT NOT NULL,
			last_seen_at TEXT NOT NULL,
			online INTEGER NOT NULL,
			signal INTEGER,
			authorized INTEGER NOT NULL,
			authenticated INTEGER NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_entities_online ON entities(online);`,
	}

	for _, stmt := range statements {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate failed: %w", err)
		}
	}
	return nil
}

// Notify records update and logs any failure.
func (r *Impl) Notify(ctx context.Context, update models.Update) {
	if err := r.Record(ctx, update); err != nil {
		r.logger.Warn().Err(err).Str("cycle_id", update.CycleID).Msg("failed to update entity registry")
	}
}

// Record upserts every client of the snapshot, marks every online entity
// missing from it offline and prunes stale entities. The sweep does not rely on
// the delta, so rows left online by a previous run are corrected too.
func (r *Impl) Record(ctx context.Context, update models.Update) error {
	if update.Snapshot == nil {
		return nil
	}

	known, err := r.knownMACs(ctx)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	seenAt := formatTime(update.Snapshot.TakenAt)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	upsert, err := tx.PrepareContext(ctx, `
		INSERT INTO entities (mac, name, first_seen_at, last_seen_at, online, signal, authorized, authenticated, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(mac) DO UPDATE SET
			name=excluded.name,
			last_seen_at=excluded.last_seen_at,
			online=excluded.online,
			signal=excluded.signal,
			authorized=excluded.authorized,
			authenticated=excluded.authenticated,
			updated_at=excluded.updated_at`)
	if err != nil {
		return err
	}
	defer upsert.Close()

	var registered []models.ClientRecord
	for _, rec := range update.Snapshot.Records() {
		if _, err := upsert.ExecContext(
			ctx,
			rec.MAC,
			r.aliases.Resolve(rec.MAC),
			seenAt,
			seenAt,
			rec.Associated,
			fromIntPtr(rec.Signal),
			rec.Authorized,
			rec.Authenticated,
			formatTime(now),
		); err != nil {
			return fmt.Errorf("upsert %s: %w", rec.MAC, err)
		}
		if _, ok := known[rec.MAC]; !ok {
			registered = append(registered, rec)
		}
	}

	for mac, online := range known {
		if !online || update.Snapshot.Has(mac) {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE entities SET online = 0, updated_at = ? WHERE mac = ?`,
			formatTime(now), mac,
		); err != nil {
			return fmt.Errorf("mark %s offline: %w", mac, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	for _, rec := range registered {
		r.logger.Info().
			Str("mac", rec.MAC).
			Str("name", r.aliases.Resolve(rec.MAC)).
			Msg("client registered")
	}

	return r.pruneStale(ctx, now)
}

// pruneStale deletes offline entities last seen before now minus staleAfter.
func (r *Impl) pruneStale(ctx context.Context, now time.Time) error {
	if r.staleAfter <= 0 {
		return nil
	}
	cutoff := now.Add(-r.staleAfter)

	offline, err := r.query(ctx, `WHERE online = 0`)
	if err != nil {
		return err
	}

	for _, e := range offline {
		if !e.LastSeenAt.Before(cutoff) {
			continue
		}
		r.logger.Info().
			Str("mac", e.MAC).
			Str("name", e.Name).
			Time("last_seen_at", e.LastSeenAt).
			Msg("removing stale registration")
		if _, err := r.db.ExecContext(ctx, `DELETE FROM entities WHERE mac = ? AND online = 0`, e.MAC); err != nil {
			return fmt.Errorf("delete %s: %w", e.MAC, err)
		}
	}
	return nil
}

// List returns every registered entity ordered by MAC.
func (r *Impl) List(ctx context.Context) ([]models.Entity, error) {
	return r.query(ctx, "")
}

// Get returns the entity for mac or ErrNotFound.
func (r *Impl) Get(ctx context.Context, mac string) (*models.Entity, error) {
	entities, err := r.query(ctx, `WHERE mac = ?`, models.NormalizeMAC(mac))
	if err != nil {
		return nil, err
	}
	if len(entities) == 0 {
		return nil, ErrNotFound
	}
	return &entities[0], nil
}

// knownMACs maps every registered MAC to its stored online flag.
func (r *Impl) knownMACs(ctx context.Context) (map[string]bool, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT mac, online FROM entities`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	known := map[string]bool{}
	for rows.Next() {
		var mac string
		var online bool
		if err := rows.Scan(&mac, &online); err != nil {
			return nil, err
		}
		known[mac] = online
	}
	return known, rows.Err()
}

func (r *Impl) query(ctx context.Context, where string, args ...any) ([]models.Entity, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT mac, name, first_seen_at, last_seen_at, online, signal, authorized, authenticated, updated_at
		FROM entities `+where+` ORDER BY mac`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []models.Entity{}
	for rows.Next() {
		var (
			e                              models.Entity
			firstSeen, lastSeen, updatedAt string
			signal                         sql.NullInt64
		)
		if err := rows.Scan(&e.MAC, &e.Name, &firstSeen, &lastSeen, &e.Online, &signal,
			&e.Authorized, &e.Authenticated, &updatedAt); err != nil {
			return nil, err
		}
		e.FirstSeenAt = parseTime(firstSeen)
		e.LastSeenAt = parseTime(lastSeen)
		e.UpdatedAt = parseTime(updatedAt)
		if signal.Valid {
			v := int(signal.Int64)
			e.Signal = &v
		}
		e.State = models.StateOffline
		if e.Online {
			e.State = models.StateOnline
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(v string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

func fromIntPtr(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}
