package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"hillview/internal/capture"
	"hillview/internal/config"
)

// Store manages capture queue persistence backed by SQLite.
type Store struct {
	db           *sql.DB
	path         string
	maxQueueSize int
}

// Open initializes or connects to the queue database and prepares the
// schema.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := cfg.QueueDatabasePath()
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath, maxQueueSize: cfg.Capture.MaxQueueSize}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the queue database location.
func (s *Store) Path() string {
	return s.path
}

// MaxQueueSize returns the configured capacity bound.
func (s *Store) MaxQueueSize() int {
	return s.maxQueueSize
}

// NewCaptureParams carries everything needed to enqueue a capture.
type NewCaptureParams struct {
	ID            string
	PlaceholderID string
	ImageData     []byte
	Location      capture.Location
	CapturedAt    int64
	Mode          capture.Mode
}

// NewCapture inserts a pending capture, enforcing the queue capacity
// bound and bumping the lifetime counters in the same transaction. It
// returns ErrQueueFull when the queue already holds maxQueueSize active
// items.
func (s *Store) NewCapture(ctx context.Context, params NewCaptureParams) (*Item, error) {
	if params.ID == "" {
		return nil, errors.New("capture id is required")
	}
	if len(params.ImageData) == 0 {
		return nil, errors.New("capture image payload is required")
	}
	if params.PlaceholderID == "" {
		params.PlaceholderID = params.ID
	}

	loc := params.Location.Normalized()
	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin enqueue tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var active int
	row := tx.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM capture_items WHERE status IN (?, ?)`,
		StatusPending, StatusUploading,
	)
	if err := row.Scan(&active); err != nil {
		return nil, fmt.Errorf("count active captures: %w", err)
	}
	if active >= s.maxQueueSize {
		return nil, fmt.Errorf("%w: %d items pending", ErrQueueFull, active)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO capture_items (
            id, placeholder_id, image_data, latitude, longitude, altitude,
            accuracy, heading, location_source, bearing_source, captured_at,
            mode, status, attempts, error_message, created_at, updated_at,
            next_attempt_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, NULL, ?, ?, ?)`,
		params.ID,
		params.PlaceholderID,
		params.ImageData,
		loc.Latitude,
		loc.Longitude,
		nullableFloat(loc.Altitude),
		loc.Accuracy,
		nullableFloat(loc.Heading),
		string(loc.Source),
		nullableString(loc.BearingSource),
		params.CapturedAt,
		string(params.Mode),
		StatusPending,
		timestamp,
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert capture: %w", err)
	}

	if err := bumpCounter(ctx, tx, counterTotalCaptured); err != nil {
		return nil, err
	}
	if err := bumpCounter(ctx, tx, modeCounter(params.Mode)); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit enqueue: %w", err)
	}

	return s.GetByID(ctx, params.ID)
}

// GetByID fetches a capture item by identifier. A missing row yields
// (nil, nil).
func (s *Store) GetByID(ctx context.Context, id string) (*Item, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM capture_items WHERE id = ?`, id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get capture: %w", err)
	}
	return item, nil
}

// List returns capture items filtered by status set (or all active items
// when no status is provided), FIFO by creation time.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Item, error) {
	var (
		rows *sql.Rows
		err  error
	)

	baseQuery := `SELECT ` + itemColumns + ` FROM capture_items`
	orderClause := ` ORDER BY created_at, id`

	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		query := baseQuery + ` WHERE status IN (` + placeholders + `)` + orderClause
		rows, err = s.db.QueryContext(ctx, query, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list captures: %w", err)
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// NextReady returns the oldest pending capture whose retry delay has
// elapsed, or nil when nothing is due.
func (s *Store) NextReady(ctx context.Context, now time.Time) (*Item, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM capture_items
         WHERE status = ? AND next_attempt_at <= ?
         ORDER BY created_at, id LIMIT 1`,
		StatusPending,
		now.UTC().Format(time.RFC3339Nano),
	)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("next ready capture: %w", err)
	}
	return item, nil
}

// NextRetryAt returns the earliest scheduled attempt time among pending
// captures, letting the processing loop park precisely until the next
// backoff expires.
func (s *Store) NextRetryAt(ctx context.Context) (time.Time, bool, error) {
	var raw sql.NullString
	row := s.db.QueryRowContext(ctx,
		`SELECT MIN(next_attempt_at) FROM capture_items WHERE status = ?`, StatusPending,
	)
	if err := row.Scan(&raw); err != nil {
		return time.Time{}, false, fmt.Errorf("next retry time: %w", err)
	}
	if !raw.Valid || raw.String == "" {
		return time.Time{}, false, nil
	}
	at, err := parseTimeString(raw.String)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse retry time: %w", err)
	}
	return at, true, nil
}

// MarkUploading transitions a pending item to uploading and increments
// its attempt count. The mutation is written through before any network
// I/O starts.
func (s *Store) MarkUploading(ctx context.Context, item *Item) error {
	if item == nil {
		return errors.New("item is nil")
	}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE capture_items
         SET status = ?, attempts = attempts + 1, error_message = NULL, updated_at = ?
         WHERE id = ? AND status = ?`,
		StatusUploading,
		now.Format(time.RFC3339Nano),
		item.ID,
		StatusPending,
	)
	if err != nil {
		return fmt.Errorf("mark uploading: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, item.ID)
	}
	item.Status = StatusUploading
	item.Attempts++
	item.ErrorMessage = ""
	item.UpdatedAt = now
	return nil
}

// RequeueTransient returns an uploading item to pending after a
// transient failure, recording the error and the time of the next
// attempt.
func (s *Store) RequeueTransient(ctx context.Context, item *Item, message string, nextAttempt time.Time) error {
	if item == nil {
		return errors.New("item is nil")
	}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE capture_items
         SET status = ?, error_message = ?, next_attempt_at = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		StatusPending,
		nullableString(message),
		nextAttempt.UTC().Format(time.RFC3339Nano),
		now.Format(time.RFC3339Nano),
		item.ID,
		StatusUploading,
	)
	if err != nil {
		return fmt.Errorf("requeue capture: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, item.ID)
	}
	item.Status = StatusPending
	item.ErrorMessage = message
	item.NextAttemptAt = nextAttempt.UTC()
	item.UpdatedAt = now
	return nil
}

// Complete removes a successfully uploaded capture and bumps the
// processed counter. The row deletion releases the image payload.
func (s *Store) Complete(ctx context.Context, id string) error {
	return s.finish(ctx, id, counterTotalProcessed)
}

// Fail removes a permanently failed capture and bumps the failed
// counter. The failure stays visible through the lifetime counters and
// the capture's placeholder, which the coordinator marks errored.
func (s *Store) Fail(ctx context.Context, id string) error {
	return s.finish(ctx, id, counterTotalFailed)
}

func (s *Store) finish(ctx context.Context, id, counter string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin finish tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `DELETE FROM capture_items WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete capture: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	if err := bumpCounter(ctx, tx, counter); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit finish: %w", err)
	}
	return nil
}

// Cancel removes a pending capture before it starts uploading. It
// reports false when the item is already uploading or gone.
func (s *Store) Cancel(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM capture_items WHERE id = ? AND status = ?`, id, StatusPending,
	)
	if err != nil {
		return false, fmt.Errorf("cancel capture: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// ResetStuckUploading returns items left mid-upload by a crash back to
// pending so they are retried. Attempt counts are preserved.
func (s *Store) ResetStuckUploading(ctx context.Context) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx,
		`UPDATE capture_items
         SET status = ?, next_attempt_at = ?, updated_at = ?
         WHERE status = ?`,
		StatusPending,
		now,
		now,
		StatusUploading,
	)
	if err != nil {
		return 0, fmt.Errorf("reset stuck uploads: %w", err)
	}
	return res.RowsAffected()
}

// ActiveCount returns the number of captures still in the queue.
func (s *Store) ActiveCount(ctx context.Context) (int, error) {
	var count int
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM capture_items`)
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count active captures: %w", err)
	}
	return count, nil
}

// Health aggregates queue state for diagnostic output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM capture_items GROUP BY status`)
	if err != nil {
		return HealthSummary{}, fmt.Errorf("queue health: %w", err)
	}
	defer rows.Close()

	health := HealthSummary{}
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return HealthSummary{}, err
		}
		health.Active += count
		switch status {
		case StatusPending:
			health.Pending += count
		case StatusUploading:
			health.Uploading += count
		}
	}
	return health, rows.Err()
}

// Counters returns the persisted lifetime statistics.
func (s *Store) Counters(ctx context.Context) (Counters, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, value FROM lifetime_counters`)
	if err != nil {
		return Counters{}, fmt.Errorf("read counters: %w", err)
	}
	defer rows.Close()

	counters := Counters{}
	for rows.Next() {
		var name string
		var value uint64
		if err := rows.Scan(&name, &value); err != nil {
			return Counters{}, err
		}
		switch name {
		case counterTotalCaptured:
			counters.TotalCaptured = value
		case counterTotalProcessed:
			counters.TotalProcessed = value
		case counterTotalFailed:
			counters.TotalFailed = value
		case counterModeSlow:
			counters.SlowMode = value
		case counterModeFast:
			counters.FastMode = value
		case counterModeSingle:
			counters.SingleMode = value
		}
	}
	return counters, rows.Err()
}

// Clear removes all captures from the queue and returns the number of
// rows deleted. Lifetime counters are preserved.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM capture_items`)
	if err != nil {
		return 0, fmt.Errorf("clear queue: %w", err)
	}
	return res.RowsAffected()
}

func bumpCounter(ctx context.Context, tx *sql.Tx, name string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO lifetime_counters (name, value) VALUES (?, 1)
         ON CONFLICT(name) DO UPDATE SET value = value + 1`,
		name,
	)
	if err != nil {
		return fmt.Errorf("bump counter %s: %w", name, err)
	}
	return nil
}

const itemColumns = "id, placeholder_id, image_data, latitude, longitude, altitude, accuracy, heading, location_source, bearing_source, captured_at, mode, status, attempts, error_message, created_at, updated_at, next_attempt_at"

func scanItem(scanner interface{ Scan(dest ...any) error }) (*Item, error) {
	var (
		id             string
		placeholderID  string
		imageData      []byte
		latitude       float64
		longitude      float64
		altitude       sql.NullFloat64
		accuracy       float64
		heading        sql.NullFloat64
		locationSource string
		bearingSource  sql.NullString
		capturedAt     int64
		modeStr        string
		statusStr      string
		attempts       int
		errorMessage   sql.NullString
		createdRaw     string
		updatedRaw     string
		nextAttemptRaw string
	)

	if err := scanner.Scan(
		&id,
		&placeholderID,
		&imageData,
		&latitude,
		&longitude,
		&altitude,
		&accuracy,
		&heading,
		&locationSource,
		&bearingSource,
		&capturedAt,
		&modeStr,
		&statusStr,
		&attempts,
		&errorMessage,
		&createdRaw,
		&updatedRaw,
		&nextAttemptRaw,
	); err != nil {
		return nil, err
	}

	item := &Item{
		ID:            id,
		PlaceholderID: placeholderID,
		ImageData:     imageData,
		Location: capture.Location{
			Latitude:      latitude,
			Longitude:     longitude,
			Accuracy:      accuracy,
			Source:        capture.ParseLocationSource(locationSource),
			BearingSource: bearingSource.String,
		},
		CapturedAt:   capturedAt,
		Mode:         capture.Mode(modeStr),
		Status:       Status(statusStr),
		Attempts:     attempts,
		ErrorMessage: errorMessage.String,
	}
	if altitude.Valid {
		v := altitude.Float64
		item.Location.Altitude = &v
	}
	if heading.Valid {
		v := heading.Float64
		item.Location.Heading = &v
	}

	if created, err := parseTimeString(createdRaw); err == nil {
		item.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		item.UpdatedAt = updated
	}
	if next, err := parseTimeString(nextAttemptRaw); err == nil {
		item.NextAttemptAt = next
	}
	return item, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableFloat(value *float64) any {
	if value == nil {
		return nil
	}
	return *value
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	return time.Parse(time.RFC3339Nano, value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
