package calls

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/shzded/MediCall-AI/pkg/utils"
)

// PostgresStore persists call records in the calls table (see migrations/001_calls.sql).
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const callColumns = `
id, name, phone, urgency, occurred_at, duration_seconds, summary, status, symptoms,
callback_requested, callback_completed, callback_completed_at, notes, transcript,
external_call_id, recording_url, recording_archive_url,
enrichment_status, enrichment_attempts, enrichment_error, enrichment_queued_at,
enrichment_claimed_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCall(row rowScanner) (CallRecord, error) {
	var (
		r        CallRecord
		seconds  int64
		symptoms []string
	)
	m := pgtype.NewMap()
	if err := row.Scan(
		&r.ID,
		&r.CallerName,
		&r.Phone,
		&r.Urgency,
		&r.OccurredAt,
		&seconds,
		&r.Summary,
		&r.Status,
		m.SQLScanner(&symptoms),
		&r.CallbackRequested,
		&r.CallbackCompleted,
		&r.CallbackCompletedAt,
		&r.Notes,
		&r.Transcript,
		&r.ExternalCallID,
		&r.RecordingURL,
		&r.RecordingArchiveURL,
		&r.EnrichmentStatus,
		&r.EnrichmentAttempts,
		&r.EnrichmentError,
		&r.EnrichmentQueuedAt,
		&r.EnrichmentClaimedAt,
		&r.CreatedAt,
		&r.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CallRecord{}, ErrNotFound
		}
		return CallRecord{}, err
	}
	if symptoms == nil {
		symptoms = []string{}
	}
	r.Symptoms = symptoms
	r.Duration = DurationFromSeconds(seconds)
	r.OccurredAt = r.OccurredAt.UTC()
	r.CreatedAt = r.CreatedAt.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()
	return r, nil
}

func (s *PostgresStore) Create(ctx context.Context, rec CallRecord) (CallRecord, error) {
	q := `
INSERT INTO calls (
	name, phone, urgency, occurred_at, duration_seconds, summary, status, symptoms,
	callback_requested, external_call_id, recording_url,
	enrichment_status, enrichment_error, enrichment_queued_at, created_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $15)
RETURNING ` + callColumns

	now := rec.CreatedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}
	symptoms := rec.Symptoms
	if symptoms == nil {
		symptoms = []string{}
	}
	out, err := scanCall(s.db.QueryRowContext(ctx, q,
		rec.CallerName,
		rec.Phone,
		string(rec.Urgency),
		rec.OccurredAt.UTC(),
		rec.Duration.Seconds(),
		rec.Summary,
		string(rec.Status),
		symptoms,
		rec.CallbackRequested,
		rec.ExternalCallID,
		rec.RecordingURL,
		string(rec.EnrichmentStatus),
		rec.EnrichmentError,
		rec.EnrichmentQueuedAt,
		now,
	))
	if utils.IsUniqueViolation(err) {
		return CallRecord{}, ErrDuplicateExternalID
	}
	return out, err
}

func (s *PostgresStore) Get(ctx context.Context, id int64) (CallRecord, error) {
	q := `SELECT ` + callColumns + ` FROM calls WHERE id = $1`
	return scanCall(s.db.QueryRowContext(ctx, q, id))
}

func (s *PostgresStore) GetByExternalID(ctx context.Context, externalID string) (CallRecord, error) {
	q := `SELECT ` + callColumns + ` FROM calls WHERE external_call_id = $1`
	return scanCall(s.db.QueryRowContext(ctx, q, externalID))
}

var sortColumns = map[string]string{
	SortTime:      "occurred_at",
	SortName:      "name",
	SortPhone:     "phone",
	SortUrgency:   "urgency",
	SortStatus:    "status",
	SortDuration:  "duration_seconds",
	SortCreatedAt: "created_at",
	SortUpdatedAt: "updated_at",
}

func (s *PostgresStore) List(ctx context.Context, f ListFilter) ([]CallRecord, int, error) {
	f = f.Normalize()

	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if f.Search != "" {
		p := arg("%" + escapeLike(f.Search) + "%")
		where = append(where, fmt.Sprintf("(name ILIKE %s OR phone ILIKE %s)", p, p))
	}
	if f.Status != "" {
		where = append(where, "status = "+arg(string(f.Status)))
	}
	if f.Urgency != "" {
		where = append(where, "urgency = "+arg(string(f.Urgency)))
	}
	cond := ""
	if len(where) > 0 {
		cond = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM calls`+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	order := "DESC"
	if f.Order == "asc" {
		order = "ASC"
	}
	q := fmt.Sprintf(`SELECT %s FROM calls%s ORDER BY %s %s, id %s OFFSET %s LIMIT %s`,
		callColumns, cond, sortColumns[f.Sort], order, order, arg(f.Skip), arg(f.Limit))

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]CallRecord, 0, f.Limit)
	for rows.Next() {
		r, err := scanCall(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, r)
	}
	return out, total, rows.Err()
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func (s *PostgresStore) ToggleStatus(ctx context.Context, id int64, now time.Time) (CallRecord, error) {
	q := `
UPDATE calls
SET status = CASE WHEN status = 'unread' THEN 'read' ELSE 'unread' END,
    updated_at = $2
WHERE id = $1
RETURNING ` + callColumns
	return scanCall(s.db.QueryRowContext(ctx, q, id, now.UTC()))
}

func (s *PostgresStore) SetNotes(ctx context.Context, id int64, notes string, now time.Time) (CallRecord, error) {
	q := `UPDATE calls SET notes = $2, updated_at = $3 WHERE id = $1 RETURNING ` + callColumns
	return scanCall(s.db.QueryRowContext(ctx, q, id, notes, now.UTC()))
}

func (s *PostgresStore) MarkCallbackCompleted(ctx context.Context, id int64, now time.Time) (CallRecord, bool, error) {
	var (
		out     CallRecord
		changed bool
	)
	err := utils.WithTx(ctx, s.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		cur, err := scanCall(tx.QueryRowContext(ctx, `SELECT `+callColumns+` FROM calls WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return err
		}
		if cur.CallbackCompleted {
			out = cur
			return nil
		}
		q := `
UPDATE calls
SET callback_completed = TRUE, callback_completed_at = $2, updated_at = $2
WHERE id = $1
RETURNING ` + callColumns
		out, err = scanCall(tx.QueryRowContext(ctx, q, id, now.UTC()))
		changed = err == nil
		return err
	})
	if err != nil {
		return CallRecord{}, false, err
	}
	return out, changed, nil
}

func (s *PostgresStore) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM calls WHERE id = $1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ApplyEnrichment locks the row first so a concurrent delete either wins (ErrNotFound)
// or waits for this update; the record is never recreated. A second apply on the same
// record loses with ErrAlreadyEnriched.
func (s *PostgresStore) ApplyEnrichment(ctx context.Context, id int64, e Enrichment, now time.Time) (CallRecord, error) {
	var out CallRecord
	err := utils.WithTx(ctx, s.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		var status string
		if err := tx.QueryRowContext(ctx, `SELECT enrichment_status FROM calls WHERE id = $1 FOR UPDATE`, id).Scan(&status); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		if EnrichmentStatus(status) == EnrichmentSucceeded {
			return ErrAlreadyEnriched
		}
		symptoms := e.Symptoms
		if symptoms == nil {
			symptoms = []string{}
		}
		q := `
UPDATE calls
SET transcript = $2,
    name = $3,
    summary = $4,
    symptoms = $5,
    urgency = $6,
    callback_requested = $7,
    recording_archive_url = COALESCE($8, recording_archive_url),
    enrichment_status = 'succeeded',
    enrichment_attempts = $9,
    enrichment_error = NULL,
    enrichment_claimed_at = NULL,
    updated_at = $10
WHERE id = $1 AND enrichment_status <> 'succeeded'
RETURNING ` + callColumns
		var err error
		out, err = scanCall(tx.QueryRowContext(ctx, q,
			id,
			e.Transcript,
			e.CallerName,
			e.Summary,
			symptoms,
			string(e.Urgency),
			e.CallbackRequested,
			e.ArchiveURL,
			e.Attempts,
			now.UTC(),
		))
		return err
	})
	if err != nil {
		return CallRecord{}, err
	}
	return out, nil
}

func (s *PostgresStore) MarkEnrichmentFailed(ctx context.Context, id int64, reason string, attempts int, now time.Time) error {
	const q = `
UPDATE calls
SET enrichment_status = 'failed', enrichment_error = $2, enrichment_attempts = $3,
    enrichment_claimed_at = NULL, updated_at = $4
WHERE id = $1 AND enrichment_status <> 'succeeded'
`
	_, err := s.db.ExecContext(ctx, q, id, reason, attempts, now.UTC())
	return err
}

func (s *PostgresStore) MarkEnrichmentQueued(ctx context.Context, id int64, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE calls SET enrichment_queued_at = $2 WHERE id = $1`, id, at.UTC())
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// ClaimEnrichment takes a lease on a pending record. The conditional UPDATE makes the
// claim atomic across workers and processes.
func (s *PostgresStore) ClaimEnrichment(ctx context.Context, id int64, now, expiredBefore time.Time) (bool, error) {
	const q = `
UPDATE calls
SET enrichment_claimed_at = $2
WHERE id = $1
  AND enrichment_status = 'pending'
  AND (enrichment_claimed_at IS NULL OR enrichment_claimed_at < $3)
`
	res, err := s.db.ExecContext(ctx, q, id, now.UTC(), expiredBefore.UTC())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *PostgresStore) ReleaseEnrichment(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE calls SET enrichment_claimed_at = NULL WHERE id = $1`, id)
	return err
}

func (s *PostgresStore) ListStaleEnrichment(ctx context.Context, cutoff time.Time, limit int) ([]CallRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	q := `
SELECT ` + callColumns + `
FROM calls
WHERE enrichment_status = 'pending'
  AND recording_url IS NOT NULL
  AND (enrichment_queued_at IS NULL OR enrichment_queued_at < $1)
  AND (enrichment_claimed_at IS NULL OR enrichment_claimed_at < $1)
ORDER BY id
LIMIT $2`
	rows, err := s.db.QueryContext(ctx, q, cutoff.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CallRecord
	for rows.Next() {
		r, err := scanCall(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func countWhere(f CountFilter) (string, []any) {
	var (
		where []string
		args  []any
	)
	add := func(expr string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(expr, len(args)))
	}
	if !f.From.IsZero() {
		add("occurred_at >= $%d", f.From.UTC())
	}
	if !f.To.IsZero() {
		add("occurred_at < $%d", f.To.UTC())
	}
	if f.Urgency != "" {
		add("urgency = $%d", string(f.Urgency))
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if len(where) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(where, " AND "), args
}

func (s *PostgresStore) CountCalls(ctx context.Context, f CountFilter) (int, error) {
	cond, args := countWhere(f)
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM calls`+cond, args...).Scan(&n)
	return n, err
}

func (s *PostgresStore) SumDurations(ctx context.Context, from, to time.Time) (time.Duration, int, error) {
	cond, args := countWhere(CountFilter{From: from, To: to})
	var (
		sum int64
		n   int
	)
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(duration_seconds), 0), COUNT(*) FROM calls`+cond, args...).Scan(&sum, &n)
	if err != nil {
		return 0, 0, err
	}
	return time.Duration(sum) * time.Second, n, nil
}

func (s *PostgresStore) DailyCounts(ctx context.Context, from, to time.Time) ([]DayCount, error) {
	const q = `
SELECT date_trunc('day', occurred_at AT TIME ZONE 'UTC') AS day, COUNT(*)
FROM calls
WHERE occurred_at >= $1 AND occurred_at < $2
GROUP BY day
ORDER BY day
`
	rows, err := s.db.QueryContext(ctx, q, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DayCount
	for rows.Next() {
		var (
			day time.Time
			n   int
		)
		if err := rows.Scan(&day, &n); err != nil {
			return nil, err
		}
		out = append(out, DayCount{Day: UTCDay(day), Count: n})
	}
	return out, rows.Err()
}

func (s *PostgresStore) UrgencyCounts(ctx context.Context) (map[Urgency]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT urgency, COUNT(*) FROM calls GROUP BY urgency`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[Urgency]int, len(Urgencies))
	for rows.Next() {
		var (
			u Urgency
			n int
		)
		if err := rows.Scan(&u, &n); err != nil {
			return nil, err
		}
		out[u] = n
	}
	return out, rows.Err()
}

func (s *PostgresStore) SymptomCounts(ctx context.Context, limit int) ([]SymptomCount, error) {
	const q = `
SELECT symptom, COUNT(*) AS n
FROM calls, unnest(symptoms) AS symptom
GROUP BY symptom
ORDER BY n DESC, symptom ASC
LIMIT $1
`
	rows, err := s.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []SymptomCount{}
	for rows.Next() {
		var sc SymptomCount
		if err := rows.Scan(&sc.Symptom, &sc.Count); err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

var (
	_ Store = (*PostgresStore)(nil)
	_ Store = (*MemoryStore)(nil)
)
