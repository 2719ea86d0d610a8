package reports

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/ziadkadry99/hygaudit/internal/auditor"
	"github.com/ziadkadry99/hygaudit/internal/db"
	"github.com/ziadkadry99/hygaudit/internal/keylock"
)

const reportColumns = `id, audit_id, status, version_number, is_latest, report_data, error,
	auditor_snapshot, created_by_name, created_at, completed_at`

// Registry owns the set of report versions per audit and the single
// latest flag. Writes for one audit are serialized; different audits
// proceed independently.
type Registry struct {
	db     *db.DB
	locks  *keylock.Map
	logger zerolog.Logger
}

// NewRegistry creates a Registry backed by the given database.
func NewRegistry(database *db.DB, logger zerolog.Logger) *Registry {
	return &Registry{
		db:     database,
		locks:  keylock.New(),
		logger: logger.With().Str("component", "reports").Logger(),
	}
}

// CreatePending inserts the next version for auditID in the pending state.
// The version number comes from a counter on the audit row, so numbers are
// never reused even after the highest version is deleted.
func (r *Registry) CreatePending(ctx context.Context, auditID string, opts CreateOptions) (*Report, error) {
	unlock := r.locks.Lock(auditID)
	defer unlock()

	var snapshot sql.NullString
	if opts.AuditorSnapshot != nil {
		data, err := json.Marshal(opts.AuditorSnapshot)
		if err != nil {
			return nil, fmt.Errorf("marshalling auditor snapshot: %w", err)
		}
		snapshot = sql.NullString{String: string(data), Valid: true}
	}

	id := opts.ID
	if id == "" {
		id = uuid.New().String()
	}
	rep := &Report{
		ID:              id,
		AuditID:         auditID,
		Status:          StatusPending,
		CreatedByName:   opts.CreatedByName,
		CreatedAt:       time.Now().UTC(),
		AuditorSnapshot: cloneProfile(opts.AuditorSnapshot),
	}

	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		var active int
		err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM reports WHERE audit_id = ? AND status IN ('pending','generating')`,
			auditID).Scan(&active)
		if err != nil {
			return fmt.Errorf("checking in-flight versions: %w", err)
		}
		if active > 0 {
			return fmt.Errorf("%w: %s", ErrActiveVersion, auditID)
		}

		res, err := tx.ExecContext(ctx, `UPDATE audits SET report_seq = report_seq + 1 WHERE id = ?`, auditID)
		if err != nil {
			return fmt.Errorf("incrementing version counter: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: %s", ErrUnknownAudit, auditID)
		}
		if err := tx.QueryRowContext(ctx, `SELECT report_seq FROM audits WHERE id = ?`, auditID).Scan(&rep.VersionNumber); err != nil {
			return fmt.Errorf("reading version counter: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO reports (id, audit_id, status, version_number, is_latest, auditor_snapshot, created_by_name, created_at)
			VALUES (?, ?, ?, ?, 0, ?, ?, ?)`,
			rep.ID, rep.AuditID, string(rep.Status), rep.VersionNumber, snapshot, rep.CreatedByName, rep.CreatedAt)
		if err != nil {
			return fmt.Errorf("inserting report: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.logger.Debug().Str("audit_id", auditID).Int("version", rep.VersionNumber).Msg("report version created")
	return rep, nil
}

// Get returns one report version.
func (r *Registry) Get(ctx context.Context, reportID string) (*Report, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+reportColumns+` FROM reports WHERE id = ?`, reportID)
	rep, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrVersionNotFound, reportID)
	}
	if err != nil {
		return nil, fmt.Errorf("getting report: %w", err)
	}
	return rep, nil
}

// ListVersions returns every version of the audit, highest version first.
func (r *Registry) ListVersions(ctx context.Context, auditID string) ([]Report, error) {
	return r.query(ctx,
		`SELECT `+reportColumns+` FROM reports WHERE audit_id = ? ORDER BY version_number DESC`, auditID)
}

// ListInFlight returns every pending or generating version across all audits.
func (r *Registry) ListInFlight(ctx context.Context) ([]Report, error) {
	return r.query(ctx,
		`SELECT `+reportColumns+` FROM reports WHERE status IN ('pending','generating') ORDER BY created_at`)
}

// AuditIDs returns the ids of every audit that has at least one version.
func (r *Registry) AuditIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT audit_id FROM reports ORDER BY audit_id`)
	if err != nil {
		return nil, fmt.Errorf("listing audits with reports: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning audit id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// HasActive reports whether the audit has a pending or generating version.
func (r *Registry) HasActive(ctx context.Context, auditID string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reports WHERE audit_id = ? AND status IN ('pending','generating')`,
		auditID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking in-flight versions: %w", err)
	}
	return n > 0, nil
}

// Current returns the latest version of the audit. If done versions exist
// but none is flagged, the highest one is flagged and returned.
func (r *Registry) Current(ctx context.Context, auditID string) (*Report, error) {
	unlock := r.locks.Lock(auditID)
	defer unlock()

	var current *Report
	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		rep, err := latestTx(ctx, tx, auditID)
		if err != nil {
			return err
		}
		if rep != nil && rep.Status == StatusDone {
			current = rep
			return nil
		}

		repaired, err := r.repairTx(ctx, tx, auditID)
		if err != nil {
			return err
		}
		current = repaired
		return nil
	})
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoCurrent, auditID)
	}
	return current, nil
}

// RepairLatest re-establishes the latest flag for one audit and reports
// whether anything had to change.
func (r *Registry) RepairLatest(ctx context.Context, auditID string) (bool, error) {
	unlock := r.locks.Lock(auditID)
	defer unlock()

	changed := false
	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		before, err := latestTx(ctx, tx, auditID)
		if err != nil {
			return err
		}
		if before != nil && before.Status == StatusDone {
			return nil
		}
		after, err := r.repairTx(ctx, tx, auditID)
		if err != nil {
			return err
		}
		changed = before != nil || after != nil
		return nil
	})
	return changed, err
}

// MarkGenerating moves a pending version to generating.
func (r *Registry) MarkGenerating(ctx context.Context, reportID string) error {
	_, err := r.transition(ctx, reportID, func(tx *sql.Tx, rep *Report) error {
		if rep.Status != StatusPending {
			return fmt.Errorf("%w: %s is %s", ErrNotInFlight, reportID, rep.Status)
		}
		_, err := tx.ExecContext(ctx, `UPDATE reports SET status = 'generating' WHERE id = ?`, reportID)
		if err != nil {
			return fmt.Errorf("marking report generating: %w", err)
		}
		rep.Status = StatusGenerating
		return nil
	})
	return err
}

// Complete stores the artifact, marks the version done and promotes it to
// latest in one transaction.
func (r *Registry) Complete(ctx context.Context, reportID, reportData string) (*Report, error) {
	return r.transition(ctx, reportID, func(tx *sql.Tx, rep *Report) error {
		if !rep.Status.InFlight() {
			return fmt.Errorf("%w: %s is %s", ErrNotInFlight, reportID, rep.Status)
		}
		now := time.Now().UTC()
		_, err := tx.ExecContext(ctx,
			`UPDATE reports SET status = 'done', report_data = ?, error = NULL, completed_at = ? WHERE id = ?`,
			reportData, now, reportID)
		if err != nil {
			return fmt.Errorf("completing report: %w", err)
		}
		if err := promoteTx(ctx, tx, rep.AuditID, reportID); err != nil {
			return err
		}
		rep.Status = StatusDone
		rep.ReportData = reportData
		rep.CompletedAt = &now
		rep.IsLatest = true
		return nil
	})
}

// Fail records reason on an in-flight version. The latest flag is untouched.
func (r *Registry) Fail(ctx context.Context, reportID, reason string) (*Report, error) {
	return r.transition(ctx, reportID, func(tx *sql.Tx, rep *Report) error {
		if !rep.Status.InFlight() {
			return fmt.Errorf("%w: %s is %s", ErrNotInFlight, reportID, rep.Status)
		}
		now := time.Now().UTC()
		_, err := tx.ExecContext(ctx,
			`UPDATE reports SET status = 'error', error = ?, completed_at = ? WHERE id = ?`,
			reason, now, reportID)
		if err != nil {
			return fmt.Errorf("failing report: %w", err)
		}
		rep.Status = StatusError
		rep.Error = reason
		rep.CompletedAt = &now
		return nil
	})
}

// PromoteToLatest makes reportID the only latest version of its audit. It
// is the sole path besides Complete that sets the flag, and it is
// idempotent. A version deleted concurrently yields ErrVersionNotFound.
func (r *Registry) PromoteToLatest(ctx context.Context, reportID string) (*Report, error) {
	return r.transition(ctx, reportID, func(tx *sql.Tx, rep *Report) error {
		if rep.Status != StatusDone {
			return fmt.Errorf("%w: %s is %s", ErrNotDone, reportID, rep.Status)
		}
		if err := promoteTx(ctx, tx, rep.AuditID, reportID); err != nil {
			return err
		}
		rep.IsLatest = true
		return nil
	})
}

// DeleteVersion removes a version of auditID. When the latest version is
// removed the highest remaining done version is promoted and returned;
// promoted is nil when nothing was promoted.
func (r *Registry) DeleteVersion(ctx context.Context, auditID, reportID string) (promoted *Report, err error) {
	unlock := r.locks.Lock(auditID)
	defer unlock()

	err = r.db.WithTx(ctx, func(tx *sql.Tx) error {
		rep, err := getTx(ctx, tx, reportID)
		if err != nil {
			return err
		}
		if rep.AuditID != auditID {
			return fmt.Errorf("%w: %s does not belong to audit %s", ErrVersionNotFound, reportID, auditID)
		}
		if rep.Status.InFlight() {
			return fmt.Errorf("%w: %s", ErrVersionBusy, reportID)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM reports WHERE id = ?`, reportID); err != nil {
			return fmt.Errorf("deleting report: %w", err)
		}
		if !rep.IsLatest {
			return nil
		}

		next, err := highestDoneTx(ctx, tx, auditID)
		if err != nil || next == nil {
			return err
		}
		if err := promoteTx(ctx, tx, auditID, next.ID); err != nil {
			return err
		}
		next.IsLatest = true
		promoted = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return promoted, nil
}

// transition loads reportID under its audit's lock and applies fn inside a
// transaction. The row is re-read inside the transaction so a concurrent
// delete is observed as ErrVersionNotFound.
func (r *Registry) transition(ctx context.Context, reportID string, fn func(tx *sql.Tx, rep *Report) error) (*Report, error) {
	var auditID string
	err := r.db.QueryRowContext(ctx, `SELECT audit_id FROM reports WHERE id = ?`, reportID).Scan(&auditID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrVersionNotFound, reportID)
	}
	if err != nil {
		return nil, fmt.Errorf("looking up report: %w", err)
	}

	unlock := r.locks.Lock(auditID)
	defer unlock()

	var out *Report
	err = r.db.WithTx(ctx, func(tx *sql.Tx) error {
		rep, err := getTx(ctx, tx, reportID)
		if err != nil {
			return err
		}
		if err := fn(tx, rep); err != nil {
			return err
		}
		out = rep
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// repairTx flags the highest done version as latest, clearing any flag on
// a version that is not done. It returns the new latest, or nil.
func (r *Registry) repairTx(ctx context.Context, tx *sql.Tx, auditID string) (*Report, error) {
	next, err := highestDoneTx(ctx, tx, auditID)
	if err != nil {
		return nil, err
	}
	if next == nil {
		if _, err := tx.ExecContext(ctx, `UPDATE reports SET is_latest = 0 WHERE audit_id = ? AND is_latest = 1`, auditID); err != nil {
			return nil, fmt.Errorf("clearing latest flag: %w", err)
		}
		return nil, nil
	}

	r.logger.Warn().
		Err(ErrInvariantViolation).
		Str("audit_id", auditID).
		Int("version", next.VersionNumber).
		Msg("no done version flagged latest; repairing")

	if err := promoteTx(ctx, tx, auditID, next.ID); err != nil {
		return nil, err
	}
	next.IsLatest = true
	return next, nil
}

func (r *Registry) query(ctx context.Context, query string, args ...any) ([]Report, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying reports: %w", err)
	}
	defer rows.Close()

	var out []Report
	for rows.Next() {
		rep, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning report: %w", err)
		}
		out = append(out, *rep)
	}
	return out, rows.Err()
}

// promoteTx clears every other latest flag before setting the target so the
// unique latest index never sees two flagged rows.
func promoteTx(ctx context.Context, tx *sql.Tx, auditID, reportID string) error {
	if _, err := tx.ExecContext(ctx,
		`UPDATE reports SET is_latest = 0 WHERE audit_id = ? AND is_latest = 1 AND id != ?`,
		auditID, reportID); err != nil {
		return fmt.Errorf("clearing latest flag: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE reports SET is_latest = 1 WHERE id = ?`, reportID); err != nil {
		return fmt.Errorf("setting latest flag: %w", err)
	}
	return nil
}

func getTx(ctx context.Context, tx *sql.Tx, reportID string) (*Report, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+reportColumns+` FROM reports WHERE id = ?`, reportID)
	rep, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrVersionNotFound, reportID)
	}
	if err != nil {
		return nil, fmt.Errorf("reading report: %w", err)
	}
	return rep, nil
}

func latestTx(ctx context.Context, tx *sql.Tx, auditID string) (*Report, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+reportColumns+` FROM reports WHERE audit_id = ? AND is_latest = 1`, auditID)
	rep, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading latest report: %w", err)
	}
	return rep, nil
}

func highestDoneTx(ctx context.Context, tx *sql.Tx, auditID string) (*Report, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+reportColumns+` FROM reports
		WHERE audit_id = ? AND status = 'done' ORDER BY version_number DESC LIMIT 1`, auditID)
	rep, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading highest done report: %w", err)
	}
	return rep, nil
}

// scanner is implemented by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanReport(sc scanner) (*Report, error) {
	var (
		rep         Report
		status      string
		latest      int
		data, errS  sql.NullString
		snapshot    sql.NullString
		completedAt sql.NullTime
	)
	err := sc.Scan(&rep.ID, &rep.AuditID, &status, &rep.VersionNumber, &latest, &data, &errS,
		&snapshot, &rep.CreatedByName, &rep.CreatedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	rep.Status = Status(status)
	rep.IsLatest = latest != 0
	rep.ReportData = data.String
	rep.Error = errS.String
	if completedAt.Valid {
		t := completedAt.Time
		rep.CompletedAt = &t
	}
	if snapshot.Valid && snapshot.String != "" {
		var p auditor.Profile
		if err := json.Unmarshal([]byte(snapshot.String), &p); err != nil {
			return nil, fmt.Errorf("unmarshalling auditor snapshot: %w", err)
		}
		rep.AuditorSnapshot = &p
	}
	return &rep, nil
}

func cloneProfile(p *auditor.Profile) *auditor.Profile {
	if p == nil {
		return nil
	}
	cp := *p
	return &cp
}
