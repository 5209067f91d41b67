package postgres

import (
	"context"
	"time"

	"github.com/flexprice/couponengine/internal/domain/reconciliation"
	"github.com/flexprice/couponengine/internal/logger"
	"github.com/flexprice/couponengine/internal/postgres"
	"github.com/jmoiron/sqlx"
)

type lockRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

// NewLockRepository returns the maintenance_locks table backed lock
func NewLockRepository(db *postgres.DB, logger *logger.Logger) reconciliation.LockRepository {
	return &lockRepository{
		db:     db,
		logger: logger,
	}
}

type lockRow struct {
	Name         string    `db:"name"`
	Holder       string    `db:"holder"`
	LeaseVersion int64     `db:"lease_version"`
	AcquiredAt   time.Time `db:"acquired_at"`
	ExpiresAt    time.Time `db:"expires_at"`
}

// TryAcquire inserts the lock row or takes over an expired lease. The takeover
// compares lease_version so two runs racing for an expired lock cannot both win.
func (r *lockRepository) TryAcquire(ctx context.Context, name, holder string, ttl time.Duration) (bool, error) {
	q := r.db.GetQuerier(ctx)
	now := time.Now().UTC()

	insert := q.Rebind(`
		INSERT INTO maintenance_locks (name, holder, lease_version, acquired_at, expires_at)
		VALUES (?, ?, 1, ?, ?)
		ON CONFLICT (name) DO NOTHING`)
	result, err := q.ExecContext(ctx, insert, name, holder, now, now.Add(ttl))
	if err != nil {
		return false, dbError(err, "Failed to acquire lock")
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 1 {
		return true, nil
	}

	var current lockRow
	if err := sqlx.GetContext(ctx, q, &current, q.Rebind(`SELECT * FROM maintenance_locks WHERE name = ?`), name); err != nil {
		if isNoRows(err) {
			// released between the insert and the read
			return false, nil
		}
		return false, dbError(err, "Failed to read lock")
	}

	if current.Holder != holder && current.ExpiresAt.After(now) {
		r.logger.Infow("lock held by another holder",
			"lock", name,
			"holder", current.Holder,
			"expires_at", current.ExpiresAt,
		)
		return false, nil
	}

	takeover := q.Rebind(`
		UPDATE maintenance_locks
		SET holder = ?, lease_version = lease_version + 1, acquired_at = ?, expires_at = ?
		WHERE name = ? AND lease_version = ?`)
	result, err = q.ExecContext(ctx, takeover, holder, now, now.Add(ttl), name, current.LeaseVersion)
	if err != nil {
		return false, dbError(err, "Failed to acquire lock")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, dbError(err, "Failed to acquire lock")
	}

	if rows == 1 && current.Holder != holder {
		r.logger.Warnw("took over expired lock", "lock", name, "previous_holder", current.Holder, "holder", holder)
	}
	return rows == 1, nil
}

func (r *lockRepository) Release(ctx context.Context, name, holder string) error {
	q := r.db.GetQuerier(ctx)
	if _, err := q.ExecContext(ctx, q.Rebind(`DELETE FROM maintenance_locks WHERE name = ? AND holder = ?`), name, holder); err != nil {
		return dbError(err, "Failed to release lock")
	}
	return nil
}
