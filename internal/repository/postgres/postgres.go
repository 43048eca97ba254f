package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/osdentaire/agenda-api/internal/repository"
)

type schedulingRepository struct {
	// db is set only on the root repository; transaction-bound copies carry
	// the tx in ext and a nil db.
	db  *sqlx.DB
	ext sqlx.ExtContext
}

func NewSchedulingRepository(db *sqlx.DB) repository.SchedulingRepository {
	return &schedulingRepository{db: db, ext: db}
}

// InTx runs fn inside a serializable transaction. Serializable isolation is
// what makes the overlap-check-then-insert sequence in booking safe against a
// concurrent booking of the same provider/room window; read committed would
// let both transactions pass the check.
func (r *schedulingRepository) InTx(ctx context.Context, fn func(repository.SchedulingRepository) error) error {
	if r.db == nil {
		// Already transaction-bound; nested units of work join the outer tx.
		return fn(r)
	}

	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(&schedulingRepository{ext: tx}); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit()
}
