package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/beststore/accounts/internal/domain/reset"
	"github.com/beststore/accounts/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

const resetsEmailConstraint = "password_resets_email_uniq"

type PasswordResetsRepo struct {
	db  DB
	now func() time.Time
	observer

	// retries when two issues for the same email race on the unique index
	backoff func() retry.Backoff
}

func NewPasswordResetsRepo(db DB, prom *observability.Prom) *PasswordResetsRepo {
	return &PasswordResetsRepo{
		db:       db,
		now:      time.Now,
		observer: observer{prom: prom},
		backoff: func() retry.Backoff {
			return retry.WithMaxRetries(3, retry.NewExponential(10*time.Millisecond))
		},
	}
}

// Issue replaces any outstanding request for email with a fresh one and
// returns its raw token. Delete and insert commit together.
func (r *PasswordResetsRepo) Issue(ctx context.Context, email string) (string, error) {
	var token string

	err := retry.Do(ctx, r.backoff(), func(ctx context.Context) error {
		req := reset.New(email, r.now())

		err := r.supersede(ctx, req)
		if isUniqueViolation(err, resetsEmailConstraint) {
			return retry.RetryableError(err)
		}
		if err != nil {
			return err
		}

		token = req.Token
		return nil
	})
	if err != nil {
		return "", oops.In("password_resets_repo").Code("RESET_ISSUE_FAILED").With("operation", "supersede").Wrap(err)
	}

	return token, nil
}

func (r *PasswordResetsRepo) supersede(ctx context.Context, req reset.Request) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	err = r.observe("password_resets.delete_by_email", func() error {
		_, e := tx.Exec(ctx, `DELETE FROM password_resets WHERE email = $1`, req.Email)
		return e
	})
	if err != nil {
		return err
	}

	err = r.observe("password_resets.insert", func() error {
		_, e := tx.Exec(ctx, `
			INSERT INTO password_resets (email, token_hash, created_at)
			VALUES ($1,$2,$3)`,
			req.Email, reset.HashToken(req.Token), req.CreatedAt,
		)
		return e
	})
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *PasswordResetsRepo) Find(ctx context.Context, token string) (reset.Request, error) {
	var (
		req   reset.Request
		found = true
	)

	err := r.observe("password_resets.find", func() error {
		e := r.db.QueryRow(ctx, `
			SELECT id, email, created_at
			FROM password_resets
			WHERE token_hash = $1`,
			reset.HashToken(token),
		).Scan(&req.ID, &req.Email, &req.CreatedAt)
		if errors.Is(e, pgx.ErrNoRows) {
			found = false
			return nil
		}
		return e
	})
	if err != nil {
		return reset.Request{}, oops.In("password_resets_repo").Code("RESET_LOOKUP_FAILED").Wrap(err)
	}
	if !found {
		return reset.Request{}, reset.ErrNotFound
	}

	req.Token = token
	return req, nil
}

// Delete is the single-use gate: exactly one caller deletes the row, every
// later caller gets reset.ErrNotFound.
func (r *PasswordResetsRepo) Delete(ctx context.Context, token string) error {
	var affected int64

	err := r.observe("password_resets.delete", func() error {
		tag, e := r.db.Exec(ctx, `DELETE FROM password_resets WHERE token_hash = $1`, reset.HashToken(token))
		affected = tag.RowsAffected()
		return e
	})
	if err != nil {
		return oops.In("password_resets_repo").Code("RESET_DELETE_FAILED").Wrap(err)
	}
	if affected == 0 {
		return reset.ErrNotFound
	}
	return nil
}

func (r *PasswordResetsRepo) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	var purged int64

	err := r.observe("password_resets.purge", func() error {
		tag, e := r.db.Exec(ctx, `DELETE FROM password_resets WHERE created_at <= $1`, cutoff)
		purged = tag.RowsAffected()
		return e
	})
	if err != nil {
		return 0, oops.In("password_resets_repo").Code("RESET_PURGE_FAILED").Wrap(err)
	}
	return purged, nil
}
