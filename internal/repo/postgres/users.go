package postgres

import (
	"context"
	"errors"

	"github.com/beststore/accounts/internal/domain/user"
	"github.com/beststore/accounts/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"
)

const usersEmailConstraint = "users_email_uniq"

const userColumns = `id, first_name, last_name, email, phone, address, password_hash, role, created_at`

type UsersRepo struct {
	db DB
	observer
}

func NewUsersRepo(db DB, prom *observability.Prom) *UsersRepo {
	return &UsersRepo{db: db, observer: observer{prom: prom}}
}

func scanUser(row pgx.Row) (user.User, error) {
	var u user.User

	err := row.Scan(
		&u.ID,
		&u.FirstName,
		&u.LastName,
		&u.Email,
		&u.Phone,
		&u.Address,
		&u.PasswordHash,
		&u.Role,
		&u.CreatedAt,
	)
	return u, err
}

// findOne runs a single-row lookup. A missing row is not a DB error, so it
// is reported outside the observed call.
func (r *UsersRepo) findOne(ctx context.Context, op, query string, arg any) (user.User, error) {
	var (
		u     user.User
		found = true
	)

	err := r.observe(op, func() error {
		var e error
		u, e = scanUser(r.db.QueryRow(ctx, query, arg))
		if errors.Is(e, pgx.ErrNoRows) {
			found = false
			return nil
		}
		return e
	})
	if err != nil {
		return user.User{}, oops.In("users_repo").Code("USER_LOOKUP_FAILED").With("operation", op).Wrap(err)
	}
	if !found {
		return user.User{}, user.ErrNotFound
	}
	return u, nil
}

func (r *UsersRepo) FindByEmail(ctx context.Context, email string) (user.User, error) {
	return r.findOne(ctx, "users.find_by_email", `SELECT `+userColumns+`
		FROM users
		WHERE email = $1`, email)
}

func (r *UsersRepo) FindByID(ctx context.Context, id int64) (user.User, error) {
	return r.findOne(ctx, "users.find_by_id", `SELECT `+userColumns+`
		FROM users
		WHERE id = $1`, id)
}

// List returns every user, newest first.
func (r *UsersRepo) List(ctx context.Context) ([]user.User, error) {
	var out []user.User

	err := r.observe("users.list", func() error {
		rows, err := r.db.Query(ctx, `SELECT `+userColumns+`
			FROM users
			ORDER BY id DESC`)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			u, err := scanUser(rows)
			if err != nil {
				return err
			}
			out = append(out, u)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, oops.In("users_repo").Code("USER_LIST_FAILED").Wrap(err)
	}
	return out, nil
}

func (r *UsersRepo) CountByEmail(ctx context.Context, email string) (n int, err error) {
	err = r.observe("users.count_by_email", func() error {
		return r.db.QueryRow(ctx, `SELECT COUNT(*) FROM users WHERE email = $1`, email).Scan(&n)
	})
	if err != nil {
		err = oops.In("users_repo").Code("USER_COUNT_FAILED").Wrap(err)
	}
	return
}

// Create inserts u and returns it with the storage-assigned id. The unique
// index on email is the authority on duplicates.
func (r *UsersRepo) Create(ctx context.Context, u user.User) (user.User, error) {
	err := r.observe("users.create", func() error {
		return r.db.QueryRow(ctx, `
			INSERT INTO users (first_name, last_name, email, phone, address, password_hash, role, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
			RETURNING id`,
			u.FirstName, u.LastName, u.Email, u.Phone, u.Address, u.PasswordHash, u.Role, u.CreatedAt,
		).Scan(&u.ID)
	})
	if err != nil {
		if isUniqueViolation(err, usersEmailConstraint) {
			return user.User{}, user.ErrEmailAlreadyUsed
		}
		return user.User{}, oops.In("users_repo").Code("USER_CREATE_FAILED").Wrap(err)
	}
	return u, nil
}

// Save persists the mutable columns of u. id and created_at never change.
func (r *UsersRepo) Save(ctx context.Context, u user.User) error {
	var affected int64

	err := r.observe("users.save", func() error {
		tag, e := r.db.Exec(ctx, `
			UPDATE users
			SET first_name = $2, last_name = $3, email = $4, phone = $5, address = $6, password_hash = $7, role = $8
			WHERE id = $1`,
			u.ID, u.FirstName, u.LastName, u.Email, u.Phone, u.Address, u.PasswordHash, u.Role,
		)
		affected = tag.RowsAffected()
		return e
	})
	if err != nil {
		if isUniqueViolation(err, usersEmailConstraint) {
			return user.ErrEmailAlreadyUsed
		}
		return oops.In("users_repo").Code("USER_SAVE_FAILED").With("user_id", u.ID).Wrap(err)
	}
	if affected == 0 {
		return user.ErrNotFound
	}
	return nil
}
