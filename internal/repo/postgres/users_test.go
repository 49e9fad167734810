package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/beststore/accounts/internal/domain/user"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var userCols = []string{"id", "first_name", "last_name", "email", "phone", "address", "password_hash", "role", "created_at"}

func TestUsersRepo_FindByEmail(t *testing.T) {
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		name      string
		setupMock func(mock pgxmock.PgxPoolIface)
		wantErr   error
		wantAny   bool
	}{
		{
			name: "found",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				rows := pgxmock.NewRows(userCols).
					AddRow(int64(3), "Ada", "Lovelace", "a@x.com", "", "1 Main St", "$2a$hash", "client", created)
				mock.ExpectQuery(`FROM users\s+WHERE email = \$1`).WithArgs("a@x.com").WillReturnRows(rows)
			},
		},
		{
			name: "not found",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`FROM users\s+WHERE email = \$1`).WithArgs("a@x.com").
					WillReturnRows(pgxmock.NewRows(userCols))
			},
			wantErr: user.ErrNotFound,
		},
		{
			name: "database error",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`FROM users\s+WHERE email = \$1`).WithArgs("a@x.com").
					WillReturnError(errors.New("connection refused"))
			},
			wantAny: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err, "failed to create mock")
			defer mock.Close()

			tt.setupMock(mock)

			repo := NewUsersRepo(mock, nil)
			got, err := repo.FindByEmail(context.Background(), "a@x.com")

			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.wantAny:
				require.Error(t, err)
				assert.NotErrorIs(t, err, user.ErrNotFound)
				assert.Contains(t, err.Error(), "connection refused")
			default:
				require.NoError(t, err)
				assert.Equal(t, int64(3), got.ID)
				assert.Equal(t, "client", got.Role)
				assert.Equal(t, "$2a$hash", got.PasswordHash)
				assert.Equal(t, created, got.CreatedAt)
			}

			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestUsersRepo_Create(t *testing.T) {
	u := user.User{
		FirstName:    "Ada",
		LastName:     "Lovelace",
		Email:        "a@x.com",
		Address:      "1 Main St",
		PasswordHash: "$2a$hash",
		Role:         user.RoleClient,
		CreatedAt:    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	t.Run("assigns id", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery(`INSERT INTO users`).
			WithArgs(u.FirstName, u.LastName, u.Email, u.Phone, u.Address, u.PasswordHash, u.Role, u.CreatedAt).
			WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(11)))

		got, err := NewUsersRepo(mock, nil).Create(context.Background(), u)
		require.NoError(t, err)
		assert.Equal(t, int64(11), got.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unique violation is email already used", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery(`INSERT INTO users`).
			WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: usersEmailConstraint})

		_, err = NewUsersRepo(mock, nil).Create(context.Background(), u)
		assert.ErrorIs(t, err, user.ErrEmailAlreadyUsed)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestUsersRepo_Save(t *testing.T) {
	u := user.User{ID: 5, FirstName: "Ada", Email: "a@x.com", PasswordHash: "h", Role: "client"}

	tests := []struct {
		name    string
		result  func(e *pgxmock.ExpectedExec)
		wantErr error
	}{
		{
			name:   "updated",
			result: func(e *pgxmock.ExpectedExec) { e.WillReturnResult(pgxmock.NewResult("UPDATE", 1)) },
		},
		{
			name:    "missing row",
			result:  func(e *pgxmock.ExpectedExec) { e.WillReturnResult(pgxmock.NewResult("UPDATE", 0)) },
			wantErr: user.ErrNotFound,
		},
		{
			name: "email taken",
			result: func(e *pgxmock.ExpectedExec) {
				e.WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: usersEmailConstraint})
			},
			wantErr: user.ErrEmailAlreadyUsed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()

			tt.result(mock.ExpectExec(`UPDATE users`).
				WithArgs(u.ID, u.FirstName, u.LastName, u.Email, u.Phone, u.Address, u.PasswordHash, u.Role))

			err = NewUsersRepo(mock, nil).Save(context.Background(), u)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestUsersRepo_CountByEmail(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM users`).WithArgs("a@x.com").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(1))

	n, err := NewUsersRepo(mock, nil).CountByEmail(context.Background(), "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUsersRepo_List(t *testing.T) {
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	t.Run("newest first", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		rows := pgxmock.NewRows(userCols).
			AddRow(int64(2), "Grace", "Hopper", "g@x.com", "", "2 Navy Rd", "hash-2", user.RoleAdmin, created).
			AddRow(int64(1), "Ada", "Lovelace", "a@x.com", "", "1 Main St", "hash-1", user.RoleClient, created)
		mock.ExpectQuery(`FROM users\s+ORDER BY id DESC`).WillReturnRows(rows)

		got, err := NewUsersRepo(mock, nil).List(context.Background())
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, int64(2), got[0].ID)
		assert.Equal(t, "a@x.com", got[1].Email)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("query error", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery(`FROM users\s+ORDER BY id DESC`).WillReturnError(errors.New("conn closed"))

		_, err = NewUsersRepo(mock, nil).List(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "conn closed")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
