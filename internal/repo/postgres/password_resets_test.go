package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/beststore/accounts/internal/domain/reset"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/sethvargo/go-retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newResetsRepo(mock pgxmock.PgxPoolIface) *PasswordResetsRepo {
	r := NewPasswordResetsRepo(mock, nil)
	r.now = func() time.Time { return time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC) }
	r.backoff = func() retry.Backoff {
		return retry.WithMaxRetries(2, retry.NewConstant(time.Millisecond))
	}
	return r
}

func expectSupersede(mock pgxmock.PgxPoolIface, email string, insertErr error) {
	mock.ExpectBeginTx(pgx.TxOptions{})
	mock.ExpectExec(`DELETE FROM password_resets WHERE email = \$1`).WithArgs(email).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	insert := mock.ExpectExec(`INSERT INTO password_resets`).WithArgs(email, pgxmock.AnyArg(), pgxmock.AnyArg())
	if insertErr != nil {
		insert.WillReturnError(insertErr)
		mock.ExpectRollback()
		return
	}
	insert.WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()
}

func TestPasswordResetsRepo_IssueSupersedesInOneTx(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	expectSupersede(mock, "a@x.com", nil)

	tok, err := newResetsRepo(mock).Issue(context.Background(), "a@x.com")
	require.NoError(t, err)
	assert.Len(t, tok, 73)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPasswordResetsRepo_IssueRetriesOnRace(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	race := &pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: resetsEmailConstraint}
	expectSupersede(mock, "a@x.com", race)
	expectSupersede(mock, "a@x.com", nil)

	tok, err := newResetsRepo(mock).Issue(context.Background(), "a@x.com")
	require.NoError(t, err)
	assert.NotEmpty(t, tok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPasswordResetsRepo_IssueDoesNotRetryOtherErrors(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	expectSupersede(mock, "a@x.com", errors.New("disk full"))

	_, err = newResetsRepo(mock).Issue(context.Background(), "a@x.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPasswordResetsRepo_FindLooksUpByHash(t *testing.T) {
	created := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)

	t.Run("found", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery(`FROM password_resets\s+WHERE token_hash = \$1`).
			WithArgs(reset.HashToken("raw-token")).
			WillReturnRows(pgxmock.NewRows([]string{"id", "email", "created_at"}).AddRow(int64(9), "a@x.com", created))

		req, err := newResetsRepo(mock).Find(context.Background(), "raw-token")
		require.NoError(t, err)
		assert.Equal(t, reset.Request{ID: 9, Email: "a@x.com", Token: "raw-token", CreatedAt: created}, req)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery(`FROM password_resets`).
			WillReturnRows(pgxmock.NewRows([]string{"id", "email", "created_at"}))

		_, err = newResetsRepo(mock).Find(context.Background(), "raw-token")
		assert.ErrorIs(t, err, reset.ErrNotFound)
	})
}

func TestPasswordResetsRepo_DeleteGate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	hash := reset.HashToken("raw-token")
	mock.ExpectExec(`DELETE FROM password_resets WHERE token_hash = \$1`).WithArgs(hash).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec(`DELETE FROM password_resets WHERE token_hash = \$1`).WithArgs(hash).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	repo := newResetsRepo(mock)
	assert.NoError(t, repo.Delete(context.Background(), "raw-token"))
	assert.ErrorIs(t, repo.Delete(context.Background(), "raw-token"), reset.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPasswordResetsRepo_PurgeOlderThan(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	cutoff := time.Date(2026, 5, 1, 7, 0, 0, 0, time.UTC)
	mock.ExpectExec(`DELETE FROM password_resets WHERE created_at <= \$1`).WithArgs(cutoff).
		WillReturnResult(pgxmock.NewResult("DELETE", 4))

	n, err := newResetsRepo(mock).PurgeOlderThan(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
