package repo

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ghostid.org/internal/entity"
	"ghostid.org/internal/store"
)

func testHash(t *testing.T, password string) string {
	t.Helper()
	u := &entity.User{}
	require.NoError(t, u.SetPassword(password))
	return u.PasswordHash
}

// addUserRowAuth appends a users row with authentication state set.
func addUserRowAuth(rows *sqlmock.Rows, id, username, email, hash string, failed, logins int, lockedUntil *time.Time) *sqlmock.Rows {
	now := time.Now().UTC()
	return rows.AddRow(
		id, username, email, hash,
		nil, nil, nil, nil, nil,
		true, false, false,
		nil, logins, failed, lockedUntil,
		false, nil,
		[]byte("{}"), []byte("{}"),
		now, now,
		false, nil,
		nil, nil, 1, []byte("[]"),
	)
}

func expectUserByUsername(mock sqlmock.Sqlmock, username string, rows *sqlmock.Rows) {
	mock.ExpectQuery(regexp.QuoteMeta(
		"select "+userColumns()+" from users where username = $1 limit 1")).
		WithArgs(username).
		WillReturnRows(rows)
}

func expectNoUserByUsername(mock sqlmock.Sqlmock, username string) {
	mock.ExpectQuery(regexp.QuoteMeta(
		"select "+userColumns()+" from users where username = $1 limit 1")).
		WithArgs(username).
		WillReturnError(sql.ErrNoRows)
}

func expectNoUserByEmail(mock sqlmock.Sqlmock, email string) {
	mock.ExpectQuery(regexp.QuoteMeta(
		"select "+userColumns()+" from users where email = $1 limit 1")).
		WithArgs(email).
		WillReturnError(sql.ErrNoRows)
}

func TestAuthenticateSuccessResetsCounterNotLock(t *testing.T) {
	sess, mock := blockingMock(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r := NewUserRepository(sess, WithClock(func() time.Time { return now }))

	hash := testHash(t, "s3cret")
	lock := now.Add(10 * time.Minute)
	rows := sqlmock.NewRows(entity.Users().Columns)
	addUserRowAuth(rows, "u-1", "alice", "a@x.com", hash, 3, 7, &lock)
	expectUserByUsername(mock, "alice", rows)

	mock.ExpectExec(regexp.QuoteMeta(
		"update users set last_login = $1, login_count = $2, failed_login_count = 0, updated_at = $3 where id = $4")).
		WithArgs(now, 8, now, "u-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	u, ok, err := r.Authenticate("alice", "s3cret")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 0, u.FailedLoginCount)
	assert.Equal(t, 8, u.LoginCount)
	require.NotNil(t, u.LastLogin)
	assert.True(t, u.LastLogin.Equal(now))
	require.NotNil(t, u.LockedUntil, "a successful login resets the counter, not the lock")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuthenticateFailureLocksAtThreshold(t *testing.T) {
	sess, mock := blockingMock(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r := NewUserRepository(sess, WithClock(func() time.Time { return now }))

	hash := testHash(t, "s3cret")
	rows := sqlmock.NewRows(entity.Users().Columns)
	addUserRowAuth(rows, "u-1", "alice", "a@x.com", hash, 4, 0, nil)
	expectUserByUsername(mock, "alice", rows)

	lock := now.Add(30 * time.Minute)
	mock.ExpectExec(regexp.QuoteMeta(
		"update users set failed_login_count = $1, locked_until = $2, updated_at = $3 where id = $4")).
		WithArgs(5, lock, now, "u-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	u, ok, err := r.Authenticate("alice", "wrong")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, u)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuthenticateCounterHasNoCap(t *testing.T) {
	sess, mock := blockingMock(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r := NewUserRepository(sess, WithClock(func() time.Time { return now }))

	hash := testHash(t, "s3cret")
	lock := now.Add(25 * time.Minute)
	rows := sqlmock.NewRows(entity.Users().Columns)
	addUserRowAuth(rows, "u-1", "alice", "a@x.com", hash, 5, 0, &lock)
	expectUserByUsername(mock, "alice", rows)

	newLock := now.Add(30 * time.Minute)
	mock.ExpectExec(regexp.QuoteMeta(
		"update users set failed_login_count = $1, locked_until = $2, updated_at = $3 where id = $4")).
		WithArgs(6, newLock, now, "u-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	_, ok, err := r.Authenticate("alice", "wrong")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuthenticateUnknownIdentifier(t *testing.T) {
	sess, mock := blockingMock(t)
	r := NewUserRepository(sess)

	expectNoUserByUsername(mock, "ghost")
	expectNoUserByEmail(mock, "ghost")

	u, ok, err := r.Authenticate("ghost", "whatever")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, u)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuthenticateEmailFallback(t *testing.T) {
	sess, mock := blockingMock(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r := NewUserRepository(sess, WithClock(func() time.Time { return now }))

	hash := testHash(t, "s3cret")
	expectNoUserByUsername(mock, "a@x.com")
	rows := sqlmock.NewRows(entity.Users().Columns)
	addUserRowAuth(rows, "u-1", "alice", "a@x.com", hash, 0, 0, nil)
	mock.ExpectQuery(regexp.QuoteMeta(
		"select "+userColumns()+" from users where email = $1 limit 1")).
		WithArgs("a@x.com").
		WillReturnRows(rows)
	mock.ExpectExec(regexp.QuoteMeta("update users set last_login")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	u, ok, err := r.Authenticate("a@x.com", "s3cret")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "alice", u.Username)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuthenticateRejectLockedOption(t *testing.T) {
	sess, mock := blockingMock(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r := NewUserRepository(sess,
		WithClock(func() time.Time { return now }),
		WithRejectLockedUsers())

	hash := testHash(t, "s3cret")
	lock := now.Add(10 * time.Minute)
	rows := sqlmock.NewRows(entity.Users().Columns)
	addUserRowAuth(rows, "u-1", "alice", "a@x.com", hash, 5, 0, &lock)
	expectUserByUsername(mock, "alice", rows)

	// No counter update happens for a rejected lock, even with the right password.
	u, ok, err := r.Authenticate("alice", "s3cret")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, u)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuthenticateModeMismatch(t *testing.T) {
	sess, _ := nonBlockingMock(t)
	r := NewUserRepository(sess)
	_, _, err := r.Authenticate("alice", "pw")
	assert.ErrorIs(t, err, store.ErrModeMismatch)

	blocking, _ := blockingMock(t)
	r = NewUserRepository(blocking)
	_, _, err = r.AuthenticateContext(context.Background(), "alice", "pw")
	assert.ErrorIs(t, err, store.ErrModeMismatch)
}

func TestUniqueLookupScenario(t *testing.T) {
	sess, mock := blockingMock(t)
	r := NewUserRepository(sess)

	rows := sqlmock.NewRows(entity.Users().Columns)
	addUserRowAuth(rows, "u-1", "alice", "a@x.com", "h", 0, 0, nil)
	expectUserByUsername(mock, "alice", rows)

	u, found, err := r.GetByUsername("alice")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "u-1", u.ID)

	emailRows := sqlmock.NewRows(entity.Users().Columns)
	addUserRowAuth(emailRows, "u-1", "alice", "a@x.com", "h", 0, 0, nil)
	mock.ExpectQuery(regexp.QuoteMeta(
		"select "+userColumns()+" from users where email = $1 limit 1")).
		WithArgs("a@x.com").
		WillReturnRows(emailRows)

	byEmail, found, err := r.GetByEmail("a@x.com")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, u.ID, byEmail.ID)

	expectNoUserByUsername(mock, "bob")
	_, found, err = r.GetByUsername("bob")
	require.NoError(t, err)
	assert.False(t, found)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttachRoles(t *testing.T) {
	sess, mock := nonBlockingMock(t)
	r := NewUserRepository(sess)

	now := time.Now().UTC()
	roleCols := entity.Roles().Columns
	mock.ExpectQuery("select r.* from roles r join user_roles").
		WithArgs("u-1").
		WillReturnRows(sqlmock.NewRows(roleCols).
			AddRow("role-1", "admin", nil, true, 100, now, now, nil, nil, 1, []byte("[]")))

	permCols := append([]string{"role_id"}, entity.Permissions().Columns...)
	mock.ExpectQuery("select rp.role_id, p.* from permissions p join role_permissions").
		WithArgs("role-1").
		WillReturnRows(sqlmock.NewRows(permCols).
			AddRow("role-1", "p-1", "users:write", "users", "write", nil, now, now))

	u := &entity.User{ID: "u-1"}
	require.NoError(t, r.AttachRolesContext(context.Background(), u))
	require.Len(t, u.Roles, 1)
	assert.True(t, u.HasRole("admin"))
	assert.True(t, u.HasPermission("users:write"))
	assert.False(t, u.HasPermission("users:delete"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordAudit(t *testing.T) {
	sess, mock := blockingMock(t)
	r := NewUserRepository(sess)

	rows := sqlmock.NewRows(entity.Users().Columns)
	addUserRowAuth(rows, "u-1", "alice", "a@x.com", "h", 0, 0, nil)
	mock.ExpectQuery(regexp.QuoteMeta(
		"select "+userColumns()+" from users where id = $1")).
		WithArgs("u-1").
		WillReturnRows(rows)
	mock.ExpectExec(regexp.QuoteMeta("update users set")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	found, err := r.RecordAudit("u-1", "password_changed", "admin-1", map[string]any{"reason": "reset"})
	require.NoError(t, err)
	assert.True(t, found)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRoleByName(t *testing.T) {
	sess, mock := blockingMock(t)
	r := NewRoleRepository(sess)

	now := time.Now().UTC()
	roleCols := entity.Roles().Columns
	mock.ExpectQuery(regexp.QuoteMeta("from roles where name = $1 limit 1")).
		WithArgs("admin").
		WillReturnRows(sqlmock.NewRows(roleCols).
			AddRow("role-1", "admin", nil, true, 100, now, now, nil, nil, 1, []byte("[]")))

	role, found, err := r.GetByName("admin")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "role-1", role.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
