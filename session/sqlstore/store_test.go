package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/authlife/session"
)

var sessionColumns = []string{
	"id", "user_id", "tenant_id", "role", "email", "token", "ip_address", "user_agent",
	"mfa_verified_at", "created_at", "last_activity_at", "expires_at",
}

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	return New(db), mock
}

func fixture(now time.Time) *session.Session {
	return &session.Session{
		ID:             "sid-1",
		UserID:         "u-1",
		TenantID:       "t-1",
		Role:           "member",
		Email:          "u@example.com",
		Token:          "sess_sid-1_1_ab",
		IPAddress:      "10.0.0.1",
		UserAgent:      "go-test",
		CreatedAt:      now,
		LastActivityAt: now,
		ExpiresAt:      now.Add(8 * time.Hour),
	}
}

func TestMigrate(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS auth_sessions").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.Migrate(context.Background()))
}

func TestCreate(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	sess := fixture(now)

	tests := []struct {
		name      string
		setupMock func(mock sqlmock.Sqlmock)
		wantErr   error
	}{
		{
			name: "inserts_row",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec("INSERT INTO auth_sessions").
					WithArgs(sess.ID, sess.UserID, sess.TenantID, sess.Role, sess.Email, sess.Token,
						sess.IPAddress, sess.UserAgent, nil, now, now, now.Add(8*time.Hour)).
					WillReturnResult(sqlmock.NewResult(0, 1))
			},
		},
		{
			name: "driver_failure_wraps_unavailable",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec("INSERT INTO auth_sessions").
					WillReturnError(errors.New("connection reset"))
			},
			wantErr: session.ErrStoreUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, mock := newMockStore(t)
			tt.setupMock(mock)

			err := store.Create(context.Background(), sess)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestGetScansRow(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	mfaAt := now.Add(time.Minute)
	want := fixture(now)

	mock.ExpectQuery("SELECT (.+) FROM auth_sessions WHERE id = ").
		WithArgs("sid-1").
		WillReturnRows(sqlmock.NewRows(sessionColumns).AddRow(
			want.ID, want.UserID, want.TenantID, want.Role, want.Email, want.Token,
			want.IPAddress, want.UserAgent, mfaAt, now, now, want.ExpiresAt,
		))

	got, err := store.Get(context.Background(), "sid-1")
	require.NoError(t, err)
	assert.Equal(t, want.UserID, got.UserID)
	assert.Equal(t, want.Token, got.Token)
	assert.True(t, got.MFAVerified)
	assert.True(t, got.MFAVerifiedAt.Equal(mfaAt))
	assert.True(t, got.ExpiresAt.Equal(want.ExpiresAt))
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT (.+) FROM auth_sessions WHERE id = ").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(sessionColumns))

	_, err := store.Get(context.Background(), "missing")
	require.ErrorIs(t, err, session.ErrNotFound)
}

func TestGetByTokenEmptySkipsQuery(t *testing.T) {
	store, _ := newMockStore(t)
	_, err := store.GetByToken(context.Background(), "")
	require.ErrorIs(t, err, session.ErrNotFound)
}

func TestGetByTokenNullTokenScansEmpty(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	mock.ExpectQuery("SELECT (.+) FROM auth_sessions WHERE token = ").
		WithArgs("tok").
		WillReturnRows(sqlmock.NewRows(sessionColumns).AddRow(
			"sid", "u", "", "", "", nil, "", "", nil, now, now, now.Add(time.Hour),
		))

	got, err := store.GetByToken(context.Background(), "tok")
	require.NoError(t, err)
	assert.Empty(t, got.Token)
	assert.False(t, got.MFAVerified)
}

func TestTouch(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		name      string
		expiresAt time.Time
		setupMock func(mock sqlmock.Sqlmock)
		wantErr   error
	}{
		{
			name:      "extends_with_greatest",
			expiresAt: now.Add(30 * time.Minute),
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec("UPDATE auth_sessions SET last_activity_at = GREATEST").
					WithArgs("sid-1", now, now.Add(30*time.Minute)).
					WillReturnResult(sqlmock.NewResult(0, 1))
			},
		},
		{
			name: "zero_expiry_passes_null",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec("UPDATE auth_sessions SET last_activity_at = GREATEST").
					WithArgs("sid-1", now, nil).
					WillReturnResult(sqlmock.NewResult(0, 1))
			},
		},
		{
			name:      "missing_row",
			expiresAt: now.Add(time.Minute),
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec("UPDATE auth_sessions SET last_activity_at = GREATEST").
					WillReturnResult(sqlmock.NewResult(0, 0))
			},
			wantErr: session.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, mock := newMockStore(t)
			tt.setupMock(mock)

			err := store.Touch(context.Background(), "sid-1", now, tt.expiresAt)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestMarkMFAVerifiedUsesCoalesce(t *testing.T) {
	store, mock := newMockStore(t)
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	mock.ExpectExec("SET mfa_verified_at = COALESCE").
		WithArgs("sid-1", at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.MarkMFAVerified(context.Background(), "sid-1", at))
}

func TestDeleteByUserReturnsRowsAffected(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("DELETE FROM auth_sessions WHERE user_id = ").
		WithArgs("u-1").
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := store.DeleteByUser(context.Background(), "u-1")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestDeleteIsIdempotent(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("DELETE FROM auth_sessions WHERE id = ").
		WithArgs("gone").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.Delete(context.Background(), "gone"))
}

func TestListByUser(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	mock.ExpectQuery("SELECT (.+) FROM auth_sessions WHERE user_id = ").
		WithArgs("u-1").
		WillReturnRows(sqlmock.NewRows(sessionColumns).
			AddRow("a", "u-1", "", "", "", "ta", "", "", nil, now, now, now.Add(time.Hour)).
			AddRow("b", "u-1", "", "", "", "tb", "", "", nil, now, now, now.Add(-time.Hour)))

	list, err := store.ListByUser(context.Background(), "u-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].ID)
	assert.Equal(t, "b", list[1].ID)
}

func TestListByUserQueryFailure(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT (.+) FROM auth_sessions WHERE user_id = ").
		WillReturnError(sql.ErrConnDone)

	_, err := store.ListByUser(context.Background(), "u-1")
	require.ErrorIs(t, err, session.ErrStoreUnavailable)
}

func TestDeleteExpired(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	mock.ExpectExec("DELETE FROM auth_sessions WHERE expires_at <= ").
		WithArgs(now).
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := store.DeleteExpired(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
