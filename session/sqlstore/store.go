package sqlstore

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/authlife/session"
)

//go:embed schema.sql
var schema string

const columns = `id, user_id, tenant_id, role, email, token, ip_address, user_agent,
	mfa_verified_at, created_at, last_activity_at, expires_at`

const (
	insertSQL = `INSERT INTO auth_sessions (` + columns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	selectByIDSQL    = `SELECT ` + columns + ` FROM auth_sessions WHERE id = $1`
	selectByTokenSQL = `SELECT ` + columns + ` FROM auth_sessions WHERE token = $1`
	selectByUserSQL  = `SELECT ` + columns + ` FROM auth_sessions WHERE user_id = $1 ORDER BY created_at`
	touchSQL         = `UPDATE auth_sessions
	SET last_activity_at = GREATEST(last_activity_at, $2),
	    expires_at = GREATEST(expires_at, COALESCE($3, expires_at))
	WHERE id = $1`
	markMFASQL       = `UPDATE auth_sessions SET mfa_verified_at = COALESCE(mfa_verified_at, $2) WHERE id = $1`
	deleteSQL        = `DELETE FROM auth_sessions WHERE id = $1`
	deleteByUserSQL  = `DELETE FROM auth_sessions WHERE user_id = $1`
	deleteExpiredSQL = `DELETE FROM auth_sessions WHERE expires_at <= $1`
)

// DB is the subset of *sql.DB used by Store. *sql.Tx satisfies it as well.
type DB interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store persists sessions in the auth_sessions table.
type Store struct {
	db DB
}

var _ session.Store = (*Store)(nil)

// New wraps db. Call Migrate once before first use.
func New(db DB) *Store {
	return &Store{db: db}
}

// Migrate creates the table and indexes if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("%w: migrate: %v", session.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *Store) Create(ctx context.Context, sess *session.Session) error {
	if sess == nil || sess.ID == "" {
		return errors.New("session id required")
	}
	_, err := s.db.ExecContext(ctx, insertSQL,
		sess.ID,
		sess.UserID,
		sess.TenantID,
		sess.Role,
		sess.Email,
		nullString(sess.Token),
		sess.IPAddress,
		sess.UserAgent,
		nullTime(sess.MFAVerified, sess.MFAVerifiedAt),
		sess.CreatedAt.UTC(),
		sess.LastActivityAt.UTC(),
		sess.ExpiresAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", session.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*session.Session, error) {
	return scanOne(s.db.QueryRowContext(ctx, selectByIDSQL, id))
}

func (s *Store) GetByToken(ctx context.Context, token string) (*session.Session, error) {
	if token == "" {
		return nil, session.ErrNotFound
	}
	return scanOne(s.db.QueryRowContext(ctx, selectByTokenSQL, token))
}

func (s *Store) Touch(ctx context.Context, id string, lastActivityAt, expiresAt time.Time) error {
	res, err := s.db.ExecContext(ctx, touchSQL, id, lastActivityAt.UTC(), nullTime(!expiresAt.IsZero(), expiresAt))
	if err != nil {
		return fmt.Errorf("%w: %v", session.ErrStoreUnavailable, err)
	}
	return requireRow(res)
}

func (s *Store) MarkMFAVerified(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, markMFASQL, id, at.UTC())
	if err != nil {
		return fmt.Errorf("%w: %v", session.ErrStoreUnavailable, err)
	}
	return requireRow(res)
}

func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, deleteSQL, id); err != nil {
		return fmt.Errorf("%w: %v", session.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *Store) DeleteByUser(ctx context.Context, userID string) (int, error) {
	return s.deleteCount(ctx, deleteByUserSQL, userID)
}

func (s *Store) ListByUser(ctx context.Context, userID string) ([]*session.Session, error) {
	rows, err := s.db.QueryContext(ctx, selectByUserSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", session.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	out := []*session.Session{}
	for rows.Next() {
		sess, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", session.ErrStoreUnavailable, err)
	}
	return out, nil
}

func (s *Store) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	return s.deleteCount(ctx, deleteExpiredSQL, now.UTC())
}

func (s *Store) deleteCount(ctx context.Context, query string, arg any) (int, error) {
	res, err := s.db.ExecContext(ctx, query, arg)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", session.ErrStoreUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", session.ErrStoreUnavailable, err)
	}
	return int(n), nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %v", session.ErrStoreUnavailable, err)
	}
	if n == 0 {
		return session.ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOne(row *sql.Row) (*session.Session, error) {
	sess, err := scan(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, session.ErrNotFound
		}
		return nil, err
	}
	return sess, nil
}

func scan(row scanner) (*session.Session, error) {
	var (
		sess  session.Session
		token sql.NullString
		mfa   sql.NullTime
	)
	err := row.Scan(
		&sess.ID,
		&sess.UserID,
		&sess.TenantID,
		&sess.Role,
		&sess.Email,
		&token,
		&sess.IPAddress,
		&sess.UserAgent,
		&mfa,
		&sess.CreatedAt,
		&sess.LastActivityAt,
		&sess.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", session.ErrStoreUnavailable, err)
	}

	sess.Token = token.String
	if mfa.Valid {
		sess.MFAVerified = true
		sess.MFAVerifiedAt = mfa.Time.UTC()
	}
	sess.CreatedAt = sess.CreatedAt.UTC()
	sess.LastActivityAt = sess.LastActivityAt.UTC()
	sess.ExpiresAt = sess.ExpiresAt.UTC()
	return &sess, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(valid bool, t time.Time) sql.NullTime {
	if !valid {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
