// Package sqlstore is a PostgreSQL implementation of session.Store over
// database/sql. Any driver registered under database/sql works; the daemon
// uses the pgx stdlib driver.
//
// Forward-only updates are expressed in SQL: Touch uses GREATEST for both
// last_activity_at and expires_at, and MarkMFAVerified uses COALESCE so the
// first verification timestamp wins.
//
// # What this package must NOT do
//
//   - Decide session validity. Expired rows are returned as stored.
//   - Manage connection pools. Callers own the *sql.DB.
package sqlstore
