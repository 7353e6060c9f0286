// Package postgres implements the claim store on PostgreSQL using pgx/v5
// with raw SQL and embedded migrations.
//
// Every lock operation is a single conditional UPDATE. A claim succeeds
// only when the row is pending and its lock is absent or older than the
// stale cutoff, so PostgreSQL's row-level write locking arbitrates between
// competing processes without advisory locks or SELECT FOR UPDATE.
package postgres
