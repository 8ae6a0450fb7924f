// Package store provides relational storage for reconciled DMP entity
// graphs.
//
// The schema (schema.sql) is dialect-neutral and runs unchanged on SQLite
// (the default, through mattn/go-sqlite3) and PostgreSQL (through the pgx
// database/sql driver). Queries are written with ? placeholders and rebound
// for PostgreSQL.
//
// # Conventions
//
//   - Reads return (nil, nil) when the row does not exist.
//   - Timestamps are stored as RFC 3339 TEXT in UTC.
//   - String lists and attribute bags are stored as JSON TEXT.
//   - Writes are upserts keyed by id and never change created_at.
//   - Child lists are ordered by created_at, id for deterministic output.
//
// # Uniqueness
//
// Storage-level unique indexes back the reconciliation rules:
//
//   - identifiers(category, value) for globally unique categories
//   - identifiers(category, value, provenance, owner) for all others
//   - affiliations(name_key) and contributors(email_key), case-folded
//   - one primary_contact role link per plan
//
// A write that violates one of these fails and rolls back the surrounding
// transaction.
//
// # Database Configuration (SQLite)
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
