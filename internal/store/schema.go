package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	_ "embed"
)

//go:embed schema.sql
var schemaSQL string

// runLogVersion is stamped into metadata on first open.
const runLogVersion = 1

// ErrSchemaTooNew means the database was written by a newer newsdesk.
var ErrSchemaTooNew = errors.New("run log schema is newer than supported")

// migrate creates the run log tables and stamps or checks the schema version
// in one transaction.
func migrate(ctx context.Context, db *sql.DB) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply run log schema: %w", err)
	}

	version, found, err := readVersion(ctx, tx)
	if err != nil {
		return err
	}
	switch {
	case !found:
		if _, err = tx.ExecContext(ctx,
			"INSERT INTO metadata(key, value) VALUES('schema_version', ?)", strconv.Itoa(runLogVersion)); err != nil {
			return fmt.Errorf("stamp schema version: %w", err)
		}
	case version > runLogVersion:
		err = fmt.Errorf("%w: database has version %d, newsdesk supports %d", ErrSchemaTooNew, version, runLogVersion)
		return err
	}

	return tx.Commit()
}

func readVersion(ctx context.Context, tx *sql.Tx) (version int, found bool, err error) {
	var raw string
	err = tx.QueryRowContext(ctx, "SELECT value FROM metadata WHERE key = 'schema_version'").Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read schema version: %w", err)
	}
	version, err = strconv.Atoi(raw)
	if err != nil {
		return 0, false, fmt.Errorf("parse schema version %q: %w", raw, err)
	}
	return version, true, nil
}
