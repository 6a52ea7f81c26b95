package pgdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/arkade-os/bvsnap/internal/infrastructure/db/postgres/sqlc/queries"
	"github.com/lib/pq"
	log "github.com/sirupsen/logrus"
)

const (
	driverName = "postgres"
	maxRetries = 5
	retryDelay = 100 * time.Millisecond

	// maintenanceDb is the database every postgres server ships with, used to
	// issue CREATE DATABASE when the target one is missing.
	maintenanceDb = "postgres"

	invalidCatalogName   = "3D000"
	serializationFailure = "40001"
	deadlockDetected     = "40P01"
)

// OpenDb connects to the object database.
// With autoCreate the database named in the dsn is created when the server
// reports it does not exist.
func OpenDb(dsn string, autoCreate bool) (*sql.DB, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres db: %v", err)
	}
	db.SetMaxOpenConns(16)
	db.SetConnMaxIdleTime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = db.PingContext(ctx)
	if err != nil && autoCreate && hasCode(err, invalidCatalogName) {
		log.Info("postgres object database does not exist, creating it...")
		if err = createDb(ctx, dsn); err == nil {
			err = db.PingContext(ctx)
		}
	}
	if err != nil {
		//nolint:all
		db.Close()
		return nil, fmt.Errorf("unable to establish connection with db: %v", err)
	}
	return db, nil
}

func createDb(ctx context.Context, dsn string) error {
	rootDsn, dbName, err := splitDsn(dsn)
	if err != nil {
		return err
	}

	rootDb, err := sql.Open(driverName, rootDsn)
	if err != nil {
		return err
	}
	// nolint:all
	defer rootDb.Close()

	query := "CREATE DATABASE " + pq.QuoteIdentifier(dbName)
	log.Debugf("executing query '%s'", query)
	if _, err := rootDb.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create database %s: %w", dbName, err)
	}
	return nil
}

// splitDsn returns the dsn pointed at the maintenance database together with
// the name of the database the original dsn selects. Both url and key/value
// dsns are supported.
func splitDsn(dsn string) (string, string, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", "", err
		}
		dbName := strings.TrimPrefix(u.Path, "/")
		if dbName == "" {
			return "", "", fmt.Errorf("cannot auto-create when database name is empty")
		}
		u.Path = "/" + maintenanceDb
		return u.String(), dbName, nil
	}

	if strings.ContainsAny(dsn, `'\`) {
		return "", "", fmt.Errorf("cannot auto-create database from a dsn with quoted values")
	}
	fields := strings.Fields(dsn)
	dbName := ""
	for i, field := range fields {
		key, value, ok := strings.Cut(field, "=")
		if !ok {
			return "", "", fmt.Errorf("invalid dsn field %q", field)
		}
		if key == "dbname" {
			dbName = value
			fields[i] = "dbname=" + maintenanceDb
		}
	}
	if dbName == "" {
		return "", "", fmt.Errorf("cannot auto-create when database name is empty")
	}
	return strings.Join(fields, " "), dbName, nil
}

// execTx runs txBody in a transaction, retrying it from scratch when postgres
// aborts it because of a concurrent writer.
func execTx(
	ctx context.Context, db *sql.DB, txBody func(*queries.Queries) error,
) error {
	return retry(ctx, func() error {
		return runTx(ctx, db, txBody)
	})
}

func retry(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := range maxRetries {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryDelay * time.Duration(attempt)):
			}
		}

		lastErr = fn()
		if lastErr == nil || !isRetryableError(lastErr) {
			return lastErr
		}
		log.WithError(lastErr).Debugf("retrying postgres transaction (attempt %d)", attempt+1)
	}
	return lastErr
}

func runTx(ctx context.Context, db *sql.DB, txBody func(*queries.Queries) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := txBody(queries.New(db).WithTx(tx)); err != nil {
		//nolint:all
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func isRetryableError(err error) bool {
	return hasCode(err, serializationFailure) || hasCode(err, deadlockDetected)
}

func hasCode(err error, code pq.ErrorCode) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == code
}
