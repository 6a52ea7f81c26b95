package db

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/arkade-os/bvsnap/internal/core/domain"
	"github.com/arkade-os/bvsnap/internal/core/ports"
	badgerdb "github.com/arkade-os/bvsnap/internal/infrastructure/db/badger"
	inmemorydb "github.com/arkade-os/bvsnap/internal/infrastructure/db/inmemory"
	pgdb "github.com/arkade-os/bvsnap/internal/infrastructure/db/postgres"
	sqlitedb "github.com/arkade-os/bvsnap/internal/infrastructure/db/sqlite"
	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	log "github.com/sirupsen/logrus"
)

//go:embed sqlite/migration/*
var migrations embed.FS

//go:embed postgres/migration/*
var pgMigration embed.FS

var objectStoreTypes = map[string]func(...interface{}) (domain.ObjectRepository, error){
	"inmemory": inmemorydb.NewObjectRepository,
	"badger":   badgerdb.NewObjectRepository,
	"sqlite":   sqlitedb.NewObjectRepository,
	"postgres": pgdb.NewObjectRepository,
}

const (
	sqliteDbFile = "sqlite.db"
)

type ServiceConfig struct {
	DataStoreType   string
	DataStoreConfig []interface{}
}

type service struct {
	objectStore domain.ObjectRepository
}

func NewService(config ServiceConfig) (ports.RepoManager, error) {
	objectStoreFactory, ok := objectStoreTypes[config.DataStoreType]
	if !ok {
		return nil, fmt.Errorf("invalid data store type: %s", config.DataStoreType)
	}

	var objectStore domain.ObjectRepository
	var err error

	switch config.DataStoreType {
	case "inmemory", "badger":
		objectStore, err = objectStoreFactory(config.DataStoreConfig...)
		if err != nil {
			return nil, fmt.Errorf("failed to open object store: %s", err)
		}

	case "postgres":
		if len(config.DataStoreConfig) != 2 {
			return nil, fmt.Errorf("invalid data store config for postgres")
		}

		dsn, ok := config.DataStoreConfig[0].(string)
		if !ok {
			return nil, fmt.Errorf("invalid DSN for postgres")
		}

		autoCreate, ok := config.DataStoreConfig[1].(bool)
		if !ok {
			return nil, fmt.Errorf("invalid autocreate flag for postgres")
		}

		db, err := pgdb.OpenDb(dsn, autoCreate)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres db: %s", err)
		}

		pgDriver, err := migratepg.WithInstance(db, &migratepg.Config{})
		if err != nil {
			return nil, fmt.Errorf("failed to init postgres migration driver: %s", err)
		}

		source, err := iofs.New(pgMigration, "postgres/migration")
		if err != nil {
			return nil, fmt.Errorf("failed to embed postgres migrations: %s", err)
		}

		m, err := migrate.NewWithInstance("iofs", source, "postgres", pgDriver)
		if err != nil {
			return nil, fmt.Errorf("failed to create postgres migration instance: %s", err)
		}

		if err := runMigrations(m); err != nil {
			return nil, fmt.Errorf("failed to run postgres migrations: %s", err)
		}

		objectStore, err = objectStoreFactory(db)
		if err != nil {
			return nil, fmt.Errorf("failed to open object store: %s", err)
		}

	case "sqlite":
		if len(config.DataStoreConfig) != 1 {
			return nil, fmt.Errorf("invalid data store config")
		}

		baseDir, ok := config.DataStoreConfig[0].(string)
		if !ok {
			return nil, fmt.Errorf("invalid base directory")
		}

		dbFile := filepath.Join(baseDir, sqliteDbFile)
		db, err := sqlitedb.OpenDb(dbFile)
		if err != nil {
			return nil, fmt.Errorf("failed to open db: %s", err)
		}

		if err := migrateSqlite(db); err != nil {
			return nil, err
		}

		objectStore, err = objectStoreFactory(db)
		if err != nil {
			return nil, fmt.Errorf("failed to open object store: %s", err)
		}
	}

	return &service{objectStore}, nil
}

func (s *service) Objects() domain.ObjectRepository {
	return s.objectStore
}

func (s *service) Close() {
	s.objectStore.Close()
}

func migrateSqlite(db *sql.DB) error {
	driver, err := sqlitemigrate.WithInstance(db, &sqlitemigrate.Config{})
	if err != nil {
		return fmt.Errorf("failed to init driver: %s", err)
	}

	source, err := iofs.New(migrations, "sqlite/migration")
	if err != nil {
		return fmt.Errorf("failed to embed migrations: %s", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "bvsnapdb", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %s", err)
	}

	if err := runMigrations(m); err != nil {
		return fmt.Errorf("failed to run migrations: %s", err)
	}
	return nil
}

func runMigrations(m *migrate.Migrate) error {
	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return err
	}
	if dirty {
		return fmt.Errorf("database is in dirty state at version %d", version)
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			return nil
		}
		return err
	}

	newVersion, _, err := m.Version()
	if err == nil && newVersion != version {
		log.Debugf("migrated object store schema from version %d to %d", version, newVersion)
	}
	return nil
}
