package data

import (
	"context"
	"database/sql"
	"embed"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	_ "github.com/lib/pq" // postgres driver
	"github.com/pkg/errors"
	_ "modernc.org/sqlite" // sqlite driver
)

const (
	DataFileName = "data.db"

	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	schemaVersion = 1
	dirMode       = 0700
)

var (
	//go:embed sql/*
	f embed.FS

	errDBNotInitialized = errors.New("database not initialized")
)

// Store persists measurement runs and their derived key numbers.
type Store struct {
	db     *sql.DB
	driver string
}

// Open connects to the database and makes sure the schema exists. For
// sqlite the dsn is a file path; its directory is created when missing.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, errors.New("database location not specified")
	}
	switch driver {
	case "", DriverSQLite:
		driver = DriverSQLite
		if dir := filepath.Dir(dsn); dir != "" {
			if err := os.MkdirAll(dir, dirMode); err != nil {
				return nil, errors.Wrapf(err, "failed to create dir: %s", dir)
			}
		}
	case DriverPostgres:
	default:
		return nil, errors.Errorf("unsupported database driver: %s", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s database", driver)
	}
	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	}

	s := &Store{db: db, driver: driver}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	b, err := f.ReadFile("sql/ddl.sql")
	if err != nil {
		return errors.Wrap(err, "failed to read the schema creation file")
	}

	slog.Debug("ensuring db schema", "driver", s.driver)
	if _, err := s.db.ExecContext(ctx, string(b)); err != nil {
		return errors.Wrap(err, "failed to create database schema")
	}

	q := s.rebind("INSERT INTO schema_version (version) VALUES (?) ON CONFLICT (version) DO NOTHING")
	if _, err := s.db.ExecContext(ctx, q, schemaVersion); err != nil {
		return errors.Wrap(err, "failed to record schema version")
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Driver returns the database driver name.
func (s *Store) Driver() string { return s.driver }

// SchemaVersion returns the highest applied schema version.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	if s == nil || s.db == nil {
		return 0, errDBNotInitialized
	}
	var v int
	if err := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&v); err != nil {
		return 0, errors.Wrap(err, "failed to read schema version")
	}
	return v, nil
}

// rebind converts ? placeholders to the $n form postgres expects.
func (s *Store) rebind(q string) string {
	if s.driver != DriverPostgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
