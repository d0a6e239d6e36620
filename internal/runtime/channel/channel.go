// Package channel implements FasterBASIC's OPEN/CLOSE/PRINT#/INPUT#
// channel table (spec.md §4.7/§5): an integer handle indexing into a
// process-wide table of open files, released by CLOSE or at process-exit
// cleanup. OpenHashmap mode is the persistence-channel supplement
// (SPEC_FULL.md "Supplemented features"): `OPEN "<dsn>" FOR HASHMAP AS
// #n` backs a HASHMAP with a real SQL table instead of memory. The DSN's
// scheme picks the backend driver: bare paths and `sqlite:` use the
// pure-Go modernc.org/sqlite driver (no cgo, so the emitted program's
// persistence never depends on a cgo toolchain being present on the
// target ARM64 board); `postgres:`/`mysql:`/`sqlserver:` route to
// lib/pq, go-sql-driver/mysql, and denisenkom/go-mssqldb respectively,
// for deployments where the persistence channel targets a shared
// database server rather than a local file.
package channel

import (
	"database/sql"
	"fmt"
	"os"
	"strings"
	"sync"

	_ "github.com/denisenkom/go-mssqldb"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"fasterbasic/internal/ast"
)

// driverFor maps a persistence-channel DSN's scheme to its registered
// database/sql driver name. A bare filesystem path (no "scheme:" prefix)
// defaults to sqlite, matching OPEN's historical single-file behaviour.
func driverFor(dsn string) (driver, dataSource string) {
	switch {
	case strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://"):
		return "postgres", dsn
	case strings.HasPrefix(dsn, "mysql://"):
		return "mysql", strings.TrimPrefix(dsn, "mysql://")
	case strings.HasPrefix(dsn, "sqlserver://"):
		return "sqlserver", dsn
	case strings.HasPrefix(dsn, "sqlite:"):
		return "sqlite", strings.TrimPrefix(dsn, "sqlite:")
	default:
		return "sqlite", dsn
	}
}

// Entry is one open channel. Exactly one of File/DB is non-nil depending
// on Mode.
type Entry struct {
	Mode   ast.OpenMode
	Path   string
	File   *os.File
	DB     *sql.DB
	Driver string
}

// Table is the process-wide channel table; spec.md §5 calls for "process-
// wide state with explicit init/teardown at program start and end",
// matching the runtime's SAMM and exception-frame machines.
type Table struct {
	mu      sync.Mutex
	entries map[int32]*Entry
}

func NewTable() *Table { return &Table{entries: map[int32]*Entry{}} }

// Open implements the OPEN statement's runtime half. For OpenHashmap it
// opens (creating if absent) a key/value table in the database driverFor
// picks from the path (SQLite for a bare path) instead of a plain file.
func (t *Table) Open(channel int32, path string, mode ast.OpenMode) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.entries[channel]; exists {
		return fmt.Errorf("channel #%d already open", channel)
	}
	if mode == ast.OpenHashmap {
		driver, dsn := driverFor(path)
		db, err := sql.Open(driver, dsn)
		if err != nil {
			return err
		}
		if _, err := db.Exec(createTableStmt(driver)); err != nil {
			db.Close()
			return err
		}
		t.entries[channel] = &Entry{Mode: mode, Path: path, DB: db, Driver: driver}
		return nil
	}

	flag := os.O_RDONLY
	switch mode {
	case ast.OpenOutput:
		flag = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	case ast.OpenAppend:
		flag = os.O_WRONLY | os.O_CREATE | os.O_APPEND
	}
	f, err := os.OpenFile(path, flag, 0644)
	if err != nil {
		return err
	}
	t.entries[channel] = &Entry{Mode: mode, Path: path, File: f}
	return nil
}

func (t *Table) Close(channel int32) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[channel]
	if !ok {
		return fmt.Errorf("channel #%d is not open", channel)
	}
	delete(t.entries, channel)
	if e.File != nil {
		return e.File.Close()
	}
	if e.DB != nil {
		return e.DB.Close()
	}
	return nil
}

func (t *Table) Get(channel int32) (*Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[channel]
	return e, ok
}

// createTableStmt returns the backend-appropriate "create if absent"
// statement; sqlserver has no IF NOT EXISTS shorthand for CREATE TABLE.
func createTableStmt(driver string) string {
	if driver == "sqlserver" {
		return `IF OBJECT_ID('kv', 'U') IS NULL CREATE TABLE kv (k NVARCHAR(450) PRIMARY KEY, v NVARCHAR(MAX))`
	}
	return `CREATE TABLE IF NOT EXISTS kv (k TEXT PRIMARY KEY, v TEXT)`
}

// Put/GetValue implement the persistence channel's HASHMAP-shaped
// surface. Each backend's upsert dialect differs: sqlite/postgres share
// the `ON CONFLICT ... DO UPDATE` form, mysql uses `ON DUPLICATE KEY
// UPDATE`, sqlserver has no single-statement upsert and needs MERGE.
func (e *Entry) Put(key, value string) error {
	switch e.Driver {
	case "mysql":
		_, err := e.DB.Exec(`INSERT INTO kv (k, v) VALUES (?, ?) ON DUPLICATE KEY UPDATE v = VALUES(v)`, key, value)
		return err
	case "sqlserver":
		_, err := e.DB.Exec(`MERGE kv AS target USING (SELECT @p1 AS k, @p2 AS v) AS src
			ON target.k = src.k
			WHEN MATCHED THEN UPDATE SET v = src.v
			WHEN NOT MATCHED THEN INSERT (k, v) VALUES (src.k, src.v);`, key, value)
		return err
	default:
		_, err := e.DB.Exec(`INSERT INTO kv (k, v) VALUES ($1, $2) ON CONFLICT(k) DO UPDATE SET v = excluded.v`, key, value)
		return err
	}
}

func (e *Entry) GetValue(key string) (string, bool, error) {
	var v string
	query := `SELECT v FROM kv WHERE k = ?`
	if e.Driver == "postgres" {
		query = `SELECT v FROM kv WHERE k = $1`
	} else if e.Driver == "sqlserver" {
		query = `SELECT v FROM kv WHERE k = @p1`
	}
	err := e.DB.QueryRow(query, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

// Shutdown closes every still-open channel at process exit (spec.md §5:
// "Files opened via channel N are released by CLOSE or by process-exit
// cleanup (channel table walked at teardown)").
func (t *Table) Shutdown() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for ch, e := range t.entries {
		if e.File != nil {
			e.File.Close()
		}
		if e.DB != nil {
			e.DB.Close()
		}
		delete(t.entries, ch)
	}
}
