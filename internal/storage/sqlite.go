package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"inverigator/internal/analysis"
	"inverigator/internal/extractor"

	_ "github.com/mattn/go-sqlite3"
)

type SQLiteStore struct {
	db *sql.DB
}

var _ CacheStore = (*SQLiteStore)(nil)

// NewSQLiteStore creates or opens a SQLite cache database, creating its
// directory when needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache dir: %w", err)
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS bindings (
			token TEXT,
			implementation TEXT,
			source_file TEXT,
			source_line INTEGER,
			kind TEXT,
			strategy TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS injections (
			property TEXT,
			interface TEXT,
			token TEXT,
			class_name TEXT,
			source_file TEXT,
			source_line INTEGER
		);`,
		`CREATE TABLE IF NOT EXISTS services (
			class_name TEXT PRIMARY KEY,
			method_names JSON,
			source_file TEXT,
			source_line INTEGER
		);`,
		`CREATE TABLE IF NOT EXISTS classes (
			file TEXT,
			name TEXT,
			start_line INTEGER,
			end_line INTEGER
		);`,
		`CREATE TABLE IF NOT EXISTS scanned_files (
			path TEXT PRIMARY KEY
		);`,
		`CREATE INDEX IF NOT EXISTS idx_bindings_token ON bindings(token);`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

var snapshotTables = []string{"meta", "bindings", "injections", "services", "classes", "scanned_files"}

// Save replaces the stored snapshot in one transaction.
func (s *SQLiteStore) Save(ctx context.Context, snap *Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// 1. Drop the previous snapshot
	for _, table := range snapshotTables {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	// 2. Meta
	savedAt := snap.SavedAt
	if savedAt.IsZero() {
		savedAt = time.Now()
	}
	meta := map[string]string{
		"version":     snap.Version,
		"config_hash": snap.ConfigHash,
		"saved_at":    savedAt.UTC().Format(time.RFC3339Nano),
		"partial":     strconv.FormatBool(snap.Partial),
	}
	for k, v := range meta {
		if _, err := tx.ExecContext(ctx, "INSERT INTO meta (key, value) VALUES (?, ?)", k, v); err != nil {
			return fmt.Errorf("failed to save meta: %w", err)
		}
	}

	// 3. Bindings
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO bindings (token, implementation, source_file, source_line, kind, strategy)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, b := range snap.Bindings {
		if _, err := stmt.ExecContext(ctx, b.Token, b.Implementation, b.SourceFile, b.SourceLine, b.Kind, b.Strategy); err != nil {
			return fmt.Errorf("failed to save binding: %w", err)
		}
	}

	// 4. Injections
	injStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO injections (property, interface, token, class_name, source_file, source_line)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer injStmt.Close()
	for _, im := range snap.Injections {
		if _, err := injStmt.ExecContext(ctx, im.Property, im.Interface, im.Token, im.ClassName, im.SourceFile, im.SourceLine); err != nil {
			return fmt.Errorf("failed to save injection: %w", err)
		}
	}

	// 5. Services, last writer wins like the in-memory map
	svcStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO services (class_name, method_names, source_file, source_line) VALUES (?, ?, ?, ?)
		ON CONFLICT(class_name) DO UPDATE SET
			method_names=excluded.method_names,
			source_file=excluded.source_file,
			source_line=excluded.source_line
	`)
	if err != nil {
		return err
	}
	defer svcStmt.Close()
	for _, svc := range snap.Services {
		methods, err := json.Marshal(svc.MethodNames)
		if err != nil {
			return err
		}
		if _, err := svcStmt.ExecContext(ctx, svc.ClassName, methods, svc.SourceFile, svc.SourceLine); err != nil {
			return fmt.Errorf("failed to save service: %w", err)
		}
	}

	// 6. Classes and scanned files
	for _, c := range snap.Classes {
		if _, err := tx.ExecContext(ctx, "INSERT INTO classes (file, name, start_line, end_line) VALUES (?, ?, ?, ?)",
			c.File, c.Name, c.StartLine, c.EndLine); err != nil {
			return fmt.Errorf("failed to save class: %w", err)
		}
	}
	for _, f := range snap.Files {
		if _, err := tx.ExecContext(ctx, "INSERT INTO scanned_files (path) VALUES (?) ON CONFLICT(path) DO NOTHING", f); err != nil {
			return fmt.Errorf("failed to save scanned file: %w", err)
		}
	}

	return tx.Commit()
}

// Load reads the stored snapshot. It returns ErrNoSnapshot when the cache
// is empty.
func (s *SQLiteStore) Load(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{}

	// 1. Meta
	rows, err := s.db.QueryContext(ctx, "SELECT key, value FROM meta")
	if err != nil {
		return nil, fmt.Errorf("failed to query meta: %w", err)
	}
	meta := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan meta: %w", err)
		}
		meta[k] = v
	}
	rows.Close()
	if len(meta) == 0 {
		return nil, ErrNoSnapshot
	}
	snap.Version = meta["version"]
	snap.ConfigHash = meta["config_hash"]
	if snap.SavedAt, err = time.Parse(time.RFC3339Nano, meta["saved_at"]); err != nil {
		return nil, fmt.Errorf("invalid saved_at: %w", err)
	}
	if v, ok := meta["partial"]; ok {
		if snap.Partial, err = strconv.ParseBool(v); err != nil {
			return nil, fmt.Errorf("invalid partial flag: %w", err)
		}
	}

	// 2. Bindings
	bRows, err := s.db.QueryContext(ctx, "SELECT token, implementation, source_file, source_line, kind, strategy FROM bindings ORDER BY rowid")
	if err != nil {
		return nil, fmt.Errorf("failed to query bindings: %w", err)
	}
	defer bRows.Close()
	for bRows.Next() {
		var b extractor.Binding
		if err := bRows.Scan(&b.Token, &b.Implementation, &b.SourceFile, &b.SourceLine, &b.Kind, &b.Strategy); err != nil {
			return nil, fmt.Errorf("failed to scan binding: %w", err)
		}
		snap.Bindings = append(snap.Bindings, b)
	}

	// 3. Injections
	iRows, err := s.db.QueryContext(ctx, "SELECT property, interface, token, class_name, source_file, source_line FROM injections ORDER BY rowid")
	if err != nil {
		return nil, fmt.Errorf("failed to query injections: %w", err)
	}
	defer iRows.Close()
	for iRows.Next() {
		var im analysis.InjectionMapping
		if err := iRows.Scan(&im.Property, &im.Interface, &im.Token, &im.ClassName, &im.SourceFile, &im.SourceLine); err != nil {
			return nil, fmt.Errorf("failed to scan injection: %w", err)
		}
		snap.Injections = append(snap.Injections, im)
	}

	// 4. Services
	sRows, err := s.db.QueryContext(ctx, "SELECT class_name, method_names, source_file, source_line FROM services ORDER BY class_name")
	if err != nil {
		return nil, fmt.Errorf("failed to query services: %w", err)
	}
	defer sRows.Close()
	for sRows.Next() {
		var svc analysis.ServiceInfo
		var methods []byte
		if err := sRows.Scan(&svc.ClassName, &methods, &svc.SourceFile, &svc.SourceLine); err != nil {
			return nil, fmt.Errorf("failed to scan service: %w", err)
		}
		if len(methods) > 0 {
			_ = json.Unmarshal(methods, &svc.MethodNames)
		}
		snap.Services = append(snap.Services, svc)
	}

	// 5. Classes
	cRows, err := s.db.QueryContext(ctx, "SELECT file, name, start_line, end_line FROM classes ORDER BY rowid")
	if err != nil {
		return nil, fmt.Errorf("failed to query classes: %w", err)
	}
	defer cRows.Close()
	for cRows.Next() {
		var c analysis.ClassSpan
		if err := cRows.Scan(&c.File, &c.Name, &c.StartLine, &c.EndLine); err != nil {
			return nil, fmt.Errorf("failed to scan class: %w", err)
		}
		snap.Classes = append(snap.Classes, c)
	}

	// 6. Scanned files
	fRows, err := s.db.QueryContext(ctx, "SELECT path FROM scanned_files ORDER BY path")
	if err != nil {
		return nil, fmt.Errorf("failed to query scanned files: %w", err)
	}
	defer fRows.Close()
	for fRows.Next() {
		var p string
		if err := fRows.Scan(&p); err != nil {
			return nil, fmt.Errorf("failed to scan file: %w", err)
		}
		snap.Files = append(snap.Files, p)
	}

	return snap, nil
}

// Clear removes the stored snapshot.
func (s *SQLiteStore) Clear(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, table := range snapshotTables {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	return tx.Commit()
}
