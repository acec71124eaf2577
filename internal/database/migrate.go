package database

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/lib/pq"
)

// ensureDatabase creates the target database if it does not exist yet,
// connecting to the "postgres" maintenance database with the same
// host/user/password taken from databaseURL.
func ensureDatabase(databaseURL string) error {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return fmt.Errorf("parse database url: %w", err)
	}

	dbName := strings.TrimPrefix(u.Path, "/")
	if dbName == "" {
		return fmt.Errorf("database name is empty in url")
	}

	u.Path = "/postgres"
	db, err := sql.Open("postgres", u.String())
	if err != nil {
		return fmt.Errorf("open admin connection: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("ping admin connection: %w", err)
	}

	var exists bool
	if err := db.QueryRow("SELECT true FROM pg_database WHERE datname = $1", dbName).Scan(&exists); err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("check database existence: %w", err)
	}
	if exists {
		return nil
	}

	if _, err := db.Exec("CREATE DATABASE " + pq.QuoteIdentifier(dbName)); err != nil {
		return fmt.Errorf("create database %q: %w", dbName, err)
	}
	log.Printf("database: created %q", dbName)
	return nil
}

// findDir locates database/<name> relative to cwd or its parent (when running
// from bin/).
func findDir(name string) string {
	cwd, _ := os.Getwd()
	dirs := []string{
		filepath.Join(cwd, "database", name),
		filepath.Join(cwd, "..", "database", name),
	}
	for _, d := range dirs {
		if _, err := os.Stat(d); err == nil {
			abs, _ := filepath.Abs(d)
			return abs
		}
	}
	return ""
}

// MigrateUp runs all pending SQL migrations from database/migrations.
// If the target database does not exist, it is created first.
func MigrateUp(databaseURL string) error {
	if err := ensureDatabase(databaseURL); err != nil {
		return fmt.Errorf("ensure database: %w", err)
	}

	absDir := findDir("migrations")
	if absDir == "" {
		return fmt.Errorf("migrations dir not found (tried cwd and parent)")
	}
	m, err := migrate.New("file://"+filepath.ToSlash(absDir), databaseURL)
	if err != nil {
		return fmt.Errorf("migrate new: %w", err)
	}
	defer m.Close()
	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Println("migrate: no pending migrations")
			return nil
		}
		return err
	}
	log.Println("migrate: up ok")
	return nil
}

// CreateMigration creates a timestamped pair of migration files in
// database/migrations (name.up.sql, name.down.sql).
func CreateMigration(name string) error {
	absDir := findDir("migrations")
	if absDir == "" {
		cwd, _ := os.Getwd()
		absDir = filepath.Join(cwd, "database", "migrations")
	}
	if err := os.MkdirAll(absDir, 0755); err != nil {
		return err
	}
	base := fmt.Sprintf("%d_%s", time.Now().Unix(), name)
	upPath := filepath.Join(absDir, base+".up.sql")
	downPath := filepath.Join(absDir, base+".down.sql")
	if err := os.WriteFile(upPath, []byte("-- migration up: "+name+"\n"), 0644); err != nil {
		return err
	}
	return os.WriteFile(downPath, []byte("-- migration down: "+name+"\n"), 0644)
}
