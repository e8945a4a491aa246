// Package dbtest opens migrated throwaway databases for tests.
package dbtest

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/irsalhamdi/course-progress/config"
	"github.com/irsalhamdi/course-progress/database"
	"github.com/jmoiron/sqlx"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
)

// NewSqlite returns a migrated sqlite database living in t.TempDir.
func NewSqlite(t *testing.T) *sqlx.DB {
	t.Helper()

	db, err := database.Open(config.DB{
		Driver: database.DriverSqlite,
		Path:   filepath.Join(t.TempDir(), "test.sqlite"),
	})
	if err != nil {
		t.Fatalf("opening sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrating sqlite: %v", err)
	}

	return db
}

// NewPostgres starts a throwaway postgres container and returns it migrated.
// The test is skipped when no docker daemon is reachable.
func NewPostgres(t *testing.T) *sqlx.DB {
	t.Helper()

	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Skipf("docker unavailable: %v", err)
	}
	if err := pool.Client.Ping(); err != nil {
		t.Skipf("docker unavailable: %v", err)
	}
	pool.MaxWait = 60 * time.Second

	res, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "postgres",
		Tag:        "15-alpine",
		Env: []string{
			"POSTGRES_USER=progress",
			"POSTGRES_PASSWORD=secret",
			"POSTGRES_DB=progress",
		},
	}, func(hc *docker.HostConfig) {
		hc.AutoRemove = true
		hc.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		t.Fatalf("starting postgres: %v", err)
	}
	t.Cleanup(func() {
		if err := pool.Purge(res); err != nil {
			t.Logf("purging postgres: %v", err)
		}
	})

	cfg := config.DB{
		Driver:     database.DriverPostgres,
		User:       "progress",
		Password:   "secret",
		Host:       res.GetHostPort("5432/tcp"),
		Name:       "progress",
		DisableTLS: true,
	}

	var db *sqlx.DB
	err = pool.Retry(func() error {
		var err error
		db, err = database.Open(cfg)
		return err
	})
	if err != nil {
		t.Fatalf("connecting to postgres: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrating postgres: %v", err)
	}

	return db
}
