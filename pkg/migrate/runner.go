package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/pressly/goose/v3"
)

// DefaultDir holds the postgres schema. SQLite runs use gorm AutoMigrate.
const DefaultDir = "pkg/migrate/migrations"

// Runner drives goose against one postgres database and one migrations dir.
type Runner struct {
	provider *goose.Provider
	out      io.Writer
}

// NewRunner opens a goose provider over dir. Output defaults to stdout.
func NewRunner(db *sql.DB, dir string, out io.Writer) (*Runner, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	if dir == "" {
		return nil, errors.New("dir is required")
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, db, os.DirFS(dir))
	if err != nil {
		return nil, fmt.Errorf("goose provider for %q: %w", dir, err)
	}
	if out == nil {
		out = os.Stdout
	}
	return &Runner{provider: provider, out: out}, nil
}

func (r *Runner) Close() error {
	return r.provider.Close()
}

// Exec runs one of up, down, redo or status.
func (r *Runner) Exec(ctx context.Context, command string) error {
	switch command {
	case "up":
		results, err := r.provider.Up(ctx)
		r.report(results...)
		return wrap("up", err)
	case "down":
		res, err := r.provider.Down(ctx)
		r.report(res)
		return wrap("down", err)
	case "redo":
		down, err := r.provider.Down(ctx)
		r.report(down)
		if err != nil {
			return wrap("redo", err)
		}
		up, err := r.provider.UpByOne(ctx)
		r.report(up)
		return wrap("redo", err)
	case "status":
		return r.status(ctx)
	}
	return fmt.Errorf("unknown goose command %q", command)
}

// To moves the schema up or down to version (YYYYMMDDHHMMSS).
func (r *Runner) To(ctx context.Context, version string) error {
	target, err := strconv.ParseInt(version, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS): %w", version, err)
	}
	current, err := r.provider.GetDBVersion(ctx)
	if err != nil {
		return fmt.Errorf("get db version: %w", err)
	}
	switch {
	case current < target:
		results, err := r.provider.UpTo(ctx, target)
		r.report(results...)
		return wrap(fmt.Sprintf("up-to %d", target), err)
	case current > target:
		results, err := r.provider.DownTo(ctx, target)
		r.report(results...)
		return wrap(fmt.Sprintf("down-to %d", target), err)
	}
	return nil
}

func (r *Runner) status(ctx context.Context) error {
	rows, err := r.provider.Status(ctx)
	if err != nil {
		return wrap("status", err)
	}
	for _, row := range rows {
		applied := "pending"
		if row.State == goose.StateApplied {
			applied = row.AppliedAt.UTC().Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(r.out, "%-22s %s\n", applied, row.Source.Path)
	}
	return nil
}

func (r *Runner) report(results ...*goose.MigrationResult) {
	for _, res := range results {
		if res == nil || res.Source == nil {
			continue
		}
		fmt.Fprintf(r.out, "%-4s %s (%s)\n", res.Direction, res.Source.Path, res.Duration.Round(time.Millisecond))
	}
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("goose %s: %w", op, err)
}
