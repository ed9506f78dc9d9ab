package migrate

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

const versionLayout = "20060102150405"

var (
	fileNameRe = regexp.MustCompile(`^(\d{14})_([a-z0-9_]+)\.sql$`)
	unsafeRe   = regexp.MustCompile(`[^a-z0-9]+`)
)

const sqlTemplate = `-- +goose Up
-- +goose StatementBegin
-- %[1]s
-- +goose StatementEnd

-- +goose Down
-- +goose StatementBegin
-- rollback %[1]s
-- +goose StatementEnd
`

// slug lowercases name and collapses anything outside [a-z0-9] into one
// underscore.
func slug(name string) string {
	return strings.Trim(unsafeRe.ReplaceAllString(strings.ToLower(name), "_"), "_")
}

// CreateSQLMigration writes an empty goose migration named
// <dir>/<YYYYMMDDHHMMSS>_<slug>.sql and returns its path.
func CreateSQLMigration(dir, name string) (string, error) {
	return createAt(dir, name, time.Now().UTC())
}

func createAt(dir, name string, at time.Time) (string, error) {
	if dir == "" || strings.TrimSpace(name) == "" {
		return "", errors.New("dir and name are required")
	}
	s := slug(name)
	if s == "" {
		return "", fmt.Errorf("name %q has no usable characters", name)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %q: %w", dir, err)
	}

	path := filepath.Join(dir, at.Format(versionLayout)+"_"+s+".sql")
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create migration %q: %w", path, err)
	}
	defer f.Close()
	if _, err := fmt.Fprintf(f, sqlTemplate, s); err != nil {
		return "", fmt.Errorf("write migration %q: %w", path, err)
	}
	return path, nil
}

// ValidateDir checks file naming, version uniqueness and the goose
// annotations of every .sql file in dir.
func ValidateDir(dir string) error {
	if dir == "" {
		return errors.New("dir is required")
	}
	paths, err := filepath.Glob(filepath.Join(dir, "*.sql"))
	if err != nil {
		return fmt.Errorf("list %q: %w", dir, err)
	}

	versions := make(map[string]string, len(paths))
	for _, path := range paths {
		name := filepath.Base(path)
		m := fileNameRe.FindStringSubmatch(name)
		if m == nil {
			return fmt.Errorf("invalid migration filename %q (expected YYYYMMDDHHMMSS_name.sql)", name)
		}
		if prev, dup := versions[m[1]]; dup {
			return fmt.Errorf("duplicate migration version %s in %q and %q", m[1], prev, name)
		}
		versions[m[1]] = name

		body, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %q: %w", path, err)
		}
		if err := checkAnnotations(string(body)); err != nil {
			return fmt.Errorf("migration %q: %w", name, err)
		}
	}
	return nil
}

func checkAnnotations(sql string) error {
	up := strings.Index(sql, "-- +goose Up")
	down := strings.Index(sql, "-- +goose Down")
	switch {
	case up < 0:
		return errors.New(`missing "-- +goose Up"`)
	case down < 0:
		return errors.New(`missing "-- +goose Down"`)
	case down < up:
		return errors.New("down section precedes up section")
	}
	if b, e := strings.Count(sql, "-- +goose StatementBegin"), strings.Count(sql, "-- +goose StatementEnd"); b != e {
		return fmt.Errorf("%d StatementBegin but %d StatementEnd", b, e)
	}
	return nil
}
