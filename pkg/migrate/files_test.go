package migrate

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestSlug(t *testing.T) {
	cases := map[string]string{
		"Add Surge Index":       "add_surge_index",
		"  agents--by city  ":   "agents_by_city",
		"offer_expiry/idx (v2)": "offer_expiry_idx_v2",
		"!!!":                   "",
	}
	for in, want := range cases {
		if got := slug(in); got != want {
			t.Errorf("slug(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCreateAtRefusesExistingVersion(t *testing.T) {
	dir := t.TempDir()
	at := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	path, err := createAt(dir, "agent cooldown", at)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if filepath.Base(path) != "20261001090000_agent_cooldown.sql" {
		t.Fatalf("unexpected file %s", path)
	}
	if _, err := createAt(dir, "agent cooldown", at); err == nil {
		t.Fatalf("expected second create with same version to fail")
	}
}

func TestValidateDirRejectsBadFiles(t *testing.T) {
	cases := map[string]string{
		"20261001090000_missing_down.sql": "-- +goose Up\nSELECT 1;\n",
		"20261001090000_unbalanced.sql":   "-- +goose Up\n-- +goose StatementBegin\nSELECT 1;\n-- +goose Down\nSELECT 1;\n",
		"2026_bad_name.sql":               "-- +goose Up\n-- +goose Down\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
				t.Fatalf("write: %v", err)
			}
			if err := ValidateDir(dir); err == nil {
				t.Fatalf("expected %s to be rejected", name)
			}
		})
	}
}

func TestValidateDirRejectsDuplicateVersion(t *testing.T) {
	dir := t.TempDir()
	body := []byte("-- +goose Up\nSELECT 1;\n-- +goose Down\nSELECT 1;\n")
	for _, name := range []string{"20261001090000_a.sql", "20261001090000_b.sql"} {
		if err := os.WriteFile(filepath.Join(dir, name), body, 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	err := ValidateDir(dir)
	if err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Fatalf("expected duplicate version error, got %v", err)
	}
}
