package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/angelmondragon/courier-dispatch/pkg/migrate"
)

func readMigration(t *testing.T, suffix string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", "*_"+suffix+".sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no %s migration file found", suffix)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}

func TestMigrationsDirIsValid(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestDispatchMigrationContainsConstraints(t *testing.T) {
	content := readMigration(t, "create_agents_and_orders")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS agent_candidates",
		"REFERENCES orders(id) ON DELETE CASCADE",
		"CHECK (active_tasks >= 0)",
		"agent_candidates_one_accepted_idx ON agent_candidates (order_id) WHERE status = 'accepted'",
		"DROP TABLE IF EXISTS agents",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestEarningsMigrationEnforcesTotal(t *testing.T) {
	content := readMigration(t, "create_earnings")

	checks := []string{
		"CONSTRAINT agent_earnings_order_id_key UNIQUE (order_id)",
		"CHECK (total_earning = base_delivery_fee + extra_distance_fee + surge_amount + bonus_amount + tip_amount + incentive_amount)",
		"DROP TABLE IF EXISTS agent_earnings",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestCommissionMigrationBoundsPercentage(t *testing.T) {
	content := readMigration(t, "create_commission")
	if !strings.Contains(content, "CHECK (commission_type <> 'percentage' OR value <= 100)") {
		t.Errorf("missing percentage bound")
	}
	if !strings.Contains(content, "CONSTRAINT merchant_earnings_order_id_key UNIQUE (order_id)") {
		t.Errorf("missing merchant earning uniqueness")
	}
}

func TestIncentiveMigrationHasPeriodKey(t *testing.T) {
	content := readMigration(t, "create_incentives_and_milestones")
	if !strings.Contains(content, "ON agent_incentive_earnings (agent_id, plan_id, period_identifier)") {
		t.Errorf("missing incentive period key")
	}
	if !strings.Contains(content, "CONSTRAINT agent_milestone_progress_agent_key UNIQUE (agent_id)") {
		t.Errorf("missing milestone progress key")
	}
}

func TestCreateSQLMigration(t *testing.T) {
	dir := t.TempDir()
	path, err := migrate.CreateSQLMigration(dir, "Add Surge Index")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !strings.HasSuffix(path, "_add_surge_index.sql") {
		t.Fatalf("unexpected path %s", path)
	}
	if err := migrate.ValidateDir(dir); err != nil {
		t.Fatalf("validate created migration: %v", err)
	}
}
